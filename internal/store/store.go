// Package store is the validator's local persistence layer: which requests
// have already been validated (so Poll and ValidateSync never redo work)
// and which blocks this validator has already proposed, voted on, or seen
// finalized (so a restart doesn't replay on-chain actions it already took).
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"sort"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/certen/independant-validator/internal/apk"
	"github.com/certen/independant-validator/internal/model"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store wraps a Postgres connection pool holding the val_req/val_block
// tables.
type Store struct {
	db     *sql.DB
	logger *log.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithLogger overrides the default logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// Open connects to databaseURL and verifies connectivity.
func Open(databaseURL string, opts ...Option) (*Store, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("store: DATABASE_URL is empty")
	}
	s := &Store{logger: log.New(log.Writer(), "[store] ", log.LstdFlags)}
	for _, opt := range opts {
		opt(s)
	}

	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	s.db = db
	return s, nil
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// migration is one embedded SQL file, applied in filename order.
type migration struct {
	Version string
	SQL     string
}

// MigrateUp applies every embedded migration not yet recorded in
// schema_migrations.
func (s *Store) MigrateUp(ctx context.Context) error {
	migrations, err := s.readMigrations()
	if err != nil {
		return fmt.Errorf("store: read migrations: %w", err)
	}

	applied := make(map[string]bool)
	rows, err := s.db.QueryContext(ctx, "SELECT version FROM schema_migrations")
	if err == nil {
		defer rows.Close()
		for rows.Next() {
			var v string
			if err := rows.Scan(&v); err == nil {
				applied[v] = true
			}
		}
	} else if !strings.Contains(err.Error(), "does not exist") {
		return fmt.Errorf("store: applied migrations: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Version] {
			continue
		}
		s.logger.Printf("store: applying migration %s", m.Version)
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
			tx.Rollback()
			return fmt.Errorf("store: migration %s: %w", m.Version, err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1) ON CONFLICT DO NOTHING", m.Version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) readMigrations() ([]migration, error) {
	var out []migration
	err := fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".sql") {
			return err
		}
		content, err := migrationsFS.ReadFile(path)
		if err != nil {
			return err
		}
		out = append(out, migration{Version: strings.TrimSuffix(d.Name(), ".sql"), SQL: string(content)})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// HasRequest reports whether a request has already been validated locally.
func (s *Store) HasRequest(ctx context.Context, requestID uint64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM val_req WHERE request_id = $1)", requestID).Scan(&exists)
	return exists, err
}

// SaveResult upserts a single validated request's outcome.
func (s *Store) SaveResult(ctx context.Context, r model.ValidationResult) error {
	var eocd, cd, sb sql.NullInt64
	if r.Proofs != nil {
		eocd = sql.NullInt64{Int64: r.Proofs.EOCD, Valid: true}
		cd = sql.NullInt64{Int64: r.Proofs.CentralDir, Valid: true}
		sb = sql.NullInt64{Int64: r.Proofs.SigningBlock, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO val_req (request_id, request_type, status, asset_address, artifact_ref_id,
			artifact_protocol, object_version, owner_version, track_id,
			file_hash, file_hash_algorithm, eocd_offset, central_dir_offset, signing_block_offset)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		ON CONFLICT (request_id) DO UPDATE SET
			status = EXCLUDED.status,
			asset_address = EXCLUDED.asset_address,
			artifact_ref_id = EXCLUDED.artifact_ref_id,
			artifact_protocol = EXCLUDED.artifact_protocol,
			object_version = EXCLUDED.object_version,
			owner_version = EXCLUDED.owner_version,
			track_id = EXCLUDED.track_id,
			file_hash = EXCLUDED.file_hash,
			file_hash_algorithm = EXCLUDED.file_hash_algorithm,
			eocd_offset = EXCLUDED.eocd_offset,
			central_dir_offset = EXCLUDED.central_dir_offset,
			signing_block_offset = EXCLUDED.signing_block_offset
	`, r.RequestID, r.RequestType, int(r.Status), r.AssetAddress, r.ArtifactRefID,
		r.ArtifactProtocol, r.ObjectVersion, r.OwnerVersion, r.TrackID,
		r.FileHash, int(r.FileHashAlgorithm), eocd, cd, sb)
	return err
}

// GetResults returns cached results for request ids in [from, to), ordered
// by request id.
func (s *Store) GetResults(ctx context.Context, from, to uint64) ([]model.ValidationResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, request_type, status, asset_address, artifact_ref_id,
			artifact_protocol, object_version, owner_version, track_id,
			file_hash, file_hash_algorithm, eocd_offset, central_dir_offset, signing_block_offset
		FROM val_req WHERE request_id >= $1 AND request_id < $2 ORDER BY request_id`, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.ValidationResult
	for rows.Next() {
		var r model.ValidationResult
		var status, algo int
		var eocd, cd, sb sql.NullInt64
		if err := rows.Scan(&r.RequestID, &r.RequestType, &status, &r.AssetAddress, &r.ArtifactRefID,
			&r.ArtifactProtocol, &r.ObjectVersion, &r.OwnerVersion, &r.TrackID,
			&r.FileHash, &algo, &eocd, &cd, &sb); err != nil {
			return nil, err
		}
		r.Status = apk.Status(status)
		r.FileHashAlgorithm = model.FileHashAlgo(algo)
		if eocd.Valid {
			r.Proofs = &apk.Offsets{EOCD: eocd.Int64, CentralDir: cd.Int64, SigningBlock: sb.Int64}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// NextLocalRequestID returns one past the highest locally validated request
// id, or 0 if none are stored.
func (s *Store) NextLocalRequestID(ctx context.Context) (uint64, error) {
	var max sql.NullInt64
	err := s.db.QueryRowContext(ctx, "SELECT MAX(request_id) FROM val_req").Scan(&max)
	if err != nil {
		return 0, err
	}
	if !max.Valid {
		return 0, nil
	}
	return uint64(max.Int64) + 1, nil
}

// IsSubmitted reports whether a block has already been proposed or voted
// locally.
func (s *Store) IsSubmitted(ctx context.Context, blockID uint64) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM val_block WHERE block_id = $1)", blockID).Scan(&exists)
	return exists, err
}

// IsVoted reports whether the local state for a block is at least Voted.
func (s *Store) IsVoted(ctx context.Context, blockID uint64) (bool, error) {
	state, ok, err := s.BlockState(ctx, blockID)
	if err != nil || !ok {
		return false, err
	}
	return state.AtLeastVoted(), nil
}

// BlockState returns the locally persisted state for a block, if any.
func (s *Store) BlockState(ctx context.Context, blockID uint64) (model.BlockState, bool, error) {
	var state int
	err := s.db.QueryRowContext(ctx, "SELECT state FROM val_block WHERE block_id = $1", blockID).Scan(&state)
	if err == sql.ErrNoRows {
		return model.BlockStateNone, false, nil
	}
	if err != nil {
		return model.BlockStateNone, false, err
	}
	return model.BlockState(state), true, nil
}

// SaveBlock upserts the local record of a block's state and data.
func (s *Store) SaveBlock(ctx context.Context, blockID uint64, state model.BlockState, data []byte) error {
	from, to := uint64(0), uint64(0)
	if b, err := decodeForRange(data); err == nil {
		if f, ok := b.FromRequestID(); ok {
			from = f
		}
		if t, ok := b.ToRequestID(); ok {
			to = t
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO val_block (block_id, state, block_data, from_request, to_request)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (block_id) DO UPDATE SET state = EXCLUDED.state, block_data = EXCLUDED.block_data
	`, blockID, int(state), data, from, to)
	return err
}

// decodeForRange is a narrow hook so SaveBlock can populate from/to columns
// without internal/store importing internal/blockrepo's full encode/decode
// surface for more than this.
var decodeForRange = func(data []byte) (*model.ValidationBlock, error) {
	return nil, fmt.Errorf("store: no block decoder configured")
}

// SetBlockDecoder installs the deterministic decoder blockrepo provides,
// avoiding an import cycle between store and blockrepo.
func SetBlockDecoder(fn func([]byte) (*model.ValidationBlock, error)) {
	decodeForRange = fn
}
