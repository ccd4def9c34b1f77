// Package artifact downloads an app build's APK from object storage,
// verifies its APK Signing Scheme v2 signature and content digest, checks
// the owner's on-chain ownership proof against the signing certificate, and
// produces the ValidationResult the rest of the system proposes on chain.
package artifact

import (
	"context"
	"crypto/x509"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"github.com/certen/independant-validator/internal/apk"
	"github.com/certen/independant-validator/internal/model"
	"github.com/certen/independant-validator/internal/ownership"
	"github.com/certen/independant-validator/internal/retry"
)

// OwnerDataSource is the subset of the chain adapter the validator needs to
// look up an app's artifact location and owner proof data.
type OwnerDataSource interface {
	GetArtifact(ctx context.Context, app common.Address, buildVersion uint64) (refID string, protocolID uint8, checksum string, err error)
	GetOwnerData(ctx context.Context, app common.Address, ownerVersion uint64) (certs [][]byte, proofs [][]byte, err error)
}

// Validator downloads and validates a single request's artifact.
type Validator struct {
	chain           OwnerDataSource
	objectStoreURL  string
	storageDir      string
	chainID         int64
	httpClient      *http.Client
	logger          *log.Logger
	downloadRetries int

	// inProgress tracks request ids currently being validated by this
	// process, so two concurrent calls for the same request don't both do
	// the download-and-verify work.
	inProgress sync.Map
}

// New builds a Validator. objectStoreURL is the Greenfield-compatible
// object store's base URL (GF_NODE_URL); storageDir is where downloaded
// artifacts are staged (FILE_STORAGE_PATH) before being hashed and parsed.
func New(chain OwnerDataSource, objectStoreURL, storageDir string, chainID int64, logger *log.Logger) *Validator {
	if logger == nil {
		logger = log.Default()
	}
	return &Validator{
		chain:           chain,
		objectStoreURL:  objectStoreURL,
		storageDir:      storageDir,
		chainID:         chainID,
		httpClient:      &http.Client{Timeout: 2 * time.Minute},
		logger:          logger,
		downloadRetries: 5,
	}
}

// acquire blocks, spinning with short sleeps on contention, until requestID
// is not already being validated, then marks it in-progress. Returns an
// error only if ctx is cancelled while waiting.
func (v *Validator) acquire(ctx context.Context, requestID uint64) error {
	for {
		if _, loaded := v.inProgress.LoadOrStore(requestID, struct{}{}); !loaded {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(25 * time.Millisecond):
		}
	}
}

func (v *Validator) release(requestID uint64) {
	v.inProgress.Delete(requestID)
}

// ValidateRequest fetches the request's artifact and produces its
// ValidationResult. A download or I/O failure yields Unavailable rather
// than a hard error, since it may be transient and the block repository
// treats Unavailable specially during alignment.
func (v *Validator) ValidateRequest(ctx context.Context, req *model.Request) model.ValidationResult {
	if err := v.acquire(ctx, req.RequestID); err != nil {
		return model.Unavailable(req.RequestID)
	}
	defer v.release(req.RequestID)

	attempt := uuid.New().String()

	app := common.HexToAddress(req.Target)
	refID, protocolID, checksum, err := v.chain.GetArtifact(ctx, app, req.BuildVersion)
	if err != nil {
		v.logger.Printf("artifact[%s]: artifact record lookup failed for request %d: %v", attempt, req.RequestID, err)
		return model.Unavailable(req.RequestID)
	}

	path, err := v.download(ctx, refID)
	if err != nil {
		v.logger.Printf("artifact[%s]: download failed for request %d: %v", attempt, req.RequestID, err)
		return model.Unavailable(req.RequestID)
	}
	defer os.Remove(path)
	v.logger.Printf("artifact[%s]: downloaded request %d", attempt, req.RequestID)

	result := model.ValidationResult{
		RequestID:        req.RequestID,
		RequestType:      req.RequestType,
		AssetAddress:     req.Target,
		ArtifactRefID:    refID,
		ArtifactProtocol: protocolID,
		ObjectVersion:    req.BuildVersion,
		OwnerVersion:     req.OwnerVersion,
		TrackID:          req.TrackID,
	}

	hash, err := blake3File(path)
	if err != nil {
		v.logger.Printf("artifact[%s]: hashing failed for request %d: %v", attempt, req.RequestID, err)
		return model.Unavailable(req.RequestID)
	}
	result.FileHash = hash
	result.FileHashAlgorithm = model.FileHashAlgoBlake3

	if !strings.EqualFold(strings.TrimPrefix(hash, "0x"), strings.TrimPrefix(checksum, "0x")) {
		result.Status = apk.StatusHashMismatch
		return result
	}

	f, err := os.Open(path)
	if err != nil {
		return model.Unavailable(req.RequestID)
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return model.Unavailable(req.RequestID)
	}

	signer, err := apk.VerifyV2(f, info.Size())
	if err != nil {
		result.Status = statusFromErr(err)
		return result
	}
	offsets := signer.Offsets
	result.Proofs = &offsets

	if err := v.verifyOwnership(ctx, app, req.OwnerVersion, signer.Certificates); err != nil {
		result.Status = statusFromErr(err)
		return result
	}

	result.Status = apk.StatusSuccess
	return result
}

// verifyOwnership requires every certificate in certs to carry a valid
// ownership proof; any cert missing a proof, or any proof that fails to
// verify, fails the whole artifact.
func (v *Validator) verifyOwnership(ctx context.Context, app common.Address, ownerVersion uint64, certs [][]byte) error {
	onChainCerts, proofs, err := v.chain.GetOwnerData(ctx, app, ownerVersion)
	if err != nil {
		return apk.Wrap(apk.StatusProofNotFound, err)
	}
	proofMap, err := ownership.BuildProofMap(onChainCerts, proofs)
	if err != nil {
		return apk.Wrap(apk.StatusIncorrectCertFormat, err)
	}

	for _, certDER := range certs {
		fp := ownership.Fingerprint(certDER)
		sig, ok := proofMap[fp]
		if !ok {
			return apk.Fail(apk.StatusProofNotFound)
		}
		cert, err := x509.ParseCertificate(certDER)
		if err != nil {
			return apk.Wrap(apk.StatusIncorrectCertFormat, err)
		}
		proof := ownership.Proof{FingerprintHex: fp, Signature: sig}
		if err := ownership.VerifyProof(cert, v.chainID, app.Hex(), proof); err != nil {
			return apk.Wrap(apk.StatusInvalidProof, err)
		}
	}
	return nil
}

func statusFromErr(err error) apk.Status {
	var apkErr *apk.Error
	if e, ok := err.(*apk.Error); ok {
		apkErr = e
	}
	if apkErr != nil {
		return apkErr.Status
	}
	return apk.StatusUnavailable
}

func (v *Validator) download(ctx context.Context, refID string) (string, error) {
	dest := filepath.Join(v.storageDir, fmt.Sprintf("%s.apk", filepath.Base(refID)))
	trier := retry.New(v.downloadRetries, time.Second, 10*time.Second)
	var lastErr error
	for !trier.Exceeded() {
		if err := v.downloadOnce(ctx, refID, dest); err != nil {
			lastErr = err
			if err := trier.Iterate(ctx); err != nil {
				return "", err
			}
			continue
		}
		return dest, nil
	}
	return "", fmt.Errorf("artifact: download exhausted retries: %w", lastErr)
}

func (v *Validator) downloadOnce(ctx context.Context, refID, dest string) error {
	url := v.objectStoreURL + "/" + refID
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := v.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("artifact: unexpected status %d fetching %s", resp.StatusCode, url)
	}

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer out.Close()
	_, err = io.Copy(out, resp.Body)
	return err
}

// blake3File streams the file in 8KB chunks and returns its digest as
// lowercase hex prefixed with 0x.
func blake3File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := blake3.New(32, nil)
	buf := make([]byte, 8192)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			h.Write(buf[:n])
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("0x%x", h.Sum(nil)), nil
}
