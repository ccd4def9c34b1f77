// Package config loads the validator's process configuration from the
// environment. Required variables have no defaults; Load fails fast the way
// a startup-time configuration error should. An optional YAML file
// (CONFIG_FILE) layers tuning overrides underneath the environment: env
// vars always win, the file only fills in values the operator didn't set.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// fileOverrides is the shape of the optional CONFIG_FILE. Only sync/poll
// tuning is exposed this way; secrets and endpoints stay env-only.
type fileOverrides struct {
	HistoricalSyncThreshold uint64        `yaml:"historical_sync_threshold"`
	SyncRetryInterval       time.Duration `yaml:"sync_retry_interval"`
	SyncTimeout             time.Duration `yaml:"sync_timeout"`
	PollTimeout             time.Duration `yaml:"poll_timeout"`
	ObserveTimeout          time.Duration `yaml:"observe_timeout"`
	MaxLogsPerRequest       uint64        `yaml:"max_logs_per_request"`
}

func loadFileOverrides(path string) (*fileOverrides, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading %s: %w", path, err)
	}
	var ov fileOverrides
	if err := yaml.Unmarshal(data, &ov); err != nil {
		return nil, fmt.Errorf("config: parsing %s: %w", path, err)
	}
	return &ov, nil
}

func (c *Config) applyFileOverrides(ov *fileOverrides) {
	if ov.HistoricalSyncThreshold != 0 {
		c.HistoricalSyncThreshold = ov.HistoricalSyncThreshold
	}
	if ov.SyncRetryInterval != 0 {
		c.SyncRetryInterval = ov.SyncRetryInterval
	}
	if ov.SyncTimeout != 0 {
		c.SyncTimeout = ov.SyncTimeout
	}
	if ov.PollTimeout != 0 {
		c.PollTimeout = ov.PollTimeout
	}
	if ov.ObserveTimeout != 0 {
		c.ObserveTimeout = ov.ObserveTimeout
	}
	if ov.MaxLogsPerRequest != 0 {
		c.MaxLogsPerRequest = ov.MaxLogsPerRequest
	}
}

// Config holds everything the validator needs to run.
type Config struct {
	// Chain
	EthNodeURL   string
	ChainID      int64
	WalletPK     string
	StoreAddress string

	// Object storage
	GfNodeURL string

	// Persistence
	DatabaseURL string

	// Local artifact cache
	FileStoragePath string

	// Sync tuning
	HistoricalSyncThreshold uint64
	SyncRetryInterval       time.Duration
	SyncTimeout             time.Duration
	PollTimeout             time.Duration
	ObserveTimeout          time.Duration
	MaxLogsPerRequest       uint64

	// Optional
	EthscanAPIKey string
	TGToken       string
	InfoChatID    int64
	AlertChatID   int64

	// ValidatorVersion is this binary's protocol version, compared against
	// the chain's minimum accepted version during registration.
	ValidatorVersion uint64
}

// Load reads Config from the environment. Required variables that are
// missing produce an error describing which one; callers should treat a
// non-nil error as fatal at startup.
func Load() (*Config, error) {
	cfg := &Config{
		ValidatorVersion:        1,
		SyncRetryInterval:       60 * time.Second,
		SyncTimeout:             60 * time.Second,
		PollTimeout:             30 * time.Second,
		ObserveTimeout:          30 * time.Second,
		MaxLogsPerRequest:       1000,
		HistoricalSyncThreshold: 500,
		EthscanAPIKey:           os.Getenv("ETHSCAN_API_KEY"),
		TGToken:                 os.Getenv("TG_TOKEN"),
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		ov, err := loadFileOverrides(path)
		if err != nil {
			return nil, err
		}
		cfg.applyFileOverrides(ov)
	}
	cfg.HistoricalSyncThreshold = getEnvUint64("HISTORICAL_SYNC_THRESHOLD", cfg.HistoricalSyncThreshold)

	var missing []string
	required := map[string]*string{
		"ETH_NODE_URL":    &cfg.EthNodeURL,
		"WALLET_PK":       &cfg.WalletPK,
		"STORE_ADDRESS":   &cfg.StoreAddress,
		"GF_NODE_URL":     &cfg.GfNodeURL,
		"DATABASE_URL":    &cfg.DatabaseURL,
		"FILE_STORAGE_PATH": &cfg.FileStoragePath,
	}
	for name, dest := range required {
		v := os.Getenv(name)
		if v == "" {
			missing = append(missing, name)
			continue
		}
		*dest = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("config: missing required environment variables: %v", missing)
	}

	chainID, err := getEnvInt64Required("CHAIN_ID")
	if err != nil {
		return nil, err
	}
	cfg.ChainID = chainID

	if v := os.Getenv("TG_INFO_CHAT_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: TG_INFO_CHAT_ID: %w", err)
		}
		cfg.InfoChatID = n
	}
	if v := os.Getenv("TG_ALERT_CHAT_ID"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: TG_ALERT_CHAT_ID: %w", err)
		}
		cfg.AlertChatID = n
	}

	return cfg, nil
}

// IsDevEnv reports whether the chain ID matches the well-known local
// development chain (Anvil/Hardhat default of 31337).
func (c *Config) IsDevEnv() bool {
	return c.ChainID == 31337
}

func getEnvUint64(key string, def uint64) uint64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return def
	}
	return n
}

func getEnvInt64Required(key string) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, fmt.Errorf("config: missing required environment variable: %s", key)
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}
