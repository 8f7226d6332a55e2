// Package config loads gravyvalet runtime configuration.
//
// All keys bind to GRAVYVALET_* environment variables via viper; a config
// file is optional and only consulted when GRAVYVALET_CONFIG is set.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults applied when the environment leaves a key unset.
const (
	DefaultListenAddress     = "127.0.0.1:8004"
	DefaultDatabasePath      = "gravyvalet.db"
	DefaultRedisURL          = "redis://127.0.0.1:6379/0"
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultInvocationTimeout = 110 * time.Second
	DefaultRefreshWait       = 10 * time.Second

	// Scrypt defaults follow RFC 7914 recommendations: cost 2^17, block
	// size 8, parallelization 1, 17-byte salt.
	DefaultScryptCostLog2         = 17
	DefaultScryptBlockSize        = 8
	DefaultScryptParallelization  = 1
	DefaultSaltByteCount          = 17
	DefaultDerivedKeyCacheEntries = 512
)

// Config is the fully resolved runtime configuration.
type Config struct {
	// ListenAddress is the host:port the API server binds.
	ListenAddress string

	// DatabasePath is the SQLite database file ("::memory:" style paths work).
	DatabasePath string

	// RedisURL is used for the deferred queue and distributed leases.
	RedisURL string

	// CallbackBaseURL is the public base used to build OAuth redirect URIs,
	// e.g. "https://addons.example.org".
	CallbackBaseURL string

	// OSFBaseURL is the parent platform's API base, used for reference checks.
	OSFBaseURL string

	// EncryptSecret is the current secret for credentials encryption.
	EncryptSecret string

	// EncryptSecretPriors are previous secrets still accepted on decrypt,
	// comma-separated in the environment, newest first.
	EncryptSecretPriors []string

	// HMACSharedKeys maps key IDs to shared secrets for the Waterbutler
	// compatibility surface, "id:secret" pairs comma-separated.
	HMACSharedKeys map[string]string

	ScryptCostLog2         int
	ScryptBlockSize        int
	ScryptParallelization  int
	SaltByteCount          int
	DerivedKeyCacheEntries int

	// HTTPTimeout bounds each outbound provider request.
	HTTPTimeout time.Duration

	// InvocationTimeout is the wall-clock deadline for one invocation.
	InvocationTimeout time.Duration

	// RefreshWait bounds how long a caller waits on another worker's
	// in-flight token refresh.
	RefreshWait time.Duration
}

// Load resolves configuration from the environment (and an optional file
// named by GRAVYVALET_CONFIG).
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GRAVYVALET")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen_address", DefaultListenAddress)
	v.SetDefault("database_path", DefaultDatabasePath)
	v.SetDefault("redis_url", DefaultRedisURL)
	v.SetDefault("http_timeout", DefaultHTTPTimeout)
	v.SetDefault("invocation_timeout", DefaultInvocationTimeout)
	v.SetDefault("refresh_wait", DefaultRefreshWait)
	v.SetDefault("scrypt_cost_log2", DefaultScryptCostLog2)
	v.SetDefault("scrypt_block_size", DefaultScryptBlockSize)
	v.SetDefault("scrypt_parallelization", DefaultScryptParallelization)
	v.SetDefault("salt_byte_count", DefaultSaltByteCount)
	v.SetDefault("derived_key_cache_entries", DefaultDerivedKeyCacheEntries)

	if cfgFile := v.GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", cfgFile, err)
		}
	}

	cfg := &Config{
		ListenAddress:          v.GetString("listen_address"),
		DatabasePath:           v.GetString("database_path"),
		RedisURL:               v.GetString("redis_url"),
		CallbackBaseURL:        strings.TrimRight(v.GetString("callback_base_url"), "/"),
		OSFBaseURL:             strings.TrimRight(v.GetString("osf_base_url"), "/"),
		EncryptSecret:          v.GetString("encrypt_secret"),
		EncryptSecretPriors:    splitNonEmpty(v.GetString("encrypt_secret_priors")),
		HMACSharedKeys:         parseKeyPairs(v.GetString("hmac_shared_keys")),
		ScryptCostLog2:         v.GetInt("scrypt_cost_log2"),
		ScryptBlockSize:        v.GetInt("scrypt_block_size"),
		ScryptParallelization:  v.GetInt("scrypt_parallelization"),
		SaltByteCount:          v.GetInt("salt_byte_count"),
		DerivedKeyCacheEntries: v.GetInt("derived_key_cache_entries"),
		HTTPTimeout:            v.GetDuration("http_timeout"),
		InvocationTimeout:      v.GetDuration("invocation_timeout"),
		RefreshWait:            v.GetDuration("refresh_wait"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	if c.EncryptSecret == "" {
		return fmt.Errorf("GRAVYVALET_ENCRYPT_SECRET must be set")
	}
	if c.ScryptCostLog2 < 14 {
		return fmt.Errorf("scrypt cost 2^%d below recommended minimum 2^14", c.ScryptCostLog2)
	}
	if c.ScryptBlockSize < 2 {
		return fmt.Errorf("scrypt block size %d below recommended minimum 2", c.ScryptBlockSize)
	}
	if c.SaltByteCount < 16 {
		return fmt.Errorf("salt byte count %d below recommended minimum 16", c.SaltByteCount)
	}
	return nil
}

func splitNonEmpty(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseKeyPairs parses "id:secret,id2:secret2" into a map. Malformed pairs
// are skipped rather than failing startup.
func parseKeyPairs(raw string) map[string]string {
	pairs := make(map[string]string)
	for _, part := range splitNonEmpty(raw) {
		id, secret, ok := strings.Cut(part, ":")
		if !ok || id == "" || secret == "" {
			continue
		}
		pairs[id] = secret
	}
	return pairs
}
