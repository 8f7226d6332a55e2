package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GRAVYVALET_ENCRYPT_SECRET", "current-secret")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultListenAddress, cfg.ListenAddress)
	assert.Equal(t, 30*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, 110*time.Second, cfg.InvocationTimeout)
	assert.Equal(t, 10*time.Second, cfg.RefreshWait)
	assert.Equal(t, 17, cfg.ScryptCostLog2)
	assert.Empty(t, cfg.EncryptSecretPriors)
}

func TestLoadPriorSecretsAndHMACKeys(t *testing.T) {
	t.Setenv("GRAVYVALET_ENCRYPT_SECRET", "s2")
	t.Setenv("GRAVYVALET_ENCRYPT_SECRET_PRIORS", "s1, s0,")
	t.Setenv("GRAVYVALET_HMAC_SHARED_KEYS", "waterbutler:wb-secret,osf:osf-secret,malformed")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, []string{"s1", "s0"}, cfg.EncryptSecretPriors)
	assert.Equal(t, map[string]string{
		"waterbutler": "wb-secret",
		"osf":         "osf-secret",
	}, cfg.HMACSharedKeys)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name          string
		mutate        func(*Config)
		errorContains string
	}{
		{
			name:          "missing secret",
			mutate:        func(c *Config) { c.EncryptSecret = "" },
			errorContains: "ENCRYPT_SECRET",
		},
		{
			name:          "weak scrypt cost",
			mutate:        func(c *Config) { c.ScryptCostLog2 = 10 },
			errorContains: "scrypt cost",
		},
		{
			name:          "weak block size",
			mutate:        func(c *Config) { c.ScryptBlockSize = 1 },
			errorContains: "block size",
		},
		{
			name:          "short salt",
			mutate:        func(c *Config) { c.SaltByteCount = 8 },
			errorContains: "salt",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := &Config{
				EncryptSecret:   "secret",
				ScryptCostLog2:  DefaultScryptCostLog2,
				ScryptBlockSize: DefaultScryptBlockSize,
				SaltByteCount:   DefaultSaltByteCount,
			}
			tc.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.errorContains)
		})
	}
}
