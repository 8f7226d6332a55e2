package credentials

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fast scrypt parameters for tests; production defaults are far costlier
func testDefaults() EncryptionDefaults {
	return EncryptionDefaults{
		CostLog2:        4,
		BlockSize:       2,
		Parallelization: 1,
		SaltByteCount:   16,
		CacheEntries:    8,
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	t.Parallel()

	encryptor, err := NewEncryptor("s1", nil, testDefaults())
	require.NoError(t, err)

	params, err := encryptor.FreshParams()
	require.NoError(t, err)
	require.Len(t, params.Salt, 16)

	plaintext := []byte(`{"access_token":"AT","refresh_token":"RT"}`)
	blob, err := encryptor.Encrypt(plaintext, params)
	require.NoError(t, err)
	assert.NotContains(t, string(blob), "AT")

	decrypted, err := encryptor.Decrypt(blob, params)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestDecryptWithPriorSecret(t *testing.T) {
	t.Parallel()

	old, err := NewEncryptor("S1", nil, testDefaults())
	require.NoError(t, err)
	params, err := old.FreshParams()
	require.NoError(t, err)

	blob, err := old.Encrypt([]byte(`{"token":"T"}`), params)
	require.NoError(t, err)

	// current secret rotated to S2, S1 kept as prior
	rotated, err := NewEncryptor("S2", []string{"S1"}, testDefaults())
	require.NoError(t, err)

	decrypted, err := rotated.Decrypt(blob, params)
	require.NoError(t, err)
	assert.Equal(t, `{"token":"T"}`, string(decrypted))
}

func TestDecryptFailsWithoutMatchingSecret(t *testing.T) {
	t.Parallel()

	old, err := NewEncryptor("S1", nil, testDefaults())
	require.NoError(t, err)
	params, err := old.FreshParams()
	require.NoError(t, err)
	blob, err := old.Encrypt([]byte("secret stuff"), params)
	require.NoError(t, err)

	stranger, err := NewEncryptor("S3", []string{"S2"}, testDefaults())
	require.NoError(t, err)

	_, err = stranger.Decrypt(blob, params)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestRotateRewrapsUnderCurrentSecret(t *testing.T) {
	t.Parallel()

	old, err := NewEncryptor("S1", nil, testDefaults())
	require.NoError(t, err)
	params, err := old.FreshParams()
	require.NoError(t, err)
	blob, err := old.Encrypt([]byte(`{"token":"T"}`), params)
	require.NoError(t, err)

	rotated, err := NewEncryptor("S2", []string{"S1"}, testDefaults())
	require.NoError(t, err)

	fresh, freshParams, err := rotated.Rotate(blob, params)
	require.NoError(t, err)
	// params were already current defaults: in-place re-wrap, same params
	assert.Equal(t, params, freshParams)

	// the re-wrapped blob must decrypt under S2 alone, S1 dropped
	s2Only, err := NewEncryptor("S2", nil, testDefaults())
	require.NoError(t, err)
	decrypted, err := s2Only.Decrypt(fresh, freshParams)
	require.NoError(t, err)
	assert.Equal(t, `{"token":"T"}`, string(decrypted))

	// and the old blob must not
	_, err = s2Only.Decrypt(blob, params)
	assert.ErrorIs(t, err, ErrDecryptFailed)
}

func TestRotateUpgradesStaleParameters(t *testing.T) {
	t.Parallel()

	staleDefaults := testDefaults()
	staleDefaults.CostLog2 = 3
	old, err := NewEncryptor("S1", nil, staleDefaults)
	require.NoError(t, err)
	staleParams, err := old.FreshParams()
	require.NoError(t, err)
	blob, err := old.Encrypt([]byte("payload"), staleParams)
	require.NoError(t, err)

	current, err := NewEncryptor("S1", nil, testDefaults())
	require.NoError(t, err)

	fresh, freshParams, err := current.Rotate(blob, staleParams)
	require.NoError(t, err)
	assert.NotEqual(t, staleParams, freshParams)
	assert.Equal(t, testDefaults().CostLog2, freshParams.CostLog2)

	decrypted, err := current.Decrypt(fresh, freshParams)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(decrypted))
}

func TestKeyParameterValidation(t *testing.T) {
	t.Parallel()

	encryptor, err := NewEncryptor("s", nil, testDefaults())
	require.NoError(t, err)

	bad := KeyParameters{Salt: []byte("0123456789abcdef"), CostLog2: 4, BlockSize: 1, Parallelization: 1}
	_, err = encryptor.Encrypt([]byte("x"), bad)
	assert.ErrorContains(t, err, "block size")
}

func TestMemoryBudget(t *testing.T) {
	t.Parallel()

	params := KeyParameters{CostLog2: 17, BlockSize: 8}
	assert.Equal(t, (1<<17)*8*129, params.MemoryBudget())
}
