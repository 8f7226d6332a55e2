package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/crypto/scrypt"
)

// derivedKeyByteCount is the AES-256 key size.
const derivedKeyByteCount = 32

// ErrDecryptFailed is returned when no configured secret authenticates the
// ciphertext.
var ErrDecryptFailed = errors.New("credentials decryption failed with every configured secret")

// KeyParameters records the scrypt inputs used to derive a blob's key.
// Stored alongside each encrypted blob so old blobs stay decryptable after
// parameter upgrades. See RFC 7914.
type KeyParameters struct {
	Salt            []byte `json:"salt"`
	CostLog2        int    `json:"cost_log2"`
	BlockSize       int    `json:"block_size"`
	Parallelization int    `json:"parallelization"`
}

// MemoryBudget computes the scrypt maxmem bound for these parameters.
func (p KeyParameters) MemoryBudget() int {
	return (1 << p.CostLog2) * p.BlockSize * 129
}

func (p KeyParameters) validate() error {
	if p.BlockSize < 2 {
		return fmt.Errorf("scrypt block size must be at least 2, got %d", p.BlockSize)
	}
	if p.CostLog2 < 1 || p.CostLog2 > 128*p.BlockSize/8 {
		return fmt.Errorf("scrypt cost 2^%d out of range for block size %d", p.CostLog2, p.BlockSize)
	}
	if p.Parallelization < 1 {
		return fmt.Errorf("scrypt parallelization must be positive, got %d", p.Parallelization)
	}
	return nil
}

// cacheKey uniquely identifies a parameter tuple for the derived-key cache.
func (p KeyParameters) cacheKey() string {
	return fmt.Sprintf("%s|%d|%d|%d",
		base64.RawStdEncoding.EncodeToString(p.Salt), p.CostLog2, p.BlockSize, p.Parallelization)
}

// matchesDefaults reports whether stored parameters line up with the
// encryptor's current defaults, salt length included.
func (p KeyParameters) matchesDefaults(defaults EncryptionDefaults) bool {
	return len(p.Salt) == defaults.SaltByteCount &&
		p.CostLog2 == defaults.CostLog2 &&
		p.BlockSize == defaults.BlockSize &&
		p.Parallelization == defaults.Parallelization
}

// EncryptionDefaults are the parameters applied to freshly encrypted blobs.
type EncryptionDefaults struct {
	CostLog2        int
	BlockSize       int
	Parallelization int
	SaltByteCount   int
	CacheEntries    int
}

// Encryptor performs authenticated at-rest encryption of credential blobs
// with a current secret and any number of prior secrets for rotation.
// Decryption tries each secret in order; encryption only ever uses the
// current one.
type Encryptor struct {
	secrets  [][]byte // current first
	defaults EncryptionDefaults

	// Deriving keys is expensive on purpose; cache them in local memory
	// only. Entries are immutable, so concurrent derivations racing on the
	// same parameters are safe (duplicates are discarded).
	derived *lru.Cache[string, []cipher.AEAD]
}

// NewEncryptor builds an encryptor from the current secret and prior
// secrets, newest first.
func NewEncryptor(current string, priors []string, defaults EncryptionDefaults) (*Encryptor, error) {
	if current == "" {
		return nil, errors.New("encryption secret must not be empty")
	}
	if defaults.CacheEntries <= 0 {
		defaults.CacheEntries = 512
	}
	cache, err := lru.New[string, []cipher.AEAD](defaults.CacheEntries)
	if err != nil {
		return nil, fmt.Errorf("building derived-key cache: %w", err)
	}

	secrets := make([][]byte, 0, 1+len(priors))
	secrets = append(secrets, []byte(current))
	for _, prior := range priors {
		secrets = append(secrets, []byte(prior))
	}
	return &Encryptor{secrets: secrets, defaults: defaults, derived: cache}, nil
}

// FreshParams returns new key parameters with a random salt and the current
// default costs.
func (e *Encryptor) FreshParams() (KeyParameters, error) {
	salt := make([]byte, e.defaults.SaltByteCount)
	if _, err := rand.Read(salt); err != nil {
		return KeyParameters{}, fmt.Errorf("generating salt: %w", err)
	}
	return KeyParameters{
		Salt:            salt,
		CostLog2:        e.defaults.CostLog2,
		BlockSize:       e.defaults.BlockSize,
		Parallelization: e.defaults.Parallelization,
	}, nil
}

// Encrypt seals plaintext with the current secret under params.
// Framing: 12-byte random nonce followed by the AES-256-GCM ciphertext.
func (e *Encryptor) Encrypt(plaintext []byte, params KeyParameters) ([]byte, error) {
	aeads, err := e.deriveAll(params)
	if err != nil {
		return nil, err
	}
	current := aeads[0]

	nonce := make([]byte, current.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}
	return current.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens ciphertext, trying the current secret then each prior.
func (e *Encryptor) Decrypt(ciphertext []byte, params KeyParameters) ([]byte, error) {
	aeads, err := e.deriveAll(params)
	if err != nil {
		return nil, err
	}
	for _, aead := range aeads {
		if len(ciphertext) < aead.NonceSize() {
			continue
		}
		nonce, sealed := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
		plaintext, openErr := aead.Open(nil, nonce, sealed, nil)
		if openErr == nil {
			return plaintext, nil
		}
	}
	return nil, ErrDecryptFailed
}

// Rotate re-encrypts a blob under the current secret. When the stored
// parameters still match the current defaults the blob is re-wrapped in
// place under the same parameters; otherwise it is re-encrypted under fresh
// defaults.
func (e *Encryptor) Rotate(ciphertext []byte, stored KeyParameters) ([]byte, KeyParameters, error) {
	plaintext, err := e.Decrypt(ciphertext, stored)
	if err != nil {
		return nil, KeyParameters{}, err
	}

	params := stored
	if !stored.matchesDefaults(e.defaults) {
		params, err = e.FreshParams()
		if err != nil {
			return nil, KeyParameters{}, err
		}
	}
	rewrapped, err := e.Encrypt(plaintext, params)
	if err != nil {
		return nil, KeyParameters{}, err
	}
	return rewrapped, params, nil
}

// deriveAll returns one AEAD per configured secret for the given parameters,
// current secret first, consulting the local cache.
func (e *Encryptor) deriveAll(params KeyParameters) ([]cipher.AEAD, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}
	key := params.cacheKey()
	if cached, ok := e.derived.Get(key); ok {
		return cached, nil
	}

	aeads := make([]cipher.AEAD, 0, len(e.secrets))
	for _, secret := range e.secrets {
		derived, err := scrypt.Key(secret, params.Salt,
			1<<params.CostLog2, params.BlockSize, params.Parallelization, derivedKeyByteCount)
		if err != nil {
			return nil, fmt.Errorf("deriving key: %w", err)
		}
		block, err := aes.NewCipher(derived)
		if err != nil {
			return nil, fmt.Errorf("building cipher: %w", err)
		}
		aead, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("building aead: %w", err)
		}
		aeads = append(aeads, aead)
	}
	e.derived.Add(key, aeads)
	return aeads, nil
}
