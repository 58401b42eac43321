package custody

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"

	"memeetf/internal/domain"
)

const keyScheme = "argon2id-aesgcm"

// Argon2Params controls the key-encryption KDF.
type Argon2Params struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	SaltLength  uint32
}

// DefaultArgon2Params returns the parameters used for new key files.
func DefaultArgon2Params() Argon2Params {
	return Argon2Params{
		Memory:      64 * 1024,
		Iterations:  3,
		Parallelism: 2,
		SaltLength:  16,
	}
}

// Encrypt seals secret under passphrase.
// Output: $argon2id-aesgcm$v=19$m=<mem>,t=<iter>,p=<par>$<salt>$<nonce|ciphertext>
func Encrypt(secret []byte, passphrase string, params Argon2Params) (string, error) {
	salt := make([]byte, params.SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}

	gcm, err := newGCM(passphrase, salt, params.Iterations, params.Memory, params.Parallelism)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, secret, nil)

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		keyScheme, argon2.Version, params.Memory, params.Iterations, params.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sealed),
	), nil
}

// Decrypt opens a value produced by Encrypt. All failures wrap domain.ErrKey.
func Decrypt(encoded, passphrase string) ([]byte, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[1] != keyScheme {
		return nil, fmt.Errorf("%w: invalid key format", domain.ErrKey)
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return nil, fmt.Errorf("%w: unsupported version %q", domain.ErrKey, parts[2])
	}

	var memory, iterations uint32
	var parallelism uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &iterations, &parallelism); err != nil {
		return nil, fmt.Errorf("%w: parse params: %v", domain.ErrKey, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return nil, fmt.Errorf("%w: decode salt: %v", domain.ErrKey, err)
	}
	sealed, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return nil, fmt.Errorf("%w: decode ciphertext: %v", domain.ErrKey, err)
	}

	gcm, err := newGCM(passphrase, salt, iterations, memory, parallelism)
	if err != nil {
		return nil, err
	}
	if len(sealed) < gcm.NonceSize() {
		return nil, fmt.Errorf("%w: ciphertext too short", domain.ErrKey)
	}

	nonce, ciphertext := sealed[:gcm.NonceSize()], sealed[gcm.NonceSize():]
	plain, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: wrong passphrase or corrupted key", domain.ErrKey)
	}
	return plain, nil
}

func newGCM(passphrase string, salt []byte, iterations, memory uint32, parallelism uint8) (cipher.AEAD, error) {
	key := argon2.IDKey([]byte(passphrase), salt, iterations, memory, parallelism, 32)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: aes: %v", domain.ErrKey, err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm: %v", domain.ErrKey, err)
	}
	return gcm, nil
}
