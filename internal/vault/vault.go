package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// Blob layout is hex(iv):hex(tag):hex(ciphertext). The IV is 16 bytes and
// regenerated per encryption, so equal plaintexts never produce equal blobs.
const (
	ivSize  = 16
	tagSize = 16
	keySize = 32

	scryptN = 1 << 15
	scryptR = 8
	scryptP = 1
)

var (
	ErrMalformedBlob        = errors.New("malformed credential blob")
	ErrAuthenticationFailed = errors.New("credential authentication failed")
)

// Vault encrypts and decrypts API credentials with a key derived from a
// passphrase and salt. Derivation is deliberately slow, so the derived key is
// computed once and reused; it is read-only after that and safe to share
// across goroutines.
type Vault struct {
	passphrase string
	salt       string

	once   sync.Once
	key    []byte
	keyErr error
}

func New(passphrase, salt string) (*Vault, error) {
	if strings.TrimSpace(passphrase) == "" {
		return nil, fmt.Errorf("vault passphrase is empty")
	}
	if strings.TrimSpace(salt) == "" {
		return nil, fmt.Errorf("vault salt is empty")
	}
	return &Vault{passphrase: passphrase, salt: salt}, nil
}

func (v *Vault) deriveKey() ([]byte, error) {
	v.once.Do(func() {
		v.key, v.keyErr = scrypt.Key([]byte(v.passphrase), []byte(v.salt), scryptN, scryptR, scryptP, keySize)
	})
	if v.keyErr != nil {
		return nil, fmt.Errorf("derive key: %w", v.keyErr)
	}
	return v.key, nil
}

func (v *Vault) aead() (cipher.AEAD, error) {
	key, err := v.deriveKey()
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return aead, nil
}

// Encrypt seals plaintext under a fresh random IV and returns the blob form.
func (v *Vault) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("plaintext is empty")
	}
	aead, err := v.aead()
	if err != nil {
		return "", err
	}

	iv := make([]byte, ivSize)
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate iv: %w", err)
	}

	sealed := aead.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		hex.EncodeToString(iv),
		hex.EncodeToString(tag),
		hex.EncodeToString(ciphertext),
	}, ":"), nil
}

// Decrypt opens a blob produced by Encrypt. A blob that does not split into
// exactly three non-empty hex segments fails with ErrMalformedBlob; a blob
// whose tag does not verify (tamper, or a different passphrase) fails with
// ErrAuthenticationFailed.
func (v *Vault) Decrypt(blob string) (string, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: expected 3 segments, got %d", ErrMalformedBlob, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			return "", fmt.Errorf("%w: empty segment", ErrMalformedBlob)
		}
	}

	iv, err := hex.DecodeString(parts[0])
	if err != nil {
		return "", fmt.Errorf("%w: decode iv: %v", ErrMalformedBlob, err)
	}
	if len(iv) != ivSize {
		return "", fmt.Errorf("%w: iv must be %d bytes, got %d", ErrMalformedBlob, ivSize, len(iv))
	}
	tag, err := hex.DecodeString(parts[1])
	if err != nil {
		return "", fmt.Errorf("%w: decode tag: %v", ErrMalformedBlob, err)
	}
	if len(tag) != tagSize {
		return "", fmt.Errorf("%w: tag must be %d bytes, got %d", ErrMalformedBlob, tagSize, len(tag))
	}
	ciphertext, err := hex.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: decode ciphertext: %v", ErrMalformedBlob, err)
	}

	aead, err := v.aead()
	if err != nil {
		return "", err
	}

	sealed := make([]byte, 0, len(ciphertext)+len(tag))
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	return string(plaintext), nil
}

// ReEncrypt decrypts a blob and seals it again under a fresh IV. Used when
// stored blobs need to be rewritten after a passphrase change performed by an
// external migration.
func (v *Vault) ReEncrypt(blob string) (string, error) {
	plain, err := v.Decrypt(blob)
	if err != nil {
		return "", err
	}
	return v.Encrypt(plain)
}
