package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	KeySize   = 32 // 256-bit key
	NonceSize = 12 // AEAD nonce size, stored as a suffix
	TagSize   = 16 // AEAD authentication tag size
	Overhead  = TagSize + NonceSize
)

var (
	ErrEncryption    = errors.New("encryption failed")
	ErrDecryption    = errors.New("decryption failed")
	ErrUnknownCipher = errors.New("unknown cipher")
)

// Cipher selects the AEAD construction used by an Envelope
type Cipher int

const (
	AES256GCM Cipher = iota
	ChaCha20Poly1305
)

// String returns the cipher name accepted by ParseCipher
func (c Cipher) String() string {
	switch c {
	case AES256GCM:
		return "aes-gcm"
	case ChaCha20Poly1305:
		return "chacha20-poly1305"
	default:
		return fmt.Sprintf("cipher(%d)", int(c))
	}
}

// ParseCipher maps a cipher name to a Cipher
func ParseCipher(name string) (Cipher, error) {
	switch strings.ToLower(name) {
	case "", "aes-gcm", "aes-256-gcm":
		return AES256GCM, nil
	case "chacha20-poly1305", "chacha20poly1305":
		return ChaCha20Poly1305, nil
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnknownCipher, name)
	}
}

// Envelope seals and opens buffers under a passphrase.
// The zero value uses AES-256-GCM.
type Envelope struct {
	cipher Cipher
}

// NewEnvelope creates an envelope for the given cipher
func NewEnvelope(c Cipher) (Envelope, error) {
	switch c {
	case AES256GCM, ChaCha20Poly1305:
		return Envelope{cipher: c}, nil
	default:
		return Envelope{}, fmt.Errorf("%w: %s", ErrUnknownCipher, c)
	}
}

// Cipher returns the AEAD construction of the envelope
func (e Envelope) Cipher() Cipher {
	return e.cipher
}

// Seal encrypts plaintext and returns ciphertext || tag || nonce
func (e Envelope) Seal(plaintext []byte, passphrase string) ([]byte, error) {
	key := DeriveKey(passphrase)
	defer ClearBytes(key)

	aead, err := e.aead(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncryption, err)
	}

	nonce := make([]byte, NonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("%w: failed to generate nonce: %v", ErrEncryption, err)
	}

	// Seal appends to the first argument; leave room for the nonce suffix
	sealed := make([]byte, 0, len(plaintext)+Overhead)
	sealed = aead.Seal(sealed, nonce, plaintext, nil)
	sealed = append(sealed, nonce...)

	return sealed, nil
}

// Open splits the trailing nonce off sealed and decrypts the remainder
func (e Envelope) Open(sealed []byte, passphrase string) ([]byte, error) {
	key := DeriveKey(passphrase)
	defer ClearBytes(key)

	aead, err := e.aead(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryption, err)
	}

	ciphertext, nonce := splitNonce(sealed)
	if len(nonce) != NonceSize {
		return nil, fmt.Errorf("%w: sealed buffer too short (%d bytes)", ErrDecryption, len(sealed))
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	if plaintext == nil {
		plaintext = []byte{}
	}

	return plaintext, nil
}

func (e Envelope) aead(key []byte) (cipher.AEAD, error) {
	switch e.cipher {
	case AES256GCM:
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create cipher: %w", err)
		}
		gcm, err := cipher.NewGCM(block)
		if err != nil {
			return nil, fmt.Errorf("failed to create GCM: %w", err)
		}
		return gcm, nil
	case ChaCha20Poly1305:
		aead, err := chacha20poly1305.New(key)
		if err != nil {
			return nil, fmt.Errorf("failed to create chacha20-poly1305: %w", err)
		}
		return aead, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownCipher, e.cipher)
	}
}

// splitNonce returns (ciphertext, nonce). Inputs shorter than NonceSize
// yield an empty ciphertext and the whole input as the nonce.
func splitNonce(sealed []byte) ([]byte, []byte) {
	at := len(sealed) - NonceSize
	if at < 0 {
		at = 0
	}
	return sealed[:at], sealed[at:]
}

// Seal encrypts plaintext with AES-256-GCM
func Seal(plaintext []byte, passphrase string) ([]byte, error) {
	return Envelope{}.Seal(plaintext, passphrase)
}

// Open decrypts a buffer produced by Seal
func Open(sealed []byte, passphrase string) ([]byte, error) {
	return Envelope{}.Open(sealed, passphrase)
}

// DeriveKey hashes the passphrase into a 256-bit key.
// The caller owns the returned slice.
func DeriveKey(passphrase string) []byte {
	sum := sha256.Sum256([]byte(passphrase))
	return sum[:]
}

// ClearBytes securely clears a byte slice
func ClearBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// ConstantTimeCompare performs a constant-time comparison of two byte slices
func ConstantTimeCompare(a, b []byte) bool {
	return subtle.ConstantTimeCompare(a, b) == 1
}
