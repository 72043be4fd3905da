package storage

import (
	"context"

	"github.com/illarion/cloudvault/crypto"
)

// Sealer is the encryption envelope used by the encrypted operations.
// crypto.Envelope implements it.
type Sealer interface {
	Seal(plaintext []byte, passphrase string) ([]byte, error)
	Open(sealed []byte, passphrase string) ([]byte, error)
}

// GetAndDecrypt fetches an object and opens it with the AES-256-GCM envelope
func GetAndDecrypt(ctx context.Context, s Storage, id, passphrase string) ([]byte, error) {
	return GetAndDecryptWith(ctx, s, crypto.Envelope{}, id, passphrase)
}

// EncryptAndUpdate seals data with the AES-256-GCM envelope and stores it
func EncryptAndUpdate(ctx context.Context, s Storage, id string, data []byte, passphrase string) error {
	return EncryptAndUpdateWith(ctx, s, crypto.Envelope{}, id, data, passphrase)
}

// GetAndDecryptWith is GetAndDecrypt with an explicit envelope
func GetAndDecryptWith(ctx context.Context, s Storage, env Sealer, id, passphrase string) ([]byte, error) {
	sealed, err := s.Get(ctx, id)
	if err != nil {
		return nil, &OpError{Op: "get_and_decrypt", Stage: StageGet, ID: id, Err: err}
	}

	plaintext, err := env.Open(sealed, passphrase)
	if err != nil {
		return nil, &OpError{Op: "get_and_decrypt", Stage: StageDecrypt, ID: id, Err: err}
	}
	return plaintext, nil
}

// EncryptAndUpdateWith is EncryptAndUpdate with an explicit envelope
func EncryptAndUpdateWith(ctx context.Context, s Storage, env Sealer, id string, data []byte, passphrase string) error {
	sealed, err := env.Seal(data, passphrase)
	if err != nil {
		return &OpError{Op: "encrypt_and_update", Stage: StageEncrypt, ID: id, Err: err}
	}

	if err := s.Update(ctx, id, sealed); err != nil {
		return &OpError{Op: "encrypt_and_update", Stage: StageUpdate, ID: id, Err: err}
	}
	return nil
}
