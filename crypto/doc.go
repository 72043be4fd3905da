// Package crypto provides the encryption envelope for cloudvault objects.
//
// A sealed buffer has the layout:
//   - ciphertext (same length as the plaintext)
//   - 16-byte authentication tag
//   - 12-byte random nonce (suffix, not prefix)
//
// Keys are SHA-256 digests of the passphrase. There is no salt and no
// iteration count, so the passphrase is the whole secret and equal
// passphrases always produce equal keys. Changing this would change the
// stored format.
//
// Ciphers:
//   - AES-256-GCM (default)
//   - ChaCha20-Poly1305 (golang.org/x/crypto)
//
// Memory safety:
//   - Derived keys are zeroed after every call
//   - Use ClearBytes() to zero passphrases read from a terminal
package crypto
