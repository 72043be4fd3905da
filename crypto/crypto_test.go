package crypto

import (
	"bytes"
	"errors"
	"testing"
)

func TestSealOpenRoundTrip(t *testing.T) {
	cases := map[string][]byte{
		"empty":  {},
		"short":  []byte("abc"),
		"text":   []byte("test file content"),
		"binary": {0x00, 0xff, 0x10, 0x00, 0x7f},
		"large":  bytes.Repeat([]byte("cloudvault"), 10000),
	}

	for _, c := range []Cipher{AES256GCM, ChaCha20Poly1305} {
		env, err := NewEnvelope(c)
		if err != nil {
			t.Fatalf("NewEnvelope(%s): %v", c, err)
		}
		for name, plaintext := range cases {
			sealed, err := env.Seal(plaintext, "key")
			if err != nil {
				t.Fatalf("%s/%s: seal failed: %v", c, name, err)
			}
			if len(sealed) != len(plaintext)+Overhead {
				t.Errorf("%s/%s: sealed length = %d, want %d", c, name, len(sealed), len(plaintext)+Overhead)
			}

			opened, err := env.Open(sealed, "key")
			if err != nil {
				t.Fatalf("%s/%s: open failed: %v", c, name, err)
			}
			if !bytes.Equal(opened, plaintext) {
				t.Errorf("%s/%s: round trip mismatch", c, name)
			}
		}
	}
}

func TestPackageLevelSealUsesAESGCM(t *testing.T) {
	sealed, err := Seal([]byte("secret"), "key")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	env, _ := NewEnvelope(AES256GCM)
	opened, err := env.Open(sealed, "key")
	if err != nil {
		t.Fatalf("AES envelope failed to open package-level seal: %v", err)
	}
	if string(opened) != "secret" {
		t.Errorf("opened = %q, want %q", opened, "secret")
	}

	chacha, _ := NewEnvelope(ChaCha20Poly1305)
	if _, err := chacha.Open(sealed, "key"); !errors.Is(err, ErrDecryption) {
		t.Errorf("chacha open of AES buffer: got %v, want ErrDecryption", err)
	}
}

func TestNonceIsSuffix(t *testing.T) {
	plaintext := []byte("suffix layout")
	sealed, err := Seal(plaintext, "key")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	// Moving the nonce to the front must break authentication
	nonce := sealed[len(sealed)-NonceSize:]
	swapped := append(append([]byte{}, nonce...), sealed[:len(sealed)-NonceSize]...)
	if _, err := Open(swapped, "key"); !errors.Is(err, ErrDecryption) {
		t.Errorf("prefix-nonce buffer opened: %v", err)
	}
}

func TestTamperDetection(t *testing.T) {
	sealed, err := Seal([]byte("integrity"), "key")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}

	for i := 0; i < len(sealed)*8; i++ {
		tampered := append([]byte(nil), sealed...)
		tampered[i/8] ^= 1 << (i % 8)

		if out, err := Open(tampered, "key"); err == nil {
			t.Fatalf("bit %d flipped: open succeeded with %q", i, out)
		} else if !errors.Is(err, ErrDecryption) {
			t.Fatalf("bit %d flipped: got %v, want ErrDecryption", i, err)
		}
	}
}

func TestWrongPassphrase(t *testing.T) {
	sealed, err := Seal([]byte("secret"), "k1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if _, err := Open(sealed, "k2"); !errors.Is(err, ErrDecryption) {
		t.Errorf("wrong passphrase: got %v, want ErrDecryption", err)
	}
}

func TestNonceUniqueness(t *testing.T) {
	a, err := Seal([]byte("same"), "key")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	b, err := Seal([]byte("same"), "key")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Equal(a, b) {
		t.Error("two seals of the same plaintext produced identical buffers")
	}
	if bytes.Equal(a[len(a)-NonceSize:], b[len(b)-NonceSize:]) {
		t.Error("two seals reused the same nonce")
	}
}

func TestOpenShortInput(t *testing.T) {
	for n := 0; n < Overhead; n++ {
		if _, err := Open(make([]byte, n), "key"); !errors.Is(err, ErrDecryption) {
			t.Errorf("len %d: got %v, want ErrDecryption", n, err)
		}
	}
}

func TestSplitNonceSaturates(t *testing.T) {
	ct, nonce := splitNonce([]byte("short"))
	if len(ct) != 0 {
		t.Errorf("ciphertext = %q, want empty", ct)
	}
	if string(nonce) != "short" {
		t.Errorf("nonce = %q, want %q", nonce, "short")
	}

	ct, nonce = splitNonce(make([]byte, 40))
	if len(ct) != 28 || len(nonce) != NonceSize {
		t.Errorf("split 40 bytes into %d/%d, want 28/%d", len(ct), len(nonce), NonceSize)
	}
}

func TestDeriveKeyDeterministic(t *testing.T) {
	k1 := DeriveKey("passphrase")
	k2 := DeriveKey("passphrase")
	if len(k1) != KeySize {
		t.Fatalf("key size = %d, want %d", len(k1), KeySize)
	}
	if !ConstantTimeCompare(k1, k2) {
		t.Error("same passphrase produced different keys")
	}
	if ConstantTimeCompare(k1, DeriveKey("other")) {
		t.Error("different passphrases produced the same key")
	}
}

func TestParseCipher(t *testing.T) {
	tests := []struct {
		name    string
		want    Cipher
		wantErr bool
	}{
		{"", AES256GCM, false},
		{"aes-gcm", AES256GCM, false},
		{"AES-256-GCM", AES256GCM, false},
		{"chacha20-poly1305", ChaCha20Poly1305, false},
		{"rot13", 0, true},
	}

	for _, tt := range tests {
		got, err := ParseCipher(tt.name)
		if tt.wantErr {
			if !errors.Is(err, ErrUnknownCipher) {
				t.Errorf("ParseCipher(%q): got %v, want ErrUnknownCipher", tt.name, err)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseCipher(%q) = %v, %v; want %v", tt.name, got, err, tt.want)
		}
	}

	if _, err := NewEnvelope(Cipher(42)); !errors.Is(err, ErrUnknownCipher) {
		t.Errorf("NewEnvelope(42): got %v, want ErrUnknownCipher", err)
	}
}

func TestClearBytes(t *testing.T) {
	b := []byte("sensitive")
	ClearBytes(b)
	for i, v := range b {
		if v != 0 {
			t.Fatalf("byte %d not cleared", i)
		}
	}
}
