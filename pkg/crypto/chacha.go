package crypto

import (
	"golang.org/x/crypto/chacha20poly1305"

	"github.com/bluenviron/airplay2/internal/liberrors"
)

// ChaCha20Poly1305 implements the AEAD used for Pair-Setup/Pair-Verify
// message bodies and for the encrypted framing channel (spec.md 4.A, 4.E).
// Key is 32 bytes, nonce is 12 bytes, AAD is optional; ciphertext is
// plaintext followed by a 16-byte tag.
type ChaCha20Poly1305 struct {
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	}
}

// NewChaCha20Poly1305 builds an AEAD from a 32-byte key.
func NewChaCha20Poly1305(key []byte) (*ChaCha20Poly1305, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, liberrors.ErrCrypto{Reason: "ChaCha20-Poly1305 key must be 32 bytes"}
	}
	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	return &ChaCha20Poly1305{aead: aead}, nil
}

// Seal encrypts plaintext, returning ciphertext||tag.
func (c *ChaCha20Poly1305) Seal(nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != chacha20poly1305.NonceSize {
		return nil, liberrors.ErrCrypto{Reason: "ChaCha20-Poly1305 nonce must be 12 bytes"}
	}
	return c.aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open verifies the tag and decrypts ciphertext||tag, returning
// ErrAuthenticationFailed on any tamper.
func (c *ChaCha20Poly1305) Open(nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != chacha20poly1305.NonceSize {
		return nil, liberrors.ErrCrypto{Reason: "ChaCha20-Poly1305 nonce must be 12 bytes"}
	}
	pt, err := c.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, liberrors.ErrAuthenticationFailed{Reason: "ChaCha20-Poly1305 tag mismatch"}
	}
	return pt, nil
}

// SequenceNonce builds the 12-byte nonce AirPlay 2 derives from a RTP
// sequence number: the sequence as a little-endian uint16 followed by
// ten zero bytes.
func SequenceNonce(sequence uint16) [12]byte {
	var nonce [12]byte
	nonce[0] = byte(sequence)
	nonce[1] = byte(sequence >> 8)
	return nonce
}

// CounterNonce builds the 12-byte nonce the encrypted framing channel
// derives from its monotone 64-bit send counter: little-endian, zero
// padded to 12 bytes (spec.md 4.E).
func CounterNonce(counter uint64) [12]byte {
	var nonce [12]byte
	for i := 0; i < 8; i++ {
		nonce[i] = byte(counter >> (8 * i))
	}
	return nonce
}
