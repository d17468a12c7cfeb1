// Package crypto wraps the primitives the AirPlay wire protocols need:
// AES-CTR/GCM bulk encryption, ChaCha20-Poly1305 framing, Ed25519/X25519
// for pair-verify, HKDF-SHA-512 key derivation, the HomeKit variant of
// SRP-6a for pair-setup, and RSA-OAEP for legacy RAOP (no RSA PKCS#1
// v1.5 signing is provided).
//
// Every type here is stateless: AESCTR keeps no keystream position, the
// caller names the offset on each ProcessAt/Seek call, matching spec.md
// 4.A: two callers with identical (key, IV, offset) must produce
// identical keystreams.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"

	"github.com/bluenviron/airplay2/internal/liberrors"
)

// AESCTR implements 128-bit AES in CTR mode with a seekable keystream
// position, as used to encrypt RTP audio payloads in legacy RAOP.
type AESCTR struct {
	block cipher.Block
	iv    [aes.BlockSize]byte
}

// NewAESCTR builds an AESCTR cipher from a 16-byte key and 16-byte IV.
func NewAESCTR(key, iv []byte) (*AESCTR, error) {
	if len(key) != 16 {
		return nil, liberrors.ErrCrypto{Reason: "AES-128 key must be 16 bytes"}
	}
	if len(iv) != aes.BlockSize {
		return nil, liberrors.ErrCrypto{Reason: "AES IV must be 16 bytes"}
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	c := &AESCTR{block: block}
	copy(c.iv[:], iv)
	return c, nil
}

// Process encrypts or decrypts in place, always starting at keystream
// offset zero; use ProcessAt for any other offset.
func (c *AESCTR) Process(buf []byte) {
	stream := cipher.NewCTR(c.block, c.iv[:])
	stream.XORKeyStream(buf, buf)
}

// Seek returns a keystream positioned at the given byte offset from the
// start of the IV, by adding offset/16 to the big-endian IV counter and
// discarding offset%16 bytes of keystream. It does not change c.
func (c *AESCTR) Seek(offsetBytes int64) cipher.Stream {
	ivCopy := c.iv
	blocks := offsetBytes / aes.BlockSize
	remainder := int(offsetBytes % aes.BlockSize)
	addToCounter(&ivCopy, blocks)
	stream := cipher.NewCTR(c.block, ivCopy[:])
	if remainder > 0 {
		discard := make([]byte, remainder)
		stream.XORKeyStream(discard, discard)
	}
	return stream
}

// ProcessAt encrypts or decrypts buf in place with the keystream that
// would be produced starting at offsetBytes into the IV-defined stream.
func (c *AESCTR) ProcessAt(offsetBytes int64, buf []byte) {
	stream := c.Seek(offsetBytes)
	stream.XORKeyStream(buf, buf)
}

// addToCounter adds n to the big-endian 128-bit counter held in iv,
// matching the convention AES-CTR uses to advance its keystream by
// whole blocks.
func addToCounter(iv *[aes.BlockSize]byte, n int64) {
	carry := n
	for i := len(iv) - 1; i >= 0 && carry != 0; i-- {
		sum := int64(iv[i]) + carry
		iv[i] = byte(sum & 0xff)
		carry = sum >> 8
	}
}

// AESGCM implements 128-bit AES-GCM with a 12-byte nonce and a tag
// appended to the ciphertext, matching spec.md 4.A.
type AESGCM struct {
	aead cipher.AEAD
}

// NewAESGCM builds an AESGCM cipher from a 16-byte key.
func NewAESGCM(key []byte) (*AESGCM, error) {
	if len(key) != 16 {
		return nil, liberrors.ErrCrypto{Reason: "AES-128 key must be 16 bytes"}
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	return &AESGCM{aead: aead}, nil
}

// Seal encrypts plaintext and appends the authentication tag.
func (c *AESGCM) Seal(nonce, plaintext, aad []byte) ([]byte, error) {
	if len(nonce) != 12 {
		return nil, liberrors.ErrCrypto{Reason: "AES-GCM nonce must be 12 bytes"}
	}
	return c.aead.Seal(nil, nonce, plaintext, aad), nil
}

// Open verifies the tag and decrypts ciphertext||tag.
func (c *AESGCM) Open(nonce, ciphertext, aad []byte) ([]byte, error) {
	if len(nonce) != 12 {
		return nil, liberrors.ErrCrypto{Reason: "AES-GCM nonce must be 12 bytes"}
	}
	pt, err := c.aead.Open(nil, nonce, ciphertext, aad)
	if err != nil {
		return nil, liberrors.ErrAuthenticationFailed{Reason: "AES-GCM tag mismatch"}
	}
	return pt, nil
}
