package crypto

import (
	"crypto/rand"

	"golang.org/x/crypto/curve25519"

	"github.com/bluenviron/airplay2/internal/liberrors"
)

// X25519KeyPair is an ephemeral Diffie-Hellman keypair used by Pair-Verify.
type X25519KeyPair struct {
	PublicKey [32]byte
	SecretKey [32]byte
}

// GenerateX25519KeyPair generates a new random ephemeral X25519 keypair.
func GenerateX25519KeyPair() (*X25519KeyPair, error) {
	var kp X25519KeyPair
	if _, err := rand.Read(kp.SecretKey[:]); err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	pub, err := curve25519.X25519(kp.SecretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	copy(kp.PublicKey[:], pub)
	return &kp, nil
}

// SharedSecret computes the X25519 shared secret with a peer's public key,
// constant-time as guaranteed by curve25519.X25519.
func (k *X25519KeyPair) SharedSecret(peerPublicKey []byte) ([]byte, error) {
	if len(peerPublicKey) != 32 {
		return nil, liberrors.ErrCrypto{Reason: "X25519 public key must be 32 bytes"}
	}
	shared, err := curve25519.X25519(k.SecretKey[:], peerPublicKey)
	if err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	return shared, nil
}
