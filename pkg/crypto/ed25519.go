package crypto

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/bluenviron/airplay2/internal/liberrors"
)

// Ed25519KeyPair is a fixed-size signing keypair: a 32-byte seed-derived
// secret key and its 32-byte public key.
type Ed25519KeyPair struct {
	PublicKey ed25519.PublicKey
	SecretKey ed25519.PrivateKey
}

// GenerateEd25519KeyPair generates a new random Ed25519 keypair.
func GenerateEd25519KeyPair() (*Ed25519KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	return &Ed25519KeyPair{PublicKey: pub, SecretKey: priv}, nil
}

// Ed25519KeyPairFromSeed rebuilds a keypair from its 32-byte seed, the
// representation persisted by the pairing key store.
func Ed25519KeyPairFromSeed(seed []byte) (*Ed25519KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, liberrors.ErrCrypto{Reason: "Ed25519 seed must be 32 bytes"}
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &Ed25519KeyPair{PublicKey: priv.Public().(ed25519.PublicKey), SecretKey: priv}, nil
}

// Seed returns the 32-byte seed suitable for persistence.
func (k *Ed25519KeyPair) Seed() []byte {
	return k.SecretKey.Seed()
}

// Sign produces a 64-byte Ed25519 signature over message.
func (k *Ed25519KeyPair) Sign(message []byte) []byte {
	return ed25519.Sign(k.SecretKey, message)
}

// Ed25519Verify verifies a 64-byte signature against a 32-byte public
// key, returning ErrAuthenticationFailed{InvalidSignature} on any tamper.
func Ed25519Verify(publicKey, message, signature []byte) error {
	if len(publicKey) != ed25519.PublicKeySize {
		return liberrors.ErrCrypto{Reason: "Ed25519 public key must be 32 bytes"}
	}
	if len(signature) != ed25519.SignatureSize {
		return liberrors.ErrAuthenticationFailed{Reason: "invalid signature length"}
	}
	if !ed25519.Verify(publicKey, message, signature) {
		return liberrors.ErrAuthenticationFailed{Reason: "Ed25519 signature verification failed"}
	}
	return nil
}
