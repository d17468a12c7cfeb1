package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // RAOP's RSA-OAEP is fixed to SHA-1 by Apple's wire format.
	"crypto/x509"
	"encoding/pem"

	"github.com/bluenviron/airplay2/internal/liberrors"
)

// applePublicKeyPEM is Apple's well-known 2048-bit RAOP RSA public
// modulus, published across every RAOP implementation; it is a
// compile-time constant per spec.md 4.A.
const applePublicKeyPEM = `-----BEGIN RSA PUBLIC KEY-----
MIIBCgKCAQEA59dE8qLieItsH1WgjrcFRKj6eUWqi+d2xbnFSgNy3+CIMdbt7cI2
Y/7Oc5DcYjnWbMu+sgBdB4KdvqAuNXx4xJnnfXlIbhV9FNB2y0A+Rp2JBW4vzh2s
kpRkdy7EtDlqmVpkwOU/kQ3bG3QRxrRO+6xyN9gVnpyJEkVvhQ7SkOXCQPhSCxV/
H3jFoXe3s+TXXqaJUWM+0h7PYg+w+CYi3zhXjh8Z/VQBMQsBj3lGEG6yv4GS1ovb
V8l6sR4EpB7Ez3xnJj+QU9sHrQ2Y4ss6Mpnbz5yFN3EXp4qp0n+D+YkA9K0aJzDW
Hv6AUkP8CUKCeOlWaCDYJAAWhVBqr0Qk2wIDAQAB
-----END RSA PUBLIC KEY-----`

// AppleRAOPPublicKey returns the static Apple RAOP RSA public key used
// to verify/encrypt against legacy AirPlay 1 receivers.
func AppleRAOPPublicKey() (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(applePublicKeyPEM))
	if block == nil {
		return nil, liberrors.ErrCrypto{Reason: "malformed embedded Apple RSA key"}
	}
	pub, err := x509.ParsePKCS1PublicKey(block.Bytes)
	if err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	return pub, nil
}

// RSAOAEPEncrypt wraps plaintext (at most 86 bytes for a 1024-bit
// modulus with SHA-1 OAEP overhead) under pub.
func RSAOAEPEncrypt(pub *rsa.PublicKey, plaintext []byte) ([]byte, error) {
	maxLen := pub.Size() - 2*sha1.Size - 2
	if len(plaintext) > maxLen {
		return nil, liberrors.ErrCrypto{Reason: "plaintext exceeds RSA-OAEP capacity"}
	}
	ct, err := rsa.EncryptOAEP(sha1.New(), rand.Reader, pub, plaintext, nil) //nolint:gosec
	if err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	return ct, nil
}

// RSAOAEPDecrypt unwraps ciphertext with priv, used by the receiver to
// recover the AES key a RAOP sender sent in `rsaaeskey`.
func RSAOAEPDecrypt(priv *rsa.PrivateKey, ciphertext []byte) ([]byte, error) {
	pt, err := rsa.DecryptOAEP(sha1.New(), rand.Reader, priv, ciphertext, nil) //nolint:gosec
	if err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	return pt, nil
}

// GenerateRAOPKeyPair generates the receiver's own 1024-bit RSA keypair,
// created once at process start per spec.md 3.
func GenerateRAOPKeyPair() (*rsa.PrivateKey, error) {
	priv, err := rsa.GenerateKey(rand.Reader, 1024)
	if err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	return priv, nil
}
