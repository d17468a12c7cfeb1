package crypto

import (
	"crypto/sha512"
	"io"

	"golang.org/x/crypto/hkdf"

	"github.com/bluenviron/airplay2/internal/liberrors"
)

// HKDFExpand derives length bytes of key material from ikm using
// HKDF-SHA-512 with the given salt and info strings, deterministic for
// a fixed (salt, ikm, info, length) tuple as required by spec.md 4.A.
func HKDFExpand(salt, ikm []byte, info string, length int) ([]byte, error) {
	r := hkdf.New(sha512.New, ikm, salt, []byte(info))
	out := make([]byte, length)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, liberrors.ErrCrypto{Reason: err.Error()}
	}
	return out, nil
}
