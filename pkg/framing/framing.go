// Package framing implements the post-pair-verify encrypted control
// channel: length-prefixed ChaCha20-Poly1305 frames with AAD set to the
// two length bytes and nonces derived from a monotone, per-direction
// 64-bit counter, per spec.md 4.E.
package framing

import (
	"encoding/binary"
	"io"

	"github.com/bluenviron/airplay2/internal/liberrors"
	airplaycrypto "github.com/bluenviron/airplay2/pkg/crypto"
)

const maxFrameCiphertext = 1024 + 16 // generous ceiling; real frames are small control messages

// Writer frames and encrypts outgoing control messages.
type Writer struct {
	aead    *airplaycrypto.ChaCha20Poly1305
	counter uint64
	w       io.Writer
}

// NewWriter builds a Writer keyed by a 32-byte directional key.
func NewWriter(w io.Writer, key []byte) (*Writer, error) {
	aead, err := airplaycrypto.NewChaCha20Poly1305(key)
	if err != nil {
		return nil, err
	}
	return &Writer{aead: aead, w: w}, nil
}

// WriteFrame encrypts and writes one frame. Counters never roll back
// and no frame is ever retransmitted, per spec.md 4.E.
func (w *Writer) WriteFrame(plaintext []byte) error {
	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(len(plaintext)+16))

	nonce := airplaycrypto.CounterNonce(w.counter)
	ct, err := w.aead.Seal(nonce[:], plaintext, lenBuf[:])
	if err != nil {
		return err
	}
	w.counter++

	if _, err := w.w.Write(lenBuf[:]); err != nil {
		return liberrors.ErrTransport{Op: "framing write", Err: err}
	}
	if _, err := w.w.Write(ct); err != nil {
		return liberrors.ErrTransport{Op: "framing write", Err: err}
	}
	return nil
}

// Reader decrypts and reassembles incoming frames.
type Reader struct {
	aead    *airplaycrypto.ChaCha20Poly1305
	counter uint64
	r       io.Reader
}

// NewReader builds a Reader keyed by a 32-byte directional key.
func NewReader(r io.Reader, key []byte) (*Reader, error) {
	aead, err := airplaycrypto.NewChaCha20Poly1305(key)
	if err != nil {
		return nil, err
	}
	return &Reader{aead: aead, r: r}, nil
}

// ReadFrame reads, authenticates and decrypts one frame. Any tag failure
// is fatal: spec.md 4.E requires the channel be treated as closed after
// one, so the caller must not call ReadFrame again on this Reader.
func (r *Reader) ReadFrame() ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r.r, lenBuf[:]); err != nil {
		return nil, liberrors.ErrTransport{Op: "framing read", Err: err}
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])
	if n > maxFrameCiphertext {
		return nil, liberrors.ErrProtocol{Where: "framing", Err: errFrameTooLarge}
	}
	ct := make([]byte, n)
	if _, err := io.ReadFull(r.r, ct); err != nil {
		return nil, liberrors.ErrTransport{Op: "framing read", Err: err}
	}

	nonce := airplaycrypto.CounterNonce(r.counter)
	pt, err := r.aead.Open(nonce[:], ct, lenBuf[:])
	if err != nil {
		return nil, liberrors.ErrAuthenticationFailed{Reason: "encrypted framing tag mismatch"}
	}
	r.counter++
	return pt, nil
}

var errFrameTooLarge = frameError("frame exceeds maximum ciphertext length")

type frameError string

func (e frameError) Error() string { return string(e) }
