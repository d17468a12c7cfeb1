package framing

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriterReaderRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, 32)
	var buf bytes.Buffer

	w, err := NewWriter(&buf, key)
	require.NoError(t, err)
	r, err := NewReader(&buf, key)
	require.NoError(t, err)

	messages := [][]byte{
		[]byte("OPTIONS * RTSP/1.0"),
		[]byte("SETUP rtsp://x RTSP/1.0"),
		{},
	}
	for _, m := range messages {
		require.NoError(t, w.WriteFrame(m))
	}
	for _, want := range messages {
		got, err := r.ReadFrame()
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestSharedKeyProducesIdenticalCipherStream(t *testing.T) {
	key := bytes.Repeat([]byte{0x22}, 32)
	var buf1, buf2 bytes.Buffer
	w1, err := NewWriter(&buf1, key)
	require.NoError(t, err)
	w2, err := NewWriter(&buf2, key)
	require.NoError(t, err)

	require.NoError(t, w1.WriteFrame([]byte("same plaintext")))
	require.NoError(t, w2.WriteFrame([]byte("same plaintext")))
	require.Equal(t, buf1.Bytes(), buf2.Bytes())
}

func TestTamperedFrameFailsAuthentication(t *testing.T) {
	key := bytes.Repeat([]byte{0x33}, 32)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, key)
	require.NoError(t, err)
	require.NoError(t, w.WriteFrame([]byte("hello")))

	raw := buf.Bytes()
	raw[len(raw)-1] ^= 0xff

	r, err := NewReader(bytes.NewReader(raw), key)
	require.NoError(t, err)
	_, err = r.ReadFrame()
	require.Error(t, err)
}

func TestCountersNeverRepeat(t *testing.T) {
	key := bytes.Repeat([]byte{0x44}, 32)
	var buf bytes.Buffer
	w, err := NewWriter(&buf, key)
	require.NoError(t, err)

	require.NoError(t, w.WriteFrame([]byte("a")))
	c1 := w.counter
	require.NoError(t, w.WriteFrame([]byte("b")))
	c2 := w.counter
	require.Greater(t, c2, c1)
}
