package rtsp

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/airplay2/internal/liberrors"
)

func TestRequestMarshalRoundTrip(t *testing.T) {
	req := &Request{
		Method: MethodOptions,
		URI:    "*",
		Header: Header{"CSeq": "1"},
	}
	var dec Decoder
	dec.Feed(req.Marshal())
	msg, err := dec.Pop()
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, KindRequest, msg.Kind)
	require.Equal(t, MethodOptions, msg.Request.Method)
	require.Equal(t, "*", msg.Request.URI)
	cseq, ok := msg.Request.CSeq()
	require.True(t, ok)
	require.Equal(t, 1, cseq)
}

func TestResponseWithBodyRoundTrip(t *testing.T) {
	resp := &Response{
		StatusCode: StatusOK,
		Header:     Header{"CSeq": "2"},
		Body:       []byte("v=0\r\no=- 0 0 IN IP4 127.0.0.1\r\n"),
	}
	var dec Decoder
	dec.Feed(resp.Marshal())
	msg, err := dec.Pop()
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, KindResponse, msg.Kind)
	require.Equal(t, StatusOK, msg.Response.StatusCode)
	require.Equal(t, resp.Body, msg.Response.Body)
}

func TestDecoderReturnsNilWhileIncomplete(t *testing.T) {
	var dec Decoder
	dec.Feed([]byte("OPTIONS * RTSP/1.0\r\nCSeq: 1\r\n"))
	msg, err := dec.Pop()
	require.NoError(t, err)
	require.Nil(t, msg)

	dec.Feed([]byte("\r\n"))
	msg, err = dec.Pop()
	require.NoError(t, err)
	require.NotNil(t, msg)
}

func TestDecoderWaitsForFullBody(t *testing.T) {
	var dec Decoder
	dec.Feed([]byte("ANNOUNCE rtsp://x RTSP/1.0\r\nCSeq: 1\r\nContent-Length: 10\r\n\r\n12345"))
	msg, err := dec.Pop()
	require.NoError(t, err)
	require.Nil(t, msg)

	dec.Feed([]byte("67890"))
	msg, err = dec.Pop()
	require.NoError(t, err)
	require.NotNil(t, msg)
	require.Equal(t, []byte("1234567890"), msg.Request.Body)
}

func TestDecoderRejectsFoldedHeaderLine(t *testing.T) {
	var dec Decoder
	dec.Feed([]byte("OPTIONS * RTSP/1.0\r\nCSeq: 1\r\n continuation\r\n\r\n"))
	_, err := dec.Pop()
	require.Error(t, err)
	require.IsType(t, liberrors.ErrProtocol{}, err)
}

func TestDecoderHandlesConsecutiveMessagesInOneFeed(t *testing.T) {
	var dec Decoder
	req1 := (&Request{Method: MethodOptions, URI: "*", Header: Header{"CSeq": "1"}}).Marshal()
	req2 := (&Request{Method: MethodTeardown, URI: "*", Header: Header{"CSeq": "2"}}).Marshal()
	dec.Feed(append(req1, req2...))

	msg1, err := dec.Pop()
	require.NoError(t, err)
	require.Equal(t, MethodOptions, msg1.Request.Method)

	msg2, err := dec.Pop()
	require.NoError(t, err)
	require.Equal(t, MethodTeardown, msg2.Request.Method)

	msg3, err := dec.Pop()
	require.NoError(t, err)
	require.Nil(t, msg3)
}

func TestHeaderKeysAreCaseInsensitiveLastWins(t *testing.T) {
	var dec Decoder
	dec.Feed([]byte("OPTIONS * RTSP/1.0\r\ncseq: 1\r\nCSeq: 2\r\n\r\n"))
	msg, err := dec.Pop()
	require.NoError(t, err)
	cseq, ok := msg.Request.CSeq()
	require.True(t, ok)
	require.Equal(t, 2, cseq)
}

func TestParseProgress(t *testing.T) {
	p, ok := ParseProgress("volume: 0.0\r\nprogress: 100/250/500\r\n")
	require.True(t, ok)
	require.InDelta(t, 100.0, p.Start, 0.0001)
	require.InDelta(t, 250.0, p.Current, 0.0001)
	require.InDelta(t, 500.0, p.End, 0.0001)
	require.InDelta(t, 0.5, p.Percentage(), 0.0001)
	require.InDelta(t, 250.0, p.Remaining(), 0.0001)
}

func TestParseProgressAbsent(t *testing.T) {
	_, ok := ParseProgress("volume: 0.0\r\n")
	require.False(t, ok)
}
