package sender

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/bluenviron/airplay2/internal/liberrors"
)

func TestErrTransportIsRetryable(t *testing.T) {
	var transportErr liberrors.ErrTransport
	require.True(t, errors.As(liberrors.ErrTransport{Op: "dial"}, &transportErr))
	require.False(t, errors.As(liberrors.ErrProtocol{Where: "OPTIONS"}, &transportErr))
}

func TestReconnectBackoffAdvancesThroughSteps(t *testing.T) {
	b := newReconnectBackoff()
	require.Equal(t, 0, b.attempt)
	ctx := context.Background()
	require.NoError(t, b.wait(ctx))
	require.Equal(t, 1, b.attempt)
	require.NoError(t, b.wait(ctx))
	require.Equal(t, 2, b.attempt)
}

func TestReconnectBackoffHonoursCancellation(t *testing.T) {
	b := newReconnectBackoff()
	b.attempt = 2 // land on the 5s step, well past the cancelled context below
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.Error(t, b.wait(ctx))
}
