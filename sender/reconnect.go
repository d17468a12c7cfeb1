package sender

import (
	"context"
	"errors"
	"time"

	"golang.org/x/time/rate"

	"github.com/bluenviron/airplay2/internal/liberrors"
)

// reconnectBackoff paces retry attempts at 200ms, 1s, 5s, 5s, ... rather
// than a hand-rolled sleep loop: each step is one token from a limiter
// whose rate is lowered as attempts accumulate.
type reconnectBackoff struct {
	limiters []*rate.Limiter
	attempt  int
}

func newReconnectBackoff() *reconnectBackoff {
	return &reconnectBackoff{
		limiters: []*rate.Limiter{
			rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
			rate.NewLimiter(rate.Every(1*time.Second), 1),
			rate.NewLimiter(rate.Every(5*time.Second), 1), // repeats for further attempts
		},
	}
}

func (b *reconnectBackoff) wait(ctx context.Context) error {
	idx := b.attempt
	if idx >= len(b.limiters) {
		idx = len(b.limiters) - 1
	}
	b.attempt++
	// Spend the limiter's initial burst token first, so Wait blocks for a
	// full interval instead of returning at once.
	b.limiters[idx].Allow()
	return b.limiters[idx].Wait(ctx)
}

// ConnectWithRetry calls Connect, retrying on transport errors with the
// 200ms/1s/5s backoff named in spec.md 7 until ctx is cancelled or a
// non-transport error (pairing failure, protocol error) occurs, which is
// never retried.
func (s *Sender) ConnectWithRetry(ctx context.Context, addr string) error {
	backoff := newReconnectBackoff()
	for {
		err := s.Connect(ctx, addr)
		if err == nil {
			return nil
		}

		var transportErr liberrors.ErrTransport
		if !errors.As(err, &transportErr) {
			return err
		}

		if waitErr := backoff.wait(ctx); waitErr != nil {
			return err
		}
	}
}
