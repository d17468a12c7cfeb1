// Package preempt implements the orchestrator's at-most-one-active-session
// rule from spec.md 4.M: a new session either evicts the incumbent
// (AllowPreempt), is refused (Reject), or is rejected outright (Queue is
// forbidden for the media plane per spec.md 4.M and is not a valid Policy
// here).
package preempt

import (
	"sync"

	"github.com/bluenviron/airplay2/internal/liberrors"
)

// Policy selects what happens when a new session arrives while one is
// already active.
type Policy int

// Policies named in spec.md 4.M. Queue is deliberately absent: spec.md
// 4.M forbids it for the media plane.
const (
	PolicyAllowPreempt Policy = iota
	PolicyReject
)

// EndReason identifies why an active session ended.
type EndReason int

// Reasons a Guard reports via Ended.
const (
	EndReasonTeardown EndReason = iota
	EndReasonPreempted
	EndReasonIdleTimeout
	EndReasonError
)

func (r EndReason) String() string {
	switch r {
	case EndReasonTeardown:
		return "Teardown"
	case EndReasonPreempted:
		return "Preempted"
	case EndReasonIdleTimeout:
		return "IdleTimeout"
	case EndReasonError:
		return "Error"
	default:
		return "Unknown"
	}
}

// Ended is the single event delivered to subscribers when a session
// ends, regardless of cause.
type Ended struct {
	SessionID string
	Reason    EndReason
}

func (e Ended) Error() string { return "session ended: " + e.Reason.String() }

// Evictor is the incumbent session's eviction hook: cancel its tasks and
// release its resources. Called with the guard's lock held, so it must
// not block on anything the guard itself needs to make progress (socket
// closes are fine; it must not call back into Guard).
type Evictor func()

// Guard enforces a single active session under Policy, and publishes a
// SessionEnded-shaped event on every end, per spec.md 4.M/8.
type Guard struct {
	policy Policy

	mu         sync.Mutex
	active     string
	evict      Evictor
	subscriber func(Ended)
}

// New builds a Guard. onEnded (may be nil) receives every Ended event,
// including the one produced by eviction.
func New(policy Policy, onEnded func(Ended)) *Guard {
	return &Guard{policy: policy, subscriber: onEnded}
}

// Acquire admits sessionID as the active session. If one is already
// active: under AllowPreempt the incumbent's evictor runs synchronously
// and an Ended{Preempted} event is published before Acquire returns,
// satisfying the "within 50ms" testable property by never returning
// before eviction completes. Under Reject, Acquire returns ErrBusy and
// leaves the incumbent untouched.
func (g *Guard) Acquire(sessionID string, evict Evictor) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.active != "" {
		if g.policy == PolicyReject {
			return liberrors.ErrBusy{}
		}
		g.evictLocked(EndReasonPreempted)
	}

	g.active = sessionID
	g.evict = evict
	return nil
}

// Release ends the active session for the given reason, a no-op if
// sessionID is not the current incumbent (it already ended some other
// way).
func (g *Guard) Release(sessionID string, reason EndReason) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.active != sessionID {
		return
	}
	g.evictLocked(reason)
}

// evictLocked must be called with mu held. It calls the incumbent's
// Evictor (if any), clears the active slot, and publishes exactly one
// Ended event.
func (g *Guard) evictLocked(reason EndReason) {
	id := g.active
	evict := g.evict
	g.active = ""
	g.evict = nil
	if evict != nil {
		evict()
	}
	if g.subscriber != nil {
		g.subscriber(Ended{SessionID: id, Reason: reason})
	}
}

// Active returns the current incumbent session ID, or "" if none.
func (g *Guard) Active() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.active
}
