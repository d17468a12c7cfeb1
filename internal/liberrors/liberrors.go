// Package liberrors contains the typed errors returned throughout the module.
//
// Every fallible operation returns one of these, never a bare fmt.Errorf
// string, so that callers (and the orchestrator's cancellation logic) can
// switch on error kind instead of matching text.
package liberrors

import "fmt"

// ErrProtocol means a wire message was malformed: bad RTSP request line,
// truncated TLV8, invalid plist, corrupt RTP header, and so on.
// Fatal to the current session, never to the process.
type ErrProtocol struct {
	Where string
	Err   error
}

func (e ErrProtocol) Error() string {
	return fmt.Sprintf("protocol error in %s: %v", e.Where, e.Err)
}

func (e ErrProtocol) Unwrap() error { return e.Err }

// Fatal reports whether the error ends the session.
func (e ErrProtocol) Fatal() bool { return true }

// ErrAuthenticationFailed means pairing was rejected, an AEAD tag failed
// to verify, or a signature failed to verify. Fatal to the session. The
// key store entry for the peer is deliberately left untouched.
type ErrAuthenticationFailed struct {
	Reason string
}

func (e ErrAuthenticationFailed) Error() string {
	return "authentication failed: " + e.Reason
}

func (e ErrAuthenticationFailed) Fatal() bool { return true }

// ErrDevice wraps an error code the peer reported verbatim via a TLV8
// Error field.
type ErrDevice struct {
	Code int
}

func (e ErrDevice) Error() string {
	return fmt.Sprintf("device reported error %d", e.Code)
}

func (e ErrDevice) Fatal() bool { return true }

// ErrBusy is returned by the orchestrator when preemption policy is
// Reject and a session is already active.
type ErrBusy struct{}

func (e ErrBusy) Error() string { return "session already active" }

func (e ErrBusy) Fatal() bool { return false }

// ErrTransport wraps a socket or connect failure. The orchestrator retries
// these up to 3 times with exponential backoff before surfacing them.
type ErrTransport struct {
	Op  string
	Err error
}

func (e ErrTransport) Error() string {
	return fmt.Sprintf("transport error during %s: %v", e.Op, e.Err)
}

func (e ErrTransport) Unwrap() error { return e.Err }

func (e ErrTransport) Fatal() bool { return true }

// ErrFormat means an unsupported codec, sample rate, or bit depth was
// requested. Reported before streaming starts.
type ErrFormat struct {
	Reason string
}

func (e ErrFormat) Error() string { return "unsupported format: " + e.Reason }

func (e ErrFormat) Fatal() bool { return true }

// ErrTimedOut means an idle timeout or per-operation deadline elapsed.
type ErrTimedOut struct {
	Op string
}

func (e ErrTimedOut) Error() string { return "timed out: " + e.Op }

func (e ErrTimedOut) Fatal() bool { return true }

// ErrCrypto means a key had the wrong length, or the RNG failed. Always
// surfaced directly to the caller, never retried.
type ErrCrypto struct {
	Reason string
}

func (e ErrCrypto) Error() string { return "crypto error: " + e.Reason }

func (e ErrCrypto) Fatal() bool { return true }
