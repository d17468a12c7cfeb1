// Package statem implements the control-channel session state machine
// driving OPTIONS/pairing/ANNOUNCE/SETUP/RECORD/PAUSE/TEARDOWN, per
// spec.md 3 and 4.F. Invariant: only the terminal states Teardown and
// Error are reachable from every other state; the Pair-Setup and
// Pair-Verify sub-paths are linear on their step field and reject
// out-of-order or skipped steps.
package statem

import "github.com/bluenviron/airplay2/internal/liberrors"

// State is one of the control-channel session's lifecycle states.
type State int

// States named exactly as spec.md 3 lists them.
const (
	StateConnected State = iota
	StateInfoExchanged
	StatePairingSetup
	StatePairingVerify
	StatePaired
	StateSetupPhase1
	StateSetupPhase2
	StateStreaming
	StatePaused
	StateTeardown
	StateError
)

func (s State) String() string {
	switch s {
	case StateConnected:
		return "connected"
	case StateInfoExchanged:
		return "infoExchanged"
	case StatePairingSetup:
		return "pairingSetup"
	case StatePairingVerify:
		return "pairingVerify"
	case StatePaired:
		return "paired"
	case StateSetupPhase1:
		return "setupPhase1"
	case StateSetupPhase2:
		return "setupPhase2"
	case StateStreaming:
		return "streaming"
	case StatePaused:
		return "paused"
	case StateTeardown:
		return "teardown"
	case StateError:
		return "error"
	default:
		return "invalid"
	}
}

// Machine is a single session's control-channel state machine. Not
// safe for concurrent use; the orchestrator serializes access per
// session (spec.md 3: "single-writer reference to the active session").
type Machine struct {
	state    State
	pairStep int
}

// New returns a Machine in the initial Connected state.
func New() *Machine {
	return &Machine{state: StateConnected}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

func wrongState(op string, allowed []State, got State) error {
	return liberrors.ErrProtocol{Where: "rtsp/statem", Err: wrongStateError{op: op, allowed: allowed, got: got}}
}

type wrongStateError struct {
	op      string
	allowed []State
	got     State
}

func (e wrongStateError) Error() string {
	msg := e.op + ": invalid in state " + e.got.String() + ", expected one of"
	for _, s := range e.allowed {
		msg += " " + s.String()
	}
	return msg
}

func (m *Machine) checkState(op string, allowed ...State) error {
	for _, s := range allowed {
		if m.state == s {
			return nil
		}
	}
	return wrongState(op, allowed, m.state)
}

// HandleOptions processes an OPTIONS request. Valid from any non-terminal
// state; OPTIONS is a capability probe and never changes state by
// itself except advancing a freshly connected session past its first
// handshake.
func (m *Machine) HandleOptions() error {
	if err := m.checkState("OPTIONS", allStatesExceptTerminal()...); err != nil {
		return err
	}
	if m.state == StateConnected {
		m.state = StateInfoExchanged
	}
	return nil
}

// BeginPairSetup starts Pair-Setup from InfoExchanged. Subsequent steps
// must be submitted via AdvancePairStep(1..6) strictly in order.
func (m *Machine) BeginPairSetup() error {
	if err := m.checkState("pair-setup begin", StateInfoExchanged); err != nil {
		return err
	}
	m.state = StatePairingSetup
	m.pairStep = 0
	return nil
}

// BeginPairVerify starts Pair-Verify, either from Paired (after a
// Pair-Setup in this session) or directly from InfoExchanged; both
// states are accepted.
func (m *Machine) BeginPairVerify() error {
	if err := m.checkState("pair-verify begin", StateInfoExchanged, StatePaired); err != nil {
		return err
	}
	m.state = StatePairingVerify
	m.pairStep = 0
	return nil
}

// AdvancePairStep records receipt of the next message in whichever
// pairing sub-path is active. step must be exactly one greater than the
// last recorded step (the sub-path is linear, spec.md 3).
func (m *Machine) AdvancePairStep(step int) error {
	if m.state != StatePairingSetup && m.state != StatePairingVerify {
		return wrongState("pair step", []State{StatePairingSetup, StatePairingVerify}, m.state)
	}
	if step != m.pairStep+1 {
		return liberrors.ErrProtocol{Where: "rtsp/statem", Err: skippedStepError{want: m.pairStep + 1, got: step}}
	}
	m.pairStep = step
	return nil
}

type skippedStepError struct{ want, got int }

func (e skippedStepError) Error() string {
	return "pairing step out of order"
}

// CompletePairing finishes whichever pairing sub-path is active,
// transitioning to Paired.
func (m *Machine) CompletePairing() error {
	if err := m.checkState("pairing complete", StatePairingSetup, StatePairingVerify); err != nil {
		return err
	}
	m.state = StatePaired
	m.pairStep = 0
	return nil
}

// HandleAnnounce processes ANNOUNCE, requiring a completed pairing.
func (m *Machine) HandleAnnounce() error {
	if err := m.checkState("ANNOUNCE", StatePaired); err != nil {
		return err
	}
	m.state = StateSetupPhase1
	return nil
}

// HandleSetupPhase1 processes the first AirPlay-2 SETUP exchange
// (stream type/timing negotiation).
func (m *Machine) HandleSetupPhase1() error {
	if err := m.checkState("SETUP phase 1", StateSetupPhase1); err != nil {
		return err
	}
	m.state = StateSetupPhase2
	return nil
}

// HandleSetupPhase2 processes the second AirPlay-2 SETUP exchange
// (port allocation), or the legacy RAOP single-phase SETUP.
func (m *Machine) HandleSetupPhase2() error {
	if err := m.checkState("SETUP phase 2", StateSetupPhase2); err != nil {
		return err
	}
	return nil
}

// HandleRecord starts or resumes streaming.
func (m *Machine) HandleRecord() error {
	if err := m.checkState("RECORD", StateSetupPhase2, StatePaused); err != nil {
		return err
	}
	m.state = StateStreaming
	return nil
}

// HandlePause pauses an active stream.
func (m *Machine) HandlePause() error {
	if err := m.checkState("PAUSE", StateStreaming); err != nil {
		return err
	}
	m.state = StatePaused
	return nil
}

// HandleFlush resets jitter-buffer state without changing session state.
func (m *Machine) HandleFlush() error {
	return m.checkState("FLUSH", StateStreaming, StatePaused)
}

// HandleTeardown is valid from any non-terminal state and is always
// terminal.
func (m *Machine) HandleTeardown() error {
	if m.state == StateTeardown || m.state == StateError {
		return nil
	}
	m.state = StateTeardown
	return nil
}

// Fail transitions unconditionally to Error, the other terminal state.
func (m *Machine) Fail() {
	m.state = StateError
}

func allStatesExceptTerminal() []State {
	return []State{
		StateConnected, StateInfoExchanged, StatePairingSetup, StatePairingVerify,
		StatePaired, StateSetupPhase1, StateSetupPhase2, StateStreaming, StatePaused,
	}
}
