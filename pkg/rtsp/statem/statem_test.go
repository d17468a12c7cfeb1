package statem

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFreshMachineStartsConnected(t *testing.T) {
	m := New()
	require.Equal(t, StateConnected, m.State())
}

func TestOptionsAdvancesFromConnectedOnce(t *testing.T) {
	m := New()
	require.NoError(t, m.HandleOptions())
	require.Equal(t, StateInfoExchanged, m.State())
	require.NoError(t, m.HandleOptions())
	require.Equal(t, StateInfoExchanged, m.State())
}

func TestPairSetupFullPathReachesPaired(t *testing.T) {
	m := New()
	require.NoError(t, m.HandleOptions())
	require.NoError(t, m.BeginPairSetup())
	require.Equal(t, StatePairingSetup, m.State())
	for step := 1; step <= 6; step++ {
		require.NoError(t, m.AdvancePairStep(step))
	}
	require.NoError(t, m.CompletePairing())
	require.Equal(t, StatePaired, m.State())
}

func TestPairSetupRejectsSkippedStep(t *testing.T) {
	m := New()
	require.NoError(t, m.HandleOptions())
	require.NoError(t, m.BeginPairSetup())
	require.NoError(t, m.AdvancePairStep(1))
	err := m.AdvancePairStep(3)
	require.Error(t, err)
}

func TestPairVerifyFromPairedThenStreaming(t *testing.T) {
	m := New()
	require.NoError(t, m.HandleOptions())
	require.NoError(t, m.BeginPairSetup())
	for step := 1; step <= 6; step++ {
		require.NoError(t, m.AdvancePairStep(step))
	}
	require.NoError(t, m.CompletePairing())

	require.NoError(t, m.BeginPairVerify())
	require.Equal(t, StatePairingVerify, m.State())
	for step := 1; step <= 4; step++ {
		require.NoError(t, m.AdvancePairStep(step))
	}
	require.NoError(t, m.CompletePairing())
	require.Equal(t, StatePaired, m.State())

	require.NoError(t, m.HandleAnnounce())
	require.Equal(t, StateSetupPhase1, m.State())
	require.NoError(t, m.HandleSetupPhase1())
	require.Equal(t, StateSetupPhase2, m.State())
	require.NoError(t, m.HandleSetupPhase2())
	require.NoError(t, m.HandleRecord())
	require.Equal(t, StateStreaming, m.State())
}

func TestStreamingPauseResumeAndFlush(t *testing.T) {
	m := New()
	require.NoError(t, m.HandleOptions())
	require.NoError(t, m.BeginPairVerify())
	for step := 1; step <= 4; step++ {
		require.NoError(t, m.AdvancePairStep(step))
	}
	require.NoError(t, m.CompletePairing())
	require.NoError(t, m.HandleAnnounce())
	require.NoError(t, m.HandleSetupPhase1())
	require.NoError(t, m.HandleSetupPhase2())
	require.NoError(t, m.HandleRecord())

	require.NoError(t, m.HandleFlush())
	require.NoError(t, m.HandlePause())
	require.Equal(t, StatePaused, m.State())
	require.NoError(t, m.HandleFlush())
	require.NoError(t, m.HandleRecord())
	require.Equal(t, StateStreaming, m.State())
}

func TestAnnounceRejectedBeforePairing(t *testing.T) {
	m := New()
	require.NoError(t, m.HandleOptions())
	err := m.HandleAnnounce()
	require.Error(t, err)
}

func TestTeardownReachableFromAnyNonTerminalState(t *testing.T) {
	for _, setup := range []func() *Machine{
		func() *Machine { return New() },
		func() *Machine {
			m := New()
			_ = m.HandleOptions()
			return m
		},
		func() *Machine {
			m := New()
			_ = m.HandleOptions()
			_ = m.BeginPairSetup()
			_ = m.AdvancePairStep(1)
			return m
		},
	} {
		m := setup()
		require.NoError(t, m.HandleTeardown())
		require.Equal(t, StateTeardown, m.State())
		require.NoError(t, m.HandleTeardown())
	}
}

func TestFailIsTerminalFromAnyState(t *testing.T) {
	m := New()
	require.NoError(t, m.HandleOptions())
	require.NoError(t, m.BeginPairSetup())
	m.Fail()
	require.Equal(t, StateError, m.State())
	err := m.HandleOptions()
	require.Error(t, err)
}
