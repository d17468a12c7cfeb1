package sender

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseTransportPortsAcceptsServerPort(t *testing.T) {
	audio, control, timing, err := parseTransportPorts(
		"RTP/AVP/UDP;unicast;mode=record;server_port=6000;control_port=6001;timing_port=6002")
	require.NoError(t, err)
	require.Equal(t, 6000, audio)
	require.Equal(t, 6001, control)
	require.Equal(t, 6002, timing)
}

func TestParseTransportPortsAcceptsBarePort(t *testing.T) {
	audio, control, timing, err := parseTransportPorts(
		"RTP/AVP/UDP;unicast;mode=record;port=7000;control_port=7001;timing_port=7002")
	require.NoError(t, err)
	require.Equal(t, 7000, audio)
	require.Equal(t, 7001, control)
	require.Equal(t, 7002, timing)
}

func TestParseTransportPortsRequiresAudioPort(t *testing.T) {
	_, _, _, err := parseTransportPorts("RTP/AVP/UDP;unicast;mode=record;control_port=6001")
	require.Error(t, err)
}

func TestNewAppliesConfigDefaults(t *testing.T) {
	s := New()
	require.Equal(t, ProtocolRAOP, s.cfg.Protocol)
	require.Equal(t, 6000, s.cfg.PortBase)
	require.Equal(t, 128, s.cfg.RetransmitRingSize)
	require.Equal(t, 1.0, s.volume)
	require.NotEmpty(t, s.sessionID)
	require.NotNil(t, s.done)
}

func TestNewWithOptionsOverridesDefaults(t *testing.T) {
	s := New(WithProtocol(ProtocolAirPlay2), WithPortBase(7000), WithIdentity("ctrl-1", nil, "1234"))
	require.Equal(t, ProtocolAirPlay2, s.cfg.Protocol)
	require.Equal(t, 7000, s.cfg.PortBase)
	require.Equal(t, "1234", s.cfg.PIN)
}

func TestPINOptionSetAndEmptyByDefault(t *testing.T) {
	withPIN := New(WithIdentity("ctrl-1", nil, "1234"))
	require.NotEmpty(t, withPIN.cfg.PIN, "sanity: PIN option applied")

	transient := New()
	require.Empty(t, transient.cfg.PIN, "empty PIN is the Transient-pairing signal doPair relies on")
}
