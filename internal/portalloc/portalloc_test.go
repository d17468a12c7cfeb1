package portalloc

import (
	"net"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateReturnsThreeConsecutivePorts(t *testing.T) {
	// Allocate binds the literal ports base, base+1, base+2, so start from
	// a port the OS just reported free rather than from 0.
	probe, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	base := probe.LocalAddr().(*net.UDPAddr).Port
	probe.Close()

	triple, err := Allocate("127.0.0.1", base)
	require.NoError(t, err)
	defer triple.Close()

	audio, control, timing := triple.Ports()
	require.Equal(t, audio+1, control)
	require.Equal(t, audio+2, timing)
}

func TestAllocateRetriesPastCollision(t *testing.T) {
	// Occupy a fixed base so the first attempt at that exact triple fails,
	// forcing Allocate onto its retry path.
	blocker, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	defer blocker.Close()
	base := blocker.LocalAddr().(*net.UDPAddr).Port

	triple, err := Allocate("127.0.0.1", base)
	require.NoError(t, err)
	defer triple.Close()

	audio, _, _ := triple.Ports()
	require.NotEqual(t, base, audio)
}
