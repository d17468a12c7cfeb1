// Package portalloc allocates the three consecutive UDP ports (audio,
// control, timing) each session needs, per spec.md 4.M: starting above a
// configurable base, retrying the next triple on collision up to 16
// attempts.
package portalloc

import (
	"net"

	"github.com/bluenviron/airplay2/internal/liberrors"
)

// MaxAttempts is the number of port triples tried before giving up, per
// spec.md 4.M.
const MaxAttempts = 16

// Triple is three bound UDP sockets on consecutive ports.
type Triple struct {
	Audio   *net.UDPConn
	Control *net.UDPConn
	Timing  *net.UDPConn
}

// Close closes all three sockets, ignoring individual errors so a
// partially-built Triple can always be torn down.
func (t *Triple) Close() {
	if t.Audio != nil {
		t.Audio.Close()
	}
	if t.Control != nil {
		t.Control.Close()
	}
	if t.Timing != nil {
		t.Timing.Close()
	}
}

// Ports returns the three port numbers in (audio, control, timing) order.
func (t *Triple) Ports() (audio, control, timing int) {
	return t.Audio.LocalAddr().(*net.UDPAddr).Port,
		t.Control.LocalAddr().(*net.UDPAddr).Port,
		t.Timing.LocalAddr().(*net.UDPAddr).Port
}

// Allocate binds three consecutive UDP ports starting at base on ip
// (empty string means all interfaces), trying base, base+3, base+6, ...
// up to MaxAttempts triples.
func Allocate(ip string, base int) (*Triple, error) {
	for attempt := 0; attempt < MaxAttempts; attempt++ {
		start := base + attempt*3
		t, err := tryBind(ip, start)
		if err == nil {
			return t, nil
		}
	}
	return nil, liberrors.ErrTransport{Op: "portalloc", Err: errExhausted{}}
}

func tryBind(ip string, start int) (*Triple, error) {
	t := &Triple{}
	var err error
	t.Audio, err = bind(ip, start)
	if err != nil {
		t.Close()
		return nil, err
	}
	t.Control, err = bind(ip, start+1)
	if err != nil {
		t.Close()
		return nil, err
	}
	t.Timing, err = bind(ip, start+2)
	if err != nil {
		t.Close()
		return nil, err
	}
	return t, nil
}

func bind(ip string, port int) (*net.UDPConn, error) {
	addr := &net.UDPAddr{IP: net.ParseIP(ip), Port: port}
	return net.ListenUDP("udp", addr)
}

type errExhausted struct{}

func (errExhausted) Error() string { return "exhausted all port-triple attempts" }
