// Package sender implements the connect half of the session orchestrator
// (spec.md 4.M) plus the sender media pipeline (spec.md 4.J): resolve
// peer, TCP-connect, OPTIONS, pair, optional encrypted-channel upgrade,
// ANNOUNCE, SETUP, RECORD, spawn UDP writer tasks, stream.
//
// Configuration follows the teacher's (bluenviron/gortsplib) plain
// struct-with-defaults idiom (clientconf.go), set via functional options
// the way ClientConf's callers assign fields before Dial.
package sender

import (
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/bluenviron/airplay2/pkg/codec"
	airplaycrypto "github.com/bluenviron/airplay2/pkg/crypto"
	"github.com/bluenviron/airplay2/pkg/keystore"
	"github.com/bluenviron/airplay2/pkg/metrics"
)

// Protocol selects the wire dialect a Sender speaks.
type Protocol int

// Protocols spec.md 1 names.
const (
	ProtocolRAOP Protocol = iota
	ProtocolAirPlay2
)

// CodecChoice selects the wire codec a Sender encodes frames with.
type CodecChoice int

// Choices spec.md 4.J names.
const (
	CodecPCM CodecChoice = iota
	CodecALAC
	CodecAACLC
	CodecAACELD
)

// Config configures a Sender. Build one with NewConfig and Option
// functions; zero-value fields left unset fall back to the defaults
// named in spec.md.
type Config struct {
	Protocol    Protocol
	Identifier  string
	Identity    *airplaycrypto.Ed25519KeyPair
	PIN         string
	Store       keystore.Store
	AudioFormat codec.Format
	CodecChoice CodecChoice

	DialTimeout        time.Duration
	IdleTimeout        time.Duration
	RetransmitRingSize int
	PortBase           int

	Dial func(network, address string, timeout time.Duration) (net.Conn, error)

	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithProtocol selects RAOP or AirPlay 2.
func WithProtocol(p Protocol) Option { return func(c *Config) { c.Protocol = p } }

// WithIdentity sets the controller's identifier, long-term Ed25519
// keypair, and pairing PIN.
func WithIdentity(identifier string, identity *airplaycrypto.Ed25519KeyPair, pin string) Option {
	return func(c *Config) {
		c.Identifier = identifier
		c.Identity = identity
		c.PIN = pin
	}
}

// WithStore overrides the default in-memory pairing key store.
func WithStore(s keystore.Store) Option { return func(c *Config) { c.Store = s } }

// WithAudioFormat sets the negotiated PCM format read from the audio
// source.
func WithAudioFormat(f codec.Format) Option { return func(c *Config) { c.AudioFormat = f } }

// WithCodec selects the wire codec.
func WithCodec(choice CodecChoice) Option { return func(c *Config) { c.CodecChoice = choice } }

// WithIdleTimeout overrides the default 120s idle timeout.
func WithIdleTimeout(d time.Duration) Option { return func(c *Config) { c.IdleTimeout = d } }

// WithPortBase overrides the default UDP port base of 6000.
func WithPortBase(base int) Option { return func(c *Config) { c.PortBase = base } }

// WithMetrics attaches a Prometheus instrument set; omit to disable
// instrumentation.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Config) { c.Metrics = m } }

// WithLogger overrides the default disabled logger, the same
// silent-unless-told default the teacher uses for its optional Log hook.
func WithLogger(l zerolog.Logger) Option { return func(c *Config) { c.Log = l } }

// NewConfig builds a Config with spec.md's defaults applied, then runs
// opts over it.
func NewConfig(opts ...Option) Config {
	c := Config{
		DialTimeout:        10 * time.Second,
		IdleTimeout:        120 * time.Second,
		RetransmitRingSize: 128,
		PortBase:           6000,
		Store:              keystore.NewMemoryStore(),
		Dial:               net.DialTimeout,
		Log:                zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
