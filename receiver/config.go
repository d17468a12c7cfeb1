// Package receiver implements the accept half of the session orchestrator
// (spec.md 4.M) plus the receiver media pipeline (spec.md 4.K): accept a
// control connection, drive device-side pairing, parse ANNOUNCE, allocate
// UDP ports on SETUP, decrypt and decode incoming RTP into PCM delivered
// to a sink, honour PAUSE/FLUSH/TEARDOWN.
//
// Configuration follows the same functional-options idiom as the sender
// (sender/config.go), itself grounded on the teacher's (bluenviron/
// gortsplib) plain struct-with-defaults ServerConf.
package receiver

import (
	"crypto/rsa"
	"time"

	"github.com/rs/zerolog"

	"github.com/bluenviron/airplay2/internal/preempt"
	"github.com/bluenviron/airplay2/pkg/codec"
	airplaycrypto "github.com/bluenviron/airplay2/pkg/crypto"
	"github.com/bluenviron/airplay2/pkg/jitter"
	"github.com/bluenviron/airplay2/pkg/keystore"
	"github.com/bluenviron/airplay2/pkg/metrics"
)

// Config configures a Receiver. Build one with NewConfig and Option
// functions; zero-value fields left unset fall back to the defaults
// named in spec.md.
type Config struct {
	Identifier string
	Identity   *airplaycrypto.Ed25519KeyPair
	PIN        string
	Store      keystore.Store
	RAOPKey    *rsa.PrivateKey

	AudioFormat codec.Format

	// OutputFormat, if set, requests the pipeline convert decoded PCM to
	// a different sample rate/channel count before delivery to the sink
	// (spec.md 4.L), e.g. downmixing to mono for a constrained sink.
	OutputFormat *codec.Format

	MinJitterDepth    int
	TargetJitterDepth int
	MaxJitterDepth    int
	ConcealStrategy   jitter.ConcealStrategy
	ConcealFadeSteps  int
	TargetLatency     time.Duration

	IdleTimeout     time.Duration
	PortBase        int
	PreemptPolicy   preempt.Policy

	Metrics *metrics.Metrics
	Log     zerolog.Logger
}

// Option mutates a Config under construction.
type Option func(*Config)

// WithIdentity sets the device's identifier, long-term Ed25519 keypair,
// and pairing PIN.
func WithIdentity(identifier string, identity *airplaycrypto.Ed25519KeyPair, pin string) Option {
	return func(c *Config) {
		c.Identifier = identifier
		c.Identity = identity
		c.PIN = pin
	}
}

// WithStore overrides the default in-memory pairing key store.
func WithStore(s keystore.Store) Option { return func(c *Config) { c.Store = s } }

// WithRAOPKey overrides the RSA keypair a RAOP sender's ANNOUNCE AES key
// is unwrapped with. If omitted, New generates one.
func WithRAOPKey(key *rsa.PrivateKey) Option { return func(c *Config) { c.RAOPKey = key } }

// WithAudioFormat sets the PCM format the sink expects.
func WithAudioFormat(f codec.Format) Option { return func(c *Config) { c.AudioFormat = f } }

// WithOutputFormat requests the pipeline convert decoded PCM to f
// (sample rate and/or channel count) before delivery to the sink.
func WithOutputFormat(f codec.Format) Option { return func(c *Config) { c.OutputFormat = &f } }

// WithJitterDepths overrides the default {10, 50, 200} packet depths.
func WithJitterDepths(min, target, max int) Option {
	return func(c *Config) {
		c.MinJitterDepth = min
		c.TargetJitterDepth = target
		c.MaxJitterDepth = max
	}
}

// WithConcealment selects the packet-loss concealment strategy.
func WithConcealment(strategy jitter.ConcealStrategy, fadeSteps int) Option {
	return func(c *Config) {
		c.ConcealStrategy = strategy
		c.ConcealFadeSteps = fadeSteps
	}
}

// WithTargetLatency overrides the default 2s playback latency.
func WithTargetLatency(d time.Duration) Option { return func(c *Config) { c.TargetLatency = d } }

// WithIdleTimeout overrides the default 120s idle timeout.
func WithIdleTimeout(d time.Duration) Option { return func(c *Config) { c.IdleTimeout = d } }

// WithPortBase overrides the default UDP port base of 6000.
func WithPortBase(base int) Option { return func(c *Config) { c.PortBase = base } }

// WithPreemptPolicy selects what happens when a second session arrives
// while one is active.
func WithPreemptPolicy(p preempt.Policy) Option { return func(c *Config) { c.PreemptPolicy = p } }

// WithMetrics attaches a Prometheus instrument set; omit to disable
// instrumentation.
func WithMetrics(m *metrics.Metrics) Option { return func(c *Config) { c.Metrics = m } }

// WithLogger overrides the default disabled logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Config) { c.Log = l } }

// NewConfig builds a Config with spec.md's defaults applied, then runs
// opts over it.
func NewConfig(opts ...Option) Config {
	c := Config{
		Store:             keystore.NewMemoryStore(),
		AudioFormat:       codec.Format{SampleRate: 44100, Channels: 2, BitDepth: 16},
		MinJitterDepth:    jitter.DefaultMinDepth,
		TargetJitterDepth: jitter.DefaultTargetDepth,
		MaxJitterDepth:    jitter.DefaultMaxDepth,
		ConcealStrategy:   jitter.ConcealSilence,
		ConcealFadeSteps:  10,
		TargetLatency:     2 * time.Second,
		IdleTimeout:       120 * time.Second,
		PortBase:          6000,
		PreemptPolicy:     preempt.PolicyAllowPreempt,
		Log:               zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
