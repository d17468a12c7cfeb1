package sender

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/airplay2/internal/liberrors"
	"github.com/bluenviron/airplay2/internal/portalloc"
	"github.com/bluenviron/airplay2/pkg/codec"
	airplaycrypto "github.com/bluenviron/airplay2/pkg/crypto"
	"github.com/bluenviron/airplay2/pkg/framing"
	"github.com/bluenviron/airplay2/pkg/pairing"
	airplayrtp "github.com/bluenviron/airplay2/pkg/rtp"
	"github.com/bluenviron/airplay2/pkg/rtsp"
	"github.com/bluenviron/airplay2/pkg/rtsp/statem"
	"github.com/bluenviron/airplay2/pkg/sdp"
)

// AudioSource is the external audio-source contract from spec.md 6: a
// capability set accepted by static duck-typing rather than a class
// hierarchy, per spec.md 9.
type AudioSource interface {
	Read(buf []byte) (int, error)
}

// Sender drives the connect sequence and sender media pipeline: resolve
// peer, TCP-connect, OPTIONS, pair, optional encrypted-channel upgrade,
// ANNOUNCE, SETUP, RECORD, spawn UDP writer tasks, stream, per spec.md
// 4.M.
type Sender struct {
	cfg       Config
	sessionID string

	conn    net.Conn
	cseq    uint32
	machine *statem.Machine

	dec *rtsp.Decoder

	// framingReader/framingWriter are non-nil once AirPlay-2 pairing has
	// upgraded the control channel, per spec.md 4.E.
	framingReader *framing.Reader
	framingWriter *framing.Writer

	ports       *portalloc.Triple
	remoteAudio *net.UDPAddr
	remoteCtrl  *net.UDPAddr
	remoteTime  *net.UDPAddr

	pipeline *Pipeline

	mu         sync.Mutex
	volume     float64
	pauseTs    uint32 // timestamp from which PAUSE should suppress emission
	paused     bool
	idleTimer  *time.Timer
	cancelFunc context.CancelFunc
	retxCh     chan retransmitRequest
	closeOnce  sync.Once
	done       chan struct{}
}

type retransmitRequest struct {
	firstSeq uint16
	count    int
}

// New builds an unconnected Sender from options, defaulting exactly as
// NewConfig does.
func New(opts ...Option) *Sender {
	return &Sender{
		cfg:       NewConfig(opts...),
		sessionID: uuid.NewString(),
		volume:    1.0,
		retxCh:    make(chan retransmitRequest, 16),
		done:      make(chan struct{}),
	}
}

// Connect drives the full connect sequence against addr ("host:port" of
// the receiver's RTSP control port).
func (s *Sender) Connect(ctx context.Context, addr string) error {
	conn, err := s.cfg.Dial("tcp", addr, s.cfg.DialTimeout)
	if err != nil {
		return liberrors.ErrTransport{Op: "dial", Err: err}
	}
	s.conn = conn
	s.machine = statem.New()
	s.dec = &rtsp.Decoder{}

	if err := s.doOptions(); err != nil {
		s.Close()
		return err
	}

	var pairResult *pairing.Result
	if s.cfg.Protocol == ProtocolAirPlay2 {
		pairResult, err = s.doPair()
		if err != nil {
			s.Close()
			return err
		}
		if err := s.upgradeFraming(pairResult); err != nil {
			s.Close()
			return err
		}
	} else {
		// RAOP has no pairing protocol, but spec.md 3's state machine
		// only reaches Streaming via Paired; record the trivial
		// transition so ANNOUNCE sees the state it expects.
		if err := s.machine.BeginPairSetup(); err != nil {
			s.Close()
			return err
		}
		if err := s.machine.CompletePairing(); err != nil {
			s.Close()
			return err
		}
	}

	aesKey, aesIV, err := s.doAnnounce()
	if err != nil {
		s.Close()
		return err
	}

	if err := s.doSetup(); err != nil {
		s.Close()
		return err
	}

	if err := s.buildPipeline(aesKey, aesIV, pairResult); err != nil {
		s.Close()
		return err
	}

	if err := s.doRecord(); err != nil {
		s.Close()
		return err
	}

	s.resetIdleTimer()
	return nil
}

func (s *Sender) nextCSeq() int {
	s.cseq++
	return int(s.cseq)
}

// roundTrip writes req and blocks for the matching response, per
// spec.md 4.F's CSeq correlation rule.
func (s *Sender) roundTrip(req *rtsp.Request) (*rtsp.Response, error) {
	cseq := s.nextCSeq()
	req.SetCSeq(cseq)

	if err := s.writeRequest(req); err != nil {
		return nil, err
	}
	s.resetIdleTimer()

	for {
		resp, err := s.readMessage()
		if err != nil {
			return nil, err
		}
		if resp == nil {
			continue
		}
		got, ok := resp.CSeq()
		if !ok || got != cseq {
			return nil, liberrors.ErrProtocol{Where: "rtsp", Err: fmt.Errorf("unmatched CSeq %d, want %d", got, cseq)}
		}
		return resp, nil
	}
}

func (s *Sender) writeRequest(req *rtsp.Request) error {
	wire := req.Marshal()
	if s.framingWriter != nil {
		return s.framingWriter.WriteFrame(wire)
	}
	_, err := s.conn.Write(wire)
	if err != nil {
		return liberrors.ErrTransport{Op: "rtsp write", Err: err}
	}
	return nil
}

// readMessage blocks until one full RTSP response has been decoded,
// reading from either the plain connection or the encrypted framing
// channel depending on whether pairing has upgraded it yet.
func (s *Sender) readMessage() (*rtsp.Response, error) {
	if s.framingReader != nil {
		plaintext, err := s.framingReader.ReadFrame()
		if err != nil {
			return nil, err
		}
		s.dec.Feed(plaintext)
	} else {
		buf := make([]byte, 4096)
		n, err := s.conn.Read(buf)
		if err != nil {
			return nil, liberrors.ErrTransport{Op: "rtsp read", Err: err}
		}
		s.dec.Feed(buf[:n])
	}

	msg, err := s.dec.Pop()
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return s.readMessage()
	}
	if msg.Kind != rtsp.KindResponse {
		return nil, liberrors.ErrProtocol{Where: "rtsp", Err: fmt.Errorf("expected response, got request")}
	}
	return msg.Response, nil
}

func (s *Sender) doOptions() error {
	req := &rtsp.Request{Method: rtsp.MethodOptions, URI: "*", Header: rtsp.Header{}}
	if _, err := s.roundTrip(req); err != nil {
		return err
	}
	return s.machine.HandleOptions()
}

// doPair drives whichever AirPlay-2 pairing path applies: a full
// Pair-Setup (SRP plus persisted Ed25519 identity) followed by
// Pair-Verify when a PIN is configured, or Transient pairing (SRP
// through M4, no persisted identity) when it isn't — spec.md 9 leaves
// it to the controller to know from the device's feature bitfield
// whether a password is required; this Sender resolves that ambiguity
// by treating an empty PIN as the Transient signal.
func (s *Sender) doPair() (*pairing.Result, error) {
	if s.cfg.PIN == "" {
		return s.doTransientPairing()
	}
	if err := s.doPairSetup(); err != nil {
		return nil, err
	}
	return s.doPairVerify()
}

func (s *Sender) doPairSetup() error {
	if err := s.machine.BeginPairSetup(); err != nil {
		return err
	}
	sc, err := pairing.NewSetupController(s.cfg.Identifier, s.cfg.Identity, s.cfg.PIN, s.cfg.Store)
	if err != nil {
		return err
	}

	m1, err := sc.M1()
	if err != nil {
		return err
	}
	body, err := s.pairingRoundTrip("/pair-setup", tlv8Encode(m1))
	if err != nil {
		return err
	}
	m2, err := tlv8Decode(body)
	if err != nil {
		return err
	}
	if err := s.machine.AdvancePairStep(2); err != nil {
		return err
	}

	m3, err := sc.HandleM2(m2)
	if err != nil {
		return err
	}
	body, err = s.pairingRoundTrip("/pair-setup", tlv8Encode(m3))
	if err != nil {
		return err
	}
	m4, err := tlv8Decode(body)
	if err != nil {
		return err
	}
	if err := s.machine.AdvancePairStep(4); err != nil {
		return err
	}

	m5, err := sc.HandleM4(m4)
	if err != nil {
		return err
	}
	body, err = s.pairingRoundTrip("/pair-setup", tlv8Encode(m5))
	if err != nil {
		return err
	}
	m6, err := tlv8Decode(body)
	if err != nil {
		return err
	}
	if err := s.machine.AdvancePairStep(6); err != nil {
		return err
	}

	if _, err := sc.HandleM6(m6); err != nil {
		return err
	}
	return s.machine.CompletePairing()
}

// doTransientPairing runs the same SRP exchange through M4 without a
// persisted identity, per pkg/pairing's TransientController.
func (s *Sender) doTransientPairing() (*pairing.Result, error) {
	if err := s.machine.BeginPairSetup(); err != nil {
		return nil, err
	}
	tc, err := pairing.NewTransientController(s.cfg.PIN)
	if err != nil {
		return nil, err
	}

	m1, err := tc.M1()
	if err != nil {
		return nil, err
	}
	body, err := s.pairingRoundTrip("/pair-setup", tlv8Encode(m1))
	if err != nil {
		return nil, err
	}
	m2, err := tlv8Decode(body)
	if err != nil {
		return nil, err
	}
	if err := s.machine.AdvancePairStep(2); err != nil {
		return nil, err
	}

	m3, err := tc.HandleM2(m2)
	if err != nil {
		return nil, err
	}
	body, err = s.pairingRoundTrip("/pair-setup", tlv8Encode(m3))
	if err != nil {
		return nil, err
	}
	m4, err := tlv8Decode(body)
	if err != nil {
		return nil, err
	}
	if err := s.machine.AdvancePairStep(4); err != nil {
		return nil, err
	}

	result, err := tc.HandleM4(m4)
	if err != nil {
		return nil, err
	}
	return result, s.machine.CompletePairing()
}

// doPairVerify drives Pair-Verify against an already-known device
// identity (persisted by a prior Pair-Setup).
func (s *Sender) doPairVerify() (*pairing.Result, error) {
	if err := s.machine.BeginPairVerify(); err != nil {
		return nil, err
	}
	vc, err := pairing.NewVerifyController(s.cfg.Identifier, s.cfg.Identity, s.cfg.Store)
	if err != nil {
		return nil, err
	}

	m1, err := vc.M1()
	if err != nil {
		return nil, err
	}
	body, err := s.pairingRoundTrip("/pair-verify", tlv8Encode(m1))
	if err != nil {
		return nil, err
	}
	m2, err := tlv8Decode(body)
	if err != nil {
		return nil, err
	}
	if err := s.machine.AdvancePairStep(2); err != nil {
		return nil, err
	}

	m3, err := vc.HandleM2(m2)
	if err != nil {
		return nil, err
	}
	body, err = s.pairingRoundTrip("/pair-verify", tlv8Encode(m3))
	if err != nil {
		return nil, err
	}
	m4, err := tlv8Decode(body)
	if err != nil {
		return nil, err
	}
	if err := s.machine.AdvancePairStep(4); err != nil {
		return nil, err
	}

	result, err := vc.HandleM4(m4)
	if err != nil {
		return nil, err
	}
	return result, s.machine.CompletePairing()
}

func (s *Sender) pairingRoundTrip(uri string, body []byte) ([]byte, error) {
	req := &rtsp.Request{Method: rtsp.MethodPost, URI: uri, Header: rtsp.Header{}, Body: body}
	req.Header.Set("Content-Type", "application/octet-stream")
	resp, err := s.roundTrip(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != rtsp.StatusOK {
		return nil, liberrors.ErrProtocol{Where: uri, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return resp.Body, nil
}

// upgradeFraming rekeys the control channel per spec.md 4.E, swapping
// plain reads/writes for the length-prefixed ChaCha20-Poly1305 framing.
func (s *Sender) upgradeFraming(result *pairing.Result) error {
	w, err := framing.NewWriter(s.conn, result.WriteKey[:])
	if err != nil {
		return err
	}
	r, err := framing.NewReader(s.conn, result.ReadKey[:])
	if err != nil {
		return err
	}
	s.framingWriter = w
	s.framingReader = r
	return nil
}

// doAnnounce builds and sends the ANNOUNCE SDP body. For RAOP it
// generates a random AES key/IV, RSA-OAEP-wraps the key under Apple's
// published modulus, and returns the raw key/IV for the pipeline's
// AES-CTR cipher. For AirPlay 2, encryption keys come from pairing
// instead and this returns (nil, nil).
func (s *Sender) doAnnounce() (aesKey, aesIV []byte, err error) {
	desc := sdp.Description{
		PayloadType:     codecPayloadType(s.cfg.CodecChoice),
		Codec:           codecSDPName(s.cfg.CodecChoice),
		SampleRate:      s.cfg.AudioFormat.SampleRate,
		Channels:        s.cfg.AudioFormat.Channels,
		BitDepth:        s.cfg.AudioFormat.BitDepth,
		FramesPerPacket: codec.FrameSamples,
	}

	if s.cfg.Protocol == ProtocolRAOP {
		aesKey = make([]byte, 16)
		aesIV = make([]byte, 16)
		if _, rerr := cryptoRandRead(aesKey); rerr != nil {
			return nil, nil, rerr
		}
		if _, rerr := cryptoRandRead(aesIV); rerr != nil {
			return nil, nil, rerr
		}
		pub, perr := airplaycrypto.AppleRAOPPublicKey()
		if perr != nil {
			return nil, nil, perr
		}
		wrapped, werr := airplaycrypto.RSAOAEPEncrypt(pub, aesKey)
		if werr != nil {
			return nil, nil, werr
		}
		desc.RSAAESKeyBase64 = base64NoPad(wrapped)
		desc.AESIVBase64 = base64Std(aesIV)
	}

	body, err := sdp.Build(desc, uint64(time.Now().UnixNano()), "0.0.0.0")
	if err != nil {
		return nil, nil, err
	}

	req := &rtsp.Request{Method: rtsp.MethodAnnounce, URI: "rtsp://session", Header: rtsp.Header{}, Body: body}
	req.Header.Set("Content-Type", "application/sdp")
	resp, err := s.roundTrip(req)
	if err != nil {
		return nil, nil, err
	}
	if resp.StatusCode != rtsp.StatusOK {
		return nil, nil, liberrors.ErrProtocol{Where: "ANNOUNCE", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return aesKey, aesIV, s.machine.HandleAnnounce()
}

// doSetup allocates the three local UDP ports, sends SETUP with a
// Transport header naming them, and parses the receiver's matching
// ports out of the response. Both protocol generations share this one
// round trip; the AirPlay-2 two-phase plist-bodied SETUP exchange is
// collapsed into it, a documented simplification (see DESIGN.md).
func (s *Sender) doSetup() error {
	ports, err := portalloc.Allocate("", s.cfg.PortBase)
	if err != nil {
		return err
	}
	s.ports = ports
	audioPort, ctrlPort, timePort := ports.Ports()

	req := &rtsp.Request{Method: rtsp.MethodSetup, URI: "rtsp://session", Header: rtsp.Header{}}
	req.Header.Set("Transport", fmt.Sprintf(
		"RTP/AVP/UDP;unicast;mode=record;control_port=%d;timing_port=%d;client_port=%d",
		ctrlPort, timePort, audioPort))

	resp, err := s.roundTrip(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != rtsp.StatusOK {
		return liberrors.ErrProtocol{Where: "SETUP", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	remoteAudioPort, remoteCtrlPort, remoteTimePort, err := parseTransportPorts(resp.Header.Get("Transport"))
	if err != nil {
		return err
	}
	host, _, _ := net.SplitHostPort(s.conn.RemoteAddr().String())
	s.remoteAudio = &net.UDPAddr{IP: net.ParseIP(host), Port: remoteAudioPort}
	s.remoteCtrl = &net.UDPAddr{IP: net.ParseIP(host), Port: remoteCtrlPort}
	s.remoteTime = &net.UDPAddr{IP: net.ParseIP(host), Port: remoteTimePort}

	if s.machine.State() == statem.StateSetupPhase1 {
		if err := s.machine.HandleSetupPhase1(); err != nil {
			return err
		}
	}
	return s.machine.HandleSetupPhase2()
}

// buildPipeline constructs the Pipeline with the right cipher and
// encoder for the negotiated protocol/codec.
func (s *Sender) buildPipeline(aesKey, aesIV []byte, pairResult *pairing.Result) error {
	enc, frameBytes, err := buildEncoder(s.cfg.CodecChoice, s.cfg.AudioFormat)
	if err != nil {
		return err
	}
	pcfg := PipelineConfig{
		SSRC:            randomSSRC(),
		PayloadType:     codecPayloadType(s.cfg.CodecChoice),
		FramesPerPacket: uint32(codec.FrameSamples),
		Encoder:         enc,
		RingSize:        s.cfg.RetransmitRingSize,
	}

	if s.cfg.Protocol == ProtocolRAOP {
		p, err := NewAESCTRPipeline(pcfg, aesKey, aesIV, frameBytes)
		if err != nil {
			return err
		}
		s.pipeline = p
		return nil
	}

	p, err := NewChaCha20Pipeline(pcfg, pairResult.WriteKey[:])
	if err != nil {
		return err
	}
	s.pipeline = p
	return nil
}

func (s *Sender) doRecord() error {
	req := &rtsp.Request{Method: rtsp.MethodRecord, URI: "rtsp://session", Header: rtsp.Header{}}
	req.Header.Set("RTP-Info", fmt.Sprintf("seq=%d;rtptime=%d", s.pipeline.Sequence(), s.pipeline.Timestamp()))
	resp, err := s.roundTrip(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != rtsp.StatusOK {
		return liberrors.ErrProtocol{Where: "RECORD", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return s.machine.HandleRecord()
}

// Play reads frames from source until EOF or ctx is cancelled, encoding
// and emitting one RTP packet per frame over the audio UDP socket, and
// serving retransmit requests arriving on the control socket, per
// spec.md 4.J and 5.
func (s *Sender) Play(ctx context.Context, source AudioSource) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancelFunc = cancel
	defer cancel()

	go s.controlReaderLoop(ctx)

	frameSamples := codec.FrameSamples * s.cfg.AudioFormat.Channels
	buf := make([]int16, frameSamples)
	raw := make([]byte, frameSamples*2)

	for {
		select {
		case <-ctx.Done():
			return nil
		case retx := <-s.retxCh:
			s.serveRetransmit(retx)
		default:
		}

		n, err := source.Read(raw)
		if n > 0 {
			decodeLE16(raw[:n], buf)
			if !s.suppressedByPause() {
				pkt, encErr := s.pipeline.EncodeFrame(buf)
				if encErr != nil {
					return encErr
				}
				if werr := s.writeAudioPacket(pkt); werr != nil {
					return werr
				}
				s.resetIdleTimer()
			}
		}
		if err != nil {
			return nil
		}
	}
}

func (s *Sender) suppressedByPause() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.paused {
		return false
	}
	return airplayrtp.TimestampDistance(s.pipeline.Timestamp(), s.pauseTs) >= 0
}

func (s *Sender) writeAudioPacket(pkt *airplayrtp.Packet) error {
	wire, err := pkt.Marshal()
	if err != nil {
		return liberrors.ErrProtocol{Where: "rtp marshal", Err: err}
	}
	_, err = s.ports.Audio.WriteToUDP(wire, s.remoteAudio)
	if err != nil {
		return liberrors.ErrTransport{Op: "audio write", Err: err}
	}
	return nil
}

// controlReaderLoop listens for retransmit requests (payload type 85)
// on the control socket and queues them for the Play loop to serve,
// keeping all ring access single-writer.
func (s *Sender) controlReaderLoop(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		s.ports.Control.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := s.ports.Control.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		var pkt airplayrtp.Packet
		if pkt.Unmarshal(buf[:n]) != nil {
			continue
		}
		if pkt.PayloadType != airplayrtp.PayloadTypeSyncRetx || len(pkt.Payload) < 4 {
			continue
		}
		firstSeq := uint16(pkt.Payload[0])<<8 | uint16(pkt.Payload[1])
		count := int(uint16(pkt.Payload[2])<<8 | uint16(pkt.Payload[3]))
		select {
		case s.retxCh <- retransmitRequest{firstSeq: firstSeq, count: count}:
		default:
		}
	}
}

func (s *Sender) serveRetransmit(req retransmitRequest) {
	entries := s.pipeline.HandleRetransmit(req.firstSeq, req.count)
	if s.cfg.Metrics != nil {
		s.cfg.Metrics.RetransmitRequests.WithLabelValues(s.sessionID, "sender").Inc()
	}
	for _, e := range entries {
		pkt := airplayrtp.New(s.pipeline.payloadType, false, e.Sequence, e.Timestamp, s.pipeline.ssrc, e.Payload)
		_ = s.writeAudioPacket(pkt)
	}
}

// SetRate sends the SET_PARAMETER "rate" body that transitions
// Playing<->Paused, per spec.md 8 scenario 4. rate=0 pauses (any packet
// at or past the pause anchor timestamp is suppressed by Play); rate=1
// resumes.
func (s *Sender) SetRate(rate int) error {
	body := fmt.Sprintf("rate: %d\r\n", rate)
	if err := s.setParameter("text/parameters", []byte(body)); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if rate == 0 {
		s.paused = true
		s.pauseTs = s.pipeline.Timestamp()
		return s.machine.HandlePause()
	}
	s.paused = false
	return s.machine.HandleRecord()
}

// SetVolume sends the SET_PARAMETER volume body for a linear [0,1]
// volume, per spec.md 8 scenario 5.
func (s *Sender) SetVolume(volume float64) error {
	s.mu.Lock()
	s.volume = volume
	s.mu.Unlock()
	return s.setParameter("text/parameters", []byte(VolumeParameterBody(volume)))
}

// Mute sends the literal mute SET_PARAMETER body.
func (s *Sender) Mute() error {
	return s.setParameter("text/parameters", []byte(MuteParameterBody()))
}

func (s *Sender) setParameter(contentType string, body []byte) error {
	req := &rtsp.Request{Method: rtsp.MethodSetParameter, URI: "rtsp://session", Header: rtsp.Header{}, Body: body}
	req.Header.Set("Content-Type", contentType)
	resp, err := s.roundTrip(req)
	if err != nil {
		return err
	}
	if resp.StatusCode != rtsp.StatusOK {
		return liberrors.ErrProtocol{Where: "SET_PARAMETER", Err: fmt.Errorf("status %d", resp.StatusCode)}
	}
	return nil
}

// Flush sends FLUSH with the given seq and rtptime as its RTP-Info.
func (s *Sender) Flush(seq uint16, rtptime uint32) error {
	req := &rtsp.Request{Method: rtsp.MethodFlush, URI: "rtsp://session", Header: rtsp.Header{}}
	req.Header.Set("RTP-Info", fmt.Sprintf("seq=%d;rtptime=%d", seq, rtptime))
	_, err := s.roundTrip(req)
	if err != nil {
		return err
	}
	return s.machine.HandleFlush()
}

// Teardown sends TEARDOWN and closes the session unconditionally.
func (s *Sender) Teardown() error {
	req := &rtsp.Request{Method: rtsp.MethodTeardown, URI: "rtsp://session", Header: rtsp.Header{}}
	_, err := s.roundTrip(req)
	s.machine.HandleTeardown()
	s.Close()
	return err
}

// Close cancels the Play loop, releases the UDP ports, and closes the
// control connection. Safe to call more than once.
func (s *Sender) Close() {
	s.closeOnce.Do(func() {
		if s.cancelFunc != nil {
			s.cancelFunc()
		}
		if s.idleTimer != nil {
			s.idleTimer.Stop()
		}
		if s.ports != nil {
			s.ports.Close()
		}
		if s.conn != nil {
			s.conn.Close()
		}
		close(s.done)
	})
}

// Done is closed once the session has torn down.
func (s *Sender) Done() <-chan struct{} { return s.done }

func (s *Sender) resetIdleTimer() {
	if s.idleTimer == nil {
		s.idleTimer = time.AfterFunc(s.cfg.IdleTimeout, func() {
			s.Close()
		})
		return
	}
	s.idleTimer.Reset(s.cfg.IdleTimeout)
}

func parseTransportPorts(transport string) (audio, control, timing int, err error) {
	for _, field := range strings.Split(transport, ";") {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			continue
		}
		n, perr := strconv.Atoi(kv[1])
		if perr != nil {
			continue
		}
		switch kv[0] {
		case "server_port", "port":
			audio = n
		case "control_port":
			control = n
		case "timing_port":
			timing = n
		}
	}
	if audio == 0 {
		return 0, 0, 0, liberrors.ErrProtocol{Where: "SETUP", Err: fmt.Errorf("Transport header missing server_port: %q", transport)}
	}
	return audio, control, timing, nil
}
