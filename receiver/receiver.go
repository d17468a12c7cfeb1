package receiver

import (
	"context"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bluenviron/airplay2/internal/liberrors"
	"github.com/bluenviron/airplay2/internal/portalloc"
	"github.com/bluenviron/airplay2/internal/preempt"
	"github.com/bluenviron/airplay2/pkg/codec"
	airplaycrypto "github.com/bluenviron/airplay2/pkg/crypto"
	"github.com/bluenviron/airplay2/pkg/framing"
	"github.com/bluenviron/airplay2/pkg/jitter"
	"github.com/bluenviron/airplay2/pkg/pairing"
	airplayrtp "github.com/bluenviron/airplay2/pkg/rtp"
	"github.com/bluenviron/airplay2/pkg/rtsp"
	"github.com/bluenviron/airplay2/pkg/rtsp/statem"
	"github.com/bluenviron/airplay2/pkg/sdp"
	"github.com/bluenviron/airplay2/pkg/timing"
	"github.com/bluenviron/airplay2/pkg/tlv8"
)

// Server drives the accept half of the session orchestrator (spec.md
// 4.M): TCP-accept, the control state machine, device-side pairing,
// ANNOUNCE/SETUP negotiation, and spawning the receiver media
// pipeline's UDP tasks, one session per accepted connection with
// at-most-one active under cfg.PreemptPolicy.
type Server struct {
	cfg   Config
	guard *preempt.Guard
}

// NewServer builds a Server from options, generating a RAOP RSA keypair
// if WithRAOPKey wasn't supplied.
func NewServer(opts ...Option) (*Server, error) {
	cfg := NewConfig(opts...)
	if cfg.RAOPKey == nil {
		key, err := airplaycrypto.GenerateRAOPKeyPair()
		if err != nil {
			return nil, err
		}
		cfg.RAOPKey = key
	}
	return &Server{cfg: cfg, guard: preempt.New(cfg.PreemptPolicy, nil)}, nil
}

// Serve accepts connections on ln until ctx is cancelled, handling each
// on its own goroutine and delivering decoded PCM to sink.
func (s *Server) Serve(ctx context.Context, ln net.Listener, sink AudioSink) error {
	go func() {
		<-ctx.Done()
		ln.Close()
	}()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return liberrors.ErrTransport{Op: "accept", Err: err}
		}
		go s.handleConn(ctx, conn, sink)
	}
}

func (s *Server) handleConn(parentCtx context.Context, conn net.Conn, sink AudioSink) {
	sess := newSession(s.cfg, conn, sink)
	defer sess.Close()

	if err := s.guard.Acquire(sess.id, sess.Close); err != nil {
		// BusyError, per spec.md 4.M/7: Reject policy with a session
		// already active. No response framing exists yet to carry a
		// status, so the connection is simply refused.
		return
	}
	defer s.guard.Release(sess.id, preempt.EndReasonTeardown)

	ctx, cancel := context.WithCancel(parentCtx)
	sess.ctx = ctx
	sess.cancelFunc = cancel
	defer cancel()

	sess.resetIdleTimer()
	sess.serve(ctx)
}

// session is one accepted control connection's lifecycle: state
// machine, device-side pairing, negotiated pipeline, and the UDP tasks
// it owns once SETUP completes.
type session struct {
	cfg  Config
	id   string
	conn net.Conn
	sink AudioSink

	machine *statem.Machine
	dec     *rtsp.Decoder

	framingReader *framing.Reader
	framingWriter *framing.Writer

	setupDevice     *pairing.SetupDevice
	transientDevice *pairing.TransientDevice
	verifyDevice    *pairing.VerifyDevice
	pairResult      *pairing.Result

	sdpDesc    *sdp.Description
	raopAESKey []byte
	raopAESIV  []byte

	ports       *portalloc.Triple
	remoteAudio *net.UDPAddr
	remoteCtrl  *net.UDPAddr

	pipeline *Pipeline
	mapper   *timing.Mapper

	mu           sync.Mutex
	paused       bool
	tasksRunning bool
	idleTimer    *time.Timer

	missingMu sync.Mutex
	missing   map[uint16]time.Time

	ctx        context.Context
	cancelFunc context.CancelFunc
	closeOnce  sync.Once
	done       chan struct{}
}

func newSession(cfg Config, conn net.Conn, sink AudioSink) *session {
	return &session{
		cfg:     cfg,
		id:      uuid.NewString(),
		conn:    conn,
		sink:    sink,
		machine: statem.New(),
		dec:     &rtsp.Decoder{},
		missing: make(map[uint16]time.Time),
		done:    make(chan struct{}),
	}
}

// serve reads and dispatches requests until the connection closes, the
// state machine reaches a terminal state, or ctx is cancelled (eviction
// or idle timeout).
func (sess *session) serve(ctx context.Context) {
	go func() {
		<-ctx.Done()
		sess.Close()
	}()

	for {
		req, err := sess.readRequest()
		if err != nil {
			return
		}
		resp := sess.handle(req)
		if cseq, ok := req.CSeq(); ok {
			resp.SetCSeq(cseq)
		}
		if err := sess.writeResponse(resp); err != nil {
			return
		}
		switch sess.machine.State() {
		case statem.StateTeardown, statem.StateError:
			return
		}
	}
}

func (sess *session) readRequest() (*rtsp.Request, error) {
	for {
		if sess.framingReader != nil {
			plaintext, err := sess.framingReader.ReadFrame()
			if err != nil {
				return nil, err
			}
			sess.dec.Feed(plaintext)
		} else {
			buf := make([]byte, 4096)
			n, err := sess.conn.Read(buf)
			if err != nil {
				return nil, liberrors.ErrTransport{Op: "rtsp read", Err: err}
			}
			sess.dec.Feed(buf[:n])
		}

		msg, err := sess.dec.Pop()
		if err != nil {
			return nil, err
		}
		if msg == nil {
			continue
		}
		if msg.Kind != rtsp.KindRequest {
			return nil, liberrors.ErrProtocol{Where: "rtsp", Err: fmt.Errorf("expected request, got response")}
		}
		return msg.Request, nil
	}
}

func (sess *session) writeResponse(resp *rtsp.Response) error {
	wire := resp.Marshal()
	if sess.framingWriter != nil {
		return sess.framingWriter.WriteFrame(wire)
	}
	_, err := sess.conn.Write(wire)
	if err != nil {
		return liberrors.ErrTransport{Op: "rtsp write", Err: err}
	}
	return nil
}

// handle dispatches one request to its method handler and turns any
// returned error into a status-coded response, never propagating a Go
// error across the wire.
func (sess *session) handle(req *rtsp.Request) *rtsp.Response {
	sess.resetIdleTimer()

	var body []byte
	var header rtsp.Header
	var err error

	switch req.Method {
	case rtsp.MethodOptions:
		err = sess.machine.HandleOptions()
	case rtsp.MethodPost:
		body, err = sess.handlePost(req)
	case rtsp.MethodAnnounce:
		err = sess.handleAnnounce(req)
	case rtsp.MethodSetup:
		header, body, err = sess.handleSetup(req)
	case rtsp.MethodRecord:
		err = sess.handleRecord(req)
	case rtsp.MethodPause:
		err = sess.handlePause()
	case rtsp.MethodFlush:
		err = sess.handleFlush()
	case rtsp.MethodSetParameter:
		err = sess.handleSetParameter(req)
	case rtsp.MethodGetParameter:
		// No parameter the receiver reports is required by spec.md;
		// an empty 200 satisfies a capability probe.
	case rtsp.MethodTeardown:
		err = sess.handleTeardown()
	default:
		return &rtsp.Response{StatusCode: rtsp.StatusNotImplemented}
	}

	if err != nil {
		sess.machine.Fail()
		return &rtsp.Response{StatusCode: statusForError(err)}
	}

	resp := &rtsp.Response{StatusCode: rtsp.StatusOK, Header: header, Body: body}
	return resp
}

func statusForError(err error) rtsp.StatusCode {
	switch err.(type) {
	case liberrors.ErrAuthenticationFailed:
		return rtsp.StatusUnauthorized
	case liberrors.ErrFormat:
		return rtsp.StatusUnsupportedTransport
	case liberrors.ErrDevice:
		return rtsp.StatusForbidden
	default:
		return rtsp.StatusBadRequest
	}
}

func (sess *session) handlePost(req *rtsp.Request) ([]byte, error) {
	switch req.URI {
	case "/pair-setup":
		return sess.handlePairSetup(req.Body)
	case "/pair-verify":
		return sess.handlePairVerify(req.Body)
	default:
		return nil, liberrors.ErrProtocol{Where: "POST", Err: fmt.Errorf("unknown URI %q", req.URI)}
	}
}

// handlePairSetup drives the device side of Pair-Setup or Transient
// (chosen from M1's Method field, per spec.md 4.D), one message at a
// time keyed by the incoming State.
func (sess *session) handlePairSetup(body []byte) ([]byte, error) {
	m, err := tlv8Decode(body)
	if err != nil {
		return nil, err
	}
	state, _ := m.State()

	switch state {
	case 1:
		if err := sess.machine.BeginPairSetup(); err != nil {
			return nil, err
		}
		methodBytes := m[tlv8.TypeMethod]
		if len(methodBytes) > 0 && methodBytes[0] == 1 {
			td, err := pairing.NewTransientDevice(sess.cfg.PIN)
			if err != nil {
				return nil, err
			}
			sess.transientDevice = td
			m2, err := td.HandleM1(m)
			if err != nil {
				return nil, err
			}
			if err := sess.machine.AdvancePairStep(2); err != nil {
				return nil, err
			}
			return tlv8Encode(m2), nil
		}
		sd, err := pairing.NewSetupDevice(sess.cfg.Identifier, sess.cfg.Identity, sess.cfg.PIN, sess.cfg.Store)
		if err != nil {
			return nil, err
		}
		sess.setupDevice = sd
		m2, err := sd.HandleM1(m)
		if err != nil {
			return nil, err
		}
		if err := sess.machine.AdvancePairStep(2); err != nil {
			return nil, err
		}
		return tlv8Encode(m2), nil

	case 3:
		if sess.transientDevice != nil {
			m4, result, err := sess.transientDevice.HandleM3(m)
			if err != nil {
				return nil, err
			}
			if err := sess.machine.AdvancePairStep(4); err != nil {
				return nil, err
			}
			sess.pairResult = result
			if err := sess.machine.CompletePairing(); err != nil {
				return nil, err
			}
			if err := sess.upgradeFraming(result); err != nil {
				return nil, err
			}
			return tlv8Encode(m4), nil
		}
		m4, err := sess.setupDevice.HandleM3(m)
		if err != nil {
			return nil, err
		}
		if err := sess.machine.AdvancePairStep(4); err != nil {
			return nil, err
		}
		return tlv8Encode(m4), nil

	case 5:
		m6, err := sess.setupDevice.HandleM5(m)
		if err != nil {
			return nil, err
		}
		if err := sess.machine.AdvancePairStep(6); err != nil {
			return nil, err
		}
		return tlv8Encode(m6), sess.machine.CompletePairing()

	default:
		return nil, liberrors.ErrProtocol{Where: "pair-setup", Err: fmt.Errorf("unexpected state %d", state)}
	}
}

// handlePairVerify drives the device side of Pair-Verify: M1 derives
// the shared secret and signs our identity, M3 verifies the
// controller's signature and rekeys the control channel.
func (sess *session) handlePairVerify(body []byte) ([]byte, error) {
	m, err := tlv8Decode(body)
	if err != nil {
		return nil, err
	}
	state, _ := m.State()

	switch state {
	case 1:
		if err := sess.machine.BeginPairVerify(); err != nil {
			return nil, err
		}
		vd := pairing.NewVerifyDevice(sess.cfg.Identifier, sess.cfg.Identity, sess.cfg.Store)
		sess.verifyDevice = vd
		m2, err := vd.HandleM1(m)
		if err != nil {
			return nil, err
		}
		if err := sess.machine.AdvancePairStep(2); err != nil {
			return nil, err
		}
		return tlv8Encode(m2), nil

	case 3:
		m4, result, err := sess.verifyDevice.HandleM3(m)
		if err != nil {
			return nil, err
		}
		if err := sess.machine.AdvancePairStep(4); err != nil {
			return nil, err
		}
		sess.pairResult = result
		if err := sess.machine.CompletePairing(); err != nil {
			return nil, err
		}
		if err := sess.upgradeFraming(result); err != nil {
			return nil, err
		}
		return tlv8Encode(m4), nil

	default:
		return nil, liberrors.ErrProtocol{Where: "pair-verify", Err: fmt.Errorf("unexpected state %d", state)}
	}
}

// upgradeFraming rekeys the control channel per spec.md 4.E. result's
// ReadKey/WriteKey are already the device's own directional keys (the
// controller's write key is our read key and vice versa, per
// pkg/pairing's VerifyDevice/TransientDevice).
func (sess *session) upgradeFraming(result *pairing.Result) error {
	w, err := framing.NewWriter(sess.conn, result.WriteKey[:])
	if err != nil {
		return err
	}
	r, err := framing.NewReader(sess.conn, result.ReadKey[:])
	if err != nil {
		return err
	}
	sess.framingWriter = w
	sess.framingReader = r
	return nil
}

// handleAnnounce parses the SDP body and, for RAOP, unwraps the
// RSA-OAEP-encrypted AES key under our own RSA keypair.
func (sess *session) handleAnnounce(req *rtsp.Request) error {
	desc, err := sdp.Parse(req.Body)
	if err != nil {
		return err
	}
	sess.sdpDesc = desc

	if desc.RSAAESKeyBase64 != "" {
		wrapped, err := base64DecodeNoPad(desc.RSAAESKeyBase64)
		if err != nil {
			return liberrors.ErrProtocol{Where: "ANNOUNCE", Err: err}
		}
		key, err := airplaycrypto.RSAOAEPDecrypt(sess.cfg.RAOPKey, wrapped)
		if err != nil {
			return err
		}
		iv, err := base64DecodeStd(desc.AESIVBase64)
		if err != nil {
			return liberrors.ErrProtocol{Where: "ANNOUNCE", Err: err}
		}
		sess.raopAESKey = key
		sess.raopAESIV = iv
	}

	return sess.machine.HandleAnnounce()
}

// handleSetup allocates the three local UDP ports, builds the receiver
// pipeline from the negotiated codec and cipher, and replies with the
// allocated ports: as a binary-plist body when the request carries one,
// otherwise as a Transport header.
func (sess *session) handleSetup(req *rtsp.Request) (rtsp.Header, []byte, error) {
	if sess.sdpDesc == nil {
		return nil, nil, liberrors.ErrProtocol{Where: "SETUP", Err: fmt.Errorf("SETUP received before ANNOUNCE")}
	}
	if sess.machine.State() == statem.StateSetupPhase1 {
		if err := sess.machine.HandleSetupPhase1(); err != nil {
			return nil, nil, err
		}
	}
	if err := sess.machine.HandleSetupPhase2(); err != nil {
		return nil, nil, err
	}

	plistBody := strings.Contains(req.Header.Get("Content-Type"), "apple-binary-plist")

	var clientAudio, clientCtrl int
	if plistBody {
		audio, ctrl, err := parsePlistSetupPorts(req.Body)
		if err != nil {
			return nil, nil, err
		}
		clientAudio, clientCtrl = audio, ctrl
	} else {
		audio, ctrl, _, err := parseClientTransportPorts(req.Header.Get("Transport"))
		if err != nil {
			return nil, nil, err
		}
		clientAudio, clientCtrl = audio, ctrl
	}

	host, _, _ := net.SplitHostPort(sess.conn.RemoteAddr().String())
	sess.remoteAudio = &net.UDPAddr{IP: net.ParseIP(host), Port: clientAudio}
	sess.remoteCtrl = &net.UDPAddr{IP: net.ParseIP(host), Port: clientCtrl}

	ports, err := portalloc.Allocate("", sess.cfg.PortBase)
	if err != nil {
		return nil, nil, err
	}
	sess.ports = ports

	if err := sess.buildPipeline(); err != nil {
		ports.Close()
		return nil, nil, err
	}

	audioPort, ctrlPort, timePort := ports.Ports()

	if plistBody {
		h := rtsp.Header{}
		h.Set("Content-Type", "application/x-apple-binary-plist")
		body, err := buildPlistSetupResponse(audioPort, ctrlPort, timePort)
		if err != nil {
			ports.Close()
			return nil, nil, err
		}
		return h, body, nil
	}

	h := rtsp.Header{}
	h.Set("Transport", fmt.Sprintf(
		"RTP/AVP/UDP;unicast;mode=record;server_port=%d;control_port=%d;timing_port=%d",
		audioPort, ctrlPort, timePort))
	return h, nil, nil
}

func (sess *session) buildPipeline() error {
	format := sess.cfg.AudioFormat
	if sess.sdpDesc.SampleRate != 0 {
		format.SampleRate = sess.sdpDesc.SampleRate
	}
	if sess.sdpDesc.Channels != 0 {
		format.Channels = sess.sdpDesc.Channels
	}
	if sess.sdpDesc.BitDepth != 0 {
		format.BitDepth = sess.sdpDesc.BitDepth
	}

	dec, frameBytes, err := buildDecoder(sess.sdpDesc, format)
	if err != nil {
		return err
	}

	sess.mapper = timing.NewMapper(0, time.Now(), format.SampleRate, sess.cfg.TargetLatency)

	bytesPerSample := format.BitDepth / 8
	if bytesPerSample <= 0 {
		bytesPerSample = 2
	}
	pcfg := PipelineConfig{
		Decoder:         dec,
		Mapper:          sess.mapper,
		MinDepth:        sess.cfg.MinJitterDepth,
		MaxDepth:        sess.cfg.MaxJitterDepth,
		ConcealStrategy: sess.cfg.ConcealStrategy,
		ConcealFadeStep: sess.cfg.ConcealFadeSteps,
		PayloadSamples:  codec.FrameSamples * format.Channels * bytesPerSample,
		InputFormat:     format,
		OutputFormat:    sess.cfg.OutputFormat,
	}

	if sess.raopAESKey != nil {
		p, err := NewAESCTRPipeline(pcfg, sess.raopAESKey, sess.raopAESIV, frameBytes)
		if err != nil {
			return err
		}
		sess.pipeline = p
		return nil
	}

	if sess.pairResult == nil {
		return liberrors.ErrFormat{Reason: "SETUP before pairing completed"}
	}
	p, err := NewChaCha20Pipeline(pcfg, sess.pairResult.ReadKey[:])
	if err != nil {
		return err
	}
	sess.pipeline = p
	return nil
}

func (sess *session) handleRecord(req *rtsp.Request) error {
	if err := sess.machine.HandleRecord(); err != nil {
		return err
	}
	sess.mu.Lock()
	sess.paused = false
	sess.mu.Unlock()

	// The UDP tasks are spawned exactly once, on the first RECORD: PAUSE
	// followed by a later RECORD resumes the same pipeline rather than
	// respawning readers.
	if sess.pipeline != nil && !sess.tasksStarted() {
		sess.startTasks()
	}
	return nil
}

func (sess *session) tasksStarted() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	started := sess.tasksRunning
	sess.tasksRunning = true
	return started
}

func (sess *session) handlePause() error {
	if err := sess.machine.HandlePause(); err != nil {
		return err
	}
	sess.mu.Lock()
	sess.paused = true
	sess.mu.Unlock()
	return nil
}

// handleFlush drops every buffered packet by replacing the jitter buffer
// and sequence tracker wholesale. The FLUSH request's RTP-Info is not
// read, so a packet arriving after the flush is accepted whatever its
// sequence number.
func (sess *session) handleFlush() error {
	if err := sess.machine.HandleFlush(); err != nil {
		return err
	}
	if sess.pipeline != nil {
		sess.pipeline.Reset(sess.mapper, sess.cfg.MinJitterDepth, sess.cfg.MaxJitterDepth)
	}
	return nil
}

// handleSetParameter recognizes the "rate" body PAUSE/RESUME wire both
// directions over (spec.md 8 scenario 4); other parameter bodies
// (volume, progress, metadata) are accepted but not acted on by the
// core, which only implements the audio pipeline.
func (sess *session) handleSetParameter(req *rtsp.Request) error {
	if req.Header.Get("Content-Type") != "text/parameters" {
		return nil
	}
	body := string(req.Body)
	if containsRateZero(body) {
		return sess.handlePause()
	}
	if containsRateOne(body) {
		return sess.handleRecord(req)
	}
	return nil
}

func containsRateZero(body string) bool { return containsAny(body, "rate: 0", "rate:0") }
func containsRateOne(body string) bool  { return containsAny(body, "rate: 1", "rate:1") }

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if len(s) >= len(sub) {
			for i := 0; i+len(sub) <= len(s); i++ {
				if s[i:i+len(sub)] == sub {
					return true
				}
			}
		}
	}
	return false
}

func (sess *session) handleTeardown() error {
	return sess.machine.HandleTeardown()
}

// startTasks spawns the audio reader and playback scheduler tasks. No
// task reads the control or timing socket. Both tasks run until sess.ctx (established once in handleConn) is
// cancelled.
func (sess *session) startTasks() {
	go sess.audioReaderLoop(sess.ctx)
	go sess.schedulerLoop(sess.ctx)
}

// audioReaderLoop reads RTP packets off the audio socket, hands them to
// the pipeline for decryption and jitter-buffer insertion, and requests
// retransmission of any gap the sequence tracker reports.
func (sess *session) audioReaderLoop(ctx context.Context) {
	buf := make([]byte, 2048)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		sess.ports.Audio.SetReadDeadline(time.Now().Add(500 * time.Millisecond))
		n, _, err := sess.ports.Audio.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		var pkt airplayrtp.Packet
		if pkt.Unmarshal(buf[:n]) != nil {
			continue
		}
		if pkt.PayloadType != airplayrtp.PayloadTypeAudio && pkt.PayloadType != airplayrtp.PayloadTypeAAC {
			continue
		}

		result, err := sess.pipeline.HandlePacket(&pkt)
		if err != nil {
			if sess.cfg.Metrics != nil {
				sess.cfg.Metrics.AEADFailures.WithLabelValues(sess.id, "audio").Inc()
			}
			continue
		}

		sess.resetIdleTimer()

		if result.Outcome == jitter.OutcomeMissing && len(result.MissingSeqs) > 0 {
			if sess.cfg.Metrics != nil {
				sess.cfg.Metrics.PacketsLost.WithLabelValues(sess.id).Add(float64(len(result.MissingSeqs)))
			}
			sess.trackMissing(result.MissingSeqs)
			sess.requestRetransmit(result.MissingSeqs[0], len(result.MissingSeqs))
		}
	}
}

func (sess *session) trackMissing(seqs []uint16) {
	deadline := time.Now().Add(20 * time.Millisecond)
	sess.missingMu.Lock()
	for _, s := range seqs {
		sess.missing[s] = deadline
	}
	sess.missingMu.Unlock()
}

// requestRetransmit sends an RTP retransmit-request packet (payload
// type 85, payload = first sequence + count, both big-endian u16) to
// the sender's control port, mirroring the packet sender.go's
// controlReaderLoop parses.
func (sess *session) requestRetransmit(firstSeq uint16, count int) {
	if sess.remoteCtrl == nil {
		return
	}
	payload := []byte{
		byte(firstSeq >> 8), byte(firstSeq),
		byte(count >> 8), byte(count),
	}
	pkt := airplayrtp.New(airplayrtp.PayloadTypeSyncRetx, false, 0, 0, 0, payload)
	wire, err := pkt.Marshal()
	if err != nil {
		return
	}
	_, _ = sess.ports.Control.WriteToUDP(wire, sess.remoteCtrl)
	if sess.cfg.Metrics != nil {
		sess.cfg.Metrics.RetransmitRequests.WithLabelValues(sess.id, "receiver").Inc()
	}
}

// schedulerLoop is the jitter-buffer/playback-scheduler task: it drains
// ready packets to the sink as their playback instant arrives, and
// substitutes concealment once a missing packet's 20ms retransmit
// deadline has passed without the retransmit arriving, per spec.md 4.K.
func (sess *session) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sess.drain(now)
		}
	}
}

func (sess *session) drain(now time.Time) {
	if sess.isPaused() {
		return
	}
	for {
		pcm, ok := sess.pipeline.Pop(now)
		if !ok {
			break
		}
		sess.deliver(pcm)
	}
	sess.concealExpired(now)
}

func (sess *session) isPaused() bool {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	return sess.paused
}

func (sess *session) concealExpired(now time.Time) {
	sess.missingMu.Lock()
	var expired []uint16
	for seq, deadline := range sess.missing {
		if !now.Before(deadline) {
			expired = append(expired, seq)
		}
	}
	for _, seq := range expired {
		delete(sess.missing, seq)
	}
	sess.missingMu.Unlock()

	for range expired {
		pcm, err := sess.pipeline.ConcealGap(0)
		if err != nil {
			continue
		}
		sess.deliver(pcm)
	}
}

func (sess *session) deliver(pcm []int16) {
	_ = sess.sink.Write(pcm)
}

func (sess *session) resetIdleTimer() {
	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.idleTimer == nil {
		sess.idleTimer = time.AfterFunc(sess.cfg.IdleTimeout, func() {
			sess.Close()
		})
		return
	}
	sess.idleTimer.Reset(sess.cfg.IdleTimeout)
}

// Close cancels the session's tasks, releases its UDP ports, and closes
// the control connection. Safe to call more than once, satisfying
// spec.md 5's "dropping a session handle cancels all its tasks" rule.
func (sess *session) Close() {
	sess.closeOnce.Do(func() {
		if sess.cancelFunc != nil {
			sess.cancelFunc()
		}
		sess.mu.Lock()
		if sess.idleTimer != nil {
			sess.idleTimer.Stop()
		}
		sess.mu.Unlock()
		if sess.ports != nil {
			sess.ports.Close()
		}
		if sess.conn != nil {
			sess.conn.Close()
		}
		close(sess.done)
	})
}

// Done is closed once the session has torn down.
func (sess *session) Done() <-chan struct{} { return sess.done }
