// Package session implements the two-role negotiator a peer drives its
// WebRTC connection through: offer/answer exchange, trickled ICE
// candidates, collision resolution, and ICE-restart recovery, wired to the
// congestion-control loop in pkg/bwe and pkg/twcc.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/ice/v4"
	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"

	"github.com/pion-peer/webrtc-peer/pkg/bwe"
	"github.com/pion-peer/webrtc-peer/pkg/codecs"
	"github.com/pion-peer/webrtc-peer/pkg/signaling"
	"github.com/pion-peer/webrtc-peer/pkg/track"
	"github.com/pion-peer/webrtc-peer/pkg/twcc"
)

// Role distinguishes the side that initiates negotiation from the side
// that responds to it.
type Role int

const (
	// Offerer creates offers, forwards ICE restarts, and wins signaling
	// collisions by ignoring any offer that arrives while its own is
	// outstanding.
	Offerer Role = iota + 1
	// Answerer only ever responds to offers and waits for the Offerer to
	// recover a failed ICE session.
	Answerer
)

func (r Role) String() string {
	if r == Offerer {
		return "offerer"
	}
	return "answerer"
}

// ErrClosed is returned by operations attempted after the session has
// already closed.
var ErrClosed = errors.New("session: closed")

// Config configures a Session at construction time. New substitutes
// codecs.Default() for a nil Codecs and 300_000 for a non-positive
// InitialBandwidth; a zero Role behaves as Answerer.
type Config struct {
	Role             Role
	ICEServers       []webrtc.ICEServer
	Codecs           *codecs.Table
	InitialBandwidth float64
	Logger           zerolog.Logger
}

// Session owns one peer connection and the negotiator state machine
// driving it, plus the shared bandwidth estimate every EncoderTrack built
// from it paces against.
type Session struct {
	role     Role
	logger   zerolog.Logger
	signaler signaling.Signaler
	pc       *webrtc.PeerConnection
	codecs   *codecs.Table

	sendInfo   *twcc.SendInfo
	aggregator *bwe.Aggregator
	estimate   *bwe.Estimate
	start      time.Time

	closed     atomic.Bool
	closeOnce  sync.Once
	done       chan struct{}
	loggedConv sync.Once

	connectedOnce sync.Once
	connected     chan struct{}

	trackMu      sync.Mutex
	trackHandler func(*webrtc.TrackRemote, *webrtc.RTPReceiver)
}

// New builds a Session in the given role, wiring codec negotiation, TWCC
// send/feedback interceptors, NACK, and RTCP reports into a fresh peer
// connection, and begins driving negotiation and signaling receipt in the
// background.
func New(ctx context.Context, signaler signaling.Signaler, cfg Config) (*Session, error) {
	if cfg.Codecs == nil {
		table, err := codecs.Default()
		if err != nil {
			return nil, fmt.Errorf("session: build default codec table: %w", err)
		}
		cfg.Codecs = table
	}
	if cfg.InitialBandwidth <= 0 {
		cfg.InitialBandwidth = 300_000
	}

	m := &webrtc.MediaEngine{}
	if err := cfg.Codecs.Register(m); err != nil {
		return nil, fmt.Errorf("session: register codecs: %w", err)
	}
	// Video always negotiates transport-cc; audio follows the usual
	// ecosystem convention of leaving it off. Whichever side actually won
	// out is confirmed against the negotiated SDP in logRTCPFeedbackConvention,
	// since a remote offer can still shape what ends up in the rtcp-fb lines.
	if err := m.RegisterHeaderExtension(webrtc.RTPHeaderExtensionCapability{URI: sdp.TransportCCURI}, webrtc.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("session: register transport-cc extension: %w", err)
	}

	sendInfo := twcc.NewSendInfo()
	start := time.Now()
	estimate := bwe.NewEstimate(cfg.InitialBandwidth)
	aggregator := bwe.NewAggregator(estimate, cfg.InitialBandwidth)

	registry := &interceptor.Registry{}
	registry.Add(twcc.NewSenderFactory(sendInfo, start))
	registry.Add(twcc.NewReaderFactory(sendInfo, func(results []twcc.PacketResult) {
		aggregator.ProcessReport(time.Now(), results)
	}))
	if err := webrtc.ConfigureNack(m, registry); err != nil {
		return nil, fmt.Errorf("session: configure nack: %w", err)
	}
	if err := webrtc.ConfigureRTCPReports(registry); err != nil {
		return nil, fmt.Errorf("session: configure rtcp reports: %w", err)
	}

	api := webrtc.NewAPI(webrtc.WithMediaEngine(m), webrtc.WithInterceptorRegistry(registry))
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: cfg.ICEServers})
	if err != nil {
		return nil, fmt.Errorf("session: create peer connection: %w", err)
	}

	s := &Session{
		role:       cfg.Role,
		logger:     cfg.Logger.With().Str("component", "session").Str("role", cfg.Role.String()).Logger(),
		signaler:   signaler,
		pc:         pc,
		codecs:     cfg.Codecs,
		sendInfo:   sendInfo,
		aggregator: aggregator,
		estimate:   estimate,
		start:      start,
		done:       make(chan struct{}),
		connected:  make(chan struct{}),
	}

	pc.OnICECandidate(s.onICECandidate)
	pc.OnNegotiationNeeded(s.onNegotiationNeeded)
	pc.OnICEConnectionStateChange(s.onICEConnectionStateChange)
	pc.OnTrack(s.onTrack)
	pc.OnSignalingStateChange(s.onSignalingStateChange)

	go s.recvLoop()
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()

	return s, nil
}

// Estimate returns the shared bandwidth estimate this session's tracks
// pace against.
func (s *Session) Estimate() *bwe.Estimate {
	return s.estimate
}

// PeerConnection returns the underlying peer connection, for callers that
// need transceiver or ICE-state access this package does not expose
// directly.
func (s *Session) PeerConnection() *webrtc.PeerConnection {
	return s.pc
}

// Done returns a channel closed once the session has terminated, by Bye,
// signaling failure, or an explicit Close.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// WaitConnected blocks until the underlying ICE transport first reaches
// Connected (or Completed), ctx is done, or the session closes first.
// EncoderTrack.Run is meant to be started only after this returns nil, so
// the pacing loop never spends bandwidth-estimate cycles firing packets
// into a transport that cannot carry them yet.
func (s *Session) WaitConnected(ctx context.Context) error {
	select {
	case <-s.connected:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// OnTrack registers the callback invoked whenever the remote peer adds a
// track. Only one callback is kept; registering again replaces it.
func (s *Session) OnTrack(handler func(*webrtc.TrackRemote, *webrtc.RTPReceiver)) {
	s.trackMu.Lock()
	s.trackHandler = handler
	s.trackMu.Unlock()
}

// AddVideoTrack negotiates a local video track using the session's bound
// video codec, builds an EncoderTrack pacing writes to it against the
// shared estimate, and adds it to the underlying peer connection.
func (s *Session) AddVideoTrack(id, streamID string, source track.Source) (*track.EncoderTrack, error) {
	codec, ok := s.codecs.BaseVideo()
	if !ok {
		return nil, fmt.Errorf("session: %w", track.ErrUnsupportedCodec)
	}
	return s.addTrack(codec, id, streamID, source)
}

// AddAudioTrack is AddVideoTrack's audio counterpart.
func (s *Session) AddAudioTrack(id, streamID string, source track.Source) (*track.EncoderTrack, error) {
	codec, ok := s.codecs.BaseAudio()
	if !ok {
		return nil, fmt.Errorf("session: %w", track.ErrUnsupportedCodec)
	}
	return s.addTrack(codec, id, streamID, source)
}

func (s *Session) addTrack(codec codecs.Codec, id, streamID string, source track.Source) (*track.EncoderTrack, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	local, err := track.NewLocalTrack(codec, id, streamID)
	if err != nil {
		return nil, err
	}
	sender, err := s.pc.AddTrack(local)
	if err != nil {
		return nil, fmt.Errorf("session: add track: %w", err)
	}
	go s.readSenderRTCP(sender)

	return track.New(local, source, codec, s.estimate, s.logger), nil
}

// readSenderRTCP drains keyframe requests, receiver reports, and feedback
// arriving on a local sender's RTCP path; the per-packet ACK/NACK feedback
// itself is handled by the transport-cc reader interceptor wired in at
// construction.
func (s *Session) readSenderRTCP(sender *webrtc.RTPSender) {
	for {
		packets, _, err := sender.ReadRTCP()
		if err != nil {
			return
		}
		for _, p := range packets {
			switch pkt := p.(type) {
			case *rtcp.PictureLossIndication:
				s.logger.Debug().Uint32("ssrc", pkt.MediaSSRC).Msg("received PLI")
			case *rtcp.FullIntraRequest:
				s.logger.Debug().Uint32("ssrc", pkt.MediaSSRC).Msg("received FIR")
			case *rtcp.ReceiverReport:
				s.handleReceiverReport(pkt)
			}
		}
	}
}

// handleReceiverReport derives round-trip time straight from RFC 3550
// appendix A.8's formula, needing nothing beyond the report itself and the
// local arrival time, since LastSenderReport already carries the middle 32
// bits of the NTP timestamp from whichever SR this peer most recently sent.
// A zero LastSenderReport means the remote hasn't received one of our SRs
// yet; the delay estimator's own built-in default RTT applies until then.
func (s *Session) handleReceiverReport(report *rtcp.ReceiverReport) {
	for _, r := range report.Reports {
		if r.LastSenderReport == 0 {
			continue
		}
		rttCompact := ntpMid(time.Now()) - r.LastSenderReport - r.Delay
		rttMS := float64(rttCompact) / 65536 * 1000
		if rttMS < 0 || rttMS > 60_000 {
			continue
		}
		s.aggregator.SetRTT(rttMS)
	}
}

// ntpEpochOffset is the number of seconds between the NTP epoch (1900) and
// the Unix epoch (1970).
const ntpEpochOffset = 2208988800

// ntpMid returns the middle 32 bits of t expressed as a 64-bit NTP
// timestamp, the compact representation RTCP sender/receiver reports use
// for LastSenderReport and Delay.
func ntpMid(t time.Time) uint32 {
	sec := uint64(t.Unix()) + ntpEpochOffset
	frac := uint64(t.Nanosecond()) * (1 << 32) / 1_000_000_000
	ntp := sec<<32 | frac
	return uint32(ntp >> 16)
}

// onTrack wraps an incoming remote track and forwards it to the
// application's registered handler, upgrading the non-owning session
// reference (no-op once closed) per the weak-callback discipline every
// peer-connection callback in this package follows.
func (s *Session) onTrack(remote *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
	if s.closed.Load() {
		return
	}
	s.trackMu.Lock()
	handler := s.trackHandler
	s.trackMu.Unlock()
	if handler != nil {
		handler(remote, receiver)
	}
}

// classifyCandidate reports the ICE candidate type (host/srflx/prflx/relay)
// of a candidate attribute value, for diagnostics only; ICE negotiation
// itself runs entirely inside the peer connection regardless of the
// outcome here.
func classifyCandidate(raw string) (ice.CandidateType, error) {
	c, err := ice.UnmarshalCandidate(strings.TrimPrefix(raw, "candidate:"))
	if err != nil {
		return ice.CandidateType(0), err
	}
	return c.Type(), nil
}

func (s *Session) onICECandidate(c *webrtc.ICECandidate) {
	if c == nil || s.closed.Load() {
		return
	}
	init := c.ToJSON()
	if typ, err := classifyCandidate(init.Candidate); err == nil {
		s.logger.Debug().Str("candidate_type", typ.String()).Msg("gathered local ice candidate")
	}
	if err := s.signaler.Send(signaling.NewIceCandidate(signaling.IceCandidate{
		Candidate:        init.Candidate,
		SDPMid:           init.SDPMid,
		SDPMLineIndex:    init.SDPMLineIndex,
		UsernameFragment: init.UsernameFragment,
	})); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send ice candidate")
		s.Close()
	}
}

// onNegotiationNeeded only does anything for the Offerer: in this library's
// two-role model the Answerer only ever reacts to offers, never originates
// them.
func (s *Session) onNegotiationNeeded() {
	if s.closed.Load() || s.role != Offerer {
		return
	}
	if err := s.makeOffer(false); err != nil {
		s.logger.Warn().Err(err).Msg("negotiation failed")
	}
}

func (s *Session) makeOffer(iceRestart bool) error {
	offer, err := s.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return fmt.Errorf("create offer: %w", err)
	}
	if err := s.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}
	local := s.pc.LocalDescription()
	return s.signaler.Send(signaling.NewSdp(signaling.SdpOffer, local.SDP))
}

// onICEConnectionStateChange recovers a failed session: only the Offerer
// initiates an ICE restart on Failed; the Answerer waits for the Offerer's
// new offer. It also latches the first Connected/Completed transition for
// WaitConnected's callers.
func (s *Session) onICEConnectionStateChange(state webrtc.ICEConnectionState) {
	if s.closed.Load() {
		return
	}
	if state == webrtc.ICEConnectionStateConnected || state == webrtc.ICEConnectionStateCompleted {
		s.connectedOnce.Do(func() { close(s.connected) })
	}
	if state != webrtc.ICEConnectionStateFailed {
		return
	}
	if s.role != Offerer {
		s.logger.Info().Msg("ice failed, waiting for peer restart")
		return
	}
	s.logger.Warn().Msg("ice failed, restarting")
	if err := s.makeOffer(true); err != nil {
		s.logger.Warn().Err(err).Msg("ice restart failed")
	}
}

func (s *Session) recvLoop() {
	for {
		msg, err := s.signaler.Recv()
		if err != nil {
			if !s.closed.Load() {
				s.logger.Warn().Err(err).Msg("signaling receive failed")
				s.Close()
			}
			return
		}
		s.handleMessage(msg)
		if s.closed.Load() {
			return
		}
	}
}

func (s *Session) handleMessage(msg signaling.Message) {
	switch msg.Kind {
	case signaling.KindSdp:
		s.handleSdp(msg.Sdp)
	case signaling.KindIceCandidate:
		s.handleIceCandidate(msg.IceCandidate)
	case signaling.KindBye:
		s.Close()
	default:
		s.logger.Warn().Str("kind", string(msg.Kind)).Msg("unexpected signaling message")
	}
}

func (s *Session) handleSdp(sdp *signaling.Sdp) {
	if sdp == nil {
		return
	}
	switch sdp.Type {
	case signaling.SdpOffer:
		// Impolite-peer rule: an offer arriving while our own is
		// outstanding (signaling state not stable) is ignored rather
		// than rolled back.
		if s.pc.SignalingState() != webrtc.SignalingStateStable {
			s.logger.Debug().Msg("ignoring offer during collision")
			return
		}
		if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp.SDP}); err != nil {
			s.logger.Warn().Err(err).Msg("set remote offer failed")
			return
		}
		answer, err := s.pc.CreateAnswer(nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("create answer failed")
			return
		}
		if err := s.pc.SetLocalDescription(answer); err != nil {
			s.logger.Warn().Err(err).Msg("set local answer failed")
			return
		}
		if err := s.signaler.Send(signaling.NewSdp(signaling.SdpAnswer, s.pc.LocalDescription().SDP)); err != nil {
			s.logger.Warn().Err(err).Msg("send answer failed")
			s.Close()
		}
	case signaling.SdpAnswer:
		if err := s.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp.SDP}); err != nil {
			s.logger.Warn().Err(err).Msg("set remote answer failed")
		}
	default:
		s.logger.Debug().Str("sdp_type", string(sdp.Type)).Msg("ignoring sdp type")
	}
}

// onSignalingStateChange logs the negotiated transport-cc convention the
// first time the connection reaches Stable, then never again.
func (s *Session) onSignalingStateChange(state webrtc.SignalingState) {
	if state != webrtc.SignalingStateStable {
		return
	}
	s.logRTCPFeedbackConvention()
}

// logRTCPFeedbackConvention walks the negotiated local description looking
// for "transport-cc" among each media section's rtcp-fb attributes, to
// confirm which side of the video/audio split actually made it into the
// session rather than assuming RegisterHeaderExtension's video-only call
// survived negotiation unchanged. Runs once per session.
func (s *Session) logRTCPFeedbackConvention() {
	s.loggedConv.Do(func() {
		local := s.pc.LocalDescription()
		if local == nil {
			return
		}
		var parsed sdp.SessionDescription
		if err := parsed.Unmarshal([]byte(local.SDP)); err != nil {
			s.logger.Debug().Err(err).Msg("failed to parse local description for rtcp-fb inspection")
			return
		}
		video, audio := false, false
		for _, media := range parsed.MediaDescriptions {
			hasTransportCC := false
			for _, attr := range media.Attributes {
				if attr.Key == "rtcp-fb" && strings.Contains(attr.Value, "transport-cc") {
					hasTransportCC = true
					break
				}
			}
			switch media.MediaName.Media {
			case "video":
				video = video || hasTransportCC
			case "audio":
				audio = audio || hasTransportCC
			}
		}
		s.logger.Info().Bool("video", video).Bool("audio", audio).Msg("resolved transport-cc convention")
	})
}

func (s *Session) handleIceCandidate(c *signaling.IceCandidate) {
	if c == nil {
		return
	}
	if typ, err := classifyCandidate(c.Candidate); err == nil {
		s.logger.Debug().Str("candidate_type", typ.String()).Msg("received remote ice candidate")
	}
	init := webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
	if err := s.pc.AddICECandidate(init); err != nil {
		s.logger.Warn().Err(err).Msg("add ice candidate failed")
	}
}

// Close sends Bye (best-effort), tears down the peer connection, and
// unblocks every waiter on Done. Safe to call more than once and from
// multiple goroutines.
func (s *Session) Close() error {
	var closeErr error
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		_ = s.signaler.Send(signaling.Bye())
		closeErr = s.pc.Close()
		close(s.done)
	})
	return closeErr
}
