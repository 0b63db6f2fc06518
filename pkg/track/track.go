// Package track implements the pacing encoder track (C10): codec binding
// against a remote peer's offered capabilities, and a dedicated loop that
// fills each frame interval with exactly as many RTP packets as the
// current bandwidth estimate allows.
package track

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pion-peer/webrtc-peer/pkg/bwe"
	"github.com/pion-peer/webrtc-peer/pkg/codecs"
)

const (
	defaultFrameInterval = time.Second / 60 // 16.667ms, 60fps
	rtpHeaderBytes       = 12
	defaultMTU           = 1200
)

// ErrUnsupportedCodec is returned when none of the remote peer's codec
// parameters match any capability this track was built to send.
var ErrUnsupportedCodec = errors.New("track: no remote codec parameter matches a local capability")

// RTPWriter is the minimal surface of webrtc.TrackLocalStaticRTP this
// package writes through.
type RTPWriter interface {
	WriteRTP(p *rtp.Packet) error
}

// Source supplies already-encoded media for one frame interval. NextFrame
// is called once per tick with the maximum number of bytes the current
// bandwidth estimate allows; it returns nil if no data is ready yet, or up
// to maxBytes of payload otherwise. Codec compression itself lives outside
// this package.
type Source interface {
	NextFrame(maxBytes int) []byte
}

// SelectCodec walks the remote peer's codec parameters in order and
// returns the first local table entry whose capability matches, ignoring
// RTCPFeedback.
func SelectCodec(table *codecs.Table, remote []webrtc.RTPCodecParameters) (codecs.Codec, error) {
	for _, param := range remote {
		if c, ok := table.Lookup(param.RTPCodecCapability); ok {
			return c, nil
		}
	}
	return codecs.Codec{}, ErrUnsupportedCodec
}

// EncoderTrack owns an RTP output plus the producer side of the pacing
// loop: one dedicated goroutine per track, so jitter from unrelated work
// never delays a send.
type EncoderTrack struct {
	logger zerolog.Logger
	writer RTPWriter
	source Source
	codec  codecs.Codec

	watcher       *bwe.Watcher
	limiter       *rate.Limiter
	frameInterval time.Duration
	mtu           int

	ssrc          uint32
	seq           uint16
	baseTimestamp uint32
	start         time.Time
}

// New builds an EncoderTrack writing through writer, pulling frame payload
// from source, using the already-selected codec, and pacing against
// estimate.
func New(writer RTPWriter, source Source, codec codecs.Codec, estimate *bwe.Estimate, logger zerolog.Logger) *EncoderTrack {
	initial := estimate.Load()
	frameInterval := defaultFrameInterval
	mtu := defaultMTU
	return &EncoderTrack{
		logger:        logger.With().Str("component", "encoder-track").Logger(),
		writer:        writer,
		source:        source,
		codec:         codec,
		watcher:       estimate.Watch(),
		limiter:       rate.NewLimiter(rate.Limit(initial), burstBytes(initial, frameInterval)),
		frameInterval: frameInterval,
		mtu:           mtu,
		ssrc:          rand.Uint32(),
		baseTimestamp: rand.Uint32(),
	}
}

// burstBytes sizes a token bucket's burst to the number of bytes one
// pacing interval is allowed to spend at ratePerSec, so a single tick can
// never draw down more than its own interval's share of the estimate.
func burstBytes(ratePerSec float64, interval time.Duration) int {
	return int(ratePerSec * interval.Seconds())
}

// SetFrameInterval overrides the default 60fps pacing interval.
func (t *EncoderTrack) SetFrameInterval(d time.Duration) {
	t.frameInterval = d
}

// SetMTU overrides the default per-packet MTU budget.
func (t *EncoderTrack) SetMTU(mtu int) {
	t.mtu = mtu
}

// Run drives the pacing loop until ctx is cancelled. The caller starts it
// on its own goroutine once the underlying ICE transport reaches Connected;
// Run itself performs no readiness check, since that signal lives on the
// session, not the track.
func (t *EncoderTrack) Run(ctx context.Context) {
	t.start = time.Now()
	ticker := time.NewTicker(t.frameInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.tick()
		}
	}
}

func (t *EncoderTrack) tick() {
	if v, changed := t.watcher.Changed(); changed {
		// A fresh limiter starts with a full bucket, so the new estimate is
		// usable immediately instead of waiting for tokens to accumulate at
		// the new rate.
		t.limiter = rate.NewLimiter(rate.Limit(v), burstBytes(v, t.frameInterval))
	}

	chunkSize := t.mtu - rtpHeaderBytes
	now := time.Now()
	numPackets := 0
	for t.limiter.AllowN(now, chunkSize) {
		numPackets++
	}
	if numPackets == 0 {
		return
	}

	frame := t.source.NextFrame(numPackets * chunkSize)
	if len(frame) == 0 {
		return
	}

	timestamp := t.baseTimestamp + uint32(time.Since(t.start).Microseconds()*int64(t.codec.Capability.ClockRate)/1_000_000)

	for offset := 0; offset < len(frame); offset += chunkSize {
		end := offset + chunkSize
		if end > len(frame) {
			end = len(frame)
		}
		marker := end == len(frame)

		packet := &rtp.Packet{
			Header: rtp.Header{
				Version:        2,
				Marker:         marker,
				PayloadType:    uint8(t.codec.PayloadType),
				SequenceNumber: t.seq,
				Timestamp:      timestamp,
				SSRC:           t.ssrc,
			},
			Payload: frame[offset:end],
		}
		t.seq++

		if err := t.writer.WriteRTP(packet); err != nil {
			t.logger.Warn().Err(err).Uint16("seq", packet.SequenceNumber).Msg("dropping packet write failure")
			continue
		}
	}
}

// NewLocalTrack builds the webrtc.TrackLocalStaticRTP this EncoderTrack
// writes into, using the bound codec's capability.
func NewLocalTrack(codec codecs.Codec, id, streamID string) (*webrtc.TrackLocalStaticRTP, error) {
	t, err := webrtc.NewTrackLocalStaticRTP(codec.Capability, id, streamID)
	if err != nil {
		return nil, fmt.Errorf("track: create local track: %w", err)
	}
	return t, nil
}
