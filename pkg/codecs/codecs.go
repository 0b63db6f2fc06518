// Package codecs builds the codec capability table a session negotiates
// with a peer: payload-type assignment, RTX pairing, and the single
// ULPFEC slot, mirroring how github.com/pion/webrtc/v4's MediaEngine is
// configured elsewhere in the ecosystem.
package codecs

import (
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"
)

const (
	firstDynamicPayloadType = 96
	lastDynamicPayloadType  = 127
)

// ErrCapacity is returned when the dynamic payload-type range (96-127) is
// exhausted while registering codecs.
var ErrCapacity = errors.New("codecs: dynamic payload type range exhausted")

// MediaKind distinguishes audio from video codecs.
type MediaKind int

const (
	Audio MediaKind = iota + 1
	Video
)

func (k MediaKind) rtpCodecType() webrtc.RTPCodecType {
	if k == Audio {
		return webrtc.RTPCodecTypeAudio
	}
	return webrtc.RTPCodecTypeVideo
}

// Codec is a registerable media codec, carrying the payload type it was
// assigned once added to a Table.
type Codec struct {
	Kind        MediaKind
	Capability  webrtc.RTPCodecCapability
	PayloadType webrtc.PayloadType
}

// capabilityMatches reports whether two capabilities describe the same
// codec, ignoring RTCPFeedback: negotiation only needs to recognize a
// remote capability as "the codec we offered", and feedback lists are
// renegotiated independently per rtcp-fb line.
func capabilityMatches(a, b webrtc.RTPCodecCapability) bool {
	return a.MimeType == b.MimeType &&
		a.ClockRate == b.ClockRate &&
		a.Channels == b.Channels &&
		a.SDPFmtpLine == b.SDPFmtpLine
}

// supportedVideoFeedback is the RTCP feedback every video codec this table
// builds advertises; NACK/PLI beyond "ccm fir" are handled by pion's own
// interceptors once registered into the API's interceptor.Registry.
func supportedVideoFeedback() []webrtc.RTCPFeedback {
	return []webrtc.RTCPFeedback{{Type: "ccm", Parameter: "fir"}}
}

// Opus returns the Opus audio codec capability used by this library.
func Opus() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeOpus,
		ClockRate:   48000,
		Channels:    2,
		SDPFmtpLine: "minptime=10;useinbandfec=1",
	}
}

// H264ConstrainedBaseline returns the default H.264 video codec capability:
// Constrained Baseline profile, level 3.1, matching the set of parameters
// guaranteed to be supported by every major browser.
func H264ConstrainedBaseline() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:    webrtc.MimeTypeH264,
		ClockRate:   90000,
		SDPFmtpLine: "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
		RTCPFeedback: supportedVideoFeedback(),
	}
}

// Pion does not export MimeType constants for RTX/ULPFEC; every example in
// the ecosystem that registers them spells out the IANA media type string
// directly (e.g. San9H0/webrtc's read-rtx example).
const (
	mimeTypeRTX    = "video/rtx"
	mimeTypeULPFEC = "video/ulpfec"
)

// ulpfec returns the RFC 5109 forward-error-correction codec capability.
func ulpfec() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:  mimeTypeULPFEC,
		ClockRate: 90000,
	}
}

// retransmission builds an RFC 4588 RTX codec paired to a base video
// codec's already-assigned payload type.
func retransmission(base Codec) webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{
		MimeType:    mimeTypeRTX,
		ClockRate:   base.Capability.ClockRate,
		SDPFmtpLine: fmt.Sprintf("apt=%d", base.PayloadType),
	}
}

// Table assigns payload types in the dynamic range (96-127) to a set of
// codecs, adding one RTX sibling per video codec and a single shared
// ULPFEC slot, and registers the result into a pion MediaEngine.
type Table struct {
	next   webrtc.PayloadType
	codecs []Codec
}

// NewTable returns an empty table; the first codec added is assigned
// payload type 96.
func NewTable() *Table {
	return &Table{next: firstDynamicPayloadType}
}

// Codecs returns every codec assigned so far, in registration order.
func (t *Table) Codecs() []Codec {
	out := make([]Codec, len(t.codecs))
	copy(out, t.codecs)
	return out
}

// AddAudio assigns the next free payload type to an audio capability.
func (t *Table) AddAudio(capability webrtc.RTPCodecCapability) (Codec, error) {
	return t.add(Audio, capability)
}

// AddVideo assigns the next free payload type to a video capability, then
// assigns a second payload type to its RTX retransmission sibling.
func (t *Table) AddVideo(capability webrtc.RTPCodecCapability) (Codec, error) {
	base, err := t.add(Video, capability)
	if err != nil {
		return Codec{}, err
	}
	if _, err := t.add(Video, retransmission(base)); err != nil {
		return Codec{}, err
	}
	return base, nil
}

// AddULPFEC assigns a payload type to the one shared forward-error-
// correction codec. Calling it more than once is a caller error; this
// table carries exactly one FEC slot.
func (t *Table) AddULPFEC() (Codec, error) {
	return t.add(Video, ulpfec())
}

func (t *Table) add(kind MediaKind, capability webrtc.RTPCodecCapability) (Codec, error) {
	if t.next > lastDynamicPayloadType {
		return Codec{}, fmt.Errorf("codecs: assigning %s: %w", capability.MimeType, ErrCapacity)
	}
	codec := Codec{Kind: kind, Capability: capability, PayloadType: t.next}
	t.next++
	t.codecs = append(t.codecs, codec)
	return codec, nil
}

// Register adds every codec in the table to a pion MediaEngine, in the
// order they were assigned.
func (t *Table) Register(engine *webrtc.MediaEngine) error {
	for _, c := range t.codecs {
		params := webrtc.RTPCodecParameters{
			RTPCodecCapability: c.Capability,
			PayloadType:        c.PayloadType,
		}
		if err := engine.RegisterCodec(params, c.Kind.rtpCodecType()); err != nil {
			return fmt.Errorf("codecs: register %s (pt %d): %w", c.Capability.MimeType, c.PayloadType, err)
		}
	}
	return nil
}

// Lookup returns the codec in the table whose capability matches, ignoring
// RTCPFeedback, along with whether one was found.
func (t *Table) Lookup(capability webrtc.RTPCodecCapability) (Codec, bool) {
	for _, c := range t.codecs {
		if capabilityMatches(c.Capability, capability) {
			return c, true
		}
	}
	return Codec{}, false
}

// BaseAudio returns the first audio codec in the table.
func (t *Table) BaseAudio() (Codec, bool) {
	for _, c := range t.codecs {
		if c.Kind == Audio {
			return c, true
		}
	}
	return Codec{}, false
}

// BaseVideo returns the first video codec in the table that is neither an
// RTX sibling nor the ULPFEC slot.
func (t *Table) BaseVideo() (Codec, bool) {
	for _, c := range t.codecs {
		if c.Kind == Video && c.Capability.MimeType != mimeTypeRTX && c.Capability.MimeType != mimeTypeULPFEC {
			return c, true
		}
	}
	return Codec{}, false
}

// Default builds the standard table this library negotiates: Opus audio,
// H.264 Constrained Baseline video with its RTX sibling, and one ULPFEC
// slot.
func Default() (*Table, error) {
	t := NewTable()
	if _, err := t.AddAudio(Opus()); err != nil {
		return nil, err
	}
	if _, err := t.AddVideo(H264ConstrainedBaseline()); err != nil {
		return nil, err
	}
	if _, err := t.AddULPFEC(); err != nil {
		return nil, err
	}
	return t, nil
}
