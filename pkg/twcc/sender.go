package twcc

import (
	"encoding/binary"
	"sync/atomic"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
)

// SenderFactory builds one SendInterceptor per local stream, all sharing the
// same sequence counter and send-info table: every outgoing RTP packet on
// the peer connection, regardless of track, draws from the same TWCC
// sequence space, matching how the far end's single feedback report
// describes packets across every SSRC it received.
type SenderFactory struct {
	sendInfo *SendInfo
	start    time.Time
	seq      atomic.Uint32
}

// NewSenderFactory returns a factory stamping packets relative to start,
// recording send times and sizes into sendInfo.
func NewSenderFactory(sendInfo *SendInfo, start time.Time) *SenderFactory {
	return &SenderFactory{sendInfo: sendInfo, start: start}
}

// NewInterceptor implements interceptor.Factory.
func (f *SenderFactory) NewInterceptor(_ string) (interceptor.Interceptor, error) {
	return &SendInterceptor{factory: f}, nil
}

// SendInterceptor stamps outgoing RTP packets with a transport-wide sequence
// number carried in the transport-cc header extension and records the send
// time and size of each stamped packet so the feedback reader can later pair
// it with the remote's reported arrival time.
type SendInterceptor struct {
	interceptor.NoOp
	factory *SenderFactory
}

// BindLocalStream locates the negotiated transport-cc extension ID for this
// stream and, if present, wraps the writer to stamp every packet that
// passes through it. Streams that did not negotiate transport-cc are left
// untouched.
func (s *SendInterceptor) BindLocalStream(info *interceptor.StreamInfo, writer interceptor.RTPWriter) interceptor.RTPWriter {
	var extID uint8
	for _, e := range info.RTPHeaderExtensions {
		if e.URI == sdp.TransportCCURI {
			extID = uint8(e.ID)
			break
		}
	}
	if extID == 0 {
		return writer
	}

	return interceptor.RTPWriterFunc(func(header *rtp.Header, payload []byte, attributes interceptor.Attributes) (int, error) {
		seq := uint16(s.factory.seq.Add(1) - 1)

		var buf [2]byte
		binary.BigEndian.PutUint16(buf[:], seq)
		if err := header.SetExtension(extID, buf[:]); err != nil {
			return 0, err
		}

		now := FromDuration(time.Since(s.factory.start))
		s.factory.sendInfo.Store(seq, now, uint64(header.MarshalSize()+len(payload)))

		return writer.Write(header, payload, attributes)
	})
}
