package twcc

import (
	"testing"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	"github.com/pion/sdp/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimeWrapAround(t *testing.T) {
	near := Time(domain - 1000)
	wrapped := near.WithRecvDelta(2000)
	assert.Equal(t, Time(1000), wrapped)

	delta := wrapped.SmallDeltaSub(near)
	assert.Equal(t, int64(2000), delta)
	assert.True(t, near.Before(wrapped))
	assert.True(t, wrapped.After(near))
}

func TestFromReferenceTime(t *testing.T) {
	tm := FromReferenceTime(10)
	assert.Equal(t, Time(640000), tm)
}

func TestSendInfoStoreLoad(t *testing.T) {
	info := NewSendInfo()
	info.Store(42, Time(123456), 1200)

	sendTime, size := info.Load(42)
	assert.Equal(t, Time(123456), sendTime)
	assert.Equal(t, uint64(1200), size)

	// Never-written slots read as zero.
	sendTime, size = info.Load(1)
	assert.Equal(t, Time(0), sendTime)
	assert.Equal(t, uint64(0), size)
}

type captureWriter struct {
	header  *rtp.Header
	payload []byte
}

func (c *captureWriter) Write(header *rtp.Header, payload []byte, _ interceptor.Attributes) (int, error) {
	c.header = header
	c.payload = payload
	return header.MarshalSize() + len(payload), nil
}

func TestSendInterceptorStampsTransportCCExtension(t *testing.T) {
	sendInfo := NewSendInfo()
	factory := NewSenderFactory(sendInfo, time.Now())
	i, err := factory.NewInterceptor("")
	require.NoError(t, err)
	sender := i.(*SendInterceptor)

	capture := &captureWriter{}
	wrapped := sender.BindLocalStream(&interceptor.StreamInfo{
		RTPHeaderExtensions: []interceptor.RTPHeaderExtension{{URI: sdp.TransportCCURI, ID: 5}},
	}, interceptor.RTPWriterFunc(capture.Write))

	header := &rtp.Header{}
	_, err = wrapped.Write(header, []byte{1, 2, 3}, nil)
	require.NoError(t, err)

	ext := capture.header.GetExtension(5)
	require.Len(t, ext, 2)

	sendTime, size := sendInfo.Load(0)
	assert.NotEqual(t, Time(0), sendTime)
	assert.Equal(t, uint64(header.MarshalSize()+3), size)
}

func TestSendInterceptorSkipsStreamsWithoutTransportCC(t *testing.T) {
	factory := NewSenderFactory(NewSendInfo(), time.Now())
	i, err := factory.NewInterceptor("")
	require.NoError(t, err)
	sender := i.(*SendInterceptor)

	capture := &captureWriter{}
	original := interceptor.RTPWriterFunc(capture.Write)
	wrapped := sender.BindLocalStream(&interceptor.StreamInfo{}, original)

	header := &rtp.Header{}
	_, err = wrapped.Write(header, []byte{1}, nil)
	require.NoError(t, err)
	assert.False(t, header.Extension)
}

func TestFeedbackReaderJoinsSendInfo(t *testing.T) {
	sendInfo := NewSendInfo()
	sendInfo.Store(0, Time(1_000_000), 1200)
	sendInfo.Store(1, Time(1_010_000), 1200)

	var received []PacketResult
	factory := NewReaderFactory(sendInfo, func(r []PacketResult) {
		received = append(received, r...)
	})

	report := &rtcp.TransportLayerCC{
		BaseSequenceNumber: 0,
		PacketStatusCount:  2,
		ReferenceTime:      10,
		PacketChunks: []rtcp.PacketStatusChunk{
			&rtcp.RunLengthChunk{PacketStatusSymbol: rtcp.TypeTCCPacketReceivedSmallDelta, RunLength: 1},
			&rtcp.RunLengthChunk{PacketStatusSymbol: rtcp.TypeTCCPacketNotReceived, RunLength: 1},
		},
		RecvDeltas: []*rtcp.RecvDelta{{Type: rtcp.TypeTCCPacketReceivedSmallDelta, Delta: 5000}},
	}
	factory.handle(report)

	require.Len(t, received, 2)
	assert.True(t, received[0].Received)
	assert.Equal(t, uint64(1200), received[0].Size)
	assert.False(t, received[1].Received)
}
