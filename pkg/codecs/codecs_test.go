package codecs

import (
	"testing"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddAudioAssignsSequentialPayloadTypes(t *testing.T) {
	table := NewTable()
	c1, err := table.AddAudio(Opus())
	require.NoError(t, err)
	assert.Equal(t, webrtc.PayloadType(96), c1.PayloadType)

	c2, err := table.AddAudio(Opus())
	require.NoError(t, err)
	assert.Equal(t, webrtc.PayloadType(97), c2.PayloadType)
}

func TestAddVideoAlsoAssignsRTXSibling(t *testing.T) {
	table := NewTable()
	base, err := table.AddVideo(H264ConstrainedBaseline())
	require.NoError(t, err)
	assert.Equal(t, webrtc.PayloadType(96), base.PayloadType)

	codecs := table.Codecs()
	require.Len(t, codecs, 2)
	rtx := codecs[1]
	assert.Equal(t, mimeTypeRTX, rtx.Capability.MimeType)
	assert.Equal(t, webrtc.PayloadType(97), rtx.PayloadType)
	assert.Equal(t, "apt=96", rtx.Capability.SDPFmtpLine)
}

func TestCapacityExhaustedReturnsErrCapacity(t *testing.T) {
	table := &Table{next: lastDynamicPayloadType}
	_, err := table.AddAudio(Opus())
	require.NoError(t, err)

	_, err = table.AddAudio(Opus())
	assert.ErrorIs(t, err, ErrCapacity)
}

func TestLookupIgnoresRTCPFeedback(t *testing.T) {
	table := NewTable()
	added, err := table.AddVideo(H264ConstrainedBaseline())
	require.NoError(t, err)

	query := added.Capability
	query.RTCPFeedback = []webrtc.RTCPFeedback{{Type: "nack"}}

	found, ok := table.Lookup(query)
	require.True(t, ok)
	assert.Equal(t, added.PayloadType, found.PayloadType)
}

func TestLookupMissReturnsFalse(t *testing.T) {
	table := NewTable()
	_, err := table.AddAudio(Opus())
	require.NoError(t, err)

	_, ok := table.Lookup(H264ConstrainedBaseline())
	assert.False(t, ok)
}

func TestBaseVideoSkipsRTXAndULPFEC(t *testing.T) {
	table := NewTable()
	base, err := table.AddVideo(H264ConstrainedBaseline())
	require.NoError(t, err)
	_, err = table.AddULPFEC()
	require.NoError(t, err)

	found, ok := table.BaseVideo()
	require.True(t, ok)
	assert.Equal(t, base.PayloadType, found.PayloadType)
}

func TestBaseAudioFindsFirstAudioCodec(t *testing.T) {
	table := NewTable()
	_, err := table.AddVideo(H264ConstrainedBaseline())
	require.NoError(t, err)
	audio, err := table.AddAudio(Opus())
	require.NoError(t, err)

	found, ok := table.BaseAudio()
	require.True(t, ok)
	assert.Equal(t, audio.PayloadType, found.PayloadType)
}

func TestBaseVideoAbsentReturnsFalse(t *testing.T) {
	table := NewTable()
	_, err := table.AddAudio(Opus())
	require.NoError(t, err)

	_, ok := table.BaseVideo()
	assert.False(t, ok)
}

func TestDefaultBuildsOpusH264AndULPFEC(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	codecs := table.Codecs()
	require.Len(t, codecs, 4) // opus, h264, h264-rtx, ulpfec

	audio, ok := table.BaseAudio()
	require.True(t, ok)
	assert.Equal(t, webrtc.MimeTypeOpus, audio.Capability.MimeType)

	video, ok := table.BaseVideo()
	require.True(t, ok)
	assert.Equal(t, webrtc.MimeTypeH264, video.Capability.MimeType)
}

func TestRegisterAddsEveryCodecToMediaEngine(t *testing.T) {
	table, err := Default()
	require.NoError(t, err)

	engine := &webrtc.MediaEngine{}
	require.NoError(t, table.Register(engine))
}
