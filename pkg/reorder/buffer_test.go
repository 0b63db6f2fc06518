package reorder

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeTrack replays a fixed queue of raw RTP packets, then errs with
// io.EOF so a test's Read loop terminates instead of blocking.
type fakeTrack struct {
	packets [][]byte
	pos     int
}

func (f *fakeTrack) Read(b []byte) (int, interceptor.Attributes, error) {
	if f.pos >= len(f.packets) {
		return 0, nil, io.EOF
	}
	p := f.packets[f.pos]
	f.pos++
	return copy(b, p), nil, nil
}

func marshalSeq(t *testing.T, seq uint16) []byte {
	t.Helper()
	pkt := &rtp.Packet{
		Header:  rtp.Header{SequenceNumber: seq},
		Payload: []byte{byte(seq), byte(seq >> 8)},
	}
	raw, err := pkt.Marshal()
	require.NoError(t, err)
	return raw
}

func TestBufferInOrderPassthrough(t *testing.T) {
	track := &fakeTrack{packets: [][]byte{marshalSeq(t, 0), marshalSeq(t, 1), marshalSeq(t, 2)}}
	buf := New(track)

	out := make([]byte, maxMTU)
	for want := uint16(0); want < 3; want++ {
		n, err := buf.Read(context.Background(), out)
		require.NoError(t, err)
		var header rtp.Header
		_, err = header.Unmarshal(out[:n])
		require.NoError(t, err)
		assert.Equal(t, want, header.SequenceNumber)
	}
}

func TestBufferReordersOutOfOrderPackets(t *testing.T) {
	// 2 arrives before 1; both must still come out as 0, 1, 2.
	track := &fakeTrack{packets: [][]byte{marshalSeq(t, 0), marshalSeq(t, 2), marshalSeq(t, 1)}}
	buf := New(track)

	out := make([]byte, maxMTU)
	var got []uint16
	for i := 0; i < 3; i++ {
		n, err := buf.Read(context.Background(), out)
		require.NoError(t, err)
		var header rtp.Header
		_, err = header.Unmarshal(out[:n])
		require.NoError(t, err)
		got = append(got, header.SequenceNumber)
	}
	assert.Equal(t, []uint16{0, 1, 2}, got)
}

func TestBufferDropsMalformedPacketAndContinues(t *testing.T) {
	malformed := []byte{0xFF} // too short to be a valid RTP header
	track := &fakeTrack{packets: [][]byte{malformed, marshalSeq(t, 0)}}
	buf := New(track)

	out := make([]byte, maxMTU)
	n, err := buf.Read(context.Background(), out)
	require.NoError(t, err)
	var header rtp.Header
	_, err = header.Unmarshal(out[:n])
	require.NoError(t, err)
	assert.Equal(t, uint16(0), header.SequenceNumber)
}

func TestBufferReturnsTrackError(t *testing.T) {
	track := &fakeTrack{packets: nil}
	buf := New(track)

	_, err := buf.Read(context.Background(), make([]byte, maxMTU))
	assert.True(t, errors.Is(err, io.EOF))
}

func TestBufferResetClearsPendingAndReady(t *testing.T) {
	track := &fakeTrack{packets: [][]byte{marshalSeq(t, 0), marshalSeq(t, 5)}}
	buf := New(track)

	// Seed expected state and a stashed out-of-order packet without
	// draining, then confirm Reset returns everything to the free pool.
	require.NoError(t, buf.receiveOne(context.Background()))
	require.NoError(t, buf.receiveOne(context.Background()))
	assert.NotEmpty(t, buf.pending)

	freeBefore := len(buf.free)
	buf.Reset()
	assert.Empty(t, buf.pending)
	assert.Empty(t, buf.ready)
	assert.False(t, buf.hasExpected)
	assert.Greater(t, len(buf.free), freeBefore)
}

// stuckTrack never returns from Read until unblock is closed, letting a
// test simulate readTimed's goroutine still being in flight after its
// context deadline fires.
type stuckTrack struct {
	unblock chan struct{}
}

func (s *stuckTrack) Read(b []byte) (int, interceptor.Attributes, error) {
	<-s.unblock
	return 0, nil, io.EOF
}

func TestBufferDoesNotRecycleBufferAfterTimeout(t *testing.T) {
	track := &stuckTrack{unblock: make(chan struct{})}
	defer close(track.unblock)
	buf := New(track)

	borrowed := buf.free[len(buf.free)-1]

	ctx, cancel := context.WithTimeout(context.Background(), 0)
	defer cancel()

	freeBefore := len(buf.free)
	err := buf.receiveOne(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// Pool size must not shrink, and the packet handed to the still-running
	// read must not have come back into circulation.
	assert.Equal(t, freeBefore, len(buf.free))
	for _, p := range buf.free {
		assert.NotSame(t, borrowed, p)
	}
}

func TestBufferSkewBeyondWindowResets(t *testing.T) {
	far := marshalSeq(t, bufferCount+10)
	track := &fakeTrack{packets: [][]byte{marshalSeq(t, 0), far}}
	buf := New(track)

	out := make([]byte, maxMTU)
	_, err := buf.Read(context.Background(), out) // consumes seq 0
	require.NoError(t, err)

	_, err = buf.Read(context.Background(), out)
	assert.ErrorIs(t, err, ErrUnableToMaintainReorderBuffer)
}
