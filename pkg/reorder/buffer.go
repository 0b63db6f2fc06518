// Package reorder reassembles an out-of-order RTP stream into in-order raw
// packets for an external depacketizer, within a bounded window of
// preallocated buffers.
package reorder

import (
	"context"
	"errors"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/rtp"
)

const (
	maxMTU      = 1500
	bufferCount = 128
	readTimeout = 5 * time.Second
)

// ErrUnableToMaintainReorderBuffer is returned when the incoming stream's
// skew exceeds the buffer's window: either a packet arrived too far behind
// expected, or too far ahead of it to stash. The caller should request a
// keyframe (PLI/FIR) and may reset the buffer.
var ErrUnableToMaintainReorderBuffer = errors.New("reorder: stream skew exceeds buffer window")

// ErrBufferFull is returned when every preallocated buffer is already
// either in flight or stashed awaiting reordering.
var ErrBufferFull = errors.New("reorder: free buffer pool exhausted")

// timeoutError marks an error from readTimed as having fired before the
// underlying track.Read call returned, rather than after. The goroutine
// behind that call may still be writing into its buffer, so the buffer
// cannot be recycled the way a completed read's can.
type timeoutError struct {
	err error
}

func (e *timeoutError) Error() string { return e.err.Error() }
func (e *timeoutError) Unwrap() error { return e.err }

// TrackReader is the minimal surface of a pion/webrtc TrackRemote this
// buffer reorders; *webrtc.TrackRemote satisfies it directly.
type TrackReader interface {
	Read(b []byte) (int, interceptor.Attributes, error)
}

type packet struct {
	buf []byte
	n   int
}

// Buffer reassembles an out-of-order RTP stream into strictly increasing
// sequence order. It is owned by exactly one reader goroutine; it is not
// safe to call Read concurrently from more than one.
type Buffer struct {
	track TrackReader

	expectedSeq uint16
	hasExpected bool

	pending map[uint16]*packet
	free    []*packet
	ready   []*packet
}

// New builds a reorder buffer over track with a full window of
// preallocated, MTU-sized buffers.
func New(track TrackReader) *Buffer {
	free := make([]*packet, bufferCount)
	for i := range free {
		free[i] = &packet{buf: make([]byte, maxMTU)}
	}
	return &Buffer{
		track:   track,
		pending: make(map[uint16]*packet, bufferCount),
		free:    free,
	}
}

// Reset discards any in-flight reordering state after a timeout or read
// error, so the next packet to arrive establishes a fresh expected
// sequence number.
func (b *Buffer) Reset() {
	for seq, p := range b.pending {
		b.free = append(b.free, p)
		delete(b.pending, seq)
	}
	for _, p := range b.ready {
		b.free = append(b.free, p)
	}
	b.ready = b.ready[:0]
	b.hasExpected = false
}

// Read returns the next in-order raw RTP packet, copied into out. It blocks
// until a contiguous packet is ready, the track errors, or readTimeout
// elapses with no progress, in which case the buffer is reset and the
// caller should consider issuing a PLI.
func (b *Buffer) Read(ctx context.Context, out []byte) (int, error) {
	for len(b.ready) == 0 {
		if err := b.receiveOne(ctx); err != nil {
			return 0, err
		}
	}
	p := b.ready[0]
	b.ready = b.ready[1:]
	n := copy(out, p.buf[:p.n])
	b.free = append(b.free, p)
	return n, nil
}

// receiveOne reads exactly one packet from the track and folds it into
// pending/ready/expected state.
func (b *Buffer) receiveOne(ctx context.Context) error {
	p := b.borrowFree()
	if p == nil {
		return ErrBufferFull
	}

	n, err := b.readTimed(ctx, p.buf)
	if err != nil {
		var timedOut *timeoutError
		if errors.As(err, &timedOut) {
			// p's read goroutine may still be blocked on b.track.Read(p.buf);
			// let it keep that buffer forever rather than hand the same
			// backing array to a concurrent read. Replace it in the pool.
			b.free = append(b.free, &packet{buf: make([]byte, maxMTU)})
			b.Reset()
			return timedOut.err
		}
		b.free = append(b.free, p)
		b.Reset()
		return err
	}
	p.n = n

	var header rtp.Header
	if _, err := header.Unmarshal(p.buf[:n]); err != nil {
		// Malformed packet: drop it and let the caller's next Read retry.
		b.free = append(b.free, p)
		return nil
	}
	seq := header.SequenceNumber

	if !b.hasExpected {
		b.expectedSeq = seq
		b.hasExpected = true
	}

	switch compareSeq(seq, b.expectedSeq) {
	case 0:
		b.ready = append(b.ready, p)
		b.expectedSeq++
		b.drainPending()
	case 1:
		if uint16(seq-b.expectedSeq) >= bufferCount {
			b.free = append(b.free, p)
			b.Reset()
			return ErrUnableToMaintainReorderBuffer
		}
		if old, exists := b.pending[seq]; exists {
			b.free = append(b.free, old)
		}
		b.pending[seq] = p
	default:
		b.free = append(b.free, p)
		return ErrUnableToMaintainReorderBuffer
	}
	return nil
}

// drainPending moves the contiguous run of packets starting at expectedSeq
// from pending into ready, advancing expectedSeq once per packet moved.
func (b *Buffer) drainPending() {
	for {
		p, ok := b.pending[b.expectedSeq]
		if !ok {
			return
		}
		delete(b.pending, b.expectedSeq)
		b.ready = append(b.ready, p)
		b.expectedSeq++
	}
}

func (b *Buffer) borrowFree() *packet {
	n := len(b.free)
	if n == 0 {
		return nil
	}
	p := b.free[n-1]
	b.free = b.free[:n-1]
	return p
}

// readTimed enforces readTimeout on a track.Read call that has no native
// deadline support, by racing it against a timer in a short-lived
// goroutine. The goroutine outlives the timeout if the underlying read
// never returns; this is the same tradeoff Rust's tokio::time::timeout
// makes against a non-cancellable future.
func (b *Buffer) readTimed(ctx context.Context, buf []byte) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, readTimeout)
	defer cancel()

	type result struct {
		n   int
		err error
	}
	ch := make(chan result, 1)
	go func() {
		n, _, err := b.track.Read(buf)
		ch <- result{n: n, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, &timeoutError{err: ctx.Err()}
	case r := <-ch:
		return r.n, r.err
	}
}
