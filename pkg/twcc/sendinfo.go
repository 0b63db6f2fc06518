package twcc

import (
	"sync/atomic"
	"time"
)

// slotCount is the number of u16 TWCC sequence numbers: exactly 65536.
const slotCount = 1 << 16

// SendInfo is a fixed-capacity, lock-free table mapping a 16-bit TWCC
// sequence number to the send time and size of the packet that carried it.
// Slots are overwritten silently on sequence-number wraparound: there is
// no allocation and no locking on the hot egress path.
type SendInfo struct {
	slots [slotCount]atomicSendRecord
}

// atomicSendRecord stores a sendRecord behind two independent atomics so
// Store/Load never need a lock. A torn read (size from one write, time
// from the next) is possible only under concurrent writes to the exact
// same sequence number, which cannot happen: sequence numbers are unique
// per outgoing packet until they wrap 65536 packets later.
type atomicSendRecord struct {
	sendTimeUS atomic.Int64
	sizeBytes  atomic.Uint64
}

// NewSendInfo allocates a new, zeroed send-info table.
func NewSendInfo() *SendInfo {
	return &SendInfo{}
}

// Store records the send time and size of the packet carrying TWCC
// sequence number seq. Safe to call concurrently for different sequence
// numbers; release-ordered so a subsequent Load from another goroutine
// that observes the write happens-after it.
func (s *SendInfo) Store(seq uint16, sendTime Time, sizeBytes uint64) {
	slot := &s.slots[seq]
	slot.sendTimeUS.Store(int64(sendTime))
	slot.sizeBytes.Store(sizeBytes)
}

// StoreNow is a convenience wrapper that stamps seq with the send time
// computed from now relative to sessionStart.
func (s *SendInfo) StoreNow(seq uint16, sessionStart time.Time, now time.Time, sizeBytes uint64) {
	s.Store(seq, FromDuration(now.Sub(sessionStart)), sizeBytes)
}

// Load returns the send time and size last recorded for seq. A loaded
// slot is only meaningful for a sequence number the peer has actually
// acknowledged recently -- stale entries surviving a wraparound produce
// nonsense deltas and must be corroborated against the RTCP feedback by
// the caller (the feedback reader only trusts a slot for a sequence
// number it is currently walking in order).
func (s *SendInfo) Load(seq uint16) (sendTime Time, sizeBytes uint64) {
	slot := &s.slots[seq]
	return Time(slot.sendTimeUS.Load()), slot.sizeBytes.Load()
}
