// Package twcc implements the send-side half of transport-wide congestion
// control: stamping outgoing RTP packets with a TWCC sequence number and
// send time, and parsing the TWCC RTCP feedback that comes back.
package twcc

import (
	"time"
)

// domain is the half-open range TwccTime values live in: [0, domain).
// A TWCC reference_time field is a 24-bit count of 64ms ticks, so the
// largest representable timestamp is (1<<24)*64000 microseconds.
const domain = int64(1<<24) * 64000

// wrapThreshold is half the domain. Any raw difference larger than this in
// magnitude is assumed to be the short way around the wrap point.
const wrapThreshold = domain / 2

// Time is a wrap-around-aware microsecond timestamp confined to
// [0, 1_073_741_824_000). Values are only meaningful when compared against
// another Time known to be within half the domain.
type Time int64

// FromDuration builds a Time from a wall-clock duration, folding it into
// the timestamp domain.
func FromDuration(d time.Duration) Time {
	us := d.Microseconds() % domain
	if us < 0 {
		us += domain
	}
	return Time(us)
}

// FromReferenceTime builds a Time from a TWCC RTCP packet's reference_time
// field, a 24-bit count of 64ms ticks. The draft calls reference_time
// signed, but implementations in the wild treat it as unsigned.
func FromReferenceTime(referenceTime int32) Time {
	return Time(int64(referenceTime) * 64000)
}

// WithRecvDelta advances t by a TWCC recv_delta already decoded to
// microseconds by pion/rtcp (both the small-delta and large-delta wire
// forms are decoded to a correctly signed microsecond value upstream, so
// the caller does not need to distinguish them here).
func (t Time) WithRecvDelta(deltaUS int64) Time {
	val := int64(t) + deltaUS
	if val < 0 {
		val += domain
	} else if val >= domain {
		val -= domain
	}
	return Time(val)
}

// SmallDeltaSub computes t-rhs assuming the two values are close together,
// folding the result into (-domain/2, domain/2] so that subtraction across
// the wrap point still yields the intuitive signed delta.
func (t Time) SmallDeltaSub(rhs Time) int64 {
	val := int64(t) - int64(rhs)
	switch {
	case val <= -wrapThreshold:
		val += domain
	case val > wrapThreshold:
		val -= domain
	}
	return val
}

// Before reports whether t is ordered strictly before other, using the
// same half-domain assumption as SmallDeltaSub.
func (t Time) Before(other Time) bool {
	return t.SmallDeltaSub(other) < 0
}

// After reports whether t is ordered strictly after other.
func (t Time) After(other Time) bool {
	return t.SmallDeltaSub(other) > 0
}
