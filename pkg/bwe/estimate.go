// Package bwe implements the bandwidth estimation side of the congestion
// control loop: a delay-based estimator in the Google Congestion Control
// style, a loss-based estimator, and the aggregator that fuses the two into
// a single published BandwidthEstimate.
package bwe

import (
	"math"
	"sync/atomic"
)

// Estimate is a single-producer/multi-consumer watchable bytes-per-second
// cell. Readers on the hot pacing path call Watcher.Changed to pick up a new
// value only when one has actually been published, avoiding a load on every
// packet.
type Estimate struct {
	bits    atomic.Uint64
	version atomic.Uint64
}

// NewEstimate creates an Estimate starting at initial bytes/sec.
func NewEstimate(initial float64) *Estimate {
	e := &Estimate{}
	e.bits.Store(math.Float64bits(initial))
	return e
}

// Store publishes a new value, bumping the version so existing Watchers
// observe a change.
func (e *Estimate) Store(v float64) {
	e.bits.Store(math.Float64bits(v))
	e.version.Add(1)
}

// Load returns the current value without consuming a Watcher's change flag.
func (e *Estimate) Load() float64 {
	return math.Float64frombits(e.bits.Load())
}

// Watcher tracks whether the Estimate it was created from has changed since
// the last call to Changed.
type Watcher struct {
	e    *Estimate
	seen uint64
}

// Watch returns a Watcher seeded at the Estimate's current version, so the
// first Changed call reports no change until a subsequent Store.
func (e *Estimate) Watch() *Watcher {
	return &Watcher{e: e, seen: e.version.Load()}
}

// Changed reports the current value and whether it differs from the value
// last observed through this Watcher.
func (w *Watcher) Changed() (float64, bool) {
	v := w.e.version.Load()
	if v == w.seen {
		return w.e.Load(), false
	}
	w.seen = v
	return w.e.Load(), true
}
