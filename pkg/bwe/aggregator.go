package bwe

import (
	"math"
	"sync"
	"time"

	"github.com/pion-peer/webrtc-peer/pkg/twcc"
)

// Aggregator drives one TWCC feedback report through both estimators and
// publishes the fused minimum to a shared Estimate, once per report.
type Aggregator struct {
	delay    *DelayEstimator
	loss     *LossEstimator
	estimate *Estimate

	mu        sync.Mutex
	delayRate float64
	lossRate  float64
}

// NewAggregator builds an aggregator publishing into estimate, starting
// both component estimators at initialRate bytes/sec.
func NewAggregator(estimate *Estimate, initialRate float64) *Aggregator {
	return &Aggregator{
		delay:     NewDelayEstimator(),
		loss:      NewLossEstimator(),
		estimate:  estimate,
		delayRate: initialRate,
		lossRate:  initialRate,
	}
}

// SetRTT forwards the measured round-trip time to the delay estimator's
// additive-increase branch.
func (a *Aggregator) SetRTT(rttMS float64) {
	a.delay.SetRTT(rttMS)
}

// ProcessReport feeds every packet result from one feedback report into the
// delay estimator, tallies received/lost, then runs one estimation tick and
// publishes the fused minimum. This is the single entry point the feedback
// reader calls once per TWCC RTCP packet.
func (a *Aggregator) ProcessReport(now time.Time, results []twcc.PacketResult) float64 {
	var received, lost uint32
	for _, r := range results {
		if !r.Received {
			lost++
			continue
		}
		received++
		if r.Size == 0 {
			// No corroborating send-info slot: either a stale wraparound
			// entry or a sequence number this peer never stamped.
			continue
		}
		a.delay.Process(r.SendTime, r.RecvTime, r.Size)
	}

	a.mu.Lock()
	a.delayRate = a.delay.Estimate(now, a.delayRate)
	a.lossRate = a.loss.Estimate(a.lossRate, received, lost)
	published := math.Min(a.delayRate, a.lossRate)
	a.mu.Unlock()

	a.estimate.Store(published)
	return published
}
