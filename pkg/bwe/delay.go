package bwe

import (
	"math"
	"sync"
	"time"

	"github.com/pion-peer/webrtc-peer/pkg/twcc"
)

const (
	decreaseRateFactor      = 0.85
	estimatorReactionTimeMS = 100.0
	// defaultRTTMS is used until the first valid RTCP receiver report is
	// seen, per the RTT-source open question: a finite response time beats
	// treating an unmeasured RTT as zero.
	defaultRTTMS = 100.0
	// convergenceAlpha smooths the running mean/variance of published
	// estimates used to tell a settled rate from one still climbing, the
	// 3-sigma near-max test from the rmcat GCC draft's AIMD controller.
	convergenceAlpha = 0.05
)

// DelayEstimator implements the delay-based half of the congestion
// controller: packet-group formation, the Kalman-filtered arrival-time
// model, the adaptive over-use threshold, and the AIMD rate controller
// built on top of them. All mutable state is behind a single mutex, taken
// once per Process observation and once per Estimate tick; the observations
// of one feedback report are not processed under a single hold of it.
type DelayEstimator struct {
	mu sync.Mutex

	prevGroup *packetGroup
	currGroup *packetGroup
	history   *history
	detector  *delayDetector
	condition NetworkCondition

	rttMS float64

	lastUpdate    time.Time
	hasLastUpdate bool

	avgRate         float64
	varRate         float64
	rateInitialized bool
}

// NewDelayEstimator returns an estimator with no packet groups yet formed.
func NewDelayEstimator() *DelayEstimator {
	return &DelayEstimator{history: newHistory(), condition: ConditionNormal, rttMS: defaultRTTMS}
}

// SetRTT updates the round-trip time used by the additive-increase branch,
// typically recomputed from each incoming RTCP receiver report.
func (d *DelayEstimator) SetRTT(rttMS float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rttMS = rttMS
}

// Condition reports the current network condition classification, mainly
// for tests and diagnostics.
func (d *DelayEstimator) Condition() NetworkCondition {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.condition
}

// Process feeds one (departure, arrival, size) observation recovered from
// TWCC feedback into packet-group formation.
func (d *DelayEstimator) Process(departure, arrival twcc.Time, size uint64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	newGroup := false
	switch {
	case d.currGroup == nil:
		newGroup = true
	case departure.SmallDeltaSub(d.currGroup.earliestDeparture) < 0:
		// Reordered relative to the current group; drop it.
		return
	case d.currGroup.belongsTo(departure, arrival):
		d.currGroup.add(departure, arrival, size)
	default:
		newGroup = true
	}

	if newGroup {
		d.sealCurrentGroup()
		d.prevGroup = d.currGroup
		d.currGroup = newPacketGroup(departure, arrival, size)
	}
}

// sealCurrentGroup pushes the about-to-be-replaced current group into
// history and re-runs the Kalman filter and over-use detector against it.
func (d *DelayEstimator) sealCurrentGroup() {
	if d.currGroup == nil || d.prevGroup == nil {
		return
	}

	interDeparture := d.currGroup.interDeparture(d.prevGroup)
	d.history.addGroup(d.currGroup, interDeparture)

	interArrival := d.currGroup.interArrival(d.prevGroup)
	interGroupDelay := interArrival - interDeparture

	if d.detector == nil {
		d.detector = newDelayDetector(interGroupDelay)
		return
	}
	minSendInterval, ok := d.history.smallestSendInterval()
	if !ok {
		return
	}
	d.condition = d.detector.detect(interGroupDelay, minSendInterval, interArrival, d.currGroup.arrival)
}

// Estimate runs one AIMD controller tick against the current published rate
// and returns the new delay-based rate. Once that rate reaches 1.5x the
// observed received rate, it is reset to the received rate itself.
func (d *DelayEstimator) Estimate(now time.Time, current float64) float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	var result float64
	switch d.condition {
	case ConditionUnderuse:
		if d.nearConverged(current) {
			result = d.additiveIncrease(now, current)
		} else {
			result = d.multiplicativeIncrease(now, current)
		}
	case ConditionOveruse:
		result = current * decreaseRateFactor
	default:
		result = current
	}

	d.lastUpdate = now
	d.hasLastUpdate = true
	d.updateConvergence(result)

	if recv, ok := d.history.receivedBandwidthBytesPerSec(); ok && result >= 1.5*recv {
		result = recv
	}
	return result
}

func (d *DelayEstimator) timeSinceLastUpdateMS(now time.Time) float64 {
	if !d.hasLastUpdate {
		return float64(burstTimeUS) / 1000
	}
	return float64(now.Sub(d.lastUpdate).Microseconds()) / 1000
}

func (d *DelayEstimator) multiplicativeIncrease(now time.Time, current float64) float64 {
	elapsedSec := d.timeSinceLastUpdateMS(now) / 1000
	eta := math.Pow(1.08, math.Min(1, elapsedSec))
	return current * eta
}

func (d *DelayEstimator) additiveIncrease(now time.Time, current float64) float64 {
	responseTimeMS := estimatorReactionTimeMS + d.rttMS
	alpha := 0.5 * math.Min(1, d.timeSinceLastUpdateMS(now)/responseTimeMS)
	return current + math.Max(125, alpha*d.history.averagePacketSizeBytes())
}

// nearConverged is the standard 3-sigma test for whether the estimate has
// settled near its historical mean, deciding between the gentler additive
// increase and the faster multiplicative one.
func (d *DelayEstimator) nearConverged(current float64) bool {
	if !d.rateInitialized {
		return false
	}
	return math.Abs(current-d.avgRate) < 3*math.Sqrt(d.varRate)
}

func (d *DelayEstimator) updateConvergence(rate float64) {
	if !d.rateInitialized {
		d.avgRate = rate
		d.varRate = 0
		d.rateInitialized = true
		return
	}
	diff := rate - d.avgRate
	d.avgRate += convergenceAlpha * diff
	d.varRate += convergenceAlpha * (diff*diff - d.varRate)
}
