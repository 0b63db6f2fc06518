package bwe

import (
	"math"

	"github.com/pion-peer/webrtc-peer/pkg/twcc"
)

const (
	stateNoiseCovarianceQ         = 0.01
	initialSystemErrorCovariance  = 0.1
	chiAdaptationRate             = 0.01
	initialDelayThresholdUS       = 12500.0
	overuseTimeThresholdUS        = 10000
	thresholdGainUp               = 0.01
	thresholdGainDown             = 0.00018
	thresholdUpdateGateUS         = 15000.0
	delayThresholdMinUS           = 6000.0
	delayThresholdMaxUS           = 600000.0
)

// kalmanFilter tracks the inter-group delay variation m_hat with the
// single-state Kalman filter from the GCC draft, adapted to microsecond
// inputs.
type kalmanFilter struct {
	mHat    float64
	e       float64
	varVHat float64
}

func newKalmanFilter(interGroupDelay int64) *kalmanFilter {
	return &kalmanFilter{mHat: float64(interGroupDelay), e: initialSystemErrorCovariance}
}

// update advances the filter with one new inter-group delay observation and
// returns the pre-update m_hat, which the detector needs to tell a settling
// overshoot from a growing one.
func (k *kalmanFilter) update(interGroupDelay, minSendIntervalUS int64) float64 {
	alpha := math.Pow(1-chiAdaptationRate, 30*float64(minSendIntervalUS)/1e6)

	z := float64(interGroupDelay) - k.mHat
	z2 := z * z

	k.varVHat = math.Max(1, alpha*k.varVHat+(1-alpha)*z2)
	gain := (k.e + stateNoiseCovarianceQ) / (k.varVHat + k.e + stateNoiseCovarianceQ)

	prev := k.mHat
	k.mHat += gain * z
	k.e = (1 - gain) * (k.e + stateNoiseCovarianceQ)
	return prev
}

// delayThreshold is the adaptive over-use threshold the filter's output is
// compared against.
type delayThreshold struct {
	value float64
}

func newDelayThreshold() *delayThreshold {
	return &delayThreshold{value: initialDelayThresholdUS}
}

func (d *delayThreshold) update(interArrivalUS int64, mHat float64) {
	delta := math.Abs(mHat) - d.value
	if delta > thresholdUpdateGateUS {
		return
	}
	gain := thresholdGainUp
	if delta < 0 {
		gain = thresholdGainDown
	}
	d.value += float64(interArrivalUS) * gain * delta
	d.value = math.Min(delayThresholdMaxUS, math.Max(delayThresholdMinUS, d.value))
}

// NetworkCondition classifies the observed trend in queuing delay.
type NetworkCondition int

const (
	ConditionNormal NetworkCondition = iota
	ConditionUnderuse
	ConditionOveruse
)

func (c NetworkCondition) String() string {
	switch c {
	case ConditionUnderuse:
		return "underuse"
	case ConditionOveruse:
		return "overuse"
	default:
		return "normal"
	}
}

// delayDetector classifies consecutive Kalman observations into
// NetworkConditions, requiring a 10 ms persistence of positive m_hat breach
// before declaring Overuse so a single noisy sample doesn't trip it.
type delayDetector struct {
	threshold       *delayThreshold
	filter          *kalmanFilter
	overuseStart    twcc.Time
	overuseStartSet bool
}

func newDelayDetector(interGroupDelay int64) *delayDetector {
	return &delayDetector{threshold: newDelayThreshold(), filter: newKalmanFilter(interGroupDelay)}
}

func (d *delayDetector) detect(interGroupDelay, minSendInterval, interArrival int64, arrivalTime twcc.Time) NetworkCondition {
	prevM := d.filter.update(interGroupDelay, minSendInterval)
	m := d.filter.mHat
	d.threshold.update(interArrival, m)

	switch {
	case m > d.threshold.value:
		if m < prevM {
			d.overuseStartSet = false
			return ConditionNormal
		}
		if !d.overuseStartSet {
			d.overuseStart = arrivalTime
			d.overuseStartSet = true
			return ConditionNormal
		}
		if arrivalTime.SmallDeltaSub(d.overuseStart) >= overuseTimeThresholdUS {
			return ConditionOveruse
		}
		return ConditionNormal
	case m < -d.threshold.value:
		d.overuseStartSet = false
		return ConditionUnderuse
	default:
		d.overuseStartSet = false
		return ConditionNormal
	}
}
