package bwe

// Loss-based estimator constants, from
// https://datatracker.ietf.org/doc/html/draft-ietf-rmcat-gcc-02#section-6
const (
	lossProbeThreshold  = 0.02
	lossBackoffThreshold = 0.10
	lossProbeFactor     = 1.05
)

// LossEstimator is a fraction-loss-based multiplicative controller: it only
// ever scales the rate it is given, it never forms its own baseline.
type LossEstimator struct{}

// NewLossEstimator returns a ready-to-use loss estimator; it carries no
// state between calls beyond what Estimate is given.
func NewLossEstimator() *LossEstimator {
	return &LossEstimator{}
}

// Estimate scales current by the fraction lost of received+lost packets
// observed in one feedback report.
func (LossEstimator) Estimate(current float64, received, lost uint32) float64 {
	total := received + lost
	if total == 0 {
		return current
	}
	fractionLost := float64(lost) / float64(total)
	switch {
	case fractionLost < lossProbeThreshold:
		return current * lossProbeFactor
	case fractionLost > lossBackoffThreshold:
		return current * (1 - 0.5*fractionLost)
	default:
		return current
	}
}
