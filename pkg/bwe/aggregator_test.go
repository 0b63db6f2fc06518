package bwe

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/pion-peer/webrtc-peer/pkg/twcc"
)

func TestAggregatorPublishesFusedMinimum(t *testing.T) {
	estimate := NewEstimate(1000)
	agg := NewAggregator(estimate, 1000)

	// Heavy loss should pull the published rate below the delay
	// estimator's unchanged rate, and the minimum of the two wins.
	results := []twcc.PacketResult{
		{Seq: 0, Received: false},
		{Seq: 1, Received: false},
		{Seq: 2, Received: false},
		{Seq: 3, Received: true, SendTime: twcc.Time(0), RecvTime: twcc.Time(1000), Size: 0},
	}

	published := agg.ProcessReport(time.Now(), results)
	assert.Less(t, published, float64(1000))
	assert.Equal(t, published, estimate.Load())
}

func TestAggregatorIgnoresZeroSizeCorroboration(t *testing.T) {
	estimate := NewEstimate(1000)
	agg := NewAggregator(estimate, 1000)

	// A received packet with no send-info corroboration (Size == 0) must
	// not be fed into the delay estimator's packet-group formation.
	results := []twcc.PacketResult{
		{Seq: 0, Received: true, Size: 0},
	}

	published := agg.ProcessReport(time.Now(), results)
	// The delay estimator never saw a usable sample (Size == 0 means no
	// corroborating send-info slot) so its rate stays flat at 1000, while
	// the loss estimator nudges up to 1050; the fused minimum is 1000.
	assert.Equal(t, float64(1000), published)
}

func TestAggregatorSetRTTForwardsToDelayEstimator(t *testing.T) {
	estimate := NewEstimate(1000)
	agg := NewAggregator(estimate, 1000)
	agg.SetRTT(250)
	assert.Equal(t, 250.0, agg.delay.rttMS)
}
