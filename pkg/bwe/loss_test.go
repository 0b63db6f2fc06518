package bwe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLossEstimatorProbesWhenLossIsLow(t *testing.T) {
	l := NewLossEstimator()
	result := l.Estimate(1000, 100, 0)
	assert.Equal(t, 1000*lossProbeFactor, result)
}

func TestLossEstimatorBacksOffWhenLossIsHigh(t *testing.T) {
	l := NewLossEstimator()
	// 20% loss: 80 received, 20 lost.
	result := l.Estimate(1000, 80, 20)
	assert.InDelta(t, 1000*(1-0.5*0.2), result, 1e-9)
}

func TestLossEstimatorHoldsInMiddleBand(t *testing.T) {
	l := NewLossEstimator()
	// 5% loss sits strictly between the probe and backoff thresholds.
	result := l.Estimate(1000, 95, 5)
	assert.Equal(t, float64(1000), result)
}

func TestLossEstimatorNoPacketsHoldsRate(t *testing.T) {
	l := NewLossEstimator()
	assert.Equal(t, float64(1000), l.Estimate(1000, 0, 0))
}
