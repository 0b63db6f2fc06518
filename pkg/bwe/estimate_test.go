package bwe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEstimateStoreLoad(t *testing.T) {
	e := NewEstimate(1000)
	assert.Equal(t, float64(1000), e.Load())

	e.Store(2000)
	assert.Equal(t, float64(2000), e.Load())
}

func TestWatcherChangedOnlyAfterStore(t *testing.T) {
	e := NewEstimate(1000)
	w := e.Watch()

	v, changed := w.Changed()
	assert.Equal(t, float64(1000), v)
	assert.False(t, changed, "a fresh watcher must report no change before any new Store")

	e.Store(1500)
	v, changed = w.Changed()
	assert.Equal(t, float64(1500), v)
	assert.True(t, changed)

	// A second read without an intervening Store reports no further change.
	_, changed = w.Changed()
	assert.False(t, changed)
}

func TestMultipleWatchersIndependent(t *testing.T) {
	e := NewEstimate(1000)
	w1 := e.Watch()
	e.Store(2000)
	w2 := e.Watch()

	_, changed1 := w1.Changed()
	assert.True(t, changed1)

	_, changed2 := w2.Changed()
	assert.False(t, changed2, "a watcher created after the last Store sees no change yet")
}
