package reorder

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCompareSeqOrdering(t *testing.T) {
	assert.Equal(t, 0, compareSeq(5, 5))
	assert.Equal(t, 1, compareSeq(6, 5))
	assert.Equal(t, -1, compareSeq(5, 6))
}

func TestCompareSeqWrapAround(t *testing.T) {
	// 0 comes right after 65535, not before it.
	assert.Equal(t, 1, compareSeq(0, 65535))
	assert.Equal(t, -1, compareSeq(65535, 0))
}
