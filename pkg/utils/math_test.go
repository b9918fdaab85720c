package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeL2(t *testing.T) {
	x := []float32{3, 4}
	assert.InDelta(t, 5.0, NormalizeL2(x), 1e-9)
	assert.InDelta(t, 0.6, x[0], 1e-6)
	assert.InDelta(t, 0.8, x[1], 1e-6)
	assert.InDelta(t, 1.0, L2Norm(x), 1e-6)

	zero := []float32{0, 0, 0}
	assert.Equal(t, 0.0, NormalizeL2(zero))
	assert.Equal(t, []float32{0, 0, 0}, zero)
}
