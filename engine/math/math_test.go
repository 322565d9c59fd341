package math

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAlign(t *testing.T) {
	assert.Equal(t, uint64(0), Align[uint64](0, 256))
	assert.Equal(t, uint64(256), Align[uint64](1, 256))
	assert.Equal(t, uint64(256), Align[uint64](256, 256))
	assert.Equal(t, uint64(512), Align[uint64](257, 256))
	assert.Equal(t, uint32(13), Align[uint32](13, 0))
	assert.True(t, IsPowerOfTwo[uint64](256))
	assert.False(t, IsPowerOfTwo[uint64](96))
}

func TestClampAndDivCeil(t *testing.T) {
	assert.Equal(t, 3, Clamp(7, 0, 3))
	assert.Equal(t, float32(0.5), Clamp(float32(0.5), 0, 1))
	assert.Equal(t, 12500, DivCeil(50000, 4))
	assert.Equal(t, 3, DivCeil(7, 3))
}

func TestRandomIsDeterministic(t *testing.T) {
	a, b := NewRandom(1337), NewRandom(1337)
	for i := 0; i < 100; i++ {
		assert.Equal(t, a.Float32Range(-5, 5), b.Float32Range(-5, 5))
	}
	v := a.UnitVector()
	assert.InDelta(t, 1.0, v.Len(), 1e-4)
	n := a.IntRange(3, 4)
	assert.True(t, n == 3 || n == 4)
}
