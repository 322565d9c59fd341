package math

import (
	m "math"

	"github.com/go-gl/mathgl/mgl32"
	"golang.org/x/exp/rand"
)

// Random is a deterministic generator. Two generators built from the same
// seed produce the same sequence, which keeps generated content identical
// from run to run.
type Random struct {
	r *rand.Rand
}

func NewRandom(seed uint64) *Random {
	return &Random{r: rand.New(rand.NewSource(seed))}
}

// Float32Range returns a value in [min, max).
func (r *Random) Float32Range(min, max float32) float32 {
	return min + r.r.Float32()*(max-min)
}

// IntRange returns a value in [min, max].
func (r *Random) IntRange(min, max int) int {
	return min + r.r.Intn(max-min+1)
}

// Normal returns a normally distributed value with the given mean and deviation.
func (r *Random) Normal(mean, stddev float32) float32 {
	return mean + float32(r.r.NormFloat64())*stddev
}

// UnitVector returns a uniformly distributed direction.
func (r *Random) UnitVector() mgl32.Vec3 {
	z := r.Float32Range(-1, 1)
	phi := r.Float32Range(0, 2*K_PI)
	s := float32(m.Sqrt(float64(1 - z*z)))
	return mgl32.Vec3{
		s * float32(m.Cos(float64(phi))),
		s * float32(m.Sin(float64(phi))),
		z,
	}
}
