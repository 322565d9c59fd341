package math

import "golang.org/x/exp/constraints"

const (
	K_PI float32 = 3.14159265358979323846
	// Multiplier used to convert degrees to radians.
	K_DEG2RAD_MULTIPLIER float32 = K_PI / 180.0
	// Multiplier used to convert seconds to milliseconds.
	K_SEC_TO_MS_MULTIPLIER float64 = 1000.0
)

// Clamp returns the value `f` clamped to the range [low, high].
// It works for any numeric type (integers and floats).
func Clamp[T constraints.Ordered](f, low, high T) T {
	if f < low {
		return low
	}
	if f > high {
		return high
	}
	return f
}

// Align rounds v up to the next multiple of alignment. Alignment must be a
// power of two.
func Align[T constraints.Unsigned](v, alignment T) T {
	if alignment == 0 {
		return v
	}
	return (v + alignment - 1) &^ (alignment - 1)
}

// IsPowerOfTwo reports whether v is a non-zero power of two.
func IsPowerOfTwo[T constraints.Unsigned](v T) bool {
	return v != 0 && v&(v-1) == 0
}

// DivCeil divides a by b rounding up.
func DivCeil[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}
