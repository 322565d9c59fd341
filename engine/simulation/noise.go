package simulation

import (
	"github.com/chewxy/math32"
	"github.com/spaghettifunk/asteroids/engine/math"
)

// noise is seeded 3D value noise on an integer lattice.
type noise struct {
	perm   [512]uint8
	values [256]float32
}

func newNoise(rng *math.Random) *noise {
	n := &noise{}
	for i := range n.values {
		n.values[i] = rng.Float32Range(-1, 1)
		n.perm[i] = uint8(i)
	}
	for i := 255; i > 0; i-- {
		j := rng.IntRange(0, i)
		n.perm[i], n.perm[j] = n.perm[j], n.perm[i]
	}
	copy(n.perm[256:], n.perm[:256])
	return n
}

func (n *noise) lattice(x, y, z int) float32 {
	return n.values[n.perm[int(n.perm[int(n.perm[x&255])+y&255])+z&255]]
}

func smooth(t float32) float32 {
	return t * t * t * (t*(t*6-15) + 10)
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}

func wrap(i, period int) int {
	if period <= 0 {
		return i
	}
	return ((i % period) + period) % period
}

// at returns the noise value at (x, y, z), in [-1, 1]. A positive period
// makes the noise repeat every period units along x and y.
func (n *noise) at(x, y, z float32, period int) float32 {
	fx, fy, fz := math32.Floor(x), math32.Floor(y), math32.Floor(z)
	ix, iy, iz := int(fx), int(fy), int(fz)
	tx, ty, tz := smooth(x-fx), smooth(y-fy), smooth(z-fz)
	x0, x1 := wrap(ix, period), wrap(ix+1, period)
	y0, y1 := wrap(iy, period), wrap(iy+1, period)

	c000 := n.lattice(x0, y0, iz)
	c100 := n.lattice(x1, y0, iz)
	c010 := n.lattice(x0, y1, iz)
	c110 := n.lattice(x1, y1, iz)
	c001 := n.lattice(x0, y0, iz+1)
	c101 := n.lattice(x1, y0, iz+1)
	c011 := n.lattice(x0, y1, iz+1)
	c111 := n.lattice(x1, y1, iz+1)

	return lerp(
		lerp(lerp(c000, c100, tx), lerp(c010, c110, tx), ty),
		lerp(lerp(c001, c101, tx), lerp(c011, c111, tx), ty),
		tz)
}

// fractal sums octaves of doubling frequency, each scaled by persistence,
// normalized back to [-1, 1]. The period doubles with the frequency so every
// octave tiles.
func (n *noise) fractal(x, y, z float32, octaves int, persistence float32, period int) float32 {
	var sum, norm float32
	amplitude, frequency := float32(1), float32(1)
	for o := 0; o < octaves; o++ {
		sum += amplitude * n.at(x*frequency, y*frequency, z*frequency, period)
		norm += amplitude
		amplitude *= persistence
		frequency *= 2
		period *= 2
	}
	if norm == 0 {
		return 0
	}
	return sum / norm
}
