package simulation

import (
	"fmt"

	"github.com/chewxy/math32"
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine/assets/loaders"
	"github.com/spaghettifunk/asteroids/engine/math"
	"github.com/spaghettifunk/asteroids/engine/systems"
)

// SkyboxTextureName is the name of the generated skybox atlas.
const SkyboxTextureName = "skybox"

func toByte(v float32) byte {
	return byte(math.Clamp(v, 0, 1)*255 + 0.5)
}

// fillNoise writes tiling fractal noise into an RGBA8 image. scale is the
// lattice cells per image edge; strength is how far the value swings around
// mid grey. Alpha is opaque.
func fillNoise(img *loaders.Image, n *noise, z, persistence float32, scale int, strength float32, rgb [3]float32) {
	w, h := int(img.Width), int(img.Height)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			u := float32(x) / float32(w) * float32(scale)
			v := float32(y) / float32(h) * float32(scale)
			value := 0.5 + 0.5*strength*n.fractal(u, v, z, 5, persistence, scale)
			off := (y*w + x) * 4
			img.Pixels[off+0] = toByte(value * rgb[0])
			img.Pixels[off+1] = toByte(value * rgb[1])
			img.Pixels[off+2] = toByte(value * rgb[2])
			img.Pixels[off+3] = 255
		}
	}
}

func newImage(name string, w, h int) *loaders.Image {
	return &loaders.Image{
		Name:   name,
		Width:  uint32(w),
		Height: uint32(h),
		Pixels: make([]byte, w*h*4),
	}
}

type rockTexture struct {
	noise       *noise
	tint        float32
	z           float32
	persistence float32
	scale       int
	strength    float32
}

// CreateTextures generates count tiling rock textures of dim x dim pixels.
func CreateTextures(count, dim int, rng *math.Random, jobs *systems.JobSystem) ([]*loaders.Image, error) {
	params := make([]rockTexture, count)
	for i := range params {
		params[i] = rockTexture{
			noise:       newNoise(rng),
			tint:        rng.Float32Range(0.85, 1.0),
			z:           rng.Float32Range(0, 64),
			persistence: rng.Float32Range(0.45, 0.65),
			scale:       rng.IntRange(4, 8),
			strength:    rng.Float32Range(0.6, 1.0),
		}
	}

	out := make([]*loaders.Image, count)
	err := jobs.ForEach(count, func(i int) error {
		p := params[i]
		img := newImage(fmt.Sprintf("asteroid%02d", i), dim, dim)
		fillNoise(img, p.noise, p.z, p.persistence, p.scale, p.strength,
			[3]float32{1, p.tint, p.tint * p.tint})
		out[i] = img
		return nil
	})
	if err != nil {
		return nil, errors.Wrap(err, "generating textures")
	}
	return out, nil
}

// CreateSkyboxTexture generates a star field for the six cube faces, laid out
// left to right in +X, -X, +Y, -Y, +Z, -Z order.
func CreateSkyboxTexture(dim int, rng *math.Random) *loaders.Image {
	img := newImage(SkyboxTextureName, 6*dim, dim)
	width := 6 * dim
	n := newNoise(rng)
	for face := 0; face < 6; face++ {
		for y := 0; y < dim; y++ {
			for x := 0; x < dim; x++ {
				u, v := float32(x)/float32(dim)*4, float32(y)/float32(dim)*4
				// faint dust
				d := math32.Max(0, n.fractal(u, v, float32(face)*7, 4, 0.5, 0))
				off := (y*width + face*dim + x) * 4
				img.Pixels[off+0] = toByte(0.02 + 0.06*d)
				img.Pixels[off+1] = toByte(0.02 + 0.04*d)
				img.Pixels[off+2] = toByte(0.05 + 0.10*d)
				img.Pixels[off+3] = 255
			}
		}
		stars := dim * dim / 300
		for s := 0; s < stars; s++ {
			x, y := rng.IntRange(0, dim-1), rng.IntRange(0, dim-1)
			b := rng.Float32Range(0.3, 1.0)
			off := (y*width + face*dim + x) * 4
			img.Pixels[off+0] = toByte(b)
			img.Pixels[off+1] = toByte(b)
			img.Pixels[off+2] = toByte(math32.Min(1, b*1.1))
		}
	}
	return img
}
