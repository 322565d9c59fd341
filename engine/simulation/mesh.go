package simulation

import (
	"github.com/chewxy/math32"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/asteroids/engine/math"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
	"github.com/spaghettifunk/asteroids/engine/systems"
)

type Mesh struct {
	Vertices []metadata.Vertex
	Indices  []metadata.IndexType
}

func position(v metadata.Vertex) mgl32.Vec3 {
	return mgl32.Vec3{v.X, v.Y, v.Z}
}

// CreateIcosahedron returns the 12 vertex, 20 face icosahedron. Faces are
// counter-clockwise seen from outside.
func CreateIcosahedron() Mesh {
	t := (1 + math32.Sqrt(5)) / 2
	return Mesh{
		Vertices: []metadata.Vertex{
			{X: -1, Y: t}, {X: 1, Y: t}, {X: -1, Y: -t}, {X: 1, Y: -t},
			{Y: -1, Z: t}, {Y: 1, Z: t}, {Y: -1, Z: -t}, {Y: 1, Z: -t},
			{X: t, Z: -1}, {X: t, Z: 1}, {X: -t, Z: -1}, {X: -t, Z: 1},
		},
		Indices: []metadata.IndexType{
			0, 11, 5, 0, 5, 1, 0, 1, 7, 0, 7, 10, 0, 10, 11,
			1, 5, 9, 5, 11, 4, 11, 10, 2, 10, 7, 6, 7, 1, 8,
			3, 9, 4, 3, 4, 2, 3, 2, 6, 3, 6, 8, 3, 8, 9,
			4, 9, 5, 2, 4, 11, 6, 2, 10, 8, 6, 7, 9, 8, 1,
		},
	}
}

// subdivide splits every triangle of indices into four. Edge midpoints are
// appended to vertices, so the previous level keeps indexing a prefix of the
// vertex array.
func subdivide(vertices []metadata.Vertex, indices []metadata.IndexType) ([]metadata.Vertex, []metadata.IndexType) {
	midpoints := make(map[[2]metadata.IndexType]metadata.IndexType, len(indices))
	midpoint := func(a, b metadata.IndexType) metadata.IndexType {
		if a > b {
			a, b = b, a
		}
		key := [2]metadata.IndexType{a, b}
		if i, ok := midpoints[key]; ok {
			return i
		}
		va, vb := vertices[a], vertices[b]
		i := metadata.IndexType(len(vertices))
		vertices = append(vertices, metadata.Vertex{
			X: (va.X + vb.X) / 2,
			Y: (va.Y + vb.Y) / 2,
			Z: (va.Z + vb.Z) / 2,
		})
		midpoints[key] = i
		return i
	}

	out := make([]metadata.IndexType, 0, 4*len(indices))
	for f := 0; f+2 < len(indices); f += 3 {
		a, b, c := indices[f], indices[f+1], indices[f+2]
		ab, bc, ca := midpoint(a, b), midpoint(b, c), midpoint(c, a)
		out = append(out,
			a, ab, ca,
			b, bc, ab,
			c, ca, bc,
			ab, bc, ca)
	}
	return vertices, out
}

func spherify(vertices []metadata.Vertex, radius float32) {
	for i := range vertices {
		p := position(vertices[i]).Normalize().Mul(radius)
		vertices[i].X, vertices[i].Y, vertices[i].Z = p[0], p[1], p[2]
	}
}

// computeAverageNormals sets every vertex normal to the normalized sum of the
// normals of the faces that share it.
func computeAverageNormals(vertices []metadata.Vertex, indices []metadata.IndexType) {
	normals := make([]mgl32.Vec3, len(vertices))
	for f := 0; f+2 < len(indices); f += 3 {
		a, b, c := indices[f], indices[f+1], indices[f+2]
		pa := position(vertices[a])
		n := position(vertices[b]).Sub(pa).Cross(position(vertices[c]).Sub(pa))
		// unnormalized, so larger faces weigh more
		normals[a] = normals[a].Add(n)
		normals[b] = normals[b].Add(n)
		normals[c] = normals[c].Add(n)
	}
	for i, n := range normals {
		if n.Len() > 0 {
			n = n.Normalize()
		}
		vertices[i].NX, vertices[i].NY, vertices[i].NZ = n[0], n[1], n[2]
	}
}

// VertexCount is the vertex count of a geosphere subdivided levels times.
func VertexCount(levels int) int {
	faces := 20
	for l := 0; l < levels; l++ {
		faces *= 4
	}
	return faces/2 + 2
}

// CreateGeospheres builds a unit sphere at every subdivision level from 0 to
// levels. The vertices are shared; the index lists are concatenated and
// offsets[l]..offsets[l+1] is the range of level l.
func CreateGeospheres(levels int) (Mesh, []uint32) {
	m := CreateIcosahedron()
	offsets := make([]uint32, levels+2)
	var indices []metadata.IndexType
	level := m.Indices
	for l := 0; l <= levels; l++ {
		offsets[l] = uint32(len(indices))
		indices = append(indices, level...)
		if l < levels {
			m.Vertices, level = subdivide(m.Vertices, level)
		}
	}
	offsets[levels+1] = uint32(len(indices))

	spherify(m.Vertices, 1)
	computeAverageNormals(m.Vertices, level)
	m.Indices = indices
	return m, offsets
}

type displacement struct {
	noise       *noise
	amplitude   float32
	frequency   float32
	persistence float32
}

// CreateAsteroidMeshes displaces count copies of the geosphere with seeded
// fractal noise. Every copy has VertexCount(levels) vertices; the index
// lists are shared and relative to the start of a copy. The random draws
// happen up front so the result does not depend on how jobs are scheduled.
func CreateAsteroidMeshes(levels, count int, rng *math.Random, jobs *systems.JobSystem) (Mesh, []uint32, error) {
	base, offsets := CreateGeospheres(levels)
	finest := base.Indices[offsets[levels]:offsets[levels+1]]
	perMesh := len(base.Vertices)

	params := make([]displacement, count)
	for i := range params {
		params[i] = displacement{
			noise:       newNoise(rng),
			amplitude:   rng.Float32Range(0.15, 0.35),
			frequency:   rng.Float32Range(1.0, 1.8),
			persistence: rng.Float32Range(0.4, 0.6),
		}
	}

	out := Mesh{
		Vertices: make([]metadata.Vertex, perMesh*count),
		Indices:  base.Indices,
	}
	err := jobs.ForEach(count, func(i int) error {
		d := params[i]
		dst := out.Vertices[i*perMesh : (i+1)*perMesh]
		for j, v := range base.Vertices {
			p := position(v)
			q := p.Mul(d.frequency)
			r := 1 + d.amplitude*d.noise.fractal(q[0]+8, q[1]+8, q[2]+8, 4, d.persistence, 0)
			p = p.Mul(r)
			dst[j] = metadata.Vertex{X: p[0], Y: p[1], Z: p[2]}
		}
		computeAverageNormals(dst, finest)
		return nil
	})
	if err != nil {
		return Mesh{}, nil, errors.Wrap(err, "generating asteroid meshes")
	}
	return out, offsets, nil
}

// CreateSkyboxMesh returns the 36 vertices of a unit cube seen from inside.
// Face is the cube face index in +X, -X, +Y, -Y, +Z, -Z order and U, V are
// face-local.
func CreateSkyboxMesh() []metadata.SkyboxVertex {
	faces := [6][3]mgl32.Vec3{
		// normal, u axis, v axis
		{{1, 0, 0}, {0, 0, -1}, {0, -1, 0}},
		{{-1, 0, 0}, {0, 0, 1}, {0, -1, 0}},
		{{0, 1, 0}, {1, 0, 0}, {0, 0, 1}},
		{{0, -1, 0}, {1, 0, 0}, {0, 0, -1}},
		{{0, 0, 1}, {1, 0, 0}, {0, -1, 0}},
		{{0, 0, -1}, {-1, 0, 0}, {0, -1, 0}},
	}
	corners := [6][2]float32{{0, 0}, {1, 0}, {1, 1}, {0, 0}, {1, 1}, {0, 1}}

	out := make([]metadata.SkyboxVertex, 0, metadata.SKYBOX_VERTEX_COUNT)
	for f, axes := range faces {
		for _, uv := range corners {
			p := axes[0].
				Add(axes[1].Mul(2*uv[0] - 1)).
				Add(axes[2].Mul(2*uv[1] - 1))
			out = append(out, metadata.SkyboxVertex{
				X: p[0], Y: p[1], Z: p[2],
				U: uv[0], V: uv[1],
				Face: float32(f),
			})
		}
	}
	return out
}
