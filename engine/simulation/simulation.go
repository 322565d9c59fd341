// Package simulation generates the asteroid field and moves it every frame.
// Meshes and textures are procedural and derived from a single seed, so the
// field is identical from run to run.
package simulation

import (
	"runtime"

	"github.com/chewxy/math32"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/spaghettifunk/asteroids/engine/assets/loaders"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/math"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
	"github.com/spaghettifunk/asteroids/engine/systems"
)

const (
	ORBIT_RADIUS float32 = 450
	DISC_RADIUS  float32 = 120
	MIN_SCALE    float32 = 0.2

	// Highest level that keeps 16 bit indices addressing a whole mesh.
	maxSubdivLevels = 6
	// Scales scale/distance so that a body covering about 5% of the
	// view distance gets the finest level.
	lodBias float32 = 1280
)

type Config struct {
	Asteroids    int    `toml:"asteroids"`
	Meshes       int    `toml:"unique_meshes"`
	SubdivLevels int    `toml:"subdiv_levels"`
	Textures     int    `toml:"textures"`
	TextureDim   int    `toml:"texture_dim"`
	Seed         uint64 `toml:"seed"`
}

func DefaultConfig() Config {
	return Config{
		Asteroids:    metadata.NUM_ASTEROIDS,
		Meshes:       metadata.NUM_UNIQUE_MESHES,
		SubdivLevels: metadata.MESH_MAX_SUBDIV_LEVELS,
		Textures:     metadata.NUM_UNIQUE_TEXTURES,
		TextureDim:   metadata.TEXTURE_DIM,
		Seed:         1337,
	}
}

func (c Config) Validate() error {
	switch {
	case c.Asteroids < 0:
		return errors.Newf("asteroid count %d is negative", c.Asteroids)
	case c.Meshes < 1:
		return errors.Newf("need at least one mesh, got %d", c.Meshes)
	case c.Textures < 1:
		return errors.Newf("need at least one texture, got %d", c.Textures)
	case c.TextureDim < 1:
		return errors.Newf("texture size %d is invalid", c.TextureDim)
	case c.SubdivLevels < 0 || c.SubdivLevels > maxSubdivLevels:
		return errors.Newf("subdivision levels must be within [0, %d], got %d", maxSubdivLevels, c.SubdivLevels)
	}
	return nil
}

// AsteroidStatic holds the per-body values fixed at creation.
type AsteroidStatic struct {
	SurfaceColor  mgl32.Vec3
	DeepColor     mgl32.Vec3
	SpinAxis      mgl32.Vec3
	Scale         float32
	SpinVelocity  float32
	OrbitVelocity float32
	VertexStart   uint32
	TextureIndex  uint32
}

type Simulation struct {
	config       Config
	static       []AsteroidStatic
	draws        metadata.DrawList
	meshes       Mesh
	indexOffsets []uint32
	vertsPerMesh uint32
	textures     []*loaders.Image
	skybox       *loaders.Image
}

func New(config Config) (*Simulation, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	clock := core.NewClock()
	clock.Start()

	rng := math.NewRandom(config.Seed)
	s := &Simulation{
		config:       config,
		vertsPerMesh: uint32(VertexCount(config.SubdivLevels)),
	}
	jobs, err := systems.NewJobSystem(runtime.NumCPU(), config.Meshes+config.Textures)
	if err != nil {
		return nil, err
	}
	defer jobs.Shutdown()

	s.meshes, s.indexOffsets, err = CreateAsteroidMeshes(config.SubdivLevels, config.Meshes, rng, jobs)
	if err != nil {
		return nil, err
	}
	s.textures, err = CreateTextures(config.Textures, config.TextureDim, rng, jobs)
	if err != nil {
		return nil, err
	}
	s.skybox = CreateSkyboxTexture(config.TextureDim, rng)
	s.createAsteroids(rng)

	clock.Update()
	core.LogInfo("simulation: %d asteroids, %d meshes of %d vertices, %d textures (%.2fs)",
		config.Asteroids, config.Meshes, s.vertsPerMesh, config.Textures, clock.Seconds())
	return s, nil
}

// colorScheme picks a pair of related rock colors, lit surface and the
// darker crevices.
func colorScheme(rng *math.Random) (mgl32.Vec3, mgl32.Vec3) {
	hue := float64(rng.Float32Range(15, 45))
	sat := float64(rng.Float32Range(0.05, 0.35))
	surface := colorful.Hsv(hue, sat, float64(rng.Float32Range(0.55, 0.9)))
	deep := colorful.Hsv(hue+float64(rng.Float32Range(-10, 10)), sat*1.5, float64(rng.Float32Range(0.1, 0.3)))
	toVec := func(c colorful.Color) mgl32.Vec3 {
		c = c.Clamped()
		return mgl32.Vec3{float32(c.R), float32(c.G), float32(c.B)}
	}
	return toVec(surface), toVec(deep)
}

func (s *Simulation) createAsteroids(rng *math.Random) {
	n := s.config.Asteroids
	s.static = make([]AsteroidStatic, n)
	s.draws = metadata.DrawList{
		Static:  make([]metadata.DrawStatic, n),
		Dynamic: make([]metadata.DrawDynamic, n),
	}
	for i := 0; i < n; i++ {
		scale := math32.Max(MIN_SCALE, rng.Normal(1.3, 0.7))
		orbitRadius := rng.Normal(ORBIT_RADIUS, 0.6*DISC_RADIUS)
		height := rng.Normal(0, 0.4*DISC_RADIUS)
		angle := rng.Float32Range(-math.K_PI, math.K_PI)
		position := mgl32.Vec3{
			orbitRadius * math32.Cos(angle),
			height,
			orbitRadius * math32.Sin(angle),
		}

		surface, deep := colorScheme(rng)
		st := AsteroidStatic{
			SurfaceColor:  surface,
			DeepColor:     deep,
			SpinAxis:      rng.UnitVector(),
			Scale:         scale,
			SpinVelocity:  rng.Normal(0, 1.2) / scale,
			OrbitVelocity: rng.Normal(20, 5) / math32.Max(1, math32.Abs(orbitRadius)),
			VertexStart:   uint32(rng.IntRange(0, s.config.Meshes-1)) * s.vertsPerMesh,
			TextureIndex:  uint32(rng.IntRange(0, s.config.Textures-1)),
		}
		s.static[i] = st
		s.draws.Static[i] = metadata.DrawStatic{
			SurfaceColor: st.SurfaceColor,
			DeepColor:    st.DeepColor,
			TextureIndex: st.TextureIndex,
			VertexStart:  int32(st.VertexStart),
		}

		spin := mgl32.HomogRotate3D(rng.Float32Range(0, 2*math.K_PI), st.SpinAxis)
		world := mgl32.Translate3D(position[0], position[1], position[2]).
			Mul4(spin).
			Mul4(mgl32.Scale3D(scale, scale, scale))
		start, count := s.IndexRange(0)
		s.draws.Dynamic[i] = metadata.DrawDynamic{World: world, IndexStart: start, IndexCount: count}
	}
}

// Update advances bodies [start, end) by frameTime seconds: each orbits the
// Y axis and spins about its own axis, and the mesh level is picked from its
// apparent size seen from eye. Disjoint ranges may be updated concurrently.
func (s *Simulation) Update(frameTime float32, eye mgl32.Vec3, start, end int) {
	if end > len(s.static) {
		end = len(s.static)
	}
	for i := start; i < end; i++ {
		st := &s.static[i]
		dyn := &s.draws.Dynamic[i]

		orbit := mgl32.HomogRotate3DY(st.OrbitVelocity * frameTime)
		spin := mgl32.HomogRotate3D(st.SpinVelocity*frameTime, st.SpinAxis)
		dyn.World = orbit.Mul4(dyn.World).Mul4(spin)

		dyn.IndexStart, dyn.IndexCount = s.IndexRange(s.lodLevel(st.Scale, dyn.World.Col(3).Vec3().Sub(eye).Len()))
	}
}

func (s *Simulation) lodLevel(scale, distance float32) int {
	if distance <= 0 {
		return s.config.SubdivLevels
	}
	size := scale / distance * lodBias
	if size <= 1 {
		return 0
	}
	level := int(math32.Log2(size) / 2)
	return math.Clamp(level, 0, s.config.SubdivLevels)
}

// IndexRange returns the first index and index count of a subdivision level.
func (s *Simulation) IndexRange(level int) (uint32, uint32) {
	level = math.Clamp(level, 0, s.config.SubdivLevels)
	return s.indexOffsets[level], s.indexOffsets[level+1] - s.indexOffsets[level]
}

func (s *Simulation) Config() Config                { return s.config }
func (s *Simulation) Static() []AsteroidStatic      { return s.static }
func (s *Simulation) Draws() metadata.DrawList      { return s.draws }
func (s *Simulation) Meshes() Mesh                  { return s.meshes }
func (s *Simulation) VertexCountPerMesh() uint32    { return s.vertsPerMesh }
func (s *Simulation) Textures() []*loaders.Image    { return s.textures }
func (s *Simulation) SkyboxTexture() *loaders.Image { return s.skybox }
