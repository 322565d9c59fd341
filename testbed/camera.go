package testbed

import (
	"github.com/chewxy/math32"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/asteroids/engine/math"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
)

const (
	cameraNear float32 = 0.1
	// keeps the eye off the poles where the up vector degenerates
	latitudeEpsilon float32 = 0.01
)

// OrbitCamera circles a center point at a bounded radius. The latitude is
// the angle from the up axis.
type OrbitCamera struct {
	center    mgl32.Vec3
	up        mgl32.Vec3
	radius    float32
	minRadius float32
	maxRadius float32
	longAngle float32
	latAngle  float32

	eye            mgl32.Vec3
	view           mgl32.Mat4
	projection     mgl32.Mat4
	viewProjection mgl32.Mat4
}

func NewOrbitCamera() *OrbitCamera {
	c := &OrbitCamera{
		up:         mgl32.Vec3{0, 1, 0},
		radius:     1,
		minRadius:  0,
		maxRadius:  1,
		latAngle:   math.K_PI / 2,
		projection: mgl32.Ident4(),
	}
	c.update()
	return c
}

func (c *OrbitCamera) View(center mgl32.Vec3, radius, minRadius, maxRadius, longAngle, latAngle float32) {
	c.center = center
	c.minRadius, c.maxRadius = minRadius, maxRadius
	c.radius = math.Clamp(radius, minRadius, maxRadius)
	c.longAngle = longAngle
	c.latAngle = math.Clamp(latAngle, latitudeEpsilon, math.K_PI-latitudeEpsilon)
	c.update()
}

// Projection sets a reverse Z projection with an infinite far plane. fov
// applies to the larger of the two dimensions.
func (c *OrbitCamera) Projection(fov, aspect float32) {
	fovY := fov
	if aspect > 1 {
		fovY = 2 * math32.Atan(math32.Tan(fov/2)/aspect)
	}
	f := 1 / math32.Tan(fovY/2)
	c.projection = mgl32.Mat4{
		f / aspect, 0, 0, 0,
		0, f, 0, 0,
		0, 0, 0, -1,
		0, 0, cameraNear, 0,
	}
	c.update()
}

func (c *OrbitCamera) OrbitX(angle float32) {
	c.longAngle += angle
	c.update()
}

func (c *OrbitCamera) OrbitY(angle float32) {
	c.latAngle = math.Clamp(c.latAngle+angle, latitudeEpsilon, math.K_PI-latitudeEpsilon)
	c.update()
}

func (c *OrbitCamera) ZoomRadius(delta float32) {
	c.radius = math.Clamp(c.radius+delta, c.minRadius, c.maxRadius)
	c.update()
}

func (c *OrbitCamera) ZoomRadiusScale(delta float32) {
	c.radius = math.Clamp(c.radius*delta, c.minRadius, c.maxRadius)
	c.update()
}

func (c *OrbitCamera) update() {
	sinLat, cosLat := math32.Sin(c.latAngle), math32.Cos(c.latAngle)
	sinLong, cosLong := math32.Sin(c.longAngle), math32.Cos(c.longAngle)
	offset := mgl32.Vec3{sinLat * cosLong, cosLat, sinLat * sinLong}
	c.eye = c.center.Add(offset.Mul(c.radius))
	c.view = mgl32.LookAtV(c.eye, c.center, c.up)
	c.viewProjection = c.projection.Mul4(c.view)
}

func (c *OrbitCamera) Eye() mgl32.Vec3            { return c.eye }
func (c *OrbitCamera) Radius() float32            { return c.radius }
func (c *OrbitCamera) ViewProjection() mgl32.Mat4 { return c.viewProjection }

func (c *OrbitCamera) FrameCamera() metadata.Camera {
	return metadata.Camera{ViewProjection: c.viewProjection, Eye: c.eye}
}
