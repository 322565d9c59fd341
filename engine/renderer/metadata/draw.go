package metadata

import "github.com/go-gl/mathgl/mgl32"

// Vertex is a mesh vertex: position and normal.
type Vertex struct {
	X, Y, Z    float32
	NX, NY, NZ float32
}

// IndexType is the index format of every mesh.
type IndexType = uint16

// SkyboxVertex carries the cube face so one 2D atlas can back all six faces.
type SkyboxVertex struct {
	X, Y, Z float32
	U, V    float32
	Face    float32
}

// SpriteVertex is a 2D overlay vertex in normalized device coordinates.
type SpriteVertex struct {
	X, Y float32
	U, V float32
}

// DrawStatic holds the per-body attributes fixed at startup.
type DrawStatic struct {
	SurfaceColor mgl32.Vec3
	DeepColor    mgl32.Vec3
	TextureIndex uint32
	VertexStart  int32
}

// DrawDynamic holds the per-body attributes refreshed every frame.
type DrawDynamic struct {
	World      mgl32.Mat4
	IndexStart uint32
	IndexCount uint32
}

// DrawList is the draw-item set of one frame. Static and Dynamic are indexed
// in parallel; the renderer only reads them.
type DrawList struct {
	Static  []DrawStatic
	Dynamic []DrawDynamic
}

func (d DrawList) Len() int {
	if len(d.Dynamic) < len(d.Static) {
		return len(d.Dynamic)
	}
	return len(d.Static)
}

// Camera is the view state of one frame.
type Camera struct {
	ViewProjection mgl32.Mat4
	Eye            mgl32.Vec3
}

// DrawConstants is the GPU layout of the per-draw constant block. Each block
// is placed on a CONSTANT_ALIGNMENT boundary.
type DrawConstants struct {
	World          mgl32.Mat4
	ViewProjection mgl32.Mat4
	SurfaceColor   mgl32.Vec4
	DeepColor      mgl32.Vec4
	TextureIndex   uint32
	_              [3]uint32
}

// SkyboxConstants is the GPU layout of the skybox constant block.
type SkyboxConstants struct {
	ViewProjection mgl32.Mat4
}

// DrawIndexedIndirectArgs is one entry of an indirect argument buffer.
type DrawIndexedIndirectArgs struct {
	IndexCount    uint32
	InstanceCount uint32
	FirstIndex    uint32
	VertexOffset  int32
	FirstInstance uint32
}
