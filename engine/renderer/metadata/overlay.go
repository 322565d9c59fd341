package metadata

// Quad is a screen-space rectangle in pixels with its texture coordinates.
// The origin is the top-left corner of the viewport.
type Quad struct {
	X, Y, W, H     float32
	U0, V0, U1, V1 float32
}

// OverlayElement is one 2D control of the frame overlay. An empty Texture
// selects the font atlas.
type OverlayElement struct {
	Visible bool
	Texture string
	Quads   []Quad
}

// VertexCount is the number of sprite vertices the element expands to.
func (e OverlayElement) VertexCount() int {
	return 6 * len(e.Quads)
}

// AppendSpriteVertices expands q into two triangles in normalized device
// coordinates for a viewport of the given size.
func AppendSpriteVertices(out []SpriteVertex, q Quad, viewportWidth, viewportHeight float32) []SpriteVertex {
	v0 := SpriteVertex{q.X, q.Y, q.U0, q.V0}
	v1 := SpriteVertex{q.X + q.W, q.Y, q.U1, q.V0}
	v2 := SpriteVertex{q.X + q.W, q.Y + q.H, q.U1, q.V1}
	v5 := SpriteVertex{q.X, q.Y + q.H, q.U0, q.V1}
	start := len(out)
	out = append(out, v0, v1, v2, v0, v2, v5)
	for i := start; i < len(out); i++ {
		out[i].X = out[i].X/viewportWidth*2.0 - 1.0
		out[i].Y = -(out[i].Y/viewportHeight*2.0 - 1.0)
	}
	return out
}
