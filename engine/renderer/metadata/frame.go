package metadata

import "github.com/go-gl/mathgl/mgl32"

// UpdateFunc refreshes the dynamic attributes of draws [start, end). It is
// called concurrently for disjoint ranges.
type UpdateFunc func(frameTime float32, eye mgl32.Vec3, start, end int)

// FrameInput is everything the renderer reads for one frame. It is passed
// explicitly to every Render call; the renderer keeps no reference to it.
type FrameInput struct {
	Camera   Camera
	Settings Settings
	Draws    DrawList
	Overlay  []OverlayElement
	// Update, when set and Settings.Animate is on, is run by each subset
	// worker on its own shard before recording it.
	Update UpdateFunc
}
