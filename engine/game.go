package engine

import (
	"github.com/spaghettifunk/asteroids/engine/assets"
	"github.com/spaghettifunk/asteroids/engine/renderer"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
	"github.com/spaghettifunk/asteroids/engine/renderer/pipelined"
)

// Controls are the engine actions a game may trigger from its own input
// handling. They take effect between frames.
type Controls interface {
	Settings() metadata.Settings
	Backend() renderer.Backend
	// FrameLock reports whether the frame rate is capped, and at what rate.
	FrameLock() (bool, uint32)
	ToggleFrameLock()
	SwitchBackend()
	RenderSize() (uint32, uint32)
}

type Game struct {
	// Set by the engine before Boot is called.
	Controls     Controls
	State        interface{}
	FnBoot       Boot
	FnInitialize Initialize
	FnUpdate     Update
	FnRender     Render
	FnOnResize   OnResize
	FnShutdown   Shutdown
}

// Boot loads the game content and fills in what the renderer is created
// with: meshes, textures, shaders and overlay sprites.
type Boot func(config *ApplicationConfig, am *assets.AssetManager, content *pipelined.Options) error
type Initialize func() error
type Update func(deltaTime float64) error

// Render fills the frame input with the camera, draw list, overlay and
// simulation update of the frame. Settings are filled in by the engine.
type Render func(frameTime float32, in *metadata.FrameInput) error

// OnResize receives the back buffer size.
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
