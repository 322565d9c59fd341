package testbed

import (
	"testing"

	"github.com/lucasb-eyer/go-colorful"
	"github.com/spaghettifunk/asteroids/engine"
	"github.com/spaghettifunk/asteroids/engine/assets"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/overlay"
	"github.com/spaghettifunk/asteroids/engine/renderer"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
	"github.com/spaghettifunk/asteroids/engine/renderer/pipelined"
	"github.com/spaghettifunk/asteroids/engine/simulation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeControls struct {
	backend  renderer.Backend
	locked   bool
	switches int
}

func (c *fakeControls) Settings() metadata.Settings  { return metadata.DefaultSettings() }
func (c *fakeControls) Backend() renderer.Backend    { return c.backend }
func (c *fakeControls) FrameLock() (bool, uint32)    { return c.locked, 15 }
func (c *fakeControls) ToggleFrameLock()             { c.locked = !c.locked }
func (c *fakeControls) SwitchBackend()               { c.switches++ }
func (c *fakeControls) RenderSize() (uint32, uint32) { return 1080, 720 }

func testConfig() *engine.ApplicationConfig {
	cfg := engine.DefaultApplicationConfig()
	cfg.Render.Backend = string(renderer.BackendSim)
	cfg.Simulation = simulation.Config{
		Asteroids:    64,
		Meshes:       2,
		SubdivLevels: 1,
		Textures:     3,
		TextureDim:   8,
		Seed:         1,
	}
	return cfg
}

func newAssets(t *testing.T) *assets.AssetManager {
	am, err := assets.NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(t.TempDir()))
	t.Cleanup(func() { _ = am.Shutdown() })
	return am
}

func bootedGame(t *testing.T) (*TestGame, *fakeControls, pipelined.Options) {
	t.Helper()
	require.NoError(t, core.MetricsInitialize())
	g := NewTestGame()
	controls := &fakeControls{backend: renderer.BackendSim}
	g.Controls = controls
	content := pipelined.DefaultOptions()
	require.NoError(t, g.Boot(testConfig(), newAssets(t), &content))
	require.NoError(t, g.Initialize())
	require.NoError(t, g.OnResize(1080, 720))
	return g, controls, content
}

func TestBootFillsContent(t *testing.T) {
	_, _, content := bootedGame(t)

	assert.Len(t, content.Textures, 3)
	assert.Len(t, content.SkyboxVertices, metadata.SKYBOX_VERTEX_COUNT)
	assert.Equal(t, simulation.SkyboxTextureName, content.Skybox.Name)
	assert.Equal(t, overlay.FontTextureName, content.Font.Name)
	assert.Len(t, content.Meshes.Vertices, 2*simulation.VertexCount(1))
	assert.Nil(t, content.Shaders, "sim runs without compiled shaders")

	require.Len(t, content.Sprites, 2)
	assert.Equal(t, "vulkan.png", content.Sprites[0].Name)
	assert.Equal(t, "sim.png", content.Sprites[1].Name)
	for _, s := range content.Sprites {
		assert.Equal(t, uint32(logoWidth), s.Width)
		assert.Len(t, s.Pixels, logoWidth*logoHeight*4)
	}
}

func TestBootNeedsShadersForVulkan(t *testing.T) {
	g := NewTestGame()
	cfg := testConfig()
	cfg.Render.Backend = string(renderer.BackendVulkan)
	content := pipelined.DefaultOptions()
	assert.Error(t, g.Boot(cfg, newAssets(t), &content))
}

func TestRenderFillsFrame(t *testing.T) {
	g, controls, _ := bootedGame(t)

	require.NoError(t, g.Update(1.0/60.0))
	var in metadata.FrameInput
	require.NoError(t, g.Render(1.0/60.0, &in))
	assert.Equal(t, 64, in.Draws.Len())
	assert.NotNil(t, in.Update)
	assert.Equal(t, g.state().camera.Eye(), in.Camera.Eye)
	require.Len(t, in.Overlay, 2)
	assert.Equal(t, "sim.png", in.Overlay[0].Texture)
	assert.Empty(t, in.Overlay[1].Texture)

	controls.backend = renderer.BackendVulkan
	controls.locked = true
	require.NoError(t, g.Update(1.0/60.0))
	assert.Equal(t, "vulkan.png", g.state().logo.Texture())
	assert.Equal(t, "15 fps (Locked)", g.state().fpsText.Text())
}

func press(x, y uint16) core.EventContext {
	return core.EventContext{
		Type: core.EVENT_CODE_BUTTON_PRESSED,
		Data: &core.MouseEvent{Button: core.BUTTON_LEFT, PosX: x, PosY: y},
	}
}

func TestOverlayClicks(t *testing.T) {
	g, controls, _ := bootedGame(t)
	require.NoError(t, g.Update(0))

	assert.True(t, g.onButton(press(fpsX+2, fpsY+2)))
	assert.True(t, controls.locked)

	assert.True(t, g.onButton(press(logoX+10, logoY+10)))
	assert.Equal(t, 1, controls.switches)

	assert.False(t, g.onButton(press(600, 400)))
	assert.True(t, g.state().dragging)
	g.onButton(core.EventContext{
		Type: core.EVENT_CODE_BUTTON_RELEASED,
		Data: &core.MouseEvent{Button: core.BUTTON_LEFT},
	})
	assert.False(t, g.state().dragging)
}

func TestWheelZooms(t *testing.T) {
	g, _, _ := bootedGame(t)
	before := g.state().camera.Radius()
	g.onWheel(core.EventContext{Type: core.EVENT_CODE_MOUSE_WHEEL, Data: &core.MouseEvent{Scroll: 1}})
	assert.InDelta(t, before-wheelZoom, g.state().camera.Radius(), 1e-3)
}

func TestGeneratedLogo(t *testing.T) {
	img := generateLogo("sim.png", "sim", colorful.Color{})
	require.Len(t, img.Pixels, logoWidth*logoHeight*4)
	// the label is drawn in white over the background
	white := 0
	for i := 0; i < len(img.Pixels); i += 4 {
		if img.Pixels[i] == 255 && img.Pixels[i+1] == 255 && img.Pixels[i+2] == 255 {
			white++
		}
	}
	assert.Positive(t, white)
	assert.Equal(t, byte(0), img.Pixels[0])
}
