package testbed

import (
	"fmt"
	"image"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/spaghettifunk/asteroids/engine"
	"github.com/spaghettifunk/asteroids/engine/assets"
	"github.com/spaghettifunk/asteroids/engine/assets/loaders"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/math"
	"github.com/spaghettifunk/asteroids/engine/overlay"
	"github.com/spaghettifunk/asteroids/engine/renderer"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
	"github.com/spaghettifunk/asteroids/engine/renderer/pipelined"
	"github.com/spaghettifunk/asteroids/engine/simulation"
	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const (
	logoX, logoY          = 5, 10
	logoWidth, logoHeight = 140, 50
	fpsX, fpsY            = 150, 10

	cameraFov float32 = math.K_PI / 2 * 0.8 * 3 / 2
	// radians per pixel of mouse drag
	orbitSpeed float32 = 0.005
	// one wheel notch
	wheelZoom float32 = 0.07 * 120
)

type TestGame struct {
	*engine.Game
}

type gameState struct {
	config *engine.ApplicationConfig
	sim    *simulation.Simulation
	camera *OrbitCamera

	gui     *overlay.GUI
	logo    *overlay.Sprite
	fpsText *overlay.Text

	width    uint32
	height   uint32
	dragging bool
}

func NewTestGame() *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			State: &gameState{
				camera: NewOrbitCamera(),
			},
		},
	}

	tg.FnBoot = tg.Boot
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnRender = tg.Render
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown

	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

func textureData(img *loaders.Image) pipelined.TextureData {
	return pipelined.TextureData{Name: img.Name, Width: img.Width, Height: img.Height, Pixels: img.Pixels}
}

func logoName(b renderer.Backend) string {
	return string(b) + ".png"
}

func (g *TestGame) Boot(config *engine.ApplicationConfig, am *assets.AssetManager, content *pipelined.Options) error {
	core.LogInfo("booting testbed...")
	s := g.state()
	s.config = config

	sim, err := simulation.New(config.Simulation)
	if err != nil {
		return err
	}
	s.sim = sim

	meshes := sim.Meshes()
	content.Meshes = pipelined.Geometry{Vertices: meshes.Vertices, Indices: meshes.Indices}
	content.SkyboxVertices = simulation.CreateSkyboxMesh()
	content.Textures = content.Textures[:0]
	for _, img := range sim.Textures() {
		content.Textures = append(content.Textures, textureData(img))
	}
	content.Skybox = textureData(sim.SkyboxTexture())

	f, err := loadFont(am, config.Assets)
	if err != nil {
		return err
	}
	s.gui = overlay.New(f)
	content.Font = textureData(f.Atlas())
	content.Font.Name = overlay.FontTextureName

	for _, b := range []renderer.Backend{renderer.BackendVulkan, renderer.BackendSim} {
		content.Sprites = append(content.Sprites, textureData(loadLogo(am, b)))
	}
	backend, err := renderer.ParseBackend(config.Render.Backend)
	if err != nil {
		return err
	}
	s.logo = s.gui.AddSprite(logoX, logoY, logoWidth, logoHeight, logoName(backend))
	s.fpsText = s.gui.AddText(fpsX, fpsY, "")

	shaders, err := am.LoadShaders()
	switch {
	case err == nil:
		content.Shaders = shaders
	case backend == renderer.BackendSim:
		// the simulated device does not compile shaders
		core.LogWarn("no compiled shaders, the vulkan backend will be unavailable: %v", err)
	default:
		return core.Wrapf(err, "loading shaders, run `mage build:shaders`")
	}
	return nil
}

// loadFont picks the configured font file, falling back to the built-in
// bitmap face.
func loadFont(am *assets.AssetManager, cfg engine.AssetsConfig) (*overlay.Font, error) {
	if cfg.Font == "" {
		return overlay.DefaultFont(), nil
	}
	if am.Has(cfg.Font, assets.AssetTypeBitmapFont) {
		res, err := am.LoadAsset(cfg.Font, assets.AssetTypeBitmapFont, nil)
		if err != nil {
			return nil, err
		}
		return overlay.NewBitmapFont(res.Data.(*loaders.BitmapFont))
	}
	if am.Has(cfg.Font, assets.AssetTypeSystemFont) {
		res, err := am.LoadAsset(cfg.Font, assets.AssetTypeSystemFont, &loaders.SystemFontParams{Size: cfg.FontSize})
		if err != nil {
			return nil, err
		}
		return overlay.NewFaceFont(cfg.Font, res.Data.(font.Face)), nil
	}
	core.LogWarn("font %s not found, using the built-in font", cfg.Font)
	return overlay.DefaultFont(), nil
}

// loadLogo reads textures/<backend>.png, or draws a labelled badge when the
// file is missing.
func loadLogo(am *assets.AssetManager, b renderer.Backend) *loaders.Image {
	name := logoName(b)
	if am.Has(name, assets.AssetTypeImage) {
		res, err := am.LoadAsset(name, assets.AssetTypeImage, &loaders.TextureParams{Width: logoWidth, Height: logoHeight})
		if err == nil {
			img := res.Data.(*loaders.Image)
			img.Name = name
			return img
		}
		core.LogWarn("%v", err)
	}
	bg := colorful.Hsv(350, 0.87, 0.67)
	if b == renderer.BackendSim {
		bg = colorful.Hsv(180, 0.6, 0.45)
	}
	return generateLogo(name, string(b), bg)
}

func generateLogo(name, label string, bg colorful.Color) *loaders.Image {
	img := image.NewRGBA(image.Rect(0, 0, logoWidth, logoHeight))
	draw.Draw(img, img.Bounds(), image.NewUniform(bg), image.Point{}, draw.Src)
	d := font.Drawer{Dst: img, Src: image.White, Face: basicfont.Face7x13}
	w := d.MeasureString(label).Ceil()
	d.Dot = fixed.P((logoWidth-w)/2, logoHeight/2+4)
	d.DrawString(label)
	return loaders.FromRGBA(name, img)
}

func (g *TestGame) Initialize() error {
	core.LogInfo("initializing testbed...")
	s := g.state()

	s.camera.View(
		mgl32.Vec3{0, -0.4 * simulation.DISC_RADIUS, 0},
		simulation.ORBIT_RADIUS+simulation.DISC_RADIUS+10,
		simulation.ORBIT_RADIUS-2*simulation.ORBIT_RADIUS*0.4,
		simulation.ORBIT_RADIUS+2*simulation.ORBIT_RADIUS*0.4,
		4.50, 1.45)

	core.EventRegister(core.EVENT_CODE_BUTTON_PRESSED, g.onButton)
	core.EventRegister(core.EVENT_CODE_BUTTON_RELEASED, g.onButton)
	core.EventRegister(core.EVENT_CODE_MOUSE_WHEEL, g.onWheel)
	return nil
}

func (g *TestGame) Update(deltaTime float64) error {
	s := g.state()

	if s.dragging {
		dx, dy := core.InputMouseDelta()
		if dx != 0 || dy != 0 {
			s.camera.OrbitX(float32(dx) * orbitSpeed)
			s.camera.OrbitY(-float32(dy) * orbitSpeed)
		}
	}

	if locked, rate := g.Controls.FrameLock(); locked {
		s.fpsText.SetText(fmt.Sprintf("%d fps (Locked)", rate))
	} else {
		s.fpsText.SetText(fmt.Sprintf("%.0f fps", core.MetricsSmoothedFPS()))
	}
	s.logo.SetTexture(logoName(g.Controls.Backend()))
	return nil
}

func (g *TestGame) Render(frameTime float32, in *metadata.FrameInput) error {
	s := g.state()
	in.Camera = s.camera.FrameCamera()
	in.Draws = s.sim.Draws()
	in.Overlay = s.gui.Elements()
	in.Update = s.sim.Update
	return nil
}

func (g *TestGame) OnResize(width uint32, height uint32) error {
	s := g.state()
	s.width, s.height = width, height
	s.camera.Projection(cameraFov, float32(width)/float32(height))
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("shutting down testbed...")
	return nil
}

// toRender maps a window position to back buffer pixels.
func (s *gameState) toRender(x, y uint16) (int, int) {
	scale := s.config.Render.RenderScale
	return int(float64(x) * scale), int(float64(y) * scale)
}

func (g *TestGame) onButton(context core.EventContext) bool {
	me, ok := context.Data.(*core.MouseEvent)
	if !ok || me.Button != core.BUTTON_LEFT {
		return false
	}
	s := g.state()
	if context.Type == core.EVENT_CODE_BUTTON_RELEASED {
		s.dragging = false
		return false
	}

	switch s.gui.HitTest(s.toRender(me.PosX, me.PosY)) {
	case s.fpsText:
		g.Controls.ToggleFrameLock()
		return true
	case s.logo:
		g.Controls.SwitchBackend()
		return true
	}
	s.dragging = true
	return false
}

func (g *TestGame) onWheel(context core.EventContext) bool {
	me, ok := context.Data.(*core.MouseEvent)
	if !ok {
		return false
	}
	g.state().camera.ZoomRadius(-wheelZoom * float32(me.Scroll))
	return true
}
