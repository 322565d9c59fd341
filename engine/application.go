package engine

import (
	"bytes"
	"flag"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/pelletier/go-toml/v2"
	"github.com/spaghettifunk/asteroids/engine/renderer"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
	"github.com/spaghettifunk/asteroids/engine/simulation"
)

// DefaultConfigFile is read from the working directory when -config is not
// given. A missing file leaves the defaults untouched.
const DefaultConfigFile = "settings.toml"

// Duration decodes TOML strings such as "5s" or "250ms".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

type WindowConfig struct {
	Title      string `toml:"title"`
	X          uint32 `toml:"x"`
	Y          uint32 `toml:"y"`
	Width      uint32 `toml:"width"`
	Height     uint32 `toml:"height"`
	Fullscreen bool   `toml:"fullscreen"`
}

type RenderConfig struct {
	Backend string `toml:"backend"`
	// 1.0 renders at window size, below upscales, above supersamples.
	RenderScale      float64  `toml:"render_scale"`
	VSync            bool     `toml:"vsync"`
	AllowTearing     bool     `toml:"allow_tearing"`
	Multithreaded    bool     `toml:"multithreaded"`
	Submit           bool     `toml:"submit"`
	Indirect         bool     `toml:"indirect"`
	Animate          bool     `toml:"animate"`
	FramesInFlight   int      `toml:"frames_in_flight"`
	SwapchainBuffers int      `toml:"swapchain_buffers"`
	Subsets          int      `toml:"subsets"`
	FenceTimeout     Duration `toml:"fence_timeout"`
	Validation       bool     `toml:"validation"`
}

type BenchmarkConfig struct {
	// Zero runs until the window is closed.
	CloseAfter Duration `toml:"close_after"`
	// Zero leaves the frame rate unlocked.
	LockedFPS  uint32 `toml:"locked_fps"`
	PerfOutput string `toml:"perf_output"`
}

type AssetsConfig struct {
	Root string `toml:"root"`
	// BMFont (.fnt) or TrueType file under fonts/. Empty uses the built-in font.
	Font     string  `toml:"font"`
	FontSize float64 `toml:"font_size"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

type ApplicationConfig struct {
	Window     WindowConfig      `toml:"window"`
	Render     RenderConfig      `toml:"render"`
	Benchmark  BenchmarkConfig   `toml:"benchmark"`
	Simulation simulation.Config `toml:"simulation"`
	Assets     AssetsConfig      `toml:"assets"`
	Log        LogConfig         `toml:"log"`

	// Path the configuration was read from, if any.
	Path string `toml:"-"`

	// the file contents before command line overrides
	file *ApplicationConfig
}

// FileConfig returns the configuration as read from the file, without the
// command line overrides.
func (c *ApplicationConfig) FileConfig() *ApplicationConfig {
	if c.file != nil {
		return c.file
	}
	copied := *c
	return &copied
}

// DefaultApplicationConfig is the configuration used when no settings file exists.
func DefaultApplicationConfig() *ApplicationConfig {
	s := metadata.DefaultSettings()
	return &ApplicationConfig{
		Window: WindowConfig{
			Title:  "Asteroids",
			X:      100,
			Y:      100,
			Width:  1080,
			Height: 720,
		},
		Render: RenderConfig{
			Backend:          string(renderer.BackendVulkan),
			RenderScale:      1.0,
			VSync:            s.VSync,
			AllowTearing:     s.AllowTearing,
			Multithreaded:    s.Multithreaded,
			Submit:           s.Submit,
			Indirect:         s.Indirect,
			Animate:          s.Animate,
			FramesInFlight:   metadata.NUM_FRAMES_TO_BUFFER,
			SwapchainBuffers: metadata.NUM_SWAP_CHAIN_BUFFERS,
			Subsets:          metadata.NUM_SUBSETS,
			FenceTimeout:     Duration{5 * time.Second},
		},
		Simulation: simulation.DefaultConfig(),
		Assets: AssetsConfig{
			Root:     "assets",
			FontSize: 16,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Settings returns the per-frame renderer flags.
func (c *ApplicationConfig) Settings() metadata.Settings {
	return metadata.Settings{
		Multithreaded: c.Render.Multithreaded,
		Indirect:      c.Render.Indirect,
		Submit:        c.Render.Submit,
		VSync:         c.Render.VSync,
		AllowTearing:  c.Render.AllowTearing,
		Animate:       c.Render.Animate,
	}
}

// SetSettings stores the per-frame renderer flags back into the config.
func (c *ApplicationConfig) SetSettings(s metadata.Settings) {
	c.Render.Multithreaded = s.Multithreaded
	c.Render.Indirect = s.Indirect
	c.Render.Submit = s.Submit
	c.Render.VSync = s.VSync
	c.Render.AllowTearing = s.AllowTearing
	c.Render.Animate = s.Animate
}

// RenderSize is the back buffer size for a window of the given size.
func (c *ApplicationConfig) RenderSize(width, height uint32) (uint32, uint32) {
	scale := c.Render.RenderScale
	if scale <= 0 {
		scale = 1
	}
	w, h := uint32(float64(width)*scale+0.5), uint32(float64(height)*scale+0.5)
	if width > 0 && w == 0 {
		w = 1
	}
	if height > 0 && h == 0 {
		h = 1
	}
	return w, h
}

func (c *ApplicationConfig) Validate() error {
	if _, err := renderer.ParseBackend(c.Render.Backend); err != nil {
		return err
	}
	switch {
	case c.Window.Width == 0 || c.Window.Height == 0:
		return errors.Newf("window size %dx%d is invalid", c.Window.Width, c.Window.Height)
	case c.Render.RenderScale <= 0:
		return errors.Newf("render scale %g must be positive", c.Render.RenderScale)
	case c.Render.FramesInFlight < 1:
		return errors.Newf("frames in flight must be at least 1, got %d", c.Render.FramesInFlight)
	case c.Render.SwapchainBuffers < 2:
		return errors.Newf("swap chain needs at least 2 buffers, got %d", c.Render.SwapchainBuffers)
	case c.Render.Subsets < 1:
		return errors.Newf("subsets must be at least 1, got %d", c.Render.Subsets)
	case c.Render.FenceTimeout.Duration <= 0:
		return errors.Newf("fence timeout %s must be positive", c.Render.FenceTimeout)
	case c.Benchmark.CloseAfter.Duration < 0:
		return errors.Newf("close_after %s is negative", c.Benchmark.CloseAfter)
	}
	return c.Simulation.Validate()
}

// decodeApplicationConfig overlays the TOML document in data onto cfg.
// Unknown keys are rejected so typos do not silently fall back to defaults.
func decodeApplicationConfig(data []byte, cfg *ApplicationConfig) error {
	dec := toml.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		var derr *toml.DecodeError
		if errors.As(err, &derr) {
			row, col := derr.Position()
			return errors.Wrapf(err, "line %d column %d", row, col)
		}
		return err
	}
	return nil
}

// LoadApplicationConfig reads path over the defaults. A missing file is not
// an error.
func LoadApplicationConfig(path string) (*ApplicationConfig, error) {
	cfg := DefaultApplicationConfig()
	cfg.Path = path
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	if err := decodeApplicationConfig(data, cfg); err != nil {
		return nil, errors.Wrapf(err, "decoding %s", path)
	}
	return cfg, nil
}

// ParseCommandLine builds the configuration from the defaults, the config
// file and then the command line flags, in increasing priority.
func ParseCommandLine(name string, args []string) (*ApplicationConfig, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	var (
		configPath     = fs.String("config", DefaultConfigFile, "settings file")
		closeAfter     = fs.Float64("close_after", 0, "exit after this many seconds")
		indirect       = fs.Bool("indirect", false, "draw the asteroids with indirect draws")
		allowTearing   = fs.Bool("allow_tearing", false, "present without waiting for vertical blank")
		vsync          = fs.Bool("vsync", false, "wait for vertical blank")
		width          = fs.Uint("width", 0, "window width")
		height         = fs.Uint("height", 0, "window height")
		renderScale    = fs.Float64("render_scale", 0, "back buffer scale relative to the window")
		lockedFPS      = fs.Uint("locked_fps", 0, "cap the frame rate")
		perfOutput     = fs.String("perf_output", "", "write frame times to this CSV file")
		backend        = fs.String("backend", "", "rendering backend: vulkan or sim")
		logLevel       = fs.String("log_level", "", "debug, info, warn or error")
		fullscreen     = fs.Bool("fullscreen", false, "start fullscreen")
		singleThreaded = fs.Bool("single_threaded", false, "record every subset on the render goroutine")
		noSubmit       = fs.Bool("no_submit", false, "record command lists without submitting them")
		validation     = fs.Bool("validation", false, "enable the Vulkan validation layers")
	)
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, errors.Newf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}

	cfg, err := LoadApplicationConfig(*configPath)
	if err != nil {
		return nil, err
	}
	file := *cfg
	cfg.file = &file

	// only flags given explicitly override the file
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "close_after":
			cfg.Benchmark.CloseAfter = Duration{time.Duration(*closeAfter * float64(time.Second))}
		case "indirect":
			cfg.Render.Indirect = *indirect
		case "allow_tearing":
			cfg.Render.AllowTearing = *allowTearing
		case "vsync":
			cfg.Render.VSync = *vsync
		case "width":
			cfg.Window.Width = uint32(*width)
		case "height":
			cfg.Window.Height = uint32(*height)
		case "render_scale":
			cfg.Render.RenderScale = *renderScale
		case "locked_fps":
			cfg.Benchmark.LockedFPS = uint32(*lockedFPS)
		case "perf_output":
			cfg.Benchmark.PerfOutput = *perfOutput
		case "backend":
			cfg.Render.Backend = *backend
		case "log_level":
			cfg.Log.Level = *logLevel
		case "fullscreen":
			cfg.Window.Fullscreen = *fullscreen
		case "single_threaded":
			cfg.Render.Multithreaded = !*singleThreaded
		case "no_submit":
			cfg.Render.Submit = !*noSubmit
		case "validation":
			cfg.Render.Validation = *validation
		}
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ConfigChange is the outcome of comparing a reloaded configuration with the
// running one.
type ConfigChange struct {
	// Runtime toggles that differ and are applied between frames.
	Applied []string
	// Keys that only take effect after a restart.
	RestartRequired []string
}

// Diff compares next against c.
func (c *ApplicationConfig) Diff(next *ApplicationConfig) ConfigChange {
	var ch ConfigChange
	applied := func(name string, changed bool) {
		if changed {
			ch.Applied = append(ch.Applied, name)
		}
	}
	restart := func(name string, changed bool) {
		if changed {
			ch.RestartRequired = append(ch.RestartRequired, name)
		}
	}

	applied("render.vsync", c.Render.VSync != next.Render.VSync)
	applied("render.allow_tearing", c.Render.AllowTearing != next.Render.AllowTearing)
	applied("render.multithreaded", c.Render.Multithreaded != next.Render.Multithreaded)
	applied("render.indirect", c.Render.Indirect != next.Render.Indirect)
	applied("render.submit", c.Render.Submit != next.Render.Submit)
	applied("render.animate", c.Render.Animate != next.Render.Animate)
	applied("benchmark.locked_fps", c.Benchmark.LockedFPS != next.Benchmark.LockedFPS)
	applied("log.level", c.Log.Level != next.Log.Level)

	restart("window", c.Window != next.Window)
	restart("render.backend", c.Render.Backend != next.Render.Backend)
	restart("render.render_scale", c.Render.RenderScale != next.Render.RenderScale)
	restart("render.frames_in_flight", c.Render.FramesInFlight != next.Render.FramesInFlight)
	restart("render.swapchain_buffers", c.Render.SwapchainBuffers != next.Render.SwapchainBuffers)
	restart("render.subsets", c.Render.Subsets != next.Render.Subsets)
	restart("render.fence_timeout", c.Render.FenceTimeout != next.Render.FenceTimeout)
	restart("render.validation", c.Render.Validation != next.Render.Validation)
	restart("benchmark.close_after", c.Benchmark.CloseAfter != next.Benchmark.CloseAfter)
	restart("benchmark.perf_output", c.Benchmark.PerfOutput != next.Benchmark.PerfOutput)
	restart("simulation", c.Simulation != next.Simulation)
	restart("assets", c.Assets != next.Assets)
	return ch
}

// ApplyRuntime copies into c the runtime toggles that differ between prev
// and next, and returns their keys. Toggles that were changed on c since
// prev was read survive unless next changes them as well.
func (c *ApplicationConfig) ApplyRuntime(prev, next *ApplicationConfig) []string {
	var keys []string
	toggle := func(key string, dst *bool, from, to bool) {
		if from != to {
			*dst = to
			keys = append(keys, key)
		}
	}
	toggle("render.vsync", &c.Render.VSync, prev.Render.VSync, next.Render.VSync)
	toggle("render.allow_tearing", &c.Render.AllowTearing, prev.Render.AllowTearing, next.Render.AllowTearing)
	toggle("render.multithreaded", &c.Render.Multithreaded, prev.Render.Multithreaded, next.Render.Multithreaded)
	toggle("render.indirect", &c.Render.Indirect, prev.Render.Indirect, next.Render.Indirect)
	toggle("render.submit", &c.Render.Submit, prev.Render.Submit, next.Render.Submit)
	toggle("render.animate", &c.Render.Animate, prev.Render.Animate, next.Render.Animate)
	if prev.Benchmark.LockedFPS != next.Benchmark.LockedFPS {
		c.Benchmark.LockedFPS = next.Benchmark.LockedFPS
		keys = append(keys, "benchmark.locked_fps")
	}
	if prev.Log.Level != next.Log.Level {
		c.Log.Level = next.Log.Level
		keys = append(keys, "log.level")
	}
	return keys
}
