package engine

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/asteroids/engine/simulation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "settings.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestMissingFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	cfg, err := ParseCommandLine("asteroids", []string{"-config", path})
	require.NoError(t, err)

	def := DefaultApplicationConfig()
	assert.Equal(t, path, cfg.Path)
	assert.Equal(t, def.Window, cfg.Window)
	assert.Equal(t, def.Render, cfg.Render)
	assert.Equal(t, simulation.DefaultConfig(), cfg.Simulation)
	assert.Equal(t, 5*time.Second, cfg.Render.FenceTimeout.Duration)
}

func TestFlagsOverrideFile(t *testing.T) {
	path := writeSettings(t, `
[render]
backend = "sim"
vsync = true
fence_timeout = "250ms"

[benchmark]
locked_fps = 30
`)
	cfg, err := ParseCommandLine("asteroids", []string{
		"-config", path,
		"-locked_fps", "60",
		"-single_threaded",
		"-width", "640",
		"-close_after", "2.5",
	})
	require.NoError(t, err)

	assert.Equal(t, "sim", cfg.Render.Backend)
	assert.True(t, cfg.Render.VSync)
	assert.Equal(t, 250*time.Millisecond, cfg.Render.FenceTimeout.Duration)
	assert.Equal(t, uint32(60), cfg.Benchmark.LockedFPS)
	assert.False(t, cfg.Render.Multithreaded)
	assert.Equal(t, uint32(640), cfg.Window.Width)
	assert.Equal(t, uint32(720), cfg.Window.Height, "flags not given keep the file value")
	assert.Equal(t, 2500*time.Millisecond, cfg.Benchmark.CloseAfter.Duration)

	file := cfg.FileConfig()
	assert.Equal(t, uint32(30), file.Benchmark.LockedFPS)
	assert.True(t, file.Render.Multithreaded)
	assert.Equal(t, uint32(1080), file.Window.Width)
}

func TestInvalidConfiguration(t *testing.T) {
	_, err := ParseCommandLine("asteroids", []string{"-config", writeSettings(t, "[render]\nvsyn = true\n")})
	assert.Error(t, err, "unknown keys are rejected")

	_, err = ParseCommandLine("asteroids", []string{"-config", writeSettings(t, "[render]\nfence_timeout = \"soon\"\n")})
	assert.Error(t, err)

	missing := filepath.Join(t.TempDir(), "missing.toml")
	_, err = ParseCommandLine("asteroids", []string{"-config", missing, "-backend", "dx12"})
	assert.Error(t, err)
	_, err = ParseCommandLine("asteroids", []string{"-config", missing, "-render_scale", "-1"})
	assert.Error(t, err)
	_, err = ParseCommandLine("asteroids", []string{"-config", missing, "extra"})
	assert.Error(t, err)
	_, err = ParseCommandLine("asteroids", []string{"-help"})
	assert.ErrorIs(t, err, flag.ErrHelp)
}

func TestRenderSizeScales(t *testing.T) {
	cfg := DefaultApplicationConfig()
	cfg.Render.RenderScale = 0.5
	w, h := cfg.RenderSize(1080, 720)
	assert.Equal(t, uint32(540), w)
	assert.Equal(t, uint32(360), h)

	cfg.Render.RenderScale = 0.001
	w, h = cfg.RenderSize(100, 100)
	assert.Equal(t, uint32(1), w)
	assert.Equal(t, uint32(1), h)

	w, h = cfg.RenderSize(0, 0)
	assert.Zero(t, w)
	assert.Zero(t, h)
}

func TestDiffSplitsRuntimeAndRestartKeys(t *testing.T) {
	cur := DefaultApplicationConfig()
	next := DefaultApplicationConfig()
	next.Render.VSync = true
	next.Benchmark.LockedFPS = 20
	next.Simulation.Asteroids = 10
	next.Window.Width = 800

	ch := cur.Diff(next)
	assert.Equal(t, []string{"render.vsync", "benchmark.locked_fps"}, ch.Applied)
	assert.Equal(t, []string{"window", "simulation"}, ch.RestartRequired)
	assert.Empty(t, cur.Diff(DefaultApplicationConfig()).Applied)
}

func TestApplyRuntimeKeepsLocalChanges(t *testing.T) {
	running := DefaultApplicationConfig()
	// toggled from the keyboard since the file was read
	running.Render.Indirect = true

	prev := DefaultApplicationConfig()
	next := DefaultApplicationConfig()
	next.Render.Animate = false
	next.Log.Level = "debug"
	next.Window.Width = 10

	keys := running.ApplyRuntime(prev, next)
	assert.Equal(t, []string{"render.animate", "log.level"}, keys)
	assert.True(t, running.Render.Indirect)
	assert.False(t, running.Render.Animate)
	assert.Equal(t, "debug", running.Log.Level)
	assert.Equal(t, uint32(1080), running.Window.Width, "structural keys are not applied")
}
