package assets

import (
	"encoding/binary"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/spaghettifunk/asteroids/engine/assets/loaders"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func spirv(words int) []byte {
	b := make([]byte, 4*words)
	binary.LittleEndian.PutUint32(b, 0x07230203)
	return b
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, data, 0o644))
}

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), B: 7, A: 255})
		}
	}
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	require.NoError(t, png.Encode(f, img))
}

func newManager(t *testing.T, root string) *AssetManager {
	t.Helper()
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(root))
	t.Cleanup(func() { assert.NoError(t, am.Shutdown()) })
	return am
}

func TestLoadShadersForEveryKind(t *testing.T) {
	root := t.TempDir()
	for k := gpu.PipelineKind(0); k < gpu.PipelineKindCount; k++ {
		writeFile(t, filepath.Join(root, "shaders", ShaderFile(k, "vert")), spirv(8))
		writeFile(t, filepath.Join(root, "shaders", ShaderFile(k, "frag")), spirv(6))
	}
	am := newManager(t, root)

	shaders, err := am.LoadShaders()
	require.NoError(t, err)
	require.Len(t, shaders, int(gpu.PipelineKindCount))
	assert.Len(t, shaders[gpu.PipelineSkybox].Vertex, 32)
	assert.Len(t, shaders[gpu.PipelineSkybox].Fragment, 24)
}

func TestLoadAssetErrors(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "shaders", "broken.vert.spv"), []byte("not spirv at all...."))
	am := newManager(t, root)

	_, err := am.LoadAsset("missing.vert.spv", AssetTypeShader, nil)
	assert.ErrorContains(t, err, "asset not found")

	_, err = am.LoadAsset("broken.vert.spv", AssetTypeShader, nil)
	assert.ErrorContains(t, err, "not a SPIR-V module")

	_, err = am.LoadShaders()
	assert.Error(t, err)
}

func TestLoadTextureResamples(t *testing.T) {
	root := t.TempDir()
	writePNG(t, filepath.Join(root, "textures", "logo.png"), 8, 4)
	am := newManager(t, root)
	assert.True(t, am.Has("logo.png", AssetTypeImage))

	res, err := am.LoadAsset("logo.png", AssetTypeImage, nil)
	require.NoError(t, err)
	img := res.Data.(*loaders.Image)
	assert.Equal(t, uint32(8), img.Width)
	assert.Equal(t, uint32(4), img.Height)
	require.Len(t, img.Pixels, 8*4*4)
	// pixel (3, 2)
	off := (2*8 + 3) * 4
	assert.Equal(t, []byte{3, 2, 7, 255}, img.Pixels[off:off+4])

	res, err = am.LoadAsset("logo.png", AssetTypeImage, &loaders.TextureParams{Width: 16, Height: 16})
	require.NoError(t, err)
	img = res.Data.(*loaders.Image)
	assert.Equal(t, uint32(16), img.Width)
	assert.Len(t, img.Pixels, 16*16*4)
}

func TestIndexFollowsNewFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "textures"), 0o755))
	am := newManager(t, root)
	assert.False(t, am.Has("late.png", AssetTypeImage))

	writePNG(t, filepath.Join(root, "textures", "late.png"), 2, 2)
	assert.Eventually(t, func() bool { return am.Has("late.png", AssetTypeImage) },
		2*time.Second, 10*time.Millisecond)
}

func TestWatchDebouncesWrites(t *testing.T) {
	root := t.TempDir()
	settings := filepath.Join(t.TempDir(), "settings.toml")
	writeFile(t, settings, []byte("[render]\n"))
	am := newManager(t, root)

	var calls atomic.Int32
	require.NoError(t, am.Watch(settings, 50*time.Millisecond, func(path string) {
		assert.Equal(t, settings, path)
		calls.Add(1)
	}))

	for i := 0; i < 3; i++ {
		writeFile(t, settings, []byte("[render]\nvsync = true\n"))
	}
	assert.Eventually(t, func() bool { return calls.Load() >= 1 }, 2*time.Second, 10*time.Millisecond)
	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), calls.Load(), "a burst of writes reloads once")
}

func TestShutdownTwice(t *testing.T) {
	am, err := NewAssetManager()
	require.NoError(t, err)
	require.NoError(t, am.Initialize(t.TempDir()))
	require.NoError(t, am.Shutdown())
	require.NoError(t, am.Shutdown())
	assert.Error(t, am.Watch(filepath.Join(t.TempDir(), "x.toml"), time.Millisecond, func(string) {}))
}
