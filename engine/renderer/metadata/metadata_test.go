package metadata

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
)

func TestVSyncWinsOverTearing(t *testing.T) {
	s := DefaultSettings()
	s.VSync = true
	s.AllowTearing = true
	r, changed := s.Resolve()
	assert.True(t, changed)
	assert.True(t, r.VSync)
	assert.False(t, r.AllowTearing)

	s.VSync = false
	r, changed = s.Resolve()
	assert.False(t, changed)
	assert.True(t, r.AllowTearing)
}

func TestConstantLayoutFitsAlignment(t *testing.T) {
	assert.Equal(t, uintptr(176), unsafe.Sizeof(DrawConstants{}))
	assert.LessOrEqual(t, unsafe.Sizeof(DrawConstants{}), uintptr(CONSTANT_ALIGNMENT))
	assert.Equal(t, uintptr(20), unsafe.Sizeof(DrawIndexedIndirectArgs{}))
}

func TestSpriteVerticesCoverViewport(t *testing.T) {
	out := AppendSpriteVertices(nil, Quad{X: 0, Y: 0, W: 100, H: 50, U1: 1, V1: 1}, 100, 50)
	assert.Len(t, out, 6)
	assert.Equal(t, SpriteVertex{-1, 1, 0, 0}, out[0])
	assert.Equal(t, SpriteVertex{1, -1, 1, 1}, out[2])
	assert.Equal(t, out[0], out[3])
	assert.Equal(t, SpriteVertex{-1, -1, 0, 1}, out[5])
}

func TestDrawListLen(t *testing.T) {
	d := DrawList{Static: make([]DrawStatic, 3), Dynamic: make([]DrawDynamic, 2)}
	assert.Equal(t, 2, d.Len())
}
