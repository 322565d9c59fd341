package pipelined

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
)

var (
	skyboxVertexSize = uint32(unsafe.Sizeof(metadata.SkyboxVertex{}))
	spriteVertexSize = uint64(unsafe.Sizeof(metadata.SpriteVertex{}))
)

// recordPrePass moves the back buffer to the render target state, clears
// color and depth and draws the skybox.
func (r *Renderer) recordPrePass(fc *frameContext, region Region) (gpu.CommandList, error) {
	consts, err := region.Upload.Allocate(uint64(unsafe.Sizeof(metadata.SkyboxConstants{})))
	if err != nil {
		return nil, err
	}
	sc := metadata.SkyboxConstants{
		ViewProjection: fc.in.Camera.ViewProjection.Mul4(skyboxWorld(fc.in.Camera.Eye)),
	}
	writeValue(consts.Data, &sc)

	tables, err := region.Tables.Allocate(1)
	if err != nil {
		return nil, err
	}
	if err := r.heap.Write(tables.Table(0), 0, r.skybox); err != nil {
		return nil, err
	}

	rec, err := region.Context.Begin("pre")
	if err != nil {
		return nil, core.Wrapf(err, "pre-pass")
	}
	rec.Transition(fc.target, gpu.StatePresent, gpu.StateRenderTarget)
	rec.BeginPass(gpu.PassDesc{
		Color:      fc.target,
		Depth:      fc.depth,
		Clear:      true,
		ClearColor: [4]float32{0, 0, 0, 1},
		// reverse Z
		ClearDepth: 0,
	})
	rec.SetViewport(float32(fc.width), float32(fc.height))
	rec.BindPipeline(r.pipelines[gpu.PipelineSkybox])
	rec.BindConstants(consts.Range())
	rec.BindDescriptorTable(r.heap, tables.Table(0))
	rec.BindVertexBuffer(gpu.BufferRange{Buffer: r.skyboxVertices, Size: r.skyboxVertices.Size()}, skyboxVertexSize)
	rec.Draw(metadata.SKYBOX_VERTEX_COUNT, 0)
	rec.EndPass()
	return rec.Close()
}

// recordPostPass draws the visible overlay elements on top of the frame and
// moves the back buffer back to the present state. Each element gets its own
// descriptor table holding its texture at element 0.
func (r *Renderer) recordPostPass(fc *frameContext, region Region) (gpu.CommandList, error) {
	vertices := 0
	for _, e := range fc.in.Overlay {
		if e.Visible {
			vertices += e.VertexCount()
		}
	}
	if vertices > metadata.MAX_SPRITE_VERTICES_PER_FRAME {
		return nil, core.CapacityExceeded("overlay sprite vertices", uint64(vertices), metadata.MAX_SPRITE_VERTICES_PER_FRAME)
	}

	rec, err := region.Context.Begin("post")
	if err != nil {
		return nil, core.Wrapf(err, "post-pass")
	}
	if vertices > 0 {
		if err := r.recordOverlay(fc, region, rec, vertices); err != nil {
			return nil, core.Wrapf(err, "post-pass")
		}
	}
	rec.Transition(fc.target, gpu.StateRenderTarget, gpu.StatePresent)
	return rec.Close()
}

func (r *Renderer) recordOverlay(fc *frameContext, region Region, rec gpu.Recorder, vertices int) error {
	vb, err := region.Upload.Allocate(uint64(vertices) * spriteVertexSize)
	if err != nil {
		return err
	}

	rec.BeginPass(gpu.PassDesc{Color: fc.target})
	rec.SetViewport(float32(fc.width), float32(fc.height))

	first := 0
	w, h := float32(fc.width), float32(fc.height)
	scratch := r.spriteScratch[:0]
	bound := gpu.PipelineKindCount
	for _, e := range fc.in.Overlay {
		if !e.Visible || len(e.Quads) == 0 {
			continue
		}
		kind, tex := gpu.PipelineFont, r.font
		if e.Texture != "" {
			kind = gpu.PipelineSprite
			var ok bool
			if tex, ok = r.sprites[e.Texture]; !ok {
				return errors.Newf("overlay texture %q was not loaded", e.Texture)
			}
		}
		tables, err := region.Tables.Allocate(1)
		if err != nil {
			return err
		}
		if err := r.heap.Write(tables.Table(0), 0, tex); err != nil {
			return err
		}

		start := len(scratch)
		for _, q := range e.Quads {
			scratch = metadata.AppendSpriteVertices(scratch, q, w, h)
		}
		if kind != bound {
			rec.BindPipeline(r.pipelines[kind])
			rec.BindVertexBuffer(vb.Range(), uint32(spriteVertexSize))
			bound = kind
		}
		rec.BindDescriptorTable(r.heap, tables.Table(0))
		rec.Draw(uint32(len(scratch)-start), uint32(first))
		first += len(scratch) - start
	}
	writeSlice(vb.Data, scratch)
	r.spriteScratch = scratch[:0]
	rec.EndPass()
	return nil
}
