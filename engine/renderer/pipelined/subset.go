package pipelined

import (
	"fmt"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/math"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
	"golang.org/x/sync/errgroup"
)

var (
	drawConstantsSize = uint64(unsafe.Sizeof(metadata.DrawConstants{}))
	indirectArgsSize  = uint64(unsafe.Sizeof(metadata.DrawIndexedIndirectArgs{}))
	vertexSize        = uint32(unsafe.Sizeof(metadata.Vertex{}))
)

// frameContext is the read-only state every recorder of a frame shares.
type frameContext struct {
	in        *metadata.FrameInput
	settings  metadata.Settings
	frameTime float32
	target    gpu.RenderTarget
	depth     gpu.DepthTarget
	width     uint32
	height    uint32
}

// subsetBytes is the upload budget of one worker recording up to draws items.
func subsetBytes(draws int, alignment uint64) uint64 {
	n := uint64(draws)
	return math.Align(n*alignment+n*indirectArgsSize, alignment)
}

// recordSubset records the draws of one shard into its private region.
func (r *Renderer) recordSubset(fc *frameContext, shard Shard, region Region) (gpu.CommandList, error) {
	if fc.in.Update != nil && fc.settings.Animate {
		span := r.profiler.Begin(core.MarkerSimUpdate)
		fc.in.Update(fc.frameTime, fc.in.Camera.Eye, shard.Start, shard.End)
		span.End()
	}

	tables, err := region.Tables.Allocate(1)
	if err != nil {
		return nil, err
	}
	table := tables.Table(0)

	rec, err := region.Context.Begin(fmt.Sprintf("subset %d", shard.Index))
	if err != nil {
		return nil, core.Wrapf(err, "subset %d", shard.Index)
	}
	rec.BeginPass(gpu.PassDesc{Color: fc.target, Depth: fc.depth})
	rec.SetViewport(float32(fc.width), float32(fc.height))
	rec.BindPipeline(r.pipelines[gpu.PipelineAsteroid])
	rec.BindDescriptorTable(r.heap, table)
	rec.BindVertexBuffer(gpu.BufferRange{Buffer: r.meshVertices, Size: r.meshVertices.Size()}, vertexSize)
	rec.BindIndexBuffer(gpu.BufferRange{Buffer: r.meshIndices, Size: r.meshIndices.Size()})

	if fc.settings.Indirect {
		err = r.recordIndirect(fc, shard, region, table, rec)
	} else {
		err = r.recordDirect(fc, shard, region, table, rec)
	}
	if err != nil {
		return nil, core.Wrapf(err, "subset %d", shard.Index)
	}
	rec.EndPass()
	return rec.Close()
}

// drawConstants fills the constant block of draw i.
func drawConstants(in *metadata.FrameInput, i int) metadata.DrawConstants {
	st, dy := &in.Draws.Static[i], &in.Draws.Dynamic[i]
	return metadata.DrawConstants{
		World:          dy.World,
		ViewProjection: in.Camera.ViewProjection,
		SurfaceColor:   st.SurfaceColor.Vec4(0),
		DeepColor:      st.DeepColor.Vec4(0),
		TextureIndex:   st.TextureIndex,
	}
}

// locateTexture makes sure texture index is written into the worker's table
// for this frame.
func (r *Renderer) locateTexture(table uint32, index uint32, written []bool) error {
	if int(index) >= len(r.textures) {
		return errors.Newf("texture index %d out of %d textures", index, len(r.textures))
	}
	if written[index] {
		return nil
	}
	written[index] = true
	return r.heap.Write(table, index, r.textures[index])
}

func (r *Renderer) recordDirect(fc *frameContext, shard Shard, region Region, table uint32, rec gpu.Recorder) error {
	written := make([]bool, len(r.textures))
	for i := shard.Start; i < shard.End; i++ {
		c := drawConstants(fc.in, i)
		if err := r.locateTexture(table, c.TextureIndex, written); err != nil {
			return err
		}
		a, err := region.Upload.Allocate(drawConstantsSize)
		if err != nil {
			return err
		}
		writeValue(a.Data, &c)

		st, dy := &fc.in.Draws.Static[i], &fc.in.Draws.Dynamic[i]
		rec.BindConstants(a.Range())
		rec.DrawIndexed(dy.IndexCount, dy.IndexStart, st.VertexStart, 0)
	}
	return nil
}

// recordIndirect writes the constants of the shard back to back at the
// allocator stride and one argument entry per draw whose first instance is
// the draw's index within the shard. The shader finds its constants through
// the instance index.
func (r *Renderer) recordIndirect(fc *frameContext, shard Shard, region Region, table uint32, rec gpu.Recorder) error {
	n := shard.Len()
	if n == 0 {
		return nil
	}
	stride := region.Upload.alignment
	consts, err := region.Upload.Allocate(uint64(n) * stride)
	if err != nil {
		return err
	}
	argsAlloc, err := region.Upload.AllocateAligned(uint64(n)*indirectArgsSize, 4)
	if err != nil {
		return err
	}
	args := sliceOf[metadata.DrawIndexedIndirectArgs](argsAlloc.Data, n)

	written := make([]bool, len(r.textures))
	for local := 0; local < n; local++ {
		i := shard.Start + local
		c := drawConstants(fc.in, i)
		if err := r.locateTexture(table, c.TextureIndex, written); err != nil {
			return err
		}
		writeValue(consts.Data[uint64(local)*stride:], &c)

		st, dy := &fc.in.Draws.Static[i], &fc.in.Draws.Dynamic[i]
		args[local] = metadata.DrawIndexedIndirectArgs{
			IndexCount:    dy.IndexCount,
			InstanceCount: 1,
			FirstIndex:    dy.IndexStart,
			VertexOffset:  st.VertexStart,
			FirstInstance: uint32(local),
		}
	}
	rec.BindConstants(gpu.BufferRange{Buffer: consts.Buffer, Offset: consts.Offset, Size: consts.Size})
	rec.DrawIndexedIndirect(argsAlloc.Range(), uint32(n), uint32(indirectArgsSize))
	return nil
}

// recordSubsets records every shard and hands the lists to the submitter in
// worker order. Multithreaded recording forks one goroutine per shard and
// joins before anything is handed over; otherwise shards are recorded in
// order and each list is handed over as soon as it is closed.
func (r *Renderer) recordSubsets(fc *frameContext, slot *FrameSlot, shards []Shard) error {
	if !fc.settings.Multithreaded {
		for _, sh := range shards {
			l, err := r.recordShard(fc, sh, slot.Subset(sh.Index))
			if err != nil {
				return err
			}
			if err := r.submitter.Add(l); err != nil {
				return err
			}
		}
		return nil
	}

	lists := make([]gpu.CommandList, len(shards))
	var g errgroup.Group
	for _, sh := range shards {
		sh := sh
		g.Go(func() error {
			l, err := r.recordShard(fc, sh, slot.Subset(sh.Index))
			lists[sh.Index] = l
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	for _, l := range lists {
		if err := r.submitter.Add(l); err != nil {
			return err
		}
	}
	return nil
}

func (r *Renderer) recordShard(fc *frameContext, sh Shard, region Region) (gpu.CommandList, error) {
	span := r.profiler.Begin(core.MarkerRenderSubset)
	defer span.End()
	return r.recordSubset(fc, sh, region)
}

// skyboxWorld keeps the sky centered on the eye.
func skyboxWorld(eye mgl32.Vec3) mgl32.Mat4 {
	return mgl32.Translate3D(eye.X(), eye.Y(), eye.Z())
}
