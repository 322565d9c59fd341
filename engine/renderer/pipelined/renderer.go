// Package pipelined renders the asteroid field with several frames in flight.
// Each frame slot owns its transient upload memory, descriptor tables and
// command contexts, the draws are recorded by parallel workers into one
// command list per shard, and the lists are submitted in a fixed order
// followed by a single fence signal that retires the slot.
package pipelined

import (
	"time"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/math"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
	"github.com/spaghettifunk/asteroids/engine/renderer/metadata"
)

type ShaderSource struct {
	Vertex   []byte
	Fragment []byte
}

// TextureData is an RGBA8 image.
type TextureData struct {
	Name   string
	Width  uint32
	Height uint32
	Pixels []byte
}

// Geometry is the shared vertex and index data of every asteroid mesh.
type Geometry struct {
	Vertices []metadata.Vertex
	Indices  []metadata.IndexType
}

type Options struct {
	// Worst-case draw count of a frame; sizes the subset budgets.
	MaxDraws           int
	Subsets            int
	FramesInFlight     int
	SwapchainBuffers   int
	FenceTimeout       time.Duration
	MaxOverlayElements int

	Meshes         Geometry
	SkyboxVertices []metadata.SkyboxVertex
	// Asteroid textures, addressed by DrawStatic.TextureIndex.
	Textures []TextureData
	Skybox   TextureData
	Font     TextureData
	Sprites  []TextureData
	Shaders  map[gpu.PipelineKind]ShaderSource

	Profiler *core.Profiler
}

func DefaultOptions() Options {
	return Options{
		MaxDraws:           metadata.NUM_ASTEROIDS,
		Subsets:            metadata.NUM_SUBSETS,
		FramesInFlight:     metadata.NUM_FRAMES_TO_BUFFER,
		SwapchainBuffers:   metadata.NUM_SWAP_CHAIN_BUFFERS,
		FenceTimeout:       5 * time.Second,
		MaxOverlayElements: 32,
	}
}

type Stats struct {
	Frames         uint64
	FenceSubmitted uint64
	FenceCompleted uint64
	LastPresent    gpu.PresentMode
	// Labels of the last frame's command lists in enqueue order.
	LastOrder []string
	Slots     []SlotStats
}

type Renderer struct {
	device    gpu.Device
	opts      Options
	profiler  *core.Profiler
	layout    SlotLayout
	fence     *Fence
	ring      *FrameRing
	swap      *SwapChainManager
	submitter *Submitter
	heap      gpu.DescriptorHeap

	pipelines      [gpu.PipelineKindCount]gpu.Pipeline
	meshVertices   gpu.Buffer
	meshIndices    gpu.Buffer
	skyboxVertices gpu.Buffer
	textures       []gpu.Texture
	skybox         gpu.Texture
	font           gpu.Texture
	sprites        map[string]gpu.Texture

	spriteScratch []metadata.SpriteVertex
	frames        uint64
	lastPresent   gpu.PresentMode
	closed        bool
}

// New creates every GPU object the renderer needs, sized for the worst case
// described by opts. Any failure releases what was created so far.
func New(device gpu.Device, opts Options) (r *Renderer, err error) {
	if opts.Subsets <= 0 || opts.FramesInFlight <= 0 || opts.SwapchainBuffers <= 0 {
		return nil, errors.Newf("invalid renderer options: %d subsets, %d frames, %d buffers",
			opts.Subsets, opts.FramesInFlight, opts.SwapchainBuffers)
	}
	if len(opts.Textures) == 0 {
		return nil, errors.New("renderer needs at least one asteroid texture")
	}

	r = &Renderer{
		device:   device,
		opts:     opts,
		profiler: opts.Profiler,
		sprites:  make(map[string]gpu.Texture),
	}
	defer func() {
		if err != nil {
			r.release()
			r = nil
		}
	}()

	alignment := device.Limits().ConstantAlignment
	if alignment < metadata.CONSTANT_ALIGNMENT {
		alignment = metadata.CONSTANT_ALIGNMENT
	}
	r.layout = SlotLayout{
		Subsets:      opts.Subsets,
		Alignment:    alignment,
		PreBytes:     math.Align(uint64(unsafe.Sizeof(metadata.SkyboxConstants{})), alignment),
		SubsetBytes:  subsetBytes(maxShardLen(opts.MaxDraws, opts.Subsets), alignment),
		PostBytes:    math.Align(metadata.MAX_SPRITE_VERTICES_PER_FRAME*uint64(unsafe.Sizeof(metadata.SpriteVertex{})), alignment),
		PreTables:    1,
		SubsetTables: 1,
		PostTables:   uint32(opts.MaxOverlayElements),
	}

	if err = r.createPipelines(); err != nil {
		return nil, err
	}
	if err = r.createGeometry(); err != nil {
		return nil, err
	}
	if err = r.createTextures(); err != nil {
		return nil, err
	}

	tableSize := uint32(len(opts.Textures))
	if r.heap, err = device.NewDescriptorHeap(uint32(opts.FramesInFlight)*r.layout.Tables(), tableSize); err != nil {
		return nil, core.CreationFailed(err, "descriptor heap")
	}
	if r.fence, err = NewFence(device, opts.FenceTimeout, r.profiler); err != nil {
		return nil, err
	}
	r.ring, err = NewFrameRing(r.fence, opts.FramesInFlight, func(i int) (*FrameSlot, error) {
		return NewFrameSlot(device, r.heap, i, r.layout)
	})
	if err != nil {
		return nil, err
	}
	r.swap = NewSwapChainManager(device, r.fence, opts.SwapchainBuffers, r.profiler)
	r.submitter = NewSubmitter(device.Queue(), r.fence, r.ring, r.profiler)
	r.spriteScratch = make([]metadata.SpriteVertex, 0, metadata.MAX_SPRITE_VERTICES_PER_FRAME)

	core.LogInfo("pipelined renderer on %s: %d frame slots, %d subsets, %d KiB upload per slot, %d descriptor tables",
		device.Name(), opts.FramesInFlight, opts.Subsets, r.layout.UploadBytes()/1024, r.heap.Tables())
	return r, nil
}

func (r *Renderer) createPipelines() error {
	for k := gpu.PipelineKind(0); k < gpu.PipelineKindCount; k++ {
		src := r.opts.Shaders[k]
		p, err := r.device.NewPipeline(gpu.PipelineDesc{Kind: k, VertexShader: src.Vertex, FragmentShader: src.Fragment})
		if err != nil {
			return core.CreationFailed(err, "%s pipeline", k)
		}
		r.pipelines[k] = p
	}
	return nil
}

func (r *Renderer) createGeometry() error {
	var err error
	m := r.opts.Meshes
	if len(m.Vertices) == 0 || len(m.Indices) == 0 {
		return core.CreationFailed(nil, "no asteroid mesh data")
	}
	if r.meshVertices, err = r.device.NewStaticBuffer(gpu.UsageVertex, bytesOf(m.Vertices)); err != nil {
		return core.CreationFailed(err, "asteroid vertex buffer")
	}
	if r.meshIndices, err = r.device.NewStaticBuffer(gpu.UsageIndex, bytesOf(m.Indices)); err != nil {
		return core.CreationFailed(err, "asteroid index buffer")
	}
	if len(r.opts.SkyboxVertices) != metadata.SKYBOX_VERTEX_COUNT {
		return core.CreationFailed(nil, "skybox needs %d vertices, got %d", metadata.SKYBOX_VERTEX_COUNT, len(r.opts.SkyboxVertices))
	}
	if r.skyboxVertices, err = r.device.NewStaticBuffer(gpu.UsageVertex, bytesOf(r.opts.SkyboxVertices)); err != nil {
		return core.CreationFailed(err, "skybox vertex buffer")
	}
	return nil
}

func (r *Renderer) newTexture(t TextureData) (gpu.Texture, error) {
	tex, err := r.device.NewTexture(gpu.TextureDesc{Name: t.Name, Width: t.Width, Height: t.Height}, t.Pixels)
	if err != nil {
		return nil, core.CreationFailed(err, "texture %q", t.Name)
	}
	return tex, nil
}

func (r *Renderer) createTextures() error {
	for _, t := range r.opts.Textures {
		tex, err := r.newTexture(t)
		if err != nil {
			return err
		}
		r.textures = append(r.textures, tex)
	}
	var err error
	if r.skybox, err = r.newTexture(r.opts.Skybox); err != nil {
		return err
	}
	if r.font, err = r.newTexture(r.opts.Font); err != nil {
		return err
	}
	for _, t := range r.opts.Sprites {
		tex, err := r.newTexture(t)
		if err != nil {
			return err
		}
		r.sprites[t.Name] = tex
	}
	return nil
}

func bytesOf[T any](s []T) []byte {
	if len(s) == 0 {
		return nil
	}
	var zero T
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), uintptr(len(s))*unsafe.Sizeof(zero))
}

// WaitForReadyToRender blocks until the slot of the next frame is free, so
// the caller can take its frame timestamp right before CPU work begins.
func (r *Renderer) WaitForReadyToRender() error {
	if r.closed {
		return errors.New("renderer closed")
	}
	return r.ring.WaitNext()
}

// Render records, submits and presents one frame. Frames are skipped while
// there is no swap chain or it is being recreated.
func (r *Renderer) Render(frameTimeSeconds float32, in metadata.FrameInput) error {
	if r.closed {
		return errors.New("renderer closed")
	}
	span := r.profiler.Begin(core.MarkerRender)
	defer span.End()

	if !r.swap.Ready() {
		return nil
	}
	settings, changed := in.Settings.Resolve()
	if changed {
		core.LogDebug("vsync requested, tearing forced off")
	}
	draws := in.Draws.Len()
	if draws > r.opts.MaxDraws {
		return core.CapacityExceeded("draws per frame", uint64(draws), uint64(r.opts.MaxDraws))
	}

	slot, err := r.ring.AcquireNext()
	if err != nil {
		return err
	}
	_, target, err := r.swap.Acquire()
	if errors.Is(err, core.ErrSwapchainBooting) {
		r.ring.Cancel(slot)
		return nil
	}
	if err != nil {
		r.ring.Cancel(slot)
		return err
	}
	if err := slot.BeginRecording(); err != nil {
		return err
	}

	w, h := r.swap.Extent()
	fc := &frameContext{
		in:        &in,
		settings:  settings,
		frameTime: frameTimeSeconds,
		target:    target,
		depth:     r.swap.Depth(),
		width:     w,
		height:    h,
	}
	r.submitter.Begin(settings)
	if err := r.recordFrame(fc, slot, draws); err != nil {
		r.submitter.Abort(slot)
		return err
	}
	if _, err := r.submitter.Finish(slot); err != nil {
		return err
	}
	r.frames++

	if r.lastPresent, err = r.swap.Present(settings); err != nil {
		return err
	}
	return nil
}

func (r *Renderer) recordFrame(fc *frameContext, slot *FrameSlot, draws int) error {
	pre, err := r.recordPrePass(fc, slot.Pre())
	if err != nil {
		return err
	}
	if err := r.submitter.Add(pre); err != nil {
		return err
	}
	if err := r.recordSubsets(fc, slot, Partition(draws, slot.SubsetCount())); err != nil {
		return err
	}
	post, err := r.recordPostPass(fc, slot.Post())
	if err != nil {
		return err
	}
	return r.submitter.Add(post)
}

// ResizeSwapChain drains all in-flight frames and recreates the swap chain
// buffers at the new size.
func (r *Renderer) ResizeSwapChain(surface gpu.Surface, width, height uint32, allowTearing bool) error {
	if r.closed {
		return errors.New("renderer closed")
	}
	return r.swap.Resize(surface, width, height, allowTearing)
}

// ReleaseSwapChain drains all in-flight frames and releases the presentable
// buffers, e.g. before the output is handed to another renderer.
func (r *Renderer) ReleaseSwapChain() error {
	if r.closed {
		return nil
	}
	return r.swap.ReleaseAll()
}

// Frames counts the frames recorded and submitted so far. Skipped frames are
// not counted.
func (r *Renderer) Frames() uint64 { return r.frames }

func (r *Renderer) Stats() Stats {
	s := Stats{
		Frames:      r.frames,
		LastPresent: r.lastPresent,
		LastOrder:   r.submitter.Order(),
	}
	if r.fence != nil {
		s.FenceSubmitted = r.fence.Submitted()
		s.FenceCompleted = r.fence.Completed()
	}
	r.ring.Each(func(slot *FrameSlot) { s.Slots = append(s.Slots, slot.Stats()) })
	return s
}

// Close drains the GPU and releases everything. Calling it again is a no-op.
func (r *Renderer) Close() error {
	if r.closed {
		return nil
	}
	r.closed = true
	var err error
	if r.fence != nil {
		err = r.fence.DrainAll()
	}
	if err != nil {
		core.LogError("drain on close failed, releasing anyway: %v", err)
		if werr := r.device.WaitIdle(); werr != nil {
			core.LogError("device idle wait failed: %v", werr)
		}
	}
	r.release()
	core.LogInfo("pipelined renderer closed after %d frames", r.frames)
	return err
}

// release destroys whatever exists, in reverse creation order.
func (r *Renderer) release() {
	if r.swap != nil {
		if r.swap.depth != nil {
			r.swap.depth.Destroy()
			r.swap.depth = nil
		}
		if r.swap.swapchain != nil {
			r.swap.swapchain.Destroy()
			r.swap.swapchain = nil
		}
	}
	if r.ring != nil {
		r.ring.Destroy()
	}
	if r.fence != nil {
		r.fence.Destroy()
	}
	if r.heap != nil {
		r.heap.Destroy()
		r.heap = nil
	}
	for _, t := range r.sprites {
		t.Destroy()
	}
	r.sprites = nil
	for _, t := range []gpu.Texture{r.font, r.skybox} {
		if t != nil {
			t.Destroy()
		}
	}
	r.font, r.skybox = nil, nil
	for _, t := range r.textures {
		t.Destroy()
	}
	r.textures = nil
	for _, b := range []gpu.Buffer{r.skyboxVertices, r.meshIndices, r.meshVertices} {
		if b != nil {
			b.Destroy()
		}
	}
	r.skyboxVertices, r.meshIndices, r.meshVertices = nil, nil, nil
	for i, p := range r.pipelines {
		if p != nil {
			p.Destroy()
			r.pipelines[i] = nil
		}
	}
}
