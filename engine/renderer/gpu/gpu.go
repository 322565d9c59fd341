// Package gpu declares the device abstraction the pipelined renderer is
// written against. The model is explicit: command lists are recorded by the
// caller, submitted to a single queue in order, and completion is observed
// through monotonically increasing timeline values.
package gpu

import (
	"context"
	"fmt"
)

type ResourceState uint8

const (
	StatePresent ResourceState = iota
	StateRenderTarget
)

func (s ResourceState) String() string {
	switch s {
	case StatePresent:
		return "present"
	case StateRenderTarget:
		return "render-target"
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// PresentMode selects how a finished frame reaches the display. Exactly one
// mode applies to each present call.
type PresentMode uint8

const (
	// PresentDefault lets the presentation engine throttle without tearing.
	PresentDefault PresentMode = iota
	// PresentVSync waits for vertical blank.
	PresentVSync
	// PresentTearing presents immediately, tearing allowed.
	PresentTearing
)

func (p PresentMode) String() string {
	switch p {
	case PresentDefault:
		return "default"
	case PresentVSync:
		return "vsync"
	case PresentTearing:
		return "tearing"
	}
	return fmt.Sprintf("present(%d)", uint8(p))
}

type BufferUsage uint8

const (
	UsageVertex BufferUsage = 1 << iota
	UsageIndex
	UsageConstant
	UsageIndirect
)

type PipelineKind uint8

const (
	PipelineAsteroid PipelineKind = iota
	PipelineSkybox
	PipelineSprite
	PipelineFont
	PipelineKindCount
)

var pipelineKindNames = [PipelineKindCount]string{"asteroid", "skybox", "sprite", "font"}

func (k PipelineKind) String() string {
	if k >= PipelineKindCount {
		return fmt.Sprintf("pipeline(%d)", uint8(k))
	}
	return pipelineKindNames[k]
}

// Limits are device properties the renderer sizes its allocations with.
type Limits struct {
	// Offset granularity for constant data bound with BindConstants.
	ConstantAlignment uint64
	// Texture views per descriptor table.
	MaxTexturesPerTable uint32
}

type Buffer interface {
	Size() uint64
	Destroy()
}

// UploadBuffer is persistently mapped memory written by the CPU and read by
// the GPU. Writes become visible to the GPU with the next submission that
// references the buffer.
type UploadBuffer interface {
	Buffer
	Bytes() []byte
}

type BufferRange struct {
	Buffer Buffer
	Offset uint64
	Size   uint64
}

// TextureDesc describes an RGBA8 texture.
type TextureDesc struct {
	Name   string
	Width  uint32
	Height uint32
}

type Texture interface {
	Name() string
	Destroy()
}

type RenderTarget interface {
	Extent() (width uint32, height uint32)
}

type DepthTarget interface {
	RenderTarget
	Destroy()
}

type PipelineDesc struct {
	Kind           PipelineKind
	VertexShader   []byte
	FragmentShader []byte
}

type Pipeline interface {
	Kind() PipelineKind
	Destroy()
}

// DescriptorHeap is a fixed array of descriptor tables, each holding
// TableSize texture views.
type DescriptorHeap interface {
	Tables() uint32
	TableSize() uint32
	Write(table uint32, element uint32, texture Texture) error
	Destroy()
}

// PassDesc opens a render pass. With Clear unset the previous contents of
// the targets are kept.
type PassDesc struct {
	Color      RenderTarget
	Depth      DepthTarget
	Clear      bool
	ClearColor [4]float32
	ClearDepth float32
}

// Recorder appends commands to one command list. A Recorder is owned by a
// single goroutine.
type Recorder interface {
	Transition(target RenderTarget, from ResourceState, to ResourceState)
	BeginPass(pass PassDesc)
	EndPass()
	SetViewport(width float32, height float32)
	BindPipeline(p Pipeline)
	BindConstants(r BufferRange)
	BindDescriptorTable(heap DescriptorHeap, table uint32)
	BindVertexBuffer(r BufferRange, stride uint32)
	BindIndexBuffer(r BufferRange)
	Draw(vertexCount uint32, firstVertex uint32)
	DrawIndexed(indexCount uint32, firstIndex uint32, vertexOffset int32, firstInstance uint32)
	DrawIndexedIndirect(args BufferRange, drawCount uint32, stride uint32)
	Close() (CommandList, error)
}

type CommandList interface {
	Label() string
}

// CommandContext owns the memory command lists are recorded into. Reset is
// only legal once the GPU finished every list recorded from the context.
type CommandContext interface {
	Reset() error
	Begin(label string) (Recorder, error)
	Destroy()
}

// Queue is the single submission queue. It is not safe for concurrent use.
type Queue interface {
	Submit(lists ...CommandList) error
	// Signal sets t to value once all previously submitted work completed.
	Signal(t Timeline, value uint64) error
}

// Timeline is a GPU-signaled monotonically increasing counter.
type Timeline interface {
	Completed() uint64
	// Wait blocks until the counter reaches value or ctx is done. It returns
	// ctx.Err() on expiry.
	Wait(ctx context.Context, value uint64) error
	Destroy()
}

// Surface is the platform window surface a swap chain presents to.
type Surface interface{}

type SwapchainDesc struct {
	Surface      Surface
	Width        uint32
	Height       uint32
	BufferCount  int
	AllowTearing bool
}

type Swapchain interface {
	BufferCount() int
	Extent() (width uint32, height uint32)
	// Acquire returns the index of the buffer to render the next frame into.
	Acquire() (int, error)
	Buffer(index int) RenderTarget
	Present(mode PresentMode) error
	// Resize releases every buffer and recreates BufferCount buffers at the
	// new size. No buffer may be referenced by in-flight work.
	Resize(width uint32, height uint32, allowTearing bool) error
	Destroy()
}

type Device interface {
	Name() string
	Limits() Limits
	Queue() Queue
	NewTimeline() (Timeline, error)
	NewUploadBuffer(size uint64) (UploadBuffer, error)
	NewStaticBuffer(usage BufferUsage, data []byte) (Buffer, error)
	NewTexture(desc TextureDesc, pixels []byte) (Texture, error)
	NewDescriptorHeap(tables uint32, tableSize uint32) (DescriptorHeap, error)
	NewCommandContext() (CommandContext, error)
	NewPipeline(desc PipelineDesc) (Pipeline, error)
	NewDepthTarget(width uint32, height uint32) (DepthTarget, error)
	NewSwapchain(desc SwapchainDesc) (Swapchain, error)
	WaitIdle() error
	Destroy()
}
