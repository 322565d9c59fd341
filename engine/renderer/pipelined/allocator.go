package pipelined

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/math"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
)

// Allocation is a range of upload memory handed out for the current frame.
// Data aliases the mapped memory and must not be kept past the frame.
type Allocation struct {
	Buffer gpu.UploadBuffer
	Offset uint64
	Size   uint64
	Data   []byte
}

func (a Allocation) Range() gpu.BufferRange {
	return gpu.BufferRange{Buffer: a.Buffer, Offset: a.Offset, Size: a.Size}
}

// LinearAllocator hands out monotonically increasing ranges of a fixed region
// of an upload buffer. Nothing is freed individually; Reset rewinds the whole
// region once the GPU is done with it.
type LinearAllocator struct {
	name      string
	buffer    gpu.UploadBuffer
	base      uint64
	capacity  uint64
	alignment uint64
	cursor    uint64
	mapped    []byte
}

// NewLinearAllocator manages [base, base+capacity) of buffer. Alignment must
// be a power of two.
func NewLinearAllocator(name string, buffer gpu.UploadBuffer, base, capacity, alignment uint64) (*LinearAllocator, error) {
	if !math.IsPowerOfTwo(alignment) {
		return nil, errors.Newf("%s: alignment %d is not a power of two", name, alignment)
	}
	if base+capacity > buffer.Size() {
		return nil, errors.Newf("%s: region [%d,%d) outside buffer of %d bytes", name, base, base+capacity, buffer.Size())
	}
	return &LinearAllocator{
		name:      name,
		buffer:    buffer,
		base:      base,
		capacity:  capacity,
		alignment: alignment,
	}, nil
}

// Reset rewinds the cursor to the start of the region and maps it again.
// Only legal once every command list reading the region has completed.
func (a *LinearAllocator) Reset() {
	a.cursor = 0
	a.mapped = a.buffer.Bytes()[a.base : a.base+a.capacity]
}

// Allocate returns size bytes at the allocator's default alignment.
func (a *LinearAllocator) Allocate(size uint64) (Allocation, error) {
	return a.AllocateAligned(size, a.alignment)
}

// AllocateAligned returns size bytes whose buffer offset is a multiple of
// alignment. Running past the region is a capacity error; the cursor does
// not move in that case.
func (a *LinearAllocator) AllocateAligned(size uint64, alignment uint64) (Allocation, error) {
	if a.mapped == nil {
		return Allocation{}, errors.Newf("%s: allocation before Reset", a.name)
	}
	start := math.Align(a.base+a.cursor, alignment) - a.base
	if start+size > a.capacity {
		remaining := uint64(0)
		if start < a.capacity {
			remaining = a.capacity - start
		}
		return Allocation{}, core.CapacityExceeded(a.name, size, remaining)
	}
	a.cursor = start + size
	return Allocation{
		Buffer: a.buffer,
		Offset: a.base + start,
		Size:   size,
		Data:   a.mapped[start : start+size : start+size],
	}, nil
}

// Used returns the bytes consumed since the last Reset, padding included.
func (a *LinearAllocator) Used() uint64 { return a.cursor }

func (a *LinearAllocator) Capacity() uint64 { return a.capacity }

func (a *LinearAllocator) Name() string { return a.name }

// writeValue copies v into dst, which must be at least as large as T.
func writeValue[T any](dst []byte, v *T) {
	copy(dst, unsafe.Slice((*byte)(unsafe.Pointer(v)), unsafe.Sizeof(*v)))
}

// writeSlice copies vs into dst back to back.
func writeSlice[T any](dst []byte, vs []T) {
	if len(vs) == 0 {
		return
	}
	var zero T
	n := uintptr(len(vs)) * unsafe.Sizeof(zero)
	copy(dst, unsafe.Slice((*byte)(unsafe.Pointer(&vs[0])), n))
}

// sliceOf views b as a slice of n values of T. b must be aligned for T.
func sliceOf[T any](b []byte, n int) []T {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*T)(unsafe.Pointer(&b[0])), n)
}
