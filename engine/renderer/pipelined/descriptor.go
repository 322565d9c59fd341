package pipelined

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
)

// DescriptorAllocation is a run of consecutive tables of a heap.
type DescriptorAllocation struct {
	Heap  gpu.DescriptorHeap
	First uint32
	Count uint32
}

// Table returns the i-th table of the allocation.
func (d DescriptorAllocation) Table(i uint32) uint32 {
	if i >= d.Count {
		panic(errors.Newf("descriptor table %d out of allocation of %d", i, d.Count))
	}
	return d.First + i
}

// DescriptorTableAllocator carves tables out of a fixed range of a heap,
// linearly, the same way LinearAllocator does for bytes.
type DescriptorTableAllocator struct {
	name   string
	heap   gpu.DescriptorHeap
	first  uint32
	count  uint32
	cursor uint32
}

func NewDescriptorTableAllocator(name string, heap gpu.DescriptorHeap, first, count uint32) (*DescriptorTableAllocator, error) {
	if first+count > heap.Tables() {
		return nil, errors.Newf("%s: tables [%d,%d) outside heap of %d", name, first, first+count, heap.Tables())
	}
	return &DescriptorTableAllocator{name: name, heap: heap, first: first, count: count}, nil
}

func (d *DescriptorTableAllocator) Reset() {
	d.cursor = 0
}

func (d *DescriptorTableAllocator) Allocate(n uint32) (DescriptorAllocation, error) {
	if d.cursor+n > d.count {
		return DescriptorAllocation{}, core.CapacityExceeded(d.name, uint64(n), uint64(d.count-d.cursor))
	}
	a := DescriptorAllocation{Heap: d.heap, First: d.first + d.cursor, Count: n}
	d.cursor += n
	return a, nil
}

func (d *DescriptorTableAllocator) Used() uint32     { return d.cursor }
func (d *DescriptorTableAllocator) Capacity() uint32 { return d.count }
