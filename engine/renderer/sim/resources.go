package sim

import (
	"github.com/cockroachdb/errors"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
)

// resource tracks how many pending command lists reference an object.
// busy and destroyed are guarded by the device mutex.
type resource struct {
	dev       *Device
	kind      string
	name      string
	busy      int
	destroyed bool
}

func (d *Device) newResource(kind, name string) resource {
	return resource{dev: d, kind: kind, name: name}
}

func (r *resource) destroy() {
	r.dev.mutex.Lock()
	defer r.dev.mutex.Unlock()
	if r.destroyed {
		r.dev.hazard("%s %q destroyed twice", r.kind, r.name)
		return
	}
	if r.busy > 0 {
		r.dev.hazard("%s %q destroyed while referenced by %d pending lists", r.kind, r.name, r.busy)
	}
	r.destroyed = true
}

// Busy reports how many pending command lists reference the object.
func (r *resource) Busy() int {
	r.dev.mutex.Lock()
	defer r.dev.mutex.Unlock()
	return r.busy
}

// Destroyed reports whether Destroy was called.
func (r *resource) Destroyed() bool {
	r.dev.mutex.Lock()
	defer r.dev.mutex.Unlock()
	return r.destroyed
}

type Buffer struct {
	resource
	data []byte
}

func (b *Buffer) Size() uint64 { return uint64(len(b.data)) }
func (b *Buffer) Destroy()     { b.destroy() }

// UploadBuffer is CPU-visible memory. Mapping it for writing while pending
// work still reads it is a hazard.
type UploadBuffer struct {
	Buffer
}

func (b *UploadBuffer) Bytes() []byte {
	b.dev.mutex.Lock()
	defer b.dev.mutex.Unlock()
	if b.busy > 0 {
		b.dev.hazard("upload buffer %q mapped for writing while referenced by %d pending lists", b.name, b.busy)
	}
	return b.data
}

func (d *Device) NewUploadBuffer(size uint64) (gpu.UploadBuffer, error) {
	if size == 0 {
		return nil, core.CreationFailed(nil, "upload buffer of zero size")
	}
	return &UploadBuffer{Buffer{resource: d.newResource("upload buffer", "upload"), data: make([]byte, size)}}, nil
}

func (d *Device) NewStaticBuffer(usage gpu.BufferUsage, data []byte) (gpu.Buffer, error) {
	if len(data) == 0 {
		return nil, core.CreationFailed(nil, "static buffer without data")
	}
	return &Buffer{resource: d.newResource("static buffer", "static"), data: append([]byte(nil), data...)}, nil
}

type Texture struct {
	resource
	desc gpu.TextureDesc
}

func (t *Texture) Name() string { return t.desc.Name }
func (t *Texture) Destroy()     { t.destroy() }

func (d *Device) NewTexture(desc gpu.TextureDesc, pixels []byte) (gpu.Texture, error) {
	if want := int(desc.Width * desc.Height * 4); len(pixels) != want {
		return nil, core.CreationFailed(nil, "texture %q: %d bytes of pixels, want %d", desc.Name, len(pixels), want)
	}
	return &Texture{resource: d.newResource("texture", desc.Name), desc: desc}, nil
}

type DepthTarget struct {
	resource
	width, height uint32
}

func (t *DepthTarget) Extent() (uint32, uint32) { return t.width, t.height }
func (t *DepthTarget) Destroy()                 { t.destroy() }

func (d *Device) NewDepthTarget(width, height uint32) (gpu.DepthTarget, error) {
	if width == 0 || height == 0 {
		return nil, core.CreationFailed(nil, "depth target %dx%d", width, height)
	}
	return &DepthTarget{resource: d.newResource("depth target", "depth"), width: width, height: height}, nil
}

type Pipeline struct {
	resource
	kind gpu.PipelineKind
}

func (p *Pipeline) Kind() gpu.PipelineKind { return p.kind }
func (p *Pipeline) Destroy()               { p.destroy() }

func (d *Device) NewPipeline(desc gpu.PipelineDesc) (gpu.Pipeline, error) {
	if desc.Kind >= gpu.PipelineKindCount {
		return nil, core.CreationFailed(nil, "unknown pipeline kind %d", desc.Kind)
	}
	return &Pipeline{resource: d.newResource("pipeline", desc.Kind.String()), kind: desc.Kind}, nil
}

// DescriptorHeap tracks references per table so independent tables of one
// heap can be written while others are in flight.
type DescriptorHeap struct {
	resource
	tableSize uint32
	tables    []*descriptorTable
}

type descriptorTable struct {
	resource
	views []gpu.Texture
}

func (d *Device) NewDescriptorHeap(tables uint32, tableSize uint32) (gpu.DescriptorHeap, error) {
	if tables == 0 || tableSize == 0 {
		return nil, core.CreationFailed(nil, "descriptor heap %dx%d", tables, tableSize)
	}
	if tableSize > d.opts.Limits.MaxTexturesPerTable {
		return nil, core.CreationFailed(nil, "descriptor table size %d exceeds device limit %d", tableSize, d.opts.Limits.MaxTexturesPerTable)
	}
	h := &DescriptorHeap{resource: d.newResource("descriptor heap", "heap"), tableSize: tableSize}
	h.tables = make([]*descriptorTable, tables)
	for i := range h.tables {
		h.tables[i] = &descriptorTable{
			resource: d.newResource("descriptor table", "table"),
			views:    make([]gpu.Texture, tableSize),
		}
	}
	return h, nil
}

func (h *DescriptorHeap) Tables() uint32    { return uint32(len(h.tables)) }
func (h *DescriptorHeap) TableSize() uint32 { return h.tableSize }
func (h *DescriptorHeap) Destroy()          { h.destroy() }

func (h *DescriptorHeap) Write(table uint32, element uint32, texture gpu.Texture) error {
	if table >= uint32(len(h.tables)) || element >= h.tableSize {
		return errors.Newf("descriptor write out of range: table %d element %d", table, element)
	}
	t := h.tables[table]
	h.dev.mutex.Lock()
	defer h.dev.mutex.Unlock()
	if t.busy > 0 {
		h.dev.hazard("descriptor table %d written while referenced by %d pending lists", table, t.busy)
	}
	t.views[element] = texture
	return nil
}

// View returns the texture written at table/element.
func (h *DescriptorHeap) View(table, element uint32) gpu.Texture {
	return h.tables[table].views[element]
}
