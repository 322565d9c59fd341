package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
)

// DescriptorHeap is a pool holding one texture array set per table. Every
// element starts out pointing at the placeholder texture so partially
// written tables are always valid to bind.
type DescriptorHeap struct {
	device    *Device
	pool      vk.DescriptorPool
	sets      []vk.DescriptorSet
	tableSize uint32
}

var _ gpu.DescriptorHeap = (*DescriptorHeap)(nil)

func (d *Device) NewDescriptorHeap(tables, tableSize uint32) (gpu.DescriptorHeap, error) {
	if tables == 0 || tableSize == 0 {
		return nil, core.CreationFailed(nil, "descriptor heap of %d tables x %d", tables, tableSize)
	}
	if tableSize > d.opts.MaxTexturesPerTable {
		return nil, core.CreationFailed(nil, "table size %d exceeds the device limit of %d", tableSize, d.opts.MaxTexturesPerTable)
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       tables,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeCombinedImageSampler,
			DescriptorCount: tables * d.opts.MaxTexturesPerTable,
		}},
	}
	var pool vk.DescriptorPool
	if err := created(vk.CreateDescriptorPool(d.handle, &poolInfo, nil, &pool), "descriptor heap pool"); err != nil {
		return nil, err
	}
	heap := &DescriptorHeap{device: d, pool: pool, tableSize: tableSize, sets: make([]vk.DescriptorSet, tables)}

	for i := range heap.sets {
		allocInfo := vk.DescriptorSetAllocateInfo{
			SType:              vk.StructureTypeDescriptorSetAllocateInfo,
			DescriptorPool:     pool,
			DescriptorSetCount: 1,
			PSetLayouts:        []vk.DescriptorSetLayout{d.texturesLayout},
		}
		var set vk.DescriptorSet
		if err := created(vk.AllocateDescriptorSets(d.handle, &allocInfo, &set), "descriptor table %d", i); err != nil {
			heap.Destroy()
			return nil, err
		}
		heap.sets[i] = set
	}

	placeholder := make([]vk.DescriptorImageInfo, d.opts.MaxTexturesPerTable)
	for i := range placeholder {
		placeholder[i] = d.imageInfo(d.placeholder)
	}
	writes := make([]vk.WriteDescriptorSet, tables)
	for i, set := range heap.sets {
		writes[i] = vk.WriteDescriptorSet{
			SType:           vk.StructureTypeWriteDescriptorSet,
			DstSet:          set,
			DescriptorCount: d.opts.MaxTexturesPerTable,
			DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
			PImageInfo:      placeholder,
		}
	}
	vk.UpdateDescriptorSets(d.handle, tables, writes, 0, nil)
	return heap, nil
}

func (d *Device) imageInfo(t *Texture) vk.DescriptorImageInfo {
	return vk.DescriptorImageInfo{
		Sampler:     d.sampler,
		ImageView:   t.view,
		ImageLayout: vk.ImageLayoutShaderReadOnlyOptimal,
	}
}

func (h *DescriptorHeap) Tables() uint32    { return uint32(len(h.sets)) }
func (h *DescriptorHeap) TableSize() uint32 { return h.tableSize }

// Write points one element of a table at texture. The table must not be in
// use by the GPU.
func (h *DescriptorHeap) Write(table, element uint32, texture gpu.Texture) error {
	if table >= uint32(len(h.sets)) || element >= h.tableSize {
		return errors.AssertionFailedf("descriptor (%d, %d) outside a heap of %d x %d", table, element, len(h.sets), h.tableSize)
	}
	t, ok := texture.(*Texture)
	if !ok {
		return errors.AssertionFailedf("texture %q was not created by this device", texture.Name())
	}
	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          h.sets[table],
		DstArrayElement: element,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeCombinedImageSampler,
		PImageInfo:      []vk.DescriptorImageInfo{h.device.imageInfo(t)},
	}
	vk.UpdateDescriptorSets(h.device.handle, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	return nil
}

func (h *DescriptorHeap) Destroy() {
	if h.pool != nil {
		vk.DestroyDescriptorPool(h.device.handle, h.pool, nil)
		h.pool = nil
	}
	h.sets = nil
}
