package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
)

type Buffer struct {
	device *Device
	handle vk.Buffer
	memory vk.DeviceMemory
	size   uint64
}

func (b *Buffer) Size() uint64 { return b.size }

func (b *Buffer) Destroy() {
	if b.handle != nil {
		vk.DestroyBuffer(b.device.handle, b.handle, nil)
		b.handle = nil
	}
	if b.memory != nil {
		vk.FreeMemory(b.device.handle, b.memory, nil)
		b.memory = nil
	}
}

// UploadBuffer stays mapped for its whole life. Its storage descriptor lets
// shaders read draw constants straight out of it.
type UploadBuffer struct {
	Buffer
	mapped    []byte
	constants vk.DescriptorSet
}

var (
	_ gpu.Buffer       = (*Buffer)(nil)
	_ gpu.UploadBuffer = (*UploadBuffer)(nil)
)

func (b *UploadBuffer) Bytes() []byte { return b.mapped }

func (b *UploadBuffer) Destroy() {
	if b.constants != nil {
		sets := []vk.DescriptorSet{b.constants}
		vk.FreeDescriptorSets(b.device.handle, b.device.constantsPool, 1, sets)
		b.constants = nil
	}
	if b.mapped != nil {
		vk.UnmapMemory(b.device.handle, b.memory)
		b.mapped = nil
	}
	b.Buffer.Destroy()
}

const uploadUsage = vk.BufferUsageStorageBufferBit |
	vk.BufferUsageVertexBufferBit |
	vk.BufferUsageIndexBufferBit |
	vk.BufferUsageIndirectBufferBit

func (d *Device) NewUploadBuffer(size uint64) (gpu.UploadBuffer, error) {
	buf, err := d.newBuffer(size, vk.BufferUsageFlags(uploadUsage),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	upload := &UploadBuffer{Buffer: *buf}

	var ptr unsafe.Pointer
	if err := created(vk.MapMemory(d.handle, buf.memory, 0, vk.DeviceSize(size), 0, &ptr), "mapping upload buffer"); err != nil {
		upload.Destroy()
		return nil, err
	}
	upload.mapped = unsafe.Slice((*byte)(ptr), size)

	allocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     d.constantsPool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{d.constantsLayout},
	}
	var set vk.DescriptorSet
	if err := created(vk.AllocateDescriptorSets(d.handle, &allocInfo, &set), "upload buffer descriptor"); err != nil {
		upload.Destroy()
		return nil, err
	}
	upload.constants = set

	write := vk.WriteDescriptorSet{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          set,
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeStorageBuffer,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buf.handle,
			Offset: 0,
			Range:  vk.DeviceSize(vk.WholeSize),
		}},
	}
	vk.UpdateDescriptorSets(d.handle, 1, []vk.WriteDescriptorSet{write}, 0, nil)
	return upload, nil
}

// NewStaticBuffer creates device local memory filled once through a staging
// buffer.
func (d *Device) NewStaticBuffer(usage gpu.BufferUsage, data []byte) (gpu.Buffer, error) {
	size := uint64(len(data))
	if size == 0 {
		return nil, core.CreationFailed(nil, "static buffer without data")
	}
	staging, err := d.newStaging(data)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	buf, err := d.newBuffer(size, bufferUsage(usage)|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return nil, err
	}
	err = d.immediate("static buffer upload", func(cmd vk.CommandBuffer) {
		vk.CmdCopyBuffer(cmd, staging.handle, buf.handle, 1, []vk.BufferCopy{{Size: vk.DeviceSize(size)}})
	})
	if err != nil {
		buf.Destroy()
		return nil, err
	}
	return buf, nil
}

func bufferUsage(usage gpu.BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if usage&gpu.UsageVertex != 0 {
		flags |= vk.BufferUsageVertexBufferBit
	}
	if usage&gpu.UsageIndex != 0 {
		flags |= vk.BufferUsageIndexBufferBit
	}
	if usage&gpu.UsageConstant != 0 {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if usage&gpu.UsageIndirect != 0 {
		flags |= vk.BufferUsageIndirectBufferBit
	}
	return vk.BufferUsageFlags(flags)
}

// newStaging copies data into a host visible transfer source.
func (d *Device) newStaging(data []byte) (*Buffer, error) {
	size := uint64(len(data))
	staging, err := d.newBuffer(size, vk.BufferUsageFlags(vk.BufferUsageTransferSrcBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit|vk.MemoryPropertyHostCoherentBit))
	if err != nil {
		return nil, err
	}
	var ptr unsafe.Pointer
	if err := created(vk.MapMemory(d.handle, staging.memory, 0, vk.DeviceSize(size), 0, &ptr), "mapping staging buffer"); err != nil {
		staging.Destroy()
		return nil, err
	}
	vk.Memcopy(ptr, data)
	vk.UnmapMemory(d.handle, staging.memory)
	return staging, nil
}

func (d *Device) newBuffer(size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (*Buffer, error) {
	info := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}
	var handle vk.Buffer
	if err := created(vk.CreateBuffer(d.handle, &info, nil, &handle), "buffer of %d bytes", size); err != nil {
		return nil, err
	}
	buf := &Buffer{device: d, handle: handle, size: size}

	var req vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.handle, handle, &req)
	req.Deref()
	memory, err := d.allocate(req, properties)
	if err != nil {
		buf.Destroy()
		return nil, err
	}
	buf.memory = memory
	if err := created(vk.BindBufferMemory(d.handle, handle, memory, 0), "binding buffer memory"); err != nil {
		buf.Destroy()
		return nil, err
	}
	return buf, nil
}

func (d *Device) allocate(req vk.MemoryRequirements, properties vk.MemoryPropertyFlags) (vk.DeviceMemory, error) {
	typeIndex, err := d.findMemoryType(req.MemoryTypeBits, properties)
	if err != nil {
		return nil, err
	}
	info := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  req.Size,
		MemoryTypeIndex: typeIndex,
	}
	var memory vk.DeviceMemory
	if err := created(vk.AllocateMemory(d.handle, &info, nil, &memory), "allocating %d bytes", uint64(req.Size)); err != nil {
		return nil, err
	}
	return memory, nil
}
