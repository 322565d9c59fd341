package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/asteroids/engine/core"
	"github.com/spaghettifunk/asteroids/engine/renderer/gpu"
)

// image is a device local image with one view.
type image struct {
	device *Device
	handle vk.Image
	memory vk.DeviceMemory
	view   vk.ImageView
	format vk.Format
	width  uint32
	height uint32
}

func (d *Device) newImage(width, height uint32, format vk.Format, usage vk.ImageUsageFlags, aspect vk.ImageAspectFlags) (*image, error) {
	info := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1,
		},
		MipLevels:     1,
		ArrayLayers:   1,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	var handle vk.Image
	if err := created(vk.CreateImage(d.handle, &info, nil, &handle), "image %dx%d", width, height); err != nil {
		return nil, err
	}
	img := &image{device: d, handle: handle, format: format, width: width, height: height}

	var req vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.handle, handle, &req)
	req.Deref()
	memory, err := d.allocate(req, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		img.destroy()
		return nil, err
	}
	img.memory = memory
	if err := created(vk.BindImageMemory(d.handle, handle, memory, 0), "binding image memory"); err != nil {
		img.destroy()
		return nil, err
	}

	view, err := d.newView(handle, format, aspect)
	if err != nil {
		img.destroy()
		return nil, err
	}
	img.view = view
	return img, nil
}

func (d *Device) newView(handle vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	info := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    handle,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	var view vk.ImageView
	if err := created(vk.CreateImageView(d.handle, &info, nil, &view), "image view"); err != nil {
		return nil, err
	}
	return view, nil
}

func (img *image) destroy() {
	if img.view != nil {
		vk.DestroyImageView(img.device.handle, img.view, nil)
		img.view = nil
	}
	if img.handle != nil {
		vk.DestroyImage(img.device.handle, img.handle, nil)
		img.handle = nil
	}
	if img.memory != nil {
		vk.FreeMemory(img.device.handle, img.memory, nil)
		img.memory = nil
	}
}

// Texture is an RGBA8 image sampled by fragment shaders.
type Texture struct {
	*image
	name string
}

var _ gpu.Texture = (*Texture)(nil)

func (t *Texture) Name() string { return t.name }
func (t *Texture) Destroy()     { t.image.destroy() }

func (d *Device) NewTexture(desc gpu.TextureDesc, pixels []byte) (gpu.Texture, error) {
	return d.newTexture(desc, pixels)
}

func (d *Device) newTexture(desc gpu.TextureDesc, pixels []byte) (*Texture, error) {
	if want := int(desc.Width) * int(desc.Height) * 4; len(pixels) != want || want == 0 {
		return nil, core.CreationFailed(nil, "texture %q: %d bytes of pixels for %dx%d", desc.Name, len(pixels), desc.Width, desc.Height)
	}
	staging, err := d.newStaging(pixels)
	if err != nil {
		return nil, err
	}
	defer staging.Destroy()

	img, err := d.newImage(desc.Width, desc.Height, vk.FormatR8g8b8a8Unorm,
		vk.ImageUsageFlags(vk.ImageUsageSampledBit|vk.ImageUsageTransferDstBit),
		vk.ImageAspectFlags(vk.ImageAspectColorBit))
	if err != nil {
		return nil, err
	}
	err = d.immediate("texture "+desc.Name, func(cmd vk.CommandBuffer) {
		imageBarrier(cmd, img.handle, vk.ImageAspectFlags(vk.ImageAspectColorBit),
			vk.ImageLayoutUndefined, vk.ImageLayoutTransferDstOptimal,
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageTransferBit),
			0, vk.AccessFlags(vk.AccessTransferWriteBit))
		region := vk.BufferImageCopy{
			ImageSubresource: vk.ImageSubresourceLayers{
				AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
				LayerCount: 1,
			},
			ImageExtent: vk.Extent3D{Width: desc.Width, Height: desc.Height, Depth: 1},
		}
		vk.CmdCopyBufferToImage(cmd, staging.handle, img.handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
		imageBarrier(cmd, img.handle, vk.ImageAspectFlags(vk.ImageAspectColorBit),
			vk.ImageLayoutTransferDstOptimal, vk.ImageLayoutShaderReadOnlyOptimal,
			vk.PipelineStageFlags(vk.PipelineStageTransferBit), vk.PipelineStageFlags(vk.PipelineStageFragmentShaderBit),
			vk.AccessFlags(vk.AccessTransferWriteBit), vk.AccessFlags(vk.AccessShaderReadBit))
	})
	if err != nil {
		img.destroy()
		return nil, err
	}
	return &Texture{image: img, name: desc.Name}, nil
}

// DepthTarget is the reverse-Z depth buffer shared by the 3D passes.
type DepthTarget struct {
	*image
}

var _ gpu.DepthTarget = (*DepthTarget)(nil)

func (t *DepthTarget) Extent() (uint32, uint32) { return t.width, t.height }

func (t *DepthTarget) Destroy() {
	t.device.forgetView(t.view)
	t.image.destroy()
}

// NewDepthTarget leaves the image in the depth attachment layout so every
// render pass can start from it.
func (d *Device) NewDepthTarget(width, height uint32) (gpu.DepthTarget, error) {
	aspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if d.depthFormat != vk.FormatD32Sfloat {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	img, err := d.newImage(width, height, d.depthFormat,
		vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit), aspect)
	if err != nil {
		return nil, err
	}
	err = d.immediate("depth target", func(cmd vk.CommandBuffer) {
		imageBarrier(cmd, img.handle, aspect,
			vk.ImageLayoutUndefined, vk.ImageLayoutDepthStencilAttachmentOptimal,
			vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit), vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
			0, vk.AccessFlags(vk.AccessDepthStencilAttachmentReadBit|vk.AccessDepthStencilAttachmentWriteBit))
	})
	if err != nil {
		img.destroy()
		return nil, err
	}
	return &DepthTarget{image: img}, nil
}

func imageBarrier(cmd vk.CommandBuffer, handle vk.Image, aspect vk.ImageAspectFlags,
	from, to vk.ImageLayout, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags) {
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           from,
		NewLayout:           to,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}
	vk.CmdPipelineBarrier(cmd, srcStage, dstStage, 0, 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}
