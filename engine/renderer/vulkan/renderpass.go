package vulkan

import (
	vk "github.com/goki/vulkan"
)

// passKey identifies a render pass by everything that changes its
// attachment descriptions.
type passKey struct {
	color vk.Format
	depth vk.Format
	clear bool
}

// renderPass returns the cached render pass for key, creating it on first
// use. Color attachments stay in the color attachment layout across passes;
// the depth attachment stays in the depth layout.
func (d *Device) renderPass(key passKey) (vk.RenderPass, error) {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if pass, ok := d.passes[key]; ok {
		return pass, nil
	}

	loadOp := vk.AttachmentLoadOpLoad
	depthInitial := vk.ImageLayoutDepthStencilAttachmentOptimal
	if key.clear {
		loadOp = vk.AttachmentLoadOpClear
		depthInitial = vk.ImageLayoutUndefined
	}

	attachments := []vk.AttachmentDescription{{
		Format:         key.color,
		Samples:        vk.SampleCount1Bit,
		LoadOp:         loadOp,
		StoreOp:        vk.AttachmentStoreOpStore,
		StencilLoadOp:  vk.AttachmentLoadOpDontCare,
		StencilStoreOp: vk.AttachmentStoreOpDontCare,
		InitialLayout:  vk.ImageLayoutColorAttachmentOptimal,
		FinalLayout:    vk.ImageLayoutColorAttachmentOptimal,
	}}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
	}
	if key.depth != vk.FormatUndefined {
		attachments = append(attachments, vk.AttachmentDescription{
			Format:         key.depth,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         loadOp,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  depthInitial,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		})
		subpass.PDepthStencilAttachment = &vk.AttachmentReference{
			Attachment: 1,
			Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
		}
	}

	stages := vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit |
		vk.PipelineStageEarlyFragmentTestsBit |
		vk.PipelineStageLateFragmentTestsBit)
	access := vk.AccessFlags(vk.AccessColorAttachmentReadBit |
		vk.AccessColorAttachmentWriteBit |
		vk.AccessDepthStencilAttachmentReadBit |
		vk.AccessDepthStencilAttachmentWriteBit)
	dependency := vk.SubpassDependency{
		SrcSubpass:    vk.SubpassExternal,
		DstSubpass:    0,
		SrcStageMask:  stages,
		DstStageMask:  stages,
		SrcAccessMask: access,
		DstAccessMask: access,
	}

	info := vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: 1,
		PDependencies:   []vk.SubpassDependency{dependency},
	}
	var pass vk.RenderPass
	if err := created(vk.CreateRenderPass(d.handle, &info, nil, &pass), "render pass"); err != nil {
		return nil, err
	}
	d.passes[key] = pass
	return pass, nil
}

func clearValues(clearColor [4]float32, clearDepth float32, withDepth bool) []vk.ClearValue {
	values := []vk.ClearValue{vk.NewClearValue(clearColor[:])}
	if withDepth {
		values = append(values, vk.NewClearDepthStencil(clearDepth, 0))
	}
	return values
}
