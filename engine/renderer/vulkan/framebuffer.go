package vulkan

import (
	vk "github.com/goki/vulkan"
)

type framebufferKey struct {
	pass  vk.RenderPass
	color vk.ImageView
	depth vk.ImageView
}

// framebuffer returns the cached framebuffer for the attachments. Entries
// live until one of their views is forgotten.
func (d *Device) framebuffer(pass vk.RenderPass, color, depth vk.ImageView, width, height uint32) (vk.Framebuffer, error) {
	key := framebufferKey{pass: pass, color: color, depth: depth}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	if fb, ok := d.framebuffers[key]; ok {
		return fb, nil
	}

	views := []vk.ImageView{color}
	if depth != nil {
		views = append(views, depth)
	}
	info := vk.FramebufferCreateInfo{
		SType:           vk.StructureTypeFramebufferCreateInfo,
		RenderPass:      pass,
		AttachmentCount: uint32(len(views)),
		PAttachments:    views,
		Width:           width,
		Height:          height,
		Layers:          1,
	}
	var fb vk.Framebuffer
	if err := created(vk.CreateFramebuffer(d.handle, &info, nil, &fb), "framebuffer %dx%d", width, height); err != nil {
		return nil, err
	}
	d.framebuffers[key] = fb
	return fb, nil
}

// forgetView destroys every framebuffer that references view. Called before
// the view itself is destroyed.
func (d *Device) forgetView(view vk.ImageView) {
	if view == nil {
		return
	}
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for key, fb := range d.framebuffers {
		if key.color == view || key.depth == view {
			vk.DestroyFramebuffer(d.handle, fb, nil)
			delete(d.framebuffers, key)
		}
	}
}

func (d *Device) destroyCaches() {
	d.mutex.Lock()
	defer d.mutex.Unlock()
	for key, fb := range d.framebuffers {
		vk.DestroyFramebuffer(d.handle, fb, nil)
		delete(d.framebuffers, key)
	}
	for key, pass := range d.passes {
		vk.DestroyRenderPass(d.handle, pass, nil)
		delete(d.passes, key)
	}
}
