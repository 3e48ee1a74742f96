package vulkan

import (
	vk "github.com/goki/vulkan"
)

// VulkanFramebuffer holds one framebuffer per swapchain image, all sharing
// a single depth attachment.
type VulkanFramebuffer struct {
	Depth        *VulkanImage
	Framebuffers []vk.Framebuffer
	Extent       vk.Extent2D
}

func NewFramebuffer(device *VulkanDevice, renderpass *VulkanRenderpass, views []vk.ImageView, depthFormat vk.Format, extent vk.Extent2D) (*VulkanFramebuffer, error) {
	depth, err := NewDepthImage(device, depthFormat, extent.Width, extent.Height)
	if err != nil {
		return nil, err
	}
	fb := &VulkanFramebuffer{
		Depth:  depth,
		Extent: extent,
	}
	for _, view := range views {
		var handle vk.Framebuffer
		err := vkError(vk.CreateFramebuffer(device.LogicalDevice, &vk.FramebufferCreateInfo{
			SType:           vk.StructureTypeFramebufferCreateInfo,
			RenderPass:      renderpass.Handle,
			AttachmentCount: 2,
			PAttachments:    []vk.ImageView{view, depth.View},
			Width:           extent.Width,
			Height:          extent.Height,
			Layers:          1,
		}, nil, &handle), "vkCreateFramebuffer")
		if err != nil {
			fb.Destroy(device.LogicalDevice)
			return nil, err
		}
		fb.Framebuffers = append(fb.Framebuffers, handle)
	}
	return fb, nil
}

func (fb *VulkanFramebuffer) Destroy(device vk.Device) {
	for _, f := range fb.Framebuffers {
		vk.DestroyFramebuffer(device, f, nil)
	}
	fb.Framebuffers = nil
	if fb.Depth != nil {
		fb.Depth.Destroy(device)
		fb.Depth = nil
	}
}
