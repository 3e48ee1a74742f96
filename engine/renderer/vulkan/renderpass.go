package vulkan

import (
	vk "github.com/goki/vulkan"
)

// VulkanRenderpass clears a colour and a depth attachment and expects its
// contents to come from secondary command buffers.
type VulkanRenderpass struct {
	Handle     vk.RenderPass
	R, G, B, A float32
	Depth      float32
	Stencil    uint32
}

func NewRenderpass(device vk.Device, colorFormat, depthFormat vk.Format) (*VulkanRenderpass, error) {
	out := &VulkanRenderpass{
		R:     0.39,
		G:     0.58,
		B:     0.93,
		A:     1.0,
		Depth: 1.0,
	}

	attachments := []vk.AttachmentDescription{
		{
			Format:         colorFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpStore,
			StencilLoadOp:  vk.AttachmentLoadOpDontCare,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutPresentSrc,
		},
		{
			Format:         depthFormat,
			Samples:        vk.SampleCount1Bit,
			LoadOp:         vk.AttachmentLoadOpClear,
			StoreOp:        vk.AttachmentStoreOpDontCare,
			StencilLoadOp:  vk.AttachmentLoadOpClear,
			StencilStoreOp: vk.AttachmentStoreOpDontCare,
			InitialLayout:  vk.ImageLayoutUndefined,
			FinalLayout:    vk.ImageLayoutDepthStencilAttachmentOptimal,
		},
	}

	depthReference := vk.AttachmentReference{
		Attachment: 1,
		Layout:     vk.ImageLayoutDepthStencilAttachmentOptimal,
	}
	subpass := vk.SubpassDescription{
		PipelineBindPoint:    vk.PipelineBindPointGraphics,
		ColorAttachmentCount: 1,
		PColorAttachments: []vk.AttachmentReference{{
			Attachment: 0,
			Layout:     vk.ImageLayoutColorAttachmentOptimal,
		}},
		PDepthStencilAttachment: &depthReference,
	}

	colorAccess := vk.AccessFlags(vk.AccessColorAttachmentReadBit) | vk.AccessFlags(vk.AccessColorAttachmentWriteBit)
	dependencies := []vk.SubpassDependency{
		{
			SrcSubpass:      0,
			DstSubpass:      vk.SubpassExternal,
			SrcStageMask:    vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit),
			DstStageMask:    vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			SrcAccessMask:   colorAccess,
			DstAccessMask:   vk.AccessFlags(vk.AccessMemoryReadBit),
			DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
		},
		{
			SrcSubpass:   vk.SubpassExternal,
			DstSubpass:   0,
			SrcStageMask: vk.PipelineStageFlags(vk.PipelineStageBottomOfPipeBit),
			DstStageMask: vk.PipelineStageFlags(vk.PipelineStageColorAttachmentOutputBit) |
				vk.PipelineStageFlags(vk.PipelineStageEarlyFragmentTestsBit),
			SrcAccessMask:   vk.AccessFlags(vk.AccessMemoryReadBit),
			DstAccessMask:   colorAccess | vk.AccessFlags(vk.AccessDepthStencilAttachmentWriteBit),
			DependencyFlags: vk.DependencyFlags(vk.DependencyByRegionBit),
		},
	}

	var handle vk.RenderPass
	err := vkError(vk.CreateRenderPass(device, &vk.RenderPassCreateInfo{
		SType:           vk.StructureTypeRenderPassCreateInfo,
		AttachmentCount: uint32(len(attachments)),
		PAttachments:    attachments,
		SubpassCount:    1,
		PSubpasses:      []vk.SubpassDescription{subpass},
		DependencyCount: uint32(len(dependencies)),
		PDependencies:   dependencies,
	}, nil, &handle), "vkCreateRenderPass")
	if err != nil {
		return nil, err
	}
	out.Handle = handle
	return out, nil
}

func (vr *VulkanRenderpass) Destroy(device vk.Device) {
	if vr.Handle != nil {
		vk.DestroyRenderPass(device, vr.Handle, nil)
		vr.Handle = nil
	}
}

// Begin starts the pass on framebuffer. Draw commands must be recorded in
// secondary command buffers and executed with vkCmdExecuteCommands.
func (vr *VulkanRenderpass) Begin(cmd vk.CommandBuffer, framebuffer vk.Framebuffer, extent vk.Extent2D) {
	clearValues := make([]vk.ClearValue, 2)
	clearValues[0].SetColor([]float32{vr.R, vr.G, vr.B, vr.A})
	clearValues[1].SetDepthStencil(vr.Depth, vr.Stencil)

	vk.CmdBeginRenderPass(cmd, &vk.RenderPassBeginInfo{
		SType:       vk.StructureTypeRenderPassBeginInfo,
		RenderPass:  vr.Handle,
		Framebuffer: framebuffer,
		RenderArea: vk.Rect2D{
			Offset: vk.Offset2D{X: 0, Y: 0},
			Extent: extent,
		},
		ClearValueCount: uint32(len(clearValues)),
		PClearValues:    clearValues,
	}, vk.SubpassContentsSecondaryCommandBuffers)
}

func (vr *VulkanRenderpass) End(cmd vk.CommandBuffer) {
	vk.CmdEndRenderPass(cmd)
}
