package vulkan

import (
	vk "github.com/goki/vulkan"
)

// VulkanImage is a 2D image with its own memory allocation and one view.
type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	View   vk.ImageView
	Format vk.Format
	Width  uint32
	Height uint32
}

func hasStencil(f vk.Format) bool {
	switch f {
	case vk.FormatD32SfloatS8Uint, vk.FormatD24UnormS8Uint, vk.FormatD16UnormS8Uint:
		return true
	}
	return false
}

// NewDepthImage creates a device local depth attachment of the given size.
func NewDepthImage(device *VulkanDevice, format vk.Format, width, height uint32) (*VulkanImage, error) {
	img := &VulkanImage{Format: format, Width: width, Height: height}
	dev := device.LogicalDevice

	var handle vk.Image
	err := vkError(vk.CreateImage(dev, &vk.ImageCreateInfo{
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
		Usage:         vk.ImageUsageFlags(vk.ImageUsageDepthStencilAttachmentBit),
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}, nil, &handle), "vkCreateImage")
	if err != nil {
		return nil, err
	}
	img.Handle = handle

	var reqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(dev, handle, &reqs)
	reqs.Deref()
	memType, ok := device.MemoryType(reqs.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if !ok {
		img.Destroy(dev)
		return nil, vkError(vk.ErrorFormatNotSupported, "depth image memory type")
	}
	var memory vk.DeviceMemory
	if err := vkError(vk.AllocateMemory(dev, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  reqs.Size,
		MemoryTypeIndex: memType,
	}, nil, &memory), "vkAllocateMemory(depth)"); err != nil {
		img.Destroy(dev)
		return nil, err
	}
	img.Memory = memory
	if err := vkError(vk.BindImageMemory(dev, handle, memory, 0), "vkBindImageMemory"); err != nil {
		img.Destroy(dev)
		return nil, err
	}

	aspect := vk.ImageAspectFlags(vk.ImageAspectDepthBit)
	if hasStencil(format) {
		aspect |= vk.ImageAspectFlags(vk.ImageAspectStencilBit)
	}
	view, err := newImageView(dev, handle, format, aspect)
	if err != nil {
		img.Destroy(dev)
		return nil, err
	}
	img.View = view
	return img, nil
}

func newImageView(device vk.Device, image vk.Image, format vk.Format, aspect vk.ImageAspectFlags) (vk.ImageView, error) {
	var view vk.ImageView
	err := vkError(vk.CreateImageView(device, &vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    image,
		ViewType: vk.ImageViewType2d,
		Format:   format,
		Components: vk.ComponentMapping{
			R: vk.ComponentSwizzleIdentity,
			G: vk.ComponentSwizzleIdentity,
			B: vk.ComponentSwizzleIdentity,
			A: vk.ComponentSwizzleIdentity,
		},
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: aspect,
			LevelCount: 1,
			LayerCount: 1,
		},
	}, nil, &view), "vkCreateImageView")
	return view, err
}

func (img *VulkanImage) Destroy(device vk.Device) {
	if img.View != nil {
		vk.DestroyImageView(device, img.View, nil)
		img.View = nil
	}
	if img.Handle != nil {
		vk.DestroyImage(device, img.Handle, nil)
		img.Handle = nil
	}
	if img.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(device, img.Memory, nil)
		img.Memory = vk.NullDeviceMemory
	}
}
