package vulkan

import (
	vk "github.com/goki/vulkan"
)

type VulkanFence struct {
	Handle vk.Fence
}

// NewFence creates a fence, optionally already signalled so the first wait
// on it returns immediately.
func NewFence(device vk.Device, signaled bool) (*VulkanFence, error) {
	info := vk.FenceCreateInfo{
		SType: vk.StructureTypeFenceCreateInfo,
	}
	if signaled {
		info.Flags = vk.FenceCreateFlags(vk.FenceCreateSignaledBit)
	}
	var handle vk.Fence
	if err := vkError(vk.CreateFence(device, &info, nil, &handle), "vkCreateFence"); err != nil {
		return nil, err
	}
	return &VulkanFence{Handle: handle}, nil
}

// Wait blocks without a timeout until the fence is signalled.
func (f *VulkanFence) Wait(device vk.Device) error {
	return vkError(vk.WaitForFences(device, 1, []vk.Fence{f.Handle}, vk.True, vk.MaxUint64), "vkWaitForFences")
}

func (f *VulkanFence) Reset(device vk.Device) error {
	return vkError(vk.ResetFences(device, 1, []vk.Fence{f.Handle}), "vkResetFences")
}

func (f *VulkanFence) Destroy(device vk.Device) {
	if f.Handle != vk.NullFence {
		vk.DestroyFence(device, f.Handle, nil)
		f.Handle = vk.NullFence
	}
}

func newSemaphore(device vk.Device) (vk.Semaphore, error) {
	info := vk.SemaphoreCreateInfo{SType: vk.StructureTypeSemaphoreCreateInfo}
	var s vk.Semaphore
	if err := vkError(vk.CreateSemaphore(device, &info, nil, &s), "vkCreateSemaphore"); err != nil {
		return vk.NullSemaphore, err
	}
	return s, nil
}
