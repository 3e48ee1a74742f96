package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkframe/engine/core"
)

type CommandBufferState int

const (
	CommandBufferNotAllocated CommandBufferState = iota
	CommandBufferReady
	CommandBufferRecording
	CommandBufferInRenderPass
	CommandBufferRecordingEnded
	CommandBufferSubmitted
)

type VulkanCommandBuffer struct {
	Handle vk.CommandBuffer
	State  CommandBufferState
}

func allocateCommandBuffer(device vk.Device, pool vk.CommandPool, level vk.CommandBufferLevel) (vk.CommandBuffer, error) {
	buffers := make([]vk.CommandBuffer, 1)
	err := vkError(vk.AllocateCommandBuffers(device, &vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        pool,
		Level:              level,
		CommandBufferCount: 1,
	}, buffers), "vkAllocateCommandBuffers")
	if err != nil {
		return nil, err
	}
	return buffers[0], nil
}

func NewCommandBuffer(device vk.Device, pool vk.CommandPool, primary bool) (*VulkanCommandBuffer, error) {
	level := vk.CommandBufferLevelSecondary
	if primary {
		level = vk.CommandBufferLevelPrimary
	}
	handle, err := allocateCommandBuffer(device, pool, level)
	if err != nil {
		return nil, err
	}
	return &VulkanCommandBuffer{
		Handle: handle,
		State:  CommandBufferReady,
	}, nil
}

// Begin starts recording. A secondary buffer that continues a render pass
// must pass the inheritance info of that pass.
func (cb *VulkanCommandBuffer) Begin(singleUse, renderpassContinue bool, inheritance *vk.CommandBufferInheritanceInfo) error {
	if cb.State != CommandBufferReady && cb.State != CommandBufferSubmitted {
		return errors.Wrapf(core.ErrInvalidState, "begin command buffer in state %d", cb.State)
	}
	info := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
	}
	if singleUse {
		info.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit)
	}
	if renderpassContinue {
		info.Flags |= vk.CommandBufferUsageFlags(vk.CommandBufferUsageRenderPassContinueBit)
	}
	if inheritance != nil {
		info.PInheritanceInfo = []vk.CommandBufferInheritanceInfo{*inheritance}
	}
	if err := vkError(vk.BeginCommandBuffer(cb.Handle, &info), "vkBeginCommandBuffer"); err != nil {
		return err
	}
	cb.State = CommandBufferRecording
	return nil
}

func (cb *VulkanCommandBuffer) End() error {
	if err := vkError(vk.EndCommandBuffer(cb.Handle), "vkEndCommandBuffer"); err != nil {
		return err
	}
	cb.State = CommandBufferRecordingEnded
	return nil
}

func (cb *VulkanCommandBuffer) UpdateSubmitted() {
	cb.State = CommandBufferSubmitted
}

// Reset marks the buffer ready again once its pool was reset.
func (cb *VulkanCommandBuffer) Reset() {
	cb.State = CommandBufferReady
}

func (cb *VulkanCommandBuffer) Free(device vk.Device, pool vk.CommandPool) {
	if cb.Handle != nil {
		vk.FreeCommandBuffers(device, pool, 1, []vk.CommandBuffer{cb.Handle})
		cb.Handle = nil
	}
	cb.State = CommandBufferNotAllocated
}

// commandSlot is the pool and command buffer a single recorder owns for one
// frame slot. Nothing else ever touches them.
type commandSlot struct {
	pool   vk.CommandPool
	buffer *VulkanCommandBuffer
}

func newCommandSlot(device *VulkanDevice, primary bool) (*commandSlot, error) {
	pool, err := device.CreateCommandPool(device.Queues.Graphics, vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit))
	if err != nil {
		return nil, err
	}
	cb, err := NewCommandBuffer(device.LogicalDevice, pool, primary)
	if err != nil {
		vk.DestroyCommandPool(device.LogicalDevice, pool, nil)
		return nil, err
	}
	return &commandSlot{pool: pool, buffer: cb}, nil
}

// reset recycles the memory of everything recorded into the pool.
func (s *commandSlot) reset(device vk.Device) error {
	if err := vkError(vk.ResetCommandPool(device, s.pool, 0), "vkResetCommandPool"); err != nil {
		return err
	}
	s.buffer.Reset()
	return nil
}

func (s *commandSlot) destroy(device vk.Device) {
	s.buffer.Free(device, s.pool)
	vk.DestroyCommandPool(device, s.pool, nil)
}
