package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
)

// BufferRequirements is what the device asks for a freshly created buffer.
type BufferRequirements struct {
	Size      uint64
	Alignment uint64
	TypeBits  uint32
}

// TransferFrame holds the upload command buffer of one frame slot and the
// semaphore signalled when its copies complete.
type TransferFrame struct {
	Pool      vk.CommandPool
	Buffer    vk.CommandBuffer
	Semaphore vk.Semaphore
}

// ResourceBackend is the set of device calls the ResourceManager makes.
type ResourceBackend interface {
	memoryMapper

	MinUniformAlignment() uint64
	CreateBuffer(size uint64, usage vk.BufferUsageFlags) (vk.Buffer, BufferRequirements, error)
	DestroyBuffer(buffer vk.Buffer)
	MemoryType(typeBits uint32, props vk.MemoryPropertyFlags) (uint32, bool)
	AllocateMemory(size uint64, memoryType uint32) (vk.DeviceMemory, error)
	FreeMemory(memory vk.DeviceMemory)
	BindBufferMemory(buffer vk.Buffer, memory vk.DeviceMemory, offset uint64) error

	CreateTransferFrame() (TransferFrame, error)
	DestroyTransferFrame(frame *TransferFrame)
	// BeginTransfer resets the frame's pool and begins a one time submit.
	BeginTransfer(frame *TransferFrame) error
	RecordCopy(frame *TransferFrame, src, dst vk.Buffer, size uint64)
	// SubmitTransfer ends the command buffer and submits it, signalling
	// the frame's semaphore.
	SubmitTransfer(frame *TransferFrame) error
	WaitTransferIdle() error

	CreateUniformDescriptor(buffer vk.Buffer, rangeSize uint64) (vk.DescriptorPool, vk.DescriptorSet, error)
	DestroyDescriptorPool(pool vk.DescriptorPool)
	PipelineLayout() vk.PipelineLayout

	// BuildShader compiles the modules and the pipeline of s.
	BuildShader(s *VulkanShader) error
	DestroyShader(s *VulkanShader)
}

// deviceBackend implements ResourceBackend on a live context.
type deviceBackend struct {
	ctx *VulkanContext
}

func (b *deviceBackend) device() vk.Device {
	return b.ctx.Device.LogicalDevice
}

func (b *deviceBackend) MinUniformAlignment() uint64 {
	return b.ctx.Device.MinUniformBufferOffsetAlignment()
}

func (b *deviceBackend) CreateBuffer(size uint64, usage vk.BufferUsageFlags) (vk.Buffer, BufferRequirements, error) {
	var buffer vk.Buffer
	err := vkError(vk.CreateBuffer(b.device(), &vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive,
	}, nil, &buffer), "vkCreateBuffer")
	if err != nil {
		return vk.NullBuffer, BufferRequirements{}, err
	}
	var reqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(b.device(), buffer, &reqs)
	reqs.Deref()
	return buffer, BufferRequirements{
		Size:      uint64(reqs.Size),
		Alignment: uint64(reqs.Alignment),
		TypeBits:  reqs.MemoryTypeBits,
	}, nil
}

func (b *deviceBackend) DestroyBuffer(buffer vk.Buffer) {
	vk.DestroyBuffer(b.device(), buffer, nil)
}

func (b *deviceBackend) MemoryType(typeBits uint32, props vk.MemoryPropertyFlags) (uint32, bool) {
	return b.ctx.Device.MemoryType(typeBits, props)
}

func (b *deviceBackend) AllocateMemory(size uint64, memoryType uint32) (vk.DeviceMemory, error) {
	var memory vk.DeviceMemory
	err := vkError(vk.AllocateMemory(b.device(), &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: memoryType,
	}, nil, &memory), "vkAllocateMemory")
	return memory, err
}

func (b *deviceBackend) FreeMemory(memory vk.DeviceMemory) {
	vk.FreeMemory(b.device(), memory, nil)
}

func (b *deviceBackend) BindBufferMemory(buffer vk.Buffer, memory vk.DeviceMemory, offset uint64) error {
	return vkError(vk.BindBufferMemory(b.device(), buffer, memory, vk.DeviceSize(offset)), "vkBindBufferMemory")
}

func (b *deviceBackend) MapMemory(memory vk.DeviceMemory, offset, size uint64) (unsafe.Pointer, error) {
	var p unsafe.Pointer
	if err := vkError(vk.MapMemory(b.device(), memory, vk.DeviceSize(offset), vk.DeviceSize(size), 0, &p), "vkMapMemory"); err != nil {
		return nil, err
	}
	return p, nil
}

func (b *deviceBackend) UnmapMemory(memory vk.DeviceMemory) {
	vk.UnmapMemory(b.device(), memory)
}

func (b *deviceBackend) CreateTransferFrame() (TransferFrame, error) {
	var f TransferFrame
	pool, err := b.ctx.Device.CreateCommandPool(b.ctx.Device.Queues.Transfer, 0)
	if err != nil {
		return f, err
	}
	f.Pool = pool
	cmd, err := allocateCommandBuffer(b.device(), pool, vk.CommandBufferLevelPrimary)
	if err != nil {
		b.DestroyTransferFrame(&f)
		return f, err
	}
	f.Buffer = cmd
	if f.Semaphore, err = newSemaphore(b.device()); err != nil {
		b.DestroyTransferFrame(&f)
		return f, err
	}
	return f, nil
}

func (b *deviceBackend) DestroyTransferFrame(frame *TransferFrame) {
	if frame.Buffer != nil {
		vk.FreeCommandBuffers(b.device(), frame.Pool, 1, []vk.CommandBuffer{frame.Buffer})
		frame.Buffer = nil
	}
	if frame.Pool != nil {
		vk.DestroyCommandPool(b.device(), frame.Pool, nil)
		frame.Pool = nil
	}
	if frame.Semaphore != vk.NullSemaphore {
		vk.DestroySemaphore(b.device(), frame.Semaphore, nil)
		frame.Semaphore = vk.NullSemaphore
	}
}

func (b *deviceBackend) BeginTransfer(frame *TransferFrame) error {
	if err := vkError(vk.ResetCommandPool(b.device(), frame.Pool, 0), "vkResetCommandPool"); err != nil {
		return err
	}
	return vkError(vk.BeginCommandBuffer(frame.Buffer, &vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}), "vkBeginCommandBuffer")
}

func (b *deviceBackend) RecordCopy(frame *TransferFrame, src, dst vk.Buffer, size uint64) {
	vk.CmdCopyBuffer(frame.Buffer, src, dst, 1, []vk.BufferCopy{{
		SrcOffset: 0,
		DstOffset: 0,
		Size:      vk.DeviceSize(size),
	}})
}

func (b *deviceBackend) SubmitTransfer(frame *TransferFrame) error {
	if err := vkError(vk.EndCommandBuffer(frame.Buffer), "vkEndCommandBuffer"); err != nil {
		return err
	}
	family := b.ctx.Device.Queues.Transfer
	return b.ctx.Queues.Submit(family, func() error {
		return vkError(vk.QueueSubmit(b.ctx.Device.TransferQueue, 1, []vk.SubmitInfo{{
			SType:                vk.StructureTypeSubmitInfo,
			CommandBufferCount:   1,
			PCommandBuffers:      []vk.CommandBuffer{frame.Buffer},
			SignalSemaphoreCount: 1,
			PSignalSemaphores:    []vk.Semaphore{frame.Semaphore},
		}}, vk.NullFence), "vkQueueSubmit(transfer)")
	})
}

func (b *deviceBackend) WaitTransferIdle() error {
	return b.ctx.Queues.Submit(b.ctx.Device.Queues.Transfer, func() error {
		return vkError(vk.QueueWaitIdle(b.ctx.Device.TransferQueue), "vkQueueWaitIdle(transfer)")
	})
}

func (b *deviceBackend) CreateUniformDescriptor(buffer vk.Buffer, rangeSize uint64) (vk.DescriptorPool, vk.DescriptorSet, error) {
	var pool vk.DescriptorPool
	err := vkError(vk.CreateDescriptorPool(b.device(), &vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: 1,
		PPoolSizes: []vk.DescriptorPoolSize{{
			Type:            vk.DescriptorTypeUniformBufferDynamic,
			DescriptorCount: 1,
		}},
	}, nil, &pool), "vkCreateDescriptorPool")
	if err != nil {
		return nil, nil, err
	}

	sets := make([]vk.DescriptorSet, 1)
	err = vkError(vk.AllocateDescriptorSets(b.device(), &vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{b.ctx.Layout.DescriptorSetLayout},
	}, &sets[0]), "vkAllocateDescriptorSets")
	if err != nil {
		vk.DestroyDescriptorPool(b.device(), pool, nil)
		return nil, nil, err
	}

	vk.UpdateDescriptorSets(b.device(), 1, []vk.WriteDescriptorSet{{
		SType:           vk.StructureTypeWriteDescriptorSet,
		DstSet:          sets[0],
		DstBinding:      0,
		DescriptorCount: 1,
		DescriptorType:  vk.DescriptorTypeUniformBufferDynamic,
		PBufferInfo: []vk.DescriptorBufferInfo{{
			Buffer: buffer,
			Offset: 0,
			Range:  vk.DeviceSize(rangeSize),
		}},
	}}, 0, nil)
	return pool, sets[0], nil
}

func (b *deviceBackend) DestroyDescriptorPool(pool vk.DescriptorPool) {
	vk.DestroyDescriptorPool(b.device(), pool, nil)
}

func (b *deviceBackend) PipelineLayout() vk.PipelineLayout {
	return b.ctx.Layout.Handle
}

func (b *deviceBackend) BuildShader(s *VulkanShader) error {
	return s.build(b.ctx)
}

func (b *deviceBackend) DestroyShader(s *VulkanShader) {
	s.destroy(b.device())
}
