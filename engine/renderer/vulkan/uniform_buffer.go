package vulkan

import (
	vk "github.com/goki/vulkan"
)

// UniformBuffer binds a ManagedBuffer as the dynamic uniform of set 0.
// Frame slot i lives at offset i*AllocSize.
type UniformBuffer struct {
	Buffer    *ManagedBuffer
	AllocSize uint64

	pool   vk.DescriptorPool
	set    vk.DescriptorSet
	layout vk.PipelineLayout
}

func newUniformBuffer(backend ResourceBackend, buffer *ManagedBuffer, allocSize uint64) (*UniformBuffer, error) {
	pool, set, err := backend.CreateUniformDescriptor(buffer.Buffer, allocSize)
	if err != nil {
		return nil, err
	}
	return &UniformBuffer{
		Buffer:    buffer,
		AllocSize: allocSize,
		pool:      pool,
		set:       set,
		layout:    backend.PipelineLayout(),
	}, nil
}

func (u *UniformBuffer) Offset(slot uint32) uint32 {
	return uint32(u.AllocSize) * slot
}

func (u *UniformBuffer) Update(data []byte, slot uint32) error {
	return u.Buffer.Copy(data, uint64(u.Offset(slot)))
}

// Record binds the set with the given dynamic offset.
func (u *UniformBuffer) Record(cmd vk.CommandBuffer, dynamicOffset uint32) {
	vk.CmdBindDescriptorSets(cmd, vk.PipelineBindPointGraphics, u.layout, 0, 1,
		[]vk.DescriptorSet{u.set}, 1, []uint32{dynamicOffset})
}
