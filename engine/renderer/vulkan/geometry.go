package vulkan

import (
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkframe/engine/scene"
)

// VulkanGeometry holds the device local vertex and index buffers of one
// scene geometry.
type VulkanGeometry struct {
	Handle     scene.GeometryHandle
	Vertices   *ManagedBuffer
	Indices    *ManagedBuffer
	IndexCount uint32
	IndexType  vk.IndexType
}

func (g *VulkanGeometry) Record(cmd vk.CommandBuffer) {
	vk.CmdBindVertexBuffers(cmd, 0, 1, []vk.Buffer{g.Vertices.Buffer}, []vk.DeviceSize{0})
	vk.CmdBindIndexBuffer(cmd, g.Indices.Buffer, 0, g.IndexType)
}

func (g *VulkanGeometry) Draw(cmd vk.CommandBuffer) {
	vk.CmdDrawIndexed(cmd, g.IndexCount, 1, 0, 0, 0)
}
