package vulkan

import (
	"sync"
	"unsafe"

	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkframe/engine/math"
	"github.com/spaghettifunk/vkframe/engine/scene"
)

// VulkanNode is the render side of a scene node. Static nodes were uploaded
// once to device local memory. Dynamic nodes own one host visible slot per
// swapchain image and rewrite a slot lazily when its copy of the world
// matrix is stale.
type VulkanNode struct {
	Handle  scene.NodeHandle
	Uniform *UniformBuffer

	world   *math.Mat4
	dynamic bool

	mutex   sync.Mutex
	written []math.Mat4
	valid   []bool
}

func newVulkanNode(n *scene.Node, uniform *UniformBuffer, dynamic bool, slots int) *VulkanNode {
	vn := &VulkanNode{
		Handle:  n.Handle(),
		Uniform: uniform,
		world:   n.WorldMatrixPointer(),
		dynamic: dynamic,
	}
	if dynamic {
		vn.written = make([]math.Mat4, slots)
		vn.valid = make([]bool, slots)
	}
	return vn
}

func (n *VulkanNode) IsDynamic() bool {
	return n.dynamic
}

// prepare brings the slot up to date and returns the dynamic offset to bind.
func (n *VulkanNode) prepare(slot uint32) (uint32, error) {
	if !n.dynamic {
		return 0, nil
	}
	n.mutex.Lock()
	defer n.mutex.Unlock()
	current := *n.world
	if n.valid[slot] && n.written[slot] == current {
		return n.Uniform.Offset(slot), nil
	}
	data := unsafe.Slice((*byte)(unsafe.Pointer(&current.Data[0])), math.Mat4Size)
	if err := n.Uniform.Update(data, slot); err != nil {
		return 0, err
	}
	n.written[slot] = current
	n.valid[slot] = true
	return n.Uniform.Offset(slot), nil
}

func (n *VulkanNode) Record(cmd vk.CommandBuffer, slot uint32) error {
	offset, err := n.prepare(slot)
	if err != nil {
		return err
	}
	n.Uniform.Record(cmd, offset)
	return nil
}
