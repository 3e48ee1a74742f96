package scene

import (
	"github.com/spaghettifunk/vkframe/engine/containers"
	"github.com/spaghettifunk/vkframe/engine/math"
)

// UpdateFrequency tells the renderer how often a node's world matrix changes.
type UpdateFrequency int

const (
	UpdateAlways UpdateFrequency = iota
	UpdateSometimes
	UpdateNever
)

func (f UpdateFrequency) String() string {
	switch f {
	case UpdateAlways:
		return "always"
	case UpdateSometimes:
		return "sometimes"
	case UpdateNever:
		return "never"
	}
	return "unknown"
}

// Node is one transform in the scene tree. All mutation goes through the
// owning Scene.
type Node struct {
	handle    containers.Handle[Node]
	parent    containers.Handle[Node]
	children  []containers.Handle[Node]
	drawables []DrawableHandle

	local     math.Mat4
	world     math.Mat4
	enabled   bool
	frequency UpdateFrequency
}

func (n *Node) Handle() NodeHandle {
	return n.handle
}

func (n *Node) Parent() NodeHandle {
	return n.parent
}

func (n *Node) Children() []NodeHandle {
	return n.children
}

func (n *Node) Drawables() []DrawableHandle {
	return n.drawables
}

func (n *Node) Matrix() math.Mat4 {
	return n.local
}

func (n *Node) WorldMatrix() math.Mat4 {
	return n.world
}

// WorldMatrixPointer returns the address of the world matrix. It stays
// valid until the node is closed.
func (n *Node) WorldMatrixPointer() *math.Mat4 {
	return &n.world
}

func (n *Node) Enabled() bool {
	return n.enabled
}

func (n *Node) UpdateFrequency() UpdateFrequency {
	return n.frequency
}
