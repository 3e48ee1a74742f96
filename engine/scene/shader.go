package scene

import "github.com/spaghettifunk/vkframe/engine/containers"

type Topology int

const (
	TopologyPointList Topology = iota
	TopologyLineList
	TopologyLineStrip
	TopologyTriangleList
	TopologyTriangleStrip
)

// Shader names a vertex and fragment program pair. The renderer resolves
// the names to compiled SPIR-V files.
type Shader struct {
	handle             containers.Handle[Shader]
	VertexShaderName   string
	FragmentShaderName string
	Topology           Topology
}

func (s *Shader) Handle() ShaderHandle {
	return s.handle
}
