package scene

import (
	"unsafe"

	"github.com/spaghettifunk/vkframe/engine/containers"
	"github.com/spaghettifunk/vkframe/engine/math"
)

// Geometry is an indexed triangle mesh. Vertices and indices must not be
// modified once a renderer has uploaded them.
type Geometry struct {
	handle   containers.Handle[Geometry]
	Vertices []math.Vertex
	Indices  []uint32

	bounds math.Extents3D
}

func (g *Geometry) Handle() GeometryHandle {
	return g.handle
}

// Bounds is the axis aligned box around the vertex positions.
func (g *Geometry) Bounds() math.Extents3D {
	return g.bounds
}

func vertexBounds(vertices []math.Vertex) math.Extents3D {
	e := math.Extents3D{Min: vertices[0].Position, Max: vertices[0].Position}
	for _, v := range vertices[1:] {
		p := v.Position
		e.Min = math.NewVec3(min(e.Min.X, p.X), min(e.Min.Y, p.Y), min(e.Min.Z, p.Z))
		e.Max = math.NewVec3(max(e.Max.X, p.X), max(e.Max.Y, p.Y), max(e.Max.Z, p.Z))
	}
	return e
}

// Uses32BitIndices reports whether the index buffer needs 32 bit indices.
func (g *Geometry) Uses32BitIndices() bool {
	return len(g.Vertices) > 65535
}

func (g *Geometry) IndexSize() uint32 {
	if g.Uses32BitIndices() {
		return 4
	}
	return 2
}

func (g *Geometry) VertexBytes() []byte {
	if len(g.Vertices) == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&g.Vertices[0])), len(g.Vertices)*int(math.VertexSize))
}

// IndexBytes encodes the indices with IndexSize bytes each.
func (g *Geometry) IndexBytes() []byte {
	if len(g.Indices) == 0 {
		return nil
	}
	if g.Uses32BitIndices() {
		return unsafe.Slice((*byte)(unsafe.Pointer(&g.Indices[0])), len(g.Indices)*4)
	}
	short := make([]uint16, len(g.Indices))
	for i, idx := range g.Indices {
		short[i] = uint16(idx)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&short[0])), len(short)*2)
}
