package scene

import "github.com/spaghettifunk/vkframe/engine/math"

type cubeFace struct {
	normal, up math.Vec3
}

var cubeFaces = [6]cubeFace{
	{math.NewVec3(0, 0, -1), math.NewVec3(0, 1, 0)},
	{math.NewVec3(0, 0, 1), math.NewVec3(0, 1, 0)},
	{math.NewVec3(-1, 0, 0), math.NewVec3(0, 1, 0)},
	{math.NewVec3(1, 0, 0), math.NewVec3(0, 1, 0)},
	{math.NewVec3(0, 1, 0), math.NewVec3(0, 0, 1)},
	{math.NewVec3(0, -1, 0), math.NewVec3(0, 0, 1)},
}

// NewCube builds a box of the given edge lengths centred on the origin:
// 24 vertices (4 per face so normals stay flat) and 36 indices. Faces wind
// counter-clockwise when seen from outside.
func NewCube(size math.Vec3, color math.Vec4) ([]math.Vertex, []uint32) {
	half := size.MulScalar(0.5)
	vertices := make([]math.Vertex, 0, 24)
	indices := make([]uint32, 0, 36)

	corners := [4][2]float32{{-1, -1}, {1, -1}, {1, 1}, {-1, 1}}
	for _, f := range cubeFaces {
		right := f.normal.Cross(f.up)
		base := uint32(len(vertices))
		for _, c := range corners {
			p := f.normal.Add(right.MulScalar(c[0])).Add(f.up.MulScalar(c[1]))
			vertices = append(vertices, math.Vertex{
				Position: p.Mul(half),
				Normal:   f.normal,
				TexCoord: math.NewVec3((c[0]+1)*0.5, (1-c[1])*0.5, 0),
				Color:    color,
			})
		}
		indices = append(indices, base, base+1, base+2, base, base+2, base+3)
	}

	math.GenerateTangents(vertices, indices)
	return vertices, indices
}
