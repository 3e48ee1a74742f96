package math

// GenerateNormals writes flat face normals for an indexed triangle list.
func GenerateNormals(vertices []Vertex, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0 := indices[i+0]
		i1 := indices[i+1]
		i2 := indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)

		// NOTE: This just generates a face normal. Smoothing out should be done in a separate pass if desired.
		normal := edge1.Cross(edge2).Normalized()
		vertices[i0].Normal = normal
		vertices[i1].Normal = normal
		vertices[i2].Normal = normal
	}
}

// GenerateTangents derives per face tangents and bi-tangents from the
// texture coordinates. Faces with degenerate UVs are skipped.
func GenerateTangents(vertices []Vertex, indices []uint32) {
	for i := 0; i+2 < len(indices); i += 3 {
		i0 := indices[i+0]
		i1 := indices[i+1]
		i2 := indices[i+2]

		edge1 := vertices[i1].Position.Sub(vertices[i0].Position)
		edge2 := vertices[i2].Position.Sub(vertices[i0].Position)

		deltaU1 := vertices[i1].TexCoord.X - vertices[i0].TexCoord.X
		deltaV1 := vertices[i1].TexCoord.Y - vertices[i0].TexCoord.Y

		deltaU2 := vertices[i2].TexCoord.X - vertices[i0].TexCoord.X
		deltaV2 := vertices[i2].TexCoord.Y - vertices[i0].TexCoord.Y

		dividend := deltaU1*deltaV2 - deltaU2*deltaV1
		if kabs(dividend) < K_FLOAT_EPSILON {
			continue
		}
		fc := 1.0 / dividend

		tangent := Vec3{
			fc * (deltaV2*edge1.X - deltaV1*edge2.X),
			fc * (deltaV2*edge1.Y - deltaV1*edge2.Y),
			fc * (deltaV2*edge1.Z - deltaV1*edge2.Z),
		}.Normalized()

		handedness := float32(1.0)
		if deltaV1*deltaU2-deltaV2*deltaU1 < 0.0 {
			handedness = -1.0
		}
		tangent = tangent.MulScalar(handedness)
		biTangent := vertices[i0].Normal.Cross(tangent)

		for _, idx := range []uint32{i0, i1, i2} {
			vertices[idx].Tangent = tangent
			vertices[idx].BiTangent = biTangent
		}
	}
}
