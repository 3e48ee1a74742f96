package math

import "unsafe"

// Vec2 represents a 2D vector
type Vec2 struct {
	X, Y float32
}

// Vec3 represents a 3D vector
type Vec3 struct {
	X, Y, Z float32
}

// Vec4 represents a 4D vector
type Vec4 struct {
	X, Y, Z, W float32
}

/** @brief A quaternion, used to represent rotational orientation. */
type Quaternion Vec4

/**
 * @brief Represents the extents of a 3d object.
 */
type Extents3D struct {
	/** @brief The minimum extents of the object. */
	Min Vec3
	/** @brief The maximum extents of the object. */
	Max Vec3
}

/**
 * @brief a 4x4 matrix, typically used to represent object transformations.
 * Elements are stored so that Data[12], Data[13], Data[14] hold the
 * translation, which is the layout GLSL reads as a column-major mat4.
 */
type Mat4 struct {
	/** @brief The matrix elements */
	Data [16]float32
}

// Mat4Size is the size in bytes of a Mat4 as uploaded to the GPU.
const Mat4Size = uint64(unsafe.Sizeof(Mat4{}))

/**
 * @brief Represents a single vertex in 3D space. The field order matches
 * the vertex input locations 0 to 5 of the pipeline.
 */
type Vertex struct {
	/** @brief The position of the vertex */
	Position Vec3
	/** @brief The normal of the vertex. */
	Normal Vec3
	/** @brief The tangent of the vertex. */
	Tangent Vec3
	/** @brief The bi-tangent of the vertex. */
	BiTangent Vec3
	/** @brief The texture coordinate of the vertex. */
	TexCoord Vec3
	/** @brief The colour of the vertex. */
	Color Vec4
}

// VertexSize is the stride of Vertex in a vertex buffer.
const VertexSize = uint32(unsafe.Sizeof(Vertex{}))

/**
 * @brief Represents the transform of an object in the world.
 * NOTE: The properties of this should not be edited directly, but done via
 * the functions in transform.go to ensure proper matrix generation.
 */
type Transform struct {
	/** @brief The position in the world. */
	Position Vec3
	/** @brief The rotation in the world. */
	Rotation Quaternion
	/** @brief The scale in the world. */
	Scale Vec3
	/**
	 * @brief Indicates if the position, rotation or scale have changed,
	 * indicating that the local matrix needs to be recalculated.
	 */
	IsDirty bool
	/**
	 * @brief The local transformation matrix, updated whenever
	 * the position, rotation or scale have changed.
	 */
	Local Mat4
}
