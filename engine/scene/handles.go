package scene

import "github.com/spaghettifunk/vkframe/engine/containers"

type (
	NodeHandle     = containers.Handle[Node]
	DrawableHandle = containers.Handle[Drawable]
	GeometryHandle = containers.Handle[Geometry]
	ShaderHandle   = containers.Handle[Shader]
)

// ReleaseListener is told when a scene object is closed so render-side
// resources bound to its handle can be dropped.
type ReleaseListener interface {
	ReleaseGeometry(h GeometryHandle)
	ReleaseNode(h NodeHandle)
	ReleaseShader(h ShaderHandle)
}
