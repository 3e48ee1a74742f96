package scene

import "github.com/spaghettifunk/vkframe/engine/math"

// Camera is a perspective camera. It lives outside the node tree and is
// positioned with SetMatrix.
type Camera struct {
	fov, aspect         float32
	nearPlane, farPlane float32
	world, view         math.Mat4
	projection          math.Mat4
	viewProjection      math.Mat4
}

// Vulkan clip space has y pointing down.
var flipY = math.Mat4{Data: [16]float32{
	1, 0, 0, 0,
	0, -1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}}

func NewPerspectiveCamera(fovDegrees, width, height, nearPlane, farPlane float32) *Camera {
	c := &Camera{
		fov:       math.DegToRad(fovDegrees),
		nearPlane: nearPlane,
		farPlane:  farPlane,
		world:     math.NewMat4Identity(),
		view:      math.NewMat4Identity(),
	}
	c.SetSize(width, height)
	return c
}

// SetSize updates the aspect ratio. Zero sizes are ignored.
func (c *Camera) SetSize(width, height float32) {
	if width <= 0 || height <= 0 {
		return
	}
	c.aspect = width / height
	c.updateProjection()
}

func (c *Camera) SetFov(degrees float32) {
	c.fov = math.DegToRad(degrees)
	c.updateProjection()
}

func (c *Camera) SetMatrix(world math.Mat4) {
	c.world = world
	c.view = world.Inverse()
	c.updateViewProjection()
}

func (c *Camera) Matrix() math.Mat4 {
	return c.world
}

func (c *Camera) Aspect() float32 {
	return c.aspect
}

// ViewProjection points at the combined matrix. The pointer is stable for
// the life of the camera.
func (c *Camera) ViewProjection() *math.Mat4 {
	return &c.viewProjection
}

func (c *Camera) updateProjection() {
	c.projection = math.NewMat4PerspectiveLH(c.fov, c.aspect, c.nearPlane, c.farPlane)
	c.updateViewProjection()
}

func (c *Camera) updateViewProjection() {
	c.viewProjection = c.view.Mul(flipY).Mul(c.projection)
}
