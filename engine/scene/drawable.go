package scene

// Drawable pairs a geometry with every node that instances it.
type Drawable struct {
	handle   DrawableHandle
	geometry GeometryHandle
	nodes    []NodeHandle
}

func (d *Drawable) Handle() DrawableHandle {
	return d.handle
}

func (d *Drawable) Geometry() GeometryHandle {
	return d.geometry
}

// Nodes are the instancing transforms, in insertion order.
func (d *Drawable) Nodes() []NodeHandle {
	return d.nodes
}

func (d *Drawable) hasNode(h NodeHandle) bool {
	for _, n := range d.nodes {
		if n == h {
			return true
		}
	}
	return false
}

func (d *Drawable) removeNode(h NodeHandle) {
	d.nodes = removeHandle(d.nodes, h)
}

func removeHandle[T comparable](list []T, h T) []T {
	for i, v := range list {
		if v == h {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}
