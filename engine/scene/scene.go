package scene

import (
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkframe/engine/containers"
	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/math"
)

// Scene owns the node tree and every object a renderer draws from it.
// Objects are addressed by handles; a closed object's handle stops resolving.
// A Scene is not safe for concurrent mutation. Renderers only read it while
// recording a frame.
type Scene struct {
	nodes      *containers.Slab[Node]
	drawables  *containers.Slab[Drawable]
	geometries *containers.Slab[Geometry]
	shaders    *containers.Slab[Shader]

	root      NodeHandle
	shapeList []*Drawable
	shader    ShaderHandle
	camera    *Camera

	listeners []ReleaseListener
	closed    bool
	log       *log.Logger
}

func NewScene() *Scene {
	s := &Scene{
		nodes:      containers.NewSlab[Node](),
		drawables:  containers.NewSlab[Drawable](),
		geometries: containers.NewSlab[Geometry](),
		shaders:    containers.NewSlab[Shader](),
		camera:     NewPerspectiveCamera(70, 16, 9, 0.1, 100),
		log:        core.Logger("scene"),
	}
	root := &Node{local: math.NewMat4Identity(), world: math.NewMat4Identity(), enabled: true}
	root.handle = s.nodes.Insert(root)
	s.root = root.handle
	return s
}

func (s *Scene) Root() NodeHandle {
	return s.root
}

func (s *Scene) Camera() *Camera {
	return s.camera
}

func (s *Scene) SetCamera(c *Camera) {
	s.camera = c
}

func (s *Scene) Node(h NodeHandle) (*Node, bool) {
	return s.nodes.Get(h)
}

func (s *Scene) Geometry(h GeometryHandle) (*Geometry, bool) {
	return s.geometries.Get(h)
}

func (s *Scene) Drawable(h DrawableHandle) (*Drawable, bool) {
	return s.drawables.Get(h)
}

func (s *Scene) ShaderByHandle(h ShaderHandle) (*Shader, bool) {
	return s.shaders.Get(h)
}

// Drawables lists every drawable attached to at least one node. The slice
// must be treated as read-only and is only stable between mutations.
func (s *Scene) Drawables() []*Drawable {
	return s.shapeList
}

func (s *Scene) AddReleaseListener(l ReleaseListener) {
	s.listeners = append(s.listeners, l)
}

func (s *Scene) RemoveReleaseListener(l ReleaseListener) {
	s.listeners = removeHandle(s.listeners, l)
}

// CreateNode adds an identity node below parent. The new node inherits the
// parent's world matrix.
func (s *Scene) CreateNode(parent NodeHandle) (NodeHandle, error) {
	if s.closed {
		return NodeHandle{}, core.ErrInvalidState
	}
	p, ok := s.nodes.Get(parent)
	if !ok {
		return NodeHandle{}, errors.Wrap(core.ErrStaleHandle, "create node")
	}
	n := &Node{
		parent:  parent,
		local:   math.NewMat4Identity(),
		world:   p.world,
		enabled: true,
	}
	n.handle = s.nodes.Insert(n)
	p.children = append(p.children, n.handle)
	return n.handle, nil
}

// SetMatrix replaces the node's local matrix and refreshes world matrices
// for the whole subtree.
func (s *Scene) SetMatrix(h NodeHandle, m math.Mat4) error {
	n, ok := s.nodes.Get(h)
	if !ok {
		return errors.Wrap(core.ErrStaleHandle, "set matrix")
	}
	n.local = m
	s.updateWorld(n)
	return nil
}

func (s *Scene) updateWorld(n *Node) {
	if p, ok := s.nodes.Get(n.parent); ok {
		n.world = n.local.Mul(p.world)
	} else {
		n.world = n.local
	}
	for _, c := range n.children {
		if child, ok := s.nodes.Get(c); ok {
			s.updateWorld(child)
		}
	}
}

// SetUpdateFrequency may only be changed on leaf nodes, since a parent's
// frequency would otherwise have to bound its children's. A change is
// reported to the release listeners so renderers rebuild their copy of the
// node with the new frequency.
func (s *Scene) SetUpdateFrequency(h NodeHandle, f UpdateFrequency) error {
	n, ok := s.nodes.Get(h)
	if !ok {
		return errors.Wrap(core.ErrStaleHandle, "set update frequency")
	}
	if len(n.children) > 0 {
		return errors.Wrapf(core.ErrInvalidState, "node has %d children", len(n.children))
	}
	if n.frequency == f {
		return nil
	}
	n.frequency = f
	for _, l := range s.listeners {
		l.ReleaseNode(h)
	}
	return nil
}

func (s *Scene) SetEnabled(h NodeHandle, enabled bool) error {
	n, ok := s.nodes.Get(h)
	if !ok {
		return errors.Wrap(core.ErrStaleHandle, "set enabled")
	}
	n.enabled = enabled
	return nil
}

// CloseNode closes the node and its subtree. Drawables left without any
// node drop out of the draw list but stay alive.
func (s *Scene) CloseNode(h NodeHandle) error {
	if h == s.root {
		return errors.Wrap(core.ErrInvalidState, "the root node cannot be closed")
	}
	n, ok := s.nodes.Get(h)
	if !ok {
		return errors.Wrap(core.ErrStaleHandle, "close node")
	}
	if p, ok := s.nodes.Get(n.parent); ok {
		p.children = removeHandle(p.children, h)
	}
	s.closeSubtree(n)
	return nil
}

func (s *Scene) closeSubtree(n *Node) {
	for _, c := range n.children {
		if child, ok := s.nodes.Get(c); ok {
			s.closeSubtree(child)
		}
	}
	for _, dh := range n.drawables {
		if d, ok := s.drawables.Get(dh); ok {
			d.removeNode(n.handle)
			if len(d.nodes) == 0 {
				s.shapeList = removeHandle(s.shapeList, d)
			}
		}
	}
	s.nodes.Remove(n.handle)
	for _, l := range s.listeners {
		l.ReleaseNode(n.handle)
	}
}

// CreateGeometry takes ownership of the slices.
func (s *Scene) CreateGeometry(vertices []math.Vertex, indices []uint32) (GeometryHandle, error) {
	if s.closed {
		return GeometryHandle{}, core.ErrInvalidState
	}
	if len(vertices) == 0 || len(indices) == 0 {
		return GeometryHandle{}, errors.Newf("geometry needs vertices and indices, got %d and %d", len(vertices), len(indices))
	}
	g := &Geometry{Vertices: vertices, Indices: indices, bounds: vertexBounds(vertices)}
	g.handle = s.geometries.Insert(g)
	return g.handle, nil
}

func (s *Scene) CloseGeometry(h GeometryHandle) error {
	if !s.geometries.Contains(h) {
		return errors.Wrap(core.ErrStaleHandle, "close geometry")
	}
	inUse := false
	s.drawables.Each(func(_ DrawableHandle, d *Drawable) {
		if d.geometry == h {
			inUse = true
		}
	})
	if inUse {
		return errors.Wrap(core.ErrStillInUse, "geometry is referenced by a drawable")
	}
	s.geometries.Remove(h)
	for _, l := range s.listeners {
		l.ReleaseGeometry(h)
	}
	return nil
}

func (s *Scene) CreateDrawable(geometry GeometryHandle) (DrawableHandle, error) {
	if s.closed {
		return DrawableHandle{}, core.ErrInvalidState
	}
	if !s.geometries.Contains(geometry) {
		return DrawableHandle{}, errors.Wrap(core.ErrStaleHandle, "create drawable")
	}
	d := &Drawable{geometry: geometry}
	d.handle = s.drawables.Insert(d)
	return d.handle, nil
}

// AddDrawable instances the drawable at node. A drawable may be attached to
// many nodes but only once to each.
func (s *Scene) AddDrawable(node NodeHandle, drawable DrawableHandle) error {
	n, ok := s.nodes.Get(node)
	if !ok {
		return errors.Wrap(core.ErrStaleHandle, "add drawable: node")
	}
	d, ok := s.drawables.Get(drawable)
	if !ok {
		return errors.Wrap(core.ErrStaleHandle, "add drawable: drawable")
	}
	if d.hasNode(node) {
		return errors.Wrap(core.ErrInvalidState, "drawable already attached to node")
	}
	if len(d.nodes) == 0 {
		s.shapeList = append(s.shapeList, d)
	}
	d.nodes = append(d.nodes, node)
	n.drawables = append(n.drawables, drawable)
	return nil
}

func (s *Scene) RemoveDrawable(node NodeHandle, drawable DrawableHandle) error {
	n, ok := s.nodes.Get(node)
	if !ok {
		return errors.Wrap(core.ErrStaleHandle, "remove drawable: node")
	}
	d, ok := s.drawables.Get(drawable)
	if !ok {
		return errors.Wrap(core.ErrStaleHandle, "remove drawable: drawable")
	}
	if !d.hasNode(node) {
		return errors.Wrap(core.ErrInvalidState, "drawable not attached to node")
	}
	d.removeNode(node)
	n.drawables = removeHandle(n.drawables, drawable)
	if len(d.nodes) == 0 {
		s.shapeList = removeHandle(s.shapeList, d)
	}
	return nil
}

func (s *Scene) CloseDrawable(h DrawableHandle) error {
	d, ok := s.drawables.Get(h)
	if !ok {
		return errors.Wrap(core.ErrStaleHandle, "close drawable")
	}
	if len(d.nodes) > 0 {
		return errors.Wrapf(core.ErrStillInUse, "drawable attached to %d nodes", len(d.nodes))
	}
	s.drawables.Remove(h)
	return nil
}

// ImportDrawable copies a drawable owned by another scene into this one.
// The geometry data is shared, not duplicated. The copy has no nodes.
func (s *Scene) ImportDrawable(src *Scene, h DrawableHandle) (DrawableHandle, error) {
	d, ok := src.drawables.Get(h)
	if !ok {
		return DrawableHandle{}, errors.Wrap(core.ErrStaleHandle, "import drawable")
	}
	g, ok := src.geometries.Get(d.geometry)
	if !ok {
		return DrawableHandle{}, errors.Wrap(core.ErrStaleHandle, "import drawable: geometry")
	}
	gh, err := s.CreateGeometry(g.Vertices, g.Indices)
	if err != nil {
		return DrawableHandle{}, err
	}
	s.log.Debug("imported drawable", "from", h.Index(), "vertices", len(g.Vertices))
	return s.CreateDrawable(gh)
}

func (s *Scene) CreateShader(vertexShader, fragmentShader string, topology Topology) (ShaderHandle, error) {
	if s.closed {
		return ShaderHandle{}, core.ErrInvalidState
	}
	sh := &Shader{VertexShaderName: vertexShader, FragmentShaderName: fragmentShader, Topology: topology}
	sh.handle = s.shaders.Insert(sh)
	return sh.handle, nil
}

// SetShader selects the shader every drawable of the scene is drawn with.
func (s *Scene) SetShader(h ShaderHandle) error {
	if !s.shaders.Contains(h) {
		return errors.Wrap(core.ErrStaleHandle, "set shader")
	}
	s.shader = h
	return nil
}

func (s *Scene) Shader() ShaderHandle {
	return s.shader
}

func (s *Scene) CloseShader(h ShaderHandle) error {
	if !s.shaders.Contains(h) {
		return errors.Wrap(core.ErrStaleHandle, "close shader")
	}
	if h == s.shader {
		return errors.Wrap(core.ErrStillInUse, "shader is the active scene shader")
	}
	s.shaders.Remove(h)
	for _, l := range s.listeners {
		l.ReleaseShader(h)
	}
	return nil
}

// Validate checks that every cross reference in the scene resolves.
func (s *Scene) Validate() error {
	var errs error
	s.nodes.Each(func(h NodeHandle, n *Node) {
		if h != s.root && !s.nodes.Contains(n.parent) {
			errs = errors.CombineErrors(errs, errors.Newf("node %d has a dangling parent", h.Index()))
		}
		for _, dh := range n.drawables {
			d, ok := s.drawables.Get(dh)
			if !ok || !d.hasNode(h) {
				errs = errors.CombineErrors(errs, errors.Newf("node %d references drawable %d inconsistently", h.Index(), dh.Index()))
			}
		}
	})
	s.drawables.Each(func(h DrawableHandle, d *Drawable) {
		if !s.geometries.Contains(d.geometry) {
			errs = errors.CombineErrors(errs, errors.Newf("drawable %d has a dangling geometry", h.Index()))
		}
		for _, nh := range d.nodes {
			if !s.nodes.Contains(nh) {
				errs = errors.CombineErrors(errs, errors.Newf("drawable %d has a dangling node", h.Index()))
			}
		}
	})
	if !s.shader.IsZero() && !s.shaders.Contains(s.shader) {
		errs = errors.CombineErrors(errs, errors.New("scene shader is stale"))
	}
	return errs
}

// Close releases every object. Listeners are told about each geometry, node
// and shader so they can drop render-side copies.
func (s *Scene) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.nodes.Each(func(h NodeHandle, _ *Node) {
		for _, l := range s.listeners {
			l.ReleaseNode(h)
		}
	})
	s.geometries.Each(func(h GeometryHandle, _ *Geometry) {
		for _, l := range s.listeners {
			l.ReleaseGeometry(h)
		}
	})
	s.shaders.Each(func(h ShaderHandle, _ *Shader) {
		for _, l := range s.listeners {
			l.ReleaseShader(h)
		}
	})
	s.nodes = containers.NewSlab[Node]()
	s.drawables = containers.NewSlab[Drawable]()
	s.geometries = containers.NewSlab[Geometry]()
	s.shaders = containers.NewSlab[Shader]()
	s.shapeList = nil
	s.shader = ShaderHandle{}
	s.root = NodeHandle{}
}
