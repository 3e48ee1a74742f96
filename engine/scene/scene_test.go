package scene_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/math"
	"github.com/spaghettifunk/vkframe/engine/scene"
)

type releaseRecorder struct {
	geometries []scene.GeometryHandle
	nodes      []scene.NodeHandle
	shaders    []scene.ShaderHandle
}

func (r *releaseRecorder) ReleaseGeometry(h scene.GeometryHandle) {
	r.geometries = append(r.geometries, h)
}
func (r *releaseRecorder) ReleaseNode(h scene.NodeHandle)     { r.nodes = append(r.nodes, h) }
func (r *releaseRecorder) ReleaseShader(h scene.ShaderHandle) { r.shaders = append(r.shaders, h) }

func newCubeDrawable(t *testing.T, s *scene.Scene) (scene.GeometryHandle, scene.DrawableHandle) {
	t.Helper()
	v, i := scene.NewCube(math.NewVec3(1, 1, 1), math.NewVec4(1, 0, 0, 1))
	g, err := s.CreateGeometry(v, i)
	require.NoError(t, err)
	d, err := s.CreateDrawable(g)
	require.NoError(t, err)
	return g, d
}

func TestCubeGeometry(t *testing.T) {
	v, i := scene.NewCube(math.NewVec3(2, 4, 6), math.NewVec4(1, 1, 1, 1))
	require.Len(t, v, 24)
	require.Len(t, i, 36)

	for _, vert := range v {
		require.InDelta(t, 1, absf(vert.Position.X), 1e-6)
		require.InDelta(t, 2, absf(vert.Position.Y), 1e-6)
		require.InDelta(t, 3, absf(vert.Position.Z), 1e-6)
		require.InDelta(t, 1, vert.Normal.Length(), 1e-6)
		require.InDelta(t, 0, vert.Normal.Dot(vert.Tangent), 1e-5)
	}

	// every triangle faces away from the centre
	for tri := 0; tri < len(i); tri += 3 {
		a, b, c := v[i[tri]].Position, v[i[tri+1]].Position, v[i[tri+2]].Position
		n := v[i[tri]].Normal
		centroid := a.Add(b).Add(c).MulScalar(1.0 / 3.0)
		require.Greater(t, centroid.Dot(n), float32(0))
	}
}

func absf(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

func TestSceneWorldMatrices(t *testing.T) {
	s := scene.NewScene()
	parent, err := s.CreateNode(s.Root())
	require.NoError(t, err)
	child, err := s.CreateNode(parent)
	require.NoError(t, err)

	require.NoError(t, s.SetMatrix(child, math.NewMat4Translation(math.NewVec3(0, 1, 0))))
	require.NoError(t, s.SetMatrix(parent, math.NewMat4Translation(math.NewVec3(5, 0, 0))))

	n, ok := s.Node(child)
	require.True(t, ok)
	pos := n.WorldMatrix().Position()
	require.InDelta(t, 5, pos.X, 1e-6)
	require.InDelta(t, 1, pos.Y, 1e-6)

	ptr := n.WorldMatrixPointer()
	require.NoError(t, s.SetMatrix(parent, math.NewMat4Identity()))
	require.InDelta(t, 0, ptr.Position().X, 1e-6)
}

func TestSceneUpdateFrequencyOnlyOnLeaves(t *testing.T) {
	s := scene.NewScene()
	parent, err := s.CreateNode(s.Root())
	require.NoError(t, err)
	_, err = s.CreateNode(parent)
	require.NoError(t, err)

	err = s.SetUpdateFrequency(parent, scene.UpdateNever)
	require.True(t, errors.Is(err, core.ErrInvalidState))
}

func TestSceneUpdateFrequencyChangeNotifiesListeners(t *testing.T) {
	s := scene.NewScene()
	rec := &releaseRecorder{}
	s.AddReleaseListener(rec)

	n, err := s.CreateNode(s.Root())
	require.NoError(t, err)

	require.NoError(t, s.SetUpdateFrequency(n, scene.UpdateNever))
	require.Equal(t, []scene.NodeHandle{n}, rec.nodes)

	// Setting the current frequency again is not a change.
	require.NoError(t, s.SetUpdateFrequency(n, scene.UpdateNever))
	require.Len(t, rec.nodes, 1)

	require.NoError(t, s.SetUpdateFrequency(n, scene.UpdateAlways))
	require.Equal(t, []scene.NodeHandle{n, n}, rec.nodes)
}

func TestSceneDrawableList(t *testing.T) {
	s := scene.NewScene()
	_, d := newCubeDrawable(t, s)
	a, _ := s.CreateNode(s.Root())
	b, _ := s.CreateNode(s.Root())

	require.Empty(t, s.Drawables())
	require.NoError(t, s.AddDrawable(a, d))
	require.NoError(t, s.AddDrawable(b, d))
	require.Len(t, s.Drawables(), 1)
	require.Len(t, s.Drawables()[0].Nodes(), 2)

	err := s.AddDrawable(a, d)
	require.True(t, errors.Is(err, core.ErrInvalidState))

	require.NoError(t, s.RemoveDrawable(a, d))
	require.Len(t, s.Drawables(), 1)
	require.NoError(t, s.CloseNode(b))
	require.Empty(t, s.Drawables())

	_, ok := s.Drawable(d)
	require.True(t, ok)
	require.NoError(t, s.CloseDrawable(d))
	_, ok = s.Drawable(d)
	require.False(t, ok)
}

func TestSceneCloseNotifiesListeners(t *testing.T) {
	s := scene.NewScene()
	rec := &releaseRecorder{}
	s.AddReleaseListener(rec)

	g, d := newCubeDrawable(t, s)
	parent, _ := s.CreateNode(s.Root())
	child, _ := s.CreateNode(parent)
	require.NoError(t, s.AddDrawable(child, d))

	err := s.CloseGeometry(g)
	require.True(t, errors.Is(err, core.ErrStillInUse))

	require.NoError(t, s.CloseNode(parent))
	require.ElementsMatch(t, []scene.NodeHandle{parent, child}, rec.nodes)
	_, ok := s.Node(child)
	require.False(t, ok)

	err = s.SetMatrix(child, math.NewMat4Identity())
	require.True(t, errors.Is(err, core.ErrStaleHandle))

	require.NoError(t, s.CloseDrawable(d))
	require.NoError(t, s.CloseGeometry(g))
	require.Equal(t, []scene.GeometryHandle{g}, rec.geometries)

	require.True(t, errors.Is(s.CloseNode(s.Root()), core.ErrInvalidState))
}

func TestSceneStaleHandleAfterReuse(t *testing.T) {
	s := scene.NewScene()
	old, _ := s.CreateNode(s.Root())
	require.NoError(t, s.CloseNode(old))
	reused, _ := s.CreateNode(s.Root())

	require.Equal(t, old.Index(), reused.Index())
	_, ok := s.Node(old)
	require.False(t, ok)
	_, ok = s.Node(reused)
	require.True(t, ok)
}

func TestSceneImportDrawable(t *testing.T) {
	src := scene.NewScene()
	_, d := newCubeDrawable(t, src)

	dst := scene.NewScene()
	copied, err := dst.ImportDrawable(src, d)
	require.NoError(t, err)

	cd, ok := dst.Drawable(copied)
	require.True(t, ok)
	g, ok := dst.Geometry(cd.Geometry())
	require.True(t, ok)
	require.Len(t, g.Vertices, 24)
	require.Empty(t, cd.Nodes())
}

func TestSceneValidateAndClose(t *testing.T) {
	s := scene.NewScene()
	rec := &releaseRecorder{}
	s.AddReleaseListener(rec)

	_, d := newCubeDrawable(t, s)
	n, _ := s.CreateNode(s.Root())
	require.NoError(t, s.AddDrawable(n, d))
	sh, err := s.CreateShader("basic.vert", "basic.frag", scene.TopologyTriangleList)
	require.NoError(t, err)
	require.NoError(t, s.SetShader(sh))
	require.True(t, errors.Is(s.CloseShader(sh), core.ErrStillInUse))
	require.NoError(t, s.Validate())

	s.Close()
	require.Len(t, rec.geometries, 1)
	require.Len(t, rec.shaders, 1)
	require.Len(t, rec.nodes, 2)
	require.Empty(t, s.Drawables())
	_, err = s.CreateNode(s.Root())
	require.Error(t, err)
}

func TestGeometryIndexEncoding(t *testing.T) {
	s := scene.NewScene()
	gh, _ := newCubeDrawable(t, s)
	g, _ := s.Geometry(gh)

	require.False(t, g.Uses32BitIndices())
	require.Equal(t, uint32(2), g.IndexSize())
	require.Len(t, g.IndexBytes(), 36*2)
	require.Len(t, g.VertexBytes(), 24*int(math.VertexSize))
}

func TestGeometryBounds(t *testing.T) {
	s := scene.NewScene()
	v, i := scene.NewCube(math.NewVec3(2, 4, 6), math.NewVec4(1, 1, 1, 1))
	for k := range v {
		v[k].Position.X += 10
	}
	gh, err := s.CreateGeometry(v, i)
	require.NoError(t, err)
	g, ok := s.Geometry(gh)
	require.True(t, ok)

	b := g.Bounds()
	require.InDelta(t, 9, b.Min.X, 1e-6)
	require.InDelta(t, 11, b.Max.X, 1e-6)
	require.InDelta(t, -2, b.Min.Y, 1e-6)
	require.InDelta(t, 2, b.Max.Y, 1e-6)
	require.InDelta(t, -3, b.Min.Z, 1e-6)
	require.InDelta(t, 3, b.Max.Z, 1e-6)
}

func TestCameraViewProjection(t *testing.T) {
	c := scene.NewPerspectiveCamera(70, 1280, 720, 0.1, 100)
	c.SetMatrix(math.NewMat4Translation(math.NewVec3(0, 0, -10)))

	// the origin sits 10 units ahead of the camera, in front of the near plane
	vp := c.ViewProjection()
	clip := math.NewVec4(0, 0, 0, 1)
	x := clip.X*vp.Data[0] + clip.Y*vp.Data[4] + clip.Z*vp.Data[8] + clip.W*vp.Data[12]
	w := clip.X*vp.Data[3] + clip.Y*vp.Data[7] + clip.Z*vp.Data[11] + clip.W*vp.Data[15]
	z := clip.X*vp.Data[2] + clip.Y*vp.Data[6] + clip.Z*vp.Data[10] + clip.W*vp.Data[14]
	require.InDelta(t, 0, x, 1e-5)
	require.InDelta(t, 10, w, 1e-4)
	require.Greater(t, z/w, float32(0))
	require.Less(t, z/w, float32(1))
}
