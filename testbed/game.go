package testbed

import (
	stdmath "math"

	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkframe/engine"
	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/math"
	"github.com/spaghettifunk/vkframe/engine/scene"
)

const (
	VertexShader   = "default_vert"
	FragmentShader = "default_frag"

	// Distance between neighbouring objects of the grid.
	gridSpacing = 2.5
	// Radians per second of the dynamic objects.
	spinSpeed = 0.8
)

type TestGame struct {
	*engine.Game
}

type spinner struct {
	node     scene.NodeHandle
	position math.Mat4
	axis     math.Vec3
	angle    float32
}

type gameState struct {
	config   core.SceneConfig
	scene    *scene.Scene
	spinners []spinner
	width    uint32
	height   uint32
}

func NewTestGame(config *core.EngineConfig) *TestGame {
	tg := &TestGame{
		Game: &engine.Game{
			ApplicationConfig: &engine.ApplicationConfig{
				Name:    config.Window.Title,
				Version: "0.1.0",
				Config:  config,
			},
			State: &gameState{config: config.Scene},
		},
	}
	tg.FnInitialize = tg.Initialize
	tg.FnUpdate = tg.Update
	tg.FnOnResize = tg.OnResize
	tg.FnShutdown = tg.Shutdown
	return tg
}

func (g *TestGame) state() *gameState {
	return g.State.(*gameState)
}

// Initialize fills s with a grid of cubes. The first Dynamic objects spin,
// the rest never move.
func (g *TestGame) Initialize(s *scene.Scene) error {
	st := g.state()
	st.scene = s
	cfg := st.config
	core.LogInfo("building test scene: %d geometries, %d objects, %d dynamic", cfg.Geometries, cfg.Objects, cfg.Dynamic)

	math.Seed(42)
	drawables := make([]scene.DrawableHandle, cfg.Geometries)
	for i := range drawables {
		size := math.NewVec3(
			math.FRandomInRange(0.5, 1.5),
			math.FRandomInRange(0.5, 1.5),
			math.FRandomInRange(0.5, 1.5))
		color := math.NewVec4(
			math.FRandomInRange(0.2, 1),
			math.FRandomInRange(0.2, 1),
			math.FRandomInRange(0.2, 1),
			1)
		vertices, indices := scene.NewCube(size, color)
		gh, err := s.CreateGeometry(vertices, indices)
		if err != nil {
			return err
		}
		if drawables[i], err = s.CreateDrawable(gh); err != nil {
			return err
		}
	}

	side := int(stdmath.Ceil(stdmath.Cbrt(float64(cfg.Objects))))
	if side < 1 {
		side = 1
	}
	offset := float32(side-1) * gridSpacing / 2
	for i := 0; i < cfg.Objects; i++ {
		x, y, z := i%side, (i/side)%side, i/(side*side)
		position := math.NewMat4Translation(math.NewVec3(
			float32(x)*gridSpacing-offset,
			float32(y)*gridSpacing-offset,
			float32(z)*gridSpacing))

		n, err := s.CreateNode(s.Root())
		if err != nil {
			return err
		}
		if err := s.SetMatrix(n, position); err != nil {
			return err
		}
		frequency := scene.UpdateNever
		if i < cfg.Dynamic {
			frequency = scene.UpdateAlways
			st.spinners = append(st.spinners, spinner{
				node:     n,
				position: position,
				axis:     math.NewVec3(math.FRandomInRange(-1, 1), 1, math.FRandomInRange(-1, 1)).Normalized(),
			})
		}
		if err := s.SetUpdateFrequency(n, frequency); err != nil {
			return err
		}
		if err := s.AddDrawable(n, drawables[i%len(drawables)]); err != nil {
			return err
		}
	}

	shader, err := s.CreateShader(VertexShader, FragmentShader, scene.TopologyTriangleList)
	if err != nil {
		return err
	}
	if err := s.SetShader(shader); err != nil {
		return err
	}

	// Back off far enough to see the whole grid.
	distance := float32(side)*gridSpacing*1.5 + 5
	s.Camera().SetMatrix(math.NewMat4Translation(math.NewVec3(0, 0, -distance)))
	return nil
}

// Update spins the dynamic objects.
func (g *TestGame) Update(deltaTime float64) error {
	st := g.state()
	if st.scene == nil {
		return errors.Wrap(core.ErrNotInitialized, "test scene")
	}
	for i := range st.spinners {
		sp := &st.spinners[i]
		sp.angle += float32(deltaTime) * spinSpeed
		rotation := math.NewQuatFromAxisAngle(sp.axis, sp.angle, true).ToMat4()
		if err := st.scene.SetMatrix(sp.node, rotation.Mul(sp.position)); err != nil {
			return err
		}
	}
	return nil
}

func (g *TestGame) OnResize(width, height uint32) error {
	st := g.state()
	st.width, st.height = width, height
	return nil
}

func (g *TestGame) Shutdown() error {
	core.LogInfo("test game shutting down")
	g.state().scene = nil
	return nil
}
