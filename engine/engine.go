package engine

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/platform"
	"github.com/spaghettifunk/vkframe/engine/renderer"
	"github.com/spaghettifunk/vkframe/engine/scene"
)

// Sleep between window polls while minimized.
const suspendedPollInterval = 50 * time.Millisecond

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is currently running
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Engine owns the window, the renderer and the scene, and runs the frame
// loop of a Game.
type Engine struct {
	currentStage Stage
	game         *Game
	config       *core.EngineConfig

	window   platform.Window
	renderer renderer.Renderer
	scene    *scene.Scene
	events   *core.EventBus
	metrics  *core.FrameMetrics
	clock    *core.Clock

	isRunning     atomic.Bool
	isSuspended   bool
	pendingResize bool
	frames        uint64

	log *log.Logger
}

type Option func(e *Engine)

// WithWindow uses w instead of opening a GLFW window.
func WithWindow(w platform.Window) Option {
	return func(e *Engine) {
		e.window = w
	}
}

// WithRenderer uses r instead of the Vulkan renderer.
func WithRenderer(r renderer.Renderer) Option {
	return func(e *Engine) {
		e.renderer = r
	}
}

func New(g *Game, opts ...Option) (*Engine, error) {
	if g == nil || g.ApplicationConfig == nil {
		return nil, errors.New("engine needs a game with an application config")
	}
	cfg := g.ApplicationConfig.Config
	if cfg == nil {
		cfg = core.DefaultEngineConfig()
	}
	cfg.Validate()
	core.SetLogLevel(cfg.LogLevel)

	e := &Engine{
		currentStage: EngineStageUninitialized,
		game:         g,
		config:       cfg,
		events:       core.NewEventBus(),
		metrics:      core.NewFrameMetrics(),
		clock:        core.NewClock(),
		log:          core.Logger("manager"),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.renderer == nil {
		r, err := renderer.New(renderer.Vulkan, cfg)
		if err != nil {
			return nil, err
		}
		e.renderer = r
	}
	return e, nil
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return errors.Wrap(core.ErrAlreadyInitialized, "engine")
	}
	e.currentStage = EngineStageInitializing

	if e.window == nil {
		title := e.config.Window.Title
		if name := e.game.ApplicationConfig.Name; name != "" {
			title = name
		}
		w, err := platform.NewGlfwWindow(title, e.config.Window.Width, e.config.Window.Height)
		if err != nil {
			return err
		}
		e.window = w
	}
	e.window.SetHandler(e)

	e.events.Register(core.EventApplicationQuit, e, e.onQuit)
	e.events.Register(core.EventWindowResized, e, e.onResized)
	e.events.Register(core.EventWindowMinimized, e, e.onMinimized)
	e.events.Register(core.EventWindowRestored, e, e.onRestored)

	if err := e.renderer.Init(e.window); err != nil {
		return errors.Wrap(err, "renderer")
	}
	e.log.Info("renderer initialized", "device", e.renderer.MainDeviceName(), "window", e.window.ID())

	e.scene = scene.NewScene()
	width, height := e.window.Size()
	e.scene.Camera().SetSize(float32(width), float32(height))
	if e.game.FnInitialize != nil {
		if err := e.game.FnInitialize(e.scene); err != nil {
			return err
		}
	}
	if err := e.scene.Validate(); err != nil {
		return errors.Wrap(err, "scene")
	}
	e.renderer.SetScene(e.scene)

	if e.game.FnOnResize != nil {
		if err := e.game.FnOnResize(width, height); err != nil {
			return err
		}
	}
	e.currentStage = EngineStageInitialized
	return nil
}

// Run drives the frame loop until Shutdown is called or the window closes.
func (e *Engine) Run() error {
	if e.currentStage != EngineStageInitialized {
		return errors.Wrapf(core.ErrInvalidState, "run in stage %d", e.currentStage)
	}
	e.currentStage = EngineStageRunning
	e.isRunning.Store(true)
	e.clock.Start()

	for e.isRunning.Load() {
		e.window.Tick()
		if !e.isRunning.Load() {
			break
		}
		if e.isSuspended {
			time.Sleep(suspendedPollInterval)
			e.clock.Restart()
			continue
		}
		if err := e.frame(); err != nil {
			core.LogError("frame %d failed: %v", e.frames, err)
			e.isRunning.Store(false)
			return err
		}
	}
	return nil
}

func (e *Engine) frame() error {
	if e.pendingResize {
		e.pendingResize = false
		width, height := e.window.Size()
		if err := e.renderer.Resize(width, height); err != nil {
			return errors.Wrap(err, "resize")
		}
	}

	delta := e.clock.Restart()
	if e.game.FnUpdate != nil {
		if err := e.game.FnUpdate(delta.Seconds()); err != nil {
			return errors.Wrap(err, "game update")
		}
	}

	if err := e.renderer.Tick(); err != nil {
		if !errors.Is(err, core.ErrSwapchainOutOfDate) {
			return err
		}
		e.log.Debug("swapchain out of date, resizing on next frame")
		e.pendingResize = true
	}
	e.frames++

	if e.metrics.Update(delta) {
		e.window.SetTitle(e.Title())
	}
	return nil
}

// Title is the window title showing the device and the frame rate.
func (e *Engine) Title() string {
	app := e.game.ApplicationConfig
	fps, ms := e.metrics.Frame()
	return fmt.Sprintf("%s %s - %s - %.1f fps (%.1f ms)", app.Name, app.Version, e.renderer.MainDeviceName(), fps, ms)
}

// Shutdown stops the frame loop. It may be called from any goroutine.
func (e *Engine) Shutdown() {
	e.isRunning.Store(false)
}

// Close releases the renderer, the scene and the window.
func (e *Engine) Close() error {
	e.currentStage = EngineStageShuttingDown
	e.isRunning.Store(false)

	var err error
	if e.game.FnShutdown != nil {
		err = e.game.FnShutdown()
	}
	err = errors.CombineErrors(err, e.renderer.Close())
	if e.scene != nil {
		e.scene.Close()
		e.scene = nil
	}
	if e.window != nil {
		err = errors.CombineErrors(err, e.window.Close())
	}
	e.events.Clear()
	e.currentStage = EngineStageUninitialized
	return err
}

func (e *Engine) Stage() Stage {
	return e.currentStage
}

func (e *Engine) Frames() uint64 {
	return e.frames
}

func (e *Engine) Scene() *scene.Scene {
	return e.scene
}

func (e *Engine) Events() *core.EventBus {
	return e.events
}

func (e *Engine) OnMinimize(w platform.Window) {
	e.events.Fire(core.EventContext{Code: core.EventWindowMinimized, Sender: w})
}

func (e *Engine) OnRestore(w platform.Window) {
	e.events.Fire(core.EventContext{Code: core.EventWindowRestored, Sender: w})
}

func (e *Engine) OnResize(w platform.Window, width, height uint32) {
	e.events.Fire(core.EventContext{Code: core.EventWindowResized, Sender: w, Width: width, Height: height})
}

func (e *Engine) OnClose(w platform.Window) {
	e.events.Fire(core.EventContext{Code: core.EventApplicationQuit, Sender: w})
}

func (e *Engine) onQuit(_ interface{}, _ core.EventContext) bool {
	e.log.Info("quit requested, shutting down")
	e.Shutdown()
	return true
}

func (e *Engine) onMinimized(_ interface{}, _ core.EventContext) bool {
	e.log.Info("window minimized, suspending")
	e.isSuspended = true
	return true
}

func (e *Engine) onRestored(_ interface{}, _ core.EventContext) bool {
	e.log.Info("window restored, resuming")
	e.isSuspended = false
	e.pendingResize = true
	return true
}

func (e *Engine) onResized(_ interface{}, ctx core.EventContext) bool {
	e.log.Debug("window resized", "width", ctx.Width, "height", ctx.Height)
	if ctx.Width == 0 || ctx.Height == 0 {
		e.isSuspended = true
		return true
	}
	e.isSuspended = false
	e.pendingResize = true
	if e.scene != nil {
		e.scene.Camera().SetSize(float32(ctx.Width), float32(ctx.Height))
	}
	if e.game.FnOnResize != nil {
		if err := e.game.FnOnResize(ctx.Width, ctx.Height); err != nil {
			e.log.Error("game resize failed", "err", err)
		}
	}
	return true
}
