package engine

import "github.com/spaghettifunk/vkframe/engine/scene"

// Game is the application driven by the Engine. Every callback is optional.
type Game struct {
	ApplicationConfig *ApplicationConfig
	State             interface{}
	FnInitialize      Initialize
	FnUpdate          Update
	FnOnResize        OnResize
	FnShutdown        Shutdown
}

// Initialize fills the scene before the first frame.
type Initialize func(s *scene.Scene) error
type Update func(deltaTime float64) error
type OnResize func(width uint32, height uint32) error
type Shutdown func() error
