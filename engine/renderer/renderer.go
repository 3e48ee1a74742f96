package renderer

import (
	"github.com/cockroachdb/errors"

	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/platform"
	"github.com/spaghettifunk/vkframe/engine/renderer/vulkan"
	"github.com/spaghettifunk/vkframe/engine/scene"
)

// Renderer is what the host drives once per frame.
type Renderer interface {
	Init(window platform.Window) error
	// Tick renders and presents one frame. core.ErrSwapchainOutOfDate
	// means the caller should Resize before the next Tick.
	Tick() error
	Resize(width, height uint32) error
	Close() error
	MainDeviceName() string
	SetScene(s *scene.Scene)
	Scene() *scene.Scene
}

type RendererType uint8

const (
	Vulkan RendererType = iota
)

func (t RendererType) String() string {
	switch t {
	case Vulkan:
		return "vulkan"
	}
	return "unknown"
}

func New(t RendererType, cfg *core.EngineConfig) (Renderer, error) {
	switch t {
	case Vulkan:
		return vulkan.NewRenderer(cfg), nil
	}
	return nil, errors.Newf("renderer type %d is not supported", t)
}
