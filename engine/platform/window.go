package platform

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
)

// WindowHandler receives window state changes. Callbacks run on the
// goroutine that calls Window.Tick.
type WindowHandler interface {
	OnMinimize(w Window)
	OnRestore(w Window)
	OnResize(w Window, width, height uint32)
	OnClose(w Window)
}

type Window interface {
	ID() uuid.UUID
	// Size is the framebuffer size in pixels.
	Size() (width, height uint32)
	// Tick polls pending OS events and dispatches them to the handler.
	Tick()
	SetTitle(title string)
	SetHandler(h WindowHandler)
	Close() error
}

// VulkanPresentable is implemented by windows a Vulkan renderer can draw into.
type VulkanPresentable interface {
	RequiredInstanceExtensions() []string
	CreateSurface(instance vk.Instance) (vk.Surface, error)
}

// VulkanLoader is implemented by windows that know where the Vulkan loader
// lives. Without it the renderer falls back to the default loader lookup.
type VulkanLoader interface {
	VulkanProcAddr() unsafe.Pointer
}

// As looks up an optional capability of w.
func As[T any](w Window) (T, bool) {
	c, ok := w.(T)
	return c, ok
}
