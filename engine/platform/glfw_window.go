package platform

import (
	"runtime"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/goki/vulkan"
	"github.com/google/uuid"

	"github.com/spaghettifunk/vkframe/engine/core"
)

func init() {
	// GLFW event handling must run on the main OS thread
	runtime.LockOSThread()
}

type GlfwWindow struct {
	id      uuid.UUID
	window  *glfw.Window
	handler WindowHandler
	closed  bool
}

// NewGlfwWindow initializes GLFW and opens a resizable window without a
// client API, ready for a Vulkan surface. It must be called from the main
// goroutine.
func NewGlfwWindow(title string, width, height uint32) (*GlfwWindow, error) {
	if err := glfw.Init(); err != nil {
		return nil, errors.Wrap(err, "failed to initialize glfw")
	}
	if !glfw.VulkanSupported() {
		glfw.Terminate()
		return nil, errors.Wrap(core.ErrWindowNotPresentable, "glfw reports no vulkan loader")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.Resizable, glfw.True)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // Required for Vulkan.

	window, err := glfw.CreateWindow(int(width), int(height), title, nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, errors.Wrap(err, "failed to create window")
	}

	w := &GlfwWindow{
		id:     uuid.New(),
		window: window,
	}
	window.SetFramebufferSizeCallback(w.framebufferSizeCallback)
	window.SetIconifyCallback(w.iconifyCallback)
	window.SetCloseCallback(w.closeCallback)
	window.Show()

	core.LogInfo("window %s created (%dx%d)", w.id, width, height)
	return w, nil
}

func (w *GlfwWindow) ID() uuid.UUID {
	return w.id
}

func (w *GlfwWindow) Size() (uint32, uint32) {
	width, height := w.window.GetFramebufferSize()
	return uint32(width), uint32(height)
}

func (w *GlfwWindow) Tick() {
	glfw.PollEvents()
}

func (w *GlfwWindow) SetTitle(title string) {
	w.window.SetTitle(title)
}

func (w *GlfwWindow) SetHandler(h WindowHandler) {
	w.handler = h
}

func (w *GlfwWindow) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.window.Destroy()
	glfw.Terminate()
	core.LogInfo("window %s closed", w.id)
	return nil
}

func (w *GlfwWindow) RequiredInstanceExtensions() []string {
	return w.window.GetRequiredInstanceExtensions()
}

// VulkanProcAddr returns the loader entry point vk.SetGetInstanceProcAddr expects.
func (w *GlfwWindow) VulkanProcAddr() unsafe.Pointer {
	return glfw.GetVulkanGetInstanceProcAddress()
}

func (w *GlfwWindow) CreateSurface(instance vk.Instance) (vk.Surface, error) {
	ptr, err := w.window.CreateWindowSurface(instance, nil)
	if err != nil {
		return vk.NullSurface, errors.Wrap(err, "vulkan surface creation failed")
	}
	return vk.SurfaceFromPointer(ptr), nil
}

func (w *GlfwWindow) framebufferSizeCallback(_ *glfw.Window, width, height int) {
	if w.handler != nil {
		w.handler.OnResize(w, uint32(width), uint32(height))
	}
}

func (w *GlfwWindow) iconifyCallback(_ *glfw.Window, iconified bool) {
	if w.handler == nil {
		return
	}
	if iconified {
		w.handler.OnMinimize(w)
	} else {
		w.handler.OnRestore(w)
	}
}

func (w *GlfwWindow) closeCallback(_ *glfw.Window) {
	if w.handler != nil {
		w.handler.OnClose(w)
	}
}
