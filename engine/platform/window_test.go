package platform_test

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vkframe/engine/platform"
)

type headlessWindow struct {
	id uuid.UUID
}

func (w *headlessWindow) ID() uuid.UUID                     { return w.id }
func (w *headlessWindow) Size() (uint32, uint32)            { return 640, 480 }
func (w *headlessWindow) Tick()                             {}
func (w *headlessWindow) SetTitle(string)                   {}
func (w *headlessWindow) SetHandler(platform.WindowHandler) {}
func (w *headlessWindow) Close() error                      { return nil }

type presentableWindow struct {
	headlessWindow
}

func (w *presentableWindow) RequiredInstanceExtensions() []string {
	return []string{"VK_KHR_surface"}
}

func (w *presentableWindow) CreateSurface(vk.Instance) (vk.Surface, error) {
	return vk.NullSurface, nil
}

func TestAsCapability(t *testing.T) {
	var w platform.Window = &headlessWindow{id: uuid.New()}
	_, ok := platform.As[platform.VulkanPresentable](w)
	require.False(t, ok)

	w = &presentableWindow{headlessWindow{id: uuid.New()}}
	p, ok := platform.As[platform.VulkanPresentable](w)
	require.True(t, ok)
	require.Equal(t, []string{"VK_KHR_surface"}, p.RequiredInstanceExtensions())

	_, ok = platform.As[platform.VulkanLoader](w)
	require.False(t, ok)
}
