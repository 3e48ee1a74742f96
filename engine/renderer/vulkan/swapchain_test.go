package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/require"

	"github.com/spaghettifunk/vkframe/engine/core"
)

func TestChooseImageCount(t *testing.T) {
	require.EqualValues(t, 3, chooseImageCount(2, 3, 0))
	require.EqualValues(t, 3, chooseImageCount(3, 2, 8))
	require.EqualValues(t, 4, chooseImageCount(6, 2, 4))
	require.EqualValues(t, 16, chooseImageCount(16, 2, 0))
}

func TestChooseSurfaceFormat(t *testing.T) {
	_, ok := chooseSurfaceFormat(nil)
	require.False(t, ok)

	f, ok := chooseSurfaceFormat([]vk.SurfaceFormat{{Format: vk.FormatUndefined, ColorSpace: vk.ColorSpaceSrgbNonlinear}})
	require.True(t, ok)
	require.Equal(t, vk.FormatB8g8r8a8Unorm, f.Format)
	require.Equal(t, vk.ColorSpaceSrgbNonlinear, f.ColorSpace)

	f, ok = chooseSurfaceFormat([]vk.SurfaceFormat{
		{Format: vk.FormatR8g8b8a8Srgb},
		{Format: vk.FormatB8g8r8a8Unorm},
	})
	require.True(t, ok)
	require.Equal(t, vk.FormatR8g8b8a8Srgb, f.Format)
}

func TestChoosePresentMode(t *testing.T) {
	all := []vk.PresentMode{vk.PresentModeFifo, vk.PresentModeFifoRelaxed, vk.PresentModeMailbox, vk.PresentModeImmediate}
	fifoOnly := []vk.PresentMode{vk.PresentModeFifo}

	require.Equal(t, vk.PresentModeMailbox, choosePresentMode(all, true))
	require.Equal(t, vk.PresentModeFifo, choosePresentMode(fifoOnly, true))

	require.Equal(t, vk.PresentModeImmediate, choosePresentMode(all, false))
	require.Equal(t, vk.PresentModeFifoRelaxed, choosePresentMode([]vk.PresentMode{vk.PresentModeFifo, vk.PresentModeFifoRelaxed}, false))
	require.Equal(t, vk.PresentModeFifo, choosePresentMode(fifoOnly, false))
}

func TestChooseExtent(t *testing.T) {
	minE := vk.Extent2D{Width: 1, Height: 1}
	maxE := vk.Extent2D{Width: 4096, Height: 2048}

	fixed := vk.Extent2D{Width: 800, Height: 600}
	require.Equal(t, fixed, chooseExtent(fixed, minE, maxE, 1024, 768))

	free := vk.Extent2D{Width: vk.MaxUint32, Height: vk.MaxUint32}
	require.Equal(t, vk.Extent2D{Width: 1024, Height: 768}, chooseExtent(free, minE, maxE, 1024, 768))
	require.Equal(t, vk.Extent2D{Width: 4096, Height: 2048}, chooseExtent(free, minE, maxE, 5000, 3000))
}

func TestSwapchain_ResizeBeforeInit(t *testing.T) {
	sc := NewSwapchain()
	require.Equal(t, SwapchainUninitialized, sc.State())

	require.NoError(t, sc.Resize(0, 600))
	require.Equal(t, SwapchainUninitialized, sc.State())

	require.ErrorIs(t, sc.Resize(800, 600), core.ErrInvalidState)
	require.Equal(t, SwapchainUninitialized, sc.State())
	require.Equal(t, "uninitialized", sc.State().String())
}

func TestCheckImageCount(t *testing.T) {
	require.NoError(t, checkImageCount(3, 3))
	require.ErrorIs(t, checkImageCount(3, 4), core.ErrInvalidState)
	require.ErrorIs(t, checkImageCount(3, 2), core.ErrInvalidState)
}
