package vulkan

import (
	"testing"

	vk "github.com/goki/vulkan"
	"github.com/stretchr/testify/require"
)

func queueFlags(bits ...vk.QueueFlagBits) vk.QueueFlags {
	var f vk.QueueFlags
	for _, b := range bits {
		f |= vk.QueueFlags(b)
	}
	return f
}

func TestSelectQueueFamily(t *testing.T) {
	families := []vk.QueueFlags{
		queueFlags(vk.QueueGraphicsBit, vk.QueueComputeBit, vk.QueueTransferBit),
		queueFlags(vk.QueueComputeBit, vk.QueueTransferBit),
		queueFlags(vk.QueueTransferBit),
	}

	i, ok := selectQueueFamily(families, queueFlags(vk.QueueGraphicsBit), nil)
	require.True(t, ok)
	require.EqualValues(t, 0, i)

	// The dedicated transfer family wins over the ones that do more.
	i, ok = selectQueueFamily(families, queueFlags(vk.QueueTransferBit), nil)
	require.True(t, ok)
	require.EqualValues(t, 2, i)

	i, ok = selectQueueFamily(families, queueFlags(vk.QueueComputeBit), nil)
	require.True(t, ok)
	require.EqualValues(t, 1, i)

	_, ok = selectQueueFamily(families[1:], queueFlags(vk.QueueGraphicsBit), nil)
	require.False(t, ok)
}

func TestSelectQueueFamily_Presentation(t *testing.T) {
	families := []vk.QueueFlags{
		queueFlags(vk.QueueGraphicsBit),
		queueFlags(vk.QueueGraphicsBit, vk.QueueComputeBit),
	}
	onlySecond := func(index uint32) bool { return index == 1 }

	i, ok := selectQueueFamily(families, queueFlags(vk.QueueGraphicsBit), onlySecond)
	require.True(t, ok)
	require.EqualValues(t, 1, i)

	_, ok = selectQueueFamily(families, queueFlags(vk.QueueGraphicsBit), func(uint32) bool { return false })
	require.False(t, ok)
}

func TestFindMemoryType(t *testing.T) {
	types := []vk.MemoryPropertyFlags{
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit | vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit),
	}
	hostVisible := vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit)
	deviceLocal := vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)

	i, ok := findMemoryType(types, 0b111, hostVisible)
	require.True(t, ok)
	require.EqualValues(t, 1, i)

	// Type bits exclude the first match.
	i, ok = findMemoryType(types, 0b100, hostVisible)
	require.True(t, ok)
	require.EqualValues(t, 2, i)

	i, ok = findMemoryType(types, 0b111, deviceLocal)
	require.True(t, ok)
	require.EqualValues(t, 0, i)

	_, ok = findMemoryType(types, 0b010, deviceLocal)
	require.False(t, ok)
}

func TestVkError(t *testing.T) {
	require.NoError(t, vkError(vk.Success, "vkDeviceWaitIdle"))
	err := vkError(vk.ErrorOutOfDate, "vkQueuePresentKHR")
	require.EqualError(t, err, "vkQueuePresentKHR failed: VK_ERROR_OUT_OF_DATE_KHR")
}

func TestVulkanStrings(t *testing.T) {
	require.Equal(t, "VK_KHR_swapchain\x00", VulkanSafeString("VK_KHR_swapchain"))
	require.Equal(t, "a\x00", VulkanSafeString("a\x00"))
	require.Equal(t, "\x00", VulkanSafeString(""))
	require.Equal(t, "llvmpipe", cString([]byte("llvmpipe\x00\x00\x00")))
	require.Equal(t, "abc", cString([]byte("abc")))
}
