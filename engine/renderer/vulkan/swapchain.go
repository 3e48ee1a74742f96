package vulkan

import (
	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/math"
)

type SwapchainState int

const (
	SwapchainUninitialized SwapchainState = iota
	SwapchainReady
	SwapchainResizing
	SwapchainClosed
)

func (s SwapchainState) String() string {
	switch s {
	case SwapchainUninitialized:
		return "uninitialized"
	case SwapchainReady:
		return "ready"
	case SwapchainResizing:
		return "resizing"
	case SwapchainClosed:
		return "closed"
	}
	return "unknown"
}

// VulkanSwapchain owns the presentable images of the window surface and the
// frame targets rendered into them. Each image carries a fence that is
// signalled when the last submission rendering into it has completed.
type VulkanSwapchain struct {
	Handle vk.Swapchain

	device      *VulkanDevice
	surface     vk.Surface
	state       SwapchainState
	vsync       bool
	format      vk.SurfaceFormat
	presentMode vk.PresentMode
	extent      vk.Extent2D
	viewport    vk.Viewport

	images         []vk.Image
	views          []vk.ImageView
	fences         []*VulkanFence
	imageAvailable vk.Semaphore
	current        uint32

	renderpass  *VulkanRenderpass
	depthFormat vk.Format
	targets     *VulkanFramebuffer

	log *log.Logger
}

// chooseSurfaceFormat takes the first reported format. A lone Undefined
// entry means the surface has no preference.
func chooseSurfaceFormat(formats []vk.SurfaceFormat) (vk.SurfaceFormat, bool) {
	if len(formats) == 0 {
		return vk.SurfaceFormat{}, false
	}
	if len(formats) == 1 && formats[0].Format == vk.FormatUndefined {
		return vk.SurfaceFormat{
			Format:     vk.FormatB8g8r8a8Unorm,
			ColorSpace: formats[0].ColorSpace,
		}, true
	}
	return formats[0], true
}

func choosePresentMode(modes []vk.PresentMode, vsync bool) vk.PresentMode {
	has := func(m vk.PresentMode) bool {
		for _, mode := range modes {
			if mode == m {
				return true
			}
		}
		return false
	}
	if vsync {
		if has(vk.PresentModeMailbox) {
			return vk.PresentModeMailbox
		}
		return vk.PresentModeFifo
	}
	if has(vk.PresentModeImmediate) {
		return vk.PresentModeImmediate
	}
	if has(vk.PresentModeFifoRelaxed) {
		return vk.PresentModeFifoRelaxed
	}
	return vk.PresentModeFifo
}

// chooseImageCount clamps preferred to the surface limits. A max of zero
// means there is no upper limit.
func chooseImageCount(preferred, min, max uint32) uint32 {
	count := preferred
	if count < min {
		count = min
	}
	if max > 0 && count > max {
		count = max
	}
	return count
}

// chooseExtent uses the surface extent unless the surface leaves the
// choice to the swapchain, in which case the window size is clamped to the
// allowed range.
func chooseExtent(current, minExtent, maxExtent vk.Extent2D, width, height uint32) vk.Extent2D {
	if current.Width != vk.MaxUint32 {
		return current
	}
	return vk.Extent2D{
		Width:  math.Clamp(width, minExtent.Width, maxExtent.Width),
		Height: math.Clamp(height, minExtent.Height, maxExtent.Height),
	}
}

func NewSwapchain() *VulkanSwapchain {
	return &VulkanSwapchain{
		log: core.Logger("render"),
	}
}

// Init creates the swapchain for surface sized to the window.
func (sc *VulkanSwapchain) Init(device *VulkanDevice, surface vk.Surface, width, height uint32, vsync bool, preferredImageCount uint32) error {
	if sc.state != SwapchainUninitialized {
		return errors.Wrapf(core.ErrInvalidState, "swapchain init while %s", sc.state)
	}
	sc.device = device
	sc.surface = surface
	sc.vsync = vsync

	semaphore, err := newSemaphore(device.LogicalDevice)
	if err != nil {
		return err
	}
	sc.imageAvailable = semaphore

	if err := sc.create(width, height, preferredImageCount); err != nil {
		return err
	}
	sc.state = SwapchainReady
	return nil
}

func (sc *VulkanSwapchain) create(width, height, preferredImageCount uint32) error {
	pd := sc.device.PhysicalDevice

	var caps vk.SurfaceCapabilities
	if err := vkError(vk.GetPhysicalDeviceSurfaceCapabilities(pd, sc.surface, &caps), "vkGetPhysicalDeviceSurfaceCapabilities"); err != nil {
		return err
	}
	caps.Deref()
	caps.CurrentExtent.Deref()
	caps.MinImageExtent.Deref()
	caps.MaxImageExtent.Deref()

	var formatCount uint32
	vk.GetPhysicalDeviceSurfaceFormats(pd, sc.surface, &formatCount, nil)
	formats := make([]vk.SurfaceFormat, formatCount)
	vk.GetPhysicalDeviceSurfaceFormats(pd, sc.surface, &formatCount, formats)
	for i := range formats {
		formats[i].Deref()
	}
	format, ok := chooseSurfaceFormat(formats)
	if !ok {
		return errors.Wrap(core.ErrWindowNotPresentable, "surface reports no formats")
	}

	var modeCount uint32
	vk.GetPhysicalDeviceSurfacePresentModes(pd, sc.surface, &modeCount, nil)
	modes := make([]vk.PresentMode, modeCount)
	vk.GetPhysicalDeviceSurfacePresentModes(pd, sc.surface, &modeCount, modes)

	sc.format = format
	sc.presentMode = choosePresentMode(modes, sc.vsync)
	sc.extent = chooseExtent(caps.CurrentExtent, caps.MinImageExtent, caps.MaxImageExtent, width, height)
	imageCount := chooseImageCount(preferredImageCount, caps.MinImageCount, caps.MaxImageCount)

	preTransform := caps.CurrentTransform
	if vk.SurfaceTransformFlagBits(caps.SupportedTransforms)&vk.SurfaceTransformIdentityBit != 0 {
		preTransform = vk.SurfaceTransformIdentityBit
	}

	old := sc.Handle
	var handle vk.Swapchain
	err := vkError(vk.CreateSwapchain(sc.device.LogicalDevice, &vk.SwapchainCreateInfo{
		SType:            vk.StructureTypeSwapchainCreateInfo,
		Surface:          sc.surface,
		MinImageCount:    imageCount,
		ImageFormat:      format.Format,
		ImageColorSpace:  format.ColorSpace,
		ImageExtent:      sc.extent,
		ImageArrayLayers: 1,
		ImageUsage:       vk.ImageUsageFlags(vk.ImageUsageColorAttachmentBit | vk.ImageUsageTransferDstBit),
		ImageSharingMode: vk.SharingModeExclusive,
		PreTransform:     preTransform,
		CompositeAlpha:   vk.CompositeAlphaOpaqueBit,
		PresentMode:      sc.presentMode,
		Clipped:          vk.True,
		OldSwapchain:     old,
	}, nil, &handle), "vkCreateSwapchain")
	if err != nil {
		return err
	}
	sc.destroyImages()
	if old != vk.NullSwapchain {
		vk.DestroySwapchain(sc.device.LogicalDevice, old, nil)
	}
	sc.Handle = handle

	var count uint32
	if err := vkError(vk.GetSwapchainImages(sc.device.LogicalDevice, handle, &count, nil), "vkGetSwapchainImages"); err != nil {
		return err
	}
	sc.images = make([]vk.Image, count)
	if err := vkError(vk.GetSwapchainImages(sc.device.LogicalDevice, handle, &count, sc.images), "vkGetSwapchainImages"); err != nil {
		return err
	}

	for _, img := range sc.images {
		view, err := newImageView(sc.device.LogicalDevice, img, format.Format, vk.ImageAspectFlags(vk.ImageAspectColorBit))
		if err != nil {
			return err
		}
		sc.views = append(sc.views, view)
		fence, err := NewFence(sc.device.LogicalDevice, true)
		if err != nil {
			return err
		}
		sc.fences = append(sc.fences, fence)
	}

	sc.viewport = vk.Viewport{
		X:        0,
		Y:        0,
		Width:    float32(sc.extent.Width),
		Height:   float32(sc.extent.Height),
		MinDepth: 0,
		MaxDepth: 1,
	}

	if sc.renderpass != nil {
		if err := sc.createTargets(); err != nil {
			return err
		}
	}

	sc.log.Info("swapchain created",
		"images", count,
		"width", sc.extent.Width,
		"height", sc.extent.Height,
		"format", sc.format.Format,
		"presentMode", sc.presentMode)
	return nil
}

// AttachRenderPass creates the frame targets of every image for renderpass.
// They are recreated on each Resize.
func (sc *VulkanSwapchain) AttachRenderPass(renderpass *VulkanRenderpass, depthFormat vk.Format) error {
	if sc.state != SwapchainReady {
		return errors.Wrapf(core.ErrInvalidState, "attach render pass while %s", sc.state)
	}
	sc.renderpass = renderpass
	sc.depthFormat = depthFormat
	return sc.createTargets()
}

func (sc *VulkanSwapchain) createTargets() error {
	if sc.targets != nil {
		sc.targets.Destroy(sc.device.LogicalDevice)
		sc.targets = nil
	}
	targets, err := NewFramebuffer(sc.device, sc.renderpass, sc.views, sc.depthFormat, sc.extent)
	if err != nil {
		return err
	}
	sc.targets = targets
	return nil
}

// AcquireNextImage waits for the next presentable image and for the last
// submission that rendered into it. The returned index is the frame slot.
func (sc *VulkanSwapchain) AcquireNextImage() (uint32, error) {
	if sc.state != SwapchainReady {
		return 0, errors.Wrapf(core.ErrInvalidState, "acquire while %s", sc.state)
	}
	var index uint32
	res := vk.AcquireNextImage(sc.device.LogicalDevice, sc.Handle, vk.MaxUint64, sc.imageAvailable, vk.NullFence, &index)
	switch res {
	case vk.Success, vk.Suboptimal:
	case vk.ErrorOutOfDate:
		return 0, core.ErrSwapchainOutOfDate
	default:
		return 0, vkError(res, "vkAcquireNextImage")
	}

	fence := sc.fences[index]
	if err := fence.Wait(sc.device.LogicalDevice); err != nil {
		return 0, err
	}
	if err := fence.Reset(sc.device.LogicalDevice); err != nil {
		return 0, err
	}
	sc.current = index
	return index, nil
}

// CurrentSubmitFence is the fence the submission for the acquired image
// must signal.
func (sc *VulkanSwapchain) CurrentSubmitFence() vk.Fence {
	return sc.fences[sc.current].Handle
}

func (sc *VulkanSwapchain) ImageAvailableSemaphore() vk.Semaphore {
	return sc.imageAvailable
}

// Present queues the current image once every semaphore in wait is
// signalled. A surface that changed is reported as ErrSwapchainOutOfDate.
func (sc *VulkanSwapchain) Present(queue vk.Queue, wait []vk.Semaphore) error {
	if sc.state != SwapchainReady {
		return errors.Wrapf(core.ErrInvalidState, "present while %s", sc.state)
	}
	res := vk.QueuePresent(queue, &vk.PresentInfo{
		SType:              vk.StructureTypePresentInfo,
		WaitSemaphoreCount: uint32(len(wait)),
		PWaitSemaphores:    wait,
		SwapchainCount:     1,
		PSwapchains:        []vk.Swapchain{sc.Handle},
		PImageIndices:      []uint32{sc.current},
	})
	switch res {
	case vk.Success:
		return nil
	case vk.ErrorOutOfDate, vk.Suboptimal:
		return core.ErrSwapchainOutOfDate
	}
	return vkError(res, "vkQueuePresent")
}

// Resize recreates the swapchain and its frame targets. The image count is
// kept. A zero dimension is ignored. The device must be idle.
func (sc *VulkanSwapchain) Resize(width, height uint32) error {
	if width == 0 || height == 0 {
		return nil
	}
	if sc.state != SwapchainReady {
		return errors.Wrapf(core.ErrInvalidState, "resize while %s", sc.state)
	}
	sc.state = SwapchainResizing
	previous := len(sc.images)
	err := sc.create(width, height, uint32(previous))
	sc.state = SwapchainReady
	if err != nil {
		return err
	}
	return checkImageCount(previous, len(sc.images))
}

// checkImageCount rejects a rebuilt swapchain whose image count differs from
// the one every per slot resource was sized for.
func checkImageCount(previous, current int) error {
	if previous != current {
		return errors.Wrapf(core.ErrInvalidState, "swapchain rebuilt with %d images, frame slots were created for %d", current, previous)
	}
	return nil
}

func (sc *VulkanSwapchain) State() SwapchainState {
	return sc.state
}

func (sc *VulkanSwapchain) Viewport() vk.Viewport {
	return sc.viewport
}

func (sc *VulkanSwapchain) Scissor() vk.Rect2D {
	return vk.Rect2D{
		Offset: vk.Offset2D{X: 0, Y: 0},
		Extent: sc.extent,
	}
}

func (sc *VulkanSwapchain) ImageCount() int {
	return len(sc.images)
}

func (sc *VulkanSwapchain) Extent() vk.Extent2D {
	return sc.extent
}

func (sc *VulkanSwapchain) Format() vk.Format {
	return sc.format.Format
}

func (sc *VulkanSwapchain) Views() []vk.ImageView {
	return sc.views
}

// Framebuffer returns the frame target of image index.
func (sc *VulkanSwapchain) Framebuffer(index uint32) vk.Framebuffer {
	return sc.targets.Framebuffers[index]
}

func (sc *VulkanSwapchain) destroyImages() {
	dev := sc.device.LogicalDevice
	if sc.targets != nil {
		sc.targets.Destroy(dev)
		sc.targets = nil
	}
	for _, v := range sc.views {
		vk.DestroyImageView(dev, v, nil)
	}
	sc.views = nil
	for _, f := range sc.fences {
		f.Destroy(dev)
	}
	sc.fences = nil
	sc.images = nil
}

// Close destroys the swapchain. The device must be idle.
func (sc *VulkanSwapchain) Close() {
	if sc.state == SwapchainClosed || sc.device == nil {
		sc.state = SwapchainClosed
		return
	}
	sc.destroyImages()
	dev := sc.device.LogicalDevice
	if sc.Handle != vk.NullSwapchain {
		vk.DestroySwapchain(dev, sc.Handle, nil)
		sc.Handle = vk.NullSwapchain
	}
	if sc.imageAvailable != vk.NullSemaphore {
		vk.DestroySemaphore(dev, sc.imageAvailable, nil)
		sc.imageAvailable = vk.NullSemaphore
	}
	sc.state = SwapchainClosed
}
