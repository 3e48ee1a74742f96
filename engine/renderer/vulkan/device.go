package vulkan

import (
	"fmt"
	"math/bits"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkframe/engine/core"
)

const debugMarkerExtensionName = "VK_EXT_debug_marker"

// QueueIndices are the queue family indices picked for each kind of work.
// They may coincide.
type QueueIndices struct {
	Graphics uint32
	Compute  uint32
	Transfer uint32
}

// VulkanDevice is the capability record of one physical device and, once
// PrepareDevice succeeded, the logical device built on top of it.
type VulkanDevice struct {
	PhysicalDevice   vk.PhysicalDevice
	QueueFamilies    []vk.QueueFamilyProperties
	Properties       vk.PhysicalDeviceProperties
	Features         vk.PhysicalDeviceFeatures
	MemoryProperties vk.PhysicalDeviceMemoryProperties
	Extensions       map[string]struct{}
	Queues           QueueIndices

	LogicalDevice       vk.Device
	PipelineCache       vk.PipelineCache
	GraphicsQueue       vk.Queue
	TransferQueue       vk.Queue
	GraphicsCommandPool vk.CommandPool
	UseDebugMarkers     bool

	name string
	log  *log.Logger
}

// QueryDevice reads every capability of a physical device and picks the
// initial queue families by best fit.
func QueryDevice(pd vk.PhysicalDevice) (*VulkanDevice, error) {
	d := &VulkanDevice{
		PhysicalDevice: pd,
		Extensions:     make(map[string]struct{}),
		log:            core.Logger("render"),
	}

	vk.GetPhysicalDeviceProperties(pd, &d.Properties)
	d.Properties.Deref()
	d.Properties.Limits.Deref()
	d.name = cString(d.Properties.DeviceName[:])

	vk.GetPhysicalDeviceFeatures(pd, &d.Features)
	d.Features.Deref()

	vk.GetPhysicalDeviceMemoryProperties(pd, &d.MemoryProperties)
	d.MemoryProperties.Deref()
	for i := uint32(0); i < d.MemoryProperties.MemoryTypeCount; i++ {
		d.MemoryProperties.MemoryTypes[i].Deref()
	}
	for i := uint32(0); i < d.MemoryProperties.MemoryHeapCount; i++ {
		d.MemoryProperties.MemoryHeaps[i].Deref()
	}

	var queueCount uint32
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueCount, nil)
	d.QueueFamilies = make([]vk.QueueFamilyProperties, queueCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(pd, &queueCount, d.QueueFamilies)
	for i := range d.QueueFamilies {
		d.QueueFamilies[i].Deref()
	}

	var extCount uint32
	if err := vkError(vk.EnumerateDeviceExtensionProperties(pd, "", &extCount, nil), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	exts := make([]vk.ExtensionProperties, extCount)
	if err := vkError(vk.EnumerateDeviceExtensionProperties(pd, "", &extCount, exts), "vkEnumerateDeviceExtensionProperties"); err != nil {
		return nil, err
	}
	for i := range exts {
		exts[i].Deref()
		d.Extensions[cString(exts[i].ExtensionName[:])] = struct{}{}
	}

	var ok bool
	if d.Queues.Graphics, ok = d.SelectQueueFamily(vk.QueueFlags(vk.QueueGraphicsBit), vk.NullSurface); !ok {
		return nil, errors.Wrapf(core.ErrNoCompatibleQueue, "%s has no graphics queue", d.name)
	}
	if d.Queues.Compute, ok = d.SelectQueueFamily(vk.QueueFlags(vk.QueueComputeBit), vk.NullSurface); !ok {
		d.Queues.Compute = d.Queues.Graphics
	}
	if d.Queues.Transfer, ok = d.SelectQueueFamily(vk.QueueFlags(vk.QueueTransferBit), vk.NullSurface); !ok {
		d.Queues.Transfer = d.Queues.Graphics
	}
	return d, nil
}

// selectQueueFamily returns the family that has every desired flag and the
// fewest extra ones. An exact match wins immediately. When canPresent is not
// nil, families it rejects are skipped.
func selectQueueFamily(families []vk.QueueFlags, desired vk.QueueFlags, canPresent func(index uint32) bool) (uint32, bool) {
	best := -1
	bestExtra := bits.UintSize + 1
	for i, flags := range families {
		if flags&desired != desired {
			continue
		}
		if canPresent != nil && !canPresent(uint32(i)) {
			continue
		}
		extra := bits.OnesCount32(uint32(flags &^ desired))
		if extra == 0 {
			return uint32(i), true
		}
		if extra < bestExtra {
			best, bestExtra = i, extra
		}
	}
	if best < 0 {
		return 0, false
	}
	return uint32(best), true
}

// SelectQueueFamily picks the best queue family for desired. A non-null
// surface restricts the choice to families that can present to it.
func (d *VulkanDevice) SelectQueueFamily(desired vk.QueueFlags, surface vk.Surface) (uint32, bool) {
	flags := make([]vk.QueueFlags, len(d.QueueFamilies))
	for i := range d.QueueFamilies {
		flags[i] = d.QueueFamilies[i].QueueFlags
	}
	var canPresent func(uint32) bool
	if surface != vk.NullSurface {
		canPresent = func(index uint32) bool {
			var supported vk.Bool32
			vk.GetPhysicalDeviceSurfaceSupport(d.PhysicalDevice, index, surface, &supported)
			return supported == vk.True
		}
	}
	return selectQueueFamily(flags, desired, canPresent)
}

func (d *VulkanDevice) IsExtensionAvailable(name string) bool {
	_, ok := d.Extensions[name]
	return ok
}

func (d *VulkanDevice) supportsAll(extensions []string) bool {
	for _, e := range extensions {
		if !d.IsExtensionAvailable(e) {
			return false
		}
	}
	return true
}

// PrepareDevice creates the logical device with one queue per distinct
// family, the pipeline cache, the graphics queue and its command pool.
func (d *VulkanDevice) PrepareDevice(extensions []string, surface vk.Surface, validation bool) error {
	if d.LogicalDevice != nil {
		return errors.Wrap(core.ErrAlreadyInitialized, "logical device")
	}

	graphics, ok := d.SelectQueueFamily(vk.QueueFlags(vk.QueueGraphicsBit), surface)
	if !ok {
		return errors.Wrapf(core.ErrNoCompatibleQueue, "%s cannot present graphics to the surface", d.name)
	}
	d.Queues.Graphics = graphics

	families := []uint32{d.Queues.Graphics}
	for _, f := range []uint32{d.Queues.Compute, d.Queues.Transfer} {
		dup := false
		for _, have := range families {
			if have == f {
				dup = true
				break
			}
		}
		if !dup {
			families = append(families, f)
		}
	}
	queueInfos := make([]vk.DeviceQueueCreateInfo, len(families))
	for i, f := range families {
		queueInfos[i] = vk.DeviceQueueCreateInfo{
			SType:            vk.StructureTypeDeviceQueueCreateInfo,
			QueueFamilyIndex: f,
			QueueCount:       1,
			PQueuePriorities: []float32{1.0},
		}
	}

	exts := append([]string(nil), extensions...)
	if validation && d.IsExtensionAvailable(debugMarkerExtensionName) {
		exts = append(exts, debugMarkerExtensionName)
		d.UseDebugMarkers = true
	}
	exts = VulkanSafeStrings(exts)

	var device vk.Device
	err := vkError(vk.CreateDevice(d.PhysicalDevice, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: exts,
		PEnabledFeatures:        []vk.PhysicalDeviceFeatures{{}},
	}, nil, &device), "vkCreateDevice")
	if err != nil {
		return err
	}
	d.LogicalDevice = device

	var cache vk.PipelineCache
	if err := vkError(vk.CreatePipelineCache(device, &vk.PipelineCacheCreateInfo{
		SType: vk.StructureTypePipelineCacheCreateInfo,
	}, nil, &cache), "vkCreatePipelineCache"); err != nil {
		return err
	}
	d.PipelineCache = cache

	var queue vk.Queue
	vk.GetDeviceQueue(device, d.Queues.Graphics, 0, &queue)
	d.GraphicsQueue = queue
	var transfer vk.Queue
	vk.GetDeviceQueue(device, d.Queues.Transfer, 0, &transfer)
	d.TransferQueue = transfer

	pool, err := d.CreateCommandPool(d.Queues.Graphics, vk.CommandPoolCreateFlags(vk.CommandPoolCreateResetCommandBufferBit))
	if err != nil {
		return err
	}
	d.GraphicsCommandPool = pool

	d.log.Info("logical device ready",
		"device", d.name,
		"graphics", d.Queues.Graphics,
		"compute", d.Queues.Compute,
		"transfer", d.Queues.Transfer,
		"debugMarkers", d.UseDebugMarkers)
	return nil
}

func (d *VulkanDevice) CreateCommandPool(family uint32, flags vk.CommandPoolCreateFlags) (vk.CommandPool, error) {
	var pool vk.CommandPool
	err := vkError(vk.CreateCommandPool(d.LogicalDevice, &vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		Flags:            flags,
		QueueFamilyIndex: family,
	}, nil, &pool), "vkCreateCommandPool")
	return pool, err
}

// findMemoryType returns the first type allowed by typeBits whose flags
// contain every requested property.
func findMemoryType(types []vk.MemoryPropertyFlags, typeBits uint32, props vk.MemoryPropertyFlags) (uint32, bool) {
	for i, flags := range types {
		if typeBits&(1<<uint32(i)) == 0 {
			continue
		}
		if flags&props == props {
			return uint32(i), true
		}
	}
	return 0, false
}

func (d *VulkanDevice) MemoryType(typeBits uint32, props vk.MemoryPropertyFlags) (uint32, bool) {
	types := make([]vk.MemoryPropertyFlags, d.MemoryProperties.MemoryTypeCount)
	for i := range types {
		types[i] = d.MemoryProperties.MemoryTypes[i].PropertyFlags
	}
	return findMemoryType(types, typeBits, props)
}

var depthFormatCandidates = []vk.Format{
	vk.FormatD32SfloatS8Uint,
	vk.FormatD32Sfloat,
	vk.FormatD24UnormS8Uint,
	vk.FormatD16UnormS8Uint,
	vk.FormatD16Unorm,
}

// SupportedDepthFormat returns the most precise depth format usable as an
// optimally tiled depth attachment.
func (d *VulkanDevice) SupportedDepthFormat() (vk.Format, bool) {
	want := vk.FormatFeatureFlags(vk.FormatFeatureDepthStencilAttachmentBit)
	for _, f := range depthFormatCandidates {
		var props vk.FormatProperties
		vk.GetPhysicalDeviceFormatProperties(d.PhysicalDevice, f, &props)
		props.Deref()
		if props.OptimalTilingFeatures&want == want {
			return f, true
		}
	}
	return vk.FormatUndefined, false
}

func (d *VulkanDevice) MinUniformBufferOffsetAlignment() uint64 {
	return uint64(d.Properties.Limits.MinUniformBufferOffsetAlignment)
}

func (d *VulkanDevice) WaitIdle() error {
	return vkError(vk.DeviceWaitIdle(d.LogicalDevice), "vkDeviceWaitIdle")
}

func (d *VulkanDevice) CreateShaderModule(code []uint32) (vk.ShaderModule, error) {
	var module vk.ShaderModule
	err := vkError(vk.CreateShaderModule(d.LogicalDevice, &vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(code) * 4),
		PCode:    code,
	}, nil, &module), "vkCreateShaderModule")
	return module, err
}

func (d *VulkanDevice) Name() string {
	return d.name
}

func (d *VulkanDevice) logSummary() {
	kind := "unknown"
	switch d.Properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		kind = "integrated"
	case vk.PhysicalDeviceTypeDiscreteGpu:
		kind = "discrete"
	case vk.PhysicalDeviceTypeVirtualGpu:
		kind = "virtual"
	case vk.PhysicalDeviceTypeCpu:
		kind = "cpu"
	}
	api := vk.Version(d.Properties.ApiVersion)
	d.log.Info("physical device",
		"name", d.name,
		"type", kind,
		"api", fmt.Sprintf("%d.%d.%d", api.Major(), api.Minor(), api.Patch()),
		"queueFamilies", len(d.QueueFamilies),
		"extensions", len(d.Extensions))
	for i := uint32(0); i < d.MemoryProperties.MemoryHeapCount; i++ {
		heap := d.MemoryProperties.MemoryHeaps[i]
		local := vk.MemoryHeapFlags(vk.MemoryHeapDeviceLocalBit)&heap.Flags != 0
		d.log.Debug("memory heap", "index", i, "gib", float64(heap.Size)/(1<<30), "deviceLocal", local)
	}
}

// Close destroys the logical device and everything PrepareDevice created.
// The capability record stays usable.
func (d *VulkanDevice) Close() {
	if d.LogicalDevice == nil {
		return
	}
	if d.GraphicsCommandPool != nil {
		vk.DestroyCommandPool(d.LogicalDevice, d.GraphicsCommandPool, nil)
		d.GraphicsCommandPool = nil
	}
	if d.PipelineCache != nil {
		vk.DestroyPipelineCache(d.LogicalDevice, d.PipelineCache, nil)
		d.PipelineCache = nil
	}
	vk.DestroyDevice(d.LogicalDevice, nil)
	d.LogicalDevice = nil
	d.GraphicsQueue = nil
	d.TransferQueue = nil
}
