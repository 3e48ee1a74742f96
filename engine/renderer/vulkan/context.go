package vulkan

import (
	"runtime"
	"unsafe"

	"github.com/charmbracelet/log"
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkframe/engine/assets"
	"github.com/spaghettifunk/vkframe/engine/core"
	"github.com/spaghettifunk/vkframe/engine/platform"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

var requiredDeviceExtensions = []string{"VK_KHR_swapchain"}

// VulkanContext is everything a frame needs that lives as long as the
// window: instance, surface, device, swapchain and the pipeline state
// shared by all shaders.
type VulkanContext struct {
	Instance vk.Instance
	Surface  vk.Surface

	Devices    *DeviceManager
	Device     *VulkanDevice
	Swapchain  *VulkanSwapchain
	RenderPass *VulkanRenderpass
	Layout     *VulkanPipelineLayout
	Queues     *QueueLocks
	Shaders    *assets.ShaderLibrary

	debugCallback vk.DebugReportCallback
	hasDebug      bool
	log           *log.Logger
}

func newContext(shaders *assets.ShaderLibrary) *VulkanContext {
	return &VulkanContext{
		Devices: &DeviceManager{},
		Queues:  NewQueueLocks(),
		Shaders: shaders,
		log:     core.Logger("render"),
	}
}

// init brings up the context for window. On error the caller must Close
// the context to release what was already created.
func (vc *VulkanContext) init(window platform.Window, cfg *core.EngineConfig) error {
	presentable, ok := platform.As[platform.VulkanPresentable](window)
	if !ok {
		return errors.Wrapf(core.ErrWindowNotPresentable, "window %s", window.ID())
	}

	if loader, ok := platform.As[platform.VulkanLoader](window); ok {
		vk.SetGetInstanceProcAddr(loader.VulkanProcAddr())
	} else if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		return errors.Wrap(err, "vulkan loader")
	}
	if err := vk.Init(); err != nil {
		return errors.Wrap(err, "vulkan loader")
	}

	if err := vc.createInstance(presentable.RequiredInstanceExtensions(), cfg); err != nil {
		return err
	}

	surface, err := presentable.CreateSurface(vc.Instance)
	if err != nil {
		return err
	}
	vc.Surface = surface

	if err := vc.Devices.Init(vc.Instance); err != nil {
		return err
	}
	device, err := vc.Devices.CompatibleDevice(requiredDeviceExtensions)
	if err != nil {
		return err
	}
	if err := device.PrepareDevice(requiredDeviceExtensions, vc.Surface, cfg.Validation); err != nil {
		return err
	}
	vc.Device = device

	width, height := window.Size()
	vc.Swapchain = NewSwapchain()
	if err := vc.Swapchain.Init(device, vc.Surface, width, height, cfg.VSync, cfg.PreferredImageCount); err != nil {
		return err
	}

	depthFormat, ok := device.SupportedDepthFormat()
	if !ok {
		return errors.Newf("%s supports no depth attachment format", device.Name())
	}
	if vc.RenderPass, err = NewRenderpass(device.LogicalDevice, vc.Swapchain.Format(), depthFormat); err != nil {
		return err
	}
	if err := vc.Swapchain.AttachRenderPass(vc.RenderPass, depthFormat); err != nil {
		return err
	}
	if vc.Layout, err = NewPipelineLayout(device.LogicalDevice); err != nil {
		return err
	}
	return nil
}

func (vc *VulkanContext) createInstance(extensions []string, cfg *core.EngineConfig) error {
	exts := append([]string{"VK_KHR_surface"}, extensions...)
	var flags vk.InstanceCreateFlags
	if runtime.GOOS == "darwin" {
		exts = append(exts, "VK_KHR_portability_enumeration", "VK_KHR_get_physical_device_properties2")
		flags |= 1 // VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	}

	var layers []string
	if cfg.Validation {
		if hasInstanceLayer(validationLayerName) {
			layers = append(layers, validationLayerName)
			exts = append(exts, vk.ExtDebugReportExtensionName)
		} else {
			vc.log.Warn("validation requested but layer is missing", "layer", validationLayerName)
		}
	}
	vc.log.Debug("instance configuration", "extensions", exts, "layers", layers)

	var instance vk.Instance
	err := vkError(vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		Flags: flags,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
			ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
			PApplicationName:   VulkanSafeString(cfg.Window.Title),
			PEngineName:        VulkanSafeString("vkframe"),
		},
		EnabledExtensionCount:   uint32(len(exts)),
		PpEnabledExtensionNames: VulkanSafeStrings(exts),
		EnabledLayerCount:       uint32(len(layers)),
		PpEnabledLayerNames:     VulkanSafeStrings(layers),
	}, nil, &instance), "vkCreateInstance")
	if err != nil {
		return err
	}
	if err := vk.InitInstance(instance); err != nil {
		vk.DestroyInstance(instance, nil)
		return errors.Wrap(err, "vulkan instance functions")
	}
	vc.Instance = instance

	if len(layers) > 0 {
		var dbg vk.DebugReportCallback
		err := vkError(vk.CreateDebugReportCallback(instance, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit | vk.DebugReportPerformanceWarningBit),
			PfnCallback: debugReport,
		}, nil, &dbg), "vkCreateDebugReportCallback")
		if err != nil {
			return err
		}
		vc.debugCallback = dbg
		vc.hasDebug = true
	}
	return nil
}

func hasInstanceLayer(name string) bool {
	var count uint32
	if vk.EnumerateInstanceLayerProperties(&count, nil) != vk.Success {
		return false
	}
	layers := make([]vk.LayerProperties, count)
	if vk.EnumerateInstanceLayerProperties(&count, layers) != vk.Success {
		return false
	}
	for i := range layers {
		layers[i].Deref()
		if cString(layers[i].LayerName[:]) == name {
			return true
		}
	}
	return false
}

func debugReport(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	l := core.Logger("render")
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		l.Error(pMessage, "layer", pLayerPrefix, "code", messageCode)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit|vk.DebugReportPerformanceWarningBit) != 0:
		l.Warn(pMessage, "layer", pLayerPrefix, "code", messageCode)
	default:
		l.Debug(pMessage, "layer", pLayerPrefix, "code", messageCode)
	}
	return vk.Bool32(vk.False)
}

// Close destroys the context in reverse creation order. It is safe on a
// partially initialized context.
func (vc *VulkanContext) Close() {
	if vc.Device != nil && vc.Device.LogicalDevice != nil {
		if err := vc.Device.WaitIdle(); err != nil {
			vc.log.Error("device wait idle failed", "err", err)
		}
		dev := vc.Device.LogicalDevice
		if vc.Layout != nil {
			vc.Layout.Destroy(dev)
			vc.Layout = nil
		}
		if vc.Swapchain != nil {
			vc.Swapchain.Close()
		}
		if vc.RenderPass != nil {
			vc.RenderPass.Destroy(dev)
			vc.RenderPass = nil
		}
	}
	vc.Device = nil
	vc.Devices.Close()
	if vc.Surface != vk.NullSurface {
		vk.DestroySurface(vc.Instance, vc.Surface, nil)
		vc.Surface = vk.NullSurface
	}
	if vc.hasDebug {
		vk.DestroyDebugReportCallback(vc.Instance, vc.debugCallback, nil)
		vc.hasDebug = false
	}
	if vc.Instance != nil {
		vk.DestroyInstance(vc.Instance, nil)
		vc.Instance = nil
	}
}
