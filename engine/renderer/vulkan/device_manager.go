package vulkan

import (
	"github.com/cockroachdb/errors"
	vk "github.com/goki/vulkan"

	"github.com/spaghettifunk/vkframe/engine/core"
)

// DeviceManager owns the capability records of every physical device the
// instance exposes.
type DeviceManager struct {
	devices []*VulkanDevice
}

func (m *DeviceManager) Init(instance vk.Instance) error {
	if len(m.devices) > 0 {
		return errors.Wrap(core.ErrAlreadyInitialized, "device manager")
	}
	var count uint32
	if err := vkError(vk.EnumeratePhysicalDevices(instance, &count, nil), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	if count == 0 {
		return errors.Wrap(core.ErrNoCompatibleDevice, "no physical devices")
	}
	pds := make([]vk.PhysicalDevice, count)
	if err := vkError(vk.EnumeratePhysicalDevices(instance, &count, pds), "vkEnumeratePhysicalDevices"); err != nil {
		return err
	}
	for _, pd := range pds {
		d, err := QueryDevice(pd)
		if err != nil {
			core.LogWarn("skipping physical device: %v", err)
			continue
		}
		d.logSummary()
		m.devices = append(m.devices, d)
	}
	if len(m.devices) == 0 {
		return errors.Wrap(core.ErrNoCompatibleDevice, "no physical device has a graphics queue")
	}
	return nil
}

func (m *DeviceManager) Devices() []*VulkanDevice {
	return m.devices
}

// CompatibleDevice returns the first device supporting every extension.
func (m *DeviceManager) CompatibleDevice(extensions []string) (*VulkanDevice, error) {
	for _, d := range m.devices {
		if d.supportsAll(extensions) {
			return d, nil
		}
	}
	return nil, errors.Wrapf(core.ErrNoCompatibleDevice, "required extensions %v", extensions)
}

func (m *DeviceManager) Close() {
	for _, d := range m.devices {
		d.Close()
	}
	m.devices = nil
}
