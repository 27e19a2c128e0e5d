package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkstage/engine/core"
)

// VulkanContext holds every handle needed to talk to one device. It replaces
// module level state: components receive the context they work on.
type VulkanContext struct {
	Instance  vk.Instance
	Allocator *vk.AllocationCallbacks

	Device *VulkanDevice

	validation    bool
	debugCallback vk.DebugReportCallback
}

// MemoryType is one entry of the device memory type table.
type MemoryType struct {
	PropertyFlags vk.MemoryPropertyFlags
	HeapIndex     uint32
}

// SelectMemoryType returns the first memory type allowed by typeFilter that
// has every requested property.
func SelectMemoryType(types []MemoryType, typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) (uint32, bool) {
	for i, t := range types {
		// Check each memory type to see if its bit is set to 1.
		if i < 32 && typeFilter&(1<<uint(i)) != 0 && t.PropertyFlags&propertyFlags == propertyFlags {
			return uint32(i), true
		}
	}
	return 0, false
}

func (vc *VulkanContext) FindMemoryIndex(typeFilter uint32, propertyFlags vk.MemoryPropertyFlags) int32 {
	if i, ok := SelectMemoryType(vc.Device.MemoryTypes, typeFilter, propertyFlags); ok {
		return int32(i)
	}
	core.LogWarn("Unable to find suitable memory type!")
	return -1
}

// Limits returns the device limits layout code depends on.
func (vc *VulkanContext) Limits() DeviceLimits {
	return vc.Device.Limits
}
