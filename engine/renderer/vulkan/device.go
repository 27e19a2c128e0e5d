package vulkan

import (
	"fmt"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkstage/engine/core"
)

type VulkanDevice struct {
	PhysicalDevice     vk.PhysicalDevice
	LogicalDevice      vk.Device
	GraphicsQueueIndex int32
	GraphicsQueue      vk.Queue

	Properties  vk.PhysicalDeviceProperties
	Memory      vk.PhysicalDeviceMemoryProperties
	MemoryTypes []MemoryType
	Limits      DeviceLimits
}

// physicalDeviceCandidate is what device selection knows about one GPU.
type physicalDeviceCandidate struct {
	Index         int
	DeviceType    vk.PhysicalDeviceType
	GraphicsQueue int32
}

// pickPhysicalDevice returns the candidate to use: the first discrete GPU
// with a graphics queue, or else the first device with a graphics queue.
func pickPhysicalDevice(candidates []physicalDeviceCandidate) (physicalDeviceCandidate, bool) {
	var fallback *physicalDeviceCandidate
	for i := range candidates {
		c := candidates[i]
		if c.GraphicsQueue < 0 {
			continue
		}
		if c.DeviceType == vk.PhysicalDeviceTypeDiscreteGpu {
			return c, true
		}
		if fallback == nil {
			fallback = &candidates[i]
		}
	}
	if fallback == nil {
		return physicalDeviceCandidate{}, false
	}
	return *fallback, true
}

func DeviceCreate(context *VulkanContext) error {
	if err := SelectPhysicalDevice(context); err != nil {
		return err
	}

	core.LogInfo("Creating logical device...")

	queueCreateInfos := []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: uint32(context.Device.GraphicsQueueIndex),
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}

	extensionNames := []string{}
	if deviceExtensionAvailable(context.Device.PhysicalDevice, "VK_KHR_portability_subset") {
		core.LogInfo("Adding required extension 'VK_KHR_portability_subset'.")
		extensionNames = append(extensionNames, "VK_KHR_portability_subset")
	}

	deviceCreateInfo := vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueCreateInfos)),
		PQueueCreateInfos:       queueCreateInfos,
		EnabledExtensionCount:   uint32(len(extensionNames)),
		PpEnabledExtensionNames: VulkanSafeStrings(extensionNames),
	}

	var device vk.Device
	if res := vk.CreateDevice(context.Device.PhysicalDevice, &deviceCreateInfo, context.Allocator, &device); res != vk.Success {
		err := fmt.Errorf("failed to create logical device: %w", ResultError(res, "create device"))
		core.LogError("%s", err)
		return err
	}
	context.Device.LogicalDevice = device
	core.LogInfo("Logical device created.")

	var queue vk.Queue
	vk.GetDeviceQueue(context.Device.LogicalDevice, uint32(context.Device.GraphicsQueueIndex), 0, &queue)
	context.Device.GraphicsQueue = queue
	core.LogInfo("Queues obtained.")

	return nil
}

func DeviceDestroy(context *VulkanContext) {
	// Unset queues
	context.Device.GraphicsQueue = nil

	// Destroy logical device
	if context.Device.LogicalDevice != nil {
		core.LogInfo("Destroying logical device...")
		vk.DeviceWaitIdle(context.Device.LogicalDevice)
		vk.DestroyDevice(context.Device.LogicalDevice, context.Allocator)
		context.Device.LogicalDevice = nil
	}

	// Physical devices are not destroyed.
	context.Device.PhysicalDevice = nil
	context.Device.GraphicsQueueIndex = -1
}

func SelectPhysicalDevice(context *VulkanContext) error {
	var physicalDeviceCount uint32 = 0
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, nil); res != vk.Success {
		return ResultError(res, "enumerate physical devices")
	}
	if physicalDeviceCount == 0 {
		err := fmt.Errorf("no devices which support Vulkan were found")
		core.LogError("%s", err)
		return err
	}

	physicalDevices := make([]vk.PhysicalDevice, physicalDeviceCount)
	if res := vk.EnumeratePhysicalDevices(context.Instance, &physicalDeviceCount, physicalDevices); res != vk.Success {
		return ResultError(res, "enumerate physical devices")
	}

	candidates := make([]physicalDeviceCandidate, len(physicalDevices))
	for i, pd := range physicalDevices {
		properties := vk.PhysicalDeviceProperties{}
		vk.GetPhysicalDeviceProperties(pd, &properties)
		properties.Deref()
		candidates[i] = physicalDeviceCandidate{
			Index:         i,
			DeviceType:    properties.DeviceType,
			GraphicsQueue: graphicsQueueFamily(pd),
		}
	}

	picked, ok := pickPhysicalDevice(candidates)
	if !ok {
		err := fmt.Errorf("no physical devices were found which meet the requirements")
		core.LogError("%s", err)
		return err
	}

	pd := physicalDevices[picked.Index]
	properties := vk.PhysicalDeviceProperties{}
	vk.GetPhysicalDeviceProperties(pd, &properties)
	properties.Deref()
	properties.Limits.Deref()

	memory := vk.PhysicalDeviceMemoryProperties{}
	vk.GetPhysicalDeviceMemoryProperties(pd, &memory)
	memory.Deref()

	memoryTypes := make([]MemoryType, memory.MemoryTypeCount)
	for i := range memoryTypes {
		memory.MemoryTypes[i].Deref()
		memoryTypes[i] = MemoryType{
			PropertyFlags: memory.MemoryTypes[i].PropertyFlags,
			HeapIndex:     memory.MemoryTypes[i].HeapIndex,
		}
	}

	end := FindFirstZeroInByteArray(properties.DeviceName[:])
	core.LogInfo("Selected device: '%s'.", vk.ToString(properties.DeviceName[:end]))
	switch properties.DeviceType {
	case vk.PhysicalDeviceTypeIntegratedGpu:
		core.LogInfo("GPU type is Integrated.")
	case vk.PhysicalDeviceTypeDiscreteGpu:
		core.LogInfo("GPU type is Discrete.")
	case vk.PhysicalDeviceTypeVirtualGpu:
		core.LogInfo("GPU type is Virtual.")
	case vk.PhysicalDeviceTypeCpu:
		core.LogInfo("GPU type is CPU.")
	default:
		core.LogInfo("GPU type is Unknown.")
	}
	core.LogInfo(
		"Vulkan API version: %d.%d.%d",
		vk.Version.Major(vk.Version(properties.ApiVersion)),
		vk.Version.Minor(vk.Version(properties.ApiVersion)),
		vk.Version.Patch(vk.Version(properties.ApiVersion)),
	)

	context.Device.PhysicalDevice = pd
	context.Device.GraphicsQueueIndex = picked.GraphicsQueue
	context.Device.Properties = properties
	context.Device.Memory = memory
	context.Device.MemoryTypes = memoryTypes
	context.Device.Limits = DeviceLimits{
		MinUniformBufferOffsetAlignment: uint64(properties.Limits.MinUniformBufferOffsetAlignment),
	}

	core.LogInfo("Physical device selected.")
	return nil
}

// graphicsQueueFamily returns the first queue family with graphics support,
// or -1.
func graphicsQueueFamily(device vk.PhysicalDevice) int32 {
	var queueFamilyCount uint32 = 0
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, nil)
	queueFamilies := make([]vk.QueueFamilyProperties, queueFamilyCount)
	vk.GetPhysicalDeviceQueueFamilyProperties(device, &queueFamilyCount, queueFamilies)

	for i := range queueFamilies {
		queueFamilies[i].Deref()
		if queueFamilies[i].QueueFlags&vk.QueueFlags(vk.QueueGraphicsBit) != 0 {
			return int32(i)
		}
	}
	return -1
}

func deviceExtensionAvailable(device vk.PhysicalDevice, name string) bool {
	var count uint32
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, nil); res != vk.Success || count == 0 {
		return false
	}
	available := make([]vk.ExtensionProperties, count)
	if res := vk.EnumerateDeviceExtensionProperties(device, "", &count, available); res != vk.Success {
		return false
	}
	for i := range available {
		available[i].Deref()
		end := FindFirstZeroInByteArray(available[i].ExtensionName[:])
		if vk.ToString(available[i].ExtensionName[:end]) == name {
			return true
		}
	}
	return false
}
