package vulkan

import (
	"fmt"
	"runtime"
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkstage/engine/core"
)

const validationLayerName = "VK_LAYER_KHRONOS_validation"

// NewVulkanContext bootstraps an instance and a logical device without any
// window or surface. Only a graphics queue is requested: it also accepts
// transfer commands.
func NewVulkanContext(cfg core.DeviceConfig) (*VulkanContext, error) {
	if err := vk.SetDefaultGetInstanceProcAddr(); err != nil {
		core.LogError("failed to load the Vulkan loader: %s", err)
		return nil, fmt.Errorf("failed to load the Vulkan loader: %w", err)
	}
	if err := vk.Init(); err != nil {
		core.LogError("failed to initialize vk: %s", err)
		return nil, err
	}

	context := &VulkanContext{
		// TODO: custom allocator.
		Allocator:  nil,
		Device:     &VulkanDevice{GraphicsQueueIndex: -1},
		validation: cfg.Validation,
	}

	if err := context.createInstance(cfg.ApplicationName); err != nil {
		return nil, err
	}
	if err := DeviceCreate(context); err != nil {
		context.Destroy()
		return nil, err
	}
	return context, nil
}

func (vc *VulkanContext) createInstance(appName string) error {
	appInfo := &vk.ApplicationInfo{
		SType:              vk.StructureTypeApplicationInfo,
		ApiVersion:         uint32(vk.MakeVersion(1, 0, 0)),
		ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
		PApplicationName:   VulkanSafeString(appName),
		PEngineName:        VulkanSafeString("vkstage"),
	}

	createInfo := vk.InstanceCreateInfo{
		SType:            vk.StructureTypeInstanceCreateInfo,
		PApplicationInfo: appInfo,
	}

	requiredExtensions := []string{}
	if runtime.GOOS == "darwin" {
		requiredExtensions = append(requiredExtensions,
			"VK_KHR_portability_enumeration",
			"VK_KHR_get_physical_device_properties2",
		)
		createInfo.Flags |= 1
	}
	if vc.validation {
		requiredExtensions = append(requiredExtensions, vk.ExtDebugReportExtensionName)
	}
	createInfo.EnabledExtensionCount = uint32(len(requiredExtensions))
	createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions)

	// Validation layers.
	requiredLayers := []string{}
	if vc.validation {
		core.LogInfo("Validation layers enabled. Enumerating...")
		found, err := instanceLayerAvailable(validationLayerName)
		if err != nil {
			return err
		}
		if !found {
			core.LogWarn("Validation layer %s is missing, continuing without it.", validationLayerName)
			vc.validation = false
			createInfo.EnabledExtensionCount = uint32(len(requiredExtensions) - 1)
			createInfo.PpEnabledExtensionNames = VulkanSafeStrings(requiredExtensions[:len(requiredExtensions)-1])
		} else {
			requiredLayers = append(requiredLayers, validationLayerName)
		}
	}
	createInfo.EnabledLayerCount = uint32(len(requiredLayers))
	createInfo.PpEnabledLayerNames = VulkanSafeStrings(requiredLayers)

	if res := vk.CreateInstance(&createInfo, vc.Allocator, &vc.Instance); res != vk.Success {
		err := fmt.Errorf("failed in creating the Vulkan Instance: %w", ResultError(res, "create instance"))
		core.LogError("%s", err)
		return err
	}
	if err := vk.InitInstance(vc.Instance); err != nil {
		core.LogError("%s", err)
		return err
	}
	core.LogInfo("Vulkan Instance created.")

	if vc.validation {
		core.LogDebug("Creating Vulkan debugger...")
		debugCreateInfo := vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: dbgCallbackFunc,
		}
		var dbg vk.DebugReportCallback
		if err := vk.Error(vk.CreateDebugReportCallback(vc.Instance, &debugCreateInfo, nil, &dbg)); err != nil {
			core.LogError("vk.CreateDebugReportCallback failed with %s", err)
			return err
		}
		vc.debugCallback = dbg
		core.LogDebug("Vulkan debugger created.")
	}
	return nil
}

func instanceLayerAvailable(name string) (bool, error) {
	var count uint32
	if res := vk.EnumerateInstanceLayerProperties(&count, nil); res != vk.Success {
		return false, ResultError(res, "enumerate layers")
	}
	layers := make([]vk.LayerProperties, count)
	if res := vk.EnumerateInstanceLayerProperties(&count, layers); res != vk.Success {
		return false, ResultError(res, "enumerate layers")
	}
	for i := range layers {
		layers[i].Deref()
		end := FindFirstZeroInByteArray(layers[i].LayerName[:])
		if vk.ToString(layers[i].LayerName[:end]) == name {
			return true, nil
		}
	}
	return false, nil
}

// Destroy releases the device and the instance. Every object created from
// the context must be gone.
func (vc *VulkanContext) Destroy() {
	if vc.Device != nil {
		DeviceDestroy(vc)
	}
	if vc.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(vc.Instance, vc.debugCallback, vc.Allocator)
		vc.debugCallback = vk.NullDebugReportCallback
	}
	if vc.Instance != nil {
		vk.DestroyInstance(vc.Instance, vc.Allocator)
		vc.Instance = nil
	}
	core.LogInfo("Vulkan context destroyed.")
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType, object uint64, location uint64, messageCode int32, pLayerPrefix string, pMessage string, pUserData unsafe.Pointer) vk.Bool32 {
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		core.LogError("ERROR: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0:
		core.LogWarn("WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		core.LogWarn("PERFORMANCE WARNING: [%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	default:
		core.LogDebug("[%s] Code %d : %s", pLayerPrefix, messageCode, pMessage)
	}
	return vk.Bool32(vk.False)
}
