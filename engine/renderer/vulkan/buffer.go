package vulkan

import (
	"unsafe"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkstage/engine/core"
)

// VulkanBuffer is a buffer bound to a dedicated memory allocation.
type VulkanBuffer struct {
	Handle     vk.Buffer
	Memory     vk.DeviceMemory
	TotalSize  uint64
	Usage      vk.BufferUsageFlags
	IsLocked   bool
	MemoryFlag vk.MemoryPropertyFlags
}

func NewVulkanBuffer(context *VulkanContext, size uint64, usage vk.BufferUsageFlags, memoryPropertyFlags vk.MemoryPropertyFlags) (*VulkanBuffer, error) {
	outBuffer := &VulkanBuffer{
		TotalSize:  size,
		Usage:      usage,
		MemoryFlag: memoryPropertyFlags,
	}

	bufferInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       usage,
		SharingMode: vk.SharingModeExclusive, // NOTE: Only used in one queue.
	}

	var handle vk.Buffer
	if res := vk.CreateBuffer(context.Device.LogicalDevice, &bufferInfo, context.Allocator, &handle); res != vk.Success {
		err := ResultError(res, "create buffer")
		core.LogError("%s", err)
		return nil, err
	}
	outBuffer.Handle = handle

	// Gather memory requirements.
	var requirements vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(context.Device.LogicalDevice, outBuffer.Handle, &requirements)
	requirements.Deref()

	memoryIndex := context.FindMemoryIndex(requirements.MemoryTypeBits, memoryPropertyFlags)
	if memoryIndex == -1 {
		outBuffer.Destroy(context)
		kind := core.ErrOutOfDeviceMemory
		if memoryPropertyFlags&vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit) != 0 {
			kind = core.ErrOutOfHostMemory
		}
		err := core.NewAssetError(kind, "create buffer", "no memory type for flags %#x", uint32(memoryPropertyFlags))
		core.LogError("%s", err)
		return nil, err
	}

	allocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  requirements.Size,
		MemoryTypeIndex: uint32(memoryIndex),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &allocateInfo, context.Allocator, &memory); res != vk.Success {
		outBuffer.Destroy(context)
		err := ResultError(res, "allocate buffer memory")
		core.LogError("Unable to allocate memory for buffer of %d bytes: %s", size, err)
		return nil, err
	}
	outBuffer.Memory = memory

	if res := vk.BindBufferMemory(context.Device.LogicalDevice, outBuffer.Handle, outBuffer.Memory, 0); res != vk.Success {
		outBuffer.Destroy(context)
		err := ResultError(res, "bind buffer memory")
		core.LogError("%s", err)
		return nil, err
	}
	return outBuffer, nil
}

func (vb *VulkanBuffer) Size() uint64 {
	return vb.TotalSize
}

// LockMemory maps the whole allocation.
func (vb *VulkanBuffer) LockMemory(context *VulkanContext) ([]byte, error) {
	var data unsafe.Pointer
	if res := vk.MapMemory(context.Device.LogicalDevice, vb.Memory, 0, vk.DeviceSize(vb.TotalSize), 0, &data); res != vk.Success {
		err := ResultError(res, "map memory")
		core.LogError("%s", err)
		return nil, err
	}
	vb.IsLocked = true
	return unsafe.Slice((*byte)(data), vb.TotalSize), nil
}

func (vb *VulkanBuffer) UnlockMemory(context *VulkanContext) {
	if !vb.IsLocked {
		return
	}
	vk.UnmapMemory(context.Device.LogicalDevice, vb.Memory)
	vb.IsLocked = false
}

func (vb *VulkanBuffer) Destroy(context *VulkanContext) {
	vb.UnlockMemory(context)
	if vb.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, vb.Memory, context.Allocator)
		vb.Memory = vk.NullDeviceMemory
	}
	if vb.Handle != vk.NullBuffer {
		vk.DestroyBuffer(context.Device.LogicalDevice, vb.Handle, context.Allocator)
		vb.Handle = vk.NullBuffer
	}
	vb.TotalSize = 0
}
