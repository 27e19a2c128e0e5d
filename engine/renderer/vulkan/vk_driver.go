package vulkan

import (
	"fmt"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkstage/engine/core"
)

type vulkanCommandPool struct {
	Handle vk.CommandPool
}

type vkDriver struct {
	context *VulkanContext
	locks   *VulkanLockPool
}

// NewDriver returns the Driver backed by a live device.
func NewDriver(context *VulkanContext) Driver {
	locks := NewVulkanLockPool()
	return &vkDriver{context: context, locks: locks}
}

func (d *vkDriver) device() vk.Device {
	return d.context.Device.LogicalDevice
}

func (d *vkDriver) Limits() DeviceLimits {
	return d.context.Limits()
}

func (d *vkDriver) CreateBuffer(size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (Buffer, error) {
	var out *VulkanBuffer
	err := d.locks.SafeCall(ResourceManagement, func() error {
		b, err := NewVulkanBuffer(d.context, size, usage, properties)
		out = b
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *vkDriver) MapBuffer(b Buffer) ([]byte, error) {
	return b.(*VulkanBuffer).LockMemory(d.context)
}

func (d *vkDriver) UnmapBuffer(b Buffer) {
	b.(*VulkanBuffer).UnlockMemory(d.context)
}

func (d *vkDriver) DestroyBuffer(b Buffer) {
	_ = d.locks.SafeCall(ResourceManagement, func() error {
		b.(*VulkanBuffer).Destroy(d.context)
		return nil
	})
}

func (d *vkDriver) CreateImage(width, height, layers uint32, format vk.Format, usage vk.ImageUsageFlags, viewFormats []vk.Format) (Image, error) {
	var out *VulkanImage
	err := d.locks.SafeCall(ResourceManagement, func() error {
		img, err := NewVulkanImage(d.context, width, height, layers, format, usage, viewFormats)
		out = img
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *vkDriver) DestroyImage(img Image) {
	_ = d.locks.SafeCall(ResourceManagement, func() error {
		img.(*VulkanImage).Destroy(d.context)
		return nil
	})
}

func (d *vkDriver) CreateFence() (Fence, error) {
	f, err := NewFence(d.context, false)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (d *vkDriver) FenceSignaled(f Fence) (bool, error) {
	return f.(*VulkanFence).FenceStatus(d.context)
}

func (d *vkDriver) WaitFence(f Fence, timeout time.Duration) error {
	return f.(*VulkanFence).FenceWait(d.context, timeout)
}

func (d *vkDriver) DestroyFence(f Fence) {
	f.(*VulkanFence).FenceDestroy(d.context)
}

func (d *vkDriver) CreateCommandPool(transient bool) (CommandPool, error) {
	poolCreateInfo := vk.CommandPoolCreateInfo{
		SType:            vk.StructureTypeCommandPoolCreateInfo,
		QueueFamilyIndex: uint32(d.context.Device.GraphicsQueueIndex),
	}
	if transient {
		poolCreateInfo.Flags = vk.CommandPoolCreateFlags(vk.CommandPoolCreateTransientBit)
	}

	var handle vk.CommandPool
	if res := vk.CreateCommandPool(d.device(), &poolCreateInfo, d.context.Allocator, &handle); res != vk.Success {
		err := ResultError(res, "create command pool")
		core.LogError("%s", err)
		return nil, err
	}
	core.LogDebug("Command pool created.")
	return &vulkanCommandPool{Handle: handle}, nil
}

func (d *vkDriver) ResetCommandPool(p CommandPool) error {
	pool := p.(*vulkanCommandPool)
	return d.locks.SafeCall(CommandPoolManagement, func() error {
		if res := vk.ResetCommandPool(d.device(), pool.Handle, 0); res != vk.Success {
			err := ResultError(res, "reset command pool")
			core.LogError("%s", err)
			return err
		}
		return nil
	})
}

func (d *vkDriver) DestroyCommandPool(p CommandPool) {
	pool := p.(*vulkanCommandPool)
	if pool.Handle != vk.NullCommandPool {
		vk.DestroyCommandPool(d.device(), pool.Handle, d.context.Allocator)
		pool.Handle = vk.NullCommandPool
	}
}

func (d *vkDriver) AllocateCommandBuffer(p CommandPool) (CommandBuffer, error) {
	pool := p.(*vulkanCommandPool)
	var out *VulkanCommandBuffer
	err := d.locks.SafeCall(CommandPoolManagement, func() error {
		cb, err := NewVulkanCommandBuffer(d.context, pool.Handle, true)
		out = cb
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (d *vkDriver) FreeCommandBuffer(p CommandPool, cb CommandBuffer) {
	pool := p.(*vulkanCommandPool)
	commandBuffer := cb.(*VulkanCommandBuffer)
	_ = d.locks.SafeCall(CommandPoolManagement, func() error {
		vk.FreeCommandBuffers(d.device(), pool.Handle, 1, []vk.CommandBuffer{commandBuffer.Handle})
		return nil
	})
	commandBuffer.Handle = nil
	commandBuffer.State = COMMAND_BUFFER_STATE_NOT_ALLOCATED
}

func (d *vkDriver) BeginCommandBuffer(cb CommandBuffer, oneTimeSubmit bool) error {
	return cb.(*VulkanCommandBuffer).Begin(oneTimeSubmit, false)
}

func (d *vkDriver) EndCommandBuffer(cb CommandBuffer) error {
	return cb.(*VulkanCommandBuffer).End()
}

func (d *vkDriver) CmdCopyBuffer(cb CommandBuffer, src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64) {
	region := vk.BufferCopy{
		SrcOffset: vk.DeviceSize(srcOffset),
		DstOffset: vk.DeviceSize(dstOffset),
		Size:      vk.DeviceSize(size),
	}
	vk.CmdCopyBuffer(cb.(*VulkanCommandBuffer).Handle, src.(*VulkanBuffer).Handle, dst.(*VulkanBuffer).Handle, 1, []vk.BufferCopy{region})
}

func (d *vkDriver) CmdBufferBarrier(cb CommandBuffer, b Buffer, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags) {
	barrier := vk.BufferMemoryBarrier{
		SType:               vk.StructureTypeBufferMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Buffer:              b.(*VulkanBuffer).Handle,
		Offset:              0,
		Size:                vk.DeviceSize(vk.WholeSize),
	}
	vk.CmdPipelineBarrier(cb.(*VulkanCommandBuffer).Handle, srcStage, dstStage, vk.DependencyFlags(0), 0, nil, 1, []vk.BufferMemoryBarrier{barrier}, 0, nil)
}

func (d *vkDriver) CmdCopyBufferToImage(cb CommandBuffer, src Buffer, img Image) {
	image := img.(*VulkanImage)
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		BufferRowLength:   0,
		BufferImageHeight: 0,
		ImageSubresource: vk.ImageSubresourceLayers{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			MipLevel:       0,
			BaseArrayLayer: 0,
			LayerCount:     image.Layers,
		},
		ImageExtent: vk.Extent3D{
			Width:  image.Width,
			Height: image.Height,
			Depth:  1,
		},
	}
	vk.CmdCopyBufferToImage(cb.(*VulkanCommandBuffer).Handle, src.(*VulkanBuffer).Handle, image.Handle, vk.ImageLayoutTransferDstOptimal, 1, []vk.BufferImageCopy{region})
}

func (d *vkDriver) CmdImageBarrier(cb CommandBuffer, img Image, oldLayout, newLayout vk.ImageLayout, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags) {
	image := img.(*VulkanImage)
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       srcAccess,
		DstAccessMask:       dstAccess,
		OldLayout:           oldLayout,
		NewLayout:           newLayout,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               image.Handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     image.Layers,
		},
	}
	vk.CmdPipelineBarrier(cb.(*VulkanCommandBuffer).Handle, srcStage, dstStage, vk.DependencyFlags(0), 0, nil, 0, nil, 1, []vk.ImageMemoryBarrier{barrier})
}

func (d *vkDriver) Submit(cb CommandBuffer, f Fence) error {
	commandBuffer := cb.(*VulkanCommandBuffer)
	fence := f.(*VulkanFence)
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{commandBuffer.Handle},
	}
	return d.locks.SafeQueueCall(uint32(d.context.Device.GraphicsQueueIndex), func() error {
		if res := vk.QueueSubmit(d.context.Device.GraphicsQueue, 1, []vk.SubmitInfo{submitInfo}, fence.Handle); res != vk.Success {
			err := fmt.Errorf("failed to submit transfer: %w", ResultError(res, "queue submit"))
			core.LogError("%s", err)
			return err
		}
		commandBuffer.UpdateSubmitted()
		return nil
	})
}

func (d *vkDriver) WaitIdle() error {
	return d.locks.SafeQueueCall(uint32(d.context.Device.GraphicsQueueIndex), func() error {
		if res := vk.QueueWaitIdle(d.context.Device.GraphicsQueue); res != vk.Success {
			err := ResultError(res, "queue wait idle")
			core.LogError("%s", err)
			return err
		}
		return nil
	})
}
