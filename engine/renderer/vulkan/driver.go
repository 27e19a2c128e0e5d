package vulkan

import (
	"time"

	vk "github.com/goki/vulkan"
)

// Handles returned by a Driver are opaque to callers and only valid with the
// Driver that created them.
type (
	// Buffer is a device buffer bound to its own memory allocation.
	Buffer interface {
		Size() uint64
	}
	// Image is a 2D array image bound to its own memory allocation.
	Image interface {
		Extent() (width, height, layers uint32)
	}
	Fence         interface{}
	CommandPool   interface{}
	CommandBuffer interface{}
)

// DeviceLimits holds the device capabilities layout code depends on.
type DeviceLimits struct {
	MinUniformBufferOffsetAlignment uint64
}

// Driver is the slice of the Vulkan API the transfer manager and the upload
// helpers use. Errors carry core kinds, see ResultError.
type Driver interface {
	Limits() DeviceLimits

	CreateBuffer(size uint64, usage vk.BufferUsageFlags, properties vk.MemoryPropertyFlags) (Buffer, error)
	MapBuffer(b Buffer) ([]byte, error)
	UnmapBuffer(b Buffer)
	DestroyBuffer(b Buffer)

	// CreateImage creates an optimally tiled device local image. Every format
	// in viewFormats gets an array view.
	CreateImage(width, height, layers uint32, format vk.Format, usage vk.ImageUsageFlags, viewFormats []vk.Format) (Image, error)
	DestroyImage(img Image)

	CreateFence() (Fence, error)
	// FenceSignaled polls a fence without blocking.
	FenceSignaled(f Fence) (bool, error)
	WaitFence(f Fence, timeout time.Duration) error
	DestroyFence(f Fence)

	CreateCommandPool(transient bool) (CommandPool, error)
	ResetCommandPool(p CommandPool) error
	DestroyCommandPool(p CommandPool)
	AllocateCommandBuffer(p CommandPool) (CommandBuffer, error)
	FreeCommandBuffer(p CommandPool, cb CommandBuffer)
	BeginCommandBuffer(cb CommandBuffer, oneTimeSubmit bool) error
	EndCommandBuffer(cb CommandBuffer) error

	CmdCopyBuffer(cb CommandBuffer, src Buffer, srcOffset uint64, dst Buffer, dstOffset uint64, size uint64)
	CmdBufferBarrier(cb CommandBuffer, b Buffer, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags)
	CmdCopyBufferToImage(cb CommandBuffer, src Buffer, img Image)
	CmdImageBarrier(cb CommandBuffer, img Image, oldLayout, newLayout vk.ImageLayout, srcStage, dstStage vk.PipelineStageFlags, srcAccess, dstAccess vk.AccessFlags)

	// Submit queues cb on the graphics queue. The fence signals once the
	// device has finished executing it.
	Submit(cb CommandBuffer, f Fence) error
	WaitIdle() error
}
