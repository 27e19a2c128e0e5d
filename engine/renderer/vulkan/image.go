package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkstage/engine/core"
)

// VulkanImage is a 2D array image with one view per requested format.
type VulkanImage struct {
	Handle vk.Image
	Memory vk.DeviceMemory
	Views  []vk.ImageView
	Width  uint32
	Height uint32
	Layers uint32
}

func NewVulkanImage(context *VulkanContext, width, height, layers uint32, format vk.Format, usage vk.ImageUsageFlags, viewFormats []vk.Format) (*VulkanImage, error) {
	outImage := &VulkanImage{
		Width:  width,
		Height: height,
		Layers: layers,
	}

	imageCreateInfo := vk.ImageCreateInfo{
		SType:     vk.StructureTypeImageCreateInfo,
		ImageType: vk.ImageType2d,
		Format:    format,
		Extent: vk.Extent3D{
			Width:  width,
			Height: height,
			Depth:  1, // TODO: Support configurable depth.
		},
		MipLevels:     1,
		ArrayLayers:   layers,
		Samples:       vk.SampleCount1Bit,
		Tiling:        vk.ImageTilingOptimal,
		Usage:         usage,
		SharingMode:   vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}
	if len(viewFormats) > 1 {
		// Views may reinterpret the data, e.g. sRGB and UNORM.
		imageCreateInfo.Flags = vk.ImageCreateFlags(vk.ImageCreateMutableFormatBit)
	}

	var handle vk.Image
	if res := vk.CreateImage(context.Device.LogicalDevice, &imageCreateInfo, context.Allocator, &handle); res != vk.Success {
		err := ResultError(res, "create image")
		core.LogError("%s", err)
		return nil, err
	}
	outImage.Handle = handle

	// Query memory requirements.
	var memoryRequirements vk.MemoryRequirements
	vk.GetImageMemoryRequirements(context.Device.LogicalDevice, outImage.Handle, &memoryRequirements)
	memoryRequirements.Deref()

	memoryType := context.FindMemoryIndex(memoryRequirements.MemoryTypeBits, vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if memoryType == -1 {
		outImage.Destroy(context)
		err := core.NewAssetError(core.ErrOutOfDeviceMemory, "create image", "required memory type not found")
		core.LogError("%s", err)
		return nil, err
	}

	// Allocate memory
	memoryAllocateInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memoryRequirements.Size,
		MemoryTypeIndex: uint32(memoryType),
	}
	var memory vk.DeviceMemory
	if res := vk.AllocateMemory(context.Device.LogicalDevice, &memoryAllocateInfo, context.Allocator, &memory); res != vk.Success {
		outImage.Destroy(context)
		err := ResultError(res, "allocate image memory")
		core.LogError("%s", err)
		return nil, err
	}
	outImage.Memory = memory

	// Bind the memory
	if res := vk.BindImageMemory(context.Device.LogicalDevice, outImage.Handle, outImage.Memory, 0); res != vk.Success {
		outImage.Destroy(context)
		err := ResultError(res, "bind image memory")
		core.LogError("%s", err)
		return nil, err
	}

	for _, viewFormat := range viewFormats {
		if err := outImage.createView(context, viewFormat); err != nil {
			outImage.Destroy(context)
			return nil, err
		}
	}
	return outImage, nil
}

func (vi *VulkanImage) createView(context *VulkanContext, format vk.Format) error {
	viewCreateInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    vi.Handle,
		ViewType: vk.ImageViewType2dArray,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     vi.Layers,
		},
	}

	var view vk.ImageView
	if res := vk.CreateImageView(context.Device.LogicalDevice, &viewCreateInfo, context.Allocator, &view); res != vk.Success {
		err := ResultError(res, "create image view")
		core.LogError("%s", err)
		return err
	}
	vi.Views = append(vi.Views, view)
	return nil
}

func (vi *VulkanImage) Extent() (width, height, layers uint32) {
	return vi.Width, vi.Height, vi.Layers
}

func (vi *VulkanImage) Destroy(context *VulkanContext) {
	for _, view := range vi.Views {
		vk.DestroyImageView(context.Device.LogicalDevice, view, context.Allocator)
	}
	vi.Views = nil
	if vi.Memory != vk.NullDeviceMemory {
		vk.FreeMemory(context.Device.LogicalDevice, vi.Memory, context.Allocator)
		vi.Memory = vk.NullDeviceMemory
	}
	if vi.Handle != vk.NullImage {
		vk.DestroyImage(context.Device.LogicalDevice, vi.Handle, context.Allocator)
		vi.Handle = vk.NullImage
	}
}
