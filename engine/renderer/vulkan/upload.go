package vulkan

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkstage/engine/assets/scene"
	"github.com/spaghettifunk/vkstage/engine/core"
)

const (
	textureFormat     = vk.FormatR8g8b8a8Srgb
	textureDataFormat = vk.FormatR8g8b8a8Unorm
)

// UploadBuffer creates a device local buffer of size bytes, lets fill write
// its contents into staging memory and records the copy. The returned
// transfer is already submitted.
func UploadBuffer(tm *TransferManager, size uint64, usage vk.BufferUsageFlags, dstStage vk.PipelineStageFlags, dstAccess vk.AccessFlags, fill func(dst []byte) error) (Buffer, *StagingTransfer, error) {
	t, err := tm.BeginUpload(size)
	if err != nil {
		return nil, nil, err
	}
	// An unsubmitted transfer never signals: submit it even on failure so
	// CollectGarbage can reclaim it.
	abort := func(err error) (Buffer, *StagingTransfer, error) {
		if serr := t.Submit(); serr != nil {
			core.LogError("failed to submit aborted transfer %s: %s", t.ID, serr)
		}
		return nil, nil, err
	}

	if err := fill(t.Bytes()); err != nil {
		return abort(err)
	}

	dst, err := tm.driver.CreateBuffer(size, usage|vk.BufferUsageFlags(vk.BufferUsageTransferDstBit),
		vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit))
	if err != nil {
		return abort(err)
	}
	if err := t.Copy(dst, size, dstStage, dstAccess); err != nil {
		tm.driver.DestroyBuffer(dst)
		return abort(err)
	}
	if err := t.Submit(); err != nil {
		tm.driver.DestroyBuffer(dst)
		return nil, nil, err
	}
	return dst, t, nil
}

// UploadGeometry uploads packed index and vertex data into one buffer bound
// for vertex input.
func UploadGeometry(tm *TransferManager, size uint64, fill func(dst []byte) error) (Buffer, *StagingTransfer, error) {
	return UploadBuffer(tm, size,
		vk.BufferUsageFlags(vk.BufferUsageIndexBufferBit|vk.BufferUsageVertexBufferBit),
		vk.PipelineStageFlags(vk.PipelineStageVertexInputBit),
		vk.AccessFlags(vk.AccessIndexReadBit|vk.AccessVertexAttributeReadBit),
		fill)
}

// UploadUniforms uploads the scene uniform blocks.
func UploadUniforms(tm *TransferManager, size uint64, fill func(dst []byte) error) (Buffer, *StagingTransfer, error) {
	return UploadBuffer(tm, size,
		vk.BufferUsageFlags(vk.BufferUsageUniformBufferBit),
		vk.PipelineStageFlags(vk.PipelineStageVertexShaderBit),
		vk.AccessFlags(vk.AccessUniformReadBit),
		fill)
}

// UploadTextures packs every image as one layer of an sRGB array image. All
// images must share one extent. It returns nil when there is nothing to
// upload.
func UploadTextures(tm *TransferManager, images []scene.Pixels) (Image, *StagingTransfer, error) {
	if len(images) == 0 {
		return nil, nil, nil
	}
	width, height := images[0].Width, images[0].Height
	if width <= 0 || height <= 0 {
		err := core.NewAssetError(core.ErrUnsupportedLayout, "upload textures", "empty image extent %dx%d", width, height)
		core.LogError("%s", err)
		return nil, nil, err
	}
	layerSize := uint64(width) * uint64(height) * 4
	for i, img := range images {
		if img.Width != width || img.Height != height {
			err := core.NewAssetError(core.ErrUnsupportedLayout, "upload textures",
				"image %d is %dx%d, expected %dx%d", i, img.Width, img.Height, width, height)
			core.LogError("%s", err)
			return nil, nil, err
		}
		if uint64(len(img.RGBA)) != layerSize {
			err := core.NewAssetError(core.ErrDataIntegrity, "upload textures",
				"image %d holds %d bytes, expected %d", i, len(img.RGBA), layerSize)
			core.LogError("%s", err)
			return nil, nil, err
		}
	}

	layers := uint32(len(images))
	t, err := tm.BeginUpload(layerSize * uint64(layers))
	if err != nil {
		return nil, nil, err
	}
	dst := t.Bytes()
	for i, img := range images {
		copy(dst[uint64(i)*layerSize:], img.RGBA)
	}

	image, err := tm.driver.CreateImage(uint32(width), uint32(height), layers, textureFormat,
		vk.ImageUsageFlags(vk.ImageUsageTransferDstBit|vk.ImageUsageSampledBit),
		[]vk.Format{textureFormat, textureDataFormat})
	if err == nil {
		err = t.CopyToImage(image)
		if err != nil {
			tm.driver.DestroyImage(image)
		}
	}
	if serr := t.Submit(); serr != nil && err == nil {
		tm.driver.DestroyImage(image)
		err = serr
	}
	if err != nil {
		return nil, nil, err
	}
	return image, t, nil
}
