package systems

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"testing"
	"time"

	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkstage/engine/assets"
	"github.com/spaghettifunk/vkstage/engine/assets/loaders"
	"github.com/spaghettifunk/vkstage/engine/core"
	"github.com/spaghettifunk/vkstage/engine/renderer/packing"
	"github.com/spaghettifunk/vkstage/engine/renderer/vulkan"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memDriver executes copies on the host as soon as they are recorded and
// signals every fence on submit.
type memDriver struct {
	buffers   map[*memBuffer]bool
	images    map[*memImage]bool
	failImage bool
}

type memBuffer struct{ data []byte }
type memImage struct{ width, height, layers uint32 }
type memFence struct{ signaled bool }

func (b *memBuffer) Size() uint64                    { return uint64(len(b.data)) }
func (i *memImage) Extent() (uint32, uint32, uint32) { return i.width, i.height, i.layers }

func newMemDriver() *memDriver {
	return &memDriver{buffers: map[*memBuffer]bool{}, images: map[*memImage]bool{}}
}

func (d *memDriver) Limits() vulkan.DeviceLimits {
	return vulkan.DeviceLimits{MinUniformBufferOffsetAlignment: 64}
}

func (d *memDriver) CreateBuffer(size uint64, _ vk.BufferUsageFlags, _ vk.MemoryPropertyFlags) (vulkan.Buffer, error) {
	b := &memBuffer{data: make([]byte, size)}
	d.buffers[b] = true
	return b, nil
}
func (d *memDriver) MapBuffer(b vulkan.Buffer) ([]byte, error) { return b.(*memBuffer).data, nil }
func (d *memDriver) UnmapBuffer(vulkan.Buffer)                 {}
func (d *memDriver) DestroyBuffer(b vulkan.Buffer)             { delete(d.buffers, b.(*memBuffer)) }

func (d *memDriver) CreateImage(w, h, layers uint32, _ vk.Format, _ vk.ImageUsageFlags, _ []vk.Format) (vulkan.Image, error) {
	if d.failImage {
		return nil, core.NewAssetError(core.ErrOutOfDeviceMemory, "create image", "no memory")
	}
	img := &memImage{width: w, height: h, layers: layers}
	d.images[img] = true
	return img, nil
}
func (d *memDriver) DestroyImage(img vulkan.Image) { delete(d.images, img.(*memImage)) }

func (d *memDriver) CreateFence() (vulkan.Fence, error) { return &memFence{}, nil }
func (d *memDriver) FenceSignaled(f vulkan.Fence) (bool, error) {
	return f.(*memFence).signaled, nil
}
func (d *memDriver) WaitFence(f vulkan.Fence, _ time.Duration) error {
	if !f.(*memFence).signaled {
		return core.ErrDeviceLost
	}
	return nil
}
func (d *memDriver) DestroyFence(vulkan.Fence) {}

func (d *memDriver) CreateCommandPool(bool) (vulkan.CommandPool, error) { return struct{}{}, nil }
func (d *memDriver) ResetCommandPool(vulkan.CommandPool) error          { return nil }
func (d *memDriver) DestroyCommandPool(vulkan.CommandPool)              {}
func (d *memDriver) AllocateCommandBuffer(vulkan.CommandPool) (vulkan.CommandBuffer, error) {
	return struct{}{}, nil
}
func (d *memDriver) FreeCommandBuffer(vulkan.CommandPool, vulkan.CommandBuffer) {}
func (d *memDriver) BeginCommandBuffer(vulkan.CommandBuffer, bool) error        { return nil }
func (d *memDriver) EndCommandBuffer(vulkan.CommandBuffer) error                { return nil }

func (d *memDriver) CmdCopyBuffer(_ vulkan.CommandBuffer, src vulkan.Buffer, srcOffset uint64, dst vulkan.Buffer, dstOffset uint64, size uint64) {
	copy(dst.(*memBuffer).data[dstOffset:dstOffset+size], src.(*memBuffer).data[srcOffset:srcOffset+size])
}
func (d *memDriver) CmdBufferBarrier(vulkan.CommandBuffer, vulkan.Buffer, vk.PipelineStageFlags, vk.PipelineStageFlags, vk.AccessFlags, vk.AccessFlags) {
}
func (d *memDriver) CmdCopyBufferToImage(vulkan.CommandBuffer, vulkan.Buffer, vulkan.Image) {}
func (d *memDriver) CmdImageBarrier(vulkan.CommandBuffer, vulkan.Image, vk.ImageLayout, vk.ImageLayout, vk.PipelineStageFlags, vk.PipelineStageFlags, vk.AccessFlags, vk.AccessFlags) {
}

func (d *memDriver) Submit(_ vulkan.CommandBuffer, f vulkan.Fence) error {
	f.(*memFence).signaled = true
	return nil
}
func (d *memDriver) WaitIdle() error { return nil }

const quadGLTF = `{
  "asset": {"version": "2.0"},
  "scene": 0,
  "scenes": [{"nodes": [0]}],
  "nodes": [{"mesh": 0, "translation": [1, 0, 0]}],
  "meshes": [{"primitives": [{"attributes": {"POSITION": 1}, "indices": 0, "material": 0}]}],
  "materials": [{"pbrMetallicRoughness": {"baseColorTexture": {"index": 0}}}],
  "textures": [{"source": 0}, {"source": 1}],
  "images": [{"uri": "a.png"}, {"uri": "%s"}],
  "buffers": [{"uri": "quad.bin", "byteLength": 44}],
  "bufferViews": [
    {"buffer": 0, "byteOffset": 0, "byteLength": 6},
    {"buffer": 0, "byteOffset": 8, "byteLength": 36}
  ],
  "accessors": [
    {"bufferView": 0, "componentType": 5123, "count": 3, "type": "SCALAR"},
    {"bufferView": 1, "componentType": 5126, "count": 3, "type": "VEC3", "min": [0,0,0], "max": [1,1,0]}
  ]
}`

func writePNG(t *testing.T, path string, w, h int) {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.NRGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
}

// writeScene writes a one triangle asset with two images; secondImage names
// the second image file.
func writeScene(t *testing.T, secondImage string) string {
	t.Helper()
	dir := t.TempDir()
	var bin bytes.Buffer
	require.NoError(t, binary.Write(&bin, binary.LittleEndian, []uint16{0, 1, 2, 0}))
	require.NoError(t, binary.Write(&bin, binary.LittleEndian, []float32{0, 0, 0, 1, 0, 0, 0, 1, 0}))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "quad.bin"), bin.Bytes(), 0o644))
	writePNG(t, filepath.Join(dir, "a.png"), 4, 4)
	writePNG(t, filepath.Join(dir, "b.png"), 4, 4)
	writePNG(t, filepath.Join(dir, "small.png"), 2, 2)

	path := filepath.Join(dir, "quad.gltf")
	require.NoError(t, os.WriteFile(path, []byte(fmt.Sprintf(quadGLTF, secondImage)), 0o644))
	return path
}

func newSceneSystem(t *testing.T, driver *memDriver) (*SceneSystem, *vulkan.TransferManager) {
	t.Helper()
	js, err := NewJobSystem(2, 4)
	require.NoError(t, err)
	t.Cleanup(func() { js.Shutdown() })

	if driver == nil {
		ss, err := NewSceneSystem(SceneSystemConfig{}, assets.NewAssetManager(), &loaders.ImageLoader{}, js, nil, nil)
		require.NoError(t, err)
		return ss, nil
	}
	tm, err := vulkan.NewTransferManager(driver)
	require.NoError(t, err)
	ss, err := NewSceneSystem(SceneSystemConfig{}, assets.NewAssetManager(), &loaders.ImageLoader{}, js, driver, tm)
	require.NoError(t, err)
	return ss, tm
}

func TestNewSceneSystemValidation(t *testing.T) {
	js, err := NewJobSystem(1, 0)
	require.NoError(t, err)
	defer js.Shutdown()

	_, err = NewSceneSystem(SceneSystemConfig{}, nil, &loaders.ImageLoader{}, js, nil, nil)
	assert.Error(t, err)
	_, err = NewSceneSystem(SceneSystemConfig{}, assets.NewAssetManager(), &loaders.ImageLoader{}, js, newMemDriver(), nil)
	assert.Error(t, err)
}

func TestPrepareHeadless(t *testing.T) {
	ss, _ := newSceneSystem(t, nil)
	prep, err := ss.Prepare(writeScene(t, "b.png"))
	require.NoError(t, err)
	defer prep.Close()

	s := prep.Summary()
	assert.Equal(t, 1, s.Meshes)
	assert.Equal(t, 1, s.DrawCalls)
	assert.Equal(t, 1, s.Pipelines)
	assert.Equal(t, 0, s.GeneratedTangent)
	assert.Equal(t, 2, s.Images)
	assert.Equal(t, prep.Plan.Size, s.GeometryBytes)
	assert.Zero(t, s.UniformBytes%DefaultUniformAlignment)

	require.Len(t, prep.Transforms, 1)
	require.Len(t, prep.Images, 2)
	assert.Equal(t, 4, prep.Images[1].Width)

	_, err = ss.Upload(prep)
	assert.Error(t, err)
}

func TestUploadCopiesGeometry(t *testing.T) {
	driver := newMemDriver()
	ss, tm := newSceneSystem(t, driver)

	prep, err := ss.Prepare(writeScene(t, "b.png"))
	require.NoError(t, err)
	defer prep.Close()

	res, err := ss.Upload(prep)
	require.NoError(t, err)
	assert.Equal(t, 1, ss.Loaded())
	assert.Equal(t, 3, tm.Pending())
	assert.Equal(t, uint32(2), res.Textures.(*memImage).layers)

	want := make([]byte, prep.Plan.Size)
	require.NoError(t, packing.NewReader(prep.Asset.Sources).Read(prep.Plan, want))
	assert.Equal(t, want, res.Geometry.(*memBuffer).data)
	assert.Len(t, res.Uniforms.(*memBuffer).data, int(prep.Layout.Size()))
	assert.Zero(t, prep.Layout.Size()%64)

	n, err := tm.CollectGarbage()
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, ss.Release(res))
	assert.Empty(t, driver.buffers)
	assert.Empty(t, driver.images)
	assert.Zero(t, ss.Loaded())
}

func TestUploadExtentMismatchReleasesResources(t *testing.T) {
	driver := newMemDriver()
	ss, tm := newSceneSystem(t, driver)

	prep, err := ss.Prepare(writeScene(t, "small.png"))
	require.NoError(t, err)
	defer prep.Close()

	_, err = ss.Upload(prep)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnsupportedLayout))
	assert.Zero(t, ss.Loaded())

	_, err = tm.CollectGarbage()
	require.NoError(t, err)
	assert.Zero(t, tm.Pending())
	assert.Empty(t, driver.buffers)
}

func TestUploadImageFailure(t *testing.T) {
	driver := newMemDriver()
	driver.failImage = true
	ss, _ := newSceneSystem(t, driver)

	_, err := ss.Load(writeScene(t, "b.png"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrOutOfDeviceMemory))
}

func TestPrepareMissingImage(t *testing.T) {
	ss, _ := newSceneSystem(t, nil)
	_, err := ss.Prepare(writeScene(t, "missing.png"))
	assert.Error(t, err)
}

func TestShutdownReleasesScenes(t *testing.T) {
	driver := newMemDriver()
	ss, tm := newSceneSystem(t, driver)

	for i := 0; i < 2; i++ {
		_, err := ss.Load(writeScene(t, "b.png"))
		require.NoError(t, err)
	}
	assert.Equal(t, 2, ss.Loaded())
	require.NoError(t, ss.Shutdown())
	assert.Zero(t, ss.Loaded())
	assert.Empty(t, driver.images)

	// Staging buffers go with the transfer manager.
	require.NoError(t, tm.Destroy())
	assert.Empty(t, driver.buffers)
}
