package systems

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/spaghettifunk/vkstage/engine/assets"
	"github.com/spaghettifunk/vkstage/engine/assets/loaders"
	"github.com/spaghettifunk/vkstage/engine/assets/scene"
	"github.com/spaghettifunk/vkstage/engine/core"
	"github.com/spaghettifunk/vkstage/engine/math"
	"github.com/spaghettifunk/vkstage/engine/renderer/packing"
	"github.com/spaghettifunk/vkstage/engine/renderer/uniform"
	"github.com/spaghettifunk/vkstage/engine/renderer/vulkan"
)

// DefaultUniformAlignment is used when no device is available. No known
// implementation requires more.
const DefaultUniformAlignment uint64 = 256

// PreparedScene is an asset planned and decoded in host memory, ready to be
// uploaded.
type PreparedScene struct {
	ID         uuid.UUID
	Asset      *loaders.Asset
	Plan       *packing.Plan
	Layout     *uniform.Layout
	Transforms []math.Mat4
	Images     []scene.Pixels
}

// SceneSummary is what the planner decided for one asset.
type SceneSummary struct {
	Meshes           int
	DrawCalls        int
	Attributes       int
	Bindings         int
	Pipelines        int
	GeneratedTangent int
	GeometryBytes    int
	UniformBytes     uint64
	Images           int
}

func (p *PreparedScene) Summary() SceneSummary {
	s := SceneSummary{
		Meshes:        len(p.Asset.Document.Meshes),
		DrawCalls:     len(p.Plan.DrawCalls),
		Attributes:    len(p.Plan.Attributes),
		Bindings:      len(p.Plan.Bindings),
		Pipelines:     len(p.Plan.Pipelines),
		GeometryBytes: p.Plan.Size,
		UniformBytes:  p.Layout.Size(),
		Images:        len(p.Images),
	}
	for _, dc := range p.Plan.DrawCalls {
		if dc.GenerateTangents {
			s.GeneratedTangent++
		}
	}
	return s
}

// SceneResources are the device objects of one uploaded asset. Textures is
// nil when the asset has no images.
type SceneResources struct {
	ID        uuid.UUID
	Path      string
	Plan      *packing.Plan
	Layout    *uniform.Layout
	Geometry  vulkan.Buffer
	Uniforms  vulkan.Buffer
	Textures  vulkan.Image
	transfers []*vulkan.StagingTransfer
}

type SceneSystemConfig struct {
	// Progress, when set, reports bytes read into the staging buffer.
	Progress func(done, total int)
}

// SceneSystem loads assets and moves them to the device. Without a transfer
// manager it only prepares scenes.
type SceneSystem struct {
	loader    assets.Loader
	decoder   loaders.ImageDecoder
	jobs      *JobSystem
	driver    vulkan.Driver
	transfers *vulkan.TransferManager
	progress  func(done, total int)

	loaded map[uuid.UUID]*SceneResources
}

func NewSceneSystem(config SceneSystemConfig, loader assets.Loader, decoder loaders.ImageDecoder, jobs *JobSystem, driver vulkan.Driver, transfers *vulkan.TransferManager) (*SceneSystem, error) {
	if loader == nil || decoder == nil || jobs == nil {
		return nil, fmt.Errorf("scene system needs a loader, an image decoder and a job system")
	}
	if (driver == nil) != (transfers == nil) {
		return nil, fmt.Errorf("scene system needs both a driver and a transfer manager, or neither")
	}
	return &SceneSystem{
		loader:    loader,
		decoder:   decoder,
		jobs:      jobs,
		driver:    driver,
		transfers: transfers,
		progress:  config.Progress,
		loaded:    make(map[uuid.UUID]*SceneResources),
	}, nil
}

func (ss *SceneSystem) uniformAlignment() uint64 {
	if ss.driver != nil {
		if a := ss.driver.Limits().MinUniformBufferOffsetAlignment; a > 0 {
			return a
		}
	}
	return DefaultUniformAlignment
}

// Prepare loads, plans and decodes an asset without touching the device.
// The returned scene owns open buffer sources until Close.
func (ss *SceneSystem) Prepare(path string) (*PreparedScene, error) {
	asset, err := ss.loader.Load(path)
	if err != nil {
		return nil, err
	}
	prep := &PreparedScene{ID: uuid.New(), Asset: asset}

	if prep.Plan, err = packing.NewPlan(asset.Document); err != nil {
		ss.loader.Unload(asset)
		return nil, err
	}
	if prep.Transforms, err = uniform.ComposeTransforms(asset.Document); err != nil {
		ss.loader.Unload(asset)
		return nil, err
	}
	prep.Layout = uniform.NewLayout(asset.Document, ss.uniformAlignment())

	if prep.Images, err = ss.decodeImages(asset); err != nil {
		ss.loader.Unload(asset)
		return nil, err
	}
	core.LogInfo("scene %s prepared from %s", prep.ID, path)
	return prep, nil
}

// decodeImages decodes every image of the asset on the job system.
func (ss *SceneSystem) decodeImages(asset *loaders.Asset) ([]scene.Pixels, error) {
	images := make([]scene.Pixels, len(asset.Document.Images))
	tasks := make([]JobTask, len(images))
	for i := range images {
		i := i
		tasks[i] = JobTask{
			Name: fmt.Sprintf("decode image %d", i),
			Run: func() error {
				p, err := loaders.DecodeImage(asset, ss.decoder, i)
				images[i] = p
				return err
			},
		}
	}
	if err := ss.jobs.RunAll(tasks); err != nil {
		return nil, err
	}
	return images, nil
}

// Close releases the buffer sources of the asset.
func (p *PreparedScene) Close() error {
	return p.Asset.Close()
}

// Upload stages geometry, uniforms and textures of a prepared scene and
// submits their copies. The transfers are reclaimed by the transfer
// manager's CollectGarbage.
func (ss *SceneSystem) Upload(prep *PreparedScene) (*SceneResources, error) {
	if ss.transfers == nil {
		return nil, fmt.Errorf("scene system has no device")
	}
	res := &SceneResources{
		ID:     prep.ID,
		Path:   prep.Asset.Path,
		Plan:   prep.Plan,
		Layout: prep.Layout,
	}
	fail := func(err error) (*SceneResources, error) {
		core.LogError("scene %s: upload failed: %s", res.ID, err)
		if rerr := ss.release(res); rerr != nil {
			return nil, errors.Join(err, rerr)
		}
		return nil, err
	}

	if prep.Plan.Size > 0 {
		reader := packing.NewReader(prep.Asset.Sources)
		reader.Progress = ss.progress
		buf, t, err := vulkan.UploadGeometry(ss.transfers, uint64(prep.Plan.Size), func(dst []byte) error {
			return reader.Read(prep.Plan, dst)
		})
		if err != nil {
			return fail(err)
		}
		res.Geometry = buf
		res.transfers = append(res.transfers, t)
	}

	if size := prep.Layout.Size(); size > 0 {
		buf, t, err := vulkan.UploadUniforms(ss.transfers, size, func(dst []byte) error {
			return prep.Layout.Write(dst, prep.Asset.Document, prep.Transforms)
		})
		if err != nil {
			return fail(err)
		}
		res.Uniforms = buf
		res.transfers = append(res.transfers, t)
	}

	img, t, err := vulkan.UploadTextures(ss.transfers, prep.Images)
	if err != nil {
		return fail(err)
	}
	if img != nil {
		res.Textures = img
		res.transfers = append(res.transfers, t)
	}

	ss.loaded[res.ID] = res
	core.LogInfo("scene %s uploaded: %d geometry bytes, %d uniform bytes, %d texture layers",
		res.ID, prep.Plan.Size, prep.Layout.Size(), len(prep.Images))
	return res, nil
}

// Load prepares and uploads an asset in one go.
func (ss *SceneSystem) Load(path string) (*SceneResources, error) {
	prep, err := ss.Prepare(path)
	if err != nil {
		return nil, err
	}
	defer prep.Close()
	return ss.Upload(prep)
}

// Release waits for the scene's transfers and destroys its device objects.
func (ss *SceneSystem) Release(res *SceneResources) error {
	delete(ss.loaded, res.ID)
	return ss.release(res)
}

func (ss *SceneSystem) release(res *SceneResources) error {
	for _, t := range res.transfers {
		if t.State == vulkan.TransferCompleted {
			continue
		}
		if err := ss.transfers.Wait(t, 0); err != nil {
			// The device may still read the objects, leak them.
			return err
		}
	}
	res.transfers = nil

	if res.Geometry != nil {
		ss.driver.DestroyBuffer(res.Geometry)
		res.Geometry = nil
	}
	if res.Uniforms != nil {
		ss.driver.DestroyBuffer(res.Uniforms)
		res.Uniforms = nil
	}
	if res.Textures != nil {
		ss.driver.DestroyImage(res.Textures)
		res.Textures = nil
	}
	return nil
}

// Loaded returns the number of scenes currently on the device.
func (ss *SceneSystem) Loaded() int {
	return len(ss.loaded)
}

func (ss *SceneSystem) Shutdown() error {
	var errs []error
	for _, res := range ss.loaded {
		if err := ss.Release(res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
