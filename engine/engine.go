package engine

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spaghettifunk/vkstage/engine/assets"
	"github.com/spaghettifunk/vkstage/engine/core"
	"github.com/spaghettifunk/vkstage/engine/renderer/vulkan"
	"github.com/spaghettifunk/vkstage/engine/systems"
)

type Stage uint8

const (
	// Engine is in an uninitialized state
	EngineStageUninitialized Stage = iota
	// Engine is currently initializing
	EngineStageInitializing
	// Engine initialization is complete
	EngineStageInitialized
	// Engine is watching the asset directory
	EngineStageRunning
	// Engine is in the process of shutting down
	EngineStageShuttingDown
)

// Summary is what the planner decided for one asset.
type Summary = systems.SceneSummary

type Options struct {
	// Headless engines plan assets without creating a device.
	Headless bool
	// Progress reports bytes read while filling a staging buffer.
	Progress func(done, total int)
}

// Engine ties the device, the systems and the asset watcher together for
// one process.
type Engine struct {
	currentStage  Stage
	config        *core.Config
	options       Options
	context       *vulkan.VulkanContext
	systemManager *systems.SystemManager
	clock         *core.Clock

	// Uploaded scenes by asset path, replaced on reload.
	scenes map[string]*systems.SceneResources
}

func New(cfg *core.Config, options Options) *Engine {
	return &Engine{
		currentStage: EngineStageUninitialized,
		config:       cfg,
		options:      options,
		clock:        core.NewClock(),
		scenes:       make(map[string]*systems.SceneResources),
	}
}

func (e *Engine) Initialize() error {
	if e.currentStage != EngineStageUninitialized {
		return fmt.Errorf("engine already initialized")
	}
	e.currentStage = EngineStageInitializing

	var driver vulkan.Driver
	if !e.options.Headless {
		vc, err := vulkan.NewVulkanContext(e.config.Device)
		if err != nil {
			return err
		}
		e.context = vc
		driver = vulkan.NewDriver(vc)
	}

	sm, err := systems.NewSystemManager(e.config, driver, e.options.Progress)
	if err != nil {
		e.destroyContext()
		return err
	}
	e.systemManager = sm

	if e.config.Assets.Watch {
		if err := sm.Assets.Initialize(e.config.Assets.Dir, true); err != nil {
			return err
		}
		core.LogInfo("watching %s", e.config.Assets.Dir)
	}

	e.currentStage = EngineStageInitialized
	return nil
}

// Plan prepares an asset headlessly and reports what the planner decided.
func (e *Engine) Plan(path string) (Summary, error) {
	e.clock.Start()
	prep, err := e.systemManager.Scenes.Prepare(path)
	if err != nil {
		return Summary{}, err
	}
	defer prep.Close()

	summary := prep.Summary()
	core.LogInfo("planned %s in %s", path, e.clock.Lap())
	return summary, nil
}

// Upload moves an asset to the device and blocks until every transfer is
// reclaimed. An earlier upload of the same path is released first.
func (e *Engine) Upload(ctx context.Context, path string) (*systems.SceneResources, error) {
	if e.systemManager.Transfers == nil {
		return nil, fmt.Errorf("engine is headless")
	}
	if old, ok := e.scenes[path]; ok {
		delete(e.scenes, path)
		if err := e.systemManager.Scenes.Release(old); err != nil {
			return nil, err
		}
	}

	e.clock.Start()
	res, err := e.systemManager.Scenes.Load(path)
	if err != nil {
		return nil, err
	}
	e.scenes[path] = res
	if err := e.systemManager.Drain(ctx); err != nil {
		return nil, err
	}
	core.LogInfo("uploaded %s in %s", path, e.clock.Lap())
	return res, nil
}

// Metrics returns the staging counters, nil when headless.
func (e *Engine) Metrics() *core.UploadMetrics {
	if e.systemManager.Transfers == nil {
		return nil
	}
	return e.systemManager.Transfers.Metrics()
}

// Run hands every changed asset to onChange until ctx is done. Removed assets
// lose their uploaded scene.
func (e *Engine) Run(ctx context.Context, onChange func(path string) error) error {
	if !e.config.Assets.Watch {
		return fmt.Errorf("asset watching is disabled")
	}
	e.currentStage = EngineStageRunning

	// Editors write a file in several steps; wait for it to settle.
	const settle = 100 * time.Millisecond
	changed := make(map[string]bool)
	timer := time.NewTimer(settle)
	timer.Stop()
	defer timer.Stop()

	am := e.systemManager.Assets
	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-am.Events():
			if !ok {
				return nil
			}
			if ev.Op == assets.AssetRemoved {
				delete(changed, ev.Path)
				e.release(ev.Path)
				continue
			}
			changed[ev.Path] = true
			timer.Reset(settle)

		case err, ok := <-am.Errors():
			if ok {
				core.LogWarn("asset watcher: %s", err)
			}

		case <-timer.C:
			for path := range changed {
				delete(changed, path)
				if _, err := os.Stat(path); err != nil {
					continue
				}
				if err := onChange(path); err != nil {
					core.LogError("reload %s: %s", path, err)
				}
			}
		}
	}
}

func (e *Engine) release(path string) {
	res, ok := e.scenes[path]
	if !ok {
		return
	}
	delete(e.scenes, path)
	if err := e.systemManager.Scenes.Release(res); err != nil {
		core.LogError("release %s: %s", path, err)
	}
}

func (e *Engine) Shutdown() error {
	e.currentStage = EngineStageShuttingDown
	var err error
	if e.systemManager != nil {
		err = e.systemManager.Shutdown()
	}
	e.destroyContext()
	e.currentStage = EngineStageUninitialized
	return err
}

func (e *Engine) destroyContext() {
	if e.context != nil {
		e.context.Destroy()
		e.context = nil
	}
}
