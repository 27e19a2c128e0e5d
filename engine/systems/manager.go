package systems

import (
	"context"
	"errors"
	"time"

	"github.com/spaghettifunk/vkstage/engine/assets"
	"github.com/spaghettifunk/vkstage/engine/assets/loaders"
	"github.com/spaghettifunk/vkstage/engine/core"
	"github.com/spaghettifunk/vkstage/engine/renderer/vulkan"
)

type SystemManager struct {
	Jobs      *JobSystem
	Assets    *assets.AssetManager
	Transfers *vulkan.TransferManager
	Scenes    *SceneSystem

	collectInterval time.Duration
}

// NewSystemManager wires the systems together. A nil driver gives a
// headless manager that can only prepare scenes.
func NewSystemManager(cfg *core.Config, driver vulkan.Driver, progress func(done, total int)) (*SystemManager, error) {
	js, err := NewJobSystem(cfg.Jobs.Workers, cfg.Jobs.QueueSize)
	if err != nil {
		return nil, err
	}
	sm := &SystemManager{
		Jobs:            js,
		Assets:          assets.NewAssetManager(),
		collectInterval: cfg.Transfer.CollectInterval.Duration,
	}

	if driver != nil {
		sm.Transfers, err = vulkan.NewTransferManager(driver, vulkan.WithFenceTimeout(cfg.Transfer.FenceTimeout.Duration))
		if err != nil {
			js.Shutdown()
			return nil, err
		}
	}

	sm.Scenes, err = NewSceneSystem(SceneSystemConfig{Progress: progress}, sm.Assets, &loaders.ImageLoader{}, js, driver, sm.Transfers)
	if err != nil {
		sm.Shutdown()
		return nil, err
	}
	return sm, nil
}

// Drain collects finished transfers every collect interval until none is
// pending or ctx is done.
func (sm *SystemManager) Drain(ctx context.Context) error {
	if sm.Transfers == nil {
		return nil
	}
	interval := sm.collectInterval
	if interval <= 0 {
		interval = time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := sm.Transfers.CollectGarbage()
		if err != nil {
			return err
		}
		if n > 0 {
			core.LogDebug("reclaimed %d transfers, %d pending", n, sm.Transfers.Pending())
		}
		if sm.Transfers.Pending() == 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Shutdown releases every scene before the transfer manager and stops the
// job workers last.
func (sm *SystemManager) Shutdown() error {
	var errs []error
	if sm.Scenes != nil {
		errs = append(errs, sm.Scenes.Shutdown())
	}
	if sm.Transfers != nil {
		errs = append(errs, sm.Transfers.Destroy())
	}
	if err := sm.Assets.Close(); err != nil {
		core.LogDebug("%s", err)
	}
	errs = append(errs, sm.Jobs.Shutdown())
	return errors.Join(errs...)
}
