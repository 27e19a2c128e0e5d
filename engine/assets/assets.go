package assets

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spaghettifunk/vkstage/engine/assets/loaders"
	"github.com/spaghettifunk/vkstage/engine/core"
)

type AssetKind int

const (
	AssetKindNone AssetKind = iota
	AssetKindGLTF
	AssetKindGLB
)

func (k AssetKind) String() string {
	switch k {
	case AssetKindGLTF:
		return "gltf"
	case AssetKindGLB:
		return "glb"
	default:
		return "none"
	}
}

type AssetInfo struct {
	Path       string
	Kind       AssetKind
	LastLoaded time.Time
}

type EventOp int

const (
	AssetChanged EventOp = iota
	AssetRemoved
)

// AssetEvent reports a change to an indexed asset file.
type AssetEvent struct {
	Path string
	Kind AssetKind
	Op   EventOp
}

// AssetManager indexes the asset files under a directory, optionally keeps
// the index current with a file watcher, and dispatches loads by file kind.
type AssetManager struct {
	assets  map[string]AssetInfo
	loaders map[AssetKind]Loader

	mutex sync.RWMutex

	done     chan struct{}
	fsnotify *fsnotify.Watcher
	isClosed bool
	events   chan AssetEvent
	errors   chan error
}

func NewAssetManager() *AssetManager {
	gltf := &loaders.GLTFLoader{}
	return &AssetManager{
		assets: make(map[string]AssetInfo),
		loaders: map[AssetKind]Loader{
			AssetKindGLTF: gltf,
			AssetKindGLB:  gltf,
		},
		events: make(chan AssetEvent, 16),
		errors: make(chan error, 1),
		done:   make(chan struct{}),
	}
}

// Initialize indexes assetsDir. With watch set, files created, written or
// removed afterwards are reported on Events.
func (am *AssetManager) Initialize(assetsDir string, watch bool) error {
	if !watch {
		return am.index(assetsDir)
	}

	fsWatch, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	am.fsnotify = fsWatch
	go am.start()

	return am.watchRecursive(assetsDir, false)
}

// Events delivers changes to indexed files while watching.
func (am *AssetManager) Events() <-chan AssetEvent {
	return am.events
}

// Errors delivers watcher failures.
func (am *AssetManager) Errors() <-chan error {
	return am.errors
}

// Assets returns the indexed asset paths in lexical order.
func (am *AssetManager) Assets() []AssetInfo {
	am.mutex.RLock()
	defer am.mutex.RUnlock()

	out := make([]AssetInfo, 0, len(am.assets))
	for _, a := range am.assets {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

// Load parses an asset with the loader registered for its kind.
func (am *AssetManager) Load(path string) (*loaders.Asset, error) {
	kind := determineAssetKind(path)
	loader, ok := am.loaders[kind]
	if !ok {
		return nil, core.NewAssetError(core.ErrUnsupportedFormat, "load", "no loader for %s", path)
	}

	asset, err := loader.Load(path)
	if err != nil {
		return nil, err
	}

	am.mutex.Lock()
	am.assets[path] = AssetInfo{Path: path, Kind: kind, LastLoaded: time.Now()}
	am.mutex.Unlock()
	return asset, nil
}

func (am *AssetManager) Unload(asset *loaders.Asset) error {
	if asset == nil {
		return nil
	}
	loader, ok := am.loaders[determineAssetKind(asset.Path)]
	if !ok {
		return fmt.Errorf("no loader for %s", asset.Path)
	}
	return loader.Unload(asset)
}

// Close stops the watcher. The event channels are closed once it exits.
func (am *AssetManager) Close() error {
	if am.isClosed {
		return errors.New("asset manager already closed")
	}
	am.isClosed = true
	if am.fsnotify == nil {
		close(am.events)
		close(am.errors)
		return nil
	}
	close(am.done)
	return nil
}

func (am *AssetManager) start() {
	for {
		select {
		case e, ok := <-am.fsnotify.Events:
			if !ok {
				return
			}
			s, err := os.Stat(e.Name)
			if err == nil && s.IsDir() {
				if e.Op&fsnotify.Create != 0 {
					if err := am.watchRecursive(e.Name, false); err != nil {
						core.LogWarn("failed to watch %s: %s", e.Name, err)
					}
				}
				continue
			}
			if e.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				if kind := am.handleFileEvent(e.Name); kind != AssetKindNone {
					am.emit(AssetEvent{Path: e.Name, Kind: kind, Op: AssetChanged})
				}
			}
			// A removed path cannot be stat'ed, so it may have been a directory.
			if e.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
				if kind, ok := am.removeAsset(e.Name); ok {
					am.emit(AssetEvent{Path: e.Name, Kind: kind, Op: AssetRemoved})
				}
				am.fsnotify.Remove(e.Name)
			}

		case err, ok := <-am.fsnotify.Errors:
			if !ok {
				return
			}
			core.LogError("%s", err)
			select {
			case am.errors <- err:
			default:
			}

		case <-am.done:
			am.fsnotify.Close()
			close(am.events)
			close(am.errors)
			return
		}
	}
}

func (am *AssetManager) emit(e AssetEvent) {
	select {
	case am.events <- e:
	case <-am.done:
	}
}

// index walks path once without watching.
func (am *AssetManager) index(path string) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			am.handleFileEvent(walkPath)
		}
		return nil
	})
}

// watchRecursive adds all directories under the given one to the watch list.
// Files created before the watch is in place are picked up by the walk.
func (am *AssetManager) watchRecursive(path string, unWatch bool) error {
	return filepath.Walk(path, func(walkPath string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if fi.IsDir() {
			if unWatch {
				return am.fsnotify.Remove(walkPath)
			}
			return am.fsnotify.Add(walkPath)
		}
		am.handleFileEvent(walkPath)
		return nil
	})
}

func (am *AssetManager) handleFileEvent(path string) AssetKind {
	kind := determineAssetKind(path)
	if kind == AssetKindNone {
		return kind
	}

	am.mutex.Lock()
	defer am.mutex.Unlock()
	info := am.assets[path]
	info.Path = path
	info.Kind = kind
	am.assets[path] = info
	return kind
}

func (am *AssetManager) removeAsset(path string) (AssetKind, bool) {
	am.mutex.Lock()
	defer am.mutex.Unlock()

	info, ok := am.assets[path]
	delete(am.assets, path)
	return info.Kind, ok
}

func determineAssetKind(path string) AssetKind {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".gltf":
		return AssetKindGLTF
	case ".glb":
		return AssetKindGLB
	default:
		return AssetKindNone
	}
}
