package assets

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spaghettifunk/vkstage/engine/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetermineAssetKind(t *testing.T) {
	tests := []struct {
		path string
		want AssetKind
	}{
		{"scene.gltf", AssetKindGLTF},
		{"dir/Scene.GLTF", AssetKindGLTF},
		{"scene.glb", AssetKindGLB},
		{"texture.png", AssetKindNone},
		{"noext", AssetKindNone},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, determineAssetKind(tt.path))
		})
	}
}

func TestInitializeIndexesAssets(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	for _, name := range []string{"b.glb", "sub/a.gltf", "readme.txt", "sub/tex.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	am := NewAssetManager()
	require.NoError(t, am.Initialize(dir, false))
	defer am.Close()

	infos := am.Assets()
	require.Len(t, infos, 2)
	assert.Equal(t, filepath.Join(dir, "b.glb"), infos[0].Path)
	assert.Equal(t, AssetKindGLB, infos[0].Kind)
	assert.Equal(t, filepath.Join(dir, "sub", "a.gltf"), infos[1].Path)
	assert.Equal(t, AssetKindGLTF, infos[1].Kind)
}

func TestLoadRejectsUnknownKind(t *testing.T) {
	am := NewAssetManager()
	_, err := am.Load("texture.png")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnsupportedFormat))
}

func TestLoadReportsParseFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "broken.gltf")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	am := NewAssetManager()
	_, err := am.Load(path)
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrUnsupportedFormat))
	assert.Empty(t, am.Assets())
}

func TestWatchReportsChanges(t *testing.T) {
	dir := t.TempDir()
	am := NewAssetManager()
	require.NoError(t, am.Initialize(dir, true))
	defer am.Close()

	path := filepath.Join(dir, "new.gltf")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o644))
	e := nextEvent(t, am, AssetChanged)
	assert.Equal(t, path, e.Path)
	assert.Equal(t, AssetKindGLTF, e.Kind)

	require.NoError(t, os.Remove(path))
	e = nextEvent(t, am, AssetRemoved)
	assert.Equal(t, path, e.Path)
	assert.Empty(t, am.Assets())
}

func TestCloseTwice(t *testing.T) {
	am := NewAssetManager()
	require.NoError(t, am.Close())
	assert.Error(t, am.Close())
}

// nextEvent skips duplicate write notifications until an event with op
// arrives.
func nextEvent(t *testing.T, am *AssetManager, op EventOp) AssetEvent {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case e := <-am.Events():
			if e.Op == op {
				return e
			}
		case <-timeout:
			t.Fatalf("no event with op %d", op)
			return AssetEvent{}
		}
	}
}
