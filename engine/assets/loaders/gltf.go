package loaders

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"

	"github.com/Masterminds/semver/v3"
	"github.com/qmuntal/gltf"
	"github.com/spaghettifunk/vkstage/engine/assets/scene"
	"github.com/spaghettifunk/vkstage/engine/core"
	"github.com/spaghettifunk/vkstage/engine/renderer/packing"
)

const supportedVersions = ">= 2.0.0, < 3.0.0"

// supportedMinVersion is the newest minVersion an asset may require.
var supportedMinVersion = semver.MustParse("2.0.0")

// Asset is a parsed glTF file: its graph plus the streams backing its
// buffers. Close releases the streams.
type Asset struct {
	Path     string
	Document *scene.Document
	Sources  []*packing.Source

	dir string
	raw *gltf.Document
}

// GLTFLoader reads .gltf and .glb files.
type GLTFLoader struct{}

func (gl *GLTFLoader) Load(path string) (*Asset, error) {
	raw, err := gltf.Open(path)
	if err != nil {
		e := core.NewAssetError(core.ErrUnsupportedFormat, "load", "%s: %s", path, err)
		core.LogError("%s", e)
		return nil, e
	}
	if err := CheckVersion(raw.Asset.Version, raw.Asset.MinVersion); err != nil {
		core.LogError("%s: %s", path, err)
		return nil, err
	}

	doc, err := ConvertDocument(raw)
	if err != nil {
		core.LogError("%s: %s", path, err)
		return nil, err
	}

	asset := &Asset{
		Path:     path,
		Document: doc,
		dir:      filepath.Dir(path),
		raw:      raw,
	}
	if err := asset.openSources(); err != nil {
		asset.Close()
		return nil, err
	}
	core.LogInfo("loaded %s: %d meshes, %d materials, %d images, %d buffers",
		filepath.Base(path), len(doc.Meshes), len(doc.Materials), len(doc.Images), len(doc.Buffers))
	return asset, nil
}

func (gl *GLTFLoader) Unload(asset *Asset) error {
	return asset.Close()
}

// CheckVersion accepts glTF 2.x assets whose minVersion this loader meets.
func CheckVersion(version, minVersion string) error {
	constraint, err := semver.NewConstraint(supportedVersions)
	if err != nil {
		return err
	}
	v, err := semver.NewVersion(version)
	if err != nil {
		return core.NewAssetError(core.ErrUnsupportedFormat, "load", "invalid asset version %q", version)
	}
	if !constraint.Check(v) {
		return core.NewAssetError(core.ErrUnsupportedFormat, "load", "asset version %s is not %s", v, supportedVersions)
	}
	if minVersion != "" {
		mv, err := semver.NewVersion(minVersion)
		if err != nil {
			return core.NewAssetError(core.ErrUnsupportedFormat, "load", "invalid asset minVersion %q", minVersion)
		}
		if mv.GreaterThan(supportedMinVersion) {
			return core.NewAssetError(core.ErrUnsupportedFormat, "load", "asset requires glTF %s", mv)
		}
	}
	return nil
}

// openSources streams external buffers from disk and serves embedded ones
// from memory.
func (a *Asset) openSources() error {
	imageBuffers := map[int]bool{}
	for _, img := range a.Document.Images {
		if img.BufferView != nil && *img.BufferView < len(a.Document.BufferViews) {
			imageBuffers[a.Document.BufferViews[*img.BufferView].Buffer] = true
		}
	}

	a.Sources = make([]*packing.Source, len(a.raw.Buffers))
	for i, b := range a.raw.Buffers {
		name := fmt.Sprintf("%s#buffer%d", filepath.Base(a.Path), i)
		if b.URI == "" || b.IsEmbeddedResource() {
			a.Sources[i] = packing.NewBytesSource(name, b.Data)
			continue
		}

		p, err := a.resolve(b.URI)
		if err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			e := core.NewAssetError(core.ErrTruncatedSource, "load", "%s", err).WithBuffer(i)
			core.LogError("%s", e)
			return e
		}
		a.Sources[i] = packing.NewSource(p, f, int64(b.ByteLength))
		if !imageBuffers[i] {
			// Streamed from the file from now on.
			b.Data = nil
		}
	}
	return nil
}

func (a *Asset) resolve(uri string) (string, error) {
	p, err := url.PathUnescape(uri)
	if err != nil {
		return "", core.NewAssetError(core.ErrUnsupportedFormat, "load", "invalid uri %q", uri)
	}
	return filepath.Join(a.dir, filepath.FromSlash(p)), nil
}

// ImageData returns the encoded bytes of image i and its declared MIME type,
// which may be empty.
func (a *Asset) ImageData(i int) ([]byte, string, error) {
	if i < 0 || i >= len(a.raw.Images) {
		return nil, "", core.NewAssetError(core.ErrDataIntegrity, "image", "image %d out of range", i)
	}
	img := a.raw.Images[i]
	switch {
	case img.BufferView != nil:
		view := a.raw.BufferViews[*img.BufferView]
		data := a.raw.Buffers[view.Buffer].Data
		start, end := int(view.ByteOffset), int(view.ByteOffset)+int(view.ByteLength)
		if end > len(data) {
			return nil, "", core.NewAssetError(core.ErrTruncatedSource, "image", "image %d runs past its buffer", i).WithBuffer(int(view.Buffer))
		}
		return data[start:end], img.MimeType, nil
	case img.IsEmbeddedResource():
		data, err := img.MarshalData()
		if err != nil {
			return nil, "", core.NewAssetError(core.ErrUnsupportedFormat, "image", "image %d: %s", i, err)
		}
		return data, img.MimeType, nil
	case img.URI != "":
		p, err := a.resolve(img.URI)
		if err != nil {
			return nil, "", err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, "", core.NewAssetError(core.ErrTruncatedSource, "image", "image %d: %s", i, err)
		}
		return data, img.MimeType, nil
	}
	return nil, "", core.NewAssetError(core.ErrDataIntegrity, "image", "image %d has no data", i)
}

func (a *Asset) Close() error {
	var first error
	for _, s := range a.Sources {
		if s == nil {
			continue
		}
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.Sources = nil
	return first
}
