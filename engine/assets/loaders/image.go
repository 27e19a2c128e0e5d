package loaders

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"

	"github.com/h2non/filetype"
	"github.com/spaghettifunk/vkstage/engine/assets/scene"
	"github.com/spaghettifunk/vkstage/engine/core"
	"golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	"golang.org/x/image/tiff"
	"golang.org/x/image/webp"
)

// ImageDecoder turns encoded image bytes into RGBA pixels.
type ImageDecoder interface {
	Decode(data []byte, mimeType string) (scene.Pixels, error)
}

type decodeFunc func(r *bytes.Reader) (image.Image, error)

var decoders = map[string]decodeFunc{
	"image/png":  func(r *bytes.Reader) (image.Image, error) { return png.Decode(r) },
	"image/jpeg": func(r *bytes.Reader) (image.Image, error) { return jpeg.Decode(r) },
	"image/bmp":  func(r *bytes.Reader) (image.Image, error) { return bmp.Decode(r) },
	"image/tiff": func(r *bytes.Reader) (image.Image, error) { return tiff.Decode(r) },
	"image/webp": func(r *bytes.Reader) (image.Image, error) { return webp.Decode(r) },
}

// ImageLoader decodes the image formats glTF assets carry in practice. The
// content is sniffed when the asset declares no MIME type.
type ImageLoader struct{}

func (il *ImageLoader) Decode(data []byte, mimeType string) (scene.Pixels, error) {
	if mimeType == "" {
		kind, err := filetype.Match(data)
		if err != nil || kind == filetype.Unknown {
			return scene.Pixels{}, core.NewAssetError(core.ErrUnsupportedFormat, "decode image", "unrecognized image content")
		}
		mimeType = kind.MIME.Value
	}

	decode, ok := decoders[mimeType]
	if !ok {
		return scene.Pixels{}, core.NewAssetError(core.ErrUnsupportedFormat, "decode image", "unsupported image type %s", mimeType)
	}
	img, err := decode(bytes.NewReader(data))
	if err != nil {
		return scene.Pixels{}, core.NewAssetError(core.ErrUnsupportedFormat, "decode image", "%s: %s", mimeType, err)
	}
	return ToPixels(img), nil
}

// ToPixels converts any image to tightly packed 8-bit RGBA.
func ToPixels(img image.Image) scene.Pixels {
	bounds := img.Bounds()
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Stride != 4*bounds.Dx() || bounds.Min != (image.Point{}) {
		rgba = image.NewRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
		draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	}
	return scene.Pixels{
		Width:  bounds.Dx(),
		Height: bounds.Dy(),
		RGBA:   rgba.Pix,
	}
}

// LoadImages decodes every image of the asset in order.
func LoadImages(asset *Asset, decoder ImageDecoder) ([]scene.Pixels, error) {
	out := make([]scene.Pixels, len(asset.Document.Images))
	for i := range out {
		p, err := DecodeImage(asset, decoder, i)
		if err != nil {
			return nil, err
		}
		out[i] = p
	}
	return out, nil
}

// DecodeImage decodes image i of the asset.
func DecodeImage(asset *Asset, decoder ImageDecoder, i int) (scene.Pixels, error) {
	data, mimeType, err := asset.ImageData(i)
	if err != nil {
		core.LogError("%s", err)
		return scene.Pixels{}, err
	}
	p, err := decoder.Decode(data, mimeType)
	if err != nil {
		core.LogError("image %d: %s", i, err)
		return scene.Pixels{}, err
	}
	return p, nil
}
