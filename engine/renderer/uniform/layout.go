// Package uniform lays out the shared dynamic uniform buffer: one model
// matrix block per mesh followed by one parameter block per material.
package uniform

import (
	"encoding/binary"
	gomath "math"

	"github.com/spaghettifunk/vkstage/engine/assets/scene"
	"github.com/spaghettifunk/vkstage/engine/core"
	"github.com/spaghettifunk/vkstage/engine/math"
)

const (
	// MeshBlockSize is one mat4 model matrix.
	MeshBlockSize = 64
	// MaterialBlockSize is the packed MaterialBlock.
	MaterialBlockSize = 80
)

// NoTexture marks an absent texture in a material block.
const NoTexture int32 = -1

// AlignedStride rounds size up to a multiple of align, the device's minimum
// uniform buffer offset alignment. An align of zero means no constraint.
func AlignedStride(size, align uint64) uint64 {
	return math.AlignUp(size, align)
}

// Layout holds the block strides and counts of one scene.
type Layout struct {
	MeshStride     uint64
	MaterialStride uint64
	meshes         int
	materials      int
}

// NewLayout sizes the uniform buffer for doc under the given alignment.
func NewLayout(doc *scene.Document, align uint64) *Layout {
	return &Layout{
		MeshStride:     AlignedStride(MeshBlockSize, align),
		MaterialStride: AlignedStride(MaterialBlockSize, align),
		meshes:         len(doc.Meshes),
		materials:      len(doc.Materials),
	}
}

// MeshOffset returns the dynamic offset of mesh i's block.
func (l *Layout) MeshOffset(i int) uint64 {
	return uint64(i) * l.MeshStride
}

// MaterialOffset returns the dynamic offset of material i's block.
func (l *Layout) MaterialOffset(i int) uint64 {
	return uint64(l.meshes)*l.MeshStride + uint64(i)*l.MaterialStride
}

// Size returns the number of bytes the whole buffer needs.
func (l *Layout) Size() uint64 {
	return l.MaterialOffset(l.materials)
}

// MaterialBlock is the std140 parameter block of one material. Texture
// fields hold the texture array layer, or NoTexture.
type MaterialBlock struct {
	BaseColorFactor   [4]float32
	EmissiveFactor    [3]float32
	AlphaCutoff       float32
	MetallicFactor    float32
	RoughnessFactor   float32
	NormalScale       float32
	OcclusionStrength float32

	BaseColorTexture         int32
	MetallicRoughnessTexture int32
	NormalTexture            int32
	OcclusionTexture         int32
	EmissiveTexture          int32
	AlphaMode                uint32
	DoubleSided              uint32
}

// NewMaterialBlock converts a material. Textures resolve to the layer of
// their source image.
func NewMaterialBlock(doc *scene.Document, m scene.Material) MaterialBlock {
	layer := func(texture *int) int32 {
		if texture == nil || *texture < 0 || *texture >= len(doc.Textures) {
			return NoTexture
		}
		return int32(doc.Textures[*texture].Source)
	}
	b := MaterialBlock{
		BaseColorFactor:          m.BaseColorFactor,
		EmissiveFactor:           m.EmissiveFactor,
		AlphaCutoff:              m.AlphaCutoff,
		MetallicFactor:           m.MetallicFactor,
		RoughnessFactor:          m.RoughnessFactor,
		NormalScale:              m.NormalScale,
		OcclusionStrength:        m.OcclusionStrength,
		BaseColorTexture:         layer(m.BaseColorTexture),
		MetallicRoughnessTexture: layer(m.MetallicRoughnessTexture),
		NormalTexture:            layer(m.NormalTexture),
		OcclusionTexture:         layer(m.OcclusionTexture),
		EmissiveTexture:          layer(m.EmissiveTexture),
		AlphaMode:                uint32(m.AlphaMode),
	}
	if m.DoubleSided {
		b.DoubleSided = 1
	}
	return b
}

func (b MaterialBlock) encode(dst []byte) {
	le := binary.LittleEndian
	f := func(off int, v float32) { le.PutUint32(dst[off:], gomath.Float32bits(v)) }

	for i, v := range b.BaseColorFactor {
		f(i*4, v)
	}
	for i, v := range b.EmissiveFactor {
		f(16+i*4, v)
	}
	f(28, b.AlphaCutoff)
	f(32, b.MetallicFactor)
	f(36, b.RoughnessFactor)
	f(40, b.NormalScale)
	f(44, b.OcclusionStrength)
	le.PutUint32(dst[48:], uint32(b.BaseColorTexture))
	le.PutUint32(dst[52:], uint32(b.MetallicRoughnessTexture))
	le.PutUint32(dst[56:], uint32(b.NormalTexture))
	le.PutUint32(dst[60:], uint32(b.OcclusionTexture))
	le.PutUint32(dst[64:], uint32(b.EmissiveTexture))
	le.PutUint32(dst[68:], b.AlphaMode)
	le.PutUint32(dst[72:], b.DoubleSided)
}

// Write zero-fills dst and fills in every mesh and material block. There
// must be one transform per mesh.
func (l *Layout) Write(dst []byte, doc *scene.Document, transforms []math.Mat4) error {
	if uint64(len(dst)) < l.Size() {
		return core.NewAssetError(core.ErrDataIntegrity, "uniforms", "buffer holds %d bytes, layout needs %d", len(dst), l.Size())
	}
	if len(transforms) != l.meshes || len(doc.Materials) != l.materials {
		return core.NewAssetError(core.ErrDataIntegrity, "uniforms", "layout is for %d meshes and %d materials, got %d and %d",
			l.meshes, l.materials, len(transforms), len(doc.Materials))
	}

	clear(dst[:l.Size()])
	for i, m := range transforms {
		off := l.MeshOffset(i)
		for j, v := range m.Data {
			binary.LittleEndian.PutUint32(dst[off+uint64(j)*4:], gomath.Float32bits(v))
		}
	}
	for i, m := range doc.Materials {
		NewMaterialBlock(doc, m).encode(dst[l.MaterialOffset(i):])
	}
	return nil
}
