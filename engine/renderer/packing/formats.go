package packing

import (
	vk "github.com/goki/vulkan"
	"github.com/spaghettifunk/vkstage/engine/assets/scene"
)

type formatKey struct {
	component scene.ComponentType
	shape     scene.AccessorType
}

var vertexFormats = map[formatKey]vk.Format{
	{scene.ComponentFloat, scene.TypeScalar}: vk.FormatR32Sfloat,
	{scene.ComponentFloat, scene.TypeVec2}:   vk.FormatR32g32Sfloat,
	{scene.ComponentFloat, scene.TypeVec3}:   vk.FormatR32g32b32Sfloat,
	{scene.ComponentFloat, scene.TypeVec4}:   vk.FormatR32g32b32a32Sfloat,

	{scene.ComponentUnsignedShort, scene.TypeScalar}: vk.FormatR16Uint,
	{scene.ComponentUnsignedShort, scene.TypeVec2}:   vk.FormatR16g16Uint,
	{scene.ComponentUnsignedShort, scene.TypeVec3}:   vk.FormatR16g16b16Uint,
	{scene.ComponentUnsignedShort, scene.TypeVec4}:   vk.FormatR16g16b16a16Uint,

	{scene.ComponentUnsignedInt, scene.TypeScalar}: vk.FormatR32Uint,
	{scene.ComponentUnsignedInt, scene.TypeVec2}:   vk.FormatR32g32Uint,
	{scene.ComponentUnsignedInt, scene.TypeVec3}:   vk.FormatR32g32b32Uint,
	{scene.ComponentUnsignedInt, scene.TypeVec4}:   vk.FormatR32g32b32a32Uint,
}

// VertexFormat returns the vertex input format matching an accessor layout.
func VertexFormat(component scene.ComponentType, shape scene.AccessorType) (vk.Format, bool) {
	f, ok := vertexFormats[formatKey{component, shape}]
	return f, ok
}

// IndexType returns the index type for an index accessor component.
func IndexType(component scene.ComponentType) (vk.IndexType, bool) {
	switch component {
	case scene.ComponentUnsignedShort:
		return vk.IndexTypeUint16, true
	case scene.ComponentUnsignedInt:
		return vk.IndexTypeUint32, true
	}
	return 0, false
}

// LINE_LOOP has no Vulkan topology.
var topologies = map[int]vk.PrimitiveTopology{
	scene.ModePoints:        vk.PrimitiveTopologyPointList,
	scene.ModeLines:         vk.PrimitiveTopologyLineList,
	scene.ModeLineStrip:     vk.PrimitiveTopologyLineStrip,
	scene.ModeTriangles:     vk.PrimitiveTopologyTriangleList,
	scene.ModeTriangleStrip: vk.PrimitiveTopologyTriangleStrip,
	scene.ModeTriangleFan:   vk.PrimitiveTopologyTriangleFan,
}

// Topology returns the input assembly topology for a primitive mode.
func Topology(mode int) (vk.PrimitiveTopology, bool) {
	t, ok := topologies[mode]
	return t, ok
}

// Shader input locations, in the order attributes are interleaved.
var attributeOrder = []struct {
	name     string
	location uint32
}{
	{scene.AttributePosition, 0},
	{scene.AttributeNormal, 1},
	{scene.AttributeTangent, 2},
	{scene.AttributeTexcoord0, 3},
	{scene.AttributeTexcoord1, 4},
	{scene.AttributeColor0, 5},
	{scene.AttributeJoints0, 6},
	{scene.AttributeWeights0, 7},
}

const (
	tangentLocation = 2
	tangentSize     = 16
)
