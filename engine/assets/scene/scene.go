// Package scene holds the in-memory asset graph the loaders produce and the
// planner consumes. It carries no behaviour beyond a few size helpers.
package scene

// ComponentType is a glTF accessor component type code.
type ComponentType uint32

const (
	ComponentByte          ComponentType = 5120
	ComponentUnsignedByte  ComponentType = 5121
	ComponentShort         ComponentType = 5122
	ComponentUnsignedShort ComponentType = 5123
	ComponentUnsignedInt   ComponentType = 5125
	ComponentFloat         ComponentType = 5126
)

// Size returns the width of one component in bytes, or 0 when unknown.
func (c ComponentType) Size() int {
	switch c {
	case ComponentByte, ComponentUnsignedByte:
		return 1
	case ComponentShort, ComponentUnsignedShort:
		return 2
	case ComponentUnsignedInt, ComponentFloat:
		return 4
	}
	return 0
}

// AccessorType is the element shape of an accessor.
type AccessorType string

const (
	TypeScalar AccessorType = "SCALAR"
	TypeVec2   AccessorType = "VEC2"
	TypeVec3   AccessorType = "VEC3"
	TypeVec4   AccessorType = "VEC4"
	TypeMat2   AccessorType = "MAT2"
	TypeMat3   AccessorType = "MAT3"
	TypeMat4   AccessorType = "MAT4"
)

// Components returns the number of components of the shape, or 0 when
// unknown.
func (t AccessorType) Components() int {
	switch t {
	case TypeScalar:
		return 1
	case TypeVec2:
		return 2
	case TypeVec3:
		return 3
	case TypeVec4, TypeMat2:
		return 4
	case TypeMat3:
		return 9
	case TypeMat4:
		return 16
	}
	return 0
}

// Attribute names the planner understands.
const (
	AttributePosition  = "POSITION"
	AttributeNormal    = "NORMAL"
	AttributeTangent   = "TANGENT"
	AttributeTexcoord0 = "TEXCOORD_0"
	AttributeTexcoord1 = "TEXCOORD_1"
	AttributeColor0    = "COLOR_0"
	AttributeJoints0   = "JOINTS_0"
	AttributeWeights0  = "WEIGHTS_0"
)

type Accessor struct {
	ComponentType ComponentType
	Type          AccessorType
	Count         int
	ByteOffset    int
	BufferView    int
}

// ElementSize returns the packed size of one element in bytes.
func (a Accessor) ElementSize() int {
	return a.ComponentType.Size() * a.Type.Components()
}

type BufferView struct {
	Buffer     int
	ByteOffset int
	ByteLength int
	// ByteStride is zero when elements are tightly packed.
	ByteStride int
	Target     int
}

type Buffer struct {
	ByteLength int
	URI        string
}

// Primitive topologies, as glTF codes them.
const (
	ModePoints = iota
	ModeLines
	ModeLineLoop
	ModeLineStrip
	ModeTriangles
	ModeTriangleStrip
	ModeTriangleFan
)

type Primitive struct {
	Attributes map[string]int
	// Indices is -1 when the primitive is not indexed.
	Indices  int
	Material int
	Mode     int
}

type Mesh struct {
	Name       string
	Primitives []Primitive
}

// Node is one element of the transform hierarchy. Matrix, when set, wins over
// the individual TRS components. Missing components default to identity.
type Node struct {
	Name        string
	Mesh        *int
	Children    []int
	Matrix      *[16]float32
	Translation *[3]float32
	Rotation    *[4]float32
	Scale       *[3]float32
}

type AlphaMode uint32

const (
	AlphaOpaque AlphaMode = iota
	AlphaMask
	AlphaBlend
)

// Material is the subset of metallic-roughness PBR the uniform block carries.
// Texture fields hold texture indices.
type Material struct {
	Name                     string
	BaseColorFactor          [4]float32
	BaseColorTexture         *int
	MetallicFactor           float32
	RoughnessFactor          float32
	MetallicRoughnessTexture *int
	NormalTexture            *int
	NormalScale              float32
	OcclusionTexture         *int
	OcclusionStrength        float32
	EmissiveFactor           [3]float32
	EmissiveTexture          *int
	AlphaMode                AlphaMode
	AlphaCutoff              float32
	DoubleSided              bool
}

// DefaultMaterial returns the values glTF mandates for unset fields.
func DefaultMaterial() Material {
	return Material{
		BaseColorFactor:   [4]float32{1, 1, 1, 1},
		MetallicFactor:    1,
		RoughnessFactor:   1,
		NormalScale:       1,
		OcclusionStrength: 1,
		AlphaCutoff:       0.5,
	}
}

type Texture struct {
	Source int
}

// Image references encoded pixels either through a buffer view or a URI.
type Image struct {
	Name       string
	URI        string
	MimeType   string
	BufferView *int
}

// Pixels is a decoded image in tightly packed 8-bit RGBA.
type Pixels struct {
	Width  int
	Height int
	RGBA   []byte
}

type Scene struct {
	Name  string
	Nodes []int
}

// Document is a whole asset graph. Indices between elements are positions in
// the owning slices.
type Document struct {
	Accessors   []Accessor
	BufferViews []BufferView
	Buffers     []Buffer
	Meshes      []Mesh
	Materials   []Material
	Nodes       []Node
	Scenes      []Scene
	// Scene is the default scene, or -1 to use every scene.
	Scene    int
	Textures []Texture
	Images   []Image
}

// RootScenes returns the scenes whose nodes should be instanced.
func (d *Document) RootScenes() []Scene {
	if d.Scene >= 0 && d.Scene < len(d.Scenes) {
		return d.Scenes[d.Scene : d.Scene+1]
	}
	return d.Scenes
}
