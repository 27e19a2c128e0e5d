package loaders

import (
	"github.com/qmuntal/gltf"
	"github.com/spaghettifunk/vkstage/engine/assets/scene"
	"github.com/spaghettifunk/vkstage/engine/core"
)

var identityMatrix = [16]float64{1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1}

var componentTypes = map[gltf.ComponentType]scene.ComponentType{
	gltf.ComponentByte:   scene.ComponentByte,
	gltf.ComponentUbyte:  scene.ComponentUnsignedByte,
	gltf.ComponentShort:  scene.ComponentShort,
	gltf.ComponentUshort: scene.ComponentUnsignedShort,
	gltf.ComponentUint:   scene.ComponentUnsignedInt,
	gltf.ComponentFloat:  scene.ComponentFloat,
}

var accessorTypes = map[gltf.AccessorType]scene.AccessorType{
	gltf.AccessorScalar: scene.TypeScalar,
	gltf.AccessorVec2:   scene.TypeVec2,
	gltf.AccessorVec3:   scene.TypeVec3,
	gltf.AccessorVec4:   scene.TypeVec4,
	gltf.AccessorMat2:   scene.TypeMat2,
	gltf.AccessorMat3:   scene.TypeMat3,
	gltf.AccessorMat4:   scene.TypeMat4,
}

var primitiveModes = map[gltf.PrimitiveMode]int{
	gltf.PrimitivePoints:        scene.ModePoints,
	gltf.PrimitiveLines:         scene.ModeLines,
	gltf.PrimitiveLineLoop:      scene.ModeLineLoop,
	gltf.PrimitiveLineStrip:     scene.ModeLineStrip,
	gltf.PrimitiveTriangles:     scene.ModeTriangles,
	gltf.PrimitiveTriangleStrip: scene.ModeTriangleStrip,
	gltf.PrimitiveTriangleFan:   scene.ModeTriangleFan,
}

// ConvertDocument maps a decoded glTF document onto the scene graph.
// Features the planner cannot express, like sparse accessors, are rejected.
func ConvertDocument(raw *gltf.Document) (*scene.Document, error) {
	doc := &scene.Document{Scene: -1}
	if raw.Scene != nil {
		doc.Scene = int(*raw.Scene)
	}

	for i, a := range raw.Accessors {
		if a.Sparse != nil {
			return nil, core.NewAssetError(core.ErrUnsupportedLayout, "convert", "sparse accessor").WithAccessor(i)
		}
		ct, ok := componentTypes[a.ComponentType]
		if !ok {
			return nil, core.NewAssetError(core.ErrUnsupportedFormat, "convert", "unknown component type %v", a.ComponentType).WithAccessor(i)
		}
		view := core.NoIndex
		if a.BufferView != nil {
			view = int(*a.BufferView)
		}
		doc.Accessors = append(doc.Accessors, scene.Accessor{
			ComponentType: ct,
			Type:          accessorTypes[a.Type],
			Count:         int(a.Count),
			ByteOffset:    int(a.ByteOffset),
			BufferView:    view,
		})
	}

	for _, v := range raw.BufferViews {
		doc.BufferViews = append(doc.BufferViews, scene.BufferView{
			Buffer:     int(v.Buffer),
			ByteOffset: int(v.ByteOffset),
			ByteLength: int(v.ByteLength),
			ByteStride: int(v.ByteStride),
			Target:     int(v.Target),
		})
	}

	for _, b := range raw.Buffers {
		doc.Buffers = append(doc.Buffers, scene.Buffer{ByteLength: int(b.ByteLength), URI: b.URI})
	}

	for _, m := range raw.Meshes {
		mesh := scene.Mesh{Name: m.Name}
		for _, p := range m.Primitives {
			prim := scene.Primitive{
				Attributes: make(map[string]int, len(p.Attributes)),
				Indices:    core.NoIndex,
				Material:   core.NoIndex,
				Mode:       primitiveModes[p.Mode],
			}
			for name, accessor := range p.Attributes {
				prim.Attributes[name] = int(accessor)
			}
			if p.Indices != nil {
				prim.Indices = int(*p.Indices)
			}
			if p.Material != nil {
				prim.Material = int(*p.Material)
			}
			mesh.Primitives = append(mesh.Primitives, prim)
		}
		doc.Meshes = append(doc.Meshes, mesh)
	}

	for _, m := range raw.Materials {
		doc.Materials = append(doc.Materials, convertMaterial(m))
	}

	for _, n := range raw.Nodes {
		doc.Nodes = append(doc.Nodes, convertNode(n))
	}

	for _, s := range raw.Scenes {
		sc := scene.Scene{Name: s.Name}
		for _, n := range s.Nodes {
			sc.Nodes = append(sc.Nodes, int(n))
		}
		doc.Scenes = append(doc.Scenes, sc)
	}

	for _, t := range raw.Textures {
		source := core.NoIndex
		if t.Source != nil {
			source = int(*t.Source)
		}
		doc.Textures = append(doc.Textures, scene.Texture{Source: source})
	}

	for _, img := range raw.Images {
		out := scene.Image{Name: img.Name, URI: img.URI, MimeType: img.MimeType}
		if img.BufferView != nil {
			v := int(*img.BufferView)
			out.BufferView = &v
		}
		doc.Images = append(doc.Images, out)
	}
	return doc, nil
}

func textureIndex(info *gltf.TextureInfo) *int {
	if info == nil {
		return nil
	}
	i := int(info.Index)
	return &i
}

func convertMaterial(m *gltf.Material) scene.Material {
	out := scene.DefaultMaterial()
	out.Name = m.Name

	if pbr := m.PBRMetallicRoughness; pbr != nil {
		if pbr.BaseColorFactor != nil {
			for i, c := range pbr.BaseColorFactor {
				out.BaseColorFactor[i] = float32(c)
			}
		}
		if pbr.MetallicFactor != nil {
			out.MetallicFactor = float32(*pbr.MetallicFactor)
		}
		if pbr.RoughnessFactor != nil {
			out.RoughnessFactor = float32(*pbr.RoughnessFactor)
		}
		out.BaseColorTexture = textureIndex(pbr.BaseColorTexture)
		out.MetallicRoughnessTexture = textureIndex(pbr.MetallicRoughnessTexture)
	}
	if nt := m.NormalTexture; nt != nil {
		if nt.Index != nil {
			i := int(*nt.Index)
			out.NormalTexture = &i
		}
		if nt.Scale != nil {
			out.NormalScale = float32(*nt.Scale)
		}
	}
	if ot := m.OcclusionTexture; ot != nil {
		if ot.Index != nil {
			i := int(*ot.Index)
			out.OcclusionTexture = &i
		}
		if ot.Strength != nil {
			out.OcclusionStrength = float32(*ot.Strength)
		}
	}
	out.EmissiveTexture = textureIndex(m.EmissiveTexture)
	for i, c := range m.EmissiveFactor {
		out.EmissiveFactor[i] = float32(c)
	}

	switch m.AlphaMode {
	case gltf.AlphaMask:
		out.AlphaMode = scene.AlphaMask
	case gltf.AlphaBlend:
		out.AlphaMode = scene.AlphaBlend
	default:
		out.AlphaMode = scene.AlphaOpaque
	}
	if m.AlphaCutoff != nil {
		out.AlphaCutoff = float32(*m.AlphaCutoff)
	}
	out.DoubleSided = m.DoubleSided
	return out
}

// convertNode keeps the matrix only when it is not the identity, otherwise
// the TRS components are carried.
func convertNode(n *gltf.Node) scene.Node {
	out := scene.Node{Name: n.Name}
	if n.Mesh != nil {
		mesh := int(*n.Mesh)
		out.Mesh = &mesh
	}
	for _, c := range n.Children {
		out.Children = append(out.Children, int(c))
	}

	if m := n.MatrixOrDefault(); m != identityMatrix {
		var mat [16]float32
		for i, v := range m {
			mat[i] = float32(v)
		}
		out.Matrix = &mat
		return out
	}

	t := n.TranslationOrDefault()
	r := n.RotationOrDefault()
	s := n.ScaleOrDefault()
	out.Translation = &[3]float32{float32(t[0]), float32(t[1]), float32(t[2])}
	out.Rotation = &[4]float32{float32(r[0]), float32(r[1]), float32(r[2]), float32(r[3])}
	out.Scale = &[3]float32{float32(s[0]), float32(s[1]), float32(s[2])}
	return out
}
