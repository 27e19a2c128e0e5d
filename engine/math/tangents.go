package math

import (
	"github.com/chewxy/math32"
	"github.com/spaghettifunk/vkstage/engine/containers"
	"github.com/spaghettifunk/vkstage/engine/core"
)

// Triangles whose doubled UV area is below this are ignored: smaller than
// half a texel at 1024x1024.
const minUVArea float32 = 1.0 / (1 << 20)

// GenerateTangents computes a per-vertex tangent for every vertex referenced
// by a triangle list. Each triangle corner contributes its UV-aligned tangent
// projected onto the vertex normal plane, weighted by the corner angle. The
// w component carries the bitangent sign. Unreferenced tangents are left
// untouched.
//
// It returns how many corners disagreed with the handedness already recorded
// for their vertex. A non-zero count is not an error.
func GenerateTangents(
	indices containers.StridedView[uint16],
	positions containers.StridedView[Vec3],
	normals containers.StridedView[Vec3],
	texcoords containers.StridedView[Vec2],
	tangents containers.StridedView[Vec4],
) (int, error) {
	n := indices.Len()
	if n%3 != 0 {
		return 0, core.NewAssetError(core.ErrDataIntegrity, "tangents", "index count %d is not a multiple of 3", n)
	}
	for l := 0; l < n; l++ {
		v := int(indices.At(l))
		if v >= positions.Len() || v >= normals.Len() || v >= texcoords.Len() || v >= tangents.Len() {
			return 0, core.NewAssetError(core.ErrDataIntegrity, "tangents", "index %d references vertex %d past the end of the vertex data", l, v)
		}
	}

	for l := 0; l < n; l++ {
		tangents.Set(int(indices.At(l)), Vec4{})
	}

	inconsistent := 0
	for l := 0; l < n; l++ {
		base := l / 3 * 3
		i := int(indices.At(l))
		j := int(indices.At((l+1)%3 + base))
		k := int(indices.At((l+2)%3 + base))

		normal := normals.At(i)
		v1 := positions.At(j).Sub(positions.At(i))
		v2 := positions.At(k).Sub(positions.At(i))
		t1 := texcoords.At(j).Sub(texcoords.At(i))
		t2 := texcoords.At(k).Sub(texcoords.At(i))

		area := t1.X*t2.Y - t1.Y*t2.X
		if math32.Abs(area) < minUVArea {
			continue
		}
		flip := float32(1)
		if area < 0 {
			flip = -1
		}

		tangent := tangents.At(i)
		if tangent.W != 0 && tangent.W != -flip {
			inconsistent++
		}
		tangent.W = -flip

		v1 = v1.Sub(normal.MulScalar(v1.Dot(normal)))
		v2 = v2.Sub(normal.MulScalar(v2.Dot(normal)))
		s := v1.MulScalar(t2.Y).Sub(v2.MulScalar(t1.Y)).MulScalar(flip).Normalized()

		lengths := v1.Length() * v2.Length()
		if lengths > 0 {
			angle := math32.Acos(Clamp(v1.Dot(v2)/lengths, -1, 1))
			tangent.X += s.X * angle
			tangent.Y += s.Y * angle
			tangent.Z += s.Z * angle
		}
		tangents.Set(i, tangent)
	}

	for l := 0; l < n; l++ {
		v := int(indices.At(l))
		t := tangents.At(v)
		tangents.Set(v, NewVec3FromVec4(t).Normalized().ToVec4(t.W))
	}

	return inconsistent, nil
}
