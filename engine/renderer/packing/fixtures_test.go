package packing

import (
	"bytes"
	"encoding/binary"
	"io"
	"testing"

	"github.com/spaghettifunk/vkstage/engine/assets/scene"
	"github.com/stretchr/testify/require"
)

// builder appends tightly packed views to a single buffer and records
// accessors over them.
type builder struct {
	t   *testing.T
	buf bytes.Buffer
	doc *scene.Document
}

func newBuilder(t *testing.T) *builder {
	return &builder{t: t, doc: &scene.Document{Buffers: []scene.Buffer{{}}, Scene: -1}}
}

// view appends values and returns the index of a view over them.
func (b *builder) view(stride int, values interface{}) int {
	b.t.Helper()
	offset := b.buf.Len()
	require.NoError(b.t, binary.Write(&b.buf, binary.LittleEndian, values))
	b.doc.BufferViews = append(b.doc.BufferViews, scene.BufferView{
		Buffer:     0,
		ByteOffset: offset,
		ByteLength: b.buf.Len() - offset,
		ByteStride: stride,
	})
	return len(b.doc.BufferViews) - 1
}

func (b *builder) accessor(view int, component scene.ComponentType, shape scene.AccessorType, count, offset int) int {
	b.doc.Accessors = append(b.doc.Accessors, scene.Accessor{
		ComponentType: component,
		Type:          shape,
		Count:         count,
		ByteOffset:    offset,
		BufferView:    view,
	})
	return len(b.doc.Accessors) - 1
}

func (b *builder) primitive(indices int, attributes map[string]int) {
	b.primitiveMode(indices, attributes, scene.ModeTriangles)
}

func (b *builder) primitiveMode(indices int, attributes map[string]int, mode int) {
	b.doc.Meshes = append(b.doc.Meshes, scene.Mesh{
		Primitives: []scene.Primitive{{Attributes: attributes, Indices: indices, Material: -1, Mode: mode}},
	})
}

func (b *builder) build() (*scene.Document, []byte) {
	data := b.buf.Bytes()
	b.doc.Buffers[0].ByteLength = len(data)
	return b.doc, data
}

var (
	quadPositions = []float32{0, 0, 0, 1, 0, 0, 1, 1, 0, 0, 1, 0}
	quadNormals   = []float32{0, 0, 1, 0, 0, 1, 0, 0, 1, 0, 0, 1}
	quadUVs       = []float32{0, 0, 1, 0, 1, 1, 0, 1}
	quadIndices   = []uint16{0, 1, 2, 2, 3, 0}
)

// quadDocument is a unit quad with position, normal and uv but no tangent.
func quadDocument(t *testing.T) (*scene.Document, []byte) {
	b := newBuilder(t)
	idx := b.accessor(b.view(0, quadIndices), scene.ComponentUnsignedShort, scene.TypeScalar, 6, 0)
	pos := b.accessor(b.view(0, quadPositions), scene.ComponentFloat, scene.TypeVec3, 4, 0)
	nrm := b.accessor(b.view(0, quadNormals), scene.ComponentFloat, scene.TypeVec3, 4, 0)
	uv := b.accessor(b.view(0, quadUVs), scene.ComponentFloat, scene.TypeVec2, 4, 0)
	b.primitive(idx, map[string]int{
		scene.AttributePosition:  pos,
		scene.AttributeNormal:    nrm,
		scene.AttributeTexcoord0: uv,
	})
	return b.build()
}

// interleavedDocument holds two meshes sharing one interleaved
// position+normal view, with 32-bit indices and no texcoords.
func interleavedDocument(t *testing.T) (*scene.Document, []byte) {
	b := newBuilder(t)
	idx := b.accessor(b.view(0, []uint32{0, 1, 2}), scene.ComponentUnsignedInt, scene.TypeScalar, 3, 0)
	vertices := b.view(24, []float32{
		0, 0, 0, 0, 0, 1,
		1, 0, 0, 0, 0, 1,
		0, 1, 0, 0, 0, 1,
	})
	pos := b.accessor(vertices, scene.ComponentFloat, scene.TypeVec3, 3, 0)
	nrm := b.accessor(vertices, scene.ComponentFloat, scene.TypeVec3, 3, 12)
	attrs := map[string]int{scene.AttributePosition: pos, scene.AttributeNormal: nrm}
	b.primitive(idx, attrs)
	b.primitive(idx, attrs)
	return b.build()
}

// countingSeeker records how often the reader seeks.
type countingSeeker struct {
	io.ReadSeeker
	seeks int
}

func (c *countingSeeker) Seek(offset int64, whence int) (int64, error) {
	c.seeks++
	return c.ReadSeeker.Seek(offset, whence)
}
