package packing

import (
	"cmp"

	"github.com/spaghettifunk/vkstage/engine/assets/scene"
	"github.com/spaghettifunk/vkstage/engine/containers"
	"github.com/spaghettifunk/vkstage/engine/core"
	"golang.org/x/exp/slices"
)

const opPlan = "plan"

type planner struct {
	doc        *scene.Document
	reads      []BufferRead
	attributes *containers.DedupTable[PipelineAttribute]
	bindings   *containers.DedupTable[PipelineBinding]
	pipelines  *containers.DedupTable[Pipeline]
	drawCalls  []DrawCall
	cursor     int
}

// field is one interleaved vertex attribute of a primitive being planned.
type field struct {
	name     string
	accessor int
	offset   int
	size     int
}

// NewPlan walks every primitive of every mesh in document order and computes
// where its index and vertex data land in one flat asset buffer.
func NewPlan(doc *scene.Document) (*Plan, error) {
	p := &planner{
		doc: doc,
		attributes: containers.NewDedupTable(func(a, b PipelineAttribute) bool {
			return a == b
		}),
		bindings: containers.NewDedupTable(func(a, b PipelineBinding) bool {
			return a.Stride == b.Stride && slices.Equal(a.Attributes, b.Attributes)
		}),
		pipelines: containers.NewDedupTable(func(a, b Pipeline) bool {
			return a.Topology == b.Topology && slices.Equal(a.Bindings, b.Bindings)
		}),
	}

	for m, mesh := range doc.Meshes {
		for i, prim := range mesh.Primitives {
			if err := p.planPrimitive(m, i, prim); err != nil {
				core.LogError("%s", err)
				return nil, err
			}
		}
	}

	// Sequential consumption per source; generated spans have no source.
	slices.SortStableFunc(p.reads, func(a, b BufferRead) int {
		if a.Generated != b.Generated {
			if a.Generated {
				return 1
			}
			return -1
		}
		if c := cmp.Compare(a.Buffer, b.Buffer); c != 0 {
			return c
		}
		return cmp.Compare(a.SourceOffset, b.SourceOffset)
	})

	plan := &Plan{
		Reads:      p.reads,
		Attributes: p.attributes.Items(),
		Bindings:   p.bindings.Items(),
		Pipelines:  p.pipelines.Items(),
		DrawCalls:  p.drawCalls,
		Size:       p.cursor,
	}
	core.LogDebug("planned %d draw calls, %d reads, %d bytes (%d attributes, %d bindings, %d pipelines)",
		len(plan.DrawCalls), len(plan.Reads), plan.Size, len(plan.Attributes), len(plan.Bindings), len(plan.Pipelines))
	return plan, nil
}

func (p *planner) planPrimitive(meshIndex, primIndex int, prim scene.Primitive) error {
	fail := func(kind error, format string, args ...interface{}) *core.AssetError {
		return core.NewAssetError(kind, opPlan, format, args...).At(meshIndex, primIndex)
	}

	if prim.Indices < 0 {
		return fail(core.ErrDataIntegrity, "primitive is not indexed")
	}
	if _, ok := prim.Attributes[scene.AttributePosition]; !ok {
		return fail(core.ErrDataIntegrity, "primitive has no POSITION attribute")
	}

	topology, ok := Topology(prim.Mode)
	if !ok {
		return fail(core.ErrUnsupportedLayout, "primitive mode %d has no device topology", prim.Mode)
	}

	dc := DrawCall{
		Topology:  topology,
		Material:  prim.Material,
		Mesh:      meshIndex,
		Primitive: primIndex,
	}

	// Indices.
	idx, err := p.accessor(prim.Indices)
	if err != nil {
		return err.At(meshIndex, primIndex)
	}
	indexType, ok := IndexType(idx.ComponentType)
	if !ok || idx.Type != scene.TypeScalar {
		return fail(core.ErrUnsupportedFormat, "index component %d shape %s", idx.ComponentType, idx.Type).WithAccessor(prim.Indices)
	}
	view := p.doc.BufferViews[idx.BufferView]
	if view.ByteStride != 0 {
		return fail(core.ErrUnsupportedLayout, "index buffer view %d has stride %d", idx.BufferView, view.ByteStride).WithAccessor(prim.Indices)
	}
	indexRead, err := p.sourceRead(prim.Indices)
	if err != nil {
		return err.At(meshIndex, primIndex)
	}
	indexRead.DestOffset = p.cursor
	indexRead.DestStride = indexRead.ElementSize
	p.reads = append(p.reads, indexRead)

	dc.IndexOffset = p.cursor
	dc.IndexType = indexType
	dc.IndexCount = idx.Count
	p.cursor += indexRead.ElementSize * idx.Count

	// Vertex attributes, interleaved in a fixed order.
	position, err := p.accessor(prim.Attributes[scene.AttributePosition])
	if err != nil {
		return err.At(meshIndex, primIndex)
	}
	vertexCount := position.Count
	var fields []field
	var attrs []int
	stride := 0
	for _, attr := range attributeOrder {
		a, ok := prim.Attributes[attr.name]
		if !ok {
			continue
		}
		acc, err := p.accessor(a)
		if err != nil {
			return err.At(meshIndex, primIndex)
		}
		format, ok := VertexFormat(acc.ComponentType, acc.Type)
		if !ok {
			return fail(core.ErrUnsupportedFormat, "%s component %d shape %s", attr.name, acc.ComponentType, acc.Type).WithAccessor(a)
		}
		if acc.Count != vertexCount {
			return fail(core.ErrDataIntegrity, "%s has %d elements, POSITION has %d", attr.name, acc.Count, vertexCount).WithAccessor(a)
		}
		fields = append(fields, field{name: attr.name, accessor: a, offset: stride, size: acc.ElementSize()})
		attrs = append(attrs, p.attributes.Insert(PipelineAttribute{
			Location: attr.location,
			Format:   format,
			Offset:   uint32(stride),
		}))
		stride += acc.ElementSize()
	}

	tangentOffset := -1
	if needsTangents(prim) {
		// The generator walks independent triangles.
		if prim.Mode != scene.ModeTriangles {
			return fail(core.ErrUnsupportedLayout, "tangent generation needs a triangle list, primitive mode is %d", prim.Mode)
		}
		if err := p.checkTangentInputs(prim); err != nil {
			return err.At(meshIndex, primIndex)
		}
		tangentOffset = stride
		attrs = append(attrs, p.attributes.Insert(PipelineAttribute{
			Location: tangentLocation,
			Format:   vertexFormats[formatKey{scene.ComponentFloat, scene.TypeVec4}],
			Offset:   uint32(stride),
		}))
		stride += tangentSize
	}

	vertexBase := p.cursor
	for _, f := range fields {
		read, err := p.sourceRead(f.accessor)
		if err != nil {
			return err.At(meshIndex, primIndex)
		}
		read.DestOffset = vertexBase + f.offset
		read.DestStride = stride
		p.reads = append(p.reads, read)

		switch f.name {
		case scene.AttributePosition:
			dc.PositionOffset = read.DestOffset
		case scene.AttributeNormal:
			dc.NormalOffset = read.DestOffset
		case scene.AttributeTexcoord0:
			dc.TexcoordOffset = read.DestOffset
		}
	}
	if tangentOffset >= 0 {
		dc.GenerateTangents = true
		dc.TangentOffset = vertexBase + tangentOffset
		p.reads = append(p.reads, BufferRead{
			Buffer:      core.NoIndex,
			DestOffset:  dc.TangentOffset,
			DestStride:  stride,
			ElementSize: tangentSize,
			Count:       vertexCount,
			Generated:   true,
		})
	}

	slices.Sort(attrs)
	binding := p.bindings.Insert(PipelineBinding{Stride: uint32(stride), Attributes: attrs})
	dc.Pipeline = p.pipelines.Insert(Pipeline{Topology: topology, Bindings: []int{binding}})
	dc.BindingOffsets = []int{vertexBase}
	dc.VertexCount = vertexCount
	dc.VertexStride = stride

	p.cursor += stride * vertexCount
	p.drawCalls = append(p.drawCalls, dc)
	return nil
}

// needsTangents is the only condition under which tangents are synthesized.
func needsTangents(prim scene.Primitive) bool {
	_, hasTangent := prim.Attributes[scene.AttributeTangent]
	_, hasPosition := prim.Attributes[scene.AttributePosition]
	_, hasNormal := prim.Attributes[scene.AttributeNormal]
	_, hasTexcoord := prim.Attributes[scene.AttributeTexcoord0]
	return !hasTangent && hasPosition && hasNormal && hasTexcoord
}

// checkTangentInputs makes sure the generator can address the inputs as
// float vectors.
func (p *planner) checkTangentInputs(prim scene.Primitive) *core.AssetError {
	want := map[string]scene.AccessorType{
		scene.AttributePosition:  scene.TypeVec3,
		scene.AttributeNormal:    scene.TypeVec3,
		scene.AttributeTexcoord0: scene.TypeVec2,
	}
	for _, attr := range attributeOrder {
		shape, ok := want[attr.name]
		if !ok {
			continue
		}
		a := prim.Attributes[attr.name]
		acc := p.doc.Accessors[a]
		if acc.ComponentType != scene.ComponentFloat || acc.Type != shape {
			return core.NewAssetError(core.ErrUnsupportedFormat, opPlan,
				"tangent generation needs float %s %s, got component %d shape %s", shape, attr.name, acc.ComponentType, acc.Type).WithAccessor(a)
		}
	}
	return nil
}

// accessor validates an accessor reference and the buffer view it reads.
func (p *planner) accessor(index int) (scene.Accessor, *core.AssetError) {
	if index < 0 || index >= len(p.doc.Accessors) {
		return scene.Accessor{}, core.NewAssetError(core.ErrDataIntegrity, opPlan, "accessor %d does not exist", index).WithAccessor(index)
	}
	acc := p.doc.Accessors[index]
	if acc.ElementSize() == 0 {
		return acc, core.NewAssetError(core.ErrUnsupportedFormat, opPlan, "component %d shape %s", acc.ComponentType, acc.Type).WithAccessor(index)
	}
	if acc.BufferView < 0 || acc.BufferView >= len(p.doc.BufferViews) {
		return acc, core.NewAssetError(core.ErrDataIntegrity, opPlan, "buffer view %d does not exist", acc.BufferView).WithAccessor(index)
	}
	if acc.Count < 0 || acc.ByteOffset < 0 {
		return acc, core.NewAssetError(core.ErrDataIntegrity, opPlan, "negative count or offset").WithAccessor(index)
	}
	return acc, nil
}

// sourceRead builds the source half of a read for an accessor, checking that
// it stays inside its view and the view inside its buffer.
func (p *planner) sourceRead(index int) (BufferRead, *core.AssetError) {
	acc := p.doc.Accessors[index]
	view := p.doc.BufferViews[acc.BufferView]
	if view.Buffer < 0 || view.Buffer >= len(p.doc.Buffers) {
		return BufferRead{}, core.NewAssetError(core.ErrDataIntegrity, opPlan, "buffer %d does not exist", view.Buffer).WithAccessor(index).WithBuffer(view.Buffer)
	}

	elementSize := acc.ElementSize()
	read := BufferRead{
		Buffer:       view.Buffer,
		SourceOffset: view.ByteOffset + acc.ByteOffset,
		SourceStride: max(elementSize, view.ByteStride),
		ElementSize:  elementSize,
		Count:        acc.Count,
	}

	if acc.ByteOffset+read.SourceSpan() > view.ByteLength {
		return BufferRead{}, core.NewAssetError(core.ErrTruncatedSource, opPlan,
			"accessor spans %d bytes at offset %d of a %d byte view", read.SourceSpan(), acc.ByteOffset, view.ByteLength).WithAccessor(index).WithBuffer(view.Buffer)
	}
	if buffer := p.doc.Buffers[view.Buffer]; view.ByteOffset+view.ByteLength > buffer.ByteLength {
		return BufferRead{}, core.NewAssetError(core.ErrTruncatedSource, opPlan,
			"view ends at %d past a %d byte buffer", view.ByteOffset+view.ByteLength, buffer.ByteLength).WithAccessor(index).WithBuffer(view.Buffer)
	}
	return read, nil
}
