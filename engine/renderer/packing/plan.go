package packing

import (
	vk "github.com/goki/vulkan"
)

// PipelineAttribute describes one vertex input. Equal attributes share a
// table slot.
type PipelineAttribute struct {
	Location uint32
	Format   vk.Format
	Offset   uint32
}

// PipelineBinding is one interleaved vertex buffer binding. Attributes index
// Plan.Attributes and are sorted ascending.
type PipelineBinding struct {
	Stride     uint32
	Attributes []int
}

// Pipeline lists the bindings a draw call reads, by index into
// Plan.Bindings, and how its vertices are assembled.
type Pipeline struct {
	Topology vk.PrimitiveTopology
	Bindings []int
}

// BufferRead copies Count elements of ElementSize bytes from a source buffer
// into the asset buffer. A Generated read has no source: its span is filled
// after the copies.
type BufferRead struct {
	Buffer       int
	SourceOffset int
	SourceStride int
	DestOffset   int
	DestStride   int
	ElementSize  int
	Count        int
	Generated    bool
}

// SourceSpan returns how many source bytes the read covers.
func (r BufferRead) SourceSpan() int {
	if r.Count == 0 {
		return 0
	}
	return (r.Count-1)*r.SourceStride + r.ElementSize
}

// DestSpan returns how many destination bytes the read covers, from
// DestOffset to the end of the last element.
func (r BufferRead) DestSpan() int {
	if r.Count == 0 {
		return 0
	}
	return (r.Count-1)*r.DestStride + r.ElementSize
}

// DrawCall holds what is needed to record one indexed draw of a primitive.
// Offsets are absolute positions in the asset buffer.
type DrawCall struct {
	Pipeline       int
	Topology       vk.PrimitiveTopology
	BindingOffsets []int
	IndexOffset    int
	IndexType      vk.IndexType
	IndexCount     int
	VertexCount    int
	VertexStride   int
	// Material is -1 when the primitive has none.
	Material  int
	Mesh      int
	Primitive int

	GenerateTangents bool
	TangentOffset    int
	PositionOffset   int
	NormalOffset     int
	TexcoordOffset   int
}

// Plan is the complete packing of an asset into one host buffer of Size
// bytes.
type Plan struct {
	Reads      []BufferRead
	Attributes []PipelineAttribute
	Bindings   []PipelineBinding
	Pipelines  []Pipeline
	DrawCalls  []DrawCall
	Size       int
}
