package packing

import (
	"errors"
	"io"

	"github.com/spaghettifunk/vkstage/engine/containers"
	"github.com/spaghettifunk/vkstage/engine/core"
	"github.com/spaghettifunk/vkstage/engine/math"

	vk "github.com/goki/vulkan"
)

const opRead = "read"

// Reader executes a plan against the asset's source buffers.
type Reader struct {
	// Sources are indexed by buffer index.
	Sources []*Source
	// Progress, when set, is called after every read with the number of
	// destination bytes written so far and the plan size.
	Progress func(done, total int)

	scratch []byte
}

// NewReader creates a Reader over the given sources.
func NewReader(sources []*Source) *Reader {
	return &Reader{Sources: sources}
}

// Read fills dst, which must hold at least plan.Size bytes, and then
// generates tangents for every draw call that asked for them.
func (r *Reader) Read(plan *Plan, dst []byte) error {
	if len(dst) < plan.Size {
		err := core.NewAssetError(core.ErrDataIntegrity, opRead, "destination holds %d bytes, plan needs %d", len(dst), plan.Size)
		core.LogError("%s", err)
		return err
	}

	done := 0
	for _, read := range plan.Reads {
		if err := r.execute(read, dst); err != nil {
			core.LogError("%s", err)
			return err
		}
		done += read.ElementSize * read.Count
		if r.Progress != nil {
			r.Progress(done, plan.Size)
		}
	}

	for _, dc := range plan.DrawCalls {
		if !dc.GenerateTangents {
			continue
		}
		if err := generateTangents(dc, dst); err != nil {
			core.LogError("%s", err)
			return err
		}
	}
	return nil
}

func (r *Reader) execute(read BufferRead, dst []byte) error {
	if read.DestOffset+read.DestSpan() > len(dst) {
		return core.NewAssetError(core.ErrDataIntegrity, opRead, "read ends at %d past the %d byte destination", read.DestOffset+read.DestSpan(), len(dst))
	}

	if read.Generated {
		for i := 0; i < read.Count; i++ {
			clear(dst[read.DestOffset+i*read.DestStride : read.DestOffset+i*read.DestStride+read.ElementSize])
		}
		return nil
	}

	if read.Buffer < 0 || read.Buffer >= len(r.Sources) || r.Sources[read.Buffer] == nil {
		return core.NewAssetError(core.ErrDataIntegrity, opRead, "no source for buffer").WithBuffer(read.Buffer)
	}
	src := r.Sources[read.Buffer]

	span := read.SourceSpan()
	if int64(read.SourceOffset+span) > src.Extent() {
		return core.NewAssetError(core.ErrTruncatedSource, opRead,
			"read of %d bytes at %d exceeds %s (%d bytes)", span, read.SourceOffset, src.Name, src.Extent()).WithBuffer(read.Buffer)
	}

	// Tightly packed on both ends: copy straight into place.
	if read.SourceStride == read.ElementSize && read.DestStride == read.ElementSize {
		return wrapSourceErr(src.readAt(dst[read.DestOffset:read.DestOffset+span], int64(read.SourceOffset)), read, src)
	}

	if cap(r.scratch) < span {
		r.scratch = make([]byte, span)
	}
	buf := r.scratch[:span]
	if err := src.readAt(buf, int64(read.SourceOffset)); err != nil {
		return wrapSourceErr(err, read, src)
	}
	for i := 0; i < read.Count; i++ {
		s := i * read.SourceStride
		d := read.DestOffset + i*read.DestStride
		copy(dst[d:d+read.ElementSize], buf[s:s+read.ElementSize])
	}
	return nil
}

func wrapSourceErr(err error, read BufferRead, src *Source) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return core.NewAssetError(core.ErrTruncatedSource, opRead, "%s ended before offset %d", src.Name, read.SourceOffset+read.SourceSpan()).WithBuffer(read.Buffer)
	}
	return core.NewAssetError(core.ErrUnknown, opRead, "%s: %v", src.Name, err).WithBuffer(read.Buffer)
}

// generateTangents runs the tangent generator over the interleaved vertex
// data a draw call was packed into.
func generateTangents(dc DrawCall, dst []byte) error {
	fail := func(kind error, format string, args ...interface{}) error {
		return core.NewAssetError(kind, opRead, format, args...).At(dc.Mesh, dc.Primitive)
	}
	if dc.IndexType != vk.IndexTypeUint16 {
		return fail(core.ErrUnsupportedIndexWidth, "tangent generation needs 16-bit indices")
	}

	indices, err := containers.NewStridedView[uint16](dst, dc.IndexOffset, 2, dc.IndexCount)
	if err != nil {
		return fail(core.ErrDataIntegrity, "%v", err)
	}
	positions, err := containers.NewStridedView[math.Vec3](dst, dc.PositionOffset, dc.VertexStride, dc.VertexCount)
	if err != nil {
		return fail(core.ErrDataIntegrity, "%v", err)
	}
	normals, err := containers.NewStridedView[math.Vec3](dst, dc.NormalOffset, dc.VertexStride, dc.VertexCount)
	if err != nil {
		return fail(core.ErrDataIntegrity, "%v", err)
	}
	texcoords, err := containers.NewStridedView[math.Vec2](dst, dc.TexcoordOffset, dc.VertexStride, dc.VertexCount)
	if err != nil {
		return fail(core.ErrDataIntegrity, "%v", err)
	}
	tangents, err := containers.NewStridedView[math.Vec4](dst, dc.TangentOffset, dc.VertexStride, dc.VertexCount)
	if err != nil {
		return fail(core.ErrDataIntegrity, "%v", err)
	}

	inconsistent, err := math.GenerateTangents(indices, positions, normals, texcoords, tangents)
	if err != nil {
		var ae *core.AssetError
		if errors.As(err, &ae) {
			ae.At(dc.Mesh, dc.Primitive)
		}
		return err
	}
	if inconsistent > 0 {
		core.LogWarn("mesh %d primitive %d: %d inconsistent UVs", dc.Mesh, dc.Primitive, inconsistent)
	}
	return nil
}
