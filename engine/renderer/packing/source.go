package packing

import (
	"bytes"
	"io"
)

// Source is one backing buffer of an asset: an embedded binary chunk or an
// external file. Extent is the declared size; reads past it fail even when
// the stream holds more bytes.
type Source struct {
	Name   string
	r      io.ReadSeeker
	extent int64
	// pos is where the next read starts, -1 until the first seek.
	pos int64
}

// NewSource wraps a seekable stream whose first extent bytes are the buffer.
func NewSource(name string, r io.ReadSeeker, extent int64) *Source {
	return &Source{Name: name, r: r, extent: extent, pos: -1}
}

// NewBytesSource wraps an in-memory buffer.
func NewBytesSource(name string, data []byte) *Source {
	return NewSource(name, bytes.NewReader(data), int64(len(data)))
}

// Extent returns the declared size of the source.
func (s *Source) Extent() int64 {
	return s.extent
}

// Close closes the underlying stream when it is closable.
func (s *Source) Close() error {
	if c, ok := s.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// readAt fills buf from offset, seeking only when offset is not where the
// previous read ended.
func (s *Source) readAt(buf []byte, offset int64) error {
	if s.pos != offset {
		if _, err := s.r.Seek(offset, io.SeekStart); err != nil {
			s.pos = -1
			return err
		}
		s.pos = offset
	}
	n, err := io.ReadFull(s.r, buf)
	s.pos += int64(n)
	return err
}
