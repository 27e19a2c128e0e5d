package containers

import (
	"fmt"
	"unsafe"
)

// StridedView addresses elements of type T laid out every stride bytes in a
// byte slice, starting at an offset. It is how interleaved vertex attributes
// are read and written in place. T must be a fixed-size value type made of
// plain numbers; data is interpreted in host byte order, which is little
// endian on every platform Vulkan runs on.
type StridedView[T any] struct {
	data   []byte
	offset int
	stride int
	count  int
}

// NewStridedView creates a view over count elements. A stride of zero means
// the elements are tightly packed.
func NewStridedView[T any](data []byte, offset, stride, count int) (StridedView[T], error) {
	size := elementSize[T]()
	if stride == 0 {
		stride = size
	}
	if offset < 0 || count < 0 || stride < size {
		return StridedView[T]{}, fmt.Errorf("invalid strided view: offset=%d stride=%d count=%d element=%d", offset, stride, count, size)
	}
	if count > 0 && offset+(count-1)*stride+size > len(data) {
		return StridedView[T]{}, fmt.Errorf("strided view of %d elements at offset %d stride %d exceeds %d bytes", count, offset, stride, len(data))
	}
	return StridedView[T]{data: data, offset: offset, stride: stride, count: count}, nil
}

func elementSize[T any]() int {
	var v T
	return int(unsafe.Sizeof(v))
}

// Len returns the number of addressable elements.
func (v StridedView[T]) Len() int {
	return v.count
}

// Stride returns the distance in bytes between two elements.
func (v StridedView[T]) Stride() int {
	return v.stride
}

func (v StridedView[T]) ptr(i int) *T {
	if i < 0 || i >= v.count {
		panic(fmt.Sprintf("strided view index %d out of range [0,%d)", i, v.count))
	}
	return (*T)(unsafe.Pointer(&v.data[v.offset+i*v.stride]))
}

// At returns the element at index i.
func (v StridedView[T]) At(i int) T {
	return *v.ptr(i)
}

// Set stores value at index i.
func (v StridedView[T]) Set(i int, value T) {
	*v.ptr(i) = value
}
