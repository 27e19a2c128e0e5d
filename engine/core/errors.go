package core

import (
	"errors"
	"fmt"
	"strings"
)

// Error kinds raised while planning, reading and uploading an asset. None of
// them is recoverable: the current load or upload is aborted.
var (
	ErrUnsupportedFormat     = errors.New("unsupported format")
	ErrUnsupportedLayout     = errors.New("unsupported layout")
	ErrUnsupportedIndexWidth = errors.New("unsupported index width")
	ErrTruncatedSource       = errors.New("truncated source")
	ErrDataIntegrity         = errors.New("data integrity error")
	ErrOutOfDeviceMemory     = errors.New("out of device memory")
	ErrOutOfHostMemory       = errors.New("out of host memory")
	ErrDeviceLost            = errors.New("device lost")
	ErrUnknown               = errors.New("unknown")
)

// NoIndex marks an AssetError location field that does not apply.
const NoIndex = -1

// AssetError carries the kind of failure plus where in the asset graph it
// happened, so malformed files can be diagnosed.
type AssetError struct {
	Kind      error
	Op        string
	Mesh      int
	Primitive int
	Accessor  int
	Buffer    int
	Detail    string
}

// NewAssetError returns an AssetError with every location unset.
func NewAssetError(kind error, op string, format string, args ...interface{}) *AssetError {
	return &AssetError{
		Kind:      kind,
		Op:        op,
		Mesh:      NoIndex,
		Primitive: NoIndex,
		Accessor:  NoIndex,
		Buffer:    NoIndex,
		Detail:    fmt.Sprintf(format, args...),
	}
}

// At sets the mesh and primitive the error refers to.
func (e *AssetError) At(mesh, primitive int) *AssetError {
	e.Mesh = mesh
	e.Primitive = primitive
	return e
}

// WithAccessor sets the accessor the error refers to.
func (e *AssetError) WithAccessor(accessor int) *AssetError {
	e.Accessor = accessor
	return e
}

// WithBuffer sets the source buffer the error refers to.
func (e *AssetError) WithBuffer(buffer int) *AssetError {
	e.Buffer = buffer
	return e
}

func (e *AssetError) Error() string {
	var sb strings.Builder
	sb.WriteString(e.Op)
	sb.WriteString(": ")
	sb.WriteString(e.Kind.Error())
	if e.Mesh != NoIndex {
		fmt.Fprintf(&sb, " mesh=%d", e.Mesh)
	}
	if e.Primitive != NoIndex {
		fmt.Fprintf(&sb, " primitive=%d", e.Primitive)
	}
	if e.Accessor != NoIndex {
		fmt.Fprintf(&sb, " accessor=%d", e.Accessor)
	}
	if e.Buffer != NoIndex {
		fmt.Fprintf(&sb, " buffer=%d", e.Buffer)
	}
	if e.Detail != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Detail)
	}
	return sb.String()
}

func (e *AssetError) Unwrap() error {
	return e.Kind
}
