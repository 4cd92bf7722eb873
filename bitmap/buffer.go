package bitmap

import (
	"errors"
	"fmt"
	"sync/atomic"
	"unsafe"

	"github.com/gogpu/compose"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
)

// Buffer errors.
var (
	// ErrInvalidSize is returned when a buffer or bitmap is created with a
	// negative or zero size.
	ErrInvalidSize = errors.New("bitmap: invalid size")

	// ErrFormatMismatch is returned by CopySubregion when the two bitmaps
	// differ in more than premultiplication.
	ErrFormatMismatch = errors.New("bitmap: formats differ")

	// ErrRegionOutOfBounds is returned when a copy region does not fit in
	// one of the bitmaps.
	ErrRegionOutOfBounds = errors.New("bitmap: region out of bounds")
)

// Access describes how mapped or bound memory will be used.
type Access uint8

const (
	// AccessRead maps memory for reading.
	AccessRead Access = 1 << iota

	// AccessWrite maps memory for writing.
	AccessWrite

	// AccessReadWrite maps memory for both.
	AccessReadWrite = AccessRead | AccessWrite
)

// Hints are advisory flags for Map and Bind.
type Hints uint8

const (
	// HintDiscard tells the implementation the previous contents will be
	// overwritten entirely.
	HintDiscard Hints = 1 << iota
)

// Target is the pixel transfer direction a buffer is bound to.
type Target uint8

const (
	// TargetNone means the buffer is not bound.
	TargetNone Target = iota

	// TargetUnpack binds a buffer as the source of an upload to a texture.
	TargetUnpack

	// TargetPack binds a buffer as the destination of a texture download.
	TargetPack
)

// String returns the target name.
func (t Target) String() string {
	switch t {
	case TargetNone:
		return "none"
	case TargetUnpack:
		return "unpack"
	case TargetPack:
		return "pack"
	default:
		return fmt.Sprintf("Target(%d)", uint8(t))
	}
}

// PixelBuffer is a reference counted GPU buffer that pixel data can be
// transferred through. Bitmaps created with NewFromBuffer or NewWithSize
// address it by byte offset.
//
// Several bitmap views may map the same buffer; the HAL mapping is
// established by the first Map and released by the last Unmap.
type PixelBuffer struct {
	device hal.Device
	raw    hal.Buffer
	size   int

	mapCount  int
	mapped    []byte
	target    Target
	direction Target

	refs atomic.Int32
}

// Usages of the two kinds of pixel buffer. A mappable GPU buffer pairs
// MapWrite only with CopySrc and MapRead only with CopyDst.
const (
	uploadBufferUsage   = gputypes.BufferUsageMapWrite | gputypes.BufferUsageCopySrc
	readbackBufferUsage = gputypes.BufferUsageMapRead | gputypes.BufferUsageCopyDst
)

// NewPixelBuffer allocates a GPU buffer of size bytes that the CPU fills
// and a texture upload reads (TargetUnpack). The returned buffer holds
// one reference.
func NewPixelBuffer(ctx *compose.Context, size int) (*PixelBuffer, error) {
	return newPixelBuffer(ctx, size, TargetUnpack)
}

// NewReadbackBuffer allocates a GPU buffer of size bytes that a texture
// download writes (TargetPack) and the CPU then reads.
func NewReadbackBuffer(ctx *compose.Context, size int) (*PixelBuffer, error) {
	return newPixelBuffer(ctx, size, TargetPack)
}

func newPixelBuffer(ctx *compose.Context, size int, direction Target) (*PixelBuffer, error) {
	if size <= 0 {
		return nil, compose.WrapError(compose.DomainBuffer, "create", compose.ErrUnsupported,
			fmt.Errorf("%w: %d bytes", ErrInvalidSize, size))
	}
	usage, label := uploadBufferUsage, "compose-pixel-buffer"
	if direction == TargetPack {
		usage, label = readbackBufferUsage, "compose-readback-buffer"
	}
	raw, err := ctx.Device().CreateBuffer(&hal.BufferDescriptor{
		Label: label,
		Size:  uint64(size),
		Usage: usage,
	})
	if err != nil {
		return nil, compose.WrapError(compose.DomainBuffer, "create", compose.HALErrorKind(err), err)
	}
	b := &PixelBuffer{device: ctx.Device(), raw: raw, size: size, direction: direction}
	b.refs.Store(1)
	return b, nil
}

// Raw returns the HAL buffer.
func (b *PixelBuffer) Raw() hal.Buffer { return b.raw }

// Size returns the buffer size in bytes.
func (b *PixelBuffer) Size() int { return b.size }

// Direction returns the only transfer target the buffer can be bound to.
func (b *PixelBuffer) Direction() Target { return b.direction }

// Target returns the transfer target the buffer is bound to.
func (b *PixelBuffer) Target() Target { return b.target }

// IsMapped reports whether any view currently has the buffer mapped.
func (b *PixelBuffer) IsMapped() bool { return b.mapCount > 0 }

// Map returns the whole buffer contents for CPU access. Each Map must be
// paired with an Unmap. A buffer bound to a transfer target cannot be mapped.
func (b *PixelBuffer) Map(access Access, hints Hints) ([]byte, error) {
	if b.target != TargetNone {
		panic("bitmap: map of a pixel buffer bound to " + b.target.String())
	}
	if b.mapCount > 0 {
		b.mapCount++
		return b.mapped, nil
	}
	m, err := b.device.MapBuffer(b.raw, 0, uint64(b.size))
	if err != nil {
		return nil, compose.WrapError(compose.DomainBuffer, "map", compose.HALErrorKind(err), err)
	}
	b.mapped = unsafe.Slice((*byte)(m.Ptr), b.size)
	b.mapCount = 1
	return b.mapped, nil
}

// Unmap releases one mapping obtained from Map.
func (b *PixelBuffer) Unmap() {
	if b.mapCount == 0 {
		panic("bitmap: unmap of a pixel buffer that is not mapped")
	}
	b.mapCount--
	if b.mapCount > 0 {
		return
	}
	b.mapped = nil
	if err := b.device.UnmapBuffer(b.raw); err != nil {
		compose.Logger().Warn("bitmap: unmap pixel buffer", "err", err)
	}
}

func (b *PixelBuffer) bind(target Target) {
	if b.target != TargetNone {
		panic("bitmap: pixel buffer already bound to " + b.target.String())
	}
	if b.mapCount > 0 {
		panic("bitmap: bind of a mapped pixel buffer")
	}
	b.target = target
}

func (b *PixelBuffer) unbind() {
	if b.target == TargetNone {
		panic("bitmap: unbind of a pixel buffer that is not bound")
	}
	b.target = TargetNone
}

// Ref adds a reference and returns b.
func (b *PixelBuffer) Ref() *PixelBuffer {
	b.refs.Add(1)
	return b
}

// Release drops a reference. The HAL buffer is destroyed with the last one.
func (b *PixelBuffer) Release() {
	n := b.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic("bitmap: pixel buffer released too many times")
	}
	if b.mapCount > 0 || b.target != TargetNone {
		panic("bitmap: pixel buffer released while mapped or bound")
	}
	b.device.DestroyBuffer(b.raw)
	b.raw = nil
}
