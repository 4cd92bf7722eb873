// Package bitmap provides a 2D pixel array in a specific format with one
// of four backing stores: memory the bitmap owns, caller owned memory, a
// region of a PixelBuffer, or another bitmap it shares storage with.
//
// CPU access goes through Map/Unmap and GPU transfers through Bind/Unbind.
// Both are strict protocols: mapping a mapped bitmap, unmapping one that
// is not mapped and releasing one that is mapped or bound all panic.
package bitmap

import (
	"fmt"
	"math"
	"sync/atomic"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/pixel"
)

// backing selects where a bitmap's pixels live.
type backing uint8

const (
	backingOwned backing = iota
	backingForeign
	backingBuffer
	backingShared
)

// maxAllocBytes bounds CPU allocations made for bitmaps.
const maxAllocBytes = 1 << 34

// Bitmap is a reference counted 2D array of pixels.
//
// A Bitmap is used from a single goroutine. Only the reference count is
// safe for concurrent use.
type Bitmap struct {
	width     int
	height    int
	rowstride int
	format    pixel.Format

	backing backing
	data    []byte       // backingOwned, backingForeign
	buffer  *PixelBuffer // backingBuffer
	offset  int          // backingBuffer
	shared  *Bitmap      // backingShared

	mapped bool
	bound  bool

	// boundMapping is set while Bind degraded to a CPU mapping.
	boundMapping bool

	refs atomic.Int32
}

func newBitmap(width, height int, format pixel.Format, rowstride int) *Bitmap {
	if !format.Valid() {
		panic(fmt.Sprintf("bitmap: invalid pixel format %v", format))
	}
	if rowstride == 0 {
		rowstride = width * pixel.BytesPerPixel(format)
	}
	b := &Bitmap{
		width:     width,
		height:    height,
		rowstride: rowstride,
		format:    format,
	}
	b.refs.Store(1)
	return b
}

// NewForData wraps caller owned memory. A rowstride of 0 means rows are
// tightly packed. The size of data is not validated; the caller keeps it
// alive for the lifetime of the bitmap.
func NewForData(width, height int, format pixel.Format, rowstride int, data []byte) *Bitmap {
	b := newBitmap(width, height, format, rowstride)
	b.backing = backingForeign
	b.data = data
	return b
}

// NewWithMallocBuffer allocates storage for a width x height bitmap with
// rows padded to 4 bytes. The memory is not guaranteed to be zeroed.
func NewWithMallocBuffer(width, height int, format pixel.Format) (b *Bitmap, err error) {
	if width < 0 || height < 0 {
		return nil, compose.WrapError(compose.DomainBitmap, "allocate", compose.ErrOutOfMemory,
			fmt.Errorf("%w: %dx%d", ErrInvalidSize, width, height))
	}
	bpp := pixel.BytesPerPixel(format)
	rowstride := (int64(width)*int64(bpp) + 3) &^ 3
	size := rowstride * int64(height)
	if rowstride > math.MaxInt32 || size > maxAllocBytes {
		return nil, compose.NewError(compose.DomainBitmap, "allocate", compose.ErrOutOfMemory,
			fmt.Sprintf("%dx%d %v bitmap is too large", width, height, format))
	}

	defer func() {
		if r := recover(); r != nil {
			b, err = nil, compose.NewError(compose.DomainBitmap, "allocate", compose.ErrOutOfMemory,
				fmt.Sprint(r))
		}
	}()
	data := make([]byte, size)

	b = newBitmap(width, height, format, int(rowstride))
	b.backing = backingOwned
	b.data = data
	return b, nil
}

// NewShared returns a view over the storage of other with its own format
// and geometry. The view holds a reference on other.
func NewShared(other *Bitmap, format pixel.Format, width, height, rowstride int) *Bitmap {
	b := newBitmap(width, height, format, rowstride)
	b.backing = backingShared
	b.shared = other.Ref()
	return b
}

// NewFromBuffer returns a bitmap whose pixels start offset bytes into
// buf. The bitmap holds a reference on buf.
func NewFromBuffer(buf *PixelBuffer, format pixel.Format, width, height, rowstride, offset int) *Bitmap {
	b := newBitmap(width, height, format, rowstride)
	b.backing = backingBuffer
	b.buffer = buf.Ref()
	b.offset = offset
	return b
}

// NewWithSize allocates a PixelBuffer on ctx sized for a tightly packed
// width x height bitmap and returns a bitmap over it.
func NewWithSize(ctx *compose.Context, width, height int, format pixel.Format) (*Bitmap, error) {
	if format == pixel.FormatAny {
		panic("bitmap: NewWithSize with FormatAny")
	}
	rowstride := width * pixel.BytesPerPixel(format)
	buf, err := NewPixelBuffer(ctx, rowstride*height)
	if err != nil {
		return nil, err
	}
	defer buf.Release()
	return NewFromBuffer(buf, format, width, height, rowstride, 0), nil
}

// Width returns the width in pixels.
func (b *Bitmap) Width() int { return b.width }

// Height returns the height in pixels.
func (b *Bitmap) Height() int { return b.height }

// Rowstride returns the distance in bytes between the starts of two rows.
func (b *Bitmap) Rowstride() int { return b.rowstride }

// Format returns the pixel format.
func (b *Bitmap) Format() pixel.Format { return b.format }

// SetFormat changes how the pixels are interpreted without touching them.
// The new format must have the same storage layout apart from
// premultiplication.
func (b *Bitmap) SetFormat(format pixel.Format) {
	if !pixel.SameLayout(b.format, format) {
		panic(fmt.Sprintf("bitmap: SetFormat from %v to %v changes the layout", b.format, format))
	}
	b.format = format
}

// IsMapped reports whether the bitmap is mapped.
func (b *Bitmap) IsMapped() bool { return b.mapped }

// IsBound reports whether the bitmap is bound.
func (b *Bitmap) IsBound() bool { return b.bound }

// root follows the shared chain to the bitmap that owns storage.
func (b *Bitmap) root() *Bitmap {
	r := b
	for r.backing == backingShared {
		r = r.shared
	}
	return r
}

// Buffer returns the PixelBuffer behind the bitmap, following shared
// views, or nil if the storage is CPU memory. No reference is added.
func (b *Bitmap) Buffer() *PixelBuffer {
	r := b.root()
	if r.backing != backingBuffer {
		return nil
	}
	return r.buffer
}

// mapStorage maps the root storage and returns the bytes starting at the
// first pixel.
func (b *Bitmap) mapStorage(access Access, hints Hints) ([]byte, error) {
	r := b.root()
	switch r.backing {
	case backingBuffer:
		data, err := r.buffer.Map(access, hints)
		if err != nil {
			return nil, err
		}
		if r.offset > len(data) {
			r.buffer.Unmap()
			return nil, compose.NewError(compose.DomainBitmap, "map", compose.ErrUnsupported,
				fmt.Sprintf("offset %d beyond buffer of %d bytes", r.offset, len(data)))
		}
		return data[r.offset:], nil
	default:
		return r.data, nil
	}
}

func (b *Bitmap) unmapStorage() {
	if r := b.root(); r.backing == backingBuffer {
		r.buffer.Unmap()
	}
}

// Map returns the pixel data for CPU access. Row y starts at byte
// y*Rowstride(). Map panics if the bitmap is already mapped or bound.
func (b *Bitmap) Map(access Access, hints Hints) ([]byte, error) {
	if b.mapped {
		panic("bitmap: map of a bitmap that is already mapped")
	}
	if b.bound {
		panic("bitmap: map of a bound bitmap")
	}
	data, err := b.mapStorage(access, hints)
	if err != nil {
		return nil, err
	}
	b.mapped = true
	return data, nil
}

// Unmap ends CPU access started by Map.
func (b *Bitmap) Unmap() {
	if !b.mapped {
		panic("bitmap: unmap of a bitmap that is not mapped")
	}
	b.unmapStorage()
	b.mapped = false
}

// Binding describes pixel storage prepared for a GPU transfer. Exactly
// one of Data and Buffer is set.
type Binding struct {
	// Data is the mapped CPU memory for bitmaps without a PixelBuffer.
	Data []byte

	// Buffer is the bound PixelBuffer and Offset the byte offset of the
	// first pixel in it.
	Buffer *PixelBuffer
	Offset int

	// Target is the transfer direction the buffer was bound for.
	Target Target
}

// Bind prepares the bitmap for a GPU transfer. Buffer backed bitmaps bind
// their buffer to TargetUnpack when access includes reading (an upload
// reads the bitmap) and TargetPack otherwise; a buffer created for the
// other direction fails with compose.ErrUnsupported. All other bitmaps
// are mapped.
func (b *Bitmap) Bind(access Access, hints Hints) (Binding, error) {
	if b.bound {
		panic("bitmap: bind of a bitmap that is already bound")
	}
	if b.mapped {
		panic("bitmap: bind of a mapped bitmap")
	}
	r := b.root()
	if r.backing == backingBuffer {
		target := TargetPack
		if access&AccessRead != 0 {
			target = TargetUnpack
		}
		if d := r.buffer.Direction(); d != target {
			return Binding{}, compose.NewError(compose.DomainBuffer, "bind", compose.ErrUnsupported,
				fmt.Sprintf("%s buffer cannot be bound for %s", d, target))
		}
		r.buffer.bind(target)
		b.bound = true
		return Binding{Buffer: r.buffer, Offset: r.offset, Target: target}, nil
	}

	data, err := b.mapStorage(access, hints)
	if err != nil {
		return Binding{}, err
	}
	b.bound = true
	b.boundMapping = true
	return Binding{Data: data}, nil
}

// Unbind ends a transfer started by Bind.
func (b *Bitmap) Unbind() {
	if !b.bound {
		panic("bitmap: unbind of a bitmap that is not bound")
	}
	if b.boundMapping {
		b.unmapStorage()
		b.boundMapping = false
	} else {
		b.root().buffer.unbind()
	}
	b.bound = false
}

// Ref adds a reference and returns b.
func (b *Bitmap) Ref() *Bitmap {
	b.refs.Add(1)
	return b
}

// Release drops a reference. With the last one the bitmap releases
// exactly one of its owned memory, its buffer reference or its shared
// bitmap reference.
func (b *Bitmap) Release() {
	n := b.refs.Add(-1)
	if n > 0 {
		return
	}
	if n < 0 {
		panic("bitmap: released too many times")
	}
	if b.mapped {
		panic("bitmap: released while mapped")
	}
	if b.bound {
		panic("bitmap: released while bound")
	}
	switch b.backing {
	case backingOwned, backingForeign:
		b.data = nil
	case backingBuffer:
		b.buffer.Release()
		b.buffer = nil
	case backingShared:
		b.shared.Release()
		b.shared = nil
	}
}
