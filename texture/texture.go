// Package texture implements GPU textures with a common read/write
// interface: plain 2D textures, sliced textures that split an image
// larger than the device limit into a grid of 2D textures, and pixmap
// textures that mirror a damage-tracked window system pixmap.
//
// The set of texture kinds is closed. Operations are package functions
// that dispatch on the concrete kind, so the behavior for each kind
// lives next to its type.
package texture

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/pixel"
)

// Kind identifies the concrete texture type.
type Kind uint8

const (
	// KindPlain2D is a single GPU texture.
	KindPlain2D Kind = iota + 1

	// KindSliced is a grid of 2D textures.
	KindSliced

	// KindPixmap mirrors a window system pixmap.
	KindPixmap
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindPlain2D:
		return "2d"
	case KindSliced:
		return "sliced"
	case KindPixmap:
		return "pixmap"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// Texture is implemented by *Texture2D, *Sliced and *Pixmap only.
type Texture interface {
	Width() int
	Height() int

	// Format returns the internal pixel format.
	Format() pixel.Format

	kind() Kind
}

// KindOf returns the concrete kind of t.
func KindOf(t Texture) Kind { return t.kind() }

// SetRegion uploads the width x height rectangle at (srcX, srcY) of bmp
// to (dstX, dstY) of mip level level. Pixmap textures reject every
// region write with compose.ErrUnsupported.
func SetRegion(t Texture, srcX, srcY, dstX, dstY, width, height, level int, bmp *bitmap.Bitmap) error {
	if p, ok := t.(*Pixmap); ok {
		return p.setRegion()
	}
	if width <= 0 || height <= 0 {
		return nil
	}
	if srcX < 0 || srcY < 0 || srcX+width > bmp.Width() || srcY+height > bmp.Height() {
		return fmt.Errorf("%w: source %dx%d at (%d, %d) in %dx%d bitmap",
			bitmap.ErrRegionOutOfBounds, width, height, srcX, srcY, bmp.Width(), bmp.Height())
	}
	if dstX < 0 || dstY < 0 || dstX+width > t.Width() || dstY+height > t.Height() {
		return fmt.Errorf("%w: destination %dx%d at (%d, %d) in %dx%d texture",
			bitmap.ErrRegionOutOfBounds, width, height, dstX, dstY, t.Width(), t.Height())
	}
	switch tex := t.(type) {
	case *Texture2D:
		return tex.setRegion(srcX, srcY, dstX, dstY, width, height, level, bmp)
	case *Sliced:
		return tex.setRegion(srcX, srcY, dstX, dstY, width, height, level, bmp)
	}
	panic("texture: unknown texture type")
}

// SetRegionData uploads rows of raw pixel data to (dstX, dstY). data
// holds height rows of rowstride bytes in format; a rowstride of 0 means
// tightly packed.
func SetRegionData(t Texture, width, height int, format pixel.Format, rowstride int, data []byte,
	dstX, dstY, level int) error {
	if p, ok := t.(*Pixmap); ok {
		return p.setRegion()
	}
	if width <= 0 || height <= 0 {
		return nil
	}
	if rowstride == 0 {
		rowstride = width * pixel.BytesPerPixel(format)
	}
	if need := (height-1)*rowstride + width*pixel.BytesPerPixel(format); len(data) < need {
		return fmt.Errorf("%w: %d bytes of data, need %d", bitmap.ErrRegionOutOfBounds, len(data), need)
	}
	bmp := bitmap.NewForData(width, height, format, rowstride, data)
	defer bmp.Release()
	return SetRegion(t, 0, 0, dstX, dstY, width, height, level, bmp)
}

// GetData reads the whole texture into dst as format with the given
// rowstride (0 means tightly packed). It returns the number of bytes
// the image needs; when dst is nil or too small nothing is read.
func GetData(t Texture, format pixel.Format, rowstride int, dst []byte) (int, error) {
	if format == pixel.FormatAny {
		format = t.Format()
	}
	bpp := pixel.BytesPerPixel(format)
	if rowstride == 0 {
		rowstride = t.Width() * bpp
	}
	need := rowstride * t.Height()
	if len(dst) < need {
		return need, nil
	}
	dstBmp := bitmap.NewForData(t.Width(), t.Height(), format, rowstride, dst)
	defer dstBmp.Release()

	var err error
	switch tex := t.(type) {
	case *Texture2D:
		err = tex.readInto(0, 0, dstBmp, 0, 0, t.Width(), t.Height())
	case *Sliced:
		err = tex.readInto(dstBmp)
	case *Pixmap:
		err = tex.readInto(format, rowstride, dst)
	default:
		panic("texture: unknown texture type")
	}
	if err != nil {
		return 0, err
	}
	return need, nil
}

// IsSliced reports whether drawing t needs one draw per slice.
func IsSliced(t Texture) bool {
	switch tex := t.(type) {
	case *Texture2D:
		return false
	case *Sliced:
		return len(tex.slices) > 1
	case *Pixmap:
		child, err := tex.child()
		if err != nil {
			return false
		}
		return IsSliced(child)
	}
	panic("texture: unknown texture type")
}

// View returns the view to sample t through, or nil for a texture with
// more than one slice. Callers of sliced textures go through
// ForEachSubTexture instead.
func View(t Texture) hal.TextureView {
	switch tex := t.(type) {
	case *Texture2D:
		return tex.view
	case *Sliced:
		if len(tex.slices) == 1 {
			return tex.slices[0].tex.view
		}
		return nil
	case *Pixmap:
		child, err := tex.child()
		if err != nil {
			compose.Logger().Warn("texture: pixmap has no storage", "err", err)
			return nil
		}
		return View(child)
	}
	panic("texture: unknown texture type")
}

// PrePaint brings t up to date before it is drawn. Only pixmap textures
// have work to do.
func PrePaint(t Texture) {
	if p, ok := t.(*Pixmap); ok {
		p.prePaint()
	}
}

// SubTextureFunc receives one sub texture covering part of a requested
// rectangle. subCoords are texture coordinates in sub; virtCoords are
// the matching part of the request in the parent's coordinate space.
type SubTextureFunc func(sub Texture, subCoords, virtCoords [4]float32)

// ForEachSubTexture splits the texture coordinate rectangle
// (tx0, ty0)-(tx1, ty1) into the pieces backed by individual GPU
// textures. The coordinates must lie within [0, 1].
func ForEachSubTexture(t Texture, tx0, ty0, tx1, ty1 float32, fn SubTextureFunc) {
	switch tex := t.(type) {
	case *Texture2D:
		c := [4]float32{tx0, ty0, tx1, ty1}
		fn(tex, c, c)
	case *Sliced:
		tex.forEach(tx0, ty0, tx1, ty1, fn)
	case *Pixmap:
		child, err := tex.child()
		if err != nil {
			compose.Logger().Warn("texture: pixmap has no storage", "err", err)
			return
		}
		ForEachSubTexture(child, tx0, ty0, tx1, ty1, fn)
	default:
		panic("texture: unknown texture type")
	}
}

// Release frees the GPU resources of t.
func Release(t Texture) {
	switch tex := t.(type) {
	case *Texture2D:
		tex.release()
	case *Sliced:
		tex.release()
	case *Pixmap:
		tex.release()
	default:
		panic("texture: unknown texture type")
	}
}

// New creates an uninitialized texture, sliced when either side exceeds
// the context's maximum texture size.
func New(ctx *compose.Context, width, height int, format pixel.Format) (Texture, error) {
	if fitsSingle(ctx, width, height) {
		return NewTexture2D(ctx, width, height, format)
	}
	return NewSliced(ctx, width, height, format)
}

// NewFromBitmap creates a texture holding a copy of bmp.
func NewFromBitmap(ctx *compose.Context, bmp *bitmap.Bitmap, format pixel.Format) (Texture, error) {
	if format == pixel.FormatAny {
		format = bmp.Format()
	}
	t, err := New(ctx, bmp.Width(), bmp.Height(), format)
	if err != nil {
		return nil, err
	}
	if err := SetRegion(t, 0, 0, 0, 0, bmp.Width(), bmp.Height(), 0, bmp); err != nil {
		Release(t)
		return nil, err
	}
	return t, nil
}

func fitsSingle(ctx *compose.Context, width, height int) bool {
	limit := ctx.MaxTextureSize()
	return limit <= 0 || (width <= limit && height <= limit)
}
