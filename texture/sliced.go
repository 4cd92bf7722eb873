package texture

import (
	"fmt"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/pixel"
)

// Sliced is a texture larger than the device limit, stored as a grid of
// 2D textures. Slices are laid out row by row; every slice except those
// in the last column and row has the maximum texture size.
type Sliced struct {
	width  int
	height int
	format pixel.Format

	cols   int
	rows   int
	slices []slice
}

type slice struct {
	x, y int
	tex  *Texture2D
}

// NewSliced creates an uninitialized texture split into slices no larger
// than ctx.MaxTextureSize(). A texture that fits gets a single slice.
func NewSliced(ctx *compose.Context, width, height int, format pixel.Format) (*Sliced, error) {
	if width <= 0 || height <= 0 {
		return nil, compose.WrapError(compose.DomainTexture, "create", compose.ErrUnsupported,
			fmt.Errorf("%w: %dx%d", bitmap.ErrInvalidSize, width, height))
	}
	limit := ctx.MaxTextureSize()
	if limit <= 0 {
		limit = max(width, height)
	}
	s := &Sliced{
		width:  width,
		height: height,
		format: pixel.InternalFormat(format),
		cols:   (width + limit - 1) / limit,
		rows:   (height + limit - 1) / limit,
	}
	for y := 0; y < height; y += limit {
		for x := 0; x < width; x += limit {
			tex, err := NewTexture2D(ctx, min(limit, width-x), min(limit, height-y), format)
			if err != nil {
				s.release()
				return nil, err
			}
			s.slices = append(s.slices, slice{x: x, y: y, tex: tex})
		}
	}
	return s, nil
}

func (s *Sliced) kind() Kind { return KindSliced }

// Width returns the width in pixels.
func (s *Sliced) Width() int { return s.width }

// Height returns the height in pixels.
func (s *Sliced) Height() int { return s.height }

// Format returns the internal format.
func (s *Sliced) Format() pixel.Format { return s.format }

// Grid returns the number of slice columns and rows.
func (s *Sliced) Grid() (cols, rows int) { return s.cols, s.rows }

// Slice returns the slice at column col and row row and the position of
// its top-left pixel in the sliced texture.
func (s *Sliced) Slice(col, row int) (tex *Texture2D, x, y int) {
	sl := s.slices[row*s.cols+col]
	return sl.tex, sl.x, sl.y
}

func (s *Sliced) setRegion(srcX, srcY, dstX, dstY, width, height, level int, bmp *bitmap.Bitmap) error {
	for _, sl := range s.slices {
		x0 := max(dstX, sl.x)
		y0 := max(dstY, sl.y)
		x1 := min(dstX+width, sl.x+sl.tex.width)
		y1 := min(dstY+height, sl.y+sl.tex.height)
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		err := sl.tex.setRegion(srcX+x0-dstX, srcY+y0-dstY, x0-sl.x, y0-sl.y, x1-x0, y1-y0, level, bmp)
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *Sliced) readInto(dst *bitmap.Bitmap) error {
	for _, sl := range s.slices {
		if err := sl.tex.readInto(0, 0, dst, sl.x, sl.y, sl.tex.width, sl.tex.height); err != nil {
			return err
		}
	}
	return nil
}

// forEach maps the normalized rectangle onto the slices it covers. A
// reversed range on either axis is passed through reversed.
func (s *Sliced) forEach(tx0, ty0, tx1, ty1 float32, fn SubTextureFunc) {
	flipX, flipY := tx1 < tx0, ty1 < ty0
	if flipX {
		tx0, tx1 = tx1, tx0
	}
	if flipY {
		ty0, ty1 = ty1, ty0
	}
	w, h := float32(s.width), float32(s.height)
	vx0, vy0, vx1, vy1 := tx0*w, ty0*h, tx1*w, ty1*h

	for _, sl := range s.slices {
		sx0, sy0 := float32(sl.x), float32(sl.y)
		sx1, sy1 := sx0+float32(sl.tex.width), sy0+float32(sl.tex.height)
		x0, y0 := max(vx0, sx0), max(vy0, sy0)
		x1, y1 := min(vx1, sx1), min(vy1, sy1)
		if x1 <= x0 || y1 <= y0 {
			continue
		}
		sw, sh := float32(sl.tex.width), float32(sl.tex.height)
		sub := [4]float32{(x0 - sx0) / sw, (y0 - sy0) / sh, (x1 - sx0) / sw, (y1 - sy0) / sh}
		virt := [4]float32{x0 / w, y0 / h, x1 / w, y1 / h}
		if flipX {
			sub[0], sub[2] = sub[2], sub[0]
			virt[0], virt[2] = virt[2], virt[0]
		}
		if flipY {
			sub[1], sub[3] = sub[3], sub[1]
			virt[1], virt[3] = virt[3], virt[1]
		}
		fn(sl.tex, sub, virt)
	}
}

func (s *Sliced) release() {
	for _, sl := range s.slices {
		sl.tex.release()
	}
	s.slices = nil
}
