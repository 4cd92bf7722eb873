package bitmap

import (
	"fmt"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/internal/parallel"
	"github.com/gogpu/compose/pixel"
)

// Copy returns a new bitmap with its own storage holding a copy of src.
func Copy(src *Bitmap) (*Bitmap, error) {
	dst, err := NewWithMallocBuffer(src.width, src.height, src.format)
	if err != nil {
		return nil, err
	}
	if err := CopySubregion(src, dst, 0, 0, 0, 0, src.width, src.height); err != nil {
		dst.Release()
		return nil, err
	}
	return dst, nil
}

// CopySubregion copies a width x height block from src at (srcX, srcY)
// to dst at (dstX, dstY). The formats must match apart from
// premultiplication; no conversion is done. Bytes of dst outside the
// block are left untouched.
func CopySubregion(src, dst *Bitmap, srcX, srcY, dstX, dstY, width, height int) error {
	if !pixel.SameLayout(src.format, dst.format) {
		return fmt.Errorf("%w: %v and %v", ErrFormatMismatch, src.format, dst.format)
	}
	if !regionFits(src, srcX, srcY, width, height) || !regionFits(dst, dstX, dstY, width, height) {
		return fmt.Errorf("%w: %dx%d block", ErrRegionOutOfBounds, width, height)
	}
	if width == 0 || height == 0 {
		return nil
	}

	bpp := pixel.BytesPerPixel(src.format)
	rowBytes := width * bpp

	if src == dst {
		data, err := src.Map(AccessReadWrite, 0)
		if err != nil {
			return err
		}
		defer src.Unmap()
		copyRows(data, data, src.rowstride, src.rowstride, srcX*bpp, srcY, dstX*bpp, dstY, rowBytes, height)
		return nil
	}

	srcData, err := src.Map(AccessRead, 0)
	if err != nil {
		return err
	}
	defer src.Unmap()

	var hints Hints
	if dstX == 0 && dstY == 0 && width == dst.width && height == dst.height {
		hints = HintDiscard
	}
	dstData, err := dst.Map(AccessWrite, hints)
	if err != nil {
		return err
	}
	defer dst.Unmap()

	copyRows(dstData, srcData, dst.rowstride, src.rowstride, srcX*bpp, srcY, dstX*bpp, dstY, rowBytes, height)
	return nil
}

// copyRows copies height rows of rowBytes bytes. Rows are walked bottom
// up when the destination lies below the source in the same memory.
func copyRows(dst, src []byte, dstStride, srcStride, srcOff, srcY, dstOff, dstY, rowBytes, height int) {
	if dstY > srcY {
		for y := height - 1; y >= 0; y-- {
			s := (srcY+y)*srcStride + srcOff
			d := (dstY+y)*dstStride + dstOff
			copy(dst[d:d+rowBytes], src[s:s+rowBytes])
		}
		return
	}
	for y := 0; y < height; y++ {
		s := (srcY+y)*srcStride + srcOff
		d := (dstY+y)*dstStride + dstOff
		copy(dst[d:d+rowBytes], src[s:s+rowBytes])
	}
}

func regionFits(b *Bitmap, x, y, w, h int) bool {
	return x >= 0 && y >= 0 && w >= 0 && h >= 0 && x+w <= b.width && y+h <= b.height
}

// ConvertPremultStatus premultiplies or unpremultiplies the bitmap in
// place so that its premultiplication matches format, then adopts that
// status. Formats that cannot carry premultiplied alpha are left alone.
func (b *Bitmap) ConvertPremultStatus(format pixel.Format) error {
	from := b.format
	var premultiply bool
	switch {
	case from.IsPremultiplied() && !format.IsPremultiplied() && pixel.CanHavePremult(format):
		premultiply = false
	case !from.IsPremultiplied() && format.IsPremultiplied() && pixel.CanHavePremult(from):
		premultiply = true
	default:
		return nil
	}

	data, err := b.Map(AccessReadWrite, 0)
	if err != nil {
		return err
	}
	parallel.Rows(b.width, b.height, func(y0, y1 int) {
		tmp := make([]byte, b.width*4)
		for y := y0; y < y1; y++ {
			row := data[y*b.rowstride:]
			if premultiply {
				pixel.PremultiplyRow(from, row, b.width, tmp)
			} else {
				pixel.UnpremultiplyRow(from, row, b.width, tmp)
			}
		}
	})
	b.Unmap()

	if premultiply {
		b.format = from.Premultiplied()
	} else {
		b.format = from.Unpremultiplied()
	}
	return nil
}

// Convert returns a new bitmap holding src converted to format.
func Convert(src *Bitmap, format pixel.Format) (*Bitmap, error) {
	if !format.Valid() {
		panic(fmt.Sprintf("bitmap: convert to invalid format %v", format))
	}
	if src.format == format {
		return Copy(src)
	}

	dst, err := NewWithMallocBuffer(src.width, src.height, format)
	if err != nil {
		return nil, err
	}
	if err := convertInto(src, dst); err != nil {
		dst.Release()
		return nil, err
	}
	return dst, nil
}

// ConvertInto converts the pixels of src into dst, which must have the
// same size.
func ConvertInto(src, dst *Bitmap) error {
	if src.width != dst.width || src.height != dst.height {
		return compose.NewError(compose.DomainBitmap, "convert", compose.ErrUnsupported,
			fmt.Sprintf("size %dx%d does not match %dx%d", src.width, src.height, dst.width, dst.height))
	}
	return convertInto(src, dst)
}

func convertInto(src, dst *Bitmap) error {
	srcData, err := src.Map(AccessRead, 0)
	if err != nil {
		return err
	}
	defer src.Unmap()
	dstData, err := dst.Map(AccessWrite, HintDiscard)
	if err != nil {
		return err
	}
	defer dst.Unmap()

	parallel.Rows(src.width, src.height, func(y0, y1 int) {
		tmp := make([]byte, src.width*4)
		for y := y0; y < y1; y++ {
			pixel.ConvertRow(dst.format, dstData[y*dst.rowstride:], src.format, srcData[y*src.rowstride:], src.width, tmp)
		}
	})
	return nil
}
