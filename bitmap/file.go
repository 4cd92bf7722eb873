package bitmap

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif" // register GIF decoder
	_ "image/jpeg" // register JPEG decoder
	"image/png"
	"io"
	"os"
	"path/filepath"

	"golang.org/x/image/bmp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/tiff" // register TIFF decoder
	_ "golang.org/x/image/webp" // register WebP decoder

	"github.com/gogpu/compose/pixel"
)

// ErrEmptyImage is returned when a decoded image has no pixels.
var ErrEmptyImage = errors.New("bitmap: empty image")

// NewFromFile decodes an image file into a new bitmap. PNG, JPEG, GIF,
// BMP, TIFF and WebP are recognized by content.
func NewFromFile(path string) (*Bitmap, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("bitmap: open file: %w", err)
	}
	defer func() { _ = f.Close() }()

	return Decode(f)
}

// Decode decodes an image from r into a new bitmap.
func Decode(r io.Reader) (*Bitmap, error) {
	img, _, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("bitmap: decode: %w", err)
	}
	return FromImage(img)
}

// FromImage copies img into a new bitmap. *image.RGBA data is already
// premultiplied and keeps that; anything else is converted to straight
// RGBA.
func FromImage(img image.Image) (*Bitmap, error) {
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= 0 || h <= 0 {
		return nil, ErrEmptyImage
	}

	var (
		pix    []byte
		stride int
		format pixel.Format
	)
	switch src := img.(type) {
	case *image.RGBA:
		pix, stride, format = src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y):], src.Stride, pixel.FormatRGBA8888Pre
	case *image.NRGBA:
		pix, stride, format = src.Pix[src.PixOffset(bounds.Min.X, bounds.Min.Y):], src.Stride, pixel.FormatRGBA8888
	default:
		nrgba := image.NewNRGBA(image.Rect(0, 0, w, h))
		xdraw.Draw(nrgba, nrgba.Bounds(), img, bounds.Min, xdraw.Src)
		pix, stride, format = nrgba.Pix, nrgba.Stride, pixel.FormatRGBA8888
	}

	b, err := NewWithMallocBuffer(w, h, format)
	if err != nil {
		return nil, err
	}
	data, err := b.Map(AccessWrite, HintDiscard)
	if err != nil {
		b.Release()
		return nil, err
	}
	for y := 0; y < h; y++ {
		copy(data[y*b.rowstride:y*b.rowstride+w*4], pix[y*stride:y*stride+w*4])
	}
	b.Unmap()
	return b, nil
}

// ToImage copies the bitmap into a new *image.NRGBA.
func (b *Bitmap) ToImage() (*image.NRGBA, error) {
	img := image.NewNRGBA(image.Rect(0, 0, b.width, b.height))
	if b.width == 0 || b.height == 0 {
		return img, nil
	}
	view := NewForData(b.width, b.height, pixel.FormatRGBA8888, img.Stride, img.Pix)
	defer view.Release()
	if err := ConvertInto(b, view); err != nil {
		return nil, err
	}
	return img, nil
}

// EncodePNG writes the bitmap to w as PNG.
func (b *Bitmap) EncodePNG(w io.Writer) error {
	img, err := b.ToImage()
	if err != nil {
		return err
	}
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("bitmap: encode PNG: %w", err)
	}
	return nil
}

// EncodeBMP writes the bitmap to w as BMP.
func (b *Bitmap) EncodeBMP(w io.Writer) error {
	img, err := b.ToImage()
	if err != nil {
		return err
	}
	if err := bmp.Encode(w, img); err != nil {
		return fmt.Errorf("bitmap: encode BMP: %w", err)
	}
	return nil
}

// SavePNG writes the bitmap to a PNG file.
func (b *Bitmap) SavePNG(path string) error {
	f, err := os.Create(filepath.Clean(path))
	if err != nil {
		return fmt.Errorf("bitmap: create file: %w", err)
	}
	if err := b.EncodePNG(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// At returns the straight color of the pixel at (x, y). It maps the
// bitmap for the duration of the call.
func (b *Bitmap) At(x, y int) (color.NRGBA, error) {
	if x < 0 || y < 0 || x >= b.width || y >= b.height {
		return color.NRGBA{}, fmt.Errorf("%w: pixel (%d, %d)", ErrRegionOutOfBounds, x, y)
	}
	data, err := b.Map(AccessRead, 0)
	if err != nil {
		return color.NRGBA{}, err
	}
	defer b.Unmap()

	bpp := pixel.BytesPerPixel(b.format)
	var out [4]byte
	pixel.ConvertRow(pixel.FormatRGBA8888, out[:], b.format, data[y*b.rowstride+x*bpp:], 1, nil)
	return color.NRGBA{R: out[0], G: out[1], B: out[2], A: out[3]}, nil
}
