package texture

import (
	"fmt"

	"github.com/gogpu/gpucontext"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/internal/parallel"
	"github.com/gogpu/compose/pixel"
)

// copyRowAlignment is the required bytes-per-row alignment of
// buffer/texture copies.
const copyRowAlignment = 256

const texture2DUsage = gputypes.TextureUsageCopySrc | gputypes.TextureUsageCopyDst |
	gputypes.TextureUsageTextureBinding | gputypes.TextureUsageRenderAttachment

// Texture2D is a single GPU texture.
type Texture2D struct {
	ctx  *compose.Context
	raw  hal.Texture
	view hal.TextureView

	width  int
	height int

	// format is the internal format; uploadFormat is the byte layout of
	// gpuFormat.
	format       pixel.Format
	gpuFormat    gputypes.TextureFormat
	uploadFormat pixel.Format
}

var (
	_ gpucontext.Texture              = (*Texture2D)(nil)
	_ gpucontext.TextureUpdater       = (*Texture2D)(nil)
	_ gpucontext.TextureRegionUpdater = (*Texture2D)(nil)
)

// NewTexture2D creates an uninitialized width x height texture.
// FormatAny selects premultiplied RGBA.
func NewTexture2D(ctx *compose.Context, width, height int, format pixel.Format) (*Texture2D, error) {
	if width <= 0 || height <= 0 {
		return nil, compose.WrapError(compose.DomainTexture, "create", compose.ErrUnsupported,
			fmt.Errorf("%w: %dx%d", bitmap.ErrInvalidSize, width, height))
	}
	if !fitsSingle(ctx, width, height) {
		return nil, compose.NewError(compose.DomainTexture, "create", compose.ErrUnsupported,
			fmt.Sprintf("%dx%d exceeds the maximum texture size %d", width, height, ctx.MaxTextureSize()))
	}

	internal := pixel.InternalFormat(format)
	gpuFormat, uploadFormat := pixel.TextureFormat(internal)

	device := ctx.Device()
	raw, err := device.CreateTexture(&hal.TextureDescriptor{
		Label: "compose-texture",
		Size: hal.Extent3D{
			Width:              uint32(width),
			Height:             uint32(height),
			DepthOrArrayLayers: 1,
		},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        gpuFormat,
		Usage:         texture2DUsage,
	})
	if err != nil {
		return nil, compose.WrapError(compose.DomainTexture, "create", compose.HALErrorKind(err), err)
	}
	view, err := device.CreateTextureView(raw, &hal.TextureViewDescriptor{
		Label:           "compose-texture-view",
		Format:          gpuFormat,
		Dimension:       gputypes.TextureViewDimension2D,
		Aspect:          gputypes.TextureAspectAll,
		MipLevelCount:   1,
		ArrayLayerCount: 1,
	})
	if err != nil {
		device.DestroyTexture(raw)
		return nil, compose.WrapError(compose.DomainTexture, "create view", compose.HALErrorKind(err), err)
	}

	return &Texture2D{
		ctx:          ctx,
		raw:          raw,
		view:         view,
		width:        width,
		height:       height,
		format:       internal,
		gpuFormat:    gpuFormat,
		uploadFormat: uploadFormat,
	}, nil
}

// NewTexture2DFromBitmap creates a texture holding a copy of bmp.
func NewTexture2DFromBitmap(ctx *compose.Context, bmp *bitmap.Bitmap, format pixel.Format) (*Texture2D, error) {
	if format == pixel.FormatAny {
		format = bmp.Format()
	}
	t, err := NewTexture2D(ctx, bmp.Width(), bmp.Height(), format)
	if err != nil {
		return nil, err
	}
	if err := t.setRegion(0, 0, 0, 0, bmp.Width(), bmp.Height(), 0, bmp); err != nil {
		t.release()
		return nil, err
	}
	return t, nil
}

func (t *Texture2D) kind() Kind { return KindPlain2D }

// Width returns the width in pixels.
func (t *Texture2D) Width() int { return t.width }

// Height returns the height in pixels.
func (t *Texture2D) Height() int { return t.height }

// Format returns the internal format.
func (t *Texture2D) Format() pixel.Format { return t.format }

// GPUFormat returns the HAL texture format.
func (t *Texture2D) GPUFormat() gputypes.TextureFormat { return t.gpuFormat }

// Raw returns the HAL texture.
func (t *Texture2D) Raw() hal.Texture { return t.raw }

// View returns the texture view.
func (t *Texture2D) View() hal.TextureView { return t.view }

// UpdateData replaces the whole texture. data holds tightly packed rows
// in the texture's upload layout.
func (t *Texture2D) UpdateData(data []byte) error {
	return t.UpdateRegion(0, 0, t.width, t.height, data)
}

// UpdateRegion replaces a w x h rectangle at (x, y). data holds tightly
// packed rows in the texture's upload layout.
func (t *Texture2D) UpdateRegion(x, y, w, h int, data []byte) error {
	if len(data) != w*h*pixel.BytesPerPixel(t.uploadFormat) {
		return fmt.Errorf("%w: %d bytes for a %dx%d region", bitmap.ErrInvalidSize, len(data), w, h)
	}
	return SetRegionData(t, w, h, t.uploadFormat, 0, data, x, y, 0)
}

func (t *Texture2D) setRegion(srcX, srcY, dstX, dstY, width, height, level int, bmp *bitmap.Bitmap) error {
	if level != 0 {
		return compose.NewError(compose.DomainTexture, "set region", compose.ErrUnsupported,
			fmt.Sprintf("mipmap level %d does not exist", level))
	}

	// An opaque texture ignores source alpha, so it must not be divided out.
	opaque := !t.format.HasAlpha()
	srcFormat := bmp.Format()
	if opaque {
		srcFormat = srcFormat.Unpremultiplied()
	}

	if bmp.Buffer() != nil && !opaque && srcFormat == t.uploadFormat && bmp.Rowstride()%copyRowAlignment == 0 {
		return t.copyFromBuffer(srcX, srcY, dstX, dstY, width, height, bmp)
	}

	data, err := bmp.Map(bitmap.AccessRead, 0)
	if err != nil {
		return err
	}
	defer bmp.Unmap()

	srcBpp := pixel.BytesPerPixel(bmp.Format())
	rowBytes := width * pixel.BytesPerPixel(t.uploadFormat)
	staging := make([]byte, rowBytes*height)
	parallel.Rows(width, height, func(y0, y1 int) {
		tmp := make([]byte, width*4)
		for y := y0; y < y1; y++ {
			row := staging[y*rowBytes : (y+1)*rowBytes]
			off := (srcY+y)*bmp.Rowstride() + srcX*srcBpp
			pixel.ConvertRow(t.uploadFormat, row, srcFormat, data[off:], width, tmp)
			if opaque {
				forceOpaque(row)
			}
		}
	})

	err = t.ctx.Queue().WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  t.raw,
			MipLevel: uint32(level),
			Origin:   hal.Origin3D{X: uint32(dstX), Y: uint32(dstY)},
			Aspect:   gputypes.TextureAspectAll,
		},
		staging,
		&hal.ImageDataLayout{BytesPerRow: uint32(rowBytes), RowsPerImage: uint32(height)},
		&hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
	)
	if err != nil {
		return compose.WrapError(compose.DomainTexture, "write texture", compose.HALErrorKind(err), err)
	}
	return nil
}

// copyFromBuffer uploads straight from the bitmap's pixel buffer.
func (t *Texture2D) copyFromBuffer(srcX, srcY, dstX, dstY, width, height int, bmp *bitmap.Bitmap) error {
	binding, err := bmp.Bind(bitmap.AccessRead, 0)
	if err != nil {
		return err
	}
	defer bmp.Unbind()

	offset := binding.Offset + srcY*bmp.Rowstride() + srcX*pixel.BytesPerPixel(bmp.Format())
	err = t.ctx.SubmitAndWait("compose-texture-upload", func(enc hal.CommandEncoder) {
		enc.CopyBufferToTexture(binding.Buffer.Raw(), t.raw, []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{
				Offset:       uint64(offset),
				BytesPerRow:  uint32(bmp.Rowstride()),
				RowsPerImage: uint32(height),
			},
			TextureBase: hal.ImageCopyTexture{
				Texture: t.raw,
				Origin:  hal.Origin3D{X: uint32(dstX), Y: uint32(dstY)},
				Aspect:  gputypes.TextureAspectAll,
			},
			Size: hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
		}})
	})
	if err != nil {
		return compose.WrapError(compose.DomainTexture, "copy buffer to texture", nil, err)
	}
	return nil
}

// ReadPixels copies the dst-sized rectangle at (x, y) into dst,
// converting to dst's format. It waits for the GPU.
func (t *Texture2D) ReadPixels(x, y int, dst *bitmap.Bitmap) error {
	if x < 0 || y < 0 || x+dst.Width() > t.width || y+dst.Height() > t.height {
		return compose.WrapError(compose.DomainTexture, "read pixels", nil,
			fmt.Errorf("%w: %dx%d at (%d, %d) in %dx%d", bitmap.ErrRegionOutOfBounds,
				dst.Width(), dst.Height(), x, y, t.width, t.height))
	}
	return t.readInto(x, y, dst, 0, 0, dst.Width(), dst.Height())
}

// readInto copies the width x height rectangle at (srcX, srcY) into dst
// at (dstX, dstY), converting to dst's format.
func (t *Texture2D) readInto(srcX, srcY int, dst *bitmap.Bitmap, dstX, dstY, width, height int) error {
	bytesPerRow := alignUp(width*pixel.BytesPerPixel(t.uploadFormat), copyRowAlignment)
	buf, err := bitmap.NewReadbackBuffer(t.ctx, bytesPerRow*height)
	if err != nil {
		return err
	}
	staging := bitmap.NewFromBuffer(buf, t.uploadFormat, width, height, bytesPerRow, 0)
	buf.Release()
	defer staging.Release()

	binding, err := staging.Bind(bitmap.AccessWrite, bitmap.HintDiscard)
	if err != nil {
		return err
	}
	err = t.ctx.SubmitAndWait("compose-texture-readback", func(enc hal.CommandEncoder) {
		enc.CopyTextureToBuffer(t.raw, binding.Buffer.Raw(), []hal.BufferTextureCopy{{
			BufferLayout: hal.ImageDataLayout{
				Offset:       uint64(binding.Offset),
				BytesPerRow:  uint32(bytesPerRow),
				RowsPerImage: uint32(height),
			},
			TextureBase: hal.ImageCopyTexture{
				Texture: t.raw,
				Origin:  hal.Origin3D{X: uint32(srcX), Y: uint32(srcY)},
				Aspect:  gputypes.TextureAspectAll,
			},
			Size: hal.Extent3D{Width: uint32(width), Height: uint32(height), DepthOrArrayLayers: 1},
		}})
	})
	staging.Unbind()
	if err != nil {
		return compose.WrapError(compose.DomainTexture, "copy texture to buffer", nil, err)
	}

	src, err := staging.Map(bitmap.AccessRead, 0)
	if err != nil {
		return err
	}
	defer staging.Unmap()
	out, err := dst.Map(bitmap.AccessWrite, 0)
	if err != nil {
		return err
	}
	defer dst.Unmap()

	dstBpp := pixel.BytesPerPixel(dst.Format())
	parallel.Rows(width, height, func(y0, y1 int) {
		tmp := make([]byte, width*4)
		for y := y0; y < y1; y++ {
			off := (dstY+y)*dst.Rowstride() + dstX*dstBpp
			pixel.ConvertRow(dst.Format(), out[off:], t.uploadFormat, src[y*bytesPerRow:], width, tmp)
		}
	})
	return nil
}

func (t *Texture2D) release() {
	if t.raw == nil {
		return
	}
	device := t.ctx.Device()
	device.DestroyTextureView(t.view)
	device.DestroyTexture(t.raw)
	t.view = nil
	t.raw = nil
}

// forceOpaque sets the alpha byte of every 4-byte pixel in row.
func forceOpaque(row []byte) {
	for i := 3; i < len(row); i += 4 {
		row[i] = 0xff
	}
}

func alignUp(n, a int) int {
	return (n + a - 1) / a * a
}
