// Package x11 connects pixmap textures to an X server through xgb. It
// reads pixmap contents, with MIT-SHM transfers where the server
// supports them, and tracks changes with XDamage.
//
// The package does not read events. Callers pass damage events from
// their own event loop to (*Damage).Dispatch.
package x11

import (
	"fmt"

	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/texture"
)

// maxReplyBytes bounds the image data fetched by one GetImage request.
const maxReplyBytes = 4 << 20

// Source reads a pixmap. It implements texture.SharedMemorySource.
type Source struct {
	conn   *xgb.Conn
	pixmap xproto.Pixmap

	width  int
	height int
	depth  int

	bitsPerPixel int
	scanlinePad  int
	lsbFirst     bool
	visual       xproto.VisualInfo

	shm shmSegment
}

var _ texture.SharedMemorySource = (*Source)(nil)

// NewSource queries the pixmap's geometry and the pixel layout the server
// uses for its depth. Channel masks come from the visual of the
// pixmap's root window.
func NewSource(conn *xgb.Conn, pixmap xproto.Pixmap) (*Source, error) {
	geom, err := xproto.GetGeometry(conn, xproto.Drawable(pixmap)).Reply()
	if err != nil {
		return nil, compose.WrapError(compose.DomainTexturePixmap, "get geometry", compose.ErrExternalResource,
			fmt.Errorf("unable to query pixmap size: %w", err))
	}

	setup := xproto.Setup(conn)
	visual, ok := rootVisual(setup, geom.Root)
	if !ok {
		return nil, compose.NewError(compose.DomainTexturePixmap, "get geometry", compose.ErrExternalResource,
			"unable to query root window visual")
	}
	bpp, pad, ok := pixmapFormat(setup.PixmapFormats, geom.Depth)
	if !ok {
		return nil, compose.NewError(compose.DomainTexturePixmap, "get geometry", compose.ErrUnsupported,
			fmt.Sprintf("no pixmap format for depth %d", geom.Depth))
	}

	return &Source{
		conn:         conn,
		pixmap:       pixmap,
		width:        int(geom.Width),
		height:       int(geom.Height),
		depth:        int(geom.Depth),
		bitsPerPixel: bpp,
		scanlinePad:  pad,
		lsbFirst:     setup.ImageByteOrder == xproto.ImageOrderLSBFirst,
		visual:       visual,
	}, nil
}

// Geometry returns the pixmap size and depth.
func (s *Source) Geometry() (width, height, depth int, err error) {
	return s.width, s.height, s.depth, nil
}

// GetImage fetches a rectangle of the pixmap into a new image.
func (s *Source) GetImage(x, y, width, height int) (*texture.Image, error) {
	img := s.newImage(width, height, nil)
	img.Data = make([]byte, img.Rowstride*height)
	if err := s.fetch(img, x, y, width, height, 0, 0); err != nil {
		return nil, err
	}
	return img, nil
}

// GetSubImage fetches a rectangle of the pixmap into img at the same
// position.
func (s *Source) GetSubImage(img *texture.Image, x, y, width, height int) error {
	return s.fetch(img, x, y, width, height, x, y)
}

func (s *Source) newImage(width, height int, data []byte) *texture.Image {
	return &texture.Image{
		Width:        width,
		Height:       height,
		Depth:        s.depth,
		BitsPerPixel: s.bitsPerPixel,
		Rowstride:    rowstride(width, s.bitsPerPixel, s.scanlinePad),
		RedMask:      s.visual.RedMask,
		GreenMask:    s.visual.GreenMask,
		BlueMask:     s.visual.BlueMask,
		LSBFirst:     s.lsbFirst,
		Data:         data,
	}
}

// fetch reads the rectangle in bands of rows that keep each reply below
// maxReplyBytes and copies them into img at (dstX, dstY).
func (s *Source) fetch(img *texture.Image, x, y, width, height, dstX, dstY int) error {
	srcStride := rowstride(width, s.bitsPerPixel, s.scanlinePad)
	rowBytes := width * s.bitsPerPixel / 8
	dstOff := dstX * s.bitsPerPixel / 8

	step := bandRows(srcStride)
	for row := 0; row < height; row += step {
		n := min(step, height-row)
		reply, err := xproto.GetImage(s.conn, xproto.ImageFormatZPixmap, xproto.Drawable(s.pixmap),
			int16(x), int16(y+row), uint16(width), uint16(n), ^uint32(0)).Reply()
		if err != nil {
			return compose.WrapError(compose.DomainTexturePixmap, "get image", compose.ErrExternalResource, err)
		}
		copyRows(img.Data[(dstY+row)*img.Rowstride+dstOff:], img.Rowstride, reply.Data, srcStride, rowBytes, n)
	}
	return nil
}

// rowstride returns the bytes per row of a ZPixmap image, with rows
// padded to pad bits.
func rowstride(width, bitsPerPixel, pad int) int {
	bits := width * bitsPerPixel
	if pad > 0 {
		bits = (bits + pad - 1) / pad * pad
	}
	return bits / 8
}

// bandRows returns how many rows of stride bytes fit in one reply.
func bandRows(stride int) int {
	if stride <= 0 {
		return 1
	}
	return max(1, maxReplyBytes/stride)
}

// copyRows copies rows of rowBytes bytes between buffers of different
// strides.
func copyRows(dst []byte, dstStride int, src []byte, srcStride, rowBytes, rows int) {
	for r := 0; r < rows; r++ {
		copy(dst[r*dstStride:r*dstStride+rowBytes], src[r*srcStride:r*srcStride+rowBytes])
	}
}

// pixmapFormat returns the bits per pixel and scanline pad the server
// uses for images of depth.
func pixmapFormat(formats []xproto.Format, depth byte) (bpp, pad int, ok bool) {
	for _, f := range formats {
		if f.Depth == depth {
			return int(f.BitsPerPixel), int(f.ScanlinePad), true
		}
	}
	return 0, 0, false
}

// rootVisual returns the default visual of the screen whose root window
// is root.
func rootVisual(setup *xproto.SetupInfo, root xproto.Window) (xproto.VisualInfo, bool) {
	for _, screen := range setup.Roots {
		if screen.Root != root {
			continue
		}
		for _, d := range screen.AllowedDepths {
			for _, v := range d.Visuals {
				if v.VisualId == screen.RootVisual {
					return v, true
				}
			}
		}
	}
	return xproto.VisualInfo{}, false
}
