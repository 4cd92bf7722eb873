package framebuffer

import (
	"fmt"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/journal"
	"github.com/gogpu/compose/pixel"
)

// Clear sets every pixel inside the clip to color.
//
// Without a clip, pending quads that lie inside the framebuffer are
// dropped and the clear becomes the load operation of the next render
// pass. With a clip, pending quads are dropped when the clip covers all
// of them and flushed otherwise; the clear is then logged as an
// unblended quad.
func (fb *Framebuffer) Clear(color compose.RGBA) error {
	elide := !fb.ctx.Debug().Has(compose.DebugDisableClearElision)

	bounds, clipped := fb.clip.Bounds()
	if !clipped {
		if elide && fb.journal.AllEntriesWithinBounds(0, 0, float32(fb.width), float32(fb.height)) {
			fb.journal.Discard()
		} else if err := fb.Flush(); err != nil {
			return err
		}
		fb.pendingClear = true
		fb.clearColor = color
		fb.clearKnown = true
		return nil
	}

	if bounds.Empty() {
		return nil
	}
	if elide && fb.journal.AllEntriesWithinBounds(bounds.X0, bounds.Y0, bounds.X1, bounds.Y1) {
		fb.journal.Discard()
	} else if err := fb.Flush(); err != nil {
		return err
	}
	m, err := fb.clearMaterial(color)
	if err != nil {
		return err
	}
	snap := journal.Snapshot{Modelview: compose.Identity(), Clip: fb.clip}
	fb.journal.LogQuad(snap, [4]float32{bounds.X0, bounds.Y0, bounds.X1, bounds.Y1}, m, 0, nil, nil)
	return nil
}

func (fb *Framebuffer) clearMaterial(color compose.RGBA) (*journal.Material, error) {
	m, err := fb.clearMaterials.GetOrCreate(color, func() (*journal.Material, error) {
		return journal.NewMaterial(fb.ctx, color, journal.WithBlending(false))
	})
	if err != nil {
		return nil, compose.WrapError(compose.DomainFramebuffer, "clear", nil, err)
	}
	return m, nil
}

// ReadPixels copies the dst-sized rectangle at (x, y) into dst,
// converting to dst's format.
//
// Single pixel reads are answered without touching the GPU when the
// pending quads determine the pixel, or when no quad covers it and only
// a clear has reached the framebuffer since the last full clear.
// Everything else flushes and waits for the GPU.
func (fb *Framebuffer) ReadPixels(x, y int, dst *bitmap.Bitmap) error {
	if x < 0 || y < 0 || x+dst.Width() > fb.width || y+dst.Height() > fb.height {
		return compose.WrapError(compose.DomainFramebuffer, "read pixels", nil,
			fmt.Errorf("%w: %dx%d at (%d, %d) in %dx%d", bitmap.ErrRegionOutOfBounds,
				dst.Width(), dst.Height(), x, y, fb.width, fb.height))
	}

	if dst.Width() == 1 && dst.Height() == 1 {
		ok, found := fb.journal.TryReadPixel(x, y, dst)
		if ok && found {
			return nil
		}
		if ok && fb.clearKnown {
			return fb.writeClearColor(dst)
		}
	}

	if err := fb.Flush(); err != nil {
		return err
	}
	if err := fb.color.ReadPixels(x, y, dst); err != nil {
		return compose.WrapError(compose.DomainFramebuffer, "read pixels", nil, err)
	}
	return nil
}

func (fb *Framebuffer) writeClearColor(dst *bitmap.Bitmap) error {
	data, err := dst.Map(bitmap.AccessWrite, 0)
	if err != nil {
		return err
	}
	defer dst.Unmap()
	pixel.PackColor(dst.Format(), fb.clearColor.Bytes(true), data)
	return nil
}
