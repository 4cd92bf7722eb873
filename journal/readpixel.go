package journal

import (
	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/pixel"
)

// TryReadPixel answers a read of pixel (x, y) from the logged entries
// without flushing. ok reports whether the answer is known: either the
// topmost entry covering the pixel centre has an exact solid color,
// which is written into dst at (0, 0) and found is true, or no entry
// covers the pixel and found is false. When ok is false the caller must
// flush and read back.
func (j *Journal) TryReadPixel(x, y int, dst *bitmap.Bitmap) (ok, found bool) {
	if !j.opts.fastReadPixel {
		return false, len(j.entries) > 0
	}
	px, py := float32(x)+0.5, float32(y)+0.5
	for i := len(j.entries) - 1; i >= 0; i-- {
		e := &j.entries[i]
		if !e.bounds.Contains(px, py) {
			continue
		}
		if e.clip != nil || !e.modelview.IsAxisAligned() || e.nLayers > 1 {
			return false, true
		}
		color, exact := e.pipeline.SolidColor()
		if !exact {
			return false, true
		}
		data, err := dst.Map(bitmap.AccessWrite, 0)
		if err != nil {
			return false, true
		}
		pixel.PackColor(dst.Format(), color.Bytes(true), data)
		dst.Unmap()
		j.stats.FastReadPixels++
		return true, true
	}
	return true, false
}
