package framebuffer

import (
	"fmt"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/journal"
	"github.com/gogpu/compose/texture"
)

// layered is implemented by pipelines that expose their textures, such
// as *journal.Material. Only those can be drawn with sliced layers.
type layered interface {
	Layer(i int) texture.Texture
}

// DrawRectangle draws (x0, y0)-(x1, y1) with p, each layer sampling its
// whole texture.
func (fb *Framebuffer) DrawRectangle(p journal.Pipeline, x0, y0, x1, y1 float32) error {
	return fb.DrawMultiTexturedRectangle(p, x0, y0, x1, y1, nil)
}

// DrawTexturedRectangle draws (x0, y0)-(x1, y1) with the first layer of
// p sampled over (s0, t0)-(s1, t1). Other layers sample their whole
// texture.
func (fb *Framebuffer) DrawTexturedRectangle(p journal.Pipeline, x0, y0, x1, y1, s0, t0, s1, t1 float32) error {
	return fb.DrawMultiTexturedRectangle(p, x0, y0, x1, y1, []float32{s0, t0, s1, t1})
}

// DrawMultiTexturedRectangle draws (x0, y0)-(x1, y1) with texCoords
// holding s0, t0, s1, t1 for each layer in order. Layers without
// coordinates sample their whole texture.
//
// A sliced first layer is drawn as one quad per slice; its coordinates
// must then lie within [0, 1]. Sliced layers after the first are not
// supported.
func (fb *Framebuffer) DrawMultiTexturedRectangle(p journal.Pipeline, x0, y0, x1, y1 float32,
	texCoords []float32) error {
	n := p.Layers()
	if len(texCoords) > 4*n {
		texCoords = texCoords[:4*n]
	}
	coords := make([]float32, 4*n)
	for l := 0; l < n; l++ {
		copy(coords[4*l:], []float32{0, 0, 1, 1})
	}
	copy(coords, texCoords)

	if n == 0 {
		fb.journal.LogQuad(fb.snapshot(), [4]float32{x0, y0, x1, y1}, p, 0, nil, nil)
		return nil
	}
	lp, ok := p.(layered)
	if !ok {
		fb.journal.LogQuad(fb.snapshot(), [4]float32{x0, y0, x1, y1}, p, n, nil, coords)
		return nil
	}
	for l := 1; l < n; l++ {
		if texture.IsSliced(lp.Layer(l)) {
			return compose.NewError(compose.DomainFramebuffer, "draw", compose.ErrUnsupported,
				fmt.Sprintf("layer %d is sliced; only the first layer may be", l))
		}
	}
	layer0 := lp.Layer(0)
	if !texture.IsSliced(layer0) {
		fb.journal.LogQuad(fb.snapshot(), [4]float32{x0, y0, x1, y1}, p, n, nil, coords)
		return nil
	}
	return fb.drawSliced(p, layer0, [4]float32{x0, y0, x1, y1}, coords)
}

// drawSliced logs one quad per slice of layer0 covered by the first
// layer's coordinates. Geometry and the other layers' coordinates are
// interpolated to the part of the request each slice covers.
func (fb *Framebuffer) drawSliced(p journal.Pipeline, layer0 texture.Texture, pos [4]float32, coords []float32) error {
	s0, t0, s1, t1 := coords[0], coords[1], coords[2], coords[3]
	for _, v := range coords[:4] {
		if v < 0 || v > 1 {
			return compose.NewError(compose.DomainFramebuffer, "draw", compose.ErrUnsupported,
				"sliced textures cannot repeat")
		}
	}
	if s0 == s1 || t0 == t1 {
		return nil
	}
	snap := fb.snapshot()
	n := len(coords) / 4
	texture.ForEachSubTexture(layer0, s0, t0, s1, t1, func(sub texture.Texture, subCoords, virt [4]float32) {
		// Fractions of the requested rectangle this slice covers.
		fx0, fx1 := (virt[0]-s0)/(s1-s0), (virt[2]-s0)/(s1-s0)
		fy0, fy1 := (virt[1]-t0)/(t1-t0), (virt[3]-t0)/(t1-t0)
		piece := [4]float32{
			lerp(pos[0], pos[2], fx0), lerp(pos[1], pos[3], fy0),
			lerp(pos[0], pos[2], fx1), lerp(pos[1], pos[3], fy1),
		}
		tc := make([]float32, len(coords))
		copy(tc, subCoords[:])
		for l := 1; l < n; l++ {
			c := coords[4*l : 4*l+4]
			tc[4*l] = lerp(c[0], c[2], fx0)
			tc[4*l+1] = lerp(c[1], c[3], fy0)
			tc[4*l+2] = lerp(c[0], c[2], fx1)
			tc[4*l+3] = lerp(c[1], c[3], fy1)
		}
		fb.journal.LogQuad(snap, piece, p, n, sub, tc)
	})
	return nil
}

// DrawRectangles draws each rectangle with p.
func (fb *Framebuffer) DrawRectangles(p journal.Pipeline, rects [][4]float32) error {
	for _, r := range rects {
		if err := fb.DrawRectangle(p, r[0], r[1], r[2], r[3]); err != nil {
			return err
		}
	}
	return nil
}

func lerp(a, b, t float32) float32 {
	return a + (b-a)*t
}
