// Command composedemo draws a test scene through the compose stack and
// saves the framebuffer as a PNG.
//
// Usage:
//
//	composedemo [-backend noop|vulkan|metal|dx12|gl] [-debug flags] [-image file] [-output file]
//
// The noop backend renders nothing and saves a blank image, but still
// exercises batching, clears and fences; -v prints what the journal did.
package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/gogpu/gputypes"
	_ "github.com/gogpu/wgpu/hal/allbackends"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/framebuffer"
	"github.com/gogpu/compose/journal"
	"github.com/gogpu/compose/pixel"
	"github.com/gogpu/compose/texture"
)

var backends = map[string]gputypes.Backend{
	"noop":   gputypes.BackendEmpty,
	"vulkan": gputypes.BackendVulkan,
	"metal":  gputypes.BackendMetal,
	"dx12":   gputypes.BackendDX12,
	"gl":     gputypes.BackendGL,
}

func main() {
	var (
		width   = flag.Int("width", 640, "framebuffer width")
		height  = flag.Int("height", 480, "framebuffer height")
		output  = flag.String("output", "compose-demo.png", "output file")
		backend = flag.String("backend", "noop", "HAL backend: noop, vulkan, metal, dx12 or gl")
		debug   = flag.String("debug", os.Getenv("COMPOSE_DEBUG"), "comma separated debug flags")
		image   = flag.String("image", "", "image to draw as a texture (default: checkerboard)")
		verbose = flag.Bool("v", false, "log journal activity")
	)
	flag.Parse()

	if *verbose {
		compose.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	b, ok := backends[strings.ToLower(*backend)]
	if !ok {
		log.Fatalf("unknown backend %q", *backend)
	}
	flags, err := compose.ParseDebugFlags(*debug)
	if err != nil {
		log.Fatalf("debug flags: %v", err)
	}

	ctx, err := compose.OpenContext(b, compose.WithDebug(flags))
	if err != nil {
		log.Fatalf("open context: %v", err)
	}
	defer ctx.Close()

	if err := run(ctx, *width, *height, *image, *output); err != nil {
		log.Fatal(err)
	}
}

func run(ctx *compose.Context, width, height int, imagePath, output string) error {
	s := &scene{ctx: ctx}
	defer s.release()

	fb, err := framebuffer.New(ctx, width, height)
	if err != nil {
		return err
	}
	defer fb.Release()
	s.fb = fb

	if err := fb.Clear(compose.Hex("#1a2238")); err != nil {
		return err
	}
	steps := []func() error{
		s.drawBands,
		s.drawRotatedSquares,
		func() error { return s.drawTexture(imagePath) },
		s.drawClippedClear,
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}

	// A single pixel read is answered from the pending quads.
	sample, err := bitmap.NewWithMallocBuffer(1, 1, pixel.FormatRGBA8888Pre)
	if err != nil {
		return err
	}
	if err := fb.ReadPixels(20, 20, sample); err != nil {
		return err
	}
	if c, err := sample.At(0, 0); err == nil {
		log.Printf("pixel (20, 20) = %v, pending quads %d", c, fb.Journal().Len())
	}

	fb.AddFenceCallback(func() { log.Printf("scene complete on the GPU") })
	if err := fb.Finish(); err != nil {
		return err
	}

	out, err := bitmap.NewWithMallocBuffer(width, height, pixel.FormatRGBA8888Pre)
	if err != nil {
		return err
	}
	if err := fb.ReadPixels(0, 0, out); err != nil {
		return err
	}
	if err := out.SavePNG(output); err != nil {
		return err
	}

	st := fb.Journal().Stats()
	fmt.Printf("%s: %dx%d\n", output, width, height)
	fmt.Printf("flushes %d, batches %d, draw calls %d, quads %d\n", st.Flushes, st.Batches, st.DrawCalls, st.Quads)
	fmt.Printf("discards %d, fast pixel reads %d, one-off buffers %d\n", st.Discards, st.FastReadPixels, st.OneOffBuffers)
	return nil
}

// scene holds the materials and textures of the demo.
type scene struct {
	ctx       *compose.Context
	fb        *framebuffer.Framebuffer
	materials []*journal.Material
	textures  []texture.Texture
}

func (s *scene) material(c compose.RGBA, opts ...journal.MaterialOption) (*journal.Material, error) {
	m, err := journal.NewMaterial(s.ctx, c, opts...)
	if err != nil {
		return nil, err
	}
	s.materials = append(s.materials, m)
	return m, nil
}

func (s *scene) release() {
	for _, m := range s.materials {
		m.Release()
	}
	for _, t := range s.textures {
		texture.Release(t)
	}
}

// drawBands draws horizontal stripes, one batch per color.
func (s *scene) drawBands() error {
	const bands = 8
	w, h := float32(s.fb.Width()), float32(s.fb.Height())
	bandH := h / bands
	for i := 0; i < bands; i++ {
		t := float64(i) / bands
		m, err := s.material(compose.RGBA{R: 0.2 + t*0.5, G: 0.3, B: 0.6 - t*0.3, A: 0.35})
		if err != nil {
			return err
		}
		var rects [][4]float32
		for x := float32(0); x < w; x += 40 {
			y := float32(i) * bandH
			rects = append(rects, [4]float32{x, y, x + 30, y + bandH - 4})
		}
		if err := s.fb.DrawRectangles(m, rects); err != nil {
			return err
		}
	}
	return nil
}

func (s *scene) drawRotatedSquares() error {
	cx, cy := float64(s.fb.Width())*0.75, float64(s.fb.Height())*0.3
	for i := 0; i < 8; i++ {
		m, err := s.material(compose.RGB(1, float64(i)/8, 0.2))
		if err != nil {
			return err
		}
		s.fb.PushMatrix()
		s.fb.Translate(cx, cy)
		s.fb.Rotate(float64(i) * math.Pi / 16)
		err = s.fb.DrawRectangle(m, -40, -40, 40, 40)
		s.fb.PopMatrix()
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *scene) drawTexture(path string) error {
	var (
		bmp *bitmap.Bitmap
		err error
	)
	if path != "" {
		bmp, err = bitmap.NewFromFile(path)
	} else {
		bmp, err = checkerboard(64, 8)
	}
	if err != nil {
		return err
	}
	defer bmp.Release()

	tex, err := texture.NewFromBitmap(s.ctx, bmp, pixel.FormatAny)
	if err != nil {
		return err
	}
	s.textures = append(s.textures, tex)

	m, err := s.material(compose.White, journal.WithLayers(tex))
	if err != nil {
		return err
	}
	x, y := float32(40), float32(s.fb.Height())*0.5
	if err := s.fb.DrawRectangle(m, x, y, x+160, y+160); err != nil {
		return err
	}
	// The lower right quarter, magnified.
	return s.fb.DrawTexturedRectangle(m, x+200, y, x+360, y+160, 0.5, 0.5, 1, 1)
}

// drawClippedClear punches a window into the scene.
func (s *scene) drawClippedClear() error {
	w, h := float32(s.fb.Width()), float32(s.fb.Height())
	s.fb.PushRectangleClip(w*0.6, h*0.6, w*0.9, h*0.9)
	defer s.fb.PopClip()
	return s.fb.Clear(compose.RGBA{R: 0.9, G: 0.9, B: 0.95, A: 1})
}

func checkerboard(size, cell int) (*bitmap.Bitmap, error) {
	bmp, err := bitmap.NewWithMallocBuffer(size, size, pixel.FormatRGBA8888)
	if err != nil {
		return nil, err
	}
	data, err := bmp.Map(bitmap.AccessWrite, bitmap.HintDiscard)
	if err != nil {
		bmp.Release()
		return nil, err
	}
	for y := 0; y < size; y++ {
		row := data[y*bmp.Rowstride():]
		for x := 0; x < size; x++ {
			v := uint8(40)
			if (x/cell+y/cell)%2 == 0 {
				v = 220
			}
			copy(row[x*4:], []byte{v, v, v, 255})
		}
	}
	bmp.Unmap()
	return bmp, nil
}
