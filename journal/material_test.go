package journal

import (
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/pixel"
	"github.com/gogpu/compose/texture"
)

func newTestTexture(t *testing.T, ctx *compose.Context, w, h int) texture.Texture {
	t.Helper()
	tex, err := texture.New(ctx, w, h, pixel.FormatRGBA8888Pre)
	if err != nil {
		t.Fatalf("texture.New(%d, %d) error = %v", w, h, err)
	}
	t.Cleanup(func() { texture.Release(tex) })
	return tex
}

func newTestMaterial(t *testing.T, ctx *compose.Context, c compose.RGBA, opts ...MaterialOption) *Material {
	t.Helper()
	m, err := NewMaterial(ctx, c, opts...)
	if err != nil {
		t.Fatalf("NewMaterial() error = %v", err)
	}
	t.Cleanup(m.Release)
	return m
}

func TestNewMaterialTooManyLayers(t *testing.T) {
	ctx, _ := testContext(t)
	a := newTestTexture(t, ctx, 2, 2)
	_, err := NewMaterial(ctx, compose.White, WithLayers(a, a, a))
	if !errors.Is(err, compose.ErrUnsupported) {
		t.Errorf("NewMaterial() with 3 layers error = %v, want ErrUnsupported", err)
	}
}

func TestMaterialSolidColor(t *testing.T) {
	ctx, _ := testContext(t)
	tex := newTestTexture(t, ctx, 2, 2)
	translucent := compose.RGBA{R: 1, A: 0.5}

	tests := []struct {
		name  string
		color compose.RGBA
		opts  []MaterialOption
		solid bool
	}{
		{"opaque", compose.Green, nil, true},
		{"translucent blended", translucent, nil, false},
		{"translucent unblended", translucent, []MaterialOption{WithBlending(false)}, true},
		{"textured", compose.White, []MaterialOption{WithLayers(tex)}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newTestMaterial(t, ctx, tt.color, tt.opts...)
			c, ok := m.SolidColor()
			if ok != tt.solid {
				t.Fatalf("SolidColor() ok = %v, want %v", ok, tt.solid)
			}
			if ok && c != tt.color {
				t.Errorf("SolidColor() = %+v, want %+v", c, tt.color)
			}
		})
	}
}

func TestMaterialWithLayer0(t *testing.T) {
	ctx, _ := testContext(t)
	a := newTestTexture(t, ctx, 2, 2)
	b := newTestTexture(t, ctx, 2, 2)

	plain := newTestMaterial(t, ctx, compose.Red)
	if plain.WithLayer0(a) != Pipeline(plain) {
		t.Error("WithLayer0 on a material without layers returned a variant")
	}

	m := newTestMaterial(t, ctx, compose.White, WithLayers(a))
	if m.WithLayer0(a) != Pipeline(m) {
		t.Error("WithLayer0 with the current layer returned a variant")
	}
	v := m.WithLayer0(b)
	if v == Pipeline(m) {
		t.Fatal("WithLayer0 with a new texture returned the material")
	}
	if m.WithLayer0(b) != v {
		t.Error("WithLayer0 did not cache the variant")
	}
	vm := v.(*Material)
	if vm.Layer(0) != b || vm.Color() != m.Color() {
		t.Errorf("variant samples %v with %+v", vm.Layer(0), vm.Color())
	}
	if v.WithLayer0(a) != Pipeline(m) {
		t.Error("WithLayer0 on a variant did not lead back to the root material")
	}
}

func TestMaterialRenderPipeline(t *testing.T) {
	ctx, dev := testContext(t)
	m := newTestMaterial(t, ctx, compose.White)

	if _, err := m.RenderPipeline(gputypes.TextureFormatRGBA8Unorm, 1); err == nil {
		t.Error("RenderPipeline() accepted a layer count mismatch")
	}
	for i := 0; i < 2; i++ {
		if _, err := m.RenderPipeline(gputypes.TextureFormatRGBA8Unorm, 0); err != nil {
			t.Fatalf("RenderPipeline() error = %v", err)
		}
	}
	if _, err := m.RenderPipeline(gputypes.TextureFormatBGRA8Unorm, 0); err != nil {
		t.Fatalf("RenderPipeline(BGRA) error = %v", err)
	}
	if dev.pipelines != 2 {
		t.Errorf("created %d pipelines, want one per format", dev.pipelines)
	}
}

func TestMaterialBindGroupReuse(t *testing.T) {
	ctx, dev := testContext(t)
	a := newTestTexture(t, ctx, 2, 2)
	b := newTestTexture(t, ctx, 2, 2)
	m := newTestMaterial(t, ctx, compose.White, WithLayers(a))

	for i := 0; i < 3; i++ {
		if _, err := m.BindGroup(); err != nil {
			t.Fatalf("BindGroup() error = %v", err)
		}
	}
	if dev.bindGroups != 1 {
		t.Errorf("created %d bind groups for one material, want 1", dev.bindGroups)
	}
	if _, err := m.WithLayer0(b).BindGroup(); err != nil {
		t.Fatalf("variant BindGroup() error = %v", err)
	}
	if dev.bindGroups != 2 {
		t.Errorf("created %d bind groups after binding a variant, want 2", dev.bindGroups)
	}
}

func TestMaterialRetiresReplacedBindGroups(t *testing.T) {
	ctx, dev := testContext(t)
	a := newTestTexture(t, ctx, 2, 2)
	m := newTestMaterial(t, ctx, compose.White, WithLayers(a))
	if _, err := m.BindGroup(); err != nil {
		t.Fatalf("BindGroup() error = %v", err)
	}

	for i := 0; i < 5; i++ {
		m.dirty = true
		if _, err := m.BindGroup(); err != nil {
			t.Fatalf("BindGroup() after storage change error = %v", err)
		}
		if dev.destroyed != i || ctx.PendingRetired() != 1 {
			t.Fatalf("round %d: %d destroyed, %d pending, want %d, 1", i, dev.destroyed, ctx.PendingRetired(), i)
		}
		if _, err := ctx.Submit("test", func(hal.CommandEncoder) {}); err != nil {
			t.Fatalf("Submit() error = %v", err)
		}
		if dev.destroyed != i+1 || ctx.PendingRetired() != 0 {
			t.Errorf("round %d: %d destroyed, %d pending after completion, want %d, 0",
				i, dev.destroyed, ctx.PendingRetired(), i+1)
		}
	}
}

func TestMaterialBindGroupRejectsSlicedLayer(t *testing.T) {
	ctx, _ := testContext(t, compose.WithMaxTextureSize(4))
	big := newTestTexture(t, ctx, 8, 8)
	if !texture.IsSliced(big) {
		t.Fatal("8x8 texture with a 4 pixel limit is not sliced")
	}
	m := newTestMaterial(t, ctx, compose.White, WithLayers(big))
	if _, err := m.BindGroup(); !errors.Is(err, compose.ErrUnsupported) {
		t.Errorf("BindGroup() error = %v, want ErrUnsupported", err)
	}
}

func TestMaterialReleaseVariant(t *testing.T) {
	ctx, _ := testContext(t)
	a := newTestTexture(t, ctx, 2, 2)
	b := newTestTexture(t, ctx, 2, 2)
	m, err := NewMaterial(ctx, compose.White, WithLayers(a))
	if err != nil {
		t.Fatalf("NewMaterial() error = %v", err)
	}
	v := m.WithLayer0(b).(*Material)
	v.Release()
	if m.prog == nil {
		t.Fatal("releasing a variant freed the root material")
	}
	m.Release()
	m.Release()
	if m.prog != nil || m.derived != nil {
		t.Error("Release() left GPU state behind")
	}
}

func TestQuadShaders(t *testing.T) {
	for n, src := range shaderSources {
		if !strings.Contains(src, "fn vs_main") || !strings.Contains(src, "fn fs_main") {
			t.Errorf("shader for %d layers lacks an entry point", n)
		}
		code, err := shaderCode(n)
		if err != nil {
			t.Fatalf("compile shader for %d layers: %v", n, err)
		}
		if len(code) == 0 || code[0] != 0x07230203 {
			t.Errorf("shader for %d layers is not SPIR-V", n)
		}
	}
}

func TestQuadVertexLayout(t *testing.T) {
	for n := 0; n <= MaxLayers; n++ {
		l := quadVertexLayout(n)
		if l.ArrayStride != uint64(8+8*n) || len(l.Attributes) != n+1 {
			t.Errorf("layout for %d layers: stride %d, %d attributes", n, l.ArrayStride, len(l.Attributes))
		}
	}
}
