package texture

import (
	"bytes"
	"errors"
	"testing"

	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/pixel"
)

// recordingQueue captures texture writes so uploads can be inspected.
type recordingQueue struct {
	*noop.Queue
	writes []textureWrite
}

type textureWrite struct {
	x, y, w, h  int
	bytesPerRow int
	data        []byte
}

func (q *recordingQueue) WriteTexture(dst *hal.ImageCopyTexture, data []byte, layout *hal.ImageDataLayout,
	size *hal.Extent3D) error {
	q.writes = append(q.writes, textureWrite{
		x:           int(dst.Origin.X),
		y:           int(dst.Origin.Y),
		w:           int(size.Width),
		h:           int(size.Height),
		bytesPerRow: int(layout.BytesPerRow),
		data:        bytes.Clone(data),
	})
	return nil
}

func testContext(t *testing.T, opts ...compose.ContextOption) (*compose.Context, *recordingQueue) {
	t.Helper()
	q := &recordingQueue{Queue: &noop.Queue{}}
	ctx, err := compose.NewContext(&noop.Device{}, q, opts...)
	if err != nil {
		t.Fatalf("NewContext() error = %v", err)
	}
	return ctx, q
}

func TestTexture2DUploadConverts(t *testing.T) {
	ctx, q := testContext(t)
	tex, err := NewTexture2D(ctx, 4, 2, pixel.FormatRGBA8888Pre)
	if err != nil {
		t.Fatalf("NewTexture2D() error = %v", err)
	}
	defer Release(tex)

	// One straight BGRA pixel.
	src := []byte{0, 100, 200, 128}
	if err := SetRegionData(tex, 1, 1, pixel.FormatBGRA8888, 0, src, 1, 1, 0); err != nil {
		t.Fatalf("SetRegionData() error = %v", err)
	}
	if len(q.writes) != 1 {
		t.Fatalf("got %d texture writes, want 1", len(q.writes))
	}
	w := q.writes[0]
	if w.x != 1 || w.y != 1 || w.w != 1 || w.h != 1 {
		t.Errorf("write region = (%d, %d) %dx%d, want (1, 1) 1x1", w.x, w.y, w.w, w.h)
	}
	if want := []byte{100, 50, 0, 128}; !bytes.Equal(w.data, want) {
		t.Errorf("uploaded %v, want %v", w.data, want)
	}
}

func TestOpaqueTextureIgnoresSourceAlpha(t *testing.T) {
	ctx, q := testContext(t)
	tex, err := NewTexture2D(ctx, 1, 1, pixel.FormatRGB888)
	if err != nil {
		t.Fatalf("NewTexture2D() error = %v", err)
	}
	defer Release(tex)

	// Premultiplied ARGB with an undefined alpha byte.
	src := []byte{0, 10, 20, 30}
	if err := SetRegionData(tex, 1, 1, pixel.FormatARGB8888Pre, 0, src, 0, 0, 0); err != nil {
		t.Fatalf("SetRegionData() error = %v", err)
	}
	if want := []byte{10, 20, 30, 255}; !bytes.Equal(q.writes[0].data, want) {
		t.Errorf("uploaded %v, want %v", q.writes[0].data, want)
	}
}

func TestTexture2DBufferUploadSkipsStaging(t *testing.T) {
	ctx, q := testContext(t)
	tex, err := NewTexture2D(ctx, 64, 2, pixel.FormatRGBA8888Pre)
	if err != nil {
		t.Fatalf("NewTexture2D() error = %v", err)
	}
	defer Release(tex)

	bmp, err := bitmap.NewWithSize(ctx, 64, 2, pixel.FormatRGBA8888Pre)
	if err != nil {
		t.Fatalf("NewWithSize() error = %v", err)
	}
	defer bmp.Release()

	if err := SetRegion(tex, 0, 0, 0, 0, 64, 2, 0, bmp); err != nil {
		t.Fatalf("SetRegion() error = %v", err)
	}
	if len(q.writes) != 0 {
		t.Errorf("got %d staging writes, want a buffer copy", len(q.writes))
	}
	if bmp.IsBound() {
		t.Error("bitmap still bound after upload")
	}
}

func TestSetRegionBounds(t *testing.T) {
	ctx, _ := testContext(t)
	tex, err := NewTexture2D(ctx, 4, 4, pixel.FormatRGBA8888Pre)
	if err != nil {
		t.Fatalf("NewTexture2D() error = %v", err)
	}
	defer Release(tex)

	data := make([]byte, 4*4*4)
	if err := SetRegionData(tex, 4, 4, pixel.FormatRGBA8888Pre, 0, data, 1, 0, 0); !errors.Is(err, bitmap.ErrRegionOutOfBounds) {
		t.Errorf("SetRegionData() outside texture error = %v, want ErrRegionOutOfBounds", err)
	}
	if err := SetRegionData(tex, 4, 4, pixel.FormatRGBA8888Pre, 0, data[:10], 0, 0, 0); !errors.Is(err, bitmap.ErrRegionOutOfBounds) {
		t.Errorf("SetRegionData() short data error = %v, want ErrRegionOutOfBounds", err)
	}
	if err := SetRegionData(tex, 4, 4, pixel.FormatRGBA8888Pre, 0, data, 0, 0, 1); !errors.Is(err, compose.ErrUnsupported) {
		t.Errorf("SetRegionData() level 1 error = %v, want ErrUnsupported", err)
	}
}

func TestNewTexture2DTooLarge(t *testing.T) {
	ctx, _ := testContext(t, compose.WithMaxTextureSize(4))
	if _, err := NewTexture2D(ctx, 5, 4, pixel.FormatRGBA8888Pre); !errors.Is(err, compose.ErrUnsupported) {
		t.Errorf("NewTexture2D(5x4) error = %v, want ErrUnsupported", err)
	}
	if _, err := NewTexture2D(ctx, 0, 4, pixel.FormatRGBA8888Pre); !errors.Is(err, bitmap.ErrInvalidSize) {
		t.Errorf("NewTexture2D(0x4) error = %v, want ErrInvalidSize", err)
	}
}

func TestNewPicksSlicedAboveLimit(t *testing.T) {
	ctx, _ := testContext(t, compose.WithMaxTextureSize(4))
	tests := []struct {
		w, h       int
		kind       Kind
		sliced     bool
		cols, rows int
	}{
		{4, 4, KindPlain2D, false, 1, 1},
		{10, 6, KindSliced, true, 3, 2},
		{4, 9, KindSliced, true, 1, 3},
	}
	for _, tt := range tests {
		tex, err := New(ctx, tt.w, tt.h, pixel.FormatRGBA8888Pre)
		if err != nil {
			t.Fatalf("New(%dx%d) error = %v", tt.w, tt.h, err)
		}
		if KindOf(tex) != tt.kind {
			t.Errorf("New(%dx%d) kind = %v, want %v", tt.w, tt.h, KindOf(tex), tt.kind)
		}
		if IsSliced(tex) != tt.sliced {
			t.Errorf("IsSliced(%dx%d) = %v, want %v", tt.w, tt.h, IsSliced(tex), tt.sliced)
		}
		if s, ok := tex.(*Sliced); ok {
			if cols, rows := s.Grid(); cols != tt.cols || rows != tt.rows {
				t.Errorf("Grid() = %dx%d, want %dx%d", cols, rows, tt.cols, tt.rows)
			}
			if View(tex) != nil {
				t.Error("View() of a multi-slice texture is not nil")
			}
		}
		Release(tex)
	}
}

func TestSlicedSetRegionSplits(t *testing.T) {
	ctx, q := testContext(t, compose.WithMaxTextureSize(4))
	tex, err := NewSliced(ctx, 8, 8, pixel.FormatRGBA8888Pre)
	if err != nil {
		t.Fatalf("NewSliced() error = %v", err)
	}
	defer Release(tex)

	// 2x2 block straddling all four slices; the red channel numbers the pixels.
	src := []byte{
		1, 0, 0, 255, 2, 0, 0, 255,
		3, 0, 0, 255, 4, 0, 0, 255,
	}
	if err := SetRegionData(tex, 2, 2, pixel.FormatRGBA8888Pre, 0, src, 3, 3, 0); err != nil {
		t.Fatalf("SetRegionData() error = %v", err)
	}

	want := []struct {
		x, y int
		red  byte
	}{
		{3, 3, 1},
		{0, 3, 2},
		{3, 0, 3},
		{0, 0, 4},
	}
	if len(q.writes) != len(want) {
		t.Fatalf("got %d writes, want %d", len(q.writes), len(want))
	}
	for i, w := range want {
		got := q.writes[i]
		if got.x != w.x || got.y != w.y || got.w != 1 || got.h != 1 {
			t.Errorf("write %d = (%d, %d) %dx%d, want (%d, %d) 1x1", i, got.x, got.y, got.w, got.h, w.x, w.y)
		}
		if got.data[0] != w.red {
			t.Errorf("write %d red = %d, want %d", i, got.data[0], w.red)
		}
	}
}

func TestForEachSubTexture(t *testing.T) {
	ctx, _ := testContext(t, compose.WithMaxTextureSize(4))
	tex, err := NewSliced(ctx, 8, 8, pixel.FormatRGBA8888Pre)
	if err != nil {
		t.Fatalf("NewSliced() error = %v", err)
	}
	defer Release(tex)

	type piece struct{ sub, virt [4]float32 }
	var got []piece
	ForEachSubTexture(tex, 0.25, 0.25, 0.75, 0.75, func(_ Texture, sub, virt [4]float32) {
		got = append(got, piece{sub, virt})
	})
	want := []piece{
		{[4]float32{0.5, 0.5, 1, 1}, [4]float32{0.25, 0.25, 0.5, 0.5}},
		{[4]float32{0, 0.5, 0.5, 1}, [4]float32{0.5, 0.25, 0.75, 0.5}},
		{[4]float32{0.5, 0, 1, 0.5}, [4]float32{0.25, 0.5, 0.5, 0.75}},
		{[4]float32{0, 0, 0.5, 0.5}, [4]float32{0.5, 0.5, 0.75, 0.75}},
	}
	if len(got) != len(want) {
		t.Fatalf("got %d pieces, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("piece %d = %v, want %v", i, got[i], want[i])
		}
	}

	plain, err := NewTexture2D(ctx, 4, 4, pixel.FormatRGBA8888Pre)
	if err != nil {
		t.Fatalf("NewTexture2D() error = %v", err)
	}
	defer Release(plain)
	calls := 0
	ForEachSubTexture(plain, 0, 0, 1, 1, func(sub Texture, subCoords, virt [4]float32) {
		calls++
		if sub != Texture(plain) || subCoords != virt || subCoords != [4]float32{0, 0, 1, 1} {
			t.Errorf("plain texture piece = %v %v", subCoords, virt)
		}
	})
	if calls != 1 {
		t.Errorf("plain texture visited %d times, want 1", calls)
	}
}

func TestGetData(t *testing.T) {
	ctx, _ := testContext(t)
	tex, err := NewTexture2D(ctx, 4, 2, pixel.FormatRGBA8888Pre)
	if err != nil {
		t.Fatalf("NewTexture2D() error = %v", err)
	}
	defer Release(tex)

	n, err := GetData(tex, pixel.FormatAny, 0, nil)
	if err != nil || n != 32 {
		t.Fatalf("GetData(nil) = %d, %v, want 32, nil", n, err)
	}
	dst := bytes.Repeat([]byte{0xaa}, 3*4*2)
	n, err = GetData(tex, pixel.FormatRGB888, 0, dst)
	if err != nil || n != 24 {
		t.Fatalf("GetData(RGB888) = %d, %v, want 24, nil", n, err)
	}
	// The noop device keeps no texel data, so the read-back is zero.
	if !bytes.Equal(dst, make([]byte, 24)) {
		t.Errorf("GetData() = %v, want zeros", dst)
	}
}

func TestUpdateRegionValidatesLength(t *testing.T) {
	ctx, q := testContext(t)
	tex, err := NewTexture2D(ctx, 2, 2, pixel.FormatRGBA8888)
	if err != nil {
		t.Fatalf("NewTexture2D() error = %v", err)
	}
	defer Release(tex)

	if err := tex.UpdateRegion(0, 0, 2, 2, make([]byte, 15)); !errors.Is(err, bitmap.ErrInvalidSize) {
		t.Errorf("UpdateRegion() short data error = %v, want ErrInvalidSize", err)
	}
	if err := tex.UpdateData(make([]byte, 16)); err != nil {
		t.Errorf("UpdateData() error = %v", err)
	}
	if len(q.writes) != 1 || q.writes[0].bytesPerRow != 8 {
		t.Errorf("writes = %+v, want one write of 8-byte rows", q.writes)
	}
}

func TestDamageRect(t *testing.T) {
	var d DamageRect
	if !d.IsEmpty() {
		t.Error("zero DamageRect not empty")
	}
	d.Union(10, 10, 5, 5)
	d.Union(20, 20, 5, 5)
	if want := (DamageRect{10, 10, 25, 25}); d != want {
		t.Errorf("Union() = %+v, want %+v", d, want)
	}
	d.Union(12, 12, 2, 2)
	if want := (DamageRect{10, 10, 25, 25}); d != want {
		t.Errorf("Union() of inner rect = %+v, want %+v", d, want)
	}
	d.Union(0, 0, 0, 4)
	if want := (DamageRect{10, 10, 25, 25}); d != want {
		t.Errorf("Union() of empty rect = %+v, want %+v", d, want)
	}
	if d.IsWhole(25, 25) || !(DamageRect{0, 0, 25, 25}).IsWhole(25, 25) {
		t.Error("IsWhole() wrong")
	}
	d.Reset()
	if !d.IsEmpty() {
		t.Error("Reset() left damage")
	}
}
