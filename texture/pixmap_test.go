package texture

import (
	"errors"
	"testing"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/bitmap"
	"github.com/gogpu/compose/pixel"
)

type region struct{ x, y, w, h int }

type fakeSource struct {
	w, h, depth int
	geomErr     error
	// bgr565 makes images use a 16-bit layout no format matches.
	bgr565 bool

	getImage []region
	getSub   []region
}

func (s *fakeSource) Geometry() (int, int, int, error) {
	return s.w, s.h, s.depth, s.geomErr
}

func (s *fakeSource) GetImage(x, y, w, h int) (*Image, error) {
	s.getImage = append(s.getImage, region{x, y, w, h})
	return s.image(x, y, w, h), nil
}

func (s *fakeSource) GetSubImage(_ *Image, x, y, w, h int) error {
	s.getSub = append(s.getSub, region{x, y, w, h})
	return nil
}

// image returns a little-endian xRGB image whose blue and green bytes
// hold the absolute x and y of each pixel.
func (s *fakeSource) image(x0, y0, w, h int) *Image {
	img := &Image{
		Width:        w,
		Height:       h,
		Depth:        24,
		BitsPerPixel: 32,
		Rowstride:    w * 4,
		RedMask:      0xff0000,
		GreenMask:    0xff00,
		BlueMask:     0xff,
		LSBFirst:     true,
		Data:         make([]byte, w*h*4),
	}
	if s.bgr565 {
		img.Depth, img.BitsPerPixel = 16, 16
		img.RedMask, img.GreenMask, img.BlueMask = 0x1f, 0x7e0, 0xf800
		img.LSBFirst = false
	}
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			p := img.Data[y*img.Rowstride+x*4:]
			p[0], p[1], p[2] = byte(x0+x), byte(y0+y), 7
		}
	}
	return img
}

type fakeShmSource struct {
	fakeSource
	attachErr error
	attached  bool
	detached  bool
	shared    []region
}

func (s *fakeShmSource) AttachSharedMemory(_, _ int) error {
	if s.attachErr != nil {
		return s.attachErr
	}
	s.attached = true
	return nil
}

func (s *fakeShmSource) GetSharedImage(x, y, w, h int) (*Image, error) {
	s.shared = append(s.shared, region{x, y, w, h})
	return s.image(x, y, w, h), nil
}

func (s *fakeShmSource) DetachSharedMemory() { s.detached = true }

type fakeDamage struct {
	bounds      region
	subtracts   int
	boundsCalls int
	released    bool
}

func (d *fakeDamage) Subtract() error {
	d.subtracts++
	return nil
}

func (d *fakeDamage) SubtractBounds() (int, int, int, int, error) {
	d.boundsCalls++
	return d.bounds.x, d.bounds.y, d.bounds.w, d.bounds.h, nil
}

func (d *fakeDamage) Release() { d.released = true }

type fakeZeroCopy struct {
	ok       bool
	tex      Texture
	updates  int
	notifies int
	released bool
}

func (z *fakeZeroCopy) Update(bool) bool {
	z.updates++
	return z.ok
}

func (z *fakeZeroCopy) DamageNotify()    { z.notifies++ }
func (z *fakeZeroCopy) Texture() Texture { return z.tex }
func (z *fakeZeroCopy) Release()         { z.released = true }

func mustPixmap(t *testing.T, ctx *compose.Context, src Source, opts ...PixmapOption) *Pixmap {
	t.Helper()
	p, err := NewPixmap(ctx, src, opts...)
	if err != nil {
		t.Fatalf("NewPixmap() error = %v", err)
	}
	return p
}

func TestNewPixmap(t *testing.T) {
	ctx, _ := testContext(t)
	tests := []struct {
		depth int
		want  pixel.Format
	}{
		{24, pixel.FormatRGB888},
		{16, pixel.FormatRGB888},
		{32, pixel.FormatRGBA8888Pre},
	}
	for _, tt := range tests {
		p := mustPixmap(t, ctx, &fakeSource{w: 8, h: 4, depth: tt.depth})
		if p.Format() != tt.want {
			t.Errorf("depth %d Format() = %v, want %v", tt.depth, p.Format(), tt.want)
		}
		if !p.Damage().IsWhole(8, 4) {
			t.Errorf("initial Damage() = %+v, want whole pixmap", p.Damage())
		}
		if p.State() != PixmapUninitialized {
			t.Errorf("State() = %v, want PixmapUninitialized", p.State())
		}
		Release(p)
	}
}

func TestNewPixmapGeometryError(t *testing.T) {
	ctx, _ := testContext(t)
	_, err := NewPixmap(ctx, &fakeSource{geomErr: errors.New("bad drawable")})
	if !errors.Is(err, compose.ErrExternalResource) {
		t.Errorf("NewPixmap() error = %v, want ErrExternalResource", err)
	}
}

func TestPixmapRefreshRetainsImage(t *testing.T) {
	ctx, q := testContext(t)
	src := &fakeSource{w: 8, h: 8, depth: 24}
	p := mustPixmap(t, ctx, src)
	defer Release(p)

	PrePaint(p)
	if len(src.getImage) != 1 || src.getImage[0] != (region{0, 0, 8, 8}) {
		t.Fatalf("GetImage calls = %v, want one full fetch", src.getImage)
	}
	if !p.Damage().IsEmpty() {
		t.Errorf("Damage() after refresh = %+v, want empty", p.Damage())
	}

	p.UpdateArea(2, 2, 3, 3)
	PrePaint(p)
	if len(src.getImage) != 1 {
		t.Errorf("GetImage called %d times, want the image retained", len(src.getImage))
	}
	if len(src.getSub) != 1 || src.getSub[0] != (region{2, 2, 3, 3}) {
		t.Errorf("GetSubImage calls = %v, want [{2 2 3 3}]", src.getSub)
	}

	w := q.writes[len(q.writes)-1]
	if w.x != 2 || w.y != 2 || w.w != 3 || w.h != 3 {
		t.Errorf("upload = (%d, %d) %dx%d, want (2, 2) 3x3", w.x, w.y, w.w, w.h)
	}
	if got, want := [4]byte(w.data[:4]), [4]byte{7, 2, 2, 255}; got != want {
		t.Errorf("first uploaded pixel = %v, want %v", got, want)
	}
}

func TestPixmapRefreshSharedMemory(t *testing.T) {
	ctx, q := testContext(t)
	src := &fakeShmSource{fakeSource: fakeSource{w: 8, h: 8, depth: 24}}
	p := mustPixmap(t, ctx, src)

	PrePaint(p)
	p.UpdateArea(2, 2, 3, 3)
	PrePaint(p)

	if !src.attached {
		t.Fatal("shared memory not attached")
	}
	if len(src.getImage) != 0 {
		t.Errorf("GetImage calls = %v, want none", src.getImage)
	}
	want := []region{{0, 0, 8, 8}, {2, 2, 3, 3}}
	if len(src.shared) != len(want) || src.shared[0] != want[0] || src.shared[1] != want[1] {
		t.Errorf("GetSharedImage calls = %v, want %v", src.shared, want)
	}
	// The shared image starts at the damaged origin.
	if got, want := [4]byte(q.writes[1].data[:4]), [4]byte{7, 2, 2, 255}; got != want {
		t.Errorf("first uploaded pixel = %v, want %v", got, want)
	}

	Release(p)
	if !src.detached {
		t.Error("Release() did not detach shared memory")
	}
}

func TestPixmapSharedMemoryFallbacks(t *testing.T) {
	ctx, _ := testContext(t)
	debugCtx, _ := testContext(t, compose.WithDebug(compose.DebugDisableSharedMemory))
	geometry := fakeSource{w: 4, h: 4, depth: 24}
	tests := []struct {
		name string
		src  *fakeShmSource
		ctx  *compose.Context
		opts []PixmapOption
	}{
		{"option", &fakeShmSource{fakeSource: geometry}, ctx, []PixmapOption{WithoutSharedMemory()}},
		{"attach error", &fakeShmSource{fakeSource: geometry, attachErr: errors.New("no shm")}, ctx, nil},
		{"debug flag", &fakeShmSource{fakeSource: geometry}, debugCtx, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := mustPixmap(t, tt.ctx, tt.src, tt.opts...)
			defer Release(p)
			PrePaint(p)
			if tt.src.attached || len(tt.src.shared) != 0 {
				t.Error("shared memory used")
			}
			if len(tt.src.getImage) != 1 {
				t.Errorf("GetImage called %d times, want 1", len(tt.src.getImage))
			}
		})
	}
}

func TestPixmapSetRegionUnsupported(t *testing.T) {
	ctx, _ := testContext(t)
	p := mustPixmap(t, ctx, &fakeSource{w: 4, h: 4, depth: 32})
	defer Release(p)

	big := bitmap.NewForData(8, 8, pixel.FormatRGBA8888Pre, 0, make([]byte, 8*8*4))
	defer big.Release()

	tests := []struct {
		name  string
		write func() error
	}{
		{"data", func() error {
			return SetRegionData(p, 1, 1, pixel.FormatRGBA8888Pre, 0, make([]byte, 4), 0, 0, 0)
		}},
		{"empty data", func() error {
			return SetRegionData(p, 0, 0, pixel.FormatRGBA8888Pre, 0, nil, 0, 0, 0)
		}},
		{"short data", func() error {
			return SetRegionData(p, 2, 2, pixel.FormatRGBA8888Pre, 0, make([]byte, 4), 0, 0, 0)
		}},
		{"bitmap out of bounds", func() error {
			return SetRegion(p, 0, 0, 0, 0, 8, 8, 0, big)
		}},
		{"empty bitmap region", func() error {
			return SetRegion(p, 0, 0, 0, 0, 0, 0, 0, big)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.write()
			if !errors.Is(err, compose.ErrUnsupported) {
				t.Fatalf("error = %v, want ErrUnsupported", err)
			}
			var cerr *compose.Error
			if !errors.As(err, &cerr) || cerr.Domain != compose.DomainTexturePixmap {
				t.Errorf("error = %#v, want domain texture-pixmap", err)
			}
		})
	}
}

func TestPixmapUnknownVisual(t *testing.T) {
	ctx, _ := testContext(t)
	p := mustPixmap(t, ctx, &fakeSource{w: 4, h: 4, depth: 16, bgr565: true})
	defer Release(p)

	if err := p.update(false); !errors.Is(err, compose.ErrUnsupported) {
		t.Errorf("update() error = %v, want ErrUnsupported", err)
	}
	if p.Damage().IsEmpty() {
		t.Error("damage cleared although nothing was uploaded")
	}
}

func TestProcessDamageEvent(t *testing.T) {
	tests := []struct {
		level         ReportLevel
		want          DamageRect
		wantSubtracts int
		wantBounds    int
	}{
		{ReportRaw, DamageRect{10, 10, 15, 15}, 0, 0},
		{ReportDelta, DamageRect{1, 2, 4, 6}, 0, 1},
		{ReportNonEmpty, DamageRect{1, 2, 4, 6}, 0, 1},
		{ReportBoundingBox, DamageRect{10, 10, 15, 15}, 1, 0},
	}
	for _, tt := range tests {
		ctx, _ := testContext(t)
		p := mustPixmap(t, ctx, &fakeSource{w: 32, h: 32, depth: 24})
		PrePaint(p)

		d := &fakeDamage{bounds: region{1, 2, 3, 4}}
		p.SetDamageObject(d, tt.level)
		if p.State() != PixmapTracking {
			t.Errorf("level %d State() = %v, want PixmapTracking", tt.level, p.State())
		}
		if err := p.ProcessDamageEvent(10, 10, 5, 5); err != nil {
			t.Fatalf("level %d ProcessDamageEvent() error = %v", tt.level, err)
		}
		if p.Damage() != tt.want {
			t.Errorf("level %d Damage() = %+v, want %+v", tt.level, p.Damage(), tt.want)
		}
		if d.subtracts != tt.wantSubtracts || d.boundsCalls != tt.wantBounds {
			t.Errorf("level %d subtracts = %d, bounds = %d, want %d, %d",
				tt.level, d.subtracts, d.boundsCalls, tt.wantSubtracts, tt.wantBounds)
		}
		Release(p)
		if d.released {
			t.Errorf("level %d released a damage object it does not own", tt.level)
		}
	}
}

func TestProcessDamageEventWholeOnlySubtracts(t *testing.T) {
	tests := []struct {
		level         ReportLevel
		wantSubtracts int
	}{
		{ReportRaw, 0},
		{ReportDelta, 1},
		{ReportBoundingBox, 1},
		{ReportNonEmpty, 1},
	}
	for _, tt := range tests {
		ctx, _ := testContext(t)
		p := mustPixmap(t, ctx, &fakeSource{w: 32, h: 32, depth: 24})
		d := &fakeDamage{}
		p.SetDamageObject(d, tt.level)
		if err := p.ProcessDamageEvent(10, 10, 5, 5); err != nil {
			t.Fatalf("ProcessDamageEvent() error = %v", err)
		}
		if !p.Damage().IsWhole(32, 32) {
			t.Errorf("level %d Damage() = %+v, want whole", tt.level, p.Damage())
		}
		if d.subtracts != tt.wantSubtracts || d.boundsCalls != 0 {
			t.Errorf("level %d subtracts = %d, bounds = %d, want %d, 0",
				tt.level, d.subtracts, d.boundsCalls, tt.wantSubtracts)
		}
	}
}

func TestProcessDamageEventWithoutObject(t *testing.T) {
	ctx, _ := testContext(t)
	p := mustPixmap(t, ctx, &fakeSource{w: 4, h: 4, depth: 24})
	if err := p.ProcessDamageEvent(0, 0, 1, 1); !errors.Is(err, compose.ErrUnsupported) {
		t.Errorf("ProcessDamageEvent() error = %v, want ErrUnsupported", err)
	}
}

func TestPixmapAutomaticUpdates(t *testing.T) {
	ctx, _ := testContext(t)
	d := &fakeDamage{}
	p := mustPixmap(t, ctx, &fakeSource{w: 4, h: 4, depth: 24}, WithAutomaticUpdates(d))
	if p.State() != PixmapTracking || p.damageLevel != ReportBoundingBox {
		t.Errorf("State() = %v level %d, want tracking bounding box", p.State(), p.damageLevel)
	}

	other := &fakeDamage{}
	p.SetDamageObject(other, ReportRaw)
	if !d.released {
		t.Error("replacing an owned damage object did not release it")
	}
	Release(p)
	if other.released {
		t.Error("Release() released a caller owned damage object")
	}
}

func TestPixmapZeroCopyFallback(t *testing.T) {
	ctx, _ := testContext(t)
	zcTex, err := NewTexture2D(ctx, 8, 8, pixel.FormatRGBA8888Pre)
	if err != nil {
		t.Fatalf("NewTexture2D() error = %v", err)
	}
	zc := &fakeZeroCopy{ok: true, tex: zcTex}
	src := &fakeSource{w: 8, h: 8, depth: 32}
	changes := 0
	p := mustPixmap(t, ctx, src, WithZeroCopy(zc), WithStorageChangeHandler(func() { changes++ }))

	steps := []struct {
		ok          bool
		wantZero    bool
		wantChanges int
		wantFetches int
	}{
		{true, true, 0, 0},
		{false, false, 1, 1},
		{false, false, 1, 1},
		{true, true, 2, 1},
	}
	for i, s := range steps {
		zc.ok = s.ok
		PrePaint(p)
		if p.UsesZeroCopy() != s.wantZero {
			t.Errorf("step %d UsesZeroCopy() = %v, want %v", i, p.UsesZeroCopy(), s.wantZero)
		}
		if changes != s.wantChanges {
			t.Errorf("step %d storage changes = %d, want %d", i, changes, s.wantChanges)
		}
		if len(src.getImage) != s.wantFetches {
			t.Errorf("step %d image fetches = %d, want %d", i, len(src.getImage), s.wantFetches)
		}
		child, err := p.child()
		if err != nil {
			t.Fatalf("step %d child() error = %v", i, err)
		}
		if (child == Texture(zcTex)) != s.wantZero {
			t.Errorf("step %d child() = %T, zero-copy texture expected %v", i, child, s.wantZero)
		}
	}

	p.UpdateArea(0, 0, 1, 1)
	if zc.notifies != 1 {
		t.Errorf("DamageNotify() called %d times, want 1", zc.notifies)
	}
	Release(p)
	if !zc.released {
		t.Error("Release() did not release the zero-copy binding")
	}
	Release(zcTex)
}

func TestOnStorageChangeRemove(t *testing.T) {
	ctx, _ := testContext(t)
	zc := &fakeZeroCopy{}
	p := mustPixmap(t, ctx, &fakeSource{w: 2, h: 2, depth: 24}, WithZeroCopy(zc))
	defer Release(p)

	calls := 0
	remove := p.OnStorageChange(func() { calls++ })
	remove()
	PrePaint(p)
	if calls != 0 {
		t.Errorf("removed handler called %d times", calls)
	}
}
