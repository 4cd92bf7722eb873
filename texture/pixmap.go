package texture

import (
	"fmt"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/pixel"
)

// PixmapState tells whether a pixmap texture tracks damage.
type PixmapState uint8

const (
	// PixmapUninitialized has no damage object; the owner reports changes
	// with UpdateArea.
	PixmapUninitialized PixmapState = iota

	// PixmapTracking has a damage object whose events are fed to
	// ProcessDamageEvent.
	PixmapTracking
)

// PixmapOption configures a pixmap texture.
type PixmapOption func(*pixmapOptions)

type pixmapOptions struct {
	zeroCopy   ZeroCopy
	noShm      bool
	handlers   []func()
	autoDamage Damage
}

// WithZeroCopy binds the pixmap directly to a GPU texture. When the
// binding fails to update, the texture falls back to CPU copies.
func WithZeroCopy(z ZeroCopy) PixmapOption {
	return func(o *pixmapOptions) {
		o.zeroCopy = z
	}
}

// WithoutSharedMemory disables shared memory image transfers.
func WithoutSharedMemory() PixmapOption {
	return func(o *pixmapOptions) {
		o.noShm = true
	}
}

// WithStorageChangeHandler registers fn to run whenever the texture
// switches between zero-copy and CPU storage.
func WithStorageChangeHandler(fn func()) PixmapOption {
	return func(o *pixmapOptions) {
		o.handlers = append(o.handlers, fn)
	}
}

// WithAutomaticUpdates installs d as a bounding-box damage object owned
// by the texture.
func WithAutomaticUpdates(d Damage) PixmapOption {
	return func(o *pixmapOptions) {
		o.autoDamage = d
	}
}

// Pixmap is a texture mirroring a window system pixmap. Changes to the
// pixmap accumulate as damage and are copied on the next paint, either
// through a zero-copy binding or by fetching the damaged pixels.
type Pixmap struct {
	ctx *compose.Context
	src Source

	width  int
	height int
	depth  int
	format pixel.Format

	damage      DamageRect
	damageObj   Damage
	damageLevel ReportLevel
	ownsDamage  bool

	zeroCopy    ZeroCopy
	useZeroCopy bool

	// tex is the CPU fallback storage, created on first refresh.
	tex Texture

	// image is the retained full pixmap image once one was fetched
	// without shared memory.
	image    *Image
	shm      SharedMemorySource
	shmTried bool
	noShm    bool

	handlers []*func()
}

// NewPixmap creates a texture for the pixmap read through src. The whole
// pixmap starts out damaged.
func NewPixmap(ctx *compose.Context, src Source, opts ...PixmapOption) (*Pixmap, error) {
	var o pixmapOptions
	for _, opt := range opts {
		opt(&o)
	}

	width, height, depth, err := src.Geometry()
	if err != nil {
		return nil, compose.WrapError(compose.DomainTexturePixmap, "create", compose.ErrExternalResource,
			fmt.Errorf("unable to query pixmap size: %w", err))
	}

	format := pixel.FormatRGB888
	if depth >= 32 {
		format = pixel.FormatRGBA8888Pre
	}
	p := &Pixmap{
		ctx:         ctx,
		src:         src,
		width:       width,
		height:      height,
		depth:       depth,
		format:      format,
		damage:      DamageRect{X2: width, Y2: height},
		zeroCopy:    o.zeroCopy,
		useZeroCopy: o.zeroCopy != nil,
		noShm:       o.noShm || ctx.Debug().Has(compose.DebugDisableSharedMemory),
	}
	for _, fn := range o.handlers {
		p.OnStorageChange(fn)
	}
	if o.autoDamage != nil {
		p.SetDamageObject(o.autoDamage, ReportBoundingBox)
		p.ownsDamage = true
	}
	return p, nil
}

func (p *Pixmap) kind() Kind { return KindPixmap }

// Width returns the pixmap width.
func (p *Pixmap) Width() int { return p.width }

// Height returns the pixmap height.
func (p *Pixmap) Height() int { return p.height }

// Depth returns the pixmap depth in bits.
func (p *Pixmap) Depth() int { return p.depth }

// Format returns the internal format: premultiplied RGBA for 32-bit
// pixmaps, RGB otherwise.
func (p *Pixmap) Format() pixel.Format { return p.format }

// State reports whether a damage object is attached.
func (p *Pixmap) State() PixmapState {
	if p.damageObj == nil {
		return PixmapUninitialized
	}
	return PixmapTracking
}

// Damage returns the area changed since the last refresh.
func (p *Pixmap) Damage() DamageRect { return p.damage }

// UsesZeroCopy reports whether the zero-copy binding currently backs the
// texture.
func (p *Pixmap) UsesZeroCopy() bool { return p.useZeroCopy }

// OnStorageChange registers fn to run whenever the texture switches
// between zero-copy and CPU storage. The returned function unregisters
// it.
func (p *Pixmap) OnStorageChange(fn func()) (remove func()) {
	h := &fn
	p.handlers = append(p.handlers, h)
	return func() {
		for i, other := range p.handlers {
			if other == h {
				p.handlers = append(p.handlers[:i], p.handlers[i+1:]...)
				return
			}
		}
	}
}

// SetDamageObject attaches a damage object reporting at level. Events
// for it must be passed to ProcessDamageEvent. An owned damage object
// attached earlier is released.
func (p *Pixmap) SetDamageObject(d Damage, level ReportLevel) {
	if p.ownsDamage && p.damageObj != nil {
		p.damageObj.Release()
	}
	p.damageObj = d
	p.damageLevel = level
	p.ownsDamage = false
}

// ProcessDamageEvent handles a damage notification for the rectangle at
// (x, y). Unless the level is raw, the damage object is subtracted so it
// reports again.
func (p *Pixmap) ProcessDamageEvent(x, y, width, height int) error {
	if p.damageObj == nil {
		return compose.NewError(compose.DomainTexturePixmap, "process damage", compose.ErrUnsupported,
			"no damage object attached")
	}

	switch {
	case p.damage.IsWhole(p.width, p.height):
		// Everything is already damaged; only re-arm the object.
		if p.damageLevel != ReportRaw {
			if err := p.damageObj.Subtract(); err != nil {
				return compose.WrapError(compose.DomainTexturePixmap, "subtract damage", nil, err)
			}
		}
	case p.damageLevel == ReportDelta || p.damageLevel == ReportNonEmpty:
		bx, by, bw, bh, err := p.damageObj.SubtractBounds()
		if err != nil {
			return compose.WrapError(compose.DomainTexturePixmap, "subtract damage", nil, err)
		}
		p.damage.Union(bx, by, bw, bh)
	case p.damageLevel == ReportBoundingBox:
		if err := p.damageObj.Subtract(); err != nil {
			return compose.WrapError(compose.DomainTexturePixmap, "subtract damage", nil, err)
		}
		p.damage.Union(x, y, width, height)
	default:
		p.damage.Union(x, y, width, height)
	}

	if p.zeroCopy != nil {
		p.zeroCopy.DamageNotify()
	}
	return nil
}

// UpdateArea marks the rectangle at (x, y) as changed.
func (p *Pixmap) UpdateArea(x, y, width, height int) {
	if p.zeroCopy != nil {
		p.zeroCopy.DamageNotify()
	}
	p.damage.Union(x, y, width, height)
}

func (p *Pixmap) setUseZeroCopy(v bool) {
	if p.useZeroCopy == v {
		return
	}
	p.useZeroCopy = v
	if !v {
		compose.Logger().Warn("texture: zero-copy pixmap binding failed, falling back to CPU copies",
			"width", p.width, "height", p.height)
	}
	for _, h := range p.handlers {
		(*h)()
	}
}

func (p *Pixmap) update(needsMipmap bool) error {
	if p.zeroCopy != nil {
		if p.zeroCopy.Update(needsMipmap) {
			p.setUseZeroCopy(true)
			return nil
		}
		p.setUseZeroCopy(false)
	}
	return p.refresh()
}

// refresh copies the damaged area into the fallback texture.
func (p *Pixmap) refresh() error {
	if p.damage.IsEmpty() {
		return nil
	}
	if p.tex == nil {
		tex, err := New(p.ctx, p.width, p.height, p.format)
		if err != nil {
			return err
		}
		p.tex = tex
	}

	x, y := max(p.damage.X1, 0), max(p.damage.Y1, 0)
	w, h := min(p.damage.X2, p.width)-x, min(p.damage.Y2, p.height)-y
	if w <= 0 || h <= 0 {
		p.damage.Reset()
		return nil
	}

	var (
		img        *Image
		srcX, srcY int
		err        error
	)
	switch {
	case p.image != nil:
		err = p.src.GetSubImage(p.image, x, y, w, h)
		img, srcX, srcY = p.image, x, y
	default:
		if !p.shmTried {
			p.shmTried = true
			p.attachSharedMemory()
		}
		if p.shm != nil {
			img, err = p.shm.GetSharedImage(x, y, w, h)
		} else {
			img, err = p.src.GetImage(0, 0, p.width, p.height)
			p.image, srcX, srcY = img, x, y
		}
	}
	if err != nil {
		return compose.WrapError(compose.DomainTexturePixmap, "fetch image", nil, err)
	}

	format, ok := pixel.FormatFromMasks(img.Depth, img.BitsPerPixel,
		img.RedMask, img.GreenMask, img.BlueMask, img.LSBFirst)
	if !ok {
		compose.Logger().Warn("texture: no pixel format matches the pixmap visual",
			"depth", img.Depth, "bpp", img.BitsPerPixel,
			"red", fmt.Sprintf("%#x", img.RedMask),
			"green", fmt.Sprintf("%#x", img.GreenMask),
			"blue", fmt.Sprintf("%#x", img.BlueMask))
		return compose.NewError(compose.DomainTexturePixmap, "refresh", compose.ErrUnsupported,
			"no pixel format matches the pixmap visual")
	}

	offset := img.Rowstride*srcY + pixel.BytesPerPixel(format)*srcX
	if err := SetRegionData(p.tex, w, h, format, img.Rowstride, img.Data[offset:], x, y, 0); err != nil {
		return err
	}
	p.damage.Reset()
	return nil
}

func (p *Pixmap) attachSharedMemory() {
	if p.noShm {
		return
	}
	shm, ok := p.src.(SharedMemorySource)
	if !ok {
		return
	}
	if err := shm.AttachSharedMemory(p.width, p.height); err != nil {
		compose.Logger().Warn("texture: shared memory transfers unavailable", "err", err)
		return
	}
	p.shm = shm
}

// child returns the texture currently backing the pixmap, refreshing
// once if there is none.
func (p *Pixmap) child() (Texture, error) {
	for range 2 {
		var t Texture
		if p.useZeroCopy {
			t = p.zeroCopy.Texture()
		} else {
			t = p.tex
		}
		if t != nil {
			return t, nil
		}
		if err := p.update(false); err != nil {
			return nil, err
		}
	}
	return nil, compose.NewError(compose.DomainTexturePixmap, "get texture", compose.ErrExternalResource,
		"no storage available")
}

func (p *Pixmap) prePaint() {
	if err := p.update(false); err != nil {
		compose.Logger().Warn("texture: pixmap refresh failed", "err", err)
	}
	if child, err := p.child(); err == nil {
		PrePaint(child)
	}
}

func (p *Pixmap) setRegion() error {
	return compose.NewError(compose.DomainTexturePixmap, "set region", compose.ErrUnsupported,
		"explicitly setting a region of a pixmap texture is unsupported")
}

func (p *Pixmap) readInto(format pixel.Format, rowstride int, dst []byte) error {
	child, err := p.child()
	if err != nil {
		return err
	}
	_, err = GetData(child, format, rowstride, dst)
	return err
}

func (p *Pixmap) release() {
	if p.ownsDamage && p.damageObj != nil {
		p.damageObj.Release()
	}
	p.damageObj = nil
	if p.shm != nil {
		p.shm.DetachSharedMemory()
		p.shm = nil
	}
	if p.zeroCopy != nil {
		p.zeroCopy.Release()
		p.zeroCopy = nil
		p.useZeroCopy = false
	}
	if p.tex != nil {
		Release(p.tex)
		p.tex = nil
	}
	p.image = nil
}
