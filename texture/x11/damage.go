package x11

import (
	"github.com/BurntSushi/xgb"
	"github.com/BurntSushi/xgb/damage"
	"github.com/BurntSushi/xgb/xfixes"
	"github.com/BurntSushi/xgb/xproto"

	"github.com/gogpu/compose"
	"github.com/gogpu/compose/texture"
)

// Damage is an XDamage object. It implements texture.Damage.
type Damage struct {
	conn  *xgb.Conn
	id    damage.Damage
	level texture.ReportLevel

	// region receives subtracted damage; created on first use.
	region xfixes.Region
}

var _ texture.Damage = (*Damage)(nil)

// NewDamage starts tracking changes to drawable at the given report
// level. Notify events are delivered on conn.
func NewDamage(conn *xgb.Conn, drawable xproto.Drawable, level texture.ReportLevel) (*Damage, error) {
	if err := damage.Init(conn); err != nil {
		return nil, compose.WrapError(compose.DomainTexturePixmap, "init damage", compose.ErrUnsupported, err)
	}
	if _, err := damage.QueryVersion(conn, 1, 1).Reply(); err != nil {
		return nil, compose.WrapError(compose.DomainTexturePixmap, "init damage", nil, err)
	}
	if err := xfixes.Init(conn); err != nil {
		return nil, compose.WrapError(compose.DomainTexturePixmap, "init xfixes", compose.ErrUnsupported, err)
	}
	if _, err := xfixes.QueryVersion(conn, 2, 0).Reply(); err != nil {
		return nil, compose.WrapError(compose.DomainTexturePixmap, "init xfixes", nil, err)
	}

	id, err := damage.NewDamageId(conn)
	if err != nil {
		return nil, compose.WrapError(compose.DomainTexturePixmap, "create damage", nil, err)
	}
	if err := damage.CreateChecked(conn, id, drawable, reportLevel(level)).Check(); err != nil {
		return nil, compose.WrapError(compose.DomainTexturePixmap, "create damage", nil, err)
	}
	return &Damage{conn: conn, id: id, level: level}, nil
}

// Level returns the report level.
func (d *Damage) Level() texture.ReportLevel { return d.level }

// Subtract clears the accumulated damage.
func (d *Damage) Subtract() error {
	return damage.SubtractChecked(d.conn, d.id, 0, 0).Check()
}

// SubtractBounds clears the accumulated damage and returns the bounding
// box of what was cleared.
func (d *Damage) SubtractBounds() (x, y, width, height int, err error) {
	if d.region == 0 {
		region, err := xfixes.NewRegionId(d.conn)
		if err != nil {
			return 0, 0, 0, 0, err
		}
		if err := xfixes.CreateRegionChecked(d.conn, region, nil).Check(); err != nil {
			return 0, 0, 0, 0, err
		}
		d.region = region
	}
	if err := damage.SubtractChecked(d.conn, d.id, 0, d.region).Check(); err != nil {
		return 0, 0, 0, 0, err
	}
	reply, err := xfixes.FetchRegion(d.conn, d.region).Reply()
	if err != nil {
		return 0, 0, 0, 0, err
	}
	r := reply.Extents
	return int(r.X), int(r.Y), int(r.Width), int(r.Height), nil
}

// Release destroys the damage object.
func (d *Damage) Release() {
	if d.region != 0 {
		xfixes.DestroyRegion(d.conn, d.region)
		d.region = 0
	}
	damage.Destroy(d.conn, d.id)
}

// Dispatch passes ev to p if it is a notify event for this damage
// object. It reports whether the event was consumed.
func (d *Damage) Dispatch(ev xgb.Event, p *texture.Pixmap) (bool, error) {
	n, ok := ev.(damage.NotifyEvent)
	if !ok || n.Damage != d.id {
		return false, nil
	}
	a := n.Area
	return true, p.ProcessDamageEvent(int(a.X), int(a.Y), int(a.Width), int(a.Height))
}

// NewPixmapTexture creates a texture for pixmap. With automatic updates
// the texture owns a bounding-box damage object, which is returned so
// events can be dispatched to it.
func NewPixmapTexture(ctx *compose.Context, conn *xgb.Conn, pixmap xproto.Pixmap, automatic bool,
	opts ...texture.PixmapOption) (*texture.Pixmap, *Damage, error) {
	src, err := NewSource(conn, pixmap)
	if err != nil {
		return nil, nil, err
	}
	var d *Damage
	if automatic {
		d, err = NewDamage(conn, xproto.Drawable(pixmap), texture.ReportBoundingBox)
		if err != nil {
			compose.Logger().Warn("x11: damage tracking unavailable", "err", err)
			d = nil
		} else {
			opts = append(opts, texture.WithAutomaticUpdates(d))
		}
	}
	p, err := texture.NewPixmap(ctx, src, opts...)
	if err != nil {
		if d != nil {
			d.Release()
		}
		return nil, nil, err
	}
	return p, d, nil
}

func reportLevel(l texture.ReportLevel) byte {
	switch l {
	case texture.ReportDelta:
		return damage.ReportLevelDeltaRectangles
	case texture.ReportBoundingBox:
		return damage.ReportLevelBoundingBox
	case texture.ReportNonEmpty:
		return damage.ReportLevelNonEmpty
	default:
		return damage.ReportLevelRawRectangles
	}
}
