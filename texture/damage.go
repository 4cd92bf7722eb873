package texture

// DamageRect is the accumulated area of a pixmap that changed since the
// last refresh, from (X1, Y1) inclusive to (X2, Y2) exclusive. It is
// empty when X1 == X2.
type DamageRect struct {
	X1, Y1, X2, Y2 int
}

// IsEmpty reports whether nothing is damaged.
func (d DamageRect) IsEmpty() bool {
	return d.X1 == d.X2 || d.Y1 == d.Y2
}

// IsWhole reports whether the damage covers a width x height pixmap.
func (d DamageRect) IsWhole(width, height int) bool {
	return d.X1 == 0 && d.Y1 == 0 && d.X2 == width && d.Y2 == height
}

// Union grows the damage to include the width x height rectangle at
// (x, y).
func (d *DamageRect) Union(x, y, width, height int) {
	if width <= 0 || height <= 0 {
		return
	}
	if d.IsEmpty() {
		*d = DamageRect{X1: x, Y1: y, X2: x + width, Y2: y + height}
		return
	}
	d.X1 = min(d.X1, x)
	d.Y1 = min(d.Y1, y)
	d.X2 = max(d.X2, x+width)
	d.Y2 = max(d.Y2, y+height)
}

// Reset clears the damage.
func (d *DamageRect) Reset() {
	*d = DamageRect{}
}
