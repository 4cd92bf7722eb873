// Package clip provides immutable clip stack snapshots.
//
// A *Stack is a persistent linked list: pushing returns a new snapshot
// and never changes an existing one, so journal entries can hold a clip
// snapshot by pointer and compare snapshots by identity. A nil *Stack
// means no clipping.
package clip

// Rect is an axis-aligned rectangle in window coordinates, from (X0, Y0)
// inclusive to (X1, Y1) exclusive.
type Rect struct {
	X0, Y0, X1, Y1 float32
}

// Empty reports whether the rectangle covers no area.
func (r Rect) Empty() bool {
	return r.X1 <= r.X0 || r.Y1 <= r.Y0
}

// Width returns the width, or 0 for an empty rectangle.
func (r Rect) Width() float32 {
	if r.Empty() {
		return 0
	}
	return r.X1 - r.X0
}

// Height returns the height, or 0 for an empty rectangle.
func (r Rect) Height() float32 {
	if r.Empty() {
		return 0
	}
	return r.Y1 - r.Y0
}

// Contains reports whether the point lies inside the rectangle.
func (r Rect) Contains(x, y float32) bool {
	return x >= r.X0 && x < r.X1 && y >= r.Y0 && y < r.Y1
}

// ContainsRect reports whether other lies entirely inside r. Empty
// rectangles are contained in everything.
func (r Rect) ContainsRect(other Rect) bool {
	if other.Empty() {
		return true
	}
	return other.X0 >= r.X0 && other.Y0 >= r.Y0 && other.X1 <= r.X1 && other.Y1 <= r.Y1
}

// Intersect returns the overlap of two rectangles, or the zero Rect.
func (r Rect) Intersect(other Rect) Rect {
	out := Rect{
		X0: max(r.X0, other.X0),
		Y0: max(r.Y0, other.Y0),
		X1: min(r.X1, other.X1),
		Y1: min(r.Y1, other.Y1),
	}
	if out.Empty() {
		return Rect{}
	}
	return out
}

// Intersects reports whether the rectangles overlap.
func (r Rect) Intersects(other Rect) bool {
	return !r.Intersect(other).Empty()
}

// Union returns the smallest rectangle containing both.
func (r Rect) Union(other Rect) Rect {
	if r.Empty() {
		return other
	}
	if other.Empty() {
		return r
	}
	return Rect{
		X0: min(r.X0, other.X0),
		Y0: min(r.Y0, other.Y0),
		X1: max(r.X1, other.X1),
		Y1: max(r.Y1, other.Y1),
	}
}
