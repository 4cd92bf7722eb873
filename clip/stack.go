package clip

import (
	"math"

	"github.com/gogpu/compose"
)

// Stack is one snapshot of a clip stack. The effective clip is the
// intersection of every rectangle pushed so far.
type Stack struct {
	parent *Stack
	rect   Rect
	bounds Rect
	depth  int
}

// Push returns a new snapshot with r intersected into the clip.
func (s *Stack) Push(r Rect) *Stack {
	n := &Stack{parent: s, rect: r, bounds: r, depth: 1}
	if s != nil {
		n.bounds = s.bounds.Intersect(r)
		n.depth = s.depth + 1
	}
	return n
}

// PushTransformed pushes the window-space bounding box of the rectangle
// (x0, y0)-(x1, y1) transformed by m.
func (s *Stack) PushTransformed(x0, y0, x1, y1 float32, m compose.Matrix) *Stack {
	minX, minY, maxX, maxY := m.TransformRect(float64(x0), float64(y0), float64(x1), float64(y1))
	return s.Push(Rect{
		X0: float32(minX),
		Y0: float32(minY),
		X1: float32(maxX),
		Y1: float32(maxY),
	})
}

// Pop returns the snapshot before the last push. Popping nil returns nil.
func (s *Stack) Pop() *Stack {
	if s == nil {
		return nil
	}
	return s.parent
}

// Bounds returns the effective clip rectangle. ok is false for nil,
// which does not clip.
func (s *Stack) Bounds() (r Rect, ok bool) {
	if s == nil {
		return Rect{}, false
	}
	return s.bounds, true
}

// Depth returns the number of rectangles pushed.
func (s *Stack) Depth() int {
	if s == nil {
		return 0
	}
	return s.depth
}

// Top returns the last pushed rectangle, before intersection.
func (s *Stack) Top() Rect {
	if s == nil {
		return Rect{}
	}
	return s.rect
}

// Scissor returns the clip as a scissor rectangle in pixels clamped to a
// width x height target. Edges are rounded outward.
func (s *Stack) Scissor(width, height int) (x, y, w, h uint32) {
	if s == nil {
		return 0, 0, uint32(width), uint32(height)
	}
	b := s.bounds
	x0 := clampInt(int(math.Floor(float64(b.X0))), 0, width)
	y0 := clampInt(int(math.Floor(float64(b.Y0))), 0, height)
	x1 := clampInt(int(math.Ceil(float64(b.X1))), 0, width)
	y1 := clampInt(int(math.Ceil(float64(b.Y1))), 0, height)
	if x1 <= x0 || y1 <= y0 {
		return 0, 0, 0, 0
	}
	return uint32(x0), uint32(y0), uint32(x1 - x0), uint32(y1 - y0)
}

func clampInt(v, lo, hi int) int {
	return max(lo, min(v, hi))
}
