package clip

import (
	"testing"

	"github.com/gogpu/compose"
)

func TestNilStack(t *testing.T) {
	var s *Stack
	if _, ok := s.Bounds(); ok {
		t.Error("nil Bounds() ok = true")
	}
	if s.Depth() != 0 {
		t.Errorf("nil Depth() = %d", s.Depth())
	}
	if s.Pop() != nil {
		t.Error("nil Pop() != nil")
	}
	if x, y, w, h := s.Scissor(64, 32); x != 0 || y != 0 || w != 64 || h != 32 {
		t.Errorf("nil Scissor() = %d,%d %dx%d, want full target", x, y, w, h)
	}
}

func TestStackPush(t *testing.T) {
	var s *Stack
	tests := []struct {
		name       string
		rect       Rect
		wantBounds Rect
		wantDepth  int
	}{
		{"first", Rect{10, 10, 60, 60}, Rect{10, 10, 60, 60}, 1},
		{"overlapping", Rect{30, 30, 80, 80}, Rect{30, 30, 60, 60}, 2},
		{"disjoint", Rect{100, 100, 120, 120}, Rect{}, 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s = s.Push(tt.rect)
			if s.Depth() != tt.wantDepth {
				t.Errorf("Depth() = %d, want %d", s.Depth(), tt.wantDepth)
			}
			if b, _ := s.Bounds(); b != tt.wantBounds {
				t.Errorf("Bounds() = %v, want %v", b, tt.wantBounds)
			}
		})
	}
}

func TestStackSnapshotsAreImmutable(t *testing.T) {
	a := (*Stack)(nil).Push(Rect{0, 0, 10, 10})
	b := a.Push(Rect{5, 5, 20, 20})
	if got, _ := a.Bounds(); got != (Rect{0, 0, 10, 10}) {
		t.Errorf("pushing onto a changed it: %v", got)
	}
	if b.Pop() != a {
		t.Error("Pop() did not return the parent snapshot")
	}
	c := a.Push(Rect{5, 5, 20, 20})
	if b == c {
		t.Error("equal pushes share a snapshot")
	}
}

func TestPushTransformed(t *testing.T) {
	m := compose.Translate(10, 20).Multiply(compose.Scale(2, 2))
	s := (*Stack)(nil).PushTransformed(0, 0, 5, 5, m)
	want := Rect{10, 20, 20, 30}
	if got, _ := s.Bounds(); got != want {
		t.Errorf("Bounds() = %v, want %v", got, want)
	}
}

func TestScissor(t *testing.T) {
	tests := []struct {
		r          Rect
		x, y, w, h uint32
	}{
		{Rect{1.5, 2.5, 10.2, 11}, 1, 2, 10, 9},
		{Rect{-5, -5, 10, 10}, 0, 0, 10, 10},
		{Rect{50, 50, 200, 200}, 50, 50, 50, 50},
		{Rect{200, 200, 300, 300}, 0, 0, 0, 0},
	}
	for _, tt := range tests {
		s := (*Stack)(nil).Push(tt.r)
		x, y, w, h := s.Scissor(100, 100)
		if x != tt.x || y != tt.y || w != tt.w || h != tt.h {
			t.Errorf("Scissor(%v) = %d,%d %dx%d, want %d,%d %dx%d", tt.r, x, y, w, h, tt.x, tt.y, tt.w, tt.h)
		}
	}
}

func TestRect(t *testing.T) {
	r := Rect{0, 0, 10, 10}
	if !r.Contains(0, 0) || r.Contains(10, 5) {
		t.Error("Contains() edge handling wrong")
	}
	if !r.ContainsRect(Rect{2, 2, 10, 10}) || r.ContainsRect(Rect{2, 2, 11, 10}) {
		t.Error("ContainsRect() wrong")
	}
	if got := r.Union(Rect{5, 5, 15, 12}); got != (Rect{0, 0, 15, 12}) {
		t.Errorf("Union() = %v", got)
	}
	if got := (Rect{}).Union(r); got != r {
		t.Errorf("empty Union() = %v", got)
	}
	if r.Intersects(Rect{10, 0, 20, 10}) {
		t.Error("touching rectangles reported as intersecting")
	}
}
