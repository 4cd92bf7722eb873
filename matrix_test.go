package compose

import (
	"math"
	"testing"
)

func TestIsAxisAligned(t *testing.T) {
	tests := []struct {
		name string
		m    Matrix
		want bool
	}{
		{"identity", Identity(), true},
		{"translation", Translate(10, 20), true},
		{"scale", Scale(2, 0.5), true},
		{"quarter turn", Rotate(math.Pi / 2), true},
		{"half turn", Rotate(math.Pi), true},
		{"rotation 45deg", Rotate(math.Pi / 4), false},
		{"scale + translate", Scale(2, 3).Multiply(Translate(10, 20)), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.IsAxisAligned(); got != tt.want {
				t.Errorf("Matrix%+v.IsAxisAligned() = %v, want %v", tt.m, got, tt.want)
			}
		})
	}
}

func TestMultiplyOrder(t *testing.T) {
	// Scale after translate: the translation is scaled too.
	m := Scale(2, 2).Multiply(Translate(1, 1))
	x, y := m.TransformPoint(1, 1)
	if x != 4 || y != 4 {
		t.Errorf("TransformPoint(1, 1) = (%v, %v), want (4, 4)", x, y)
	}
}

func TestInvert(t *testing.T) {
	m := Translate(5, -3).Multiply(Scale(2, 4))
	x, y := m.Multiply(m.Invert()).TransformPoint(7, 9)
	if math.Abs(x-7) > 1e-9 || math.Abs(y-9) > 1e-9 {
		t.Errorf("m * m^-1 maps (7, 9) to (%v, %v)", x, y)
	}
	if !(Matrix{}).Invert().IsIdentity() {
		t.Error("singular matrix Invert() should return identity")
	}
}

func TestTransformRect(t *testing.T) {
	x0, y0, x1, y1 := Rotate(math.Pi/2).TransformRect(0, 0, 10, 5)
	want := [4]float64{-5, 0, 0, 10}
	got := [4]float64{x0, y0, x1, y1}
	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-9 {
			t.Fatalf("TransformRect() = %v, want %v", got, want)
		}
	}
}
