package compose

import "math"

// Matrix is a 2D affine transform used as the modelview of a framebuffer.
// It uses a 2x3 matrix in row-major order:
//
//	| a  b  c |
//	| d  e  f |
//
// This represents the transformation:
//
//	x' = a*x + b*y + c
//	y' = d*x + e*y + f
//
// Matrix is a value type; journal entries keep their own copy, so later
// changes to a framebuffer's modelview never affect logged geometry.
type Matrix struct {
	A, B, C float64
	D, E, F float64
}

// axisEpsilon absorbs the rounding of sin/cos at multiples of 90 degrees.
const axisEpsilon = 1e-9

// Identity returns the identity transformation matrix.
func Identity() Matrix {
	return Matrix{A: 1, E: 1}
}

// Translate creates a translation matrix.
func Translate(x, y float64) Matrix {
	return Matrix{A: 1, C: x, E: 1, F: y}
}

// Scale creates a scaling matrix.
func Scale(x, y float64) Matrix {
	return Matrix{A: x, E: y}
}

// Rotate creates a rotation matrix (angle in radians).
func Rotate(angle float64) Matrix {
	sin, cos := math.Sincos(angle)
	return Matrix{
		A: cos, B: -sin,
		D: sin, E: cos,
	}
}

// Multiply multiplies two matrices (m * other). The result applies other
// first, then m.
func (m Matrix) Multiply(other Matrix) Matrix {
	return Matrix{
		A: m.A*other.A + m.B*other.D,
		B: m.A*other.B + m.B*other.E,
		C: m.A*other.C + m.B*other.F + m.C,
		D: m.D*other.A + m.E*other.D,
		E: m.D*other.B + m.E*other.E,
		F: m.D*other.C + m.E*other.F + m.F,
	}
}

// TransformPoint applies the transformation to a point.
func (m Matrix) TransformPoint(x, y float64) (float64, float64) {
	return m.A*x + m.B*y + m.C, m.D*x + m.E*y + m.F
}

// Invert returns the inverse matrix.
// Returns the identity matrix if the matrix is not invertible.
func (m Matrix) Invert() Matrix {
	det := m.A*m.E - m.B*m.D
	if math.Abs(det) < 1e-10 {
		return Identity()
	}

	invDet := 1.0 / det
	return Matrix{
		A: m.E * invDet,
		B: -m.B * invDet,
		C: (m.B*m.F - m.C*m.E) * invDet,
		D: -m.D * invDet,
		E: m.A * invDet,
		F: (m.C*m.D - m.A*m.F) * invDet,
	}
}

// IsIdentity reports whether the matrix is the identity matrix.
func (m Matrix) IsIdentity() bool {
	return m == Identity()
}

// IsAxisAligned reports whether the transform maps axis-aligned rectangles
// to axis-aligned rectangles (scale, translation and quarter turns).
func (m Matrix) IsAxisAligned() bool {
	near := func(v float64) bool { return math.Abs(v) < axisEpsilon }
	return (near(m.B) && near(m.D)) || (near(m.A) && near(m.E))
}

// TransformRect returns the axis-aligned bounding box of the rectangle
// (x0,y0)-(x1,y1) after transformation.
func (m Matrix) TransformRect(x0, y0, x1, y1 float64) (minX, minY, maxX, maxY float64) {
	xs := [4]float64{}
	ys := [4]float64{}
	xs[0], ys[0] = m.TransformPoint(x0, y0)
	xs[1], ys[1] = m.TransformPoint(x1, y0)
	xs[2], ys[2] = m.TransformPoint(x1, y1)
	xs[3], ys[3] = m.TransformPoint(x0, y1)
	minX, minY, maxX, maxY = xs[0], ys[0], xs[0], ys[0]
	for i := 1; i < 4; i++ {
		minX = math.Min(minX, xs[i])
		maxX = math.Max(maxX, xs[i])
		minY = math.Min(minY, ys[i])
		maxY = math.Max(maxY, ys[i])
	}
	return minX, minY, maxX, maxY
}
