// internal/browser/geom/geom.go
package geom

import (
	"fmt"
	"math"
)

// Rect is an axis-aligned rectangle in CSS pixels.
type Rect struct {
	X, Y, Width, Height float64
}

// NewRect builds a rectangle from its edges.
func NewRect(left, top, right, bottom float64) Rect {
	return Rect{X: left, Y: top, Width: right - left, Height: bottom - top}
}

func (r Rect) Right() float64  { return r.X + r.Width }
func (r Rect) Bottom() float64 { return r.Y + r.Height }

// IsEmpty reports whether the rectangle encloses no area.
func (r Rect) IsEmpty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Contains reports whether (x, y) lies inside r. The right and bottom edges
// are exclusive.
func (r Rect) Contains(x, y float64) bool {
	return x >= r.X && x < r.Right() && y >= r.Y && y < r.Bottom()
}

// Intersects reports whether two rectangles share any area.
func (r Rect) Intersects(o Rect) bool {
	if r.IsEmpty() || o.IsEmpty() {
		return false
	}
	return r.X < o.Right() && o.X < r.Right() && r.Y < o.Bottom() && o.Y < r.Bottom()
}

// Intersect returns the overlap of r and o, or the zero Rect.
func (r Rect) Intersect(o Rect) Rect {
	if !r.Intersects(o) {
		return Rect{}
	}
	return NewRect(math.Max(r.X, o.X), math.Max(r.Y, o.Y),
		math.Min(r.Right(), o.Right()), math.Min(r.Bottom(), o.Bottom()))
}

// Union returns the smallest rectangle containing both. Empty inputs are
// ignored.
func (r Rect) Union(o Rect) Rect {
	if r.IsEmpty() {
		return o
	}
	if o.IsEmpty() {
		return r
	}
	return NewRect(math.Min(r.X, o.X), math.Min(r.Y, o.Y),
		math.Max(r.Right(), o.Right()), math.Max(r.Bottom(), o.Bottom()))
}

// Offset returns r moved by (dx, dy).
func (r Rect) Offset(dx, dy float64) Rect {
	return Rect{X: r.X + dx, Y: r.Y + dy, Width: r.Width, Height: r.Height}
}

// ExpandedBy returns a new rectangle expanded by the edge sizes.
func (r Rect) ExpandedBy(e Edges) Rect {
	return Rect{
		X:      r.X - e.Left,
		Y:      r.Y - e.Top,
		Width:  r.Width + e.Left + e.Right,
		Height: r.Height + e.Top + e.Bottom,
	}
}

func (r Rect) String() string {
	return fmt.Sprintf("Rect(%g, %g, %g, %g)", r.X, r.Y, r.Right(), r.Bottom())
}

// Edges holds per-side sizes (padding, border widths, outlines).
type Edges struct {
	Top, Right, Bottom, Left float64
}

// Uniform returns edges of size v on every side.
func Uniform(v float64) Edges {
	return Edges{Top: v, Right: v, Bottom: v, Left: v}
}

// -- 2D Transforms --

// TransformMatrix represents a 2D affine transformation matrix (3x3).
// [ a c e ]
// [ b d f ]
// [ 0 0 1 ]
type TransformMatrix struct {
	A, B, C, D, E, F float64
}

// IdentityMatrix returns the identity matrix (no transformation).
func IdentityMatrix() TransformMatrix {
	return TransformMatrix{A: 1, D: 1}
}

// TranslateMatrix creates a translation matrix.
func TranslateMatrix(tx, ty float64) TransformMatrix {
	return TransformMatrix{A: 1, D: 1, E: tx, F: ty}
}

// IsIdentity reports whether m leaves every point in place.
func (m TransformMatrix) IsIdentity() bool {
	return m == IdentityMatrix()
}

// Multiply combines two matrices (m1 * m2). Order matters.
func (m1 TransformMatrix) Multiply(m2 TransformMatrix) TransformMatrix {
	return TransformMatrix{
		A: m1.A*m2.A + m1.C*m2.B,
		B: m1.B*m2.A + m1.D*m2.B,
		C: m1.A*m2.C + m1.C*m2.D,
		D: m1.B*m2.C + m1.D*m2.D,
		E: m1.A*m2.E + m1.C*m2.F + m1.E,
		F: m1.B*m2.E + m1.D*m2.F + m1.F,
	}
}

// Apply transforms a point (x, y).
func (m TransformMatrix) Apply(x, y float64) (float64, float64) {
	return m.A*x + m.C*y + m.E, m.B*x + m.D*y + m.F
}

// Inverse calculates the inverse of the transformation matrix. If the matrix
// is not invertible it returns an error.
func (m TransformMatrix) Inverse() (TransformMatrix, error) {
	det := m.A*m.D - m.B*m.C
	if det == 0 {
		return TransformMatrix{}, fmt.Errorf("matrix is not invertible")
	}
	invDet := 1.0 / det
	return TransformMatrix{
		A: m.D * invDet,
		B: -m.B * invDet,
		C: -m.C * invDet,
		D: m.A * invDet,
		E: (m.C*m.F - m.D*m.E) * invDet,
		F: (m.B*m.E - m.A*m.F) * invDet,
	}, nil
}

// MapRect returns the bounding box of r after transformation.
func (m TransformMatrix) MapRect(r Rect) Rect {
	x0, y0 := m.Apply(r.X, r.Y)
	x1, y1 := m.Apply(r.Right(), r.Y)
	x2, y2 := m.Apply(r.X, r.Bottom())
	x3, y3 := m.Apply(r.Right(), r.Bottom())
	return NewRect(
		math.Min(math.Min(x0, x1), math.Min(x2, x3)),
		math.Min(math.Min(y0, y1), math.Min(y2, y3)),
		math.Max(math.Max(x0, x1), math.Max(x2, x3)),
		math.Max(math.Max(y0, y1), math.Max(y2, y3)),
	)
}
