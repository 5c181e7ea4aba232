package geom

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRectOverlap(t *testing.T) {
	a := Rect{X: 0, Y: 0, Width: 100, Height: 20}
	b := Rect{X: 0, Y: 20, Width: 100, Height: 20}

	assert.False(t, a.Intersects(b), "touching edges do not overlap")
	assert.True(t, a.Intersects(b.Offset(0, -1)))
	assert.Equal(t, Rect{X: 0, Y: 0, Width: 100, Height: 40}, a.Union(b))
	assert.Equal(t, a, a.Union(Rect{}))
	assert.Equal(t, Rect{X: 50, Y: 10, Width: 50, Height: 10}, a.Intersect(Rect{X: 50, Y: 10, Width: 80, Height: 80}))
	assert.True(t, a.Contains(0, 0))
	assert.False(t, a.Contains(100, 0))
}

func TestTransformMatrix(t *testing.T) {
	m := TranslateMatrix(10, 5)
	x, y := m.Apply(1, 1)
	assert.Equal(t, 11.0, x)
	assert.Equal(t, 6.0, y)
	assert.Equal(t, Rect{X: 10, Y: 5, Width: 4, Height: 4}, m.MapRect(Rect{Width: 4, Height: 4}))

	inv, err := m.Inverse()
	require.NoError(t, err)
	assert.True(t, m.Multiply(inv).IsIdentity())

	_, err = TransformMatrix{}.Inverse()
	assert.Error(t, err)
}
