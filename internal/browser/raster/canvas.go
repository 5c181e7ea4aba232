// internal/browser/raster/canvas.go
package raster

import (
	"image"

	"github.com/xkilldash9x/rendercore/internal/browser/geom"
	"github.com/xkilldash9x/rendercore/internal/browser/layout"
	"github.com/xkilldash9x/rendercore/internal/browser/style"
)

// Canvas is an immediate-mode drawing surface. Save, ClipRect and Translate
// state, as well as SaveLayer groups, are scoped: every Save or SaveLayer is
// closed by exactly one Restore.
type Canvas interface {
	DrawRect(r geom.Rect, c style.Color)
	DrawRoundedRect(r geom.Rect, radius float64, c style.Color)
	// StrokeRect draws the border of r with the given thickness.
	StrokeRect(r geom.Rect, thickness float64, c style.Color)
	DrawLine(x1, y1, x2, y2, thickness float64, c style.Color)
	// DrawText draws s with its top-left corner at (x, y).
	DrawText(x, y float64, s string, f layout.Font, c style.Color)
	DrawImage(r geom.Rect, img image.Image)
	// DrawSurface copies another surface with its top-left corner at (x, y).
	DrawSurface(s Surface, x, y float64)

	Save()
	SaveLayer(opacity float64, blendMode string)
	Restore()
	// ClipRect intersects the clip with r, rounded by radius when positive.
	ClipRect(r geom.Rect, radius float64)
	Translate(dx, dy float64)
}

// Surface is a pixel buffer that can be drawn into and composited.
type Surface interface {
	Canvas() Canvas
	Width() int
	Height() int
	// Clear fills the surface with c, discarding previous content.
	Clear(c style.Color)
}

// Backend creates surfaces and measures text for layout.
type Backend interface {
	NewSurface(width, height int) Surface
	Fonts() layout.FontMetrics
}

// Blend mode names understood by every backend. Unknown names behave like
// BlendNormal.
const (
	BlendNormal   = "normal"
	BlendMultiply = "multiply"
	BlendScreen   = "screen"
	BlendOverlay  = "overlay"
)
