// internal/browser/raster/gg.go
package raster

import (
	"image"

	"github.com/gogpu/gg"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rendercore/internal/browser/geom"
	"github.com/xkilldash9x/rendercore/internal/browser/layout"
	"github.com/xkilldash9x/rendercore/internal/browser/style"
)

// GGBackend rasterizes with github.com/gogpu/gg.
type GGBackend struct {
	logger *zap.Logger
	fonts  *GGFonts
}

// NewGGBackend loads the font family and returns a ready backend.
func NewGGBackend(logger *zap.Logger) (*GGBackend, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fonts, err := NewGGFonts()
	if err != nil {
		return nil, err
	}
	return &GGBackend{logger: logger.Named("raster"), fonts: fonts}, nil
}

func (b *GGBackend) Fonts() layout.FontMetrics { return b.fonts }

func (b *GGBackend) NewSurface(width, height int) Surface {
	if width < 1 {
		width = 1
	}
	if height < 1 {
		height = 1
	}
	s := &GGSurface{ctx: gg.NewContext(width, height), width: width, height: height}
	s.canvas = &ggCanvas{ctx: s.ctx, fonts: b.fonts, logger: b.logger}
	return s
}

// GGSurface is a gg-backed pixel buffer.
type GGSurface struct {
	ctx    *gg.Context
	canvas *ggCanvas
	width  int
	height int
}

func (s *GGSurface) Canvas() Canvas { return s.canvas }
func (s *GGSurface) Width() int     { return s.width }
func (s *GGSurface) Height() int    { return s.height }

func (s *GGSurface) Clear(c style.Color) {
	s.ctx.ResetClip()
	s.ctx.ClearWithColor(gg.RGBA2(float64(c.R)/255, float64(c.G)/255, float64(c.B)/255, float64(c.A)/255))
	s.canvas.dx, s.canvas.dy = 0, 0
	s.canvas.stack = s.canvas.stack[:0]
}

// Image returns the current pixels.
func (s *GGSurface) Image() image.Image { return s.ctx.Image() }

// SavePNG writes the surface to path.
func (s *GGSurface) SavePNG(path string) error { return s.ctx.SavePNG(path) }

type savedState struct {
	dx, dy float64
	layer  bool
}

// ggCanvas keeps translation itself rather than in the gg matrix, since gg
// draws text in device space.
type ggCanvas struct {
	ctx    *gg.Context
	fonts  *GGFonts
	logger *zap.Logger
	dx, dy float64
	stack  []savedState
}

func (c *ggCanvas) setColor(col style.Color) {
	c.ctx.SetRGBA(float64(col.R)/255, float64(col.G)/255, float64(col.B)/255, float64(col.A)/255)
}

func (c *ggCanvas) fill() {
	if err := c.ctx.Fill(); err != nil {
		c.logger.Debug("Fill failed", zap.Error(err))
	}
}

func (c *ggCanvas) stroke() {
	if err := c.ctx.Stroke(); err != nil {
		c.logger.Debug("Stroke failed", zap.Error(err))
	}
}

func (c *ggCanvas) DrawRect(r geom.Rect, col style.Color) {
	c.setColor(col)
	c.ctx.DrawRectangle(r.X+c.dx, r.Y+c.dy, r.Width, r.Height)
	c.fill()
}

func (c *ggCanvas) DrawRoundedRect(r geom.Rect, radius float64, col style.Color) {
	if radius <= 0 {
		c.DrawRect(r, col)
		return
	}
	c.setColor(col)
	c.ctx.DrawRoundedRectangle(r.X+c.dx, r.Y+c.dy, r.Width, r.Height, radius)
	c.fill()
}

func (c *ggCanvas) StrokeRect(r geom.Rect, thickness float64, col style.Color) {
	c.setColor(col)
	c.ctx.SetLineWidth(thickness)
	c.ctx.DrawRectangle(r.X+c.dx, r.Y+c.dy, r.Width, r.Height)
	c.stroke()
}

func (c *ggCanvas) DrawLine(x1, y1, x2, y2, thickness float64, col style.Color) {
	c.setColor(col)
	c.ctx.SetLineWidth(thickness)
	c.ctx.DrawLine(x1+c.dx, y1+c.dy, x2+c.dx, y2+c.dy)
	c.stroke()
}

func (c *ggCanvas) DrawText(x, y float64, s string, f layout.Font, col style.Color) {
	face := c.fonts.face(f)
	c.ctx.SetFont(face)
	c.setColor(col)
	c.ctx.DrawString(s, x+c.dx, y+c.dy+face.Metrics().Ascent)
}

func (c *ggCanvas) DrawImage(r geom.Rect, img image.Image) {
	if img == nil {
		return
	}
	c.ctx.DrawImageEx(gg.ImageBufFromImage(img), gg.DrawImageOptions{
		X:             r.X + c.dx,
		Y:             r.Y + c.dy,
		DstWidth:      r.Width,
		DstHeight:     r.Height,
		Interpolation: gg.InterpBilinear,
		Opacity:       1,
		BlendMode:     gg.BlendNormal,
	})
}

func (c *ggCanvas) DrawSurface(s Surface, x, y float64) {
	src, ok := s.(*GGSurface)
	if !ok {
		return
	}
	c.ctx.DrawImageEx(gg.ImageBufFromImage(src.ctx.Image()), gg.DrawImageOptions{
		X:         x + c.dx,
		Y:         y + c.dy,
		Opacity:   1,
		BlendMode: gg.BlendNormal,
	})
}

func (c *ggCanvas) Save() {
	c.ctx.Push()
	c.stack = append(c.stack, savedState{dx: c.dx, dy: c.dy})
}

func (c *ggCanvas) SaveLayer(opacity float64, blendMode string) {
	c.ctx.Push()
	c.ctx.PushLayer(ggBlendMode(blendMode), opacity)
	c.stack = append(c.stack, savedState{dx: c.dx, dy: c.dy, layer: true})
}

func (c *ggCanvas) Restore() {
	if len(c.stack) == 0 {
		panic("raster: Restore without matching Save")
	}
	top := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	if top.layer {
		c.ctx.PopLayer()
	}
	c.ctx.Pop()
	c.dx, c.dy = top.dx, top.dy
}

func (c *ggCanvas) ClipRect(r geom.Rect, radius float64) {
	if radius > 0 {
		c.ctx.DrawRoundedRectangle(r.X+c.dx, r.Y+c.dy, r.Width, r.Height, radius)
		c.ctx.Clip()
		return
	}
	c.ctx.ClipRect(r.X+c.dx, r.Y+c.dy, r.Width, r.Height)
}

func (c *ggCanvas) Translate(dx, dy float64) {
	c.dx += dx
	c.dy += dy
}

func ggBlendMode(name string) gg.BlendMode {
	switch name {
	case BlendMultiply:
		return gg.BlendMultiply
	case BlendScreen:
		return gg.BlendScreen
	case BlendOverlay:
		return gg.BlendOverlay
	}
	return gg.BlendNormal
}
