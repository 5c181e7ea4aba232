// internal/browser/paint/display.go
package paint

import (
	"fmt"
	"image"
	"math"

	"github.com/xkilldash9x/rendercore/internal/browser/dom"
	"github.com/xkilldash9x/rendercore/internal/browser/geom"
	"github.com/xkilldash9x/rendercore/internal/browser/layout"
	"github.com/xkilldash9x/rendercore/internal/browser/raster"
	"github.com/xkilldash9x/rendercore/internal/browser/style"
)

// Origin identifies the document node an item was painted for. Frame tells
// apart the documents of nested frames, whose node ids overlap.
type Origin struct {
	Frame int32
	Node  dom.NodeID
}

func (o Origin) String() string { return fmt.Sprintf("%d:%d", o.Frame, o.Node) }

// Item is a display list entry: a Command or an Effect.
type Item interface {
	Bounds() geom.Rect
	Execute(c raster.Canvas)
	Source() Origin
}

// -- Commands --

// CommandKind is the drawing primitive of a Command.
type CommandKind uint8

const (
	DrawText CommandKind = iota + 1
	DrawRect
	DrawRoundedRect
	DrawLine
	DrawImage
	DrawOutline
)

func (k CommandKind) String() string {
	switch k {
	case DrawText:
		return "DrawText"
	case DrawRect:
		return "DrawRect"
	case DrawRoundedRect:
		return "DrawRoundedRect"
	case DrawLine:
		return "DrawLine"
	case DrawImage:
		return "DrawImage"
	case DrawOutline:
		return "DrawOutline"
	}
	return "Unknown"
}

// Command is an immutable drawing instruction. Fields a kind does not use
// are zero.
type Command struct {
	Kind   CommandKind
	Origin Origin
	Rect   geom.Rect
	Color  style.Color

	Radius    float64 // DrawRoundedRect
	Thickness float64 // DrawLine, DrawOutline

	X1, Y1, X2, Y2 float64 // DrawLine

	Text string      // DrawText
	Font layout.Font // DrawText

	Image image.Image // DrawImage
}

func NewText(o Origin, r geom.Rect, text string, f layout.Font, c style.Color) *Command {
	return &Command{Kind: DrawText, Origin: o, Rect: r, Text: text, Font: f, Color: c}
}

func NewRect(o Origin, r geom.Rect, c style.Color) *Command {
	return &Command{Kind: DrawRect, Origin: o, Rect: r, Color: c}
}

func NewRoundedRect(o Origin, r geom.Rect, radius float64, c style.Color) *Command {
	return &Command{Kind: DrawRoundedRect, Origin: o, Rect: r, Radius: radius, Color: c}
}

func NewLine(o Origin, x1, y1, x2, y2, thickness float64, c style.Color) *Command {
	r := geom.NewRect(math.Min(x1, x2), math.Min(y1, y2), math.Max(x1, x2), math.Max(y1, y2))
	return &Command{Kind: DrawLine, Origin: o, Rect: r.ExpandedBy(geom.Uniform(thickness / 2)),
		X1: x1, Y1: y1, X2: x2, Y2: y2, Thickness: thickness, Color: c}
}

func NewImage(o Origin, r geom.Rect, img image.Image) *Command {
	return &Command{Kind: DrawImage, Origin: o, Rect: r, Image: img}
}

func NewOutline(o Origin, r geom.Rect, thickness float64, c style.Color) *Command {
	return &Command{Kind: DrawOutline, Origin: o, Rect: r, Thickness: thickness, Color: c}
}

func (c *Command) Bounds() geom.Rect {
	if c.Kind == DrawOutline {
		return c.Rect.ExpandedBy(geom.Uniform(c.Thickness / 2))
	}
	return c.Rect
}

func (c *Command) Source() Origin { return c.Origin }

func (c *Command) Execute(cv raster.Canvas) {
	switch c.Kind {
	case DrawText:
		cv.DrawText(c.Rect.X, c.Rect.Y, c.Text, c.Font, c.Color)
	case DrawRect:
		cv.DrawRect(c.Rect, c.Color)
	case DrawRoundedRect:
		cv.DrawRoundedRect(c.Rect, c.Radius, c.Color)
	case DrawLine:
		cv.DrawLine(c.X1, c.Y1, c.X2, c.Y2, c.Thickness, c.Color)
	case DrawImage:
		cv.DrawImage(c.Rect, c.Image)
	case DrawOutline:
		cv.StrokeRect(c.Rect, c.Thickness, c.Color)
	}
}

func (c *Command) String() string {
	switch c.Kind {
	case DrawText:
		return fmt.Sprintf("DrawText(%s %q)", c.Rect, c.Text)
	case DrawLine:
		return fmt.Sprintf("DrawLine(%g,%g %g,%g)", c.X1, c.Y1, c.X2, c.Y2)
	}
	return fmt.Sprintf("%s(%s)", c.Kind, c.Rect)
}

// -- Effects --

// EffectKind is the variant of a visual effect.
type EffectKind uint8

const (
	EffectClip EffectKind = iota + 1
	EffectBlend
	EffectTransform
)

func (k EffectKind) String() string {
	switch k {
	case EffectClip:
		return "Clip"
	case EffectBlend:
		return "Blend"
	case EffectTransform:
		return "Transform"
	}
	return "Unknown"
}

// Effect wraps children in a clip, an opacity/blend group or a translation.
// Effects are immutable once built; Clone produces a copy around new
// children.
type Effect struct {
	Kind     EffectKind
	Origin   Origin
	Children []Item

	// Clip
	Rect   geom.Rect
	Radius float64
	Clips  bool

	// Blend
	Opacity   float64
	BlendMode string

	// Transform
	DX, DY float64

	compositing bool
	bounds      geom.Rect
}

// NewClip clips children to r when clips is set; otherwise it is a no-op
// kept for bookkeeping.
func NewClip(o Origin, r geom.Rect, radius float64, clips bool, children []Item) *Effect {
	return newEffect(&Effect{Kind: EffectClip, Origin: o, Rect: r, Radius: radius, Clips: clips, Children: children}, false)
}

// NewBlend groups children at the given opacity and blend mode. An empty
// blend mode means none was set. compositing enables layer promotion for
// non-trivial blends.
func NewBlend(o Origin, opacity float64, blendMode string, compositing bool, children []Item) *Effect {
	e := &Effect{Kind: EffectBlend, Origin: o, Opacity: opacity, BlendMode: blendMode, Children: children}
	return newEffect(e, compositing && !e.IsNoop())
}

// NewTransform translates children by (dx, dy).
func NewTransform(o Origin, dx, dy float64, children []Item) *Effect {
	return newEffect(&Effect{Kind: EffectTransform, Origin: o, DX: dx, DY: dy, Children: children}, false)
}

func newEffect(e *Effect, compositing bool) *Effect {
	e.compositing = compositing
	var union geom.Rect
	for _, child := range e.Children {
		union = union.Union(child.Bounds())
		if ce, ok := child.(*Effect); ok && ce.compositing {
			e.compositing = true
		}
	}
	e.bounds = e.Map(union)
	return e
}

// IsNoop reports whether the effect leaves its children unchanged.
func (e *Effect) IsNoop() bool {
	switch e.Kind {
	case EffectClip:
		return !e.Clips
	case EffectBlend:
		return e.Opacity == 1 && e.BlendMode == ""
	case EffectTransform:
		return e.DX == 0 && e.DY == 0
	}
	return true
}

// NeedsCompositing is true for a non-trivial blend and for any effect with
// such a blend below it.
func (e *Effect) NeedsCompositing() bool { return e.compositing }

// Map converts a rectangle in the children's space to the parent's space.
func (e *Effect) Map(r geom.Rect) geom.Rect {
	switch e.Kind {
	case EffectTransform:
		return r.Offset(e.DX, e.DY)
	case EffectClip:
		if e.Clips {
			return r.Intersect(e.Rect)
		}
	}
	return r
}

// Unmap converts a rectangle in the parent's space to the children's space.
func (e *Effect) Unmap(r geom.Rect) geom.Rect {
	if e.Kind == EffectTransform {
		return r.Offset(-e.DX, -e.DY)
	}
	return r
}

func (e *Effect) Bounds() geom.Rect { return e.bounds }
func (e *Effect) Source() Origin    { return e.Origin }

// Clone returns the same effect around a single new child.
func (e *Effect) Clone(child Item) *Effect {
	c := *e
	c.Children = []Item{child}
	return newEffect(&c, e.compositing && e.Kind == EffectBlend && !e.IsNoop())
}

func (e *Effect) Execute(cv raster.Canvas) {
	if e.IsNoop() {
		e.executeChildren(cv)
		return
	}
	switch e.Kind {
	case EffectClip:
		cv.Save()
		cv.ClipRect(e.Rect, e.Radius)
	case EffectBlend:
		mode := e.BlendMode
		if mode == "" {
			mode = raster.BlendNormal
		}
		cv.SaveLayer(e.Opacity, mode)
	case EffectTransform:
		cv.Save()
		cv.Translate(e.DX, e.DY)
	}
	e.executeChildren(cv)
	cv.Restore()
}

func (e *Effect) executeChildren(cv raster.Canvas) {
	for _, child := range e.Children {
		child.Execute(cv)
	}
}

func (e *Effect) String() string {
	switch e.Kind {
	case EffectBlend:
		return fmt.Sprintf("Blend(%s opacity=%g mode=%q)", e.Origin, e.Opacity, e.BlendMode)
	case EffectTransform:
		return fmt.Sprintf("Transform(%s %g,%g)", e.Origin, e.DX, e.DY)
	}
	return fmt.Sprintf("Clip(%s %s clips=%t)", e.Origin, e.Rect, e.Clips)
}

// SameParams reports whether two effects apply the same operation, ignoring
// their children.
func (e *Effect) SameParams(o *Effect) bool {
	return e.Kind == o.Kind && e.Origin == o.Origin && e.Rect == o.Rect && e.Radius == o.Radius &&
		e.Clips == o.Clips && e.Opacity == o.Opacity && e.BlendMode == o.BlendMode &&
		e.DX == o.DX && e.DY == o.DY
}

// Equal reports whether two items would draw identically.
func Equal(a, b Item) bool {
	switch a := a.(type) {
	case *Command:
		b, ok := b.(*Command)
		return ok && *a == *b
	case *Effect:
		b, ok := b.(*Effect)
		if !ok || !a.SameParams(b) || len(a.Children) != len(b.Children) {
			return false
		}
		for i := range a.Children {
			if !Equal(a.Children[i], b.Children[i]) {
				return false
			}
		}
		return true
	}
	return false
}

// Walk visits items in pre-order.
func Walk(items []Item, fn func(it Item)) {
	for _, it := range items {
		fn(it)
		if e, ok := it.(*Effect); ok {
			Walk(e.Children, fn)
		}
	}
}
