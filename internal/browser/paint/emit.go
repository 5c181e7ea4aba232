// internal/browser/paint/emit.go
package paint

import (
	"image"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rendercore/internal/browser/dom"
	"github.com/xkilldash9x/rendercore/internal/browser/geom"
	"github.com/xkilldash9x/rendercore/internal/browser/layout"
	"github.com/xkilldash9x/rendercore/internal/browser/style"
)

// -- Constants and Configuration --

// DefaultFocusOutline is drawn around a focused element whose style sets no
// outline.
const DefaultFocusOutline = "2px solid black"

var (
	black         = style.Color{A: 255}
	lightgray     = style.Color{R: 211, G: 211, B: 211, A: 255}
	brokenOutline = style.Color{R: 128, G: 128, B: 128, A: 255}
)

// Embeds resolves the replaced content of a frame: decoded images and the
// documents of nested frames.
type Embeds interface {
	// Image returns the decoded image of an <img>, or nil when it failed to
	// load.
	Image(node dom.NodeID) image.Image
	// Frame returns the paint source of the document inside an <iframe>.
	Frame(node dom.NodeID) (Source, bool)
}

// Source is one laid-out document ready for painting.
type Source struct {
	// Frame distinguishes the documents of nested frames in Origins.
	Frame  int32
	Tree   *layout.Tree
	Focus  dom.NodeID
	Embeds Embeds
}

// DisplayList is the result of painting a frame tree.
type DisplayList struct {
	Items []Item
	// Blends indexes every blend effect by the node it was painted for, so
	// composited-only updates can replace them without a new paint.
	Blends map[Origin]*Effect
}

// Len counts every item in the list, effects included.
func (dl *DisplayList) Len() int {
	n := 0
	Walk(dl.Items, func(Item) { n++ })
	return n
}

// Emitter turns layout trees into display lists. It holds no per-frame state
// and may be reused across frames.
type Emitter struct {
	logger      *zap.Logger
	fonts       layout.FontMetrics
	compositing bool
}

// NewEmitter creates an emitter. compositing controls whether non-trivial
// blends are promoted to their own layers.
func NewEmitter(fonts layout.FontMetrics, compositing bool, logger *zap.Logger) *Emitter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Emitter{logger: logger.Named("paint"), fonts: fonts, compositing: compositing}
}

// PaintTree paints src and every frame nested inside it. The layout tree must
// be clean.
func (e *Emitter) PaintTree(src Source) *DisplayList {
	dl := &DisplayList{Blends: map[Origin]*Effect{}}
	dl.Items = e.paintObject(src, src.Tree.Root(), dl)
	e.logger.Debug("Painted display list",
		zap.Int32("frame", src.Frame),
		zap.Int("items", dl.Len()),
		zap.Int("blends", len(dl.Blends)))
	return dl
}

func (e *Emitter) paintObject(src Source, o *layout.Object, dl *DisplayList) []Item {
	cmds := e.Paint(src, o)
	if o.Kind == layout.KindIframe {
		cmds = append(cmds, e.paintFrame(src, o, dl)...)
	} else {
		for _, c := range o.Children() {
			cmds = append(cmds, e.paintObject(src, src.Tree.Object(c), dl)...)
		}
	}
	if outline := e.outline(src, o); outline != nil {
		cmds = append(cmds, outline)
	}
	if o.Kind == layout.KindBlock || o.Kind.IsEmbed() {
		return e.PaintEffects(src, o, cmds, dl)
	}
	return cmds
}

// paintFrame paints the nested document of an iframe into the inner box of
// its border, followed by the border itself.
func (e *Emitter) paintFrame(src Source, o *layout.Object, dl *DisplayList) []Item {
	zoom := o.Zoom.Get()
	rect := o.Rect()
	inner := rect.ExpandedBy(geom.Uniform(-zoom))
	origin := Origin{Frame: src.Frame, Node: o.Node}

	var out []Item
	if src.Embeds != nil {
		if child, ok := src.Embeds.Frame(o.Node); ok && child.Tree != nil && !child.Tree.NeedsLayout() {
			nested := e.paintObject(child, child.Tree.Root(), dl)
			out = append(out, NewClip(origin, inner, 0, true, []Item{
				NewTransform(origin, inner.X, inner.Y, nested),
			}))
		}
	}
	return append(out, NewOutline(origin, rect, zoom, black))
}

// Paint returns the object's own drawing commands: backgrounds, text, form
// controls and images. Children and effects are not included.
func (e *Emitter) Paint(src Source, o *layout.Object) []Item {
	doc := src.Tree.Document()
	n := doc.Node(o.Node)
	origin := Origin{Frame: src.Frame, Node: o.Node}

	switch o.Kind {
	case layout.KindBlock:
		if n.IsElement("") {
			return e.background(origin, n, o.Rect(), o.Zoom.Get())
		}
	case layout.KindLine:
		return e.linkFocus(src, o)
	case layout.KindText:
		return []Item{NewText(origin, o.Rect(), o.Word, o.Font.Get(), textColor(n))}
	case layout.KindInput:
		return e.paintInput(src, o, n, origin)
	case layout.KindImage:
		rect := o.Rect()
		var img image.Image
		if src.Embeds != nil {
			img = src.Embeds.Image(o.Node)
		}
		if img == nil {
			return []Item{
				NewRect(origin, rect, lightgray),
				NewOutline(origin, rect, o.Zoom.Get(), brokenOutline),
			}
		}
		return []Item{NewImage(origin, rect, img)}
	}
	return nil
}

func (e *Emitter) background(origin Origin, n *dom.Node, rect geom.Rect, zoom float64) []Item {
	bg, ok := style.ParseColor(style.Value(n, "background-color"))
	if !ok || bg.A == 0 {
		return nil
	}
	if radius := style.Length(style.Value(n, "border-radius"), 0, zoom); radius > 0 {
		return []Item{NewRoundedRect(origin, rect, radius, bg)}
	}
	return []Item{NewRect(origin, rect, bg)}
}

func (e *Emitter) paintInput(src Source, o *layout.Object, n *dom.Node, origin Origin) []Item {
	rect := o.Rect()
	zoom := o.Zoom.Get()
	out := e.background(origin, n, rect, zoom)

	var text string
	if n.Tag == "input" {
		text, _ = n.Attribute("value")
	} else if len(n.Children) == 1 {
		if child := src.Tree.Document().Node(n.Children[0]); child != nil && child.Type == dom.TextNode {
			text = child.Text
		}
	} else if len(n.Children) > 1 {
		e.logger.Debug("Ignoring rich button content", zap.Int32("node", int32(n.ID)))
	}

	font := o.Font.Get()
	color := textColor(n)
	out = append(out, NewText(origin, rect, text, font, color))

	if src.Focus == o.Node && n.Tag == "input" {
		cx := rect.X + e.fonts.Measure(font, text)
		out = append(out, NewLine(origin, cx, rect.Y, cx, rect.Bottom(), zoom, color))
	}
	return out
}

// linkFocus outlines the runs of a focused link that sit on this line.
func (e *Emitter) linkFocus(src Source, line *layout.Object) []Item {
	doc := src.Tree.Document()
	focus := doc.Node(src.Focus)
	if !focus.IsElement("a") {
		return nil
	}
	var bounds geom.Rect
	for _, c := range line.Fixed {
		child := src.Tree.Object(c)
		if doc.Closest(child.Node, "a") == src.Focus {
			bounds = bounds.Union(child.Rect())
		}
	}
	if bounds.IsEmpty() {
		return nil
	}
	width, color, ok := style.Outline(outlineValue(focus, true))
	if !ok {
		return nil
	}
	return []Item{NewOutline(Origin{Frame: src.Frame, Node: src.Focus}, bounds, width*line.Zoom.Get(), color)}
}

// outline returns the outline drawn around a block or embed, if its style
// sets one or it has focus.
func (e *Emitter) outline(src Source, o *layout.Object) Item {
	if o.Kind != layout.KindBlock && !o.Kind.IsEmbed() {
		return nil
	}
	n := src.Tree.Document().Node(o.Node)
	if !n.IsElement("") || n.Tag == "a" {
		return nil
	}
	width, color, ok := style.Outline(outlineValue(n, src.Focus == o.Node))
	if !ok || width <= 0 {
		return nil
	}
	return NewOutline(Origin{Frame: src.Frame, Node: o.Node}, o.Rect(), width*o.Zoom.Get(), color)
}

func outlineValue(n *dom.Node, focused bool) string {
	v := style.Value(n, "outline")
	if focused && (v == "" || v == "none") {
		return DefaultFocusOutline
	}
	return v
}

func textColor(n *dom.Node) style.Color {
	c, _ := style.ParseColor(style.Value(n, "color"))
	return c
}

// PaintEffects wraps cmds, the painted subtree of o, in its visual effects:
// a clip for overflow: clip, then blending, then translation. Unconfigured
// effects are kept as no-ops so bounds bookkeeping stays uniform.
func (e *Emitter) PaintEffects(src Source, o *layout.Object, cmds []Item, dl *DisplayList) []Item {
	n := src.Tree.Document().Node(o.Node)
	origin := Origin{Frame: src.Frame, Node: o.Node}
	rect := o.Rect()
	zoom := o.Zoom.Get()

	radius := style.Length(style.Value(n, "border-radius"), 0, zoom)
	clip := NewClip(origin, rect, radius, style.Value(n, "overflow") == "clip", cmds)

	mode := style.Value(n, "mix-blend-mode")
	if mode == "normal" {
		mode = ""
	}
	blend := NewBlend(origin, style.Opacity(style.Value(n, "opacity")), mode, e.compositing, []Item{clip})
	dl.Blends[origin] = blend

	var dx, dy float64
	if m, ok := style.ParseTransform(style.Value(n, "transform")); ok {
		dx, dy = m.E, m.F
	}
	return []Item{NewTransform(origin, dx, dy, []Item{blend})}
}
