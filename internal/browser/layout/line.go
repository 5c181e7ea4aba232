// internal/browser/layout/line.go
package layout

import (
	"math"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rendercore/internal/browser/dom"
)

func (t *Tree) layoutLine(o *Object) {
	parent := t.Object(o.Parent)
	if o.Zoom.Dirty() {
		o.Zoom.Copy(parent.Zoom)
	}
	if o.Width.Dirty() {
		o.Width.Copy(parent.Width)
	}
	if o.X.Dirty() {
		o.X.Copy(parent.X)
	}
	if o.Y.Dirty() {
		o.Y.Set(t.stackY(o))
	}

	for _, c := range o.Fixed {
		t.layoutObject(t.Object(c))
	}

	if o.Ascent.Dirty() {
		ascent := 0.0
		for _, c := range o.Fixed {
			ascent = math.Max(ascent, t.Object(c).Ascent.Read(o.Ascent))
		}
		o.Ascent.Set(ascent)
	}
	if o.Descent.Dirty() {
		descent := 0.0
		for _, c := range o.Fixed {
			descent = math.Max(descent, t.Object(c).Descent.Read(o.Descent))
		}
		o.Descent.Set(descent)
	}

	// Every child sits on the shared baseline.
	for _, c := range o.Fixed {
		child := t.Object(c)
		if child.Y.Dirty() {
			child.Y.Set(o.Y.Read(child.Y) + o.Ascent.Read(child.Y) - child.Ascent.Read(child.Y))
		}
	}

	if o.Height.Dirty() {
		o.Height.Set(o.Ascent.Read(o.Height) + o.Descent.Read(o.Height))
	}
	o.DirtyDescendants = false
}

// inlineX places o after its previous sibling on the line, separated by one
// space in the sibling's font.
func (t *Tree) inlineX(o *Object) float64 {
	if prev := t.Object(o.Previous); prev != nil {
		space := t.fonts.Measure(prev.Font.Read(o.X), " ")
		return prev.X.Read(o.X) + prev.Width.Read(o.X) + space
	}
	return t.Object(o.Parent).X.Read(o.X)
}

func (t *Tree) layoutText(o *Object) {
	parent := t.Object(o.Parent)
	if o.Zoom.Dirty() {
		o.Zoom.Copy(parent.Zoom)
	}
	if o.Font.Dirty() {
		o.Font.Set(t.font(o.Node, o.Zoom.Read(o.Font), o.Font))
	}
	if o.Width.Dirty() {
		o.Width.Set(t.fonts.Measure(o.Font.Read(o.Width), o.Word))
	}
	if o.Ascent.Dirty() {
		ascent, _ := t.fonts.Metrics(o.Font.Read(o.Ascent))
		o.Ascent.Set(ascent)
	}
	if o.Descent.Dirty() {
		_, descent := t.fonts.Metrics(o.Font.Read(o.Descent))
		o.Descent.Set(descent)
	}
	if o.Height.Dirty() {
		o.Height.Set(o.Ascent.Read(o.Height) + o.Descent.Read(o.Height))
	}
	if o.X.Dirty() {
		o.X.Set(t.inlineX(o))
	}
}

// layoutEmbed sizes a replaced element. Embeds sit entirely above the
// baseline, so their ascent is their height.
func (t *Tree) layoutEmbed(o *Object) {
	parent := t.Object(o.Parent)
	n := t.doc.Node(o.Node)
	if o.Zoom.Dirty() {
		o.Zoom.Copy(parent.Zoom)
	}
	if o.Font.Dirty() {
		o.Font.Set(t.font(o.Node, o.Zoom.Read(o.Font), o.Font))
	}

	resized := false
	if o.Width.Dirty() {
		zoom := o.Zoom.Read(o.Width)
		var w float64
		switch o.Kind {
		case KindInput:
			w = InputWidth * zoom
		case KindImage:
			w, _ = t.imageSize(n, zoom)
		case KindIframe:
			w, _ = iframeSize(n, zoom)
		}
		o.Width.Set(w)
		resized = true
	}
	if o.Height.Dirty() {
		zoom := o.Zoom.Read(o.Height)
		ascent, descent := t.fonts.Metrics(o.Font.Read(o.Height))
		linespace := ascent + descent
		var h float64
		switch o.Kind {
		case KindInput:
			h = linespace
		case KindImage:
			_, ih := t.imageSize(n, zoom)
			h = math.Max(ih, linespace)
		case KindIframe:
			_, h = iframeSize(n, zoom)
		}
		o.Height.Set(h)
		resized = true
	}
	if o.Ascent.Dirty() {
		o.Ascent.Set(o.Height.Read(o.Ascent))
	}
	if o.Descent.Dirty() {
		o.Descent.Set(0)
	}
	if o.X.Dirty() {
		o.X.Set(t.inlineX(o))
	}

	if resized && o.Kind == KindIframe && t.embeds != nil {
		zoom := o.Zoom.Get()
		w, h := o.Width.Get()-2*zoom, o.Height.Get()-2*zoom
		t.logger.Debug("Iframe resized", zap.Int32("node", int32(o.Node)),
			zap.Float64("width", w), zap.Float64("height", h))
		t.embeds.FrameResized(o.Node, w, h)
	}
}

// imageSize returns the zoomed size of an image. Declared width and height
// attributes win; a single declared dimension keeps the intrinsic aspect
// ratio.
func (t *Tree) imageSize(n *dom.Node, zoom float64) (float64, float64) {
	var iw, ih float64
	if t.embeds != nil && n != nil {
		if w, h, ok := t.embeds.ImageSize(n.ID); ok {
			iw, ih = w, h
		}
	}
	aw, hasW := attrPx(n, "width")
	ah, hasH := attrPx(n, "height")
	w, h := iw, ih
	switch {
	case hasW && hasH:
		w, h = aw, ah
	case hasW:
		w = aw
		if iw > 0 {
			h = aw * ih / iw
		}
	case hasH:
		h = ah
		if ih > 0 {
			w = ah * iw / ih
		}
	}
	return w * zoom, h * zoom
}

// iframeSize returns the zoomed outer size of an inline frame, including a
// one pixel border on every side.
func iframeSize(n *dom.Node, zoom float64) (float64, float64) {
	w, ok := attrPx(n, "width")
	if !ok {
		w = IframeWidth
	}
	h, ok := attrPx(n, "height")
	if !ok {
		h = IframeHeight
	}
	return (w + 2) * zoom, (h + 2) * zoom
}

func attrPx(n *dom.Node, key string) (float64, bool) {
	if n == nil {
		return 0, false
	}
	v, ok := n.Attribute(key)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(v), "px"), 64)
	if err != nil || f < 0 {
		return 0, false
	}
	return f, true
}
