// internal/browser/layout/block.go
package layout

import (
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rendercore/internal/browser/cell"
	"github.com/xkilldash9x/rendercore/internal/browser/dom"
	"github.com/xkilldash9x/rendercore/internal/browser/style"
)

// Layout brings the tree up to date for a viewport of the given width and
// zoom. Objects whose cells are clean and that have no dirty descendants are
// skipped, so a second call without intervening mutations sets nothing.
func (t *Tree) Layout(width, zoom float64) {
	doc := t.Root()
	setIfChanged(doc.Zoom, zoom)
	setIfChanged(doc.Width, width-2*HStep*zoom)
	setIfChanged(doc.X, HStep*zoom)
	setIfChanged(doc.Y, VStep*zoom)

	if t.doc.Root == dom.NoNode {
		setIfChanged(doc.Height, 0)
		doc.DirtyDescendants = false
		return
	}
	if len(doc.Fixed) == 0 {
		child := t.alloc(KindBlock, t.doc.Root, doc.Index, NoObject)
		doc.Fixed = []Index{child.Index}
		doc.Height.SetDependencies(child.Height, doc.Zoom)
	}
	child := t.Object(doc.Fixed[0])
	t.layoutObject(child)

	if doc.Height.Dirty() {
		doc.Height.Set(child.Height.Read(doc.Height) + 2*VStep*doc.Zoom.Read(doc.Height))
		t.logger.Debug("Document height changed",
			zap.Float64("height", doc.Height.Get()),
			zap.Int("objects", t.Len()))
	}
	doc.DirtyDescendants = false
}

func setIfChanged(c *cell.Cell[float64], v float64) {
	if c.Dirty() || c.Peek() != v {
		c.Set(v)
	}
}

func (t *Tree) layoutObject(o *Object) {
	if o == nil || !o.needsLayout() {
		return
	}
	switch o.Kind {
	case KindBlock:
		t.layoutBlock(o)
	case KindLine:
		t.layoutLine(o)
	case KindText:
		t.layoutText(o)
	case KindInput, KindImage, KindIframe:
		t.layoutEmbed(o)
	}
}

// prop reads a resolved style property of node on behalf of requester.
// Nodes the resolver has not reached yet yield the property's root value.
func (t *Tree) prop(node dom.NodeID, name string, requester cell.Ref) string {
	if c := t.styleCell(node, name); c != nil {
		return c.Read(requester)
	}
	if v, ok := style.Inherited[name]; ok {
		return v
	}
	return style.Properties[name]
}

func (t *Tree) styleCell(node dom.NodeID, name string) *cell.Cell[string] {
	n := t.doc.Node(node)
	if n == nil || n.Style == nil {
		return nil
	}
	return n.Style[name]
}

// font resolves the font of node at the given zoom.
func (t *Tree) font(node dom.NodeID, zoom float64, requester cell.Ref) Font {
	return Font{
		Size:   style.FontSize(t.prop(node, "font-size", requester)) * zoom,
		Weight: t.prop(node, "font-weight", requester),
		Style:  t.prop(node, "font-style", requester),
	}
}

// stackY places o below its previous sibling, or at the top of its parent.
func (t *Tree) stackY(o *Object) float64 {
	if prev := t.Object(o.Previous); prev != nil {
		return prev.Y.Read(o.Y) + prev.Height.Read(o.Y)
	}
	return t.Object(o.Parent).Y.Read(o.Y)
}

func (t *Tree) layoutBlock(o *Object) {
	parent := t.Object(o.Parent)
	if o.Zoom.Dirty() {
		o.Zoom.Copy(parent.Zoom)
	}
	if o.Width.Dirty() {
		zoom := o.Zoom.Read(o.Width)
		o.Width.Set(style.Length(t.prop(o.Node, "width", o.Width), parent.Width.Read(o.Width), zoom))
	}
	if o.X.Dirty() {
		o.X.Copy(parent.X)
	}
	if o.Y.Dirty() {
		o.Y.Set(t.stackY(o))
	}

	if o.ChildList.Dirty() {
		t.buildChildren(o)
	}
	for _, c := range o.ChildList.Get() {
		t.layoutObject(t.Object(c))
	}

	if o.Height.Dirty() {
		sum := 0.0
		for _, c := range o.ChildList.Get() {
			sum += t.Object(c).Height.Read(o.Height)
		}
		zoom := o.Zoom.Read(o.Height)
		o.Height.Set(style.Length(t.prop(o.Node, "height", o.Height), sum, zoom))
	}
	o.DirtyDescendants = false
}

// blockMode reports whether a node lays its children out as blocks. Any
// block-level element child forces block flow; childless elements other than
// form controls are empty blocks.
func (t *Tree) blockMode(n *dom.Node, requester cell.Ref) bool {
	if n.Type == dom.TextNode {
		return false
	}
	for _, id := range n.Children {
		if t.doc.Node(id).IsElement("") && t.prop(id, "display", requester) == "block" {
			return true
		}
	}
	if len(n.Children) > 0 || n.Tag == "input" || n.Tag == "img" || n.Tag == "iframe" {
		return false
	}
	return true
}

func (t *Tree) buildChildren(o *Object) {
	n := t.doc.Node(o.Node)
	old := o.ChildList.Peek()
	var out []Index
	if n == nil {
		for _, c := range old {
			t.release(c)
		}
	} else if t.blockMode(n, o.ChildList) {
		out = t.buildBlocks(o, n, old)
	} else {
		for _, c := range old {
			t.release(c)
		}
		out = t.buildLines(o, n)
	}
	o.ChildList.Set(out)

	deps := make([]cell.Ref, 0, len(out)+3)
	for _, c := range out {
		deps = append(deps, t.Object(c).Height)
	}
	deps = append(deps, o.ChildList, o.Zoom)
	if sc := t.styleCell(o.Node, "height"); sc != nil {
		deps = append(deps, sc)
	}
	o.Height.SetDependencies(deps...)
}

// buildBlocks creates one Block per displayed child. The longest prefix of
// the old list whose objects still describe the same node after the same
// previous sibling is kept; everything after it is rebuilt.
func (t *Tree) buildBlocks(o *Object, n *dom.Node, old []Index) []Index {
	out := make([]Index, 0, len(n.Children))
	prev := NoObject
	reused := 0
	for _, id := range n.Children {
		if t.doc.Node(id).IsElement("") && t.prop(id, "display", o.ChildList) == "none" {
			continue
		}
		if reused == len(out) && reused < len(old) {
			if ob := t.Object(old[reused]); ob != nil && ob.Kind == KindBlock && ob.Node == id && ob.Previous == prev {
				out = append(out, ob.Index)
				prev = ob.Index
				reused++
				continue
			}
		}
		ob := t.alloc(KindBlock, id, o.Index, prev)
		out = append(out, ob.Index)
		prev = ob.Index
	}
	for _, c := range old[reused:] {
		t.release(c)
	}
	return out
}

// lineBuilder performs line breaking for one block in inline mode.
type lineBuilder struct {
	t      *Tree
	block  *Object
	width  float64
	zoom   float64
	lines  []Index
	line   *Object
	cursor float64
}

func (t *Tree) buildLines(o *Object, n *dom.Node) []Index {
	b := &lineBuilder{
		t:     t,
		block: o,
		width: o.Width.Read(o.ChildList),
		zoom:  o.Zoom.Read(o.ChildList),
	}
	b.newLine()
	b.recurse(n)
	return b.lines
}

func (b *lineBuilder) newLine() {
	prev := NoObject
	if b.line != nil {
		prev = b.line.Index
	}
	b.line = b.t.alloc(KindLine, b.block.Node, b.block.Index, prev)
	b.lines = append(b.lines, b.line.Index)
	b.cursor = 0
}

func (b *lineBuilder) recurse(n *dom.Node) {
	req := b.block.ChildList
	if n.Type == dom.TextNode {
		f := b.t.font(n.ID, b.zoom, req)
		for _, word := range strings.Fields(n.Text) {
			b.place(KindText, n.ID, word, f, b.t.fonts.Measure(f, word))
		}
		return
	}
	if b.t.prop(n.ID, "display", req) == "none" {
		return
	}
	switch n.Tag {
	case "br":
		b.newLine()
	case "input", "button":
		f := b.t.font(n.ID, b.zoom, req)
		b.place(KindInput, n.ID, "", f, InputWidth*b.zoom)
	case "img":
		f := b.t.font(n.ID, b.zoom, req)
		w, _ := b.t.imageSize(n, b.zoom)
		b.place(KindImage, n.ID, "", f, w)
	case "iframe":
		f := b.t.font(n.ID, b.zoom, req)
		w, _ := iframeSize(n, b.zoom)
		b.place(KindIframe, n.ID, "", f, w)
	default:
		for _, id := range n.Children {
			if c := b.t.doc.Node(id); c != nil {
				b.recurse(c)
			}
		}
	}
}

// place appends an inline item of width w, starting a new line first when
// it would overflow. Content that exactly fits stays on the line, and an
// empty line never breaks.
func (b *lineBuilder) place(kind Kind, node dom.NodeID, word string, f Font, w float64) {
	if b.cursor+w > b.width && len(b.line.Fixed) > 0 {
		b.newLine()
	}
	prev := NoObject
	if k := len(b.line.Fixed); k > 0 {
		prev = b.line.Fixed[k-1]
	}
	item := b.t.alloc(kind, node, b.line.Index, prev)
	item.Word = word
	b.line.Fixed = append(b.line.Fixed, item.Index)
	b.cursor += w + b.t.fonts.Measure(f, " ")
}
