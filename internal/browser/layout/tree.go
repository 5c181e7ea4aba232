// internal/browser/layout/tree.go
package layout

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/rendercore/internal/browser/cell"
	"github.com/xkilldash9x/rendercore/internal/browser/dom"
	"github.com/xkilldash9x/rendercore/internal/browser/geom"
	"github.com/xkilldash9x/rendercore/internal/browser/style"
)

// -- Constants and Configuration --

const (
	HStep        = 13.0 // Horizontal page margin.
	VStep        = 18.0 // Vertical page margin.
	InputWidth   = 200.0
	IframeWidth  = 300.0
	IframeHeight = 150.0
)

// FontMetrics measures text. Implementations are supplied by the raster
// backend; tests use fixed-width fakes.
type FontMetrics interface {
	// Measure returns the advance width of s.
	Measure(f Font, s string) float64
	// Metrics returns ascent and descent, both positive.
	Metrics(f Font) (ascent, descent float64)
}

// Embedder supplies intrinsic sizes of replaced content and is told when an
// inline frame changes size.
type Embedder interface {
	ImageSize(node dom.NodeID) (width, height float64, ok bool)
	FrameResized(node dom.NodeID, width, height float64)
}

// Tree is an arena of layout objects paralleling one document. All geometry
// lives in cells of the document's graph, so style changes flow into layout
// through ordinary dependency edges.
//
// A Tree is owned by its frame's worker and is not safe for concurrent use.
type Tree struct {
	logger  *zap.Logger
	doc     *dom.Document
	graph   *cell.Graph
	tag     uint8
	fonts   FontMetrics
	embeds  Embedder
	objects []*Object
	free    []Index
	root    Index

	// blocks maps a node to its Block object; embeds maps a node to its
	// replaced-element object.
	blocks map[dom.NodeID]Index
	embed  map[dom.NodeID]Index
}

// NewTree creates the layout tree for doc with a Document object at its root.
func NewTree(doc *dom.Document, fonts FontMetrics, embeds Embedder, logger *zap.Logger) *Tree {
	if logger == nil {
		logger = zap.NewNop()
	}
	t := &Tree{
		logger:  logger.Named("layout"),
		doc:     doc,
		graph:   doc.Graph(),
		fonts:   fonts,
		embeds:  embeds,
		objects: make([]*Object, 1, 128),
		blocks:  map[dom.NodeID]Index{},
		embed:   map[dom.NodeID]Index{},
	}
	t.tag = t.graph.RegisterTree(t)
	t.root = t.newDocument()
	return t
}

// Document returns the document the tree lays out.
func (t *Tree) Document() *dom.Document { return t.doc }

// Root returns the Document object.
func (t *Tree) Root() *Object { return t.objects[t.root] }

// Object resolves an index; released or unknown indices yield nil.
func (t *Tree) Object(i Index) *Object {
	if i <= NoObject || int(i) >= len(t.objects) {
		return nil
	}
	return t.objects[i]
}

// Cap reports the number of object slots allocated so far, live or free.
func (t *Tree) Cap() int {
	return len(t.objects) - 1
}

// Len reports the number of live objects.
func (t *Tree) Len() int {
	n := 0
	for _, o := range t.objects {
		if o != nil {
			n++
		}
	}
	return n
}

// DirtyAncestors implements cell.Ancestry.
func (t *Tree) DirtyAncestors(owner int32) {
	o := t.Object(Index(owner))
	if o == nil {
		return
	}
	for p := t.Object(o.Parent); p != nil && !p.DirtyDescendants; p = t.Object(p.Parent) {
		p.DirtyDescendants = true
	}
}

// NeedsLayout reports whether any cell in the tree is dirty.
func (t *Tree) NeedsLayout() bool {
	return t.Root().needsLayout()
}

// Height returns the laid-out document height.
func (t *Tree) Height() float64 {
	return t.Root().Height.Get()
}

// Walk visits objects in pre-order.
func (t *Tree) Walk(fn func(o *Object) bool) {
	t.walk(t.root, fn)
}

func (t *Tree) walk(i Index, fn func(o *Object) bool) {
	o := t.Object(i)
	if o == nil || !fn(o) {
		return
	}
	for _, c := range o.Children() {
		t.walk(c, fn)
	}
}

// BlockFor returns the Block object of node, if one exists.
func (t *Tree) BlockFor(node dom.NodeID) *Object {
	return t.Object(t.blocks[node])
}

// EmbedFor returns the replaced-element object of node, if one exists.
func (t *Tree) EmbedFor(node dom.NodeID) *Object {
	return t.Object(t.embed[node])
}

// MarkChildren marks the children cell of the nearest Block owning node, so
// its child list is rebuilt on the next layout.
func (t *Tree) MarkChildren(node dom.NodeID) {
	for n := t.doc.Node(node); n != nil; n = t.doc.Node(n.Parent) {
		if b := t.BlockFor(n.ID); b != nil {
			b.ChildList.Mark()
			return
		}
	}
}

// MarkEmbed marks the size cells of a replaced element after an attribute
// that affects its intrinsic size changed. The owning block re-breaks its
// lines as well, since the element's width feeds line breaking.
func (t *Tree) MarkEmbed(node dom.NodeID) {
	if e := t.EmbedFor(node); e != nil {
		e.Width.Mark()
		e.Height.Mark()
	}
	if n := t.doc.Node(node); n != nil {
		t.MarkChildren(n.ID)
	}
}

// MarkViewport forces the Document object to recompute its width.
func (t *Tree) MarkViewport() {
	t.Root().Width.Mark()
}

// -- Object construction --

// alloc creates an object, recycling a released index when one is free.
func (t *Tree) alloc(kind Kind, node dom.NodeID, parent, previous Index) *Object {
	o := &Object{Kind: kind, Node: node, Parent: parent, Previous: previous}
	if n := len(t.free); n > 0 {
		o.Index = t.free[n-1]
		t.free = t.free[:n-1]
		t.objects[o.Index] = o
	} else {
		o.Index = Index(len(t.objects))
		t.objects = append(t.objects, o)
	}
	owner := cell.Owner{Tree: t.tag, Index: int32(o.Index)}
	name := kind.String()
	o.Zoom = cell.New[float64](t.graph, owner, name+".zoom")
	o.Width = cell.New[float64](t.graph, owner, name+".width")
	o.Height = cell.New[float64](t.graph, owner, name+".height")
	o.X = cell.New[float64](t.graph, owner, name+".x")
	o.Y = cell.New[float64](t.graph, owner, name+".y")
	switch kind {
	case KindBlock:
		o.ChildList = cell.NewWith[[]Index](t.graph, owner, name+".children", equalIndices, cell.Invalidates(o.Height))
		t.blocks[node] = o.Index
	case KindLine:
		o.Ascent = cell.New[float64](t.graph, owner, name+".ascent")
		o.Descent = cell.New[float64](t.graph, owner, name+".descent")
	case KindText, KindInput, KindImage, KindIframe:
		o.Ascent = cell.New[float64](t.graph, owner, name+".ascent")
		o.Descent = cell.New[float64](t.graph, owner, name+".descent")
		o.Font = cell.New[Font](t.graph, owner, name+".font")
		if kind.IsEmbed() {
			t.embed[node] = o.Index
		}
	}
	return o
}

func (t *Tree) newDocument() Index {
	return t.alloc(KindDocument, t.doc.Root, NoObject, NoObject).Index
}

// release destroys an object subtree and its cells.
func (t *Tree) release(i Index) {
	o := t.Object(i)
	if o == nil {
		return
	}
	if o.ChildList != nil {
		for _, c := range o.ChildList.Peek() {
			t.release(c)
		}
	}
	for _, c := range o.Fixed {
		t.release(c)
	}
	for _, c := range o.cells() {
		c.Release()
	}
	if t.blocks[o.Node] == i {
		delete(t.blocks, o.Node)
	}
	if t.embed[o.Node] == i {
		delete(t.embed, o.Node)
	}
	t.objects[i] = nil
	t.free = append(t.free, i)
}

// -- Queries --

// HitTest returns the deepest object containing the document point (x, y).
// Translations set on elements are honored.
func (t *Tree) HitTest(x, y float64) *Object {
	var hit *Object
	t.hitTest(t.root, x, y, &hit)
	return hit
}

func (t *Tree) hitTest(i Index, x, y float64, hit **Object) {
	o := t.Object(i)
	if o == nil {
		return
	}
	if m, ok := t.translation(o); ok {
		if inv, err := m.Inverse(); err == nil {
			x, y = inv.Apply(x, y)
		}
	}
	if o.Rect().Contains(x, y) {
		*hit = o
	}
	for _, c := range o.Children() {
		t.hitTest(c, x, y, hit)
	}
}

// AbsoluteBounds maps the object's rect through every ancestor translation.
func (t *Tree) AbsoluteBounds(o *Object) geom.Rect {
	r := o.Rect()
	for cur := o; cur != nil; cur = t.Object(cur.Parent) {
		if m, ok := t.translation(cur); ok {
			r = m.MapRect(r)
		}
	}
	return r
}

// translation returns the transform painted around o, if any. Only Blocks and
// replaced elements carry visual effects.
func (t *Tree) translation(o *Object) (geom.TransformMatrix, bool) {
	if o.Kind != KindBlock && !o.Kind.IsEmbed() {
		return geom.TransformMatrix{}, false
	}
	n := t.doc.Node(o.Node)
	if !n.IsElement("") {
		return geom.TransformMatrix{}, false
	}
	return style.ParseTransform(style.Value(n, "transform"))
}
