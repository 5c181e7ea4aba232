// internal/browser/dom/document.go
package dom

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/rendercore/internal/browser/cell"
)

// NodeID is a stable handle to a node. IDs are never reused within a
// Document, so a handle held by script stays valid (or resolves to nil) for
// the document's lifetime.
type NodeID int32

// NoNode is the zero handle.
const NoNode NodeID = 0

// NodeType distinguishes the node variants.
type NodeType uint8

const (
	ElementNode NodeType = iota + 1
	TextNode
)

// Attribute is a single element attribute. Order is preserved.
type Attribute struct {
	Key, Val string
}

// Animation overrides a style cell for a number of frames.
type Animation interface {
	// Animate advances one frame and returns the value to apply. done is true
	// once the animation has run its course.
	Animate() (value string, done bool)
}

// Node is an element or text node in the arena.
type Node struct {
	ID       NodeID
	Type     NodeType
	Tag      string
	Text     string
	Attr     []Attribute
	Parent   NodeID
	Children []NodeID

	// Style holds one cell per CSS property, created by the style resolver on
	// its first visit.
	Style map[string]*cell.Cell[string]
	// Animations maps a property to its running interpolation.
	Animations map[string]Animation
	// DirtyDescendants is set when a style cell somewhere below is dirty.
	DirtyDescendants bool
}

// IsElement reports whether n is an element with the given tag (any tag when
// tag is empty).
func (n *Node) IsElement(tag string) bool {
	return n != nil && n.Type == ElementNode && (tag == "" || n.Tag == tag)
}

// Attribute returns the value of an attribute and whether it is present.
func (n *Node) Attribute(key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

func (n *Node) String() string {
	if n.Type == TextNode {
		return fmt.Sprintf("%q", n.Text)
	}
	var b strings.Builder
	b.WriteString("<" + n.Tag)
	for _, a := range n.Attr {
		fmt.Fprintf(&b, " %s=%q", a.Key, a.Val)
	}
	b.WriteString(">")
	return b.String()
}

// Document is an arena of nodes. It owns the style cells of its nodes and
// propagates their dirty bits up the tree.
type Document struct {
	graph *cell.Graph
	tree  uint8
	nodes []*Node
	Root  NodeID
}

// New creates an empty document whose cells live in g.
func New(g *cell.Graph) *Document {
	d := &Document{graph: g, nodes: make([]*Node, 1, 64)}
	d.tree = g.RegisterTree(d)
	return d
}

// Graph returns the cell graph shared with the layout tree.
func (d *Document) Graph() *cell.Graph { return d.graph }

// Owner returns the cell owner tag for a node.
func (d *Document) Owner(id NodeID) cell.Owner {
	return cell.Owner{Tree: d.tree, Index: int32(id)}
}

// Node resolves a handle. Removed or unknown handles yield nil.
func (d *Document) Node(id NodeID) *Node {
	if id <= NoNode || int(id) >= len(d.nodes) {
		return nil
	}
	return d.nodes[id]
}

// Len reports the number of live nodes.
func (d *Document) Len() int {
	n := 0
	for _, node := range d.nodes {
		if node != nil {
			n++
		}
	}
	return n
}

func (d *Document) add(n *Node) NodeID {
	n.ID = NodeID(len(d.nodes))
	d.nodes = append(d.nodes, n)
	return n.ID
}

// NewElement allocates a detached element.
func (d *Document) NewElement(tag string, attrs ...Attribute) NodeID {
	return d.add(&Node{Type: ElementNode, Tag: strings.ToLower(tag), Attr: attrs})
}

// NewText allocates a detached text node.
func (d *Document) NewText(text string) NodeID {
	return d.add(&Node{Type: TextNode, Text: text})
}

// AppendChild attaches child as the last child of parent.
func (d *Document) AppendChild(parent, child NodeID) {
	p, c := d.Node(parent), d.Node(child)
	if p == nil || c == nil {
		return
	}
	c.Parent = parent
	p.Children = append(p.Children, child)
}

// RemoveChildren detaches and destroys every descendant of id. Their style
// cells are released and their handles become invalid.
func (d *Document) RemoveChildren(id NodeID) {
	n := d.Node(id)
	if n == nil {
		return
	}
	for _, c := range n.Children {
		d.destroy(c)
	}
	n.Children = nil
}

func (d *Document) destroy(id NodeID) {
	n := d.Node(id)
	if n == nil {
		return
	}
	for _, c := range n.Children {
		d.destroy(c)
	}
	for _, c := range n.Style {
		c.Release()
	}
	d.nodes[id] = nil
}

// SetAttribute sets or replaces an attribute.
func (d *Document) SetAttribute(id NodeID, key, val string) {
	n := d.Node(id)
	if n == nil {
		return
	}
	key = strings.ToLower(key)
	for i := range n.Attr {
		if n.Attr[i].Key == key {
			n.Attr[i].Val = val
			return
		}
	}
	n.Attr = append(n.Attr, Attribute{Key: key, Val: val})
}

// Attribute reads an attribute of a node.
func (d *Document) Attribute(id NodeID, key string) (string, bool) {
	n := d.Node(id)
	if n == nil {
		return "", false
	}
	return n.Attribute(strings.ToLower(key))
}

// DirtyAncestors implements cell.Ancestry.
func (d *Document) DirtyAncestors(owner int32) {
	n := d.Node(NodeID(owner))
	if n == nil {
		return
	}
	for p := d.Node(n.Parent); p != nil && !p.DirtyDescendants; p = d.Node(p.Parent) {
		p.DirtyDescendants = true
	}
}

// MarkStyle marks every style cell of a node dirty.
func (d *Document) MarkStyle(id NodeID) {
	n := d.Node(id)
	if n == nil {
		return
	}
	for _, c := range n.Style {
		c.Mark()
	}
}

// Walk visits id and its descendants in pre-order. Returning false from fn
// skips the node's children.
func (d *Document) Walk(id NodeID, fn func(n *Node) bool) {
	n := d.Node(id)
	if n == nil {
		return
	}
	if !fn(n) {
		return
	}
	for _, c := range n.Children {
		d.Walk(c, fn)
	}
}

// Ancestors returns the chain from id's parent up to the root.
func (d *Document) Ancestors(id NodeID) []NodeID {
	var out []NodeID
	n := d.Node(id)
	for n != nil && n.Parent != NoNode {
		out = append(out, n.Parent)
		n = d.Node(n.Parent)
	}
	return out
}

// Closest returns the nearest inclusive ancestor element with tag.
func (d *Document) Closest(id NodeID, tag string) NodeID {
	for n := d.Node(id); n != nil; n = d.Node(n.Parent) {
		if n.IsElement(tag) {
			return n.ID
		}
	}
	return NoNode
}

// TextContent concatenates the text of id's subtree.
func (d *Document) TextContent(id NodeID) string {
	var b strings.Builder
	d.Walk(id, func(n *Node) bool {
		if n.Type == TextNode {
			b.WriteString(n.Text)
		}
		return true
	})
	return b.String()
}

// Find returns the first element with tag in document order.
func (d *Document) Find(tag string) NodeID {
	found := NoNode
	d.Walk(d.Root, func(n *Node) bool {
		if found != NoNode {
			return false
		}
		if n.IsElement(tag) {
			found = n.ID
			return false
		}
		return true
	})
	return found
}
