// internal/browser/session/accessibility.go
package session

import (
	"strings"

	"github.com/xkilldash9x/rendercore/internal/browser/dom"
	"github.com/xkilldash9x/rendercore/internal/browser/geom"
	"github.com/xkilldash9x/rendercore/internal/browser/layout"
	"github.com/xkilldash9x/rendercore/internal/browser/style"
)

// AccessibilityNode is one entry of the accessibility tree carried in a
// commit. Bounds are in the coordinates of the node's own document.
type AccessibilityNode struct {
	Role     string               `json:"role"`
	Name     string               `json:"name,omitempty"`
	Bounds   geom.Rect            `json:"bounds"`
	Focused  bool                 `json:"focused,omitempty"`
	Children []*AccessibilityNode `json:"children,omitempty"`
}

// BuildAccessibilityTree describes a rendered frame and its nested frames.
// The frame's layout must be clean.
func BuildAccessibilityTree(f *Frame) *AccessibilityNode {
	root := &AccessibilityNode{Role: "document", Name: f.URL, Bounds: f.Tree.Root().Rect()}
	f.buildAccessibility(f.Doc.Root, root, f.nodeBounds())
	return root
}

// nodeBounds unions the absolute bounds of every layout object into the
// entries of its node and all of the node's ancestors.
func (f *Frame) nodeBounds() map[dom.NodeID]geom.Rect {
	out := map[dom.NodeID]geom.Rect{}
	f.Tree.Walk(func(o *layout.Object) bool {
		if o.Kind == layout.KindDocument || o.Kind == layout.KindLine {
			return true
		}
		r := f.Tree.AbsoluteBounds(o)
		for id := o.Node; id != dom.NoNode; {
			if prev, ok := out[id]; ok {
				out[id] = prev.Union(r)
			} else {
				out[id] = r
			}
			n := f.Doc.Node(id)
			if n == nil {
				break
			}
			id = n.Parent
		}
		return true
	})
	return out
}

func (f *Frame) buildAccessibility(id dom.NodeID, parent *AccessibilityNode, bounds map[dom.NodeID]geom.Rect) {
	n := f.Doc.Node(id)
	if n == nil || style.Value(n, "display") == "none" {
		return
	}
	role, name, leaf := accessibilityRole(f.Doc, n)
	if role != "" {
		node := &AccessibilityNode{Role: role, Name: name, Bounds: bounds[id], Focused: f.Focus == id}
		parent.Children = append(parent.Children, node)
		if role == "iframe" {
			if child, ok := f.children[id]; ok && child.loaded {
				node.Children = append(node.Children, BuildAccessibilityTree(child))
			}
			return
		}
		if leaf {
			return
		}
		parent = node
	}
	for _, c := range n.Children {
		f.buildAccessibility(c, parent, bounds)
	}
}

// accessibilityRole maps a node to its role and accessible name. leaf is set
// when the name already covers the node's content.
func accessibilityRole(doc *dom.Document, n *dom.Node) (role, name string, leaf bool) {
	if n.Type == dom.TextNode {
		text := strings.TrimSpace(n.Text)
		if text == "" {
			return "", "", true
		}
		return "text", text, true
	}
	label := func() string { return strings.Join(strings.Fields(doc.TextContent(n.ID)), " ") }
	switch n.Tag {
	case "a":
		if _, ok := n.Attribute("href"); ok {
			return "link", label(), true
		}
	case "input":
		v, _ := n.Attribute("value")
		return "textbox", v, true
	case "button":
		return "button", label(), true
	case "img":
		alt, _ := n.Attribute("alt")
		return "image", alt, true
	case "h1", "h2", "h3", "h4", "h5", "h6":
		return "heading", label(), true
	case "iframe":
		return "iframe", "", true
	case "form":
		return "form", "", false
	}
	return "", "", false
}
