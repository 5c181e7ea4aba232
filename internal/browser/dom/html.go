// internal/browser/dom/html.go
package dom

import (
	"fmt"
	"io"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/xkilldash9x/rendercore/internal/browser/cell"
)

// FromHTML builds a document from markup. The root is the <html> element
// that the HTML parser always synthesizes.
func FromHTML(r io.Reader, g *cell.Graph) (*Document, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("parsing document: %w", err)
	}
	d := New(g)
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if c.Type == html.ElementNode {
			d.Root = d.convert(c, false)
			break
		}
	}
	if d.Root == NoNode {
		return nil, fmt.Errorf("parsing document: no root element")
	}
	return d, nil
}

// SetInnerHTML replaces the children of id with the parsed fragment.
func (d *Document) SetInnerHTML(id NodeID, markup string) error {
	n := d.Node(id)
	if !n.IsElement("") {
		return fmt.Errorf("innerHTML: node %d is not an element", id)
	}
	context := &html.Node{Type: html.ElementNode, Data: n.Tag, DataAtom: atom.Lookup([]byte(n.Tag))}
	nodes, err := html.ParseFragment(strings.NewReader(markup), context)
	if err != nil {
		return fmt.Errorf("innerHTML: %w", err)
	}
	d.RemoveChildren(id)
	pre := d.Closest(id, "pre") != NoNode
	for _, hn := range nodes {
		if child := d.convert(hn, pre); child != NoNode {
			d.AppendChild(id, child)
		}
	}
	// The new children have no style cells yet; make sure the resolver visits.
	n.DirtyDescendants = true
	d.DirtyAncestors(int32(id))
	return nil
}

// convert copies an html.Node subtree into the arena. Comments, doctypes and
// whitespace-only text outside <pre> are dropped.
func (d *Document) convert(hn *html.Node, pre bool) NodeID {
	switch hn.Type {
	case html.TextNode:
		if !pre && strings.TrimSpace(hn.Data) == "" {
			return NoNode
		}
		return d.NewText(hn.Data)
	case html.ElementNode:
		attrs := make([]Attribute, 0, len(hn.Attr))
		for _, a := range hn.Attr {
			if a.Namespace != "" {
				continue
			}
			attrs = append(attrs, Attribute{Key: strings.ToLower(a.Key), Val: a.Val})
		}
		id := d.NewElement(hn.Data, attrs...)
		pre = pre || hn.DataAtom == atom.Pre
		for c := hn.FirstChild; c != nil; c = c.NextSibling {
			if child := d.convert(c, pre); child != NoNode {
				d.AppendChild(id, child)
			}
		}
		return id
	default:
		return NoNode
	}
}
