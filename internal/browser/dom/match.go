// internal/browser/dom/match.go
package dom

import (
	"strings"

	"github.com/xkilldash9x/rendercore/internal/browser/parser"
)

// Matches reports whether the element id matches the complex selector.
func (d *Document) Matches(id NodeID, sel parser.ComplexSelector) bool {
	if len(sel.Selectors) == 0 {
		return false
	}
	return d.recursiveMatch(id, sel, len(sel.Selectors)-1)
}

// MatchesGroup reports whether id matches any selector in the group.
func (d *Document) MatchesGroup(id NodeID, group parser.SelectorGroup) bool {
	for _, sel := range group {
		if d.Matches(id, sel) {
			return true
		}
	}
	return false
}

// QuerySelectorAll returns every element under the root that matches
// selector, in document order.
func (d *Document) QuerySelectorAll(selector string) ([]NodeID, error) {
	group, err := parser.ParseSelector(selector)
	if err != nil {
		return nil, err
	}
	var out []NodeID
	d.Walk(d.Root, func(n *Node) bool {
		if n.Type == ElementNode && d.MatchesGroup(n.ID, group) {
			out = append(out, n.ID)
		}
		return true
	})
	return out, nil
}

func (d *Document) recursiveMatch(id NodeID, sel parser.ComplexSelector, index int) bool {
	n := d.Node(id)
	if !n.IsElement("") || index < 0 {
		return false
	}
	current := sel.Selectors[index]
	if !matchesSimple(n, current.SimpleSelector) {
		return false
	}
	if index == 0 {
		return true
	}
	next := index - 1
	switch current.Combinator {
	case parser.CombinatorDescendant:
		for p := n.Parent; p != NoNode; p = d.Node(p).Parent {
			if d.recursiveMatch(p, sel, next) {
				return true
			}
		}
		return false
	case parser.CombinatorChild:
		return d.recursiveMatch(n.Parent, sel, next)
	case parser.CombinatorAdjacentSibling:
		return d.recursiveMatch(d.previousElementSibling(id), sel, next)
	case parser.CombinatorGeneralSibling:
		for s := d.previousElementSibling(id); s != NoNode; s = d.previousElementSibling(s) {
			if d.recursiveMatch(s, sel, next) {
				return true
			}
		}
		return false
	case parser.CombinatorNone:
		return true
	}
	return false
}

func (d *Document) previousElementSibling(id NodeID) NodeID {
	n := d.Node(id)
	if n == nil {
		return NoNode
	}
	p := d.Node(n.Parent)
	if p == nil {
		return NoNode
	}
	prev := NoNode
	for _, c := range p.Children {
		if c == id {
			return prev
		}
		if d.Node(c).IsElement("") {
			prev = c
		}
	}
	return NoNode
}

func matchesSimple(n *Node, s parser.SimpleSelector) bool {
	if s.TagName != "" && s.TagName != "*" && n.Tag != s.TagName {
		return false
	}
	if s.ID != "" {
		if id, ok := n.Attribute("id"); !ok || id != s.ID {
			return false
		}
	}
	if len(s.Classes) > 0 {
		classAttr, _ := n.Attribute("class")
		classes := strings.Fields(classAttr)
		for _, want := range s.Classes {
			found := false
			for _, c := range classes {
				if c == want {
					found = true
					break
				}
			}
			if !found {
				return false
			}
		}
	}
	for _, a := range s.Attributes {
		if !matchesAttribute(n, a) {
			return false
		}
	}
	return true
}

func matchesAttribute(n *Node, sel parser.AttributeSelector) bool {
	actual, found := n.Attribute(strings.ToLower(sel.Name))
	switch sel.Operator {
	case "":
		return found
	case "=":
		return found && actual == sel.Value
	case "~=":
		if !found {
			return false
		}
		for _, word := range strings.Fields(actual) {
			if word == sel.Value {
				return true
			}
		}
		return false
	case "|=":
		return found && (actual == sel.Value || strings.HasPrefix(actual, sel.Value+"-"))
	case "^=":
		return found && strings.HasPrefix(actual, sel.Value)
	case "$=":
		return found && strings.HasSuffix(actual, sel.Value)
	case "*=":
		return found && strings.Contains(actual, sel.Value)
	default:
		return false
	}
}
