// internal/browser/session/input.go
package session

import (
	"net/http"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rendercore/internal/browser/dom"
	"github.com/xkilldash9x/rendercore/internal/browser/network"
)

// dispatch runs script listeners and reports whether the default action was
// suppressed.
func (f *Frame) dispatch(typ string, node dom.NodeID) bool {
	if f.js == nil {
		return false
	}
	return f.js.DispatchEvent(typ, node)
}

// click handles a click at document coordinates (x, y). The hit object's
// element chain is searched for the innermost actionable element.
func (f *Frame) click(x, y float64) {
	f.tab.blur()
	obj := f.Tree.HitTest(x, y)
	if obj == nil {
		return
	}
	for id := obj.Node; id != dom.NoNode; {
		n := f.Doc.Node(id)
		if n == nil {
			return
		}
		switch {
		case n.IsElement("iframe"):
			child, ok := f.children[id]
			embed := f.Tree.EmbedFor(id)
			if !ok || !child.loaded || embed == nil {
				return
			}
			b := f.Tree.AbsoluteBounds(embed)
			zoom := embed.Zoom.Get()
			child.click(x-b.X-zoom, y-b.Y-zoom)
			return
		case n.IsElement("a"):
			href, ok := n.Attribute("href")
			if !ok {
				break
			}
			if f.dispatch("click", id) {
				return
			}
			f.navigate(href, "", nil)
			return
		case n.IsElement("input"):
			if f.dispatch("click", id) {
				return
			}
			f.Doc.SetAttribute(id, "value", "")
			f.focus(id)
			return
		case n.IsElement("button"):
			if f.dispatch("click", id) {
				return
			}
			if form := f.Doc.Closest(id, "form"); form != dom.NoNode {
				f.submitForm(form)
			}
			return
		}
		id = n.Parent
	}
}

func (f *Frame) focus(id dom.NodeID) {
	f.Focus = id
	f.tab.focused = f
	f.tab.setNeedsRender()
	if f.parent == nil {
		f.tab.scrollIntoView(f, id)
	}
}

// keypress appends char to the focused input unless a keydown listener
// suppresses it.
func (f *Frame) keypress(char string) {
	n := f.Doc.Node(f.Focus)
	if !n.IsElement("input") {
		return
	}
	if f.dispatch("keydown", n.ID) {
		return
	}
	value, _ := n.Attribute("value")
	f.Doc.SetAttribute(n.ID, "value", value+char)
	f.tab.setNeedsRender()
}

// navigate loads ref in this frame. The root frame navigates the whole tab.
func (f *Frame) navigate(ref, method string, payload []byte) {
	full, err := network.ResolveURL(f.URL, ref)
	if err != nil {
		f.logger.Warn("Ignoring invalid link", zap.String("href", ref), zap.Error(err))
		return
	}
	if method == http.MethodPost && payload == nil {
		payload = []byte{}
	}
	if f.parent == nil {
		if err := f.tab.Load(full, f.URL, payload); err != nil {
			f.logger.Error("Navigation failed", zap.Error(err))
		}
		return
	}
	if err := f.Load(full, f.URL, payload); err != nil {
		f.logger.Error("Frame navigation failed", zap.Error(err))
	}
}

// submitForm dispatches submit and, unless suppressed, sends the form's
// named controls url-encoded in document order.
func (f *Frame) submitForm(form dom.NodeID) {
	if f.dispatch("submit", form) {
		return
	}
	var pairs []string
	add := func(name, value string) {
		pairs = append(pairs, url.QueryEscape(name)+"="+url.QueryEscape(value))
	}
	f.Doc.Walk(form, func(n *dom.Node) bool {
		name, ok := n.Attribute("name")
		if !ok || n.Type != dom.ElementNode || name == "" {
			return true
		}
		switch n.Tag {
		case "input":
			typ, _ := n.Attribute("type")
			switch strings.ToLower(typ) {
			case "checkbox", "radio":
				if _, checked := n.Attribute("checked"); checked {
					value, ok := n.Attribute("value")
					if !ok {
						value = "on"
					}
					add(name, value)
				}
			case "submit", "button", "image", "reset", "file":
			default:
				value, _ := n.Attribute("value")
				add(name, value)
			}
		case "textarea":
			add(name, f.Doc.TextContent(n.ID))
		}
		return true
	})
	body := strings.Join(pairs, "&")

	action, ok := f.Doc.Attribute(form, "action")
	if !ok {
		action = f.URL
	}
	method, _ := f.Doc.Attribute(form, "method")
	if strings.EqualFold(method, http.MethodGet) {
		full, err := network.ResolveURL(f.URL, action)
		if err != nil {
			f.logger.Warn("Ignoring invalid form action", zap.String("action", action), zap.Error(err))
			return
		}
		u, _ := url.Parse(full)
		u.RawQuery = body
		f.navigate(u.String(), http.MethodGet, nil)
		return
	}
	f.navigate(action, http.MethodPost, []byte(body))
}
