// internal/browser/style/resolver.go
package style

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rendercore/internal/browser/cell"
	"github.com/xkilldash9x/rendercore/internal/browser/dom"
	"github.com/xkilldash9x/rendercore/internal/browser/parser"
)

// Transition reports an animation started by a style pass.
type Transition struct {
	Node     dom.NodeID
	Property string
}

// Resolver populates the per-property style cells of a document.
type Resolver struct {
	logger        *zap.Logger
	frameInterval time.Duration
}

// NewResolver creates a resolver. frameInterval converts transition
// durations into frame counts.
func NewResolver(logger *zap.Logger, frameInterval time.Duration) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{logger: logger.Named("style"), frameInterval: frameInterval}
}

// DefaultRules returns the parsed user agent sheet, sorted and ready to be
// merged with author rules.
func DefaultRules() ([]parser.Rule, int) {
	return parser.Flatten(parser.OriginUserAgent, 0, parser.NewParser(DefaultUserAgentCSS).Parse())
}

// Resolve recomputes every dirty style cell in doc. rules must already be
// sorted by cascade priority. Nodes whose cells are clean and that have no
// dirty descendants are skipped entirely.
func (r *Resolver) Resolve(doc *dom.Document, rules []parser.Rule) []Transition {
	var started []Transition
	r.resolve(doc, doc.Root, rules, &started)
	return started
}

func (r *Resolver) resolve(doc *dom.Document, id dom.NodeID, rules []parser.Rule, started *[]Transition) {
	n := doc.Node(id)
	if n == nil {
		return
	}
	fresh := n.Style == nil
	if fresh {
		r.initStyle(doc, n)
	}

	needsStyle := false
	for _, c := range n.Style {
		if c.Dirty() {
			needsStyle = true
			break
		}
	}
	if needsStyle {
		r.compute(doc, n, rules, fresh, started)
	}
	if needsStyle || n.DirtyDescendants {
		for _, child := range n.Children {
			r.resolve(doc, child, rules, started)
		}
	}
	n.DirtyDescendants = false
}

func (r *Resolver) initStyle(doc *dom.Document, n *dom.Node) {
	n.Style = make(map[string]*cell.Cell[string], len(Properties))
	name := n.Tag
	if n.Type == dom.TextNode {
		name = "#text"
	}
	for _, prop := range PropertyNames {
		n.Style[prop] = cell.New[string](doc.Graph(), doc.Owner(n.ID), name+"."+prop)
	}
	if n.Animations == nil {
		n.Animations = map[string]dom.Animation{}
	}
}

func (r *Resolver) compute(doc *dom.Document, n *dom.Node, rules []parser.Rule, fresh bool, started *[]Transition) {
	parent := doc.Node(n.Parent)
	if parent != nil && parent.Style == nil {
		parent = nil
	}
	inherit := func(prop string) string {
		if parent != nil {
			return parent.Style[prop].Read(n.Style[prop])
		}
		if v, ok := Inherited[prop]; ok {
			return v
		}
		return Properties[prop]
	}

	newStyle := make(map[string]string, len(Properties))
	for prop, def := range Properties {
		newStyle[prop] = def
	}
	for prop := range Inherited {
		newStyle[prop] = inherit(prop)
	}

	if n.Type == dom.ElementNode {
		var inline []parser.Declaration
		if attr, ok := n.Attribute("style"); ok {
			inline = parser.ParseDeclarations(attr)
		}
		var important []parser.Declaration
		for _, rule := range rules {
			if !doc.Matches(n.ID, rule.Selector) {
				continue
			}
			for _, decl := range rule.Declarations {
				if decl.Important {
					important = append(important, decl)
					continue
				}
				apply(newStyle, decl)
			}
		}
		for _, decl := range inline {
			if !decl.Important {
				apply(newStyle, decl)
			}
		}
		for _, decl := range important {
			apply(newStyle, decl)
		}
		for _, decl := range inline {
			if decl.Important {
				apply(newStyle, decl)
			}
		}
	}

	for prop, v := range newStyle {
		if v == "inherit" {
			newStyle[prop] = inherit(prop)
		}
	}

	if fs := newStyle["font-size"]; strings.HasSuffix(fs, "%") || strings.HasSuffix(fs, "em") {
		parentPx := BaseFontSize
		if parent != nil {
			parentPx = FontSize(parent.Style["font-size"].Read(n.Style["font-size"]))
		}
		newStyle["font-size"] = FormatPx(ResolveFontSize(fs, parentPx))
	}

	if !fresh {
		r.startTransitions(n, newStyle, started)
	}

	for _, prop := range PropertyNames {
		n.Style[prop].Set(newStyle[prop])
	}
}

// startTransitions installs an animation for every transitioned property
// whose value changed. A running animation towards the same value is left
// alone and keeps overriding the cascade.
func (r *Resolver) startTransitions(n *dom.Node, newStyle map[string]string, started *[]Transition) {
	for prop, frames := range ParseTransition(newStyle["transition"], r.frameInterval) {
		if !Animated[prop] {
			continue
		}
		old := n.Style[prop].Peek()
		if running, ok := n.Animations[prop].(*NumericAnimation); ok && running.Target() == newStyle[prop] {
			newStyle[prop] = old
			continue
		}
		if old == newStyle[prop] {
			continue
		}
		anim := NewNumericAnimation(prop, old, newStyle[prop], frames)
		if anim == nil {
			continue
		}
		n.Animations[prop] = anim
		newStyle[prop], _ = anim.Animate()
		*started = append(*started, Transition{Node: n.ID, Property: prop})
		r.logger.Debug("Transition started",
			zap.Int32("node", int32(n.ID)),
			zap.String("property", prop),
			zap.String("from", old),
			zap.String("to", anim.Target()),
			zap.Int("frames", frames))
	}
}

func apply(style map[string]string, decl parser.Declaration) {
	prop := string(decl.Property)
	if _, ok := Properties[prop]; !ok {
		return
	}
	style[prop] = string(decl.Value)
}

// Value reads a resolved property without registering a dependency. It is
// used by paint, which runs after style and layout are clean.
func Value(n *dom.Node, prop string) string {
	if n == nil || n.Style == nil {
		return Properties[prop]
	}
	c, ok := n.Style[prop]
	if !ok {
		return ""
	}
	return c.Get()
}
