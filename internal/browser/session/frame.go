// internal/browser/session/frame.go
package session

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rendercore/internal/browser/cell"
	"github.com/xkilldash9x/rendercore/internal/browser/dom"
	"github.com/xkilldash9x/rendercore/internal/browser/layout"
	"github.com/xkilldash9x/rendercore/internal/browser/network"
	"github.com/xkilldash9x/rendercore/internal/browser/paint"
	"github.com/xkilldash9x/rendercore/internal/browser/parser"
	"github.com/xkilldash9x/rendercore/internal/browser/script"
	"github.com/xkilldash9x/rendercore/internal/browser/style"
	"github.com/xkilldash9x/rendercore/internal/browser/task"
)

// Frame is one document of a tab: the root page or the content of an
// <iframe>. All of its state is owned by the tab's worker.
type Frame struct {
	ID     int32
	tab    *Tab
	parent *Frame
	// owner is the <iframe> element in the parent's document.
	owner  dom.NodeID
	logger *zap.Logger

	URL   string
	Doc   *dom.Document
	Tree  *layout.Tree
	Focus dom.NodeID

	rules    []parser.Rule
	resolver *style.Resolver
	csp      *network.CSP
	js       *script.Runtime
	images   map[dom.NodeID]image.Image
	children map[dom.NodeID]*Frame
	width    float64
	loaded   bool
}

var (
	_ layout.Embedder = (*Frame)(nil)
	_ paint.Embeds    = (*Frame)(nil)
	_ script.Host     = (*Frame)(nil)
)

// Loaded reports whether the frame has a document.
func (f *Frame) Loaded() bool { return f.loaded }

// Load fetches rawURL, POSTing payload when it is non-nil, and replaces the
// frame's document. Stylesheets and images are fetched before Load returns;
// scripts and nested frames are queued as tasks. Sub-resource failures are
// logged and skipped. A frame that already had a document gets a new ID so
// paint origins of the new document never alias the old one.
func (f *Frame) Load(rawURL, referrer string, payload []byte) error {
	resp, err := f.tab.fetcher.Request(f.tab.context(), rawURL, referrer, payload)
	if err != nil {
		return &NavigationError{URL: rawURL, Err: err}
	}
	doc, err := dom.FromHTML(bytes.NewReader(resp.Body), cell.NewGraph())
	if err != nil {
		return &NavigationError{URL: rawURL, Err: err}
	}

	for _, child := range f.children {
		f.tab.release(child)
	}
	if f.loaded {
		f.tab.renumber(f)
	}
	f.URL = resp.URL
	f.Doc = doc
	f.Tree = layout.NewTree(doc, f.tab.fonts, f, f.logger)
	f.Focus = dom.NoNode
	f.csp = network.ParseCSP(resp.Headers.Get("Content-Security-Policy"), f.URL)
	f.resolver = style.NewResolver(f.logger, f.tab.opts.FrameInterval)
	f.images = map[dom.NodeID]image.Image{}
	f.children = map[dom.NodeID]*Frame{}
	f.js = nil
	if f.tab.opts.ScriptEnabled {
		js, err := script.New(f, f.tab.opts.ScriptTimeout, f.logger)
		if err != nil {
			f.logger.Error("Failed to create script runtime", zap.Error(err))
		} else {
			f.js = js
		}
	}

	rules, order := style.DefaultRules()
	f.rules = append(rules, f.loadStylesheets(order)...)
	parser.SortRules(f.rules)
	f.loadImages()
	f.loadScripts()
	f.loadFrames()
	f.loaded = true

	f.logger.Info("Loaded document",
		zap.String("url", f.URL),
		zap.Int("status", resp.Status),
		zap.Int("nodes", doc.Len()),
		zap.Int("rules", len(f.rules)))
	f.tab.setNeedsRender()
	return nil
}

// fetch resolves ref against the document and loads it, subject to the
// document's Content-Security-Policy.
func (f *Frame) fetch(ref string) (*network.Response, error) {
	full, err := network.ResolveURL(f.URL, ref)
	if err != nil {
		return nil, err
	}
	if err := f.csp.Check(full); err != nil {
		return nil, err
	}
	resp, err := f.tab.fetcher.Request(f.tab.context(), full, f.URL, nil)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, fmt.Errorf("fetching %s: status %d", full, resp.Status)
	}
	return resp, nil
}

func (f *Frame) loadStylesheets(order int) []parser.Rule {
	var rules []parser.Rule
	f.Doc.Walk(f.Doc.Root, func(n *dom.Node) bool {
		var css string
		switch {
		case n.IsElement("link"):
			rel, _ := n.Attribute("rel")
			href, ok := n.Attribute("href")
			if !ok || !strings.EqualFold(strings.TrimSpace(rel), "stylesheet") {
				return false
			}
			resp, err := f.fetch(href)
			if err != nil {
				f.logger.Warn("Skipping stylesheet", zap.String("href", href), zap.Error(err))
				return false
			}
			css = string(resp.Body)
		case n.IsElement("style"):
			css = f.Doc.TextContent(n.ID)
		default:
			return true
		}

		var sheet parser.StyleSheet
		for _, r := range parser.NewParser(css).Rules() {
			if r.Err != nil {
				f.logger.Debug("Skipping malformed rule", zap.Error(r.Err))
				continue
			}
			sheet.Rules = append(sheet.Rules, r.Rule)
		}
		flat, next := parser.Flatten(parser.OriginAuthor, order, sheet)
		order = next
		rules = append(rules, flat...)
		return false
	})
	return rules
}

func (f *Frame) loadImages() {
	f.Doc.Walk(f.Doc.Root, func(n *dom.Node) bool {
		if !n.IsElement("img") {
			return true
		}
		src, ok := n.Attribute("src")
		if !ok {
			return false
		}
		resp, err := f.fetch(src)
		if err != nil {
			f.logger.Warn("Failed to load image", zap.String("src", src), zap.Error(err))
			return false
		}
		img, err := decodeImage(resp.Body)
		if err != nil {
			f.logger.Warn("Failed to decode image", zap.String("src", src), zap.Error(err))
			return false
		}
		f.images[n.ID] = img
		return false
	})
}

func (f *Frame) loadScripts() {
	if f.js == nil {
		return
	}
	js := f.js
	f.Doc.Walk(f.Doc.Root, func(n *dom.Node) bool {
		if !n.IsElement("script") {
			return true
		}
		name, code := f.URL+"#inline", f.Doc.TextContent(n.ID)
		if src, ok := n.Attribute("src"); ok {
			resp, err := f.fetch(src)
			if err != nil {
				f.logger.Warn("Skipping script", zap.String("src", src), zap.Error(err))
				return false
			}
			name, code = resp.URL, string(resp.Body)
		}
		f.tab.runner.Schedule(task.New("script", func() {
			if f.current(js) {
				_ = js.Run(name, code)
			}
		}))
		return false
	})
}

func (f *Frame) loadFrames() {
	f.Doc.Walk(f.Doc.Root, func(n *dom.Node) bool {
		if !n.IsElement("iframe") {
			return true
		}
		src, ok := n.Attribute("src")
		if !ok {
			return false
		}
		full, err := network.ResolveURL(f.URL, src)
		if err == nil {
			err = f.csp.Check(full)
		}
		if err != nil {
			f.logger.Warn("Skipping iframe", zap.String("src", src), zap.Error(err))
			return false
		}
		child := f.tab.newFrame(f, n.ID)
		child.width = layout.IframeWidth * f.tab.zoom
		f.children[n.ID] = child
		f.tab.runner.Schedule(task.New("load-iframe", func() {
			if !f.tab.alive(child) {
				return
			}
			if err := child.Load(full, f.URL, nil); err != nil {
				f.logger.Warn("Failed to load iframe", zap.String("src", full), zap.Error(err))
			}
		}))
		return false
	})
}

// current reports whether the frame is still part of its tab and still runs
// js. Deferred script work checks this before touching the runtime.
func (f *Frame) current(js *script.Runtime) bool {
	return f.tab.alive(f) && f.js == js
}

// Render brings style and layout up to date for this frame and every loaded
// nested frame. Clean subtrees are skipped.
func (f *Frame) Render() {
	if !f.loaded {
		return
	}
	for _, tr := range f.resolver.Resolve(f.Doc, f.rules) {
		f.logger.Debug("Transition started",
			zap.Int32("node", int32(tr.Node)),
			zap.String("property", tr.Property))
		f.tab.animating = true
	}
	f.Tree.Layout(f.width, f.tab.zoom)
	for _, child := range f.sortedChildren() {
		child.Render()
	}
}

func (f *Frame) sortedChildren() []*Frame {
	out := make([]*Frame, 0, len(f.children))
	f.Doc.Walk(f.Doc.Root, func(n *dom.Node) bool {
		if child, ok := f.children[n.ID]; ok {
			out = append(out, child)
		}
		return true
	})
	return out
}

func (f *Frame) source() paint.Source {
	return paint.Source{Frame: f.ID, Tree: f.Tree, Focus: f.Focus, Embeds: f}
}

// -- layout.Embedder and paint.Embeds --

func (f *Frame) ImageSize(node dom.NodeID) (float64, float64, bool) {
	img, ok := f.images[node]
	if !ok {
		return 0, 0, false
	}
	b := img.Bounds()
	return float64(b.Dx()), float64(b.Dy()), true
}

func (f *Frame) FrameResized(node dom.NodeID, width, height float64) {
	if child, ok := f.children[node]; ok {
		child.width = width
	}
}

func (f *Frame) Image(node dom.NodeID) image.Image {
	return f.images[node]
}

func (f *Frame) Frame(node dom.NodeID) (paint.Source, bool) {
	child, ok := f.children[node]
	if !ok || !child.loaded {
		return paint.Source{}, false
	}
	return child.source(), true
}
