// internal/browser/session/host.go
package session

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/rendercore/internal/browser/dom"
	"github.com/xkilldash9x/rendercore/internal/browser/network"
	"github.com/xkilldash9x/rendercore/internal/browser/task"
)

// This file implements script.Host. Every mutation only marks cells dirty and
// requests a frame; style, layout and paint run later in the animation frame
// task.

func (f *Frame) Window() int32 { return f.ID }

func (f *Frame) Parent() (int32, bool) {
	if f.parent == nil {
		return 0, false
	}
	return f.parent.ID, true
}

// target resolves a window id for an access made by f's script.
func (f *Frame) target(window int32) (*Frame, error) {
	t, ok := f.tab.frames[window]
	if !ok || !t.loaded {
		return nil, &UnknownWindowError{Window: window}
	}
	if t != f && !network.SameOrigin(f.URL, t.URL) {
		return nil, &network.CrossOriginError{From: network.OriginOf(f.URL), To: network.OriginOf(t.URL)}
	}
	return t, nil
}

func (f *Frame) element(window int32, node dom.NodeID) (*Frame, error) {
	t, err := f.target(window)
	if err != nil {
		return nil, err
	}
	if !t.Doc.Node(node).IsElement("") {
		return nil, fmt.Errorf("node %d is not an element", node)
	}
	return t, nil
}

func (f *Frame) QuerySelectorAll(window int32, selector string) ([]dom.NodeID, error) {
	t, err := f.target(window)
	if err != nil {
		return nil, err
	}
	return t.Doc.QuerySelectorAll(selector)
}

func (f *Frame) GetAttribute(window int32, node dom.NodeID, name string) (string, bool, error) {
	t, err := f.element(window, node)
	if err != nil {
		return "", false, err
	}
	v, ok := t.Doc.Attribute(node, name)
	return v, ok, nil
}

func (f *Frame) SetAttribute(window int32, node dom.NodeID, name, value string) error {
	t, err := f.element(window, node)
	if err != nil {
		return err
	}
	t.Doc.SetAttribute(node, name, value)
	t.Doc.MarkStyle(node)
	switch strings.ToLower(name) {
	case "width", "height":
		t.Tree.MarkEmbed(node)
	}
	f.tab.setNeedsRender()
	return nil
}

func (f *Frame) SetInnerHTML(window int32, node dom.NodeID, html string) error {
	t, err := f.element(window, node)
	if err != nil {
		return err
	}
	if err := t.Doc.SetInnerHTML(node, html); err != nil {
		return err
	}
	t.Tree.MarkChildren(node)
	f.tab.setNeedsRender()
	return nil
}

func (f *Frame) SetStyle(window int32, node dom.NodeID, css string) error {
	t, err := f.element(window, node)
	if err != nil {
		return err
	}
	t.Doc.SetAttribute(node, "style", css)
	t.Doc.MarkStyle(node)
	f.tab.setNeedsRender()
	return nil
}

// XHRSend enforces CSP and the same-origin policy before fetching. Network
// failures are logged and produce an empty response rather than an
// exception.
func (f *Frame) XHRSend(method, rawURL string, body *string, async bool, id int) (string, error) {
	full, err := network.ResolveURL(f.URL, rawURL)
	if err != nil {
		return "", err
	}
	if err := f.csp.Check(full); err != nil {
		return "", err
	}
	if !network.SameOrigin(f.URL, full) {
		return "", &network.CrossOriginError{From: network.OriginOf(f.URL), To: network.OriginOf(full)}
	}
	var payload []byte
	if body != nil {
		payload = []byte(*body)
	} else if method == http.MethodPost {
		payload = []byte{}
	}

	ctx, referrer := f.tab.context(), f.URL
	if !async {
		resp, err := f.tab.fetcher.Request(ctx, full, referrer, payload)
		if err != nil {
			f.logger.Warn("Request failed", zap.String("url", full), zap.Error(err))
			return "", nil
		}
		return string(resp.Body), nil
	}

	js := f.js
	f.tab.inflight.Add(1)
	go func() {
		defer f.tab.inflight.Done()
		resp, err := f.tab.fetcher.Request(ctx, full, referrer, payload)
		text := ""
		if err != nil {
			f.logger.Warn("Request failed", zap.String("url", full), zap.Error(err))
		} else {
			text = string(resp.Body)
		}
		f.tab.runner.Schedule(task.New("xhr-load", func() {
			if f.current(js) {
				js.XHRLoad(id, text)
			}
		}))
	}()
	return "", nil
}

func (f *Frame) SetTimeout(id int, delay time.Duration) {
	js := f.js
	f.tab.runner.ScheduleAfter(delay, task.New("set-timeout", func() {
		if f.current(js) {
			js.RunTimeout(id)
		}
	}))
}

func (f *Frame) RequestAnimationFrame() {
	f.tab.requestAnimationFrame()
}

// PostMessage queues delivery to the target window. A message whose target
// origin does not match the target document is dropped.
func (f *Frame) PostMessage(target int32, data any, origin string) error {
	t, ok := f.tab.frames[target]
	if !ok {
		return &UnknownWindowError{Window: target}
	}
	if origin != "*" && network.OriginOf(origin) != network.OriginOf(t.URL) {
		f.logger.Debug("Dropping message for mismatched origin",
			zap.String("origin", origin), zap.String("target", t.URL))
		return nil
	}
	js := t.js
	f.tab.runner.Schedule(task.New("post-message", func() {
		if js != nil && t.current(js) {
			js.DispatchMessage(data)
		}
	}))
	return nil
}
