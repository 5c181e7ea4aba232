// internal/browser/session/session_test.go
package session

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/rendercore/internal/browser/dom"
	"github.com/xkilldash9x/rendercore/internal/browser/layout"
	"github.com/xkilldash9x/rendercore/internal/browser/network"
	"github.com/xkilldash9x/rendercore/internal/browser/paint"
	"github.com/xkilldash9x/rendercore/internal/browser/raster"
	"github.com/xkilldash9x/rendercore/internal/browser/style"
)

// -- Test Helpers --

const base = "http://a.test/"

type page struct {
	body    string
	headers map[string]string
	status  int
}

type request struct {
	url, referrer string
	payload       []byte
}

// fakeFetcher serves pages from memory and records every request.
type fakeFetcher struct {
	mu       sync.Mutex
	pages    map[string]page
	requests []request
}

func newFetcher(pages map[string]page) *fakeFetcher {
	return &fakeFetcher{pages: pages}
}

func (f *fakeFetcher) Request(_ context.Context, rawURL, referrer string, payload []byte) (*network.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, request{rawURL, referrer, payload})
	p, ok := f.pages[rawURL]
	if !ok {
		return nil, fmt.Errorf("no route to %s", rawURL)
	}
	h := http.Header{}
	for k, v := range p.headers {
		h.Set(k, v)
	}
	status := p.status
	if status == 0 {
		status = http.StatusOK
	}
	return &network.Response{URL: rawURL, Status: status, Headers: h, Body: []byte(p.body)}, nil
}

func (f *fakeFetcher) requested(rawURL string) (request, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.requests {
		if r.url == rawURL {
			return r, true
		}
	}
	return request{}, false
}

// recordingCommitter keeps every commit.
type recordingCommitter struct {
	mu       sync.Mutex
	commits  []*Commit
	requests int
}

func (c *recordingCommitter) Commit(_ *Tab, commit *Commit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.commits = append(c.commits, commit)
}

func (c *recordingCommitter) SetNeedsAnimationFrame(*Tab) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.requests++
}

func (c *recordingCommitter) last(t *testing.T) *Commit {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	require.NotEmpty(t, c.commits)
	return c.commits[len(c.commits)-1]
}

func newTab(t *testing.T, fetcher network.Fetcher, opts Options) (*Tab, *recordingCommitter) {
	t.Helper()
	rec := &recordingCommitter{}
	return NewTab(fetcher, raster.MonospaceFonts{}, rec, opts, zaptest.NewLogger(t)), rec
}

// open loads rawURL, drains the queue and runs one animation frame.
func open(t *testing.T, tab *Tab, rawURL string) {
	t.Helper()
	require.NoError(t, tab.Load(rawURL, "", nil))
	tab.Runner().RunUntilIdle()
	tab.RunAnimationFrame(0)
}

func byID(t *testing.T, f *Frame, id string) dom.NodeID {
	t.Helper()
	ids, err := f.Doc.QuerySelectorAll("#" + id)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	return ids[0]
}

func attr(f *Frame, node dom.NodeID, name string) string {
	v, _ := f.Doc.Attribute(node, name)
	return v
}

// center returns the middle of the first layout object belonging to node or
// one of its descendants.
func center(t *testing.T, f *Frame, node dom.NodeID) (float64, float64) {
	t.Helper()
	var found *layout.Object
	f.Tree.Walk(func(o *layout.Object) bool {
		if found != nil {
			return false
		}
		if o.Kind != layout.KindText && !o.Kind.IsEmbed() {
			return true
		}
		for _, id := range append([]dom.NodeID{o.Node}, f.Doc.Ancestors(o.Node)...) {
			if id == node {
				found = o
				return false
			}
		}
		return true
	})
	require.NotNil(t, found, "no layout object for node %d", node)
	r := f.Tree.AbsoluteBounds(found)
	return r.X + r.Width/2, r.Y + r.Height/2
}

func click(t *testing.T, tab *Tab, node dom.NodeID) {
	t.Helper()
	x, y := center(t, tab.Root(), node)
	tab.Click(x, y)
	tab.Runner().RunUntilIdle()
}

func texts(items []paint.Item) []string {
	var out []string
	paint.Walk(items, func(it paint.Item) {
		if c, ok := it.(*paint.Command); ok && c.Kind == paint.DrawText {
			out = append(out, c.Text)
		}
	})
	return out
}

func pngBytes(t *testing.T, w, h int) string {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, w, h))))
	return buf.String()
}

// -- Test Cases: Loading and commits --

func TestLoadAndCommit(t *testing.T) {
	tab, rec := newTab(t, newFetcher(map[string]page{
		base: {body: "<p>hello world</p>"},
	}), DefaultOptions())

	open(t, tab, base)
	first := rec.last(t)
	assert.Equal(t, tab.ID, first.Tab)
	assert.Equal(t, base, first.URL)
	require.NotNil(t, first.DisplayList)
	assert.Equal(t, []string{"hello", "world"}, texts(first.DisplayList.Items))
	require.NotNil(t, first.Scroll, "a load resets scroll")
	assert.Equal(t, 0.0, *first.Scroll)
	assert.Greater(t, first.Height, 0.0)
	assert.Nil(t, first.CompositedUpdates)

	tab.RunAnimationFrame(0)
	second := rec.last(t)
	assert.NotSame(t, first, second)
	assert.Nil(t, second.DisplayList, "nothing changed")
	assert.Nil(t, second.Scroll)
	assert.Nil(t, second.CompositedUpdates)
	assert.Equal(t, first.Height, second.Height)
}

func TestNavigationError(t *testing.T) {
	tab, _ := newTab(t, newFetcher(map[string]page{base: {body: "<p>a</p>"}}), DefaultOptions())
	open(t, tab, base)

	err := tab.Load("http://missing.test/", "", nil)
	var navErr *NavigationError
	require.ErrorAs(t, err, &navErr)
	assert.Equal(t, "http://missing.test/", navErr.URL)
	assert.Equal(t, base, tab.URL(), "failed navigation keeps the old page")
	assert.Len(t, tab.frames, 1)
}

func TestSubresources(t *testing.T) {
	f := newFetcher(map[string]page{
		base: {
			headers: map[string]string{"Content-Security-Policy": "default-src 'self'"},
			body: `<html><head>
				<link rel="stylesheet" href="/style.css">
				<link rel="stylesheet" href="http://evil.test/x.css">
				<link rel="stylesheet" href="/missing.css">
				<style>p { color: green }</style>
			</head><body>
				<p id="p">text</p>
				<img id="ok" src="/a.png"><img id="broken" src="/missing.png"><img id="blocked" src="http://evil.test/b.png">
			</body></html>`,
		},
		base + "style.css": {body: "p { background-color: red } garbage {"},
		base + "a.png":     {body: pngBytes(t, 4, 3)},
	})
	tab, _ := newTab(t, f, DefaultOptions())
	open(t, tab, base)

	root := tab.Root()
	p := root.Doc.Node(byID(t, root, "p"))
	assert.Equal(t, "red", style.Value(p, "background-color"))
	assert.Equal(t, "green", style.Value(p, "color"))

	require.Contains(t, root.images, byID(t, root, "ok"))
	assert.Equal(t, image.Rect(0, 0, 4, 3), root.images[byID(t, root, "ok")].Bounds())
	assert.NotContains(t, root.images, byID(t, root, "broken"))
	assert.NotContains(t, root.images, byID(t, root, "blocked"))

	_, ok := f.requested("http://evil.test/x.css")
	assert.False(t, ok, "blocked by CSP before fetching")
	_, ok = f.requested("http://evil.test/b.png")
	assert.False(t, ok)
	req, ok := f.requested(base + "style.css")
	require.True(t, ok)
	assert.Equal(t, base, req.referrer)

	img := root.Tree.EmbedFor(byID(t, root, "ok"))
	require.NotNil(t, img)
	assert.Equal(t, 4.0, img.Width.Get())
}

// -- Test Cases: Script --

func TestScriptMutationsRender(t *testing.T) {
	tab, rec := newTab(t, newFetcher(map[string]page{
		base: {body: `<div id="d">plain</div>
			<script>throw new Error("first script fails");</script>
			<script src="/app.js"></script>`},
		base + "app.js": {body: `document.querySelector("#d").innerHTML = "<b>bold</b> text";`},
	}), DefaultOptions())

	open(t, tab, base)
	assert.Equal(t, []string{"bold", "text"}, texts(rec.last(t).DisplayList.Items))

	require.NoError(t, tab.Root().js.Run("later.js", `document.querySelector("#d").style = "background-color: blue";`))
	tab.RunAnimationFrame(0)
	dl := rec.last(t).DisplayList
	require.NotNil(t, dl)
	var blue bool
	paint.Walk(dl.Items, func(it paint.Item) {
		if c, ok := it.(*paint.Command); ok && c.Kind == paint.DrawRect && c.Color.B == 255 && c.Color.R == 0 {
			blue = true
		}
	})
	assert.True(t, blue)
}

func TestScriptTimersAndAnimationFrames(t *testing.T) {
	tab, rec := newTab(t, newFetcher(map[string]page{
		base: {body: `<p id="p">x</p><script>
			var p = document.querySelector("#p");
			setTimeout(function () { p.setAttribute("data-timer", "fired"); }, 0);
			requestAnimationFrame(function () { p.setAttribute("data-raf", "ran"); });
		</script>`},
	}), DefaultOptions())
	require.NoError(t, tab.Load(base, "", nil))
	tab.Runner().RunUntilIdle()

	root := tab.Root()
	p := byID(t, root, "p")
	assert.Empty(t, attr(root, p, "data-raf"))
	assert.Positive(t, rec.requests, "requestAnimationFrame asks for a frame")
	tab.RunAnimationFrame(0)
	assert.Equal(t, "ran", attr(root, p, "data-raf"))

	require.Eventually(t, func() bool {
		tab.Runner().RunUntilIdle()
		return attr(root, p, "data-timer") == "fired"
	}, time.Second, 5*time.Millisecond)
}

func TestXMLHttpRequest(t *testing.T) {
	f := newFetcher(map[string]page{
		base: {body: `<p id="p">x</p><script>
			var p = document.querySelector("#p");
			var s = new XMLHttpRequest();
			s.open("GET", "/data", false);
			s.send();
			p.setAttribute("data-sync", s.responseText);

			try {
				var x = new XMLHttpRequest();
				x.open("GET", "http://b.test/data", false);
				x.send();
				p.setAttribute("data-cross", "allowed");
			} catch (e) {
				p.setAttribute("data-cross", "blocked");
			}

			var a = new XMLHttpRequest();
			a.open("POST", "/echo");
			a.onload = function () { p.setAttribute("data-async", a.responseText); };
			a.send("k=v");
		</script>`},
		base + "data": {body: "payload"},
		base + "echo": {body: "echoed"},
	})
	tab, _ := newTab(t, f, DefaultOptions())
	require.NoError(t, tab.Load(base, "", nil))
	tab.Runner().RunUntilIdle()

	root := tab.Root()
	p := byID(t, root, "p")
	assert.Equal(t, "payload", attr(root, p, "data-sync"))
	assert.Equal(t, "blocked", attr(root, p, "data-cross"))
	_, ok := f.requested("http://b.test/data")
	assert.False(t, ok)

	require.Eventually(t, func() bool {
		tab.Runner().RunUntilIdle()
		return attr(root, p, "data-async") == "echoed"
	}, time.Second, 5*time.Millisecond)
	tab.inflight.Wait()
	req, ok := f.requested(base + "echo")
	require.True(t, ok)
	assert.Equal(t, "k=v", string(req.payload))
}

func TestIframesAndCrossOriginAccess(t *testing.T) {
	childPage := `<p>child</p><script>
		var r;
		try {
			parent.document.querySelector("#target").setAttribute("data-from", "%s");
			r = "ok";
		} catch (e) {
			r = "blocked";
		}
		document.querySelector("p").setAttribute("data-result", r);
		parent.postMessage("%s", "*");
		parent.postMessage("dropped", "http://c.test");
	</script>`
	tab, rec := newTab(t, newFetcher(map[string]page{
		base: {body: `<p id="target">parent</p>
			<iframe id="same" src="/same.html"></iframe>
			<iframe id="other" src="http://b.test/other.html" width="100" height="50"></iframe>
			<script>
				var messages = [];
				window.addEventListener("message", function (e) {
					messages.push(e.data);
					document.querySelector("#target").setAttribute("data-messages", messages.join(","));
				});
			</script>`},
		base + "same.html":         {body: fmt.Sprintf(childPage, "same", "hello-same")},
		"http://b.test/other.html": {body: fmt.Sprintf(childPage, "other", "hello-other")},
	}), DefaultOptions())
	open(t, tab, base)

	root := tab.Root()
	target := byID(t, root, "target")
	same := root.children[byID(t, root, "same")]
	other := root.children[byID(t, root, "other")]
	require.NotNil(t, same)
	require.NotNil(t, other)
	require.True(t, same.Loaded())
	require.True(t, other.Loaded())

	assert.Equal(t, "same", attr(root, target, "data-from"))
	sameP, _ := same.Doc.QuerySelectorAll("p")
	otherP, _ := other.Doc.QuerySelectorAll("p")
	assert.Equal(t, "ok", attr(same, sameP[0], "data-result"))
	assert.Equal(t, "blocked", attr(other, otherP[0], "data-result"))
	assert.Equal(t, "hello-same,hello-other", attr(root, target, "data-messages"))

	// The nested documents are laid out at their frame's size and painted.
	assert.Equal(t, 100.0, other.width)
	assert.Equal(t, 100.0-2*layout.HStep, other.Tree.Root().Width.Get())
	assert.Contains(t, texts(rec.last(t).DisplayList.Items), "child")
}

// -- Test Cases: Input --

func TestClickLink(t *testing.T) {
	f := newFetcher(map[string]page{
		base:           {body: `<p><a id="go" href="/next">go there</a></p>`},
		base + "next":  {body: `<p>arrived</p>`},
		base + "other": {body: `<p>other</p>`},
	})
	tab, _ := newTab(t, f, DefaultOptions())
	open(t, tab, base)

	click(t, tab, byID(t, tab.Root(), "go"))
	assert.Equal(t, base+"next", tab.URL())
	req, _ := f.requested(base + "next")
	assert.Equal(t, base, req.referrer)

	tab.GoBack()
	tab.Runner().RunUntilIdle()
	assert.Equal(t, base, tab.URL())
}

func TestIframeNavigationGetsFreshOrigins(t *testing.T) {
	f := newFetcher(map[string]page{
		base:              {body: `<p>top</p><iframe id="inner" src="/one.html"></iframe>`},
		base + "one.html": {body: `<p>one</p>`},
		base + "two.html": {body: `<p>two</p>`},
	})
	tab, rec := newTab(t, f, DefaultOptions())
	open(t, tab, base)

	root := tab.Root()
	inner := root.children[byID(t, root, "inner")]
	require.NotNil(t, inner)
	before := inner.ID

	inner.navigate("/two.html", http.MethodGet, nil)
	tab.Runner().RunUntilIdle()
	tab.RunAnimationFrame(0)

	assert.NotEqual(t, before, inner.ID)
	assert.Same(t, inner, tab.frames[inner.ID])
	assert.NotContains(t, tab.frames, before)

	req, ok := f.requested(base + "two.html")
	require.True(t, ok)
	assert.Equal(t, base+"one.html", req.referrer, "the iframe's own document is the referrer")

	dl := rec.last(t).DisplayList
	require.NotNil(t, dl)
	assert.Contains(t, texts(dl.Items), "two")
	paint.Walk(dl.Items, func(it paint.Item) {
		assert.NotEqual(t, before, it.Source().Frame, "no item keeps the old document's frame id")
	})
}

func TestClickLinkSuppressed(t *testing.T) {
	tab, _ := newTab(t, newFetcher(map[string]page{
		base: {body: `<p><a id="go" href="/next">go</a></p><script>
			document.querySelector("#go").addEventListener("click", function (e) { e.preventDefault(); });
		</script>`},
	}), DefaultOptions())
	open(t, tab, base)

	click(t, tab, byID(t, tab.Root(), "go"))
	assert.Equal(t, base, tab.URL())
}

func TestInputFocusAndTyping(t *testing.T) {
	tab, rec := newTab(t, newFetcher(map[string]page{
		base: {body: `<p><input id="name" value="old"><input id="locked" value="x"></p><script>
			document.querySelector("#locked").addEventListener("keydown", function (e) { e.preventDefault(); });
		</script>`},
	}), DefaultOptions())
	open(t, tab, base)
	root := tab.Root()
	name := byID(t, root, "name")

	click(t, tab, name)
	assert.Equal(t, "", attr(root, name, "value"), "clicking clears the input")
	assert.Equal(t, name, root.Focus)

	tab.Keypress("h")
	tab.Keypress("i")
	tab.Runner().RunUntilIdle()
	assert.Equal(t, "hi", attr(root, name, "value"))

	tab.RunAnimationFrame(0)
	commit := rec.last(t)
	assert.Equal(t, paint.Origin{Frame: root.ID, Node: name}, commit.Focus)
	require.NotNil(t, commit.DisplayList)
	assert.Contains(t, texts(commit.DisplayList.Items), "hi")

	locked := byID(t, root, "locked")
	click(t, tab, locked)
	tab.Keypress("z")
	tab.Runner().RunUntilIdle()
	assert.Equal(t, "", attr(root, locked, "value"), "keydown listener suppressed typing")
}

func TestFormSubmit(t *testing.T) {
	f := newFetcher(map[string]page{
		base: {body: `<form action="/submit" method="post">
			<input name="q" value="a b">
			<input type="checkbox" name="c" checked>
			<input type="checkbox" name="unchecked">
			<button id="send">Go</button>
		</form>`},
		base + "submit": {body: `<p>thanks</p>`},
	})
	tab, _ := newTab(t, f, DefaultOptions())
	open(t, tab, base)

	click(t, tab, byID(t, tab.Root(), "send"))
	assert.Equal(t, base+"submit", tab.URL())
	req, ok := f.requested(base + "submit")
	require.True(t, ok)
	assert.Equal(t, "q=a+b&c=on", string(req.payload))
	assert.Equal(t, base, req.referrer)
}

func TestFormSubmitSuppressed(t *testing.T) {
	f := newFetcher(map[string]page{
		base: {body: `<form id="f" action="/submit"><input name="q" value="1"><button id="send">Go</button></form><script>
			document.querySelector("#f").addEventListener("submit", function (e) { e.preventDefault(); });
		</script>`},
	})
	tab, _ := newTab(t, f, DefaultOptions())
	open(t, tab, base)

	click(t, tab, byID(t, tab.Root(), "send"))
	assert.Equal(t, base, tab.URL())
	_, ok := f.requested(base + "submit")
	assert.False(t, ok)
}

// -- Test Cases: Animation, scroll and viewport --

func TestOpacityTransitionIsComposited(t *testing.T) {
	tab, rec := newTab(t, newFetcher(map[string]page{
		base: {body: `<div id="d" style="transition: opacity 64ms">fade</div>`},
	}), DefaultOptions())
	open(t, tab, base)
	root := tab.Root()
	d := byID(t, root, "d")

	require.NoError(t, root.SetStyle(root.ID, d, "transition: opacity 64ms; opacity: 0.5"))
	tab.RunAnimationFrame(0)
	started := rec.last(t)
	require.NotNil(t, started.DisplayList, "the style change itself needs a full commit")

	origin := paint.Origin{Frame: root.ID, Node: d}
	for _, want := range []float64{0.75, 0.625, 0.5} {
		tab.RunAnimationFrame(0)
		c := rec.last(t)
		assert.Nil(t, c.DisplayList)
		require.Contains(t, c.CompositedUpdates, origin)
		assert.InDelta(t, want, c.CompositedUpdates[origin].Opacity, 1e-9)
	}
	assert.False(t, tab.animating)
}

func TestOpacityTransitionWithoutCompositing(t *testing.T) {
	opts := DefaultOptions()
	opts.Compositing = false
	tab, rec := newTab(t, newFetcher(map[string]page{
		base: {body: `<div id="d" style="transition: opacity 32ms">fade</div>`},
	}), opts)
	open(t, tab, base)
	root := tab.Root()

	require.NoError(t, root.SetStyle(root.ID, byID(t, root, "d"), "transition: opacity 32ms; opacity: 0"))
	tab.RunAnimationFrame(0)
	tab.RunAnimationFrame(0)
	c := rec.last(t)
	assert.NotNil(t, c.DisplayList)
	assert.Nil(t, c.CompositedUpdates)
}

func TestScroll(t *testing.T) {
	var body bytes.Buffer
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&body, "<p>line %d</p>", i)
	}
	tab, rec := newTab(t, newFetcher(map[string]page{base: {body: body.String()}}), DefaultOptions())
	open(t, tab, base)
	height := rec.last(t).Height
	require.Greater(t, height, 1000.0)

	tab.RunAnimationFrame(100)
	assert.Nil(t, rec.last(t).Scroll, "presentation scroll is adopted silently")
	assert.Equal(t, 100.0, tab.scroll)

	tab.SetScroll(200)
	tab.Runner().RunUntilIdle()
	tab.RunAnimationFrame(100)
	require.NotNil(t, rec.last(t).Scroll)
	assert.Equal(t, 200.0, *rec.last(t).Scroll)

	tab.RunAnimationFrame(1e6)
	require.NotNil(t, rec.last(t).Scroll, "clamped scroll is reported")
	assert.Equal(t, height-560, *rec.last(t).Scroll)
}

func TestResizeAndZoom(t *testing.T) {
	tab, rec := newTab(t, newFetcher(map[string]page{base: {body: "<p>hello</p>"}}), DefaultOptions())
	open(t, tab, base)
	root := tab.Root()

	tab.Resize(400, 300)
	tab.Runner().RunUntilIdle()
	tab.RunAnimationFrame(0)
	require.NotNil(t, rec.last(t).DisplayList)
	assert.Equal(t, 400-2*layout.HStep, root.Tree.Root().Width.Get())

	tab.SetZoom(2)
	tab.Runner().RunUntilIdle()
	tab.RunAnimationFrame(0)
	assert.Equal(t, 2.0, root.Tree.Root().Zoom.Get())
	assert.Equal(t, 400-4*layout.HStep, root.Tree.Root().Width.Get())
}

func TestAccessibilityTree(t *testing.T) {
	opts := DefaultOptions()
	opts.Accessibility = true
	tab, rec := newTab(t, newFetcher(map[string]page{
		base: {body: `<h1>Title</h1><p>Some <a href="/x">link text</a> <input value="v"> <img alt="pic"></p>`},
	}), opts)
	open(t, tab, base)

	tree := rec.last(t).Accessibility
	require.NotNil(t, tree)
	assert.Equal(t, "document", tree.Role)

	var got []string
	var visit func(n *AccessibilityNode)
	visit = func(n *AccessibilityNode) {
		for _, c := range n.Children {
			got = append(got, c.Role+":"+c.Name)
			visit(c)
		}
	}
	visit(tree)
	assert.Equal(t, []string{"heading:Title", "text:Some", "link:link text", "textbox:v", "image:pic"}, got)
	assert.False(t, tree.Children[0].Bounds.IsEmpty())
}

func TestStaleTasksAfterNavigation(t *testing.T) {
	tab, _ := newTab(t, newFetcher(map[string]page{
		base:          {body: `<p id="p">x</p><script>setTimeout(function () { document.querySelector("#p").setAttribute("data-late", "1"); }, 20);</script>`},
		base + "next": {body: `<p id="p">y</p>`},
	}), DefaultOptions())
	require.NoError(t, tab.Load(base, "", nil))
	tab.Runner().RunUntilIdle()
	require.NoError(t, tab.Load(base+"next", "", nil))

	time.Sleep(40 * time.Millisecond)
	tab.Runner().RunUntilIdle()
	root := tab.Root()
	assert.Empty(t, attr(root, byID(t, root, "p"), "data-late"))
}
