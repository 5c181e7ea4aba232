// internal/browser/browser_test.go
package browser

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/rendercore/internal/browser/dom"
	"github.com/xkilldash9x/rendercore/internal/browser/layout"
	"github.com/xkilldash9x/rendercore/internal/browser/network"
	"github.com/xkilldash9x/rendercore/internal/browser/raster"
	"github.com/xkilldash9x/rendercore/internal/browser/session"
)

// -- Test Helpers --

const home = "http://a.test/"

// pages serves HTML bodies from memory.
type pages map[string]string

func (p pages) Request(_ context.Context, rawURL, _ string, _ []byte) (*network.Response, error) {
	if strings.HasPrefix(rawURL, "data:") {
		return &network.Response{URL: rawURL, Status: http.StatusOK, Headers: http.Header{}}, nil
	}
	body, ok := p[rawURL]
	if !ok {
		return nil, fmt.Errorf("no route to %s", rawURL)
	}
	return &network.Response{URL: rawURL, Status: http.StatusOK, Headers: http.Header{}, Body: []byte(body)}, nil
}

func newBrowser(t *testing.T, p pages) (*Browser, *raster.RecordingBackend) {
	t.Helper()
	backend := &raster.RecordingBackend{}
	return New(p, backend, DefaultOptions(), zaptest.NewLogger(t)), backend
}

// settle drives a tab by hand: it drains the worker queue, lets the browser
// schedule a requested animation frame and drains again.
func settle(b *Browser, tab *session.Tab) {
	tab.Runner().RunUntilIdle()
	b.ScheduleAnimationFrame()
	tab.Runner().RunUntilIdle()
}

func contentPoint(t *testing.T, b *Browser, tab *session.Tab, selector string) (float64, float64) {
	t.Helper()
	f := tab.Root()
	ids, err := f.Doc.QuerySelectorAll(selector)
	require.NoError(t, err)
	require.Len(t, ids, 1)
	var found *layout.Object
	f.Tree.Walk(func(o *layout.Object) bool {
		if found != nil {
			return false
		}
		if o.Kind != layout.KindText {
			return true
		}
		for _, id := range f.Doc.Ancestors(o.Node) {
			if id == ids[0] {
				found = o
				return false
			}
		}
		return true
	})
	require.NotNil(t, found)
	r := f.Tree.AbsoluteBounds(found)
	return r.X + r.Width/2, r.Y + r.Height/2 + b.opts.ChromeHeight
}

func windowOps(t *testing.T, b *Browser) string {
	t.Helper()
	rec, ok := b.Surface().(*raster.Recorder)
	require.True(t, ok)
	return rec.String()
}

// -- Test Cases: Commit protocol --

func TestCommitIsConsumedOnce(t *testing.T) {
	b, _ := newBrowser(t, pages{home: "<p>hello</p>"})
	tab := b.NewTab(home)
	settle(b, tab)

	require.True(t, b.CompositeRasterAndDraw())
	first := b.Stats()
	assert.Equal(t, 1, first.Partitions)
	assert.Equal(t, 1, first.Draws)
	snap := b.Snapshot()
	assert.Equal(t, home, snap.URL)
	require.NotNil(t, snap.DisplayList)

	ops := windowOps(t, b)
	assert.Contains(t, ops, "surface(")
	assert.Contains(t, ops, `"Tab 0"`)
	assert.Contains(t, ops, fmt.Sprintf("%q", home), "address bar shows the committed URL")

	assert.False(t, b.CompositeRasterAndDraw(), "nothing new to consume")
	assert.Equal(t, first, b.Stats())

	// A frame without changes commits no display list; the old one stays.
	b.SetNeedsAnimationFrame(tab)
	settle(b, tab)
	assert.False(t, b.CompositeRasterAndDraw())
	assert.Same(t, snap.DisplayList, b.Snapshot().DisplayList)
	assert.Equal(t, 1, b.Stats().Partitions)
}

func TestBackgroundCommitsAreDropped(t *testing.T) {
	b, _ := newBrowser(t, pages{home: "<p>first</p>", home + "second": "<p>second</p>"})
	first := b.NewTab(home)
	settle(b, first)
	second := b.NewTab(home + "second")
	settle(b, second)
	first.Runner().RunUntilIdle()
	require.Same(t, second, b.ActiveTab())
	assert.Equal(t, home+"second", b.Snapshot().URL)

	first.RunAnimationFrame(0)
	assert.Equal(t, home+"second", b.Snapshot().URL)

	b.CompositeRasterAndDraw()
	require.NotZero(t, b.Layers())
	b.SetActiveTab(0)
	assert.Zero(t, b.Layers(), "layers of the hidden tab are dropped")
	assert.Nil(t, b.Snapshot().DisplayList)

	settle(b, first)
	snap := b.Snapshot()
	assert.Equal(t, home, snap.URL)
	assert.NotNil(t, snap.DisplayList, "switching tabs forces a full commit")
}

func TestScrollClampsToContent(t *testing.T) {
	var body strings.Builder
	for i := 0; i < 100; i++ {
		fmt.Fprintf(&body, "<p>line %d</p>", i)
	}
	b, _ := newBrowser(t, pages{home: body.String()})
	tab := b.NewTab(home)
	settle(b, tab)
	b.CompositeRasterAndDraw()

	height := b.Snapshot().Height
	require.Greater(t, height, b.contentHeight())

	b.Scroll(1e6)
	assert.Equal(t, height-b.contentHeight(), b.Snapshot().Scroll)
	b.Scroll(-1e9)
	assert.Equal(t, 0.0, b.Snapshot().Scroll)

	b.Scroll(100)
	require.True(t, b.CompositeRasterAndDraw())
	assert.Contains(t, windowOps(t, b), "translate(0,-60)", "content is shifted by chrome height minus scroll")

	// The worker adopts the presentation scroll without echoing it back.
	settle(b, tab)
	assert.Equal(t, 100.0, b.Snapshot().Scroll)
}

func TestOpacityAnimationOnlyPatchesLayers(t *testing.T) {
	b, _ := newBrowser(t, pages{home: `<p>static</p><div id="d" style="transition: opacity 64ms">fade</div>`})
	tab := b.NewTab(home)
	settle(b, tab)
	b.CompositeRasterAndDraw()

	root := tab.Root()
	ids, err := root.Doc.QuerySelectorAll("#d")
	require.NoError(t, err)
	require.NoError(t, root.SetStyle(root.ID, ids[0], "transition: opacity 64ms; opacity: 0.5"))
	settle(b, tab)
	require.True(t, b.CompositeRasterAndDraw())
	started := b.Stats()
	assert.Equal(t, 2, started.Partitions)
	assert.GreaterOrEqual(t, b.Layers(), 2, "the animated subtree gets its own layer")
	infos := b.LayerInfos()
	require.Len(t, infos, b.Layers())
	for _, l := range infos {
		assert.NotEmpty(t, l.ID)
		assert.Positive(t, l.Items)
	}

	for i := 0; i < 3; i++ {
		settle(b, tab)
		require.True(t, b.CompositeRasterAndDraw())
	}
	done := b.Stats()
	assert.Equal(t, started.Partitions, done.Partitions, "composited updates do not partition again")
	assert.Equal(t, started.Draws+3, done.Draws)
	assert.Contains(t, windowOps(t, b), "layer(opacity=0.5")
}

// -- Test Cases: Input routing --

func TestClickInContentReachesTab(t *testing.T) {
	b, _ := newBrowser(t, pages{home: `<a id="go" href="/next">next page</a>`, home + "next": "<p>arrived</p>"})
	tab := b.NewTab(home)
	settle(b, tab)

	x, y := contentPoint(t, b, tab, "#go")
	b.Click(x, y)
	settle(b, tab)
	assert.Equal(t, home+"next", b.Snapshot().URL)
}

func TestChrome(t *testing.T) {
	b, _ := newBrowser(t, pages{home: "<p>a</p>", home + "typed": "<p>typed</p>"})
	first := b.NewTab(home)
	settle(b, first)
	c := b.chrome

	plus := c.newTabRect()
	b.Click(plus.X+plus.Width/2, plus.Y+plus.Height/2)
	tabs := b.Tabs()
	require.Len(t, tabs, 2)
	require.Same(t, tabs[1], b.ActiveTab())
	settle(b, tabs[1])
	assert.Equal(t, BlankPage, b.Snapshot().URL)

	r := c.tabRect(0)
	b.Click(r.X+r.Width/2, r.Y+r.Height/2)
	require.Same(t, first, b.ActiveTab())
	settle(b, first)
	assert.Equal(t, home, b.Snapshot().URL)

	bar := c.addressRect(b.opts.Width)
	b.Click(bar.X+bar.Width/2, bar.Y+bar.Height/2)
	for _, ch := range home + "typed" {
		b.Key(string(ch))
	}
	require.True(t, b.CompositeRasterAndDraw())
	assert.Contains(t, windowOps(t, b), fmt.Sprintf("%q", home+"typed"))
	b.Key("\n")
	settle(b, first)
	assert.Equal(t, home+"typed", b.Snapshot().URL)

	back := c.backRect()
	b.Click(back.X+back.Width/2, back.Y+back.Height/2)
	settle(b, first)
	assert.Equal(t, home, b.Snapshot().URL)
}

func TestKeysGoToTabWithoutAddressFocus(t *testing.T) {
	b, _ := newBrowser(t, pages{home: `<input id="i" value="">`})
	tab := b.NewTab(home)
	settle(b, tab)

	root := tab.Root()
	ids, err := root.Doc.QuerySelectorAll("#i")
	require.NoError(t, err)
	box := root.Tree.AbsoluteBounds(root.Tree.EmbedFor(ids[0]))
	b.Click(box.X+box.Width/2, box.Y+box.Height/2+b.opts.ChromeHeight)
	b.Key("o")
	b.Key("k")
	settle(b, tab)

	v, _ := root.Doc.Attribute(ids[0], "value")
	assert.Equal(t, "ok", v)
	assert.Equal(t, ids[0], b.Snapshot().Focus.Node)
	assert.NotEqual(t, dom.NoNode, b.Snapshot().Focus.Node)
}

func TestResize(t *testing.T) {
	b, _ := newBrowser(t, pages{home: "<p>a</p>"})
	tab := b.NewTab(home)
	settle(b, tab)
	b.CompositeRasterAndDraw()
	require.Equal(t, 800, b.Surface().Width())

	b.Resize(400, 340)
	settle(b, tab)
	require.True(t, b.CompositeRasterAndDraw())
	assert.Equal(t, 400, b.Surface().Width())
	assert.Equal(t, 340, b.Surface().Height())
	assert.Equal(t, 400-2*layout.HStep, tab.Root().Tree.Root().Width.Get())
}

// -- Test Cases: Run loop --

func TestRun(t *testing.T) {
	defer goleak.VerifyNone(t)

	b, _ := newBrowser(t, pages{home: "<p>a</p>", home + "second": "<p>b</p>"})
	b.NewTab(home)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		runErr = b.Run(ctx)
	}()

	require.Eventually(t, func() bool {
		return b.Snapshot().URL == home && b.Stats().Draws > 0
	}, 2*time.Second, 5*time.Millisecond)

	// Tabs opened while running get a worker of their own.
	b.NewTab(home + "second")
	require.Eventually(t, func() bool {
		return b.Snapshot().URL == home+"second"
	}, 2*time.Second, 5*time.Millisecond)

	cancel()
	wg.Wait()
	assert.NoError(t, runErr)
}
