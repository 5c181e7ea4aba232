// internal/browser/browser.go
package browser

import (
	"context"
	"errors"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/rendercore/internal/browser/compositor"
	"github.com/xkilldash9x/rendercore/internal/browser/geom"
	"github.com/xkilldash9x/rendercore/internal/browser/network"
	"github.com/xkilldash9x/rendercore/internal/browser/paint"
	"github.com/xkilldash9x/rendercore/internal/browser/raster"
	"github.com/xkilldash9x/rendercore/internal/browser/session"
	"github.com/xkilldash9x/rendercore/internal/observability"
)

// BlankPage is loaded by tabs opened from the chrome.
const BlankPage = "data:text/html,"

// Options configures a Browser. Width and Height are the window size; the
// content area is the window minus the chrome.
type Options struct {
	Width, Height float64
	ChromeHeight  float64
	FrameInterval time.Duration
	HomeURL       string
	Tab           session.Options
}

// DefaultOptions returns an 800x600 window with a 40px chrome.
func DefaultOptions() Options {
	tab := session.DefaultOptions()
	return Options{
		Width:         tab.Width,
		Height:        tab.Height + 40,
		ChromeHeight:  40,
		FrameInterval: tab.FrameInterval,
		HomeURL:       BlankPage,
		Tab:           tab,
	}
}

// Browser owns the tabs and the presentation side: it receives commits from
// tab workers, composites, rasters and draws the active tab, and routes
// input. Every field below mu is guarded by it; commits from workers and
// presentation work share that one lock.
type Browser struct {
	logger  *zap.Logger
	fetcher network.Fetcher
	backend raster.Backend

	mu     sync.Mutex
	opts   Options
	tabs   []*session.Tab
	active *session.Tab
	chrome *chrome

	// Workers of tabs opened while Run is active join this group.
	group *errgroup.Group
	ctx   context.Context

	// Last commit of the active tab.
	url           string
	scroll        float64
	height        float64
	displayList   *paint.DisplayList
	updates       map[paint.Origin]*paint.Effect
	accessibility *session.AccessibilityNode
	focus         paint.Origin

	needsComposite      bool
	needsDraw           bool
	needsAnimationFrame bool

	compositor *compositor.Compositor
	surface    raster.Surface
}

var _ session.Committer = (*Browser)(nil)

// New creates a browser without tabs.
func New(fetcher network.Fetcher, backend raster.Backend, opts Options, logger *zap.Logger) *Browser {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = session.DefaultOptions().FrameInterval
	}
	if opts.HomeURL == "" {
		opts.HomeURL = BlankPage
	}
	log := logger.Named("browser")
	return &Browser{
		logger:     log,
		fetcher:    fetcher,
		backend:    backend,
		opts:       opts,
		chrome:     newChrome(backend.Fonts(), opts.ChromeHeight),
		compositor: compositor.New(backend, log),
	}
}

func (b *Browser) contentHeight() float64 { return b.opts.Height - b.opts.ChromeHeight }

// NewTab opens a tab, makes it active and starts loading rawURL.
func (b *Browser) NewTab(rawURL string) *session.Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.newTab(rawURL)
}

func (b *Browser) newTab(rawURL string) *session.Tab {
	opts := b.opts.Tab
	opts.Width, opts.Height = b.opts.Width, b.contentHeight()
	if opts.FrameInterval <= 0 {
		opts.FrameInterval = b.opts.FrameInterval
	}
	t := session.NewTab(b.fetcher, b.backend.Fonts(), b, opts, b.logger)
	b.tabs = append(b.tabs, t)
	if b.group != nil {
		ctx := b.ctx
		b.group.Go(func() error { return t.Run(ctx) })
	}
	b.logger.Info("Opened tab", zap.String("tab_id", t.ID.String()), zap.String("url", rawURL))
	b.setActive(t)
	t.Navigate(rawURL)
	return t
}

// Tabs returns the open tabs in strip order.
func (b *Browser) Tabs() []*session.Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*session.Tab(nil), b.tabs...)
}

// ActiveTab returns the tab being presented, or nil.
func (b *Browser) ActiveTab() *session.Tab {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// SetActiveTab switches presentation to the i-th tab.
func (b *Browser) SetActiveTab(i int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i >= 0 && i < len(b.tabs) {
		b.setActive(b.tabs[i])
	}
}

// setActive drops the committed state of the previous tab and asks t for a
// full commit.
func (b *Browser) setActive(t *session.Tab) {
	if b.active == t {
		return
	}
	b.active = t
	b.url = ""
	b.scroll = 0
	b.height = 0
	b.displayList = nil
	b.updates = nil
	b.accessibility = nil
	b.focus = paint.Origin{}
	b.needsComposite = false
	b.needsDraw = true
	b.needsAnimationFrame = true
	b.compositor.Reset()
	t.Invalidate()
}

// -- Commit protocol --

// Commit takes the worker's snapshot. Commits of background tabs are
// dropped.
func (b *Browser) Commit(t *session.Tab, c *session.Commit) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t != b.active {
		b.logger.Debug("Dropping commit of background tab", zap.String("tab_id", t.ID.String()))
		return
	}
	b.url = c.URL
	b.height = c.Height
	if c.Scroll != nil {
		b.scroll = *c.Scroll
		b.needsDraw = true
	}
	if c.DisplayList != nil {
		b.displayList = c.DisplayList
		b.updates = nil
		b.needsComposite = true
		b.needsDraw = true
	} else if len(c.CompositedUpdates) > 0 {
		if b.updates == nil {
			b.updates = make(map[paint.Origin]*paint.Effect, len(c.CompositedUpdates))
		}
		for o, e := range c.CompositedUpdates {
			b.updates[o] = e
		}
		b.needsDraw = true
	}
	if c.Accessibility != nil {
		b.accessibility = c.Accessibility
	}
	if b.focus != c.Focus {
		b.focus = c.Focus
		b.needsDraw = true
	}
}

// SetNeedsAnimationFrame is called by workers when a tab wants another
// animation frame.
func (b *Browser) SetNeedsAnimationFrame(t *session.Tab) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if t == b.active {
		b.needsAnimationFrame = true
	}
}

// ScheduleAnimationFrame queues an animation frame on the active tab if one
// was requested, passing the presentation scroll.
func (b *Browser) ScheduleAnimationFrame() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.active == nil || !b.needsAnimationFrame {
		return
	}
	b.needsAnimationFrame = false
	b.active.ScheduleAnimationFrame(b.scroll)
}

// CompositeRasterAndDraw consumes the pending commit state and redraws the
// window surface. A new display list is partitioned into layers; composited
// updates only patch effect parameters. It reports whether anything was
// drawn.
func (b *Browser) CompositeRasterAndDraw() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.needsComposite && !b.needsDraw {
		return false
	}
	defer observability.FrameTiming(b.logger, "composite_raster_draw", time.Now(), b.opts.FrameInterval)
	if b.needsComposite && b.displayList != nil {
		b.compositor.Composite(b.displayList)
	}
	if len(b.updates) > 0 {
		b.compositor.ApplyCompositedUpdates(b.updates)
		b.updates = nil
	}
	b.compositor.Raster()

	if b.surface == nil {
		b.surface = b.backend.NewSurface(int(math.Ceil(b.opts.Width)), int(math.Ceil(b.opts.Height)))
	}
	items := b.chrome.paint(b.opts.Width, len(b.tabs), b.activeIndex(), b.url)
	b.compositor.Draw(b.surface, b.opts.ChromeHeight-b.scroll, items)
	b.needsComposite = false
	b.needsDraw = false
	return true
}

func (b *Browser) activeIndex() int {
	for i, t := range b.tabs {
		if t == b.active {
			return i
		}
	}
	return -1
}

// Surface returns the window surface of the last draw, or nil.
func (b *Browser) Surface() raster.Surface {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.surface
}

// Stats returns the compositor's work counters.
func (b *Browser) Stats() compositor.Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.compositor.Stats()
}

// Layers returns the number of composited layers.
func (b *Browser) Layers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.compositor.Layers())
}

// LayerInfo describes one composited layer.
type LayerInfo struct {
	ID     string       `json:"id"`
	Origin paint.Origin `json:"origin"`
	Bounds geom.Rect    `json:"bounds"`
	Items  int          `json:"items"`
}

// LayerInfos describes the current layers in draw order.
func (b *Browser) LayerInfos() []LayerInfo {
	b.mu.Lock()
	defer b.mu.Unlock()
	layers := b.compositor.Layers()
	out := make([]LayerInfo, 0, len(layers))
	for _, l := range layers {
		out = append(out, LayerInfo{
			ID:     l.ID.String(),
			Origin: l.Origin(),
			Bounds: l.AbsoluteBounds(),
			Items:  len(l.Items()),
		})
	}
	return out
}

// Snapshot is the committed presentation state of the active tab.
type Snapshot struct {
	URL           string
	Scroll        float64
	Height        float64
	DisplayList   *paint.DisplayList
	Accessibility *session.AccessibilityNode
	Focus         paint.Origin
}

// Snapshot copies the committed state.
func (b *Browser) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		URL:           b.url,
		Scroll:        b.scroll,
		Height:        b.height,
		DisplayList:   b.displayList,
		Accessibility: b.accessibility,
		Focus:         b.focus,
	}
}

// -- Input --

// Click routes a window click to the chrome or, shifted into content
// coordinates, to the active tab.
func (b *Browser) Click(x, y float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if y < b.opts.ChromeHeight {
		b.clickChrome(x, y)
		b.needsDraw = true
		return
	}
	if b.chrome.focused {
		b.chrome.focused = false
		b.needsDraw = true
	}
	if b.active != nil {
		b.active.Click(x, y-b.opts.ChromeHeight)
	}
}

func (b *Browser) clickChrome(x, y float64) {
	action, i := b.chrome.click(x, y, b.opts.Width, len(b.tabs))
	switch action {
	case actionNewTab:
		b.newTab(b.opts.HomeURL)
	case actionSelectTab:
		b.setActive(b.tabs[i])
	case actionBack:
		if b.active != nil {
			b.active.GoBack()
		}
	}
}

// Key types char into the address bar when it has focus, otherwise into the
// active tab. A line break in the address bar navigates.
func (b *Browser) Key(char string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.chrome.focused {
		if rawURL, ok := b.chrome.keypress(char); ok && b.active != nil {
			b.active.Navigate(rawURL)
		}
		b.needsDraw = true
		return
	}
	if b.active != nil {
		b.active.Keypress(char)
	}
}

// Scroll moves the active tab by delta, clamped to its content, and asks
// the worker for a frame so it adopts the new offset.
func (b *Browser) Scroll(delta float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	limit := math.Max(b.height-b.contentHeight(), 0)
	scroll := math.Min(math.Max(b.scroll+delta, 0), limit)
	if scroll == b.scroll {
		return
	}
	b.scroll = scroll
	b.needsDraw = true
	b.needsAnimationFrame = true
}

// Resize changes the window size. Every tab is resized to the new content
// area.
func (b *Browser) Resize(width, height float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.opts.Width, b.opts.Height = width, height
	b.surface = nil
	b.needsDraw = true
	for _, t := range b.tabs {
		t.Resize(width, b.contentHeight())
	}
}

// -- Run loop --

// Run starts every tab worker and the presentation loop, which at most once
// per frame interval schedules a requested animation frame and redraws.
// It returns when ctx is canceled or a worker fails.
func (b *Browser) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	b.mu.Lock()
	if b.group != nil {
		b.mu.Unlock()
		return errors.New("browser is already running")
	}
	b.group, b.ctx = g, gctx
	for _, t := range b.tabs {
		t := t
		g.Go(func() error { return t.Run(gctx) })
	}
	b.mu.Unlock()

	g.Go(func() error { return b.present(gctx) })
	b.logger.Info("Browser running", zap.Duration("frame_interval", b.opts.FrameInterval))

	err := g.Wait()
	b.mu.Lock()
	b.group, b.ctx = nil, nil
	b.mu.Unlock()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		err = nil
	}
	b.logger.Info("Browser stopped", zap.Error(err))
	return err
}

func (b *Browser) present(ctx context.Context) error {
	limiter := rate.NewLimiter(rate.Every(b.opts.FrameInterval), 1)
	for {
		if err := limiter.Wait(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return err
		}
		b.ScheduleAnimationFrame()
		b.CompositeRasterAndDraw()
	}
}
