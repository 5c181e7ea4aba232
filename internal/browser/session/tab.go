// internal/browser/session/tab.go
package session

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/xkilldash9x/rendercore/internal/browser/dom"
	"github.com/xkilldash9x/rendercore/internal/browser/layout"
	"github.com/xkilldash9x/rendercore/internal/browser/network"
	"github.com/xkilldash9x/rendercore/internal/browser/paint"
	"github.com/xkilldash9x/rendercore/internal/browser/script"
	"github.com/xkilldash9x/rendercore/internal/browser/style"
	"github.com/xkilldash9x/rendercore/internal/browser/task"
)

// -- Constants and Configuration --

// Options configures a tab.
type Options struct {
	// Width and Height are the size of the content area, chrome excluded.
	Width, Height float64
	Zoom          float64
	FrameInterval time.Duration
	Compositing   bool
	Accessibility bool
	ScriptEnabled bool
	ScriptTimeout time.Duration
}

// DefaultOptions returns the options of an 800x600 window with 40px of
// chrome.
func DefaultOptions() Options {
	return Options{
		Width:         800,
		Height:        560,
		Zoom:          1,
		FrameInterval: 16 * time.Millisecond,
		Compositing:   true,
		ScriptEnabled: true,
		ScriptTimeout: script.DefaultTimeout,
	}
}

// Commit is the snapshot a tab hands to the presentation side once per
// animation frame. It is consumed exactly once.
type Commit struct {
	Tab uuid.UUID
	URL string
	// Scroll is set only when the tab itself changed the scroll offset.
	Scroll *float64
	Height float64
	// DisplayList is nil when nothing outside composited updates changed.
	DisplayList *paint.DisplayList
	// CompositedUpdates replaces blend effects of existing layers in place.
	CompositedUpdates map[paint.Origin]*paint.Effect
	Accessibility     *AccessibilityNode
	Focus             paint.Origin
}

// Committer is the presentation side of a tab.
type Committer interface {
	// Commit receives the result of an animation frame.
	Commit(t *Tab, c *Commit)
	// SetNeedsAnimationFrame asks for an animation frame task to be
	// scheduled on t.
	SetNeedsAnimationFrame(t *Tab)
}

type nopCommitter struct{}

func (nopCommitter) Commit(*Tab, *Commit)        {}
func (nopCommitter) SetNeedsAnimationFrame(*Tab) {}

// Tab owns a frame tree and the worker that runs every task touching it.
// Exported methods other than Load and RunAnimationFrame only schedule tasks
// and are safe to call from any goroutine.
type Tab struct {
	ID        uuid.UUID
	logger    *zap.Logger
	opts      Options
	fetcher   network.Fetcher
	fonts     layout.FontMetrics
	emitter   *paint.Emitter
	runner    *task.Runner
	committer Committer
	ctx       context.Context
	inflight  sync.WaitGroup

	// Worker state.
	root          *Frame
	frames        map[int32]*Frame
	nextFrame     int32
	focused       *Frame
	history       []string
	scroll        float64
	scrollChanged bool
	width, height float64
	zoom          float64
	needsRender   bool
	animating     bool
}

// NewTab creates an empty tab. A nil committer discards commits.
func NewTab(fetcher network.Fetcher, fonts layout.FontMetrics, committer Committer, opts Options, logger *zap.Logger) *Tab {
	if logger == nil {
		logger = zap.NewNop()
	}
	if committer == nil {
		committer = nopCommitter{}
	}
	if opts.Zoom <= 0 {
		opts.Zoom = 1
	}
	id := uuid.New()
	log := logger.Named("tab").With(zap.String("tab_id", id.String()))
	return &Tab{
		ID:        id,
		logger:    log,
		opts:      opts,
		fetcher:   fetcher,
		fonts:     fonts,
		emitter:   paint.NewEmitter(fonts, opts.Compositing, log),
		runner:    task.NewRunner(log),
		committer: committer,
		frames:    map[int32]*Frame{},
		width:     opts.Width,
		height:    opts.Height,
		zoom:      opts.Zoom,
	}
}

// Runner returns the tab's worker queue.
func (t *Tab) Runner() *task.Runner { return t.runner }

// Run drains the worker queue until ctx is canceled or Quit is called, then
// waits for in-flight asynchronous requests.
func (t *Tab) Run(ctx context.Context) error {
	t.ctx = ctx
	err := t.runner.Run(ctx)
	t.inflight.Wait()
	return err
}

// Quit stops the worker after the current task.
func (t *Tab) Quit() { t.runner.Quit() }

func (t *Tab) context() context.Context {
	if t.ctx == nil {
		return context.Background()
	}
	return t.ctx
}

// -- Frame registry --

func (t *Tab) newFrame(parent *Frame, owner dom.NodeID) *Frame {
	f := &Frame{
		tab:    t,
		parent: parent,
		owner:  owner,
		width:  t.width,
	}
	t.register(f)
	return f
}

func (t *Tab) register(f *Frame) {
	t.nextFrame++
	f.ID = t.nextFrame
	f.logger = t.logger.With(zap.Int32("frame", f.ID))
	t.frames[f.ID] = f
}

// renumber moves f to a fresh ID.
func (t *Tab) renumber(f *Frame) {
	delete(t.frames, f.ID)
	t.register(f)
}

func (t *Tab) release(f *Frame) {
	for _, child := range f.children {
		t.release(child)
	}
	delete(t.frames, f.ID)
	if t.focused == f {
		t.focused = nil
	}
}

// alive reports whether f is still registered. Frames are dropped on
// navigation; deferred tasks referring to them become no-ops.
func (t *Tab) alive(f *Frame) bool {
	return t.frames[f.ID] == f
}

// Root returns the root frame, or nil before the first successful load.
func (t *Tab) Root() *Frame { return t.root }

// URL returns the address of the root document.
func (t *Tab) URL() string {
	if t.root == nil {
		return ""
	}
	return t.root.URL
}

// -- Navigation --

// Navigate schedules a load of rawURL.
func (t *Tab) Navigate(rawURL string) {
	t.runner.Schedule(task.New("navigate", func() {
		if err := t.Load(rawURL, "", nil); err != nil {
			t.logger.Error("Navigation failed", zap.Error(err))
		}
	}))
}

// GoBack schedules a load of the previous history entry.
func (t *Tab) GoBack() {
	t.runner.Schedule(task.New("go-back", func() {
		if len(t.history) < 2 {
			return
		}
		prev := t.history[len(t.history)-2]
		t.history = t.history[:len(t.history)-2]
		if err := t.Load(prev, "", nil); err != nil {
			t.logger.Error("Navigation failed", zap.Error(err))
		}
	}))
}

// Load replaces the root document. It must run on the worker. Pending tasks
// of the old page are discarded; on failure the old page stays. referrer is
// the URL of the document the navigation started from, if any.
func (t *Tab) Load(rawURL, referrer string, payload []byte) error {
	if n := t.runner.ClearPending(); n > 0 {
		t.logger.Debug("Discarded pending tasks", zap.Int("tasks", n))
	}
	root := t.newFrame(nil, dom.NoNode)
	root.width = t.width
	if err := root.Load(rawURL, referrer, payload); err != nil {
		t.release(root)
		return err
	}
	if t.root != nil {
		t.release(t.root)
	}
	t.root = root
	t.focused = nil
	t.history = append(t.history, root.URL)
	t.scroll = 0
	t.scrollChanged = true
	t.setNeedsRender()
	return nil
}

// -- Input --

// Click schedules a click at content-area coordinates. Layout is brought up
// to date first so hit testing sees the current geometry.
func (t *Tab) Click(x, y float64) {
	t.runner.Schedule(task.New("click", func() {
		if t.root == nil {
			return
		}
		t.root.Render()
		t.root.click(x, y+t.scroll)
	}))
}

// Keypress schedules typing char into the focused input.
func (t *Tab) Keypress(char string) {
	t.runner.Schedule(task.New("keypress", func() {
		if t.focused != nil {
			t.focused.keypress(char)
		}
	}))
}

// SetScroll schedules a tab-initiated scroll change, reported in the next
// commit.
func (t *Tab) SetScroll(y float64) {
	t.runner.Schedule(task.New("set-scroll", func() {
		t.scroll = y
		t.scrollChanged = true
		t.requestAnimationFrame()
	}))
}

// Resize schedules a viewport change.
func (t *Tab) Resize(width, height float64) {
	t.runner.Schedule(task.New("resize", func() {
		t.width, t.height = width, height
		if t.root != nil {
			t.root.width = width
		}
		t.setNeedsRender()
	}))
}

// SetZoom schedules a zoom change.
func (t *Tab) SetZoom(zoom float64) {
	t.runner.Schedule(task.New("zoom", func() {
		if zoom <= 0 {
			return
		}
		t.zoom = zoom
		t.setNeedsRender()
	}))
}

func (t *Tab) blur() {
	if t.focused != nil && t.focused.Focus != dom.NoNode {
		t.focused.Focus = dom.NoNode
		t.setNeedsRender()
	}
	t.focused = nil
}

// scrollIntoView moves the viewport so that node of the root frame is
// visible.
func (t *Tab) scrollIntoView(f *Frame, node dom.NodeID) {
	o := f.Tree.EmbedFor(node)
	if o == nil {
		o = f.Tree.BlockFor(node)
	}
	if o == nil || o.Y.Dirty() || o.Height.Dirty() {
		return
	}
	b := f.Tree.AbsoluteBounds(o)
	if b.Y >= t.scroll && b.Bottom() <= t.scroll+t.height {
		return
	}
	t.scroll = math.Max(b.Y-layout.VStep*t.zoom, 0)
	t.scrollChanged = true
}

// -- Animation frames --

// Invalidate schedules a full render so that the next commit carries a
// display list. Used when the tab becomes visible again.
func (t *Tab) Invalidate() {
	t.runner.Schedule(task.New("invalidate", t.setNeedsRender))
}

func (t *Tab) setNeedsRender() {
	t.needsRender = true
	t.committer.SetNeedsAnimationFrame(t)
}

func (t *Tab) requestAnimationFrame() {
	t.committer.SetNeedsAnimationFrame(t)
}

// ScheduleAnimationFrame queues an animation frame task. scroll is the
// presentation side's current offset.
func (t *Tab) ScheduleAnimationFrame(scroll float64) {
	t.runner.Schedule(task.New("animation-frame", func() {
		t.RunAnimationFrame(scroll)
	}))
}

// frameList returns the loaded frames in tree order.
func (t *Tab) frameList() []*Frame {
	var out []*Frame
	var visit func(f *Frame)
	visit = func(f *Frame) {
		if !f.loaded {
			return
		}
		out = append(out, f)
		for _, c := range f.sortedChildren() {
			visit(c)
		}
	}
	if t.root != nil {
		visit(t.root)
	}
	return out
}

// RunAnimationFrame runs script animation callbacks, advances property
// animations, renders and paints if anything changed, and commits. It must
// run on the worker.
func (t *Tab) RunAnimationFrame(scroll float64) {
	if !t.scrollChanged {
		t.scroll = scroll
	}
	if t.root == nil {
		return
	}
	frames := t.frameList()
	for _, f := range frames {
		if f.js != nil {
			f.js.RunAnimationFrame()
		}
	}

	t.animating = false
	var composited []paint.Origin
	for _, f := range frames {
		tick := style.Advance(f.Doc)
		t.animating = t.animating || tick.Running
		if tick.NeedsLayout {
			t.needsRender = true
		}
		for _, n := range tick.Composited {
			composited = append(composited, paint.Origin{Frame: f.ID, Node: n})
		}
	}

	full := t.needsRender || t.root.Tree.NeedsLayout() || (len(composited) > 0 && !t.opts.Compositing)
	commit := &Commit{Tab: t.ID, URL: t.root.URL}
	if full || len(composited) > 0 {
		t.root.Render()
		dl := t.emitter.PaintTree(t.root.source())
		if full {
			commit.DisplayList = dl
			if t.opts.Accessibility {
				commit.Accessibility = BuildAccessibilityTree(t.root)
			}
		} else {
			commit.CompositedUpdates = make(map[paint.Origin]*paint.Effect, len(composited))
			for _, o := range composited {
				if e, ok := dl.Blends[o]; ok {
					commit.CompositedUpdates[o] = e
				}
			}
		}
	}

	commit.Height = t.root.Tree.Height()
	if limit := math.Max(commit.Height-t.height, 0); t.scroll > limit {
		t.scroll = limit
		t.scrollChanged = true
	}
	if t.scrollChanged {
		s := t.scroll
		commit.Scroll = &s
	}
	if t.focused != nil && t.focused.Focus != dom.NoNode {
		commit.Focus = paint.Origin{Frame: t.focused.ID, Node: t.focused.Focus}
	}
	t.needsRender = false
	t.scrollChanged = false

	t.logger.Debug("Animation frame",
		zap.Bool("full", full),
		zap.Int("composited", len(commit.CompositedUpdates)),
		zap.Float64("height", commit.Height))
	t.committer.Commit(t, commit)
	if t.animating {
		t.committer.SetNeedsAnimationFrame(t)
	}
}
