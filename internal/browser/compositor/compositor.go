// internal/browser/compositor/compositor.go
package compositor

import (
	"go.uber.org/zap"

	"github.com/xkilldash9x/rendercore/internal/browser/paint"
	"github.com/xkilldash9x/rendercore/internal/browser/raster"
	"github.com/xkilldash9x/rendercore/internal/browser/style"
)

var white = style.Color{R: 255, G: 255, B: 255, A: 255}

// Stats counts compositor work since construction.
type Stats struct {
	Partitions int
	Reused     int
	Rasters    int
	Draws      int
}

// Compositor turns display lists into layers and draws frames from them. It
// lives on the presentation side and is not safe for concurrent use.
type Compositor struct {
	logger  *zap.Logger
	backend raster.Backend
	layers  []*Layer
	updates map[paint.Origin]*paint.Effect
	stats   Stats
}

// New creates a compositor rastering through backend.
func New(backend raster.Backend, logger *zap.Logger) *Compositor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compositor{
		logger:  logger.Named("compositor"),
		backend: backend,
		updates: map[paint.Origin]*paint.Effect{},
	}
}

// Layers returns the current layers in draw order.
func (c *Compositor) Layers() []*Layer { return c.layers }

// Stats returns the work counters.
func (c *Compositor) Stats() Stats { return c.stats }

// Composite partitions a new display list and assigns its chunks to layers,
// reusing the previous frame's layers where possible. Pending composited
// updates are discarded; the new list already reflects them.
func (c *Compositor) Composite(dl *paint.DisplayList) {
	chunks := Partition(dl.Items)
	layers, reused := Assign(chunks, c.layers)
	c.layers = layers
	c.updates = map[paint.Origin]*paint.Effect{}
	c.stats.Partitions++
	c.stats.Reused += reused
	c.logger.Debug("Composited display list",
		zap.Int("chunks", len(chunks)),
		zap.Int("layers", len(layers)),
		zap.Int("reused", reused))
}

// Assign groups chunks into layers. Each chunk joins the most recent layer it
// can merge with, unless a layer in between overlaps it, in which case a new
// layer keeps paint order. New layers take over the surface of a previous
// layer whose first chunk has the same origin, preferring the same position.
// Each previous layer is reused at most once.
func Assign(chunks []Chunk, previous []*Layer) ([]*Layer, int) {
	var layers []*Layer
	for _, ch := range chunks {
		placed := false
		bounds := ch.AbsoluteBounds()
		for i := len(layers) - 1; i >= 0; i-- {
			l := layers[i]
			if l.CanMerge(ch) {
				l.add(ch)
				placed = true
				break
			}
			if l.AbsoluteBounds().Intersects(bounds) {
				break
			}
		}
		if !placed {
			layers = append(layers, newLayer(ch))
		}
	}

	used := make([]bool, len(previous))
	reused := 0
	for i, l := range layers {
		j := match(l.Origin(), i, previous, used)
		if j < 0 {
			continue
		}
		used[j] = true
		old := previous[j]
		l.ID = old.ID
		l.surface = old.surface
		l.rastered = old.rastered
		l.rasterBounds = old.rasterBounds
		reused++
	}
	return layers, reused
}

func match(o paint.Origin, index int, previous []*Layer, used []bool) int {
	if index < len(previous) && !used[index] && previous[index].Origin() == o {
		return index
	}
	for j, p := range previous {
		if !used[j] && p.Origin() == o {
			return j
		}
	}
	return -1
}

// Reset drops every layer, for example when another document is presented.
func (c *Compositor) Reset() {
	c.layers = nil
	c.updates = map[paint.Origin]*paint.Effect{}
}

// ApplyCompositedUpdates replaces blend parameters of existing layers without
// partitioning again. Updates are keyed by the blend's origin and take effect
// at the next Draw.
func (c *Compositor) ApplyCompositedUpdates(updates map[paint.Origin]*paint.Effect) {
	for o, e := range updates {
		c.updates[o] = e
	}
	c.logger.Debug("Applied composited updates", zap.Int("updates", len(updates)))
}

// Raster redraws the layers whose contents changed.
func (c *Compositor) Raster() {
	for _, l := range c.layers {
		if !l.NeedsRaster() {
			continue
		}
		l.Raster(c.backend)
		c.stats.Rasters++
	}
}

// Draw clears dst, draws every layer through its compositing ancestors with
// the content shifted down by offsetY, then draws chrome on top unshifted.
func (c *Compositor) Draw(dst raster.Surface, offsetY float64, chrome []paint.Item) {
	dst.Clear(white)
	cv := dst.Canvas()
	cv.Save()
	cv.Translate(0, offsetY)
	for _, l := range c.layers {
		if l.surface == nil {
			continue
		}
		c.drawItem(l).Execute(cv)
	}
	cv.Restore()
	for _, it := range chrome {
		it.Execute(cv)
	}
	c.stats.Draws++
}

// drawItem wraps the layer blit in clones of its ancestors, substituting
// the latest composited updates.
func (c *Compositor) drawItem(l *Layer) paint.Item {
	var item paint.Item = drawLayer{layer: l}
	ancestors := l.Ancestors()
	for i := len(ancestors) - 1; i >= 0; i-- {
		item = c.latest(ancestors[i]).Clone(item)
	}
	return item
}

func (c *Compositor) latest(e *paint.Effect) *paint.Effect {
	if e.Kind != paint.EffectBlend {
		return e
	}
	if u, ok := c.updates[e.Origin]; ok {
		return u
	}
	return e
}
