// internal/browser/compositor/layer.go
package compositor

import (
	"math"

	"github.com/google/uuid"

	"github.com/xkilldash9x/rendercore/internal/browser/geom"
	"github.com/xkilldash9x/rendercore/internal/browser/paint"
	"github.com/xkilldash9x/rendercore/internal/browser/raster"
	"github.com/xkilldash9x/rendercore/internal/browser/style"
)

// Chunk is a run of sibling display items that share one chain of
// compositing ancestors. Items inside a chunk never need compositing
// themselves.
type Chunk struct {
	Items []paint.Item
	// Ancestors is the compositing effect chain, outermost first.
	Ancestors []*paint.Effect
}

// Parent returns the nearest compositing ancestor, nil at the root.
func (c Chunk) Parent() *paint.Effect {
	if len(c.Ancestors) == 0 {
		return nil
	}
	return c.Ancestors[len(c.Ancestors)-1]
}

// Origin is the node the chunk's first item was painted for.
func (c Chunk) Origin() paint.Origin { return c.Items[0].Source() }

// Bounds is the union of the item bounds in the parent's coordinate space.
func (c Chunk) Bounds() geom.Rect {
	var r geom.Rect
	for _, it := range c.Items {
		r = r.Union(it.Bounds())
	}
	return r
}

// AbsoluteBounds maps Bounds through every ancestor to page coordinates.
func (c Chunk) AbsoluteBounds() geom.Rect {
	return mapThrough(c.Bounds(), c.Ancestors)
}

func mapThrough(r geom.Rect, ancestors []*paint.Effect) geom.Rect {
	for i := len(ancestors) - 1; i >= 0; i-- {
		r = ancestors[i].Map(r)
	}
	return r
}

// Partition splits a display list into chunks. Compositing effects are
// descended into and become ancestors; everything else is a leaf. Consecutive
// leaves under the same ancestors form one chunk.
func Partition(items []paint.Item) []Chunk {
	var out []Chunk
	partition(items, nil, &out)
	return out
}

func partition(items []paint.Item, ancestors []*paint.Effect, out *[]Chunk) {
	var run []paint.Item
	flush := func() {
		if len(run) > 0 {
			*out = append(*out, Chunk{Items: run, Ancestors: ancestors})
			run = nil
		}
	}
	for _, it := range items {
		if e, ok := it.(*paint.Effect); ok && e.NeedsCompositing() {
			flush()
			chain := make([]*paint.Effect, len(ancestors), len(ancestors)+1)
			copy(chain, ancestors)
			partition(e.Children, append(chain, e), out)
			continue
		}
		run = append(run, it)
	}
	flush()
}

// Layer is a raster surface holding chunks that share a composited parent.
// Layers persist across frames and are matched by the origin of their first
// chunk.
type Layer struct {
	ID     uuid.UUID
	Chunks []Chunk

	surface raster.Surface
	// rastered and rasterBounds describe the surface contents.
	rastered     []paint.Item
	rasterBounds geom.Rect
}

func newLayer(c Chunk) *Layer {
	return &Layer{ID: uuid.New(), Chunks: []Chunk{c}}
}

// Origin identifies the layer across frames.
func (l *Layer) Origin() paint.Origin { return l.Chunks[0].Origin() }

// Parent is the composited parent shared by all chunks.
func (l *Layer) Parent() *paint.Effect { return l.Chunks[0].Parent() }

// Ancestors is the compositing chain shared by all chunks.
func (l *Layer) Ancestors() []*paint.Effect { return l.Chunks[0].Ancestors }

// CanMerge reports whether c may join the layer.
func (l *Layer) CanMerge(c Chunk) bool { return c.Parent() == l.Parent() }

func (l *Layer) add(c Chunk) { l.Chunks = append(l.Chunks, c) }

// Items returns the layer's display items in paint order.
func (l *Layer) Items() []paint.Item {
	var out []paint.Item
	for _, c := range l.Chunks {
		out = append(out, c.Items...)
	}
	return out
}

// Bounds is the union of the chunk bounds in the parent's coordinate space.
func (l *Layer) Bounds() geom.Rect {
	var r geom.Rect
	for _, c := range l.Chunks {
		r = r.Union(c.Bounds())
	}
	return r
}

// AbsoluteBounds is Bounds in page coordinates.
func (l *Layer) AbsoluteBounds() geom.Rect {
	return mapThrough(l.Bounds(), l.Ancestors())
}

// Surface returns the current raster surface, nil before the first raster.
func (l *Layer) Surface() raster.Surface { return l.surface }

// NeedsRaster is true when the items or bounds differ from what the surface
// holds.
func (l *Layer) NeedsRaster() bool {
	if l.surface == nil || l.rasterBounds != l.Bounds() {
		return true
	}
	items := l.Items()
	if len(items) != len(l.rastered) {
		return true
	}
	for i := range items {
		if !paint.Equal(items[i], l.rastered[i]) {
			return true
		}
	}
	return false
}

// Raster redraws the layer's items into its surface, allocating a new
// surface when the size changed.
func (l *Layer) Raster(backend raster.Backend) {
	b := l.Bounds()
	w, h := surfaceSize(b)
	if l.surface == nil || l.surface.Width() != w || l.surface.Height() != h {
		l.surface = backend.NewSurface(w, h)
	}
	l.surface.Clear(style.Color{})
	cv := l.surface.Canvas()
	cv.Save()
	cv.Translate(-b.X, -b.Y)
	items := l.Items()
	for _, it := range items {
		it.Execute(cv)
	}
	cv.Restore()
	l.rastered = items
	l.rasterBounds = b
}

func surfaceSize(b geom.Rect) (int, int) {
	w := int(math.Ceil(b.Width))
	h := int(math.Ceil(b.Height))
	return max(w, 1), max(h, 1)
}

// drawLayer is the display item that blits a rastered layer.
type drawLayer struct{ layer *Layer }

func (d drawLayer) Bounds() geom.Rect    { return d.layer.rasterBounds }
func (d drawLayer) Source() paint.Origin { return d.layer.Origin() }
func (d drawLayer) Execute(cv raster.Canvas) {
	b := d.layer.rasterBounds
	cv.DrawSurface(d.layer.surface, b.X, b.Y)
}
