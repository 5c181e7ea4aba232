// internal/browser/cell/graph.go
package cell

import (
	"fmt"
)

// ID addresses a cell slot inside a Graph. The low 32 bits are the slot
// index and the high bits its generation. Released slots are recycled with
// the next generation, so a stale ID held by a released object resolves to
// a dead slot rather than to the slot's new cell.
type ID int64

// None is the zero ID; no live cell ever has it.
const None ID = 0

func makeID(index int32, gen uint32) ID { return ID(int64(gen)<<32 | int64(uint32(index))) }

func (id ID) index() int { return int(uint32(id)) }

func (id ID) generation() uint32 { return uint32(uint64(id) >> 32) }

// Ref is anything that can be registered as a dependent of a cell.
type Ref interface {
	CellID() ID
}

// Ancestry is implemented by the trees that own cells (the document tree and
// the layout tree). When a cell owned by index becomes dirty, the tree sets
// the has-dirty-descendants bit on every ancestor of that owner.
type Ancestry interface {
	DirtyAncestors(owner int32)
}

// Owner identifies the tree object that owns a cell.
type Owner struct {
	Tree  uint8
	Index int32
}

// Stats counts graph activity. Tests use it to assert that a clean pass is a
// true no-op.
type Stats struct {
	Sets    int
	Changes int
	Marks   int
}

type slot struct {
	name  string
	gen   uint32
	alive bool
	dirty bool
	owner Owner

	// dependents are notified (marked) when this cell changes.
	dependents []ID
	// dependencies is the declared or discovered set of cells this one reads.
	dependencies []ID
	frozen       bool
	// invalidations are marked whenever this cell changes, independent of reads.
	invalidations []ID
}

// Graph is the arena holding every cell's bookkeeping for one frame: dirty
// flags and the dependency edges, all expressed as indices. Cell values live
// in the Cell structs held by their owning objects.
//
// A Graph is owned by a single worker and is not safe for concurrent use.
type Graph struct {
	slots []slot
	free  []int32
	trees []Ancestry
	stats Stats
}

// NewGraph returns an empty graph. Slot 0 is reserved for None.
func NewGraph() *Graph {
	return &Graph{slots: make([]slot, 1, 256)}
}

// RegisterTree installs an Ancestry and returns the tree tag to use in Owner.
func (g *Graph) RegisterTree(a Ancestry) uint8 {
	g.trees = append(g.trees, a)
	return uint8(len(g.trees) - 1)
}

// Stats returns a snapshot of the graph counters.
func (g *Graph) Stats() Stats {
	return g.stats
}

// ResetStats zeroes the counters.
func (g *Graph) ResetStats() {
	g.stats = Stats{}
}

// Cap reports the number of slots allocated so far, live or free.
func (g *Graph) Cap() int {
	return len(g.slots) - 1
}

// Len reports the number of live cells.
func (g *Graph) Len() int {
	n := 0
	for i := 1; i < len(g.slots); i++ {
		if g.slots[i].alive {
			n++
		}
	}
	return n
}

// DirtyCount reports how many live cells are dirty.
func (g *Graph) DirtyCount() int {
	n := 0
	for i := 1; i < len(g.slots); i++ {
		if g.slots[i].alive && g.slots[i].dirty {
			n++
		}
	}
	return n
}

func (g *Graph) alloc(name string, owner Owner) ID {
	if n := len(g.free); n > 0 {
		i := g.free[n-1]
		g.free = g.free[:n-1]
		s := &g.slots[i]
		*s = slot{name: name, gen: s.gen, alive: true, dirty: true, owner: owner}
		return makeID(i, s.gen)
	}
	g.slots = append(g.slots, slot{name: name, alive: true, dirty: true, owner: owner})
	return makeID(int32(len(g.slots)-1), 0)
}

func (g *Graph) slot(id ID) *slot {
	i := id.index()
	if id == None || i <= 0 || i >= len(g.slots) {
		return nil
	}
	s := &g.slots[i]
	if !s.alive || s.gen != id.generation() {
		return nil
	}
	return s
}

// Dirty reports whether the cell is dirty. Dead cells report false.
func (g *Graph) Dirty(id ID) bool {
	s := g.slot(id)
	return s != nil && s.dirty
}

// Name returns the debug name of a cell.
func (g *Graph) Name(id ID) string {
	if s := g.slot(id); s != nil {
		return s.name
	}
	return fmt.Sprintf("<dead cell %d.%d>", id.index(), id.generation())
}

// Mark forces a cell dirty without changing its value. Every registered
// dependent is marked as well, and the owner's ancestors learn that they
// have a dirty descendant.
func (g *Graph) Mark(id ID) {
	s := g.slot(id)
	if s == nil || s.dirty {
		return
	}
	s.dirty = true
	g.stats.Marks++
	g.dirtyAncestors(s.owner)
	g.notify(id)
}

// notify marks the dependents and invalidations of id, pruning dead edges.
func (g *Graph) notify(id ID) {
	s := g.slot(id)
	if s == nil {
		return
	}
	deps := append([]ID(nil), s.dependents...)
	live := s.dependents[:0]
	for _, d := range deps {
		if g.slot(d) != nil {
			live = append(live, d)
		}
	}
	s.dependents = live
	for _, d := range deps {
		g.Mark(d)
	}
	for _, inv := range append([]ID(nil), s.invalidations...) {
		g.Mark(inv)
	}
}

func (g *Graph) dirtyAncestors(owner Owner) {
	if int(owner.Tree) < len(g.trees) && g.trees[owner.Tree] != nil {
		g.trees[owner.Tree].DirtyAncestors(owner.Index)
	}
}

// changed is called by Cell.Set after a value was stored.
func (g *Graph) changed(id ID, differs bool) {
	s := g.slot(id)
	if s == nil {
		panic(fmt.Sprintf("cell: set on released cell %d", id))
	}
	g.stats.Sets++
	s.dirty = false
	if differs {
		g.stats.Changes++
		g.dirtyAncestors(s.owner)
		g.notify(id)
	}
}

// register records requester as a dependent of id, or checks the frozen
// contract when requester's dependencies are fixed.
func (g *Graph) register(id, requester ID) {
	r := g.slot(requester)
	if r == nil {
		return
	}
	if r.frozen {
		for _, d := range r.dependencies {
			if d == id {
				return
			}
		}
		panic(fmt.Sprintf("cell: %s read %s, which is not among its frozen dependencies",
			r.name, g.Name(id)))
	}
	s := g.slot(id)
	if s == nil {
		return
	}
	for _, d := range s.dependents {
		if d == requester {
			return
		}
	}
	s.dependents = append(s.dependents, requester)
	r.dependencies = append(r.dependencies, id)
}

// SetDependencies replaces a cell's dependency set and freezes it. Old edges
// are removed from the previous dependencies' dependent lists.
func (g *Graph) SetDependencies(id ID, deps []ID) {
	s := g.slot(id)
	if s == nil {
		return
	}
	for _, old := range s.dependencies {
		if o := g.slot(old); o != nil {
			o.dependents = removeID(o.dependents, id)
		}
	}
	s.dependencies = s.dependencies[:0]
	for _, d := range deps {
		if ds := g.slot(d); ds != nil {
			ds.dependents = append(ds.dependents, id)
			s.dependencies = append(s.dependencies, d)
		}
	}
	s.frozen = true
}

// Freeze fixes the dependencies discovered so far.
func (g *Graph) Freeze(id ID) {
	if s := g.slot(id); s != nil {
		s.frozen = true
	}
}

// Frozen reports whether a cell's dependencies are fixed.
func (g *Graph) Frozen(id ID) bool {
	s := g.slot(id)
	return s != nil && s.frozen
}

// Dependents returns a copy of the live dependents of id.
func (g *Graph) Dependents(id ID) []ID {
	s := g.slot(id)
	if s == nil {
		return nil
	}
	out := make([]ID, 0, len(s.dependents))
	for _, d := range s.dependents {
		if g.slot(d) != nil {
			out = append(out, d)
		}
	}
	return out
}

// AddInvalidation declares that target must be marked whenever id changes.
func (g *Graph) AddInvalidation(id, target ID) {
	if s := g.slot(id); s != nil {
		s.invalidations = append(s.invalidations, target)
	}
}

// Release kills a cell and recycles its slot under a new generation. Edges
// pointing at it are pruned lazily.
func (g *Graph) Release(id ID) {
	s := g.slot(id)
	if s == nil {
		return
	}
	for _, d := range s.dependencies {
		if o := g.slot(d); o != nil {
			o.dependents = removeID(o.dependents, id)
		}
	}
	i := id.index()
	g.slots[i] = slot{gen: s.gen + 1}
	g.free = append(g.free, int32(i))
}

func removeID(ids []ID, id ID) []ID {
	out := ids[:0]
	for _, x := range ids {
		if x != id {
			out = append(out, x)
		}
	}
	return out
}
