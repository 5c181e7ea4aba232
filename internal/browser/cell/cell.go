// internal/browser/cell/cell.go
package cell

import (
	"fmt"
)

// Cell is a memoizing, dependency-tracked value. The value is stored inline;
// the dirty flag and the dataflow edges live in the Graph, addressed by ID.
//
// A new cell starts dirty: nothing may read it until it has been Set once.
type Cell[T any] struct {
	g     *Graph
	id    ID
	value T
	eq    func(a, b T) bool
}

// Option configures a cell at construction.
type Option func(g *Graph, id ID)

// DependsOn declares the cell's dependencies up front and freezes them. Reads
// from those cells register automatically; reads from any other cell panic.
func DependsOn(deps ...Ref) Option {
	return func(g *Graph, id ID) {
		ids := make([]ID, 0, len(deps))
		for _, d := range deps {
			if d != nil {
				ids = append(ids, d.CellID())
			}
		}
		g.SetDependencies(id, ids)
	}
}

// Invalidates declares cells that must be marked whenever this one changes.
// It is used by "children" fields whose replacement invalidates aggregates
// computed from the previous child list.
func Invalidates(targets ...Ref) Option {
	return func(g *Graph, id ID) {
		for _, t := range targets {
			if t != nil {
				g.AddInvalidation(id, t.CellID())
			}
		}
	}
}

// New creates a cell for a comparable value type.
func New[T comparable](g *Graph, owner Owner, name string, opts ...Option) *Cell[T] {
	return NewWith[T](g, owner, name, func(a, b T) bool { return a == b }, opts...)
}

// NewWith creates a cell that uses eq to decide whether a Set is a change.
func NewWith[T any](g *Graph, owner Owner, name string, eq func(a, b T) bool, opts ...Option) *Cell[T] {
	c := &Cell[T]{g: g, id: g.alloc(name, owner), eq: eq}
	for _, opt := range opts {
		opt(g, c.id)
	}
	return c
}

// CellID implements Ref.
func (c *Cell[T]) CellID() ID { return c.id }

// Graph returns the graph the cell belongs to.
func (c *Cell[T]) Graph() *Graph { return c.g }

// Dirty reports whether the cell must be recomputed before it can be read.
func (c *Cell[T]) Dirty() bool { return c.g.Dirty(c.id) }

// Set stores value and clears the dirty flag. Dependents are notified only
// when the value actually changed.
func (c *Cell[T]) Set(value T) {
	differs := !c.eq(c.value, value)
	c.value = value
	c.g.changed(c.id, differs)
}

// Get returns the stored value. Reading a dirty cell is a bug in the caller
// and panics.
func (c *Cell[T]) Get() T {
	if c.g.Dirty(c.id) {
		panic(fmt.Sprintf("cell: read of dirty cell %s", c.g.Name(c.id)))
	}
	return c.value
}

// Read returns the value and records requester as a dependent.
func (c *Cell[T]) Read(requester Ref) T {
	if requester != nil {
		c.g.register(c.id, requester.CellID())
	}
	return c.Get()
}

// Peek returns the stored value regardless of the dirty flag. It exists for
// animations, which need the last value to interpolate from.
func (c *Cell[T]) Peek() T { return c.value }

// Mark forces the cell dirty without a new value.
func (c *Cell[T]) Mark() { c.g.Mark(c.id) }

// Copy sets this cell to other's value, depending on other.
func (c *Cell[T]) Copy(other *Cell[T]) {
	c.Set(other.Read(c))
}

// Freeze fixes the dependencies discovered so far.
func (c *Cell[T]) Freeze() { c.g.Freeze(c.id) }

// SetDependencies replaces the dependency set and freezes it.
func (c *Cell[T]) SetDependencies(deps ...Ref) {
	ids := make([]ID, 0, len(deps))
	for _, d := range deps {
		ids = append(ids, d.CellID())
	}
	c.g.SetDependencies(c.id, ids)
}

// Release removes the cell from its graph.
func (c *Cell[T]) Release() { c.g.Release(c.id) }

func (c *Cell[T]) String() string {
	return fmt.Sprintf("Cell(%s, %v)", c.g.Name(c.id), c.value)
}
