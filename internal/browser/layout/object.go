// internal/browser/layout/object.go
package layout

import (
	"fmt"

	"github.com/xkilldash9x/rendercore/internal/browser/cell"
	"github.com/xkilldash9x/rendercore/internal/browser/dom"
	"github.com/xkilldash9x/rendercore/internal/browser/geom"
)

// Index addresses a layout object inside its Tree. Indices are not reused.
type Index int32

// NoObject is the zero index.
const NoObject Index = 0

// Kind is the layout object variant.
type Kind uint8

const (
	KindDocument Kind = iota + 1
	KindBlock
	KindLine
	KindText
	KindInput
	KindImage
	KindIframe
)

func (k Kind) String() string {
	switch k {
	case KindDocument:
		return "Document"
	case KindBlock:
		return "Block"
	case KindLine:
		return "Line"
	case KindText:
		return "Text"
	case KindInput:
		return "Input"
	case KindImage:
		return "Image"
	case KindIframe:
		return "Iframe"
	}
	return "Unknown"
}

// IsEmbed reports whether k is an atomic inline (replaced) element.
func (k Kind) IsEmbed() bool {
	return k == KindInput || k == KindImage || k == KindIframe
}

// Font is the resolved font of a text run or embed.
type Font struct {
	Size   float64
	Weight string
	Style  string
}

// Object is one node of the layout tree. Every geometric field is a cell;
// fields a kind does not use are nil.
type Object struct {
	Index    Index
	Kind     Kind
	Node     dom.NodeID
	Parent   Index
	Previous Index

	// Word is the text of a Text run.
	Word string

	// ChildList holds computed children (Block). Fixed children (Document,
	// Line) live in Fixed instead.
	ChildList *cell.Cell[[]Index]
	Fixed     []Index

	Zoom    *cell.Cell[float64]
	Width   *cell.Cell[float64]
	Height  *cell.Cell[float64]
	X       *cell.Cell[float64]
	Y       *cell.Cell[float64]
	Ascent  *cell.Cell[float64]
	Descent *cell.Cell[float64]
	Font    *cell.Cell[Font]

	// DirtyDescendants is set while some cell below this object is dirty.
	DirtyDescendants bool
}

// Children returns the current child list.
func (o *Object) Children() []Index {
	if o.ChildList != nil {
		return o.ChildList.Get()
	}
	return o.Fixed
}

// field is the type-erased view of a geometry cell.
type field interface {
	Dirty() bool
	Mark()
	Release()
}

func (o *Object) cells() []field {
	out := []field{o.Zoom, o.Width, o.Height, o.X, o.Y}
	if o.Ascent != nil {
		out = append(out, o.Ascent, o.Descent)
	}
	if o.Font != nil {
		out = append(out, o.Font)
	}
	if o.ChildList != nil {
		out = append(out, o.ChildList)
	}
	return out
}

// needsLayout is true while any owned cell is dirty or a descendant is.
func (o *Object) needsLayout() bool {
	if o.DirtyDescendants {
		return true
	}
	for _, c := range o.cells() {
		if c.Dirty() {
			return true
		}
	}
	return false
}

// Rect returns the object's border box in document coordinates.
func (o *Object) Rect() geom.Rect {
	return geom.Rect{X: o.X.Get(), Y: o.Y.Get(), Width: o.Width.Get(), Height: o.Height.Get()}
}

func (o *Object) String() string {
	return fmt.Sprintf("%s#%d(node=%d)", o.Kind, o.Index, o.Node)
}

func equalIndices(a, b []Index) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
