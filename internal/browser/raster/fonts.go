// internal/browser/raster/fonts.go
package raster

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/gogpu/gg/text"
	"golang.org/x/image/font/gofont/gobold"
	"golang.org/x/image/font/gofont/gobolditalic"
	"golang.org/x/image/font/gofont/goitalic"
	"golang.org/x/image/font/gofont/goregular"

	"github.com/xkilldash9x/rendercore/internal/browser/layout"
)

type variant struct {
	bold, italic bool
}

// GGFonts measures and draws text with the Go font family. Faces are cached
// per resolved font; the cache is shared by the worker (measuring) and the
// presentation side (drawing).
type GGFonts struct {
	mu      sync.Mutex
	sources map[variant]*text.FontSource
	faces   map[layout.Font]text.Face
}

// NewGGFonts parses the embedded Go fonts.
func NewGGFonts() (*GGFonts, error) {
	data := map[variant][]byte{
		{}:                         goregular.TTF,
		{bold: true}:               gobold.TTF,
		{italic: true}:             goitalic.TTF,
		{bold: true, italic: true}: gobolditalic.TTF,
	}
	f := &GGFonts{
		sources: make(map[variant]*text.FontSource, len(data)),
		faces:   map[layout.Font]text.Face{},
	}
	for v, ttf := range data {
		src, err := text.NewFontSource(ttf)
		if err != nil {
			return nil, fmt.Errorf("loading font (bold=%t italic=%t): %w", v.bold, v.italic, err)
		}
		f.sources[v] = src
	}
	return f, nil
}

func (f *GGFonts) face(font layout.Font) text.Face {
	if font.Size <= 0 {
		font.Size = 16
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if face, ok := f.faces[font]; ok {
		return face
	}
	face := f.sources[variantOf(font)].Face(font.Size)
	f.faces[font] = face
	return face
}

func variantOf(font layout.Font) variant {
	v := variant{italic: font.Style == "italic" || font.Style == "oblique"}
	switch font.Weight {
	case "bold", "bolder":
		v.bold = true
	default:
		if n, err := strconv.Atoi(font.Weight); err == nil && n >= 600 {
			v.bold = true
		}
	}
	return v
}

// Measure implements layout.FontMetrics.
func (f *GGFonts) Measure(font layout.Font, s string) float64 {
	return f.face(font).Advance(s)
}

// Metrics implements layout.FontMetrics.
func (f *GGFonts) Metrics(font layout.Font) (float64, float64) {
	m := f.face(font).Metrics()
	return m.Ascent, m.Descent
}
