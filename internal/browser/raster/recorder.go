// internal/browser/raster/recorder.go
package raster

import (
	"fmt"
	"image"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/xkilldash9x/rendercore/internal/browser/geom"
	"github.com/xkilldash9x/rendercore/internal/browser/layout"
	"github.com/xkilldash9x/rendercore/internal/browser/style"
)

// Op is one recorded canvas call.
type Op struct {
	Name string
	Args string
}

func (o Op) String() string { return o.Name + "(" + o.Args + ")" }

// Recorder is a Surface and Canvas that logs every call instead of drawing.
// It backs headless runs and tests.
type Recorder struct {
	ID     int
	width  int
	height int
	depth  int
	Ops    []Op
}

// NewRecorder returns an empty recording surface.
func NewRecorder(id, width, height int) *Recorder {
	return &Recorder{ID: id, width: width, height: height}
}

func (r *Recorder) record(name, format string, args ...any) {
	r.Ops = append(r.Ops, Op{Name: name, Args: fmt.Sprintf(format, args...)})
}

// Names returns the op names in order.
func (r *Recorder) Names() []string {
	out := make([]string, len(r.Ops))
	for i, op := range r.Ops {
		out[i] = op.Name
	}
	return out
}

func (r *Recorder) String() string {
	lines := make([]string, len(r.Ops))
	for i, op := range r.Ops {
		lines[i] = op.String()
	}
	return strings.Join(lines, "\n")
}

func (r *Recorder) Canvas() Canvas { return r }
func (r *Recorder) Width() int     { return r.width }
func (r *Recorder) Height() int    { return r.height }

func (r *Recorder) Clear(c style.Color) {
	r.Ops = r.Ops[:0]
	r.depth = 0
	r.record("clear", "%s", colorString(c))
}

func (r *Recorder) DrawRect(rect geom.Rect, c style.Color) {
	r.record("rect", "%s %s", rectString(rect), colorString(c))
}

func (r *Recorder) DrawRoundedRect(rect geom.Rect, radius float64, c style.Color) {
	r.record("rrect", "%s r=%g %s", rectString(rect), radius, colorString(c))
}

func (r *Recorder) StrokeRect(rect geom.Rect, thickness float64, c style.Color) {
	r.record("outline", "%s w=%g %s", rectString(rect), thickness, colorString(c))
}

func (r *Recorder) DrawLine(x1, y1, x2, y2, thickness float64, c style.Color) {
	r.record("line", "%g,%g %g,%g w=%g %s", x1, y1, x2, y2, thickness, colorString(c))
}

func (r *Recorder) DrawText(x, y float64, s string, f layout.Font, c style.Color) {
	r.record("text", "%g,%g %q %gpx %s", x, y, s, f.Size, colorString(c))
}

func (r *Recorder) DrawImage(rect geom.Rect, img image.Image) {
	size := "nil"
	if img != nil {
		b := img.Bounds()
		size = fmt.Sprintf("%dx%d", b.Dx(), b.Dy())
	}
	r.record("image", "%s src=%s", rectString(rect), size)
}

func (r *Recorder) DrawSurface(s Surface, x, y float64) {
	id := -1
	if rec, ok := s.(*Recorder); ok {
		id = rec.ID
	}
	r.record("surface", "#%d %g,%g", id, x, y)
}

func (r *Recorder) Save() {
	r.depth++
	r.record("save", "")
}

func (r *Recorder) SaveLayer(opacity float64, blendMode string) {
	r.depth++
	r.record("layer", "opacity=%g blend=%s", opacity, blendMode)
}

func (r *Recorder) Restore() {
	if r.depth == 0 {
		panic("raster: Restore without matching Save")
	}
	r.depth--
	r.record("restore", "")
}

func (r *Recorder) ClipRect(rect geom.Rect, radius float64) {
	r.record("clip", "%s r=%g", rectString(rect), radius)
}

func (r *Recorder) Translate(dx, dy float64) {
	r.record("translate", "%g,%g", dx, dy)
}

func rectString(r geom.Rect) string {
	return fmt.Sprintf("%g,%g %gx%g", r.X, r.Y, r.Width, r.Height)
}

func colorString(c style.Color) string {
	return fmt.Sprintf("#%02x%02x%02x%02x", c.R, c.G, c.B, c.A)
}

// RecordingBackend hands out Recorder surfaces with increasing ids and
// measures text with MonospaceFonts.
type RecordingBackend struct {
	mu       sync.Mutex
	next     int
	Surfaces []*Recorder
}

func (b *RecordingBackend) NewSurface(width, height int) Surface {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.next++
	rec := NewRecorder(b.next, width, height)
	b.Surfaces = append(b.Surfaces, rec)
	return rec
}

func (b *RecordingBackend) Fonts() layout.FontMetrics { return MonospaceFonts{} }

// MonospaceFonts is a deterministic font: every rune is half an em wide,
// ascent is 0.8em and descent 0.2em.
type MonospaceFonts struct{}

func (MonospaceFonts) Measure(f layout.Font, s string) float64 {
	return float64(utf8.RuneCountInString(s)) * f.Size / 2
}

func (MonospaceFonts) Metrics(f layout.Font) (float64, float64) {
	return f.Size * 0.8, f.Size * 0.2
}
