// internal/browser/style/animation.go
package style

import (
	"strconv"
	"strings"
	"time"

	"github.com/xkilldash9x/rendercore/internal/browser/dom"
)

// NumericAnimation interpolates a numeric property (unitless or px) linearly
// over a fixed number of frames.
type NumericAnimation struct {
	Property  string
	oldValue  float64
	newValue  float64
	isPx      bool
	numFrames int
	frame     int
	target    string
}

// NewNumericAnimation returns nil when either endpoint is not numeric.
func NewNumericAnimation(property, oldValue, newValue string, numFrames int) *NumericAnimation {
	isPx := strings.HasSuffix(oldValue, "px")
	if isPx != strings.HasSuffix(newValue, "px") {
		return nil
	}
	o, err1 := strconv.ParseFloat(strings.TrimSuffix(oldValue, "px"), 64)
	n, err2 := strconv.ParseFloat(strings.TrimSuffix(newValue, "px"), 64)
	if err1 != nil || err2 != nil || numFrames < 1 {
		return nil
	}
	return &NumericAnimation{
		Property:  property,
		oldValue:  o,
		newValue:  n,
		isPx:      isPx,
		numFrames: numFrames,
		target:    newValue,
	}
}

// Target is the cascade value the animation ends on.
func (a *NumericAnimation) Target() string { return a.target }

// Animate implements dom.Animation.
func (a *NumericAnimation) Animate() (string, bool) {
	a.frame++
	if a.frame >= a.numFrames {
		return a.target, true
	}
	v := a.oldValue + (a.newValue-a.oldValue)*float64(a.frame)/float64(a.numFrames)
	if a.isPx {
		return FormatPx(v), false
	}
	return strconv.FormatFloat(v, 'f', -1, 64), false
}

// ParseTransition parses "opacity 2s, width 500ms" into a frame count per
// property. Malformed entries are skipped.
func ParseTransition(value string, frameInterval time.Duration) map[string]int {
	out := map[string]int{}
	if frameInterval <= 0 {
		return out
	}
	for _, item := range strings.Split(value, ",") {
		parts := strings.Fields(item)
		if len(parts) != 2 {
			continue
		}
		d, err := time.ParseDuration(parts[1])
		if err != nil || d <= 0 {
			continue
		}
		frames := int(d / frameInterval)
		if frames < 1 {
			frames = 1
		}
		out[parts[0]] = frames
	}
	return out
}

// Tick is the outcome of advancing every running animation by one frame.
type Tick struct {
	// Composited lists nodes whose only animated change was opacity.
	Composited []dom.NodeID
	// NeedsLayout is set when any other animated property changed.
	NeedsLayout bool
	// Running reports whether any animation is still in progress.
	Running bool
}

// Advance steps every animation in doc. Finished animations leave their
// target value in the cell and are removed, handing control back to the
// cascade. A property whose cell was marked since the last style pass is not
// stepped; the next resolve restarts or keeps its animation from the cell's
// current value.
func Advance(doc *dom.Document) Tick {
	var t Tick
	doc.Walk(doc.Root, func(n *dom.Node) bool {
		if len(n.Animations) == 0 {
			return true
		}
		opacityOnly := true
		for prop, anim := range n.Animations {
			if n.Style[prop].Dirty() {
				t.Running = true
				opacityOnly = false
				continue
			}
			value, done := anim.Animate()
			n.Style[prop].Set(value)
			if done {
				delete(n.Animations, prop)
			} else {
				t.Running = true
			}
			if prop != "opacity" {
				opacityOnly = false
				t.NeedsLayout = true
			}
		}
		if opacityOnly {
			t.Composited = append(t.Composited, n.ID)
		}
		return true
	})
	return t
}
