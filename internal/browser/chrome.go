// internal/browser/chrome.go
package browser

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/rendercore/internal/browser/geom"
	"github.com/xkilldash9x/rendercore/internal/browser/layout"
	"github.com/xkilldash9x/rendercore/internal/browser/paint"
	"github.com/xkilldash9x/rendercore/internal/browser/style"
)

var (
	black     = style.Color{A: 255}
	white     = style.Color{R: 255, G: 255, B: 255, A: 255}
	chromeBar = style.Color{R: 240, G: 240, B: 240, A: 255}
)

// chromeAction is what a click on the browser chrome asks for.
type chromeAction int

const (
	actionNone chromeAction = iota
	actionNewTab
	actionSelectTab
	actionBack
	actionFocusAddress
)

// chrome lays out and paints the tab strip and the address bar. Its upper
// half holds the tab strip, its lower half the back button and the address
// bar. It is only used under the browser's lock.
type chrome struct {
	fonts   layout.FontMetrics
	font    layout.Font
	height  float64
	padding float64

	focused bool
	address string
}

func newChrome(fonts layout.FontMetrics, height float64) *chrome {
	row := height / 2
	return &chrome{
		fonts:   fonts,
		font:    layout.Font{Size: row * 0.6, Weight: "normal", Style: "normal"},
		height:  height,
		padding: row * 0.15,
	}
}

func (c *chrome) row() float64 { return c.height / 2 }

func (c *chrome) button(x, y float64, label string) geom.Rect {
	w := c.fonts.Measure(c.font, label) + 2*c.padding
	return geom.Rect{X: x, Y: y + c.padding, Width: w, Height: c.row() - 2*c.padding}
}

func (c *chrome) newTabRect() geom.Rect { return c.button(c.padding, 0, "+") }

func tabLabel(i int) string { return fmt.Sprintf("Tab %d", i) }

func (c *chrome) tabRect(i int) geom.Rect {
	start := c.newTabRect().Right() + c.padding
	w := c.fonts.Measure(c.font, tabLabel(9)) + 2*c.padding
	return geom.Rect{X: start + float64(i)*w, Y: 0, Width: w, Height: c.row()}
}

func (c *chrome) backRect() geom.Rect { return c.button(c.padding, c.row(), "<") }

func (c *chrome) addressRect(width float64) geom.Rect {
	back := c.backRect()
	x := back.Right() + c.padding
	return geom.Rect{X: x, Y: back.Y, Width: width - x - c.padding, Height: back.Height}
}

// click maps a point in the chrome to an action. For actionSelectTab the
// tab index is returned as well.
func (c *chrome) click(x, y, width float64, tabs int) (chromeAction, int) {
	c.focused = false
	switch {
	case c.newTabRect().Contains(x, y):
		return actionNewTab, 0
	case c.backRect().Contains(x, y):
		return actionBack, 0
	case c.addressRect(width).Contains(x, y):
		c.focused = true
		c.address = ""
		return actionFocusAddress, 0
	}
	for i := 0; i < tabs; i++ {
		if c.tabRect(i).Contains(x, y) {
			return actionSelectTab, i
		}
	}
	return actionNone, 0
}

// keypress edits the address bar. It reports the address to load when char
// is a line break.
func (c *chrome) keypress(char string) (string, bool) {
	if !c.focused {
		return "", false
	}
	if char == "\n" || char == "\r" {
		c.focused = false
		return strings.TrimSpace(c.address), c.address != ""
	}
	c.address += char
	return "", false
}

// paint returns the chrome's commands, drawn over the content unshifted.
func (c *chrome) paint(width float64, tabs, active int, url string) []paint.Item {
	var o paint.Origin
	out := []paint.Item{
		paint.NewRect(o, geom.Rect{Width: width, Height: c.height}, chromeBar),
		paint.NewLine(o, 0, c.height, width, c.height, 1, black),
	}

	plus := c.newTabRect()
	out = append(out,
		paint.NewOutline(o, plus, 1, black),
		paint.NewText(o, plus.Offset(c.padding, 0), "+", c.font, black))

	for i := 0; i < tabs; i++ {
		r := c.tabRect(i)
		out = append(out,
			paint.NewLine(o, r.X, 0, r.X, r.Bottom(), 1, black),
			paint.NewLine(o, r.Right(), 0, r.Right(), r.Bottom(), 1, black),
			paint.NewText(o, geom.Rect{X: r.X + c.padding, Y: r.Y + c.padding, Width: r.Width, Height: r.Height}, tabLabel(i), c.font, black))
		if i == active {
			out = append(out,
				paint.NewLine(o, 0, r.Bottom(), r.X, r.Bottom(), 1, black),
				paint.NewLine(o, r.Right(), r.Bottom(), width, r.Bottom(), 1, black))
		}
	}

	back := c.backRect()
	out = append(out,
		paint.NewOutline(o, back, 1, black),
		paint.NewText(o, back.Offset(c.padding, 0), "<", c.font, black))

	bar := c.addressRect(width)
	text := url
	if c.focused {
		text = c.address
	}
	textRect := bar.Offset(c.padding, 0)
	out = append(out,
		paint.NewRect(o, bar, white),
		paint.NewOutline(o, bar, 1, black),
		paint.NewText(o, textRect, text, c.font, black))
	if c.focused {
		cx := textRect.X + c.fonts.Measure(c.font, text)
		out = append(out, paint.NewLine(o, cx, bar.Y, cx, bar.Bottom(), 1, black))
	}
	return out
}
