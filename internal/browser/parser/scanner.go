// internal/browser/parser/scanner.go
package parser

import "strings"

// cursor walks a style sheet byte by byte. All skip helpers stop at the end
// of input rather than failing, so callers only check done().
type cursor struct {
	src string
	off int
}

func (c *cursor) done() bool { return c.off >= len(c.src) }

// peek returns the current byte, or 0 at the end of input.
func (c *cursor) peek() byte {
	if c.done() {
		return 0
	}
	return c.src[c.off]
}

// at reports whether the current byte is b.
func (c *cursor) at(b byte) bool { return !c.done() && c.src[c.off] == b }

func (c *cursor) next() byte {
	b := c.peek()
	if !c.done() {
		c.off++
	}
	return b
}

// accept consumes b if it is the current byte.
func (c *cursor) accept(b byte) bool {
	if c.at(b) {
		c.off++
		return true
	}
	return false
}

func (c *cursor) has(prefix string) bool { return strings.HasPrefix(c.src[c.off:], prefix) }

func (c *cursor) spaces() {
	for !c.done() && strings.IndexByte(" \t\n\r\f", c.src[c.off]) >= 0 {
		c.off++
	}
}

// trivia skips whitespace and comments.
func (c *cursor) trivia() {
	for {
		c.spaces()
		if !c.has("/*") {
			return
		}
		end := strings.Index(c.src[c.off+2:], "*/")
		if end < 0 {
			c.off = len(c.src)
			return
		}
		c.off += end + 4
	}
}

func (c *cursor) ident() string {
	start := c.off
	for !c.done() && isNameByte(c.src[c.off]) {
		c.off++
	}
	return c.src[start:c.off]
}

// until advances to the first byte contained in stops without consuming it.
func (c *cursor) until(stops string) {
	if i := strings.IndexAny(c.src[c.off:], stops); i >= 0 {
		c.off += i
		return
	}
	c.off = len(c.src)
}

// nested skips to just after the close byte matching an already consumed
// open byte.
func (c *cursor) nested(open, close byte) {
	for depth := 1; !c.done(); {
		switch c.next() {
		case open:
			depth++
		case close:
			if depth--; depth == 0 {
				return
			}
		}
	}
}

// quoted skips a string literal starting at the current quote byte.
func (c *cursor) quoted() {
	quote := c.next()
	for !c.done() {
		switch c.next() {
		case '\\':
			c.next()
		case quote:
			return
		}
	}
}

// atRule skips an at-rule, statement or block form.
func (c *cursor) atRule() {
	c.next()
	c.until("{;")
	if c.next() == '{' {
		c.nested('{', '}')
	}
}

func isNameStart(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b == '_' || b == '-'
}

func isNameByte(b byte) bool { return isNameStart(b) || b >= '0' && b <= '9' }
