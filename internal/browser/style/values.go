// internal/browser/style/values.go
package style

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/xkilldash9x/rendercore/internal/browser/geom"
)

// Color represents an RGBA color.
type Color struct {
	R, G, B, A uint8
}

var cssColors = map[string]Color{
	"black":       {0, 0, 0, 255},
	"white":       {255, 255, 255, 255},
	"red":         {255, 0, 0, 255},
	"green":       {0, 128, 0, 255},
	"blue":        {0, 0, 255, 255},
	"gray":        {128, 128, 128, 255},
	"lightgray":   {211, 211, 211, 255},
	"lightblue":   {173, 216, 230, 255},
	"lightgreen":  {144, 238, 144, 255},
	"orange":      {255, 165, 0, 255},
	"yellow":      {255, 255, 0, 255},
	"purple":      {128, 0, 128, 255},
	"transparent": {0, 0, 0, 0},
}

// ParseColor parses named, hex and rgb()/rgba() colors. Unparseable input
// yields opaque black and false.
func ParseColor(value string) (Color, bool) {
	value = strings.TrimSpace(strings.ToLower(value))

	if color, ok := cssColors[value]; ok {
		return color, true
	}

	if strings.HasPrefix(value, "#") {
		return parseHexColor(value)
	}

	if strings.HasPrefix(value, "rgb") {
		return parseRGBColor(value)
	}

	return Color{0, 0, 0, 255}, false
}

func parseHexColor(hex string) (Color, bool) {
	hex = strings.TrimPrefix(hex, "#")
	var r, g, b, a uint8 = 0, 0, 0, 255

	switch len(hex) {
	case 3:
		r = hexDigit(hex[0]) * 17
		g = hexDigit(hex[1]) * 17
		b = hexDigit(hex[2]) * 17
	case 4:
		r = hexDigit(hex[0]) * 17
		g = hexDigit(hex[1]) * 17
		b = hexDigit(hex[2]) * 17
		a = hexDigit(hex[3]) * 17
	case 6:
		r = hexDigit(hex[0])<<4 | hexDigit(hex[1])
		g = hexDigit(hex[2])<<4 | hexDigit(hex[3])
		b = hexDigit(hex[4])<<4 | hexDigit(hex[5])
	case 8:
		r = hexDigit(hex[0])<<4 | hexDigit(hex[1])
		g = hexDigit(hex[2])<<4 | hexDigit(hex[3])
		b = hexDigit(hex[4])<<4 | hexDigit(hex[5])
		a = hexDigit(hex[6])<<4 | hexDigit(hex[7])
	default:
		return Color{}, false
	}
	return Color{R: r, G: g, B: b, A: a}, true
}

func hexDigit(c byte) uint8 {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10
	}
	return 0
}

var rgbRegex = regexp.MustCompile(`rgba?\((.*?)\)`)

func parseRGBColor(value string) (Color, bool) {
	matches := rgbRegex.FindStringSubmatch(value)
	if len(matches) != 2 {
		return Color{}, false
	}

	values := strings.FieldsFunc(matches[1], func(r rune) bool {
		return r == ',' || r == ' ' || r == '/'
	})
	if len(values) < 3 || len(values) > 4 {
		return Color{}, false
	}

	r := parseColorComponent(values[0], false)
	g := parseColorComponent(values[1], false)
	b := parseColorComponent(values[2], false)
	a := uint8(255)

	if len(values) == 4 {
		a = parseColorComponent(values[3], true)
	}

	return Color{R: r, G: g, B: b, A: a}, true
}

func parseColorComponent(value string, isAlpha bool) uint8 {
	value = strings.TrimSpace(value)

	if strings.HasSuffix(value, "%") {
		percent, err := strconv.ParseFloat(strings.TrimSuffix(value, "%"), 64)
		if err != nil {
			return 0
		}
		return uint8(clamp(percent/100.0*255.0+0.5, 0, 255))
	}

	if isAlpha {
		val, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return 255
		}
		return uint8(clamp(val*255.0+0.5, 0, 255))
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		if fval, err := strconv.ParseFloat(value, 64); err == nil {
			return uint8(clamp(fval+0.5, 0, 255))
		}
		return 0
	}
	return uint8(clamp(float64(val), 0, 255))
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// ResolveFontSize resolves a font-size declaration against the parent's
// computed size. em and % are relative to the parent, rem to BaseFontSize.
// Unknown values inherit the parent size.
func ResolveFontSize(value string, parentPx float64) float64 {
	value = strings.TrimSpace(value)
	for _, u := range []struct {
		suffix string
		scale  float64
	}{
		{"rem", BaseFontSize},
		{"em", parentPx},
		{"%", parentPx / 100},
		{"px", 1},
	} {
		if num, ok := strings.CutSuffix(value, u.suffix); ok {
			if v, err := strconv.ParseFloat(num, 64); err == nil && v >= 0 {
				return v * u.scale
			}
			return parentPx
		}
	}
	if v, err := strconv.ParseFloat(value, 64); err == nil && v >= 0 {
		return v
	}
	return parentPx
}

// ParsePx parses a px (or unitless) length. Anything else reports false.
func ParsePx(value string) (float64, bool) {
	value = strings.TrimSpace(value)
	num := strings.TrimSuffix(value, "px")
	if num == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Length resolves a length property: "auto" (or anything unparseable) gives
// def, px values are scaled by zoom.
func Length(value string, def, zoom float64) float64 {
	if v, ok := ParsePx(value); ok {
		return v * zoom
	}
	return def
}

// FontSize returns the resolved font size in px, 16 when unparseable.
func FontSize(value string) float64 {
	if v, ok := ParsePx(value); ok && v > 0 {
		return v
	}
	return BaseFontSize
}

// Opacity parses an opacity value clamped to [0, 1]; invalid input is 1.
func Opacity(value string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return 1
	}
	return clamp(v, 0, 1)
}

var translateRegex = regexp.MustCompile(`^translate\(\s*(-?[0-9.]+)(?:px)?\s*,\s*(-?[0-9.]+)(?:px)?\s*\)$`)

// ParseTransform understands "none" and "translate(x, y)". Other transforms
// are ignored and yield the identity matrix.
func ParseTransform(value string) (geom.TransformMatrix, bool) {
	m := translateRegex.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return geom.IdentityMatrix(), false
	}
	x, _ := strconv.ParseFloat(m[1], 64)
	y, _ := strconv.ParseFloat(m[2], 64)
	return geom.TranslateMatrix(x, y), true
}

// Outline parses "Npx solid color".
func Outline(value string) (width float64, color Color, ok bool) {
	parts := strings.Fields(value)
	if len(parts) != 3 || parts[1] != "solid" {
		return 0, Color{}, false
	}
	width, ok = ParsePx(parts[0])
	if !ok {
		return 0, Color{}, false
	}
	color, _ = ParseColor(parts[2])
	return width, color, true
}

// FormatPx renders a px value the way the resolver stores it.
func FormatPx(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64) + "px"
}
