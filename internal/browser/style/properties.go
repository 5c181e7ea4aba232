// internal/browser/style/properties.go
package style

import (
	"sort"
)

// -- Constants and Configuration --

// BaseFontSize is the root font size in px.
const BaseFontSize = 16.0

// Properties lists every supported property with its initial value. The
// value "inherit" means the property takes its parent's resolved value.
var Properties = map[string]string{
	"font-size":        "inherit",
	"font-weight":      "inherit",
	"font-style":       "inherit",
	"color":            "inherit",
	"display":          "inline",
	"opacity":          "1.0",
	"transition":       "",
	"transform":        "none",
	"mix-blend-mode":   "normal",
	"border-radius":    "0px",
	"overflow":         "visible",
	"outline":          "none",
	"background-color": "transparent",
	"width":            "auto",
	"height":           "auto",
}

// Inherited holds the root values of the inherited properties.
var Inherited = map[string]string{
	"font-size":   "16px",
	"font-style":  "normal",
	"font-weight": "normal",
	"color":       "black",
}

// Animated lists the properties that support transitions.
var Animated = map[string]bool{
	"opacity": true,
	"width":   true,
	"height":  true,
}

// PropertyNames is Properties' keys in a fixed order.
var PropertyNames = func() []string {
	names := make([]string, 0, len(Properties))
	for name := range Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}()

// DefaultUserAgentCSS is the built-in sheet applied before author rules.
const DefaultUserAgentCSS = `
html, body, div, p, h1, h2, h3, h4, h5, h6, ul, ol, li, form, header, footer,
section, article, nav, main, pre, blockquote, table, tr, figure, hr {
    display: block;
}

head, script, style, title, meta, link, template, noscript { display: none; }

h1 { font-size: 200%; font-weight: bold; }
h2 { font-size: 150%; font-weight: bold; }
pre { background-color: gray; }
a { color: blue; }
i, em { font-style: italic; }
b, strong { font-weight: bold; }
small { font-size: 90%; }
big { font-size: 110%; }

input {
    font-size: 16px; font-weight: normal; font-style: normal;
    background-color: lightblue;
}
button {
    font-size: 16px; font-weight: normal; font-style: normal;
    background-color: orange;
}
`
