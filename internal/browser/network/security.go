// internal/browser/network/security.go
package network

import (
	"fmt"
	"net/url"
	"strings"
)

// CrossOriginError reports access from one origin to a resource or frame of
// another.
type CrossOriginError struct {
	From, To string
}

func (e *CrossOriginError) Error() string {
	return fmt.Sprintf("cross-origin access from %s to %s not allowed", e.From, e.To)
}

// CSPViolationError reports a request blocked by Content-Security-Policy.
type CSPViolationError struct {
	URL string
}

func (e *CSPViolationError) Error() string {
	return fmt.Sprintf("request to %s blocked by content security policy", e.URL)
}

// Origin returns scheme://host:port with the default port made explicit.
// URLs without a host (file:, data:) have the opaque origin "null".
func Origin(u *url.URL) string {
	if u == nil || u.Host == "" {
		return "null"
	}
	port := u.Port()
	if port == "" {
		switch u.Scheme {
		case "http":
			port = "80"
		case "https":
			port = "443"
		}
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Hostname()) + ":" + port
}

// OriginOf parses raw and returns its Origin; unparseable input is "null".
func OriginOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "null"
	}
	return Origin(u)
}

// SameOrigin compares the origins of two URLs. Opaque origins never match,
// except file: URLs, which are treated as one local origin.
func SameOrigin(a, b string) bool {
	ua, err1 := url.Parse(a)
	ub, err2 := url.Parse(b)
	if err1 != nil || err2 != nil {
		return false
	}
	if ua.Scheme == "file" && ub.Scheme == "file" {
		return true
	}
	oa, ob := Origin(ua), Origin(ub)
	return oa != "null" && oa == ob
}

// ResolveURL resolves ref against base the way links and resource attributes
// are resolved.
func ResolveURL(base, ref string) (string, error) {
	b, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("parsing base url %q: %w", base, err)
	}
	r, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", fmt.Errorf("parsing url %q: %w", ref, err)
	}
	return b.ResolveReference(r).String(), nil
}

// CSP is the default-src part of a Content-Security-Policy. A nil *CSP allows
// everything.
type CSP struct {
	self    string
	origins map[string]bool
}

// ParseCSP reads a Content-Security-Policy header for the document at
// docURL. Only default-src is enforced; nil is returned when it is absent.
func ParseCSP(header, docURL string) *CSP {
	for _, directive := range strings.Split(header, ";") {
		fields := strings.Fields(directive)
		if len(fields) == 0 || !strings.EqualFold(fields[0], "default-src") {
			continue
		}
		csp := &CSP{self: OriginOf(docURL), origins: map[string]bool{}}
		for _, src := range fields[1:] {
			switch strings.ToLower(src) {
			case "'self'":
				csp.origins[csp.self] = true
			case "'none'":
			default:
				csp.origins[OriginOf(src)] = true
			}
		}
		return csp
	}
	return nil
}

// Allows reports whether a sub-resource at raw may be loaded.
func (c *CSP) Allows(raw string) bool {
	if c == nil {
		return true
	}
	return c.origins[OriginOf(raw)]
}

// Check returns a *CSPViolationError when raw is not allowed.
func (c *CSP) Check(raw string) error {
	if c.Allows(raw) {
		return nil
	}
	return &CSPViolationError{URL: raw}
}
