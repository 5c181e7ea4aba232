// internal/browser/network/network_test.go
package network

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/andybalholm/brotli"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// -- Test Helpers --

const page = "<html><body><p>hello compressed world</p></body></html>"

func encode(t *testing.T, encoding string, data []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	var w io.WriteCloser
	switch encoding {
	case "gzip":
		w = gzip.NewWriter(&buf)
	case "br":
		w = brotli.NewWriter(&buf)
	case "zlib":
		w = zlib.NewWriter(&buf)
	case "deflate":
		fw, err := flate.NewWriter(&buf, flate.DefaultCompression)
		require.NoError(t, err)
		w = fw
	default:
		t.Fatalf("unknown encoding %s", encoding)
	}
	_, err := w.Write(data)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newFetcher(t *testing.T, cfg *ClientConfig) *HTTPFetcher {
	return NewHTTPFetcher(cfg, nil, zaptest.NewLogger(t))
}

// -- Test Cases: Compression --

func TestCompressionMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		header string
		body   func(t *testing.T) []byte
	}{
		{"gzip", "gzip", func(t *testing.T) []byte { return encode(t, "gzip", []byte(page)) }},
		{"brotli", "br", func(t *testing.T) []byte { return encode(t, "br", []byte(page)) }},
		{"zlib deflate", "deflate", func(t *testing.T) []byte { return encode(t, "zlib", []byte(page)) }},
		{"raw deflate", "deflate", func(t *testing.T) []byte { return encode(t, "deflate", []byte(page)) }},
		{"layered", "deflate, gzip", func(t *testing.T) []byte {
			return encode(t, "gzip", encode(t, "zlib", []byte(page)))
		}},
		{"identity", "identity", func(t *testing.T) []byte { return []byte(page) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			body := tt.body(t)
			accept := make(chan string, 1)
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				accept <- r.Header.Get("Accept-Encoding")
				w.Header().Set("Content-Encoding", tt.header)
				_, _ = w.Write(body)
			}))
			defer srv.Close()

			resp, err := newFetcher(t, nil).Request(context.Background(), srv.URL, "", nil)
			require.NoError(t, err)
			assert.Equal(t, AcceptEncoding, <-accept)
			assert.Equal(t, page, string(resp.Body))
			assert.Empty(t, resp.Headers.Get("Content-Encoding"))
		})
	}
}

func TestDecodeUnsupportedEncoding(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"zstd"}},
		Body:   io.NopCloser(strings.NewReader("x")),
	}
	assert.ErrorContains(t, Decode(resp), "unsupported content encoding")
}

func TestDecodeInvalidGzip(t *testing.T) {
	resp := &http.Response{
		Header: http.Header{"Content-Encoding": []string{"gzip"}},
		Body:   io.NopCloser(strings.NewReader("not gzip")),
	}
	assert.Error(t, Decode(resp))
}

// -- Test Cases: Fetcher --

func TestRequestHeadersAndPost(t *testing.T) {
	type request struct {
		method, referer, agent, body string
	}
	requests := make(chan request, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		requests <- request{r.Method, r.Header.Get("Referer"), r.Header.Get("User-Agent"), string(body)}
		w.Header().Set("Content-Security-Policy", "default-src 'self'")
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	resp, err := newFetcher(t, nil).Request(context.Background(), srv.URL+"/submit", "http://ref.example/", []byte("a=1&b=2"))
	require.NoError(t, err)

	got := <-requests
	assert.Equal(t, http.MethodPost, got.method)
	assert.Equal(t, "a=1&b=2", got.body)
	assert.Equal(t, "http://ref.example/", got.referer)
	assert.Equal(t, DefaultUserAgent, got.agent)
	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.True(t, resp.OK())
	assert.Equal(t, "default-src 'self'", resp.Headers.Get("Content-Security-Policy"))
}

func TestRequestFollowsRedirects(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/old", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/new", http.StatusFound)
	})
	mux.HandleFunc("/new", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("moved"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := newFetcher(t, nil).Request(context.Background(), srv.URL+"/old", "", nil)
	require.NoError(t, err)
	assert.Equal(t, srv.URL+"/new", resp.URL)
	assert.Equal(t, "moved", string(resp.Body))
}

func TestBodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(bytes.Repeat([]byte("x"), 100))
	}))
	defer srv.Close()

	cfg := NewClientConfig()
	cfg.MaxBodyBytes = 10
	_, err := newFetcher(t, cfg).Request(context.Background(), srv.URL, "", nil)
	assert.True(t, errors.Is(err, ErrBodyTooLarge))
}

func TestFileScheme(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.html")
	require.NoError(t, os.WriteFile(path, []byte(page), 0o600))

	resp, err := newFetcher(t, nil).Request(context.Background(), "file://"+filepath.ToSlash(path), "", nil)
	require.NoError(t, err)
	assert.Equal(t, page, string(resp.Body))
	assert.Equal(t, "text/html", resp.Headers.Get("Content-Type"))

	_, err = newFetcher(t, nil).Request(context.Background(), "file://"+filepath.ToSlash(filepath.Join(dir, "missing.html")), "", nil)
	assert.Error(t, err)
}

func TestDataScheme(t *testing.T) {
	tests := []struct {
		url, mediaType, body string
	}{
		{"data:,Hello%2C%20World", "text/plain", "Hello, World"},
		{"data:text/html;base64,PGI+aGk8L2I+", "text/html", "<b>hi</b>"},
		{"data:text/css,p%20%7B%20color%3A%20red%20%7D", "text/css", "p { color: red }"},
	}
	f := newFetcher(t, nil)
	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			resp, err := f.Request(context.Background(), tt.url, "", nil)
			require.NoError(t, err)
			assert.Equal(t, tt.body, string(resp.Body))
			assert.Equal(t, tt.mediaType, resp.Headers.Get("Content-Type"))
		})
	}

	_, err := f.Request(context.Background(), "data:text/plain", "", nil)
	assert.Error(t, err)
}

func TestUnsupportedScheme(t *testing.T) {
	_, err := newFetcher(t, nil).Request(context.Background(), "gopher://example.com/", "", nil)
	assert.ErrorContains(t, err, "unsupported scheme")
}

// -- Test Cases: Security --

func TestSameOrigin(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"http://a.com/x", "http://a.com:80/y", true},
		{"https://a.com/", "http://a.com/", false},
		{"http://a.com/", "http://b.com/", false},
		{"http://a.com:8080/", "http://a.com/", false},
		{"file:///tmp/a.html", "file:///tmp/b.html", true},
		{"data:,x", "data:,x", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SameOrigin(tt.a, tt.b), "%s vs %s", tt.a, tt.b)
	}
}

func TestResolveURL(t *testing.T) {
	got, err := ResolveURL("http://a.com/dir/page.html", "../style.css")
	require.NoError(t, err)
	assert.Equal(t, "http://a.com/style.css", got)

	got, err = ResolveURL("http://a.com/dir/page.html", "//cdn.com/x.js")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.com/x.js", got)
}

func TestCSP(t *testing.T) {
	var none *CSP
	assert.True(t, none.Allows("http://anything.com/"))
	assert.Nil(t, ParseCSP("script-src 'self'", "http://a.com/"))

	csp := ParseCSP("img-src *; default-src 'self' http://cdn.com", "http://a.com/index.html")
	require.NotNil(t, csp)
	assert.True(t, csp.Allows("http://a.com/script.js"))
	assert.True(t, csp.Allows("http://cdn.com:80/lib.js"))
	assert.False(t, csp.Allows("http://evil.com/x.js"))

	var violation *CSPViolationError
	require.ErrorAs(t, csp.Check("http://evil.com/x.js"), &violation)
	assert.Equal(t, "http://evil.com/x.js", violation.URL)
	assert.NoError(t, csp.Check("http://a.com/ok.css"))
}
