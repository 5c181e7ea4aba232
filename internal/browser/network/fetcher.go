// internal/browser/network/fetcher.go
package network

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Response is a fully read response.
type Response struct {
	// URL is the final URL after redirects.
	URL     string
	Status  int
	Headers http.Header
	Body    []byte
}

// OK reports a 2xx status. file: and data: responses are always 200.
func (r *Response) OK() bool { return r.Status >= 200 && r.Status < 300 }

// Fetcher loads resources. Request blocks until the body is read.
type Fetcher interface {
	// Request GETs rawURL, or POSTs payload when it is non-nil. referrer is
	// sent as the Referer header when set.
	Request(ctx context.Context, rawURL, referrer string, payload []byte) (*Response, error)
}

// ErrBodyTooLarge is returned when a body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("response body too large")

// HTTPFetcher serves http, https, file and data URLs.
type HTTPFetcher struct {
	logger *zap.Logger
	client *http.Client
	cfg    *ClientConfig
}

// NewHTTPFetcher creates a fetcher. A nil client gets NewClient(cfg).
func NewHTTPFetcher(cfg *ClientConfig, client *http.Client, logger *zap.Logger) *HTTPFetcher {
	if cfg == nil {
		cfg = NewClientConfig()
	}
	if client == nil {
		client = NewClient(cfg)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFetcher{logger: logger.Named("network"), client: client, cfg: cfg}
}

func (f *HTTPFetcher) Request(ctx context.Context, rawURL, referrer string, payload []byte) (*Response, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parsing url %q: %w", rawURL, err)
	}
	switch u.Scheme {
	case "http", "https":
		return f.fetchHTTP(ctx, u, referrer, payload)
	case "file":
		return f.fetchFile(u)
	case "data":
		return fetchData(rawURL)
	}
	return nil, fmt.Errorf("unsupported scheme %q in %s", u.Scheme, rawURL)
}

func (f *HTTPFetcher) fetchHTTP(ctx context.Context, u *url.URL, referrer string, payload []byte) (*Response, error) {
	method, body := http.MethodGet, io.Reader(nil)
	if payload != nil {
		method, body = http.MethodPost, bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("User-Agent", f.cfg.UserAgent)
	if referrer != "" {
		req.Header.Set("Referer", referrer)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, u.Redacted(), err)
	}
	defer resp.Body.Close()

	data, err := f.readBody(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", u.Redacted(), err)
	}
	f.logger.Debug("Fetched",
		zap.String("method", method),
		zap.String("url", u.Redacted()),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(data)))
	return &Response{
		URL:     resp.Request.URL.String(),
		Status:  resp.StatusCode,
		Headers: resp.Header,
		Body:    data,
	}, nil
}

func (f *HTTPFetcher) readBody(r io.Reader) ([]byte, error) {
	limit := f.cfg.MaxBodyBytes
	if limit <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, ErrBodyTooLarge
	}
	return data, nil
}

func (f *HTTPFetcher) fetchFile(u *url.URL) (*Response, error) {
	path := filepath.FromSlash(u.Path)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if f.cfg.MaxBodyBytes > 0 && int64(len(data)) > f.cfg.MaxBodyBytes {
		return nil, ErrBodyTooLarge
	}
	h := http.Header{}
	h.Set("Content-Type", contentTypeFor(path))
	return &Response{URL: u.String(), Status: http.StatusOK, Headers: h, Body: data}, nil
}

func contentTypeFor(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm":
		return "text/html"
	case ".css":
		return "text/css"
	case ".js":
		return "application/javascript"
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	case ".webp":
		return "image/webp"
	case ".bmp":
		return "image/bmp"
	}
	return "application/octet-stream"
}

// fetchData decodes a data: URL, "data:[mediatype][;base64],payload".
func fetchData(raw string) (*Response, error) {
	rest := strings.TrimPrefix(raw, "data:")
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("malformed data url: missing comma")
	}
	mediaType := "text/plain"
	isBase64 := false
	for i, part := range strings.Split(meta, ";") {
		switch {
		case i == 0 && part != "":
			mediaType = part
		case part == "base64":
			isBase64 = true
		}
	}
	var body []byte
	if isBase64 {
		b, err := base64.StdEncoding.DecodeString(payload)
		if err != nil {
			return nil, fmt.Errorf("decoding data url: %w", err)
		}
		body = b
	} else {
		s, err := url.PathUnescape(payload)
		if err != nil {
			return nil, fmt.Errorf("decoding data url: %w", err)
		}
		body = []byte(s)
	}
	h := http.Header{}
	h.Set("Content-Type", mediaType)
	return &Response{URL: raw, Status: http.StatusOK, Headers: h, Body: body}, nil
}
