// internal/browser/network/client.go
package network

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// Connection defaults for a single-user browser.
const (
	DefaultDialTimeout           = 15 * time.Second
	DefaultKeepAlive             = 30 * time.Second
	DefaultTLSHandshakeTimeout   = 10 * time.Second
	DefaultResponseHeaderTimeout = 30 * time.Second
	DefaultRequestTimeout        = 30 * time.Second
	DefaultMaxIdleConnsPerHost   = 6
	DefaultIdleConnTimeout       = 90 * time.Second
	DefaultMaxBodyBytes          = 10 << 20
	DefaultUserAgent             = "rendercore/1.0"
)

// ClientConfig configures the HTTP side of the Fetcher.
type ClientConfig struct {
	RequestTimeout     time.Duration
	InsecureSkipVerify bool
	UserAgent          string
	MaxBodyBytes       int64
	CookieJar          http.CookieJar
}

// NewClientConfig returns the defaults, with an in-memory cookie jar.
func NewClientConfig() *ClientConfig {
	jar, _ := cookiejar.New(nil)
	return &ClientConfig{
		RequestTimeout: DefaultRequestTimeout,
		UserAgent:      DefaultUserAgent,
		MaxBodyBytes:   DefaultMaxBodyBytes,
		CookieJar:      jar,
	}
}

// NewTransport builds the base transport. Go's own gzip handling is off
// because CompressionMiddleware decodes every encoding.
func NewTransport(cfg *ClientConfig) *http.Transport {
	dialer := &net.Dialer{Timeout: DefaultDialTimeout, KeepAlive: DefaultKeepAlive}
	return &http.Transport{
		Proxy:       http.ProxyFromEnvironment,
		DialContext: dialer.DialContext,
		TLSClientConfig: &tls.Config{
			MinVersion:         tls.VersionTLS12,
			InsecureSkipVerify: cfg.InsecureSkipVerify,
		},
		TLSHandshakeTimeout:   DefaultTLSHandshakeTimeout,
		ResponseHeaderTimeout: DefaultResponseHeaderTimeout,
		MaxIdleConnsPerHost:   DefaultMaxIdleConnsPerHost,
		IdleConnTimeout:       DefaultIdleConnTimeout,
		DisableCompression:    true,
		ForceAttemptHTTP2:     true,
	}
}

// NewClient returns an http.Client with compression handling and the
// configured timeout. Redirects are followed.
func NewClient(cfg *ClientConfig) *http.Client {
	if cfg == nil {
		cfg = NewClientConfig()
	}
	return &http.Client{
		Transport: NewCompressionMiddleware(NewTransport(cfg)),
		Timeout:   cfg.RequestTimeout,
		Jar:       cfg.CookieJar,
	}
}
