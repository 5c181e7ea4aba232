// internal/browser/network/compression.go
package network

import (
	"bufio"
	"compress/flate"
	"compress/gzip"
	"compress/zlib"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"

	"github.com/andybalholm/brotli"
)

// AcceptEncoding is advertised on every request that does not set its own.
const AcceptEncoding = "br, gzip, deflate"

var (
	gzipPool   = sync.Pool{New: func() any { return new(gzip.Reader) }}
	brotliPool = sync.Pool{New: func() any { return brotli.NewReader(nil) }}
)

// CompressionMiddleware negotiates content encoding and decodes response
// bodies, so the rest of the loader only ever sees identity bodies.
type CompressionMiddleware struct {
	Transport http.RoundTripper
}

// NewCompressionMiddleware wraps transport; nil means http.DefaultTransport.
func NewCompressionMiddleware(transport http.RoundTripper) *CompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &CompressionMiddleware{Transport: transport}
}

func (m *CompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req = req.Clone(req.Context())
		req.Header.Set("Accept-Encoding", AcceptEncoding)
	}
	resp, err := m.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	if err := Decode(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("decoding %s response: %w", req.URL.Redacted(), err)
	}
	return resp, nil
}

// decoder closes the decoding reader, returns pooled state and closes the
// body underneath.
type decoder struct {
	io.Reader
	body    io.ReadCloser
	release func()
}

func (d *decoder) Close() error {
	var err error
	if c, ok := d.Reader.(io.Closer); ok {
		err = c.Close()
	}
	if d.release != nil {
		d.release()
		d.release = nil
	}
	return errors.Join(err, d.body.Close())
}

// Decode replaces resp.Body with a reader undoing every Content-Encoding
// layer, last applied first. On error the body may be partly consumed and the
// response must be discarded.
func Decode(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	var layers []string
	for _, v := range resp.Header.Values("Content-Encoding") {
		for _, part := range strings.Split(v, ",") {
			layers = append(layers, strings.ToLower(strings.TrimSpace(part)))
		}
	}
	if len(layers) == 0 {
		return nil
	}

	for i := len(layers) - 1; i >= 0; i-- {
		d := &decoder{body: resp.Body}
		switch layers[i] {
		case "", "identity":
			continue
		case "gzip", "x-gzip":
			zr := gzipPool.Get().(*gzip.Reader)
			if err := zr.Reset(resp.Body); err != nil {
				gzipPool.Put(zr)
				return fmt.Errorf("gzip: %w", err)
			}
			d.Reader = zr
			d.release = func() { gzipPool.Put(zr) }
		case "br":
			br := brotliPool.Get().(*brotli.Reader)
			if err := br.Reset(resp.Body); err != nil {
				brotliPool.Put(br)
				return fmt.Errorf("brotli: %w", err)
			}
			d.Reader = br
			d.release = func() { brotliPool.Put(br) }
		case "deflate":
			r, err := inflate(resp.Body)
			if err != nil {
				return fmt.Errorf("deflate: %w", err)
			}
			d.Reader = r
		default:
			return fmt.Errorf("unsupported content encoding %q", layers[i])
		}
		resp.Body = d
	}

	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// inflate accepts both zlib-wrapped and raw deflate streams; servers send
// either under the same name.
func inflate(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	header, err := br.Peek(2)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	if len(header) == 2 && isZlibHeader(header[0], header[1]) {
		return zlib.NewReader(br)
	}
	return flate.NewReader(br), nil
}

// isZlibHeader checks the CMF/FLG pair: deflate method with a valid window
// size and a header checksum divisible by 31.
func isZlibHeader(cmf, flg byte) bool {
	return cmf&0x0f == 8 && cmf>>4 <= 7 && (uint16(cmf)<<8|uint16(flg))%31 == 0
}
