package httpx

import (
	"compress/flate"
	"compress/gzip"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// AcceptEncoding is sent on every outbound request we decode with BodyReader.
const AcceptEncoding = "gzip, deflate, br"

// UserAgent identifies the dashboard backend to the marketplace.
const UserAgent = "mltrends/1.0 (+https://github.com/guarzo/mltrends)"

// BodyReader wraps resp.Body in a decompressor matching its Content-Encoding.
// Closing the returned reader closes the response body.
func BodyReader(resp *http.Response) (io.ReadCloser, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))

	switch encoding {
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		return &wrappedBody{Reader: zr, closers: []io.Closer{zr, resp.Body}}, nil
	case "br":
		return &wrappedBody{Reader: brotli.NewReader(resp.Body), closers: []io.Closer{resp.Body}}, nil
	case "deflate":
		fr := flate.NewReader(resp.Body)
		return &wrappedBody{Reader: fr, closers: []io.Closer{fr, resp.Body}}, nil
	default:
		return resp.Body, nil
	}
}

// ReadBody decodes and reads the full response body, capped at limit bytes
// when limit > 0.
func ReadBody(resp *http.Response, limit int64) ([]byte, error) {
	body, err := BodyReader(resp)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var r io.Reader = body
	if limit > 0 {
		r = io.LimitReader(body, limit)
	}
	return io.ReadAll(r)
}

type wrappedBody struct {
	io.Reader
	closers []io.Closer
}

func (w *wrappedBody) Close() error {
	var first error
	for _, c := range w.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
