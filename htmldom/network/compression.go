package network

import (
	"compress/gzip"
	"compress/zlib"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
)

// DecompressionMiddleware wraps an http.RoundTripper so callers always see
// plain response bodies. It advertises gzip, deflate and brotli on the way
// out and unwraps whichever the server chose on the way back.
type DecompressionMiddleware struct {
	Transport http.RoundTripper
}

// NewDecompressionMiddleware creates the middleware wrapper.
func NewDecompressionMiddleware(transport http.RoundTripper) *DecompressionMiddleware {
	if transport == nil {
		transport = http.DefaultTransport
	}
	return &DecompressionMiddleware{Transport: transport}
}

// RoundTrip executes a single HTTP transaction, negotiating and undoing
// content encoding.
func (dm *DecompressionMiddleware) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	}

	resp, err := dm.Transport.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if err := decompressResponse(resp); err != nil {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("failed to decompress response: %w", err)
	}
	return resp, nil
}

// decompressResponse swaps the body for a decoding reader based on
// Content-Encoding and fixes up the headers to match the decoded state.
func decompressResponse(resp *http.Response) error {
	if resp == nil || resp.Body == nil {
		return nil
	}
	encoding := strings.ToLower(resp.Header.Get("Content-Encoding"))
	if encoding == "" {
		return nil
	}

	var reader io.ReadCloser
	switch encoding {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("gzip error: %w", err)
		}
		reader = gz
	case "deflate":
		// zlib covers the common "deflate" servers; raw-deflate ones are
		// rare enough to surface as an error.
		zr, err := zlib.NewReader(resp.Body)
		if err != nil {
			return fmt.Errorf("deflate error: %w", err)
		}
		reader = zr
	case "br":
		// brotli.Reader has no Close; the original body is closed through
		// the wrapper below.
		reader = io.NopCloser(brotli.NewReader(resp.Body))
	default:
		return fmt.Errorf("unsupported Content-Encoding: %s", encoding)
	}

	resp.Body = &closeBoth{ReadCloser: reader, original: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	resp.Uncompressed = true
	return nil
}

// closeBoth closes the decoding reader and the network body it wraps.
type closeBoth struct {
	io.ReadCloser
	original io.ReadCloser
}

func (c *closeBoth) Close() error {
	err := c.ReadCloser.Close()
	if cerr := c.original.Close(); err == nil {
		err = cerr
	}
	return err
}
