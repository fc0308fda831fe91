package anthropic

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// acceptEncoding is offered on every request; the transport's automatic gzip
// handling is bypassed because we set the header ourselves.
const acceptEncoding = "gzip, br, zstd"

type decodedBody struct {
	reader io.Reader
	close  func() error
}

func (d *decodedBody) Read(p []byte) (int, error) { return d.reader.Read(p) }
func (d *decodedBody) Close() error               { return d.close() }

// decodeBody wraps resp.Body with the decoder matching its Content-Encoding.
// Closing the returned body closes the underlying connection body too.
func decodeBody(resp *http.Response) (io.ReadCloser, error) {
	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "", "identity":
		return resp.Body, nil
	case "gzip":
		zr, err := gzip.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("anthropic: gzip response: %w", err)
		}
		return &decodedBody{
			reader: zr,
			close: func() error {
				_ = zr.Close()
				return resp.Body.Close()
			},
		}, nil
	case "br":
		return &decodedBody{
			reader: brotli.NewReader(resp.Body),
			close:  resp.Body.Close,
		}, nil
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("anthropic: zstd response: %w", err)
		}
		return &decodedBody{
			reader: zr,
			close: func() error {
				zr.Close()
				return resp.Body.Close()
			},
		}, nil
	default:
		// Unknown encodings pass through untouched rather than failing the
		// request; the JSON layer will surface the problem if it matters.
		return resp.Body, nil
	}
}
