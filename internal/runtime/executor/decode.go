package executor

import (
	"io"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// decodeBody wraps r with a decompressor matching the Content-Encoding
// value. The second return reports whether decoding happened, so callers
// know to drop the encoding headers. Unknown encodings pass through
// untouched.
func decodeBody(r io.Reader, encoding string) (io.Reader, bool, error) {
	switch strings.ToLower(strings.TrimSpace(encoding)) {
	case "", "identity":
		return r, false, nil
	case "gzip":
		zr, err := gzip.NewReader(r)
		if err != nil {
			return nil, false, err
		}
		return zr, true, nil
	case "br":
		return brotli.NewReader(r), true, nil
	case "zstd":
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, false, err
		}
		return zr.IOReadCloser(), true, nil
	default:
		return r, false, nil
	}
}
