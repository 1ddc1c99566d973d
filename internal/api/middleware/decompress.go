package middleware

import (
	"io"
	"net/http"

	"github.com/andybalholm/brotli"
	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// readCloser adds a no-op Close to a plain reader.
type readCloser struct{ io.Reader }

func (readCloser) Close() error { return nil }

// Decompress returns middleware that transparently decodes compressed
// request bodies (gzip, br, zstd) so downstream handlers always see plain
// JSON. The encoding headers are dropped; the upstream request is rebuilt
// from the decoded bytes anyway.
func Decompress() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.GetHeader("Content-Encoding") {
		case "gzip":
			zr, err := gzip.NewReader(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error": gin.H{"message": "invalid gzip request body", "type": "invalid_request_error"},
				})
				return
			}
			c.Request.Body = zr
		case "br":
			c.Request.Body = readCloser{brotli.NewReader(c.Request.Body)}
		case "zstd":
			zr, err := zstd.NewReader(c.Request.Body)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
					"error": gin.H{"message": "invalid zstd request body", "type": "invalid_request_error"},
				})
				return
			}
			c.Request.Body = zr.IOReadCloser()
		default:
			c.Next()
			return
		}
		c.Request.Header.Del("Content-Encoding")
		c.Request.Header.Del("Content-Length")
		c.Request.ContentLength = -1
		c.Next()
	}
}
