package middleware

import (
	"bytes"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"
)

func decompressRouter(bodies *[][]byte) http.Handler {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(Decompress())
	r.POST("/", func(c *gin.Context) {
		b, _ := io.ReadAll(c.Request.Body)
		*bodies = append(*bodies, b)
		c.Status(200)
	})
	return r
}

func TestDecompressGzipRequestBody(t *testing.T) {
	var bodies [][]byte
	h := decompressRouter(&bodies)

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	zw.Write([]byte(`{"model":"m"}`))
	zw.Close()

	req := httptest.NewRequest(http.MethodPost, "/", &buf)
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != 200 {
		t.Fatalf("status = %d", w.Code)
	}
	if len(bodies) != 1 || string(bodies[0]) != `{"model":"m"}` {
		t.Errorf("handler saw %q, want decoded body", bodies)
	}
}

func TestDecompressPassesPlainBodies(t *testing.T) {
	var bodies [][]byte
	h := decompressRouter(&bodies)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("plain")))
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if len(bodies) != 1 || string(bodies[0]) != "plain" {
		t.Errorf("handler saw %q, want body untouched", bodies)
	}
}

func TestDecompressRejectsCorruptGzip(t *testing.T) {
	var bodies [][]byte
	h := decompressRouter(&bodies)

	req := httptest.NewRequest(http.MethodPost, "/", bytes.NewReader([]byte("not gzip")))
	req.Header.Set("Content-Encoding", "gzip")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
	if len(bodies) != 0 {
		t.Error("handler should not run for corrupt bodies")
	}
}
