// Package executor performs the actual HTTP calls against the upstream
// API: request building, optional egress proxying, transparent response
// decoding and the mapping of transport failures onto gateway statuses.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/jeffnash/cot-proxy/internal/config"
)

// statusErr is an error that maps to a specific HTTP status on the inbound
// side.
type statusErr struct {
	code int
	msg  string
}

func (e statusErr) Error() string   { return e.msg }
func (e statusErr) StatusCode() int { return e.code }

// StatusCode extracts the inbound HTTP status for err. Unclassified errors
// report 502: from the client's point of view the proxy failed as a
// gateway.
func StatusCode(err error) int {
	var se interface{ StatusCode() int }
	if errors.As(err, &se) {
		return se.StatusCode()
	}
	return http.StatusBadGateway
}

// Response is a fully read upstream reply with hop-by-hop headers removed
// and the body already decoded.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// StreamChunk is one fragment of a streamed upstream body. Err is set on
// the terminal chunk when the stream failed mid-flight.
type StreamChunk struct {
	Payload []byte
	Err     error
}

// StreamResult exposes a streamed upstream reply. Status and headers are
// available immediately; the body arrives on Chunks, which is closed when
// the upstream body ends.
type StreamResult struct {
	StatusCode int
	Header     http.Header
	Chunks     <-chan StreamChunk
}

// Upstream executes requests against the configured target API.
type Upstream struct {
	base    *url.URL
	timeout time.Duration
	client  *http.Client
}

// NewUpstream builds an Upstream from cfg. The underlying HTTP client is
// shared and cached per proxy configuration.
func NewUpstream(cfg *config.Config) (*Upstream, error) {
	base, err := url.Parse(cfg.TargetBaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse target base URL: %w", err)
	}
	client, err := clientForProxy(cfg.ProxyURL, cfg.RequestTimeout)
	if err != nil {
		return nil, err
	}
	return &Upstream{base: base, timeout: cfg.RequestTimeout, client: client}, nil
}

// BaseURL reports the upstream base URL.
func (u *Upstream) BaseURL() string { return u.base.String() }

// Do executes a non-streaming request and reads the whole reply. The
// configured request timeout bounds the call end to end. Upstream error
// statuses are not errors here; the caller relays them.
func (u *Upstream) Do(ctx context.Context, method, path, rawQuery string, header http.Header, body []byte) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, u.timeout)
	defer cancel()

	req, err := u.buildRequest(ctx, method, path, rawQuery, header, body)
	if err != nil {
		return nil, err
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, mapTransportErr(err)
	}
	defer resp.Body.Close()

	reader, decoded, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		return nil, statusErr{http.StatusBadGateway, fmt.Sprintf("decode upstream body: %v", err)}
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, mapTransportErr(err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     sanitizeHeader(resp.Header, decoded),
		Body:       data,
	}, nil
}

// DoStream executes a request and hands the body back chunk by chunk. The
// request timeout bounds only the wait for response headers; an
// established stream may run for as long as the client stays connected.
// Canceling ctx (the inbound request context) tears the upstream read
// down.
func (u *Upstream) DoStream(ctx context.Context, method, path, rawQuery string, header http.Header, body []byte) (*StreamResult, error) {
	req, err := u.buildRequest(ctx, method, path, rawQuery, header, body)
	if err != nil {
		return nil, err
	}

	resp, err := u.client.Do(req)
	if err != nil {
		return nil, mapTransportErr(err)
	}

	reader, decoded, err := decodeBody(resp.Body, resp.Header.Get("Content-Encoding"))
	if err != nil {
		resp.Body.Close()
		return nil, statusErr{http.StatusBadGateway, fmt.Sprintf("decode upstream body: %v", err)}
	}

	out := make(chan StreamChunk)
	go func() {
		defer close(out)
		defer resp.Body.Close()

		buf := make([]byte, 8192)
		for {
			n, rerr := reader.Read(buf)
			if n > 0 {
				chunk := make([]byte, n)
				copy(chunk, buf[:n])
				select {
				case out <- StreamChunk{Payload: chunk}:
				case <-ctx.Done():
					return
				}
			}
			if rerr != nil {
				if rerr != io.EOF && !errors.Is(rerr, context.Canceled) {
					log.Debugf("executor: upstream stream ended: %v", rerr)
					select {
					case out <- StreamChunk{Err: mapTransportErr(rerr)}:
					case <-ctx.Done():
					}
				}
				return
			}
		}
	}()

	return &StreamResult{
		StatusCode: resp.StatusCode,
		Header:     sanitizeHeader(resp.Header, decoded),
		Chunks:     out,
	}, nil
}

// buildRequest assembles the outbound request: base URL + inbound path and
// query, inbound headers minus the ones the proxy owns. Compression is
// negotiated away so response bodies stay byte-transparent for filtering.
func (u *Upstream) buildRequest(ctx context.Context, method, path, rawQuery string, header http.Header, body []byte) (*http.Request, error) {
	target := strings.TrimSuffix(u.base.String(), "/") + "/" + strings.TrimPrefix(path, "/")
	if rawQuery != "" {
		target += "?" + rawQuery
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, target, rd)
	if err != nil {
		return nil, statusErr{http.StatusBadGateway, fmt.Sprintf("build upstream request: %v", err)}
	}

	for k, vs := range header {
		if skipRequestHeader(k) {
			continue
		}
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Accept-Encoding", "identity")
	return req, nil
}

// skipRequestHeader reports headers the proxy must not forward verbatim.
func skipRequestHeader(name string) bool {
	switch http.CanonicalHeaderKey(name) {
	case "Host", "Content-Length", "Connection", "Keep-Alive", "Transfer-Encoding",
		"Upgrade", "Proxy-Authorization", "Proxy-Connection", "Te", "Trailer", "Accept-Encoding":
		return true
	}
	return false
}

// sanitizeHeader clones h without hop-by-hop headers. Content-Length is
// always dropped (filtering changes body sizes; the server recomputes it)
// and encoding headers are dropped when the body was decoded in transit.
func sanitizeHeader(h http.Header, decoded bool) http.Header {
	out := make(http.Header, len(h))
	for k, vs := range h {
		switch http.CanonicalHeaderKey(k) {
		case "Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
			"Te", "Trailer", "Transfer-Encoding", "Upgrade", "Content-Length":
			continue
		case "Content-Encoding":
			if decoded {
				continue
			}
		}
		out[http.CanonicalHeaderKey(k)] = append([]string(nil), vs...)
	}
	return out
}

// mapTransportErr classifies a transport failure: timeouts become 504,
// client-side cancellation stays a plain context error and everything else
// is a 502.
func mapTransportErr(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return statusErr{http.StatusGatewayTimeout, fmt.Sprintf("upstream request timed out: %v", err)}
	}
	return statusErr{http.StatusBadGateway, fmt.Sprintf("upstream connection error: %v", err)}
}
