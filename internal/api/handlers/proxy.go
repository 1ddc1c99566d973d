package handlers

import (
	"context"
	"errors"
	"io"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/jeffnash/cot-proxy/internal/config"
	"github.com/jeffnash/cot-proxy/internal/registry"
	"github.com/jeffnash/cot-proxy/internal/runtime/executor"
	"github.com/jeffnash/cot-proxy/internal/thinktag"
	"github.com/jeffnash/cot-proxy/internal/transform"
)

// Proxy routes inbound requests to the configured upstream. It reads the
// configuration snapshot per request, so hot reloads apply to the next
// request without restarts.
type Proxy struct {
	store *config.Store

	mu  sync.Mutex
	cfg *config.Config
	up  *executor.Upstream
}

// NewProxy builds a Proxy on top of the configuration store.
func NewProxy(store *config.Store) *Proxy {
	return &Proxy{store: store}
}

// upstream returns the executor for the current configuration snapshot,
// rebuilding it when a reload swapped the snapshot out.
func (p *Proxy) upstream() (*executor.Upstream, *config.Config, error) {
	cfg := p.store.Current()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cfg != cfg || p.up == nil {
		up, err := executor.NewUpstream(cfg)
		if err != nil {
			return nil, cfg, err
		}
		p.cfg, p.up = cfg, up
	}
	return p.up, cfg, nil
}

// ChatCompletions handles POST /v1/chat/completions. The body must be a
// JSON object.
func (p *Proxy) ChatCompletions(c *gin.Context) {
	p.proxyRequest(c, true)
}

// Passthrough forwards any other route to the upstream. JSON object bodies
// still get model resolution and rewriting; everything else is forwarded
// byte for byte.
func (p *Proxy) Passthrough(c *gin.Context) {
	p.proxyRequest(c, false)
}

func (p *Proxy) proxyRequest(c *gin.Context, requireJSON bool) {
	up, cfg, err := p.upstream()
	if err != nil {
		writeError(c, http.StatusInternalServerError, err.Error())
		return
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		writeError(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	isJSONObject := len(body) > 0 && gjson.ValidBytes(body) && gjson.ParseBytes(body).IsObject()
	if requireJSON && !isJSONObject {
		writeError(c, http.StatusBadRequest, "request body must be a JSON object")
		return
	}

	outBody := body
	filter := thinktag.NewPassthrough()
	stream := false

	if isJSONObject {
		rctx := registry.Resolve(gjson.GetBytes(body, "model").String(), cfg)
		outBody, err = transform.Apply(body, rctx)
		if err != nil {
			if errors.Is(err, transform.ErrMalformedRequest) {
				writeError(c, http.StatusBadRequest, err.Error())
			} else {
				writeError(c, http.StatusInternalServerError, err.Error())
			}
			return
		}
		stream = gjson.GetBytes(outBody, "stream").Bool()
		if rctx.FilterEnabled {
			filter = thinktag.NewFilter(rctx.ThinkTagStart, rctx.ThinkTagEnd)
		}
	}

	path := c.Request.URL.Path
	query := c.Request.URL.RawQuery
	method := c.Request.Method
	reqCtx := c.Request.Context()

	if stream {
		p.relayStream(c, up, method, path, query, outBody, filter)
		return
	}

	resp, err := up.Do(reqCtx, method, path, query, c.Request.Header, outBody)
	if err != nil {
		relayExecutorError(c, err)
		return
	}

	respBody := resp.Body
	if resp.StatusCode < http.StatusBadRequest {
		respBody = append(filter.ProcessChunk(respBody), filter.Flush()...)
	}
	copyHeader(c.Writer.Header(), resp.Header)
	c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), respBody)
}

// relayStream forwards a streamed upstream reply chunk by chunk, running
// every payload through the think tag filter before it reaches the client.
// Upstream error statuses are relayed whole and unfiltered.
func (p *Proxy) relayStream(c *gin.Context, up *executor.Upstream, method, path, query string, body []byte, filter *thinktag.Filter) {
	reqCtx := c.Request.Context()
	res, err := up.DoStream(reqCtx, method, path, query, c.Request.Header, body)
	if err != nil {
		relayExecutorError(c, err)
		return
	}

	if res.StatusCode >= http.StatusBadRequest {
		var buf []byte
		for chunk := range res.Chunks {
			if chunk.Err != nil {
				relayExecutorError(c, chunk.Err)
				return
			}
			buf = append(buf, chunk.Payload...)
		}
		copyHeader(c.Writer.Header(), res.Header)
		c.Data(res.StatusCode, res.Header.Get("Content-Type"), buf)
		return
	}

	copyHeader(c.Writer.Header(), res.Header)
	c.Status(res.StatusCode)
	flusher, _ := c.Writer.(http.Flusher)
	write := func(b []byte) bool {
		if len(b) == 0 {
			return true
		}
		if _, werr := c.Writer.Write(b); werr != nil {
			log.Debugf("handlers: client write failed: %v", werr)
			return false
		}
		if flusher != nil {
			flusher.Flush()
		}
		return true
	}

	for {
		select {
		case <-reqCtx.Done():
			// Client went away; the executor tears the upstream read down.
			return
		case chunk, ok := <-res.Chunks:
			if !ok {
				write(filter.Flush())
				return
			}
			if chunk.Err != nil {
				// Headers are already on the wire; all we can do is stop.
				log.Warnf("handlers: upstream stream failed mid-flight: %v", chunk.Err)
				return
			}
			if !write(filter.ProcessChunk(chunk.Payload)) {
				return
			}
		}
	}
}

// relayExecutorError maps an executor failure onto the inbound response.
// Client-side cancellation produces no response at all.
func relayExecutorError(c *gin.Context, err error) {
	if errors.Is(err, context.Canceled) {
		c.Abort()
		return
	}
	writeError(c, executor.StatusCode(err), err.Error())
}

func copyHeader(dst, src http.Header) {
	for k, vs := range src {
		dst[k] = append([]string(nil), vs...)
	}
}
