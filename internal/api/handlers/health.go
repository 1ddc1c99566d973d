package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// healthProbeTimeout bounds the upstream reachability check independently
// of the configured request timeout.
const healthProbeTimeout = 5 * time.Second

// Health handles GET /health. The upstream counts as healthy when it
// answers at all; its status code is irrelevant, only reachability is
// probed.
func (p *Proxy) Health(c *gin.Context) {
	up, cfg, err := p.upstream()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthProbeTimeout)
	defer cancel()

	if _, err := up.Do(ctx, http.MethodGet, "/", "", nil, nil); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":     "unhealthy",
			"target_url": cfg.TargetBaseURL,
			"error":      err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":     "healthy",
		"target_url": cfg.TargetBaseURL,
	})
}
