// Package api wires the gin engine: routes, middleware and the HTTP
// server lifecycle.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/jeffnash/cot-proxy/internal/api/handlers"
	"github.com/jeffnash/cot-proxy/internal/api/middleware"
	"github.com/jeffnash/cot-proxy/internal/config"
	"github.com/jeffnash/cot-proxy/internal/logging"
)

// Server is the inbound HTTP server.
type Server struct {
	store  *config.Store
	engine *gin.Engine
}

// New builds the server on top of the configuration store.
func New(store *config.Store) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(
		logging.GinLogrusRecovery(),
		logging.GinLogrusLogger(),
		middleware.Metrics(),
		middleware.Decompress(),
	)

	proxy := handlers.NewProxy(store)
	engine.POST("/v1/chat/completions", proxy.ChatCompletions)
	engine.GET("/health", proxy.Health)
	engine.GET("/metrics", middleware.PrometheusHandler())
	engine.NoRoute(proxy.Passthrough)

	return &Server{store: store, engine: engine}
}

// Handler exposes the HTTP handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is canceled, then drains in-flight requests.
func (s *Server) Run(ctx context.Context) error {
	cfg := s.store.Current()
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: s.engine,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Infof("api: listening on %s, proxying to %s", srv.Addr, cfg.TargetBaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	log.Info("api: shutting down")
	return srv.Shutdown(shutdownCtx)
}
