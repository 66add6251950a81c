// Package server exposes the live-feed captioning pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/bdougie/livefeed/internal/config"
	"github.com/bdougie/livefeed/internal/orchestrator"
)

const shutdownGrace = 10 * time.Second

// Describer is the part of the orchestrator the handlers need.
type Describer interface {
	Describe(ctx context.Context, blob orchestrator.MediaBlob) (string, error)
	DescribeVideo(ctx context.Context, blob orchestrator.MediaBlob, interval int) ([]orchestrator.FrameDescription, error)
}

// Server wraps the gin engine and its http.Server.
type Server struct {
	logger     *slog.Logger
	describer  Describer
	engine     *gin.Engine
	httpServer *http.Server
}

// New builds the router. The live-feed clients are browsers on arbitrary
// origins, so CORS stays permissive.
func New(logger *slog.Logger, describer Describer, cfg config.ServerConfig) *Server {
	gin.SetMode(gin.ReleaseMode)
	engine := gin.New()
	engine.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Requested-With"}
	engine.Use(cors.New(corsConfig))

	s := &Server{
		logger:    logger,
		describer: describer,
		engine:    engine,
		httpServer: &http.Server{
			Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
			Handler:      engine,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
	}

	engine.GET("/", s.handleRoot)
	engine.POST("/process-image", s.handleProcessImage)
	engine.POST("/process-video", s.handleProcessVideo)
	engine.POST("/speech", s.handleSpeech)

	return s
}

// Run serves until ctx is cancelled, then drains with a short grace period.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}
