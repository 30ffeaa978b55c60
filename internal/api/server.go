// Package api exposes the dashboard HTTP surface: video inventory, analysis
// documents, range-capable playback, and frame thumbnails.
package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/framesift/framesift/internal/playback"
	"github.com/framesift/framesift/internal/store"
)

// SimilaritySearch finds frames of a video whose descriptions are closest
// to a free-text query. Backed by the Postgres mirror when enabled.
type SimilaritySearch interface {
	SimilarFrames(ctx context.Context, video, query string, limit int) ([]string, error)
}

type ServerConfig struct {
	Bind     string
	VideoDir string
	Store    *store.Store
	Streamer *playback.Streamer
	// Similarity is optional; nil disables the /api/similar endpoint.
	Similarity SimilaritySearch
	Logger     *slog.Logger
	StartTime  time.Time
	Version    string
}

type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Streamer == nil {
		cfg.Streamer = playback.NewStreamer(cfg.Logger)
	}
	if cfg.StartTime.IsZero() {
		cfg.StartTime = time.Now()
	}

	return &Server{
		httpServer: &http.Server{
			Addr:        cfg.Bind,
			Handler:     NewRouter(cfg),
			ReadTimeout: 15 * time.Second,
			// Streaming a long video must not hit a write deadline.
			WriteTimeout: 0,
			IdleTimeout:  60 * time.Second,
		},
		logger: cfg.Logger,
	}
}

func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
	err := s.httpServer.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) Addr() string {
	return s.httpServer.Addr
}
