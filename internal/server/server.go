// Package server exposes tokenization, comparison and presets over a JSON
// HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/born-ml/tokcompare/internal/compare"
	"github.com/born-ml/tokcompare/internal/preset"
	"github.com/born-ml/tokcompare/internal/tokenizer"
)

// maxCachedAdapters bounds the adapters kept for /api/tokenize.
const maxCachedAdapters = 64

// Options configures a Server.
type Options struct {
	// TokenizerOptions are passed to tokenizer.New for every adapter.
	TokenizerOptions []tokenizer.Option

	// Preloaded lists the names reachable as "sp:<name>".
	Preloaded []string

	// Timeout bounds every Tokenize call.
	Timeout time.Duration

	Presets *preset.Store
	Logger  zerolog.Logger
}

// Server holds the HTTP handlers and their shared state.
type Server struct {
	opts       Options
	comparator *compare.Comparator
	router     *gin.Engine

	mu       sync.Mutex
	adapters map[string]tokenizer.Adapter
}

// New builds a Server and its routes.
func New(opts Options) *Server {
	if opts.Timeout <= 0 {
		opts.Timeout = compare.DefaultTimeout
	}
	if opts.Presets == nil {
		opts.Presets = preset.NewStore("")
	}

	s := &Server{
		opts: opts,
		comparator: compare.New(
			compare.WithTimeout(opts.Timeout),
			compare.WithTokenizerOptions(opts.TokenizerOptions...),
		),
		adapters: make(map[string]tokenizer.Adapter),
	}
	s.router = s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.opts.Logger))
	r.MaxMultipartMemory = maxUploadSize

	api := r.Group("/api")
	api.GET("/tokenizers", s.TokenizersHandler)
	api.POST("/tokenize", s.TokenizeHandler)
	api.POST("/custom/tokenize", s.CustomTokenizeHandler)
	api.POST("/compare", s.CompareHandler)
	api.GET("/presets", s.ListPresetsHandler)
	api.POST("/presets", s.AddPresetHandler)
	api.PUT("/presets", s.ImportPresetsHandler)
	api.GET("/presets/export", s.ExportPresetsHandler)

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	return r
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.opts.Logger.Info().Str("addr", ln.Addr().String()).Msg("listening")

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shut down: %w", err)
		}
		return nil
	}
}

// ListenAndServe listens on addr and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// adapter returns a cached adapter for a built-in identifier.
func (s *Server) adapter(identifier string) (tokenizer.Adapter, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a, ok := s.adapters[identifier]; ok {
		return a, nil
	}

	a, err := tokenizer.New(identifier, nil, s.opts.TokenizerOptions...)
	if err != nil {
		return nil, err
	}
	if len(s.adapters) >= maxCachedAdapters {
		clear(s.adapters)
	}
	s.adapters[identifier] = a
	return a, nil
}

func requestLogger(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := logger.Debug()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = logger.Error()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
