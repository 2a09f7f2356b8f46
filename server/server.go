package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/sambeau/cmarkup/pkg/content"
	"github.com/sambeau/cmarkup/pkg/logging"
	"github.com/sambeau/cmarkup/server/config"
)

// Server is the cmarkup render server.
type Server struct {
	config  *config.Config
	engine  *Engine
	log     zerolog.Logger
	root    zerolog.Logger
	router  *gin.Engine
	server  *http.Server
	pages   *pageHosts
	limiter *rateLimiter
	watcher *Watcher
	maxBody int64
}

// New creates a server around engine. The engine is owned by the caller.
func New(cfg *config.Config, engine *Engine, log zerolog.Logger) (*Server, error) {
	maxBody, err := config.ParseSize(cfg.Render.MaxBodySize)
	if err != nil {
		return nil, fmt.Errorf("render.max_body_size: %w", err)
	}
	format, err := content.ParseFormat(cfg.Content.Format)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:  cfg,
		engine:  engine,
		log:     logging.Component(log, "server"),
		root:    log,
		maxBody: maxBody,
	}
	s.pages = newPageHosts(content.NewDir(cfg.Content.Dir, format), engine, logging.Component(log, "pages"))
	if cfg.Render.RateLimit > 0 {
		s.limiter = newRateLimiter(cfg.Render.RateLimit, time.Minute)
	}

	if err := s.setupRoutes(); err != nil {
		return nil, fmt.Errorf("setting up routes: %w", err)
	}
	return s, nil
}

func (s *Server) setupRoutes() error {
	r := gin.New()
	if err := configureProxy(r, s.config.Server.Proxy); err != nil {
		return err
	}

	r.Use(requestIDMiddleware())
	if !s.config.Logging.Quiet {
		r.Use(requestLogger(logging.Component(s.root, "http")))
	}
	r.Use(gin.Recovery())
	r.Use(securityHeaders(s.config.Security, s.config.Server.Dev))
	r.Use(corsMiddleware(s.config.CORS))

	r.GET("/healthz", s.handleHealth)

	v1 := r.Group("/api/v1")
	v1.POST("/render", s.limiter.middleware(), s.handleRender)
	v1.DELETE("/hosts/:host", s.handleReleaseHost)
	v1.GET("/markup/help", s.handleHelp)

	r.GET("/pages", s.handlePageList)
	r.GET("/pages/:name", s.handlePage)

	r.NoRoute(func(c *gin.Context) {
		abortWithError(c, http.StatusNotFound, "not_found", "no route for "+c.Request.URL.Path)
	})

	s.router = r
	return nil
}

// Handler returns the server's root handler with compression applied.
func (s *Server) Handler() http.Handler {
	return newCompressionHandler(s.router, s.config.Compression)
}

// Run starts the server and blocks until the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	addr := s.listenAddr()

	if s.config.Content.Watch {
		if err := s.startWatcher(ctx); err != nil {
			s.log.Warn().Err(err).Msg("page watcher not started")
		}
	}

	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
		BaseContext:       func(_ net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", "http://"+addr).Bool("dev", s.config.Server.Dev).Msg("starting cmarkup")
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.log.Info().Msg("shutting down gracefully")
		timeout := s.config.Server.ShutdownTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		err := s.server.Shutdown(shutdownCtx)
		if s.watcher != nil {
			s.watcher.Close()
		}
		return err
	case err := <-errCh:
		if s.watcher != nil {
			s.watcher.Close()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) startWatcher(ctx context.Context) error {
	if info, err := os.Stat(s.config.Content.Dir); err != nil || !info.IsDir() {
		return fmt.Errorf("content dir %s is not a directory", s.config.Content.Dir)
	}
	w, err := NewWatcher(s.pages, logging.Component(s.root, "watch"))
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		w.Close()
		return err
	}
	s.watcher = w
	return nil
}

// listenAddr returns the address to listen on based on configuration.
func (s *Server) listenAddr() string {
	host := s.config.Server.Host
	port := s.config.Server.Port
	if s.config.Server.Dev && host == "" {
		host = "localhost"
	}
	return fmt.Sprintf("%s:%d", host, port)
}
