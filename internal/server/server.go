// Package server is the HTTP front end: it serializes and renders MDX over a
// JSON API, serves pages from the content directory, and pushes reloads to
// browsers when content changes.
package server

import (
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/conneroisu/burrow/internal/build"
	"github.com/conneroisu/burrow/internal/cache"
	"github.com/conneroisu/burrow/internal/config"
	"github.com/conneroisu/burrow/internal/hydrate"
	"github.com/conneroisu/burrow/internal/logging"
	"github.com/conneroisu/burrow/internal/mdx"
	"github.com/conneroisu/burrow/internal/middleware"
	"github.com/conneroisu/burrow/internal/watcher"
	"github.com/conneroisu/burrow/internal/websocket"
)

// Server serves compiled MDX.
type Server struct {
	cfg      *config.Config
	svc      *mdx.Service
	hydrator *hydrate.Hydrator
	hub      *websocket.Manager
	logger   logging.Logger
	client   *http.Client

	// pages maps a content page name to the cache key of its last render,
	// so a change can evict the stale artifact.
	pagesMutex sync.Mutex
	pages      map[string]cache.Key

	serverMutex sync.Mutex
	httpServer  *http.Server
	watcher     *watcher.FileWatcher
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithHTTPClient sets the client used to fetch remote sources.
func WithHTTPClient(client *http.Client) Option {
	return func(s *Server) {
		if client != nil {
			s.client = client
		}
	}
}

// New creates a server. It does not listen until Start.
func New(cfg *config.Config, svc *mdx.Service, hydrator *hydrate.Hydrator, opts ...Option) (*Server, error) {
	if cfg == nil {
		return nil, stderrors.New("server: config is required")
	}
	if svc == nil {
		return nil, stderrors.New("server: mdx service is required")
	}
	if hydrator == nil {
		hydrator = hydrate.New()
	}

	s := &Server{
		cfg:      cfg,
		svc:      svc,
		hydrator: hydrator,
		logger:   logging.NewNop(),
		client:   &http.Client{},
		pages:    make(map[string]cache.Key),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("server")
	s.hub = websocket.NewManager(
		websocket.OriginValidatorFunc(s.isAllowedOrigin),
		websocket.WithLogger(s.logger),
	)
	return s, nil
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ws", s.hub.HandleWebSocket)
	mux.HandleFunc("GET /page/{name...}", s.handlePage)
	mux.HandleFunc("GET /render", s.handleRemote)
	mux.HandleFunc("POST /api/serialize", s.handleSerialize)
	mux.HandleFunc("POST /api/render", s.handleRender)
	mux.HandleFunc("GET /api/cache", s.handleCacheStats)
	mux.HandleFunc("DELETE /api/cache", s.handleCacheClear)

	return middleware.NewChain(middleware.Dependencies{
		Logger:  s.logger,
		Origins: websocket.OriginValidatorFunc(s.isAllowedOrigin),
	}).Apply(mux)
}

// Hub returns the live-reload manager.
func (s *Server) Hub() *websocket.Manager {
	return s.hub
}

// Start loads the compiler backend, watches content when live reload is on,
// and serves until ctx is done or Shutdown is called. A backend that fails
// to load is retried on the first request that needs it.
func (s *Server) Start(ctx context.Context) error {
	if err := s.svc.Initialize(ctx); err != nil {
		s.logger.Warn(ctx, err, "Compiler backend failed to load; will retry on demand")
	}

	if s.cfg.Server.LiveReload {
		if err := s.WatchContent(ctx); err != nil {
			s.logger.Warn(ctx, err, "Content watching disabled", "dir", s.cfg.Server.ContentDir)
		}
	}

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Address(),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server := s.httpServer
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Shutdown(shutdownCtx); err != nil {
			s.logger.Warn(shutdownCtx, err, "Shutdown incomplete")
		}
	}()

	s.logger.Info(ctx, "Listening", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// WatchContent watches the content directory and, for every changed page,
// drops its cached artifact and tells browsers to reload it.
func (s *Server) WatchContent(ctx context.Context) error {
	fw, err := watcher.NewFileWatcher(s.cfg.Server.Debounce, s.logger)
	if err != nil {
		return err
	}
	fw.AddFilter(watcher.ContentFilter)
	fw.AddFilter(watcher.NoHiddenFilter)
	fw.AddHandler(s.handleContentChanges)

	if err := fw.AddRecursive(s.cfg.Server.ContentDir); err != nil {
		_ = fw.Stop()
		return fmt.Errorf("watch %s: %w", s.cfg.Server.ContentDir, err)
	}

	s.serverMutex.Lock()
	if s.watcher != nil {
		_ = s.watcher.Stop()
	}
	s.watcher = fw
	s.serverMutex.Unlock()

	fw.Start(ctx)
	return nil
}

func (s *Server) handleContentChanges(ctx context.Context, events []watcher.ChangeEvent) error {
	for _, event := range events {
		name, ok := s.pageName(event.Path)
		if !ok {
			continue
		}
		if s.forget(name) {
			s.logger.Debug(ctx, "Evicted stale page", "page", name, "event", event.Type.String())
		}
		s.hub.Reload(name)
	}
	return nil
}

func (s *Server) pageName(path string) (string, bool) {
	return build.PageName(s.cfg.Server.ContentDir, path)
}

func (s *Server) remember(name string, key cache.Key) {
	s.pagesMutex.Lock()
	defer s.pagesMutex.Unlock()
	s.pages[name] = key
}

// forget evicts the cached artifact last rendered for name.
func (s *Server) forget(name string) bool {
	s.pagesMutex.Lock()
	key, ok := s.pages[name]
	delete(s.pages, name)
	s.pagesMutex.Unlock()

	if !ok {
		return false
	}
	return s.svc.Cache().Delete(key)
}

// Shutdown stops the HTTP server, the watcher and the live-reload hub.
func (s *Server) Shutdown(ctx context.Context) error {
	s.serverMutex.Lock()
	server := s.httpServer
	fw := s.watcher
	s.watcher = nil
	s.serverMutex.Unlock()

	var errs []error
	if fw != nil {
		if err := fw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop watcher: %w", err))
		}
	}
	if err := s.hub.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("stop websocket hub: %w", err))
	}
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("stop http server: %w", err))
		}
	}
	return stderrors.Join(errs...)
}
