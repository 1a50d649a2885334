// Package api exposes stored tools over HTTP: REST CRUD, a blocking run
// endpoint, a WebSocket streaming run endpoint, and run event feeds.
package api

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"

	"browtool/pkg/bus"
	"browtool/pkg/config"
	"browtool/pkg/logging"
	"browtool/pkg/storage"
	"browtool/pkg/toolset"
)

// Version is stamped via ldflags at build time.
var Version = "dev"

// Server is the browtool API server.
type Server struct {
	cfg        *config.Config
	store      *storage.Store
	toolset    *toolset.Toolset
	bus        bus.Bus
	logger     *logging.Logger
	runLimiter *rate.Limiter
	router     chi.Router
	httpServer *http.Server
}

// NewServer wires the API over the given collaborators. logger may be nil.
func NewServer(cfg *config.Config, store *storage.Store, ts *toolset.Toolset, eventBus bus.Bus, logger *logging.Logger) *Server {
	s := &Server{
		cfg:        cfg,
		store:      store,
		toolset:    ts,
		bus:        eventBus,
		logger:     logger,
		runLimiter: rate.NewLimiter(rate.Limit(cfg.Server.RunRate), cfg.Server.RunBurst),
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(s.corsMiddleware)
	r.Use(s.requestLogger)

	r.Get("/healthz", s.handleHealthz)

	if cfg.Server.PublicMetrics {
		r.Handle("/metrics", promhttp.Handler())
	} else {
		r.With(s.authMiddleware).Handle("/metrics", promhttp.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/tools", s.handleListTools)
		r.Post("/tools", s.handleCreateTool)
		r.Get("/tools/{name}", s.handleGetTool)
		r.Put("/tools/{name}", s.handleUpdateTool)
		r.Delete("/tools/{name}", s.handleDeleteTool)
		r.Post("/tools/{name}/run", s.handleRunTool)
		r.Get("/events", s.handleEventsSSE)
	})

	r.Route("/ws", func(r chi.Router) {
		r.Use(s.authMiddleware)
		r.Get("/run/{name}", s.handleRunStream)
		r.Get("/events", s.handleEventsWS)
	})

	s.router = r
	return s
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start listens on the configured bind address and blocks until ctx is
// cancelled, then shuts down gracefully with a 5s budget.
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.Server.Bind,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.httpServer.Shutdown(shutdownCtx)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": Version,
	})
}

// authMiddleware enforces the static bearer token when one is configured.
// WebSocket clients that cannot set headers may pass the token as a query
// parameter instead.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := s.cfg.Server.AuthToken
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		presented := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if presented == r.Header.Get("Authorization") {
			presented = r.URL.Query().Get("token")
		}
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			respondErrorMessage(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && s.originAllowed(origin) {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	for _, allowed := range s.cfg.Server.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(allowed, origin) {
			return true
		}
	}
	return false
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		if s.logger != nil {
			s.logger.Info(logging.CategoryAPI, "http_request", r.Method+" "+r.URL.Path, map[string]any{
				"status":      ww.Status(),
				"duration_ms": time.Since(start).Milliseconds(),
			})
		}
	})
}
