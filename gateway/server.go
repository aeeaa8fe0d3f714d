package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/c360/streamagent/errors"
	"github.com/c360/streamagent/health"
	"github.com/c360/streamagent/metric"
	"github.com/c360/streamagent/query"
)

// Deps holds the server's collaborators.
type Deps struct {
	Engine          *query.Engine
	Monitor         *health.Monitor
	MetricsRegistry *metric.MetricsRegistry
	Logger          *slog.Logger

	// NewID generates ids for assets posted without one; defaults to uuid.
	NewID func() string
}

// Server is the HTTP front of the query engine.
type Server struct {
	cfg     Config
	engine  *query.Engine
	monitor *health.Monitor
	metrics *metric.Metrics
	logger  *slog.Logger
	newID   func() string

	registry *metric.MetricsRegistry
	router   chi.Router
}

// NewServer validates cfg and builds the router.
func NewServer(cfg Config, deps Deps) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, errors.WrapInvalid(err, "Server", "NewServer", "config validation")
	}
	if deps.Engine == nil {
		return nil, errors.WrapFatal(errors.ErrMissingConfig, "Server", "NewServer",
			"query engine is required")
	}

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	newID := deps.NewID
	if newID == nil {
		newID = uuid.NewString
	}

	s := &Server{
		cfg:      cfg,
		engine:   deps.Engine,
		monitor:  deps.Monitor,
		logger:   logger.With("component", "gateway"),
		newID:    newID,
		registry: deps.MetricsRegistry,
	}
	if deps.MetricsRegistry != nil {
		s.metrics = deps.MetricsRegistry.CoreMetrics()
	}
	s.router = s.routes()
	return s, nil
}

// Name identifies the server in health reports.
func (s *Server) Name() string { return "gateway" }

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.cfg.EnableCORS {
		r.Use(s.cors)
	}

	r.Get("/health", s.handleHealth)
	if s.registry != nil {
		r.Handle("/metrics", s.registry.Handler())
	}

	r.Get("/", s.handleProbe)
	r.Get("/probe", s.handleProbe)
	r.Get("/current", s.handleCurrent)
	r.Get("/sample", s.handleSample)

	r.Get("/assets", s.handleAssets)
	r.Get("/assets/{ids}", s.handleAssets)
	r.Get("/asset/{id}", s.handleAssets)

	r.Group(func(r chi.Router) {
		r.Use(s.requirePut)
		r.Post("/asset", s.handlePostAsset)
		r.Post("/asset/{id}", s.handlePostAsset)
		r.Put("/asset/{id}", s.handlePutAsset)
		r.Delete("/asset/{id}", s.handleDeleteAsset)
		r.Delete("/assets", s.handleDeleteAssets)
	})

	r.Route("/{device}", func(r chi.Router) {
		r.Get("/", s.handleProbe)
		r.Get("/probe", s.handleProbe)
		r.Get("/current", s.handleCurrent)
		r.Get("/sample", s.handleSample)
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Address(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP gateway listening", "address", srv.Addr)
		errCh <- srv.ListenAndServe()
	}()
	s.reportHealth(true, "listening on "+srv.Addr)

	select {
	case err := <-errCh:
		s.reportHealth(false, "server stopped")
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return errors.WrapFatal(err, "Server", "Run", "listen")
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	s.reportHealth(false, "shut down")
	if err != nil {
		return errors.WrapTransient(err, "Server", "Run", "graceful shutdown")
	}
	s.logger.Info("HTTP gateway stopped")
	return nil
}

func (s *Server) reportHealth(healthy bool, message string) {
	if s.monitor == nil {
		return
	}
	if healthy {
		s.monitor.UpdateHealthy(s.Name(), message)
	} else {
		s.monitor.UpdateUnhealthy(s.Name(), message)
	}
}

// requestLogger logs each request and records its latency by route pattern.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		elapsed := time.Since(start)

		route := r.URL.Path
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			route = rctx.RoutePattern()
		}
		if s.metrics != nil {
			s.metrics.RecordRequest(route, elapsed)
		}
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"route", route,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", elapsed,
			"request_id", middleware.GetReqID(r.Context()))
	})
}

// cors applies CORS headers for allowed origins.
func (s *Server) cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		allowed := false
		for _, o := range s.cfg.CORSOrigins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}
		if allowed {
			if origin != "" {
				w.Header().Set("Access-Control-Allow-Origin", origin)
			} else {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
			w.Header().Set("Access-Control-Max-Age", "3600")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// requirePut rejects asset mutations unless allow_put is set.
func (s *Server) requirePut(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !s.cfg.AllowPut {
			s.writeError(w, errors.NewRequestError(errors.CodeUnsupported,
				"%s is not allowed, asset updates are disabled", r.Method))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// statusFor maps a request error code to an HTTP status.
func statusFor(code errors.Code) int {
	switch code {
	case errors.CodeOutOfRange, errors.CodeInvalidRequest:
		return http.StatusBadRequest
	case errors.CodeNoDevice, errors.CodeAssetNotFound:
		return http.StatusNotFound
	case errors.CodeDuplicateAsset:
		return http.StatusConflict
	case errors.CodeUnsupported:
		return http.StatusMethodNotAllowed
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err as an error document.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	s.writeJSON(w, statusFor(errors.CodeOf(err)), s.errorDocument(err))
}

// errorDocument records err and builds its rendering. Internal errors are
// logged and reported without detail.
func (s *Server) errorDocument(err error) errorDoc {
	code := errors.CodeOf(err)
	message := errors.MessageOf(err)
	if code == errors.CodeInternal {
		s.logger.Error("Request failed", "error", err)
		message = "internal server error"
		if s.metrics != nil {
			s.metrics.RecordError("gateway", "internal")
		}
	}
	if s.metrics != nil {
		s.metrics.RecordRequestError(string(code))
	}
	return errorDoc{Errors: []errorEntry{{ErrorCode: string(code), Message: message}}}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		s.logger.Error("Failed to encode response", "error", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		s.logger.Debug("Failed to write response", "error", err)
	}
}
