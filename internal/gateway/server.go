package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MEKXH/breakbot/internal/config"
	"github.com/MEKXH/breakbot/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Deps feed the operational endpoints.
type Deps struct {
	// Gatherer backs /metrics. Nil disables the endpoint.
	Gatherer prometheus.Gatherer
	// ActiveSessions reports live intake sessions on /health.
	ActiveSessions func() int
}

type Server struct {
	cfg        config.GatewayConfig
	httpServer *http.Server
}

func New(cfg config.GatewayConfig, deps Deps) *Server {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = "127.0.0.1"
	}
	port := cfg.Port
	if port <= 0 {
		port = 18791
	}

	cfg.Host = host
	cfg.Port = port
	s := &Server{cfg: cfg}
	s.httpServer = &http.Server{
		Addr:              s.Addr(),
		Handler:           NewHandler(deps),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

func (s *Server) Addr() string {
	return fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	slog.Info("gateway listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, getRequestID(r), http.StatusNotFound, "not_found", "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, getRequestID(r), http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		body := map[string]any{
			"status":     "ok",
			"request_id": getRequestID(r),
		}
		if deps.ActiveSessions != nil {
			body["active_sessions"] = deps.ActiveSessions()
		}
		writeJSON(w, http.StatusOK, body)
	})
	r.Get("/version", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"version":    version.Version,
			"request_id": getRequestID(r),
		})
	})
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(deps.Gatherer, promhttp.HandlerOpts{}))
	}
	return r
}

func getRequestID(r *http.Request) string {
	if rid := strings.TrimSpace(middleware.GetReqID(r.Context())); rid != "" {
		return rid
	}
	if rid := strings.TrimSpace(r.Header.Get("X-Request-ID")); rid != "" {
		return rid
	}
	return uuid.NewString()
}

func writeError(w http.ResponseWriter, requestID string, status int, code, message string) {
	writeJSON(w, status, map[string]any{
		"code":       code,
		"message":    message,
		"request_id": requestID,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
