package ops

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fedeegea/baggage-backend/pkg/config"
	"github.com/fedeegea/baggage-backend/pkg/logger"
)

const (
	readinessTimeout = 5 * time.Second
	shutdownTimeout  = 10 * time.Second
)

// Dependency is one pingable resource reported on /healthz.
type Dependency struct {
	Name string
	Ping func(context.Context) error
}

// Server is the per-binary ops listener: health checks and Prometheus
// metrics, nothing domain-facing.
type Server struct {
	cfg  config.OpsConfig
	logg *logger.Logger
	srv  *http.Server
}

// NewServer builds the ops listener over the given metric registry and
// dependency set.
func NewServer(cfg config.OpsConfig, logg *logger.Logger, registry *prometheus.Registry, deps []Dependency) (*Server, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}

	r := chi.NewRouter()
	r.Get("/healthz", healthz(logg, deps))
	if registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	return &Server{
		cfg:  cfg,
		logg: logg,
		srv: &http.Server{
			Addr:    ":" + cfg.Port,
			Handler: r,
		},
	}, nil
}

// Run serves until the context is canceled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	s.logg.Info(s.logg.WithField(ctx, "addr", s.srv.Addr), "ops listener started")

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthz(logg *logger.Logger, deps []Dependency) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()

		response := healthResponse{Status: "ok", Checks: map[string]string{}}
		status := http.StatusOK
		for _, dep := range deps {
			if dep.Ping == nil {
				continue
			}
			if err := dep.Ping(ctx); err != nil {
				logg.Warn(logg.WithFields(r.Context(), map[string]any{
					"dependency": dep.Name,
					"error":      err.Error(),
				}), "health check failed")
				response.Checks[dep.Name] = err.Error()
				response.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			response.Checks[dep.Name] = "ok"
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(response)
	}
}
