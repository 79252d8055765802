// Package server exposes the daemon's health, status and metrics
// endpoints over HTTP.
package server

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/t2linux-tools/t2guard/internal/guardian/sequencer"
	"github.com/t2linux-tools/t2guard/internal/pkg/metrics"
	"github.com/t2linux-tools/t2guard/pkg/log"
	"github.com/t2linux-tools/t2guard/pkg/options"
)

// Status is the payload served on /statusz.
type Status struct {
	Phase                    string             `json:"phase"`
	CooldownWindowSeconds    float64            `json:"cooldownWindowSeconds"`
	CooldownRemainingSeconds float64            `json:"cooldownRemainingSeconds"`
	LastRecovery             *time.Time         `json:"lastRecovery,omitempty"`
	LastAttempt              *sequencer.Attempt `json:"lastAttempt,omitempty"`
}

// Provider supplies the current daemon status.
type Provider interface {
	Status() Status
}

// Server serves /healthz, /readyz, /statusz and /metrics.
type Server struct {
	opts     *options.HttpOptions
	provider Provider
	logger   log.Logger
}

func New(opts *options.HttpOptions, provider Provider) *Server {
	return &Server{
		opts:     opts,
		provider: provider,
		logger:   log.WithName("server"),
	}
}

// Start serves until the context is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	router := mux.NewRouter()
	router.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/readyz", s.handleHealthz).Methods(http.MethodGet)
	router.HandleFunc("/statusz", s.handleStatusz).Methods(http.MethodGet)
	router.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	srv := &http.Server{
		Addr:         s.opts.Addr,
		Handler:      router,
		ReadTimeout:  s.opts.Timeout,
		WriteTimeout: s.opts.Timeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Status server listening", "addr", s.opts.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleStatusz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(s.provider.Status()); err != nil {
		s.logger.Error(err, "Failed to encode status")
	}
}
