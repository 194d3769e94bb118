package cli

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// healthResponse is the /healthz body.
type healthResponse struct {
	Status  string    `json:"status"`
	Version string    `json:"version"`
	Started time.Time `json:"started"`
	Uptime  string    `json:"uptime"`
	Command string    `json:"command"`
}

// newMetricsRouter serves /metrics from reg and /healthz.
func newMetricsRouter(reg *prometheus.Registry, command string, started time.Time) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(healthResponse{
			Status:  "ok",
			Version: Version,
			Started: started,
			Uptime:  time.Since(started).Round(time.Second).String(),
			Command: command,
		})
	})
	return r
}

// serveMetrics starts the metrics listener when MetricsAddr is set and
// returns a function that shuts it down. Listen failures are logged and
// the command continues without metrics.
func (a *App) serveMetrics(ctx context.Context, command string) func() {
	if a.cfg.MetricsAddr == "" || a.registry == nil {
		return func() {}
	}
	ln, err := net.Listen("tcp", a.cfg.MetricsAddr)
	if err != nil {
		a.logger.Warn("metrics listener disabled", slog.String("addr", a.cfg.MetricsAddr), slog.Any("error", err))
		return func() {}
	}
	srv := &http.Server{
		Handler:           newMetricsRouter(a.registry, command, a.now()),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("metrics server", slog.Any("error", err))
		}
	}()
	a.logger.Info("serving metrics", slog.String("addr", ln.Addr().String()))

	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("metrics shutdown", slog.Any("error", err))
		}
	}
}
