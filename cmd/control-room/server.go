package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Martiniu70/control-room-sub000/control"
	"github.com/Martiniu70/control-room-sub000/health"
	"github.com/Martiniu70/control-room-sub000/ingest"
	"github.com/Martiniu70/control-room-sub000/metric"
)

// obsServer is the observability HTTP server: Prometheus metrics, health
// checks, and read-only session snapshots.
type obsServer struct {
	srv     *http.Server
	session *ingest.Session
	control *control.Client
	logger  *slog.Logger
}

func newObsServer(
	addr string,
	session *ingest.Session,
	controlClient *control.Client,
	registry *metric.MetricsRegistry,
	logger *slog.Logger,
) *obsServer {
	s := &obsServer{
		session: session,
		control: controlClient,
		logger:  logger.With("component", "obs-server"),
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", registry.Handler())
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/api/anomalies", s.handleAnomalies)
	mux.HandleFunc("/api/connection", s.handleConnection)
	mux.HandleFunc("/api/control/status", s.handleControlStatus)

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Run serves until the context is cancelled, then shuts down gracefully.
func (s *obsServer) Run(ctx context.Context, shutdownTimeout time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("observability server listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

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

// handleHealth reports the session health with the stream as a sub-status.
// Unhealthy sessions answer 503 so orchestrators can act on it.
func (s *obsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := health.FromComponentHealth("session", s.session.Health()).
		WithSubStatus(health.FromComponentHealth("stream", s.session.StreamHealth()))

	code := http.StatusOK
	if !status.Healthy {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, status)
}

func (s *obsServer) handleAnomalies(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"anomalies": s.session.Anomalies(),
	})
}

func (s *obsServer) handleConnection(w http.ResponseWriter, r *http.Request) {
	state := s.session.ConnectionState()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"phase":        state.Phase.String(),
		"connected":    state.Connected,
		"reconnecting": state.Reconnecting,
		"attempts":     state.Attempts,
		"error":        state.Error,
		"heartbeat":    s.session.Heartbeat(),
	})
}

func (s *obsServer) handleControlStatus(w http.ResponseWriter, r *http.Request) {
	snapshot, lastErr := s.control.Snapshot()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"components": snapshot.Components,
		"last_error": lastErr,
		"last_fetch": s.control.LastFetch(),
	})
}

func (s *obsServer) writeJSON(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("write response", "error", err)
	}
}
