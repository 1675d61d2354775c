package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"softdex/internal/api"
	"softdex/internal/config"
	"softdex/internal/logging"
	"softdex/internal/query"
	"softdex/internal/scan"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, nil
	}
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logger,
		daemon: d,
	}
	srv.server = &http.Server{
		Handler:           srv.routes(cfg.Paths.APIToken),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Inline scans are written after the pass completes.
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) routes(token string) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/software", s.handleSoftware)
	mux.HandleFunc("/api/scan", authMiddleware(token, s.handleScan))
	if m := s.daemon.metrics; m != nil {
		mux.Handle("/metrics", m.Handler())
	}
	return mux
}

func (s *apiServer) listen() (string, error) {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return "", fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener
	s.log().Info("api server listening", logging.String("address", listener.Addr().String()))
	return listener.Addr().String(), nil
}

// serve blocks until ctx is cancelled or the server fails.
func (s *apiServer) serve(ctx context.Context) error {
	errs := make(chan error, 1)
	go func() {
		errs <- s.server.Serve(s.listener)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
		<-errs
		return nil
	case err := <-errs:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("api server: %w", err)
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleSoftware(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.querier == nil {
		s.writeJSON(w, http.StatusOK, api.SoftwareListResponse{})
		return
	}
	values := r.URL.Query()
	filter := query.Filter{
		Category: strings.TrimSpace(values.Get("category")),
		Source:   strings.TrimSpace(values.Get("source")),
	}
	views, err := s.daemon.querier.Query(r.Context(), filter)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.SoftwareListResponse{Items: views, Count: len(views)})
}

func (s *apiServer) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	async := r.URL.Query().Get("async")
	if async == "1" || strings.EqualFold(async, "true") {
		s.daemon.RequestScan("api")
		s.writeJSON(w, http.StatusAccepted, api.ScanResponse{Queued: true})
		return
	}

	summary, err := s.daemon.ScanNow(r.Context())
	switch {
	case errors.Is(err, scan.ErrScanInProgress):
		s.writeError(w, http.StatusConflict, err.Error())
	case err != nil && summary.CorrelationID == "":
		s.writeError(w, http.StatusInternalServerError, err.Error())
	case err != nil:
		// The pass ran but some writes failed.
		s.writeJSON(w, http.StatusOK, api.ScanResponse{Summary: &summary, Error: err.Error()})
	default:
		s.writeJSON(w, http.StatusOK, api.ScanResponse{Summary: &summary})
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.log().Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}

func (s *apiServer) log() *slog.Logger {
	if s.logger != nil {
		return s.logger.With(logging.String("component", "api-server"))
	}
	return logging.NewNop()
}
