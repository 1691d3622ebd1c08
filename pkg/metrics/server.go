package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rookeryhq/rookery/pkg/manager"
)

// Server exposes the observability endpoints on a dedicated listener:
// /metrics for Prometheus, /healthz for the component registry, /readyz for
// cluster readiness, /livez for a bare liveness probe.
type Server struct {
	manager    *manager.Manager
	mux        *http.ServeMux
	httpServer *http.Server
}

// NewServer creates the observability HTTP server
func NewServer(mgr *manager.Manager) *Server {
	mux := http.NewServeMux()
	s := &Server{
		manager: mgr,
		mux:     mux,
	}

	mux.Handle("/metrics", Handler())
	mux.HandleFunc("/healthz", HealthHandler())
	mux.HandleFunc("/readyz", s.readyHandler)
	mux.HandleFunc("/livez", LivenessHandler())

	return s
}

// Start serves until the listener fails or Stop is called. Run it in a
// goroutine.
func (s *Server) Start(addr string) error {
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Stop closes the listener
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Close()
}

// readyHandler reports whether this member can serve: a leader must be
// elected and the local store readable. The static component registry backs
// /healthz; this check asks the cluster directly.
func (s *Server) readyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	checks := make(map[string]string)
	ready := true
	var message string

	if s.manager != nil {
		if s.manager.IsLeader() {
			checks["raft"] = "leader"
		} else if leaderAddr := s.manager.LeaderAddr(); leaderAddr != "" {
			checks["raft"] = fmt.Sprintf("follower (leader: %s)", leaderAddr)
		} else {
			checks["raft"] = "no leader elected"
			ready = false
			message = "Waiting for leader election"
		}

		if _, err := s.manager.ListHosts(); err != nil {
			checks["storage"] = fmt.Sprintf("error: %v", err)
			ready = false
			if message == "" {
				message = "Storage not accessible"
			}
		} else {
			checks["storage"] = "ok"
		}
	} else {
		checks["raft"] = "not initialized"
		ready = false
		message = "Manager not initialized"
	}

	status := "ready"
	statusCode := http.StatusOK
	if !ready {
		status = "not ready"
		statusCode = http.StatusServiceUnavailable
	}

	response := HealthStatus{
		Status:     status,
		Timestamp:  time.Now(),
		Components: checks,
		Message:    message,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(response)
}

// GetHandler returns the HTTP handler for embedding in other servers
func (s *Server) GetHandler() http.Handler {
	return s.mux
}
