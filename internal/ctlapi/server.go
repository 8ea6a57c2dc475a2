// Package ctlapi exposes a narrow local HTTP control surface for a running
// node: status introspection and Prometheus metrics. It never carries
// chain data itself - just enough to let an operator or monitoring system
// see what the node is doing.
package ctlapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Status is the snapshot returned by GET /status.
type Status struct {
	HeadBlockNum        uint32 `json:"head_block_num"`
	LastIrreversible    uint32 `json:"last_irreversible"`
	FirstAvailableBlock uint32 `json:"first_available_block"`
	Stage               string `json:"stage"`
	PeerCount           int    `json:"peer_count"`
	PendingBlockFetches int    `json:"pending_block_fetches"`
}

// StatusProvider is implemented by the node wiring and supplies the live
// values Status reports.
type StatusProvider interface {
	Status() Status
}

// Server is the control-channel HTTP listener.
type Server struct {
	http     *http.Server
	log      *logrus.Entry
	provider StatusProvider
}

// NewServer builds a Server bound to addr; call Start to begin serving.
func NewServer(addr string, provider StatusProvider, log *logrus.Entry) *Server {
	s := &Server{provider: provider, log: log}

	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	s.http = &http.Server{Addr: addr, Handler: r}
	return s
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.provider.Status()
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(st); err != nil {
		s.log.WithError(err).Warn("encode status response failed")
	}
}

// Start begins serving in a background goroutine. Errors other than a
// clean shutdown are logged, not returned, since the caller has already
// moved on by the time Start returns.
func (s *Server) Start() {
	go func() {
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.WithError(err).Error("control api server stopped unexpectedly")
		}
	}()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
