package ctlapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

type stubProvider struct{ status Status }

func (s stubProvider) Status() Status { return s.status }

// buildRouter mirrors NewServer's route registration so the handlers can be
// exercised against an httptest server without binding a real port.
func buildRouter(s *Server) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	return r
}

func TestHandleStatusReturnsProviderSnapshot(t *testing.T) {
	want := Status{HeadBlockNum: 42, LastIrreversible: 40, PeerCount: 3, Stage: "in_sync"}
	s := &Server{provider: stubProvider{status: want}, log: logrus.NewEntry(logrus.New())}

	srv := httptest.NewServer(buildRouter(s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/status")
	if err != nil {
		t.Fatalf("GET /status: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var got Status
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if got != want {
		t.Fatalf("expected %+v, got %+v", want, got)
	}
}

func TestMetricsEndpointServes(t *testing.T) {
	s := &Server{provider: stubProvider{}, log: logrus.NewEntry(logrus.New())}
	srv := httptest.NewServer(buildRouter(s))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
