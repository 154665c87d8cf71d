// Package api serves the monitor's HTTP status surface and Prometheus
// metrics.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/alertcast/alertcast/internal/arbiter"
	"github.com/alertcast/alertcast/internal/feed"
)

// TierSource provides the arbiter's current tier view.
type TierSource interface {
	Snapshot() map[feed.Tier]arbiter.TierStatus
}

// DeviceCounter reports the size of the device registry.
type DeviceCounter interface {
	Count() int
}

// StatusResponse is the payload of GET /api/v1/status.
type StatusResponse struct {
	Tiers   map[string]arbiter.TierStatus `json:"tiers"`
	Devices int                           `json:"devices"`
	Feed    feed.HealthStatus             `json:"feed"`
}

// Server is the monitor's HTTP endpoint.
type Server struct {
	log     *zap.SugaredLogger
	srv     *http.Server
	tiers   TierSource
	devices DeviceCounter
	health  *feed.Health
}

// NewServer builds the router and binds it to addr.
func NewServer(
	log *zap.SugaredLogger,
	addr string,
	tiers TierSource,
	devices DeviceCounter,
	health *feed.Health,
	gatherer prometheus.Gatherer,
) *Server {
	s := &Server{
		log:     log,
		tiers:   tiers,
		devices: devices,
		health:  health,
	}

	router := mux.NewRouter()

	apiRouter := router.PathPrefix("/api/v1").Subrouter()
	apiRouter.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.srv = &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s
}

// Start serves until Shutdown is called. Runs on its own goroutine.
func (s *Server) Start() {
	go func() {
		s.log.Infow("HTTP server listening", "address", s.srv.Addr)

		if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.log.Errorw("HTTP server failed", "error", err.Error())
		}
	}()
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	snapshot := s.tiers.Snapshot()

	tiers := make(map[string]arbiter.TierStatus, len(snapshot))
	for tier, status := range snapshot {
		tiers[tier.Slug()] = status
	}

	response := StatusResponse{
		Tiers:   tiers,
		Devices: s.devices.Count(),
		Feed:    s.health.Snapshot(),
	}

	w.Header().Set("Content-Type", "application/json")

	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.log.Errorw("Failed to encode status response", "error", err.Error())
	}
}
