// internal/api/server.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
	"github.com/tamzrod/modbus-fleetmon/internal/status"
)

// Controller is the operator surface served over HTTP.
type Controller interface {
	Running() bool
	AutoControl() bool
	SetpointPermitted() bool
	GlobalThreshold() float64

	Devices() []fleet.Device
	Snapshots() []status.Snapshot
	Snapshot(device string) (status.Snapshot, error)

	Acknowledge(device, class string) error
	SetThreshold(device string, v float64) error
	SetGlobalThreshold(v float64) error
	WriteSetpoint(ctx context.Context, device string, v float64) (string, error)
	WriteCommand(ctx context.Context, device string) (string, error)
	SetAutoControl(on bool)
	SetMaintenance(on bool)
	Remove(device string) error
}

// EventStore serves journal history.
type EventStore interface {
	Recent(ctx context.Context, device string, limit int) ([]fleet.Event, error)
}

// Server is the HTTP API.
type Server struct {
	listen    string
	ctl       Controller
	events    EventStore
	server    *http.Server
	router    *mux.Router
	logger    zerolog.Logger
	startTime time.Time
}

// NewServer wires the routes. events and metrics may be nil.
func NewServer(listen string, ctl Controller, events EventStore, metrics http.Handler, logger zerolog.Logger) *Server {
	s := &Server{
		listen:    listen,
		ctl:       ctl,
		events:    events,
		router:    mux.NewRouter(),
		logger:    logger.With().Str("component", "api").Logger(),
		startTime: time.Now(),
	}
	s.setupRoutes(metrics)
	return s
}

// Handler exposes the router.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) setupRoutes(metrics http.Handler) {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)

	api.HandleFunc("/devices", s.handleListDevices).Methods(http.MethodGet)
	api.HandleFunc("/devices/{name}", s.handleGetDevice).Methods(http.MethodGet)
	api.HandleFunc("/devices/{name}", s.handleRemoveDevice).Methods(http.MethodDelete)
	api.HandleFunc("/devices/{name}/events", s.handleDeviceEvents).Methods(http.MethodGet)
	api.HandleFunc("/devices/{name}/ack", s.handleAck).Methods(http.MethodPost)
	api.HandleFunc("/devices/{name}/threshold", s.handleDeviceThreshold).Methods(http.MethodPut)
	api.HandleFunc("/devices/{name}/setpoint", s.handleSetpoint).Methods(http.MethodPost)
	api.HandleFunc("/devices/{name}/command", s.handleCommand).Methods(http.MethodPost)

	api.HandleFunc("/threshold", s.handleGlobalThreshold).Methods(http.MethodPut)
	api.HandleFunc("/auto-control", s.handleAutoControl).Methods(http.MethodPut)
	api.HandleFunc("/maintenance", s.handleMaintenance).Methods(http.MethodPut)

	if metrics != nil {
		s.router.Handle("/metrics", metrics).Methods(http.MethodGet)
	}
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	s.server = &http.Server{
		Addr:              s.listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info().Str("listen", s.listen).Msg("starting HTTP API server")

		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info().Msg("stopping HTTP API server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if s.server != nil {
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("HTTP server shutdown error: %w", err)
		}
	}
	return nil
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, data any, statusCode int) {
	body, err := json.Marshal(data)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to encode JSON response")
		body = []byte(`{"error":"response not encodable"}`)
		statusCode = http.StatusInternalServerError
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if _, err := w.Write(append(body, '\n')); err != nil {
		s.logger.Debug().Err(err).Msg("failed to write response")
	}
}

// writeError writes an error response.
func (s *Server) writeError(w http.ResponseWriter, message string, statusCode int) {
	s.writeJSON(w, map[string]string{"error": message}, statusCode)
}

// writeErr maps a domain error to its status code.
func (s *Server) writeErr(w http.ResponseWriter, err error) {
	s.writeError(w, err.Error(), statusFor(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fleet.ErrUnknownDevice), errors.Is(err, fleet.ErrUnknownAlert):
		return http.StatusNotFound
	case errors.Is(err, fleet.ErrConfigOutOfRange), errors.Is(err, fleet.ErrUnsupported):
		return http.StatusUnprocessableEntity
	case errors.Is(err, fleet.ErrNotPermitted):
		return http.StatusForbidden
	case errors.Is(err, fleet.ErrNotRunning):
		return http.StatusConflict
	case errors.Is(err, fleet.ErrWriteFailed), errors.Is(err, fleet.ErrArmFailed), errors.Is(err, fleet.ErrUnreachable):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
