// internal/api/handlers.go
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/tamzrod/modbus-fleetmon/internal/fleet"
)

const maxEventLimit = 1000

type valueRequest struct {
	Value *float64 `json:"value"`
}

type ackRequest struct {
	Class string `json:"class"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled"`
}

type deviceView struct {
	Name       string      `json:"name"`
	Address    string      `json:"address"`
	Class      fleet.Class `json:"class"`
	Assignment string      `json:"assignment,omitempty"`
	UnitID     uint8       `json:"unit_id"`
	Threshold  float64     `json:"threshold,omitempty"`
}

func view(d fleet.Device) deviceView {
	return deviceView{
		Name:       d.Name,
		Address:    d.Address,
		Class:      d.Class,
		Assignment: d.Assignment,
		UnitID:     d.UnitID,
		Threshold:  d.Threshold,
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// handleStatus returns fleet-wide flags.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, map[string]any{
		"running":           s.ctl.Running(),
		"auto_control":      s.ctl.AutoControl(),
		"maintenance":       s.ctl.SetpointPermitted(),
		"threshold":         s.ctl.GlobalThreshold(),
		"devices":           len(s.ctl.Devices()),
		"uptime":            time.Since(s.startTime).Round(time.Second).String(),
		"journal_available": s.events != nil,
	}, http.StatusOK)
}

// handleListDevices returns every device's latest snapshot.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	devices := s.ctl.Devices()
	result := make([]deviceView, 0, len(devices))
	for _, d := range devices {
		result = append(result, view(d))
	}

	snaps := s.ctl.Snapshots()
	s.writeJSON(w, map[string]any{
		"devices":   result,
		"snapshots": snaps,
		"count":     len(result),
	}, http.StatusOK)
}

// handleGetDevice returns the latest snapshot of one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	snap, err := s.ctl.Snapshot(name)
	if err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, snap, http.StatusOK)
}

// handleRemoveDevice stops polling a device and discards its state.
func (s *Server) handleRemoveDevice(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := s.ctl.Remove(name); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"device": name, "removed": true}, http.StatusOK)
}

// handleDeviceEvents returns journal history, newest first.
func (s *Server) handleDeviceEvents(w http.ResponseWriter, r *http.Request) {
	if s.events == nil {
		s.writeError(w, "event journal disabled", http.StatusNotFound)
		return
	}

	name := mux.Vars(r)["name"]
	if !s.known(name) {
		s.writeError(w, fleet.ErrUnknownDevice.Error()+": "+name, http.StatusNotFound)
		return
	}

	limit := 100
	if q := r.URL.Query().Get("limit"); q != "" {
		n, err := strconv.Atoi(q)
		if err != nil || n <= 0 || n > maxEventLimit {
			s.writeError(w, "limit must be between 1 and 1000", http.StatusBadRequest)
			return
		}
		limit = n
	}

	events, err := s.events.Recent(r.Context(), name, limit)
	if err != nil {
		s.logger.Error().Err(err).Str("device", name).Msg("journal query failed")
		s.writeErr(w, err)
		return
	}
	if events == nil {
		events = []fleet.Event{}
	}
	s.writeJSON(w, map[string]any{"device": name, "events": events, "count": len(events)}, http.StatusOK)
}

func (s *Server) handleAck(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	var req ackRequest
	if err := decode(w, r, &req); err != nil || req.Class == "" {
		s.writeError(w, "body must be {\"class\": \"...\"}", http.StatusBadRequest)
		return
	}
	if err := s.ctl.Acknowledge(name, req.Class); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"device": name, "class": req.Class, "queued": true}, http.StatusAccepted)
}

func (s *Server) handleDeviceThreshold(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	v, ok := s.value(w, r)
	if !ok {
		return
	}
	if err := s.ctl.SetThreshold(name, v); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"device": name, "threshold": v}, http.StatusOK)
}

func (s *Server) handleGlobalThreshold(w http.ResponseWriter, r *http.Request) {
	v, ok := s.value(w, r)
	if !ok {
		return
	}
	if err := s.ctl.SetGlobalThreshold(v); err != nil {
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"threshold": v}, http.StatusOK)
}

func (s *Server) handleSetpoint(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	v, ok := s.value(w, r)
	if !ok {
		return
	}
	id, err := s.ctl.WriteSetpoint(r.Context(), name, v)
	if err != nil {
		if id != "" {
			w.Header().Set("X-Command-ID", id)
		}
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"device": name, "setpoint": v, "command_id": id}, http.StatusOK)
}

func (s *Server) handleAutoControl(w http.ResponseWriter, r *http.Request) {
	on, ok := s.toggle(w, r)
	if !ok {
		return
	}
	s.ctl.SetAutoControl(on)
	s.writeJSON(w, map[string]any{"auto_control": on}, http.StatusOK)
}

func (s *Server) handleMaintenance(w http.ResponseWriter, r *http.Request) {
	on, ok := s.toggle(w, r)
	if !ok {
		return
	}
	s.ctl.SetMaintenance(on)
	s.writeJSON(w, map[string]any{"maintenance": on}, http.StatusOK)
}

// ---- helpers ----

func (s *Server) value(w http.ResponseWriter, r *http.Request) (float64, bool) {
	var req valueRequest
	if err := decode(w, r, &req); err != nil || req.Value == nil {
		s.writeError(w, "body must be {\"value\": <number>}", http.StatusBadRequest)
		return 0, false
	}
	return *req.Value, true
}

func (s *Server) toggle(w http.ResponseWriter, r *http.Request) (bool, bool) {
	var req toggleRequest
	if err := decode(w, r, &req); err != nil || req.Enabled == nil {
		s.writeError(w, "body must be {\"enabled\": true|false}", http.StatusBadRequest)
		return false, false
	}
	return *req.Enabled, true
}

func (s *Server) known(name string) bool {
	for _, d := range s.ctl.Devices() {
		if d.Name == name {
			return true
		}
	}
	return false
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	id, err := s.ctl.WriteCommand(r.Context(), name)
	if err != nil {
		if id != "" {
			w.Header().Set("X-Command-ID", id)
		}
		s.writeErr(w, err)
		return
	}
	s.writeJSON(w, map[string]any{"device": name, "command_id": id}, http.StatusOK)
}
