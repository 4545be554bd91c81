package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/echo-control-core/internal/supervisor"
)

// handleFromRequest parses the {handle} URL parameter.
func handleFromRequest(r *http.Request) (supervisor.Handle, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "handle"))
	if err != nil || n <= 0 {
		return 0, false
	}
	return supervisor.Handle(n), true
}

// handleListDevices returns every loaded device.
//
// Query parameters:
//   - family: filter by family name (Light, PTZ, Sound, Relay, ...)
//   - online: "true" or "false" to filter by connectivity
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	family := r.URL.Query().Get("family")
	onlineFilter := r.URL.Query().Get("online")
	if onlineFilter != "" && onlineFilter != "true" && onlineFilter != "false" {
		writeBadRequest(w, "online must be true or false")
		return
	}

	devices := make([]supervisor.Info, 0)
	for _, d := range s.devices.Devices() {
		if family != "" && d.Family != family {
			continue
		}
		if onlineFilter != "" && strconv.FormatBool(d.Online) != onlineFilter {
			continue
		}
		devices = append(devices, d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"devices": devices, "count": len(devices)})
}

// handleGetDevice returns one device.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	h, ok := handleFromRequest(r)
	if !ok {
		writeBadRequest(w, "handle must be a positive integer")
		return
	}
	info, err := s.devices.Device(h)
	if err != nil {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, info)
}

// handleReconnect queues an immediate connection attempt.
func (s *Server) handleReconnect(w http.ResponseWriter, r *http.Request) {
	h, ok := handleFromRequest(r)
	if !ok {
		writeBadRequest(w, "handle must be a positive integer")
		return
	}
	if err := s.devices.Reconnect(h); err != nil {
		if errors.Is(err, supervisor.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		writeUnavailable(w, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"handle": int(h), "status": "reconnect queued"})
}

// handleGetDeviceConfig returns every configuration property of a device.
func (s *Server) handleGetDeviceConfig(w http.ResponseWriter, r *http.Request) {
	h, ok := handleFromRequest(r)
	if !ok {
		writeBadRequest(w, "handle must be a positive integer")
		return
	}
	props, err := s.devices.Config(h)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"handle": int(h), "config": props})
}

// configValue is the body of PUT /devices/{handle}/config/{key} and the
// response of both config value routes.
type configValue struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// handleGetConfigValue returns one configuration property.
func (s *Server) handleGetConfigValue(w http.ResponseWriter, r *http.Request) {
	h, ok := handleFromRequest(r)
	if !ok {
		writeBadRequest(w, "handle must be a positive integer")
		return
	}
	key := chi.URLParam(r, "key")
	v, err := s.devices.GetConfig(h, key)
	if err != nil {
		writeConfigError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, configValue{Key: key, Value: v})
}

// handleSetConfigValue validates and applies one configuration property.
// The change is persisted as an override when the runtime has a store.
func (s *Server) handleSetConfigValue(w http.ResponseWriter, r *http.Request) {
	h, ok := handleFromRequest(r)
	if !ok {
		writeBadRequest(w, "handle must be a positive integer")
		return
	}
	var body configValue
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	key := chi.URLParam(r, "key")

	if err := s.devices.SetConfig(r.Context(), h, key, body.Value); err != nil {
		s.logger.Warn("config update rejected", "handle", int(h), "key", key, "error", err)
		writeConfigError(w, err)
		return
	}

	if claims := claimsFromContext(r.Context()); claims != nil {
		s.logger.Info("config updated", "handle", int(h), "key", key, "by", claims.Subject)
	}
	writeJSON(w, http.StatusOK, configValue{Key: key, Value: body.Value})
}
