package api

import (
	"net/http"
	"time"

	"github.com/nerrad567/echo-control-core/internal/device"
	"github.com/nerrad567/echo-control-core/internal/store"
)

// handleListHistory returns recorded device state changes, most recent first.
//
// Query parameters:
//   - device_id: restrict to one device (0x01000201 form)
//   - since: RFC 3339 timestamp; only records at or after it
//   - limit: max results (default 50, max 500)
//   - offset: pagination offset
func (s *Server) handleListHistory(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeUnavailable(w, "state history not configured")
		return
	}

	q := r.URL.Query()
	var filter store.HistoryFilter

	if v := q.Get("device_id"); v != "" {
		id, err := device.ParseID(v)
		if err != nil {
			writeBadRequest(w, "invalid device_id")
			return
		}
		filter.DeviceID = id.Hex()
	}
	if v := q.Get("since"); v != "" {
		since, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "since must be an RFC 3339 timestamp")
			return
		}
		filter.Since = since
	}

	var ok bool
	if filter.Limit, ok = intParam(q.Get("limit")); !ok {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, ok = intParam(q.Get("offset")); !ok {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	records, err := s.history.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list state history", "error", err)
		writeInternalError(w, "failed to list state history")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"history": records, "count": len(records)})
}
