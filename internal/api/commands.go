package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/nerrad567/echo-control-core/internal/store"
	"github.com/nerrad567/echo-control-core/internal/supervisor"
)

// commandChanSize is the buffer size for the async command log channel.
// Entries beyond this are dropped (best-effort) to avoid back-pressure on requests.
const commandChanSize = 256

// commandWriteTimeout bounds one command log insert.
const commandWriteTimeout = 2 * time.Second

// commandSourceAPI prefixes the caller subject in command log records.
const commandSourceAPI = "api"

// commandResult is the response body of POST /devices/{handle}/commands.
type commandResult struct {
	Handle   int    `json:"handle"`
	Op       string `json:"op"`
	Seq      uint32 `json:"seq,omitempty"`
	Code     uint32 `json:"code"`
	CodeName string `json:"code_name"`
	Error    string `json:"error,omitempty"`
}

// handleSendCommand executes a command against a device.
//
// The body is a supervisor.Command, for example {"op":"light.level","level":60}.
// Accepted commands return 202 with the request sequence number; rejected
// ones return the mapped HTTP status with the wire result code.
func (s *Server) handleSendCommand(w http.ResponseWriter, r *http.Request) {
	h, ok := handleFromRequest(r)
	if !ok {
		writeBadRequest(w, "handle must be a positive integer")
		return
	}

	var cmd supervisor.Command
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if cmd.Op == "" {
		writeBadRequest(w, "op is required")
		return
	}

	seq, err := s.devices.Execute(h, cmd)
	code := supervisor.CodeOf(err)
	res := commandResult{
		Handle:   int(h),
		Op:       cmd.Op,
		Seq:      seq,
		Code:     uint32(code),
		CodeName: code.String(),
	}
	if err != nil {
		res.Error = err.Error()
		s.logger.Debug("command rejected", "handle", int(h), "op", cmd.Op, "error", err)
	}

	source := commandSourceAPI
	if claims := claimsFromContext(r.Context()); claims != nil {
		source += ":" + claims.Subject
	}
	s.logCommand(&store.CommandRecord{
		Handle: int(h),
		Op:     cmd.Op,
		Source: source,
		Seq:    seq,
		Code:   res.Code,
		Detail: res.Error,
	})

	writeJSON(w, statusForCode(code), res)
}

// logCommand enqueues a command log entry for asynchronous write (best-effort).
// If the channel is full the entry is dropped and a warning is logged.
func (s *Server) logCommand(rec *store.CommandRecord) {
	if s.commandCh == nil {
		return
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	select {
	case s.commandCh <- rec:
	default:
		s.logger.Warn("command log channel full, dropping entry", "op", rec.Op, "handle", rec.Handle)
	}
}

// drainCommandLog writes queued entries serially until ctx is cancelled,
// then writes whatever is still queued.
func (s *Server) drainCommandLog(ctx context.Context) {
	for {
		select {
		case rec := <-s.commandCh:
			s.writeCommand(rec)
		case <-ctx.Done():
			for {
				select {
				case rec := <-s.commandCh:
					s.writeCommand(rec)
				default:
					return
				}
			}
		}
	}
}

func (s *Server) writeCommand(rec *store.CommandRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), commandWriteTimeout)
	defer cancel()
	if err := s.commands.Create(ctx, rec); err != nil {
		s.logger.Error("command log write failed", "op", rec.Op, "handle", rec.Handle, "error", err)
	}
}

// handleListCommands returns the command log, most recent first.
//
// Query parameters:
//   - handle: restrict to one device
//   - limit: max results (default 50, max 500)
//   - offset: pagination offset
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.commands == nil {
		writeUnavailable(w, "command log not configured")
		return
	}

	q := r.URL.Query()
	handle, ok := intParam(q.Get("handle"))
	if !ok {
		writeBadRequest(w, "handle must be an integer")
		return
	}
	limit, ok := intParam(q.Get("limit"))
	if !ok {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	offset, ok := intParam(q.Get("offset"))
	if !ok {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	records, err := s.commands.List(r.Context(), handle, limit, offset)
	if err != nil {
		s.logger.Error("failed to list commands", "error", err)
		writeInternalError(w, "failed to list commands")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"commands": records, "count": len(records)})
}

// intParam parses an optional non-negative integer query value.
func intParam(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
