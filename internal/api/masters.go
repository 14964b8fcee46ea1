package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/room"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 200

	// maxQueryParamLen bounds identifiers taken from the URL.
	maxQueryParamLen = 256
)

// masterResponse is one master with a fresh state read and its pending batch.
type masterResponse struct {
	ID        vacuum.MasterID `json:"id"`
	Status    vacuum.Status   `json:"status"`
	Raw       string          `json:"raw,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
	Activity  vacuum.Activity `json:"activity"`
	Rooms     int             `json:"rooms"`
	Pending   vacuum.Pending  `json:"pending"`
}

func (s *Server) masterResponse(r *http.Request, id vacuum.MasterID) masterResponse {
	state := s.coord.State(r.Context(), id)
	resp := masterResponse{
		ID:       id,
		Status:   state.Status,
		Raw:      state.Raw,
		Activity: vacuum.ActivityFor(state.Status),
		Rooms:    len(s.rooms.ListByMaster(id)),
		Pending:  s.coord.Pending(id),
	}
	if !state.UpdatedAt.IsZero() {
		ts := state.UpdatedAt
		resp.UpdatedAt = &ts
	}
	return resp
}

// masterFromRequest resolves the {masterID} URL parameter to a configured
// master, writing a 400 or 404 when it cannot.
func (s *Server) masterFromRequest(w http.ResponseWriter, r *http.Request) (room.MasterSpec, bool) {
	raw := chi.URLParam(r, "masterID")
	if raw == "" || len(raw) > maxQueryParamLen {
		writeBadRequest(w, "invalid master ID")
		return room.MasterSpec{}, false
	}
	spec, ok := s.masters[vacuum.MasterID(raw)]
	if !ok {
		writeNotFound(w, "master not found")
		return room.MasterSpec{}, false
	}
	return spec, true
}

// controlledMaster resolves the master and checks the caller may command it.
func (s *Server) controlledMaster(w http.ResponseWriter, r *http.Request) (vacuum.MasterID, bool) {
	spec, ok := s.masterFromRequest(w, r)
	if !ok {
		return "", false
	}
	if !canControl(r, spec.ID) {
		writeForbidden(w, "master outside token scope")
		return "", false
	}
	return spec.ID, true
}

// handleListMasters lists configured masters in configuration order.
func (s *Server) handleListMasters(w http.ResponseWriter, r *http.Request) {
	masters := make([]masterResponse, 0, len(s.order))
	for _, id := range s.order {
		masters = append(masters, s.masterResponse(r, id))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"masters": masters,
		"count":   len(masters),
	})
}

// handleGetMaster returns one master.
func (s *Server) handleGetMaster(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.masterFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.masterResponse(r, spec.ID))
}

// handleListMasterRooms lists the virtual rooms bound to one master.
func (s *Server) handleListMasterRooms(w http.ResponseWriter, r *http.Request) {
	spec, ok := s.masterFromRequest(w, r)
	if !ok {
		return
	}
	activity := s.coord.DisplayState(r.Context(), spec.ID)
	controls := s.rooms.ListByMaster(spec.ID)
	rooms := make([]roomResponse, 0, len(controls))
	for _, rc := range controls {
		rooms = append(rooms, s.roomResponse(r.Context(), rc, activity))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rooms": rooms,
		"count": len(rooms),
	})
}

// handleStopMaster stops the master. A pending batch is dropped instead,
// since the master has not started on it.
func (s *Server) handleStopMaster(w http.ResponseWriter, r *http.Request) {
	master, ok := s.controlledMaster(w, r)
	if !ok {
		return
	}
	if err := s.coord.RequestStop(r.Context(), master); err != nil {
		writeVacuumError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "master_id": master})
}

// handleReturnHomeMaster sends the master back to its dock, dropping any
// pending batch.
func (s *Server) handleReturnHomeMaster(w http.ResponseWriter, r *http.Request) {
	master, ok := s.controlledMaster(w, r)
	if !ok {
		return
	}
	if err := s.coord.RequestReturnHome(r.Context(), master); err != nil {
		writeVacuumError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "master_id": master})
}

// handleFlushMaster dispatches the pending batch without waiting for the
// debounce window to expire.
func (s *Server) handleFlushMaster(w http.ResponseWriter, r *http.Request) {
	master, ok := s.controlledMaster(w, r)
	if !ok {
		return
	}
	rooms, err := s.coord.Flush(r.Context(), master)
	if err != nil {
		writeVacuumError(w, err)
		return
	}
	if rooms == nil {
		rooms = []vacuum.RoomID{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"master_id": master, "dispatched": rooms})
}

// handleSyncMaster re-runs room discovery for one master.
func (s *Server) handleSyncMaster(w http.ResponseWriter, r *http.Request) {
	if s.syncer == nil {
		writeServiceUnavailable(w, "room sync not available")
		return
	}
	spec, ok := s.masterFromRequest(w, r)
	if !ok {
		return
	}
	if !canControl(r, spec.ID) {
		writeForbidden(w, "master outside token scope")
		return
	}
	n, err := s.syncer.SyncMaster(r.Context(), spec)
	if err != nil {
		s.logger.Error("room sync failed", "master_id", spec.ID, "error", err)
		writeInternalError(w, "room sync failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"master_id": spec.ID, "rooms": n})
}

// handleMasterHistory returns the master's recorded state transitions,
// newest first.
func (s *Server) handleMasterHistory(w http.ResponseWriter, r *http.Request) {
	if s.states == nil {
		writeServiceUnavailable(w, "state history not available")
		return
	}
	spec, ok := s.masterFromRequest(w, r)
	if !ok {
		return
	}
	limit, ok := parseLimit(w, r.URL.Query().Get("limit"), defaultHistoryLimit, maxHistoryLimit)
	if !ok {
		return
	}

	entries, err := s.states.GetHistory(r.Context(), spec.ID, limit)
	if err != nil {
		s.logger.Error("failed to load state history", "master_id", spec.ID, "error", err)
		writeInternalError(w, "failed to load state history")
		return
	}
	if entries == nil {
		entries = []vacuum.StateTransition{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"master_id": spec.ID,
		"history":   entries,
		"count":     len(entries),
	})
}

// parseLimit parses a limit query parameter with bounds enforcement,
// writing a 400 on failure.
func parseLimit(w http.ResponseWriter, raw string, def, maxLimit int) (int, bool) {
	if raw == "" {
		return def, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		writeBadRequest(w, "invalid limit")
		return 0, false
	}
	if limit > maxLimit {
		writeBadRequest(w, "limit exceeds maximum")
		return 0, false
	}
	return limit, true
}
