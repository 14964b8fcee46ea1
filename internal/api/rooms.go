package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/room"
	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

// roomResponse is one virtual room. State is the master's activity, which
// every room of that master shares.
type roomResponse struct {
	UniqueID  string          `json:"unique_id"`
	Name      string          `json:"name"`
	RoomName  string          `json:"room_name"`
	MasterID  vacuum.MasterID `json:"master_id"`
	RoomID    vacuum.RoomID   `json:"room_id"`
	State     vacuum.Activity `json:"state"`
	Features  []string        `json:"features"`
	Source    room.Source     `json:"source,omitempty"`
	UpdatedAt *time.Time      `json:"updated_at,omitempty"`
}

func (s *Server) roomResponse(ctx context.Context, rc *vacuum.RoomControl, activity vacuum.Activity) roomResponse {
	resp := roomResponse{
		UniqueID: rc.UniqueID(),
		Name:     rc.Name(),
		RoomName: rc.RoomName(),
		MasterID: rc.Master(),
		RoomID:   rc.RoomID(),
		State:    activity,
		Features: rc.Features().Names(),
	}
	if s.catalog != nil {
		if entry, err := s.catalog.GetRoom(ctx, rc.UniqueID()); err == nil {
			resp.Source = entry.Source
			if !entry.UpdatedAt.IsZero() {
				ts := entry.UpdatedAt
				resp.UpdatedAt = &ts
			}
		}
	}
	return resp
}

// roomFromRequest resolves the {roomUID} URL parameter.
func (s *Server) roomFromRequest(w http.ResponseWriter, r *http.Request) (*vacuum.RoomControl, bool) {
	uid := chi.URLParam(r, "roomUID")
	if uid == "" || len(uid) > maxQueryParamLen {
		writeBadRequest(w, "invalid room ID")
		return nil, false
	}
	rc, err := s.rooms.Get(uid)
	if err != nil {
		if errors.Is(err, vacuum.ErrUnknownRoom) {
			writeNotFound(w, "room not found")
			return nil, false
		}
		writeInternalError(w, "failed to get room")
		return nil, false
	}
	return rc, true
}

// controlledRoom resolves the room and checks the caller may command its master.
func (s *Server) controlledRoom(w http.ResponseWriter, r *http.Request) (*vacuum.RoomControl, bool) {
	rc, ok := s.roomFromRequest(w, r)
	if !ok {
		return nil, false
	}
	if !canControl(r, rc.Master()) {
		writeForbidden(w, "master outside token scope")
		return nil, false
	}
	return rc, true
}

// handleListRooms lists every virtual room. The master state is read once
// per master.
func (s *Server) handleListRooms(w http.ResponseWriter, r *http.Request) {
	controls := s.rooms.List()
	activities := make(map[vacuum.MasterID]vacuum.Activity)
	rooms := make([]roomResponse, 0, len(controls))
	for _, rc := range controls {
		activity, ok := activities[rc.Master()]
		if !ok {
			activity = s.coord.DisplayState(r.Context(), rc.Master())
			activities[rc.Master()] = activity
		}
		rooms = append(rooms, s.roomResponse(r.Context(), rc, activity))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"rooms": rooms,
		"count": len(rooms),
	})
}

// handleGetRoom returns one virtual room with its display state.
func (s *Server) handleGetRoom(w http.ResponseWriter, r *http.Request) {
	rc, ok := s.roomFromRequest(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.roomResponse(r.Context(), rc, rc.DisplayState(r.Context())))
}

// handleStartRoom queues the room into its master's next batch. The
// response carries the batch as it stands; dispatch happens once the
// debounce window passes without another start.
func (s *Server) handleStartRoom(w http.ResponseWriter, r *http.Request) {
	rc, ok := s.controlledRoom(w, r)
	if !ok {
		return
	}
	if err := rc.Start(r.Context()); err != nil {
		writeVacuumError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":  "queued",
		"room":    rc.UniqueID(),
		"pending": s.coord.Pending(rc.Master()),
	})
}

// handleStopRoom stops the room's master. Every room sharing the master
// loses its pending request.
func (s *Server) handleStopRoom(w http.ResponseWriter, r *http.Request) {
	rc, ok := s.controlledRoom(w, r)
	if !ok {
		return
	}
	if err := rc.Stop(r.Context()); err != nil {
		writeVacuumError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "master_id": rc.Master()})
}

// handleReturnHomeRoom sends the room's master back to its dock.
func (s *Server) handleReturnHomeRoom(w http.ResponseWriter, r *http.Request) {
	rc, ok := s.controlledRoom(w, r)
	if !ok {
		return
	}
	if err := rc.ReturnHome(r.Context()); err != nil {
		writeVacuumError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "master_id": rc.Master()})
}
