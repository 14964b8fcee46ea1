package api

import (
	"net/http"

	"github.com/nerrad567/gray-logic-vacuumzones/internal/vacuum"
)

const (
	defaultDispatchLimit = 50
	maxDispatchLimit     = 500
)

// handleListDispatches returns recorded dispatches, newest first.
// Optional filters: master_id, kind, limit.
func (s *Server) handleListDispatches(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		writeServiceUnavailable(w, "dispatch history not available")
		return
	}

	q := r.URL.Query()
	filter := vacuum.DispatchFilter{
		MasterID: vacuum.MasterID(q.Get("master_id")),
		Kind:     vacuum.CommandKind(q.Get("kind")),
	}
	if len(filter.MasterID) > maxQueryParamLen {
		writeBadRequest(w, "invalid master_id")
		return
	}
	switch filter.Kind {
	case "", vacuum.KindSegmentClean, vacuum.KindStop, vacuum.KindReturnHome:
	default:
		writeBadRequest(w, "invalid kind")
		return
	}

	limit, ok := parseLimit(w, q.Get("limit"), defaultDispatchLimit, maxDispatchLimit)
	if !ok {
		return
	}
	filter.Limit = limit

	records, err := s.history.ListDispatches(r.Context(), filter)
	if err != nil {
		s.logger.Error("failed to list dispatches", "error", err)
		writeInternalError(w, "failed to list dispatches")
		return
	}
	if records == nil {
		records = []vacuum.DispatchRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"dispatches": records,
		"count":      len(records),
	})
}
