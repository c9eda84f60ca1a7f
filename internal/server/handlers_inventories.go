package server

import (
	"net/http"
)

// handleInventoryTotals recomputes and returns the totals of an inventory
func (s *Server) handleInventoryTotals(w http.ResponseWriter, r *http.Request) {
	inventoryID, err := pathUUID(r, "id")
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	totals, err := s.inventories.Aggregate(r.Context(), inventoryID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, totals)
}
