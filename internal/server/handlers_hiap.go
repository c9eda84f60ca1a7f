package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/Open-Earth-Foundation/CityCatalyst-sub010/internal/types"
)

// CancelJobRequest is the optional body of POST /hiap/jobs/{id}/cancel
type CancelJobRequest struct {
	Reason string `json:"reason,omitempty"`
}

// handleSubmitJob accepts a ranking request and returns the job id without waiting
func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	var req types.SubmitJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	jobID, err := s.jobs.Submit(r.Context(), req.CityIDs, req.IsBulk)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	w.Header().Set("Location", "/hiap/jobs/"+jobID.String())
	s.jsonResponse(w, http.StatusAccepted, types.SubmitJobResponse{JobID: jobID})
}

// handleGetJob returns the status of a job
func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	status, err := s.jobs.GetStatus(r.Context(), jobID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, status)
}

// handleCancelJob cancels a pending job
func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	var req CancelJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		s.errorResponse(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	status, err := s.jobs.Cancel(r.Context(), jobID, req.Reason)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, status)
}

// handleGetRankings returns the per-city rankings of a job
func (s *Server) handleGetRankings(w http.ResponseWriter, r *http.Request) {
	jobID, err := pathUUID(r, "id")
	if err != nil {
		s.serviceError(w, r, err)
		return
	}

	rankings, err := s.jobs.GetRankings(r.Context(), jobID)
	if err != nil {
		s.serviceError(w, r, err)
		return
	}
	if rankings == nil {
		rankings = []types.ActionRanking{}
	}
	s.jsonResponse(w, http.StatusOK, rankings)
}
