package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/huangsam/xray/core"
	"github.com/huangsam/xray/internal/contract"
	"github.com/huangsam/xray/schema"
)

type analyzeRequest struct {
	RepoURL string `json:"repo_url" validate:"required"`
	Months  int    `json:"months" validate:"omitempty,min=1,max=24"`
}

type analyzeResponse struct {
	JobID   string           `json:"job_id"`
	Status  schema.JobStatus `json:"status"`
	Created bool             `json:"created"`
}

type errorResponse struct {
	Detail string           `json:"detail"`
	Status schema.JobStatus `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, errorResponse{Detail: detail})
}

// clientIP returns the address set by the RealIP middleware without its port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if !s.limiter.Allow(clientIP(r)) {
		writeError(w, http.StatusTooManyRequests, fmt.Sprintf(
			"Rate limit exceeded. Maximum %d analyses per %s.", s.cfg.RateLimitMax, s.cfg.RateLimitWindow))
		return
	}

	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	if err := s.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, validationMessage(err))
		return
	}
	if req.Months == 0 {
		req.Months = s.cfg.DefaultMonths
	}

	job, created, err := s.analyzer.Submit(r.Context(), req.RepoURL, req.Months)
	switch {
	case contract.IsProtocolError(err):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, core.ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	case err != nil:
		s.logger.Error("Submission failed", "error", err)
		writeError(w, http.StatusInternalServerError, "submission failed")
		return
	}
	writeJSON(w, http.StatusOK, analyzeResponse{JobID: job.ID, Status: job.Status, Created: created})
}

// validationMessage renders validator errors in the same form as protocol errors.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err.Error()
	}
	fe := verrs[0]
	field := map[string]string{"RepoURL": "repo_url", "Months": "months"}[fe.Field()]
	switch fe.Tag() {
	case "required":
		return (&contract.ProtocolError{Field: field, Reason: "must not be empty"}).Error()
	case "min", "max":
		return (&contract.ProtocolError{Field: field, Reason: "must be between 1 and 24"}).Error()
	default:
		return (&contract.ProtocolError{Field: field, Reason: fe.Tag()}).Error()
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	view, err := s.analyzer.Status(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	result, err := s.analyzer.Result(id)
	switch {
	case errors.Is(err, contract.ErrNotComplete):
		view, _ := s.analyzer.Status(id)
		writeJSON(w, http.StatusConflict, errorResponse{Detail: "Analysis not complete", Status: view.Status})
		return
	case err != nil:
		writeError(w, http.StatusNotFound, "Job not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleListCached(w http.ResponseWriter, _ *http.Request) {
	list, err := s.analyzer.ListCached()
	if err != nil {
		s.logger.Warn("Listing cached results failed", "error", err)
		writeError(w, http.StatusInternalServerError, "cache unavailable")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// cachedIdentity reads the owner/repo wildcard of a cache route.
func cachedIdentity(w http.ResponseWriter, r *http.Request) (string, bool) {
	identity, err := schema.RepoIdentity(chi.URLParam(r, "*"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return identity, true
}

func (s *Server) handleGetCached(w http.ResponseWriter, r *http.Request) {
	identity, ok := cachedIdentity(w, r)
	if !ok {
		return
	}
	entry, err := s.analyzer.Cached(identity)
	switch {
	case errors.Is(err, contract.ErrNotFound):
		writeError(w, http.StatusNotFound, "No cached results for this repo")
		return
	case err != nil:
		s.logger.Warn("Reading cached result failed", "repo", identity, "error", err)
		writeError(w, http.StatusInternalServerError, "cache unavailable")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleDeleteCached(w http.ResponseWriter, r *http.Request) {
	identity, ok := cachedIdentity(w, r)
	if !ok {
		return
	}
	err := s.analyzer.DeleteCached(identity)
	switch {
	case errors.Is(err, contract.ErrNotFound):
		writeError(w, http.StatusNotFound, "No cached results for this repo")
		return
	case err != nil:
		s.logger.Warn("Deleting cached result failed", "repo", identity, "error", err)
		writeError(w, http.StatusInternalServerError, "cache unavailable")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
