package handler

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"conductor/model"
)

func (h *Handler) ListReleases(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}
	releases, err := h.db.ListReleases(r.Context(), chi.URLParam(r, "id"), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if releases == nil {
		releases = []model.Release{}
	}
	writeJSON(w, releases)
}

func (h *Handler) GetRelease(w http.ResponseWriter, r *http.Request) {
	rel, err := h.db.GetRelease(r.Context(), chi.URLParam(r, "releaseId"))
	if err != nil {
		writeError(w, http.StatusNotFound, "release not found")
		return
	}
	runs, err := h.db.ListPlatformRuns(r.Context(), rel.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, map[string]interface{}{
		"release":      rel,
		"platformRuns": runs,
		"hotfix":       rel.IsHotfix(),
	})
}

func (h *Handler) StopRelease(w http.ResponseWriter, r *http.Request) {
	res := h.coord.StopRelease(r.Context(), chi.URLParam(r, "releaseId"))
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, res.Value)
}

// RetryFinalize re-runs a failed post-release phase.
func (h *Handler) RetryFinalize(w http.ResponseWriter, r *http.Request) {
	res := h.coord.RetryFinalize(r.Context(), chi.URLParam(r, "releaseId"))
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, res.Value)
}

func (h *Handler) ListStepRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.db.ListStepRuns(r.Context(), chi.URLParam(r, "platformRunId"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []model.StepRun{}
	}
	writeJSON(w, runs)
}

func (h *Handler) RetryStepRun(w http.ResponseWriter, r *http.Request) {
	res := h.coord.RetryStepRun(r.Context(), chi.URLParam(r, "stepRunId"))
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, res.Value)
}

func (h *Handler) ListDeploymentRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.db.ListDeploymentRuns(r.Context(), chi.URLParam(r, "stepRunId"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if runs == nil {
		runs = []model.DeploymentRun{}
	}
	writeJSON(w, runs)
}

func (h *Handler) FailDeploymentRun(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Reason string `json:"reason"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Reason == "" {
		writeError(w, http.StatusBadRequest, "reason required")
		return
	}
	res := h.coord.FailDeployment(r.Context(), chi.URLParam(r, "deploymentRunId"), req.Reason)
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, res.Value)
}
