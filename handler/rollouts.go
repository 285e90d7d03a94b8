package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"conductor/model"
)

func (h *Handler) ListSubmissions(w http.ResponseWriter, r *http.Request) {
	subs, err := h.db.ListSubmissions(r.Context(), chi.URLParam(r, "platformRunId"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if subs == nil {
		subs = []model.StoreSubmission{}
	}
	writeJSON(w, subs)
}

func (h *Handler) RetrySubmission(w http.ResponseWriter, r *http.Request) {
	res := h.coord.RetrySubmission(r.Context(), chi.URLParam(r, "submissionId"))
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, res.Value)
}

func (h *Handler) GetRollout(w http.ResponseWriter, r *http.Request) {
	ro, err := h.db.GetRollout(r.Context(), chi.URLParam(r, "rolloutId"))
	if err != nil {
		writeError(w, http.StatusNotFound, "rollout not found")
		return
	}
	writeJSON(w, ro)
}

func (h *Handler) AdvanceRollout(w http.ResponseWriter, r *http.Request) {
	res := h.coord.AdvanceRollout(r.Context(), chi.URLParam(r, "rolloutId"))
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, res.Value)
}

func (h *Handler) RetryRolloutAdvance(w http.ResponseWriter, r *http.Request) {
	res := h.coord.RetryRolloutAdvance(r.Context(), chi.URLParam(r, "rolloutId"))
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, res.Value)
}

func (h *Handler) PauseRollout(w http.ResponseWriter, r *http.Request) {
	res := h.coord.PauseRollout(r.Context(), chi.URLParam(r, "rolloutId"))
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, res.Value)
}

func (h *Handler) ResumeRollout(w http.ResponseWriter, r *http.Request) {
	res := h.coord.ResumeRollout(r.Context(), chi.URLParam(r, "rolloutId"))
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, res.Value)
}

func (h *Handler) HaltRollout(w http.ResponseWriter, r *http.Request) {
	res := h.coord.HaltRollout(r.Context(), chi.URLParam(r, "rolloutId"))
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, res.Value)
}

func (h *Handler) ReleaseRolloutFully(w http.ResponseWriter, r *http.Request) {
	res := h.coord.ReleaseRolloutFully(r.Context(), chi.URLParam(r, "rolloutId"))
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, res.Value)
}

func (h *Handler) SyncRollout(w http.ResponseWriter, r *http.Request) {
	res := h.coord.SyncRollout(r.Context(), chi.URLParam(r, "rolloutId"))
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, res.Value)
}

// ApplyBuildQueue flushes a commit batch ahead of its timer.
func (h *Handler) ApplyBuildQueue(w http.ResponseWriter, r *http.Request) {
	res := h.coord.ApplyBuildQueue(r.Context(), chi.URLParam(r, "queueId"), true)
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, res.Value)
}
