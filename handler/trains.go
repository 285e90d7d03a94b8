package handler

import (
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"conductor/model"
)

func (h *Handler) ListTrains(w http.ResponseWriter, r *http.Request) {
	trains, err := h.db.ListTrains(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if trains == nil {
		trains = []model.Train{}
	}
	writeJSON(w, trains)
}

func (h *Handler) GetTrain(w http.ResponseWriter, r *http.Request) {
	train, err := h.db.GetTrain(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, "train not found")
		return
	}
	writeJSON(w, train)
}

// CreateTrain accepts a train definition in the same YAML shape the
// boot loader reads from disk.
func (h *Handler) CreateTrain(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read body")
		return
	}
	spec, err := model.ParseTrainSpec(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	res := h.coord.CreateTrain(r.Context(), spec)
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, res.Value)
}

func (h *Handler) ActivateTrain(w http.ResponseWriter, r *http.Request) {
	res := h.coord.ActivateTrain(r.Context(), chi.URLParam(r, "id"))
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	writeJSON(w, res.Value)
}

// StartRelease kicks a release off on the train.
func (h *Handler) StartRelease(w http.ResponseWriter, r *http.Request) {
	var req struct {
		MajorBump bool `json:"majorBump"`
		Upcoming  bool `json:"upcoming"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid payload")
			return
		}
	}
	res := h.coord.StartRelease(r.Context(), chi.URLParam(r, "id"), req.MajorBump, req.Upcoming)
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, res.Value)
}

// StartHotfix cuts a patch release from the platform's last shipped
// version.
func (h *Handler) StartHotfix(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Platform model.Platform `json:"platform"`
	}
	if err := decodeJSON(r, &req); err != nil || req.Platform == "" {
		writeError(w, http.StatusBadRequest, "platform required")
		return
	}
	res := h.coord.StartHotfix(r.Context(), chi.URLParam(r, "id"), req.Platform)
	if res.Err != nil {
		writeResultError(w, res.Err)
		return
	}
	w.WriteHeader(http.StatusCreated)
	writeJSON(w, res.Value)
}
