package handler

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog"

	"conductor/config"
	"conductor/consul"
	"conductor/coordinator"
	"conductor/hub"
	"conductor/passport"
	"conductor/store"
)

type Handler struct {
	db        *store.DB
	coord     *coordinator.Coordinator
	consul    *consul.Client
	ws        *hub.Hub
	cfg       *config.Config
	passports passport.Store
	log       zerolog.Logger
}

func New(db *store.DB, coord *coordinator.Coordinator, c *consul.Client, ws *hub.Hub, cfg *config.Config, ps passport.Store, log zerolog.Logger) *Handler {
	return &Handler{
		db:        db,
		coord:     coord,
		consul:    c,
		ws:        ws,
		cfg:       cfg,
		passports: ps,
		log:       log.With().Str("component", "handler").Logger(),
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// writeResultError maps a coordinator error onto an HTTP status. Only
// the message crosses the edge; cause detail stays in the logs.
func writeResultError(w http.ResponseWriter, err *coordinator.Error) {
	var status int
	switch err.Code {
	case coordinator.CodeNotFound:
		status = http.StatusNotFound
	case coordinator.CodeValidation:
		status = http.StatusBadRequest
	case coordinator.CodeConflict, coordinator.CodeInvalidTransition:
		status = http.StatusConflict
	case coordinator.CodeProvider:
		status = http.StatusBadGateway
	default:
		status = http.StatusInternalServerError
	}
	writeError(w, status, err.Message)
}
