package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/wonny/lianban/internal/contracts"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{
		"error": message,
	})
}

// parseDateParam reads a required YYYY-MM-DD query parameter.
// On failure the 400 response is already written.
func parseDateParam(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		respondError(w, http.StatusBadRequest, "'"+name+"' is required (YYYY-MM-DD)")
		return time.Time{}, false
	}
	date, err := contracts.ParseDate(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid '"+name+"' date format (expected YYYY-MM-DD)")
		return time.Time{}, false
	}
	return date, true
}

// parseAction validates an optional action filter
func parseAction(raw string) (contracts.Action, bool) {
	switch a := contracts.Action(raw); a {
	case "", contracts.ActionBuy, contracts.ActionHold, contracts.ActionSkip:
		return a, true
	default:
		return "", false
	}
}
