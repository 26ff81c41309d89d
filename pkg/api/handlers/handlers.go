package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/cbodonnell/relayhub/pkg/game"
	"github.com/cbodonnell/relayhub/pkg/log"
)

// StatsProvider reports the state of the relay session.
type StatsProvider interface {
	Stats() game.Stats
}

func HandleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]string{"status": "ok"})
	}
}

func HandleStats(provider StatsProvider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, provider.Stats())
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error("failed to encode response: %v", err)
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}
