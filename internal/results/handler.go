// Package results serves the relay's committed geometry over REST.
package results

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/segstudio/maskengine/internal/collab"
)

// StateSource is satisfied by *collab.Hub.
type StateSource interface {
	State(resultID string) (collab.StateSyncPayload, bool)
	OpsSince(resultID string, serverSeq int64) ([]collab.Operation, bool)
}

type Handler struct {
	source StateSource
}

func NewHandler(source StateSource) *Handler {
	return &Handler{source: source}
}

// GetState returns the latest committed geometry for a result.
func (h *Handler) GetState(w http.ResponseWriter, r *http.Request) {
	resultID := mux.Vars(r)["resultId"]

	state, ok := h.source.State(resultID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "result not found"})
		return
	}

	writeJSON(w, http.StatusOK, state)
}

type opsResponse struct {
	ResultID   string             `json:"resultId"`
	Since      int64              `json:"since"`
	Operations []collab.Operation `json:"operations"`
}

// ListOps returns the operations after ?since=N.
func (h *Handler) ListOps(w http.ResponseWriter, r *http.Request) {
	resultID := mux.Vars(r)["resultId"]

	var since int64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "since must be a non-negative integer"})
			return
		}
		since = n
	}

	ops, ok := h.source.OpsSince(resultID, since)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "result not found"})
		return
	}
	if ops == nil {
		ops = []collab.Operation{}
	}

	writeJSON(w, http.StatusOK, opsResponse{ResultID: resultID, Since: since, Operations: ops})
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
