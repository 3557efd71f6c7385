package collab

import (
	"net/http"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

// TokenValidator resolves a bearer token to a user id.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Handler upgrades /ws/result/{resultId} requests and attaches the
// connection to the hub.
type Handler struct {
	hub            *Hub
	tokens         TokenValidator
	playgroundID   string
	originPatterns []string
}

func NewHandler(hub *Hub, tokens TokenValidator, playgroundID string, originPatterns []string) *Handler {
	return &Handler{
		hub:            hub,
		tokens:         tokens,
		playgroundID:   playgroundID,
		originPatterns: originPatterns,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	resultID := mux.Vars(r)["resultId"]
	if resultID == "" {
		http.Error(w, "missing result id", http.StatusBadRequest)
		return
	}

	var userID, displayName string
	if resultID == h.playgroundID {
		// Anonymous user for playground
		userID = "anon-" + uuid.New().String()[:8]
		displayName = "Anonymous"
	} else {
		// Auth via query param for real results
		token := r.URL.Query().Get("token")
		if token == "" {
			http.Error(w, "missing token", http.StatusUnauthorized)
			return
		}

		var err error
		userID, err = h.tokens.ValidateToken(token)
		if err != nil {
			http.Error(w, "invalid token", http.StatusUnauthorized)
			return
		}
		displayName = r.URL.Query().Get("name")
		if displayName == "" {
			displayName = userID
		}
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.originPatterns,
	})
	if err != nil {
		h.hub.logger.Error("websocket accept", "error", err)
		return
	}

	client := NewClient(h.hub, conn, userID, displayName, resultID, uuid.New().String())
	if !h.hub.Register(client) {
		conn.Close(websocket.StatusGoingAway, "server shutting down")
		return
	}

	ctx := r.Context()
	go client.WritePump(ctx)
	client.ReadPump(ctx)
}
