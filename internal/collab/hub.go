// Package collab relays committed mask geometry between viewers of the same
// segmentation result.
package collab

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/segstudio/maskengine/internal/typeid"
)

type Room struct {
	resultID string
	clients  map[string]*Client // clientID -> client
	presence *PresenceManager
}

func NewRoom(resultID string) *Room {
	return &Room{
		resultID: resultID,
		clients:  make(map[string]*Client),
		presence: NewPresenceManager(),
	}
}

type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]*Room      // resultID -> room
	states     map[string]*RoomState // resultID -> committed geometry, outlives the room
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	logger     *slog.Logger
}

// HubOption configures a Hub.
type HubOption func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(l *slog.Logger) HubOption {
	return func(h *Hub) {
		if l != nil {
			h.logger = l
		}
	}
}

func NewHub(opts ...HubOption) *Hub {
	h := &Hub{
		rooms:      make(map[string]*Room),
		states:     make(map[string]*RoomState),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run serves registrations until ctx is done, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)
	for {
		select {
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		}
	}
}

// Register adds a client to its room. It returns false once the hub stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// State returns the committed geometry of a result, if any client ever
// submitted to it.
func (h *Hub) State(resultID string) (StateSyncPayload, bool) {
	h.mu.RLock()
	st, ok := h.states[resultID]
	h.mu.RUnlock()
	if !ok {
		return StateSyncPayload{}, false
	}
	return st.Snapshot(), true
}

// OpsSince returns a result's logged operations after serverSeq.
func (h *Hub) OpsSince(resultID string, serverSeq int64) ([]Operation, bool) {
	h.mu.RLock()
	st, ok := h.states[resultID]
	h.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return st.OpsSince(serverSeq), true
}

// roomState returns the state for a result, creating it on first use.
func (h *Hub) roomState(resultID string) *RoomState {
	h.mu.Lock()
	defer h.mu.Unlock()
	st, ok := h.states[resultID]
	if !ok {
		st = NewRoomState(resultID)
		h.states[resultID] = st
	}
	return st
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.ResultID]
	if !ok {
		room = NewRoom(client.ResultID)
		h.rooms[client.ResultID] = room
	}
	room.clients[client.ClientID] = client
	h.mu.Unlock()

	welcome, _ := json.Marshal(WelcomePayload{ClientID: client.ClientID, UserID: client.UserID})
	client.Send(&Message{Type: TypeWelcome, Payload: welcome})

	// Send committed geometry to new client
	snapshot := h.roomState(client.ResultID).Snapshot()
	syncPayload, err := json.Marshal(snapshot)
	if err != nil {
		h.logger.Error("marshal state sync", "error", err)
	} else {
		client.Send(&Message{Type: TypeStateSync, Seq: snapshot.ServerSeq, Payload: syncPayload})
	}

	// Send current presence state to new client
	stateMsg, err := room.presence.StateMessage()
	if err != nil {
		h.logger.Error("presence state", "error", err)
	} else {
		client.Send(stateMsg)
	}

	// Broadcast join to other clients
	joinPayload, _ := json.Marshal(PresenceJoinPayload{
		UserID:      client.UserID,
		DisplayName: client.DisplayName,
	})
	joinMsg := &Message{
		Type:    TypePresenceJoin,
		UserID:  client.UserID,
		Payload: joinPayload,
	}
	h.broadcastToRoom(client.ResultID, joinMsg, client.ClientID)

	h.logger.Info("client joined", "user", client.UserID, "result", client.ResultID)
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	room, ok := h.rooms[client.ResultID]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, ok := room.clients[client.ClientID]; !ok {
		h.mu.Unlock()
		return
	}

	delete(room.clients, client.ClientID)
	client.close()
	room.presence.Remove(client.UserID)

	if len(room.clients) == 0 {
		delete(h.rooms, client.ResultID)
	}
	h.mu.Unlock()

	// Broadcast leave to remaining clients
	leavePayload, _ := json.Marshal(PresenceLeavePayload{
		UserID: client.UserID,
	})
	leaveMsg := &Message{
		Type:    TypePresenceLeave,
		UserID:  client.UserID,
		Payload: leavePayload,
	}
	h.broadcastToRoom(client.ResultID, leaveMsg, "")

	h.logger.Info("client left", "user", client.UserID, "result", client.ResultID)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, room := range h.rooms {
		for _, c := range room.clients {
			c.close()
		}
		delete(h.rooms, id)
	}
}

func (h *Hub) handleMessage(sender *Client, msg *Message) {
	switch msg.Type {
	case TypePresenceUpdate:
		h.handlePresenceUpdate(sender, msg)
	case TypeOpSubmit:
		h.handleOpSubmit(sender, msg)
	default:
		h.logger.Warn("unknown message type", "type", msg.Type, "user", sender.UserID)
		sender.SendError("unknown message type: " + msg.Type)
	}
}

func (h *Hub) handlePresenceUpdate(sender *Client, msg *Message) {
	var presence PresencePayload
	if err := json.Unmarshal(msg.Payload, &presence); err != nil {
		h.logger.Warn("invalid presence payload", "error", err)
		return
	}

	presence.DisplayName = sender.DisplayName

	h.mu.RLock()
	room, ok := h.rooms[sender.ResultID]
	h.mu.RUnlock()
	if !ok {
		return
	}

	room.presence.Update(sender.UserID, &presence)

	// Broadcast to other clients in room
	outPayload, _ := json.Marshal(presence)
	outMsg := &Message{
		Type:    TypePresenceUpdate,
		UserID:  sender.UserID,
		Payload: outPayload,
	}
	h.broadcastToRoom(sender.ResultID, outMsg, sender.ClientID)
}

func (h *Hub) handleOpSubmit(sender *Client, msg *Message) {
	var submit OperationSubmitPayload
	if err := json.Unmarshal(msg.Payload, &submit); err != nil {
		h.logger.Warn("invalid op payload", "error", err, "user", sender.UserID)
		sender.SendError("invalid operation payload")
		return
	}

	op := submit.Operation
	if op.MaskID == "" && op.Commit != nil {
		op.MaskID = op.Commit.MaskID
	}
	op.Timestamp = GetServerTimestamp()

	seq, err := h.submit(sender, &op)
	if err != nil {
		h.logger.Debug("operation rejected", "op", op.ID, "error", err, "user", sender.UserID)
		nack, _ := json.Marshal(OperationNackPayload{OperationID: op.ID, Reason: err.Error()})
		sender.Send(&Message{Type: TypeOpNack, Seq: msg.Seq, Payload: nack})
		return
	}

	ack, _ := json.Marshal(OperationAckPayload{
		OperationID:     op.ID,
		ServerSeq:       seq,
		ServerTimestamp: op.Timestamp,
	})
	sender.Send(&Message{Type: TypeOpAck, Seq: msg.Seq, Payload: ack})

	out, _ := json.Marshal(OperationBroadcastPayload{
		Operation: op,
		UserID:    sender.UserID,
		ServerSeq: seq,
	})
	h.broadcastToRoom(sender.ResultID, &Message{
		Type:    TypeOpBroadcast,
		UserID:  sender.UserID,
		Seq:     seq,
		Payload: out,
	}, sender.ClientID)
}

// submit assigns or checks the op id, refuses commits on a mask another user
// is still dragging, and applies the op to the room state.
func (h *Hub) submit(sender *Client, op *Operation) (int64, error) {
	if op.ID == "" {
		op.ID = typeid.NewOpID()
	} else if err := typeid.Validate(op.ID, typeid.PrefixOp); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrInvalidOpID, err)
	}

	h.mu.RLock()
	room, ok := h.rooms[sender.ResultID]
	h.mu.RUnlock()
	if ok && op.MaskID != "" {
		if users := room.presence.Editing(op.MaskID, sender.UserID); len(users) > 0 {
			return 0, fmt.Errorf("%w: %s", ErrMaskBusy, strings.Join(users, ", "))
		}
	}

	return h.roomState(sender.ResultID).ApplyOperation(*op, sender.UserID)
}

func (h *Hub) broadcastToRoom(resultID string, msg *Message, excludeClientID string) {
	h.mu.RLock()
	room, ok := h.rooms[resultID]
	if !ok {
		h.mu.RUnlock()
		return
	}

	clients := make([]*Client, 0, len(room.clients))
	for _, c := range room.clients {
		if c.ClientID != excludeClientID {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		c.Send(msg)
	}
}
