package collab

import (
	"encoding/json"

	"github.com/segstudio/maskengine/internal/geometry"
	"github.com/segstudio/maskengine/internal/manipulation"
)

type Message struct {
	Type     string          `json:"type"`
	ResultID string          `json:"resultId,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	UserID   string          `json:"userId,omitempty"`
	Seq      int64           `json:"seq,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

type PresencePayload struct {
	Cursor      *CursorPos `json:"cursor,omitempty"`
	ActiveMask  string     `json:"activeMask,omitempty"`
	Gesture     string     `json:"gesture,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
}

// CursorPos is in image coordinates so viewers with different zoom agree.
type CursorPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type PresenceStatePayload struct {
	Presences map[string]*PresencePayload `json:"presences"`
}

type PresenceJoinPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type PresenceLeavePayload struct {
	UserID string `json:"userId"`
}

type WelcomePayload struct {
	ClientID string `json:"clientId"`
	UserID   string `json:"userId"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

const (
	TypePresenceUpdate = "presence.update"
	TypePresenceState  = "presence.state"
	TypePresenceJoin   = "presence.join"
	TypePresenceLeave  = "presence.leave"
	TypeError          = "error"

	// Connection
	TypeWelcome = "welcome"

	// Committed geometry sync
	TypeStateSync = "state.sync"

	// Operation message types
	TypeOpSubmit    = "op.submit"
	TypeOpAck       = "op.ack"
	TypeOpNack      = "op.nack"
	TypeOpBroadcast = "op.broadcast"
)

// Operation types.
const (
	OpMaskCommit = "mask.commit"
	OpMaskRemove = "mask.remove"
)

// Operation is one committed change to a mask.
type Operation struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	ClientSeq int64  `json:"clientSeq"`
	MaskID    string `json:"maskId,omitempty"`

	// For mask.commit
	Commit *manipulation.Commit `json:"commit,omitempty"`
}

// MaskGeometry is the latest committed geometry of one mask.
type MaskGeometry struct {
	MaskID      string                 `json:"maskId"`
	BoundingBox geometry.BoundingBox   `json:"boundingBox"`
	Transform   manipulation.Transform `json:"transform"`
	Hidden      bool                   `json:"hidden"`
	ServerSeq   int64                  `json:"serverSeq"`
	UpdatedBy   string                 `json:"updatedBy,omitempty"`
}

// StateSyncPayload is sent to a client when it joins a room.
type StateSyncPayload struct {
	ResultID  string             `json:"resultId"`
	ServerSeq int64              `json:"serverSeq"`
	ImageSize geometry.ImageSize `json:"imageSize"`
	Masks     []MaskGeometry     `json:"masks"`
}

// OperationSubmitPayload is the payload for op.submit messages
type OperationSubmitPayload struct {
	Operation Operation `json:"operation"`
}

// OperationAckPayload is the payload for op.ack messages
type OperationAckPayload struct {
	OperationID     string `json:"operationId"`
	ServerSeq       int64  `json:"serverSeq"`
	ServerTimestamp int64  `json:"serverTimestamp"`
}

// OperationNackPayload is the payload for op.nack messages
type OperationNackPayload struct {
	OperationID string `json:"operationId"`
	Reason      string `json:"reason"`
}

// OperationBroadcastPayload is the payload for op.broadcast messages
type OperationBroadcastPayload struct {
	Operation Operation `json:"operation"`
	UserID    string    `json:"userId"`
	ServerSeq int64     `json:"serverSeq"`
}
