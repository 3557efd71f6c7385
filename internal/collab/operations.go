package collab

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/segstudio/maskengine/internal/geometry"
)

var (
	ErrMaskNotFound = errors.New("mask not found")
	ErrInvalidBox   = errors.New("invalid bounding box")
	ErrUnknownOp    = errors.New("unknown operation type")
	ErrInvalidOpID  = errors.New("invalid operation id")
	ErrMaskBusy     = errors.New("mask is being edited by another user")
)

// RoomState holds the authoritative committed geometry for a result.
type RoomState struct {
	mu        sync.RWMutex
	resultID  string
	size      geometry.ImageSize
	masks     map[string]*MaskGeometry
	serverSeq int64
	opLog     []Operation
}

// NewRoomState creates an empty state for a result.
func NewRoomState(resultID string) *RoomState {
	return &RoomState{
		resultID: resultID,
		masks:    make(map[string]*MaskGeometry),
		opLog:    make([]Operation, 0),
	}
}

// ApplyOperation applies an operation and returns the server sequence.
func (rs *RoomState) ApplyOperation(op Operation, userID string) (int64, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()

	if err := rs.applyOperationLocked(op, userID); err != nil {
		return 0, err
	}

	rs.serverSeq++
	if g, ok := rs.masks[op.MaskID]; ok {
		g.ServerSeq = rs.serverSeq
	}
	rs.opLog = append(rs.opLog, op)

	return rs.serverSeq, nil
}

// applyOperationLocked applies the operation without locking (caller must hold lock)
func (rs *RoomState) applyOperationLocked(op Operation, userID string) error {
	switch op.Type {
	case OpMaskCommit:
		return rs.applyCommit(op, userID)
	case OpMaskRemove:
		return rs.applyRemove(op)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownOp, op.Type)
	}
}

func (rs *RoomState) applyCommit(op Operation, userID string) error {
	c := op.Commit
	if c == nil {
		return fmt.Errorf("%w: missing commit", ErrInvalidBox)
	}
	if op.MaskID != "" && op.MaskID != c.MaskID {
		return fmt.Errorf("%w: commit for %s submitted as %s", ErrMaskNotFound, c.MaskID, op.MaskID)
	}
	if c.MaskID == "" {
		return fmt.Errorf("%w: empty mask id", ErrMaskNotFound)
	}

	size := c.ImageSize
	if rs.size.Width > 0 && rs.size.Height > 0 {
		if size != rs.size {
			return fmt.Errorf("%w: image size %vx%v, room has %vx%v",
				ErrInvalidBox, size.Width, size.Height, rs.size.Width, rs.size.Height)
		}
	}
	if !c.BoundingBox.Valid() {
		return fmt.Errorf("%w: %+v", ErrInvalidBox, c.BoundingBox)
	}
	if size.Width <= 0 || size.Height <= 0 || !c.BoundingBox.Within(size) {
		return fmt.Errorf("%w: %+v outside %vx%v", ErrInvalidBox, c.BoundingBox, size.Width, size.Height)
	}

	rs.size = size
	rs.masks[c.MaskID] = &MaskGeometry{
		MaskID:      c.MaskID,
		BoundingBox: c.BoundingBox,
		Transform:   c.Transform,
		Hidden:      c.Hidden,
		UpdatedBy:   userID,
	}
	return nil
}

func (rs *RoomState) applyRemove(op Operation) error {
	if _, ok := rs.masks[op.MaskID]; !ok {
		return fmt.Errorf("%w: %s", ErrMaskNotFound, op.MaskID)
	}
	delete(rs.masks, op.MaskID)
	return nil
}

// Snapshot returns the committed geometry sorted by mask id.
func (rs *RoomState) Snapshot() StateSyncPayload {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	masks := make([]MaskGeometry, 0, len(rs.masks))
	for _, g := range rs.masks {
		masks = append(masks, *g)
	}
	slices.SortFunc(masks, func(a, b MaskGeometry) int {
		return strings.Compare(a.MaskID, b.MaskID)
	})
	return StateSyncPayload{
		ResultID:  rs.resultID,
		ServerSeq: rs.serverSeq,
		ImageSize: rs.size,
		Masks:     masks,
	}
}

// OpsSince returns the logged operations after serverSeq.
func (rs *RoomState) OpsSince(serverSeq int64) []Operation {
	rs.mu.RLock()
	defer rs.mu.RUnlock()

	if serverSeq < 0 {
		serverSeq = 0
	}
	if serverSeq >= int64(len(rs.opLog)) {
		return nil
	}
	return slices.Clone(rs.opLog[serverSeq:])
}

// GetServerTimestamp returns the current server timestamp
func GetServerTimestamp() int64 {
	return time.Now().UnixMilli()
}
