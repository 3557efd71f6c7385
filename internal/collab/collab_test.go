package collab

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/gorilla/mux"

	"github.com/segstudio/maskengine/internal/geometry"
	"github.com/segstudio/maskengine/internal/manipulation"
	"github.com/segstudio/maskengine/internal/typeid"
)

var testSize = geometry.ImageSize{Width: 900, Height: 600}

func commitOp(maskID string, box geometry.BoundingBox) Operation {
	return Operation{
		ID:   typeid.NewOpID(),
		Type: OpMaskCommit,
		Commit: &manipulation.Commit{
			MaskID:      maskID,
			Kind:        manipulation.CommitDrag,
			BoundingBox: box,
			Transform:   manipulation.NeutralTransform(),
			ImageSize:   testSize,
			Reconciled:  true,
		},
	}
}

func TestRoomStateApplyOperation(t *testing.T) {
	tests := []struct {
		name    string
		op      func() Operation
		wantErr error
	}{
		{
			name: "valid commit",
			op:   func() Operation { return commitOp("cup", geometry.BoundingBox{X1: 10, Y1: 10, X2: 110, Y2: 110}) },
		},
		{
			name: "inverted box",
			op: func() Operation {
				return commitOp("cup", geometry.BoundingBox{X1: 110, Y1: 10, X2: 10, Y2: 110})
			},
			wantErr: ErrInvalidBox,
		},
		{
			name:    "outside image",
			op:      func() Operation { return commitOp("cup", geometry.BoundingBox{X1: 850, Y1: 0, X2: 950, Y2: 100}) },
			wantErr: ErrInvalidBox,
		},
		{
			name: "other image size",
			op: func() Operation {
				op := commitOp("cup", geometry.BoundingBox{X1: 0, Y1: 0, X2: 10, Y2: 10})
				op.Commit.ImageSize = geometry.ImageSize{Width: 100, Height: 100}
				return op
			},
			wantErr: ErrInvalidBox,
		},
		{
			name:    "missing commit",
			op:      func() Operation { return Operation{Type: OpMaskCommit, MaskID: "cup"} },
			wantErr: ErrInvalidBox,
		},
		{
			name:    "remove unknown mask",
			op:      func() Operation { return Operation{Type: OpMaskRemove, MaskID: "ghost"} },
			wantErr: ErrMaskNotFound,
		},
		{
			name:    "unknown type",
			op:      func() Operation { return Operation{Type: "object.transform"} },
			wantErr: ErrUnknownOp,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rs := NewRoomState("result_a")
			// seed the room's image size
			if _, err := rs.ApplyOperation(commitOp("seed", geometry.BoundingBox{X1: 0, Y1: 0, X2: 1, Y2: 1}), "u"); err != nil {
				t.Fatalf("seed: %v", err)
			}

			seq, err := rs.ApplyOperation(tt.op(), "u1")
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ApplyOperation() error = %v, want %v", err, tt.wantErr)
				}
				if got := rs.Snapshot().ServerSeq; got != 1 {
					t.Errorf("serverSeq advanced on rejection: %d", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ApplyOperation() = %v", err)
			}
			if seq != 2 {
				t.Errorf("seq = %d, want 2", seq)
			}
		})
	}
}

func TestRoomStateSnapshot(t *testing.T) {
	rs := NewRoomState("result_a")
	rs.ApplyOperation(commitOp("plate", geometry.BoundingBox{X1: 500, Y1: 300, X2: 800, Y2: 500}), "u1")
	rs.ApplyOperation(commitOp("cup", geometry.BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}), "u2")
	rs.ApplyOperation(commitOp("cup", geometry.BoundingBox{X1: 50, Y1: 50, X2: 150, Y2: 150}), "u1")

	snap := rs.Snapshot()
	if snap.ServerSeq != 3 || snap.ImageSize != testSize {
		t.Fatalf("snapshot header = %+v", snap)
	}
	if len(snap.Masks) != 2 || snap.Masks[0].MaskID != "cup" || snap.Masks[1].MaskID != "plate" {
		t.Fatalf("masks = %+v", snap.Masks)
	}
	cup := snap.Masks[0]
	if cup.BoundingBox.X1 != 50 || cup.ServerSeq != 3 || cup.UpdatedBy != "u1" {
		t.Errorf("cup = %+v", cup)
	}

	if ops := rs.OpsSince(1); len(ops) != 2 {
		t.Errorf("OpsSince(1) = %d ops, want 2", len(ops))
	}
	if ops := rs.OpsSince(3); ops != nil {
		t.Errorf("OpsSince(3) = %v", ops)
	}

	if _, err := rs.ApplyOperation(Operation{Type: OpMaskRemove, MaskID: "plate"}, "u1"); err != nil {
		t.Fatal(err)
	}
	if got := rs.Snapshot().Masks; len(got) != 1 {
		t.Errorf("after remove: %+v", got)
	}
}

type staticTokens map[string]string

func (s staticTokens) ValidateToken(token string) (string, error) {
	if id, ok := s[token]; ok {
		return id, nil
	}
	return "", errors.New("bad token")
}

func startServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	r := mux.NewRouter()
	r.Handle("/ws/result/{resultId}", NewHandler(hub, staticTokens{"tok": "user_1"}, "playground", nil))
	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		cancel()
		<-done
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, ctx context.Context, srv *httptest.Server, path string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + path
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", path, err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readUntil(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string) Message {
	t.Helper()
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			t.Fatalf("waiting for %s: %v", msgType, err)
		}
		var msg Message
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if msg.Type == msgType {
			return msg
		}
	}
}

func send(t *testing.T, ctx context.Context, conn *websocket.Conn, msgType string, seq int64, payload any) {
	t.Helper()
	raw, err := json.Marshal(payload)
	if err != nil {
		t.Fatal(err)
	}
	data, _ := json.Marshal(Message{Type: msgType, Seq: seq, Payload: raw})
	if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestRelayCommit(t *testing.T) {
	hub, srv := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dial(t, ctx, srv, "/ws/result/playground")
	welcome := readUntil(t, ctx, alice, TypeWelcome)
	if welcome.ResultID != "playground" {
		t.Errorf("welcome resultId = %q", welcome.ResultID)
	}
	readUntil(t, ctx, alice, TypeStateSync)

	bob := dial(t, ctx, srv, "/ws/result/playground")
	readUntil(t, ctx, bob, TypeStateSync)
	readUntil(t, ctx, alice, TypePresenceJoin)

	box := geometry.BoundingBox{X1: 100, Y1: 100, X2: 300, Y2: 300}
	op := commitOp("cup", box)
	send(t, ctx, alice, TypeOpSubmit, 7, OperationSubmitPayload{Operation: op})

	ack := readUntil(t, ctx, alice, TypeOpAck)
	var ackPayload OperationAckPayload
	json.Unmarshal(ack.Payload, &ackPayload)
	if ack.Seq != 7 || ackPayload.ServerSeq != 1 || ackPayload.OperationID != op.ID {
		t.Errorf("ack = %+v %+v", ack, ackPayload)
	}

	bc := readUntil(t, ctx, bob, TypeOpBroadcast)
	var bcPayload OperationBroadcastPayload
	json.Unmarshal(bc.Payload, &bcPayload)
	if bcPayload.Operation.Commit == nil || bcPayload.Operation.Commit.BoundingBox != box {
		t.Errorf("broadcast = %+v", bcPayload)
	}

	send(t, ctx, alice, TypeOpSubmit, 8, OperationSubmitPayload{
		Operation: commitOp("cup", geometry.BoundingBox{X1: 800, Y1: 0, X2: 1000, Y2: 100}),
	})
	nack := readUntil(t, ctx, alice, TypeOpNack)
	var nackPayload OperationNackPayload
	json.Unmarshal(nack.Payload, &nackPayload)
	if !strings.Contains(nackPayload.Reason, ErrInvalidBox.Error()) {
		t.Errorf("nack reason = %q", nackPayload.Reason)
	}

	st, ok := hub.State("playground")
	if !ok || len(st.Masks) != 1 || st.Masks[0].BoundingBox != box {
		t.Errorf("hub state = %+v, %v", st, ok)
	}

	// A late joiner receives the committed geometry.
	carol := dial(t, ctx, srv, "/ws/result/playground")
	syncMsg := readUntil(t, ctx, carol, TypeStateSync)
	var syncPayload StateSyncPayload
	json.Unmarshal(syncMsg.Payload, &syncPayload)
	if len(syncPayload.Masks) != 1 || syncPayload.ServerSeq != 1 {
		t.Errorf("state.sync = %+v", syncPayload)
	}
}

func TestRelayPresence(t *testing.T) {
	_, srv := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dial(t, ctx, srv, "/ws/result/playground")
	readUntil(t, ctx, alice, TypePresenceState)
	bob := dial(t, ctx, srv, "/ws/result/playground")
	readUntil(t, ctx, bob, TypePresenceState)
	readUntil(t, ctx, alice, TypePresenceJoin)

	send(t, ctx, bob, TypePresenceUpdate, 0, PresencePayload{
		Cursor:     &CursorPos{X: 10, Y: 20},
		ActiveMask: "cup",
		Gesture:    "drag",
	})
	msg := readUntil(t, ctx, alice, TypePresenceUpdate)
	var p PresencePayload
	json.Unmarshal(msg.Payload, &p)
	if p.ActiveMask != "cup" || p.DisplayName != "Anonymous" || p.Cursor == nil || p.Cursor.Y != 20 {
		t.Errorf("presence = %+v", p)
	}

	send(t, ctx, bob, "bogus", 0, struct{}{})
	errMsg := readUntil(t, ctx, bob, TypeError)
	if !strings.Contains(string(errMsg.Payload), "bogus") {
		t.Errorf("error payload = %s", errMsg.Payload)
	}

	bob.Close(websocket.StatusNormalClosure, "")
	leave := readUntil(t, ctx, alice, TypePresenceLeave)
	if leave.UserID == "" {
		t.Error("leave without user id")
	}
}

func TestRelayRejectsCommit(t *testing.T) {
	hub, srv := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := dial(t, ctx, srv, "/ws/result/playground")
	readUntil(t, ctx, alice, TypePresenceState)
	bob := dial(t, ctx, srv, "/ws/result/playground")
	readUntil(t, ctx, bob, TypePresenceState)
	readUntil(t, ctx, alice, TypePresenceJoin)

	// bob is dragging the cup
	send(t, ctx, bob, TypePresenceUpdate, 0, PresencePayload{ActiveMask: "cup", Gesture: "drag"})
	readUntil(t, ctx, alice, TypePresenceUpdate)

	box := geometry.BoundingBox{X1: 100, Y1: 100, X2: 300, Y2: 300}
	badID := commitOp("plate", box)
	badID.ID = "op_plate"

	tests := []struct {
		name    string
		op      Operation
		wantErr error
	}{
		{"malformed op id", badID, ErrInvalidOpID},
		{"wrong id prefix", func() Operation { op := commitOp("plate", box); op.ID = typeid.NewMaskID(); return op }(), ErrInvalidOpID},
		{"mask dragged by another user", commitOp("cup", box), ErrMaskBusy},
	}
	for i, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			send(t, ctx, alice, TypeOpSubmit, int64(i+1), OperationSubmitPayload{Operation: tt.op})
			nack := readUntil(t, ctx, alice, TypeOpNack)
			var p OperationNackPayload
			json.Unmarshal(nack.Payload, &p)
			if nack.Seq != int64(i+1) || !strings.Contains(p.Reason, tt.wantErr.Error()) {
				t.Errorf("nack = %+v %+v, want %v", nack, p, tt.wantErr)
			}
		})
	}
	if st, ok := hub.State("playground"); ok && len(st.Masks) != 0 {
		t.Errorf("rejected ops reached the room state: %+v", st)
	}

	// The cup frees up once bob's gesture ends.
	send(t, ctx, bob, TypePresenceUpdate, 0, PresencePayload{ActiveMask: "cup"})
	readUntil(t, ctx, alice, TypePresenceUpdate)
	op := commitOp("cup", box)
	send(t, ctx, alice, TypeOpSubmit, 10, OperationSubmitPayload{Operation: op})
	ack := readUntil(t, ctx, alice, TypeOpAck)
	var ackPayload OperationAckPayload
	json.Unmarshal(ack.Payload, &ackPayload)
	if ackPayload.OperationID != op.ID {
		t.Errorf("ack = %+v", ackPayload)
	}

	// bob may commit his own drag.
	own := commitOp("plate", box)
	send(t, ctx, bob, TypePresenceUpdate, 0, PresencePayload{ActiveMask: "plate", Gesture: "drag"})
	send(t, ctx, bob, TypeOpSubmit, 11, OperationSubmitPayload{Operation: own})
	if ack := readUntil(t, ctx, bob, TypeOpAck); ack.Seq != 11 {
		t.Errorf("own commit ack = %+v", ack)
	}
}

func TestPresenceEditing(t *testing.T) {
	pm := NewPresenceManager()
	pm.Update("u2", &PresencePayload{ActiveMask: "cup", Gesture: "resize"})
	pm.Update("u1", &PresencePayload{ActiveMask: "cup", Gesture: "drag"})
	pm.Update("u3", &PresencePayload{ActiveMask: "cup"})
	pm.Update("u4", &PresencePayload{ActiveMask: "plate", Gesture: "drag"})

	tests := []struct {
		mask, except string
		want         []string
	}{
		{"cup", "", []string{"u1", "u2"}},
		{"cup", "u1", []string{"u2"}},
		{"plate", "u4", nil},
		{"bowl", "", nil},
	}
	for _, tt := range tests {
		got := pm.Editing(tt.mask, tt.except)
		if strings.Join(got, ",") != strings.Join(tt.want, ",") {
			t.Errorf("Editing(%q, %q) = %v, want %v", tt.mask, tt.except, got, tt.want)
		}
	}
}

func TestHandlerRequiresToken(t *testing.T) {
	_, srv := startServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	base := "ws" + strings.TrimPrefix(srv.URL, "http")
	for _, tc := range []struct {
		name  string
		query string
	}{
		{"missing", ""},
		{"invalid", "?token=nope"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			_, resp, err := websocket.Dial(ctx, base+"/ws/result/result_private"+tc.query, nil)
			if err == nil {
				t.Fatal("expected dial failure")
			}
			if resp == nil || resp.StatusCode != http.StatusUnauthorized {
				t.Errorf("response = %+v", resp)
			}
		})
	}

	conn := dial(t, ctx, srv, "/ws/result/result_private?token=tok&name=Ann")
	welcome := readUntil(t, ctx, conn, TypeWelcome)
	var w WelcomePayload
	json.Unmarshal(welcome.Payload, &w)
	if w.UserID != "user_1" || w.ClientID == "" {
		t.Errorf("welcome = %+v", w)
	}
}
