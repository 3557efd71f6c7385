package engine

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"

	"github.com/segstudio/maskengine/internal/geometry"
	"github.com/segstudio/maskengine/internal/gesture"
	"github.com/segstudio/maskengine/internal/manipulation"
	"github.com/segstudio/maskengine/internal/mask"
	"github.com/segstudio/maskengine/internal/metadata"
	"github.com/segstudio/maskengine/internal/overlay"
)

const testResult = `{
	"result_id": "result_t",
	"original_image_url": "/img.png",
	"image_width": 900,
	"image_height": 600,
	"masks": [
		{"mask_id": "cup", "label": "cup", "bounding_box": {"x1": 0, "y1": 0, "x2": 100, "y2": 100},
		 "area_pixels": 7000, "area_percentage": 1.3, "centroid": [50, 50], "mask_url": "/m/cup.png",
		 "object_metadata": {"description": "a cup", "location": "top-left", "relative_size": "small",
		   "shape_and_color": "white", "orientation": "upright"}},
		{"mask_id": "plate", "label": "plate", "bounding_box": {"x1": 500, "y1": 300, "x2": 800, "y2": 500},
		 "area_pixels": 50000, "area_percentage": 9.3, "centroid": [650, 400], "mask_url": "/m/plate.png"}
	]
}`

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	e := NewEngine()
	if err := e.LoadResults(testResult); err != nil {
		t.Fatalf("LoadResults: %v", err)
	}
	return e
}

func maskState(t *testing.T, e *Engine, id string) manipulation.MaskState {
	t.Helper()
	var st manipulation.MaskState
	if err := json.Unmarshal([]byte(e.GetMaskState(id)), &st); err != nil {
		t.Fatalf("GetMaskState(%s): %v", id, err)
	}
	return st
}

func takeCommits(t *testing.T, e *Engine) []manipulation.Commit {
	t.Helper()
	var commits []manipulation.Commit
	if err := json.Unmarshal([]byte(e.TakeCommits()), &commits); err != nil {
		t.Fatalf("TakeCommits: %v", err)
	}
	return commits
}

func TestLoadResultsRejectsBadJSON(t *testing.T) {
	e := NewEngine()
	if err := e.LoadResults("{"); err == nil {
		t.Error("expected error")
	}
	if got := e.Render(); got != "[]" {
		t.Errorf("Render() = %s", got)
	}
}

func TestDragThroughEngine(t *testing.T) {
	e := newTestEngine(t)

	hit := e.PointerDown(50, 50, 1)
	if !strings.Contains(hit, `"maskId":"cup"`) {
		t.Fatalf("PointerDown hit = %s", hit)
	}
	if e.GetSelection() != "cup" {
		t.Errorf("selection = %q", e.GetSelection())
	}

	e.PointerMove(250, 350, 1)
	var cmds []overlay.Command
	if err := json.Unmarshal([]byte(e.Tick()), &cmds); err != nil {
		t.Fatal(err)
	}
	var cup overlay.Command
	for _, c := range cmds {
		if c.MaskID == "cup" {
			cup = c
		}
	}
	if cup.ContainerTransform != "translate(200px, 300px)" || !cup.Dragging {
		t.Errorf("fast path not rendered: %+v", cup)
	}
	if st := maskState(t, e, "cup"); st.CurrentBoundingBox.X1 != 0 {
		t.Errorf("store moved mid-drag: %+v", st.CurrentBoundingBox)
	}

	e.PointerUp(450, 550, 1)
	st := maskState(t, e, "cup")
	want := geometry.BoundingBox{X1: 400, Y1: 500, X2: 500, Y2: 600}
	if st.CurrentBoundingBox != want {
		t.Errorf("committed box = %+v, want %+v", st.CurrentBoundingBox, want)
	}

	commits := takeCommits(t, e)
	if len(commits) != 1 || commits[0].Kind != manipulation.CommitDrag || !commits[0].Reconciled {
		t.Fatalf("commits = %+v", commits)
	}
	if len(takeCommits(t, e)) != 0 {
		t.Error("TakeCommits did not drain")
	}

	e.Tick()
	var m mask.MaskMetadata
	if err := json.Unmarshal([]byte(e.GetMetadata("cup")), &m); err != nil {
		t.Fatal(err)
	}
	if m.ObjectMetadata.Location != "bottom-center" {
		t.Errorf("location after drag = %q, want bottom-center", m.ObjectMetadata.Location)
	}
	if changed := e.TakeMetadataChanges(); len(changed) != 1 || changed[0] != "cup" {
		t.Errorf("metadata changes = %v", changed)
	}
}

func TestResizeThroughEngine(t *testing.T) {
	e := newTestEngine(t)
	e.SetViewport(0.5, 0, 0)

	// plate se corner is at (400, 250) on screen
	hit := e.PointerDown(401, 250, 7)
	if !strings.Contains(hit, `"handle":"se"`) {
		t.Fatalf("expected se handle hit, got %s", hit)
	}
	e.PointerMove(450, 275, 7)
	e.PointerUp(450, 275, 7)

	st := maskState(t, e, "plate")
	if got, want := st.CurrentBoundingBox.AspectRatio(), 1.5; got < want-0.01 || got > want+0.01 {
		t.Errorf("aspect = %v, want %v", got, want)
	}
	if !st.CurrentBoundingBox.Within(geometry.ImageSize{Width: 900, Height: 600}) {
		t.Errorf("box escapes image: %+v", st.CurrentBoundingBox)
	}
	if st.Transform.Scale.Width <= 1 {
		t.Errorf("scale = %+v, want growth", st.Transform.Scale)
	}
}

func TestRotationModeAndFlip(t *testing.T) {
	e := newTestEngine(t)

	e.ToggleRotationMode("cup")
	e.PointerDown(100, 50, 1)
	e.PointerMove(50, 100, 1)
	e.PointerUp(50, 100, 1)
	e.FlipHorizontal("cup")

	st := maskState(t, e, "cup")
	if math.Abs(st.Transform.Rotation-90) > 1e-9 || !st.Transform.FlipHorizontal {
		t.Errorf("transform = %+v", st.Transform)
	}
	if st.CurrentBoundingBox != (geometry.BoundingBox{X1: 0, Y1: 0, X2: 100, Y2: 100}) {
		t.Errorf("box changed: %+v", st.CurrentBoundingBox)
	}

	kinds := []manipulation.CommitKind{}
	for _, c := range takeCommits(t, e) {
		kinds = append(kinds, c.Kind)
	}
	if len(kinds) != 2 || kinds[0] != manipulation.CommitRotate || kinds[1] != manipulation.CommitFlipHorizontal {
		t.Errorf("commit kinds = %v", kinds)
	}

	e.Tick()
	var m mask.MaskMetadata
	json.Unmarshal([]byte(e.GetMetadata("cup")), &m)
	if m.ObjectMetadata.Orientation != "rotated 90° clockwise, mirrored horizontally" {
		t.Errorf("orientation = %q", m.ObjectMetadata.Orientation)
	}
}

func TestImageEditAndFilter(t *testing.T) {
	e := newTestEngine(t)

	if err := e.ApplyImageEdit("cup", `{"brightness": 20, "blur": 2}`); err != nil {
		t.Fatal(err)
	}
	if err := e.ApplyImageEdit("cup", `not json`); err == nil {
		t.Error("expected decode error")
	}

	if got := e.GetFilter("cup"); got != "brightness(1.2) blur(2px)" {
		t.Errorf("GetFilter() = %q", got)
	}
	var m mask.MaskMetadata
	json.Unmarshal([]byte(e.GetMetadata("cup")), &m)
	if m.ObjectMetadata.AppearanceDetails != "brightness +20%; blur 2px" {
		t.Errorf("appearance_details = %q", m.ObjectMetadata.AppearanceDetails)
	}
}

func TestHiddenMaskNotHit(t *testing.T) {
	e := newTestEngine(t)
	e.ToggleHidden("cup")

	if got := e.HitTest(50, 50); got != "{}" {
		t.Errorf("HitTest on hidden mask = %s", got)
	}
	if strings.Contains(e.Render(), `"maskId":"cup"`) {
		t.Error("hidden mask rendered")
	}
}

func TestReloadDropsGesture(t *testing.T) {
	e := newTestEngine(t)

	e.PointerDown(50, 50, 1)
	e.PointerMove(80, 80, 1)
	e.LoadSampleResults()
	e.PointerUp(80, 80, 1)

	if !strings.Contains(e.GetGestureState(), `"state":"idle"`) {
		t.Errorf("gesture state = %s", e.GetGestureState())
	}
	if e.GetMaskState("cup") != "{}" {
		t.Error("stale mask state survived reload")
	}
	if len(takeCommits(t, e)) != 0 {
		t.Error("aborted gesture produced a commit")
	}
}

func TestRemoveMaskMidGesture(t *testing.T) {
	e := newTestEngine(t)

	e.PointerDown(50, 50, 1)
	e.RemoveMask("cup")
	e.PointerUp(80, 80, 1)

	if e.GetSelection() != "" {
		t.Errorf("selection = %q", e.GetSelection())
	}
	if strings.Contains(e.GetResults(), `"mask_id":"cup"`) {
		t.Error("removed mask still listed")
	}
}

func TestResetTransform(t *testing.T) {
	e := newTestEngine(t)

	e.PointerDown(50, 50, 1)
	e.PointerUp(150, 150, 1)
	e.FlipVertical("cup")
	e.ResetTransform("cup")

	st := maskState(t, e, "cup")
	if st.CurrentBoundingBox != st.OriginalBoundingBox || !st.Transform.IsNeutral() {
		t.Errorf("reset incomplete: %+v", st)
	}
}

func metadataOf(t *testing.T, e *Engine, id string) mask.MaskMetadata {
	t.Helper()
	var m mask.MaskMetadata
	if err := json.Unmarshal([]byte(e.GetMetadata(id)), &m); err != nil {
		t.Fatalf("GetMetadata(%s): %v", id, err)
	}
	return m
}

func TestFrameSchedulerReconcilesMetadata(t *testing.T) {
	requests := 0
	e := NewEngine(WithFrameScheduler(gesture.FrameSchedulerFunc(func() { requests++ })))
	if err := e.LoadResults(testResult); err != nil {
		t.Fatal(err)
	}

	e.PointerDown(50, 50, 1)
	e.PointerMove(650, 50, 1)
	if !e.Frame() {
		t.Error("Frame() mid-drag = false, want re-render")
	}
	before := requests
	e.PointerUp(650, 50, 1)
	if requests == before {
		t.Error("commit did not request a frame")
	}
	if !e.Frame() {
		t.Error("Frame() after commit = false, want re-render")
	}

	if st := maskState(t, e, "cup"); st.CurrentBoundingBox != (geometry.BoundingBox{X1: 600, Y1: 0, X2: 700, Y2: 100}) {
		t.Fatalf("committed box = %+v", st.CurrentBoundingBox)
	}
	m := metadataOf(t, e, "cup")
	if m.ObjectMetadata.Location != "top-right" || m.Centroid != [2]int{650, 50} {
		t.Errorf("location=%q centroid=%v, want top-right [650 50]", m.ObjectMetadata.Location, m.Centroid)
	}
	if changed := e.TakeMetadataChanges(); len(changed) != 1 || changed[0] != "cup" {
		t.Errorf("metadata changes = %v", changed)
	}
	if e.Frame() {
		t.Error("idle Frame() = true, want no re-render")
	}
}

func TestFrameBurstKeepsLatestMetadata(t *testing.T) {
	e := NewEngine(WithFrameScheduler(gesture.FrameSchedulerFunc(func() {})))
	if err := e.LoadResults(testResult); err != nil {
		t.Fatal(err)
	}

	// More commits than the queue holds, with no frame in between.
	for i := 0; i < metadata.DefaultQueueSize; i++ {
		e.PointerDown(50, 50, 1)
		e.PointerUp(60, 50, 1)
		e.PointerDown(60, 50, 1)
		e.PointerUp(50, 50, 1)
	}
	e.PointerDown(50, 50, 1)
	e.PointerUp(50, 550, 1)
	e.Frame()

	if m := metadataOf(t, e, "cup"); m.ObjectMetadata.Location != "bottom-left" {
		t.Errorf("location after burst = %q, want bottom-left", m.ObjectMetadata.Location)
	}
}

func TestEngineRunReconciles(t *testing.T) {
	e := newTestEngine(t)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- e.Run(ctx) }()

	e.PointerDown(50, 50, 1)
	e.PointerUp(50, 550, 1)

	deadline := time.After(2 * time.Second)
	for {
		if changed := e.TakeMetadataChanges(); len(changed) == 1 && changed[0] == "cup" {
			break
		}
		select {
		case <-deadline:
			t.Fatal("Run did not reconcile the commit")
		case <-time.After(5 * time.Millisecond):
		}
	}
	if m := metadataOf(t, e, "cup"); m.ObjectMetadata.Location != "bottom-left" {
		t.Errorf("location = %q", m.ObjectMetadata.Location)
	}

	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want context.Canceled", err)
	}
}

func TestPointerDownIgnoredMidGesture(t *testing.T) {
	e := newTestEngine(t)

	e.PointerDown(50, 50, 1)
	e.PointerMove(60, 60, 1)
	if got := e.PointerDown(650, 400, 2); got != "{}" {
		t.Errorf("second PointerDown = %s, want {}", got)
	}
	if e.GetSelection() != "cup" {
		t.Errorf("selection = %q, want cup", e.GetSelection())
	}
	var gs struct {
		State        string          `json:"state"`
		FramePending bool            `json:"framePending"`
		Session      gesture.Session `json:"session"`
	}
	if err := json.Unmarshal([]byte(e.GetGestureState()), &gs); err != nil {
		t.Fatal(err)
	}
	if gs.State != "dragging" || gs.Session.MaskID != "cup" {
		t.Errorf("gesture state = %+v", gs)
	}

	var cmds []overlay.Command
	if err := json.Unmarshal([]byte(e.Render()), &cmds); err != nil {
		t.Fatal(err)
	}
	if last := cmds[len(cmds)-1]; last.MaskID != "cup" {
		t.Errorf("top of draw order = %q, want cup", last.MaskID)
	}

	e.PointerUp(60, 60, 1)
	if got := e.PointerDown(650, 400, 2); !strings.Contains(got, `"maskId":"plate"`) || e.GetSelection() != "plate" {
		t.Errorf("PointerDown after release = %s, selection %q", got, e.GetSelection())
	}
}
