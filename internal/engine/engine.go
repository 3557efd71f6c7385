package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/segstudio/maskengine/internal/geometry"
	"github.com/segstudio/maskengine/internal/gesture"
	"github.com/segstudio/maskengine/internal/manipulation"
	"github.com/segstudio/maskengine/internal/mask"
	"github.com/segstudio/maskengine/internal/metadata"
	"github.com/segstudio/maskengine/internal/overlay"
)

// DefaultHandleRadiusPx is the hit radius of a resize handle in screen pixels.
const DefaultHandleRadiusPx = 6.0

// Engine owns the mask result set, the manipulation store and the gesture
// controller. It processes commands from the frontend and returns query
// results as JSON.
type Engine struct {
	results    *mask.ResultSet
	store      *manipulation.Store
	ctrl       *gesture.Controller
	visual     *overlay.Visual
	reconciler *metadata.Reconciler
	scheduler  gesture.FrameScheduler
	logger     *slog.Logger

	handleRadius float64
	selection    string

	// Last built overlay, used for hit testing
	commands []overlay.Command

	mu      sync.Mutex
	commits []manipulation.Commit
	changed map[string]bool
	// dirty is set by commits and metadata rewrites until the next Frame.
	dirty     bool
	requested bool
}

type options struct {
	minHandlePx    float64
	equalThreshold float64
	handleRadius   float64
	scheduler      gesture.FrameScheduler
	logger         *slog.Logger
}

// Option configures an Engine.
type Option func(*options)

// WithMinHandlePx sets the minimum resize size in screen pixels.
func WithMinHandlePx(px float64) Option {
	return func(o *options) { o.minHandlePx = px }
}

// WithEqualThreshold sets the no-op commit tolerance in image pixels.
func WithEqualThreshold(px float64) Option {
	return func(o *options) { o.equalThreshold = px }
}

// WithHandleRadius sets the handle hit radius in screen pixels.
func WithHandleRadius(px float64) Option {
	return func(o *options) { o.handleRadius = px }
}

// WithFrameScheduler lets the host request animation frames, e.g. through
// requestAnimationFrame, and answer them with Frame. Without one the host is
// expected to call Tick every frame.
func WithFrameScheduler(s gesture.FrameScheduler) Option {
	return func(o *options) { o.scheduler = s }
}

// WithLogger sets the logger shared by all engine parts.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// NewEngine creates a new engine instance with an empty result set.
func NewEngine(opts ...Option) *Engine {
	o := options{
		minHandlePx:    gesture.DefaultMinHandlePx,
		equalThreshold: geometry.DefaultEqualThreshold,
		handleRadius:   DefaultHandleRadiusPx,
		logger:         slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(&o)
	}

	e := &Engine{
		results:      mask.NewResultSet(),
		visual:       overlay.NewVisual(),
		scheduler:    o.scheduler,
		logger:       o.logger,
		handleRadius: o.handleRadius,
		changed:      make(map[string]bool),
	}
	e.reconciler = metadata.NewReconciler(e.results,
		metadata.WithLogger(o.logger),
		metadata.WithNotify(e.markChanged),
	)
	e.store = manipulation.NewStore(e.results,
		manipulation.WithMetadataUpdater(e.reconciler),
		manipulation.WithEditDescriber(metadata.NewEditDescriber(e.results, e.markChanged)),
		manipulation.WithCommitListener(manipulation.CommitListenerFunc(e.recordCommit)),
		manipulation.WithEqualThreshold(o.equalThreshold),
		manipulation.WithLogger(o.logger),
	)
	e.reconciler.SetStates(e.store)
	e.ctrl = gesture.NewController(e.store, e.results,
		gesture.WithPresenter(e.visual),
		gesture.WithFrameScheduler(o.scheduler),
		gesture.WithMinHandlePx(o.minHandlePx),
		gesture.WithLogger(o.logger),
	)
	return e
}

// Store exposes the manipulation store.
func (e *Engine) Store() *manipulation.Store {
	return e.store
}

// Results exposes the current result set.
func (e *Engine) Results() *mask.ResultSet {
	return e.results
}

// --- Commands (frontend → engine) ---

// LoadResults replaces the result set with a segmentation result in JSON.
// Any open gesture is dropped and all manipulation state is cleared.
func (e *Engine) LoadResults(jsonData string) error {
	res, err := mask.ParseResult([]byte(jsonData))
	if err != nil {
		return fmt.Errorf("load results: %w", err)
	}
	e.loadResult(res)
	return nil
}

// LoadSampleResults loads the built-in sample result.
func (e *Engine) LoadSampleResults() {
	e.loadResult(mask.NewSampleResult())
}

func (e *Engine) loadResult(res *mask.Result) {
	e.resetInteraction()
	e.results.Load(res)
	e.logger.Info("results loaded", "result", res.ResultID, "masks", len(res.Masks))
}

// ClearResults drops every mask.
func (e *Engine) ClearResults() {
	e.resetInteraction()
	e.results.Clear()
}

func (e *Engine) resetInteraction() {
	e.ctrl.Abort()
	e.store.ClearResults()
	e.visual.Reset()
	e.selection = ""
	e.commands = nil
	e.reconciler.Drain()
}

// RemoveMask drops one mask from the result set.
func (e *Engine) RemoveMask(maskID string) {
	if s, ok := e.ctrl.Session(); ok && s.MaskID == maskID {
		e.ctrl.Abort()
	}
	e.results.Remove(maskID)
	e.store.RemoveMask(maskID)
	e.visual.ClearDrag(maskID)
	if e.selection == maskID {
		e.selection = ""
	}
}

// SetViewport sets the image-to-screen mapping.
func (e *Engine) SetViewport(scale, offsetX, offsetY float64) {
	e.ctrl.SetViewport(geometry.Viewport{Scale: scale, OffsetX: offsetX, OffsetY: offsetY})
}

// Select sets the selected mask. Unknown ids clear the selection.
func (e *Engine) Select(maskID string) {
	if !e.results.Has(maskID) {
		maskID = ""
	}
	e.selection = maskID
}

// PointerDown hit-tests the screen point and opens a gesture on what it hits.
// It returns the hit as JSON, or "{}" when nothing was hit. A press while
// another gesture is open is ignored and leaves the selection alone.
func (e *Engine) PointerDown(x, y float64, pointerID int) string {
	if e.ctrl.State() != gesture.Idle {
		return "{}"
	}
	e.build()
	hit, ok := overlay.HitTest(e.commands, x, y, e.handleRadius)
	if !ok {
		e.selection = ""
		return "{}"
	}
	e.selection = hit.MaskID
	e.ctrl.PointerDown(gesture.Target{MaskID: hit.MaskID, Handle: hit.Handle}, gesture.PointerEvent{ID: pointerID, X: x, Y: y})
	data, _ := json.Marshal(hit)
	return string(data)
}

// PointerMove feeds a pointer sample to the open gesture.
func (e *Engine) PointerMove(x, y float64, pointerID int) {
	e.ctrl.PointerMove(gesture.PointerEvent{ID: pointerID, X: x, Y: y})
}

// PointerUp commits the open gesture.
func (e *Engine) PointerUp(x, y float64, pointerID int) {
	e.ctrl.PointerUp(gesture.PointerEvent{ID: pointerID, X: x, Y: y})
}

// PointerCancel commits the open gesture at its last known position. Hosts
// call it on pointercancel and lostpointercapture.
func (e *Engine) PointerCancel(pointerID int) {
	e.ctrl.PointerCancel(gesture.PointerEvent{ID: pointerID})
}

// Frame answers an animation frame requested through the scheduler: it
// pushes the pending drag offset and applies queued metadata updates. It
// reports whether the overlay needs a re-render.
func (e *Engine) Frame() bool {
	e.mu.Lock()
	e.requested = true
	e.mu.Unlock()

	e.ctrl.Frame()
	e.reconciler.Drain()
	visual := e.visual.TakeDirty()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.requested = false
	changed := visual || e.dirty
	e.dirty = false
	return changed
}

// Run reconciles metadata on the caller's goroutine until ctx is done. Hosts
// that can spare a goroutine start it once; Frame and Tick still drain
// whatever is pending.
func (e *Engine) Run(ctx context.Context) error {
	return e.reconciler.Run(ctx)
}

// Tick runs the frame callback, applies queued metadata updates and returns
// the overlay commands. Called once per animation frame from the frontend.
func (e *Engine) Tick() string {
	e.Frame()
	return e.Render()
}

// FlipHorizontal toggles the horizontal mirror of a mask.
func (e *Engine) FlipHorizontal(maskID string) {
	e.store.FlipHorizontal(maskID)
}

// FlipVertical toggles the vertical mirror of a mask.
func (e *Engine) FlipVertical(maskID string) {
	e.store.FlipVertical(maskID)
}

// ToggleRotationMode switches a mask between move/resize and rotate/flip.
func (e *Engine) ToggleRotationMode(maskID string) {
	e.store.ToggleRotationMode(maskID)
}

// ToggleHidden shows or hides a mask overlay.
func (e *Engine) ToggleHidden(maskID string) {
	e.store.ToggleHidden(maskID)
}

// ResetTransform restores a mask to its reported geometry.
func (e *Engine) ResetTransform(maskID string) {
	e.store.ResetTransform(maskID)
}

// ApplyImageEdit merges a partial edit given as JSON, e.g. {"brightness":20}.
func (e *Engine) ApplyImageEdit(maskID, jsonData string) error {
	var patch geometry.ImageEditsPatch
	if err := json.Unmarshal([]byte(jsonData), &patch); err != nil {
		return fmt.Errorf("decode image edit: %w", err)
	}
	e.store.ApplyImageEdit(maskID, patch)
	return nil
}

// --- Queries (frontend ← engine) ---

// Render builds the overlay commands and returns them as JSON.
func (e *Engine) Render() string {
	e.build()
	result, _ := overlay.CommandsToJSON(e.commands)
	return result
}

func (e *Engine) build() {
	ids := e.results.IDs()
	masks := make([]mask.MaskMetadata, 0, len(ids))
	for _, id := range ids {
		if m, ok := e.results.Get(id); ok {
			masks = append(masks, m)
		}
	}
	e.commands = overlay.Build(overlay.Scene{
		Masks:    masks,
		States:   e.store,
		Viewport: e.ctrl.Viewport(),
		Visual:   e.visual,
		Selected: e.selection,
	})
}

// HitTest returns what lies under a screen point as JSON, or "{}".
func (e *Engine) HitTest(x, y float64) string {
	e.build()
	hit, ok := overlay.HitTest(e.commands, x, y, e.handleRadius)
	if !ok {
		return "{}"
	}
	data, _ := json.Marshal(hit)
	return string(data)
}

// GetMaskState returns a mask's manipulation state as JSON, or "{}".
func (e *Engine) GetMaskState(maskID string) string {
	st, ok := e.store.State(maskID)
	if !ok {
		return "{}"
	}
	data, _ := json.Marshal(st)
	return string(data)
}

// GetSelection returns the selected mask id.
func (e *Engine) GetSelection() string {
	return e.selection
}

// GetFilter returns the CSS filter string for a mask.
func (e *Engine) GetFilter(maskID string) string {
	st, ok := e.store.Peek(maskID)
	if !ok {
		return ""
	}
	return geometry.ComposeFilter(st.Transform.ImageEdits)
}

// GetMetadata returns a mask's metadata as JSON, or "{}".
func (e *Engine) GetMetadata(maskID string) string {
	m, ok := e.results.Get(maskID)
	if !ok {
		return "{}"
	}
	data, _ := json.Marshal(m)
	return string(data)
}

// GetResults returns the whole current result as JSON.
func (e *Engine) GetResults() string {
	ids := e.results.IDs()
	res := mask.Result{
		ResultID:         e.results.ResultID(),
		OriginalImageURL: e.results.ImageURL(),
		ImageWidth:       e.results.ImageSize().Width,
		ImageHeight:      e.results.ImageSize().Height,
		Masks:            make([]mask.MaskMetadata, 0, len(ids)),
	}
	for _, id := range ids {
		if m, ok := e.results.Get(id); ok {
			res.Masks = append(res.Masks, m)
		}
	}
	data, _ := json.Marshal(res)
	return string(data)
}

// GetGestureState returns the controller state, the open session and whether
// a frame is outstanding as JSON.
func (e *Engine) GetGestureState() string {
	out := map[string]any{
		"state":        e.ctrl.State().String(),
		"framePending": e.ctrl.FramePending(),
	}
	if s, ok := e.ctrl.Session(); ok {
		out["session"] = s
	}
	data, _ := json.Marshal(out)
	return string(data)
}

// TakeCommits drains the commits since the last call as JSON, for the
// frontend to forward to the relay.
func (e *Engine) TakeCommits() string {
	e.mu.Lock()
	commits := e.commits
	e.commits = nil
	e.mu.Unlock()

	if commits == nil {
		commits = []manipulation.Commit{}
	}
	data, _ := json.Marshal(commits)
	return string(data)
}

// TakeMetadataChanges drains the ids of masks whose metadata was rewritten.
func (e *Engine) TakeMetadataChanges() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.changed))
	for _, id := range e.results.IDs() {
		if e.changed[id] {
			ids = append(ids, id)
		}
	}
	clear(e.changed)
	return ids
}

func (e *Engine) recordCommit(c manipulation.Commit) {
	e.mu.Lock()
	e.commits = append(e.commits, c)
	e.mu.Unlock()
	e.invalidate()
}

func (e *Engine) markChanged(maskID string) {
	e.mu.Lock()
	e.changed[maskID] = true
	e.mu.Unlock()
	e.invalidate()
}

// invalidate marks the overlay dirty and asks the host for a frame, once per
// frame.
func (e *Engine) invalidate() {
	e.mu.Lock()
	e.dirty = true
	request := e.scheduler != nil && !e.requested
	e.requested = true
	e.mu.Unlock()
	if request {
		e.scheduler.RequestFrame()
	}
}
