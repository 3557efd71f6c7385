package manipulation

import (
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/segstudio/maskengine/internal/geometry"
)

// Store is the arena of per-mask manipulation state, keyed by mask id.
//
// Every operation is best-effort: an id that is not part of the current result
// set, a second gesture on a busy mask, or an update without a matching open
// gesture leaves the state untouched and returns silently. Collaborators are
// called after the internal lock is released.
type Store struct {
	mu        sync.Mutex
	source    MaskSource
	states    map[string]*MaskState
	threshold float64

	updater   MetadataUpdater
	describer EditDescriber
	listeners []CommitListener
	logger    *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithMetadataUpdater sets the collaborator invoked after geometric commits.
func WithMetadataUpdater(u MetadataUpdater) Option {
	return func(s *Store) { s.updater = u }
}

// WithEditDescriber sets the collaborator invoked by ApplyImageEdit.
func WithEditDescriber(d EditDescriber) Option {
	return func(s *Store) { s.describer = d }
}

// WithCommitListener adds a commit observer.
func WithCommitListener(l CommitListener) Option {
	return func(s *Store) { s.listeners = append(s.listeners, l) }
}

// WithEqualThreshold overrides the no-op commit tolerance.
func WithEqualThreshold(px float64) Option {
	return func(s *Store) {
		if px > 0 {
			s.threshold = px
		}
	}
}

// WithLogger sets the logger used for debug traces of ignored operations.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewStore creates an empty store backed by source.
func NewStore(source MaskSource, opts ...Option) *Store {
	s := &Store{
		source:    source,
		states:    make(map[string]*MaskState),
		threshold: geometry.DefaultEqualThreshold,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// stateLocked returns the state for maskID, creating it from the reported box
// on first touch. Entries whose mask left the result set are dropped.
func (s *Store) stateLocked(maskID string) (*MaskState, bool) {
	if s.source == nil || !s.source.Has(maskID) {
		if _, stale := s.states[maskID]; stale {
			delete(s.states, maskID)
		}
		s.logger.Debug("ignoring operation on unknown mask", "mask", maskID)
		return nil, false
	}
	if st, ok := s.states[maskID]; ok {
		return st, true
	}
	box, ok := s.source.ReportedBox(maskID)
	if !ok {
		return nil, false
	}
	st := newMaskState(maskID, box)
	s.states[maskID] = st
	return st, true
}

// State returns a snapshot of a mask's state. Reading creates the entry like
// any other first interaction.
func (s *Store) State(maskID string) (MaskState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stateLocked(maskID)
	if !ok {
		return MaskState{}, false
	}
	return *st, true
}

// Peek returns a snapshot without creating an entry.
func (s *Store) Peek(maskID string) (MaskState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[maskID]
	if !ok {
		return MaskState{}, false
	}
	return *st, true
}

// States returns snapshots of every live entry, sorted by mask id.
func (s *Store) States() []MaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]MaskState, 0, len(s.states))
	for _, st := range s.states {
		out = append(out, *st)
	}
	slices.SortFunc(out, func(a, b MaskState) int { return strings.Compare(a.MaskID, b.MaskID) })
	return out
}

// Len returns the number of live entries.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.states)
}

// ActiveGesture reports the open gesture on a mask.
func (s *Store) ActiveGesture(maskID string) Gesture {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.states[maskID]
	if !ok {
		return GestureNone
	}
	return st.ActiveGesture()
}

// ClearResults drops every entry, e.g. when a new segmentation run arrives.
func (s *Store) ClearResults() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.states = make(map[string]*MaskState)
}

// RemoveMask drops one entry.
func (s *Store) RemoveMask(maskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.states, maskID)
}

// --- Drag ---

// StartDrag opens a drag gesture.
func (s *Store) StartDrag(maskID string) {
	s.startGesture(maskID, GestureDrag, HandleNone)
}

// UpdatePosition adds an already boundary-checked delta to the drag offset.
func (s *Store) UpdatePosition(maskID string, dx, dy float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stateLocked(maskID)
	if !ok || !st.IsDragging {
		return
	}
	st.Transform.Position.X += dx
	st.Transform.Position.Y += dy
}

// EndDrag folds the offset into the box, constrains it and closes the drag.
// Metadata is reconciled only when the box moved beyond the equality threshold.
func (s *Store) EndDrag(maskID string, size geometry.ImageSize) {
	s.mu.Lock()
	st, ok := s.stateLocked(maskID)
	if !ok || !st.IsDragging {
		s.mu.Unlock()
		return
	}
	off := st.Transform.Position
	st.CurrentBoundingBox = geometry.Constrain(st.CurrentBoundingBox.Translate(off.X, off.Y), size)
	st.Transform.Position = geometry.Point{}
	st.IsDragging = false
	changed := !geometry.BoxesEqual(st.CurrentBoundingBox, st.gestureBox, s.threshold)
	c := commitOf(st, CommitDrag, size, changed)
	s.mu.Unlock()

	s.publish(c)
}

// --- Resize ---

// StartResize opens a resize gesture from a corner handle.
func (s *Store) StartResize(maskID string, handle Handle) {
	if !handle.Valid() {
		return
	}
	s.startGesture(maskID, GestureResize, handle)
}

// UpdateSize stores a candidate box computed by the gesture controller.
// The candidate is not constrained until EndResize.
func (s *Store) UpdateSize(maskID string, candidate geometry.BoundingBox) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stateLocked(maskID)
	if !ok || !st.IsResizing || !candidate.Valid() {
		return
	}
	st.CurrentBoundingBox = candidate
	st.updateScale()
}

// EndResize constrains the box and closes the resize gesture.
func (s *Store) EndResize(maskID string, size geometry.ImageSize) {
	s.mu.Lock()
	st, ok := s.stateLocked(maskID)
	if !ok || !st.IsResizing {
		s.mu.Unlock()
		return
	}
	st.CurrentBoundingBox = geometry.Constrain(st.CurrentBoundingBox, size)
	st.updateScale()
	st.IsResizing = false
	st.ResizeHandle = HandleNone
	changed := !geometry.BoxesEqual(st.CurrentBoundingBox, st.gestureBox, s.threshold)
	c := commitOf(st, CommitResize, size, changed)
	s.mu.Unlock()

	s.publish(c)
}

// --- Rotate ---

// StartRotate opens a rotation gesture.
func (s *Store) StartRotate(maskID string) {
	s.startGesture(maskID, GestureRotate, HandleNone)
}

// UpdateRotation sets the absolute rotation in degrees.
func (s *Store) UpdateRotation(maskID string, angle float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stateLocked(maskID)
	if !ok || !st.IsRotating {
		return
	}
	st.Transform.Rotation = angle
}

// EndRotate closes the rotation gesture. Rotation changes the reported
// orientation, so metadata is always reconciled.
func (s *Store) EndRotate(maskID string, size geometry.ImageSize) {
	s.mu.Lock()
	st, ok := s.stateLocked(maskID)
	if !ok || !st.IsRotating {
		s.mu.Unlock()
		return
	}
	st.IsRotating = false
	c := commitOf(st, CommitRotate, size, true)
	s.mu.Unlock()

	s.publish(c)
}

// --- Immediate operations ---

// FlipHorizontal toggles the horizontal mirror.
func (s *Store) FlipHorizontal(maskID string) {
	s.flip(maskID, CommitFlipHorizontal)
}

// FlipVertical toggles the vertical mirror.
func (s *Store) FlipVertical(maskID string) {
	s.flip(maskID, CommitFlipVertical)
}

func (s *Store) flip(maskID string, kind CommitKind) {
	s.mu.Lock()
	st, ok := s.stateLocked(maskID)
	if !ok {
		s.mu.Unlock()
		return
	}
	if kind == CommitFlipHorizontal {
		st.Transform.FlipHorizontal = !st.Transform.FlipHorizontal
	} else {
		st.Transform.FlipVertical = !st.Transform.FlipVertical
	}
	c := commitOf(st, kind, s.source.ImageSize(), true)
	s.mu.Unlock()

	s.publish(c)
}

// ToggleRotationMode switches between move/resize and rotate/flip modes.
// It is ignored while a gesture is open on the mask.
func (s *Store) ToggleRotationMode(maskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stateLocked(maskID)
	if !ok || st.ActiveGesture() != GestureNone {
		return
	}
	st.IsRotationMode = !st.IsRotationMode
}

// SetHidden shows or hides the overlay of a mask.
func (s *Store) SetHidden(maskID string, hidden bool) {
	s.mu.Lock()
	st, ok := s.stateLocked(maskID)
	if !ok || st.IsHidden == hidden {
		s.mu.Unlock()
		return
	}
	st.IsHidden = hidden
	c := commitOf(st, CommitVisibility, s.source.ImageSize(), false)
	s.mu.Unlock()

	s.publish(c)
}

// ToggleHidden flips the hidden flag.
func (s *Store) ToggleHidden(maskID string) {
	st, ok := s.State(maskID)
	if !ok {
		return
	}
	s.SetHidden(maskID, !st.IsHidden)
}

// ResetTransform restores the neutral transform and the original box, closing
// any open gesture. The entry itself is kept.
func (s *Store) ResetTransform(maskID string) {
	s.mu.Lock()
	st, ok := s.stateLocked(maskID)
	if !ok {
		s.mu.Unlock()
		return
	}
	changed := !st.Transform.IsNeutral() || st.CurrentBoundingBox != st.OriginalBoundingBox
	st.Transform = NeutralTransform()
	st.CurrentBoundingBox = st.OriginalBoundingBox
	st.IsDragging = false
	st.IsResizing = false
	st.ResizeHandle = HandleNone
	st.IsRotating = false
	c := commitOf(st, CommitReset, s.source.ImageSize(), changed)
	s.mu.Unlock()

	s.publish(c)
}

// ApplyImageEdit merges a partial edit and synchronously asks the describer to
// update the mask's descriptive text.
func (s *Store) ApplyImageEdit(maskID string, patch geometry.ImageEditsPatch) {
	if patch.IsEmpty() {
		return
	}
	s.mu.Lock()
	st, ok := s.stateLocked(maskID)
	if !ok {
		s.mu.Unlock()
		return
	}
	st.Transform.ImageEdits = st.Transform.ImageEdits.Merge(patch)
	c := commitOf(st, CommitEdit, s.source.ImageSize(), false)
	describer := s.describer
	s.mu.Unlock()

	if describer != nil {
		describer.DescribeEdit(maskID, patch)
	}
	s.publish(c)
}

func (s *Store) startGesture(maskID string, g Gesture, handle Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stateLocked(maskID)
	if !ok {
		return
	}
	if active := st.ActiveGesture(); active != GestureNone {
		s.logger.Debug("gesture already active", "mask", maskID, "active", active.String(), "requested", g.String())
		return
	}
	st.beginGesture()
	switch g {
	case GestureDrag:
		st.IsDragging = true
		st.Transform.Position = geometry.Point{}
	case GestureResize:
		st.IsResizing = true
		st.ResizeHandle = handle
	case GestureRotate:
		st.IsRotating = true
	}
}

func commitOf(st *MaskState, kind CommitKind, size geometry.ImageSize, reconcile bool) Commit {
	return Commit{
		MaskID:      st.MaskID,
		Kind:        kind,
		BoundingBox: st.CurrentBoundingBox,
		Transform:   st.Transform,
		Hidden:      st.IsHidden,
		ImageSize:   size,
		Reconciled:  reconcile,
	}
}

func (s *Store) publish(c Commit) {
	s.mu.Lock()
	updater := s.updater
	listeners := append([]CommitListener(nil), s.listeners...)
	s.mu.Unlock()

	if c.Reconciled && updater != nil {
		updater.UpdateMetadata(c.MaskID, c.BoundingBox, c.ImageSize)
	}
	for _, l := range listeners {
		l.OnCommit(c)
	}
}
