// Package metadata keeps a mask's descriptive fields in step with its
// committed geometry.
package metadata

import (
	"context"
	"log/slog"
	"math"
	"sync"

	"github.com/segstudio/maskengine/internal/geometry"
	"github.com/segstudio/maskengine/internal/manipulation"
	"github.com/segstudio/maskengine/internal/mask"
)

// DefaultQueueSize bounds the number of masks with a pending job.
const DefaultQueueSize = 64

// StateLookup supplies the presentation transform used for orientation.
type StateLookup interface {
	Peek(maskID string) (manipulation.MaskState, bool)
}

type job struct {
	maskID string
	bbox   geometry.BoundingBox
	size   geometry.ImageSize
}

// baseline is what the segmentation run reported before any manipulation.
type baseline struct {
	box            geometry.BoundingBox
	areaPixels     int
	areaPercentage float64
	centroid       [2]int
}

// Reconciler recomputes area and position derived fields after a geometric
// commit. UpdateMetadata only enqueues; the work happens on Run's goroutine
// or in Drain. Pending jobs are keyed by mask, so a burst of commits on one
// mask collapses into its latest box.
type Reconciler struct {
	results   *mask.ResultSet
	logger    *slog.Logger
	notify    func(maskID string)
	queueSize int
	wake      chan struct{}

	// applyMu keeps batches in order between Run and Drain.
	applyMu sync.Mutex

	mu        sync.Mutex
	pending   map[string]job
	order     []string
	states    StateLookup
	resultID  string
	baselines map[string]baseline
}

// Option configures a Reconciler.
type Option func(*Reconciler)

// WithLogger sets the reconciler logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Reconciler) {
		if l != nil {
			r.logger = l
		}
	}
}

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(r *Reconciler) {
		if n > 0 {
			r.queueSize = n
		}
	}
}

// WithNotify registers a callback run after a mask's metadata was rewritten.
func WithNotify(fn func(maskID string)) Option {
	return func(r *Reconciler) { r.notify = fn }
}

// NewReconciler creates a reconciler writing into results.
func NewReconciler(results *mask.ResultSet, opts ...Option) *Reconciler {
	r := &Reconciler{
		results:   results,
		logger:    slog.New(slog.DiscardHandler),
		queueSize: DefaultQueueSize,
		wake:      make(chan struct{}, 1),
		pending:   make(map[string]job),
		baselines: make(map[string]baseline),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// SetStates wires the state store after construction; the store itself needs
// the reconciler first.
func (r *Reconciler) SetStates(s StateLookup) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = s
}

// UpdateMetadata enqueues a job and returns immediately. A job replaces any
// pending one for the same mask. When queueSize other masks are already
// pending the job is dropped.
func (r *Reconciler) UpdateMetadata(maskID string, bbox geometry.BoundingBox, size geometry.ImageSize) {
	r.mu.Lock()
	if _, ok := r.pending[maskID]; !ok {
		if len(r.order) >= r.queueSize {
			r.mu.Unlock()
			r.logger.Warn("metadata queue full, dropping update", "mask", maskID)
			return
		}
		r.order = append(r.order, maskID)
	}
	r.pending[maskID] = job{maskID: maskID, bbox: bbox, size: size}
	r.mu.Unlock()

	select {
	case r.wake <- struct{}{}:
	default:
	}
}

// Run processes jobs until ctx is done.
func (r *Reconciler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.wake:
			r.Drain()
		}
	}
}

// Drain processes every pending job on the caller's goroutine and returns how
// many it took. Hosts without a background worker call it once per frame.
func (r *Reconciler) Drain() int {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	batch := r.take()
	for _, j := range batch {
		r.Apply(j.maskID, j.bbox, j.size)
	}
	return len(batch)
}

func (r *Reconciler) take() []job {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return nil
	}
	batch := make([]job, 0, len(r.order))
	for _, id := range r.order {
		batch = append(batch, r.pending[id])
	}
	r.order = r.order[:0]
	clear(r.pending)
	return batch
}

// Apply recomputes the derived fields of one mask now. It reports whether the
// mask was found.
func (r *Reconciler) Apply(maskID string, bbox geometry.BoundingBox, size geometry.ImageSize) bool {
	base, ok := r.baseline(maskID)
	if !ok {
		r.logger.Debug("skipping metadata for unknown mask", "mask", maskID)
		return false
	}
	if size.Width <= 0 || size.Height <= 0 {
		size = r.results.ImageSize()
	}

	var tr manipulation.Transform
	r.mu.Lock()
	states := r.states
	r.mu.Unlock()
	if states != nil {
		if st, ok := states.Peek(maskID); ok {
			tr = st.Transform
		}
	}

	areaPixels := base.areaPixels
	if a := base.box.Area(); a > 0 {
		areaPixels = int(math.Round(float64(base.areaPixels) * bbox.Area() / a))
	}
	areaPct := base.areaPercentage
	if imgArea := size.Width * size.Height; imgArea > 0 {
		areaPct = math.Round(float64(areaPixels)/imgArea*10000) / 100
	}
	oldC, newC := base.box.Center(), bbox.Center()
	centroid := [2]int{
		clampInt(base.centroid[0]+int(math.Round(newC.X-oldC.X)), size.Width),
		clampInt(base.centroid[1]+int(math.Round(newC.Y-oldC.Y)), size.Height),
	}

	found := r.results.Update(maskID, func(m *mask.MaskMetadata) {
		m.AreaPixels = areaPixels
		m.AreaPercentage = areaPct
		m.Centroid = centroid
		if m.ObjectMetadata == nil {
			m.ObjectMetadata = &mask.ObjectMetadata{}
		}
		m.ObjectMetadata.Location = Location(newC, size)
		m.ObjectMetadata.RelativeSize = RelativeSize(areaPct)
		m.ObjectMetadata.Orientation = Orientation(tr.Rotation, tr.FlipHorizontal, tr.FlipVertical)
	})
	if !found {
		return false
	}
	r.logger.Debug("metadata reconciled", "mask", maskID, "area_pixels", areaPixels, "location", Location(newC, size))
	if r.notify != nil {
		r.notify(maskID)
	}
	return true
}

// baseline returns the reported values for a mask, captured the first time
// it is reconciled within the current result.
func (r *Reconciler) baseline(maskID string) (baseline, bool) {
	m, ok := r.results.Get(maskID)
	if !ok {
		return baseline{}, false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id := r.results.ResultID(); id != r.resultID {
		r.resultID = id
		clear(r.baselines)
	}
	if b, ok := r.baselines[maskID]; ok {
		return b, true
	}
	b := baseline{
		box:            m.BoundingBox,
		areaPixels:     m.AreaPixels,
		areaPercentage: m.AreaPercentage,
		centroid:       m.Centroid,
	}
	r.baselines[maskID] = b
	return b, true
}

func clampInt(v int, limit float64) int {
	if v < 0 {
		return 0
	}
	if l := int(limit); limit > 0 && v > l {
		return l
	}
	return v
}
