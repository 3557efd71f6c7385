package gesture

import (
	"log/slog"
	"math"

	"github.com/segstudio/maskengine/internal/geometry"
	"github.com/segstudio/maskengine/internal/manipulation"
	"github.com/segstudio/maskengine/internal/typeid"
)

// DefaultMinHandlePx is the minimum resize size in screen pixels.
const DefaultMinHandlePx = 8.0

// State is the controller's position in the gesture state machine.
type State int

const (
	Idle State = iota
	Dragging
	Resizing
	Rotating
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Dragging:
		return "dragging"
	case Resizing:
		return "resizing"
	case Rotating:
		return "rotating"
	default:
		return "unknown"
	}
}

// Store is the subset of *manipulation.Store the controller drives.
type Store interface {
	State(maskID string) (manipulation.MaskState, bool)
	ActiveGesture(maskID string) manipulation.Gesture
	StartDrag(maskID string)
	UpdatePosition(maskID string, dx, dy float64)
	EndDrag(maskID string, size geometry.ImageSize)
	StartResize(maskID string, handle manipulation.Handle)
	UpdateSize(maskID string, candidate geometry.BoundingBox)
	EndResize(maskID string, size geometry.ImageSize)
	StartRotate(maskID string)
	UpdateRotation(maskID string, angle float64)
	EndRotate(maskID string, size geometry.ImageSize)
}

// ImageSizer reports the size of the image the masks belong to.
type ImageSizer interface {
	ImageSize() geometry.ImageSize
}

// Presenter receives fast-path drag offsets. It never touches canonical state.
type Presenter interface {
	PresentDrag(maskID string, offset geometry.Point)
	ClearDrag(maskID string)
}

// FrameScheduler requests one animation-frame callback. The host answers by
// calling Controller.Frame.
type FrameScheduler interface {
	RequestFrame()
}

// FrameSchedulerFunc adapts a function to FrameScheduler.
type FrameSchedulerFunc func()

func (f FrameSchedulerFunc) RequestFrame() { f() }

// Target is what the pointer went down on.
type Target struct {
	MaskID string
	Handle manipulation.Handle
}

// PointerEvent is a pointer sample in screen coordinates.
type PointerEvent struct {
	ID int     `json:"pointerId"`
	X  float64 `json:"x"`
	Y  float64 `json:"y"`
}

// Session is the ephemeral data of the open gesture.
type Session struct {
	ID        string               `json:"id"`
	MaskID    string               `json:"maskId"`
	State     State                `json:"-"`
	PointerID int                  `json:"pointerId"`
	Start     geometry.Point       `json:"start"`
	StartBox  geometry.BoundingBox `json:"startBox"`
	Handle    manipulation.Handle  `json:"handle,omitempty"`
	Aspect    float64              `json:"aspect,omitempty"`

	// rotation
	Center        geometry.Point `json:"center"`
	StartAngle    float64        `json:"startAngle"`
	StartRotation float64        `json:"startRotation"`

	// drag: latest clamped offset in image pixels
	Offset geometry.Point `json:"offset"`
}

// Controller binds pointer input to the manipulation store. At most one
// gesture is open at a time across all masks.
type Controller struct {
	store     Store
	sizer     ImageSizer
	presenter Presenter
	scheduler FrameScheduler
	logger    *slog.Logger

	viewport    geometry.Viewport
	minHandlePx float64

	state        State
	session      *Session
	framePending bool
}

// Option configures a Controller.
type Option func(*Controller)

// WithPresenter sets the fast-path drag sink.
func WithPresenter(p Presenter) Option {
	return func(c *Controller) { c.presenter = p }
}

// WithFrameScheduler sets how animation frames are requested.
func WithFrameScheduler(s FrameScheduler) Option {
	return func(c *Controller) { c.scheduler = s }
}

// WithMinHandlePx overrides the screen-space minimum resize size.
func WithMinHandlePx(px float64) Option {
	return func(c *Controller) {
		if px > 0 {
			c.minHandlePx = px
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// NewController creates an idle controller.
func NewController(store Store, sizer ImageSizer, opts ...Option) *Controller {
	c := &Controller{
		store:       store,
		sizer:       sizer,
		logger:      slog.New(slog.DiscardHandler),
		viewport:    geometry.DefaultViewport(),
		minHandlePx: DefaultMinHandlePx,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetViewport updates the image-to-screen mapping used for new gestures.
func (c *Controller) SetViewport(v geometry.Viewport) {
	c.viewport = v
}

// Viewport returns the current image-to-screen mapping.
func (c *Controller) Viewport() geometry.Viewport {
	return c.viewport
}

// State returns the current state.
func (c *Controller) State() State {
	return c.state
}

// Session returns a copy of the open session.
func (c *Controller) Session() (Session, bool) {
	if c.session == nil {
		return Session{}, false
	}
	return *c.session, true
}

// MinSize returns the minimum resize size in image pixels at the current scale.
func (c *Controller) MinSize() float64 {
	return c.minHandlePx / c.viewport.EffectiveScale()
}

// PointerDown opens a gesture on t. A valid handle outside rotation mode
// starts a resize, rotation mode starts a rotation, anything else a drag. It
// reports whether a gesture was opened.
func (c *Controller) PointerDown(t Target, ev PointerEvent) bool {
	if c.state != Idle {
		c.logger.Debug("pointer down ignored, gesture open", "mask", t.MaskID, "state", c.state.String())
		return false
	}
	st, ok := c.store.State(t.MaskID)
	if !ok || st.ActiveGesture() != manipulation.GestureNone {
		return false
	}

	s := &Session{
		ID:        typeid.NewGestureID(),
		MaskID:    t.MaskID,
		PointerID: ev.ID,
		Start:     geometry.Point{X: ev.X, Y: ev.Y},
		StartBox:  st.CurrentBoundingBox,
	}

	var want manipulation.Gesture
	switch {
	case st.IsRotationMode:
		s.State = Rotating
		s.Center = c.viewport.ToScreen(st.CurrentBoundingBox.Center())
		s.StartAngle = angleDeg(s.Center, s.Start)
		s.StartRotation = st.Transform.Rotation
		c.store.StartRotate(t.MaskID)
		want = manipulation.GestureRotate
	case t.Handle.Valid():
		s.State = Resizing
		s.Handle = t.Handle
		s.Aspect = st.CurrentBoundingBox.AspectRatio()
		c.store.StartResize(t.MaskID, t.Handle)
		want = manipulation.GestureResize
	default:
		s.State = Dragging
		c.store.StartDrag(t.MaskID)
		want = manipulation.GestureDrag
	}
	if c.store.ActiveGesture(t.MaskID) != want {
		return false
	}

	c.state = s.State
	c.session = s
	c.logger.Debug("gesture started", "gesture", s.ID, "mask", s.MaskID, "state", s.State.String())
	return true
}

// PointerMove advances the open gesture. Events from other pointers are ignored.
func (c *Controller) PointerMove(ev PointerEvent) {
	s := c.session
	if s == nil || ev.ID != s.PointerID {
		return
	}
	c.advance(s, ev)
}

// PointerUp commits the open gesture at the release position.
func (c *Controller) PointerUp(ev PointerEvent) {
	s := c.session
	if s == nil || ev.ID != s.PointerID {
		return
	}
	c.advance(s, ev)
	c.commit(s)
}

// PointerCancel treats loss of pointer capture as a release at the last
// known position.
func (c *Controller) PointerCancel(ev PointerEvent) {
	s := c.session
	if s == nil || ev.ID != s.PointerID {
		return
	}
	c.commit(s)
}

// Frame is the animation-frame callback: it pushes the latest drag offset to
// the presenter.
func (c *Controller) Frame() {
	if !c.framePending {
		return
	}
	c.framePending = false
	if s := c.session; s != nil && s.State == Dragging && c.presenter != nil {
		c.presenter.PresentDrag(s.MaskID, s.Offset)
	}
}

// FramePending reports whether a frame callback is outstanding.
func (c *Controller) FramePending() bool {
	return c.framePending
}

// Abort drops the open gesture without committing, e.g. when the result set
// is replaced under it.
func (c *Controller) Abort() {
	if s := c.session; s != nil && s.State == Dragging && c.presenter != nil {
		c.presenter.ClearDrag(s.MaskID)
	}
	c.reset()
}

func (c *Controller) advance(s *Session, ev PointerEvent) {
	scale := c.viewport.EffectiveScale()
	dx := (ev.X - s.Start.X) / scale
	dy := (ev.Y - s.Start.Y) / scale

	switch s.State {
	case Dragging:
		clamped := geometry.Constrain(s.StartBox.Translate(dx, dy), c.imageSize())
		s.Offset = geometry.Point{X: clamped.X1 - s.StartBox.X1, Y: clamped.Y1 - s.StartBox.Y1}
		c.requestFrame()
	case Resizing:
		box := ResizeBox(ResizeParams{
			StartBox: s.StartBox,
			Handle:   s.Handle,
			Aspect:   s.Aspect,
			MinSize:  c.MinSize(),
			Image:    c.imageSize(),
		}, dx, dy)
		c.store.UpdateSize(s.MaskID, box)
	case Rotating:
		cur := angleDeg(s.Center, geometry.Point{X: ev.X, Y: ev.Y})
		c.store.UpdateRotation(s.MaskID, s.StartRotation+(cur-s.StartAngle))
	}
}

func (c *Controller) commit(s *Session) {
	size := c.imageSize()
	switch s.State {
	case Dragging:
		c.store.UpdatePosition(s.MaskID, s.Offset.X, s.Offset.Y)
		c.store.EndDrag(s.MaskID, size)
		if c.presenter != nil {
			c.presenter.ClearDrag(s.MaskID)
		}
	case Resizing:
		c.store.EndResize(s.MaskID, size)
	case Rotating:
		c.store.EndRotate(s.MaskID, size)
	}
	c.logger.Debug("gesture committed", "gesture", s.ID, "mask", s.MaskID, "state", s.State.String())
	c.reset()
}

func (c *Controller) reset() {
	c.state = Idle
	c.session = nil
	c.framePending = false
}

func (c *Controller) requestFrame() {
	if c.framePending {
		return
	}
	c.framePending = true
	if c.scheduler != nil {
		c.scheduler.RequestFrame()
	}
}

func (c *Controller) imageSize() geometry.ImageSize {
	if c.sizer == nil {
		return geometry.ImageSize{}
	}
	return c.sizer.ImageSize()
}

func angleDeg(center, p geometry.Point) float64 {
	return math.Atan2(p.Y-center.Y, p.X-center.X) * 180 / math.Pi
}
