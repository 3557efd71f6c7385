package manipulation

import "github.com/segstudio/maskengine/internal/geometry"

// Handle identifies a corner resize affordance.
type Handle string

const (
	HandleNone Handle = ""
	HandleNW   Handle = "nw"
	HandleNE   Handle = "ne"
	HandleSW   Handle = "sw"
	HandleSE   Handle = "se"
)

// Handles lists the corner handles in hit-test order.
var Handles = []Handle{HandleNW, HandleNE, HandleSW, HandleSE}

// Valid reports whether h is one of the four corners.
func (h Handle) Valid() bool {
	switch h {
	case HandleNW, HandleNE, HandleSW, HandleSE:
		return true
	}
	return false
}

// Gesture is the kind of pointer gesture active on a mask.
type Gesture int

const (
	GestureNone Gesture = iota
	GestureDrag
	GestureResize
	GestureRotate
)

func (g Gesture) String() string {
	switch g {
	case GestureNone:
		return "none"
	case GestureDrag:
		return "drag"
	case GestureResize:
		return "resize"
	case GestureRotate:
		return "rotate"
	default:
		return "unknown"
	}
}

// ScaleRatio is current-to-original box size. Informational only.
type ScaleRatio struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Transform is the presentation state layered on top of the canonical box.
type Transform struct {
	Position       geometry.Point      `json:"position"`
	Scale          ScaleRatio          `json:"scale"`
	Rotation       float64             `json:"rotation"`
	FlipHorizontal bool                `json:"flipHorizontal"`
	FlipVertical   bool                `json:"flipVertical"`
	ImageEdits     geometry.ImageEdits `json:"imageEdits"`
}

// NeutralTransform returns the transform of an untouched mask.
func NeutralTransform() Transform {
	return Transform{Scale: ScaleRatio{Width: 1, Height: 1}}
}

// IsNeutral reports whether t equals NeutralTransform.
func (t Transform) IsNeutral() bool {
	return t == NeutralTransform()
}

// MaskState is the manipulation state of one mask.
type MaskState struct {
	MaskID              string               `json:"maskId"`
	OriginalBoundingBox geometry.BoundingBox `json:"originalBoundingBox"`
	CurrentBoundingBox  geometry.BoundingBox `json:"currentBoundingBox"`
	Transform           Transform            `json:"transform"`
	IsDragging          bool                 `json:"isDragging"`
	IsResizing          bool                 `json:"isResizing"`
	ResizeHandle        Handle               `json:"resizeHandle"`
	IsRotating          bool                 `json:"isRotating"`
	IsRotationMode      bool                 `json:"isRotationMode"`
	IsHidden            bool                 `json:"isHidden"`

	// box at the moment the open gesture started
	gestureBox geometry.BoundingBox
}

// ActiveGesture reports which gesture, if any, is open.
func (s *MaskState) ActiveGesture() Gesture {
	switch {
	case s.IsDragging:
		return GestureDrag
	case s.IsResizing:
		return GestureResize
	case s.IsRotating:
		return GestureRotate
	default:
		return GestureNone
	}
}

func newMaskState(maskID string, box geometry.BoundingBox) *MaskState {
	return &MaskState{
		MaskID:              maskID,
		OriginalBoundingBox: box,
		CurrentBoundingBox:  box,
		Transform:           NeutralTransform(),
	}
}

func (s *MaskState) beginGesture() {
	s.gestureBox = s.CurrentBoundingBox
}

func (s *MaskState) updateScale() {
	orig := s.OriginalBoundingBox
	cur := s.CurrentBoundingBox
	if orig.Width() <= 0 || orig.Height() <= 0 {
		s.Transform.Scale = ScaleRatio{Width: 1, Height: 1}
		return
	}
	s.Transform.Scale = ScaleRatio{
		Width:  cur.Width() / orig.Width(),
		Height: cur.Height() / orig.Height(),
	}
}
