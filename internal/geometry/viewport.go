package geometry

// Viewport maps image coordinates to screen coordinates:
// screen = image*Scale + Offset.
type Viewport struct {
	Scale   float64 `json:"scale"`
	OffsetX float64 `json:"offsetX"`
	OffsetY float64 `json:"offsetY"`
}

// DefaultViewport shows the image at its natural size.
func DefaultViewport() Viewport {
	return Viewport{Scale: 1}
}

// EffectiveScale returns Scale, or 1 when Scale is not positive.
func (v Viewport) EffectiveScale() float64 {
	if v.Scale <= 0 {
		return 1
	}
	return v.Scale
}

// ToScreen converts an image point to screen coordinates.
func (v Viewport) ToScreen(p Point) Point {
	s := v.EffectiveScale()
	return Point{X: p.X*s + v.OffsetX, Y: p.Y*s + v.OffsetY}
}

// ToImage converts a screen point to image coordinates.
func (v Viewport) ToImage(x, y float64) Point {
	s := v.EffectiveScale()
	return Point{X: (x - v.OffsetX) / s, Y: (y - v.OffsetY) / s}
}

// BoxToScreen converts an image-space box to screen coordinates.
func (v Viewport) BoxToScreen(b BoundingBox) BoundingBox {
	return v.Matrix().TransformBox(b)
}

// Matrix returns the image-to-screen matrix.
func (v Viewport) Matrix() Matrix2D {
	s := v.EffectiveScale()
	return Translate(v.OffsetX, v.OffsetY).Multiply(Scale(s, s))
}
