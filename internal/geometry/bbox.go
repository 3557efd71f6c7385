package geometry

import "math"

// DefaultEqualThreshold is the per-coordinate tolerance, in image pixels, under
// which two boxes are considered the same commit.
const DefaultEqualThreshold = 5.0

// BoundingBox is an axis-aligned rectangle in image-pixel coordinates (XYXY).
type BoundingBox struct {
	X1 float64 `json:"x1"`
	Y1 float64 `json:"y1"`
	X2 float64 `json:"x2"`
	Y2 float64 `json:"y2"`
}

// ImageSize is the logical size of the source image.
type ImageSize struct {
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Point is a 2D point or offset.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

func (b BoundingBox) Width() float64  { return b.X2 - b.X1 }
func (b BoundingBox) Height() float64 { return b.Y2 - b.Y1 }

// Valid reports whether the box has positive width and height.
func (b BoundingBox) Valid() bool {
	return b.X1 < b.X2 && b.Y1 < b.Y2
}

// Center returns the center point of the box.
func (b BoundingBox) Center() Point {
	return Point{X: (b.X1 + b.X2) / 2, Y: (b.Y1 + b.Y2) / 2}
}

// Area returns the box area, or 0 for an invalid box.
func (b BoundingBox) Area() float64 {
	if !b.Valid() {
		return 0
	}
	return b.Width() * b.Height()
}

// AspectRatio returns width/height, or 1 when the height is not positive.
func (b BoundingBox) AspectRatio() float64 {
	if b.Height() <= 0 {
		return 1
	}
	return b.Width() / b.Height()
}

// Translate returns the box shifted by (dx, dy).
func (b BoundingBox) Translate(dx, dy float64) BoundingBox {
	return BoundingBox{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// Contains checks if a point is inside the box (edges included).
func (b BoundingBox) Contains(x, y float64) bool {
	return x >= b.X1 && x <= b.X2 && y >= b.Y1 && y <= b.Y2
}

// Within reports whether the box lies inside [0,width] x [0,height].
func (b BoundingBox) Within(size ImageSize) bool {
	return b.X1 >= 0 && b.Y1 >= 0 && b.X2 <= size.Width && b.Y2 <= size.Height
}

// CenteredBox returns a box of the given size centered on c.
func CenteredBox(c Point, width, height float64) BoundingBox {
	return BoundingBox{
		X1: c.X - width/2,
		Y1: c.Y - height/2,
		X2: c.X + width/2,
		Y2: c.Y + height/2,
	}
}

// Constrain clamps a box into [0,width] x [0,height].
//
// A box that already fits is returned unchanged. When one edge overflows, that
// edge is clamped and the opposite edge moves by the same amount so the extent is
// kept; a box larger than the image on an axis shrinks to the full axis. The
// result never has a non-positive width or height.
func Constrain(b BoundingBox, size ImageSize) BoundingBox {
	b.X1, b.X2 = constrainAxis(b.X1, b.X2, size.Width)
	b.Y1, b.Y2 = constrainAxis(b.Y1, b.Y2, size.Height)
	return b
}

func constrainAxis(lo, hi, limit float64) (float64, float64) {
	if limit <= 0 {
		// Nothing to clamp against; only repair a degenerate extent.
		if hi <= lo {
			hi = lo + 1
		}
		return lo, hi
	}

	extent := hi - lo
	if extent <= 0 {
		extent = math.Min(1, limit)
	}
	if extent >= limit {
		return 0, limit
	}

	switch {
	case lo < 0:
		lo = 0
	case lo+extent > limit:
		lo = limit - extent
	}
	return lo, lo + extent
}

// BoxesEqual compares two boxes coordinate by coordinate with an absolute
// tolerance. A non-positive threshold falls back to DefaultEqualThreshold.
func BoxesEqual(a, b BoundingBox, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultEqualThreshold
	}
	return math.Abs(a.X1-b.X1) < threshold &&
		math.Abs(a.Y1-b.Y1) < threshold &&
		math.Abs(a.X2-b.X2) < threshold &&
		math.Abs(a.Y2-b.Y2) < threshold
}
