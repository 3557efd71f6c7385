package gesture

import (
	"math"

	"github.com/segstudio/maskengine/internal/geometry"
	"github.com/segstudio/maskengine/internal/manipulation"
)

// ResizeParams is the part of a resize session the candidate math depends on.
type ResizeParams struct {
	StartBox geometry.BoundingBox
	Handle   manipulation.Handle
	// Aspect is width/height of StartBox; zero means derive it from StartBox.
	Aspect float64
	// MinSize is the minimum edge length in image pixels.
	MinSize float64
	Image   geometry.ImageSize
}

// ResizeBox computes the aspect-locked candidate box for a resize by the
// logical delta (dx, dy) measured from the gesture start.
//
// The two edges adjacent to the handle move by the delta. The dimension that
// moved less is re-derived from the aspect ratio of the start box. A box smaller
// than MinSize is grown back to the floor with the edges opposite the handle
// pinned; otherwise the box is centered on the trial box's center. A box larger
// than the image is scaled down about its center, then shifted inside.
func ResizeBox(p ResizeParams, dx, dy float64) geometry.BoundingBox {
	aspect := p.Aspect
	if aspect <= 0 || math.IsNaN(aspect) || math.IsInf(aspect, 0) {
		aspect = p.StartBox.AspectRatio()
	}

	trial := p.StartBox
	switch p.Handle {
	case manipulation.HandleNW:
		trial.X1 += dx
		trial.Y1 += dy
	case manipulation.HandleNE:
		trial.X2 += dx
		trial.Y1 += dy
	case manipulation.HandleSW:
		trial.X1 += dx
		trial.Y2 += dy
	case manipulation.HandleSE:
		trial.X2 += dx
		trial.Y2 += dy
	default:
		return p.StartBox
	}

	w := math.Max(trial.Width(), 0)
	h := math.Max(trial.Height(), 0)
	targetH := w / aspect
	targetW := h * aspect
	if math.Abs(targetH-h) > math.Abs(targetW-w) {
		h = targetH
	} else {
		w = targetW
	}

	var box geometry.BoundingBox
	if minW, minH := floorSize(p.MinSize, aspect); w < minW || h < minH {
		box = pinOpposite(p.StartBox, p.Handle, minW, minH)
	} else {
		box = geometry.CenteredBox(trial.Center(), w, h)
	}
	return fitImage(box, p.Image)
}

// floorSize returns the smallest box with the given aspect whose shorter edge
// is floor.
func floorSize(floor, aspect float64) (float64, float64) {
	if floor <= 0 {
		floor = math.SmallestNonzeroFloat64
	}
	if aspect >= 1 {
		return floor * aspect, floor
	}
	return floor, floor / aspect
}

// pinOpposite lays out a w x h box anchored at the corner opposite handle.
func pinOpposite(start geometry.BoundingBox, handle manipulation.Handle, w, h float64) geometry.BoundingBox {
	b := start
	switch handle {
	case manipulation.HandleNW:
		b.X1, b.Y1 = b.X2-w, b.Y2-h
	case manipulation.HandleNE:
		b.X2, b.Y1 = b.X1+w, b.Y2-h
	case manipulation.HandleSW:
		b.X1, b.Y2 = b.X2-w, b.Y1+h
	default:
		b.X2, b.Y2 = b.X1+w, b.Y1+h
	}
	return b
}

func fitImage(b geometry.BoundingBox, size geometry.ImageSize) geometry.BoundingBox {
	if size.Width <= 0 || size.Height <= 0 {
		return b
	}
	w, h := b.Width(), b.Height()
	if w > size.Width || h > size.Height {
		f := math.Min(size.Width/w, size.Height/h)
		b = geometry.CenteredBox(b.Center(), w*f, h*f)
	}
	return geometry.Constrain(b, size)
}
