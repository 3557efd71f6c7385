package overlay

import (
	"strconv"

	"github.com/segstudio/maskengine/internal/geometry"
)

// Visual holds ephemeral presentation state written by the drag fast path.
// It is never the source of truth; a committed drag clears its entry.
type Visual struct {
	offsets map[string]geometry.Point
	dirty   bool
}

// NewVisual creates an empty visual layer.
func NewVisual() *Visual {
	return &Visual{offsets: make(map[string]geometry.Point)}
}

// PresentDrag records the clamped drag offset for a mask, in image pixels.
func (v *Visual) PresentDrag(maskID string, offset geometry.Point) {
	v.offsets[maskID] = offset
	v.dirty = true
}

// ClearDrag drops the drag offset for a mask.
func (v *Visual) ClearDrag(maskID string) {
	if _, ok := v.offsets[maskID]; ok {
		delete(v.offsets, maskID)
		v.dirty = true
	}
}

// Offset returns the drag offset for a mask, in image pixels.
func (v *Visual) Offset(maskID string) geometry.Point {
	if v == nil {
		return geometry.Point{}
	}
	return v.offsets[maskID]
}

// Reset drops every offset.
func (v *Visual) Reset() {
	clear(v.offsets)
	v.dirty = true
}

// TakeDirty reports whether the layer changed since the last call.
func (v *Visual) TakeDirty() bool {
	d := v.dirty
	v.dirty = false
	return d
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
