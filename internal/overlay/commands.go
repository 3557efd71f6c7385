package overlay

import (
	"encoding/json"
	"math"

	"github.com/segstudio/maskengine/internal/geometry"
	"github.com/segstudio/maskengine/internal/manipulation"
	"github.com/segstudio/maskengine/internal/mask"
)

// StateLookup returns manipulation state without creating entries.
type StateLookup interface {
	Peek(maskID string) (manipulation.MaskState, bool)
}

// Scene is everything Build needs to lay out the overlays.
type Scene struct {
	Masks    []mask.MaskMetadata
	States   StateLookup
	Viewport geometry.Viewport
	Visual   *Visual
	Selected string
}

// HandlePoint is a resize handle position in screen space.
type HandlePoint struct {
	Handle manipulation.Handle `json:"handle"`
	X      float64             `json:"x"`
	Y      float64             `json:"y"`
}

// Command is one mask overlay for the frontend to lay out.
type Command struct {
	Op     string `json:"op"` // always "mask"
	MaskID string `json:"maskId"`
	Label  string `json:"label,omitempty"`

	// Rect is the un-rotated, un-flipped box in screen space.
	Rect geometry.BoundingBox `json:"rect"`
	// Transform is the full stack as an [a, b, c, d, e, f] screen-space matrix.
	Transform          []float64 `json:"transform"`
	ContainerTransform string    `json:"containerTransform,omitempty"`
	ContentTransform   string    `json:"contentTransform,omitempty"`
	Filter             string    `json:"filter,omitempty"`
	MaskURL            string    `json:"maskUrl,omitempty"`

	Selected         bool          `json:"selected,omitempty"`
	Dragging         bool          `json:"dragging,omitempty"`
	ShowHandles      bool          `json:"showHandles"`
	ShowFlipControls bool          `json:"showFlipControls"`
	Handles          []HandlePoint `json:"handles,omitempty"`

	container geometry.Matrix2D
}

// Build compiles the scene into overlay commands in painter's order (back to
// front). Hidden masks are skipped; the selected mask is drawn last.
func Build(sc Scene) []Command {
	commands := make([]Command, 0, len(sc.Masks))
	var selected *Command
	for _, m := range sc.Masks {
		cmd, ok := buildMask(sc, m)
		if !ok {
			continue
		}
		if cmd.Selected {
			selected = &cmd
			continue
		}
		commands = append(commands, cmd)
	}
	if selected != nil {
		commands = append(commands, *selected)
	}
	return commands
}

func buildMask(sc Scene, m mask.MaskMetadata) (Command, bool) {
	st, ok := manipulation.MaskState{}, false
	if sc.States != nil {
		st, ok = sc.States.Peek(m.MaskID)
	}
	if !ok {
		st = manipulation.MaskState{
			MaskID:              m.MaskID,
			OriginalBoundingBox: m.BoundingBox,
			CurrentBoundingBox:  m.BoundingBox,
			Transform:           manipulation.NeutralTransform(),
		}
	}
	if st.IsHidden {
		return Command{}, false
	}

	scale := sc.Viewport.EffectiveScale()
	off := sc.Visual.Offset(m.MaskID)
	rect := sc.Viewport.BoxToScreen(st.CurrentBoundingBox)
	stack := NewStack(st.Transform, geometry.Point{X: off.X * scale, Y: off.Y * scale})
	center := rect.Center()
	container := stack.LayerMatrix(Container, center)

	cmd := Command{
		Op:                 "mask",
		MaskID:             m.MaskID,
		Label:              m.Label,
		Rect:               rect,
		Transform:          stack.Matrix(center).ToSlice(),
		ContainerTransform: stack.ContainerCSS(),
		ContentTransform:   stack.ContentCSS(),
		Filter:             geometry.ComposeFilter(st.Transform.ImageEdits),
		MaskURL:            m.MaskURL,
		Selected:           m.MaskID == sc.Selected,
		Dragging:           st.IsDragging,
		ShowHandles:        !st.IsRotationMode,
		ShowFlipControls:   st.IsRotationMode,
		container:          container,
	}
	if cmd.ShowHandles {
		cmd.Handles = handlePoints(rect, container)
	}
	return cmd, true
}

func handlePoints(rect geometry.BoundingBox, m geometry.Matrix2D) []HandlePoint {
	corners := map[manipulation.Handle][2]float64{
		manipulation.HandleNW: {rect.X1, rect.Y1},
		manipulation.HandleNE: {rect.X2, rect.Y1},
		manipulation.HandleSW: {rect.X1, rect.Y2},
		manipulation.HandleSE: {rect.X2, rect.Y2},
	}
	out := make([]HandlePoint, 0, len(manipulation.Handles))
	for _, h := range manipulation.Handles {
		c := corners[h]
		x, y := m.TransformPoint(c[0], c[1])
		out = append(out, HandlePoint{Handle: h, X: x, Y: y})
	}
	return out
}

// CommandsToJSON serializes commands to JSON.
func CommandsToJSON(commands []Command) (string, error) {
	if commands == nil {
		commands = []Command{}
	}
	data, err := json.Marshal(commands)
	if err != nil {
		return "[]", err
	}
	return string(data), nil
}

// Hit is the result of a hit test. Handle is empty for a body hit.
type Hit struct {
	MaskID string              `json:"maskId"`
	Handle manipulation.Handle `json:"handle,omitempty"`
}

// HitTest finds what lies under the screen point (x, y). Handles win over
// bodies and the frontmost command wins within each pass. Bodies are tested in
// the container's rotated frame.
func HitTest(commands []Command, x, y, handleRadius float64) (Hit, bool) {
	for i := len(commands) - 1; i >= 0; i-- {
		cmd := commands[i]
		for _, hp := range cmd.Handles {
			if math.Hypot(x-hp.X, y-hp.Y) <= handleRadius {
				return Hit{MaskID: cmd.MaskID, Handle: hp.Handle}, true
			}
		}
	}
	for i := len(commands) - 1; i >= 0; i-- {
		cmd := commands[i]
		lx, ly := cmd.container.Invert().TransformPoint(x, y)
		if cmd.Rect.Contains(lx, ly) {
			return Hit{MaskID: cmd.MaskID}, true
		}
	}
	return Hit{}, false
}
