package overlay

import (
	"strings"

	"github.com/segstudio/maskengine/internal/geometry"
	"github.com/segstudio/maskengine/internal/manipulation"
)

// Layer is the DOM element an op is applied to. Rotation and position go on
// the container; flips go on the content inside it, so both compose.
type Layer int

const (
	Container Layer = iota
	Content
)

// Op is one presentation transform. The concrete types are Flip, Rotate and
// Position.
type Op interface {
	Layer() Layer
	// Matrix returns the op in screen space, pivoting on center.
	Matrix(center geometry.Point) geometry.Matrix2D
	CSS() string
}

// Flip mirrors the content about the box center.
type Flip struct {
	Horizontal bool
	Vertical   bool
}

func (Flip) Layer() Layer { return Content }

func (f Flip) Matrix(center geometry.Point) geometry.Matrix2D {
	return geometry.Scale(f.sx(), f.sy()).About(center.X, center.Y)
}

func (f Flip) CSS() string {
	return "scale(" + formatNum(f.sx()) + ", " + formatNum(f.sy()) + ")"
}

func (f Flip) sx() float64 {
	if f.Horizontal {
		return -1
	}
	return 1
}

func (f Flip) sy() float64 {
	if f.Vertical {
		return -1
	}
	return 1
}

// Rotate turns the container about the box center, in degrees.
type Rotate struct {
	Degrees float64
}

func (Rotate) Layer() Layer { return Container }

func (r Rotate) Matrix(center geometry.Point) geometry.Matrix2D {
	return geometry.RotateDegrees(r.Degrees).About(center.X, center.Y)
}

func (r Rotate) CSS() string {
	return "rotate(" + formatNum(r.Degrees) + "deg)"
}

// Position is the in-flight drag offset, in screen pixels.
type Position struct {
	X, Y float64
}

func (Position) Layer() Layer { return Container }

func (p Position) Matrix(geometry.Point) geometry.Matrix2D {
	return geometry.Translate(p.X, p.Y)
}

func (p Position) CSS() string {
	return "translate(" + formatNum(p.X) + "px, " + formatNum(p.Y) + "px)"
}

// Stack is an ordered list of ops, first applied first.
type Stack []Op

// NewStack builds the stack for a transform in the fixed order flip, rotate,
// position. Neutral ops are left out. offset is the drag offset in screen
// pixels.
func NewStack(t manipulation.Transform, offset geometry.Point) Stack {
	var s Stack
	if t.FlipHorizontal || t.FlipVertical {
		s = append(s, Flip{Horizontal: t.FlipHorizontal, Vertical: t.FlipVertical})
	}
	if t.Rotation != 0 {
		s = append(s, Rotate{Degrees: t.Rotation})
	}
	if offset.X != 0 || offset.Y != 0 {
		s = append(s, Position{X: offset.X, Y: offset.Y})
	}
	return s
}

// Matrix composes the whole stack in screen space.
func (s Stack) Matrix(center geometry.Point) geometry.Matrix2D {
	m := geometry.Identity()
	for _, op := range s {
		m = op.Matrix(center).Multiply(m)
	}
	return m
}

// LayerMatrix composes only the ops of one layer.
func (s Stack) LayerMatrix(layer Layer, center geometry.Point) geometry.Matrix2D {
	m := geometry.Identity()
	for _, op := range s {
		if op.Layer() == layer {
			m = op.Matrix(center).Multiply(m)
		}
	}
	return m
}

// ContainerCSS is the CSS transform for the container element.
func (s Stack) ContainerCSS() string {
	return s.css(Container)
}

// ContentCSS is the CSS transform for the content element.
func (s Stack) ContentCSS() string {
	return s.css(Content)
}

// css lists ops of one layer outermost first, since CSS applies the
// rightmost function first.
func (s Stack) css(layer Layer) string {
	var parts []string
	for i := len(s) - 1; i >= 0; i-- {
		if s[i].Layer() == layer {
			parts = append(parts, s[i].CSS())
		}
	}
	return strings.Join(parts, " ")
}
