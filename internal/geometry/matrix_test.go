package geometry

import (
	"math"
	"testing"
)

func TestMatrixIsIdentity(t *testing.T) {
	tests := []struct {
		name string
		m    Matrix2D
		want bool
	}{
		{"identity", Identity(), true},
		{"zero translation", Translate(0, 0), true},
		{"translation", Translate(10, 20), false},
		{"mirror", Scale(-1, 1), false},
		{"full turn", RotateDegrees(360), true},
		{"quarter turn", RotateDegrees(90), false},
		{"inverse product", Translate(3, 4).Multiply(Translate(3, 4).Invert()), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.m.IsIdentity(); got != tt.want {
				t.Errorf("Matrix%+v.IsIdentity() = %v, want %v", tt.m, got, tt.want)
			}
		})
	}
}

func TestMatrixAbout(t *testing.T) {
	m := RotateDegrees(90).About(10, 10)
	x, y := m.TransformPoint(10, 10)
	if math.Abs(x-10) > 1e-9 || math.Abs(y-10) > 1e-9 {
		t.Fatalf("pivot moved to (%v, %v)", x, y)
	}
	x, y = m.TransformPoint(20, 10)
	if math.Abs(x-10) > 1e-9 || math.Abs(y-20) > 1e-9 {
		t.Errorf("rotated point = (%v, %v), want (10, 20)", x, y)
	}
}

func TestMatrixTransformBox(t *testing.T) {
	b := BoundingBox{0, 0, 20, 10}
	got := RotateDegrees(90).About(10, 5).TransformBox(b)
	want := BoundingBox{5, -5, 15, 15}
	if !BoxesEqual(got, want, 1e-9) {
		t.Errorf("TransformBox() = %+v, want %+v", got, want)
	}
}

func TestMatrixCSS(t *testing.T) {
	if got := Translate(5, -2).CSS(); got != "matrix(1, 0, 0, 1, 5, -2)" {
		t.Errorf("CSS() = %q", got)
	}
}
