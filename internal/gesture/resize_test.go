package gesture

import (
	"math"
	"math/rand/v2"
	"testing"

	"github.com/segstudio/maskengine/internal/geometry"
	"github.com/segstudio/maskengine/internal/manipulation"
)

func TestResizeBoxScenarios(t *testing.T) {
	start := geometry.BoundingBox{X1: 100, Y1: 100, X2: 200, Y2: 200}

	tests := []struct {
		name   string
		params ResizeParams
		dx, dy float64
		want   geometry.BoundingBox
	}{
		{
			name:   "se grows inside image",
			params: ResizeParams{StartBox: start, Handle: manipulation.HandleSE, MinSize: 8, Image: geometry.ImageSize{Width: 400, Height: 400}},
			dx:     100, dy: 100,
			want: geometry.BoundingBox{X1: 100, Y1: 100, X2: 300, Y2: 300},
		},
		{
			name:   "se past the image corner",
			params: ResizeParams{StartBox: start, Handle: manipulation.HandleSE, MinSize: 8, Image: geometry.ImageSize{Width: 800, Height: 600}},
			dx:     700, dy: 500,
			want: geometry.BoundingBox{X1: 200, Y1: 0, X2: 800, Y2: 600},
		},
		{
			name:   "nw on a wide box trusts width",
			params: ResizeParams{StartBox: geometry.BoundingBox{X1: 100, Y1: 100, X2: 300, Y2: 200}, Handle: manipulation.HandleNW, MinSize: 8, Image: geometry.ImageSize{Width: 800, Height: 600}},
			dx:     50, dy: 10,
			want: geometry.BoundingBox{X1: 135, Y1: 110, X2: 315, Y2: 200},
		},
		{
			name:   "collapsed box pinned at the opposite corner",
			params: ResizeParams{StartBox: start, Handle: manipulation.HandleSE, MinSize: 8, Image: geometry.ImageSize{Width: 400, Height: 400}},
			dx:     -200, dy: -200,
			want: geometry.BoundingBox{X1: 100, Y1: 100, X2: 108, Y2: 108},
		},
		{
			name:   "collapsed nw pinned at se",
			params: ResizeParams{StartBox: start, Handle: manipulation.HandleNW, MinSize: 8, Image: geometry.ImageSize{Width: 400, Height: 400}},
			dx:     150, dy: 150,
			want: geometry.BoundingBox{X1: 192, Y1: 192, X2: 200, Y2: 200},
		},
		{
			name:   "no handle keeps the start box",
			params: ResizeParams{StartBox: start, Handle: manipulation.HandleNone, MinSize: 8},
			dx:     40, dy: 40,
			want: start,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ResizeBox(tt.params, tt.dx, tt.dy)
			if !geometry.BoxesEqual(got, tt.want, 1e-9) {
				t.Errorf("ResizeBox() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func randomBox(r *rand.Rand, size geometry.ImageSize) geometry.BoundingBox {
	x1 := r.Float64() * (size.Width - 20)
	y1 := r.Float64() * (size.Height - 20)
	w := 10 + r.Float64()*(size.Width-x1-10)
	h := 10 + r.Float64()*(size.Height-y1-10)
	return geometry.BoundingBox{X1: x1, Y1: y1, X2: x1 + w, Y2: y1 + h}
}

func TestResizeBoxProperties(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	size := geometry.ImageSize{Width: 800, Height: 600}

	for i := range 2000 {
		start := randomBox(r, size)
		handle := manipulation.Handles[r.IntN(len(manipulation.Handles))]
		scale := 1 + r.Float64()*3
		minSize := DefaultMinHandlePx / scale
		p := ResizeParams{StartBox: start, Handle: handle, MinSize: minSize, Image: size}

		var got geometry.BoundingBox
		for range 5 {
			dx := (r.Float64() - 0.5) * 2000
			dy := (r.Float64() - 0.5) * 2000
			got = ResizeBox(p, dx, dy)
		}
		committed := geometry.Constrain(got, size)

		if d := math.Abs(committed.AspectRatio() - start.AspectRatio()); d >= 0.01 {
			t.Fatalf("#%d %s: aspect %v -> %v (start %+v, got %+v)", i, handle, start.AspectRatio(), committed.AspectRatio(), start, committed)
		}
		if committed.Width() < minSize-1e-9 || committed.Height() < minSize-1e-9 {
			t.Fatalf("#%d %s: %+v below floor %v", i, handle, committed, minSize)
		}
		if !committed.Valid() || !committed.Within(size) {
			t.Fatalf("#%d %s: %+v escapes %+v", i, handle, committed, size)
		}
		if !geometry.BoxesEqual(committed, got, 1e-9) {
			t.Fatalf("#%d %s: candidate %+v changed by constrain to %+v", i, handle, got, committed)
		}
	}
}

func TestResizeBoxMinSizeTracksScale(t *testing.T) {
	start := geometry.BoundingBox{X1: 100, Y1: 100, X2: 200, Y2: 200}
	size := geometry.ImageSize{Width: 400, Height: 400}

	for _, scale := range []float64{0.5, 1, 2, 4} {
		floor := DefaultMinHandlePx / scale
		got := ResizeBox(ResizeParams{StartBox: start, Handle: manipulation.HandleNE, MinSize: floor, Image: size}, -500, 500)
		if math.Abs(got.Width()-floor) > 1e-9 || math.Abs(got.Height()-floor) > 1e-9 {
			t.Errorf("scale %v: box %+v, want %vx%v", scale, got, floor, floor)
		}
		if got.X1 != start.X1 || got.Y2 != start.Y2 {
			t.Errorf("scale %v: sw corner moved: %+v", scale, got)
		}
	}
}
