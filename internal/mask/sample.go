package mask

import (
	"github.com/segstudio/maskengine/internal/geometry"
	"github.com/segstudio/maskengine/internal/typeid"
)

// NewSampleResult builds a small two-mask result for the playground.
func NewSampleResult() *Result {
	cupID := typeid.NewMaskID()
	plateID := typeid.NewMaskID()

	return &Result{
		ResultID:         typeid.NewResultID(),
		OriginalImageURL: "/samples/breakfast.jpg",
		ImageWidth:       1024,
		ImageHeight:      768,
		Masks: []MaskMetadata{
			{
				MaskID:         cupID,
				ObjectID:       typeid.NewObjectID(),
				Label:          "coffee cup",
				Confidence:     0.94,
				BoundingBox:    geometry.BoundingBox{X1: 120, Y1: 160, X2: 320, Y2: 400},
				AreaPixels:     36200,
				AreaPercentage: 4.6,
				Centroid:       [2]int{220, 282},
				MaskURL:        "/samples/masks/cup.png",
				ObjectMetadata: &ObjectMetadata{
					Description:   "A white ceramic coffee cup with a thin handle.",
					Location:      "middle-left",
					Relationship:  "beside the plate",
					RelativeSize:  "small",
					ShapeAndColor: "cylindrical, white",
					Texture:       "glossy",
					Orientation:   "upright",
				},
			},
			{
				MaskID:         plateID,
				ObjectID:       typeid.NewObjectID(),
				Label:          "plate",
				Confidence:     0.89,
				BoundingBox:    geometry.BoundingBox{X1: 420, Y1: 300, X2: 900, Y2: 660},
				AreaPixels:     135700,
				AreaPercentage: 17.3,
				Centroid:       [2]int{660, 480},
				MaskURL:        "/samples/masks/plate.png",
				ObjectMetadata: &ObjectMetadata{
					Description:   "A round plate holding toast and eggs.",
					Location:      "bottom-right",
					RelativeSize:  "medium",
					ShapeAndColor: "round, pale blue rim",
					Orientation:   "flat",
				},
			},
		},
	}
}
