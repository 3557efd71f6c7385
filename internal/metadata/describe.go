package metadata

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/segstudio/maskengine/internal/geometry"
	"github.com/segstudio/maskengine/internal/mask"
)

// Location is the 3x3 grid word for a point in an image: "top-left",
// "top-center", ..., "center", ..., "bottom-right".
func Location(p geometry.Point, size geometry.ImageSize) string {
	if size.Width <= 0 || size.Height <= 0 {
		return "center"
	}
	col := third(p.X/size.Width, "left", "center", "right")
	row := third(p.Y/size.Height, "top", "middle", "bottom")
	switch {
	case row == "middle" && col == "center":
		return "center"
	case row == "middle":
		return "middle-" + col
	default:
		return row + "-" + col
	}
}

func third(f float64, lo, mid, hi string) string {
	switch {
	case f < 1.0/3:
		return lo
	case f < 2.0/3:
		return mid
	default:
		return hi
	}
}

// RelativeSize buckets an area percentage.
func RelativeSize(areaPercentage float64) string {
	switch {
	case areaPercentage < 5:
		return "small"
	case areaPercentage < 20:
		return "medium"
	default:
		return "large"
	}
}

// Orientation describes a presentation rotation and mirroring, e.g.
// "rotated 90° clockwise, mirrored horizontally".
func Orientation(rotation float64, flipH, flipV bool) string {
	deg := math.Mod(rotation, 360)
	if deg < 0 {
		deg += 360
	}
	deg = math.Round(deg)

	var parts []string
	switch {
	case deg == 0 || deg == 360:
		parts = append(parts, "upright")
	case deg == 180:
		parts = append(parts, "upside down")
	case deg <= 180:
		parts = append(parts, "rotated "+formatNum(deg)+"° clockwise")
	default:
		parts = append(parts, "rotated "+formatNum(360-deg)+"° counterclockwise")
	}
	if flipH {
		parts = append(parts, "mirrored horizontally")
	}
	if flipV {
		parts = append(parts, "mirrored vertically")
	}
	return strings.Join(parts, ", ")
}

// EditPhrase renders one adjustment as a short delta, e.g. "brightness +20%".
func EditPhrase(f geometry.EditField) string {
	switch f.Name {
	case "hue":
		return fmt.Sprintf("hue %s°", signed(f.Value))
	case "blur":
		return "blur " + formatNum(f.Value) + "px"
	default:
		return fmt.Sprintf("%s %s%%", f.Name, signed(f.Value))
	}
}

func signed(v float64) string {
	if v > 0 {
		return "+" + formatNum(v)
	}
	return formatNum(v)
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

const detailSep = "; "

// mergeDetails replaces any existing phrase for the same adjustment and
// appends the new one. A neutral value only removes the old phrase.
func mergeDetails(details string, fields []geometry.EditField) string {
	fold := cases.Fold()
	var parts []string
	if details != "" {
		parts = strings.Split(details, detailSep)
	}
	for _, f := range fields {
		prefix := fold.String(f.Name + " ")
		kept := parts[:0]
		for _, p := range parts {
			if !strings.HasPrefix(fold.String(p), prefix) {
				kept = append(kept, p)
			}
		}
		parts = kept
		if f.Value != 0 {
			parts = append(parts, EditPhrase(f))
		}
	}
	return strings.Join(parts, detailSep)
}

// EditDescriber writes image-edit deltas into a mask's appearance details.
type EditDescriber struct {
	results *mask.ResultSet
	notify  func(maskID string)
}

// NewEditDescriber creates a describer writing into results. notify may be nil.
func NewEditDescriber(results *mask.ResultSet, notify func(maskID string)) *EditDescriber {
	return &EditDescriber{results: results, notify: notify}
}

// DescribeEdit updates appearance_details synchronously.
func (d *EditDescriber) DescribeEdit(maskID string, patch geometry.ImageEditsPatch) {
	fields := patch.Fields()
	if len(fields) == 0 {
		return
	}
	ok := d.results.Update(maskID, func(m *mask.MaskMetadata) {
		if m.ObjectMetadata == nil {
			m.ObjectMetadata = &mask.ObjectMetadata{}
		}
		m.ObjectMetadata.AppearanceDetails = mergeDetails(m.ObjectMetadata.AppearanceDetails, fields)
	})
	if ok && d.notify != nil {
		d.notify(maskID)
	}
}
