package geometry

import (
	"strconv"
	"strings"
)

// ImageEdits holds per-mask adjustment values. Zero is neutral for every field.
type ImageEdits struct {
	Brightness float64 `json:"brightness"`
	Contrast   float64 `json:"contrast"`
	Saturation float64 `json:"saturation"`
	Hue        float64 `json:"hue"`
	Blur       float64 `json:"blur"`
	Exposure   float64 `json:"exposure"`
	Vibrance   float64 `json:"vibrance"`
}

// ImageEditsPatch is a partial update; nil fields are left untouched.
type ImageEditsPatch struct {
	Brightness *float64 `json:"brightness,omitempty"`
	Contrast   *float64 `json:"contrast,omitempty"`
	Saturation *float64 `json:"saturation,omitempty"`
	Hue        *float64 `json:"hue,omitempty"`
	Blur       *float64 `json:"blur,omitempty"`
	Exposure   *float64 `json:"exposure,omitempty"`
	Vibrance   *float64 `json:"vibrance,omitempty"`
}

// EditField is one named adjustment, in the fixed order used for display.
type EditField struct {
	Name  string
	Value float64
}

// IsNeutral reports whether every adjustment is at its neutral value.
func (e ImageEdits) IsNeutral() bool {
	return e == ImageEdits{}
}

// Merge returns a copy of e with the patch's provided keys applied.
func (e ImageEdits) Merge(p ImageEditsPatch) ImageEdits {
	if p.Brightness != nil {
		e.Brightness = *p.Brightness
	}
	if p.Contrast != nil {
		e.Contrast = *p.Contrast
	}
	if p.Saturation != nil {
		e.Saturation = *p.Saturation
	}
	if p.Hue != nil {
		e.Hue = *p.Hue
	}
	if p.Blur != nil {
		e.Blur = *p.Blur
	}
	if p.Exposure != nil {
		e.Exposure = *p.Exposure
	}
	if p.Vibrance != nil {
		e.Vibrance = *p.Vibrance
	}
	return e
}

// Fields lists the keys present in the patch.
func (p ImageEditsPatch) Fields() []EditField {
	var out []EditField
	add := func(name string, v *float64) {
		if v != nil {
			out = append(out, EditField{Name: name, Value: *v})
		}
	}
	add("brightness", p.Brightness)
	add("contrast", p.Contrast)
	add("saturation", p.Saturation)
	add("hue", p.Hue)
	add("blur", p.Blur)
	add("exposure", p.Exposure)
	add("vibrance", p.Vibrance)
	return out
}

// IsEmpty reports whether the patch carries no keys.
func (p ImageEditsPatch) IsEmpty() bool {
	return len(p.Fields()) == 0
}

// ComposeFilter converts edit values into a CSS filter string.
//
// Order: brightness, contrast, exposure (as brightness), saturation, vibrance
// (as half-weighted saturate), hue-rotate, blur. Neutral terms are omitted and
// an all-neutral struct yields "".
func ComposeFilter(e ImageEdits) string {
	var terms []string
	if e.Brightness != 0 {
		terms = append(terms, "brightness("+formatNum(1+e.Brightness/100)+")")
	}
	if e.Contrast != 0 {
		terms = append(terms, "contrast("+formatNum(1+e.Contrast/100)+")")
	}
	if e.Exposure != 0 {
		terms = append(terms, "brightness("+formatNum(1+e.Exposure/100)+")")
	}
	if e.Saturation != 0 {
		terms = append(terms, "saturate("+formatNum(1+e.Saturation/100)+")")
	}
	if e.Vibrance != 0 {
		terms = append(terms, "saturate("+formatNum(1+e.Vibrance/200)+")")
	}
	if e.Hue != 0 {
		terms = append(terms, "hue-rotate("+formatNum(e.Hue)+"deg)")
	}
	if e.Blur != 0 {
		terms = append(terms, "blur("+formatNum(e.Blur)+"px)")
	}
	return strings.Join(terms, " ")
}

func formatNum(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
