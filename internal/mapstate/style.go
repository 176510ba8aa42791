package mapstate

import (
	"fmt"
	"strings"
)

// Style is a composite of optional drawing instructions. A nil component is
// not drawn.
type Style struct {
	Fill   *Fill
	Stroke *Stroke
	Image  Image
	Text   *Text
}

// Fill color may be any CSS color; Opacity, when set, multiplies its alpha.
type Fill struct {
	Color   string   `json:"color"`
	Opacity *float64 `json:"opacity,omitempty"`
}

type Stroke struct {
	Color   string   `json:"color"`
	Opacity *float64 `json:"opacity,omitempty"`
	// 0 means the default width of 1.25
	Width    float64   `json:"width,omitempty"`
	LineDash []float64 `json:"lineDash,omitempty"`
	LineCap  string    `json:"lineCap,omitempty"`
}

// Image is the point marker of a style: *Marker or *Icon.
type Image interface {
	image()
}

// Marker is a regular shape: circle, square, triangle, star, cross or x.
type Marker struct {
	Shape    string  `json:"shape,omitempty"`
	Radius   float64 `json:"radius"`
	Fill     *Fill   `json:"fill,omitempty"`
	Stroke   *Stroke `json:"stroke,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`
}

func (*Marker) image() {}

type Icon struct {
	Src      string   `json:"src"`
	Width    float64  `json:"width,omitempty"`
	Height   float64  `json:"height,omitempty"`
	Opacity  *float64 `json:"opacity,omitempty"`
	Rotation float64  `json:"rotation,omitempty"`
}

func (*Icon) image() {}

// Text is a label. Align is left|center|right|start|end and Baseline is
// top|middle|bottom|alphabetic|hanging|ideographic; empty means center/middle.
type Text struct {
	Label    string  `json:"label,omitempty"`
	Font     string  `json:"font,omitempty"`
	OffsetX  float64 `json:"offsetX,omitempty"`
	OffsetY  float64 `json:"offsetY,omitempty"`
	Align    string  `json:"align,omitempty"`
	Baseline string  `json:"baseline,omitempty"`
	Rotation float64 `json:"rotation,omitempty"`
	Fill     *Fill   `json:"fill,omitempty"`
	// Stroke draws a halo around the glyphs.
	Stroke *Stroke `json:"stroke,omitempty"`
}

// Styler yields the styles of a feature. Literal styles and per feature
// functions share this interface.
type Styler interface {
	Resolve(f *Feature) ([]*Style, error)
}

// Resolve makes a literal style its own styler.
func (s *Style) Resolve(*Feature) ([]*Style, error) {
	if s == nil {
		return nil, nil
	}
	return []*Style{s}, nil
}

// Styles draws every style in order.
type Styles []*Style

func (s Styles) Resolve(*Feature) ([]*Style, error) { return s, nil }

// StyleFunc computes styles per feature.
type StyleFunc func(f *Feature) ([]*Style, error)

func (fn StyleFunc) Resolve(f *Feature) ([]*Style, error) { return fn(f) }

// LabelFromProperty copies Base and sets its text label from a feature
// property. Features lacking the property keep the base label.
type LabelFromProperty struct {
	Base     *Style
	Property string
}

func (l LabelFromProperty) Resolve(f *Feature) ([]*Style, error) {
	if l.Base == nil {
		return nil, nil
	}
	st := *l.Base
	if st.Text == nil {
		return []*Style{&st}, nil
	}
	txt := *st.Text
	if v := f.Get(l.Property); v != nil {
		txt.Label = strings.TrimSpace(fmt.Sprint(v))
	}
	st.Text = &txt
	return []*Style{&st}, nil
}
