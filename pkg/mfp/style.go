package mfp

import (
	"bytes"
	"encoding/json"
	"fmt"
)

const (
	SymbolizerPoint   = "point"
	SymbolizerLine    = "line"
	SymbolizerPolygon = "polygon"
	SymbolizerText    = "text"
)

// StyleVersion is the version of the rule based style grammar.
const StyleVersion = 2

// Symbolizer is one rendering instruction of a style rule.
type Symbolizer interface {
	SymbolizerType() string
}

type Fill struct {
	FillColor   string  `json:"fillColor"`
	FillOpacity float64 `json:"fillOpacity"`
}

type Stroke struct {
	StrokeColor     string  `json:"strokeColor"`
	StrokeOpacity   float64 `json:"strokeOpacity"`
	StrokeWidth     float64 `json:"strokeWidth"`
	StrokeDashstyle string  `json:"strokeDashstyle,omitempty"`
	StrokeLinecap   string  `json:"strokeLinecap,omitempty"`
}

type Halo struct {
	HaloColor   string  `json:"haloColor"`
	HaloOpacity float64 `json:"haloOpacity"`
	HaloRadius  float64 `json:"haloRadius"`
}

type PolygonSymbolizer struct {
	*Fill
	*Stroke
}

func (s *PolygonSymbolizer) SymbolizerType() string { return SymbolizerPolygon }

func (s *PolygonSymbolizer) MarshalJSON() ([]byte, error) {
	type alias PolygonSymbolizer
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{SymbolizerPolygon, (*alias)(s)})
}

type LineSymbolizer struct {
	Stroke
}

func (s *LineSymbolizer) SymbolizerType() string { return SymbolizerLine }

func (s *LineSymbolizer) MarshalJSON() ([]byte, error) {
	type alias LineSymbolizer
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{SymbolizerLine, (*alias)(s)})
}

// PointSymbolizer draws either a well known marker (GraphicName) or an
// external image (ExternalGraphic).
type PointSymbolizer struct {
	GraphicName     string  `json:"graphicName,omitempty"`
	ExternalGraphic string  `json:"externalGraphic,omitempty"`
	PointRadius     float64 `json:"pointRadius,omitempty"`
	GraphicWidth    float64 `json:"graphicWidth,omitempty"`
	GraphicHeight   float64 `json:"graphicHeight,omitempty"`
	GraphicOpacity  float64 `json:"graphicOpacity,omitempty"`
	Rotation        float64 `json:"rotation,omitempty"`
	*Fill
	*Stroke
}

func (s *PointSymbolizer) SymbolizerType() string { return SymbolizerPoint }

func (s *PointSymbolizer) MarshalJSON() ([]byte, error) {
	type alias PointSymbolizer
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{SymbolizerPoint, (*alias)(s)})
}

type TextSymbolizer struct {
	Label         string  `json:"label"`
	FontFamily    string  `json:"fontFamily"`
	LabelXOffset  float64 `json:"labelXOffset"`
	LabelYOffset  float64 `json:"labelYOffset"`
	LabelAlign    string  `json:"labelAlign"`
	LabelRotation float64 `json:"labelRotation,omitempty"`
	FillColor     string  `json:"fillColor"`
	FillOpacity   float64 `json:"fillOpacity"`
	FontColor     string  `json:"fontColor"`
	*Halo
}

func (s *TextSymbolizer) SymbolizerType() string { return SymbolizerText }

func (s *TextSymbolizer) MarshalJSON() ([]byte, error) {
	type alias TextSymbolizer
	return json.Marshal(struct {
		Type string `json:"type"`
		*alias
	}{SymbolizerText, (*alias)(s)})
}

// StyleRule pairs a filter expression with the symbolizers it selects.
type StyleRule struct {
	Filter      string
	Symbolizers []Symbolizer
}

// StyleDocument is a rule based style. It marshals as
// {"version": 2, "<filter>": {"symbolizers": [...]}, ...} keeping rule order.
type StyleDocument struct {
	Version int
	Rules   []StyleRule
}

// RuleFilter builds the "[attr = 'value']" expression matching one property value.
func RuleFilter(attr, value string) string {
	return fmt.Sprintf("[%s = '%s']", attr, value)
}

func (d *StyleDocument) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"version":`)
	v := d.Version
	if v == 0 {
		v = StyleVersion
	}
	fmt.Fprintf(&buf, "%d", v)
	for _, r := range d.Rules {
		k, err := json.Marshal(r.Filter)
		if err != nil {
			return nil, fmt.Errorf("marshal rule filter: %w", err)
		}
		syms := r.Symbolizers
		if syms == nil {
			syms = []Symbolizer{}
		}
		body, err := json.Marshal(struct {
			Symbolizers []Symbolizer `json:"symbolizers"`
		}{syms})
		if err != nil {
			return nil, fmt.Errorf("marshal rule %s: %w", r.Filter, err)
		}
		buf.WriteByte(',')
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(body)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
