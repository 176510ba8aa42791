// Package colors normalizes CSS-like color strings into the hex + opacity
// pair understood by the print service.
package colors

import (
	"errors"
	"fmt"
	"image/color"
	"strconv"
	"strings"

	"golang.org/x/image/colornames"
)

var ErrInvalidColor = errors.New("invalid color")

// Color is a normalized color: Hex is always "#rrggbb" in lower case.
type Color struct {
	Hex     string
	Opacity float64
}

// Normalize accepts named colors, #rgb, #rgba, #rrggbb, #rrggbbaa, rgb() and
// rgba() and returns one consistent form. The alpha channel becomes Opacity
// without rounding.
func Normalize(s string) (Color, error) {
	in := strings.ToLower(strings.TrimSpace(s))
	switch {
	case in == "":
		return Color{}, fmt.Errorf("%w: empty", ErrInvalidColor)
	case in == "transparent":
		return Color{Hex: "#000000", Opacity: 0}, nil
	case strings.HasPrefix(in, "#"):
		return parseHex(in[1:], s)
	case strings.HasPrefix(in, "rgba(") || strings.HasPrefix(in, "rgb("):
		return parseFunc(in, s)
	}
	if c, ok := colornames.Map[in]; ok {
		return fromRGBA(c, 1), nil
	}
	return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, s)
}

// FromRGBA normalizes a color given as 0..255 channels and a 0..1 alpha.
func FromRGBA(r, g, b uint8, a float64) Color {
	return fromRGBA(color.RGBA{R: r, G: g, B: b, A: 255}, a)
}

func fromRGBA(c color.RGBA, alpha float64) Color {
	return Color{
		Hex:     fmt.Sprintf("#%02x%02x%02x", c.R, c.G, c.B),
		Opacity: alpha,
	}
}

func parseHex(h, orig string) (Color, error) {
	switch len(h) {
	case 3, 4:
		var sb strings.Builder
		for _, r := range h {
			sb.WriteRune(r)
			sb.WriteRune(r)
		}
		h = sb.String()
	case 6, 8:
	default:
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, orig)
	}
	v, err := strconv.ParseUint(h, 16, 32)
	if err != nil {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, orig)
	}
	alpha := 1.0
	if len(h) == 8 {
		alpha = float64(v&0xff) / 255
		v >>= 8
	}
	c := color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 255}
	return fromRGBA(c, alpha), nil
}

func parseFunc(in, orig string) (Color, error) {
	open := strings.IndexByte(in, '(')
	if !strings.HasSuffix(in, ")") {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, orig)
	}
	body := in[open+1 : len(in)-1]
	// accepts both "r, g, b, a" and "r g b / a"
	body = strings.ReplaceAll(body, "/", " ")
	fields := strings.FieldsFunc(body, func(r rune) bool { return r == ',' || r == ' ' })
	if len(fields) != 3 && len(fields) != 4 {
		return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, orig)
	}
	var ch [3]uint8
	for i := 0; i < 3; i++ {
		n, err := channel(fields[i])
		if err != nil {
			return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, orig)
		}
		ch[i] = n
	}
	alpha := 1.0
	if len(fields) == 4 {
		a, err := alphaValue(fields[3])
		if err != nil {
			return Color{}, fmt.Errorf("%w: %q", ErrInvalidColor, orig)
		}
		alpha = a
	}
	return FromRGBA(ch[0], ch[1], ch[2], alpha), nil
}

func channel(s string) (uint8, error) {
	if p, ok := strings.CutSuffix(s, "%"); ok {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, err
		}
		return uint8(clamp(f, 0, 100)*255/100 + 0.5), nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return uint8(clamp(f, 0, 255) + 0.5), nil
}

func alphaValue(s string) (float64, error) {
	if p, ok := strings.CutSuffix(s, "%"); ok {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, err
		}
		return clamp(f, 0, 100) / 100, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return clamp(f, 0, 1), nil
}

func clamp(f, lo, hi float64) float64 {
	if f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}
