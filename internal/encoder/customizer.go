package encoder

import (
	"errors"
	"math"
	"strings"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
	"github.com/mohammed-shakir/mfp-encoder/pkg/mfp"
)

// Customizer hooks into encoding. Hooks are only read during an encode; a
// shared instance must be safe for that.
type Customizer interface {
	// ClipExtent bounds the vector features worth sending, in the view projection.
	ClipExtent() orb.Bound
	// FilterLayer vetoes a layer (and, for groups, all of its children).
	FilterLayer(l mapstate.Layer) bool
	// RewriteLayer post-processes an encoded entry; returning nil drops it.
	RewriteLayer(entry mfp.Layer) mfp.Layer
}

// Unbounded keeps every feature.
var Unbounded = orb.Bound{
	Min: orb.Point{math.Inf(-1), math.Inf(-1)},
	Max: orb.Point{math.Inf(1), math.Inf(1)},
}

// BaseCustomizer clips to a fixed extent and passes everything else through.
// The zero value clips nothing.
type BaseCustomizer struct {
	Extent orb.Bound
}

var _ Customizer = BaseCustomizer{}

func NewBaseCustomizer(minX, minY, maxX, maxY float64) BaseCustomizer {
	return BaseCustomizer{Extent: orb.Bound{Min: orb.Point{minX, minY}, Max: orb.Point{maxX, maxY}}}
}

func (c BaseCustomizer) ClipExtent() orb.Bound {
	if c.Extent.IsZero() {
		return Unbounded
	}
	return c.Extent
}

func (BaseCustomizer) FilterLayer(mapstate.Layer) bool { return true }

func (BaseCustomizer) RewriteLayer(entry mfp.Layer) mfp.Layer { return entry }

// RewriteRule replaces a base URL prefix.
type RewriteRule struct {
	From string
	To   string
}

// URLRewriter rewrites base URLs of encoded layers, e.g. internal host
// names the print service cannot reach. The first matching rule wins.
type URLRewriter struct {
	Customizer
	Rules []RewriteRule
}

func NewURLRewriter(inner Customizer, rules []RewriteRule) URLRewriter {
	if inner == nil {
		inner = BaseCustomizer{}
	}
	return URLRewriter{Customizer: inner, Rules: rules}
}

func (r URLRewriter) RewriteLayer(entry mfp.Layer) mfp.Layer {
	entry = r.Customizer.RewriteLayer(entry)
	ul, ok := entry.(mfp.URLLayer)
	if !ok {
		return entry
	}
	u := ul.URL()
	for _, rule := range r.Rules {
		if rule.From != "" && strings.HasPrefix(u, rule.From) {
			ul.SetURL(rule.To + strings.TrimPrefix(u, rule.From))
			break
		}
	}
	return entry
}

// ParseRewriteRules parses "from=to,from2=to2". From must not contain '='.
func ParseRewriteRules(s string) ([]RewriteRule, error) {
	var out []RewriteRule
	s = strings.TrimSpace(s)
	if s == "" {
		return out, nil
	}
	for p := range strings.SplitSeq(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		from, to, ok := strings.Cut(p, "=")
		from = strings.TrimSpace(from)
		if !ok || from == "" {
			return nil, errors.New("url rewrite rule must be from=to: " + p)
		}
		out = append(out, RewriteRule{From: from, To: strings.TrimSpace(to)})
	}
	return out, nil
}

// LayerNameFilter vetoes layers by name.
type LayerNameFilter struct {
	Customizer
	Exclude map[string]struct{}
}

func NewLayerNameFilter(inner Customizer, names ...string) LayerNameFilter {
	if inner == nil {
		inner = BaseCustomizer{}
	}
	ex := make(map[string]struct{}, len(names))
	for _, n := range names {
		ex[n] = struct{}{}
	}
	return LayerNameFilter{Customizer: inner, Exclude: ex}
}

func (f LayerNameFilter) FilterLayer(l mapstate.Layer) bool {
	if _, drop := f.Exclude[l.Props().Name]; drop {
		return false
	}
	return f.Customizer.FilterLayer(l)
}
