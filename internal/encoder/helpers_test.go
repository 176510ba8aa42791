package encoder

import (
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/project"

	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
)

// viewCenter is fromLonLat(7.1560911, 46.3521411).
var viewCenter = [2]float64{796612.417322277, 5836960.776101627}

func newTestEncoder() *Encoder {
	return New(slog.New(slog.DiscardHandler))
}

func emptyMap() *mapstate.Map {
	return &mapstate.Map{View: mapstate.View{
		Center:     project.WGS84.ToMercator(orb.Point{7.1560911, 46.3521411}),
		Resolution: mapstate.ResolutionForZoom(12),
		Projection: mapstate.EPSG3857,
	}}
}

func defaultOptions(m *mapstate.Map, c Customizer) Options {
	return Options{
		Map:             m,
		Scale:           1,
		PrintResolution: m.View.Resolution,
		DPI:             300,
		Customizer:      c,
	}
}

// jsonValue round trips v so it can be compared with a JSON literal.
func jsonValue(t *testing.T, v any) any {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	return out
}

func parseJSON(t *testing.T, s string) any {
	t.Helper()
	var out any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		t.Fatalf("bad expected json: %v", err)
	}
	return out
}

func assertJSON(t *testing.T, got any, want string) {
	t.Helper()
	if diff := cmp.Diff(parseJSON(t, want), jsonValue(t, got), cmpopts.EquateApprox(0, 1e-6)); diff != "" {
		t.Fatalf("json mismatch (-want +got):\n%s", diff)
	}
}
