// Package encoder turns a mapstate.Map into a MapFish Print map specification.
package encoder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/mfp-encoder/internal/core/observability"
	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
	"github.com/mohammed-shakir/mfp-encoder/pkg/mfp"
)

// Options of one EncodeMap call.
type Options struct {
	Map *mapstate.Map
	// Scale denominator; derived from PrintResolution when <= 0.
	Scale float64
	// PrintResolution in map units per pixel; the view resolution when <= 0.
	PrintResolution float64
	DPI             float64
	// nil means BaseCustomizer{}.
	Customizer Customizer
}

// Encoder is safe for concurrent use; every call builds its own style table.
type Encoder struct {
	logger *slog.Logger
	styles *StyleResolver
}

func New(logger *slog.Logger) *Encoder {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "encoder")
	return &Encoder{logger: logger, styles: NewStyleResolver(logger)}
}

// EncodeMap produces the "map" attribute of a print request. Layers are
// emitted bottom to top. Any layer scoped error fails the whole call.
func (e *Encoder) EncodeMap(ctx context.Context, opts Options) (m *mfp.Map, err error) {
	start := time.Now()
	defer func() { observability.ObserveEncode(err, time.Since(start)) }()

	if opts.Map == nil {
		return nil, fmt.Errorf("%w: map is required", ErrInvalidOptions)
	}
	if opts.DPI <= 0 {
		return nil, fmt.Errorf("%w: dpi must be positive", ErrInvalidOptions)
	}
	view := opts.Map.View
	scale := opts.Scale
	if scale <= 0 {
		res := opts.PrintResolution
		if res <= 0 {
			res = view.Resolution
		}
		if res <= 0 {
			return nil, fmt.Errorf("%w: scale or resolution is required", ErrInvalidOptions)
		}
		scale = Scale(res, opts.DPI, view.Projection)
	}
	cust := opts.Customizer
	if cust == nil {
		cust = BaseCustomizer{}
	}

	r := &run{
		proj:       view.Projection,
		clip:       cust.ClipExtent(),
		customizer: cust,
		layers:     make([]mfp.Layer, 0, len(opts.Map.Layers)),
	}
	for _, l := range opts.Map.Layers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := e.encodeLayer(ctx, r, l, 1); err != nil {
			e.logger.WarnContext(ctx, "map encode failed", "err", err)
			return nil, err
		}
	}

	e.logger.DebugContext(ctx, "map encoded",
		"layers", len(r.layers),
		"skipped_layers", r.skipped,
		"scale", scale,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return &mfp.Map{
		Center:     [2]float64{view.Center[0], view.Center[1]},
		Scale:      scale,
		Rotation:   degrees(view.Rotation),
		Projection: view.Projection,
		DPI:        opts.DPI,
		Layers:     r.layers,
	}, nil
}
