// Command mfpencode encodes a map document into a print specification and
// optionally prints it through a MapFish Print service.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mfp-encoder/internal/core/httpclient"
	"github.com/mohammed-shakir/mfp-encoder/internal/encoder"
	"github.com/mohammed-shakir/mfp-encoder/internal/logger"
	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
	"github.com/mohammed-shakir/mfp-encoder/internal/report"
	"github.com/mohammed-shakir/mfp-encoder/pkg/mfp"
)

type options struct {
	in         string
	dpi        float64
	scale      float64
	resolution float64
	extent     string
	rewrites   string
	exclude    string
	clipToPage bool

	submit   bool
	mfpURL   string
	app      string
	layout   string
	format   string
	out      string
	timeout  time.Duration
	interval time.Duration

	logLevel string
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func parseFlags(args []string, stderr io.Writer) (options, error) {
	var o options
	fs := flag.NewFlagSet("mfpencode", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&o.in, "in", "-", "map document file, - for stdin")
	fs.Float64Var(&o.dpi, "dpi", 254, "print resolution in dots per inch")
	fs.Float64Var(&o.scale, "scale", 0, "scale denominator; derived from the view resolution when 0")
	fs.Float64Var(&o.resolution, "resolution", 0, "print resolution in map units per pixel")
	fs.StringVar(&o.extent, "extent", "", "clip extent minx,miny,maxx,maxy in the view projection")
	fs.StringVar(&o.rewrites, "rewrite", "", "layer URL rewrites from=to,...")
	fs.StringVar(&o.exclude, "exclude", "", "comma separated layer names to leave out")
	fs.BoolVar(&o.clipToPage, "clip-to-page", false, "clip vector features to the printed area of -layout")
	fs.BoolVar(&o.submit, "submit", false, "submit the specification and download the report")
	fs.StringVar(&o.mfpURL, "mfp-url", envOr("MFP_URL", "http://localhost:8080/print"), "print service base URL")
	fs.StringVar(&o.app, "app", envOr("MFP_APP", "default"), "print application")
	fs.StringVar(&o.layout, "layout", "A4 portrait", "print layout")
	fs.StringVar(&o.format, "format", "pdf", "output format")
	fs.StringVar(&o.out, "out", "", "report file; defaults to report.<format>")
	fs.DurationVar(&o.timeout, "timeout", 2*time.Minute, "how long to wait for the report")
	fs.DurationVar(&o.interval, "poll", time.Second, "status poll interval")
	fs.StringVar(&o.logLevel, "log-level", "warn", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return options{}, err
	}
	if o.clipToPage && o.extent != "" {
		return options{}, errors.New("-clip-to-page and -extent are exclusive")
	}
	return o, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	o, err := parseFlags(args, stderr)
	if err != nil {
		return 2
	}
	zl := logger.Build(logger.Config{Level: o.logLevel, Console: true, Component: "mfpencode"}, stderr)
	log := logger.NewSlog(&zl)

	if err := encodeAndPrint(ctx, o, stdin, stdout, log); err != nil {
		log.Error("mfpencode failed", "err", err)
		return 1
	}
	return 0
}

func encodeAndPrint(ctx context.Context, o options, stdin io.Reader, stdout io.Writer, log *slog.Logger) error {
	hc := httpclient.NewOutbound(30 * time.Second)

	doc, err := readDocument(o.in, stdin, mapstate.DecodeOptions{Client: hc, LoadTimeout: 20 * time.Second})
	if err != nil {
		return err
	}

	var rc *report.Client
	if o.submit || o.clipToPage {
		rc, err = report.New(o.mfpURL, o.app, hc, log)
		if err != nil {
			return err
		}
	}

	clip := encoder.Unbounded
	switch {
	case o.extent != "":
		if clip, err = parseExtent(o.extent); err != nil {
			return err
		}
	case o.clipToPage:
		if clip, err = pageExtent(ctx, rc, o, doc); err != nil {
			return err
		}
	}
	var cust encoder.Customizer = encoder.BaseCustomizer{Extent: clip}
	if o.rewrites != "" {
		rules, err := encoder.ParseRewriteRules(o.rewrites)
		if err != nil {
			return err
		}
		cust = encoder.NewURLRewriter(cust, rules)
	}
	if o.exclude != "" {
		cust = encoder.NewLayerNameFilter(cust, strings.Split(o.exclude, ",")...)
	}

	m, err := encoder.New(log).EncodeMap(ctx, encoder.Options{
		Map:             doc,
		Scale:           o.scale,
		PrintResolution: o.resolution,
		DPI:             o.dpi,
		Customizer:      cust,
	})
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}

	spec := mfp.NewSpec(o.layout, o.format, m, nil)
	if !o.submit {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(spec)
	}
	return submit(ctx, rc, o, spec, stdout, log)
}

func readDocument(path string, stdin io.Reader, opts mapstate.DecodeOptions) (*mapstate.Map, error) {
	r := stdin
	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer func() { _ = f.Close() }()
		r = f
	}
	return mapstate.DecodeDocument(r, opts)
}

// pageExtent is the area the layout's map frame covers at the print scale.
func pageExtent(ctx context.Context, rc *report.Client, o options, doc *mapstate.Map) (orb.Bound, error) {
	caps, err := rc.Capabilities(ctx)
	if err != nil {
		return orb.Bound{}, err
	}
	l, ok := caps.Layout(o.layout)
	if !ok {
		return orb.Bound{}, fmt.Errorf("layout %q not offered by %s", o.layout, caps.App)
	}
	info, ok := l.MapInfo()
	if !ok {
		return orb.Bound{}, fmt.Errorf("layout %q has no map attribute", o.layout)
	}
	v := doc.View
	scale := o.scale
	if scale <= 0 {
		res := o.resolution
		if res <= 0 {
			res = v.Resolution
		}
		scale = encoder.Scale(res, o.dpi, v.Projection)
	}
	return encoder.PrintExtent(v.Center, [2]float64{info.Width, info.Height}, scale, v.Rotation, v.Projection), nil
}

func submit(ctx context.Context, rc *report.Client, o options, spec mfp.Spec, stdout io.Writer, log *slog.Logger) error {
	rep, err := rc.RequestReport(ctx, spec)
	if err != nil {
		return err
	}
	u, err := rc.WaitDownloadURL(ctx, rep.Ref, o.interval, o.timeout)
	if err != nil {
		if errors.Is(err, report.ErrTimeout) {
			if _, cerr := rc.Cancel(context.WithoutCancel(ctx), rep.Ref); cerr != nil {
				log.Warn("cancel abandoned report", "ref", rep.Ref, "err", cerr)
			}
		}
		return err
	}

	out := o.out
	if out == "" {
		out = "report." + o.format
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if _, err := rc.Download(ctx, u, f); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "%s\t%s\n", rep.Ref, out)
	return err
}

func parseExtent(s string) (orb.Bound, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return orb.Bound{}, fmt.Errorf("extent needs 4 values, got %q", s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return orb.Bound{}, fmt.Errorf("extent value %d: %w", i, err)
		}
		v[i] = f
	}
	if v[0] > v[2] || v[1] > v[3] {
		return orb.Bound{}, fmt.Errorf("extent min exceeds max: %q", s)
	}
	return orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}, nil
}

func envOr(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
