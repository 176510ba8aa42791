// Package api serves the print proxy: it encodes map documents into print
// specifications, submits them to the print service and tracks the jobs.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/mfp-encoder/internal/core/config"
	"github.com/mohammed-shakir/mfp-encoder/internal/encoder"
	"github.com/mohammed-shakir/mfp-encoder/internal/jobevents"
	"github.com/mohammed-shakir/mfp-encoder/internal/jobstore"
	mylog "github.com/mohammed-shakir/mfp-encoder/internal/logger"
	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
	"github.com/mohammed-shakir/mfp-encoder/internal/report"
	"github.com/mohammed-shakir/mfp-encoder/pkg/mfp"
)

// maxBodyBytes bounds request documents; inline GeoJSON can be large.
const maxBodyBytes = 16 << 20

// PrintService is the part of the print service the proxy uses.
type PrintService interface {
	RequestReport(ctx context.Context, spec mfp.Spec) (report.Report, error)
	Status(ctx context.Context, ref string) (report.Status, error)
	Cancel(ctx context.Context, ref string) (report.CancelResult, error)
	WaitDownloadURL(ctx context.Context, ref string, interval, timeout time.Duration) (string, error)
	Download(ctx context.Context, u string, w io.Writer) (string, error)
	Capabilities(ctx context.Context) (report.Capabilities, error)
}

var _ PrintService = (*report.Client)(nil)

type Deps struct {
	Encoder *encoder.Encoder
	Print   PrintService
	Jobs    jobstore.Store
	// Events may be nil.
	Events jobevents.Publisher
	// Decode configures remote sources found in documents.
	Decode mapstate.DecodeOptions
}

type Handler struct {
	cfg    config.Config
	log    *slog.Logger
	deps   Deps
	custom encoder.Customizer
	now    func() time.Time
}

// New checks the encode configuration and builds the handler.
func New(cfg config.Config, log *slog.Logger, deps Deps) (*Handler, error) {
	if deps.Encoder == nil || deps.Print == nil || deps.Jobs == nil {
		return nil, fmt.Errorf("api: encoder, print service and job store are required")
	}
	if deps.Events == nil {
		deps.Events = jobevents.Nop{}
	}
	if log == nil {
		log = slog.Default()
	}
	cust, err := NewCustomizer(cfg.Encode)
	if err != nil {
		return nil, err
	}
	return &Handler{
		cfg:    cfg,
		log:    log.With("component", "api"),
		deps:   deps,
		custom: cust,
		now:    time.Now,
	}, nil
}

// NewCustomizer builds the customizer of every request from the clip extent
// and URL rewrites of cfg.
func NewCustomizer(cfg config.EncodeCfg) (encoder.Customizer, error) {
	var c encoder.Customizer = encoder.BaseCustomizer{}
	if len(cfg.ClipExtent) == 4 {
		e := cfg.ClipExtent
		c = encoder.NewBaseCustomizer(e[0], e[1], e[2], e[3])
	}
	if cfg.URLRewrites != "" {
		rules, err := encoder.ParseRewriteRules(cfg.URLRewrites)
		if err != nil {
			return nil, fmt.Errorf("url rewrites: %w", err)
		}
		c = encoder.NewURLRewriter(c, rules)
	}
	return c, nil
}

func (h *Handler) Routes(r chi.Router) {
	r.Post("/encode", h.handleEncode)
	r.Post("/print", h.handlePrint)
	r.Get("/print/{ref}/status", h.handleStatus)
	r.Delete("/print/{ref}", h.handleCancel)
	r.Get("/print/{ref}/download", h.handleDownload)
	r.Get("/capabilities", h.handleCapabilities)
}

type encodeRequest struct {
	Map             json.RawMessage `json:"map"`
	DPI             float64         `json:"dpi"`
	Scale           float64         `json:"scale"`
	PrintResolution float64         `json:"printResolution"`
	ExcludeLayers   []string        `json:"excludeLayers"`
}

type printRequest struct {
	encodeRequest
	Layout     string         `json:"layout"`
	Format     string         `json:"format"`
	Attributes map[string]any `json:"attributes"`
}

type printResponse struct {
	Ref         string `json:"ref"`
	StatusURL   string `json:"statusURL"`
	DownloadURL string `json:"downloadURL"`
}

type statusResponse struct {
	Ref         string `json:"ref"`
	Status      string `json:"status"`
	Done        bool   `json:"done"`
	ElapsedTime int64  `json:"elapsedTime"`
	WaitingTime int64  `json:"waitingTime"`
	Error       string `json:"error,omitempty"`
	DownloadURL string `json:"downloadURL,omitempty"`
}

type cancelResponse struct {
	Ref       string `json:"ref"`
	Cancelled bool   `json:"cancelled"`
	Status    int    `json:"status"`
}

func (h *Handler) handleEncode(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	m, err := h.encode(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (h *Handler) handlePrint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req printRequest
	if err := decodeBody(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	if req.Layout == "" {
		req.Layout = h.cfg.Print.DefaultLayout
	}
	if req.Format == "" {
		req.Format = h.cfg.Print.DefaultFormat
	}
	m, err := h.encode(ctx, req.encodeRequest)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	rep, err := h.deps.Print.RequestReport(ctx, mfp.NewSpec(req.Layout, req.Format, m, req.Attributes))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	now := h.now().UTC()
	rec := jobstore.Record{
		Ref:       rep.Ref,
		Layout:    req.Layout,
		Format:    req.Format,
		State:     jobstore.StateSubmitted,
		RequestID: mylog.RequestID(ctx),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := h.deps.Jobs.Put(ctx, rec); err != nil {
		// The job runs anyway; later requests fall back to lookup's
		// stateless record.
		h.log.WarnContext(ctx, "store print job", "err", err, "ref", rep.Ref)
	}
	h.publish(jobevents.KindSubmitted, rec)

	writeJSON(w, http.StatusAccepted, printResponse{
		Ref:         rep.Ref,
		StatusURL:   jobPath(rep.Ref, "/status"),
		DownloadURL: jobPath(rep.Ref, "/download"),
	})
}

func jobPath(ref, suffix string) string {
	return "/print/" + url.PathEscape(ref) + suffix
}

// lookup returns the stored record of ref. When the store has none, or
// cannot be read, it returns a record built from the ref and the default
// format so the print service alone decides whether the job exists.
func (h *Handler) lookup(ctx context.Context, ref string) jobstore.Record {
	rec, err := h.deps.Jobs.Get(ctx, ref)
	if err == nil {
		return rec
	}
	if errors.Is(err, jobstore.ErrNotFound) {
		h.log.DebugContext(ctx, "print job not stored; asking the print service", "ref", ref)
	} else {
		h.log.WarnContext(ctx, "load print job", "err", err, "ref", ref)
	}
	return jobstore.Record{
		Ref:    ref,
		Layout: h.cfg.Print.DefaultLayout,
		Format: h.cfg.Print.DefaultFormat,
		State:  jobstore.StateSubmitted,
	}
}

func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	ctx := mylog.WithPrintRef(r.Context(), ref)
	rec := h.lookup(ctx, ref)
	st, err := h.deps.Print.Status(ctx, ref)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	out := statusResponse{
		Ref:         ref,
		Status:      st.Status,
		Done:        st.Done,
		ElapsedTime: st.ElapsedTime,
		WaitingTime: st.WaitingTime,
		Error:       st.Error,
	}
	if st.Status == report.StatusFinished {
		out.DownloadURL = jobPath(ref, "/download")
	}
	h.transition(ctx, rec, st)
	writeJSON(w, http.StatusOK, out)
}

// transition records a terminal status and publishes it. Concurrent polls
// race on the store's compare-and-set; only the winner publishes.
func (h *Handler) transition(ctx context.Context, rec jobstore.Record, st report.Status) {
	if rec.Terminal() {
		return
	}
	var kind string
	switch st.Status {
	case report.StatusFinished:
		rec.State, kind = jobstore.StateFinished, jobevents.KindFinished
	case report.StatusError:
		rec.State, kind = jobstore.StateError, jobevents.KindFailed
		rec.Error = st.Error
	case report.StatusCancelled:
		rec.State, kind = jobstore.StateCancelled, jobevents.KindCancelled
	default:
		return
	}
	rec.DownloadURL = st.DownloadURL
	h.commit(ctx, kind, rec)
}

// commit stores a terminal rec and publishes kind when this call made the
// transition. Nothing is published when the store cannot tell.
func (h *Handler) commit(ctx context.Context, kind string, rec jobstore.Record) {
	rec.UpdatedAt = h.now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = rec.UpdatedAt
	}
	stored, err := h.deps.Jobs.Transition(ctx, rec)
	if err != nil {
		h.log.WarnContext(ctx, "update print job", "err", err, "state", rec.State)
		return
	}
	if stored {
		h.publish(kind, rec)
	}
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	ctx := mylog.WithPrintRef(r.Context(), ref)
	rec := h.lookup(ctx, ref)
	res, err := h.deps.Print.Cancel(ctx, ref)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if res.Cancelled && !rec.Terminal() {
		rec.State = jobstore.StateCancelled
		h.commit(ctx, jobevents.KindCancelled, rec)
	}
	code := http.StatusOK
	if res.StatusCode == http.StatusNotFound {
		code = http.StatusNotFound
	}
	writeJSON(w, code, cancelResponse{Ref: ref, Cancelled: res.Cancelled, Status: res.StatusCode})
}

func (h *Handler) handleDownload(w http.ResponseWriter, r *http.Request) {
	ref := chi.URLParam(r, "ref")
	ctx := mylog.WithPrintRef(r.Context(), ref)
	rec := h.lookup(ctx, ref)
	u, err := h.deps.Print.WaitDownloadURL(ctx, ref, h.cfg.Print.PollInterval, h.cfg.Print.Timeout)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", contentType(rec.Format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", ref+"."+rec.Format))
	cw := &countingWriter{w: w}
	if _, err := h.deps.Print.Download(ctx, u, cw); err != nil {
		if cw.n == 0 {
			w.Header().Del("Content-Disposition")
			h.fail(w, r, err)
			return
		}
		// Headers are gone; the client sees a truncated body.
		h.log.ErrorContext(ctx, "download interrupted", "err", err, "bytes", cw.n)
	}
}

func (h *Handler) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	caps, err := h.deps.Print.Capabilities(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, caps)
}

func (h *Handler) encode(ctx context.Context, req encodeRequest) (*mfp.Map, error) {
	if len(bytes.TrimSpace(req.Map)) == 0 {
		return nil, fmt.Errorf("%w: map is required", errBadRequest)
	}
	doc, err := mapstate.DecodeDocument(bytes.NewReader(req.Map), h.deps.Decode)
	if err != nil {
		return nil, err
	}
	dpi := req.DPI
	if dpi <= 0 {
		dpi = h.cfg.Print.DefaultDPI
	}
	cust := h.custom
	if len(req.ExcludeLayers) > 0 {
		cust = encoder.NewLayerNameFilter(cust, req.ExcludeLayers...)
	}
	if t := h.cfg.Encode.LoadTimeout; t > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t)
		defer cancel()
	}
	return h.deps.Encoder.EncodeMap(ctx, encoder.Options{
		Map:             doc,
		Scale:           req.Scale,
		PrintResolution: req.PrintResolution,
		DPI:             dpi,
		Customizer:      cust,
	})
}

func (h *Handler) publish(kind string, rec jobstore.Record) {
	h.deps.Events.Publish(jobevents.Event{
		Kind:      kind,
		Ref:       rec.Ref,
		Layout:    rec.Layout,
		Format:    rec.Format,
		State:     rec.State,
		Error:     rec.Error,
		RequestID: rec.RequestID,
		TS:        h.now().UTC(),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
