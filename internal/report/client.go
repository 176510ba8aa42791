// Package report talks to a MapFish Print service: it submits print
// specifications, polls their status, cancels and downloads reports.
package report

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
	"strings"
	"time"

	"github.com/mohammed-shakir/mfp-encoder/internal/core/observability"
	"github.com/mohammed-shakir/mfp-encoder/pkg/mfp"
)

var (
	// ErrTimeout means polling was abandoned; the job keeps running server side.
	ErrTimeout = errors.New("print report not ready before timeout")
	// ErrReportFailed means the service finished the job with an error or cancelled it.
	ErrReportFailed = errors.New("print report failed")
	ErrNotFound     = errors.New("print job not found")
	ErrService      = errors.New("print service error")
)

const (
	StatusWaiting   = "waiting"
	StatusRunning   = "running"
	StatusFinished  = "finished"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// maxErrorBody caps how much of an error response ends up in messages.
const maxErrorBody = 512

// Report is the answer to a submitted specification.
type Report struct {
	Ref         string `json:"ref"`
	StatusURL   string `json:"statusURL"`
	DownloadURL string `json:"downloadURL"`
}

type Status struct {
	Done        bool   `json:"done"`
	Status      string `json:"status"`
	ElapsedTime int64  `json:"elapsedTime"`
	WaitingTime int64  `json:"waitingTime"`
	DownloadURL string `json:"downloadURL,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Failed reports whether the job ended without a document.
func (s Status) Failed() bool {
	return s.Status == StatusError || s.Status == StatusCancelled
}

// CancelResult is what the service answered to a cancel request.
type CancelResult struct {
	StatusCode int  `json:"statusCode"`
	Cancelled  bool `json:"cancelled"`
}

type Client struct {
	base   string
	app    string
	http   *http.Client
	logger *slog.Logger
}

// New returns a client for the print servlet at baseURL. An empty app uses
// the service's default application.
func New(baseURL, app string, hc *http.Client, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid print service url %q", baseURL)
	}
	if hc == nil {
		hc = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{base: u.String(), app: app, http: hc, logger: logger.With("component", "report")}, nil
}

func (c *Client) appURL(rest string) string {
	if c.app == "" {
		return c.base + "/" + rest
	}
	return c.base + "/" + url.PathEscape(c.app) + "/" + rest
}

// RequestReport submits spec for rendering in spec.Format.
func (c *Client) RequestReport(ctx context.Context, spec mfp.Spec) (rep Report, err error) {
	defer observe("report", time.Now(), &err)

	format := spec.Format
	if format == "" {
		format = "pdf"
	}
	body, err := json.Marshal(spec)
	if err != nil {
		return Report{}, fmt.Errorf("marshal print spec: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.appURL("report."+url.PathEscape(format)), bytes.NewReader(body))
	if err != nil {
		return Report{}, fmt.Errorf("build report request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	if err := c.doJSON(req, &rep); err != nil {
		return Report{}, fmt.Errorf("request report: %w", err)
	}
	if rep.Ref == "" {
		return Report{}, fmt.Errorf("%w: report response without ref", ErrService)
	}
	c.logger.InfoContext(ctx, "print report requested", "ref", rep.Ref, "layout", spec.Layout, "format", format)
	return rep, nil
}

// Status fetches the current state of a job.
func (c *Client) Status(ctx context.Context, ref string) (st Status, err error) {
	defer observe("status", time.Now(), &err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/status/"+url.PathEscape(ref)+".json", nil)
	if err != nil {
		return Status{}, fmt.Errorf("build status request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if err := c.doJSON(req, &st); err != nil {
		return Status{}, fmt.Errorf("status of %s: %w", ref, err)
	}
	return st, nil
}

// Cancel asks the service to stop a job. The outcome is reported as
// received; a refusal is not an error, a transport failure is.
func (c *Client) Cancel(ctx context.Context, ref string) (res CancelResult, err error) {
	defer observe("cancel", time.Now(), &err)

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.base+"/cancel/"+url.PathEscape(ref), nil)
	if err != nil {
		return CancelResult{}, fmt.Errorf("build cancel request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return CancelResult{}, fmt.Errorf("cancel %s: %w", ref, err)
	}
	defer drain(resp.Body)

	res = CancelResult{StatusCode: resp.StatusCode, Cancelled: resp.StatusCode == http.StatusOK}
	c.logger.InfoContext(ctx, "print cancel answered", "ref", ref, "status", resp.StatusCode)
	return res, nil
}

// DownloadURL returns where the finished report of ref can be fetched.
func (c *Client) DownloadURL(ref string, st Status) string {
	if st.DownloadURL != "" {
		if u, err := c.resolve(st.DownloadURL); err == nil {
			return u
		}
	}
	return c.base + "/report/" + url.PathEscape(ref)
}

func (c *Client) resolve(ref string) (string, error) {
	base, err := url.Parse(c.base + "/")
	if err != nil {
		return "", err
	}
	r, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	return base.ResolveReference(r).String(), nil
}

// WaitDownloadURL polls every interval until the job finishes and returns
// its download URL. After timeout it gives up with ErrTimeout and leaves the
// job alone.
func (c *Client) WaitDownloadURL(ctx context.Context, ref string, interval, timeout time.Duration) (string, error) {
	if interval <= 0 {
		interval = time.Second
	}
	pollCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		st, err := c.Status(pollCtx, ref)
		switch {
		case err == nil && st.Status == StatusFinished:
			return c.DownloadURL(ref, st), nil
		case err == nil && st.Failed():
			if st.Error != "" {
				return "", fmt.Errorf("%w: %s: %s", ErrReportFailed, st.Status, st.Error)
			}
			return "", fmt.Errorf("%w: %s", ErrReportFailed, st.Status)
		case err != nil && pollCtx.Err() == nil:
			return "", err
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			c.logger.WarnContext(ctx, "print report polling abandoned", "ref", ref, "timeout", timeout)
			return "", fmt.Errorf("%w: %s after %s", ErrTimeout, ref, timeout)
		case <-ticker.C:
		}
	}
}

// Download streams the report at u into w.
func (c *Client) Download(ctx context.Context, u string, w io.Writer) (contentType string, err error) {
	defer observe("download", time.Now(), &err)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("build download request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("download %s: %w", u, err)
	}
	defer drain(resp.Body)
	if err := checkStatus(resp); err != nil {
		return "", fmt.Errorf("download %s: %w", u, err)
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return "", fmt.Errorf("download %s: copy: %w", u, err)
	}
	return resp.Header.Get("Content-Type"), nil
}

// Ping checks the print service answers its capabilities.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Capabilities(ctx)
	return err
}

func (c *Client) doJSON(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer drain(resp.Body)
	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrService, err)
	}
	return nil
}

func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrNotFound, strings.TrimSpace(string(snippet)))
	}
	return fmt.Errorf("%w: status %d: %s", ErrService, resp.StatusCode, strings.TrimSpace(string(snippet)))
}

func drain(rc io.ReadCloser) {
	_, _ = io.Copy(io.Discard, io.LimitReader(rc, 64<<10))
	_ = rc.Close()
}

func observe(op string, start time.Time, err *error) {
	observability.ObservePrintCall(op, *err, time.Since(start))
}
