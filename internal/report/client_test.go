package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/mfp-encoder/pkg/mfp"
)

// fakePrint mimics the print servlet mounted under /print.
type fakePrint struct {
	polls     atomic.Int32
	readyAt   int32
	final     string
	cancelled atomic.Bool
	lastSpec  map[string]any
}

func (f *fakePrint) routes() http.Handler {
	r := chi.NewRouter()
	r.Post("/print/{app}/report.{format}", func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&f.lastSpec); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		ref := chi.URLParam(r, "app") + "-42"
		_ = json.NewEncoder(w).Encode(map[string]string{
			"ref":         ref,
			"statusURL":   "/print/status/" + ref + ".json",
			"downloadURL": "/print/report/" + ref,
		})
	})
	r.Get("/print/status/{file}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "file") == "missing.json" {
			http.Error(w, "no such job", http.StatusNotFound)
			return
		}
		n := f.polls.Add(1)
		st := Status{Status: StatusRunning}
		if n >= f.readyAt {
			st = Status{Done: true, Status: f.final, DownloadURL: "/print/report/demo-42"}
			if f.final == StatusError {
				st.Error = "layout not found"
			}
		}
		_ = json.NewEncoder(w).Encode(st)
	})
	r.Delete("/print/cancel/{ref}", func(w http.ResponseWriter, r *http.Request) {
		if chi.URLParam(r, "ref") == "done" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.cancelled.Store(true)
		w.WriteHeader(http.StatusOK)
	})
	r.Get("/print/report/{ref}", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/pdf")
		_, _ = w.Write([]byte("%PDF-1.4 fake"))
	})
	r.Get("/print/{app}/capabilities.json", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"app":"demo","formats":["pdf","png"],"layouts":[{"name":"A4 portrait","attributes":[
			{"name":"title","type":"StringAttributeValue"},
			{"name":"map","type":"MapAttributeValues","clientInfo":{"width":555,"height":675,"dpiSuggestions":[72,254],"maxDPI":254}}
		]}]}`))
	})
	return r
}

func newTestClient(t *testing.T, f *fakePrint) *Client {
	t.Helper()
	srv := httptest.NewServer(f.routes())
	t.Cleanup(srv.Close)
	c, err := New(srv.URL+"/print/", "demo", srv.Client(), slog.New(slog.DiscardHandler))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestRequestReport_PostsSpec(t *testing.T) {
	f := &fakePrint{}
	c := newTestClient(t, f)

	spec := mfp.NewSpec("A4 portrait", "pdf", &mfp.Map{Projection: "EPSG:3857", DPI: 254, Layers: []mfp.Layer{}},
		map[string]any{"datasource": []any{}})
	rep, err := c.RequestReport(context.Background(), spec)
	if err != nil {
		t.Fatalf("RequestReport: %v", err)
	}
	if rep.Ref != "demo-42" || rep.StatusURL == "" {
		t.Fatalf("report=%+v", rep)
	}
	attrs := f.lastSpec["attributes"].(map[string]any)
	if f.lastSpec["layout"] != "A4 portrait" || attrs["map"] == nil || attrs["datasource"] == nil {
		t.Fatalf("posted spec=%v", f.lastSpec)
	}
}

func TestWaitDownloadURL_Finished(t *testing.T) {
	f := &fakePrint{readyAt: 3, final: StatusFinished}
	c := newTestClient(t, f)

	u, err := c.WaitDownloadURL(context.Background(), "demo-42", 5*time.Millisecond, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitDownloadURL: %v", err)
	}
	if want := c.base + "/report/demo-42"; u != want {
		t.Fatalf("url=%q want %q", u, want)
	}
	if n := f.polls.Load(); n != 3 {
		t.Fatalf("polls=%d want 3", n)
	}

	var buf bytes.Buffer
	ct, err := c.Download(context.Background(), u, &buf)
	if err != nil {
		t.Fatalf("Download: %v", err)
	}
	if ct != "application/pdf" || buf.String() != "%PDF-1.4 fake" {
		t.Fatalf("content-type=%q body=%q", ct, buf.String())
	}
}

func TestWaitDownloadURL_Error(t *testing.T) {
	c := newTestClient(t, &fakePrint{readyAt: 1, final: StatusError})
	_, err := c.WaitDownloadURL(context.Background(), "demo-42", time.Millisecond, time.Second)
	if !errors.Is(err, ErrReportFailed) {
		t.Fatalf("err=%v want ErrReportFailed", err)
	}
}

func TestWaitDownloadURL_Timeout(t *testing.T) {
	f := &fakePrint{readyAt: 1 << 30}
	c := newTestClient(t, f)
	_, err := c.WaitDownloadURL(context.Background(), "demo-42", 5*time.Millisecond, 30*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("err=%v want ErrTimeout", err)
	}
	if f.cancelled.Load() {
		t.Fatalf("timeout must not cancel the job")
	}
}

func TestWaitDownloadURL_CallerCancel(t *testing.T) {
	c := newTestClient(t, &fakePrint{readyAt: 1 << 30})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.WaitDownloadURL(ctx, "demo-42", 5*time.Millisecond, time.Minute)
	if !errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrTimeout) {
		t.Fatalf("err=%v want caller deadline", err)
	}
}

func TestStatus_NotFound(t *testing.T) {
	c := newTestClient(t, &fakePrint{})
	if _, err := c.Status(context.Background(), "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestCancel_ReportsOutcome(t *testing.T) {
	f := &fakePrint{}
	c := newTestClient(t, f)

	res, err := c.Cancel(context.Background(), "demo-42")
	if err != nil || !res.Cancelled || res.StatusCode != http.StatusOK {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	res, err = c.Cancel(context.Background(), "done")
	if err != nil || res.Cancelled || res.StatusCode != http.StatusNotFound {
		t.Fatalf("refused cancel: res=%+v err=%v", res, err)
	}
}

func TestCapabilities_MapInfo(t *testing.T) {
	c := newTestClient(t, &fakePrint{})
	caps, err := c.Capabilities(context.Background())
	if err != nil {
		t.Fatalf("Capabilities: %v", err)
	}
	l, ok := caps.Layout("A4 portrait")
	if !ok {
		t.Fatalf("layout missing: %+v", caps)
	}
	info, ok := l.MapInfo()
	if !ok || info.Width != 555 || info.Height != 675 || info.MaxDPI != 254 {
		t.Fatalf("map info=%+v ok=%v", info, ok)
	}
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := New("/print", "", nil, nil); err == nil {
		t.Fatal("relative base url accepted")
	}
}
