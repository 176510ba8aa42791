package mapstate

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/paulmach/orb/geojson"
)

// FeaturesFromCollection converts decoded GeoJSON features. Property maps
// are shared with fc, which the caller must not modify afterwards.
func FeaturesFromCollection(fc *geojson.FeatureCollection) []*Feature {
	if fc == nil {
		return nil
	}
	out := make([]*Feature, 0, len(fc.Features))
	for _, gf := range fc.Features {
		if gf == nil {
			continue
		}
		f := &Feature{ID: gf.ID, Properties: map[string]any(gf.Properties)}
		if gf.Geometry != nil {
			f.Geometry = gf.Geometry
		}
		out = append(out, f)
	}
	return out
}

// RemoteGeoJSONSource loads a FeatureCollection over HTTP on first use.
// Concurrent callers wait for the same in-flight load; a failed load is
// retried by the next call.
type RemoteGeoJSONSource struct {
	URL    string
	Proj   string
	Client *http.Client
	// LoadTimeout bounds one load; 0 means 30s.
	LoadTimeout time.Duration

	mu       sync.Mutex
	loading  chan struct{}
	loaded   bool
	features []*Feature
	err      error
}

func (s *RemoteGeoJSONSource) Projection() string { return s.Proj }

func (s *RemoteGeoJSONSource) Features(ctx context.Context) ([]*Feature, error) {
	s.mu.Lock()
	if s.loaded {
		fs := s.features
		s.mu.Unlock()
		return fs, nil
	}
	if s.loading == nil {
		s.loading = make(chan struct{})
		go s.load(s.loading)
	}
	ch := s.loading
	s.mu.Unlock()

	select {
	case <-ch:
	case <-ctx.Done():
		return nil, fmt.Errorf("wait for %s: %w", s.URL, ctx.Err())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loaded {
		return s.features, nil
	}
	return nil, s.err
}

func (s *RemoteGeoJSONSource) load(done chan struct{}) {
	timeout := s.LoadTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	fs, err := s.fetch(ctx)

	s.mu.Lock()
	if err != nil {
		s.err = err
		s.loading = nil
	} else {
		s.features = fs
		s.loaded = true
	}
	s.mu.Unlock()
	close(done)
}

func (s *RemoteGeoJSONSource) fetch(ctx context.Context) ([]*Feature, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", s.URL, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, fmt.Errorf("fetch %s: status %d: %s", s.URL, resp.StatusCode, string(b))
	}
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	fc, err := geojson.UnmarshalFeatureCollection(b)
	if err != nil {
		return nil, fmt.Errorf("parse feature collection: %w", err)
	}
	return FeaturesFromCollection(fc), nil
}
