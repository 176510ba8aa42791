package config

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"ADDR", "MFP_URL", "JOBSTORE_DRIVER", "PRINT_TIMEOUT", "CLIP_EXTENT", "EVENTS_ENABLED"} {
		t.Setenv(k, "")
	}
	cfg := FromEnv()
	if cfg.Addr != ":8090" || cfg.JobStore.Driver != "memory" || cfg.Events.Enabled {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.Print.Timeout != 2*time.Minute || cfg.Encode.ClipExtent != nil {
		t.Fatalf("print=%+v encode=%+v", cfg.Print, cfg.Encode)
	}
}

func TestFromEnv_Overrides(t *testing.T) {
	t.Setenv("MFP_URL", "https://print.example.com/print/")
	t.Setenv("MFP_APP", "demo")
	t.Setenv("PRINT_DEFAULT_DPI", "300")
	t.Setenv("PRINT_POLL_INTERVAL", "250ms")
	t.Setenv("JOBSTORE_DRIVER", "Redis")
	t.Setenv("CLIP_EXTENT", "0, 0, 1000,2000")
	t.Setenv("EVENTS_ENABLED", "yes")
	t.Setenv("LOG_SAMPLE_N", "not-a-number")

	cfg := FromEnv()
	if cfg.Print.ServiceURL != "https://print.example.com/print" || cfg.Print.App != "demo" {
		t.Fatalf("print=%+v", cfg.Print)
	}
	if cfg.Print.DefaultDPI != 300 || cfg.Print.PollInterval != 250*time.Millisecond {
		t.Fatalf("print=%+v", cfg.Print)
	}
	if cfg.JobStore.Driver != "redis" || !cfg.Events.Enabled || cfg.LogSampleN != 0 {
		t.Fatalf("cfg=%+v", cfg)
	}
	if diff := cmp.Diff([]float64{0, 0, 1000, 2000}, cfg.Encode.ClipExtent); diff != "" {
		t.Fatalf("extent (-want +got):\n%s", diff)
	}
}

func TestParseExtent_Rejects(t *testing.T) {
	for _, s := range []string{"1,2,3", "a,b,c,d", "10,0,0,10"} {
		if got := parseExtent(s); got != nil {
			t.Fatalf("parseExtent(%q)=%v want nil", s, got)
		}
	}
}

func TestBrokers(t *testing.T) {
	if diff := cmp.Diff([]string{"k1:9092", "k2:9092"}, Brokers(" k1:9092,,k2:9092 ")); diff != "" {
		t.Fatalf("brokers (-want +got):\n%s", diff)
	}
}
