package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type PrintCfg struct {
	// ServiceURL is the print servlet base, e.g. https://host/print
	ServiceURL    string
	App           string
	DefaultDPI    float64
	DefaultFormat string
	DefaultLayout string
	PollInterval  time.Duration
	Timeout       time.Duration
	// RequestTimeout bounds every single call to the print service.
	RequestTimeout time.Duration
}

type EncodeCfg struct {
	// ClipExtent is minx,miny,maxx,maxy in the view projection; nil clips nothing.
	ClipExtent  []float64
	URLRewrites string
	LoadTimeout time.Duration
}

type JobStoreCfg struct {
	Driver    string
	RedisAddr string
	KeyPrefix string
	TTL       time.Duration
	LRUSize   int
	OpTimeout time.Duration
}

type EventsCfg struct {
	Enabled bool
	Brokers string
	Topic   string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr       string
	LogLevel   string
	LogConsole bool
	LogSampleN int
	CORSOrigin string
	Print      PrintCfg
	Encode     EncodeCfg
	JobStore   JobStoreCfg
	Events     EventsCfg
	Metrics    MetricsCfg
}

func FromEnv() Config {
	timeout := getduration("PRINT_TIMEOUT", 2*time.Minute)
	return Config{
		Addr:       getenv("ADDR", ":8090"),
		LogLevel:   getenv("LOG_LEVEL", "info"),
		LogConsole: getbool("LOG_CONSOLE", false),
		LogSampleN: getint("LOG_SAMPLE_N", 0),
		CORSOrigin: getenv("CORS_ALLOW_ORIGIN", "*"),
		Print: PrintCfg{
			ServiceURL:     strings.TrimRight(getenv("MFP_URL", "http://localhost:8080/print"), "/"),
			App:            getenv("MFP_APP", "default"),
			DefaultDPI:     getfloat("PRINT_DEFAULT_DPI", 254),
			DefaultFormat:  getenv("PRINT_DEFAULT_FORMAT", "pdf"),
			DefaultLayout:  getenv("PRINT_DEFAULT_LAYOUT", "A4 portrait"),
			PollInterval:   getduration("PRINT_POLL_INTERVAL", time.Second),
			Timeout:        timeout,
			RequestTimeout: getduration("PRINT_REQUEST_TIMEOUT", 30*time.Second),
		},
		Encode: EncodeCfg{
			ClipExtent:  parseExtent(getenv("CLIP_EXTENT", "")),
			URLRewrites: getenv("URL_REWRITES", ""),
			LoadTimeout: getduration("FEATURE_LOAD_TIMEOUT", 20*time.Second),
		},
		JobStore: JobStoreCfg{
			Driver:    strings.ToLower(getenv("JOBSTORE_DRIVER", "memory")),
			RedisAddr: getenv("REDIS_ADDR", "localhost:6379"),
			KeyPrefix: getenv("JOBSTORE_PREFIX", "mfp"),
			TTL:       getduration("JOBSTORE_TTL", 24*time.Hour),
			LRUSize:   getint("JOBSTORE_LRU_SIZE", 4096),
			OpTimeout: getduration("JOBSTORE_OP_TIMEOUT", 250*time.Millisecond),
		},
		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Brokers: getenv("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getenv("KAFKA_TOPIC", "print-jobs"),
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

// Brokers splits a comma separated broker list.
func Brokers(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getfloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

// parse "minx,miny,maxx,maxy"; anything else means no extent
func parseExtent(s string) []float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return nil
	}
	out := make([]float64, 4)
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil
		}
		out[i] = f
	}
	if out[0] > out[2] || out[1] > out[3] {
		return nil
	}
	return out
}
