package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mohammed-shakir/mfp-encoder/internal/api"
	"github.com/mohammed-shakir/mfp-encoder/internal/core/config"
	"github.com/mohammed-shakir/mfp-encoder/internal/core/health"
	"github.com/mohammed-shakir/mfp-encoder/internal/core/httpclient"
	"github.com/mohammed-shakir/mfp-encoder/internal/core/server"
	"github.com/mohammed-shakir/mfp-encoder/internal/encoder"
	"github.com/mohammed-shakir/mfp-encoder/internal/jobevents"
	"github.com/mohammed-shakir/mfp-encoder/internal/jobstore"
	"github.com/mohammed-shakir/mfp-encoder/internal/logger"
	"github.com/mohammed-shakir/mfp-encoder/internal/mapstate"
	"github.com/mohammed-shakir/mfp-encoder/internal/metrics"
	"github.com/mohammed-shakir/mfp-encoder/internal/report"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	cfg := config.FromEnv()

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "printproxy",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	appLog.Info("starting print proxy",
		"addr", cfg.Addr,
		"version", Version,
		"print_service", cfg.Print.ServiceURL,
		"jobstore", cfg.JobStore.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	prov := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})
	go func() {
		if err := prov.Serve(ctx, appLog); err != nil {
			appLog.Error("metrics server exited", "err", err)
		}
	}()

	httpClient := httpclient.NewOutbound(cfg.Print.RequestTimeout)
	printSvc, err := report.New(cfg.Print.ServiceURL, cfg.Print.App, httpClient, appLog)
	if err != nil {
		appLog.Error("print service client", "err", err)
		return 1
	}

	storeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	jobs, err := jobstore.Open(storeCtx, cfg.JobStore)
	cancel()
	if err != nil {
		appLog.Error("open job store", "err", err)
		return 1
	}
	defer func() { _ = jobs.Close() }()

	var events jobevents.Publisher = jobevents.Nop{}
	if cfg.Events.Enabled {
		k, err := jobevents.NewKafka(config.Brokers(cfg.Events.Brokers), cfg.Events.Topic, 1024, appLog)
		if err != nil {
			appLog.Error("job events publisher", "err", err)
			return 1
		}
		events = k
	}
	defer func() {
		if err := events.Close(); err != nil {
			appLog.Warn("close job events", "err", err)
		}
	}()

	h, err := api.New(cfg, appLog, api.Deps{
		Encoder: encoder.New(appLog),
		Print:   printSvc,
		Jobs:    jobs,
		Events:  events,
		Decode:  mapstate.DecodeOptions{Client: httpClient, LoadTimeout: cfg.Encode.LoadTimeout},
	})
	if err != nil {
		appLog.Error("api setup failed", "err", err)
		return 1
	}

	router := server.NewRouter(cfg, appLog, server.Routes{
		API:     h,
		Metrics: prov.Handler(),
		Ready: []health.Check{
			{Name: "jobstore", Pinger: jobs},
			{Name: "print", Pinger: printSvc},
		},
	})
	if err := server.Run(ctx, cfg, appLog, router); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
