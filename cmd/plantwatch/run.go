package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"plantwatch/internal/agent"
	"plantwatch/internal/alerts"
	"plantwatch/internal/api"
	"plantwatch/internal/config"
	"plantwatch/internal/engine"
	"plantwatch/internal/logging"
	"plantwatch/internal/metrics"
	"plantwatch/internal/source"
	"plantwatch/internal/storage"
	"plantwatch/internal/telemetry"
	"plantwatch/internal/vision"
)

func runAgent(parent context.Context, configPath string) error {
	if parent == nil {
		parent = context.Background()
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting plantwatch", "version", version, "config", config.ResolvePath(configPath))

	if err := metrics.Register(prometheus.DefaultRegisterer); err != nil {
		return fmt.Errorf("register metrics: %w", err)
	}

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		err := store.Init(initCtx)
		cancel()
		if err != nil {
			return fmt.Errorf("storage init: %w", err)
		}
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	src, err := source.New(cfg.Source, logger)
	if err != nil {
		return err
	}

	pipeline := vision.NewPipeline(cfg.Preprocess, cfg.Segment)
	defer pipeline.Close()

	alertsStore := alerts.NewStore(cfg.Alerts.StoreLimit)
	history := engine.NewHistory(cfg.History.MaxSamples)
	monitor := engine.NewMonitor(cfg.Detection, history, logger, alertsStore)
	statusStore := metrics.NewStore(0)
	exporter := telemetry.NewExporter(cfg.Export.Directory, history, logger)

	connectCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	dispatcher, err := telemetry.NewConfiguredDispatcher(connectCtx, cfg.Publish, src.Name(), store, logger)
	cancel()
	if err != nil {
		src.Close()
		return err
	}
	dispatcher.Start()
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := dispatcher.Close(closeCtx); err != nil {
			logger.Warn("publish shutdown", "err", err)
		}
	}()
	sink := telemetry.NewSink(src.Name(), statusStore, dispatcher, exporter, logger)

	api.Start(ctx, cfg.API, api.Deps{
		Status:   statusStore,
		Alerts:   alertsStore,
		History:  history,
		Monitor:  monitor,
		Exporter: exporter,
	}, logger, version)

	a := agent.New(agent.Options{
		Source:         src,
		Extractor:      pipeline,
		Smoother:       engine.NewSmoother(cfg.Smoothing.BufferCapacity),
		Monitor:        monitor,
		Sink:           sink,
		Interval:       cfg.Sampling.Interval,
		ReadTimeout:    cfg.Source.ReadTimeout,
		ExportInterval: cfg.Export.Interval,
		Logger:         logger,
	})
	err = a.Run(ctx)
	logger.Info("plantwatch stopped", "samples", history.Len())
	return err
}
