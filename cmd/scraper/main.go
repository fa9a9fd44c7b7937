package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/aluiziolira/go-scrape-books-gce/config"
	"github.com/aluiziolira/go-scrape-books-gce/logging"
	"github.com/aluiziolira/go-scrape-books-gce/models"
	"github.com/aluiziolira/go-scrape-books-gce/parser"
	"github.com/aluiziolira/go-scrape-books-gce/pipeline"
	"github.com/aluiziolira/go-scrape-books-gce/reaper"
	"github.com/aluiziolira/go-scrape-books-gce/scraper"
	"github.com/aluiziolira/go-scrape-books-gce/storage"
)

func main() {
	os.Exit(run(context.Background()))
}

func run(ctx context.Context) int {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		return 1
	}

	cfg, identityErr := cfg.ResolveInstance(ctx, config.NewGCEMetadata())
	if identityErr != nil && cfg.Reaper.Enabled {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", identityErr)
		return 1
	}

	logger, closeLogs := newLogger(ctx, cfg)
	defer closeLogs()
	if identityErr != nil {
		logger.Warn("instance identity incomplete, deletion is disabled anyway", zap.Error(identityErr))
	}

	instance := reaper.Instance{Project: cfg.ProjectID, Zone: cfg.Zone, Name: cfg.InstanceName}
	var deleter reaper.Deleter
	if cfg.Reaper.Enabled {
		gce, err := reaper.NewGCEDeleter(ctx)
		if err != nil {
			logger.Error("creating compute client", zap.Error(err))
			return 1
		}
		defer gce.Close()
		deleter = gce
	}
	r := reaper.New(deleter, instance, logger.Named("reaper"))

	metrics := scraper.NewMetrics()
	var pusher pipeline.MetricsPusher
	if cfg.Metrics.PushgatewayURL != "" {
		pusher = scraper.NewPusher(metrics, cfg.Metrics.PushgatewayURL, cfg.Metrics.JobName, cfg.InstanceName)
	}

	fetcher, err := scraper.NewFetcher(scraper.Config{
		URLTemplate: cfg.PageURLTemplate(),
		UserAgent:   cfg.Scraper.UserAgent,
		Timeout:     cfg.Scraper.RequestTimeout,
	}, metrics)
	if err != nil {
		logger.Error("initialising scraper", zap.Error(err))
		return 1
	}

	publisher, closePublisher, err := createPublisher(cfg, logger.Named("storage"))
	if err != nil {
		logger.Error("creating publisher", zap.Error(err))
		return 1
	}
	defer closePublisher()

	p, err := pipeline.New(fetcher, parser.NewExtractor(cfg.Scraper.BaseURL), publisher, r, pipeline.Options{
		Logger:  logger,
		Metrics: metrics,
		Pusher:  pusher,
	})
	if err != nil {
		logger.Error("initialising pipeline", zap.Error(err))
		return 1
	}

	result, err := p.Run(ctx)
	printSummary(result)
	if err != nil {
		return 1
	}
	return 0
}

// newLogger returns the process logger and a func releasing the Cloud
// Logging client. Cloud Logging failures degrade to stderr only.
func newLogger(ctx context.Context, cfg config.Config) (*zap.Logger, func()) {
	base, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "building logger: %v\n", err)
		base = zap.NewNop()
	}
	closeLogs := func() { _ = base.Sync() }
	if !cfg.Logging.Cloud {
		return base, closeLogs
	}

	logger, closeClient, err := logging.WithCloud(ctx, base, cfg.ProjectID, cfg.Logging.LogName)
	if err != nil {
		base.Warn("cloud logging unavailable, logging to stderr only", zap.Error(err))
		return base, closeLogs
	}
	return logger, func() {
		_ = logger.Sync()
		_ = closeClient()
	}
}

func createPublisher(cfg config.Config, logger *zap.Logger) (pipeline.Publisher, func(), error) {
	switch cfg.Storage.Backend {
	case config.BackendGCS:
		pub, err := storage.NewGCSPublisher(storage.DefaultClientFactory{}, storage.GCSConfig{
			Bucket:    cfg.Bucket,
			Object:    cfg.ObjectName(),
			ChunkSize: cfg.Storage.ChunkSize,
		}, logger)
		if err != nil {
			return nil, nil, err
		}
		return pub, func() { _ = pub.Close() }, nil
	case config.BackendFile:
		pub, err := storage.NewFilePublisher(cfg.Storage.LocalDir, cfg.ObjectName())
		if err != nil {
			return nil, nil, err
		}
		return pub, func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported storage backend: %s", cfg.Storage.Backend)
	}
}

func printSummary(result *models.RunResult) {
	if result == nil {
		return
	}
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	fmt.Println("Scrape complete")
	fmt.Printf("  Run ID:        %s\n", result.RunID)
	fmt.Printf("  Pages:         %d\n", result.PageCount)
	fmt.Printf("  Records:       %d\n", result.RecordCount)
	fmt.Printf("  Output:        %s\n", result.ObjectURI)
	fmt.Printf("  Instance:      %s\n", result.ReaperOutcome)
	fmt.Printf("  Duration:      %v\n", result.Duration().Round(time.Millisecond))
	fmt.Println(separator)
}
