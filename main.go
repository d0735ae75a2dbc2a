package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"feedsync/config"
	"feedsync/events"
	"feedsync/feed"
	"feedsync/httputil"
	"feedsync/logging"
	"feedsync/scheduler"
	"feedsync/server"
	"feedsync/services"
	"feedsync/storage"
	"feedsync/workers"
)

var (
	importTarget = flag.String("import", "", "Import one feed (id or URL) and exit")
	migrateOnly  = flag.Bool("migrate", false, "Apply the database schema and exit")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger, logFile, err := logging.Setup(cfg.LogLevel, cfg.LogFile)
	if err != nil {
		slog.Warn("could not set up file logging", "error", err)
	}
	if logFile != nil {
		defer logFile.Close()
	}
	slog.SetDefault(logger)

	if err := run(cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		if logFile != nil {
			logFile.Close()
		}
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting feedsync", "feeds", len(cfg.Feeds), "driver", cfg.Database.Driver)
	for id, fc := range cfg.Feeds {
		logger.Info("feed loaded", "feed", id, "name", fc.Name, "enabled", fc.Enabled)
	}

	ctx := context.Background()

	store, err := storage.Open(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer store.Close()
	logger.Info("connected to database", "dsn", redact(cfg.Database))

	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if *migrateOnly {
		logger.Info("schema applied")
		return nil
	}

	clients := httputil.NewClients(&cfg.Proxy, cfg.FeedTimeout)

	var images *workers.ImagePipeline
	if cfg.S3.Enabled() {
		objects, err := storage.NewS3Storage(ctx, cfg.S3)
		if err != nil {
			return fmt.Errorf("object storage: %w", err)
		}
		images = workers.NewImagePipeline(clients.Media, objects, cfg.Images, cfg.S3.Prefix, logger)
		logger.Info("image pipeline enabled", "bucket", cfg.S3.Bucket, "batch_size", cfg.Images.BatchSize)
	} else {
		logger.Warn("S3 not configured, luxury images will not be uploaded")
	}

	var publisher events.Publisher = events.Noop{}
	if cfg.AMQP.URL != "" {
		amqpPub, err := events.NewAMQPPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange)
		if err != nil {
			logger.Warn("AMQP unavailable, events disabled", "error", err)
		} else {
			publisher = amqpPub
			logger.Info("publishing events", "exchange", cfg.AMQP.Exchange)
		}
	}
	defer publisher.Close()

	importer := services.NewImporter(store, feed.NewFetcher(clients.Feed), images, publisher, logger)
	defer func() {
		if images != nil {
			images.Wait()
		}
	}()

	if *importTarget != "" {
		return importOnce(ctx, cfg, importer, *importTarget, logger)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(cfg, importer, logger)
	if err := sched.Start(ctx); err != nil {
		return fmt.Errorf("start scheduler: %w", err)
	}

	api := server.New(cfg.HTTP.Addr, server.NewHandlers(importer, sched, store, cfg.Feeds, logger), logger)
	errCh := make(chan error, 1)
	go func() { errCh <- api.Start() }()

	logger.Info("daemon running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sigCh:
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	logger.Info("shutting down")
	shutdownCtx, stop := context.WithTimeout(context.Background(), 30*time.Second)
	defer stop()
	if err := api.Stop(shutdownCtx); err != nil {
		logger.Warn("http shutdown", "error", err)
	}
	cancel()
	sched.Stop()
	return nil
}

func importOnce(ctx context.Context, cfg *config.Config, importer *services.Importer, target string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		res *services.Result
		err error
	)
	if fc, ok := cfg.Feeds[target]; ok {
		res, err = importer.Run(ctx, fc)
	} else if strings.HasPrefix(target, "http://") || strings.HasPrefix(target, "https://") {
		res, err = importer.RunURL(ctx, target)
	} else {
		return fmt.Errorf("unknown feed %q", target)
	}
	if err != nil {
		var fetchErr *feed.FetchError
		if errors.As(err, &fetchErr) {
			return fmt.Errorf("feed unreachable: %w", err)
		}
		return err
	}

	logger.Info("import complete",
		"job_id", res.JobID,
		"imported", res.Imported,
		"updated", res.Updated,
		"failed", res.Failed,
	)
	return nil
}

func redact(db config.DatabaseConfig) string {
	if db.URL == "" || strings.HasPrefix(db.Driver, "sqlite") {
		return db.Path
	}
	u, err := url.Parse(db.URL)
	if err != nil {
		return "(unparseable)"
	}
	return u.Redacted()
}
