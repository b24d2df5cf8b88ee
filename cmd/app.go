package cmd

import (
	"context"
	"fmt"
	"net/http"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/twstocklab/stockboard/internal/archive"
	archivegcs "github.com/twstocklab/stockboard/internal/archive/gcs"
	archivelocal "github.com/twstocklab/stockboard/internal/archive/local"
	"github.com/twstocklab/stockboard/internal/client"
	"github.com/twstocklab/stockboard/internal/clock/system"
	"github.com/twstocklab/stockboard/internal/config"
	"github.com/twstocklab/stockboard/internal/engine"
	"github.com/twstocklab/stockboard/internal/logging"
	"github.com/twstocklab/stockboard/internal/notify"
	notifypubsub "github.com/twstocklab/stockboard/internal/notify/pubsub"
	"github.com/twstocklab/stockboard/internal/progress"
	"github.com/twstocklab/stockboard/internal/progress/sinks"
	"github.com/twstocklab/stockboard/internal/stocks"
	storagememory "github.com/twstocklab/stockboard/internal/storage/memory"
	storagepostgres "github.com/twstocklab/stockboard/internal/storage/postgres"
	"github.com/twstocklab/stockboard/internal/store"
)

// app bundles the wired services a command drives. Close releases them in
// reverse construction order.
type app struct {
	cfg        config.Config
	logger     *zap.Logger
	upstream   *client.Client
	runs       store.RunStore
	prices     store.PriceStore
	hub        *progress.Hub
	stream     http.Handler
	controller *engine.Controller

	closers []func()
}

// appOptions tweaks construction per command.
type appOptions struct {
	// withStream enables the websocket fan-out sink; only the HTTP server
	// needs it.
	withStream bool
	// onProgress receives per-item and per-batch status lines; used by the
	// CLI refresh command.
	onProgress func(summary stocks.RunSummary, msg string)
}

// newApp builds the service graph from configuration.
func newApp(ctx context.Context, cfg config.Config, opts appOptions) (*app, error) {
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	a := &app{cfg: cfg, logger: logger}
	a.closers = append(a.closers, func() { _ = logger.Sync() })

	a.upstream, err = client.New(client.Config{
		BaseURL: cfg.Upstream.BaseURL,
		Timeout: cfg.UpstreamTimeout(),
		RPS:     cfg.Upstream.RPS,
		Burst:   cfg.Upstream.Burst,
	}, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init upstream client: %w", err)
	}

	if err := a.initStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	notifier, topic, err := a.initNotifier(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	archiver, err := a.initArchiver(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}

	sinkList := []progress.Sink{
		sinks.NewLogSink(logger),
		sinks.NewPrometheusSink(),
	}
	if opts.withStream {
		ws := sinks.NewWebsocketSink(logger)
		a.stream = ws
		sinkList = append(sinkList, ws)
	}
	a.hub = progress.NewHub(progress.Config{Logger: logger}, sinkList...)
	a.closers = append(a.closers, func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.hub.Close(closeCtx); err != nil {
			logger.Warn("progress hub close failed", zap.Error(err))
		}
	})

	a.controller = engine.New(engine.Deps{
		Lister:   a.upstream,
		Updater:  a.upstream,
		Clock:    system.New(),
		Sleeper:  system.NewSleeper(),
		Runs:     a.runs,
		Emitter:  a.hub,
		Notifier: notifier,
		Archive:  archiver,
		Logger:   logger,
	}, engine.Config{
		Topic:         topic,
		ArchivePrefix: cfg.Archive.Prefix,
		OnProgress:    opts.onProgress,
	})

	return a, nil
}

func (a *app) initStores(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		a.runs = storagememory.NewRunStore()
		a.logger.Info("using in-memory run store; price cache disabled")
		return nil
	}

	runs, err := storagepostgres.NewRunStore(ctx, a.cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("connect run store: %w", err)
	}
	a.closers = append(a.closers, runs.Close)
	if err := runs.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure run schema: %w", err)
	}

	prices, err := storagepostgres.NewPriceStore(ctx, a.cfg.DB.DSN)
	if err != nil {
		return fmt.Errorf("connect price store: %w", err)
	}
	a.closers = append(a.closers, prices.Close)
	if err := prices.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure price schema: %w", err)
	}

	a.runs = runs
	a.prices = prices
	return nil
}

func (a *app) initNotifier(ctx context.Context) (notify.Publisher, string, error) {
	if !a.cfg.PubSub.Enabled {
		return nil, "", nil
	}
	psClient, err := gpubsub.NewClient(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, "", fmt.Errorf("init pubsub client: %w", err)
	}
	a.closers = append(a.closers, func() { _ = psClient.Close() })
	return notifypubsub.New(psClient), a.cfg.PubSub.TopicName, nil
}

func (a *app) initArchiver(ctx context.Context) (archive.BlobStore, error) {
	switch a.cfg.Archive.Provider {
	case "", "none":
		return nil, nil
	case "local":
		bs, err := archivelocal.New(a.cfg.Archive.LocalDir)
		if err != nil {
			return nil, fmt.Errorf("init local archive: %w", err)
		}
		return bs, nil
	case "gcs":
		gc, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("init gcs client: %w", err)
		}
		a.closers = append(a.closers, func() { _ = gc.Close() })
		bs, err := archivegcs.New(gc, a.cfg.Archive.GCSBucket)
		if err != nil {
			return nil, fmt.Errorf("init gcs archive: %w", err)
		}
		return bs, nil
	default:
		return nil, fmt.Errorf("unknown archive provider %q", a.cfg.Archive.Provider)
	}
}

// Close shuts down services in reverse construction order.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
