// Package server provides the core application server and dependency wiring.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/storage"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/conductio-api/internal/api"
	"github.com/JakeFAU/conductio-api/internal/clock/system"
	"github.com/JakeFAU/conductio-api/internal/conductio"
	"github.com/JakeFAU/conductio-api/internal/config"
	"github.com/JakeFAU/conductio-api/internal/dispatcher"
	"github.com/JakeFAU/conductio-api/internal/engine"
	"github.com/JakeFAU/conductio-api/internal/id/uuid"
	"github.com/JakeFAU/conductio-api/internal/library"
	"github.com/JakeFAU/conductio-api/internal/output"
	memorypublisher "github.com/JakeFAU/conductio-api/internal/publisher/memory"
	gcppublisher "github.com/JakeFAU/conductio-api/internal/publisher/pubsub"
	queueMemory "github.com/JakeFAU/conductio-api/internal/queue/memory"
	gcsstorage "github.com/JakeFAU/conductio-api/internal/storage/gcs"
	localstorage "github.com/JakeFAU/conductio-api/internal/storage/local"
	memoryStorage "github.com/JakeFAU/conductio-api/internal/storage/memory"
	"github.com/JakeFAU/conductio-api/internal/worker"
)

const (
	// FinishedEvent is published when an async job reaches a terminal state.
	FinishedEvent = "generation.finished"

	shutdownTimeout = 10 * time.Second
	// memoryEventLimit bounds the events kept when Pub/Sub is not configured.
	memoryEventLimit = 256
)

// App contains the application's dependencies.
type App struct {
	cfg             config.Config
	logger          *zap.Logger
	fs              afero.Fs
	apiServer       *api.Server
	dispatch        *dispatcher.Dispatcher
	queue           *queueMemory.Queue
	pubsubClient    *pubsub.Client
	pubsubPublisher *gcppublisher.Publisher
	storage         *storage.Client
}

// NewEngine builds the engine adapter from configuration.
func NewEngine(cfg config.Config, logger *zap.Logger) (*engine.Invoker, error) {
	parser, err := engine.NewMarkerParser(cfg.Engine.OutputPattern)
	if err != nil {
		return nil, fmt.Errorf("output parser init failed: %w", err)
	}
	return engine.NewInvoker(engine.Config{
		Dir:            cfg.Engine.Dir,
		Command:        cfg.Engine.Command,
		Script:         cfg.Engine.Script,
		Timeout:        cfg.EngineTimeout(),
		MaxOutputBytes: cfg.Engine.MaxOutputBytes,
		ProbeTimeout:   cfg.ProbeTimeout(),
		ProbeMarker:    cfg.Engine.ProbeMarker,
		CatalogTimeout: cfg.CatalogTimeout(),
	}, engine.ExecRunner{}, parser, logger.Named("engine")), nil
}

// Build creates the application's dependencies. A nil fs uses the OS filesystem.
func Build(ctx context.Context, cfg config.Config, fs afero.Fs, logger *zap.Logger) (*App, error) {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	app := &App{cfg: cfg, logger: logger, fs: fs}
	logger.Info("building application dependencies",
		zap.Int("server_port", cfg.Server.Port),
		zap.String("engine_dir", cfg.Engine.Dir),
		zap.String("output_dir", cfg.OutputDir()),
	)

	invoker, err := NewEngine(cfg, logger)
	if err != nil {
		return nil, err
	}
	generator := engine.NewBounded(invoker, cfg.Engine.MaxConcurrent)
	clock := system.New()
	jobStore := memoryStorage.NewJobStore(clock)
	resolver := output.NewResolver(fs)

	blobStore, err := setupStorage(ctx, app)
	if err != nil {
		return nil, err
	}
	publisher, err := setupPublisher(ctx, app)
	if err != nil {
		app.closeInfrastructure()
		return nil, err
	}

	app.queue = queueMemory.NewQueue(cfg.Jobs.QueueDepth)
	app.dispatch = setupDispatcher(app, generator, resolver, jobStore, blobStore, publisher, clock)

	app.apiServer = api.NewServer(api.Deps{
		Generator:  generator,
		Prober:     invoker,
		Catalog:    invoker,
		JobStore:   jobStore,
		Dispatcher: app.dispatch,
		Resolver:   resolver,
		Library:    library.NewScanner(fs, cfg.OutputDir(), logger.Named("library")),
		IDGen:      uuid.New(),
		Clock:      clock,
		Fs:         fs,
	}, cfg, logger.Named("api"))

	return app, nil
}

// Handler exposes the HTTP router, mainly for tests.
func (a *App) Handler() http.Handler {
	return a.apiServer.Handler()
}

// Run starts the dispatcher and HTTP server and blocks until ctx is canceled
// or a termination signal arrives.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Workers outlive the signal so queued jobs can drain during shutdown.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		a.logger.Info("dispatcher started", zap.Int("workers", a.cfg.Jobs.Workers))
		a.dispatch.Run(workCtx)
	}()

	srv := &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(a.cfg.Server.Port)),
		Handler:           a.apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      a.cfg.WriteTimeout(),
	}

	serveErr := make(chan error, 1)
	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			serveErr <- err
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}

	a.queue.Close()
	select {
	case <-dispatchDone:
	case <-shutdownCtx.Done():
		a.logger.Warn("workers still busy at shutdown deadline; canceling in-flight jobs")
		cancelWork()
		<-dispatchDone
	}

	a.Close()

	select {
	case err := <-serveErr:
		return fmt.Errorf("http server: %w", err)
	default:
		return nil
	}
}

// Close releases cloud clients and flushes the logger.
func (a *App) Close() {
	a.closeInfrastructure()
	if err := a.logger.Sync(); err != nil {
		a.logger.Debug("logger sync failed", zap.Error(err))
	}
	a.logger.Info("shutdown complete")
}

func (a *App) closeInfrastructure() {
	if a.pubsubPublisher != nil {
		a.pubsubPublisher.Stop()
	}
	if a.pubsubClient != nil {
		if err := a.pubsubClient.Close(); err != nil {
			a.logger.Warn("pubsub client close failed", zap.Error(err))
		}
	}
	if a.storage != nil {
		if err := a.storage.Close(); err != nil {
			a.logger.Warn("gcs client close failed", zap.Error(err))
		}
	}
}

func setupStorage(ctx context.Context, app *App) (conductio.BlobStore, error) {
	switch app.cfg.Storage.Provider {
	case config.StorageGCS:
		app.logger.Info("archiving results to GCS", zap.String("bucket", app.cfg.Storage.GCSBucket))
		var err error
		app.storage, err = storage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client init failed: %w", err)
		}
		blobStore, err := gcsstorage.New(app.storage, gcsstorage.Config{Bucket: app.cfg.Storage.GCSBucket})
		if err != nil {
			return nil, fmt.Errorf("gcs blob store init failed: %w", err)
		}
		return blobStore, nil
	case config.StorageLocal:
		app.logger.Info("archiving results to local disk", zap.String("path", app.cfg.Storage.BaseDir))
		blobStore, err := localstorage.New(app.fs, localstorage.Config{BaseDir: app.cfg.Storage.BaseDir})
		if err != nil {
			return nil, fmt.Errorf("local blob store init failed: %w", err)
		}
		return blobStore, nil
	case config.StorageMemory:
		app.logger.Info("archiving results in memory")
		return memoryStorage.NewBlobStore(), nil
	default:
		app.logger.Info("result archiving disabled")
		return nil, nil
	}
}

func setupPublisher(ctx context.Context, app *App) (conductio.Publisher, error) {
	if !app.cfg.PubSub.Enabled() {
		app.logger.Warn("no Pub/Sub topic configured, using in-memory publisher")
		return memorypublisher.NewWithLimit(memoryEventLimit), nil
	}
	var err error
	app.pubsubClient, err = pubsub.NewClient(ctx, app.cfg.PubSub.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("pubsub client init failed: %w", err)
	}
	app.pubsubPublisher = gcppublisher.New(app.pubsubClient.Topic(app.cfg.PubSub.TopicName))
	app.logger.Info("Pub/Sub publisher initialized",
		zap.String("project", app.cfg.PubSub.ProjectID),
		zap.String("topic", app.cfg.PubSub.TopicName),
	)
	return app.pubsubPublisher, nil
}

func setupDispatcher(
	app *App,
	generator conductio.Generator,
	locator worker.Locator,
	jobStore conductio.JobStore,
	blobStore conductio.BlobStore,
	publisher conductio.Publisher,
	clock conductio.Clock,
) *dispatcher.Dispatcher {
	workerCfg := worker.Config{Topic: FinishedEvent, ArchivePrefix: app.cfg.Storage.Prefix}
	app.logger.Info("worker config",
		zap.Int("workers", app.cfg.Jobs.Workers),
		zap.Int("queue_depth", app.cfg.Jobs.QueueDepth),
		zap.String("archive_prefix", workerCfg.ArchivePrefix),
		zap.String("event", workerCfg.Topic),
	)

	workers := make([]*worker.Worker, 0, app.cfg.Jobs.Workers)
	for i := range app.cfg.Jobs.Workers {
		workers = append(workers, worker.New(
			app.queue,
			generator,
			locator,
			jobStore,
			blobStore,
			publisher,
			app.fs,
			clock,
			workerCfg,
			app.logger.Named("worker").With(zap.Int("index", i)),
		))
	}
	return dispatcher.New(app.queue, workers)
}
