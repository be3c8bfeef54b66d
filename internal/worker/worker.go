// Package worker executes queued async generation jobs.
package worker

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/JakeFAU/conductio-api/internal/clock/system"
	"github.com/JakeFAU/conductio-api/internal/conductio"
	"github.com/JakeFAU/conductio-api/internal/metrics"
	"github.com/JakeFAU/conductio-api/internal/output"
)

// Locator reports which renditions a package directory holds.
type Locator interface {
	Locate(dir string, layer conductio.Layer) (output.Rendition, error)
}

// Config controls Worker behavior.
type Config struct {
	// Topic is the event name published when a job finishes; empty disables events.
	Topic string
	// ArchivePrefix is prepended to archived object paths.
	ArchivePrefix string
}

// Worker consumes queue items and runs the engine for each.
type Worker struct {
	queue     conductio.Queue
	generator conductio.Generator
	locator   Locator
	jobStore  conductio.JobStore
	blobStore conductio.BlobStore
	publisher conductio.Publisher
	fs        afero.Fs
	clock     conductio.Clock
	cfg       Config
	logger    *zap.Logger
}

// New constructs a Worker. blobStore and publisher are optional; a nil clock
// uses the system clock.
func New(
	queue conductio.Queue,
	generator conductio.Generator,
	locator Locator,
	jobStore conductio.JobStore,
	blobStore conductio.BlobStore,
	publisher conductio.Publisher,
	fs afero.Fs,
	clock conductio.Clock,
	cfg Config,
	logger *zap.Logger,
) *Worker {
	if fs == nil {
		fs = afero.NewOsFs()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if clock == nil {
		clock = system.New()
	}
	return &Worker{
		queue:     queue,
		generator: generator,
		locator:   locator,
		jobStore:  jobStore,
		blobStore: blobStore,
		publisher: publisher,
		fs:        fs,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run blocks, consuming queue items until ctx ends or the queue is closed
// and drained.
func (w *Worker) Run(ctx context.Context) {
	for {
		item, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, conductio.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued job",
			zap.String("job_id", item.JobID),
			zap.Duration("queued_for", w.clock.Now().Sub(time.Unix(0, item.Submitted))),
		)
		w.processJob(ctx, item)
	}
}

func (w *Worker) processJob(ctx context.Context, item conductio.QueueItem) {
	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	status := conductio.JobStatusCompleted
	errText := ""
	result, err := w.execute(ctx, item)
	if err != nil {
		status = conductio.JobStatusFailed
		errText = err.Error()
		result = nil
		w.logger.Error("generation job failed",
			zap.String("job_id", item.JobID),
			zap.String("layer", string(item.Request.Layer)),
			zap.Error(err),
		)
	}

	if err := w.jobStore.FinishJob(ctx, item.JobID, status, result, errText); err != nil {
		w.logger.Error("final job status update failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	metrics.ObserveJob(string(status))
	w.logger.Info("generation job finished", zap.String("job_id", item.JobID), zap.String("status", string(status)))

	w.publishResult(ctx, item, status, result, errText)
}

func (w *Worker) execute(ctx context.Context, item conductio.QueueItem) (*conductio.Result, error) {
	if w.generator == nil || w.locator == nil {
		return nil, errors.New("no generator configured")
	}
	req := item.Request
	dir, err := w.generator.Generate(ctx, req)
	if err != nil {
		return nil, err
	}
	rendition, err := w.locator.Locate(dir, req.Layer)
	if err != nil {
		return nil, fmt.Errorf("locate output: %w", err)
	}

	result := &conductio.Result{
		OutputPath: dir,
		MIDIFile:   rendition.MIDIPath,
		Layer:      req.Layer,
		Genre:      req.Genre,
		Key:        req.Key,
		BPM:        req.BPM,
		Bars:       req.Bars,
		Instrument: req.Instrument,
	}
	if rendition.AudioPath != "" {
		audio := rendition.AudioPath
		result.AudioFile = &audio
	}

	if w.blobStore != nil {
		links, err := w.archive(ctx, item.JobID, rendition)
		if err != nil {
			w.logger.Warn("archive failed; files remain in the engine output directory",
				zap.String("job_id", item.JobID), zap.Error(err))
		} else {
			result.Archive = links
		}
	}
	return result, nil
}

func (w *Worker) archive(ctx context.Context, jobID string, rendition output.Rendition) (*conductio.ArchiveLinks, error) {
	links := &conductio.ArchiveLinks{}
	uri, err := w.putFile(ctx, jobID, rendition.MIDIPath)
	if err != nil {
		return nil, err
	}
	links.MIDI = uri
	if rendition.AudioPath != "" {
		if links.Audio, err = w.putFile(ctx, jobID, rendition.AudioPath); err != nil {
			return nil, err
		}
	}
	return links, nil
}

func (w *Worker) putFile(ctx context.Context, jobID, src string) (string, error) {
	f, err := w.fs.Open(src)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", src, err)
	}
	defer func() { _ = f.Close() }()

	uri, err := w.blobStore.PutObject(ctx, w.buildBlobPath(jobID, filepath.Base(src)), output.MIMEFor(src), f)
	if err != nil {
		return "", fmt.Errorf("put object: %w", err)
	}
	return uri, nil
}

func (w *Worker) buildBlobPath(jobID, name string) string {
	prefix := strings.Trim(w.cfg.ArchivePrefix, "/")
	if prefix == "" {
		return path.Join(jobID, name)
	}
	return path.Join(prefix, jobID, name)
}

func (w *Worker) publishResult(
	ctx context.Context,
	item conductio.QueueItem,
	status conductio.JobStatus,
	result *conductio.Result,
	errText string,
) {
	if w.cfg.Topic == "" || w.publisher == nil {
		return
	}
	payload := map[string]any{
		"jobId":      item.JobID,
		"status":     status,
		"layer":      item.Request.Layer,
		"finishedAt": w.clock.Now().Format(time.RFC3339),
	}
	if result != nil {
		payload["outputPath"] = result.OutputPath
		payload["midiFile"] = result.MIDIFile
		payload["audioFile"] = result.AudioFile
		if result.Archive != nil {
			payload["archive"] = result.Archive
		}
	}
	if errText != "" {
		payload["error"] = errText
	}
	id, err := w.publisher.Publish(ctx, w.cfg.Topic, payload)
	if err != nil {
		w.logger.Warn("publish job event failed", zap.String("job_id", item.JobID), zap.Error(err))
		return
	}
	w.logger.Debug("job event published", zap.String("job_id", item.JobID), zap.String("message_id", id))
}
