package worker

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/conductio-api/internal/conductio"
	"github.com/JakeFAU/conductio-api/internal/output"
	pubmemory "github.com/JakeFAU/conductio-api/internal/publisher/memory"
	queuememory "github.com/JakeFAU/conductio-api/internal/queue/memory"
	"github.com/JakeFAU/conductio-api/internal/storage/memory"
)

const pkgDir = "/engine/output/wild_canyon_melody.mcpkg"

type fakeGenerator struct {
	mu    sync.Mutex
	dir   string
	err   error
	calls []conductio.GenerationRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req conductio.GenerationRequest) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	return g.dir, g.err
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

type failingBlobStore struct{}

func (failingBlobStore) PutObject(context.Context, string, string, io.Reader) (string, error) {
	return "", errors.New("bucket unavailable")
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, string, any) (string, error) {
	return "", errors.New("topic deleted")
}

type harness struct {
	fs        afero.Fs
	queue     *queuememory.Queue
	generator *fakeGenerator
	jobs      *memory.JobStore
	blobs     *memory.BlobStore
	publisher *pubmemory.Publisher
	clock     *fakeClock
}

func newHarness(t *testing.T, files ...string) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fs, pkgDir+"/"+f, []byte("content of "+f), 0o644))
	}
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0).UTC()}
	return &harness{
		fs:        fs,
		queue:     queuememory.NewQueue(4),
		generator: &fakeGenerator{dir: pkgDir},
		jobs:      memory.NewJobStore(clock),
		blobs:     memory.NewBlobStore(),
		publisher: pubmemory.New(),
		clock:     clock,
	}
}

func (h *harness) worker(blobs conductio.BlobStore, publisher conductio.Publisher) *Worker {
	return New(
		h.queue,
		h.generator,
		output.NewResolver(h.fs),
		h.jobs,
		blobs,
		publisher,
		h.fs,
		h.clock,
		Config{Topic: "generation.finished", ArchivePrefix: "generations"},
		zap.NewNop(),
	)
}

// submit registers a processing job, enqueues it and closes the queue so Run
// returns once the job has been handled.
func (h *harness) submit(t *testing.T, id string, req conductio.GenerationRequest) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, h.jobs.CreateJob(ctx, conductio.Job{ID: id, Status: conductio.JobStatusProcessing, Request: req}))
	require.NoError(t, h.queue.Enqueue(ctx, conductio.QueueItem{JobID: id, Request: req, Submitted: h.clock.now.UnixNano()}))
	h.queue.Close()
}

func melodyRequest(renderAudio bool) conductio.GenerationRequest {
	return conductio.GenerationRequest{
		Layer: conductio.LayerMelody, Key: "C minor", BPM: 120, Bars: 8,
		Instrument: "auto", Genre: "general", RenderAudio: renderAudio,
	}
}

func TestWorkerSuccessWithAudio(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "melody.mid", "melody.wav")
	h.submit(t, "job-success", melodyRequest(true))
	h.worker(h.blobs, h.publisher).Run(context.Background())

	job, err := h.jobs.GetJob(context.Background(), "job-success")
	require.NoError(t, err)
	require.Equal(t, conductio.JobStatusCompleted, job.Status)
	require.Empty(t, job.Error)
	require.NotNil(t, job.Result)
	require.Equal(t, pkgDir, job.Result.OutputPath)
	require.Equal(t, pkgDir+"/melody.mid", job.Result.MIDIFile)
	require.True(t, job.Result.HasAudio())
	require.Equal(t, pkgDir+"/melody.wav", *job.Result.AudioFile)
	require.Equal(t, "general", job.Result.Genre)

	require.Equal(t, &conductio.ArchiveLinks{
		MIDI:  "memory://generations/job-success/melody.mid",
		Audio: "memory://generations/job-success/melody.wav",
	}, job.Result.Archive)
	body, contentType, ok := h.blobs.Object("generations/job-success/melody.wav")
	require.True(t, ok)
	require.Equal(t, "content of melody.wav", string(body))
	require.Equal(t, "audio/wav", contentType)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "generation.finished", msgs[0].Topic)
	payload, ok := msgs[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, "job-success", payload["jobId"])
	require.Equal(t, conductio.JobStatusCompleted, payload["status"])
	require.Equal(t, "2023-11-14T22:13:20Z", payload["finishedAt"])
}

func TestWorkerSuccessWithoutAudio(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "melody.mid")
	h.submit(t, "job-midi", melodyRequest(false))
	h.worker(nil, nil).Run(context.Background())

	job, err := h.jobs.GetJob(context.Background(), "job-midi")
	require.NoError(t, err)
	require.Equal(t, conductio.JobStatusCompleted, job.Status)
	require.Nil(t, job.Result.AudioFile)
	require.False(t, job.Result.HasAudio())
	require.Nil(t, job.Result.Archive)
	require.Len(t, h.generator.calls, 1)
	require.False(t, h.generator.calls[0].RenderAudio)
}

func TestWorkerGeneratorFailure(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.generator.err = conductio.ErrToolTimeout
	h.submit(t, "job-timeout", melodyRequest(true))
	h.worker(h.blobs, h.publisher).Run(context.Background())

	job, err := h.jobs.GetJob(context.Background(), "job-timeout")
	require.NoError(t, err)
	require.Equal(t, conductio.JobStatusFailed, job.Status)
	require.Equal(t, conductio.ErrToolTimeout.Error(), job.Error)
	require.Nil(t, job.Result)
	require.NotNil(t, job.FinishedAt)

	msgs := h.publisher.Messages()
	require.Len(t, msgs, 1)
	payload, ok := msgs[0].Payload.(map[string]any)
	require.True(t, ok)
	require.Equal(t, conductio.JobStatusFailed, payload["status"])
	require.Equal(t, conductio.ErrToolTimeout.Error(), payload["error"])
}

func TestWorkerMissingMIDIFailsJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "melody.wav")
	h.submit(t, "job-no-midi", melodyRequest(true))
	h.worker(nil, nil).Run(context.Background())

	job, err := h.jobs.GetJob(context.Background(), "job-no-midi")
	require.NoError(t, err)
	require.Equal(t, conductio.JobStatusFailed, job.Status)
	require.Contains(t, job.Error, "locate output")
	require.Contains(t, job.Error, conductio.ErrFileNotFound.Error())
}

func TestWorkerArchiveAndPublishFailuresDoNotFailJob(t *testing.T) {
	t.Parallel()

	h := newHarness(t, "melody.mid")
	h.submit(t, "job-degraded", melodyRequest(true))
	h.worker(failingBlobStore{}, failingPublisher{}).Run(context.Background())

	job, err := h.jobs.GetJob(context.Background(), "job-degraded")
	require.NoError(t, err)
	require.Equal(t, conductio.JobStatusCompleted, job.Status)
	require.Nil(t, job.Result.Archive)
}

func TestWorkerRunStopsOnCancel(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		h.worker(nil, nil).Run(ctx)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop after cancel")
	}
}

func TestWorkerBuildBlobPath(t *testing.T) {
	t.Parallel()

	w := &Worker{cfg: Config{ArchivePrefix: "/generations/"}}
	require.Equal(t, "generations/job-1/melody.mid", w.buildBlobPath("job-1", "melody.mid"))

	w.cfg.ArchivePrefix = ""
	require.Equal(t, "job-1/melody.mid", w.buildBlobPath("job-1", "melody.mid"))
}
