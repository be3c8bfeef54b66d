package conductio

import (
	"context"
	"io"
	"time"
)

// Generator runs the external engine for a request and returns the package
// directory it produced.
type Generator interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// GenerationSlot is a held engine slot. Generate may be called on it with a
// context unrelated to the one used to reserve it.
type GenerationSlot interface {
	Generator
	Release()
}

// SlotGenerator is a Generator that admits runs through a bounded pool of
// engine slots.
type SlotGenerator interface {
	Generator
	Reserve(ctx context.Context) (GenerationSlot, error)
}

// Prober reports whether the external engine can be invoked.
type Prober interface {
	Available(ctx context.Context) bool
}

// Catalog lists the engine's instruments.
type Catalog interface {
	Instruments(ctx context.Context) ([]Instrument, error)
}

// JobStore tracks async jobs.
type JobStore interface {
	CreateJob(ctx context.Context, job Job) error
	FinishJob(ctx context.Context, jobID string, status JobStatus, result *Result, errText string) error
	GetJob(ctx context.Context, jobID string) (Job, error)
}

// BlobStore writes artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Publisher pushes job events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Queue provides enqueue/dequeue semantics for accepted jobs.
type Queue interface {
	Enqueue(ctx context.Context, item QueueItem) error
	Dequeue(ctx context.Context) (QueueItem, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces job IDs.
type IDGenerator interface {
	NewID() (string, error)
}
