package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/JakeFAU/conductio-api/internal/conductio"
	"github.com/JakeFAU/conductio-api/internal/metrics"
)

// Bounded caps the number of concurrent engine invocations across the sync
// route and the async workers.
type Bounded struct {
	next conductio.Generator
	sem  *semaphore.Weighted
}

// NewBounded wraps next with a limit of concurrent generations (minimum 1).
func NewBounded(next conductio.Generator, limit int) *Bounded {
	if limit <= 0 {
		limit = 1
	}
	return &Bounded{next: next, sem: semaphore.NewWeighted(int64(limit))}
}

// Reserve waits for a free slot until ctx ends. The caller must Release the
// returned slot.
func (b *Bounded) Reserve(ctx context.Context) (conductio.GenerationSlot, error) {
	if err := b.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("acquire generation slot: %w", err)
	}
	return &slot{bounded: b}, nil
}

// Generate waits for a free slot, then delegates to the wrapped generator.
func (b *Bounded) Generate(ctx context.Context, req conductio.GenerationRequest) (string, error) {
	s, err := b.Reserve(ctx)
	if err != nil {
		return "", err
	}
	defer s.Release()
	return s.Generate(ctx, req)
}

type slot struct {
	bounded *Bounded
	once    sync.Once
}

func (s *slot) Generate(ctx context.Context, req conductio.GenerationRequest) (string, error) {
	metrics.IncActiveGenerations()
	defer metrics.DecActiveGenerations()

	start := time.Now()
	dir, err := s.bounded.next.Generate(ctx, req)
	metrics.ObserveGeneration(string(req.Layer), Outcome(err), time.Since(start))
	return dir, err
}

// Release returns the slot to the pool. Extra calls are no-ops.
func (s *slot) Release() {
	s.once.Do(func() { s.bounded.sem.Release(1) })
}

// Outcome classifies a generation error for metrics labels.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, conductio.ErrToolTimeout):
		return "timeout"
	case errors.Is(err, conductio.ErrBufferOverflow):
		return "overflow"
	case errors.Is(err, conductio.ErrOutputParse):
		return "parse_error"
	default:
		return "error"
	}
}
