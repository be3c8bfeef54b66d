package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/conductio-api/internal/conductio"
)

type slowGenerator struct {
	running atomic.Int32
	peak    atomic.Int32
	delay   time.Duration
}

func (g *slowGenerator) Generate(_ context.Context, req conductio.GenerationRequest) (string, error) {
	n := g.running.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(g.delay)
	g.running.Add(-1)
	return "/out/" + string(req.Layer), nil
}

func TestBoundedLimitsConcurrency(t *testing.T) {
	t.Parallel()

	gen := &slowGenerator{delay: 20 * time.Millisecond}
	bounded := NewBounded(gen, 2)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := bounded.Generate(context.Background(), conductio.GenerationRequest{Layer: conductio.LayerMelody})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	require.LessOrEqual(t, gen.peak.Load(), int32(2))
}

func TestBoundedAcquireCanceled(t *testing.T) {
	t.Parallel()

	bounded := NewBounded(&slowGenerator{}, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := bounded.Generate(ctx, conductio.GenerationRequest{Layer: conductio.LayerBass})
	require.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestBoundedReserveHoldsSlotUntilRelease(t *testing.T) {
	t.Parallel()

	bounded := NewBounded(&slowGenerator{}, 1)
	held, err := bounded.Reserve(context.Background())
	require.NoError(t, err)

	waitCtx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = bounded.Reserve(waitCtx)
	require.True(t, errors.Is(err, context.DeadlineExceeded), "got %v", err)

	dir, err := held.Generate(context.Background(), conductio.GenerationRequest{Layer: conductio.LayerDrums})
	require.NoError(t, err)
	require.Equal(t, "/out/drums", dir)

	held.Release()
	held.Release()

	next, err := bounded.Reserve(context.Background())
	require.NoError(t, err)
	next.Release()
	_, err = bounded.Generate(context.Background(), conductio.GenerationRequest{Layer: conductio.LayerBass})
	require.NoError(t, err)
}

func TestOutcome(t *testing.T) {
	t.Parallel()

	require.Equal(t, "success", Outcome(nil))
	require.Equal(t, "timeout", Outcome(fmt.Errorf("x: %w", conductio.ErrToolTimeout)))
	require.Equal(t, "overflow", Outcome(conductio.ErrBufferOverflow))
	require.Equal(t, "parse_error", Outcome(conductio.ErrOutputParse))
	require.Equal(t, "error", Outcome(errors.New("boom")))
}
