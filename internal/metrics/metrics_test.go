package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveGeneration(t *testing.T) {
	before := testutil.ToFloat64(generationsTotal.WithLabelValues("melody", "success"))
	ObserveGeneration("melody", "success", 2*time.Second)
	after := testutil.ToFloat64(generationsTotal.WithLabelValues("melody", "success"))
	if after-before != 1 {
		t.Errorf("expected generationsTotal to grow by 1, grew by %f", after-before)
	}
	if val := testutil.CollectAndCount(generationDurationSeconds); val <= 0 {
		t.Errorf("expected generationDurationSeconds to be observed, got %d", val)
	}
}

func TestActiveGauges(t *testing.T) {
	base := testutil.ToFloat64(activeGenerations)
	IncActiveGenerations()
	IncActiveGenerations()
	DecActiveGenerations()
	if val := testutil.ToFloat64(activeGenerations); val != base+1 {
		t.Errorf("expected activeGenerations to be %f, got %f", base+1, val)
	}
	DecActiveGenerations()

	workersBase := testutil.ToFloat64(activeWorkers)
	IncActiveWorkers()
	if val := testutil.ToFloat64(activeWorkers); val != workersBase+1 {
		t.Errorf("expected activeWorkers to be %f, got %f", workersBase+1, val)
	}
	DecActiveWorkers()
}

func TestObserveJob(t *testing.T) {
	before := testutil.ToFloat64(jobsTotal.WithLabelValues("failed"))
	ObserveJob("failed")
	if val := testutil.ToFloat64(jobsTotal.WithLabelValues("failed")); val != before+1 {
		t.Errorf("expected jobsTotal{failed} to be %f, got %f", before+1, val)
	}
}

func TestObserveRateLimited(t *testing.T) {
	before := testutil.ToFloat64(rateLimitedTotal.WithLabelValues("/api/generate/*"))
	ObserveRateLimited("/api/generate/*")
	if val := testutil.ToFloat64(rateLimitedTotal.WithLabelValues("/api/generate/*")); val != before+1 {
		t.Errorf("expected rateLimitedTotal to be %f, got %f", before+1, val)
	}
}
