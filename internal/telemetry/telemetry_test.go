package telemetry

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordPipeline_IncrementsCounterAndHistogram(t *testing.T) {
	registry := prometheus.NewRegistry()
	tel := New(registry)

	tel.RecordPipeline("PR_ANALYSIS", "SUCCESS", 2*time.Second)

	if got := testutil.ToFloat64(tel.PipelineTotal.WithLabelValues("PR_ANALYSIS", "SUCCESS")); got != 1 {
		t.Errorf("pipeline total = %v, want 1", got)
	}
	if count := testutil.CollectAndCount(tel.PipelineDuration); count != 1 {
		t.Errorf("pipeline duration series count = %d, want 1", count)
	}
}

func TestRecordIssuesFound_TalliesBySeverity(t *testing.T) {
	registry := prometheus.NewRegistry()
	tel := New(registry)

	tel.RecordIssuesFound("HIGH", 3)
	tel.RecordIssuesFound("HIGH", 2)
	tel.RecordIssuesFound("LOW", 1)

	if got := testutil.ToFloat64(tel.IssuesFound.WithLabelValues("HIGH")); got != 5 {
		t.Errorf("HIGH total = %v, want 5", got)
	}
	if got := testutil.ToFloat64(tel.IssuesFound.WithLabelValues("LOW")); got != 1 {
		t.Errorf("LOW total = %v, want 1", got)
	}
}

func TestRecordLockWait_ObservesDuration(t *testing.T) {
	registry := prometheus.NewRegistry()
	tel := New(registry)

	tel.RecordLockWait(500 * time.Millisecond)

	if count := testutil.CollectAndCount(tel.LockWaitDuration); count != 1 {
		t.Errorf("lock wait histogram series count = %d, want 1", count)
	}
}

func TestNew_RegistersAllInstruments(t *testing.T) {
	registry := prometheus.NewRegistry()
	New(registry)

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	names := make(map[string]bool, len(families))
	for _, f := range families {
		names[f.GetName()] = true
	}
	for _, want := range []string{
		"codecrow_pipeline_duration_seconds",
		"codecrow_pipeline_runs_total",
		"codecrow_issues_found_total",
		"codecrow_lock_wait_seconds",
	} {
		if !names[want] {
			t.Errorf("expected metric family %q to be registered", want)
		}
	}
}
