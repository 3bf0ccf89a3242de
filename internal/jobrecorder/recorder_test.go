package jobrecorder

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rostilos/codecrow/internal/store"
)

type fakeSink struct {
	mu    sync.Mutex
	rows  []Entry
	block chan struct{} // if non-nil, InsertJobRun waits on it before returning
}

func (f *fakeSink) InsertJobRun(ctx context.Context, projectID, analysisType, triggerSource, stage, level, message string) error {
	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rows = append(f.rows, Entry{
		ProjectID:     projectID,
		AnalysisType:  store.AnalysisType(analysisType),
		TriggerSource: triggerSource,
		Stage:         stage,
		Level:         Level(level),
		Message:       message,
	})
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.rows)
}

func waitForCount(t *testing.T, f *fakeSink, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if f.count() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d recorded entries, got %d", want, f.count())
}

func TestRecorder_Info_PersistsEntry(t *testing.T) {
	sink := &fakeSink{}
	r := New(sink, nil, 8)
	defer r.Close()

	r.Info("proj-1", store.AnalysisTypePR, "webhook", "started", "hello")
	waitForCount(t, sink, 1)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.rows[0].Level != LevelInfo || sink.rows[0].Stage != "started" {
		t.Errorf("unexpected entry: %+v", sink.rows[0])
	}
}

func TestRecorder_WarnAndError(t *testing.T) {
	sink := &fakeSink{}
	r := New(sink, nil, 8)
	defer r.Close()

	r.Warn("proj-1", store.AnalysisTypeBranch, "webhook", "reanalysis", "slow")
	r.Error("proj-1", store.AnalysisTypeBranch, "webhook", "failed", "boom")
	waitForCount(t, sink, 2)

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if sink.rows[0].Level != LevelWarn || sink.rows[1].Level != LevelError {
		t.Errorf("unexpected levels: %+v", sink.rows)
	}
}

func TestRecorder_DropsOnFullBuffer(t *testing.T) {
	sink := &fakeSink{block: make(chan struct{})}
	r := New(sink, nil, 1)

	// First entry occupies the sink's in-flight slot (blocked in InsertJobRun);
	// the buffer can hold one more before a third is dropped.
	r.Record(Entry{ProjectID: "p", Stage: "a"})
	time.Sleep(20 * time.Millisecond) // let drain() pick up entry "a" and start blocking
	r.Record(Entry{ProjectID: "p", Stage: "b"})
	r.Record(Entry{ProjectID: "p", Stage: "c"}) // buffer full, dropped

	close(sink.block)
	waitForCount(t, sink, 2)
	r.Close()

	sink.mu.Lock()
	defer sink.mu.Unlock()
	if len(sink.rows) != 2 {
		t.Fatalf("expected exactly 2 persisted entries, got %d: %+v", len(sink.rows), sink.rows)
	}
}

func TestRecorder_Close_DrainsBufferedEntries(t *testing.T) {
	sink := &fakeSink{}
	r := New(sink, nil, 8)

	r.Info("proj-1", store.AnalysisTypePR, "webhook", "started", "")
	r.Info("proj-1", store.AnalysisTypePR, "webhook", "completed", "")
	r.Close()

	if sink.count() != 2 {
		t.Fatalf("expected 2 entries drained before Close returns, got %d", sink.count())
	}
}
