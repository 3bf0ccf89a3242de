package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/rostilos/codecrow/internal/eventbus"
	"github.com/rostilos/codecrow/internal/store"
)

type fakeIndexer struct {
	ready       bool
	readyErr    error
	commit      string
	commitErr   error
	updateErr   error
	lastUpdate  struct {
		projectID, branch               string
		added, modified, deleted        []string
	}
	updateCalled bool
}

func (f *fakeIndexer) IsReady(ctx context.Context, projectID string) (bool, error) {
	return f.ready, f.readyErr
}

func (f *fakeIndexer) IndexedCommit(ctx context.Context, projectID, branch string) (string, error) {
	return f.commit, f.commitErr
}

func (f *fakeIndexer) TriggerIncrementalUpdate(ctx context.Context, projectID, branch string, added, modified, deleted []string) error {
	f.updateCalled = true
	f.lastUpdate.projectID = projectID
	f.lastUpdate.branch = branch
	f.lastUpdate.added = added
	f.lastUpdate.modified = modified
	f.lastUpdate.deleted = deleted
	return f.updateErr
}

func enabledProject() *store.Project {
	return &store.Project{ID: "proj-1", RagConfig: store.RagConfig{Enabled: true}}
}

func disabledProject() *store.Project {
	return &store.Project{ID: "proj-1", RagConfig: store.RagConfig{Enabled: false}}
}

func TestIsEnabled(t *testing.T) {
	b := New(&fakeIndexer{}, nil)
	if !b.IsEnabled(enabledProject()) {
		t.Error("expected enabled project to report enabled")
	}
	if b.IsEnabled(disabledProject()) {
		t.Error("expected disabled project to report disabled")
	}
}

func TestIsReady_DisabledProjectShortCircuits(t *testing.T) {
	indexer := &fakeIndexer{ready: true}
	b := New(indexer, nil)

	ready, err := b.IsReady(context.Background(), disabledProject())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ready {
		t.Error("expected disabled project to report not ready without calling indexer")
	}
}

func TestIsReady_DefersToIndexer(t *testing.T) {
	indexer := &fakeIndexer{ready: true}
	b := New(indexer, nil)

	ready, err := b.IsReady(context.Background(), enabledProject())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ready {
		t.Error("expected ready=true")
	}
}

func TestEnsureIndexUpToDate_DisabledIsNoop(t *testing.T) {
	indexer := &fakeIndexer{}
	b := New(indexer, nil)
	collector := eventbus.NewCollector()

	if err := b.EnsureIndexUpToDate(context.Background(), disabledProject(), "main", collector); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(collector.Events()) != 0 {
		t.Error("expected no events for a disabled project")
	}
}

func TestEnsureIndexUpToDate_NotReadyWarns(t *testing.T) {
	indexer := &fakeIndexer{ready: false}
	b := New(indexer, nil)
	collector := eventbus.NewCollector()

	if err := b.EnsureIndexUpToDate(context.Background(), enabledProject(), "main", collector); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	events := collector.Events()
	if len(events) != 1 || events[0].EventKind() != eventbus.KindWarning {
		t.Fatalf("expected a single warning event, got %+v", events)
	}
}

func TestEnsureIndexUpToDate_ReadyPropagatesError(t *testing.T) {
	indexer := &fakeIndexer{readyErr: errors.New("boom")}
	b := New(indexer, nil)

	if err := b.EnsureIndexUpToDate(context.Background(), enabledProject(), "main", eventbus.NewCollector()); err == nil {
		t.Fatal("expected error to propagate")
	}
}

const sampleDiff = `diff --git a/new.go b/new.go
--- /dev/null
+++ b/new.go
+package new
diff --git a/old.go b/old.go
--- a/old.go
+++ /dev/null
-package old
diff --git a/mod.go b/mod.go
--- a/mod.go
+++ b/mod.go
+change
`

func TestTriggerIncrementalUpdate_ClassifiesPaths(t *testing.T) {
	indexer := &fakeIndexer{ready: true}
	b := New(indexer, nil)

	err := b.TriggerIncrementalUpdate(context.Background(), enabledProject(), "main", "abc123", sampleDiff, eventbus.NewCollector())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !indexer.updateCalled {
		t.Fatal("expected indexer update to be called")
	}
	if len(indexer.lastUpdate.added) != 1 || indexer.lastUpdate.added[0] != "new.go" {
		t.Errorf("added = %v", indexer.lastUpdate.added)
	}
	if len(indexer.lastUpdate.deleted) != 1 || indexer.lastUpdate.deleted[0] != "old.go" {
		t.Errorf("deleted = %v", indexer.lastUpdate.deleted)
	}
	if len(indexer.lastUpdate.modified) != 1 || indexer.lastUpdate.modified[0] != "mod.go" {
		t.Errorf("modified = %v", indexer.lastUpdate.modified)
	}
}

func TestTriggerIncrementalUpdate_DisabledIsNoop(t *testing.T) {
	indexer := &fakeIndexer{ready: true}
	b := New(indexer, nil)

	if err := b.TriggerIncrementalUpdate(context.Background(), disabledProject(), "main", "abc", sampleDiff, eventbus.NewCollector()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if indexer.updateCalled {
		t.Error("expected no indexer call for a disabled project")
	}
}

func TestTriggerIncrementalUpdate_NoChangesSkipsCall(t *testing.T) {
	indexer := &fakeIndexer{ready: true}
	b := New(indexer, nil)

	if err := b.TriggerIncrementalUpdate(context.Background(), enabledProject(), "main", "abc", "", eventbus.NewCollector()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if indexer.updateCalled {
		t.Error("expected no indexer call when diff has no changes")
	}
}

func TestTriggerIncrementalUpdate_NotReadyWarnsAndSkips(t *testing.T) {
	indexer := &fakeIndexer{ready: false}
	b := New(indexer, nil)
	collector := eventbus.NewCollector()

	if err := b.TriggerIncrementalUpdate(context.Background(), enabledProject(), "main", "abc", sampleDiff, collector); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if indexer.updateCalled {
		t.Error("expected no indexer call when not ready")
	}
	if len(collector.Events()) != 1 {
		t.Errorf("expected 1 warning event, got %d", len(collector.Events()))
	}
}
