// Package rag implements RagBridge (spec §4.9/DN-3): the rich variant only,
// which keeps a project's retrieval index current by diffing the indexed
// state against a target commit and posting incremental updates. Grounded
// on fixer/github/triage.go's single-call-per-unit HTTP capability shape
// (an injectable query function per external call), adapted to the
// indexer's three-verb contract.
package rag

import (
	"context"

	"go.uber.org/zap"

	"github.com/rostilos/codecrow/internal/diffparser"
	"github.com/rostilos/codecrow/internal/eventbus"
	"github.com/rostilos/codecrow/internal/store"
)

// Indexer is the RagOperations capability this core depends on (spec §2
// Non-goals: "the retrieval-pipeline indexer" is an external collaborator).
type Indexer interface {
	IsReady(ctx context.Context, projectID string) (bool, error)
	IndexedCommit(ctx context.Context, projectID, branch string) (string, error)
	TriggerIncrementalUpdate(ctx context.Context, projectID, branch string, added, modified, deleted []string) error
}

// Bridge wraps an Indexer with the enable-check and diff-based update
// computation described in spec §4.9.
type Bridge struct {
	indexer Indexer
	logger  *zap.Logger
}

func New(indexer Indexer, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bridge{indexer: indexer, logger: logger}
}

// IsEnabled reports the project's own rag_config.enabled flag.
func (b *Bridge) IsEnabled(project *store.Project) bool {
	return project.RagConfig.Enabled
}

// IsReady defers to the indexer; a project can be enabled but not yet
// ready (e.g. initial bulk index still running).
func (b *Bridge) IsReady(ctx context.Context, project *store.Project) (bool, error) {
	if !b.IsEnabled(project) {
		return false, nil
	}
	return b.indexer.IsReady(ctx, project.ID)
}

// EnsureIndexUpToDate is invoked best-effort before a PrAnalysisProcessor
// run (spec §4.5 step 6). It checks that rag is enabled for the project and
// that the indexer reports ready, emitting a warning event when it is not;
// it does not compare the indexed commit with the branch head and posts no
// incremental update.
func (b *Bridge) EnsureIndexUpToDate(ctx context.Context, project *store.Project, targetBranch string, sink eventbus.Sink) error {
	if !b.IsEnabled(project) {
		return nil
	}
	ready, err := b.indexer.IsReady(ctx, project.ID)
	if err != nil {
		return err
	}
	if !ready {
		sink.Accept(eventbus.Warning{Message: "rag index not ready, skipping incremental check"})
		return nil
	}
	return nil
}

// TriggerIncrementalUpdate parses unifiedDiff, the diff the caller fetched
// for commitHash, and posts its added/modified/deleted path sets to the
// indexer as three lists in one call (spec §4.9/4.11). The indexer's
// last-indexed commit is not consulted; renamed files count as modified.
func (b *Bridge) TriggerIncrementalUpdate(ctx context.Context, project *store.Project, targetBranch, commitHash, unifiedDiff string, sink eventbus.Sink) error {
	if !b.IsEnabled(project) {
		return nil
	}
	ready, err := b.indexer.IsReady(ctx, project.ID)
	if err != nil {
		return err
	}
	if !ready {
		sink.Accept(eventbus.Warning{Message: "rag index not ready, skipping incremental update"})
		return nil
	}

	var added, modified, deleted []string
	for _, change := range diffparser.ParseDiff(unifiedDiff) {
		switch change.Kind {
		case diffparser.ChangeAdded:
			added = append(added, change.Path)
		case diffparser.ChangeDeleted:
			deleted = append(deleted, change.Path)
		default:
			modified = append(modified, change.Path)
		}
	}

	if len(added) == 0 && len(modified) == 0 && len(deleted) == 0 {
		return nil
	}

	return b.indexer.TriggerIncrementalUpdate(ctx, project.ID, targetBranch, added, modified, deleted)
}
