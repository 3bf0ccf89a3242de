// Package pranalysis implements PrAnalysisProcessor (spec §4.5): the
// end-to-end pipeline for a single pull-request analysis run. Grounded on
// fixer/engine.Engine's config-struct-with-defaults constructor and
// step-narrated, best-effort-sub-step orchestration style, and
// specvital-worker's AnalyzeUseCase.Execute (functional-options
// constructor, timeout-context wrapping, defer-recorded failure path).
package pranalysis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rostilos/codecrow/internal/aiclient"
	"github.com/rostilos/codecrow/internal/diffparser"
	ierrors "github.com/rostilos/codecrow/internal/errors"
	"github.com/rostilos/codecrow/internal/eventbus"
	"github.com/rostilos/codecrow/internal/jobrecorder"
	ilogging "github.com/rostilos/codecrow/internal/logging"
	"github.com/rostilos/codecrow/internal/locks"
	"github.com/rostilos/codecrow/internal/rag"
	"github.com/rostilos/codecrow/internal/requests"
	"github.com/rostilos/codecrow/internal/store"
	"github.com/rostilos/codecrow/internal/telemetry"
	"github.com/rostilos/codecrow/internal/vcsadapter"
)

// triggerSource is the JobRecorder attribution for every PR-analysis run:
// the webhook adapter in cmd/codecrowd is the only caller.
const triggerSource = "webhook"

// Config lists Processor's logger and timeout settings. New does not take a
// Config: it takes the logger as an argument (nil means a no-op logger) and
// the timeout through WithTimeout (default 10 minutes).
type Config struct {
	Logger *zap.Logger
	Timeout time.Duration
}

// Processor runs the PR-analysis pipeline.
type Processor struct {
	projects      *store.ProjectRepository
	pullRequests  *store.PullRequestRepository
	codeAnalyses  *store.CodeAnalysisRepository
	lockService   *locks.Service
	vcs           *vcsadapter.Adapter
	ai            *aiclient.Client
	ragBridge     *rag.Bridge
	telemetry     *telemetry.Telemetry
	jobRecorder   *jobrecorder.Recorder
	logger        *zap.Logger
	timeout       time.Duration
}

// WithTelemetry attaches tracing/metrics; omitted, Run records nothing.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(p *Processor) { p.telemetry = t }
}

// WithJobRecorder attaches the audit trail; omitted, Run records nothing.
func WithJobRecorder(r *jobrecorder.Recorder) Option {
	return func(p *Processor) { p.jobRecorder = r }
}

// Option is a functional option, following specvital-worker's
// AnalyzeUseCase constructor convention.
type Option func(*Processor)

func WithTimeout(d time.Duration) Option {
	return func(p *Processor) { p.timeout = d }
}

func New(
	projects *store.ProjectRepository,
	pullRequests *store.PullRequestRepository,
	codeAnalyses *store.CodeAnalysisRepository,
	lockService *locks.Service,
	vcs *vcsadapter.Adapter,
	ai *aiclient.Client,
	ragBridge *rag.Bridge,
	logger *zap.Logger,
	opts ...Option,
) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	p := &Processor{
		projects:     projects,
		pullRequests: pullRequests,
		codeAnalyses: codeAnalyses,
		lockService:  lockService,
		vcs:          vcs,
		ai:           ai,
		ragBridge:    ragBridge,
		logger:       logger,
		timeout:      10 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result is the pipeline's return value (spec §4.5: `{status, cached}` on
// cache hit, or the full outcome on a fresh run).
type Result struct {
	CodeAnalysisID string
	Status         string
	IssuesFound    int
	FilesAnalyzed  int
	Cached         bool
}

// Run executes the PR-analysis pipeline for req, emitting every event to
// sink.
func (p *Processor) Run(ctx context.Context, req requests.PrAnalysisRequest, sink eventbus.Sink) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	outcome := "FAILED"
	if p.telemetry != nil {
		defer func() {
			p.telemetry.RecordPipeline(string(store.AnalysisTypePR), outcome, time.Since(start))
		}()
	}

	correlationID := uuid.NewString()
	fields := ilogging.NewFields().Component("pranalysis").Correlation(correlationID).
		Project(req.ProjectID, req.SourceBranch, string(store.AnalysisTypePR))
	p.logger.Info("analysis started", fields...)
	if p.jobRecorder != nil {
		p.jobRecorder.Info(req.ProjectID, store.AnalysisTypePR, triggerSource, "started", fmt.Sprintf("pr #%d analysis started", req.PrNumber))
	}

	project, err := p.projects.Get(ctx, req.ProjectID)
	if err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("load project: %v", err), err)
	}
	conn, err := project.EffectiveVcsConnection()
	if err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("vcs connection: %v", err), err)
	}

	// Step 2: acquire lock unless preacquired.
	lockHeld := req.PreAcquiredLockKey == nil
	if lockHeld {
		waitStart := time.Now()
		_, err := p.lockService.AcquireWithWait(ctx, req.ProjectID, req.SourceBranch, store.AnalysisTypePR, &req.CommitHash, &req.PrNumber)
		if p.telemetry != nil {
			p.telemetry.RecordLockWait(time.Since(waitStart))
		}
		if err != nil {
			sink.Accept(eventbus.Completed{Outcome: eventbus.OutcomeFailed, Error: "Lock acquisition timeout"})
			return nil, &ierrors.AnalysisLockedError{ProjectID: req.ProjectID, Branch: req.SourceBranch, AnalysisType: string(store.AnalysisTypePR)}
		}
		sink.Accept(eventbus.LockAcquired{LockKey: locks.Key(req.ProjectID, req.SourceBranch, store.AnalysisTypePR)})
		if p.jobRecorder != nil {
			p.jobRecorder.Info(req.ProjectID, store.AnalysisTypePR, triggerSource, "lock_acquired", "")
		}
	}
	defer func() {
		if lockHeld {
			if err := p.lockService.Release(context.Background(), req.ProjectID, req.SourceBranch, store.AnalysisTypePR); err != nil {
				p.logger.Warn("lock release failed", fields.Error(err)...)
			}
		}
	}()

	// Step 3: upsert PullRequest.
	if _, err := p.pullRequests.Upsert(ctx, req.ProjectID, req.PrNumber, req.SourceBranch, req.TargetBranch, req.CommitHash); err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("upsert pull request: %v", err), err)
	}

	// Step 4: cache check.
	if cached, err := p.codeAnalyses.FindCached(ctx, req.ProjectID, req.CommitHash, &req.PrNumber); err == nil {
		sink.Accept(eventbus.CacheHit{CodeAnalysisID: cached.ID})
		p.postReportBestEffort(ctx, conn, cached, req, sink)
		sink.Accept(eventbus.Completed{Outcome: eventbus.OutcomeSuccess, CodeAnalysisID: cached.ID})
		outcome = "SUCCESS"
		if p.jobRecorder != nil {
			p.jobRecorder.Info(req.ProjectID, store.AnalysisTypePR, triggerSource, "completed", "served from cache")
		}
		return &Result{CodeAnalysisID: cached.ID, Status: "cached", Cached: true}, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("cache lookup: %v", err), err)
	}

	// Step 5: prior analyses (newest first).
	priorAnalyses, err := p.codeAnalyses.ListForBranch(ctx, req.ProjectID, req.SourceBranch, 20)
	if err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("list prior analyses: %v", err), err)
	}
	var priorIssues []*store.CodeAnalysisIssue
	if len(priorAnalyses) > 0 {
		priorIssues = priorAnalyses[0].Issues
	}

	// Step 6: best-effort rag index freshness check.
	if p.ragBridge != nil {
		if err := p.ragBridge.EnsureIndexUpToDate(ctx, project, req.TargetBranch, sink); err != nil {
			sink.Accept(eventbus.Warning{Message: "rag index check failed: " + err.Error()})
		}
	}

	// Step 7: build + invoke AI.
	diff, err := p.vcs.GetPullRequestDiff(ctx, conn, req.PrNumber)
	if err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("fetch pr diff: %v", err), err)
	}
	changedFiles := changedFilesOf(diff)

	aiReq := aiclient.Builder{
		ProjectID:          req.ProjectID,
		AnalysisType:       store.AnalysisTypePR,
		TargetBranch:       req.TargetBranch,
		SourceBranch:       req.SourceBranch,
		CommitHash:         req.CommitHash,
		PrNumber:           &req.PrNumber,
		ChangedFiles:       changedFiles,
		RawDiff:            diff,
		PriorAnalysisCount: len(priorAnalyses),
		PriorIssues:        priorIssues,
	}.Build()

	result, err := p.ai.Analyze(ctx, aiReq, sink)
	if err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("ai analysis: %v", err), err)
	}

	issues := NormalizeIssues(result.Issues)

	// Step 8: persist.
	ca, err := p.codeAnalyses.Create(ctx, nil, &store.CodeAnalysis{
		ProjectID:    req.ProjectID,
		AnalysisType: store.AnalysisTypePR,
		PrNumber:     &req.PrNumber,
		BranchName:   req.SourceBranch,
		CommitHash:   req.CommitHash,
		PrVersion:    1,
		Status:       store.StatusRunning,
	})
	if err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("create analysis: %v", err), err)
	}
	if _, err := p.codeAnalyses.InsertIssues(ctx, nil, ca.ID, issues); err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("persist issues: %v", err), err)
	}
	if err := p.codeAnalyses.SetStatus(ctx, nil, ca.ID, store.StatusAccepted); err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("accept analysis: %v", err), err)
	}

	// Step 9: best-effort post report.
	ca.Issues = issues
	p.postReportBestEffort(ctx, conn, ca, req, sink)

	if p.telemetry != nil {
		bySeverity := make(map[store.Severity]int)
		for _, iss := range issues {
			bySeverity[iss.Severity]++
		}
		for severity, count := range bySeverity {
			p.telemetry.RecordIssuesFound(string(severity), count)
		}
	}

	// Step 10: terminal event.
	sink.Accept(eventbus.Completed{Outcome: eventbus.OutcomeSuccess, CodeAnalysisID: ca.ID})
	outcome = "SUCCESS"
	if p.jobRecorder != nil {
		p.jobRecorder.Info(req.ProjectID, store.AnalysisTypePR, triggerSource, "completed", fmt.Sprintf("found %d issue(s)", len(issues)))
	}
	return &Result{
		CodeAnalysisID: ca.ID,
		Status:         "completed",
		IssuesFound:    len(issues),
		FilesAnalyzed:  len(changedFiles),
	}, nil
}

func (p *Processor) fail(sink eventbus.Sink, message string, cause error) error {
	sink.Accept(eventbus.Completed{Outcome: eventbus.OutcomeFailed, Error: message})
	return ierrors.Wrap("pr analysis", "pranalysis", "", cause)
}

// failFor is fail, plus a JobRecorder error entry attributed to projectID.
func (p *Processor) failFor(sink eventbus.Sink, projectID string, message string, cause error) error {
	if p.jobRecorder != nil {
		p.jobRecorder.Error(projectID, store.AnalysisTypePR, triggerSource, "failed", message)
	}
	return p.fail(sink, message, cause)
}

func (p *Processor) postReportBestEffort(ctx context.Context, conn store.VcsConnection, ca *store.CodeAnalysis, req requests.PrAnalysisRequest, sink eventbus.Sink) {
	body := RenderReport(ca)
	err := p.vcs.PostAnalysisReport(ctx, conn, vcsadapter.Report{
		PrNumber:             &req.PrNumber,
		CommitHash:           req.CommitHash,
		Body:                 body,
		PlaceholderCommentID: req.PlaceholderCommentID,
	})
	if err != nil {
		sink.Accept(eventbus.Warning{Message: "post analysis report failed: " + err.Error()})
	}
}

func changedFilesOf(unifiedDiff string) []string {
	return diffparser.ParseChangedPaths(unifiedDiff)
}
