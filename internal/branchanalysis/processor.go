// Package branchanalysis implements BranchAnalysisProcessor (spec §4.6):
// the branch-reconciliation pipeline that keeps a target branch's mapped
// issues and aggregate counters in sync with its current head, and runs a
// targeted re-analysis over the issues whose files just changed to detect
// fixes. Grounded on the same fixer/engine.Engine step-narrated,
// best-effort-sub-step orchestration style as pranalysis.Processor, with
// the counter-recompute and issue-resolution steps composed through
// store.WithTx per Design Note DN-2.
package branchanalysis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
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
	"github.com/rostilos/codecrow/internal/workerpool"
)

// triggerSource is the JobRecorder attribution for every branch-analysis
// run: the webhook adapter in cmd/codecrowd is the only caller.
const triggerSource = "webhook"

// existenceCheckConcurrency bounds how many VcsAdapter.CheckFileExistsInBranch
// calls step 4a runs at once. The pool is built once in New, so the bound is
// shared by all concurrent runs of one Processor.
const existenceCheckConcurrency = 8

// Config lists Processor's logger and timeout settings. New does not take a
// Config: it takes the logger as an argument (nil means a no-op logger) and
// the timeout through WithTimeout (default 10 minutes).
type Config struct {
	Logger  *zap.Logger
	Timeout time.Duration
}

// Processor runs the branch-reconciliation pipeline.
type Processor struct {
	db           *sqlx.DB
	projects     *store.ProjectRepository
	branches     *store.BranchRepository
	branchFiles  *store.BranchFileRepository
	codeAnalyses *store.CodeAnalysisRepository
	lockService  *locks.Service
	vcs          *vcsadapter.Adapter
	ai           *aiclient.Client
	ragBridge    *rag.Bridge
	vcsPool      *workerpool.Pool
	telemetry    *telemetry.Telemetry
	jobRecorder  *jobrecorder.Recorder
	logger       *zap.Logger
	timeout      time.Duration
}

// WithTelemetry attaches tracing/metrics; omitted, Run records nothing.
func WithTelemetry(t *telemetry.Telemetry) Option {
	return func(p *Processor) { p.telemetry = t }
}

// WithJobRecorder attaches the audit trail; omitted, Run records nothing.
func WithJobRecorder(r *jobrecorder.Recorder) Option {
	return func(p *Processor) { p.jobRecorder = r }
}

// Option is a functional option, following pranalysis.Processor's
// constructor convention.
type Option func(*Processor)

func WithTimeout(d time.Duration) Option {
	return func(p *Processor) { p.timeout = d }
}

func New(
	db *sqlx.DB,
	projects *store.ProjectRepository,
	branches *store.BranchRepository,
	branchFiles *store.BranchFileRepository,
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
		db:           db,
		projects:     projects,
		branches:     branches,
		branchFiles:  branchFiles,
		codeAnalyses: codeAnalyses,
		lockService:  lockService,
		vcs:          vcs,
		ai:           ai,
		ragBridge:    ragBridge,
		vcsPool:      workerpool.New(existenceCheckConcurrency),
		logger:       logger,
		timeout:      10 * time.Minute,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Result is the pipeline's return value.
type Result struct {
	BranchID       string
	FilesChanged   int
	IssuesMapped   int
	IssuesResolved int
}

// Run executes the branch-reconciliation pipeline for req, emitting every
// event to sink.
func (p *Processor) Run(ctx context.Context, req requests.BranchAnalysisRequest, sink eventbus.Sink) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	outcome := "FAILED"
	if p.telemetry != nil {
		defer func() {
			p.telemetry.RecordPipeline(string(store.AnalysisTypeBranch), outcome, time.Since(start))
		}()
	}

	correlationID := uuid.NewString()
	fields := ilogging.NewFields().Component("branchanalysis").Correlation(correlationID).
		Project(req.ProjectID, req.TargetBranch, string(store.AnalysisTypeBranch))
	p.logger.Info("branch analysis started", fields...)
	if p.jobRecorder != nil {
		p.jobRecorder.Info(req.ProjectID, store.AnalysisTypeBranch, triggerSource, "started", "branch analysis started for "+req.TargetBranch)
	}

	project, err := p.projects.Get(ctx, req.ProjectID)
	if err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("load project: %v", err), err)
	}
	conn, err := project.EffectiveVcsConnection()
	if err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("vcs connection: %v", err), err)
	}

	// Step 1: acquire lock.
	waitStart := time.Now()
	_, lockErr := p.lockService.AcquireWithWait(ctx, req.ProjectID, req.TargetBranch, store.AnalysisTypeBranch, &req.CommitHash, req.SourcePrNumber)
	if p.telemetry != nil {
		p.telemetry.RecordLockWait(time.Since(waitStart))
	}
	if lockErr != nil {
		sink.Accept(eventbus.Completed{Outcome: eventbus.OutcomeFailed, Error: "Lock acquisition timeout"})
		return nil, &ierrors.AnalysisLockedError{ProjectID: req.ProjectID, Branch: req.TargetBranch, AnalysisType: string(store.AnalysisTypeBranch)}
	}
	sink.Accept(eventbus.LockAcquired{LockKey: locks.Key(req.ProjectID, req.TargetBranch, store.AnalysisTypeBranch)})
	if p.jobRecorder != nil {
		p.jobRecorder.Info(req.ProjectID, store.AnalysisTypeBranch, triggerSource, "lock_acquired", "")
	}
	defer func() {
		if err := p.lockService.Release(context.Background(), req.ProjectID, req.TargetBranch, store.AnalysisTypeBranch); err != nil {
			p.logger.Warn("lock release failed", fields.Error(err)...)
		}
	}()

	// Step 2: fetch diff (PR diff captures all PR files even on a
	// fast-forward merge commit; commit diff otherwise).
	var diff string
	if req.SourcePrNumber != nil {
		diff, err = p.vcs.GetPullRequestDiff(ctx, conn, *req.SourcePrNumber)
	} else {
		diff, err = p.vcs.GetCommitDiff(ctx, conn, req.CommitHash)
	}
	if err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("fetch diff: %v", err), err)
	}

	// Step 3.
	changedFiles := diffparser.ParseChangedPaths(diff)

	if len(changedFiles) == 0 {
		// Edge case: steps 4-10 are no-ops; the branch row is still upserted.
		var branch *store.Branch
		err = store.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
			var txErr error
			branch, txErr = p.branches.UpsertHead(ctx, tx, req.ProjectID, req.TargetBranch, req.CommitHash)
			return txErr
		})
		if err != nil {
			return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("upsert branch: %v", err), err)
		}
		p.finishUpTriggerAndRelease(ctx, project, req, diff, sink)
		sink.Accept(eventbus.Completed{Outcome: eventbus.OutcomeSuccess})
		outcome = "SUCCESS"
		return &Result{BranchID: branch.ID}, nil
	}

	// Step 4a: existence check, fail-open on transport error. Files
	// confirmed gone are dropped from branch_file and excluded from the
	// issue-mapping filter below (Design Note: deleted files carry no
	// further mapping weight; their existing BranchIssue rows persist
	// until a targeted re-analysis resolves them). Fanned out over
	// vcsPool so a large changeset doesn't serialize one round-trip per
	// file.
	var wg sync.WaitGroup
	var mu sync.Mutex
	var effectiveFiles, deletedFiles []string
	for _, f := range changedFiles {
		f := f
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = p.vcsPool.Submit(ctx, func(ctx context.Context) {
				exists, existsErr := p.vcs.CheckFileExistsInBranch(ctx, conn, req.TargetBranch, f)
				if existsErr != nil {
					exists = true
				}
				mu.Lock()
				if exists {
					effectiveFiles = append(effectiveFiles, f)
				} else {
					deletedFiles = append(deletedFiles, f)
				}
				mu.Unlock()
			})
		}()
	}
	wg.Wait()

	// Step 4b/6 shared lookup: every unresolved issue owned by an analysis
	// that targets this branch, for the changed files.
	qualifying, err := p.codeAnalyses.ListQualifyingIssues(ctx, req.ProjectID, req.TargetBranch, effectiveFiles)
	if err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("list qualifying issues: %v", err), err)
	}
	countsByFile := make(map[string]int, len(effectiveFiles))
	qualifyingByID := make(map[string]*store.QualifyingIssue, len(qualifying))
	for _, q := range qualifying {
		countsByFile[q.FilePath]++
		qualifyingByID[q.ID] = q
	}

	var branch *store.Branch
	err = store.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		for _, f := range deletedFiles {
			if txErr := p.branchFiles.Delete(ctx, tx, req.ProjectID, req.TargetBranch, f); txErr != nil {
				return txErr
			}
		}
		// Step 4c.
		for _, f := range effectiveFiles {
			if _, txErr := p.branchFiles.Upsert(ctx, tx, req.ProjectID, req.TargetBranch, f, countsByFile[f]); txErr != nil {
				return txErr
			}
		}

		// Step 5.
		var txErr error
		branch, txErr = p.branches.UpsertHead(ctx, tx, req.ProjectID, req.TargetBranch, req.CommitHash)
		if txErr != nil {
			return txErr
		}

		// Step 6: map every qualifying issue onto a BranchIssue, preserving
		// firstDetectedPrNumber for issues already mapped.
		existing, txErr := p.branches.ListIssues(ctx, tx, branch.ID)
		if txErr != nil {
			return txErr
		}
		firstDetected := make(map[string]*int, len(existing))
		for _, bi := range existing {
			firstDetected[bi.CodeAnalysisIssueID] = bi.FirstDetectedPrNumber
		}
		for _, q := range qualifying {
			fd := firstDetected[q.ID]
			if fd == nil {
				fd = q.OwningPrNumber
			}
			_, txErr = p.branches.UpsertIssue(ctx, tx, &store.BranchIssue{
				BranchID:              branch.ID,
				CodeAnalysisIssueID:   q.ID,
				Severity:              q.Severity,
				FirstDetectedPrNumber: fd,
				Resolved:              false,
			})
			if txErr != nil {
				return txErr
			}
		}

		// Step 7.
		branch, txErr = p.branches.RecomputeAndSave(ctx, tx, branch.ID)
		return txErr
	})
	if err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("reconcile branch issues: %v", err), err)
	}

	// Step 8: candidates are the unresolved BranchIssue rows just mapped
	// onto the changed files.
	current, err := p.branches.ListIssues(ctx, p.db, branch.ID)
	if err != nil {
		return nil, p.failFor(sink, req.ProjectID, fmt.Sprintf("list branch issues: %v", err), err)
	}
	var candidates []*store.BranchIssue
	for _, bi := range current {
		if !bi.Resolved {
			if _, ok := qualifyingByID[bi.CodeAnalysisIssueID]; ok {
				candidates = append(candidates, bi)
			}
		}
	}

	resolvedCount := 0
	if len(candidates) > 0 {
		if p.jobRecorder != nil {
			p.jobRecorder.Info(req.ProjectID, store.AnalysisTypeBranch, triggerSource, "targeted_reanalysis", fmt.Sprintf("re-checking %d candidate issue(s)", len(candidates)))
		}
		resolvedCount, err = p.runTargetedReanalysis(ctx, project, conn, req, candidates, qualifyingByID, sink)
		if err != nil {
			sink.Accept(eventbus.Warning{Message: "targeted re-analysis failed: " + err.Error()})
			if p.jobRecorder != nil {
				p.jobRecorder.Warn(req.ProjectID, store.AnalysisTypeBranch, triggerSource, "targeted_reanalysis", err.Error())
			}
		}
	}

	// Step 10 (default branch half): set once, first time.
	if project.DefaultBranch == nil {
		if err := p.projects.SetDefaultBranch(ctx, req.ProjectID, req.TargetBranch); err != nil {
			p.logger.Warn("set default branch failed", fields.Error(err)...)
		}
	}

	p.finishUpTriggerAndRelease(ctx, project, req, diff, sink)

	if p.telemetry != nil {
		bySeverity := make(map[store.Severity]int)
		for _, q := range qualifying {
			bySeverity[q.Severity]++
		}
		for severity, count := range bySeverity {
			p.telemetry.RecordIssuesFound(string(severity), count)
		}
	}

	sink.Accept(eventbus.Completed{Outcome: eventbus.OutcomeSuccess})
	outcome = "SUCCESS"
	if p.jobRecorder != nil {
		p.jobRecorder.Info(req.ProjectID, store.AnalysisTypeBranch, triggerSource, "completed",
			fmt.Sprintf("mapped %d issue(s), resolved %d", len(qualifying), resolvedCount))
	}
	return &Result{
		BranchID:       branch.ID,
		FilesChanged:   len(changedFiles),
		IssuesMapped:   len(qualifying),
		IssuesResolved: resolvedCount,
	}, nil
}

// runTargetedReanalysis implements spec §4.6 step 9: a synthetic
// CodeAnalysis carrying only the candidate issues is sent to the AI
// service, which returns per-issue resolution decisions. Every decided-
// resolved issue is flipped, together with its owning CodeAnalysisIssue,
// in one transaction, then counters are recomputed once more (step 10).
func (p *Processor) runTargetedReanalysis(
	ctx context.Context,
	project *store.Project,
	conn store.VcsConnection,
	req requests.BranchAnalysisRequest,
	candidates []*store.BranchIssue,
	qualifyingByID map[string]*store.QualifyingIssue,
	sink eventbus.Sink,
) (int, error) {
	priorIssues := make([]*store.CodeAnalysisIssue, 0, len(candidates))
	for _, bi := range candidates {
		if q, ok := qualifyingByID[bi.CodeAnalysisIssueID]; ok {
			priorIssues = append(priorIssues, q.CodeAnalysisIssue)
		}
	}

	aiReq := aiclient.Builder{
		ProjectID:    req.ProjectID,
		AnalysisType: store.AnalysisTypeBranch,
		TargetBranch: req.TargetBranch,
		SourceBranch: req.TargetBranch,
		CommitHash:   req.CommitHash,
		PrNumber:     req.SourcePrNumber,
		PriorIssues:  priorIssues,
	}.Build()

	result, err := p.ai.Analyze(ctx, aiReq, sink)
	if err != nil {
		return 0, err
	}

	decisions := decisionsFromIssues(result.Issues)
	resolvedIDs := make(map[string]bool, len(decisions))
	for _, d := range decisions {
		if d.isResolved {
			resolvedIDs[d.issueID] = true
		}
	}
	if len(resolvedIDs) == 0 {
		return 0, nil
	}

	resolved := 0
	err = store.WithTx(ctx, p.db, func(tx *sqlx.Tx) error {
		for _, bi := range candidates {
			if !resolvedIDs[bi.CodeAnalysisIssueID] {
				continue
			}
			bi.Resolved = true
			bi.ResolvedInCommitHash = &req.CommitHash
			bi.ResolvedInPrNumber = nil
			if _, txErr := p.branches.UpsertIssue(ctx, tx, bi); txErr != nil {
				return txErr
			}
			if txErr := p.codeAnalyses.MarkIssueResolved(ctx, tx, bi.CodeAnalysisIssueID); txErr != nil {
				return txErr
			}
			resolved++
		}
		_, txErr := p.branches.RecomputeAndSave(ctx, tx, candidates[0].BranchID)
		return txErr
	})
	if err != nil {
		return 0, err
	}
	return resolved, nil
}

// finishUpTriggerAndRelease is step 11: best-effort rag index update.
func (p *Processor) finishUpTriggerAndRelease(ctx context.Context, project *store.Project, req requests.BranchAnalysisRequest, diff string, sink eventbus.Sink) {
	if p.ragBridge == nil {
		return
	}
	if err := p.ragBridge.TriggerIncrementalUpdate(ctx, project, req.TargetBranch, req.CommitHash, diff, sink); err != nil {
		sink.Accept(eventbus.Warning{Message: "rag incremental update failed: " + err.Error()})
	}
}

func (p *Processor) fail(sink eventbus.Sink, message string, cause error) error {
	sink.Accept(eventbus.Completed{Outcome: eventbus.OutcomeFailed, Error: message})
	return ierrors.Wrap("branch analysis", "branchanalysis", "", cause)
}

// failFor is fail, plus a JobRecorder error entry attributed to projectID.
// Run uses it for every failure after request validation.
func (p *Processor) failFor(sink eventbus.Sink, projectID string, message string, cause error) error {
	if p.jobRecorder != nil {
		p.jobRecorder.Error(projectID, store.AnalysisTypeBranch, triggerSource, "failed", message)
	}
	return p.fail(sink, message, cause)
}
