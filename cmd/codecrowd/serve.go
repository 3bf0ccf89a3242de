package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/rostilos/codecrow/internal/commentcommands"
	"github.com/rostilos/codecrow/internal/eventbus"
	"github.com/rostilos/codecrow/internal/requests"
	"github.com/rostilos/codecrow/internal/store"
	"github.com/rostilos/codecrow/internal/workerpool"
)

const (
	serveReadTimeout  = 30 * time.Second
	serveWriteTimeout = 0 // streamed responses run indefinitely until the pipeline finishes
	serveIdleTimeout  = 120 * time.Second

	// streamForgetGrace bounds how long a completed run's event history
	// stays attachable after its terminal event, for an SSE client that
	// connects slightly after the triggering webhook returned.
	streamForgetGrace = 2 * time.Minute
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the webhook + SSE HTTP adapter",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDeps(configPath)
		if err != nil {
			return err
		}
		defer d.Close()

		pool := workerpool.New(int64(d.cfg.WorkerPoolSize))
		streams := eventbus.NewRegistry()
		srv := &server{deps: d, pool: pool, streams: streams}

		router := chi.NewRouter()
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins: []string{"*"},
			AllowedMethods: []string{http.MethodGet, http.MethodPost},
			AllowedHeaders: []string{"Content-Type"},
		}))
		router.Get("/healthz", srv.handleHealthz)
		router.Handle("/metrics", promhttp.HandlerFor(d.registry, promhttp.HandlerOpts{}))
		router.Post("/webhooks/{provider}", srv.handleWebhook)
		router.Get("/analyses/{correlationId}/events", srv.handleEvents)

		httpServer := &http.Server{
			Addr:         d.cfg.HTTPAddr,
			Handler:      router,
			ReadTimeout:  serveReadTimeout,
			WriteTimeout: serveWriteTimeout,
			IdleTimeout:  serveIdleTimeout,
		}

		errCh := make(chan error, 1)
		go func() {
			d.logger.Info("http server starting", zap.String("addr", d.cfg.HTTPAddr))
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
				return
			}
			errCh <- nil
		}()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

		select {
		case err := <-errCh:
			return err
		case <-sigCh:
			d.logger.Info("shutdown signal received")
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			return httpServer.Shutdown(ctx)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

// server holds the HTTP-layer state the route handlers share.
type server struct {
	deps    *deps
	pool    *workerpool.Pool
	streams *eventbus.Registry
}

func (s *server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// webhookPayload is the ambient-adapter's normalized view of an inbound VCS
// webhook; real signature verification and provider-specific payload
// translation are external to this core (spec §2 Non-goals: VCS/AI/RAG
// backends themselves), so this handler accepts the already-normalized
// shape a thin per-provider translator would produce.
type webhookPayload struct {
	Kind           string  `json:"kind"` // "pr" | "branch"
	ProjectID      string  `json:"projectId"`
	PrNumber       *int    `json:"prNumber,omitempty"`
	SourcePrNumber *int    `json:"sourcePrNumber,omitempty"`
	SourceBranch   string  `json:"sourceBranch,omitempty"`
	TargetBranch   string  `json:"targetBranch"`
	CommitHash     string  `json:"commitHash"`
	PrAuthor       *string `json:"prAuthor,omitempty"`
	PlaceholderCommentID *string `json:"placeholderCommentId,omitempty"`

	// CommentBody/CommentAuthor are set when the webhook is itself a PR
	// comment event, for the `/codecrow ...` command supplement.
	CommentBody   *string `json:"commentBody,omitempty"`
	CommentAuthor *string `json:"commentAuthor,omitempty"`
}

func (s *server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	provider := chi.URLParam(r, "provider")

	var payload webhookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid webhook payload", http.StatusBadRequest)
		return
	}

	if payload.CommentBody != nil {
		if cmd := commentcommands.Parse(*payload.CommentBody); cmd.Kind == commentcommands.KindIgnore {
			if err := s.handleIgnoreCommand(r.Context(), payload, cmd.IssueID); err != nil {
				s.deps.logger.Warn("ignore command failed", zap.String("provider", provider), zap.Error(err))
				http.Error(w, "ignore command failed", http.StatusInternalServerError)
				return
			}
			writeJSON(w, http.StatusOK, map[string]string{"status": "issue ignored"})
			return
		}
	}

	correlationID := uuid.NewString()
	stream := s.streams.Start(correlationID)

	switch payload.Kind {
	case "pr":
		req := requests.PrAnalysisRequest{
			ProjectID:            payload.ProjectID,
			CommitHash:           payload.CommitHash,
			SourceBranch:         payload.SourceBranch,
			TargetBranch:         payload.TargetBranch,
			PrAuthor:             payload.PrAuthor,
			PlaceholderCommentID: payload.PlaceholderCommentID,
		}
		if payload.PrNumber != nil {
			req.PrNumber = *payload.PrNumber
		}
		if err := req.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		go s.runPrAnalysis(req, stream, correlationID)
	case "branch":
		req := requests.BranchAnalysisRequest{
			ProjectID:      payload.ProjectID,
			TargetBranch:   payload.TargetBranch,
			CommitHash:     payload.CommitHash,
			SourcePrNumber: payload.SourcePrNumber,
		}
		if err := req.Validate(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		go s.runBranchAnalysis(req, stream, correlationID)
	default:
		http.Error(w, "unrecognized webhook kind", http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"correlationId": correlationID})
}

func (s *server) runPrAnalysis(req requests.PrAnalysisRequest, sink eventbus.Sink, correlationID string) {
	ctx := context.Background()
	_ = s.pool.Submit(ctx, func(ctx context.Context) {
		if _, err := s.deps.prProcessor.Run(ctx, req, sink); err != nil {
			s.deps.logger.Warn("pr analysis run failed", zap.String("correlation_id", correlationID), zap.Error(err))
		}
	})
	time.AfterFunc(streamForgetGrace, func() { s.streams.Forget(correlationID) })
}

func (s *server) runBranchAnalysis(req requests.BranchAnalysisRequest, sink eventbus.Sink, correlationID string) {
	ctx := context.Background()
	_ = s.pool.Submit(ctx, func(ctx context.Context) {
		if _, err := s.deps.branchProc.Run(ctx, req, sink); err != nil {
			s.deps.logger.Warn("branch analysis run failed", zap.String("correlation_id", correlationID), zap.Error(err))
		}
	})
	time.AfterFunc(streamForgetGrace, func() { s.streams.Forget(correlationID) })
}

// handleIgnoreCommand marks a BranchIssue resolved from a `/codecrow ignore
// <issueId>` comment (SPEC_FULL.md §8.1). Invariant BI-2 requires a resolved
// BranchIssue to carry a resolvedInPrNumber or resolvedInCommitHash; a
// comment-triggered resolution has neither as its primary attribution, so
// this handler attributes it to the PR the comment was posted on (the
// webhook's prNumber) to satisfy the invariant, while resolvedBy carries the
// human-facing "comment:<author>" attribution the supplement calls for.
func (s *server) handleIgnoreCommand(ctx context.Context, payload webhookPayload, issueID string) error {
	branch, err := s.deps.branches.GetByName(ctx, payload.ProjectID, payload.TargetBranch)
	if err != nil {
		return err
	}

	existing, err := s.deps.branches.ListIssues(ctx, s.deps.db.Conn(), branch.ID)
	if err != nil {
		return err
	}
	var target *store.BranchIssue
	for _, bi := range existing {
		if bi.CodeAnalysisIssueID == issueID {
			target = bi
			break
		}
	}
	if target == nil {
		return store.ErrNotFound
	}

	now := time.Now()
	target.Resolved = true
	target.ResolvedAt = &now
	target.ResolvedInPrNumber = payload.PrNumber
	if payload.CommentAuthor != nil {
		attribution := commentcommands.ResolvedByAttribution(*payload.CommentAuthor)
		target.ResolvedBy = &attribution
	}

	return store.WithTx(ctx, s.deps.db.Conn(), func(tx *sqlx.Tx) error {
		if _, err := s.deps.branches.UpsertIssue(ctx, tx, target); err != nil {
			return err
		}
		_, err := s.deps.branches.RecomputeAndSave(ctx, tx, branch.ID)
		return err
	})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleEvents streams a run's events as NDJSON: first its recorded history,
// then everything emitted live until a terminal Completed event arrives or
// the client disconnects.
func (s *server) handleEvents(w http.ResponseWriter, r *http.Request) {
	correlationID := chi.URLParam(r, "correlationId")
	stream, ok := s.streams.Get(correlationID)
	if !ok {
		http.Error(w, "unknown correlation id", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	sink := eventbus.NewHTTPStreamSink(w)

	history, live, unsubscribe := stream.Subscribe()
	defer unsubscribe()

	for _, ev := range history {
		sink.Accept(ev)
		if ev.EventKind() == eventbus.KindCompleted {
			return
		}
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-live:
			if !ok {
				return
			}
			sink.Accept(ev)
			if ev.EventKind() == eventbus.KindCompleted {
				return
			}
		}
	}
}
