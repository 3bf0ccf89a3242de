// Package vcsadapter implements VcsOperations (spec §4.3) over a single
// tagged-union VcsConnection, with per-(provider,repo) circuit breaking and
// rate-limit backoff composed around a provider-specific HTTP transport.
package vcsadapter

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	ierrors "github.com/rostilos/codecrow/internal/errors"
	ilogging "github.com/rostilos/codecrow/internal/logging"
	"github.com/rostilos/codecrow/internal/store"
)

// Provider is the minimal per-backend transport VcsAdapter delegates to.
// One implementation per store.VcsProvider value; VcsAdapter itself never
// branches on provider beyond selecting which Provider to call.
type Provider interface {
	GetPullRequestDiff(ctx context.Context, conn store.VcsConnection, prNumber int) (string, error)
	GetCommitDiff(ctx context.Context, conn store.VcsConnection, commitHash string) (string, error)
	CheckFileExists(ctx context.Context, conn store.VcsConnection, branch, path string) (bool, error)
	PostAnalysisReport(ctx context.Context, conn store.VcsConnection, report Report) error
}

// Report is the rendered output posted back to the PR/commit (spec §4.3
// postAnalysisReport); PlaceholderCommentID, when set, makes the post
// idempotent by editing an existing comment instead of creating a new one.
type Report struct {
	PlaceholderCommentID *string
	PrNumber             *int
	CommitHash           string
	Body                 string
}

// BackoffConfig controls retry-with-backoff on HTTP 429 responses
// (spec §4.3).
type BackoffConfig struct {
	InitialDelay time.Duration
	MaxAttempts  int
}

// Adapter dispatches to the Provider registered for a connection's
// VcsProvider, wrapping every call in a per-(provider,workspace,repoSlug)
// circuit breaker and a bounded exponential backoff against 429s.
type Adapter struct {
	providers map[store.VcsProvider]Provider
	breakers  map[string]*gobreaker.CircuitBreaker
	backoff   BackoffConfig
	logger    *zap.Logger
}

func New(providers map[store.VcsProvider]Provider, backoff BackoffConfig, logger *zap.Logger) *Adapter {
	if backoff.InitialDelay <= 0 {
		backoff.InitialDelay = 2 * time.Second
	}
	if backoff.MaxAttempts <= 0 {
		backoff.MaxAttempts = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		providers: providers,
		breakers:  make(map[string]*gobreaker.CircuitBreaker),
		backoff:   backoff,
		logger:    logger,
	}
}

func (a *Adapter) breakerFor(conn store.VcsConnection) *gobreaker.CircuitBreaker {
	key := fmt.Sprintf("%s:%s/%s", conn.Provider, conn.Workspace, conn.RepoSlug)
	if cb, ok := a.breakers[key]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        key,
		MaxRequests: 2,
		Interval:    30 * time.Second,
		Timeout:     60 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.Warn("vcs circuit breaker state change",
				ilogging.NewFields().Resource("vcs_circuit", name)...)
			_ = from
			_ = to
		},
	})
	a.breakers[key] = cb
	return cb
}

func (a *Adapter) providerFor(conn store.VcsConnection) (Provider, error) {
	p, ok := a.providers[conn.Provider]
	if !ok {
		return nil, ierrors.Wrap("select vcs provider", "vcsadapter", string(conn.Provider), ierrors.ErrUpstreamVcs)
	}
	return p, nil
}

// GetPullRequestDiff returns the unified diff for a PR's head commit.
func (a *Adapter) GetPullRequestDiff(ctx context.Context, conn store.VcsConnection, prNumber int) (string, error) {
	var out string
	err := a.withBreakerAndBackoff(ctx, conn, "getPullRequestDiff", func() error {
		p, err := a.providerFor(conn)
		if err != nil {
			return err
		}
		out, err = p.GetPullRequestDiff(ctx, conn, prNumber)
		return err
	})
	return out, err
}

// GetCommitDiff returns the unified diff introduced by a single commit.
func (a *Adapter) GetCommitDiff(ctx context.Context, conn store.VcsConnection, commitHash string) (string, error) {
	var out string
	err := a.withBreakerAndBackoff(ctx, conn, "getCommitDiff", func() error {
		p, err := a.providerFor(conn)
		if err != nil {
			return err
		}
		out, err = p.GetCommitDiff(ctx, conn, commitHash)
		return err
	})
	return out, err
}

// CheckFileExistsInBranch reports whether path exists at branch's head.
// Per spec §4.3, a 404 response is a true "does not exist" answer, not an
// error; every other failure (transport error, any other 4xx/5xx status, a
// 429 still returned on the last attempt) propagates as an error, and
// BranchAnalysisProcessor fails open on it (treats an error as "assume it
// exists") rather than block the pipeline on it.
func (a *Adapter) CheckFileExistsInBranch(ctx context.Context, conn store.VcsConnection, branch, path string) (bool, error) {
	var exists bool
	err := a.withBreakerAndBackoff(ctx, conn, "checkFileExistsInBranch", func() error {
		p, err := a.providerFor(conn)
		if err != nil {
			return err
		}
		exists, err = p.CheckFileExists(ctx, conn, branch, path)
		return err
	})
	return exists, err
}

// PostAnalysisReport posts (or, with Report.PlaceholderCommentID set,
// updates) the rendered analysis report.
func (a *Adapter) PostAnalysisReport(ctx context.Context, conn store.VcsConnection, report Report) error {
	return a.withBreakerAndBackoff(ctx, conn, "postAnalysisReport", func() error {
		p, err := a.providerFor(conn)
		if err != nil {
			return err
		}
		return p.PostAnalysisReport(ctx, conn, report)
	})
}

// withBreakerAndBackoff composes the circuit breaker (trips on sustained
// failure) with a bounded exponential retry on 429 (rate limit): the
// breaker gates whether an attempt is made at all, backoff governs spacing
// between attempts within one logical call.
func (a *Adapter) withBreakerAndBackoff(ctx context.Context, conn store.VcsConnection, op string, fn func() error) error {
	cb := a.breakerFor(conn)

	delay := a.backoff.InitialDelay
	var lastErr error
	for attempt := 1; attempt <= a.backoff.MaxAttempts; attempt++ {
		_, err := cb.Execute(func() (interface{}, error) {
			return nil, fn()
		})
		if err == nil {
			return nil
		}
		lastErr = err

		rle, ok := asRateLimitError(err)
		if !ok || attempt == a.backoff.MaxAttempts {
			return ierrors.Wrap(op, "vcsadapter", string(conn.Provider), fmt.Errorf("%w: %w", ierrors.ErrUpstreamVcs, err))
		}

		wait := delay
		if rle.RetryAfter > 0 {
			wait = rle.RetryAfter
		}
		select {
		case <-ctx.Done():
			return ierrors.Wrap(op, "vcsadapter", string(conn.Provider), ctx.Err())
		case <-time.After(wait):
		}
		delay *= 2
	}
	return ierrors.Wrap(op, "vcsadapter", string(conn.Provider), fmt.Errorf("%w: %w", ierrors.ErrUpstreamVcs, lastErr))
}

// RateLimitError signals an HTTP 429 response; RetryAfter, when positive,
// overrides the adapter's own backoff delay for the next attempt.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string { return "vcs provider rate limit exceeded" }

func asRateLimitError(err error) (*RateLimitError, bool) {
	rle, ok := err.(*RateLimitError)
	return rle, ok
}

// RetryAfterFromHeader parses the Retry-After response header (seconds
// form only, per provider documentation) into a duration, used by provider
// implementations building a RateLimitError.
func RetryAfterFromHeader(h http.Header) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	return time.Duration(secs) * time.Second
}
