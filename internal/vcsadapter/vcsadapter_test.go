package vcsadapter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rostilos/codecrow/internal/store"
)

type fakeProvider struct {
	diffErr      []error
	diffCalls    int
	existsResult bool
	existsErr    error
	postErr      error
	postCalls    int
}

func (f *fakeProvider) GetPullRequestDiff(ctx context.Context, conn store.VcsConnection, prNumber int) (string, error) {
	idx := f.diffCalls
	f.diffCalls++
	if idx < len(f.diffErr) && f.diffErr[idx] != nil {
		return "", f.diffErr[idx]
	}
	return "diff content", nil
}

func (f *fakeProvider) GetCommitDiff(ctx context.Context, conn store.VcsConnection, commitHash string) (string, error) {
	return "commit diff", nil
}

func (f *fakeProvider) CheckFileExists(ctx context.Context, conn store.VcsConnection, branch, path string) (bool, error) {
	return f.existsResult, f.existsErr
}

func (f *fakeProvider) PostAnalysisReport(ctx context.Context, conn store.VcsConnection, report Report) error {
	f.postCalls++
	return f.postErr
}

func testConn(repoSlug string) store.VcsConnection {
	return store.VcsConnection{Provider: store.VcsGitHub, Workspace: "acme", RepoSlug: repoSlug}
}

func TestGetPullRequestDiff_Success(t *testing.T) {
	provider := &fakeProvider{}
	adapter := New(map[store.VcsProvider]Provider{store.VcsGitHub: provider}, BackoffConfig{}, nil)

	diff, err := adapter.GetPullRequestDiff(context.Background(), testConn("repo-a"), 42)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff != "diff content" {
		t.Errorf("diff = %q", diff)
	}
}

func TestGetPullRequestDiff_UnknownProvider(t *testing.T) {
	adapter := New(map[store.VcsProvider]Provider{}, BackoffConfig{}, nil)

	_, err := adapter.GetPullRequestDiff(context.Background(), testConn("repo-b"), 1)
	if err == nil {
		t.Fatal("expected error for unregistered provider")
	}
}

func TestCheckFileExistsInBranch_PropagatesResult(t *testing.T) {
	provider := &fakeProvider{existsResult: true}
	adapter := New(map[store.VcsProvider]Provider{store.VcsGitHub: provider}, BackoffConfig{}, nil)

	exists, err := adapter.CheckFileExistsInBranch(context.Background(), testConn("repo-c"), "main", "go.mod")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !exists {
		t.Error("expected exists=true to propagate from provider")
	}
}

func TestPostAnalysisReport_Success(t *testing.T) {
	provider := &fakeProvider{}
	adapter := New(map[store.VcsProvider]Provider{store.VcsGitHub: provider}, BackoffConfig{}, nil)

	err := adapter.PostAnalysisReport(context.Background(), testConn("repo-d"), Report{Body: "report"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if provider.postCalls != 1 {
		t.Errorf("postCalls = %d, want 1", provider.postCalls)
	}
}

func TestWithBreakerAndBackoff_RetriesOnRateLimitThenSucceeds(t *testing.T) {
	provider := &fakeProvider{diffErr: []error{&RateLimitError{RetryAfter: 0}, nil}}
	adapter := New(map[store.VcsProvider]Provider{store.VcsGitHub: provider},
		BackoffConfig{InitialDelay: time.Millisecond, MaxAttempts: 3}, nil)

	diff, err := adapter.GetPullRequestDiff(context.Background(), testConn("repo-e"), 1)
	if err != nil {
		t.Fatalf("unexpected error after retry: %v", err)
	}
	if diff != "diff content" {
		t.Errorf("diff = %q", diff)
	}
	if provider.diffCalls != 2 {
		t.Errorf("expected exactly one retry (2 calls), got %d", provider.diffCalls)
	}
}

func TestWithBreakerAndBackoff_ExhaustsRetriesOnSustainedRateLimit(t *testing.T) {
	provider := &fakeProvider{diffErr: []error{
		&RateLimitError{}, &RateLimitError{}, &RateLimitError{},
	}}
	adapter := New(map[store.VcsProvider]Provider{store.VcsGitHub: provider},
		BackoffConfig{InitialDelay: time.Millisecond, MaxAttempts: 3}, nil)

	_, err := adapter.GetPullRequestDiff(context.Background(), testConn("repo-f"), 1)
	if err == nil {
		t.Fatal("expected error once retries are exhausted")
	}
	if provider.diffCalls != 3 {
		t.Errorf("expected exactly MaxAttempts calls (3), got %d", provider.diffCalls)
	}
}

func TestWithBreakerAndBackoff_NonRateLimitErrorFailsImmediately(t *testing.T) {
	provider := &fakeProvider{diffErr: []error{errors.New("boom")}}
	adapter := New(map[store.VcsProvider]Provider{store.VcsGitHub: provider},
		BackoffConfig{InitialDelay: time.Millisecond, MaxAttempts: 3}, nil)

	_, err := adapter.GetPullRequestDiff(context.Background(), testConn("repo-g"), 1)
	if err == nil {
		t.Fatal("expected error")
	}
	if provider.diffCalls != 1 {
		t.Errorf("expected no retry on a non-rate-limit error, got %d calls", provider.diffCalls)
	}
}

func TestWithBreakerAndBackoff_ContextCancelledDuringWait(t *testing.T) {
	provider := &fakeProvider{diffErr: []error{&RateLimitError{}, &RateLimitError{}}}
	adapter := New(map[store.VcsProvider]Provider{store.VcsGitHub: provider},
		BackoffConfig{InitialDelay: 50 * time.Millisecond, MaxAttempts: 3}, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := adapter.GetPullRequestDiff(ctx, testConn("repo-h"), 1)
	if err == nil {
		t.Fatal("expected error when context is cancelled mid-backoff")
	}
}

func TestBreakerFor_ReusesBreakerPerConnectionKey(t *testing.T) {
	adapter := New(map[store.VcsProvider]Provider{}, BackoffConfig{}, nil)
	conn := testConn("repo-i")

	cb1 := adapter.breakerFor(conn)
	cb2 := adapter.breakerFor(conn)
	if cb1 != cb2 {
		t.Error("expected the same circuit breaker instance for the same connection key")
	}

	other := adapter.breakerFor(testConn("repo-j"))
	if cb1 == other {
		t.Error("expected distinct breakers for distinct repo slugs")
	}
}

func TestRetryAfterFromHeader(t *testing.T) {
	cases := []struct {
		value string
		want  time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{"not-a-number", 0},
		{"-5", 0},
	}
	for _, tc := range cases {
		h := http.Header{}
		if tc.value != "" {
			h.Set("Retry-After", tc.value)
		}
		if got := RetryAfterFromHeader(h); got != tc.want {
			t.Errorf("RetryAfterFromHeader(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}

func TestRateLimitError_Error(t *testing.T) {
	err := &RateLimitError{RetryAfter: time.Second}
	if err.Error() == "" {
		t.Error("expected non-empty error message")
	}
}

func TestAsRateLimitError(t *testing.T) {
	if _, ok := asRateLimitError(errors.New("plain")); ok {
		t.Error("expected plain error to not be recognized as a RateLimitError")
	}
	if _, ok := asRateLimitError(&RateLimitError{}); !ok {
		t.Error("expected *RateLimitError to be recognized")
	}
}

func newTestRequest(t *testing.T, url string) *http.Request {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	return req
}

func TestHTTPTransport_Do_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("body"))
	}))
	t.Cleanup(srv.Close)

	transport := newHTTPTransport()
	body, notFound, err := transport.do(context.Background(), newTestRequest(t, srv.URL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if notFound {
		t.Error("expected notFound=false on 200")
	}
	if string(body) != "body" {
		t.Errorf("body = %q", body)
	}
}

func TestHTTPTransport_Do_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	t.Cleanup(srv.Close)

	transport := newHTTPTransport()
	_, notFound, err := transport.do(context.Background(), newTestRequest(t, srv.URL))
	if err != nil {
		t.Fatalf("expected 404 to not be an error, got %v", err)
	}
	if !notFound {
		t.Error("expected notFound=true on 404")
	}
}

func TestHTTPTransport_Do_RateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "7")
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)

	transport := newHTTPTransport()
	_, _, err := transport.do(context.Background(), newTestRequest(t, srv.URL))
	rle, ok := asRateLimitError(err)
	if !ok {
		t.Fatalf("expected a *RateLimitError, got %v", err)
	}
	if rle.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", rle.RetryAfter)
	}
}

func TestHTTPTransport_Do_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	transport := newHTTPTransport()
	_, _, err := transport.do(context.Background(), newTestRequest(t, srv.URL))
	if err == nil {
		t.Fatal("expected error on 500 response")
	}
}
