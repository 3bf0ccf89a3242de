package vcsadapter

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// httpTransport is the shared request/response plumbing for the provider
// implementations: each provider knows only how to build a request and
// decode a success response; retry/breaker/backoff concerns stay in
// Adapter.withBreakerAndBackoff.
type httpTransport struct {
	client *http.Client
}

func newHTTPTransport() *httpTransport {
	return &httpTransport{client: &http.Client{}}
}

// do executes req and returns the body bytes on 2xx, a *RateLimitError on
// 429, (nil, true, nil) on 404, or a plain error otherwise.
func (t *httpTransport) do(ctx context.Context, req *http.Request) (body []byte, notFound bool, err error) {
	req = req.WithContext(ctx)
	resp, err := t.client.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("vcs http request: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, true, nil
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, false, &RateLimitError{RetryAfter: RetryAfterFromHeader(resp.Header)}
	case resp.StatusCode >= 400:
		b, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("vcs http request: status %d: %s", resp.StatusCode, string(b))
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, false, fmt.Errorf("vcs http response: %w", err)
	}
	return b, false, nil
}
