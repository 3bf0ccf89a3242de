// Package ragclient implements rag.Indexer over the external
// retrieval-pipeline indexer's HTTP API (spec §2 Non-goals: the indexer
// itself is out of scope, but the HTTP contract the bridge calls through is
// not). Grounded on aiclient.Client's request-building and
// x-service-secret-header convention, adapted from a streaming
// request/response shape to three plain request/response calls.
package ragclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"go.uber.org/zap"

	ierrors "github.com/rostilos/codecrow/internal/errors"
)

// Config configures Client.
type Config struct {
	BaseURL       string
	ServiceSecret string
	Logger        *zap.Logger
	HTTPClient    *http.Client
}

// Client drives the rag indexer's readiness/status/update endpoints.
type Client struct {
	baseURL       string
	serviceSecret string
	httpClient    *http.Client
	logger        *zap.Logger
}

func New(cfg Config) *Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Client{
		baseURL:       cfg.BaseURL,
		serviceSecret: cfg.ServiceSecret,
		httpClient:    cfg.HTTPClient,
		logger:        cfg.Logger,
	}
}

type readyResponse struct {
	Ready bool `json:"ready"`
}

// IsReady reports whether projectID's index has completed its initial bulk
// build and can accept incremental updates.
func (c *Client) IsReady(ctx context.Context, projectID string) (bool, error) {
	var out readyResponse
	if err := c.get(ctx, fmt.Sprintf("/projects/%s/ready", projectID), &out); err != nil {
		return false, err
	}
	return out.Ready, nil
}

type indexedCommitResponse struct {
	Commit string `json:"commit"`
}

// IndexedCommit returns the commit hash the index was last built from for
// (projectID, branch), or an empty string if no commit has been indexed yet.
func (c *Client) IndexedCommit(ctx context.Context, projectID, branch string) (string, error) {
	var out indexedCommitResponse
	if err := c.get(ctx, fmt.Sprintf("/projects/%s/branches/%s/indexed-commit", projectID, branch), &out); err != nil {
		return "", err
	}
	return out.Commit, nil
}

type incrementalUpdateRequest struct {
	Branch   string   `json:"branch"`
	Added    []string `json:"added"`
	Modified []string `json:"modified"`
	Deleted  []string `json:"deleted"`
}

// TriggerIncrementalUpdate posts the changed-path sets RagBridge computed
// from a diff so the indexer can re-embed only what changed.
func (c *Client) TriggerIncrementalUpdate(ctx context.Context, projectID, branch string, added, modified, deleted []string) error {
	body, err := json.Marshal(incrementalUpdateRequest{Branch: branch, Added: added, Modified: modified, Deleted: deleted})
	if err != nil {
		return ierrors.Wrap("build rag update request", "ragclient", projectID, err)
	}
	return c.post(ctx, fmt.Sprintf("/projects/%s/incremental-update", projectID), body)
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return ierrors.Wrap("build rag request", "ragclient", path, err)
	}
	req.Header.Set("x-service-secret", c.serviceSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ierrors.Wrap("call rag service", "ragclient", path, fmt.Errorf("%w: %v", ierrors.ErrUpstreamVcs, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ierrors.Wrap("call rag service", "ragclient", path, fmt.Errorf("status %d", resp.StatusCode))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return ierrors.Wrap("decode rag response", "ragclient", path, err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return ierrors.Wrap("build rag request", "ragclient", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-service-secret", c.serviceSecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ierrors.Wrap("call rag service", "ragclient", path, fmt.Errorf("%w: %v", ierrors.ErrUpstreamVcs, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return ierrors.Wrap("call rag service", "ragclient", path, fmt.Errorf("status %d", resp.StatusCode))
	}
	return nil
}
