package vcsadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rostilos/codecrow/internal/store"
)

// GitHubProvider implements Provider against the GitHub REST API directly.
// Unlike this corpus's other GitHub access (the `gh` CLI wrapping a local
// git checkout in wt/fixer), this analysis core never has a local
// checkout — it only ever receives a webhook and fetches a diff over HTTPS —
// so a direct REST client is the only shape that fits (see DESIGN.md).
type GitHubProvider struct {
	transport *httpTransport
}

func NewGitHubProvider() *GitHubProvider {
	return &GitHubProvider{transport: newHTTPTransport()}
}

func (p *GitHubProvider) baseURL(conn store.VcsConnection) string {
	if conn.APIBaseURL != "" {
		return conn.APIBaseURL
	}
	return "https://api.github.com"
}

func (p *GitHubProvider) newRequest(ctx context.Context, conn store.VcsConnection, method, path string, accept string, body []byte) (*http.Request, error) {
	url := fmt.Sprintf("%s%s", p.baseURL(conn), path)
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
	req.Header.Set("Accept", accept)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (p *GitHubProvider) GetPullRequestDiff(ctx context.Context, conn store.VcsConnection, prNumber int) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/pulls/%d", conn.Workspace, conn.RepoSlug, prNumber)
	req, err := p.newRequest(ctx, conn, http.MethodGet, path, "application/vnd.github.v3.diff", nil)
	if err != nil {
		return "", err
	}
	body, notFound, err := p.transport.do(ctx, req)
	if err != nil {
		return "", err
	}
	if notFound {
		return "", fmt.Errorf("pull request #%d not found", prNumber)
	}
	return string(body), nil
}

func (p *GitHubProvider) GetCommitDiff(ctx context.Context, conn store.VcsConnection, commitHash string) (string, error) {
	path := fmt.Sprintf("/repos/%s/%s/commits/%s", conn.Workspace, conn.RepoSlug, commitHash)
	req, err := p.newRequest(ctx, conn, http.MethodGet, path, "application/vnd.github.v3.diff", nil)
	if err != nil {
		return "", err
	}
	body, notFound, err := p.transport.do(ctx, req)
	if err != nil {
		return "", err
	}
	if notFound {
		return "", fmt.Errorf("commit %s not found", commitHash)
	}
	return string(body), nil
}

func (p *GitHubProvider) CheckFileExists(ctx context.Context, conn store.VcsConnection, branch, path string) (bool, error) {
	apiPath := fmt.Sprintf("/repos/%s/%s/contents/%s?ref=%s", conn.Workspace, conn.RepoSlug, path, branch)
	req, err := p.newRequest(ctx, conn, http.MethodGet, apiPath, "application/vnd.github.v3+json", nil)
	if err != nil {
		return false, err
	}
	_, notFound, err := p.transport.do(ctx, req)
	if err != nil {
		return false, err
	}
	return !notFound, nil
}

type githubCommentPayload struct {
	Body string `json:"body"`
}

func (p *GitHubProvider) PostAnalysisReport(ctx context.Context, conn store.VcsConnection, report Report) error {
	payload, err := json.Marshal(githubCommentPayload{Body: report.Body})
	if err != nil {
		return err
	}

	var path, method string
	switch {
	case report.PlaceholderCommentID != nil:
		method = http.MethodPatch
		path = fmt.Sprintf("/repos/%s/%s/issues/comments/%s", conn.Workspace, conn.RepoSlug, *report.PlaceholderCommentID)
	case report.PrNumber != nil:
		method = http.MethodPost
		path = fmt.Sprintf("/repos/%s/%s/issues/%d/comments", conn.Workspace, conn.RepoSlug, *report.PrNumber)
	default:
		method = http.MethodPost
		path = fmt.Sprintf("/repos/%s/%s/commits/%s/comments", conn.Workspace, conn.RepoSlug, report.CommitHash)
	}

	req, err := p.newRequest(ctx, conn, method, path, "application/vnd.github.v3+json", payload)
	if err != nil {
		return err
	}
	_, _, err = p.transport.do(ctx, req)
	return err
}
