package vcsadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rostilos/codecrow/internal/store"
)

// GitLabProvider implements Provider against the GitLab REST API.
type GitLabProvider struct {
	transport *httpTransport
}

func NewGitLabProvider() *GitLabProvider {
	return &GitLabProvider{transport: newHTTPTransport()}
}

func (p *GitLabProvider) baseURL(conn store.VcsConnection) string {
	if conn.APIBaseURL != "" {
		return conn.APIBaseURL
	}
	return "https://gitlab.com/api/v4"
}

func (p *GitLabProvider) projectPath(conn store.VcsConnection) string {
	return url.PathEscape(conn.Workspace + "/" + conn.RepoSlug)
}

func (p *GitLabProvider) newRequest(ctx context.Context, conn store.VcsConnection, method, path string, body []byte) (*http.Request, error) {
	reqURL := fmt.Sprintf("%s%s", p.baseURL(conn), path)
	var reader *bytes.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, reqURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("PRIVATE-TOKEN", conn.AccessToken)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (p *GitLabProvider) GetPullRequestDiff(ctx context.Context, conn store.VcsConnection, prNumber int) (string, error) {
	path := fmt.Sprintf("/projects/%s/merge_requests/%d/raw_diffs", p.projectPath(conn), prNumber)
	req, err := p.newRequest(ctx, conn, http.MethodGet, path, nil)
	if err != nil {
		return "", err
	}
	body, notFound, err := p.transport.do(ctx, req)
	if err != nil {
		return "", err
	}
	if notFound {
		return "", fmt.Errorf("merge request !%d not found", prNumber)
	}
	return string(body), nil
}

func (p *GitLabProvider) GetCommitDiff(ctx context.Context, conn store.VcsConnection, commitHash string) (string, error) {
	path := fmt.Sprintf("/projects/%s/repository/commits/%s/diff", p.projectPath(conn), commitHash)
	req, err := p.newRequest(ctx, conn, http.MethodGet, path, nil)
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
	// GitLab returns a JSON array of per-file diff fragments rather than a
	// unified diff document; callers treat it as opaque unified-diff text,
	// so this concatenates the fragments under synthetic diff headers.
	var frags []struct {
		OldPath string `json:"old_path"`
		NewPath string `json:"new_path"`
		Diff    string `json:"diff"`
	}
	if err := json.Unmarshal(body, &frags); err != nil {
		return "", fmt.Errorf("decode gitlab diff fragments: %w", err)
	}
	var out bytes.Buffer
	for _, f := range frags {
		fmt.Fprintf(&out, "diff --git a/%s b/%s\n--- a/%s\n+++ b/%s\n%s\n", f.OldPath, f.NewPath, f.OldPath, f.NewPath, f.Diff)
	}
	return out.String(), nil
}

func (p *GitLabProvider) CheckFileExists(ctx context.Context, conn store.VcsConnection, branch, path string) (bool, error) {
	apiPath := fmt.Sprintf("/projects/%s/repository/files/%s?ref=%s", p.projectPath(conn), url.PathEscape(path), url.QueryEscape(branch))
	req, err := p.newRequest(ctx, conn, http.MethodHead, apiPath, nil)
	if err != nil {
		return false, err
	}
	_, notFound, err := p.transport.do(ctx, req)
	if err != nil {
		return false, err
	}
	return !notFound, nil
}

type gitlabNotePayload struct {
	Body string `json:"body"`
}

func (p *GitLabProvider) PostAnalysisReport(ctx context.Context, conn store.VcsConnection, report Report) error {
	payload, err := json.Marshal(gitlabNotePayload{Body: report.Body})
	if err != nil {
		return err
	}

	var path, method string
	switch {
	case report.PlaceholderCommentID != nil && report.PrNumber != nil:
		method = http.MethodPut
		path = fmt.Sprintf("/projects/%s/merge_requests/%d/notes/%s", p.projectPath(conn), *report.PrNumber, *report.PlaceholderCommentID)
	case report.PrNumber != nil:
		method = http.MethodPost
		path = fmt.Sprintf("/projects/%s/merge_requests/%d/notes", p.projectPath(conn), *report.PrNumber)
	default:
		method = http.MethodPost
		path = fmt.Sprintf("/projects/%s/repository/commits/%s/comments", p.projectPath(conn), report.CommitHash)
	}

	req, err := p.newRequest(ctx, conn, method, path, payload)
	if err != nil {
		return err
	}
	_, _, err = p.transport.do(ctx, req)
	return err
}
