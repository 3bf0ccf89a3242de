package vcsadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rostilos/codecrow/internal/store"
)

// BitbucketCloudProvider implements Provider against the Bitbucket Cloud
// REST API (2.0).
type BitbucketCloudProvider struct {
	transport *httpTransport
}

func NewBitbucketCloudProvider() *BitbucketCloudProvider {
	return &BitbucketCloudProvider{transport: newHTTPTransport()}
}

func (p *BitbucketCloudProvider) baseURL(conn store.VcsConnection) string {
	if conn.APIBaseURL != "" {
		return conn.APIBaseURL
	}
	return "https://api.bitbucket.org/2.0"
}

func (p *BitbucketCloudProvider) newRequest(ctx context.Context, conn store.VcsConnection, method, path string, accept string, body []byte) (*http.Request, error) {
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
	req.Header.Set("Authorization", "Bearer "+conn.AccessToken)
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (p *BitbucketCloudProvider) GetPullRequestDiff(ctx context.Context, conn store.VcsConnection, prNumber int) (string, error) {
	path := fmt.Sprintf("/repositories/%s/%s/pullrequests/%d/diff", conn.Workspace, conn.RepoSlug, prNumber)
	req, err := p.newRequest(ctx, conn, http.MethodGet, path, "text/plain", nil)
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

func (p *BitbucketCloudProvider) GetCommitDiff(ctx context.Context, conn store.VcsConnection, commitHash string) (string, error) {
	path := fmt.Sprintf("/repositories/%s/%s/diff/%s", conn.Workspace, conn.RepoSlug, commitHash)
	req, err := p.newRequest(ctx, conn, http.MethodGet, path, "text/plain", nil)
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

func (p *BitbucketCloudProvider) CheckFileExists(ctx context.Context, conn store.VcsConnection, branch, path string) (bool, error) {
	apiPath := fmt.Sprintf("/repositories/%s/%s/src/%s/%s", conn.Workspace, conn.RepoSlug, branch, path)
	req, err := p.newRequest(ctx, conn, http.MethodGet, apiPath, "", nil)
	if err != nil {
		return false, err
	}
	_, notFound, err := p.transport.do(ctx, req)
	if err != nil {
		return false, err
	}
	return !notFound, nil
}

type bitbucketCommentContent struct {
	Raw string `json:"raw"`
}

type bitbucketCommentPayload struct {
	Content bitbucketCommentContent `json:"content"`
}

func (p *BitbucketCloudProvider) PostAnalysisReport(ctx context.Context, conn store.VcsConnection, report Report) error {
	payload, err := json.Marshal(bitbucketCommentPayload{Content: bitbucketCommentContent{Raw: report.Body}})
	if err != nil {
		return err
	}

	var path, method string
	switch {
	case report.PlaceholderCommentID != nil && report.PrNumber != nil:
		method = http.MethodPut
		path = fmt.Sprintf("/repositories/%s/%s/pullrequests/%d/comments/%s", conn.Workspace, conn.RepoSlug, *report.PrNumber, *report.PlaceholderCommentID)
	case report.PrNumber != nil:
		method = http.MethodPost
		path = fmt.Sprintf("/repositories/%s/%s/pullrequests/%d/comments", conn.Workspace, conn.RepoSlug, *report.PrNumber)
	default:
		method = http.MethodPost
		path = fmt.Sprintf("/repositories/%s/%s/commit/%s/comments", conn.Workspace, conn.RepoSlug, report.CommitHash)
	}

	req, err := p.newRequest(ctx, conn, method, path, "application/json", payload)
	if err != nil {
		return err
	}
	_, _, err = p.transport.do(ctx, req)
	return err
}
