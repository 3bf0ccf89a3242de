package ragclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, ServiceSecret: "s3cr3t", HTTPClient: srv.Client()})
}

func TestIsReady(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects/proj-1/ready" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("x-service-secret") != "s3cr3t" {
			t.Errorf("missing service secret header")
		}
		_ = json.NewEncoder(w).Encode(readyResponse{Ready: true})
	})

	ready, err := client.IsReady(context.Background(), "proj-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ready {
		t.Error("expected ready=true")
	}
}

func TestIndexedCommit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/projects/proj-1/branches/main/indexed-commit" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(indexedCommitResponse{Commit: "abc123"})
	})

	commit, err := client.IndexedCommit(context.Background(), "proj-1", "main")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if commit != "abc123" {
		t.Errorf("commit = %q, want abc123", commit)
	}
}

func TestTriggerIncrementalUpdate(t *testing.T) {
	var received incrementalUpdateRequest
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if r.URL.Path != "/projects/proj-1/incremental-update" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("unexpected content-type: %s", r.Header.Get("Content-Type"))
		}
		_ = json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusNoContent)
	})

	err := client.TriggerIncrementalUpdate(context.Background(), "proj-1", "main",
		[]string{"new.go"}, []string{"mod.go"}, []string{"old.go"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if received.Branch != "main" || len(received.Added) != 1 || len(received.Modified) != 1 || len(received.Deleted) != 1 {
		t.Errorf("unexpected request body: %+v", received)
	}
}

func TestGet_UpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})

	if _, err := client.IsReady(context.Background(), "proj-1"); err == nil {
		t.Fatal("expected error on 500 response")
	}
}

func TestPost_UpstreamError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
	})

	err := client.TriggerIncrementalUpdate(context.Background(), "proj-1", "main", nil, nil, nil)
	if err == nil {
		t.Fatal("expected error on 400 response")
	}
}
