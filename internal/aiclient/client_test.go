package aiclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rostilos/codecrow/internal/eventbus"
	"github.com/rostilos/codecrow/internal/store"
)

func newTestClient(t *testing.T, body string, status int) *Client {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-service-secret") != "s3cr3t" {
			t.Errorf("missing service secret header")
		}
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return New(Config{BaseURL: srv.URL, ServiceSecret: "s3cr3t", HTTPClient: srv.Client()})
}

func sampleRequest() Request {
	return Builder{ProjectID: "proj-1", AnalysisType: store.AnalysisTypePR, TargetBranch: "main", SourceBranch: "feature"}.Build()
}

func TestAnalyze_TerminalResult(t *testing.T) {
	body := strings.Join([]string{
		`{"type":"status","state":"running","message":"starting"}`,
		`{"type":"progress","processed":1,"total":2}`,
		`{"type":"result","issues":[{"issueId":"1"}]}`,
	}, "\n")
	client := newTestClient(t, body, http.StatusOK)
	collector := eventbus.NewCollector()

	result, err := client.Analyze(context.Background(), sampleRequest(), collector)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected a result")
	}
	events := collector.Events()
	if len(events) != 3 {
		t.Fatalf("expected 3 dispatched events, got %d", len(events))
	}
	if events[2].EventKind() != eventbus.KindResult {
		t.Errorf("expected last event to be result, got %v", events[2].EventKind())
	}
}

func TestAnalyze_TerminalError(t *testing.T) {
	body := `{"type":"error","message":"analysis failed"}`
	client := newTestClient(t, body, http.StatusOK)

	_, err := client.Analyze(context.Background(), sampleRequest(), eventbus.NewCollector())
	if err == nil {
		t.Fatal("expected error from terminal error event")
	}
	if !strings.Contains(err.Error(), "analysis failed") {
		t.Errorf("expected error message to be carried through, got %v", err)
	}
}

func TestAnalyze_StreamClosedWithoutTerminalEvent(t *testing.T) {
	body := `{"type":"status","state":"running"}`
	client := newTestClient(t, body, http.StatusOK)

	_, err := client.Analyze(context.Background(), sampleRequest(), eventbus.NewCollector())
	if err == nil {
		t.Fatal("expected protocol-mismatch error when stream closes without a terminal event")
	}
}

func TestAnalyze_UpstreamStatusError(t *testing.T) {
	client := newTestClient(t, "", http.StatusInternalServerError)

	_, err := client.Analyze(context.Background(), sampleRequest(), eventbus.NewCollector())
	if err == nil {
		t.Fatal("expected error on 5xx upstream response")
	}
}

func TestAnalyze_MalformedLineIsSkipped(t *testing.T) {
	body := strings.Join([]string{
		`not even json`,
		`{"type":"result","issues":[]}`,
	}, "\n")
	client := newTestClient(t, body, http.StatusOK)

	result, err := client.Analyze(context.Background(), sampleRequest(), eventbus.NewCollector())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected malformed line to be skipped and the terminal result still returned")
	}
}

func TestAnalyze_UnknownEventTypeIgnored(t *testing.T) {
	body := strings.Join([]string{
		`{"type":"some_future_kind","foo":"bar"}`,
		`{"type":"result","issues":[]}`,
	}, "\n")
	client := newTestClient(t, body, http.StatusOK)
	collector := eventbus.NewCollector()

	result, err := client.Analyze(context.Background(), sampleRequest(), collector)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result == nil {
		t.Fatal("expected result")
	}
	if len(collector.Events()) != 1 {
		t.Fatalf("expected only the result event to be dispatched, got %d", len(collector.Events()))
	}
}
