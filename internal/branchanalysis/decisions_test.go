package branchanalysis

import "testing"

const validUUID1 = "1f2e3d4c-5b6a-4978-9f10-abcdef123456"
const validUUID2 = "2a2e3d4c-5b6a-4978-9f10-abcdef654321"

func TestDecisionsFromIssues_ListShape(t *testing.T) {
	issues := []interface{}{
		map[string]interface{}{"issueId": validUUID1, "isResolved": true},
		map[string]interface{}{"issueId": validUUID2, "isResolved": false},
	}

	decisions := decisionsFromIssues(issues)
	if len(decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(decisions))
	}
	if decisions[0].issueID != validUUID1 || !decisions[0].isResolved {
		t.Errorf("unexpected first decision: %+v", decisions[0])
	}
	if decisions[1].issueID != validUUID2 || decisions[1].isResolved {
		t.Errorf("unexpected second decision: %+v", decisions[1])
	}
}

func TestDecisionsFromIssues_MapShape(t *testing.T) {
	issues := map[string]interface{}{
		"a": map[string]interface{}{"issueId": validUUID1, "status": "resolved"},
	}

	decisions := decisionsFromIssues(issues)
	if len(decisions) != 1 {
		t.Fatalf("expected 1 decision, got %d", len(decisions))
	}
	if !decisions[0].isResolved {
		t.Error("expected status:resolved to translate to isResolved=true")
	}
}

func TestDecisionsFromIssues_StatusOtherThanResolved(t *testing.T) {
	issues := []interface{}{
		map[string]interface{}{"issueId": validUUID1, "status": "open"},
	}
	decisions := decisionsFromIssues(issues)
	if len(decisions) != 1 || decisions[0].isResolved {
		t.Fatalf("expected isResolved=false for status:open, got %+v", decisions)
	}
}

func TestDecisionsFromIssues_SkipsUnparsableIssueID(t *testing.T) {
	issues := []interface{}{
		map[string]interface{}{"issueId": "not-a-uuid", "isResolved": true},
		map[string]interface{}{"issueId": validUUID1, "isResolved": true},
	}
	decisions := decisionsFromIssues(issues)
	if len(decisions) != 1 {
		t.Fatalf("expected malformed issueId entry to be skipped, got %d decisions", len(decisions))
	}
	if decisions[0].issueID != validUUID1 {
		t.Errorf("unexpected surviving decision: %+v", decisions[0])
	}
}

func TestDecisionsFromIssues_NeitherListNorMap(t *testing.T) {
	if decisions := decisionsFromIssues("not a list or map"); decisions != nil {
		t.Fatalf("expected nil decisions for unrecognized shape, got %+v", decisions)
	}
}

func TestDecisionsFromIssues_EmptyList(t *testing.T) {
	decisions := decisionsFromIssues([]interface{}{})
	if len(decisions) != 0 {
		t.Fatalf("expected 0 decisions, got %d", len(decisions))
	}
}
