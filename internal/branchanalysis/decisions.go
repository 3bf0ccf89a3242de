package branchanalysis

import (
	"github.com/rostilos/codecrow/internal/commentcommands"
)

// issueDecision is one entry of the targeted re-analysis response (spec
// §4.6 step 9): "{issueId, isResolved | status:\"resolved\"}". The AI
// service is free to send either shape; isResolvedDecision accepts both.
type issueDecision struct {
	issueID    string
	isResolved bool
}

// decisionsFromIssues normalizes the AI result's `issues` field (same
// list-or-map polymorphism as a normal analysis result, per spec §4.4) into
// the set of per-issue resolution decisions. Entries whose issueId does not
// parse (per commentcommands.ParseIssueID's UUID gate) are skipped rather
// than treated as fatal (spec §4.6 edge case). A field that is neither list
// nor map yields no decisions.
func decisionsFromIssues(issues interface{}) []issueDecision {
	var raw []map[string]interface{}

	switch v := issues.(type) {
	case []interface{}:
		for _, entry := range v {
			if m, ok := entry.(map[string]interface{}); ok {
				raw = append(raw, m)
			}
		}
	case map[string]interface{}:
		for _, entry := range v {
			if m, ok := entry.(map[string]interface{}); ok {
				raw = append(raw, m)
			}
		}
	default:
		return nil
	}

	out := make([]issueDecision, 0, len(raw))
	for _, m := range raw {
		idRaw, _ := m["issueId"].(string)
		id, ok := commentcommands.ParseIssueID(idRaw)
		if !ok {
			continue
		}
		out = append(out, issueDecision{issueID: id, isResolved: isResolvedDecision(m)})
	}
	return out
}

func isResolvedDecision(m map[string]interface{}) bool {
	if b, ok := m["isResolved"].(bool); ok {
		return b
	}
	if status, ok := m["status"].(string); ok {
		return status == "resolved"
	}
	return false
}
