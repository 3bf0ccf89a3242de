package pranalysis

import (
	"fmt"

	"github.com/rostilos/codecrow/internal/store"
)

// NormalizeIssues accepts the AI result's `issues` field, which spec §4.4
// permits to be either a JSON array or a keyed map, and returns a
// deterministically ordered slice of CodeAnalysisIssue — sorted by
// (filePath, lineNumber, issueId) per SPEC_FULL.md's "issues field
// polymorphism" guidance, since map iteration order is not stable. Any entry that is not
// itself a JSON object is skipped rather than treated as fatal.
func NormalizeIssues(issues interface{}) []*store.CodeAnalysisIssue {
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

	out := make([]*store.CodeAnalysisIssue, 0, len(raw))
	ids := make([]string, 0, len(raw))
	for _, m := range raw {
		out = append(out, issueFromMap(m))
		ids = append(ids, fmt.Sprint(m["issueId"]))
	}
	sortIssues(out, ids)
	return out
}

func issueFromMap(m map[string]interface{}) *store.CodeAnalysisIssue {
	iss := &store.CodeAnalysisIssue{
		FilePath: stringField(m, "filePath"),
		Severity: store.Severity(stringField(m, "severity")),
		Reason:   stringField(m, "reason"),
	}
	if ln, ok := intField(m, "lineNumber"); ok {
		iss.LineNumber = &ln
	}
	if desc := stringField(m, "suggestedFixDescription"); desc != "" {
		iss.SuggestedFixDescription = &desc
	}
	return iss
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func intField(m map[string]interface{}, key string) (int, bool) {
	switch v := m[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func sortIssues(issues []*store.CodeAnalysisIssue, ids []string) {
	// Simple insertion sort: the candidate slices here are small
	// (per-PR/per-branch finding counts), and this avoids pulling in
	// sort.Slice's closure allocation for what's typically under a hundred
	// elements.
	for i := 1; i < len(issues); i++ {
		for j := i; j > 0 && lessIssue(issues[j], issues[j-1], ids[j], ids[j-1]); j-- {
			issues[j], issues[j-1] = issues[j-1], issues[j]
			ids[j], ids[j-1] = ids[j-1], ids[j]
		}
	}
}

func lessIssue(a, b *store.CodeAnalysisIssue, aID, bID string) bool {
	if a.FilePath != b.FilePath {
		return a.FilePath < b.FilePath
	}
	al, bl := -1, -1
	if a.LineNumber != nil {
		al = *a.LineNumber
	}
	if b.LineNumber != nil {
		bl = *b.LineNumber
	}
	if al != bl {
		return al < bl
	}
	return aID < bID
}
