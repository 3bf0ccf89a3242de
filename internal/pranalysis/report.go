package pranalysis

import (
	"fmt"
	"strings"

	"github.com/rostilos/codecrow/internal/store"
)

// RenderReport renders a CodeAnalysis's issues into the comment body posted
// back to the VCS provider via VcsAdapter.PostAnalysisReport.
func RenderReport(ca *store.CodeAnalysis) string {
	if len(ca.Issues) == 0 {
		return "codecrow: no issues found."
	}

	var b strings.Builder
	fmt.Fprintf(&b, "codecrow found %d issue(s):\n\n", len(ca.Issues))
	for _, iss := range ca.Issues {
		location := iss.FilePath
		if iss.LineNumber != nil {
			location = fmt.Sprintf("%s:%d", iss.FilePath, *iss.LineNumber)
		}
		fmt.Fprintf(&b, "- **[%s]** %s — %s\n", iss.Severity, location, iss.Reason)
		if iss.SuggestedFixDescription != nil {
			fmt.Fprintf(&b, "  - suggested fix: %s\n", *iss.SuggestedFixDescription)
		}
	}
	return b.String()
}
