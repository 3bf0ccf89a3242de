// Package commentcommands recognizes `/codecrow` comment commands in a VCS
// comment body (SPEC_FULL.md §8.1 supplement), wiring
// Project.CommentCommandsConfig (named in the data model but otherwise
// unoperated on) to two user-facing actions: triggering a re-analysis, and
// marking a known finding resolved directly from a PR comment. Grounded on
// fixer/github/triage.go's comment/annotation parsing idiom.
package commentcommands

import (
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// Kind discriminates a recognized command.
type Kind string

const (
	KindReanalyze Kind = "REANALYZE"
	KindIgnore    Kind = "IGNORE"
	KindNone      Kind = "NONE"
)

// Command is a parsed `/codecrow ...` comment command.
type Command struct {
	IssueID string
	Kind    Kind
}

var (
	reanalyzePattern = regexp.MustCompile(`(?m)^\s*/codecrow\s+reanalyze\s*$`)
	ignorePattern    = regexp.MustCompile(`(?m)^\s*/codecrow\s+ignore\s+(\S+)\s*$`)
)

// Parse scans a comment body for the first recognized command. Unrecognized
// or absent commands return Kind NONE, never an error — a comment with no
// command is the overwhelmingly common case, not a failure.
func Parse(body string) Command {
	if m := ignorePattern.FindStringSubmatch(body); m != nil {
		return Command{Kind: KindIgnore, IssueID: strings.TrimSpace(m[1])}
	}
	if reanalyzePattern.MatchString(body) {
		return Command{Kind: KindReanalyze}
	}
	return Command{Kind: KindNone}
}

// ResolvedByAttribution renders the resolvedBy attribution for an /ignore
// command, per SPEC_FULL.md §8.1: "resolvedBy = comment:<author>".
func ResolvedByAttribution(commentAuthor string) string {
	return "comment:" + commentAuthor
}

// ParseIssueID validates that an issue ID is well-formed, per spec §4.6's
// edge case ("If issueId in an AI decision is not parseable as integer,
// skip that decision"). This store uses UUID primary keys rather than the
// original's integer IDs (Design Note: UUID ids), so the parseability gate
// is generalized from "parses as an integer" to "parses as a UUID" — same
// purpose (reject a malformed id before it reaches a lookup), adapted id
// format.
func ParseIssueID(s string) (string, bool) {
	if _, err := uuid.Parse(s); err != nil {
		return "", false
	}
	return s, true
}
