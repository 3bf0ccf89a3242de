// Package diffparser parses unified-diff text into the path/change-kind
// summary the analysis pipelines need, without shelling out to git — the
// pipelines only ever receive a diff string from VcsAdapter, never a local
// checkout.
package diffparser

import (
	"bufio"
	"regexp"
	"strings"
)

// ChangeKind classifies how a path was touched by a diff.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "ADDED"
	ChangeModified ChangeKind = "MODIFIED"
	ChangeDeleted  ChangeKind = "DELETED"
	ChangeRenamed  ChangeKind = "RENAMED"
)

// FileChange is one file's diff summary.
type FileChange struct {
	Path      string
	OldPath   string // path from the "--- a/" line; differs from Path only when Kind == ChangeRenamed
	Kind      ChangeKind
	Snippets  []string // truncated signature-like lines pulled from added hunks
	AddedLines   int
	RemovedLines int
}

var (
	diffGitLine  = regexp.MustCompile(`^diff --git a/(.+) b/(.+)$`)
	oldFileLine  = regexp.MustCompile(`^--- (?:a/(.+)|(/dev/null))$`)
	newFileLine  = regexp.MustCompile(`^\+\+\+ (?:b/(.+)|(/dev/null))$`)
	renameToLine = regexp.MustCompile(`^rename to (.+)$`)

	// signatureLine matches lines that look like a function/class/method
	// declaration worth surfacing as a snippet, across the handful of
	// languages this corpus's example repos touch.
	signatureLine = regexp.MustCompile(`^\s*(func|class|def|public |private |protected |interface |type )\b`)
)

const maxSnippetLen = 150

// ParseChangedPaths returns just the paths touched by a unified diff, in
// diff order, by running ParseDiff and keeping each change's Path — used by
// BranchAnalysisProcessor step 3 to drive per-file existence checks (spec
// §4.6).
func ParseChangedPaths(unifiedDiff string) []string {
	changes := ParseDiff(unifiedDiff)
	paths := make([]string, 0, len(changes))
	for _, c := range changes {
		paths = append(paths, c.Path)
	}
	return paths
}

// ParseDiff parses a unified diff into per-file changes. Empty or
// whitespace-only input returns an empty, non-nil slice — callers never
// need a nil check.
func ParseDiff(unifiedDiff string) []*FileChange {
	changes := make([]*FileChange, 0)
	if strings.TrimSpace(unifiedDiff) == "" {
		return changes
	}

	var current *FileChange
	var isNewFile, isDeletedFile bool

	scanner := bufio.NewScanner(strings.NewReader(unifiedDiff))
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	flush := func() {
		if current == nil {
			return
		}
		switch {
		case isNewFile:
			current.Kind = ChangeAdded
		case isDeletedFile:
			current.Kind = ChangeDeleted
		case current.OldPath != "" && current.OldPath != current.Path:
			current.Kind = ChangeRenamed
		default:
			current.Kind = ChangeModified
		}
		changes = append(changes, current)
	}

	for scanner.Scan() {
		line := scanner.Text()

		if m := diffGitLine.FindStringSubmatch(line); m != nil {
			flush()
			current = &FileChange{Path: m[2]}
			isNewFile, isDeletedFile = false, false
			continue
		}
		if current == nil {
			continue
		}

		switch {
		case oldFileLine.MatchString(line):
			m := oldFileLine.FindStringSubmatch(line)
			if m[2] == "/dev/null" {
				isNewFile = true
			} else {
				current.OldPath = m[1]
			}
		case newFileLine.MatchString(line):
			m := newFileLine.FindStringSubmatch(line)
			if m[2] == "/dev/null" {
				isDeletedFile = true
			}
		case strings.HasPrefix(line, "rename to "):
			if m := renameToLine.FindStringSubmatch(line); m != nil {
				current.Path = m[1]
			}
		case strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++"):
			current.AddedLines++
			content := line[1:]
			if signatureLine.MatchString(content) {
				current.Snippets = append(current.Snippets, truncate(strings.TrimSpace(content), maxSnippetLen))
			}
		case strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "---"):
			current.RemovedLines++
		}
	}
	flush()

	return changes
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
