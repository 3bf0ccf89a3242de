package diffparser

import (
	"strings"
	"testing"
)

func TestParseDiff_EmptyInput(t *testing.T) {
	changes := ParseDiff("   \n\t")
	if changes == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(changes) != 0 {
		t.Fatalf("expected 0 changes, got %d", len(changes))
	}
}

func TestParseDiff_ModifiedFile(t *testing.T) {
	diff := strings.Join([]string{
		"diff --git a/main.go b/main.go",
		"--- a/main.go",
		"+++ b/main.go",
		"@@ -1,3 +1,4 @@",
		" package main",
		"+func helper() {}",
		"-// old comment",
	}, "\n")

	changes := ParseDiff(diff)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	c := changes[0]
	if c.Path != "main.go" {
		t.Errorf("path = %q, want main.go", c.Path)
	}
	if c.Kind != ChangeModified {
		t.Errorf("kind = %q, want MODIFIED", c.Kind)
	}
	if c.AddedLines != 1 || c.RemovedLines != 1 {
		t.Errorf("added/removed = %d/%d, want 1/1", c.AddedLines, c.RemovedLines)
	}
	if len(c.Snippets) != 1 || !strings.Contains(c.Snippets[0], "func helper") {
		t.Errorf("snippets = %v, want a func helper snippet", c.Snippets)
	}
}

func TestParseDiff_AddedFile(t *testing.T) {
	diff := strings.Join([]string{
		"diff --git a/new.go b/new.go",
		"--- /dev/null",
		"+++ b/new.go",
		"@@ -0,0 +1,2 @@",
		"+package new",
		"+func New() {}",
	}, "\n")

	changes := ParseDiff(diff)
	if len(changes) != 1 || changes[0].Kind != ChangeAdded {
		t.Fatalf("expected 1 ADDED change, got %+v", changes)
	}
}

func TestParseDiff_DeletedFile(t *testing.T) {
	diff := strings.Join([]string{
		"diff --git a/old.go b/old.go",
		"--- a/old.go",
		"+++ /dev/null",
		"@@ -1,2 +0,0 @@",
		"-package old",
		"-func Old() {}",
	}, "\n")

	changes := ParseDiff(diff)
	if len(changes) != 1 || changes[0].Kind != ChangeDeleted {
		t.Fatalf("expected 1 DELETED change, got %+v", changes)
	}
}

func TestParseDiff_RenamedFile(t *testing.T) {
	diff := strings.Join([]string{
		"diff --git a/old_name.go b/new_name.go",
		"--- a/old_name.go",
		"+++ b/new_name.go",
		"rename to new_name.go",
	}, "\n")

	changes := ParseDiff(diff)
	if len(changes) != 1 {
		t.Fatalf("expected 1 change, got %d", len(changes))
	}
	if changes[0].Kind != ChangeRenamed {
		t.Errorf("kind = %q, want RENAMED", changes[0].Kind)
	}
	if changes[0].Path != "new_name.go" {
		t.Errorf("path = %q, want new_name.go", changes[0].Path)
	}
}

func TestParseDiff_MultipleFiles(t *testing.T) {
	diff := strings.Join([]string{
		"diff --git a/a.go b/a.go",
		"--- a/a.go",
		"+++ b/a.go",
		"+x := 1",
		"diff --git a/b.go b/b.go",
		"--- a/b.go",
		"+++ b/b.go",
		"+y := 2",
	}, "\n")

	changes := ParseDiff(diff)
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %d", len(changes))
	}
	if changes[0].Path != "a.go" || changes[1].Path != "b.go" {
		t.Errorf("unexpected paths: %q, %q", changes[0].Path, changes[1].Path)
	}
}

func TestParseChangedPaths(t *testing.T) {
	diff := strings.Join([]string{
		"diff --git a/a.go b/a.go",
		"--- a/a.go",
		"+++ b/a.go",
		"diff --git a/b.go b/b.go",
		"--- a/b.go",
		"+++ b/b.go",
	}, "\n")

	paths := ParseChangedPaths(diff)
	if len(paths) != 2 || paths[0] != "a.go" || paths[1] != "b.go" {
		t.Fatalf("unexpected paths: %v", paths)
	}
}

func TestParseDiff_SnippetTruncation(t *testing.T) {
	longSig := "func " + strings.Repeat("x", 200) + "()"
	diff := strings.Join([]string{
		"diff --git a/a.go b/a.go",
		"--- a/a.go",
		"+++ b/a.go",
		"+" + longSig,
	}, "\n")

	changes := ParseDiff(diff)
	if len(changes[0].Snippets) != 1 {
		t.Fatalf("expected 1 snippet, got %d", len(changes[0].Snippets))
	}
	if !strings.HasSuffix(changes[0].Snippets[0], "...") {
		t.Errorf("expected truncated snippet, got %q", changes[0].Snippets[0])
	}
	if len(changes[0].Snippets[0]) != maxSnippetLen+3 {
		t.Errorf("snippet length = %d, want %d", len(changes[0].Snippets[0]), maxSnippetLen+3)
	}
}
