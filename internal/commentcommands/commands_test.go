package commentcommands

import "testing"

func TestParse_Reanalyze(t *testing.T) {
	cmd := Parse("looks good, but please\n/codecrow reanalyze\nthanks")
	if cmd.Kind != KindReanalyze {
		t.Fatalf("kind = %q, want REANALYZE", cmd.Kind)
	}
}

func TestParse_Ignore(t *testing.T) {
	cmd := Parse("/codecrow ignore 1f2e3d4c-5b6a-4978-9f10-abcdef123456")
	if cmd.Kind != KindIgnore {
		t.Fatalf("kind = %q, want IGNORE", cmd.Kind)
	}
	if cmd.IssueID != "1f2e3d4c-5b6a-4978-9f10-abcdef123456" {
		t.Errorf("issueID = %q", cmd.IssueID)
	}
}

func TestParse_Ignore_TrimsWhitespace(t *testing.T) {
	cmd := Parse("  /codecrow   ignore   some-id  ")
	if cmd.Kind != KindIgnore || cmd.IssueID != "some-id" {
		t.Fatalf("unexpected command: %+v", cmd)
	}
}

func TestParse_None(t *testing.T) {
	cmd := Parse("just a regular comment, no commands here")
	if cmd.Kind != KindNone {
		t.Fatalf("kind = %q, want NONE", cmd.Kind)
	}
}

func TestParse_UnrecognizedSubcommand(t *testing.T) {
	cmd := Parse("/codecrow frobnicate")
	if cmd.Kind != KindNone {
		t.Fatalf("kind = %q, want NONE for unrecognized subcommand", cmd.Kind)
	}
}

func TestResolvedByAttribution(t *testing.T) {
	got := ResolvedByAttribution("alice")
	if got != "comment:alice" {
		t.Errorf("got %q, want comment:alice", got)
	}
}

func TestParseIssueID_Valid(t *testing.T) {
	id := "1f2e3d4c-5b6a-4978-9f10-abcdef123456"
	got, ok := ParseIssueID(id)
	if !ok || got != id {
		t.Fatalf("ParseIssueID(%q) = %q, %v", id, got, ok)
	}
}

func TestParseIssueID_Invalid(t *testing.T) {
	if _, ok := ParseIssueID("42"); ok {
		t.Fatal("expected integer id to fail UUID parse")
	}
	if _, ok := ParseIssueID("not-a-uuid"); ok {
		t.Fatal("expected garbage id to fail UUID parse")
	}
}
