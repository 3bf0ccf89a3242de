package requests

import (
	"testing"

	ierrors "github.com/rostilos/codecrow/internal/errors"
)

func validPrRequest() PrAnalysisRequest {
	return PrAnalysisRequest{
		ProjectID:    "proj-1",
		CommitHash:   "abc123",
		SourceBranch: "feature/x",
		TargetBranch: "main",
		PrNumber:     42,
	}
}

func TestPrAnalysisRequest_Validate_OK(t *testing.T) {
	if err := validPrRequest().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestPrAnalysisRequest_Validate_MissingFields(t *testing.T) {
	req := PrAnalysisRequest{}
	err := req.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	fieldErr, ok := err.(*ierrors.InvalidRequestError)
	if !ok {
		t.Fatalf("expected *ierrors.InvalidRequestError, got %T", err)
	}
	for _, field := range []string{"ProjectID", "CommitHash", "SourceBranch", "TargetBranch", "PrNumber"} {
		if _, ok := fieldErr.FieldErrors[field]; !ok {
			t.Errorf("expected field error for %s", field)
		}
	}
}

func TestPrAnalysisRequest_Validate_PrNumberMustBePositive(t *testing.T) {
	req := validPrRequest()
	req.PrNumber = 0
	err := req.Validate()
	if err == nil {
		t.Fatal("expected validation error for PrNumber=0")
	}
}

func validBranchRequest() BranchAnalysisRequest {
	return BranchAnalysisRequest{
		ProjectID:    "proj-1",
		TargetBranch: "main",
		CommitHash:   "abc123",
	}
}

func TestBranchAnalysisRequest_Validate_OK(t *testing.T) {
	if err := validBranchRequest().Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBranchAnalysisRequest_Validate_OK_WithSourcePrNumber(t *testing.T) {
	req := validBranchRequest()
	pr := 7
	req.SourcePrNumber = &pr
	if err := req.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestBranchAnalysisRequest_Validate_MissingFields(t *testing.T) {
	req := BranchAnalysisRequest{}
	err := req.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	fieldErr, ok := err.(*ierrors.InvalidRequestError)
	if !ok {
		t.Fatalf("expected *ierrors.InvalidRequestError, got %T", err)
	}
	for _, field := range []string{"ProjectID", "TargetBranch", "CommitHash"} {
		if _, ok := fieldErr.FieldErrors[field]; !ok {
			t.Errorf("expected field error for %s", field)
		}
	}
}
