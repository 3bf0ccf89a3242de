// Package requests defines the boundary input types PrAnalysisProcessor and
// BranchAnalysisProcessor accept, validated via validator/v10 before a
// pipeline ever acquires a lock (spec §4.5/§4.6), following
// specvital-worker's req.Validate() + sentinel InvalidRequestError pattern.
package requests

import (
	"github.com/go-playground/validator/v10"

	ierrors "github.com/rostilos/codecrow/internal/errors"
)

var validate = validator.New()

// PrAnalysisRequest is the boundary input for PrAnalysisProcessor
// (spec §4.5).
type PrAnalysisRequest struct {
	PrAuthor             *string `validate:"omitempty"`
	PlaceholderCommentID *string `validate:"omitempty"`
	PreAcquiredLockKey   *string `validate:"omitempty"`
	ProjectID            string  `validate:"required"`
	CommitHash           string  `validate:"required"`
	SourceBranch         string  `validate:"required"`
	TargetBranch         string  `validate:"required"`
	PrNumber             int     `validate:"required,gt=0"`
}

// Validate runs struct-tag validation, returning an
// *ierrors.InvalidRequestError keyed by field name on failure.
func (r PrAnalysisRequest) Validate() error {
	return validateStruct(r)
}

// BranchAnalysisRequest is the boundary input for BranchAnalysisProcessor
// (spec §4.6).
type BranchAnalysisRequest struct {
	SourcePrNumber *int   `validate:"omitempty"`
	ProjectID      string `validate:"required"`
	TargetBranch   string `validate:"required"`
	CommitHash     string `validate:"required"`
}

func (r BranchAnalysisRequest) Validate() error {
	return validateStruct(r)
}

func validateStruct(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return ierrors.Wrap("validate request", "requests", "", err)
	}

	out := make(map[string]string, len(fieldErrs))
	for _, fe := range fieldErrs {
		out[fe.Field()] = fe.Tag()
	}
	return &ierrors.InvalidRequestError{FieldErrors: out}
}
