package types

import (
	"github.com/go-playground/validator/v10"
)

// validate is safe for concurrent use and caches struct metadata.
var validate = validator.New()

// Validate validates the SubmitJobRequest using the validator.
func (r *SubmitJobRequest) Validate() error {
	return validate.Struct(r)
}

// Validate validates the EmissionsFactor using the validator.
func (f *EmissionsFactor) Validate() error {
	return validate.Struct(f)
}

// Validate validates the ActivityRecord using the validator.
func (a *ActivityRecord) Validate() error {
	return validate.Struct(a)
}

// Validate validates the CandidateAction using the validator.
func (c *CandidateAction) Validate() error {
	return validate.Struct(c)
}
