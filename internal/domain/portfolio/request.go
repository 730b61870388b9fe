// Package portfolio holds the inputs of the market-sentiment pipeline.
package portfolio

import (
	"github.com/kiiskristo/marketpulse-backend/pkg/errors"
)

// AnalysisRequest is the body of a market-sentiment analysis.
type AnalysisRequest struct {
	Portfolio   *Portfolio   `json:"portfolio"`
	Preferences *Preferences `json:"preferences"`
}

// Prepare normalizes the request and reports every validation problem.
func (r *AnalysisRequest) Prepare() error {
	errs := &errors.MultiError{}

	if r.Portfolio == nil {
		errs.Add(errors.NewValidationError("portfolio", "field required", nil))
	} else {
		r.Portfolio.Normalize()
		addAll(errs, r.Portfolio.Validate("portfolio"))
	}

	if r.Preferences == nil {
		errs.Add(errors.NewValidationError("preferences", "field required", nil))
	} else {
		r.Preferences.Normalize()
		addAll(errs, r.Preferences.Validate("preferences"))
	}

	return errs.ToError()
}

// ValidationErrors flattens err into its validation errors.
func ValidationErrors(err error) []*errors.ValidationError {
	var out []*errors.ValidationError

	var multi *errors.MultiError
	if errors.As(err, &multi) {
		for _, e := range multi.Errors {
			out = append(out, ValidationErrors(e)...)
		}
		return out
	}

	var v *errors.ValidationError
	if errors.As(err, &v) {
		out = append(out, v)
	}
	return out
}

func addAll(dst *errors.MultiError, err error) {
	if err == nil {
		return
	}
	var multi *errors.MultiError
	if errors.As(err, &multi) {
		for _, e := range multi.Errors {
			dst.Add(e)
		}
		return
	}
	dst.Add(err)
}
