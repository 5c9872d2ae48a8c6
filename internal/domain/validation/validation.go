// Package validation checks vote submissions against the category enum and
// the candidate catalog.
package validation

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/okian/arena/internal/domain/model"
)

// ErrMalformedRequest is returned when a request is missing required fields.
var ErrMalformedRequest = errors.New("malformed vote request")

// Lookup resolves candidate ids against the current catalog.
type Lookup interface {
	Get(id string) (model.Candidate, bool)
}

// Validator checks referential and domain validity of a vote.
type Validator struct {
	lookup Lookup
	shape  *validator.Validate
}

// New creates a Validator backed by lookup.
func New(lookup Lookup) *Validator {
	return &Validator{
		lookup: lookup,
		shape:  validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Validate resolves category and checks both candidates exist. The category
// is checked first: an invalid category fails with ErrInvalidCategory no
// matter what the candidates are. A pair of identical ids fails with
// ErrSelfPair.
func (v *Validator) Validate(_ context.Context, a, b, category string) (model.Category, error) {
	cat, err := model.ParseCategory(category)
	if err != nil {
		return 0, err
	}
	if !cat.IsVotable() {
		return 0, fmt.Errorf("%w: %q is not votable", model.ErrInvalidCategory, category)
	}
	for _, id := range []string{a, b} {
		if _, ok := v.lookup.Get(id); !ok {
			return 0, fmt.Errorf("%w: %q", model.ErrUnknownCandidate, id)
		}
	}
	if a == b {
		return 0, fmt.Errorf("%w: %q", model.ErrSelfPair, a)
	}
	return cat, nil
}

// CheckShape verifies required request fields are present.
func (v *Validator) CheckShape(req model.VoteRequest) error {
	err := v.shape.Struct(req)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		fields := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			fields = append(fields, fe.Field())
		}
		return fmt.Errorf("%w: missing %s", ErrMalformedRequest, strings.Join(fields, ", "))
	}
	return fmt.Errorf("%w: %w", ErrMalformedRequest, err)
}
