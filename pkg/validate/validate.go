// Package validate runs go-playground/validator struct-tag validation over
// resource Config values.
package validate

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/statecraft/statecraft/pkg/errs"
)

var v = validator.New()

// Struct validates cfg's `validate:"..."` tags and, on failure, wraps the
// result as an errs.EngineError of class validation tagged with resourceID.
// It returns nil when cfg carries no tags or every tag passes.
func Struct(cfg interface{}, resourceID string) error {
	if err := v.Struct(cfg); err != nil {
		if _, ok := err.(*validator.InvalidValidationError); ok {
			return nil
		}
		return errs.New(errs.ClassValidation, summarize(err), err).WithResource(resourceID)
	}
	return nil
}

func summarize(err error) string {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok || len(fieldErrs) == 0 {
		return "invalid resource configuration"
	}
	parts := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		parts = append(parts, fe.Field()+" failed "+fe.Tag())
	}
	return "invalid resource configuration: " + strings.Join(parts, ", ")
}
