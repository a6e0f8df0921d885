package store

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/promptforge/promptstore/pkg/models"
)

// ValidationResult reports structural and business-rule checks on a
// record. Validation never returns an error; failed rules are listed.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// validationErr flattens a failed result into one wrapped cause
func validationErr(res ValidationResult) error {
	return errors.New(strings.Join(res.Errors, "; "))
}

func structErrors(v interface{}) []string {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return []string{err.Error()}
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("field %s failed rule %q", fe.Namespace(), fe.Tag()))
	}
	return msgs
}

// ValidateUser checks a user record against structural and business rules
func ValidateUser(user *models.User) ValidationResult {
	if user == nil {
		return ValidationResult{Errors: []string{"user is nil"}}
	}

	errs := structErrors(user)

	if !user.CreatedAt.IsZero() && !user.UpdatedAt.IsZero() && user.UpdatedAt.Before(user.CreatedAt) {
		errs = append(errs, "updated_at precedes created_at")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// ValidateUsage checks a usage record against structural and business rules
func ValidateUsage(usage *models.Usage) ValidationResult {
	if usage == nil {
		return ValidationResult{Errors: []string{"usage is nil"}}
	}

	errs := structErrors(usage)

	if usage.Month != models.MonthFromDate(usage.Date) {
		errs = append(errs, fmt.Sprintf("month %q is not the prefix of date %q", usage.Month, usage.Date))
	}
	for api, n := range usage.APICallCounts {
		if n < 0 {
			errs = append(errs, fmt.Sprintf("api call count for %q is negative", api))
		}
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}
