package common

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError is one rejected setting.
type ValidationError struct {
	Field   string
	Value   any
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s=%v %s", e.Field, e.Value, e.Message)
}

// ValidationRule checks one value; nil means the value is accepted.
type ValidationRule func(field string, value any) *ValidationError

// Validator collects rule failures across settings.
type Validator struct {
	failures []ValidationError
}

func NewValidator() *Validator {
	return &Validator{}
}

// Field applies rules to value and records every failure.
func (v *Validator) Field(field string, value any, rules ...ValidationRule) *Validator {
	for _, rule := range rules {
		if err := rule(field, value); err != nil {
			v.failures = append(v.failures, *err)
		}
	}
	return v
}

// Failures returns the recorded failures in the order they were found.
func (v *Validator) Failures() []ValidationError {
	return v.failures
}

// Err joins every failure into a *ConfigurationError, or returns nil.
func (v *Validator) Err() error {
	if len(v.failures) == 0 {
		return nil
	}
	msgs := make([]string, len(v.failures))
	for i, f := range v.failures {
		msgs[i] = f.Error()
	}
	return NewConfigurationError(strings.Join(msgs, "; "), ErrInvalidInput)
}

func fail(field string, value any, msg string) *ValidationError {
	return &ValidationError{Field: field, Value: value, Message: msg}
}

// Required rejects nil and blank strings.
func Required(field string, value any) *ValidationError {
	switch v := value.(type) {
	case nil:
		return fail(field, value, "is required")
	case string:
		if strings.TrimSpace(v) == "" {
			return fail(field, `""`, "is required")
		}
	}
	return nil
}

// UnitInterval requires a float64 in [0, 1].
func UnitInterval(field string, value any) *ValidationError {
	f, ok := value.(float64)
	if !ok {
		return fail(field, value, "must be a number")
	}
	if f < 0 || f > 1 {
		return fail(field, value, "must be between 0 and 1")
	}
	return nil
}

// Positive requires an int or time.Duration greater than zero.
func Positive(field string, value any) *ValidationError {
	switch v := value.(type) {
	case int:
		if v > 0 {
			return nil
		}
	case time.Duration:
		if v > 0 {
			return nil
		}
	default:
		return fail(field, value, "must be an integer or duration")
	}
	return fail(field, value, "must be greater than zero")
}

// NonNegative requires a float64 >= 0.
func NonNegative(field string, value any) *ValidationError {
	f, ok := value.(float64)
	if !ok {
		return fail(field, value, "must be a number")
	}
	if f < 0 {
		return fail(field, value, "must not be negative")
	}
	return nil
}

// OneOf accepts only the given strings.
func OneOf(allowed ...string) ValidationRule {
	return func(field string, value any) *ValidationError {
		s, ok := value.(string)
		if !ok {
			return fail(field, value, "must be a string")
		}
		for _, a := range allowed {
			if s == a {
				return nil
			}
		}
		return fail(field, fmt.Sprintf("%q", s), "must be one of: "+strings.Join(allowed, ", "))
	}
}
