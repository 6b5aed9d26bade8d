package validation

import (
	"fmt"
	"strings"
	"time"

	"intent-scheduler/internal/common/errors"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"
)

// CronParser accepts standard five-field expressions plus descriptors such as @daily
var CronParser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidationResult is the outward shape of a validation run
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors"`
}

// ValidationError represents a single validation error with context
type ValidationError struct {
	Field   string `json:"field"`
	Tag     string `json:"tag"`
	Value   string `json:"value,omitempty"`
	Message string `json:"message"`
}

// FluentValidator accumulates every failed check instead of stopping at the first.
type FluentValidator struct {
	validate *validator.Validate
	errors   []ValidationError
}

var sharedValidate = newValidate()

func newValidate() *validator.Validate {
	v := validator.New()

	_ = v.RegisterValidation("cron_expression", func(fl validator.FieldLevel) bool {
		_, err := CronParser.Parse(fl.Field().String())
		return err == nil
	})

	_ = v.RegisterValidation("timezone", func(fl validator.FieldLevel) bool {
		_, err := time.LoadLocation(fl.Field().String())
		return err == nil
	})

	return v
}

// NewFluentValidator creates an empty accumulator
func NewFluentValidator() *FluentValidator {
	return &FluentValidator{
		validate: sharedValidate,
		errors:   make([]ValidationError, 0),
	}
}

// RequireString validates that a string is not empty (trimmed)
func (fv *FluentValidator) RequireString(value, name string) *FluentValidator {
	if strings.TrimSpace(value) == "" {
		fv.addError(name, "required", value, fmt.Sprintf("%s is required", name))
	}
	return fv
}

// RequireMaxLength validates that a string has a maximum length
func (fv *FluentValidator) RequireMaxLength(value string, maxLength int, name string) *FluentValidator {
	if err := fv.validate.Var(value, fmt.Sprintf("max=%d", maxLength)); err != nil {
		fv.addError(name, "max", value, fmt.Sprintf("%s must be at most %d characters long", name, maxLength))
	}
	return fv
}

// RequireMin validates that a value is at least min
func (fv *FluentValidator) RequireMin(value, min int, name string) *FluentValidator {
	if err := fv.validate.Var(value, fmt.Sprintf("min=%d", min)); err != nil {
		fv.addError(name, "min", fmt.Sprintf("%d", value), fmt.Sprintf("%s must be at least %d (got %d)", name, min, value))
	}
	return fv
}

// RequireRange validates that a value is within a range
func (fv *FluentValidator) RequireRange(value, min, max int, name string) *FluentValidator {
	if err := fv.validate.Var(value, fmt.Sprintf("min=%d,max=%d", min, max)); err != nil {
		fv.addError(name, "range", fmt.Sprintf("%d", value), fmt.Sprintf("%s must be between %d and %d (got %d)", name, min, max, value))
	}
	return fv
}

// RequireOneOf validates that a value is one of the allowed values
func (fv *FluentValidator) RequireOneOf(value string, allowed []string, name string) *FluentValidator {
	if err := fv.validate.Var(value, "required,oneof="+strings.Join(allowed, " ")); err != nil {
		fv.addError(name, "oneof", value, fmt.Sprintf("%s must be one of: %s", name, strings.Join(allowed, ", ")))
	}
	return fv
}

// RequireTimezone validates an IANA timezone name
func (fv *FluentValidator) RequireTimezone(value, name string) *FluentValidator {
	if err := fv.validate.Var(value, "required,timezone"); err != nil {
		fv.addError(name, "timezone", value,
			fmt.Sprintf("%s %q is not a valid IANA timezone (use a name such as \"America/Los_Angeles\" or \"UTC\")", name, value))
	}
	return fv
}

// Validate runs a custom validation function
func (fv *FluentValidator) Validate(name string, fn func() error) *FluentValidator {
	if err := fn(); err != nil {
		fv.addError(name, "custom", "", err.Error())
	}
	return fv
}

// Addf records a failure directly
func (fv *FluentValidator) Addf(name, format string, args ...interface{}) *FluentValidator {
	fv.addError(name, "custom", "", fmt.Sprintf(format, args...))
	return fv
}

// HasErrors returns true if there are validation errors
func (fv *FluentValidator) HasErrors() bool {
	return len(fv.errors) > 0
}

// Errors returns the structured errors collected so far
func (fv *FluentValidator) Errors() []ValidationError {
	return fv.errors
}

// Messages returns the human-readable messages in the order they were recorded
func (fv *FluentValidator) Messages() []string {
	messages := make([]string, len(fv.errors))
	for i, e := range fv.errors {
		messages[i] = e.Message
	}
	return messages
}

// Error returns the validation error or nil if there are no errors
func (fv *FluentValidator) Error() error {
	if !fv.HasErrors() {
		return nil
	}
	return errors.ValidationErrors(fv.Messages())
}

// GetValidationResult returns structured validation results
func (fv *FluentValidator) GetValidationResult() *ValidationResult {
	return &ValidationResult{
		Valid:  !fv.HasErrors(),
		Errors: fv.Messages(),
	}
}

func (fv *FluentValidator) addError(field, tag, value, message string) {
	fv.errors = append(fv.errors, ValidationError{
		Field:   field,
		Tag:     tag,
		Value:   value,
		Message: message,
	})
}
