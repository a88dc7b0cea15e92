// Package judgeerr holds the error taxonomy shared by every judging stage.
//
// Program caused failures (compile errors, runtime crashes, time limits) are not
// errors: they are represented inside results and verdicts. Only failures that
// must abort a run before or around execution are modelled here.
package judgeerr

import (
	"fmt"

	"github.com/pkg/errors"
)

// Category is the generic reason reported to the caller when a request is
// rejected. It deliberately never carries the matched keyword or pattern.
type Category string

const (
	CategorySizeLimit          Category = "size_limit"
	CategoryTestCaseLimit      Category = "test_case_limit"
	CategoryMalformedTestCase  Category = "malformed_test_case"
	CategoryForbiddenConstruct Category = "forbidden_construct"
	CategoryUnsupportedType    Category = "unsupported_type"
)

// ValidationError is returned when the input is rejected before any sandbox
// is created.
type ValidationError struct {
	Category Category
	Message  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed (%s): %s", e.Category, e.Message)
}

func NewValidationError(category Category, format string, args ...any) *ValidationError {
	return &ValidationError{Category: category, Message: fmt.Sprintf(format, args...)}
}

// UnsupportedTypeError is returned by the marshaler and the harness generator
// when a type tag has no code branch.
type UnsupportedTypeError struct {
	Type string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("unsupported type %q", e.Type)
}

// InfrastructureError means the sandbox could not be provisioned. It is fatal
// to the run and must never be downgraded to a test failure.
type InfrastructureError struct {
	Op  string
	Err error
}

func (e *InfrastructureError) Error() string {
	return fmt.Sprintf("sandbox infrastructure failure during %s: %v", e.Op, e.Err)
}

func (e *InfrastructureError) Unwrap() error { return e.Err }

func NewInfrastructureError(op string, err error) *InfrastructureError {
	return &InfrastructureError{Op: op, Err: err}
}

// IsValidation reports whether err (or anything it wraps) is a validation
// failure, unsupported types included.
func IsValidation(err error) bool {
	var validationErr *ValidationError
	var typeErr *UnsupportedTypeError

	return errors.As(err, &validationErr) || errors.As(err, &typeErr)
}

// IsInfrastructure reports whether err wraps an InfrastructureError.
func IsInfrastructure(err error) bool {
	var infraErr *InfrastructureError
	return errors.As(err, &infraErr)
}
