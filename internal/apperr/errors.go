package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrValidation    = errors.New("validation failed")
	ErrTransient     = errors.New("request failed")
	ErrPollTimeout   = errors.New("poll timed out")
)

// ValidationError lists the fields that failed validation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+e.Fields[k])
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Is makes errors.Is(err, ErrValidation) hold for every ValidationError.
func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// Validation converts an ozzo-validation result into a *ValidationError.
// It returns nil when err is nil and passes internal rule errors through.
func Validation(err error) error {
	if err == nil {
		return nil
	}
	var verrs validation.Errors
	if errors.As(err, &verrs) {
		fields := make(map[string]string, len(verrs))
		for k, v := range verrs {
			if v != nil {
				fields[k] = v.Error()
			}
		}
		return &ValidationError{Fields: fields}
	}
	var ierr validation.InternalError
	if errors.As(err, &ierr) {
		return err
	}
	return &ValidationError{Fields: map[string]string{"_": err.Error()}}
}

// Transient marks a store or network failure the user may retry.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %w", ErrTransient, err)
}
