package manager

import (
	"errors"
	"fmt"
)

// duplicateModelError is returned by Save when the name is already taken.
type duplicateModelError struct{ name string }

func (e duplicateModelError) Error() string {
	return fmt.Sprintf("Model with name '%s' already exists", e.name)
}

func ErrDuplicateModel(name string) error { return duplicateModelError{name: name} }

// IsDuplicateModel reports whether err indicates a name collision (409).
func IsDuplicateModel(err error) bool {
	var e duplicateModelError
	return errors.As(err, &e)
}

type modelNotFoundError struct{ name string }

func (e modelNotFoundError) Error() string { return fmt.Sprintf("Model '%s' not found", e.name) }

// ErrModelNotFound returns an error for a name absent from every tier.
func ErrModelNotFound(name string) error { return modelNotFoundError{name: name} }

// IsModelNotFound reports whether the error indicates a missing model.
func IsModelNotFound(err error) bool {
	var e modelNotFoundError
	return errors.As(err, &e)
}

// invalidNameError rejects names that cannot be used as a file name and
// object key.
type invalidNameError struct{ name string }

func (e invalidNameError) Error() string {
	return fmt.Sprintf("invalid model name %q: use 1-128 letters, digits, '.', '_' or '-', starting with a letter or digit", e.name)
}

func ErrInvalidName(name string) error { return invalidNameError{name: name} }

func IsInvalidName(err error) bool {
	var e invalidNameError
	return errors.As(err, &e)
}

// ValidateName reports whether name can be stored.
func ValidateName(name string) error {
	if !validName.MatchString(name) {
		return ErrInvalidName(name)
	}
	return nil
}
