package estimator

import (
	"errors"
	"fmt"
)

// notTrainedError signals Predict on a model that was never fitted.
type notTrainedError struct{ kind string }

func (e notTrainedError) Error() string {
	return e.kind + ": model must be trained before making predictions"
}

// ErrNotTrained constructs the error returned by Predict before Train.
func ErrNotTrained(kind string) error { return notTrainedError{kind: kind} }

// IsNotTrained reports whether err (or anything it wraps) is a not-trained error.
func IsNotTrained(err error) bool {
	var e notTrainedError
	return errors.As(err, &e)
}

// invalidInputError reports data or hyperparameters the estimator rejects.
type invalidInputError struct{ msg string }

func (e invalidInputError) Error() string { return e.msg }

func invalidInputf(format string, args ...any) error {
	return invalidInputError{msg: fmt.Sprintf(format, args...)}
}

// IsInvalidInput reports whether err is an estimator rejection of its inputs
// (malformed arrays, unusable hyperparameter values).
func IsInvalidInput(err error) bool {
	var e invalidInputError
	return errors.As(err, &e)
}
