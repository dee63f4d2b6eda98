package tools

import (
	"errors"
	"reflect"
)

// FromError converts a failed call into an error result. Errors exposing an
// HTTP status become HTTPError results with that status, ErrNoData becomes
// NoData, errors naming their own kind keep it, and anything else is named
// after the type of the innermost error.
func FromError(toolName string, err error) *Result {
	var statusErr interface{ HTTPStatus() int }
	if errors.As(err, &statusErr) {
		return Error(toolName, KindHTTPError, err.Error(), statusErr.HTTPStatus())
	}
	if errors.Is(err, ErrNoData) {
		return Error(toolName, KindNoData, err.Error(), 0)
	}
	var kinded interface{ ErrorType() string }
	if errors.As(err, &kinded) {
		return Error(toolName, kinded.ErrorType(), err.Error(), 0)
	}
	return Error(toolName, typeName(err), err.Error(), 0)
}

func typeName(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	t := reflect.TypeOf(err)
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" || t.Name() == "errorString" {
		return "Error"
	}
	return t.Name()
}
