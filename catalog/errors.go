package catalog

import (
	"errors"
	"net/http"
	"plugin-store/orm"
)

var (
	ErrVersionExists = errors.New("version already exists")
	ErrInvalidInput  = errors.New("invalid input")
)

// ServiceError is the public-facing failure of a catalog operation. Code is
// the HTTP status the API answers with.
type ServiceError struct {
	Code    int
	Message string
	Inner   error
}

func (e *ServiceError) Error() string {
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Inner
}

// wrapServiceError converts repository errors to service errors
func wrapServiceError(err error, operation string) error {
	if err == nil {
		return nil
	}

	var serviceErr *ServiceError
	if errors.As(err, &serviceErr) {
		return err
	}

	if errors.Is(err, ErrVersionExists) {
		return newVersionExistsError()
	}

	var notFoundErr *orm.NotFoundError
	if errors.As(err, &notFoundErr) {
		return &ServiceError{
			Code:    http.StatusNotFound,
			Message: "Not found during " + operation,
			Inner:   err,
		}
	}

	// a unique constraint violation aborts the transaction like any storage failure
	var conflictErr *orm.ConflictError
	if errors.As(err, &conflictErr) {
		return &ServiceError{
			Code:    http.StatusInternalServerError,
			Message: "Conflicting data during " + operation,
			Inner:   err,
		}
	}

	var badInputErr *orm.BadInputError
	if errors.As(err, &badInputErr) {
		return &ServiceError{
			Code:    http.StatusBadRequest,
			Message: badInputErr.Reason,
			Inner:   err,
		}
	}

	return &ServiceError{
		Code:    http.StatusInternalServerError,
		Message: "Internal server error during " + operation,
		Inner:   err,
	}
}

func newVersionExistsError() error {
	return &ServiceError{
		Code:    http.StatusBadRequest,
		Message: "Version already exists",
		Inner:   ErrVersionExists,
	}
}

func newInvalidInputError(message string) error {
	return &ServiceError{
		Code:    http.StatusBadRequest,
		Message: message,
		Inner:   ErrInvalidInput,
	}
}

func newNotFoundError(message string, inner error) error {
	return &ServiceError{
		Code:    http.StatusNotFound,
		Message: message,
		Inner:   inner,
	}
}
