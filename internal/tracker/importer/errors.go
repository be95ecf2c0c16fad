package importer

import (
	"errors"
	"fmt"
	"net/http"
)

// NotFoundError aborts an import because something it needs does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ConflictError aborts an import whose payload cannot be processed as a
// whole, e.g. because it is empty, too large or clashes with stored data.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string { return e.Message }

// ForbiddenError aborts an import the acting user may not run.
type ForbiddenError struct {
	Message string
}

func (e *ForbiddenError) Error() string { return e.Message }

// ErrorStatus maps an import error to an HTTP status code.
func ErrorStatus(err error) int {
	var (
		notFound  *NotFoundError
		conflict  *ConflictError
		forbidden *ForbiddenError
	)
	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &forbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
