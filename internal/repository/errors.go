package repository

import (
	"errors"
	"net/http"

	"github.com/go-kivik/kivik/v4"
)

var (
	ErrNotFound = errors.New("document not found")
	// ErrConflict means the document changed between read and write.
	ErrConflict = errors.New("document update conflict")
	// ErrDuplicate means a unique username or email is already claimed.
	ErrDuplicate = errors.New("unique value already taken")
	// ErrTokenMismatch means the stored refresh token is not the presented one.
	ErrTokenMismatch = errors.New("refresh token does not match stored value")
)

func isNotFound(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusNotFound
}

func isConflict(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusConflict
}

// DuplicateError names the field whose unique claim collided.
type DuplicateError struct {
	Field string
}

func (e *DuplicateError) Error() string {
	return e.Field + " already taken"
}

func (e *DuplicateError) Is(target error) bool {
	return target == ErrDuplicate
}

// CreateDB answers 412 when another instance created the database first.
func isPreconditionFailed(err error) bool {
	return kivik.HTTPStatus(err) == http.StatusPreconditionFailed
}
