package service

import (
	"errors"
	"fmt"
	"strings"

	"videotube-server/internal/media"
)

var (
	ErrValidation          = errors.New("validation failed")
	ErrConflict            = errors.New("user with email or username already exists")
	ErrNotFound            = errors.New("user does not exist")
	ErrChannelNotFound     = errors.New("channel does not exist")
	ErrNotSubscribed       = errors.New("not subscribed to this channel")
	ErrUnauthorized        = errors.New("unauthorized request")
	ErrInvalidCredentials  = errors.New("invalid user credentials")
	ErrInvalidToken        = errors.New("invalid or expired token")
	ErrTokenIssuanceFailed = errors.New("something went wrong while generating tokens")
	ErrMediaUpload         = errors.New("error while uploading file")
	ErrInternal            = errors.New("internal server error")
)

// ValidationError carries one message per offending field. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Fields []string
}

func NewValidationError(fields ...string) *ValidationError {
	return &ValidationError{Fields: fields}
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return ErrValidation.Error()
	}
	return ErrValidation.Error() + ": " + strings.Join(e.Fields, "; ")
}

func (e *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// uploadError separates files the media store refused from failures of the
// store itself.
func uploadError(field string, err error) error {
	switch {
	case errors.Is(err, media.ErrUnsupportedType):
		return NewValidationError(field + " must be a jpeg, png, gif or webp image")
	case errors.Is(err, media.ErrEmptyPath):
		return NewValidationError(field + " file is missing")
	}
	return fmt.Errorf("%w: %s: %v", ErrMediaUpload, field, err)
}
