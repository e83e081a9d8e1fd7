package handler

import (
	"errors"
	"net/http"

	"videotube-server/internal/service"
	"videotube-server/pkg/response"

	"go.uber.org/zap"
)

// writeServiceError maps service errors onto the error envelope. Anything
// unrecognised is logged and reported as a bare 500.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		response.BadRequest(w, "Validation failed", verr.Fields...)
	case errors.Is(err, service.ErrConflict):
		response.Conflict(w, "User with email or username already exists")
	case errors.Is(err, service.ErrNotFound):
		response.NotFound(w, "User does not exist")
	case errors.Is(err, service.ErrChannelNotFound):
		response.NotFound(w, "Channel does not exist")
	case errors.Is(err, service.ErrNotSubscribed):
		response.NotFound(w, "Not subscribed to this channel")
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Unauthorized(w, "Invalid user credentials")
	case errors.Is(err, service.ErrUnauthorized), errors.Is(err, service.ErrInvalidToken):
		response.Unauthorized(w, "Unauthorized request")
	case errors.Is(err, service.ErrMediaUpload):
		logger.Error("media upload failed", zap.Error(err))
		response.InternalError(w, "Error while uploading file")
	case errors.Is(err, service.ErrTokenIssuanceFailed):
		logger.Error("token issuance failed", zap.Error(err))
		response.InternalError(w, "Something went wrong while generating tokens")
	default:
		logger.Error("request failed", zap.Error(err))
		response.InternalError(w, "Internal server error")
	}
}
