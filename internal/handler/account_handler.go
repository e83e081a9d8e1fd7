package handler

import (
	"context"
	"net/http"

	"videotube-server/internal/domain"
	"videotube-server/internal/media"
	"videotube-server/internal/middleware"
	"videotube-server/internal/service"
	"videotube-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

type AccountHandler struct {
	accountService *service.AccountService
	uploads        UploadOptions
	validator      *validator.Validate
	logger         *zap.Logger
}

func NewAccountHandler(accountService *service.AccountService, uploads UploadOptions, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		uploads:        uploads,
		validator:      newValidator(),
		logger:         logger.Named("account_handler"),
	}
}

func (h *AccountHandler) CurrentUser(w http.ResponseWriter, r *http.Request) {
	account := middleware.GetAccount(r)
	if account == nil {
		response.Unauthorized(w, "Unauthorized request")
		return
	}

	response.Success(w, account, "User fetched successfully")
}

func (h *AccountHandler) UpdateDetails(w http.ResponseWriter, r *http.Request) {
	var req domain.UpdateDetailsRequest
	if err := decodeRequest(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, "Validation failed", validationMessages(err)...)
		return
	}

	account, err := h.accountService.UpdateDetails(r.Context(), middleware.GetUserID(r), &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, account, "Account details updated successfully")
}

func (h *AccountHandler) UpdateAvatar(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "avatar", h.accountService.UpdateAvatar, "Avatar image updated successfully")
}

func (h *AccountHandler) UpdateCoverImage(w http.ResponseWriter, r *http.Request) {
	h.updateImage(w, r, "coverImage", h.accountService.UpdateCoverImage, "Cover image updated successfully")
}

type imageUpdater func(ctx context.Context, accountID, localPath string) (*domain.Account, error)

func (h *AccountHandler) updateImage(w http.ResponseWriter, r *http.Request, field string, update imageUpdater, message string) {
	if err := h.uploads.parseMultipart(w, r); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	localPath, err := h.uploads.stage(r, field)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	defer media.Cleanup(localPath)

	if localPath == "" {
		response.BadRequest(w, field+" file is missing")
		return
	}

	account, err := update(r.Context(), middleware.GetUserID(r), localPath)
	mediaUploadsTotal.WithLabelValues(field, outcome(err)).Inc()
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, account, message)
}

func (h *AccountHandler) ChannelProfile(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	profile, err := h.accountService.ChannelProfile(r.Context(), username, middleware.GetUserID(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, profile, "User channel fetched successfully")
}

func (h *AccountHandler) WatchHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := h.accountService.WatchHistory(r.Context(), middleware.GetUserID(r))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, entries, "Watch history fetched successfully")
}

func (h *AccountHandler) Subscribe(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["channelID"]

	sub, err := h.accountService.Subscribe(r.Context(), middleware.GetUserID(r), channelID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Created(w, sub, "Subscribed successfully")
}

func (h *AccountHandler) Unsubscribe(w http.ResponseWriter, r *http.Request) {
	channelID := mux.Vars(r)["channelID"]

	if err := h.accountService.Unsubscribe(r.Context(), middleware.GetUserID(r), channelID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, struct{}{}, "Unsubscribed successfully")
}
