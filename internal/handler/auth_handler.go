package handler

import (
	"net/http"

	"videotube-server/internal/domain"
	"videotube-server/internal/media"
	"videotube-server/internal/middleware"
	"videotube-server/internal/service"
	"videotube-server/pkg/response"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

type AuthHandler struct {
	authService  *service.AuthService
	tokenService *service.TokenService
	cookies      CookieOptions
	uploads      UploadOptions
	validator    *validator.Validate
	logger       *zap.Logger
}

func NewAuthHandler(
	authService *service.AuthService,
	tokenService *service.TokenService,
	cookies CookieOptions,
	uploads UploadOptions,
	logger *zap.Logger,
) *AuthHandler {
	return &AuthHandler{
		authService:  authService,
		tokenService: tokenService,
		cookies:      cookies,
		uploads:      uploads,
		validator:    newValidator(),
		logger:       logger.Named("auth_handler"),
	}
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if err := h.uploads.parseMultipart(w, r); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	req := domain.RegisterRequest{
		Username: r.FormValue("username"),
		Email:    r.FormValue("email"),
		FullName: r.FormValue("fullname"),
		Password: r.FormValue("password"),
	}
	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, "All fields are required", validationMessages(err)...)
		return
	}

	avatarPath, err := h.uploads.stage(r, "avatar")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	defer media.Cleanup(avatarPath)

	coverPath, err := h.uploads.stage(r, "coverImage")
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	defer media.Cleanup(coverPath)

	account, err := h.authService.Register(r.Context(), &service.RegisterInput{
		RegisterRequest: req,
		AvatarPath:      avatarPath,
		CoverPath:       coverPath,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	registrationsTotal.Inc()
	response.Created(w, account, "User registered successfully")
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := decodeRequest(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, "Username or email is required", validationMessages(err)...)
		return
	}

	loginResp, err := h.authService.Login(r.Context(), &req)
	loginsTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.cookies.setSession(w,
		loginResp.AccessToken, h.tokenService.AccessTTL(),
		loginResp.RefreshToken, h.tokenService.RefreshTTL(),
	)
	response.Success(w, loginResp, "User logged in successfully")
}

func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if err := h.authService.Logout(r.Context(), middleware.GetUserID(r)); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.cookies.clearSession(w)
	response.Success(w, struct{}{}, "User logged out")
}

// Refresh takes the refresh token from its cookie, falling back to the body.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var token string
	if c, err := r.Cookie(middleware.RefreshTokenCookie); err == nil {
		token = c.Value
	}
	if token == "" {
		var req domain.RefreshTokenRequest
		if err := decodeRequest(r, &req); err == nil {
			token = req.RefreshToken
		}
	}

	if token == "" {
		refreshesTotal.WithLabelValues("missing").Inc()
		response.Unauthorized(w, "Unauthorized request")
		return
	}

	pair, err := h.authService.Refresh(r.Context(), token)
	refreshesTotal.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	h.cookies.setSession(w,
		pair.AccessToken, h.tokenService.AccessTTL(),
		pair.RefreshToken, h.tokenService.RefreshTTL(),
	)
	response.Success(w, pair, "Access token refreshed")
}

func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	var req domain.ChangePasswordRequest
	if err := decodeRequest(r, &req); err != nil {
		response.BadRequest(w, "Invalid request body")
		return
	}

	if err := h.validator.Struct(req); err != nil {
		response.BadRequest(w, "Validation failed", validationMessages(err)...)
		return
	}

	if err := h.authService.ChangePassword(r.Context(), middleware.GetUserID(r), &req); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	response.Success(w, struct{}{}, "Password changed successfully")
}
