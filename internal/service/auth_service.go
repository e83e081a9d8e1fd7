package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"videotube-server/internal/domain"
	"videotube-server/internal/media"
	"videotube-server/internal/repository"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MediaStore uploads a local file and removes it afterwards.
type MediaStore interface {
	Upload(ctx context.Context, localPath string) (*media.Asset, error)
}

type AuthService struct {
	accountRepo repository.AccountRepository
	tokens      *TokenService
	media       MediaStore
	logger      *zap.Logger
}

func NewAuthService(accountRepo repository.AccountRepository, tokens *TokenService, store MediaStore, logger *zap.Logger) *AuthService {
	return &AuthService{
		accountRepo: accountRepo,
		tokens:      tokens,
		media:       store,
		logger:      logger.Named("auth_service"),
	}
}

// RegisterInput is a validated registration plus the staged image files.
// CoverPath may be empty.
type RegisterInput struct {
	domain.RegisterRequest
	AvatarPath string
	CoverPath  string
}

func (s *AuthService) Register(ctx context.Context, in *RegisterInput) (*domain.Account, error) {
	username := strings.ToLower(strings.TrimSpace(in.Username))
	email := strings.ToLower(strings.TrimSpace(in.Email))
	fullName := strings.TrimSpace(in.FullName)

	if username == "" || email == "" || fullName == "" || strings.TrimSpace(in.Password) == "" {
		return nil, NewValidationError("all fields are required")
	}

	existing, err := s.accountRepo.FindByUsernameOrEmail(ctx, username, email)
	if err == nil && existing != nil {
		return nil, ErrConflict
	}
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("failed to check existing account: %w", err)
	}

	if in.AvatarPath == "" {
		return nil, NewValidationError("avatar file is required")
	}

	avatar, cover, err := s.uploadImages(ctx, in.AvatarPath, in.CoverPath)
	if err != nil {
		return nil, err
	}

	account := &domain.Account{
		ID:         uuid.New().String(),
		Username:   username,
		Email:      email,
		FullName:   fullName,
		Avatar:     avatar,
		CoverImage: cover,
	}

	if err := s.accountRepo.Create(ctx, account, in.Password); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	created, err := s.accountRepo.FindPublicByID(ctx, account.ID)
	if err != nil {
		s.logger.Error("created account could not be reloaded",
			zap.String("account_id", account.ID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: something went wrong while registering the user", ErrInternal)
	}

	s.logger.Info("account registered",
		zap.String("account_id", created.ID),
		zap.String("username", created.Username),
	)

	return created, nil
}

// uploadImages uploads the avatar and the optional cover image in parallel.
// A failed avatar fails registration. A cover the store rejects as not an
// image fails it too; a cover lost to a store outage is logged and dropped.
func (s *AuthService) uploadImages(ctx context.Context, avatarPath, coverPath string) (string, string, error) {
	var avatarURL, coverURL string

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		asset, err := s.media.Upload(gctx, avatarPath)
		if err != nil {
			return uploadError("avatar", err)
		}
		avatarURL = asset.URL
		return nil
	})
	if coverPath != "" {
		g.Go(func() error {
			asset, err := s.media.Upload(gctx, coverPath)
			if err != nil {
				if errors.Is(err, media.ErrUnsupportedType) {
					return uploadError("coverImage", err)
				}
				s.logger.Warn("cover image upload failed", zap.Error(err))
				return nil
			}
			coverURL = asset.URL
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return "", "", err
	}
	return avatarURL, coverURL, nil
}

func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResponse, error) {
	username := strings.ToLower(strings.TrimSpace(req.Username))
	email := strings.ToLower(strings.TrimSpace(req.Email))

	if username == "" && email == "" {
		return nil, NewValidationError("username or email is required")
	}
	if req.Password == "" {
		return nil, NewValidationError("password is required")
	}

	account, err := s.accountRepo.FindByUsernameOrEmail(ctx, username, email)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find account: %w", err)
	}

	if !account.CheckPassword(req.Password) {
		s.logger.Info("login rejected", zap.String("account_id", account.ID))
		return nil, ErrInvalidCredentials
	}

	pair, err := s.tokens.IssueTokenPair(ctx, account.ID)
	if err != nil {
		return nil, err
	}

	return &domain.LoginResponse{
		User:         account.Sanitized(),
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
	}, nil
}

func (s *AuthService) Logout(ctx context.Context, accountID string) error {
	return s.tokens.RevokeRefreshToken(ctx, accountID)
}

func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*domain.TokenPair, error) {
	accountID, pair, err := s.tokens.RotateTokenPair(ctx, refreshToken)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("tokens rotated", zap.String("account_id", accountID))
	return pair, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, accountID string, req *domain.ChangePasswordRequest) error {
	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to find account: %w", err)
	}

	if !account.CheckPassword(req.OldPassword) {
		return ErrInvalidCredentials
	}

	if err := s.accountRepo.SetPassword(ctx, accountID, req.NewPassword); err != nil {
		return fmt.Errorf("failed to change password: %w", err)
	}

	return nil
}
