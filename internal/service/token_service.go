package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"videotube-server/internal/domain"
	"videotube-server/internal/repository"
	"videotube-server/pkg/jwt"

	"go.uber.org/zap"
)

type TokenConfig struct {
	AccessSecret  string
	AccessTTL     time.Duration
	RefreshSecret string
	RefreshTTL    time.Duration
}

// TokenService issues and verifies session tokens. The refresh token is
// additionally bound to the single value stored on the account, which is how
// rotation and logout revoke older refresh tokens.
type TokenService struct {
	accountRepo repository.AccountRepository
	cfg         TokenConfig
	logger      *zap.Logger
}

func NewTokenService(accountRepo repository.AccountRepository, cfg TokenConfig, logger *zap.Logger) *TokenService {
	return &TokenService{
		accountRepo: accountRepo,
		cfg:         cfg,
		logger:      logger.Named("token_service"),
	}
}

func (s *TokenService) AccessTTL() time.Duration {
	return s.cfg.AccessTTL
}

func (s *TokenService) RefreshTTL() time.Duration {
	return s.cfg.RefreshTTL
}

func (s *TokenService) IssueAccessToken(accountID string) (string, error) {
	return jwt.GenerateToken(accountID, s.cfg.AccessTTL, s.cfg.AccessSecret)
}

func (s *TokenService) IssueRefreshToken(accountID string) (string, error) {
	return jwt.GenerateRefreshToken(accountID, s.cfg.RefreshTTL, s.cfg.RefreshSecret)
}

// VerifyAccessToken checks signature, expiry and token type only.
func (s *TokenService) VerifyAccessToken(token string) (string, error) {
	claims, err := jwt.ValidateTokenType(token, s.cfg.AccessSecret, jwt.TypeAccess)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.UserID, nil
}

// VerifyRefreshToken checks signature, expiry and token type. Callers must
// still compare the token to the stored value before trusting it.
func (s *TokenService) VerifyRefreshToken(token string) (string, error) {
	claims, err := jwt.ValidateTokenType(token, s.cfg.RefreshSecret, jwt.TypeRefresh)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims.UserID, nil
}

// IssueTokenPair signs a new pair and stores the refresh token on the account.
// The stored value changes in a single write, so a failure leaves the previous
// refresh token in place.
func (s *TokenService) IssueTokenPair(ctx context.Context, accountID string) (*domain.TokenPair, error) {
	pair, err := s.sign(accountID)
	if err != nil {
		return nil, err
	}

	if err := s.accountRepo.SetRefreshToken(ctx, accountID, pair.RefreshToken); err != nil {
		s.logger.Error("failed to persist refresh token",
			zap.String("account_id", accountID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("%w: %v", ErrTokenIssuanceFailed, err)
	}

	return pair, nil
}

// RotateTokenPair exchanges a current refresh token for a new pair. The
// presented token must equal the stored one, and the swap is conditional on
// it still being stored, so of two concurrent rotations with the same token
// only one can succeed.
func (s *TokenService) RotateTokenPair(ctx context.Context, presented string) (string, *domain.TokenPair, error) {
	if presented == "" {
		return "", nil, ErrUnauthorized
	}

	accountID, err := s.VerifyRefreshToken(presented)
	if err != nil {
		return "", nil, err
	}

	account, err := s.accountRepo.FindByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return "", nil, ErrInvalidToken
		}
		return "", nil, fmt.Errorf("failed to load account: %w", err)
	}

	if account.RefreshToken == "" || account.RefreshToken != presented {
		s.logger.Warn("refresh token reuse rejected", zap.String("account_id", accountID))
		return "", nil, ErrInvalidToken
	}

	pair, err := s.sign(accountID)
	if err != nil {
		return "", nil, err
	}

	if err := s.accountRepo.SwapRefreshToken(ctx, accountID, presented, pair.RefreshToken); err != nil {
		if errors.Is(err, repository.ErrTokenMismatch) || errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("concurrent refresh lost the swap", zap.String("account_id", accountID))
			return "", nil, ErrInvalidToken
		}
		return "", nil, fmt.Errorf("%w: %v", ErrTokenIssuanceFailed, err)
	}

	return accountID, pair, nil
}

// RevokeRefreshToken clears the stored refresh token, invalidating every
// outstanding refresh token for the account.
func (s *TokenService) RevokeRefreshToken(ctx context.Context, accountID string) error {
	if err := s.accountRepo.SetRefreshToken(ctx, accountID, ""); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *TokenService) sign(accountID string) (*domain.TokenPair, error) {
	accessToken, err := s.IssueAccessToken(accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenIssuanceFailed, err)
	}

	refreshToken, err := s.IssueRefreshToken(accountID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenIssuanceFailed, err)
	}

	return &domain.TokenPair{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	}, nil
}
