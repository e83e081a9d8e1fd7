package middleware

import (
	"context"
	"net/http"
	"strings"

	"videotube-server/internal/domain"
	"videotube-server/pkg/response"
)

type contextKey string

const (
	UserIDKey  contextKey = "userID"
	AccountKey contextKey = "account"
)

const (
	AccessTokenCookie  = "accessToken"
	RefreshTokenCookie = "refreshToken"
)

type TokenVerifier interface {
	VerifyAccessToken(token string) (string, error)
}

// AccountLoader loads an account without credential fields.
type AccountLoader interface {
	FindPublicByID(ctx context.Context, id string) (*domain.Account, error)
}

// AuthMiddleware resolves the access token from the accessToken cookie or the
// Authorization header, in that order, and rejects the request when the token
// is missing, invalid or belongs to an account that no longer exists.
func AuthMiddleware(tokens TokenVerifier, accounts AccountLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			account, ok := authenticate(r, tokens, accounts)
			if !ok {
				response.Unauthorized(w, "Unauthorized request")
				return
			}

			next.ServeHTTP(w, r.WithContext(withAccount(r.Context(), account)))
		})
	}
}

// OptionalAuth attaches the account when a valid token is present and lets
// anonymous requests through unchanged.
func OptionalAuth(tokens TokenVerifier, accounts AccountLoader) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if account, ok := authenticate(r, tokens, accounts); ok {
				r = r.WithContext(withAccount(r.Context(), account))
			}
			next.ServeHTTP(w, r)
		})
	}
}

func authenticate(r *http.Request, tokens TokenVerifier, accounts AccountLoader) (*domain.Account, bool) {
	token := extractToken(r)
	if token == "" {
		return nil, false
	}

	accountID, err := tokens.VerifyAccessToken(token)
	if err != nil {
		return nil, false
	}

	account, err := accounts.FindPublicByID(r.Context(), accountID)
	if err != nil || account == nil {
		return nil, false
	}

	return account, true
}

func extractToken(r *http.Request) string {
	if c, err := r.Cookie(AccessTokenCookie); err == nil && c.Value != "" {
		return c.Value
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

func withAccount(ctx context.Context, account *domain.Account) context.Context {
	ctx = context.WithValue(ctx, UserIDKey, account.ID)
	return context.WithValue(ctx, AccountKey, account)
}

func GetUserID(r *http.Request) string {
	userID, ok := r.Context().Value(UserIDKey).(string)
	if !ok {
		return ""
	}
	return userID
}

func GetAccount(r *http.Request) *domain.Account {
	account, _ := r.Context().Value(AccountKey).(*domain.Account)
	return account
}
