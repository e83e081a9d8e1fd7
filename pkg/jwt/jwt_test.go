package jwt

import (
	"errors"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

func TestGenerateToken(t *testing.T) {
	tests := []struct {
		name       string
		userID     string
		expiration time.Duration
		secret     string
		wantErr    bool
	}{
		{
			name:       "valid access token",
			userID:     "account-123",
			expiration: 15 * time.Minute,
			secret:     "test-secret-key-32-characters!",
		},
		{
			name:       "one day expiration",
			userID:     "account-789",
			expiration: 24 * time.Hour,
			secret:     "test-secret",
		},
		{
			name:       "empty secret",
			userID:     "account-456",
			expiration: time.Minute,
			secret:     "",
			wantErr:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := GenerateToken(tt.userID, tt.expiration, tt.secret)

			if tt.wantErr {
				if err == nil {
					t.Error("GenerateToken() expected error but got none")
				}
				return
			}

			if err != nil {
				t.Errorf("GenerateToken() error = %v", err)
				return
			}

			if len(token) < 100 {
				t.Errorf("GenerateToken() token too short, len = %d", len(token))
			}
		})
	}
}

func TestGenerateTokenUnique(t *testing.T) {
	first, err := GenerateRefreshToken("same-account", time.Hour, "secret")
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}
	second, err := GenerateRefreshToken("same-account", time.Hour, "secret")
	if err != nil {
		t.Fatalf("GenerateRefreshToken() error = %v", err)
	}

	if first == second {
		t.Error("two refresh tokens issued in the same second must differ")
	}
}

func TestValidateToken(t *testing.T) {
	userID := "test-account-id"
	secret := "validation-secret-key-32-chars"

	validToken, _ := GenerateToken(userID, time.Hour, secret)
	expiredToken, _ := GenerateToken(userID, -time.Hour, secret)

	tests := []struct {
		name    string
		token   string
		secret  string
		wantErr error
		checkID bool
	}{
		{
			name:    "valid token",
			token:   validToken,
			secret:  secret,
			checkID: true,
		},
		{
			name:    "expired token",
			token:   expiredToken,
			secret:  secret,
			wantErr: ErrExpiredToken,
		},
		{
			name:    "wrong secret",
			token:   validToken,
			secret:  "wrong-secret",
			wantErr: ErrInvalidToken,
		},
		{
			name:    "malformed token",
			token:   "invalid.token.format",
			secret:  secret,
			wantErr: ErrInvalidToken,
		},
		{
			name:    "empty token",
			token:   "",
			secret:  secret,
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.token, tt.secret)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("ValidateToken() error = %v, want %v", err, tt.wantErr)
				}
				return
			}

			if err != nil {
				t.Fatalf("ValidateToken() error = %v", err)
			}

			if tt.checkID && claims.UserID != userID {
				t.Errorf("ValidateToken() userID = %v, want %v", claims.UserID, userID)
			}
		})
	}
}

func TestValidateTokenRejectsOtherAlgorithms(t *testing.T) {
	secret := "alg-test-secret"
	claims := Claims{
		UserID: "account-1",
		Type:   TypeAccess,
		RegisteredClaims: jwtlib.RegisteredClaims{
			ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	token, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS512, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("SignedString() error = %v", err)
	}

	if _, err := ValidateToken(token, secret); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("ValidateToken() error = %v, want ErrInvalidToken", err)
	}
}

func TestValidateTokenType(t *testing.T) {
	secret := "type-test-secret"

	access, _ := GenerateToken("account-1", time.Hour, secret)
	refresh, _ := GenerateRefreshToken("account-1", time.Hour, secret)

	if _, err := ValidateTokenType(access, secret, TypeAccess); err != nil {
		t.Errorf("access token rejected as access: %v", err)
	}
	if _, err := ValidateTokenType(refresh, secret, TypeRefresh); err != nil {
		t.Errorf("refresh token rejected as refresh: %v", err)
	}
	if _, err := ValidateTokenType(refresh, secret, TypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("refresh token accepted as access token, err = %v", err)
	}
}

func TestClaimsTimestamps(t *testing.T) {
	userID := "timestamp-test-account"
	secret := "timestamp-test-secret"
	expiration := time.Hour

	before := time.Now().Add(-time.Second)
	token, err := GenerateToken(userID, expiration, secret)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	after := time.Now().Add(time.Second)

	claims, err := ValidateToken(token, secret)
	if err != nil {
		t.Fatalf("ValidateToken() error = %v", err)
	}

	if claims.Subject != userID {
		t.Errorf("Subject = %q, want %q", claims.Subject, userID)
	}

	if claims.ID == "" {
		t.Error("ID (jti) is empty")
	}

	issuedAt := claims.IssuedAt.Time
	if issuedAt.Before(before) || issuedAt.After(after) {
		t.Errorf("IssuedAt out of range: got %v, range [%v, %v]", issuedAt, before, after)
	}

	expiresAt := claims.ExpiresAt.Time
	if expiresAt.Before(before.Add(expiration)) || expiresAt.After(after.Add(expiration)) {
		t.Errorf("ExpiresAt out of range: got %v", expiresAt)
	}
}

func BenchmarkValidateToken(b *testing.B) {
	secret := "benchmark-secret-key"
	token, _ := GenerateToken("benchmark-account", 15*time.Minute, secret)

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := ValidateToken(token, secret); err != nil {
			b.Fatalf("ValidateToken() error = %v", err)
		}
	}
}
