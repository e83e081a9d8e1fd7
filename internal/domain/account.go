package domain

import (
	"time"

	"videotube-server/pkg/hash"
)

// Account is the service-side view of a stored account. The password hash and
// refresh token never leave the process: both are excluded from JSON.
type Account struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	FullName     string    `json:"fullname"`
	Avatar       string    `json:"avatar"`
	CoverImage   string    `json:"coverImage"`
	WatchHistory []string  `json:"watchHistory"`
	PasswordHash string    `json:"-"`
	RefreshToken string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func (a *Account) CheckPassword(plain string) bool {
	return hash.Matches(a.PasswordHash, plain)
}

// Sanitized returns a copy without credential material, for values that were
// loaded with the full document.
func (a *Account) Sanitized() *Account {
	c := *a
	c.PasswordHash = ""
	c.RefreshToken = ""
	return &c
}

// AccountPatch lists the fields an update may touch; nil means unchanged.
type AccountPatch struct {
	FullName   *string
	Email      *string
	Avatar     *string
	CoverImage *string
}

func (p AccountPatch) IsEmpty() bool {
	return p.FullName == nil && p.Email == nil && p.Avatar == nil && p.CoverImage == nil
}

type RegisterRequest struct {
	Username string `json:"username" validate:"required,notblank,max=30"`
	Email    string `json:"email" validate:"required,notblank,email"`
	FullName string `json:"fullname" validate:"required,notblank,max=100"`
	Password string `json:"password" validate:"required,notblank,max=72"`
}

type LoginRequest struct {
	Username string `json:"username" validate:"required_without=Email"`
	Email    string `json:"email" validate:"required_without=Username,omitempty,email"`
	Password string `json:"password" validate:"required"`
}

type LoginResponse struct {
	User         *Account `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
}

type RefreshTokenRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type ChangePasswordRequest struct {
	OldPassword string `json:"oldPassword" validate:"required"`
	NewPassword string `json:"newPassword" validate:"required,notblank,max=72"`
}

type UpdateDetailsRequest struct {
	FullName string `json:"fullname" validate:"required_without=Email,omitempty,notblank,max=100"`
	Email    string `json:"email" validate:"required_without=FullName,omitempty,email"`
}
