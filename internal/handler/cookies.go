package handler

import (
	"net/http"
	"time"

	"videotube-server/internal/middleware"
)

type CookieOptions struct {
	Secure   bool
	Domain   string
	SameSite http.SameSite
}

func (o CookieOptions) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   o.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   o.Secure,
		SameSite: o.SameSite,
	}
}

func (o CookieOptions) setSession(w http.ResponseWriter, accessToken string, accessTTL time.Duration, refreshToken string, refreshTTL time.Duration) {
	http.SetCookie(w, o.cookie(middleware.AccessTokenCookie, accessToken, int(accessTTL.Seconds())))
	http.SetCookie(w, o.cookie(middleware.RefreshTokenCookie, refreshToken, int(refreshTTL.Seconds())))
}

// clearSession expires both cookies with the same attributes they were set with.
func (o CookieOptions) clearSession(w http.ResponseWriter) {
	http.SetCookie(w, o.cookie(middleware.AccessTokenCookie, "", -1))
	http.SetCookie(w, o.cookie(middleware.RefreshTokenCookie, "", -1))
}
