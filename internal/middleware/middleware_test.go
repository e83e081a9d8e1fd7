package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"videotube-server/internal/domain"
	"videotube-server/internal/ratelimit"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeVerifier struct {
	tokens map[string]string
}

func (f fakeVerifier) VerifyAccessToken(token string) (string, error) {
	if id, ok := f.tokens[token]; ok {
		return id, nil
	}
	return "", errors.New("invalid token")
}

type fakeLoader map[string]*domain.Account

func (f fakeLoader) FindPublicByID(ctx context.Context, id string) (*domain.Account, error) {
	if a, ok := f[id]; ok {
		return a, nil
	}
	return nil, errors.New("not found")
}

func echoAccount(w http.ResponseWriter, r *http.Request) {
	id := GetUserID(r)
	if account := GetAccount(r); account != nil && account.ID != id {
		http.Error(w, "context mismatch", http.StatusInternalServerError)
		return
	}
	w.Write([]byte(id))
}

func TestAuthMiddleware(t *testing.T) {
	verifier := fakeVerifier{tokens: map[string]string{
		"alice-token": "alice",
		"bob-token":   "bob",
		"ghost-token": "ghost",
	}}
	loader := fakeLoader{
		"alice": {ID: "alice", Username: "alice"},
		"bob":   {ID: "bob", Username: "bob"},
	}
	handler := AuthMiddleware(verifier, loader)(http.HandlerFunc(echoAccount))

	tests := []struct {
		name       string
		cookie     string
		header     string
		wantStatus int
		wantID     string
	}{
		{name: "cookie", cookie: "alice-token", wantStatus: http.StatusOK, wantID: "alice"},
		{name: "bearer header", header: "Bearer bob-token", wantStatus: http.StatusOK, wantID: "bob"},
		{name: "cookie wins over header", cookie: "alice-token", header: "Bearer bob-token", wantStatus: http.StatusOK, wantID: "alice"},
		{name: "missing", wantStatus: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic alice-token", wantStatus: http.StatusUnauthorized},
		{name: "invalid token", header: "Bearer forged", wantStatus: http.StatusUnauthorized},
		{name: "deleted account", cookie: "ghost-token", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil)
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: AccessTokenCookie, Value: tt.cookie})
			}
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantID, rec.Body.String())
				return
			}

			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, false, body["success"])
			assert.Nil(t, body["data"])
			assert.Equal(t, "Unauthorized request", body["message"])
		})
	}
}

func TestOptionalAuth(t *testing.T) {
	verifier := fakeVerifier{tokens: map[string]string{"alice-token": "alice"}}
	loader := fakeLoader{"alice": {ID: "alice"}}
	handler := OptionalAuth(verifier, loader)(http.HandlerFunc(echoAccount))

	tests := []struct {
		name   string
		header string
		wantID string
	}{
		{name: "anonymous", wantID: ""},
		{name: "invalid token is anonymous", header: "Bearer forged", wantID: ""},
		{name: "authenticated", header: "Bearer alice-token", wantID: "alice"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/channel/alice", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, tt.wantID, rec.Body.String())
		})
	}
}

type fakeLimiter struct {
	remaining int
	err       error
	keys      []string
}

func (f *fakeLimiter) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	f.keys = append(f.keys, key)
	if f.err != nil {
		return false, 0, f.err
	}
	if f.remaining <= 0 {
		return false, 1500 * time.Millisecond, nil
	}
	f.remaining--
	return true, 0, nil
}

func TestRateLimitMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	t.Run("blocks after limit", func(t *testing.T) {
		limiter := &fakeLimiter{remaining: 1}
		ips, err := NewIPResolver([]string{"10.0.0.0/8"})
		require.NoError(t, err)
		handler := RateLimitMiddleware(limiter, ips, zap.NewNop())(ok)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", nil)
		req.RemoteAddr = "10.0.0.2:40000"
		req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)

		rec = httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "2", rec.Header().Get("Retry-After"))
		assert.Equal(t, []string{"203.0.113.7", "203.0.113.7"}, limiter.keys)
	})

	t.Run("limiter failure lets request through", func(t *testing.T) {
		limiter := &fakeLimiter{err: errors.New("redis down")}
		handler := RateLimitMiddleware(limiter, nil, zap.NewNop())(ok)

		req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", nil)
		req.RemoteAddr = "198.51.100.4:51000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, []string{"198.51.100.4"}, limiter.keys)
	})

	t.Run("forwarded headers from untrusted peer are ignored", func(t *testing.T) {
		limiter := ratelimit.New(ratelimit.NewMemoryStore(), "login:", 2, time.Minute)
		ips, err := NewIPResolver([]string{"10.0.0.0/8"})
		require.NoError(t, err)
		handler := RateLimitMiddleware(limiter, ips, zap.NewNop())(ok)

		allowed := 0
		for i := 0; i < 50; i++ {
			req := httptest.NewRequest(http.MethodPost, "/api/v1/users/login", nil)
			req.RemoteAddr = "198.51.100.9:5000"
			req.Header.Set("X-Forwarded-For", fmt.Sprintf("203.0.113.%d", i))
			req.Header.Set("X-Real-IP", fmt.Sprintf("192.0.2.%d", i))
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code == http.StatusOK {
				allowed++
			}
		}
		assert.Equal(t, 2, allowed)
	})
}

func TestIPResolver(t *testing.T) {
	ips, err := NewIPResolver([]string{"10.0.0.0/8", " 192.168.1.5 ", ""})
	require.NoError(t, err)

	tests := []struct {
		name       string
		remoteAddr string
		xff        string
		xri        string
		want       string
	}{
		{name: "no proxy", remoteAddr: "198.51.100.1:1234", want: "198.51.100.1"},
		{name: "untrusted peer with xff", remoteAddr: "198.51.100.1:1234", xff: "203.0.113.5", want: "198.51.100.1"},
		{name: "untrusted peer with x-real-ip", remoteAddr: "198.51.100.1:1234", xri: "203.0.113.5", want: "198.51.100.1"},
		{name: "trusted cidr peer", remoteAddr: "10.1.2.3:80", xff: "203.0.113.5", want: "203.0.113.5"},
		{name: "trusted single address", remoteAddr: "192.168.1.5:80", xff: "203.0.113.6", want: "203.0.113.6"},
		{name: "spoofed leftmost entry", remoteAddr: "10.1.2.3:80", xff: "1.2.3.4, 203.0.113.5", want: "203.0.113.5"},
		{name: "chain of trusted proxies", remoteAddr: "10.1.2.3:80", xff: "203.0.113.5, 10.0.0.7", want: "203.0.113.5"},
		{name: "trusted peer with x-real-ip", remoteAddr: "10.1.2.3:80", xri: "203.0.113.8", want: "203.0.113.8"},
		{name: "trusted peer with garbage header", remoteAddr: "10.1.2.3:80", xff: "not-an-ip", want: "10.1.2.3"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, ips.ClientIP(req))
		})
	}

	t.Run("nil resolver uses peer", func(t *testing.T) {
		var none *IPResolver
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.2.3:80"
		req.Header.Set("X-Forwarded-For", "203.0.113.5")
		assert.Equal(t, "10.1.2.3", none.ClientIP(req))
	})

	t.Run("invalid proxy", func(t *testing.T) {
		_, err := NewIPResolver([]string{"10.0.0.0/99"})
		assert.Error(t, err)
		_, err = NewIPResolver([]string{"proxy.internal"})
		assert.Error(t, err)
	})
}

func TestCORSMiddleware(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORSMiddleware("https://app.example.com", "GET,POST", "Content-Type")(ok)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.com")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/", nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestCORSMiddlewareWildcard(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := CORSMiddleware("*, https://app.example.com", "GET,POST", "Content-Type")(ok)

	tests := []struct {
		name            string
		origin          string
		wantOrigin      string
		wantCredentials string
	}{
		{name: "unlisted origin gets wildcard", origin: "https://evil.example", wantOrigin: "*"},
		{name: "listed origin is echoed", origin: "https://app.example.com", wantOrigin: "https://app.example.com", wantCredentials: "true"},
		{name: "no origin", wantOrigin: "*"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/current-user", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantOrigin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, tt.wantCredentials, rec.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestLoggerMiddlewareRequestID(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})
	handler := LoggerMiddleware(zap.NewNop())(ok)

	req := httptest.NewRequest(http.MethodGet, "/anything", nil)
	req.Header.Set(RequestIDHeader, "req-123")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "req-123", rec.Header().Get(RequestIDHeader))

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/anything", nil))
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}
