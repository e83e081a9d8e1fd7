package handler

import (
	"net/http"

	"videotube-server/internal/config"
	"videotube-server/internal/middleware"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

type RouterDeps struct {
	Auth         *AuthHandler
	Account      *AccountHandler
	Tokens       middleware.TokenVerifier
	Accounts     middleware.AccountLoader
	LoginLimiter middleware.Limiter
	ClientIP     *middleware.IPResolver
	CORS         config.CORSConfig
	Logger       *zap.Logger
}

func NewRouter(d RouterDeps) *mux.Router {
	r := mux.NewRouter()

	r.Use(middleware.LoggerMiddleware(d.Logger))
	r.Use(middleware.CORSMiddleware(
		d.CORS.AllowedOrigins,
		d.CORS.AllowedMethods,
		d.CORS.AllowedHeaders,
	))

	requireAuth := middleware.AuthMiddleware(d.Tokens, d.Accounts)
	optionalAuth := middleware.OptionalAuth(d.Tokens, d.Accounts)

	users := r.PathPrefix("/api/v1/users").Subrouter()

	users.HandleFunc("/register", d.Auth.Register).Methods("POST", "OPTIONS")
	users.Handle("/login", middleware.RateLimitMiddleware(d.LoginLimiter, d.ClientIP, d.Logger)(http.HandlerFunc(d.Auth.Login))).Methods("POST", "OPTIONS")
	users.HandleFunc("/refresh-token", d.Auth.Refresh).Methods("POST", "OPTIONS")
	users.Handle("/channel/{username}", optionalAuth(http.HandlerFunc(d.Account.ChannelProfile))).Methods("GET", "OPTIONS")

	protected := users.PathPrefix("").Subrouter()
	protected.Use(requireAuth)

	protected.HandleFunc("/logout", d.Auth.Logout).Methods("POST", "OPTIONS")
	protected.HandleFunc("/change-password", d.Auth.ChangePassword).Methods("POST", "OPTIONS")
	protected.HandleFunc("/current-user", d.Account.CurrentUser).Methods("GET", "OPTIONS")
	protected.HandleFunc("/update-details", d.Account.UpdateDetails).Methods("PATCH", "OPTIONS")
	protected.HandleFunc("/update-avatar", d.Account.UpdateAvatar).Methods("PATCH", "OPTIONS")
	protected.HandleFunc("/update-cover-image", d.Account.UpdateCoverImage).Methods("PATCH", "OPTIONS")
	protected.HandleFunc("/watch-history", d.Account.WatchHistory).Methods("GET", "OPTIONS")

	subs := r.PathPrefix("/api/v1/subscriptions").Subrouter()
	subs.Use(requireAuth)
	subs.HandleFunc("/{channelID}", d.Account.Subscribe).Methods("POST", "OPTIONS")
	subs.HandleFunc("/{channelID}", d.Account.Unsubscribe).Methods("DELETE", "OPTIONS")

	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy","service":"videotube-server"}`))
}
