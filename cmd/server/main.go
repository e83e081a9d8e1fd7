package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"videotube-server/internal/config"
	"videotube-server/internal/handler"
	"videotube-server/internal/media"
	"videotube-server/internal/middleware"
	"videotube-server/internal/ratelimit"
	"videotube-server/internal/repository"
	"videotube-server/internal/service"
	"videotube-server/pkg/logger"

	_ "github.com/go-kivik/kivik/v4/couchdb"

	"github.com/go-kivik/kivik/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:    cfg.Logging.Level,
		Encoding: cfg.Logging.Encoding,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to build logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	ctx := context.Background()

	client, err := kivik.New("couch", cfg.Database.URL())
	if err != nil {
		log.Fatal("Failed to connect to CouchDB", zap.Error(err))
	}

	if err := repository.EnsureSchema(ctx, client, cfg.Database.Name); err != nil {
		log.Fatal("Failed to prepare database", zap.String("db", cfg.Database.Name), zap.Error(err))
	}

	accountRepo := repository.NewAccountRepository(client, cfg.Database.Name)
	subscriptionRepo := repository.NewSubscriptionRepository(client, cfg.Database.Name)
	videoRepo := repository.NewVideoRepository(client, cfg.Database.Name)

	mediaStore, err := media.NewStore(ctx, media.Config{
		Endpoint:      cfg.Media.Endpoint,
		Region:        cfg.Media.Region,
		Bucket:        cfg.Media.Bucket,
		AccessKey:     cfg.Media.AccessKey,
		SecretKey:     cfg.Media.SecretKey,
		PublicBaseURL: cfg.Media.PublicBaseURL,
		UsePathStyle:  cfg.Media.UsePathStyle,
	}, log)
	if err != nil {
		log.Fatal("Failed to create media store", zap.Error(err))
	}

	loginLimiter, closeLimiter := newLoginLimiter(ctx, cfg, log)
	defer closeLimiter()

	clientIP, err := middleware.NewIPResolver(cfg.RateLimit.TrustedProxies)
	if err != nil {
		log.Fatal("Invalid RATE_LIMIT_TRUSTED_PROXIES", zap.Error(err))
	}

	tokenService := service.NewTokenService(accountRepo, service.TokenConfig{
		AccessSecret:  cfg.JWT.AccessSecret,
		AccessTTL:     cfg.JWT.AccessTTL,
		RefreshSecret: cfg.JWT.RefreshSecret,
		RefreshTTL:    cfg.JWT.RefreshTTL,
	}, log)
	authService := service.NewAuthService(accountRepo, tokenService, mediaStore, log)
	accountService := service.NewAccountService(accountRepo, subscriptionRepo, videoRepo, mediaStore, log)

	cookies := handler.CookieOptions{
		Secure:   cfg.Cookie.Secure,
		Domain:   cfg.Cookie.Domain,
		SameSite: cfg.Cookie.SameSite,
	}
	uploads := handler.UploadOptions{
		TempDir: cfg.Media.TempDir,
		MaxSize: cfg.Media.MaxUploadSize,
	}

	r := handler.NewRouter(handler.RouterDeps{
		Auth:         handler.NewAuthHandler(authService, tokenService, cookies, uploads, log),
		Account:      handler.NewAccountHandler(accountService, uploads, log),
		Tokens:       tokenService,
		Accounts:     accountRepo,
		LoginLimiter: loginLimiter,
		ClientIP:     clientIP,
		CORS:         cfg.CORS,
		Logger:       log,
	})

	addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("Starting VideoTube server",
			zap.String("addr", addr),
			zap.String("env", cfg.Server.Env),
			zap.String("couchdb", fmt.Sprintf("%s:%s", cfg.Database.Host, cfg.Database.Port)),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
		return
	}

	log.Info("Server stopped gracefully")
}

// newLoginLimiter counts login attempts in Redis when REDIS_ADDR is set and
// in process memory otherwise.
func newLoginLimiter(ctx context.Context, cfg *config.Config, log *zap.Logger) (*ratelimit.Limiter, func()) {
	if !cfg.RateLimit.Enabled {
		log.Info("Login rate limiting disabled")
		return ratelimit.New(nil, "", 0, 0), func() {}
	}

	const prefix = "videotube:login:"

	if cfg.Redis.Addr == "" {
		log.Info("Login rate limiting in memory",
			zap.Int("attempts", cfg.RateLimit.LoginAttempts),
			zap.Duration("window", cfg.RateLimit.LoginWindow),
		)
		return ratelimit.New(ratelimit.NewMemoryStore(), prefix, cfg.RateLimit.LoginAttempts, cfg.RateLimit.LoginWindow), func() {}
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("Redis unreachable, login limiter will fail open until it recovers",
			zap.String("addr", cfg.Redis.Addr), zap.Error(err))
	} else {
		log.Info("Login rate limiting in Redis", zap.String("addr", cfg.Redis.Addr))
	}

	limiter := ratelimit.New(ratelimit.NewRedisStore(rdb), prefix, cfg.RateLimit.LoginAttempts, cfg.RateLimit.LoginWindow)
	return limiter, func() {
		if err := rdb.Close(); err != nil {
			log.Warn("Failed to close Redis client", zap.Error(err))
		}
	}
}
