package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"anwesha-auth/internal/config"
	"anwesha-auth/internal/db"
	"anwesha-auth/internal/email"
	apihttp "anwesha-auth/internal/http"
	"anwesha-auth/internal/identity"
	"anwesha-auth/internal/repository"
	"anwesha-auth/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}

	credRepo := repository.NewPgCredentialRepository(pool)
	users := repository.NewUserDocuments(repository.NewPgDocumentStore(pool))

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	refreshTTL := time.Duration(cfg.JWTRefreshTTLMinutes) * time.Minute
	var (
		otpLimiter  = identity.NewOTPRateLimiter(10*time.Minute, cfg.VerificationMaxRequests)
		tokenStore  = service.NewMemorySessionTokenStore()
		redisClient *redis.Client
	)
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory stores", zap.Error(err))
			redisClient = nil
		} else {
			otpLimiter = identity.NewRedisOTPRateLimiter(redisClient, 10*time.Minute, cfg.VerificationMaxRequests)
			tokenStore = service.NewRedisSessionTokenStore(redisClient)
		}
		cancel()
	}

	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		refreshTTL,
		tokenStore,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	dir := identity.NewDirectory(logger, credRepo, emailSender, otpLimiter)
	factory := service.NewSessionFactory(service.SessionDeps{
		Logger:      logger,
		NewProvider: func() identity.Provider { return dir.NewClient() },
		Users:       users,
		Storage: func(sid string) service.ClientStorage {
			if redisClient == nil {
				return nil
			}
			return service.NewRedisClientStorage(redisClient, sid, refreshTTL)
		},
		InboxSize: cfg.NotificationInboxSize,
		Options: service.SessionOptions{
			RemoteTimeout:        cfg.RemoteCallTimeout,
			AnweshaIDMaxAttempts: cfg.AnweshaIDMaxAttempts,
		},
	})
	registry := service.NewSessionRegistry(logger, factory, cfg.SessionIdleTTL)
	defer registry.Close()
	go registry.Run(ctx)

	router := apihttp.NewRouter(logger, jwtSvc, registry, apihttp.Handlers{
		Sessions: apihttp.NewSessionHandler(logger, jwtSvc, registry),
		Auth:     apihttp.NewAuthHandler(logger, dir),
		Users:    apihttp.NewUserHandler(logger),
		Nav:      apihttp.NewNavHandler(logger),
	})

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server",
		zap.String("port", cfg.HTTPPort),
		zap.Bool("redis", redisClient != nil),
	)

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
	logger.Info("server stopped")
}
