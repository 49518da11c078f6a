package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"profile-api/internal/config"
	"profile-api/internal/db"
	"profile-api/internal/email"
	apihttp "profile-api/internal/http"
	"profile-api/internal/metrics"
	"profile-api/internal/repository"
	"profile-api/internal/service"
	"profile-api/internal/storage"
	"profile-api/internal/validation"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
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

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseURL); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
	}

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Fatal("db connect", zap.Error(err))
	}
	defer pool.Close()

	userRepo := repository.NewPgUserRepository(pool)
	postRepo := repository.NewPgPostRepository(pool)

	emailSender := email.NewDisabledSender("email sender not configured")
	if cfg.SMTPHost != "" {
		sender, err := email.NewSMTPSender(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUser, cfg.SMTPPass, cfg.SMTPFrom, cfg.SMTPFromName, cfg.SMTPUseTLS)
		if err != nil {
			logger.Warn("smtp sender init failed", zap.Error(err))
		} else {
			emailSender = sender
		}
	}

	var (
		tokenStore   service.TokenStore
		pendingStore service.PendingRegistrationStore
		mailLimiter  service.MailRateLimiter
		redisClient  *redis.Client
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
		} else {
			tokenStore = service.NewRedisTokenStore(redisClient)
			pendingStore = service.NewRedisPendingStore(redisClient)
			mailLimiter = service.NewRedisMailRateLimiter(redisClient, cfg.MailLimitWindow(), cfg.MailLimitMax)
		}
		cancel()
	}
	if mailLimiter == nil {
		mailLimiter = service.NewMailRateLimiter(cfg.MailLimitWindow(), cfg.MailLimitMax)
	}

	var (
		imageStore storage.ImageStore
		uploadDir  string
	)
	if cfg.S3Bucket != "" {
		s3Store, err := storage.NewS3Store(ctx, storage.S3Config{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			BaseEndpoint: cfg.S3BaseEndpoint,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			PublicURL:    cfg.S3PublicURL,
		})
		if err != nil {
			logger.Fatal("s3 store init", zap.Error(err))
		}
		imageStore = s3Store
	} else {
		disk, err := storage.NewDiskStore(cfg.UploadDir, cfg.UploadURL)
		if err != nil {
			logger.Fatal("disk store init", zap.Error(err))
		}
		imageStore = disk
		uploadDir = disk.Root()
		logger.Info("S3 not configured, storing uploads on disk", zap.String("dir", uploadDir))
	}
	images := storage.NewImageUploader(imageStore, cfg.MaxUploadBytes())

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	tokenSvc := service.NewTokenService(cfg.JWTSecret, tokenStore)
	authSvc := service.NewAuthService(logger, userRepo, tokenSvc, pendingStore, emailSender, mailLimiter, collector, service.AuthConfig{
		ConfirmURL: strings.TrimRight(cfg.AppBaseURL, "/") + "/register/confirm",
		ResetURL:   cfg.ResetPasswordURL,
		SessionTTL: cfg.SessionTTL(),
		ResetTTL:   cfg.ResetTTL(),
	})
	sanitizer := service.NewTextSanitizer()
	postSvc := service.NewPostService(logger, postRepo, images, sanitizer)
	profileSvc := service.NewProfileService(logger, userRepo, images, sanitizer)

	authLimiter := apihttp.NewIPRateLimiter(logger, apihttp.RateLimitConfig{
		Rate:  apihttp.PerMinute(cfg.AuthRatePerMinute),
		Burst: cfg.AuthRateBurst,
	})
	defer authLimiter.Stop()

	validate := validation.New()
	router := apihttp.NewRouter(logger, apihttp.RouterDeps{
		Auth:           apihttp.NewAuthHandler(logger, authSvc, validate),
		Users:          apihttp.NewUserHandler(logger, profileSvc, validate),
		Posts:          apihttp.NewPostHandler(logger, postSvc, validate),
		Tokens:         tokenSvc,
		AuthLimiter:    authLimiter,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),
		Ready: func(ctx context.Context) error {
			return db.Ping(ctx, pool)
		},
		UploadDir: uploadDir,
		UploadURL: cfg.UploadURL,
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

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
