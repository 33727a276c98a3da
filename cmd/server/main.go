package main

import (
	"context"
	"log"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/ceylon-smart-citizen/auth-service/internal/config"
	"github.com/ceylon-smart-citizen/auth-service/internal/database"
	"github.com/ceylon-smart-citizen/auth-service/internal/handler"
	"github.com/ceylon-smart-citizen/auth-service/internal/middleware"
	"github.com/ceylon-smart-citizen/auth-service/internal/migrate"
	"github.com/ceylon-smart-citizen/auth-service/internal/queue"
	"github.com/ceylon-smart-citizen/auth-service/internal/repository"
	"github.com/ceylon-smart-citizen/auth-service/internal/router"
	"github.com/ceylon-smart-citizen/auth-service/internal/token"
)

func main() {
	_ = godotenv.Load() // .env is optional; real deployments set env directly
	cfg := config.Load()

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx := context.Background()
	dsn := database.DSN(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)

	if err := migrate.Up(ctx, dsn); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}
	db, err := database.Open(ctx, dsn)
	if err != nil {
		logger.Fatal("database connect failed", zap.Error(err))
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	revocations := repository.NewRevocationRepo(db)
	catalog := repository.NewCatalogRepo(db)
	appointments := repository.NewAppointmentRepo(db)

	issuer := token.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience,
		time.Duration(cfg.AccessTTLMin)*time.Minute,
		time.Duration(cfg.RefreshTTLDays)*24*time.Hour)
	verifier := token.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer, cfg.JWTAudience)

	events := queue.NewPublisher(logger)
	auth := middleware.NewAuthenticator(verifier, users, revocations, logger)

	authHandler := handler.NewAuthHandler(cfg, users, revocations, issuer, verifier, events, logger)
	bookingHandler := handler.NewBookingHandler(catalog, appointments, events, logger)

	rdb := config.NewRedisClient()
	if rdb == nil {
		logger.Warn("redis unavailable, rate limiting disabled")
	}

	e := echo.New()
	e.HideBanner = true
	router.Register(e, authHandler, bookingHandler, auth, config.LoadRateLimitConfig(), rdb, logger)

	// Notification consumer; reconnects forever on its own.
	go func() {
		if err := queue.StartConsumer(logger); err != nil {
			logger.Warn("event consumer stopped", zap.Error(err))
		}
	}()

	addr := ":" + cfg.Port
	logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
	if err := e.Start(addr); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "prod" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
