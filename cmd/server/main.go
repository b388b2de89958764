package main // Entry point package

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/hackathon-admission/internal/config"
	"github.com/iliyamo/hackathon-admission/internal/database"
	"github.com/iliyamo/hackathon-admission/internal/handler"
	"github.com/iliyamo/hackathon-admission/internal/logger"
	"github.com/iliyamo/hackathon-admission/internal/middleware"
	"github.com/iliyamo/hackathon-admission/internal/queue"
	"github.com/iliyamo/hackathon-admission/internal/repository"
	"github.com/iliyamo/hackathon-admission/internal/router"
	"github.com/iliyamo/hackathon-admission/internal/service"
)

func main() {
	// Load .env if present; real deployments set the environment directly.
	_ = godotenv.Load()

	cfg := config.Load()
	lg := logger.New(cfg.Env, cfg.LogLevel, cfg.LogFormat)

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database connect failed: %v", err)
	}
	defer db.Close()

	if err := database.ApplyMigrations(db); err != nil {
		log.Fatalf("schema migration failed: %v", err)
	}

	// Redis is optional: rate limiting and the token-version cache degrade
	// gracefully when it is absent.
	rdb := config.NewRedisClient()
	if rdb != nil {
		defer rdb.Close()
	}

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	teams := repository.NewTeamRepo(db)
	store := repository.NewAdmissionStore(db)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := store.EnsureCapacity(ctx, cfg.EventCapacity); err != nil {
		cancel()
		log.Fatalf("seeding event capacity failed: %v", err)
	}
	cancel()

	identity := service.NewIdentityManager(users, tokens, rdb, lg)
	publisher := queue.NewPublisher(queue.BrokerURL(), lg)
	admission := service.NewAdmissionService(store, identity, publisher, cfg.SpotTTL, lg)

	sweeper := service.NewReclaimSweeper(admission, cfg.SweepInterval, lg)
	sweeper.Tokens = tokens
	sweeper.Start()
	defer sweeper.Stop()

	// The notification consumer drains the broker queue in-process. It
	// reconnects with backoff on broker failure and never takes the API down.
	go queue.StartNotificationConsumer(lg)

	limiter := middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb)

	authH := handler.NewAuthHandler(cfg, users, tokens)
	admissionH := handler.NewAdmissionHandler(admission)
	teamH := handler.NewTeamHandler(db, teams, cfg.TeamMaxSize)

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	router.RegisterAuth(e, authH, identity, cfg.JWTSecret)
	router.RegisterAdmission(e, admissionH, identity, cfg.JWTSecret, limiter)
	router.RegisterTeams(e, teamH, identity, users, cfg.JWTSecret)

	addr := ":" + cfg.Port
	lg.Info("listening", "addr", addr, "env", cfg.Env)

	go func() {
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	lg.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		lg.Error("shutdown failed", "error", err)
	}
}
