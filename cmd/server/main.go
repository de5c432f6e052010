package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"

	"github.com/confhub/confhub/internal/config"
	"github.com/confhub/confhub/internal/database"
	"github.com/confhub/confhub/internal/handler"
	"github.com/confhub/confhub/internal/middleware"
	"github.com/confhub/confhub/internal/queue"
	"github.com/confhub/confhub/internal/repository"
	"github.com/confhub/confhub/internal/router"
	"github.com/confhub/confhub/internal/service"
)

func main() {
	// .env is optional; real deployments set env vars directly.
	_ = godotenv.Load()

	cfg := config.Load()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()

	users := repository.NewUserRepo(db)
	tokens := repository.NewTokenRepo(db)
	confs := repository.NewConferenceRepo(db)

	// Audit events are published off the request path; the publisher
	// dials per event and must not inherit a request-scoped context.
	audit := func(_ context.Context, ev queue.AuthEvent) {
		go func() { _ = service.PublishAuthEvent(context.Background(), ev) }()
	}
	sessions := service.NewSessionService(users, tokens, cfg.RefreshTTLDays, audit)

	go func() {
		if err := queue.StartAuditConsumer(); err != nil {
			log.Printf("audit consumer stopped: %v", err)
		}
	}()

	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unavailable; rate limiting disabled")
	}
	limiter := middleware.NewFixedWindow(config.LoadRateLimitConfig(), rdb)

	e := echo.New()
	router.RegisterRoutes(e)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, users, sessions, audit), limiter, cfg.JWTSecret)
	router.RegisterConferences(e, handler.NewConferenceHandler(confs), cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s)", addr, cfg.Env)
	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
