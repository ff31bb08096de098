package main // Entry point package

import (
	"log" // Logging library

	"github.com/joho/godotenv"    // .env loader for local development
	"github.com/labstack/echo/v4" // Echo web framework

	"github.com/tixgate/event-seat-reservation/internal/config"
	"github.com/tixgate/event-seat-reservation/internal/database"
	"github.com/tixgate/event-seat-reservation/internal/handler"
	"github.com/tixgate/event-seat-reservation/internal/lock"
	"github.com/tixgate/event-seat-reservation/internal/repository"
	"github.com/tixgate/event-seat-reservation/internal/reservation"
	"github.com/tixgate/event-seat-reservation/internal/router"
	queue_publisher "github.com/tixgate/event-seat-reservation/internal/service"
)

func main() {
	_ = godotenv.Load() // load .env when present; real env always wins

	cfg := config.Load()
	lockCfg := config.LoadLockConfig()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatalf("database: %v", err)
	}

	// A nil client keeps the process up but makes every lock operation
	// fail closed: seats appear unavailable instead of unlocked.
	rdb := config.NewRedisClient()
	if rdb == nil {
		log.Printf("redis unreachable; seat locking degraded to fail-closed mode")
	}

	seatRepo := repository.NewSeatStatusRepo(db)
	ticketRepo := repository.NewTicketRepo(db)
	locks := lock.NewManager(rdb, lockCfg)
	publisher := queue_publisher.NewPublisher()
	svc := reservation.NewService(locks, seatRepo, ticketRepo, publisher, lockCfg)

	e := echo.New()
	ops := handler.NewOpsHandler(svc)
	router.RegisterRoutes(e, ops)
	router.RegisterOps(e, ops, cfg.JWTSecret)

	addr := ":" + cfg.Port
	log.Printf("listening on %s (env=%s, lock ttl=%s)", addr, cfg.Env, lockCfg.TTL)

	if err := e.Start(addr); err != nil {
		log.Fatal(err)
	}
}
