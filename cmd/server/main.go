package main // Entry point package

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/cinebook/cinebook/internal/booking"
	"github.com/cinebook/cinebook/internal/cache"
	"github.com/cinebook/cinebook/internal/config"
	"github.com/cinebook/cinebook/internal/database"
	"github.com/cinebook/cinebook/internal/handler"
	"github.com/cinebook/cinebook/internal/lock"
	"github.com/cinebook/cinebook/internal/queue"
	"github.com/cinebook/cinebook/internal/repository"
	"github.com/cinebook/cinebook/internal/router"
)

// main constructs every shared client once and passes it into the
// components by reference; there are no package-level singletons.
func main() {
	_ = godotenv.Load() // best effort; deployments set the environment directly

	cfg := config.Load()
	logger := zap.Must(zap.NewProduction())
	defer func() { _ = logger.Sync() }()

	db, err := database.Open(cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer func() { _ = db.Close() }()

	rdb, err := config.NewRedisClient()
	if err != nil {
		logger.Fatal("connect redis", zap.Error(err))
	}
	defer func() { _ = rdb.Close() }()

	locker := lock.New(lock.NewRedisStore(rdb), cfg.LockAttempts, cfg.LockDelay)
	seatCache := cache.NewSeatCache(rdb)

	reservations := repository.NewReservationRepo(db)
	seats := repository.NewSessionSeatRepo(db)
	sessions := repository.NewSessionRepo(db)
	sales := repository.NewSaleRepo(db)
	payments := repository.NewPaymentRepo(db)

	publisher := queue.NewPublisher(cfg.AMQPURL, logger.Named("publisher"))
	defer publisher.Close()

	svc := booking.NewService(locker, seatCache, reservations, seats, sessions, publisher,
		booking.ServiceConfig{HoldDuration: cfg.HoldDuration, LockTTL: cfg.LockTTL},
		logger.Named("reserve"))
	reaper := booking.NewReaper(locker, reservations, publisher,
		cfg.ReaperInterval, cfg.ReaperLockTTL, logger.Named("reaper"))
	reconciler := booking.NewReconciler(sales, payments, sessions, seatCache, publisher,
		logger.Named("reconciler"))

	consumer := queue.NewConsumer(cfg.AMQPURL, logger.Named("consumer"))
	consumer.Handle(queue.QueuePaymentApproved, reconciler.HandlePaymentApproved)
	consumer.Handle(queue.QueueReservationConflict, reconciler.HandleReservationConflict)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go reaper.Run(ctx)
	go func() {
		if err := consumer.Run(ctx); err != nil && ctx.Err() == nil {
			logger.Error("consumer stopped", zap.Error(err))
		}
	}()

	e := echo.New()
	e.HideBanner = true
	router.RegisterRoutes(e)
	router.RegisterReservations(e,
		handler.NewReservationHandler(svc),
		handler.NewSessionSeatHandler(seats),
		cfg.JWTSecret)

	go func() {
		addr := ":" + cfg.Port
		logger.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env))
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
