package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/tolkdesk/dispatch/internal/app"
	"github.com/tolkdesk/dispatch/internal/config"
	"github.com/tolkdesk/dispatch/internal/events"
	"github.com/tolkdesk/dispatch/internal/notify"
	"github.com/tolkdesk/dispatch/internal/repository"
	"github.com/tolkdesk/dispatch/internal/service"
	"github.com/tolkdesk/dispatch/internal/timepolicy"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := app.NewLogger(cfg.Environment)
	defer logger.Sync()

	logger.Info("Starting dispatch service", zap.String("environment", cfg.Environment))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := pgxpool.New(ctx, cfg.DBDSN)
	if err != nil {
		logger.Fatal("Failed to create db pool", zap.Error(err))
	}
	defer pool.Close()

	migrator, err := app.NewMigrator(pool, cfg.MigrationsPath, logger)
	if err != nil {
		logger.Fatal("Failed to create migrator", zap.Error(err))
	}
	if err := migrator.Run(ctx); err != nil {
		logger.Fatal("Failed to apply migrations", zap.Error(err))
	}
	migrator.Close()

	bus, err := events.NewPublisher(cfg.AMQPURL, cfg.EventsExchange, logger)
	if err != nil {
		logger.Fatal("Failed to connect to event bus", zap.Error(err))
	}
	defer bus.Close()

	jobs := repository.NewJobRepository(pool)
	assignments := repository.NewAssignmentRepository(pool)
	users := repository.NewUserRepository(pool)

	clock := timepolicy.NewClock()

	var push notify.PushSender
	if cfg.PushAppID != "" {
		push = notify.NewPushClient(cfg.PushURL, cfg.PushAppID, cfg.PushAPIKey, logger)
	} else {
		push = notify.NewLogPush(logger)
	}
	dispatcher := notify.NewDispatcher(
		notify.NewLogMailer(logger),
		push,
		notify.NewLogSMS(logger),
		clock,
		cfg.SMSFromNumber,
		logger,
	)

	matcher := service.NewMatchingEngine(jobs, assignments, users, clock, logger)
	ledger := service.NewAssignmentLedger(jobs, assignments, users, dispatcher, clock, logger)
	bookings := service.NewBookingService(jobs, assignments, users, ledger, matcher, dispatcher, bus, clock, logger)

	scheduler := app.NewScheduler(bookings, cfg.ExpirySweepInterval, logger)
	scheduler.Start(ctx)

	logger.Info("Dispatch service started")

	<-ctx.Done()
	scheduler.Stop()
	logger.Info("Dispatch service stopped")
	os.Exit(0)
}
