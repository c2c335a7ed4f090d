package app

import (
	"context"
	"time"

	"github.com/tolkdesk/dispatch/internal/service"
	"go.uber.org/zap"
)

// Scheduler управляет фоновыми задачами
type Scheduler struct {
	bookings *service.BookingService
	interval time.Duration
	logger   *zap.Logger
	stopChan chan struct{}
}

// NewScheduler создаёт новый планировщик
func NewScheduler(bookings *service.BookingService, interval time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{
		bookings: bookings,
		interval: interval,
		logger:   logger,
		stopChan: make(chan struct{}),
	}
}

// Start запускает фоновые задачи
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info("Starting background scheduler")

	go s.runExpirySweep(ctx)
}

// Stop останавливает фоновые задачи
func (s *Scheduler) Stop() {
	s.logger.Info("Stopping background scheduler")
	close(s.stopChan)
}

// runExpirySweep периодически закрывает просроченные неподнятые заказы
func (s *Scheduler) runExpirySweep(ctx context.Context) {
	// Первый проход сразу при старте
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.sweep(ctx)
		case <-s.stopChan:
			s.logger.Info("Expiry sweep stopped")
			return
		case <-ctx.Done():
			s.logger.Info("Expiry sweep cancelled")
			return
		}
	}
}

func (s *Scheduler) sweep(ctx context.Context) {
	count, err := s.bookings.ExpirePending(ctx)
	if err != nil {
		s.logger.Error("Failed to expire pending jobs", zap.Error(err))
		return
	}
	if count > 0 {
		s.logger.Info("Expiry sweep completed", zap.Int("expired", count))
	}
}
