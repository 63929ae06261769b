package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/stocktake/internal/auth/store"
)

// DefaultHousekeepingInterval is used when no interval is configured.
const DefaultHousekeepingInterval = time.Hour

// HousekeepingService periodically deletes expired refresh tokens and spent
// password reset tokens so those tables do not grow without bound.
type HousekeepingService struct {
	Store    store.Store
	Logger   *slog.Logger
	Interval time.Duration
	Now      func() time.Time

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeepingService creates a housekeeping service. A non-positive
// interval falls back to DefaultHousekeepingInterval.
func NewHousekeepingService(st store.Store, logger *slog.Logger, interval time.Duration) *HousekeepingService {
	if interval <= 0 {
		interval = DefaultHousekeepingInterval
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &HousekeepingService{
		Store:    st,
		Logger:   logger,
		Interval: interval,
		Now:      time.Now,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs the cleanup loop in the background. Call Stop to shut it down.
func (s *HousekeepingService) Start() {
	go s.run()
	s.Logger.Info("housekeeping service started", "interval", s.Interval)
}

// Stop blocks until any in-progress cleanup has finished.
func (s *HousekeepingService) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Logger.Info("housekeeping service stopped")
}

func (s *HousekeepingService) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	s.RunOnce(context.Background())

	for {
		select {
		case <-ticker.C:
			s.RunOnce(context.Background())
		case <-s.stopCh:
			return
		}
	}
}

// RunOnce performs one cleanup pass and returns the number of rows removed.
// Each deletion is independent; a failure in one does not stop the other.
func (s *HousekeepingService) RunOnce(ctx context.Context) int64 {
	now := time.Now().UTC()
	if s.Now != nil {
		now = s.Now().UTC()
	}

	var total int64

	if n, err := s.Store.RefreshTokens().DeleteExpiredRefreshTokens(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired refresh tokens", "error", err)
	} else {
		s.Logger.Debug("deleted expired refresh tokens", "count", n)
		total += n
	}

	if n, err := s.Store.PasswordResetTokens().DeleteExpiredPasswordResetTokens(ctx, now); err != nil {
		s.Logger.Error("failed to delete expired password reset tokens", "error", err)
	} else {
		s.Logger.Debug("deleted spent password reset tokens", "count", n)
		total += n
	}

	s.Logger.Info("housekeeping cleanup completed", "deleted", total)
	return total
}
