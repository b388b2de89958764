package service

import (
	"context"
	"log/slog"
	"time"
)

// TokenJanitor purges refresh token rows that have been expired or revoked
// for longer than the retention window.
type TokenJanitor interface {
	DeleteExpired(ctx context.Context, retention time.Duration) (int64, error)
}

// ReclaimSweeper periodically reclaims expired spot reservations so freed
// capacity does not sit idle until the holder happens to call verify. It is
// an optimization on top of the lazy expiry in VerifyRSVP, never a
// correctness requirement: every sweep action is the same transaction the
// verify path runs. When Tokens is set, each sweep also purges stale
// refresh token rows.
type ReclaimSweeper struct {
	Admission      *AdmissionService
	Interval       time.Duration
	BatchSize      int
	Tokens         TokenJanitor
	TokenRetention time.Duration
	Log            *slog.Logger

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewReclaimSweeper creates a sweeper with the given interval. An interval
// of 0 or less defaults to 10 minutes.
func NewReclaimSweeper(admission *AdmissionService, interval time.Duration, log *slog.Logger) *ReclaimSweeper {
	if interval <= 0 {
		interval = 10 * time.Minute
	}
	if log == nil {
		log = slog.Default()
	}
	return &ReclaimSweeper{
		Admission: admission,
		Interval:  interval,
		BatchSize: 50,
		Log:       log,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start launches the background worker. Non-blocking; call Stop to shut
// it down gracefully.
func (s *ReclaimSweeper) Start() {
	go s.run()
	s.Log.Info("reclaim sweeper started", "interval", s.Interval)
}

// Stop shuts the worker down and blocks until any in-progress sweep
// finishes.
func (s *ReclaimSweeper) Stop() {
	close(s.stopCh)
	<-s.doneCh
	s.Log.Info("reclaim sweeper stopped")
}

func (s *ReclaimSweeper) run() {
	defer close(s.doneCh)

	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	// Sweep once on startup to clear anything that expired while the
	// service was down.
	s.sweep()

	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

func (s *ReclaimSweeper) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	total := 0
	for {
		n, err := s.Admission.ReclaimExpired(ctx, s.BatchSize)
		if err != nil {
			s.Log.Error("reclaim sweep failed", "error", err)
			return
		}
		total += n
		if n < s.BatchSize {
			break
		}
	}
	if total > 0 {
		s.Log.Info("reclaimed expired reservations", "count", total)
	}

	if s.Tokens != nil {
		retention := s.TokenRetention
		if retention <= 0 {
			retention = 30 * 24 * time.Hour
		}
		if n, err := s.Tokens.DeleteExpired(ctx, retention); err != nil {
			s.Log.Error("refresh token cleanup failed", "error", err)
		} else if n > 0 {
			s.Log.Info("purged stale refresh tokens", "count", n)
		}
	}
}
