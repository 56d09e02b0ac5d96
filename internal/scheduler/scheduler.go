package scheduler

import (
	"context"
	"sync"
	"time"

	"proxyman/internal/config"
	"proxyman/internal/model"

	"github.com/sirupsen/logrus"
)

// Renewer is the slice of the certificate service the scheduler drives.
type Renewer interface {
	ExpireOverdue() (int64, error)
	ListExpiringSoon(horizonDays int) ([]model.Certificate, error)
	RenewCertificate(ctx context.Context, certID int, force bool) (*model.Certificate, []string, error)
}

// SweepResult summarizes one renewal sweep.
type SweepResult struct {
	Expired    int64 `json:"expired"`
	Candidates int   `json:"candidates"`
	Renewed    int   `json:"renewed"`
	Failed     int   `json:"failed"`
}

// Scheduler runs the renewal sweep once a day at a fixed UTC hour.
// Start and Stop are idempotent; a second Start while running is a no-op.
type Scheduler struct {
	renewer Renewer
	cfg     config.SchedulerConfig
	logger  *logrus.Entry

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
}

// New creates a renewal scheduler.
func New(renewer Renewer, cfg config.SchedulerConfig) *Scheduler {
	return &Scheduler{
		renewer: renewer,
		cfg:     cfg,
		logger:  logrus.WithField("component", "scheduler"),
	}
}

// Start launches the daily loop. Disabled or already-running schedulers
// return without doing anything.
func (s *Scheduler) Start() {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler disabled, not starting")
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true
	s.stopChan = make(chan struct{})
	s.logger.WithFields(logrus.Fields{
		"hourUTC":         s.cfg.HourUTC,
		"renewBeforeDays": s.cfg.RenewBeforeDays,
	}).Info("scheduler starting")
	go s.run(s.stopChan)
}

// Stop halts the loop. Stopping a stopped scheduler is a no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	close(s.stopChan)
	s.logger.Info("scheduler stopped")
}

// Running reports whether the daily loop is active.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

func (s *Scheduler) run(stop chan struct{}) {
	for {
		timer := time.NewTimer(s.untilNextRun(time.Now().UTC()))
		select {
		case <-timer.C:
			s.Sweep(context.Background())
		case <-stop:
			timer.Stop()
			return
		}
	}
}

// untilNextRun returns the wait until the next configured UTC hour,
// always in the future so a sweep never runs twice in one day.
func (s *Scheduler) untilNextRun(now time.Time) time.Duration {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.cfg.HourUTC, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next.Sub(now)
}

// Sweep expires overdue rows, then renews every certificate inside the
// horizon sequentially. One failing domain never stops the rest; each
// attempt writes its own renewal log entry through the service.
func (s *Scheduler) Sweep(ctx context.Context) SweepResult {
	var result SweepResult

	expired, err := s.renewer.ExpireOverdue()
	if err != nil {
		s.logger.WithError(err).Error("expiry sweep failed")
	}
	result.Expired = expired

	candidates, err := s.renewer.ListExpiringSoon(0)
	if err != nil {
		s.logger.WithError(err).Error("failed to list renewal candidates")
		return result
	}
	result.Candidates = len(candidates)
	if len(candidates) == 0 {
		s.logger.Info("no renewal candidates")
		return result
	}

	for _, cert := range candidates {
		renewed, _, err := s.renewer.RenewCertificate(ctx, cert.ID, false)
		if err != nil {
			result.Failed++
			s.logger.WithError(err).WithField("domain", cert.Domain).Error("renewal attempt errored")
			continue
		}
		if renewed.Status == model.CertificateStatusValid {
			result.Renewed++
		} else {
			result.Failed++
		}
	}

	s.logger.WithFields(logrus.Fields{
		"expired":    result.Expired,
		"candidates": result.Candidates,
		"renewed":    result.Renewed,
		"failed":     result.Failed,
	}).Info("renewal sweep finished")
	return result
}
