// Package retention deletes read notifications once they age past the retention period.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/trellis/pkg/tracing"
	"github.com/adhocore/gronx"
)

var (
	// ErrSweeperAlreadyRunning is returned when Start is called twice
	ErrSweeperAlreadyRunning = errors.New("retention sweeper already running")
)

const retryDelay = 30 * time.Second

// Purger is satisfied by *notifications.Router.
type Purger interface {
	PurgeReadBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Config holds the sweep schedule
type Config struct {
	// Cron is a five field cron expression, "0 3 * * *" runs daily at 03:00
	Cron string
	// Period is how long read notifications are kept
	Period time.Duration
}

// Sweeper runs the purge on the cron schedule until stopped
type Sweeper struct {
	purger Purger
	config Config
	logger ectologger.Logger
	now    func() time.Time

	stopCh   chan struct{}
	stoppedC chan struct{}
	running  bool
	sweeping sync.Mutex
	mu       sync.Mutex
}

// NewSweeper creates a new retention sweeper
func NewSweeper(purger Purger, config Config, logger ectologger.Logger) (*Sweeper, error) {
	if !gronx.New().IsValid(config.Cron) {
		return nil, fmt.Errorf("invalid retention cron expression %q", config.Cron)
	}
	if config.Period <= 0 {
		return nil, fmt.Errorf("retention period must be positive, got %s", config.Period)
	}

	return &Sweeper{
		purger:   purger,
		config:   config,
		logger:   logger,
		now:      time.Now,
		stopCh:   make(chan struct{}),
		stoppedC: make(chan struct{}),
	}, nil
}

// Start launches the schedule loop in the background.
func (s *Sweeper) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrSweeperAlreadyRunning
	}
	s.running = true

	s.logger.WithContext(ctx).Infof("Starting retention sweeper: cron=%q period=%s", s.config.Cron, s.config.Period)

	// the loop outlives the startup context
	go s.loop(context.WithoutCancel(ctx))
	return nil
}

// Stop ends the loop and waits for an in-flight sweep.
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	s.mu.Unlock()

	close(s.stopCh)

	select {
	case <-s.stoppedC:
		s.logger.WithContext(ctx).Info("Retention sweeper stopped")
		return nil
	case <-ctx.Done():
		s.logger.WithContext(ctx).Warn("Retention sweeper shutdown timed out")
		return ctx.Err()
	}
}

func (s *Sweeper) loop(ctx context.Context) {
	defer close(s.stoppedC)

	for {
		next, err := gronx.NextTickAfter(s.config.Cron, s.now(), false)
		wait := retryDelay
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).Error("failed to compute next retention run")
		} else {
			wait = time.Until(next)
		}

		timer := time.NewTimer(wait)
		select {
		case <-s.stopCh:
			timer.Stop()
			return
		case <-timer.C:
			if err == nil {
				if _, err := s.RunOnce(ctx); err != nil {
					s.logger.WithContext(ctx).WithError(err).Error("retention sweep failed")
				}
			}
		}
	}
}

// RunOnce purges everything read before now minus the period. Overlapping calls are skipped.
func (s *Sweeper) RunOnce(ctx context.Context) (int64, error) {
	if !s.sweeping.TryLock() {
		return 0, nil
	}
	defer s.sweeping.Unlock()

	ctx, span := tracing.StartSpan(ctx, "retention.RunOnce")
	defer span.End()

	cutoff := s.now().Add(-s.config.Period)
	purged, err := s.purger.PurgeReadBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"cutoff": cutoff,
		"purged": purged,
	}).Info("retention sweep finished")
	return purged, nil
}
