package app

import (
	"context"
	"errors"
	"time"

	"github.com/cimillas/expo-stands/internal/brokermsg"
	"github.com/cimillas/expo-stands/internal/clock"
	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/cimillas/expo-stands/internal/monitoring"
)

type SweepRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	ListExpiredObligations(ctx context.Context, now time.Time, limit int) ([]domain.Obligation, error)
	// ExpireObligation moves an active obligation whose hold ran out before
	// now to expired.
	ExpireObligation(ctx context.Context, obligationID string, now time.Time) (domain.Obligation, error)
	ReleaseStand(ctx context.Context, standID, holderID string, now time.Time) (domain.Stand, error)
}

// Leader decides whether this replica sweeps on a given tick.
type Leader interface {
	Acquire(ctx context.Context) (bool, error)
}

const (
	defaultSweepInterval  = time.Minute
	defaultSweepBatchSize = 100
)

type Sweeper struct {
	repo      SweepRepository
	clock     clock.Clock
	interval  time.Duration
	batchSize int
	leader    Leader
	settings
}

type SweeperOption func(*Sweeper)

func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

func WithSweepBatchSize(n int) SweeperOption {
	return func(s *Sweeper) {
		if n > 0 {
			s.batchSize = n
		}
	}
}

// WithLeader restricts sweeping to the replica holding the lease.
func WithLeader(l Leader) SweeperOption {
	return func(s *Sweeper) {
		s.leader = l
	}
}

func NewSweeper(repo SweepRepository, clk clock.Clock, sweepOpts []SweeperOption, opts ...Option) *Sweeper {
	s := &Sweeper{
		repo:      repo,
		clock:     clk,
		interval:  defaultSweepInterval,
		batchSize: defaultSweepBatchSize,
		settings:  newSettings(opts),
	}
	for _, opt := range sweepOpts {
		opt(s)
	}
	return s
}

type SweepReport struct {
	Expired int
	// Skipped counts obligations decided by someone else between listing
	// and expiry.
	Skipped int
	Failed  int
}

// Run sweeps every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("sweeper started", "interval", s.interval, "batch_size", s.batchSize)
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("sweeper stopped")
			return ctx.Err()
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Sweeper) tick(ctx context.Context) {
	if s.leader != nil {
		ok, err := s.leader.Acquire(ctx)
		if err != nil {
			// The lease only avoids duplicate work; sweeping without it is still safe.
			s.logger.Warn("sweeper lease unavailable, sweeping anyway", "error", err)
		} else if !ok {
			return
		}
	}

	report, err := s.RunOnce(ctx)
	if err != nil {
		s.logger.Error("sweep failed", "error", err)
		return
	}
	if report.Expired > 0 || report.Skipped > 0 || report.Failed > 0 {
		s.logger.Info("sweep finished",
			"expired", report.Expired,
			"skipped", report.Skipped,
			"failed", report.Failed,
		)
	}
}

// RunOnce expires one batch of lapsed holds. Each obligation is handled in
// its own transaction so one failure does not block the rest.
func (s *Sweeper) RunOnce(ctx context.Context) (SweepReport, error) {
	start := time.Now()
	now := s.clock.Now()

	due, err := s.repo.ListExpiredObligations(ctx, now, s.batchSize)
	if err != nil {
		return SweepReport{}, err
	}

	var report SweepReport
	for _, candidate := range due {
		ob, stand, released, err := s.expire(ctx, candidate.ID, now)
		switch {
		case err == nil:
			report.Expired++
			s.publish(ctx, brokermsg.TopicObligationExpired, obligationMessage(ob))
			if released {
				s.publish(ctx, brokermsg.TopicStandReleased, releasedMessage(stand, ob))
			}
		case errors.Is(err, domain.ErrInvalidState):
			report.Skipped++
		default:
			report.Failed++
			s.logger.Error("expire obligation failed", "obligation_id", candidate.ID, "error", err)
		}
	}

	monitoring.TrackSweep(report.Expired, report.Skipped, report.Failed, time.Since(start))
	return report, nil
}

func (s *Sweeper) expire(ctx context.Context, obligationID string, now time.Time) (domain.Obligation, domain.Stand, bool, error) {
	var (
		ob       domain.Obligation
		stand    domain.Stand
		released bool
	)
	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		ob, err = s.repo.ExpireObligation(txCtx, obligationID, now)
		if err != nil {
			if errors.Is(err, domain.ErrConditionFailed) {
				return domain.ErrInvalidState
			}
			return err
		}

		stand, err = s.repo.ReleaseStand(txCtx, ob.StandID, ob.ParticipantID, now)
		if err != nil {
			if errors.Is(err, domain.ErrConditionFailed) {
				// The stand is no longer held for this participant; the
				// obligation still has to leave the active set.
				s.logger.Warn("expired obligation did not hold its stand",
					"obligation_id", ob.ID,
					"stand_id", ob.StandID,
				)
				return nil
			}
			return err
		}
		released = true
		return nil
	})
	return ob, stand, released, err
}
