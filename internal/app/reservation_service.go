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

type ReservationRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetEvent(ctx context.Context, eventID string) (domain.Event, error)
	GetStand(ctx context.Context, standID string) (domain.Stand, error)
	// ReserveStand moves an available stand of an active event to reserved.
	// Returns domain.ErrConditionFailed when the stand is not available.
	ReserveStand(ctx context.Context, standID, holderID string, now time.Time) (domain.Stand, error)
	// ReleaseStand moves a stand reserved by holderID back to available.
	ReleaseStand(ctx context.Context, standID, holderID string, now time.Time) (domain.Stand, error)
	CreateObligation(ctx context.Context, ob domain.Obligation) error
	CancelActiveObligation(ctx context.Context, standID, participantID string, d domain.Decision) (domain.Obligation, error)
	CurrentObligation(ctx context.Context, standID string) (*domain.Obligation, error)
}

type ReservationService struct {
	repo  ReservationRepository
	clock clock.Clock
	settings
}

func NewReservationService(repo ReservationRepository, clk clock.Clock, opts ...Option) *ReservationService {
	return &ReservationService{
		repo:     repo,
		clock:    clk,
		settings: newSettings(opts),
	}
}

type ReserveInput struct {
	StandID string
	Actor   domain.Actor
}

type ReserveResult struct {
	Stand      domain.Stand
	Obligation domain.Obligation
}

// Reserve takes an available stand for the actor and opens a pending
// obligation for its current price. Both writes commit together.
func (s *ReservationService) Reserve(ctx context.Context, in ReserveInput) (ReserveResult, error) {
	res, err := s.reserve(ctx, in)
	monitoring.TrackReservation("reserve", outcome(err))
	if err != nil {
		return ReserveResult{}, err
	}

	s.logger.Info("stand reserved",
		"stand_id", res.Stand.ID,
		"obligation_id", res.Obligation.ID,
		"participant_id", in.Actor.ID,
	)
	s.publish(ctx, brokermsg.TopicStandReserved, brokermsg.StandReservedMessage{
		StandID:       res.Stand.ID,
		EventID:       res.Stand.EventID,
		ObligationID:  res.Obligation.ID,
		ParticipantID: res.Obligation.ParticipantID,
		Amount:        res.Obligation.Amount.StringFixed(2),
		ExpiresAt:     res.Obligation.ExpiresAt,
	})
	return res, nil
}

func (s *ReservationService) reserve(ctx context.Context, in ReserveInput) (ReserveResult, error) {
	if in.StandID == "" {
		return ReserveResult{}, domain.ErrInvalidID
	}
	if in.Actor.ID == "" {
		return ReserveResult{}, domain.ErrActorRequired
	}

	now := s.clock.Now()
	var result ReserveResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		stand, err := s.repo.ReserveStand(txCtx, in.StandID, in.Actor.ID, now)
		if err != nil {
			if errors.Is(err, domain.ErrConditionFailed) {
				return s.explainReserveMiss(txCtx, in.StandID)
			}
			return err
		}

		ob := domain.Obligation{
			ID:            newID(),
			StandID:       stand.ID,
			ParticipantID: in.Actor.ID,
			Amount:        stand.Price,
			Status:        domain.ObligationPending,
			CreatedAt:     now,
			ExpiresAt:     now.Add(s.holdTTL),
		}
		if err := s.repo.CreateObligation(txCtx, ob); err != nil {
			return err
		}

		result = ReserveResult{Stand: stand, Obligation: ob}
		return nil
	})
	if err != nil {
		return ReserveResult{}, err
	}
	return result, nil
}

// explainReserveMiss runs after the conditional update matched nothing and
// only decides which error to report.
func (s *ReservationService) explainReserveMiss(ctx context.Context, standID string) error {
	stand, err := s.repo.GetStand(ctx, standID)
	if err != nil {
		return err
	}
	event, err := s.repo.GetEvent(ctx, stand.EventID)
	if err != nil {
		return err
	}
	if !event.Active {
		return domain.ErrEventInactive
	}
	return domain.ErrAlreadyReserved
}

type CancelInput struct {
	StandID string
	Actor   domain.Actor
}

// CancelReservation lets the holder give a stand back before it is paid.
// The active obligation is marked rejected and the stand becomes available.
func (s *ReservationService) CancelReservation(ctx context.Context, in CancelInput) (domain.Stand, error) {
	stand, ob, err := s.cancel(ctx, in)
	monitoring.TrackReservation("cancel", outcome(err))
	if err != nil {
		return domain.Stand{}, err
	}

	s.logger.Info("reservation cancelled",
		"stand_id", stand.ID,
		"obligation_id", ob.ID,
		"participant_id", in.Actor.ID,
	)
	s.publish(ctx, brokermsg.TopicObligationRejected, obligationMessage(ob))
	s.publish(ctx, brokermsg.TopicStandReleased, releasedMessage(stand, ob))
	return stand, nil
}

func (s *ReservationService) cancel(ctx context.Context, in CancelInput) (domain.Stand, domain.Obligation, error) {
	if in.StandID == "" {
		return domain.Stand{}, domain.Obligation{}, domain.ErrInvalidID
	}
	if in.Actor.ID == "" {
		return domain.Stand{}, domain.Obligation{}, domain.ErrActorRequired
	}

	now := s.clock.Now()
	var (
		stand domain.Stand
		ob    domain.Obligation
	)

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		ob, err = s.repo.CancelActiveObligation(txCtx, in.StandID, in.Actor.ID, domain.Decision{
			By:     in.Actor.ID,
			Reason: domain.ReasonCancelledByParticipant,
			At:     now,
		})
		if err != nil {
			if errors.Is(err, domain.ErrConditionFailed) {
				return s.explainCancelMiss(txCtx, in.StandID, in.Actor.ID)
			}
			return err
		}

		stand, err = s.repo.ReleaseStand(txCtx, in.StandID, in.Actor.ID, now)
		if err != nil {
			if errors.Is(err, domain.ErrConditionFailed) {
				return domain.ErrStandNotReservedByActor
			}
			return err
		}
		return nil
	})
	if err != nil {
		return domain.Stand{}, domain.Obligation{}, err
	}
	return stand, ob, nil
}

func (s *ReservationService) explainCancelMiss(ctx context.Context, standID, participantID string) error {
	stand, err := s.repo.GetStand(ctx, standID)
	if err != nil {
		return err
	}
	if stand.HolderID != participantID {
		return domain.ErrNotHolder
	}
	if stand.Status == domain.StandSold {
		return domain.ErrAlreadySettled
	}
	current, err := s.repo.CurrentObligation(ctx, standID)
	if err != nil {
		return err
	}
	if current != nil && current.Status == domain.ObligationPaid {
		return domain.ErrAlreadySettled
	}
	return domain.ErrInvalidState
}
