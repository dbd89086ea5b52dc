package app

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/cimillas/expo-stands/internal/brokermsg"
	"github.com/cimillas/expo-stands/internal/clock"
	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/cimillas/expo-stands/internal/monitoring"
)

type SettlementRepository interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
	GetStand(ctx context.Context, standID string) (domain.Stand, error)
	GetStandForUpdate(ctx context.Context, standID string) (domain.Stand, error)
	GetObligation(ctx context.Context, obligationID string) (domain.Obligation, error)
	// MarkProofSubmitted moves a pending, unexpired obligation owned by
	// participantID to under_review.
	MarkProofSubmitted(ctx context.Context, obligationID, participantID, receiptRef string, now time.Time) (domain.Obligation, error)
	// SettleObligation moves an under_review, unexpired obligation to the
	// given terminal status.
	SettleObligation(ctx context.Context, obligationID string, to domain.ObligationStatus, d domain.Decision) (domain.Obligation, error)
	// TerminateActiveObligation rejects whatever obligation currently holds
	// the stand. Returns nil when there is none.
	TerminateActiveObligation(ctx context.Context, standID string, d domain.Decision) (*domain.Obligation, error)
	SellStand(ctx context.Context, standID, holderID string, now time.Time) (domain.Stand, error)
	ReleaseStand(ctx context.Context, standID, holderID string, now time.Time) (domain.Stand, error)
	ForceStandStatus(ctx context.Context, standID string, status domain.StandStatus, holderID string, now time.Time) (domain.Stand, error)
}

type SettlementService struct {
	repo  SettlementRepository
	clock clock.Clock
	settings
}

func NewSettlementService(repo SettlementRepository, clk clock.Clock, opts ...Option) *SettlementService {
	return &SettlementService{
		repo:     repo,
		clock:    clk,
		settings: newSettings(opts),
	}
}

type SubmitProofInput struct {
	ObligationID string
	ReceiptRef   string
	Actor        domain.Actor
}

// SubmitProof attaches a receipt to a pending obligation and puts it under
// review. The stand stays reserved.
func (s *SettlementService) SubmitProof(ctx context.Context, in SubmitProofInput) (domain.Obligation, error) {
	ob, err := s.submitProof(ctx, in)
	monitoring.TrackSettlement("submit_proof", outcome(err))
	if err != nil {
		return domain.Obligation{}, err
	}

	s.logger.Info("proof submitted", "obligation_id", ob.ID, "stand_id", ob.StandID)
	s.publish(ctx, brokermsg.TopicObligationUnderReview, obligationMessage(ob))
	return ob, nil
}

func (s *SettlementService) submitProof(ctx context.Context, in SubmitProofInput) (domain.Obligation, error) {
	if in.ObligationID == "" {
		return domain.Obligation{}, domain.ErrInvalidID
	}
	if in.Actor.ID == "" {
		return domain.Obligation{}, domain.ErrActorRequired
	}
	receipt := strings.TrimSpace(in.ReceiptRef)
	if receipt == "" {
		return domain.Obligation{}, domain.ErrReceiptRequired
	}

	now := s.clock.Now()
	ob, err := s.repo.MarkProofSubmitted(ctx, in.ObligationID, in.Actor.ID, receipt, now)
	if err == nil {
		return ob, nil
	}
	if !errors.Is(err, domain.ErrConditionFailed) {
		return domain.Obligation{}, err
	}

	current, err := s.repo.GetObligation(ctx, in.ObligationID)
	if err != nil {
		return domain.Obligation{}, err
	}
	switch {
	case current.ParticipantID != in.Actor.ID:
		return domain.Obligation{}, domain.ErrNotHolder
	case current.Status == domain.ObligationExpired, current.Lapsed(now):
		return domain.Obligation{}, domain.ErrHoldExpired
	default:
		return domain.Obligation{}, domain.ErrInvalidState
	}
}

type DecisionInput struct {
	ObligationID string
	Actor        domain.Actor
}

type RejectInput struct {
	ObligationID string
	Actor        domain.Actor
	Reason       string
}

type SettlementResult struct {
	Stand      domain.Stand
	Obligation domain.Obligation
	// Applied is false when the call found the decision already in place.
	Applied bool
}

// Approve marks a reviewed obligation paid and sells its stand. Approving an
// obligation that is already paid returns the current state unchanged.
func (s *SettlementService) Approve(ctx context.Context, in DecisionInput) (SettlementResult, error) {
	res, err := s.approve(ctx, in)
	monitoring.TrackSettlement("approve", outcome(err))
	if err != nil {
		return SettlementResult{}, err
	}
	if !res.Applied {
		return res, nil
	}

	s.logger.Info("obligation approved",
		"obligation_id", res.Obligation.ID,
		"stand_id", res.Stand.ID,
		"decided_by", in.Actor.ID,
	)
	s.publish(ctx, brokermsg.TopicObligationPaid, obligationMessage(res.Obligation))
	return res, nil
}

func (s *SettlementService) approve(ctx context.Context, in DecisionInput) (SettlementResult, error) {
	if in.ObligationID == "" {
		return SettlementResult{}, domain.ErrInvalidID
	}
	if in.Actor.ID == "" {
		return SettlementResult{}, domain.ErrActorRequired
	}

	now := s.clock.Now()
	var result SettlementResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		ob, err := s.repo.SettleObligation(txCtx, in.ObligationID, domain.ObligationPaid, domain.Decision{
			By: in.Actor.ID,
			At: now,
		})
		if err != nil {
			if !errors.Is(err, domain.ErrConditionFailed) {
				return err
			}
			current, err := s.repo.GetObligation(txCtx, in.ObligationID)
			if err != nil {
				return err
			}
			if current.Status == domain.ObligationPaid {
				stand, err := s.repo.GetStand(txCtx, current.StandID)
				if err != nil {
					return err
				}
				result = SettlementResult{Stand: stand, Obligation: current}
				return nil
			}
			return decisionMiss(current, now)
		}

		stand, err := s.repo.SellStand(txCtx, ob.StandID, ob.ParticipantID, now)
		if err != nil {
			if errors.Is(err, domain.ErrConditionFailed) {
				return domain.ErrStandNotReservedByActor
			}
			return err
		}

		result = SettlementResult{Stand: stand, Obligation: ob, Applied: true}
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}
	return result, nil
}

// Reject declines a reviewed obligation and puts the stand back in the pool.
func (s *SettlementService) Reject(ctx context.Context, in RejectInput) (SettlementResult, error) {
	res, err := s.reject(ctx, in)
	monitoring.TrackSettlement("reject", outcome(err))
	if err != nil {
		return SettlementResult{}, err
	}

	s.logger.Info("obligation rejected",
		"obligation_id", res.Obligation.ID,
		"stand_id", res.Stand.ID,
		"decided_by", in.Actor.ID,
	)
	s.publish(ctx, brokermsg.TopicObligationRejected, obligationMessage(res.Obligation))
	s.publish(ctx, brokermsg.TopicStandReleased, releasedMessage(res.Stand, res.Obligation))
	return res, nil
}

func (s *SettlementService) reject(ctx context.Context, in RejectInput) (SettlementResult, error) {
	if in.ObligationID == "" {
		return SettlementResult{}, domain.ErrInvalidID
	}
	if in.Actor.ID == "" {
		return SettlementResult{}, domain.ErrActorRequired
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		reason = "payment rejected"
	}

	now := s.clock.Now()
	var result SettlementResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		ob, err := s.repo.SettleObligation(txCtx, in.ObligationID, domain.ObligationRejected, domain.Decision{
			By:     in.Actor.ID,
			Reason: reason,
			At:     now,
		})
		if err != nil {
			if !errors.Is(err, domain.ErrConditionFailed) {
				return err
			}
			current, err := s.repo.GetObligation(txCtx, in.ObligationID)
			if err != nil {
				return err
			}
			return decisionMiss(current, now)
		}

		stand, err := s.repo.ReleaseStand(txCtx, ob.StandID, ob.ParticipantID, now)
		if err != nil {
			if errors.Is(err, domain.ErrConditionFailed) {
				return domain.ErrStandNotReservedByActor
			}
			return err
		}

		result = SettlementResult{Stand: stand, Obligation: ob, Applied: true}
		return nil
	})
	if err != nil {
		return SettlementResult{}, err
	}
	return result, nil
}

// decisionMiss explains why a reviewer decision did not apply to current.
func decisionMiss(current domain.Obligation, now time.Time) error {
	switch {
	case current.Status == domain.ObligationExpired, current.Lapsed(now):
		return domain.ErrHoldExpired
	case current.Status == domain.ObligationPending:
		return domain.ErrNoProofSubmitted
	default:
		return domain.ErrInvalidState
	}
}

type OverrideInput struct {
	StandID  string
	Status   domain.StandStatus
	HolderID string
	Note     string
	Actor    domain.Actor
}

type OverrideResult struct {
	Stand          domain.Stand
	PreviousStatus domain.StandStatus
	// Terminated is the obligation that held the stand before the override.
	Terminated *domain.Obligation
}

// SetStandStatus is the back-office escape hatch. It forces the stand into
// the requested status and always rejects the active obligation first, so a
// stand never keeps a live obligation it no longer honours.
func (s *SettlementService) SetStandStatus(ctx context.Context, in OverrideInput) (OverrideResult, error) {
	res, err := s.setStandStatus(ctx, in)
	monitoring.TrackSettlement("override", outcome(err))
	if err != nil {
		return OverrideResult{}, err
	}

	s.logger.Warn("stand status overridden",
		"stand_id", res.Stand.ID,
		"from", res.PreviousStatus,
		"to", res.Stand.Status,
		"actor_id", in.Actor.ID,
		"note", in.Note,
	)
	msg := brokermsg.StandOverriddenMessage{
		StandID:        res.Stand.ID,
		EventID:        res.Stand.EventID,
		PreviousStatus: string(res.PreviousStatus),
		Status:         string(res.Stand.Status),
		HolderID:       res.Stand.HolderID,
		ActorID:        in.Actor.ID,
		Note:           in.Note,
	}
	if res.Terminated != nil {
		msg.TerminatedObligation = res.Terminated.ID
		s.publish(ctx, brokermsg.TopicObligationRejected, obligationMessage(*res.Terminated))
	}
	s.publish(ctx, brokermsg.TopicStandOverridden, msg)
	return res, nil
}

func (s *SettlementService) setStandStatus(ctx context.Context, in OverrideInput) (OverrideResult, error) {
	if in.StandID == "" {
		return OverrideResult{}, domain.ErrInvalidID
	}
	if in.Actor.ID == "" {
		return OverrideResult{}, domain.ErrActorRequired
	}
	if !in.Actor.Role.Privileged() {
		return OverrideResult{}, domain.ErrForbidden
	}
	if !in.Status.Valid() {
		return OverrideResult{}, domain.ErrInvalidStandStatus
	}

	now := s.clock.Now()
	var result OverrideResult

	err := s.repo.WithTx(ctx, func(txCtx context.Context) error {
		decision := domain.Decision{
			By:     in.Actor.ID,
			Reason: domain.ReasonAdministrativeOverride,
			At:     now,
		}
		// Obligation before stand, the same lock order as Approve and Reject.
		terminated, err := s.repo.TerminateActiveObligation(txCtx, in.StandID, decision)
		if err != nil {
			return err
		}

		current, err := s.repo.GetStandForUpdate(txCtx, in.StandID)
		if err != nil {
			return err
		}

		// A Reserve that committed before the stand lock was taken inserted
		// an obligation the first pass could not see. With the stand held no
		// new one can appear, so this pass is final.
		if terminated == nil {
			terminated, err = s.repo.TerminateActiveObligation(txCtx, in.StandID, decision)
			if err != nil {
				return err
			}
		}

		holder := ""
		if in.Status != domain.StandAvailable {
			holder = in.HolderID
			if holder == "" {
				holder = current.HolderID
			}
			if holder == "" {
				return domain.ErrHolderRequired
			}
		}

		stand, err := s.repo.ForceStandStatus(txCtx, in.StandID, in.Status, holder, now)
		if err != nil {
			return err
		}

		result = OverrideResult{
			Stand:          stand,
			PreviousStatus: current.Status,
			Terminated:     terminated,
		}
		return nil
	})
	if err != nil {
		return OverrideResult{}, err
	}
	return result, nil
}
