package app

import (
	"context"

	"github.com/cimillas/expo-stands/internal/domain"
)

type QueryRepository interface {
	ListStandViews(ctx context.Context, eventID string) ([]domain.StandView, error)
	GetStandView(ctx context.Context, standID string) (domain.StandView, error)
	ListObligationsByStand(ctx context.Context, standID string) ([]domain.Obligation, error)
}

// QueryService is the read side for participant, organizer and admin
// dashboards. It never writes.
type QueryService struct {
	repo QueryRepository
}

func NewQueryService(repo QueryRepository) *QueryService {
	return &QueryService{repo: repo}
}

// GetStandsForEvent returns every stand of the event with its current
// obligation.
func (s *QueryService) GetStandsForEvent(ctx context.Context, eventID string) ([]domain.StandView, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListStandViews(ctx, eventID)
}

func (s *QueryService) GetStand(ctx context.Context, standID string) (domain.StandView, error) {
	if standID == "" {
		return domain.StandView{}, domain.ErrInvalidID
	}
	return s.repo.GetStandView(ctx, standID)
}

// ListObligations returns the obligation history of a stand, newest first.
func (s *QueryService) ListObligations(ctx context.Context, standID string) ([]domain.Obligation, error) {
	if standID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListObligationsByStand(ctx, standID)
}
