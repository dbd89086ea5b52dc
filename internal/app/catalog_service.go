package app

import (
	"context"
	"strings"
	"time"

	"github.com/cimillas/expo-stands/internal/clock"
	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/shopspring/decimal"
)

type CatalogRepository interface {
	CreateEvent(ctx context.Context, event domain.Event) error
	ListEvents(ctx context.Context) ([]domain.Event, error)
	SetEventActive(ctx context.Context, eventID string, active bool) (domain.Event, error)
	CreateStand(ctx context.Context, stand domain.Stand) error
	ListStandsByEvent(ctx context.Context, eventID string) ([]domain.Stand, error)
	UpdateStandPrice(ctx context.Context, standID string, price decimal.Decimal, now time.Time) (domain.Stand, error)
}

// CatalogService configures events and their stands for organizers.
type CatalogService struct {
	repo  CatalogRepository
	clock clock.Clock
}

func NewCatalogService(repo CatalogRepository, clk clock.Clock) *CatalogService {
	return &CatalogService{
		repo:  repo,
		clock: clk,
	}
}

type CreateEventInput struct {
	Name        string
	OrganizerID string
	StartsAt    *time.Time
}

func (s *CatalogService) CreateEvent(ctx context.Context, in CreateEventInput) (domain.Event, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Event{}, domain.ErrEventNameRequired
	}
	now := s.clock.Now()
	startsAt := now
	if in.StartsAt != nil {
		startsAt = in.StartsAt.UTC()
	}

	event := domain.Event{
		ID:          newID(),
		Name:        name,
		OrganizerID: in.OrganizerID,
		Active:      true,
		StartsAt:    startsAt,
		CreatedAt:   now,
	}

	if err := s.repo.CreateEvent(ctx, event); err != nil {
		return domain.Event{}, err
	}
	return event, nil
}

func (s *CatalogService) ListEvents(ctx context.Context) ([]domain.Event, error) {
	return s.repo.ListEvents(ctx)
}

// SetEventActive opens or closes an event for reservations. Existing holds
// are left to run their course.
func (s *CatalogService) SetEventActive(ctx context.Context, eventID string, active bool) (domain.Event, error) {
	if eventID == "" {
		return domain.Event{}, domain.ErrInvalidID
	}
	return s.repo.SetEventActive(ctx, eventID, active)
}

type CreateStandInput struct {
	EventID     string
	Name        string
	Description string
	Price       decimal.Decimal
}

func (s *CatalogService) CreateStand(ctx context.Context, in CreateStandInput) (domain.Stand, error) {
	if in.EventID == "" {
		return domain.Stand{}, domain.ErrInvalidID
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Stand{}, domain.ErrStandNameRequired
	}
	if in.Price.IsNegative() {
		return domain.Stand{}, domain.ErrInvalidPrice
	}

	now := s.clock.Now()
	stand := domain.Stand{
		ID:          newID(),
		EventID:     in.EventID,
		Name:        name,
		Description: strings.TrimSpace(in.Description),
		Price:       in.Price.Round(2),
		Status:      domain.StandAvailable,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.repo.CreateStand(ctx, stand); err != nil {
		return domain.Stand{}, err
	}
	return stand, nil
}

func (s *CatalogService) ListStands(ctx context.Context, eventID string) ([]domain.Stand, error) {
	if eventID == "" {
		return nil, domain.ErrInvalidID
	}
	return s.repo.ListStandsByEvent(ctx, eventID)
}

// UpdateStandPrice changes the price for future reservations only; open
// obligations keep the amount they were created with.
func (s *CatalogService) UpdateStandPrice(ctx context.Context, standID string, price decimal.Decimal) (domain.Stand, error) {
	if standID == "" {
		return domain.Stand{}, domain.ErrInvalidID
	}
	if price.IsNegative() {
		return domain.Stand{}, domain.ErrInvalidPrice
	}
	return s.repo.UpdateStandPrice(ctx, standID, price.Round(2), s.clock.Now())
}
