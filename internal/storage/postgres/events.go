package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/jackc/pgx/v5"
)

func (s *Store) CreateEvent(ctx context.Context, event domain.Event) error {
	const stmt = `
INSERT INTO events (id, name, organizer_id, active, starts_at, created_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	var startsAt *time.Time
	if !event.StartsAt.IsZero() {
		startsAt = &event.StartsAt
	}
	_, err := s.exec(ctx, stmt, event.ID, event.Name, event.OrganizerID, event.Active, startsAt, event.CreatedAt)
	if err != nil {
		if mapped := translate(err, eventConstraints); mapped != nil {
			return mapped
		}
		return fmt.Errorf("create event: %w", err)
	}
	return nil
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e WHERE e.id = $1`
	ev, err := scanEvent(s.queryRow(ctx, query, eventID))
	if err != nil {
		if mapped := translate(err, nil); mapped != nil {
			return domain.Event{}, mapped
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("get event: %w", err)
	}
	return ev, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]domain.Event, error) {
	query := `SELECT ` + eventColumns + ` FROM events e ORDER BY e.created_at ASC, e.name ASC`
	rows, err := s.query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var events []domain.Event
	for rows.Next() {
		ev, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate events: %w", rows.Err())
	}
	return events, nil
}

func (s *Store) SetEventActive(ctx context.Context, eventID string, active bool) (domain.Event, error) {
	query := `UPDATE events e SET active = $2 WHERE e.id = $1 RETURNING ` + eventColumns
	ev, err := scanEvent(s.queryRow(ctx, query, eventID, active))
	if err != nil {
		if mapped := translate(err, nil); mapped != nil {
			return domain.Event{}, mapped
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Event{}, domain.ErrEventNotFound
		}
		return domain.Event{}, fmt.Errorf("set event active: %w", err)
	}
	return ev, nil
}

func (s *Store) eventExists(ctx context.Context, eventID string) error {
	var exists bool
	if err := s.queryRow(ctx, `SELECT EXISTS (SELECT 1 FROM events WHERE id = $1)`, eventID).Scan(&exists); err != nil {
		if mapped := translate(err, nil); mapped != nil {
			return mapped
		}
		return fmt.Errorf("check event: %w", err)
	}
	if !exists {
		return domain.ErrEventNotFound
	}
	return nil
}
