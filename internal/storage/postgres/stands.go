package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func (s *Store) CreateStand(ctx context.Context, stand domain.Stand) error {
	const stmt = `
INSERT INTO stands (id, event_id, name, description, price, status, holder_id, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5::numeric, $6, NULLIF($7, ''), $8, $9)`

	_, err := s.exec(ctx, stmt,
		stand.ID,
		stand.EventID,
		stand.Name,
		stand.Description,
		stand.Price.String(),
		stand.Status,
		stand.HolderID,
		stand.CreatedAt,
		stand.UpdatedAt,
	)
	if err != nil {
		if mapped := translate(err, standConstraints); mapped != nil {
			return mapped
		}
		return fmt.Errorf("create stand: %w", err)
	}
	return nil
}

func (s *Store) GetStand(ctx context.Context, standID string) (domain.Stand, error) {
	return s.getStand(ctx, `SELECT `+standColumns+` FROM stands s WHERE s.id = $1`, standID)
}

// GetStandForUpdate row-locks the stand until the surrounding transaction ends.
func (s *Store) GetStandForUpdate(ctx context.Context, standID string) (domain.Stand, error) {
	return s.getStand(ctx, `SELECT `+standColumns+` FROM stands s WHERE s.id = $1 FOR UPDATE`, standID)
}

func (s *Store) getStand(ctx context.Context, query, standID string) (domain.Stand, error) {
	st, err := scanStand(s.queryRow(ctx, query, standID))
	if err != nil {
		if mapped := translate(err, nil); mapped != nil {
			return domain.Stand{}, mapped
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stand{}, domain.ErrStandNotFound
		}
		return domain.Stand{}, fmt.Errorf("get stand: %w", err)
	}
	return st, nil
}

func (s *Store) ListStandsByEvent(ctx context.Context, eventID string) ([]domain.Stand, error) {
	if err := s.eventExists(ctx, eventID); err != nil {
		return nil, err
	}

	query := `SELECT ` + standColumns + ` FROM stands s WHERE s.event_id = $1 ORDER BY s.created_at ASC, s.name ASC`
	rows, err := s.query(ctx, query, eventID)
	if err != nil {
		return nil, fmt.Errorf("list stands: %w", err)
	}
	defer rows.Close()

	var stands []domain.Stand
	for rows.Next() {
		st, err := scanStand(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stand: %w", err)
		}
		stands = append(stands, st)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate stands: %w", rows.Err())
	}
	return stands, nil
}

func (s *Store) UpdateStandPrice(ctx context.Context, standID string, price decimal.Decimal, now time.Time) (domain.Stand, error) {
	query := `UPDATE stands s SET price = $2::numeric, updated_at = $3 WHERE s.id = $1 RETURNING ` + standColumns
	st, err := scanStand(s.queryRow(ctx, query, standID, price.String(), now))
	if err != nil {
		if mapped := translate(err, standConstraints); mapped != nil {
			return domain.Stand{}, mapped
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stand{}, domain.ErrStandNotFound
		}
		return domain.Stand{}, fmt.Errorf("update stand price: %w", err)
	}
	return st, nil
}

// ReserveStand is the compare-and-swap that prevents double booking. Under
// concurrent callers Postgres re-checks the WHERE clause after the first
// writer commits, so only one of them sees a row.
func (s *Store) ReserveStand(ctx context.Context, standID, holderID string, now time.Time) (domain.Stand, error) {
	query := `
UPDATE stands s
SET status = 'reserved', holder_id = $2, updated_at = $3
FROM events e
WHERE s.id = $1 AND s.status = 'available' AND e.id = s.event_id AND e.active
RETURNING ` + standColumns
	return s.casStand(ctx, "reserve stand", query, standID, holderID, now)
}

func (s *Store) ReleaseStand(ctx context.Context, standID, holderID string, now time.Time) (domain.Stand, error) {
	query := `
UPDATE stands s
SET status = 'available', holder_id = NULL, updated_at = $3
WHERE s.id = $1 AND s.status = 'reserved' AND s.holder_id = $2
RETURNING ` + standColumns
	return s.casStand(ctx, "release stand", query, standID, holderID, now)
}

func (s *Store) SellStand(ctx context.Context, standID, holderID string, now time.Time) (domain.Stand, error) {
	query := `
UPDATE stands s
SET status = 'sold', updated_at = $3
WHERE s.id = $1 AND s.status = 'reserved' AND s.holder_id = $2
RETURNING ` + standColumns
	return s.casStand(ctx, "sell stand", query, standID, holderID, now)
}

func (s *Store) casStand(ctx context.Context, op, query string, args ...any) (domain.Stand, error) {
	st, err := scanStand(s.queryRow(ctx, query, args...))
	if err != nil {
		if mapped := translate(err, nil); mapped != nil {
			return domain.Stand{}, mapped
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stand{}, domain.ErrConditionFailed
		}
		return domain.Stand{}, fmt.Errorf("%s: %w", op, err)
	}
	return st, nil
}

// ForceStandStatus writes status and holder unconditionally. An available
// stand never keeps a holder.
func (s *Store) ForceStandStatus(ctx context.Context, standID string, status domain.StandStatus, holderID string, now time.Time) (domain.Stand, error) {
	if status == domain.StandAvailable {
		holderID = ""
	}
	query := `
UPDATE stands s
SET status = $2, holder_id = NULLIF($3, ''), updated_at = $4
WHERE s.id = $1
RETURNING ` + standColumns
	st, err := scanStand(s.queryRow(ctx, query, standID, status, holderID, now))
	if err != nil {
		if mapped := translate(err, standConstraints); mapped != nil {
			return domain.Stand{}, mapped
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Stand{}, domain.ErrStandNotFound
		}
		return domain.Stand{}, fmt.Errorf("force stand status: %w", err)
	}
	return st, nil
}
