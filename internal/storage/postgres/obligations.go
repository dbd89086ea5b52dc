package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/jackc/pgx/v5"
)

const activeStatuses = `('pending', 'under_review')`

func (s *Store) CreateObligation(ctx context.Context, ob domain.Obligation) error {
	const stmt = `
INSERT INTO payment_obligations (id, stand_id, participant_id, amount, status, created_at, expires_at)
VALUES ($1, $2, $3, $4::numeric, $5, $6, $7)`

	_, err := s.exec(ctx, stmt,
		ob.ID,
		ob.StandID,
		ob.ParticipantID,
		ob.Amount.String(),
		ob.Status,
		ob.CreatedAt,
		ob.ExpiresAt,
	)
	if err != nil {
		if mapped := translate(err, obligationConstraints); mapped != nil {
			return mapped
		}
		return fmt.Errorf("create obligation: %w", err)
	}
	return nil
}

func (s *Store) GetObligation(ctx context.Context, obligationID string) (domain.Obligation, error) {
	query := `SELECT ` + obligationColumns + ` FROM payment_obligations o WHERE o.id = $1`
	ob, err := scanObligation(s.queryRow(ctx, query, obligationID))
	if err != nil {
		if mapped := translate(err, nil); mapped != nil {
			return domain.Obligation{}, mapped
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Obligation{}, domain.ErrObligationNotFound
		}
		return domain.Obligation{}, fmt.Errorf("get obligation: %w", err)
	}
	return ob, nil
}

// CurrentObligation returns the most recent obligation of the stand, or nil
// when it was never reserved.
func (s *Store) CurrentObligation(ctx context.Context, standID string) (*domain.Obligation, error) {
	query := `
SELECT ` + obligationColumns + `
FROM payment_obligations o
WHERE o.stand_id = $1
ORDER BY o.created_at DESC, o.seq DESC
LIMIT 1`
	ob, err := scanObligation(s.queryRow(ctx, query, standID))
	if err != nil {
		if mapped := translate(err, nil); mapped != nil {
			return nil, mapped
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("current obligation: %w", err)
	}
	return &ob, nil
}

func (s *Store) ListObligationsByStand(ctx context.Context, standID string) ([]domain.Obligation, error) {
	if _, err := s.GetStand(ctx, standID); err != nil {
		return nil, err
	}

	query := `
SELECT ` + obligationColumns + `
FROM payment_obligations o
WHERE o.stand_id = $1
ORDER BY o.created_at DESC, o.seq DESC`
	return s.listObligations(ctx, "list obligations", query, standID)
}

func (s *Store) ListExpiredObligations(ctx context.Context, now time.Time, limit int) ([]domain.Obligation, error) {
	var lim any
	if limit > 0 {
		lim = limit
	}
	query := `
SELECT ` + obligationColumns + `
FROM payment_obligations o
WHERE o.status IN ` + activeStatuses + ` AND o.expires_at < $1
ORDER BY o.expires_at ASC
LIMIT $2`
	return s.listObligations(ctx, "list expired obligations", query, now, lim)
}

func (s *Store) listObligations(ctx context.Context, op, query string, args ...any) ([]domain.Obligation, error) {
	rows, err := s.query(ctx, query, args...)
	if err != nil {
		if mapped := translate(err, nil); mapped != nil {
			return nil, mapped
		}
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	var out []domain.Obligation
	for rows.Next() {
		ob, err := scanObligation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan obligation: %w", err)
		}
		out = append(out, ob)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("%s: %w", op, rows.Err())
	}
	return out, nil
}

func (s *Store) MarkProofSubmitted(ctx context.Context, obligationID, participantID, receiptRef string, now time.Time) (domain.Obligation, error) {
	query := `
UPDATE payment_obligations o
SET status = 'under_review', receipt_ref = $3
WHERE o.id = $1 AND o.participant_id = $2 AND o.status = 'pending' AND o.expires_at > $4
RETURNING ` + obligationColumns
	return s.casObligation(ctx, "mark proof submitted", query, obligationID, participantID, receiptRef, now)
}

// SettleObligation applies a reviewer decision. A hold that lapsed before the
// decision cannot be settled even if the sweeper has not reached it yet.
func (s *Store) SettleObligation(ctx context.Context, obligationID string, to domain.ObligationStatus, d domain.Decision) (domain.Obligation, error) {
	query := `
UPDATE payment_obligations o
SET status = $2, decided_by = NULLIF($3, ''), reason = COALESCE(NULLIF($4, ''), o.reason), decided_at = $5
WHERE o.id = $1 AND o.status = 'under_review' AND o.expires_at > $5
RETURNING ` + obligationColumns
	return s.casObligation(ctx, "settle obligation", query, obligationID, to, d.By, d.Reason, d.At)
}

func (s *Store) CancelActiveObligation(ctx context.Context, standID, participantID string, d domain.Decision) (domain.Obligation, error) {
	query := `
UPDATE payment_obligations o
SET status = 'rejected', decided_by = NULLIF($3, ''), reason = NULLIF($4, ''), decided_at = $5
WHERE o.stand_id = $1 AND o.participant_id = $2 AND o.status IN ` + activeStatuses + `
RETURNING ` + obligationColumns
	return s.casObligation(ctx, "cancel obligation", query, standID, participantID, d.By, d.Reason, d.At)
}

func (s *Store) TerminateActiveObligation(ctx context.Context, standID string, d domain.Decision) (*domain.Obligation, error) {
	query := `
UPDATE payment_obligations o
SET status = 'rejected', decided_by = NULLIF($2, ''), reason = NULLIF($3, ''), decided_at = $4
WHERE o.stand_id = $1 AND o.status IN ` + activeStatuses + `
RETURNING ` + obligationColumns
	ob, err := s.casObligation(ctx, "terminate obligation", query, standID, d.By, d.Reason, d.At)
	if err != nil {
		if errors.Is(err, domain.ErrConditionFailed) {
			return nil, nil
		}
		return nil, err
	}
	return &ob, nil
}

func (s *Store) ExpireObligation(ctx context.Context, obligationID string, now time.Time) (domain.Obligation, error) {
	query := `
UPDATE payment_obligations o
SET status = 'expired', decided_at = $2
WHERE o.id = $1 AND o.status IN ` + activeStatuses + ` AND o.expires_at < $2
RETURNING ` + obligationColumns
	return s.casObligation(ctx, "expire obligation", query, obligationID, now)
}

func (s *Store) casObligation(ctx context.Context, op, query string, args ...any) (domain.Obligation, error) {
	ob, err := scanObligation(s.queryRow(ctx, query, args...))
	if err != nil {
		if mapped := translate(err, nil); mapped != nil {
			return domain.Obligation{}, mapped
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Obligation{}, domain.ErrConditionFailed
		}
		return domain.Obligation{}, fmt.Errorf("%s: %w", op, err)
	}
	return ob, nil
}
