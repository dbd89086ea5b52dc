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

// The latest obligation per stand, joined laterally so stands without any
// obligation still show up.
const standViewSelect = `
SELECT ` + standColumns + `,
	o.id, o.stand_id, o.participant_id, o.amount::text, o.status,
	o.receipt_ref, o.reason, o.decided_by, o.created_at, o.expires_at, o.decided_at
FROM stands s
LEFT JOIN LATERAL (
	SELECT *
	FROM payment_obligations p
	WHERE p.stand_id = s.id
	ORDER BY p.created_at DESC, p.seq DESC
	LIMIT 1
) o ON TRUE`

func (s *Store) ListStandViews(ctx context.Context, eventID string) ([]domain.StandView, error) {
	if err := s.eventExists(ctx, eventID); err != nil {
		return nil, err
	}

	rows, err := s.query(ctx, standViewSelect+` WHERE s.event_id = $1 ORDER BY s.created_at ASC, s.name ASC`, eventID)
	if err != nil {
		return nil, fmt.Errorf("list stand views: %w", err)
	}
	defer rows.Close()

	var views []domain.StandView
	for rows.Next() {
		v, err := scanStandView(rows)
		if err != nil {
			return nil, fmt.Errorf("scan stand view: %w", err)
		}
		views = append(views, v)
	}
	if rows.Err() != nil {
		return nil, fmt.Errorf("iterate stand views: %w", rows.Err())
	}
	return views, nil
}

func (s *Store) GetStandView(ctx context.Context, standID string) (domain.StandView, error) {
	v, err := scanStandView(s.queryRow(ctx, standViewSelect+` WHERE s.id = $1`, standID))
	if err != nil {
		if mapped := translate(err, nil); mapped != nil {
			return domain.StandView{}, mapped
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.StandView{}, domain.ErrStandNotFound
		}
		return domain.StandView{}, fmt.Errorf("get stand view: %w", err)
	}
	return v, nil
}

func scanStandView(row rowScanner) (domain.StandView, error) {
	var (
		st    domain.Stand
		price string

		obID, obStandID, participantID, amount, status *string
		receiptRef, reason, decidedBy                  *string
		createdAt, expiresAt, decidedAt                *time.Time
	)
	err := row.Scan(
		&st.ID, &st.EventID, &st.Name, &st.Description, &price, &st.Status,
		&st.HolderID, &st.CreatedAt, &st.UpdatedAt,
		&obID, &obStandID, &participantID, &amount, &status,
		&receiptRef, &reason, &decidedBy, &createdAt, &expiresAt, &decidedAt,
	)
	if err != nil {
		return domain.StandView{}, err
	}
	if st.Price, err = decimal.NewFromString(price); err != nil {
		return domain.StandView{}, fmt.Errorf("parse stand price %q: %w", price, err)
	}

	view := domain.StandView{Stand: st}
	if obID == nil {
		return view, nil
	}

	ob := domain.Obligation{
		ID:            *obID,
		StandID:       deref(obStandID),
		ParticipantID: deref(participantID),
		Status:        domain.ObligationStatus(deref(status)),
		ReceiptRef:    deref(receiptRef),
		Reason:        deref(reason),
		DecidedBy:     deref(decidedBy),
		DecidedAt:     decidedAt,
	}
	if createdAt != nil {
		ob.CreatedAt = *createdAt
	}
	if expiresAt != nil {
		ob.ExpiresAt = *expiresAt
	}
	if ob.Amount, err = decimal.NewFromString(deref(amount)); err != nil {
		return domain.StandView{}, fmt.Errorf("parse obligation amount: %w", err)
	}
	view.Obligation = &ob
	return view, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
