package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Store implements every repository the app layer needs on one pool.
// Conditional writes are single UPDATE ... WHERE <expected state> statements;
// a miss surfaces as domain.ErrConditionFailed.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return withTx(ctx, s.pool, fn)
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *Store) exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Exec(ctx, sql, args...)
	}
	return s.pool.Exec(ctx, sql, args...)
}

func (s *Store) queryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if tx := txFromContext(ctx); tx != nil {
		return tx.QueryRow(ctx, sql, args...)
	}
	return s.pool.QueryRow(ctx, sql, args...)
}

func (s *Store) query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	if tx := txFromContext(ctx); tx != nil {
		return tx.Query(ctx, sql, args...)
	}
	return s.pool.Query(ctx, sql, args...)
}

type rowScanner interface {
	Scan(dest ...any) error
}

// Numeric columns are read as text and parsed so prices never pass through
// a float.
const standColumns = `s.id, s.event_id, s.name, s.description, s.price::text, s.status,
	COALESCE(s.holder_id, ''), s.created_at, s.updated_at`

func scanStand(row rowScanner) (domain.Stand, error) {
	var (
		st    domain.Stand
		price string
	)
	err := row.Scan(&st.ID, &st.EventID, &st.Name, &st.Description, &price, &st.Status,
		&st.HolderID, &st.CreatedAt, &st.UpdatedAt)
	if err != nil {
		return domain.Stand{}, err
	}
	st.Price, err = decimal.NewFromString(price)
	if err != nil {
		return domain.Stand{}, fmt.Errorf("parse stand price %q: %w", price, err)
	}
	return st, nil
}

const obligationColumns = `o.id, o.stand_id, o.participant_id, o.amount::text, o.status,
	COALESCE(o.receipt_ref, ''), COALESCE(o.reason, ''), COALESCE(o.decided_by, ''),
	o.created_at, o.expires_at, o.decided_at`

func scanObligation(row rowScanner) (domain.Obligation, error) {
	var (
		ob     domain.Obligation
		amount string
	)
	err := row.Scan(&ob.ID, &ob.StandID, &ob.ParticipantID, &amount, &ob.Status,
		&ob.ReceiptRef, &ob.Reason, &ob.DecidedBy, &ob.CreatedAt, &ob.ExpiresAt, &ob.DecidedAt)
	if err != nil {
		return domain.Obligation{}, err
	}
	ob.Amount, err = decimal.NewFromString(amount)
	if err != nil {
		return domain.Obligation{}, fmt.Errorf("parse obligation amount %q: %w", amount, err)
	}
	return ob, nil
}

const eventColumns = `e.id, e.name, e.organizer_id, e.active, e.starts_at, e.created_at`

func scanEvent(row rowScanner) (domain.Event, error) {
	var (
		ev       domain.Event
		startsAt *time.Time
	)
	if err := row.Scan(&ev.ID, &ev.Name, &ev.OrganizerID, &ev.Active, &startsAt, &ev.CreatedAt); err != nil {
		return domain.Event{}, err
	}
	if startsAt != nil {
		ev.StartsAt = *startsAt
	}
	return ev, nil
}
