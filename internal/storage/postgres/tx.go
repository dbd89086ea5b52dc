package postgres

import (
	"context"
	"errors"

	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type txKey struct{}

// withTx runs fn in a read-committed transaction carried by the context.
// Nested calls join the outer transaction. Row locks and conditional
// UPDATEs, not isolation level, are what keep concurrent writers apart.
func withTx(ctx context.Context, pool *pgxpool.Pool, fn func(ctx context.Context) error) error {
	if txFromContext(ctx) != nil {
		return fn(ctx)
	}
	return pgx.BeginTxFunc(ctx, pool, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(context.WithValue(ctx, txKey{}, tx))
	})
}

func txFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey{}).(pgx.Tx)
	return tx
}

// SQLSTATE codes the store reacts to.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
	codeInvalidText         = "22P02"
)

// Constraint names declared in the migrations, mapped to the domain error a
// violation means.
var (
	eventConstraints = map[string]error{
		"events_pkey": domain.ErrInvalidID,
	}
	standConstraints = map[string]error{
		"stands_pkey":                  domain.ErrInvalidID,
		"stands_event_name_key":        domain.ErrStandAlreadyExists,
		"stands_event_id_fkey":         domain.ErrEventNotFound,
		"stands_price_check":           domain.ErrInvalidPrice,
		"stands_holder_matches_status": domain.ErrHolderRequired,
	}
	obligationConstraints = map[string]error{
		"payment_obligations_pkey":                 domain.ErrInvalidID,
		"payment_obligations_one_active_per_stand": domain.ErrActiveObligationExists,
		"payment_obligations_stand_id_fkey":        domain.ErrStandNotFound,
	}
)

func pgError(err error) *pgconn.PgError {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr
	}
	return nil
}

// translate maps a Postgres error onto a domain error, or returns nil when
// err is not one the store understands. Malformed ids always become
// domain.ErrInvalidID; integrity violations are looked up by constraint name
// in known.
func translate(err error, known map[string]error) error {
	pe := pgError(err)
	if pe == nil {
		return nil
	}
	switch pe.Code {
	case codeInvalidText:
		return domain.ErrInvalidID
	case codeUniqueViolation, codeForeignKeyViolation, codeCheckViolation:
		return known[pe.ConstraintName]
	}
	return nil
}
