package app

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/cimillas/expo-stands/internal/brokermsg"
	"github.com/cimillas/expo-stands/internal/domain"
)

const defaultHoldTTL = 24 * time.Hour

// EventPublisher delivers state-change messages to downstream consumers.
// Publishing happens after commit and never affects the outcome of a call.
type EventPublisher interface {
	Publish(ctx context.Context, key string, message any) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, string, any) error { return nil }

type settings struct {
	holdTTL   time.Duration
	publisher EventPublisher
	logger    *slog.Logger
}

func newSettings(opts []Option) settings {
	s := settings{
		holdTTL:   defaultHoldTTL,
		publisher: noopPublisher{},
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(&s)
	}
	return s
}

type Option func(*settings)

// WithHoldTTL overrides how long a reservation holds its stand.
func WithHoldTTL(d time.Duration) Option {
	return func(s *settings) {
		if d > 0 {
			s.holdTTL = d
		}
	}
}

func WithPublisher(p EventPublisher) Option {
	return func(s *settings) {
		if p != nil {
			s.publisher = p
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(s *settings) {
		if l != nil {
			s.logger = l
		}
	}
}

func (s settings) publish(ctx context.Context, key string, message any) {
	if err := s.publisher.Publish(ctx, key, message); err != nil {
		s.logger.Warn("publish state change failed", "key", key, "error", err)
	}
}

func outcome(err error) string {
	if err == nil {
		return "ok"
	}
	return string(domain.KindOf(err))
}

func obligationMessage(ob domain.Obligation) brokermsg.ObligationMessage {
	return brokermsg.ObligationMessage{
		ObligationID:  ob.ID,
		StandID:       ob.StandID,
		ParticipantID: ob.ParticipantID,
		Status:        string(ob.Status),
		Amount:        ob.Amount.StringFixed(2),
		ReceiptRef:    ob.ReceiptRef,
		Reason:        ob.Reason,
		DecidedBy:     ob.DecidedBy,
		DecidedAt:     ob.DecidedAt,
	}
}

func releasedMessage(stand domain.Stand, ob domain.Obligation) brokermsg.StandReleasedMessage {
	return brokermsg.StandReleasedMessage{
		StandID:       stand.ID,
		EventID:       stand.EventID,
		ObligationID:  ob.ID,
		ParticipantID: ob.ParticipantID,
		Reason:        string(ob.Status),
	}
}
