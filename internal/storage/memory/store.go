// Package memory is a process-local store with the same conditional-write
// semantics as the Postgres store. Transactions are serialized behind one
// mutex, which is enough for local runs and tests but not for replicas.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/shopspring/decimal"
)

type txKey struct{}

type Store struct {
	mu sync.Mutex

	events      map[string]domain.Event
	eventOrder  []string
	stands      map[string]domain.Stand
	standOrder  []string
	obligations []domain.Obligation
}

func NewStore() *Store {
	return &Store{
		events: make(map[string]domain.Event),
		stands: make(map[string]domain.Stand),
	}
}

// Ping always succeeds; it lets the store stand in for a database in
// readiness checks.
func (s *Store) Ping(context.Context) error { return nil }

type snapshot struct {
	events      map[string]domain.Event
	eventOrder  []string
	stands      map[string]domain.Stand
	standOrder  []string
	obligations []domain.Obligation
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{
		events:      make(map[string]domain.Event, len(s.events)),
		eventOrder:  append([]string(nil), s.eventOrder...),
		stands:      make(map[string]domain.Stand, len(s.stands)),
		standOrder:  append([]string(nil), s.standOrder...),
		obligations: append([]domain.Obligation(nil), s.obligations...),
	}
	for k, v := range s.events {
		snap.events[k] = v
	}
	for k, v := range s.stands {
		snap.stands[k] = v
	}
	return snap
}

func (s *Store) restore(snap snapshot) {
	s.events = snap.events
	s.eventOrder = snap.eventOrder
	s.stands = snap.stands
	s.standOrder = snap.standOrder
	s.obligations = snap.obligations
}

// WithTx runs fn with the store locked and rolls every change back if fn
// returns an error. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snap := s.snapshot()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.restore(snap)
		return err
	}
	return nil
}

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// Events

func (s *Store) CreateEvent(ctx context.Context, event domain.Event) error {
	defer s.lock(ctx)()
	if _, ok := s.events[event.ID]; ok {
		return domain.ErrInvalidID
	}
	s.events[event.ID] = event
	s.eventOrder = append(s.eventOrder, event.ID)
	return nil
}

func (s *Store) GetEvent(ctx context.Context, eventID string) (domain.Event, error) {
	defer s.lock(ctx)()
	event, ok := s.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	return event, nil
}

func (s *Store) ListEvents(ctx context.Context) ([]domain.Event, error) {
	defer s.lock(ctx)()
	out := make([]domain.Event, 0, len(s.eventOrder))
	for _, id := range s.eventOrder {
		out = append(out, s.events[id])
	}
	return out, nil
}

func (s *Store) SetEventActive(ctx context.Context, eventID string, active bool) (domain.Event, error) {
	defer s.lock(ctx)()
	event, ok := s.events[eventID]
	if !ok {
		return domain.Event{}, domain.ErrEventNotFound
	}
	event.Active = active
	s.events[eventID] = event
	return event, nil
}

// Stands

func (s *Store) CreateStand(ctx context.Context, stand domain.Stand) error {
	defer s.lock(ctx)()
	if _, ok := s.events[stand.EventID]; !ok {
		return domain.ErrEventNotFound
	}
	for _, id := range s.standOrder {
		existing := s.stands[id]
		if existing.ID == stand.ID || (existing.EventID == stand.EventID && existing.Name == stand.Name) {
			return domain.ErrStandAlreadyExists
		}
	}
	s.stands[stand.ID] = stand
	s.standOrder = append(s.standOrder, stand.ID)
	return nil
}

func (s *Store) GetStand(ctx context.Context, standID string) (domain.Stand, error) {
	defer s.lock(ctx)()
	stand, ok := s.stands[standID]
	if !ok {
		return domain.Stand{}, domain.ErrStandNotFound
	}
	return stand, nil
}

// GetStandForUpdate is GetStand; inside a transaction the whole store is
// already locked.
func (s *Store) GetStandForUpdate(ctx context.Context, standID string) (domain.Stand, error) {
	return s.GetStand(ctx, standID)
}

func (s *Store) ListStandsByEvent(ctx context.Context, eventID string) ([]domain.Stand, error) {
	defer s.lock(ctx)()
	if _, ok := s.events[eventID]; !ok {
		return nil, domain.ErrEventNotFound
	}
	return s.standsOf(eventID), nil
}

func (s *Store) standsOf(eventID string) []domain.Stand {
	var out []domain.Stand
	for _, id := range s.standOrder {
		if stand := s.stands[id]; stand.EventID == eventID {
			out = append(out, stand)
		}
	}
	return out
}

func (s *Store) UpdateStandPrice(ctx context.Context, standID string, price decimal.Decimal, now time.Time) (domain.Stand, error) {
	defer s.lock(ctx)()
	stand, ok := s.stands[standID]
	if !ok {
		return domain.Stand{}, domain.ErrStandNotFound
	}
	stand.Price = price
	stand.UpdatedAt = now
	s.stands[standID] = stand
	return stand, nil
}

func (s *Store) ReserveStand(ctx context.Context, standID, holderID string, now time.Time) (domain.Stand, error) {
	defer s.lock(ctx)()
	stand, ok := s.stands[standID]
	if !ok || stand.Status != domain.StandAvailable || !s.events[stand.EventID].Active {
		return domain.Stand{}, domain.ErrConditionFailed
	}
	return s.putStand(stand, domain.StandReserved, holderID, now), nil
}

func (s *Store) ReleaseStand(ctx context.Context, standID, holderID string, now time.Time) (domain.Stand, error) {
	defer s.lock(ctx)()
	stand, ok := s.stands[standID]
	if !ok || stand.Status != domain.StandReserved || stand.HolderID != holderID {
		return domain.Stand{}, domain.ErrConditionFailed
	}
	return s.putStand(stand, domain.StandAvailable, "", now), nil
}

func (s *Store) SellStand(ctx context.Context, standID, holderID string, now time.Time) (domain.Stand, error) {
	defer s.lock(ctx)()
	stand, ok := s.stands[standID]
	if !ok || stand.Status != domain.StandReserved || stand.HolderID != holderID {
		return domain.Stand{}, domain.ErrConditionFailed
	}
	return s.putStand(stand, domain.StandSold, holderID, now), nil
}

func (s *Store) ForceStandStatus(ctx context.Context, standID string, status domain.StandStatus, holderID string, now time.Time) (domain.Stand, error) {
	defer s.lock(ctx)()
	stand, ok := s.stands[standID]
	if !ok {
		return domain.Stand{}, domain.ErrStandNotFound
	}
	if status == domain.StandAvailable {
		holderID = ""
	}
	return s.putStand(stand, status, holderID, now), nil
}

func (s *Store) putStand(stand domain.Stand, status domain.StandStatus, holderID string, now time.Time) domain.Stand {
	stand.Status = status
	stand.HolderID = holderID
	stand.UpdatedAt = now
	s.stands[stand.ID] = stand
	return stand
}

// Obligations

func (s *Store) CreateObligation(ctx context.Context, ob domain.Obligation) error {
	defer s.lock(ctx)()
	if _, ok := s.stands[ob.StandID]; !ok {
		return domain.ErrStandNotFound
	}
	if _, ok := s.activeIndex(ob.StandID); ok && ob.Status.Active() {
		return domain.ErrActiveObligationExists
	}
	s.obligations = append(s.obligations, ob)
	return nil
}

func (s *Store) GetObligation(ctx context.Context, obligationID string) (domain.Obligation, error) {
	defer s.lock(ctx)()
	i, ok := s.index(obligationID)
	if !ok {
		return domain.Obligation{}, domain.ErrObligationNotFound
	}
	return s.obligations[i], nil
}

func (s *Store) CurrentObligation(ctx context.Context, standID string) (*domain.Obligation, error) {
	defer s.lock(ctx)()
	return s.current(standID), nil
}

func (s *Store) current(standID string) *domain.Obligation {
	var latest *domain.Obligation
	for i := range s.obligations {
		ob := s.obligations[i]
		if ob.StandID != standID {
			continue
		}
		// Later insertion wins ties on CreatedAt.
		if latest == nil || !ob.CreatedAt.Before(latest.CreatedAt) {
			cp := ob
			latest = &cp
		}
	}
	return latest
}

func (s *Store) ListObligationsByStand(ctx context.Context, standID string) ([]domain.Obligation, error) {
	defer s.lock(ctx)()
	if _, ok := s.stands[standID]; !ok {
		return nil, domain.ErrStandNotFound
	}
	var out []domain.Obligation
	for i := len(s.obligations) - 1; i >= 0; i-- {
		if s.obligations[i].StandID == standID {
			out = append(out, s.obligations[i])
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) MarkProofSubmitted(ctx context.Context, obligationID, participantID, receiptRef string, now time.Time) (domain.Obligation, error) {
	defer s.lock(ctx)()
	i, ok := s.index(obligationID)
	if !ok {
		return domain.Obligation{}, domain.ErrConditionFailed
	}
	ob := s.obligations[i]
	if ob.Status != domain.ObligationPending || ob.ParticipantID != participantID || !ob.ExpiresAt.After(now) {
		return domain.Obligation{}, domain.ErrConditionFailed
	}
	ob.Status = domain.ObligationUnderReview
	ob.ReceiptRef = receiptRef
	s.obligations[i] = ob
	return ob, nil
}

func (s *Store) SettleObligation(ctx context.Context, obligationID string, to domain.ObligationStatus, d domain.Decision) (domain.Obligation, error) {
	defer s.lock(ctx)()
	i, ok := s.index(obligationID)
	if !ok {
		return domain.Obligation{}, domain.ErrConditionFailed
	}
	ob := s.obligations[i]
	if ob.Status != domain.ObligationUnderReview || !ob.ExpiresAt.After(d.At) {
		return domain.Obligation{}, domain.ErrConditionFailed
	}
	s.obligations[i] = decide(ob, to, d)
	return s.obligations[i], nil
}

func (s *Store) CancelActiveObligation(ctx context.Context, standID, participantID string, d domain.Decision) (domain.Obligation, error) {
	defer s.lock(ctx)()
	i, ok := s.activeIndex(standID)
	if !ok || s.obligations[i].ParticipantID != participantID {
		return domain.Obligation{}, domain.ErrConditionFailed
	}
	s.obligations[i] = decide(s.obligations[i], domain.ObligationRejected, d)
	return s.obligations[i], nil
}

func (s *Store) TerminateActiveObligation(ctx context.Context, standID string, d domain.Decision) (*domain.Obligation, error) {
	defer s.lock(ctx)()
	i, ok := s.activeIndex(standID)
	if !ok {
		return nil, nil
	}
	s.obligations[i] = decide(s.obligations[i], domain.ObligationRejected, d)
	ob := s.obligations[i]
	return &ob, nil
}

func (s *Store) ListExpiredObligations(ctx context.Context, now time.Time, limit int) ([]domain.Obligation, error) {
	defer s.lock(ctx)()
	var out []domain.Obligation
	for _, ob := range s.obligations {
		if ob.Status.Active() && ob.ExpiresAt.Before(now) {
			out = append(out, ob)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].ExpiresAt.Before(out[j].ExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ExpireObligation(ctx context.Context, obligationID string, now time.Time) (domain.Obligation, error) {
	defer s.lock(ctx)()
	i, ok := s.index(obligationID)
	if !ok {
		return domain.Obligation{}, domain.ErrConditionFailed
	}
	ob := s.obligations[i]
	if !ob.Status.Active() || !ob.ExpiresAt.Before(now) {
		return domain.Obligation{}, domain.ErrConditionFailed
	}
	s.obligations[i] = decide(ob, domain.ObligationExpired, domain.Decision{At: now})
	return s.obligations[i], nil
}

func decide(ob domain.Obligation, to domain.ObligationStatus, d domain.Decision) domain.Obligation {
	at := d.At
	ob.Status = to
	ob.DecidedAt = &at
	if d.By != "" {
		ob.DecidedBy = d.By
	}
	if d.Reason != "" {
		ob.Reason = d.Reason
	}
	return ob
}

func (s *Store) index(obligationID string) (int, bool) {
	for i := range s.obligations {
		if s.obligations[i].ID == obligationID {
			return i, true
		}
	}
	return 0, false
}

func (s *Store) activeIndex(standID string) (int, bool) {
	for i := range s.obligations {
		if s.obligations[i].StandID == standID && s.obligations[i].Status.Active() {
			return i, true
		}
	}
	return 0, false
}

// Views

func (s *Store) ListStandViews(ctx context.Context, eventID string) ([]domain.StandView, error) {
	defer s.lock(ctx)()
	if _, ok := s.events[eventID]; !ok {
		return nil, domain.ErrEventNotFound
	}
	stands := s.standsOf(eventID)
	views := make([]domain.StandView, 0, len(stands))
	for _, stand := range stands {
		views = append(views, domain.StandView{Stand: stand, Obligation: s.current(stand.ID)})
	}
	return views, nil
}

func (s *Store) GetStandView(ctx context.Context, standID string) (domain.StandView, error) {
	defer s.lock(ctx)()
	stand, ok := s.stands[standID]
	if !ok {
		return domain.StandView{}, domain.ErrStandNotFound
	}
	return domain.StandView{Stand: stand, Obligation: s.current(standID)}, nil
}
