package app

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cimillas/expo-stands/internal/clock"
	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/cimillas/expo-stands/internal/storage/memory"
	"github.com/shopspring/decimal"
)

var (
	start       = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	participant = domain.Actor{ID: "participant-1", Role: domain.RoleParticipant}
	other       = domain.Actor{ID: "participant-2", Role: domain.RoleParticipant}
	admin       = domain.Actor{ID: "admin-1", Role: domain.RoleAdmin}
)

type published struct {
	key     string
	message any
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
}

func (p *recordingPublisher) Publish(_ context.Context, key string, message any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{key: key, message: message})
	return p.err
}

func (p *recordingPublisher) keys() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.msgs))
	for i, m := range p.msgs {
		out[i] = m.key
	}
	return out
}

// harness wires every service to one in-memory store and a manual clock.
type harness struct {
	store      *memory.Store
	clock      *clock.Manual
	publisher  *recordingPublisher
	reserve    *ReservationService
	settle     *SettlementService
	sweeper    *Sweeper
	query      *QueryService
	catalog    *CatalogService
	eventID    string
	standID    string
	standPrice decimal.Decimal
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memory.NewStore()
	clk := clock.NewManual(start)
	pub := &recordingPublisher{}
	opts := []Option{WithPublisher(pub)}

	h := &harness{
		store:     store,
		clock:     clk,
		publisher: pub,
		reserve:   NewReservationService(store, clk, opts...),
		settle:    NewSettlementService(store, clk, opts...),
		sweeper:   NewSweeper(store, clk, nil, opts...),
		query:     NewQueryService(store),
		catalog:   NewCatalogService(store, clk),
	}

	ctx := context.Background()
	event, err := h.catalog.CreateEvent(ctx, CreateEventInput{Name: "Spring Expo", OrganizerID: "org-1"})
	if err != nil {
		t.Fatalf("create event: %v", err)
	}
	h.standPrice = decimal.NewFromInt(100)
	stand, err := h.catalog.CreateStand(ctx, CreateStandInput{EventID: event.ID, Name: "A1", Price: h.standPrice})
	if err != nil {
		t.Fatalf("create stand: %v", err)
	}
	h.eventID = event.ID
	h.standID = stand.ID
	return h
}

func (h *harness) mustReserve(t *testing.T, actor domain.Actor) ReserveResult {
	t.Helper()
	res, err := h.reserve.Reserve(context.Background(), ReserveInput{StandID: h.standID, Actor: actor})
	if err != nil {
		t.Fatalf("reserve: %v", err)
	}
	return res
}

func (h *harness) mustSubmit(t *testing.T, obligationID string, actor domain.Actor) domain.Obligation {
	t.Helper()
	ob, err := h.settle.SubmitProof(context.Background(), SubmitProofInput{
		ObligationID: obligationID,
		ReceiptRef:   "receipt-1",
		Actor:        actor,
	})
	if err != nil {
		t.Fatalf("submit proof: %v", err)
	}
	return ob
}

func (h *harness) stand(t *testing.T) domain.Stand {
	t.Helper()
	st, err := h.store.GetStand(context.Background(), h.standID)
	if err != nil {
		t.Fatalf("get stand: %v", err)
	}
	return st
}

func (h *harness) obligation(t *testing.T, id string) domain.Obligation {
	t.Helper()
	ob, err := h.store.GetObligation(context.Background(), id)
	if err != nil {
		t.Fatalf("get obligation: %v", err)
	}
	return ob
}

// assertConsistent checks the stand/obligation pairing that every committed
// state must satisfy.
func (h *harness) assertConsistent(t *testing.T) {
	t.Helper()
	checkConsistent(t, h.store, h.standID)
}

type consistencyReader interface {
	GetStand(ctx context.Context, standID string) (domain.Stand, error)
	CurrentObligation(ctx context.Context, standID string) (*domain.Obligation, error)
}

func checkConsistent(t *testing.T, r consistencyReader, standID string) {
	t.Helper()
	ctx := context.Background()
	st, err := r.GetStand(ctx, standID)
	if err != nil {
		t.Fatalf("get stand: %v", err)
	}
	if !st.Consistent() {
		t.Fatalf("stand holder/status mismatch: %+v", st)
	}
	current, err := r.CurrentObligation(ctx, standID)
	if err != nil {
		t.Fatalf("current obligation: %v", err)
	}
	switch st.Status {
	case domain.StandAvailable:
		if current != nil && current.Status.Active() {
			t.Fatalf("available stand with active obligation %+v", current)
		}
	case domain.StandReserved:
		if current == nil || !current.Status.Active() || current.ParticipantID != st.HolderID {
			t.Fatalf("reserved stand without matching active obligation: %+v", current)
		}
	}
}

// reserveMidOverride lets a reservation land between the override's first
// obligation pass and its stand lock.
type reserveMidOverride struct {
	SettlementRepository
	reserve func(txCtx context.Context)
	calls   int
}

func (r *reserveMidOverride) TerminateActiveObligation(ctx context.Context, standID string, d domain.Decision) (*domain.Obligation, error) {
	ob, err := r.SettlementRepository.TerminateActiveObligation(ctx, standID, d)
	r.calls++
	if r.calls == 1 && err == nil {
		r.reserve(ctx)
	}
	return ob, err
}
