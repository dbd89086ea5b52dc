package postgres

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cimillas/expo-stands/internal/domain"
	"github.com/cimillas/expo-stands/internal/testutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func TestStore_Stands(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, context.Background(), pool)
	store := NewStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("ReserveStand swaps available to reserved once", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Expo", true)
		standID := testutil.InsertStand(t, ctx, pool, eventID, "A1", "100.00")

		st, err := store.ReserveStand(ctx, standID, "p1", now)
		if err != nil {
			t.Fatalf("reserve: %v", err)
		}
		if st.Status != domain.StandReserved || st.HolderID != "p1" {
			t.Fatalf("unexpected stand: %+v", st)
		}
		if !st.Price.Equal(decimal.NewFromInt(100)) {
			t.Fatalf("unexpected price: %s", st.Price)
		}

		_, err = store.ReserveStand(ctx, standID, "p2", now)
		if !errors.Is(err, domain.ErrConditionFailed) {
			t.Fatalf("expected ErrConditionFailed, got %v", err)
		}
	})

	t.Run("ReserveStand refuses inactive events", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Closed", false)
		standID := testutil.InsertStand(t, ctx, pool, eventID, "A1", "10.00")

		_, err := store.ReserveStand(ctx, standID, "p1", now)
		if !errors.Is(err, domain.ErrConditionFailed) {
			t.Fatalf("expected ErrConditionFailed, got %v", err)
		}
	})

	t.Run("concurrent reservations have one winner", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Expo", true)
		standID := testutil.InsertStand(t, ctx, pool, eventID, "A1", "100.00")

		const callers = 8
		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.ReserveStand(ctx, standID, uuid.NewString(), now)
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
				} else if !errors.Is(err, domain.ErrConditionFailed) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		if wins != 1 {
			t.Fatalf("expected exactly one winner, got %d", wins)
		}
	})

	t.Run("Release and Sell require the holder", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Expo", true)
		standID := testutil.InsertStand(t, ctx, pool, eventID, "A1", "100.00")
		if _, err := store.ReserveStand(ctx, standID, "p1", now); err != nil {
			t.Fatalf("reserve: %v", err)
		}

		if _, err := store.ReleaseStand(ctx, standID, "p2", now); !errors.Is(err, domain.ErrConditionFailed) {
			t.Fatalf("expected ErrConditionFailed, got %v", err)
		}
		st, err := store.SellStand(ctx, standID, "p1", now)
		if err != nil {
			t.Fatalf("sell: %v", err)
		}
		if st.Status != domain.StandSold || st.HolderID != "p1" {
			t.Fatalf("unexpected stand: %+v", st)
		}
		if _, err := store.ReleaseStand(ctx, standID, "p1", now); !errors.Is(err, domain.ErrConditionFailed) {
			t.Fatalf("expected ErrConditionFailed on sold stand, got %v", err)
		}
	})

	t.Run("ForceStandStatus clears holder on available", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Expo", true)
		standID := testutil.InsertStand(t, ctx, pool, eventID, "A1", "100.00")

		st, err := store.ForceStandStatus(ctx, standID, domain.StandSold, "p9", now)
		if err != nil {
			t.Fatalf("force sold: %v", err)
		}
		if st.HolderID != "p9" {
			t.Fatalf("expected holder p9, got %q", st.HolderID)
		}

		st, err = store.ForceStandStatus(ctx, standID, domain.StandAvailable, "p9", now)
		if err != nil {
			t.Fatalf("force available: %v", err)
		}
		if st.HolderID != "" || !st.Consistent() {
			t.Fatalf("unexpected stand: %+v", st)
		}

		_, err = store.ForceStandStatus(ctx, uuid.NewString(), domain.StandSold, "p9", now)
		if !errors.Is(err, domain.ErrStandNotFound) {
			t.Fatalf("expected ErrStandNotFound, got %v", err)
		}
	})

	t.Run("GetStand maps bad ids", func(t *testing.T) {
		ctx := context.Background()
		if _, err := store.GetStand(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrInvalidID) {
			t.Fatalf("expected ErrInvalidID, got %v", err)
		}
		if _, err := store.GetStand(ctx, uuid.NewString()); !errors.Is(err, domain.ErrStandNotFound) {
			t.Fatalf("expected ErrStandNotFound, got %v", err)
		}
	})
}

func TestStore_Obligations(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, context.Background(), pool)
	store := NewStore(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	setup := func(t *testing.T) (context.Context, string) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Expo", true)
		return ctx, testutil.InsertStand(t, ctx, pool, eventID, "A1", "150.00")
	}

	t.Run("CreateObligation rejects a second active obligation", func(t *testing.T) {
		ctx, standID := setup(t)
		ob := domain.Obligation{
			ID:            uuid.NewString(),
			StandID:       standID,
			ParticipantID: "p1",
			Amount:        decimal.RequireFromString("150.00"),
			Status:        domain.ObligationPending,
			CreatedAt:     now,
			ExpiresAt:     now.Add(24 * time.Hour),
		}
		if err := store.CreateObligation(ctx, ob); err != nil {
			t.Fatalf("create: %v", err)
		}

		ob.ID = uuid.NewString()
		ob.ParticipantID = "p2"
		if err := store.CreateObligation(ctx, ob); !errors.Is(err, domain.ErrActiveObligationExists) {
			t.Fatalf("expected ErrActiveObligationExists, got %v", err)
		}

		got, err := store.GetObligation(ctx, ob.ID)
		if !errors.Is(err, domain.ErrObligationNotFound) {
			t.Fatalf("expected ErrObligationNotFound, got %+v %v", got, err)
		}
	})

	t.Run("proof then approve", func(t *testing.T) {
		ctx, standID := setup(t)
		id := testutil.InsertObligation(t, ctx, pool, domain.Obligation{
			StandID:       standID,
			ParticipantID: "p1",
			Amount:        decimal.RequireFromString("150.00"),
			Status:        domain.ObligationPending,
			ExpiresAt:     now.Add(time.Hour),
		})

		if _, err := store.SettleObligation(ctx, id, domain.ObligationPaid, domain.Decision{By: "admin", At: now}); !errors.Is(err, domain.ErrConditionFailed) {
			t.Fatalf("expected ErrConditionFailed before proof, got %v", err)
		}
		if _, err := store.MarkProofSubmitted(ctx, id, "p2", "r-1", now); !errors.Is(err, domain.ErrConditionFailed) {
			t.Fatalf("expected ErrConditionFailed for other participant, got %v", err)
		}

		ob, err := store.MarkProofSubmitted(ctx, id, "p1", "r-1", now)
		if err != nil {
			t.Fatalf("mark proof: %v", err)
		}
		if ob.Status != domain.ObligationUnderReview || ob.ReceiptRef != "r-1" {
			t.Fatalf("unexpected obligation: %+v", ob)
		}

		ob, err = store.SettleObligation(ctx, id, domain.ObligationPaid, domain.Decision{By: "admin", At: now})
		if err != nil {
			t.Fatalf("settle: %v", err)
		}
		if ob.Status != domain.ObligationPaid || ob.DecidedBy != "admin" || ob.DecidedAt == nil {
			t.Fatalf("unexpected obligation: %+v", ob)
		}
		if !ob.Amount.Equal(decimal.NewFromInt(150)) {
			t.Fatalf("unexpected amount: %s", ob.Amount)
		}
	})

	t.Run("SettleObligation refuses lapsed holds", func(t *testing.T) {
		ctx, standID := setup(t)
		id := testutil.InsertObligation(t, ctx, pool, domain.Obligation{
			StandID:       standID,
			ParticipantID: "p1",
			Amount:        decimal.NewFromInt(1),
			Status:        domain.ObligationUnderReview,
			ReceiptRef:    "r-1",
			ExpiresAt:     now.Add(-time.Minute),
		})

		_, err := store.SettleObligation(ctx, id, domain.ObligationPaid, domain.Decision{By: "admin", At: now})
		if !errors.Is(err, domain.ErrConditionFailed) {
			t.Fatalf("expected ErrConditionFailed, got %v", err)
		}
	})

	t.Run("expired listing and expiry", func(t *testing.T) {
		ctx, standID := setup(t)
		id := testutil.InsertObligation(t, ctx, pool, domain.Obligation{
			StandID:       standID,
			ParticipantID: "p1",
			Amount:        decimal.NewFromInt(1),
			Status:        domain.ObligationPending,
			ExpiresAt:     now.Add(-time.Minute),
		})

		due, err := store.ListExpiredObligations(ctx, now, 10)
		if err != nil {
			t.Fatalf("list expired: %v", err)
		}
		if len(due) != 1 || due[0].ID != id {
			t.Fatalf("unexpected due list: %+v", due)
		}

		ob, err := store.ExpireObligation(ctx, id, now)
		if err != nil {
			t.Fatalf("expire: %v", err)
		}
		if ob.Status != domain.ObligationExpired {
			t.Fatalf("unexpected status: %s", ob.Status)
		}
		if _, err := store.ExpireObligation(ctx, id, now); !errors.Is(err, domain.ErrConditionFailed) {
			t.Fatalf("expected ErrConditionFailed on second expiry, got %v", err)
		}
	})

	t.Run("TerminateActiveObligation returns nil when idle", func(t *testing.T) {
		ctx, standID := setup(t)
		ob, err := store.TerminateActiveObligation(ctx, standID, domain.Decision{By: "admin", At: now})
		if err != nil || ob != nil {
			t.Fatalf("expected nil, nil; got %+v %v", ob, err)
		}
	})

	t.Run("views carry the most recent obligation", func(t *testing.T) {
		ctx, standID := setup(t)
		testutil.InsertObligation(t, ctx, pool, domain.Obligation{
			StandID:       standID,
			ParticipantID: "p1",
			Amount:        decimal.NewFromInt(100),
			Status:        domain.ObligationExpired,
			ExpiresAt:     now.Add(-time.Hour),
		})
		latest := testutil.InsertObligation(t, ctx, pool, domain.Obligation{
			StandID:       standID,
			ParticipantID: "p2",
			Amount:        decimal.NewFromInt(150),
			Status:        domain.ObligationPending,
			ExpiresAt:     now.Add(time.Hour),
		})

		view, err := store.GetStandView(ctx, standID)
		if err != nil {
			t.Fatalf("get view: %v", err)
		}
		if view.Obligation == nil || view.Obligation.ID != latest {
			t.Fatalf("unexpected view obligation: %+v", view.Obligation)
		}
		if view.Stand.HolderID != "p2" || view.PaymentStatus() != domain.ObligationPending {
			t.Fatalf("unexpected view: %+v", view)
		}

		history, err := store.ListObligationsByStand(ctx, standID)
		if err != nil {
			t.Fatalf("history: %v", err)
		}
		if len(history) != 2 || history[0].ID != latest {
			t.Fatalf("unexpected history: %+v", history)
		}
	})

	t.Run("ListStandViews includes never reserved stands", func(t *testing.T) {
		ctx := context.Background()
		testutil.TruncateAll(t, ctx, pool)
		eventID := testutil.InsertEvent(t, ctx, pool, "Expo", true)
		testutil.InsertStand(t, ctx, pool, eventID, "A1", "10.00")
		testutil.InsertStand(t, ctx, pool, eventID, "A2", "20.00")

		views, err := store.ListStandViews(ctx, eventID)
		if err != nil {
			t.Fatalf("list views: %v", err)
		}
		if len(views) != 2 {
			t.Fatalf("expected 2 views, got %d", len(views))
		}
		for _, v := range views {
			if v.Obligation != nil {
				t.Fatalf("expected no obligation, got %+v", v.Obligation)
			}
		}

		if _, err := store.ListStandViews(ctx, uuid.NewString()); !errors.Is(err, domain.ErrEventNotFound) {
			t.Fatalf("expected ErrEventNotFound, got %v", err)
		}
	})
}

func TestStore_WithTxRollsBack(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, context.Background(), pool)
	store := NewStore(pool)
	ctx := context.Background()
	testutil.TruncateAll(t, ctx, pool)

	eventID := testutil.InsertEvent(t, ctx, pool, "Expo", true)
	standID := testutil.InsertStand(t, ctx, pool, eventID, "A1", "100.00")
	boom := errors.New("boom")

	err := store.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := store.ReserveStand(txCtx, standID, "p1", time.Now()); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	st, err := store.GetStand(ctx, standID)
	if err != nil {
		t.Fatalf("get stand: %v", err)
	}
	if st.Status != domain.StandAvailable {
		t.Fatalf("expected rollback to keep stand available, got %s", st.Status)
	}
}

func TestStore_Catalog(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, context.Background(), pool)
	store := NewStore(pool)
	ctx := context.Background()
	testutil.TruncateAll(t, ctx, pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	event := domain.Event{
		ID:          uuid.NewString(),
		Name:        "Spring Expo",
		OrganizerID: "org-1",
		Active:      true,
		StartsAt:    time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC),
		CreatedAt:   now,
	}
	if err := store.CreateEvent(ctx, event); err != nil {
		t.Fatalf("create event: %v", err)
	}

	stand := domain.Stand{
		ID:        uuid.NewString(),
		EventID:   event.ID,
		Name:      "B7",
		Price:     decimal.RequireFromString("99.90"),
		Status:    domain.StandAvailable,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := store.CreateStand(ctx, stand); err != nil {
		t.Fatalf("create stand: %v", err)
	}

	dup := stand
	dup.ID = uuid.NewString()
	if err := store.CreateStand(ctx, dup); !errors.Is(err, domain.ErrStandAlreadyExists) {
		t.Fatalf("expected ErrStandAlreadyExists, got %v", err)
	}

	orphan := stand
	orphan.ID = uuid.NewString()
	orphan.EventID = uuid.NewString()
	if err := store.CreateStand(ctx, orphan); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}

	updated, err := store.UpdateStandPrice(ctx, stand.ID, decimal.RequireFromString("120.50"), now)
	if err != nil {
		t.Fatalf("update price: %v", err)
	}
	if updated.Price.StringFixed(2) != "120.50" {
		t.Fatalf("unexpected price: %s", updated.Price)
	}

	ev, err := store.SetEventActive(ctx, event.ID, false)
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if ev.Active || !ev.StartsAt.Equal(event.StartsAt) {
		t.Fatalf("unexpected event: %+v", ev)
	}

	stands, err := store.ListStandsByEvent(ctx, event.ID)
	if err != nil {
		t.Fatalf("list stands: %v", err)
	}
	if len(stands) != 1 || stands[0].ID != stand.ID {
		t.Fatalf("unexpected stands: %+v", stands)
	}
}

func TestStore_StandViews(t *testing.T) {
	pool := testutil.NewTestPool(t)
	testutil.ApplyMigrations(t, context.Background(), pool)
	store := NewStore(pool)
	ctx := context.Background()
	testutil.TruncateAll(t, ctx, pool)
	expires := time.Now().UTC().Add(time.Hour)

	eventID := testutil.InsertEvent(t, ctx, pool, "Expo", true)
	free := testutil.InsertStand(t, ctx, pool, eventID, "A1", "50.00")
	held := testutil.InsertStand(t, ctx, pool, eventID, "A2", "75.00")

	testutil.InsertObligation(t, ctx, pool, domain.Obligation{
		StandID:       held,
		ParticipantID: "p1",
		Amount:        decimal.RequireFromString("75.00"),
		Status:        domain.ObligationRejected,
		ExpiresAt:     expires,
	})
	current := testutil.InsertObligation(t, ctx, pool, domain.Obligation{
		StandID:       held,
		ParticipantID: "p2",
		Amount:        decimal.RequireFromString("75.00"),
		Status:        domain.ObligationPending,
		ExpiresAt:     expires,
	})

	views, err := store.ListStandViews(ctx, eventID)
	if err != nil {
		t.Fatalf("list views: %v", err)
	}
	if len(views) != 2 {
		t.Fatalf("expected 2 views, got %d", len(views))
	}

	byID := map[string]domain.StandView{}
	for _, v := range views {
		byID[v.Stand.ID] = v
	}
	if v := byID[free]; v.Obligation != nil {
		t.Fatalf("expected no obligation on untouched stand, got %+v", v.Obligation)
	}
	v := byID[held]
	if v.Obligation == nil || v.Obligation.ID != current {
		t.Fatalf("expected latest obligation %s, got %+v", current, v.Obligation)
	}
	if v.PaymentStatus() != domain.ObligationPending || v.Stand.HolderID != "p2" {
		t.Fatalf("unexpected view: %+v", v)
	}

	one, err := store.GetStandView(ctx, held)
	if err != nil {
		t.Fatalf("get view: %v", err)
	}
	if one.Obligation == nil || one.Obligation.ID != current {
		t.Fatalf("unexpected single view: %+v", one)
	}

	if _, err := store.ListStandViews(ctx, uuid.NewString()); !errors.Is(err, domain.ErrEventNotFound) {
		t.Fatalf("expected ErrEventNotFound, got %v", err)
	}
	if _, err := store.GetStandView(ctx, "not-a-uuid"); !errors.Is(err, domain.ErrInvalidID) {
		t.Fatalf("expected ErrInvalidID, got %v", err)
	}
}

func TestStore_ObligationHistoryBlocksDeletes(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	eventID := testutil.InsertEvent(t, ctx, pool, "Expo", true)
	standID := testutil.InsertStand(t, ctx, pool, eventID, "A1", "10.00")
	testutil.InsertObligation(t, ctx, pool, domain.Obligation{
		StandID:       standID,
		ParticipantID: "p1",
		Amount:        decimal.RequireFromString("10.00"),
		Status:        domain.ObligationExpired,
		ExpiresAt:     time.Now().UTC(),
	})

	tests := []struct {
		name       string
		sql        string
		id         string
		constraint string
	}{
		{"stand with obligations", `DELETE FROM stands WHERE id = $1`, standID, "payment_obligations_stand_id_fkey"},
		{"event with stands", `DELETE FROM events WHERE id = $1`, eventID, "stands_event_id_fkey"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			_, err := pool.Exec(ctx, tt.sql, tt.id)
			pe := pgError(err)
			if pe == nil || pe.Code != codeForeignKeyViolation || pe.ConstraintName != tt.constraint {
				t.Fatalf("expected %s violation, got %v", tt.constraint, err)
			}
		})
	}

	var n int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM payment_obligations WHERE stand_id = $1`, standID).Scan(&n); err != nil {
		t.Fatalf("count obligations: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected obligation history kept, got %d rows", n)
	}
}
