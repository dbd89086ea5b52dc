package migrations_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cimillas/expo-stands/internal/testutil"
	"github.com/cimillas/expo-stands/migrations"
)

func TestNames_SortedSQLFiles(t *testing.T) {
	names, err := migrations.Names()
	if err != nil {
		t.Fatalf("names: %v", err)
	}
	if len(names) < 2 {
		t.Fatalf("expected at least 2 migrations, got %v", names)
	}
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("migrations out of order: %v", names)
		}
	}
}

func TestApply_RecordsMigrations(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()

	if _, err := pool.Exec(ctx, `DROP TABLE IF EXISTS schema_migrations`); err != nil {
		t.Fatalf("drop schema_migrations: %v", err)
	}

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}

	names, err := migrations.Names()
	if err != nil {
		t.Fatalf("names: %v", err)
	}

	var count int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count != len(names) {
		t.Fatalf("expected %d migrations, got %d", len(names), count)
	}

	if err := migrations.Apply(ctx, pool); err != nil {
		t.Fatalf("re-apply migrations: %v", err)
	}

	var count2 int
	if err := pool.QueryRow(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&count2); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if count2 != count {
		t.Fatalf("expected migration count unchanged, got %d vs %d", count2, count)
	}
}

func TestApply_DetectsEditedMigration(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)

	names, err := migrations.Names()
	if err != nil {
		t.Fatalf("names: %v", err)
	}

	var sum string
	if err := pool.QueryRow(ctx, `SELECT checksum FROM schema_migrations WHERE name = $1`, names[0]).Scan(&sum); err != nil {
		t.Fatalf("read checksum: %v", err)
	}
	if len(sum) != 64 {
		t.Fatalf("expected sha256 hex checksum, got %q", sum)
	}

	if _, err := pool.Exec(ctx, `UPDATE schema_migrations SET checksum = 'edited' WHERE name = $1`, names[0]); err != nil {
		t.Fatalf("tamper checksum: %v", err)
	}
	t.Cleanup(func() {
		_, _ = pool.Exec(context.Background(), `UPDATE schema_migrations SET checksum = $2 WHERE name = $1`, names[0], sum)
	})

	if err := migrations.Apply(ctx, pool); !errors.Is(err, migrations.ErrChecksumMismatch) {
		t.Fatalf("expected checksum mismatch, got %v", err)
	}
}

func TestApply_EnforcesOneActiveObligationPerStand(t *testing.T) {
	pool := testutil.NewTestPool(t)
	ctx := context.Background()
	testutil.ApplyMigrations(t, ctx, pool)
	testutil.TruncateAll(t, ctx, pool)

	eventID := testutil.InsertEvent(t, ctx, pool, "Expo", true)
	standID := testutil.InsertStand(t, ctx, pool, eventID, "A1", "100.00")

	_, err := pool.Exec(ctx, `
INSERT INTO payment_obligations (stand_id, participant_id, amount, status, expires_at)
VALUES ($1, 'p1', 100, 'pending', NOW() + INTERVAL '1 day'),
       ($1, 'p2', 100, 'under_review', NOW() + INTERVAL '1 day')`, standID)
	if err == nil {
		t.Fatalf("expected unique violation for two active obligations")
	}

	_, err = pool.Exec(ctx, `UPDATE stands SET status = 'reserved' WHERE id = $1`, standID)
	if err == nil {
		t.Fatalf("expected check violation for reserved stand without holder")
	}
}
