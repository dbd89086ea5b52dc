package clock

import (
	"testing"
	"time"
)

func TestManual_Advance(t *testing.T) {
	start := time.Date(2025, 2, 1, 9, 0, 0, 0, time.UTC)
	clk := NewManual(start)

	clk.Advance(25 * time.Hour)
	if got := clk.Now(); !got.Equal(start.Add(25 * time.Hour)) {
		t.Fatalf("expected %v, got %v", start.Add(25*time.Hour), got)
	}

	clk.Set(start)
	if got := clk.Now(); !got.Equal(start) {
		t.Fatalf("expected reset to %v, got %v", start, got)
	}
}

func TestFixed_IsUTC(t *testing.T) {
	loc := time.FixedZone("UTC+2", 2*60*60)
	clk := NewFixed(time.Date(2025, 2, 1, 11, 0, 0, 0, loc))
	if clk.Now().Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", clk.Now().Location())
	}
}
