package history

import (
	"context"
	"testing"
	"time"

	"github.com/joeblew999/plat-servicearea/internal/db"
)

func openStore(t *testing.T) *Store {
	t.Helper()
	conn, err := db.Open(db.Config{})
	if err != nil {
		t.Skipf("duckdb unavailable: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	s, err := New(context.Background(), conn)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestRecordAndRecent(t *testing.T) {
	s := openStore(t)
	ctx := context.Background()
	base := time.Date(2024, 3, 15, 8, 30, 0, 0, time.UTC)

	for i, session := range []string{"a", "b", "a"} {
		_, err := s.Record(ctx, Entry{
			Session: session,
			At:      base.Add(time.Duration(i) * time.Minute),
			Breaks:  []int{10, 20, 30},
			Status:  "ready",
			Zones:   3,
		})
		if err != nil {
			t.Fatal(err)
		}
	}

	all, err := s.Recent(ctx, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("entries=%d, want 3", len(all))
	}
	if !all[0].At.Equal(base.Add(2 * time.Minute)) {
		t.Fatalf("first at=%v, want newest", all[0].At)
	}
	if len(all[0].Breaks) != 3 || all[0].Breaks[2] != 30 {
		t.Fatalf("breaks=%v, want [10 20 30]", all[0].Breaks)
	}

	onlyB, err := s.Recent(ctx, "b", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(onlyB) != 1 || onlyB[0].Session != "b" {
		t.Fatalf("session filter=%+v", onlyB)
	}
}

func TestBreaksRoundTrip(t *testing.T) {
	if got := splitBreaks(joinBreaks([]int{5, 10})); len(got) != 2 || got[1] != 10 {
		t.Fatalf("got=%v, want [5 10]", got)
	}
	if got := splitBreaks(""); got != nil {
		t.Fatalf("got=%v, want nil", got)
	}
}
