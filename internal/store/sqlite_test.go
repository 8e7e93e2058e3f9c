package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"personabot/internal/bus"
	"personabot/internal/domain"
)

func testStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"), testStoreLogger())
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testStoreLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCustomerRoundTrip(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	got, err := s.GetCustomer(ctx, "u1")
	if err != nil {
		t.Fatalf("GetCustomer failed: %v", err)
	}
	if got != nil {
		t.Fatal("expected nil for unknown customer")
	}

	c := domain.NewCustomer("u1")
	c.DisplayName = "Aya"
	c.Persona = domain.PersonaSideHustler
	c.Confidence = 0.8
	c.Attributes["interest"] = "cooking"
	if err := s.SaveCustomer(ctx, c); err != nil {
		t.Fatalf("SaveCustomer failed: %v", err)
	}

	got, err = s.GetCustomer(ctx, "u1")
	if err != nil {
		t.Fatalf("GetCustomer failed: %v", err)
	}
	if got == nil {
		t.Fatal("expected customer")
	}
	if got.Persona != domain.PersonaSideHustler || got.Confidence != 0.8 {
		t.Errorf("persona not round-tripped: %s %f", got.Persona, got.Confidence)
	}
	if got.Attributes["interest"] != "cooking" {
		t.Errorf("attributes not round-tripped: %v", got.Attributes)
	}

	// Upsert updates in place.
	got.HandoffFlag = true
	got.UnansweredCount = 2
	if err := s.SaveCustomer(ctx, got); err != nil {
		t.Fatalf("SaveCustomer update failed: %v", err)
	}
	again, _ := s.GetCustomer(ctx, "u1")
	if !again.HandoffFlag || again.UnansweredCount != 2 {
		t.Errorf("update not persisted: %+v", again)
	}
}

func TestAppendTurnAssignsMonotonicSeq(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for i := 1; i <= 3; i++ {
		turn, err := s.AppendTurn(ctx, "u1", domain.Turn{
			Speaker: domain.SpeakerCustomer, Text: "msg", Timestamp: time.Now(),
		})
		if err != nil {
			t.Fatalf("AppendTurn failed: %v", err)
		}
		if turn.Seq != int64(i) {
			t.Errorf("expected seq %d, got %d", i, turn.Seq)
		}
	}

	// Sequences are per customer.
	turn, err := s.AppendTurn(ctx, "u2", domain.Turn{Speaker: domain.SpeakerAgent, Text: "hi"})
	if err != nil {
		t.Fatalf("AppendTurn failed: %v", err)
	}
	if turn.Seq != 1 {
		t.Errorf("expected independent seq for u2, got %d", turn.Seq)
	}
}

func TestGetHistoryArrivalOrder(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	for _, text := range []string{"one", "two", "three", "four"} {
		if _, err := s.AppendTurn(ctx, "u1", domain.Turn{
			Speaker: domain.SpeakerCustomer, Text: text,
		}); err != nil {
			t.Fatal(err)
		}
	}

	turns, err := s.GetHistory(ctx, "u1", 3)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(turns) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(turns))
	}
	if turns[0].Text != "two" || turns[2].Text != "four" {
		t.Errorf("expected trailing window in arrival order, got %q..%q",
			turns[0].Text, turns[2].Text)
	}
}

func TestLastTurn(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	last, err := s.LastTurn(ctx, "u1")
	if err != nil {
		t.Fatalf("LastTurn failed: %v", err)
	}
	if last != nil {
		t.Fatal("expected nil for empty history")
	}

	s.AppendTurn(ctx, "u1", domain.Turn{Speaker: domain.SpeakerCustomer, Text: "first"})
	s.AppendTurn(ctx, "u1", domain.Turn{Speaker: domain.SpeakerAgent, Text: "second"})

	last, err = s.LastTurn(ctx, "u1")
	if err != nil {
		t.Fatalf("LastTurn failed: %v", err)
	}
	if last == nil || last.Text != "second" || last.Seq != 2 {
		t.Errorf("unexpected last turn: %+v", last)
	}
}

func TestCountTurns(t *testing.T) {
	s := testStore(t)
	ctx := context.Background()

	n, err := s.CountTurns(ctx, "u1")
	if err != nil || n != 0 {
		t.Fatalf("expected 0 turns, got %d (%v)", n, err)
	}
	s.AppendTurn(ctx, "u1", domain.Turn{Speaker: domain.SpeakerCustomer, Text: "x"})
	s.AppendTurn(ctx, "u1", domain.Turn{Speaker: domain.SpeakerAgent, Text: "y"})
	n, _ = s.CountTurns(ctx, "u1")
	if n != 2 {
		t.Errorf("expected 2 turns, got %d", n)
	}
}

func TestConsumeHistoryAppendIntents(t *testing.T) {
	s := testStore(t)
	b := bus.New(testStoreLogger())
	s.ConsumeIntents(b)

	b.Publish(domain.HistoryAppendIntent{
		ID:         "i1",
		CustomerID: "u1",
		Turn:       domain.Turn{Speaker: domain.SpeakerCustomer, Text: "via bus"},
	})

	turns, err := s.GetHistory(context.Background(), "u1", 10)
	if err != nil {
		t.Fatalf("GetHistory failed: %v", err)
	}
	if len(turns) != 1 || turns[0].Text != "via bus" {
		t.Errorf("intent not applied: %+v", turns)
	}
}
