package bus

import (
	"log/slog"
	"os"
	"testing"

	"personabot/internal/domain"
)

func testBusLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}

func TestIntentBus_RoutesByKind(t *testing.T) {
	b := New(testBusLogger())

	var tags, fields int
	b.Subscribe(domain.IntentTagSync, func(domain.Intent) { tags++ })
	b.Subscribe(domain.IntentFieldSync, func(domain.Intent) { fields++ })

	b.Publish(domain.TagSyncIntent{ID: "1", CustomerID: "u1", Persona: domain.PersonaSideHustler})
	b.Publish(domain.TagSyncIntent{ID: "2", CustomerID: "u1", Persona: domain.PersonaSideHustler})
	b.Publish(domain.FieldSyncIntent{ID: "3", CustomerID: "u1"})

	if tags != 2 {
		t.Errorf("expected 2 tag intents, got %d", tags)
	}
	if fields != 1 {
		t.Errorf("expected 1 field intent, got %d", fields)
	}
}

func TestIntentBus_MultipleConsumers(t *testing.T) {
	b := New(testBusLogger())

	var first, second bool
	b.Subscribe(domain.IntentHandoffNotify, func(domain.Intent) { first = true })
	b.Subscribe(domain.IntentHandoffNotify, func(domain.Intent) { second = true })

	b.Publish(domain.HandoffNotifyIntent{ID: "1", CustomerID: "u1", Reason: "complaint"})

	if !first || !second {
		t.Errorf("expected both consumers called, got first=%v second=%v", first, second)
	}
}

func TestIntentBus_NoConsumer(t *testing.T) {
	b := New(testBusLogger())
	// Must not panic when nothing is registered.
	b.Publish(domain.HistoryAppendIntent{ID: "1", CustomerID: "u1"})
}

func TestIntentBus_SynchronousDelivery(t *testing.T) {
	b := New(testBusLogger())

	applied := false
	b.Subscribe(domain.IntentHistoryAppend, func(domain.Intent) { applied = true })

	b.Publish(domain.HistoryAppendIntent{ID: "1", CustomerID: "u1"})
	if !applied {
		t.Error("intent must be applied before Publish returns")
	}
}
