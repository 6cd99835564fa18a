package eventstore

import (
	"bytes"
	"testing"
	"time"
)

const testRunID = "run-123"

func TestEventStoreAppendAndRetrieve(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	eventType := "UnitBuilt"
	payload := []byte(`{"Unit":"svc-a","Version":"abc123"}`)
	metadata := map[string]string{"phase": "build"}

	err = store.Append(ctx, testRunID, eventType, payload, metadata)
	if err != nil {
		t.Fatalf("failed to append event: %v", err)
	}

	events, err := store.GetByRunID(ctx, testRunID)
	if err != nil {
		t.Fatalf("failed to get events: %v", err)
	}

	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	event := events[0]
	if event.RunID() != testRunID {
		t.Errorf("expected run_id %s, got %s", testRunID, event.RunID())
	}
	if event.Type() != eventType {
		t.Errorf("expected event_type %s, got %s", eventType, event.Type())
	}
	if !bytes.Equal(event.Payload(), payload) {
		t.Errorf("expected payload %s, got %s", payload, event.Payload())
	}
	if event.Metadata()["phase"] != "build" {
		t.Errorf("expected metadata phase=build, got %v", event.Metadata())
	}
}

func TestEventStoreOrdering(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	types := []string{"UnitDiscovered", "UnitBuilt", "BuildCompleted"}
	for _, et := range types {
		if err := store.Append(ctx, testRunID, et, []byte("{}"), nil); err != nil {
			t.Fatalf("append %s: %v", et, err)
		}
	}

	events, err := store.GetByRunID(ctx, testRunID)
	if err != nil {
		t.Fatalf("get events: %v", err)
	}
	if len(events) != len(types) {
		t.Fatalf("expected %d events, got %d", len(types), len(events))
	}
	for i, et := range types {
		if events[i].Type() != et {
			t.Errorf("event %d: expected type %s, got %s", i, et, events[i].Type())
		}
	}
}

func TestEventStoreGetRange(t *testing.T) {
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	defer func() { _ = store.Close() }()

	ctx := t.Context()
	if err := store.Append(ctx, testRunID, "UnitSkipped", []byte("{}"), nil); err != nil {
		t.Fatalf("append: %v", err)
	}

	now := time.Now()
	events, err := store.GetRange(ctx, now.Add(-time.Minute), now.Add(time.Minute))
	if err != nil {
		t.Fatalf("get range: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event in range, got %d", len(events))
	}

	events, err = store.GetRange(ctx, now.Add(time.Hour), now.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("get range: %v", err)
	}
	if len(events) != 0 {
		t.Fatalf("expected 0 events in future range, got %d", len(events))
	}
}
