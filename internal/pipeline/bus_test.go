package pipeline

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/shipwright/internal/eventstore"
)

func TestBusDeliversInOrder(t *testing.T) {
	bus := NewBus()
	var seen []string
	bus.Subscribe(EventUnitBuilt, func(e Event) error {
		seen = append(seen, e.(UnitBuilt).Unit)
		return nil
	})

	for _, u := range []string{"svc-a", "svc-b", "svc-c"} {
		require.NoError(t, bus.Publish(UnitBuilt{RunScoped: RunScoped{RunID: "r1"}, Unit: u}))
	}
	assert.Equal(t, []string{"svc-a", "svc-b", "svc-c"}, seen)
}

func TestBusHandlerErrorPropagates(t *testing.T) {
	bus := NewBus()
	bus.Subscribe(EventUnitFailed, func(Event) error { return fmt.Errorf("handler boom") })
	err := bus.Publish(UnitFailed{Unit: "svc-a", Stage: "bundle"})
	assert.EqualError(t, err, "handler boom")
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus()
	var names []string
	bus.SubscribeAll(func(e Event) error {
		names = append(names, e.Name())
		return nil
	})
	require.NoError(t, bus.Publish(UnitSkipped{Unit: "svc-a", Reason: "clean"}))
	require.NoError(t, bus.Publish(BuildCompleted{Success: true}))
	assert.Equal(t, []string{EventUnitSkipped, EventBuildCompleted}, names)
}

func TestBusPersistsToEventStore(t *testing.T) {
	store, err := eventstore.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	bus := NewBusWithEventStore(store)
	require.NoError(t, bus.Publish(UnitBuilt{RunScoped: RunScoped{RunID: "r2"}, Unit: "svc-a", Version: "v1"}))

	events, err := store.GetByRunID(t.Context(), "r2")
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, EventUnitBuilt, events[0].Type())
	assert.Contains(t, string(events[0].Payload()), `"Unit":"svc-a"`)
}
