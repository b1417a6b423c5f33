package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestBusDeliversEventsInOrder(t *testing.T) {
	bus := NewBus(8, zap.NewNop())

	bus.Log("starting", SeverityInfo)
	bus.Progress(1, 3)
	bus.Complete(RunComplete{Success: true})
	bus.Close()

	var events []Event
	for ev := range bus.Events() {
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	log, ok := events[0].(LogMessage)
	require.True(t, ok)
	assert.Equal(t, "starting", log.Message)
	assert.Equal(t, SeverityInfo, log.Severity)
	assert.False(t, log.Timestamp.IsZero())

	progress, ok := events[1].(ProgressUpdate)
	require.True(t, ok)
	assert.Equal(t, 1, progress.Current)
	assert.Equal(t, 3, progress.Total)

	complete, ok := events[2].(RunComplete)
	require.True(t, ok)
	assert.True(t, complete.Success)
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(1, zap.NewNop())

	bus.Progress(1, 2)
	bus.Progress(2, 2) // dropped, nobody draining
	bus.Close()

	var count int
	for range bus.Events() {
		count++
	}
	assert.Equal(t, 1, count)
}

func TestBusPublishAfterClose(t *testing.T) {
	bus := NewBus(4, zap.NewNop())
	bus.Close()

	// Must not panic.
	bus.Log("late", SeverityWarning)
	bus.Complete(RunComplete{Success: false, Error: "user stopped"})
	bus.Close()

	_, open := <-bus.Events()
	assert.False(t, open)
}
