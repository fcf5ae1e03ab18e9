package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(t *testing.T, want int, subscribe func(Subscriber)) func() []Event {
	t.Helper()
	var (
		mu  sync.Mutex
		got []Event
		wg  sync.WaitGroup
	)
	wg.Add(want)
	subscribe(func(e Event) {
		mu.Lock()
		got = append(got, e)
		mu.Unlock()
		wg.Done()
	})
	return func() []Event {
		done := make(chan struct{})
		go func() { wg.Wait(); close(done) }()
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d events", want)
		}
		mu.Lock()
		defer mu.Unlock()
		return got
	}
}

func TestSubscribeByType(t *testing.T) {
	bus := NewEventBus()
	wait := collect(t, 1, func(s Subscriber) { bus.Subscribe(EventScanFailed, s) })

	bus.PublishScanState("scan-1", "SCANNING")
	bus.PublishScanFailed("scan-1", errors.New("upstream unavailable"))

	got := wait()
	require.Len(t, got, 1)
	assert.Equal(t, EventScanFailed, got[0].Type)
	assert.Equal(t, "scan-1", got[0].ScanID)
	assert.Equal(t, "upstream unavailable", got[0].Data["error"])
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestSubscribeAll(t *testing.T) {
	bus := NewEventBus()
	wait := collect(t, 3, bus.SubscribeAll)

	bus.PublishScanState("s", "RANKING")
	bus.PublishSymbolOutcome("s", 1, "BTCUSDT", "CLASSIFIED", []string{"CONTINUATION_BULLISH"})
	bus.PublishNotification("s", "telegram", nil)

	got := wait()
	require.Len(t, got, 3)

	types := map[EventType]Event{}
	for _, e := range got {
		types[e.Type] = e
	}
	assert.Equal(t, "BTCUSDT", types[EventSymbolOutcome].Data["symbol"])
	assert.Equal(t, true, types[EventNotification].Data["delivered"])
}

func TestSubscriberCount(t *testing.T) {
	bus := NewEventBus()
	bus.Subscribe(EventScanState, func(Event) {})
	bus.SubscribeAll(func(Event) {})

	assert.Equal(t, 2, bus.SubscriberCount())
}
