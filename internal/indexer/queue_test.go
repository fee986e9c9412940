package indexer

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueFIFO(t *testing.T) {
	q := newEventQueue()

	for i := 0; i < 5; i++ {
		require.True(t, q.Enqueue(Event{Type: EventFileCreated, Path: fmt.Sprintf("/f/%d", i)}))
	}
	assert.Equal(t, 5, q.Len())

	for i := 0; i < 5; i++ {
		ev, ok := q.Dequeue(time.Second)
		require.True(t, ok)
		assert.Equal(t, fmt.Sprintf("/f/%d", i), ev.Path)
	}
	assert.Zero(t, q.Len())
}

func TestQueueDequeueTimesOut(t *testing.T) {
	q := newEventQueue()

	start := time.Now()
	_, ok := q.Dequeue(50 * time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestQueueDequeueWakesOnEnqueue(t *testing.T) {
	q := newEventQueue()

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Enqueue(Event{Type: EventFullScan, Path: "/root"})
	}()

	ev, ok := q.Dequeue(5 * time.Second)
	require.True(t, ok)
	assert.Equal(t, EventFullScan, ev.Type)
}

func TestQueueClose(t *testing.T) {
	q := newEventQueue()
	q.Enqueue(Event{Type: EventFileDeleted, Path: "/a"})
	q.Close()

	// Pending events drain after close.
	ev, ok := q.Dequeue(time.Second)
	require.True(t, ok)
	assert.Equal(t, "/a", ev.Path)

	_, ok = q.Dequeue(time.Second)
	assert.False(t, ok)

	assert.False(t, q.Enqueue(Event{Type: EventFileCreated, Path: "/b"}))

	q.Close() // idempotent
}

func TestQueueCloseWakesWaiter(t *testing.T) {
	q := newEventQueue()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, ok := q.Dequeue(10 * time.Second)
		assert.False(t, ok)
	}()

	time.Sleep(20 * time.Millisecond)
	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Dequeue did not return after Close")
	}
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := newEventQueue()

	const producers = 8
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(Event{Type: EventFileModified, Path: "/x"})
			}
		}()
	}
	wg.Wait()

	count := 0
	for {
		_, ok := q.Dequeue(10 * time.Millisecond)
		if !ok {
			break
		}
		count++
	}
	assert.Equal(t, producers*perProducer, count)
}
