// ABOUTME: Tests for the notification bus fan-out
// ABOUTME: Covers subscribe, publish ordering, slow-subscriber drops, cancellation cleanup, concurrency

package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusSingleSubscriberReceivesNotification(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	ch, _ := b.Subscribe(context.Background())

	b.Publish(Notification{Category: CategoryLogs})

	select {
	case n := <-ch:
		assert.Equal(t, CategoryLogs, n.Category)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for notification")
	}
}

func TestBusAllSubscribersReceiveInPublishOrder(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(context.Background())
	ch2, _ := b.Subscribe(context.Background())

	categories := []Category{CategoryGuilds, CategoryMembers, CategoryStatus}
	for _, c := range categories {
		b.Publish(Notification{Category: c})
	}

	for _, ch := range []<-chan Notification{ch1, ch2} {
		for _, want := range categories {
			select {
			case n := <-ch:
				assert.Equal(t, want, n.Category)
			case <-time.After(time.Second):
				t.Fatal("timed out waiting for notification")
			}
		}
	}
}

func TestBusSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	// Never drained: the buffer fills and further publishes must drop.
	_, _ = b.Subscribe(context.Background())

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*3; i++ {
			b.Publish(Notification{Category: CategoryLogs})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestBusContextCancellationUnsubscribes(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx)

	cancel()

	// The channel closes once cleanup runs.
	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)

	b.mu.RLock()
	defer b.mu.RUnlock()
	assert.Empty(t, b.subscribers)
}

func TestBusUnsubscribeIsIdempotent(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	_, subID := b.Subscribe(context.Background())
	b.Unsubscribe(subID)
	b.Unsubscribe(subID)
}

func TestBusUnsubscribeDuringPublishDoesNotPanic(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	stop := make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
					b.Publish(Notification{Category: CategoryLogs})
				}
			}
		}()
	}

	// Churn subscriptions against the publishers. A send racing the close
	// in Unsubscribe would panic the process.
	for i := 0; i < 500; i++ {
		_, subID := b.Subscribe(context.Background())
		b.Unsubscribe(subID)
	}

	close(stop)
	wg.Wait()
}

func TestBusConcurrentSubscribePublish(t *testing.T) {
	b := NewBus(nil)
	defer b.Close()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			ch, _ := b.Subscribe(ctx)
			select {
			case <-ch:
			case <-time.After(50 * time.Millisecond):
			}
		}()
		go func() {
			defer wg.Done()
			for j := 0; j < 20; j++ {
				b.Publish(Notification{Category: CategoryCommands})
			}
		}()
	}
	wg.Wait()
}
