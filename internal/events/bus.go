// ABOUTME: In-memory fan-out event bus for dashboard update notifications
// ABOUTME: Broadcasts typed, category-tagged notifications to all live subscribers

package events

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// Category tags a notification with the collection or subsystem it concerns.
type Category string

// The closed set of notification categories.
const (
	CategoryLogs        Category = "logs"
	CategoryMessages    Category = "messages"
	CategoryCommands    Category = "commands"
	CategoryGuilds      Category = "guilds"
	CategoryMembers     Category = "members"
	CategoryGuildConfig Category = "guild_config"
	CategoryStatus      Category = "status"
	CategoryWaitlist    Category = "waitlist"
)

// Notification is a single update pushed to subscribers. GuildID is set for
// guild-scoped categories (members, guild_config). Payload optionally carries
// the entity that triggered the notification.
type Notification struct {
	Category Category `json:"category"`
	GuildID  string   `json:"guildId,omitempty"`
	Payload  any      `json:"payload,omitempty"`
}

// Bus provides in-memory pub/sub for Notifications. Every subscriber
// receives every published notification in publish order. Delivery is
// at-most-once: a subscriber whose buffer is full misses the notification
// rather than blocking the publisher.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[string]chan Notification
	logger      *slog.Logger
}

// NewBus creates a bus. Pass nil logger for default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		subscribers: make(map[string]chan Notification),
		logger:      logger.With("component", "events"),
	}
}

// Subscribe registers a subscriber and returns its channel and subscription
// ID. The subscription is automatically removed, and its channel closed,
// when ctx is cancelled.
func (b *Bus) Subscribe(ctx context.Context) (<-chan Notification, string) {
	subID := uuid.NewString()
	ch := make(chan Notification, subscriberBufferSize)

	b.mu.Lock()
	b.subscribers[subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(subID)
	}()

	return ch, subID
}

// Publish fans a notification out to all subscribers. Non-blocking: the
// notification is dropped for subscribers whose channels are full.
//
// The fan-out happens under the read lock. Channels are only ever closed
// under the write lock, so a concurrent Unsubscribe or Close cannot close a
// channel mid-send. Each send is buffered-or-drop, so the lock is never
// held across a blocking operation.
func (b *Bus) Publish(n Notification) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- n:
		default:
			b.logger.Debug("dropped notification for slow subscriber", "category", n.Category)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel. Safe to call
// for an already-removed subscription.
func (b *Bus) Unsubscribe(subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch, ok := b.subscribers[subID]
	if !ok {
		return
	}
	delete(b.subscribers, subID)
	close(ch)

	b.logger.Debug("subscriber removed", "sub_id", subID)
}

// Close shuts down the bus and closes all subscriber channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for subID, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, subID)
	}
	b.logger.Debug("bus closed")
}
