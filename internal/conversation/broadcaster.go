// ABOUTME: In-memory fan-out broadcaster for session changes
// ABOUTME: Publishes streaming deltas and conversation updates to per-conversation and session-wide subscribers

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64

	// AllConversations subscribes to events from every conversation.
	AllConversations = ""
)

// EventType identifies what changed in the session.
type EventType string

const (
	EventCreated  EventType = "created"  // conversation added
	EventSelected EventType = "selected" // current conversation changed
	EventDeleted  EventType = "deleted"  // conversation removed locally
	EventUpdated  EventType = "updated"  // messages or title changed wholesale
	EventDelta    EventType = "delta"    // a streaming placeholder grew
	EventLoading  EventType = "loading"  // a send started or finished
	EventLoaded   EventType = "loaded"   // session state replaced from the durable store
)

// Event describes one session change. Delta is set for EventDelta,
// Loading for EventLoading.
type Event struct {
	Type           EventType
	ConversationID string
	MessageID      string
	Delta          string
	Loading        bool
}

// EventBroadcaster provides in-memory pub/sub for session events.
// Subscribers register for one conversation id, or AllConversations, and
// receive events as the session changes. Front ends observe streaming
// without polling.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Event // conversationID -> subID -> ch
	closed      bool
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan *Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers a subscriber for events on the given conversation id.
// Returns a channel that receives events and a subscription ID for later
// unsubscription. The subscription is automatically cleaned up when ctx is
// cancelled.
func (b *EventBroadcaster) Subscribe(ctx context.Context, conversationID string) (<-chan *Event, string) {
	return b.SubscribeBuffered(ctx, conversationID, subscriberBufferSize)
}

// SubscribeBuffered is Subscribe with a caller-chosen channel buffer, for
// consumers that must not lose deltas during a burst. Sizes below the
// default are raised to it.
func (b *EventBroadcaster) SubscribeBuffered(ctx context.Context, conversationID string, size int) (<-chan *Event, string) {
	subID := uuid.New().String()
	ch := make(chan *Event, max(size, subscriberBufferSize))

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(ch)
		return ch, subID
	}
	if _, ok := b.subscribers[conversationID]; !ok {
		b.subscribers[conversationID] = make(map[string]chan *Event)
	}
	b.subscribers[conversationID][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added",
		"conversation_id", conversationID,
		"sub_id", subID)

	// Auto-cleanup on context cancellation
	go func() {
		<-ctx.Done()
		b.Unsubscribe(conversationID, subID)
	}()

	return ch, subID
}

// Publish sends an event to subscribers of its conversation and to
// session-wide subscribers.
// Non-blocking: events are dropped for subscribers whose channels are full.
func (b *EventBroadcaster) Publish(event *Event) {
	b.mu.RLock()
	var targets []chan *Event
	for _, key := range subscriberKeys(event.ConversationID) {
		for _, ch := range b.subscribers[key] {
			targets = append(targets, ch)
		}
	}
	if len(targets) == 0 {
		b.mu.RUnlock()
		return
	}

	// Sends happen under the read lock so Unsubscribe cannot close a
	// channel mid-send; they never block.
	for _, ch := range targets {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"conversation_id", event.ConversationID,
				"type", event.Type)
		}
	}
	b.mu.RUnlock()
}

func subscriberKeys(conversationID string) []string {
	if conversationID == AllConversations {
		return []string{AllConversations}
	}
	return []string{conversationID, AllConversations}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(conversationID, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[conversationID]
	if !ok {
		return
	}

	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)

	// Clean up empty conversation entries
	if len(subs) == 0 {
		delete(b.subscribers, conversationID)
	}

	b.logger.Debug("subscriber removed",
		"conversation_id", conversationID,
		"sub_id", subID)
}

// Close shuts down the broadcaster and closes all subscriber channels.
// Later subscriptions receive an already closed channel.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for convID, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, convID)
	}
	b.closed = true

	b.logger.Debug("broadcaster closed")
}
