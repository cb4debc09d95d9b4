// ABOUTME: Session owns the in-memory conversation list, current selection, document selection and in-flight sends
// ABOUTME: Every read returns deep copies; backend and durable cleanup run in tracked background goroutines

package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/2389/docchat/internal/store"
)

// DefaultTitle names conversations until their first message arrives.
const DefaultTitle = "New chat"

// defaultCleanupTimeout bounds each background backend or store call.
const defaultCleanupTimeout = 30 * time.Second

var (
	// ErrBackendUnavailable is returned when the backend cannot allocate a chat.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrEmptyMessage is returned for blank outgoing text.
	ErrEmptyMessage = errors.New("empty message")
	// ErrSendInFlight is returned when the conversation already has a send running.
	ErrSendInFlight = errors.New("send already in flight for conversation")
	// ErrNotFound is returned for unknown conversation ids.
	ErrNotFound = errors.New("conversation not found")
)

// Backend allocates and releases remote chats.
type Backend interface {
	CreateConversation(ctx context.Context) (string, error)
	DeleteConversation(ctx context.Context, chatID string) error
}

// SnapshotStore persists whole conversations.
type SnapshotStore interface {
	SaveConversation(ctx context.Context, conv *store.Conversation) error
	DeleteConversation(ctx context.Context, id string) error
	ListConversations(ctx context.Context) ([]*store.Conversation, error)
}

// Session is the single owner of conversation state. It is safe for
// concurrent use.
type Session struct {
	backend Backend
	store   SnapshotStore
	events  *EventBroadcaster
	logger  *slog.Logger

	mu            sync.RWMutex
	conversations map[string]*store.Conversation
	currentID     string
	inflight      map[string]struct{}
	selected      map[string]struct{}

	// persistMu orders durable writes so a save never lands after the
	// delete of the same conversation.
	persistMu      sync.Mutex
	bg             sync.WaitGroup
	cleanupTimeout time.Duration
	now            func() time.Time
}

// NewSession creates an empty session. snapshots may be nil, in which case
// nothing is persisted. Pass nil logger for default.
func NewSession(b Backend, snapshots SnapshotStore, logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		backend:        b,
		store:          snapshots,
		events:         NewEventBroadcaster(logger),
		logger:         logger.With("component", "session"),
		conversations:  make(map[string]*store.Conversation),
		inflight:       make(map[string]struct{}),
		selected:       make(map[string]struct{}),
		cleanupTimeout: defaultCleanupTimeout,
		now:            time.Now,
	}
}

// CreateConversation allocates a remote chat, then inserts an empty local
// conversation and makes it current. Nothing is created when the backend
// fails.
func (s *Session) CreateConversation(ctx context.Context) (string, error) {
	chatID, err := s.backend.CreateConversation(ctx)
	if err != nil {
		s.logger.Warn("creating remote chat failed", "error", err)
		return "", fmt.Errorf("%w: %w", ErrBackendUnavailable, err)
	}

	conv := &store.Conversation{
		ID:        uuid.New().String(),
		ChatID:    chatID,
		Title:     DefaultTitle,
		UpdatedAt: s.now(),
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.currentID = conv.ID
	s.mu.Unlock()

	s.logger.Info("conversation created", "id", conv.ID, "chat_id", chatID)
	s.events.Publish(&Event{Type: EventCreated, ConversationID: conv.ID})
	s.Persist(ctx, conv.ID)

	return conv.ID, nil
}

// SelectConversation makes id current. Unknown ids are ignored.
func (s *Session) SelectConversation(id string) bool {
	s.mu.Lock()
	if _, ok := s.conversations[id]; !ok {
		s.mu.Unlock()
		return false
	}
	s.currentID = id
	s.mu.Unlock()

	s.events.Publish(&Event{Type: EventSelected, ConversationID: id})
	return true
}

// DeleteConversation removes id locally right away, then deletes the
// remote chat and the durable snapshot concurrently in the background.
// Cleanup failures are logged, never returned. A send still streaming into
// the conversation keeps reading; its deltas are dropped.
func (s *Session) DeleteConversation(ctx context.Context, id string) bool {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	delete(s.conversations, id)
	if s.currentID == id {
		s.currentID = ""
	}
	s.mu.Unlock()

	s.logger.Info("conversation deleted", "id", id, "chat_id", conv.ChatID)
	s.events.Publish(&Event{Type: EventDeleted, ConversationID: id})

	bgCtx := context.WithoutCancel(ctx)
	s.bg.Go(func() {
		var g errgroup.Group
		if conv.ChatID != "" {
			g.Go(func() error {
				ctx, cancel := context.WithTimeout(bgCtx, s.cleanupTimeout)
				defer cancel()
				if err := s.backend.DeleteConversation(ctx, conv.ChatID); err != nil {
					s.logger.Warn("deleting remote chat failed", "id", id, "chat_id", conv.ChatID, "error", err)
					return err
				}
				return nil
			})
		}
		if s.store != nil {
			g.Go(func() error {
				ctx, cancel := context.WithTimeout(bgCtx, s.cleanupTimeout)
				defer cancel()
				s.persistMu.Lock()
				defer s.persistMu.Unlock()
				if err := s.store.DeleteConversation(ctx, id); err != nil {
					s.logger.Warn("deleting snapshot failed", "id", id, "error", err)
					return err
				}
				return nil
			})
		}
		if err := g.Wait(); err == nil {
			s.logger.Debug("conversation cleanup complete", "id", id)
		}
	})

	return true
}

// ToggleDocument adds docID to the selection, or removes it if present.
// It reports whether the document is selected afterwards.
func (s *Session) ToggleDocument(docID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.selected[docID]; ok {
		delete(s.selected, docID)
		return false
	}
	s.selected[docID] = struct{}{}
	return true
}

// SelectedDocuments returns the selected document ids, sorted. An empty
// selection means every document.
func (s *Session) SelectedDocuments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]string, 0, len(s.selected))
	for id := range s.selected {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// AppendMessages adds whole messages to the end of a conversation.
func (s *Session) AppendMessages(id string, msgs ...store.Message) bool {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	conv.Messages = append(conv.Messages, msgs...)
	conv.UpdatedAt = s.now()
	s.mu.Unlock()

	s.events.Publish(&Event{Type: EventUpdated, ConversationID: id})
	return true
}

// ReplaceMessages swaps a conversation's message list wholesale.
func (s *Session) ReplaceMessages(id string, msgs []store.Message) bool {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return false
	}
	conv.Messages = slices.Clone(msgs)
	conv.UpdatedAt = s.now()
	s.mu.Unlock()

	s.events.Publish(&Event{Type: EventUpdated, ConversationID: id})
	return true
}

// AppendDelta appends a fragment to a message's content. A missing
// conversation or message is a silent no-op.
func (s *Session) AppendDelta(id, messageID, delta string) bool {
	s.mu.Lock()
	msg := s.messageLocked(id, messageID)
	if msg == nil {
		s.mu.Unlock()
		return false
	}
	msg.Content += delta
	s.conversations[id].UpdatedAt = s.now()
	s.mu.Unlock()

	s.events.Publish(&Event{Type: EventDelta, ConversationID: id, MessageID: messageID, Delta: delta})
	return true
}

// SetContent replaces a message's content. A missing conversation or
// message is a silent no-op.
func (s *Session) SetContent(id, messageID, text string) bool {
	return s.setAnswer(id, messageID, text, false)
}

// setAnswer is SetContent that also records whether the answer came from
// the backend's cache.
func (s *Session) setAnswer(id, messageID, text string, cached bool) bool {
	s.mu.Lock()
	msg := s.messageLocked(id, messageID)
	if msg == nil {
		s.mu.Unlock()
		return false
	}
	msg.Content = text
	msg.Cached = cached
	s.conversations[id].UpdatedAt = s.now()
	s.mu.Unlock()

	s.events.Publish(&Event{Type: EventUpdated, ConversationID: id, MessageID: messageID})
	return true
}

func (s *Session) messageLocked(id, messageID string) *store.Message {
	conv, ok := s.conversations[id]
	if !ok {
		return nil
	}
	for i := range conv.Messages {
		if conv.Messages[i].ID == messageID {
			return &conv.Messages[i]
		}
	}
	return nil
}

// Load replaces every conversation with the durable store's contents and
// selects the most recently updated one. In-flight flags are kept.
func (s *Session) Load(ctx context.Context) error {
	if s.store == nil {
		return nil
	}

	convs, err := s.store.ListConversations(ctx)
	if err != nil {
		return fmt.Errorf("loading conversations: %w", err)
	}

	loaded := make(map[string]*store.Conversation, len(convs))
	for _, c := range convs {
		loaded[c.ID] = c.Clone()
	}

	s.mu.Lock()
	s.conversations = loaded
	s.currentID = ""
	if ordered := s.sortedLocked(); len(ordered) > 0 {
		s.currentID = ordered[0].ID
	}
	current := s.currentID
	s.mu.Unlock()

	s.logger.Info("conversations loaded", "count", len(convs), "current", current)
	s.events.Publish(&Event{Type: EventLoaded})
	return nil
}

// Conversations returns copies of every conversation, most recent
// activity first.
func (s *Session) Conversations() []*store.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ordered := s.sortedLocked()
	out := make([]*store.Conversation, len(ordered))
	for i, c := range ordered {
		out[i] = c.Clone()
	}
	return out
}

func (s *Session) sortedLocked() []*store.Conversation {
	out := make([]*store.Conversation, 0, len(s.conversations))
	for _, c := range s.conversations {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Conversation returns a copy of one conversation.
func (s *Session) Conversation(id string) (*store.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

// CurrentID returns the current conversation id, or "" when none is selected.
func (s *Session) CurrentID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentID
}

// Loading reports whether a send is in flight for id.
func (s *Session) Loading(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.inflight[id]
	return ok
}

// Busy reports whether any send is in flight.
func (s *Session) Busy() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.inflight) > 0
}

// Subscribe streams session events for one conversation, or for all of
// them with AllConversations, until ctx is cancelled.
func (s *Session) Subscribe(ctx context.Context, id string) <-chan *Event {
	ch, _ := s.events.Subscribe(ctx, id)
	return ch
}

// SubscribeBuffered is Subscribe with a larger channel buffer; events are
// dropped only once size events are waiting unread.
func (s *Session) SubscribeBuffered(ctx context.Context, id string, size int) <-chan *Event {
	ch, _ := s.events.SubscribeBuffered(ctx, id, size)
	return ch
}

// turn is a send that has claimed its conversation.
type turn struct {
	conversationID string
	chatID         string
	placeholderID  string
}

// beginTurn claims id's in-flight slot and appends the user message and an
// empty assistant placeholder in one step. The first message also becomes
// the title.
func (s *Session) beginTurn(id, text string) (*turn, error) {
	s.mu.Lock()
	conv, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return nil, ErrNotFound
	}
	if _, busy := s.inflight[id]; busy {
		s.mu.Unlock()
		return nil, ErrSendInFlight
	}
	s.inflight[id] = struct{}{}

	now := s.now()
	if len(conv.Messages) == 0 {
		conv.Title = text
	}
	t := &turn{conversationID: id, chatID: conv.ChatID, placeholderID: uuid.New().String()}
	conv.Messages = append(conv.Messages,
		store.Message{ID: uuid.New().String(), Role: store.RoleUser, Content: text, Timestamp: now},
		store.Message{ID: t.placeholderID, Role: store.RoleAssistant, Timestamp: now},
	)
	conv.UpdatedAt = now
	s.mu.Unlock()

	s.events.Publish(&Event{Type: EventUpdated, ConversationID: id})
	s.events.Publish(&Event{Type: EventLoading, ConversationID: id, Loading: true})
	return t, nil
}

// endTurn releases the in-flight slot claimed by beginTurn.
func (s *Session) endTurn(t *turn) {
	s.mu.Lock()
	delete(s.inflight, t.conversationID)
	s.mu.Unlock()

	s.events.Publish(&Event{Type: EventLoading, ConversationID: t.conversationID, Loading: false})
}

// Persist writes id's latest state to the durable store in the
// background. Failures are logged; the in-memory state is never rolled
// back. Conversations deleted before the write runs are skipped.
func (s *Session) Persist(ctx context.Context, id string) {
	if s.store == nil {
		return
	}

	bgCtx := context.WithoutCancel(ctx)
	s.bg.Go(func() {
		ctx, cancel := context.WithTimeout(bgCtx, s.cleanupTimeout)
		defer cancel()

		s.persistMu.Lock()
		defer s.persistMu.Unlock()

		snap, err := s.Conversation(id)
		if err != nil {
			return
		}
		if err := s.store.SaveConversation(ctx, snap); err != nil {
			s.logger.Warn("saving snapshot failed", "id", id, "error", err)
			return
		}
		s.logger.Debug("snapshot saved", "id", id, "messages", len(snap.Messages))
	})
}

// Wait blocks until background saves and deletes have finished.
func (s *Session) Wait() {
	s.bg.Wait()
}

// Close waits for background work and closes every subscription.
func (s *Session) Close() {
	s.Wait()
	s.events.Close()
}
