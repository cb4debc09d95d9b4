// ABOUTME: Service turns outgoing text into a conversation turn and streams the backend's answer into it
// ABOUTME: Optimistic write first, incremental deltas next, durable snapshot last; send failures become visible text

package conversation

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/docchat/internal/backend"
	"github.com/2389/docchat/internal/sse"
)

const (
	// NoResponseText fills the placeholder when the backend answers with nothing.
	NoResponseText = "[no response]"
	// FailureText fills the placeholder when the send fails.
	FailureText = "Sorry, something went wrong while processing your request."
)

// ChatClient sends one chat request to the backend.
type ChatClient interface {
	Chat(ctx context.Context, req *backend.ChatRequest) (*backend.ChatResponse, error)
}

// AssistantSettings are forwarded with every chat request.
type AssistantSettings struct {
	SystemPrompt    string
	MaxCharsPerFile int
	MaxHistory      int
}

// SendResult describes a finished send.
type SendResult struct {
	ConversationID string
	MessageID      string // the assistant placeholder
	Content        string // placeholder content when the send finished
	Kind           backend.Kind
	Deltas         int
	Cached         bool
	// Err is the transport or decode failure that replaced the answer
	// with FailureText, if any.
	Err error
}

// Service orchestrates sends against a Session.
type Service struct {
	session *Session
	chat    ChatClient
	logger  *slog.Logger

	mu        sync.RWMutex
	assistant AssistantSettings
}

// New creates a Service. Pass nil logger for default.
func New(session *Session, chat ChatClient, assistant AssistantSettings, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		session:   session,
		chat:      chat,
		assistant: assistant,
		logger:    logger.With("component", "conversation"),
	}
}

// Session returns the session the service writes to.
func (s *Service) Session() *Session {
	return s.session
}

// SetAssistant replaces the settings used by later sends.
func (s *Service) SetAssistant(a AssistantSettings) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assistant = a
}

// Assistant returns the current settings.
func (s *Service) Assistant() AssistantSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.assistant
}

// Send delivers text to the current conversation, creating one first when
// none is selected, and blocks until the answer is complete.
//
// Key principle: record first, then act. The user message and an empty
// assistant placeholder are in the session before the request goes out, so
// a failed send still leaves a visible exchange. Deltas are appended to the
// placeholder in arrival order; JSON and plain bodies replace it once.
//
// The returned error covers preconditions only: ErrEmptyMessage,
// ErrBackendUnavailable, ErrSendInFlight and ErrNotFound. Transport
// failures are reported in SendResult.Err.
func (s *Service) Send(ctx context.Context, text string) (*SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	id := s.session.CurrentID()
	if id == "" {
		var err error
		if id, err = s.session.CreateConversation(ctx); err != nil {
			return nil, err
		}
	}

	t, err := s.session.beginTurn(id, text)
	if err != nil {
		return nil, err
	}
	defer func() {
		s.session.endTurn(t)
		s.session.Persist(ctx, id)
	}()

	s.logger.Debug("sending message", "conversation_id", id, "chat_id", t.chatID, "placeholder_id", t.placeholderID)

	result := &SendResult{ConversationID: id, MessageID: t.placeholderID}
	if err := s.exchange(ctx, t, text, result); err != nil {
		s.logger.Error("send failed", "error", err, "conversation_id", id)
		s.session.SetContent(id, t.placeholderID, FailureText)
		result.Err = err
	}

	if conv, err := s.session.Conversation(id); err == nil {
		for _, m := range conv.Messages {
			if m.ID == t.placeholderID {
				result.Content = m.Content
				break
			}
		}
	}
	return result, nil
}

// exchange performs the request and writes the answer into the placeholder.
func (s *Service) exchange(ctx context.Context, t *turn, text string, result *SendResult) error {
	a := s.Assistant()
	req := &backend.ChatRequest{
		ChatID:          t.chatID,
		Message:         text,
		SelectedIDs:     s.session.SelectedDocuments(),
		Stream:          true,
		SystemPrompt:    a.SystemPrompt,
		MaxCharsPerFile: a.MaxCharsPerFile,
		MaxHistory:      a.MaxHistory,
	}

	resp, err := s.chat.Chat(ctx, req)
	if err != nil {
		return fmt.Errorf("chat request: %w", err)
	}
	defer resp.Body.Close()
	result.Kind = resp.Kind

	switch resp.Kind {
	case backend.KindEventStream:
		for delta, err := range sse.Deltas(resp.Body) {
			if err != nil {
				return fmt.Errorf("reading stream: %w", err)
			}
			// A false return means the conversation was deleted; keep
			// draining so the stream ends normally.
			s.session.AppendDelta(t.conversationID, t.placeholderID, delta)
			result.Deltas++
		}
		s.logger.Debug("stream complete", "conversation_id", t.conversationID, "deltas", result.Deltas)

	case backend.KindJSON:
		ans, err := backend.DecodeAnswer(resp.Body, NoResponseText)
		if err != nil {
			return err
		}
		result.Cached = ans.Cached
		s.session.setAnswer(t.conversationID, t.placeholderID, ans.Text, ans.Cached)

	default:
		txt, err := backend.ReadText(resp.Body, NoResponseText)
		if err != nil {
			return err
		}
		s.session.SetContent(t.conversationID, t.placeholderID, txt)
	}

	return nil
}

// Wait blocks until background snapshot writes and deletes have finished.
func (s *Service) Wait() {
	s.session.Wait()
}
