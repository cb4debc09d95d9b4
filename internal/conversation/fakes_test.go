// ABOUTME: Test doubles for the backend, chat client and durable store consumed by Session and Service
// ABOUTME: Fakes record calls and can fail or block on demand

package conversation

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/2389/docchat/internal/backend"
	"github.com/2389/docchat/internal/store"
)

// fakeBackend implements Backend.
type fakeBackend struct {
	mu        sync.Mutex
	created   int
	deleted   []string
	createErr error
	deleteErr error
	// deleteGate, when non-nil, blocks DeleteConversation until closed.
	deleteGate chan struct{}
}

func (f *fakeBackend) CreateConversation(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created++
	return fmt.Sprintf("chat-%d", f.created), nil
}

func (f *fakeBackend) DeleteConversation(ctx context.Context, chatID string) error {
	if f.deleteGate != nil {
		<-f.deleteGate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, chatID)
	return f.deleteErr
}

func (f *fakeBackend) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

func (f *fakeBackend) Deleted() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.deleted...)
}

// fakeChat implements ChatClient with a per-test responder.
type fakeChat struct {
	mu       sync.Mutex
	requests []*backend.ChatRequest
	respond  func(ctx context.Context, req *backend.ChatRequest) (*backend.ChatResponse, error)
}

func (f *fakeChat) Chat(ctx context.Context, req *backend.ChatRequest) (*backend.ChatResponse, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	respond := f.respond
	f.mu.Unlock()
	return respond(ctx, req)
}

func (f *fakeChat) Requests() []*backend.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*backend.ChatRequest(nil), f.requests...)
}

// replyWith returns a responder that serves body with the given kind.
func replyWith(kind backend.Kind, body string) func(context.Context, *backend.ChatRequest) (*backend.ChatResponse, error) {
	return func(context.Context, *backend.ChatRequest) (*backend.ChatResponse, error) {
		return &backend.ChatResponse{Kind: kind, Body: io.NopCloser(strings.NewReader(body))}, nil
	}
}

// failingReader yields data and then err.
type failingReader struct {
	data string
	err  error
}

func (r *failingReader) Read(p []byte) (int, error) {
	if r.data == "" {
		return 0, r.err
	}
	n := copy(p, r.data)
	r.data = r.data[n:]
	return n, nil
}

// fixedClock hands out strictly increasing times.
type fixedClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFixedClock() *fixedClock {
	return &fixedClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

type fixture struct {
	backend *fakeBackend
	chat    *fakeChat
	store   *store.MockStore
	session *Session
	svc     *Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		backend: &fakeBackend{},
		chat:    &fakeChat{respond: replyWith(backend.KindEventStream, "")},
		store:   store.NewMockStore(),
	}
	f.session = NewSession(f.backend, f.store, nil)
	f.session.now = newFixedClock().Now
	f.svc = New(f.session, f.chat, AssistantSettings{SystemPrompt: "cite files", MaxCharsPerFile: 10000, MaxHistory: 8}, nil)
	t.Cleanup(f.session.Close)
	return f
}

// placeholder returns the assistant message with id from conversation convID.
func (f *fixture) placeholder(t *testing.T, convID, id string) store.Message {
	t.Helper()
	conv, err := f.session.Conversation(convID)
	require.NoError(t, err)
	for _, m := range conv.Messages {
		if m.ID == id {
			return m
		}
	}
	t.Fatalf("message %s not found in %s", id, convID)
	return store.Message{}
}
