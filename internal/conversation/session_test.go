// ABOUTME: Tests for Session state ownership
// ABOUTME: Covers create/select/delete, document selection, message primitives, load, snapshots, and events

package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/docchat/internal/store"
)

func TestSession_CreateConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	id, err := f.session.CreateConversation(ctx)
	require.NoError(t, err)

	assert.Equal(t, id, f.session.CurrentID())
	assert.Equal(t, 1, f.backend.Created())

	conv, err := f.session.Conversation(id)
	require.NoError(t, err)
	assert.Equal(t, "chat-1", conv.ChatID)
	assert.Equal(t, DefaultTitle, conv.Title)
	assert.Empty(t, conv.Messages)

	f.session.Wait()
	saved, err := f.store.GetConversation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "chat-1", saved.ChatID)
}

func TestSession_CreateConversation_BackendFailure(t *testing.T) {
	f := newFixture(t)
	boom := errors.New("connection refused")
	f.backend.createErr = boom

	id, err := f.session.CreateConversation(context.Background())
	assert.Empty(t, id)
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.ErrorIs(t, err, boom)

	assert.Empty(t, f.session.Conversations())
	assert.Empty(t, f.session.CurrentID())
	f.session.Wait()
	assert.Zero(t, f.store.Saves())
}

func TestSession_SelectConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.session.CreateConversation(ctx)
	require.NoError(t, err)
	second, err := f.session.CreateConversation(ctx)
	require.NoError(t, err)
	assert.Equal(t, second, f.session.CurrentID())

	assert.True(t, f.session.SelectConversation(first))
	assert.Equal(t, first, f.session.CurrentID())

	assert.False(t, f.session.SelectConversation("missing"))
	assert.Equal(t, first, f.session.CurrentID(), "unknown id leaves selection alone")
}

func TestSession_DeleteIsImmediateWhileBackendBlocks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.deleteGate = make(chan struct{})

	id, err := f.session.CreateConversation(ctx)
	require.NoError(t, err)

	done := make(chan bool)
	go func() { done <- f.session.DeleteConversation(ctx, id) }()

	select {
	case ok := <-done:
		assert.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("DeleteConversation blocked on the backend")
	}

	assert.Empty(t, f.session.Conversations())
	assert.Empty(t, f.session.CurrentID())
	_, err = f.session.Conversation(id)
	assert.ErrorIs(t, err, ErrNotFound)

	close(f.backend.deleteGate)
	f.session.Wait()
	assert.Equal(t, []string{"chat-1"}, f.backend.Deleted())
	_, err = f.store.GetConversation(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSession_DeleteSurvivesCleanupFailures(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.backend.deleteErr = errors.New("502")
	f.store.DeleteErr = errors.New("disk full")

	id, err := f.session.CreateConversation(ctx)
	require.NoError(t, err)
	other, err := f.session.CreateConversation(ctx)
	require.NoError(t, err)

	assert.True(t, f.session.DeleteConversation(ctx, id))
	f.session.Wait()

	convs := f.session.Conversations()
	require.Len(t, convs, 1)
	assert.Equal(t, other, convs[0].ID)
	assert.Equal(t, other, f.session.CurrentID(), "deleting another conversation keeps the current one")
}

func TestSession_DeleteUnknown(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.session.DeleteConversation(context.Background(), "nope"))
	f.session.Wait()
	assert.Empty(t, f.backend.Deleted())
}

func TestSession_DeleteOutlivesCallerContext(t *testing.T) {
	f := newFixture(t)
	id, err := f.session.CreateConversation(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	f.session.DeleteConversation(ctx, id)
	cancel()

	f.session.Wait()
	assert.Equal(t, []string{"chat-1"}, f.backend.Deleted())
}

func TestSession_ToggleDocumentTwiceIsIdentity(t *testing.T) {
	f := newFixture(t)

	f.session.ToggleDocument("b")
	before := f.session.SelectedDocuments()

	assert.True(t, f.session.ToggleDocument("a"))
	assert.Equal(t, []string{"a", "b"}, f.session.SelectedDocuments())
	assert.False(t, f.session.ToggleDocument("a"))

	assert.Equal(t, before, f.session.SelectedDocuments())
}

func TestSession_SelectedDocumentsEmptyIsNotNil(t *testing.T) {
	f := newFixture(t)
	docs := f.session.SelectedDocuments()
	assert.NotNil(t, docs)
	assert.Empty(t, docs)
}

func TestSession_MessagePrimitives(t *testing.T) {
	f := newFixture(t)
	id, err := f.session.CreateConversation(context.Background())
	require.NoError(t, err)

	assert.True(t, f.session.AppendMessages(id,
		store.Message{ID: "u1", Role: store.RoleUser, Content: "hola"},
		store.Message{ID: "a1", Role: store.RoleAssistant},
	))
	assert.True(t, f.session.AppendDelta(id, "a1", "Bue"))
	assert.True(t, f.session.AppendDelta(id, "a1", "nas"))
	assert.Equal(t, "Buenas", f.placeholder(t, id, "a1").Content)

	assert.True(t, f.session.SetContent(id, "a1", "replaced"))
	assert.Equal(t, "replaced", f.placeholder(t, id, "a1").Content)

	assert.True(t, f.session.ReplaceMessages(id, []store.Message{{ID: "x", Role: store.RoleSystem, Content: "reset"}}))
	conv, err := f.session.Conversation(id)
	require.NoError(t, err)
	require.Len(t, conv.Messages, 1)
	assert.Equal(t, "x", conv.Messages[0].ID)
}

func TestSession_PrimitivesOnMissingTargetsAreNoOps(t *testing.T) {
	f := newFixture(t)
	id, err := f.session.CreateConversation(context.Background())
	require.NoError(t, err)

	assert.False(t, f.session.AppendMessages("missing", store.Message{ID: "m"}))
	assert.False(t, f.session.ReplaceMessages("missing", nil))
	assert.False(t, f.session.AppendDelta("missing", "m", "x"))
	assert.False(t, f.session.AppendDelta(id, "missing", "x"))
	assert.False(t, f.session.SetContent(id, "missing", "x"))

	conv, err := f.session.Conversation(id)
	require.NoError(t, err)
	assert.Empty(t, conv.Messages)
}

func TestSession_ReadsAreDeepCopies(t *testing.T) {
	f := newFixture(t)
	id, err := f.session.CreateConversation(context.Background())
	require.NoError(t, err)
	msgs := []store.Message{{ID: "m1", Role: store.RoleUser, Content: "original"}}
	f.session.ReplaceMessages(id, msgs)

	msgs[0].Content = "caller mutated"
	conv, err := f.session.Conversation(id)
	require.NoError(t, err)
	assert.Equal(t, "original", conv.Messages[0].Content)

	conv.Messages[0].Content = "reader mutated"
	list := f.session.Conversations()
	require.Len(t, list, 1)
	assert.Equal(t, "original", list[0].Messages[0].Content)
}

func TestSession_ConversationsOrderedByActivity(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	a, err := f.session.CreateConversation(ctx)
	require.NoError(t, err)
	b, err := f.session.CreateConversation(ctx)
	require.NoError(t, err)

	ids := func() []string {
		var out []string
		for _, c := range f.session.Conversations() {
			out = append(out, c.ID)
		}
		return out
	}
	assert.Equal(t, []string{b, a}, ids())

	f.session.AppendMessages(a, store.Message{ID: "m", Role: store.RoleUser, Content: "bump"})
	assert.Equal(t, []string{a, b}, ids())
}

func TestSession_Load(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, f.store.SaveConversation(ctx, &store.Conversation{ID: "older", ChatID: "c-old", Title: "old", UpdatedAt: base}))
	require.NoError(t, f.store.SaveConversation(ctx, &store.Conversation{
		ID:        "newer",
		ChatID:    "c-new",
		Title:     "new",
		Messages:  []store.Message{{ID: "m", Role: store.RoleAssistant, Content: "cached answer", Cached: true}},
		UpdatedAt: base.Add(time.Hour),
	}))

	// Local state that Load must replace.
	_, err := f.session.CreateConversation(ctx)
	require.NoError(t, err)
	f.session.Wait()
	require.NoError(t, f.store.DeleteConversation(ctx, f.session.CurrentID()))

	require.NoError(t, f.session.Load(ctx))

	convs := f.session.Conversations()
	require.Len(t, convs, 2)
	assert.Equal(t, "newer", convs[0].ID)
	assert.Equal(t, "older", convs[1].ID)
	assert.Equal(t, "newer", f.session.CurrentID())
	assert.True(t, convs[0].Messages[0].Cached)
}

func TestSession_LoadEmptyStoreClearsCurrent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.session.CreateConversation(ctx)
	require.NoError(t, err)
	f.session.Wait()
	require.NoError(t, f.store.DeleteConversation(ctx, f.session.CurrentID()))

	require.NoError(t, f.session.Load(ctx))
	assert.Empty(t, f.session.Conversations())
	assert.Empty(t, f.session.CurrentID())
}

func TestSession_PersistFailureKeepsLocalState(t *testing.T) {
	f := newFixture(t)
	f.store.SaveErr = errors.New("read-only database")

	id, err := f.session.CreateConversation(context.Background())
	require.NoError(t, err)
	f.session.Wait()

	_, err = f.session.Conversation(id)
	assert.NoError(t, err)
}

func TestSession_PersistSkipsDeletedConversation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id, err := f.session.CreateConversation(ctx)
	require.NoError(t, err)
	f.session.Wait()

	// Hold durable writes so the save queues behind the delete.
	f.session.persistMu.Lock()
	f.session.Persist(ctx, id)
	f.session.DeleteConversation(ctx, id)
	f.session.persistMu.Unlock()
	f.session.Wait()

	_, err = f.store.GetConversation(ctx, id)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSession_NilStore(t *testing.T) {
	s := NewSession(&fakeBackend{}, nil, nil)
	defer s.Close()
	ctx := context.Background()

	id, err := s.CreateConversation(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Load(ctx), "load without a store is a no-op")
	assert.Equal(t, id, s.CurrentID())
	assert.True(t, s.DeleteConversation(ctx, id))
	s.Wait()
}

func TestSession_SubscribeReceivesDeltas(t *testing.T) {
	f := newFixture(t)
	id, err := f.session.CreateConversation(context.Background())
	require.NoError(t, err)
	f.session.AppendMessages(id, store.Message{ID: "a1", Role: store.RoleAssistant})

	events := f.session.Subscribe(t.Context(), id)
	f.session.AppendDelta(id, "a1", "hola")

	select {
	case ev := <-events:
		assert.Equal(t, EventDelta, ev.Type)
		assert.Equal(t, id, ev.ConversationID)
		assert.Equal(t, "a1", ev.MessageID)
		assert.Equal(t, "hola", ev.Delta)
	case <-time.After(time.Second):
		t.Fatal("no delta event")
	}
}
