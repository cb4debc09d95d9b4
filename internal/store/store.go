// ABOUTME: Store interface and data types for docchat persistence
// ABOUTME: Defines Conversation and Message snapshots and the Store interface

package store

import (
	"context"
	"errors"
	"slices"
	"time"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// Role constants for message authors
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// Message is a single chat message. Content is the only field that
// changes after creation, and only while the message is a streaming
// placeholder.
type Message struct {
	ID        string
	Role      string
	Content   string
	Timestamp time.Time
	Cached    bool // answer was served from the backend's response cache
}

// Conversation is a locally identified chat bound to one backend chat id.
type Conversation struct {
	ID        string // client-allocated
	ChatID    string // backend-allocated, set once
	Title     string
	Messages  []Message
	UpdatedAt time.Time
}

// Clone returns a deep copy of c.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	out := *c
	out.Messages = slices.Clone(c.Messages)
	return &out
}

// Store persists conversation snapshots. A save replaces the whole
// conversation, messages included.
type Store interface {
	SaveConversation(ctx context.Context, conv *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	// ListConversations returns every conversation, most recently updated first.
	ListConversations(ctx context.Context) ([]*Conversation, error)
	// DeleteConversation removes a conversation; deleting a missing id is not an error.
	DeleteConversation(ctx context.Context, id string) error
	Close() error
}
