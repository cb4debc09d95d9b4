// Package store provides durable conversation snapshots for docchat using SQLite.
//
// # Data Models
//
//   - Conversation: a local chat bound to one backend chat id, with title
//     and last-activity time
//   - Message: one user, assistant or system message; Cached marks answers
//     the backend served from its response cache
//
// A save replaces the whole conversation, messages included. Messages keep
// their insertion order through a per-conversation sequence column.
//
// # SQLite Configuration
//
// The store uses SQLite with WAL mode:
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA foreign_keys=ON;
//
// Deleting a conversation cascades to its messages. Times are stored as
// fixed-width UTC strings so ORDER BY updated_at is chronological.
//
// Database file locations:
//
//   - Default: ~/.local/share/docchat/docchat.db
//   - Testing: a file under t.TempDir()
//
// # Error Handling
//
//   - ErrNotFound: requested conversation does not exist
//
// All methods accept context.Context for cancellation support.
//
// # Testing
//
// Use NewMockStore() for unit tests; SaveErr and DeleteErr inject failures.
package store
