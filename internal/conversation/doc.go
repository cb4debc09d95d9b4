// Package conversation keeps the local conversation list in sync with the
// document-chat backend.
//
// # Overview
//
// A Session owns every conversation, the current selection, the set of
// selected documents and the per-conversation in-flight flags. A Service
// sits on top of it and performs sends:
//
//	session := conversation.NewSession(client, db, logger)
//	svc := conversation.New(session, client, settings, logger)
//	res, err := svc.Send(ctx, "¿Qué tarifas hay?")
//
// # Sending
//
// Send runs in this order:
//
//  1. Create a conversation when none is current. A backend failure
//     returns ErrBackendUnavailable and leaves the list untouched.
//  2. Append the user message and an empty assistant placeholder, mark the
//     conversation loading.
//  3. POST the request. Event streams are appended to the placeholder one
//     delta at a time; JSON and plain bodies replace it once.
//  4. Clear the loading flag and snapshot the conversation in the
//     background.
//
// Transport and decode failures replace the placeholder with FailureText;
// they are reported in SendResult.Err, never as Send's error.
//
// Only one send per conversation may be in flight (ErrSendInFlight).
// Sends to different conversations proceed independently.
//
// # Deleting
//
// DeleteConversation removes the conversation locally before returning.
// The remote chat and the durable snapshot are deleted concurrently in the
// background; failures are logged. A send still streaming into a deleted
// conversation keeps reading and its deltas are dropped.
//
// # Events
//
// Session.Subscribe streams created, selected, deleted, updated, delta,
// loading and loaded events for one conversation, or for all of them with
// AllConversations. Slow subscribers lose events rather than block writers.
//
// # Persistence
//
// Writes go to memory first. Snapshots are saved in background goroutines
// that always write the latest state; Wait blocks until they finish.
// A save never lands after the delete of the same conversation.
package conversation
