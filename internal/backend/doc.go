// Package backend is the HTTP client for the document-grounded chat API.
//
// # Endpoints
//
//	POST   {base}/chat/start   -> {"chatId": "..."}
//	DELETE {base}/chat/{chatId}
//	POST   {base}/chat         -> text/event-stream, application/json or text
//	GET    {base}/files        -> [{"id", "name", "path", "webUrl"}]
//
// Every request carries HTTP Basic credentials when a username is
// configured. A 401 response surfaces as an error matching ErrUnauthorized;
// other non-2xx responses are *StatusError.
//
// Chat returns the raw response body tagged with its Kind so the caller
// decides how to consume it: event streams go through sse.Deltas, JSON
// bodies through DecodeAnswer, anything else through ReadText.
package backend
