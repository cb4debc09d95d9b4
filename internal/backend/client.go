// ABOUTME: HTTP client for the chat backend: chat lifecycle, chat requests, and file listing
// ABOUTME: Adds Basic auth, maps 401 to ErrUnauthorized, and classifies chat responses by content type

package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ErrUnauthorized is matched by errors from requests the backend rejected
// with 401.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("backend returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("backend returned status %d: %s", e.StatusCode, e.Message)
}

// Is lets errors.Is(err, ErrUnauthorized) match 401 responses.
func (e *StatusError) Is(target error) bool {
	return target == ErrUnauthorized && e.StatusCode == http.StatusUnauthorized
}

// Kind classifies a chat response body.
type Kind int

const (
	KindText Kind = iota
	KindEventStream
	KindJSON
)

func (k Kind) String() string {
	switch k {
	case KindEventStream:
		return "event-stream"
	case KindJSON:
		return "json"
	default:
		return "text"
	}
}

// ChatRequest is the body of POST /chat. The assistant settings are
// forwarded to the backend unchanged.
type ChatRequest struct {
	ChatID          string   `json:"chatId"`
	Message         string   `json:"message"`
	SelectedIDs     []string `json:"selectedIds"`
	Stream          bool     `json:"stream"`
	SystemPrompt    string   `json:"systemPrompt"`
	MaxCharsPerFile int      `json:"maxCharsPerFile"`
	MaxHistory      int      `json:"maxHistory"`
}

// ChatResponse is a successful chat response. The caller must close Body.
type ChatResponse struct {
	Kind        Kind
	ContentType string
	Body        io.ReadCloser
}

// File is a document the backend can ground answers on.
type File struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Path   string `json:"path"`
	WebURL string `json:"webUrl"`
}

// Options configures a Client.
type Options struct {
	BaseURL  string
	Username string
	Password string
	// ResponseHeaderTimeout bounds the wait for response headers; zero
	// means no limit. Streaming bodies are never cut off by it.
	ResponseHeaderTimeout time.Duration
	// HTTPClient overrides the client built from the options above.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client talks to the chat backend.
type Client struct {
	baseURL  string
	username string
	password string
	client   *http.Client
	logger   *slog.Logger
}

// New creates a backend client.
func New(opts Options) *Client {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	hc := opts.HTTPClient
	if hc == nil {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		transport.ResponseHeaderTimeout = opts.ResponseHeaderTimeout
		hc = &http.Client{Transport: transport}
	}

	return &Client{
		baseURL:  strings.TrimSuffix(opts.BaseURL, "/"),
		username: opts.Username,
		password: opts.Password,
		client:   hc,
		logger:   logger.With("component", "backend"),
	}
}

// CreateConversation asks the backend to allocate a chat and returns its id.
func (c *Client) CreateConversation(ctx context.Context) (string, error) {
	resp, err := c.do(ctx, http.MethodPost, "/chat/start", nil, "application/json")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		ChatID string `json:"chatId"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding chat start response: %w", err)
	}
	if out.ChatID == "" {
		return "", errors.New("chat start response has no chatId")
	}

	c.logger.Debug("created remote chat", "chat_id", out.ChatID)
	return out.ChatID, nil
}

// DeleteConversation deletes a chat on the backend.
func (c *Client) DeleteConversation(ctx context.Context, chatID string) error {
	resp, err := c.do(ctx, http.MethodDelete, "/chat/"+url.PathEscape(chatID), nil, "")
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug("deleted remote chat", "chat_id", chatID)
	return nil
}

// Chat sends a message and returns the response body unread.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost, "/chat", body, "text/event-stream,application/json")
	if err != nil {
		return nil, err
	}

	ct := resp.Header.Get("Content-Type")
	return &ChatResponse{
		Kind:        classify(ct),
		ContentType: ct,
		Body:        resp.Body,
	}, nil
}

// ListFiles returns the documents available for selection. It also serves
// as a credential check.
func (c *Client) ListFiles(ctx context.Context) ([]File, error) {
	resp, err := c.do(ctx, http.MethodGet, "/files", nil, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var files []File
	if err := json.NewDecoder(resp.Body).Decode(&files); err != nil {
		return nil, fmt.Errorf("decoding files: %w", err)
	}
	return files, nil
}

// do performs a request and returns the response for 2xx statuses. Any
// other status is drained, closed and turned into an error.
func (c *Client) do(ctx context.Context, method, path string, body []byte, accept string) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accept != "" {
		req.Header.Set("Accept", accept)
	}
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending %s %s: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		return nil, c.handleErrorResponse(method, path, resp)
	}
	return resp, nil
}

// handleErrorResponse extracts an error message from non-2xx responses.
func (c *Client) handleErrorResponse(method, path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

	msg := strings.TrimSpace(string(body))
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		var errResp struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
			msg = errResp.Error
		}
	}

	c.logger.Debug("backend rejected request", "method", method, "path", path, "status", resp.StatusCode)
	return &StatusError{StatusCode: resp.StatusCode, Message: msg}
}

func classify(contentType string) Kind {
	switch {
	case strings.HasPrefix(contentType, "text/event-stream"):
		return KindEventStream
	case strings.Contains(contentType, "application/json"):
		return KindJSON
	default:
		return KindText
	}
}
