// ABOUTME: Decoders for non-streaming chat answers (JSON and plain text bodies)
// ABOUTME: Applies the answer-then-error-then-placeholder fallback

package backend

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// Answer is a complete, non-streamed reply.
type Answer struct {
	Text   string
	Cached bool
}

// DecodeAnswer reads a JSON chat body. The text is the "answer" field,
// else the "error" field, else fallback. A field that is present but
// empty still wins over the next one.
func DecodeAnswer(r io.Reader, fallback string) (Answer, error) {
	var body struct {
		Answer *string `json:"answer"`
		Error  *string `json:"error"`
		Cached bool    `json:"cached"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return Answer{}, fmt.Errorf("decoding answer: %w", err)
	}

	out := Answer{Text: fallback, Cached: body.Cached}
	switch {
	case body.Answer != nil:
		out.Text = *body.Answer
	case body.Error != nil:
		out.Text = *body.Error
	}
	return out, nil
}

// ReadText reads a plain body, trimmed, or fallback when it is blank.
func ReadText(r io.Reader, fallback string) (string, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("reading answer: %w", err)
	}
	if s := strings.TrimSpace(string(b)); s != "" {
		return s, nil
	}
	return fallback, nil
}
