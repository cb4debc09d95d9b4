// ABOUTME: Renders repaired assistant answers to HTML (goldmark) and to terminals (glamour)
// ABOUTME: Both renderers run the table repair pipeline before converting

package markdown

import (
	"bytes"
	"fmt"

	"github.com/charmbracelet/glamour"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

// gfm converts GitHub-flavored markdown; raw HTML in answers stays escaped.
var gfm = goldmark.New(goldmark.WithExtensions(extension.GFM))

// RenderHTML repairs md and converts it to an HTML fragment.
func RenderHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := gfm.Convert([]byte(Repair(md)), &buf); err != nil {
		return "", fmt.Errorf("converting markdown: %w", err)
	}
	return buf.String(), nil
}

// TerminalRenderer renders repaired answers with ANSI styling.
type TerminalRenderer struct {
	r *glamour.TermRenderer
}

// NewTerminalRenderer creates a renderer. An empty or "auto" style picks
// dark or light from the terminal background; wordWrap <= 0 disables
// wrapping.
func NewTerminalRenderer(style string, wordWrap int) (*TerminalRenderer, error) {
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(max(wordWrap, 0))}
	if style == "" || style == "auto" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}

	r, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating terminal renderer: %w", err)
	}
	return &TerminalRenderer{r: r}, nil
}

// Render repairs md and styles it for the terminal.
func (t *TerminalRenderer) Render(md string) (string, error) {
	out, err := t.r.Render(Repair(md))
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return out, nil
}
