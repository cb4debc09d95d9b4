// ABOUTME: Conversation listing and HTML export for the docchat CLI
// ABOUTME: Assistant answers are repaired and converted with goldmark; user text is escaped

package main

import (
	"fmt"
	"html/template"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/docchat/internal/markdown"
	"github.com/2389/docchat/internal/store"
)

var exportTemplate = template.Must(template.New("export").Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; }
.msg { margin: 1rem 0; padding: 0.5rem 1rem; border-radius: 6px; }
.user { background: #eef; }
.assistant { background: #f6f6f6; }
.meta { color: #888; font-size: 0.8rem; }
table { border-collapse: collapse; }
th, td { border: 1px solid #ccc; padding: 0.25rem 0.5rem; }
</style>
</head>
<body>
<h1>{{.Title}}</h1>
{{range .Messages}}<div class="msg {{.Role}}">
<div class="meta">{{.Role}} · {{.Time}}{{if .Cached}} · cached{{end}}</div>
{{.Body}}
</div>
{{end}}</body>
</html>
`))

type exportMessage struct {
	Role   string
	Time   string
	Cached bool
	Body   template.HTML
}

// exportHTML renders conv as a standalone HTML page.
func exportHTML(conv *store.Conversation) (string, error) {
	msgs := make([]exportMessage, 0, len(conv.Messages))
	for _, m := range conv.Messages {
		em := exportMessage{
			Role:   m.Role,
			Time:   m.Timestamp.Local().Format("2006-01-02 15:04"),
			Cached: m.Cached,
		}
		if m.Role == store.RoleAssistant {
			body, err := markdown.RenderHTML(m.Content)
			if err != nil {
				return "", fmt.Errorf("rendering message %s: %w", m.ID, err)
			}
			em.Body = template.HTML(body)
		} else {
			em.Body = template.HTML("<p>" + template.HTMLEscapeString(m.Content) + "</p>")
		}
		msgs = append(msgs, em)
	}

	var b strings.Builder
	err := exportTemplate.Execute(&b, struct {
		Title    string
		Messages []exportMessage
	}{conv.Title, msgs})
	if err != nil {
		return "", fmt.Errorf("executing export template: %w", err)
	}
	return b.String(), nil
}

// printConversations writes a numbered list, most recent first. The
// numbers are what /use and /delete accept.
func printConversations(w io.Writer, convs []*store.Conversation, current string) {
	gray := color.New(color.FgHiBlack)
	for i, c := range convs {
		marker := "  "
		if c.ID == current {
			marker = color.GreenString("* ")
		}
		fmt.Fprintf(w, "%s%2d. %s ", marker, i+1, truncate(c.Title, 50))
		gray.Fprintf(w, "(%d messages, %s) %s\n", len(c.Messages), c.UpdatedAt.Local().Format("Jan 2 15:04"), c.ID)
	}
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
