// ABOUTME: Interactive read-eval-print loop for docchat
// ABOUTME: Plain lines are sent to the current conversation; slash commands manage conversations, documents and assistant settings

package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/2389/docchat/internal/backend"
	"github.com/2389/docchat/internal/conversation"
	"github.com/2389/docchat/internal/markdown"
	"github.com/2389/docchat/internal/store"
)

// previewBufferSize is how many unread events the live preview may fall
// behind before fragments are skipped.
const previewBufferSize = 4096

type repl struct {
	app      *app
	renderer *markdown.TerminalRenderer
	in       io.Reader
	out      io.Writer
}

func (r *repl) run(ctx context.Context) error {
	scanner := bufio.NewScanner(r.in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Fprint(r.out, r.prompt())

		// Read input with context awareness
		inputCh := make(chan string, 1)
		errCh := make(chan error, 1)

		go func() {
			if scanner.Scan() {
				inputCh <- scanner.Text()
			} else {
				if err := scanner.Err(); err != nil {
					errCh <- err
				} else {
					errCh <- io.EOF
				}
			}
		}()

		var input string
		select {
		case <-ctx.Done():
			return nil
		case err := <-errCh:
			if err == io.EOF {
				return nil
			}
			return fmt.Errorf("reading input: %w", err)
		case input = <-inputCh:
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		if !strings.HasPrefix(input, "/") {
			r.send(ctx, input)
			fmt.Fprintln(r.out)
			continue
		}

		cmd, arg, _ := strings.Cut(input, " ")
		arg = strings.TrimSpace(arg)
		if cmd == "/quit" || cmd == "/exit" || cmd == "/q" {
			return nil
		}
		if err := r.command(ctx, cmd, arg); err != nil {
			r.printError(err)
		}
		fmt.Fprintln(r.out)
	}
}

// prompt shows the current conversation's title, if any.
func (r *repl) prompt() string {
	id := r.app.session.CurrentID()
	if id == "" {
		return "> "
	}
	conv, err := r.app.session.Conversation(id)
	if err != nil {
		return "> "
	}
	return fmt.Sprintf("[%s]> ", truncate(conv.Title, 24))
}

func (r *repl) command(ctx context.Context, cmd, arg string) error {
	session := r.app.session

	switch cmd {
	case "/new":
		id, err := session.CreateConversation(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(r.out, "Started conversation %s\n", id)

	case "/list":
		convs := session.Conversations()
		if len(convs) == 0 {
			fmt.Fprintln(r.out, "No conversations")
			return nil
		}
		printConversations(r.out, convs, session.CurrentID())

	case "/use":
		id, err := r.resolve(arg)
		if err != nil {
			return err
		}
		session.SelectConversation(id)
		r.printTranscript(id)

	case "/delete":
		id, err := r.resolve(arg)
		if err != nil {
			return err
		}
		session.DeleteConversation(ctx, id)
		fmt.Fprintf(r.out, "Deleted %s\n", id)

	case "/files":
		files, err := r.app.client.ListFiles(ctx)
		if err != nil {
			return err
		}
		selected := make(map[string]bool)
		for _, id := range session.SelectedDocuments() {
			selected[id] = true
		}
		if len(files) == 0 {
			fmt.Fprintln(r.out, "No documents")
		}
		for _, f := range files {
			mark := "[ ]"
			if selected[f.ID] {
				mark = color.GreenString("[x]")
			}
			fmt.Fprintf(r.out, "%s %s  %s\n", mark, f.Name, color.HiBlackString(f.ID))
		}

	case "/doc":
		if arg == "" {
			return errors.New("usage: /doc <id>")
		}
		if session.ToggleDocument(arg) {
			fmt.Fprintf(r.out, "Selected %s\n", arg)
		} else {
			fmt.Fprintf(r.out, "Deselected %s\n", arg)
		}

	case "/docs":
		ids := session.SelectedDocuments()
		if len(ids) == 0 {
			fmt.Fprintln(r.out, "No documents selected; questions use every document")
			return nil
		}
		fmt.Fprintln(r.out, strings.Join(ids, "\n"))

	case "/prompt":
		a := r.app.svc.Assistant()
		if arg == "" {
			fmt.Fprintln(r.out, a.SystemPrompt)
			return nil
		}
		a.SystemPrompt = arg
		r.app.svc.SetAssistant(a)
		fmt.Fprintln(r.out, "System prompt updated")

	case "/history", "/maxchars":
		n, err := strconv.Atoi(arg)
		if err != nil || n < 0 || (cmd == "/maxchars" && n == 0) {
			return fmt.Errorf("usage: %s <positive number>", cmd)
		}
		a := r.app.svc.Assistant()
		if cmd == "/history" {
			a.MaxHistory = n
		} else {
			a.MaxCharsPerFile = n
		}
		r.app.svc.SetAssistant(a)
		fmt.Fprintf(r.out, "%s set to %d\n", strings.TrimPrefix(cmd, "/"), n)

	case "/help":
		r.printHelp()

	default:
		return fmt.Errorf("unknown command %s (try /help)", cmd)
	}
	return nil
}

func (r *repl) printHelp() {
	fmt.Fprintln(r.out, "Commands:")
	fmt.Fprintln(r.out, "  /new             Start a new conversation")
	fmt.Fprintln(r.out, "  /list            List conversations, most recent first")
	fmt.Fprintln(r.out, "  /use <n|id>      Switch to a conversation and show it")
	fmt.Fprintln(r.out, "  /delete <n|id>   Delete a conversation")
	fmt.Fprintln(r.out, "  /files           List documents on the backend")
	fmt.Fprintln(r.out, "  /doc <id>        Toggle a document in the selection")
	fmt.Fprintln(r.out, "  /docs            Show selected documents")
	fmt.Fprintln(r.out, "  /prompt [text]   Show or replace the system prompt")
	fmt.Fprintln(r.out, "  /history <n>     Prior messages the backend may use")
	fmt.Fprintln(r.out, "  /maxchars <n>    Characters read per document")
	fmt.Fprintln(r.out, "  /help            Show this help")
	fmt.Fprintln(r.out, "  /quit            Exit")
}

// resolve maps a list number, a full id or a unique id prefix to an id.
func (r *repl) resolve(arg string) (string, error) {
	if arg == "" {
		return "", errors.New("missing conversation number or id")
	}
	convs := r.app.session.Conversations()

	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(convs) {
			return "", fmt.Errorf("no conversation number %d", n)
		}
		return convs[n-1].ID, nil
	}

	var match string
	for _, c := range convs {
		if c.ID == arg {
			return c.ID, nil
		}
		if strings.HasPrefix(c.ID, arg) {
			if match != "" {
				return "", fmt.Errorf("ambiguous id prefix %q", arg)
			}
			match = c.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", conversation.ErrNotFound, arg)
	}
	return match, nil
}

// send streams deltas to the terminal while the answer arrives, then prints
// the repaired, rendered answer.
func (r *repl) send(ctx context.Context, text string) {
	subCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	events := r.app.session.SubscribeBuffered(subCtx, conversation.AllConversations, previewBufferSize)

	type outcome struct {
		res *conversation.SendResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := r.app.svc.Send(ctx, text)
		done <- outcome{res, err}
	}()

	dim := color.New(color.FgHiBlack)
	printed := 0
	printDelta := func(evt *conversation.Event) {
		if evt != nil && evt.Type == conversation.EventDelta {
			dim.Fprint(r.out, evt.Delta)
			printed++
		}
	}

	var out outcome
wait:
	for {
		select {
		case evt, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			printDelta(evt)
		case out = <-done:
			break wait
		}
	}
	// Events published before Send returned are already buffered.
	for drained := events == nil; !drained; {
		select {
		case evt, ok := <-events:
			if !ok {
				drained = true
			}
			printDelta(evt)
		default:
			drained = true
		}
	}
	if printed > 0 {
		fmt.Fprintln(r.out)
	}

	if out.err != nil {
		r.printError(out.err)
		return
	}
	res := out.res
	if res.Err != nil {
		r.printError(res.Err)
	} else if printed < res.Deltas {
		color.New(color.FgYellow).Fprintf(r.out, "(preview skipped %d of %d fragments; full answer below)\n", res.Deltas-printed, res.Deltas)
	}

	rendered, err := r.renderer.Render(res.Content)
	if err != nil {
		rendered = res.Content + "\n"
	}
	fmt.Fprint(r.out, rendered)
	if res.Cached {
		color.New(color.FgCyan).Fprintln(r.out, "(cached)")
	}
}

// printTranscript shows every message of conversation id.
func (r *repl) printTranscript(id string) {
	conv, err := r.app.session.Conversation(id)
	if err != nil {
		r.printError(err)
		return
	}
	color.New(color.FgCyan, color.Bold).Fprintln(r.out, conv.Title)
	for _, m := range conv.Messages {
		switch m.Role {
		case store.RoleUser:
			fmt.Fprintf(r.out, "%s %s\n", color.BlueString("→"), m.Content)
		default:
			out, err := r.renderer.Render(m.Content)
			if err != nil {
				out = m.Content + "\n"
			}
			fmt.Fprintf(r.out, "%s\n%s", color.GreenString("←"), out)
		}
	}
}

func (r *repl) printError(err error) {
	fmt.Fprintf(r.out, "%s %v\n", color.RedString("[error]"), err)
	if errors.Is(err, backend.ErrUnauthorized) {
		fmt.Fprintln(r.out, "Check api.username and api.password in your config file.")
	}
}
