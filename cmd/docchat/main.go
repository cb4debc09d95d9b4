// ABOUTME: Entry point for the docchat command line client
// ABOUTME: Wires config, logging, the SQLite snapshot store, the backend client and the conversation service

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"

	"github.com/2389/docchat/internal/backend"
	"github.com/2389/docchat/internal/config"
	"github.com/2389/docchat/internal/conversation"
	"github.com/2389/docchat/internal/markdown"
	"github.com/2389/docchat/internal/store"
)

// version is set by goreleaser at build time.
var version = "dev"

func main() {
	cmd := "chat"
	args := os.Args[1:]
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch cmd {
	case "chat":
		err = runChat(ctx)
	case "list":
		err = runList(ctx)
	case "export":
		err = runExport(ctx, args)
	case "version":
		fmt.Printf("docchat %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, backend.ErrUnauthorized) {
			fmt.Fprintln(os.Stderr, "Check api.username and api.password in", config.Path())
		}
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Usage: docchat [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  chat                   Interactive chat (default)")
	fmt.Println("  list                   List stored conversations")
	fmt.Println("  export <id> [-o FILE]  Write a conversation as HTML")
	fmt.Println("  version                Print the version")
}

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	db      *store.SQLiteStore
	client  *backend.Client
	session *conversation.Session
	svc     *conversation.Service
}

func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.LoadOrDefault(config.Path())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging, os.Stderr)

	db, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	client := backend.New(backend.Options{
		BaseURL:               cfg.API.BaseURL,
		Username:              cfg.API.Username,
		Password:              cfg.API.Password,
		ResponseHeaderTimeout: cfg.API.ResponseHeaderTimeout,
		Logger:                logger,
	})

	session := conversation.NewSession(client, db, logger)
	if err := session.Load(ctx); err != nil {
		db.Close()
		return nil, err
	}

	svc := conversation.New(session, client, conversation.AssistantSettings{
		SystemPrompt:    cfg.Assistant.SystemPrompt,
		MaxCharsPerFile: cfg.Assistant.MaxCharsPerFile,
		MaxHistory:      cfg.Assistant.MaxHistory,
	}, logger)

	return &app{
		cfg:     cfg,
		logger:  logger,
		db:      db,
		client:  client,
		session: session,
		svc:     svc,
	}, nil
}

// Close flushes pending snapshot writes and closes the store.
func (a *app) Close() {
	a.session.Close()
	if err := a.db.Close(); err != nil {
		a.logger.Warn("closing store", "error", err)
	}
}

func runChat(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	renderer, err := markdown.NewTerminalRenderer(a.cfg.Render.Style, a.cfg.Render.WordWrap)
	if err != nil {
		return err
	}

	cyan := color.New(color.FgCyan)
	gray := color.New(color.FgHiBlack)
	cyan.Printf("docchat %s", version)
	gray.Printf("  %s\n", a.cfg.API.BaseURL)

	// Listing files doubles as a credential check.
	files, err := a.client.ListFiles(ctx)
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		return err
	case err != nil:
		color.Yellow("Backend not reachable: %v", err)
	default:
		gray.Printf("%d documents available, %d conversations stored\n", len(files), len(a.session.Conversations()))
	}
	fmt.Println("Type a message and press Enter. /help for commands. Ctrl+C to quit.")
	fmt.Println()

	r := &repl{app: a, renderer: renderer, in: os.Stdin, out: os.Stdout}
	if err := r.run(ctx); err != nil {
		return err
	}

	fmt.Println("\nGoodbye!")
	return nil
}

func runList(ctx context.Context) error {
	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	convs := a.session.Conversations()
	if len(convs) == 0 {
		fmt.Println("No conversations")
		return nil
	}
	printConversations(os.Stdout, convs, a.session.CurrentID())
	return nil
}

func runExport(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	output := fs.String("o", "", "output file (default stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("usage: docchat export <id> [-o FILE]")
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	conv, err := a.db.GetConversation(ctx, fs.Arg(0))
	if err != nil {
		return fmt.Errorf("loading conversation %s: %w", fs.Arg(0), err)
	}

	page, err := exportHTML(conv)
	if err != nil {
		return err
	}

	if *output == "" {
		_, err = os.Stdout.WriteString(page)
		return err
	}
	if err := os.WriteFile(*output, []byte(page), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", *output, err)
	}
	a.logger.Info("conversation exported", "id", conv.ID, "path", *output)
	return nil
}
