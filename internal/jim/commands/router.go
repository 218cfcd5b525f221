// Package commands provides the "!jim" chat commands: parsing, routing and
// the handlers behind them.
package commands

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"unicode"

	"github.com/bdobrica/Jim/common/trace"
	"github.com/bdobrica/Jim/internal/jim/gateway"
)

// DefaultPrefix starts every command.
const DefaultPrefix = "!jim"

// Command is a parsed command.
type Command struct {
	Name       string
	Subcommand string
	Args       []string
	// Rest is the text after Name with its spacing kept, for free-text
	// arguments such as prompts and queries.
	Rest    string
	RawText string
}

// ErrNotACommand is returned by Parse when the message does not start with
// the command prefix.
var ErrNotACommand = errors.New("not a command (missing prefix)")

// errEmptyCommand is returned for a bare prefix.
var errEmptyCommand = errors.New("empty command")

// Handler handles one command. A returned error is shown to the user, so it
// should read as a usage hint.
type Handler func(ctx context.Context, cmd *Command, msg gateway.MessageEvent) (gateway.Reply, error)

// Router routes commands to handlers.
type Router struct {
	handlers map[string]Handler
	prefix   string
	fallback string
	logger   *slog.Logger
}

// NewRouter creates a router for prefix. A bare prefix routes to fallback
// (usually "help").
func NewRouter(prefix, fallback string, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		handlers: make(map[string]Handler),
		prefix:   prefix,
		fallback: fallback,
		logger:   logger,
	}
}

// Register registers a handler under one or more names. Names may be
// "name" or "name.subcommand".
func (r *Router) Register(handler Handler, names ...string) {
	for _, n := range names {
		r.handlers[n] = handler
	}
}

// Parse parses a message into a command. The prefix is matched without
// regard to case and must be followed by whitespace.
func (r *Router) Parse(text string) (*Command, error) {
	text = strings.TrimSpace(text)
	if len(text) < len(r.prefix) || !strings.EqualFold(text[:len(r.prefix)], r.prefix) {
		return nil, ErrNotACommand
	}
	text = text[len(r.prefix):]
	if text != "" && !unicode.IsSpace(rune(text[0])) {
		return nil, ErrNotACommand
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errEmptyCommand
	}

	parts := strings.Fields(text)
	cmd := &Command{
		Name:    strings.ToLower(parts[0]),
		Args:    []string{},
		Rest:    strings.TrimSpace(text[len(parts[0]):]),
		RawText: text,
	}
	if len(parts) > 1 {
		cmd.Subcommand = strings.ToLower(parts[1])
		cmd.Args = parts[2:]
	}
	return cmd, nil
}

// Dispatch routes msg when it is a command. handled is false for ordinary
// chat. Unknown commands and handler errors are answered, not dropped.
func (r *Router) Dispatch(ctx context.Context, msg gateway.MessageEvent) (gateway.Reply, bool) {
	cmd, err := r.Parse(msg.Text)
	switch {
	case errors.Is(err, ErrNotACommand):
		return gateway.Reply{}, false
	case errors.Is(err, errEmptyCommand):
		cmd = &Command{Name: r.fallback, Args: []string{}}
	}

	log := trace.Logger(ctx, r.logger).With("user", msg.SenderID, "command", cmd.Name)
	handler, ok := r.lookup(cmd)
	if !ok {
		log.Debug("commands: unknown command")
		return gateway.Reply{Text: "idk that one. try `" + r.prefix + " help`"}, true
	}

	reply, err := handler(ctx, cmd, msg)
	if err != nil {
		log.Info("commands: rejected", "err", err)
		return gateway.Reply{Text: "❌ " + err.Error()}, true
	}
	log.Info("commands: handled", "full", cmd.FullCommand())
	return reply, true
}

func (r *Router) lookup(cmd *Command) (Handler, bool) {
	if cmd.Subcommand != "" {
		if h, ok := r.handlers[cmd.Name+"."+cmd.Subcommand]; ok {
			return h, true
		}
	}
	h, ok := r.handlers[cmd.Name]
	return h, ok
}

// GetArg returns an argument by index.
func (c *Command) GetArg(index int) (string, bool) {
	if index < 0 || index >= len(c.Args) {
		return "", false
	}
	return c.Args[index], true
}

// FullCommand returns the command name and subcommand.
func (c *Command) FullCommand() string {
	if c.Subcommand != "" {
		return c.Name + " " + c.Subcommand
	}
	return c.Name
}
