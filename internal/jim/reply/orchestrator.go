// Package reply turns an engaged message into a reply: it reads the user's
// memory, compiles the personality prompt, calls the language model and
// writes the exchange back. Provider failures become in-character fallback
// lines; memory write failures are logged and never suppress a reply.
package reply

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/bdobrica/Jim/common/retry"
	"github.com/bdobrica/Jim/common/trace"
	"github.com/bdobrica/Jim/internal/jim/gateway"
	"github.com/bdobrica/Jim/internal/jim/llm"
	"github.com/bdobrica/Jim/internal/jim/memory"
	"github.com/bdobrica/Jim/internal/jim/tools"
	"github.com/bdobrica/Jim/internal/jim/trait"
)

const (
	// DefaultTimeout bounds one model call, retries included.
	DefaultTimeout = 30 * time.Second

	// searchResults is how many hits a search-intent reply lists.
	searchResults = 2
)

// Memory is the slice of memory.Store the orchestrator uses.
type Memory interface {
	Summarize(ctx context.Context, userID string) memory.ProfileSummary
	GetMemories(ctx context.Context, userID, category string, limit int) ([]memory.MemoryFact, error)
	GetContext(ctx context.Context, userID, channelID string) (*memory.ConversationContext, error)
	TouchProfile(ctx context.Context, userID, username, displayName string) (*memory.UserProfile, error)
	UpdateContext(ctx context.Context, u memory.ContextUpdate) error
	AddMemory(ctx context.Context, d memory.FactDraft) (*memory.MemoryFact, error)
	UpdatePersonality(ctx context.Context, userID, notes, style, mood string) error
	AddInterest(ctx context.Context, userID, interest, category string) error
}

// Config tunes the Orchestrator. Zero values take the defaults.
type Config struct {
	// BotName is used in the compiled system prompt. Default "Jim".
	BotName string
	// WakeWord anchors search-intent detection. Default "jim".
	WakeWord string
	// Timeout bounds the model call. Default DefaultTimeout.
	Timeout time.Duration
	// ContextExchanges is how many recent exchanges are sent. Default 3.
	ContextExchanges int
	// Retry controls model call retries. Default: 2 attempts, rate limits
	// and timeouts only.
	Retry retry.Config
}

// Orchestrator runs the reply pipeline for one turn at a time per user.
// It is safe for concurrent use across users.
type Orchestrator struct {
	mem      Memory
	traits   *trait.Manager
	provider llm.Provider
	searcher tools.Searcher
	cfg      Config
	logger   *slog.Logger

	now  func() time.Time
	pick func(n int) int
}

// New builds an Orchestrator. searcher may be nil, which disables search
// intents.
func New(mem Memory, traits *trait.Manager, provider llm.Provider, searcher tools.Searcher, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.BotName == "" {
		cfg.BotName = "Jim"
	}
	if cfg.WakeWord == "" {
		cfg.WakeWord = "jim"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ContextExchanges <= 0 {
		cfg.ContextExchanges = DefaultContextExchanges
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = retry.Config{
			MaxAttempts:  2,
			InitialDelay: time.Second,
			MaxDelay:     5 * time.Second,
		}
	}
	if cfg.Retry.ShouldRetry == nil {
		cfg.Retry.ShouldRetry = llm.Retryable
	}
	if searcher == nil {
		searcher = tools.DisabledSearch()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		mem:      mem,
		traits:   traits,
		provider: provider,
		searcher: searcher,
		cfg:      cfg,
		logger:   logger,
		now:      time.Now,
	}
}

// Turn is one engaged message.
type Turn struct {
	UserID      string
	Username    string
	DisplayName string
	ChannelID   string
	GuildID     string
	Text        string
	Media       []gateway.Media
}

// TurnFromMessage maps a gateway event to a Turn.
func TurnFromMessage(msg gateway.MessageEvent) Turn {
	return Turn{
		UserID:      msg.SenderID,
		Username:    msg.SenderName,
		DisplayName: msg.DisplayName,
		ChannelID:   msg.ChannelID,
		GuildID:     msg.GuildID,
		Text:        msg.Text,
		Media:       msg.Images(),
	}
}

// Outcome is the result of HandleTurn.
type Outcome struct {
	// Reply is never empty.
	Reply string
	// Genuine is false when Reply is a fallback or a fixed utterance.
	Genuine bool
	// ErrorClass is set when the provider call failed.
	ErrorClass llm.ErrorClass
	TraceID    string
	// Search is true when the turn was answered by the search branch.
	Search     bool
	FactsAdded int
	// WriteErrors names the write-back steps that failed.
	WriteErrors []string
}

// HandleTurn produces the reply for t. It never returns an error: provider
// failures become a fallback utterance and memory failures are logged.
func (o *Orchestrator) HandleTurn(ctx context.Context, t Turn) Outcome {
	traceID := trace.FromContext(ctx)
	if traceID == "" {
		traceID = trace.GenerateID()
		ctx = trace.WithTraceID(ctx, traceID)
	}
	log := trace.Logger(ctx, o.logger).With("user", t.UserID)
	out := Outcome{TraceID: traceID}

	if query, ok := SearchIntent(o.cfg.WakeWord, t.Text); ok {
		return o.handleSearch(ctx, t, query, out, log)
	}

	summary := o.mem.Summarize(ctx, t.UserID)
	if summary.Found {
		// Facts sent to the model count as referenced.
		facts, err := o.mem.GetMemories(ctx, t.UserID, "", promptFacts)
		if err != nil {
			log.Warn("reply: read memories", "err", err)
		} else {
			summary.Facts = facts
		}
	}
	var recent []memory.Exchange
	cc, err := o.mem.GetContext(ctx, t.UserID, t.ChannelID)
	switch {
	case err == nil:
		recent = cc.LastExchanges(o.cfg.ContextExchanges)
	case errors.Is(err, memory.ErrNotFound):
	default:
		log.Warn("reply: read context", "err", err)
	}

	system := trait.CompileAs(o.cfg.BotName, o.traits.Profile())
	req := buildRequest(system, t, summary, recent, o.provider.SupportsVision())

	callCtx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()
	rcfg := o.cfg.Retry
	rcfg.OnRetry = func(attempt int, err error) {
		log.Warn("reply: provider call failed, retrying", "attempt", attempt, "class", llm.Classify(err), "err", err)
	}
	resp, err := retry.Value(callCtx, rcfg, func(ctx context.Context) (llm.Response, error) {
		return o.provider.Complete(ctx, req)
	})
	if err != nil {
		out.ErrorClass = llm.Classify(err)
		out.Reply = FallbackFor(out.ErrorClass, o.pick)
		log.Error("reply: provider call failed",
			"provider", o.provider.Name(),
			"class", out.ErrorClass,
			"err", err,
		)
		return out
	}

	out.Reply = resp.Text
	out.Genuine = true
	log.Info("reply: generated",
		"model", resp.Model,
		"latency", resp.Latency,
		"tokens", resp.Usage.TotalTokens,
		"exchanges", len(recent),
		"images", len(req.Images),
	)
	o.writeBack(ctx, t, &out, log)
	return out
}

// writeBack persists the exchange. Every step runs even if an earlier one
// failed.
func (o *Orchestrator) writeBack(ctx context.Context, t Turn, out *Outcome, log *slog.Logger) {
	failed := func(step string, err error) {
		out.WriteErrors = append(out.WriteErrors, step)
		log.Error("reply: memory write failed", "step", step, "err", err)
	}

	if _, err := o.mem.TouchProfile(ctx, t.UserID, t.Username, t.DisplayName); err != nil {
		failed("touch_profile", err)
	} else {
		for _, in := range memory.ExtractInterests(t.Text) {
			if err := o.mem.AddInterest(ctx, t.UserID, in.Name, in.Category); err != nil {
				failed("add_interest", err)
			}
		}
	}

	mood := memory.DetectMood(t.Text)
	err := o.mem.UpdateContext(ctx, memory.ContextUpdate{
		UserID:    t.UserID,
		ChannelID: t.ChannelID,
		GuildID:   t.GuildID,
		Mood:      mood,
		Exchange:  &memory.Exchange{User: t.Text, Bot: out.Reply, Timestamp: o.now().UTC()},
	})
	if err != nil {
		failed("update_context", err)
	}

	for _, d := range memory.ExtractCandidateFacts(t.UserID, t.Text) {
		if _, err := o.mem.AddMemory(ctx, d); err != nil {
			failed("add_memory", err)
			continue
		}
		out.FactsAdded++
	}

	if mood != "" {
		if err := o.mem.UpdatePersonality(ctx, t.UserID, "", "", mood); err != nil {
			failed("update_personality", err)
		}
	}
}

func (o *Orchestrator) handleSearch(ctx context.Context, t Turn, query string, out Outcome, log *slog.Logger) Outcome {
	out.Search = true
	if query == "" {
		out.Reply = SearchNoQuery
		return out
	}

	results, err := o.searcher.Search(ctx, query, searchResults)
	switch {
	case errors.Is(err, tools.ErrDisabled):
		out.Reply = SearchDisabled
		return out
	case err != nil:
		out.ErrorClass = llm.ClassOther
		out.Reply = FallbackFor(out.ErrorClass, o.pick)
		log.Error("reply: search failed", "query", query, "err", err)
		return out
	}

	out.Reply = FormatSearchResults(query, results)
	out.Genuine = true
	log.Info("reply: search answered", "query", query, "results", len(results))
	o.writeBack(ctx, t, &out, log)
	return out
}

// FormatSearchResults renders results as a numbered list with bold titles.
func FormatSearchResults(query string, results []tools.SearchResult) string {
	if len(results) == 0 {
		return fmt.Sprintf(searchNoResults, query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, searchHeader, query)
	for i, r := range results {
		fmt.Fprintf(&b, "\n\n%d. **%s**\n%s\n%s", i+1, r.Title, r.Snippet, r.Link)
	}
	return b.String()
}

var searchIntentRe = regexp.MustCompile(`(?i)^[\s,.:!?-]*(?:(?:can|could|would) you\s+|pls\s+|please\s+)?(?:search(?:\s+for)?|look\s+up|google)\b(.*)$`)

// SearchIntent reports whether text asks for a web search and returns the
// query. The request must directly follow the wake word, or open the
// message when the wake word is absent (mentions, replies).
func SearchIntent(wakeWord, text string) (query string, ok bool) {
	rest := text
	if wakeWord != "" {
		i := strings.Index(strings.ToLower(text), strings.ToLower(wakeWord))
		if i >= 0 && i+len(wakeWord) <= len(text) {
			rest = text[i+len(wakeWord):]
		}
	}
	m := searchIntentRe.FindStringSubmatch(rest)
	if m == nil {
		return "", false
	}
	return strings.Trim(strings.TrimSpace(m[1]), "?!. "), true
}
