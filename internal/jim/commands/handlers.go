package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/bdobrica/Jim/common/trace"
	"github.com/bdobrica/Jim/common/version"
	"github.com/bdobrica/Jim/internal/jim/gateway"
	"github.com/bdobrica/Jim/internal/jim/memory"
	"github.com/bdobrica/Jim/internal/jim/reply"
	"github.com/bdobrica/Jim/internal/jim/tools"
	"github.com/bdobrica/Jim/internal/jim/trait"
)

const (
	searchCommandResults = 3
	searchTitleLen       = 50
	searchSnippetLen     = 100
	memoriesShown        = 5

	memoryBroken = "my brain's lagging rn, try again in a bit"

	rateLimited = "chill, that's a lot of requests. try again in a minute"
)

var (
	imageLines = []string{
		"yo here's your image, hope it's fire 🔥",
		"made this for you, thoughts?",
		"DALL-E cooked this up, not bad right?",
		"here you go, fresh AI art incoming",
	}
	searchLines = []string{
		"found some shit for you:",
		"here's what Google says:",
		"search results coming in hot:",
		"yo check these out:",
	}
)

// Memory is the slice of memory.Store the handlers use.
type Memory interface {
	Forget(ctx context.Context, userID string) (memory.ForgetReport, error)
	Stats(ctx context.Context) (memory.Stats, error)
	GetOrCreateProfile(ctx context.Context, userID, username, displayName string) (*memory.UserProfile, error)
	GetMemories(ctx context.Context, userID, category string, limit int) ([]memory.MemoryFact, error)
	SearchMemories(ctx context.Context, userID, term string, limit int) ([]memory.MemoryFact, error)
}

// Handlers holds the command handlers and their dependencies.
type Handlers struct {
	mem      Memory
	traits   *trait.Manager
	images   tools.ImageGenerator
	searcher tools.Searcher
	limiter  *tools.RateLimiter
	logger   *slog.Logger
	prefix   string

	started time.Time
	pick    func(n int) int
}

// Deps are the collaborators of Handlers. Nil tools are disabled and a nil
// Limiter allows tools.DefaultRateLimit calls per minute.
type Deps struct {
	Memory   Memory
	Traits   *trait.Manager
	Images   tools.ImageGenerator
	Searcher tools.Searcher
	Limiter  *tools.RateLimiter
	Logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(d Deps) *Handlers {
	if d.Images == nil {
		d.Images = tools.DisabledImages()
	}
	if d.Searcher == nil {
		d.Searcher = tools.DisabledSearch()
	}
	if d.Limiter == nil {
		d.Limiter = tools.NewRateLimiter(0, 0)
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Handlers{
		mem:      d.Memory,
		traits:   d.Traits,
		images:   d.Images,
		searcher: d.Searcher,
		limiter:  d.Limiter,
		logger:   d.Logger,
		prefix:   DefaultPrefix,
		started:  time.Now(),
		pick:     rand.IntN,
	}
}

// Router returns a Router with every command registered.
func (h *Handlers) Router() *Router {
	r := NewRouter(h.prefix, "help", h.logger)
	r.Register(h.HandlePing, "ping")
	r.Register(h.HandleHelp, "help")
	r.Register(h.HandleStats, "stats")
	r.Register(h.HandleForget, "forget")
	r.Register(h.HandleMemories, "memories", "mem")
	r.Register(h.HandleImage, "image", "img")
	r.Register(h.HandleSearch, "search")
	r.Register(h.HandlePersonalityShow, "personality", "p", "personality.show", "p.show")
	r.Register(h.HandlePersonalityPresets, "personality.presets", "p.presets")
	r.Register(h.HandlePersonalityPreset, "personality.preset", "p.preset")
	r.Register(h.HandlePersonalitySet, "personality.set", "p.set")
	r.Register(h.HandlePersonalityReset, "personality.reset", "p.reset")
	return r
}

// HandlePing answers a liveness check.
func (h *Handlers) HandlePing(context.Context, *Command, gateway.MessageEvent) (gateway.Reply, error) {
	return gateway.Reply{Text: "yo what's good! 🔥"}, nil
}

// HandleHelp lists the commands.
func (h *Handlers) HandleHelp(context.Context, *Command, gateway.MessageEvent) (gateway.Reply, error) {
	p := h.prefix
	help := `**Jim's Commands 🤖**
yo here's what I can do for you

• ` + p + ` ping - check if I'm alive and ready to roast
• ` + p + ` image <prompt> - generate an image
• ` + p + ` search <query> - search the web for anything
• ` + p + ` memories [term] - see what I remember about you
• ` + p + ` forget - clear your conversation memory
• ` + p + ` stats - show bot statistics
• ` + p + ` personality [show|presets|preset <name>|set <trait> <0-10>|reset] - tune my vibe

just say 'jim' in any message to chat with me!`
	return gateway.Reply{Text: help}, nil
}

// HandleStats shows memory counts and uptime.
func (h *Handlers) HandleStats(ctx context.Context, _ *Command, _ gateway.MessageEvent) (gateway.Reply, error) {
	st, err := h.mem.Stats(ctx)
	if err != nil {
		trace.Logger(ctx, h.logger).Error("commands: stats", "err", err)
		return gateway.Reply{Text: "couldn't grab stats rn, my bad"}, nil
	}
	text := fmt.Sprintf("**Jim's Stats 📊**\nUsers: %d | Memories: %d | Conversations: %d\nUptime: %s | Version: %s",
		st.Profiles, st.Facts, st.Contexts,
		time.Since(h.started).Round(time.Second), version.Version)
	return gateway.Reply{Text: text}, nil
}

// HandleForget deletes everything remembered about the caller.
func (h *Handlers) HandleForget(ctx context.Context, _ *Command, msg gateway.MessageEvent) (gateway.Reply, error) {
	report, err := h.mem.Forget(ctx, msg.SenderID)
	if err != nil {
		trace.Logger(ctx, h.logger).Error("commands: forget", "user", msg.SenderID, "err", err)
		return gateway.Reply{Text: "my bad, couldn't clear that rn"}, nil
	}
	trace.Logger(ctx, h.logger).Info("commands: forgot user",
		"user", msg.SenderID,
		"facts", report.Facts,
		"contexts", report.Contexts,
		"profiles", report.Profiles,
	)
	return gateway.Reply{Text: "aight bet, cleared your memory! fresh start fr 🧠✨"}, nil
}

// HandleMemories lists what is remembered about the caller, or the facts
// matching a search term.
func (h *Handlers) HandleMemories(ctx context.Context, cmd *Command, msg gateway.MessageEvent) (gateway.Reply, error) {
	log := trace.Logger(ctx, h.logger).With("user", msg.SenderID)
	if term := cmd.Rest; term != "" {
		facts, err := h.mem.SearchMemories(ctx, msg.SenderID, term, memoriesShown)
		if err != nil {
			log.Error("commands: search memories", "err", err)
			return gateway.Reply{Text: memoryBroken}, nil
		}
		if len(facts) == 0 {
			return gateway.Reply{Text: fmt.Sprintf("nothing about '%s' in my memory", term)}, nil
		}
		var b strings.Builder
		fmt.Fprintf(&b, "**stuff I remember about '%s' 🧠**", term)
		writeFacts(&b, facts)
		return gateway.Reply{Text: b.String()}, nil
	}

	p, err := h.mem.GetOrCreateProfile(ctx, msg.SenderID, msg.SenderName, msg.DisplayName)
	if err != nil {
		log.Error("commands: profile", "err", err)
		return gateway.Reply{Text: memoryBroken}, nil
	}
	facts, err := h.mem.GetMemories(ctx, msg.SenderID, "", memoriesShown)
	if err != nil {
		log.Error("commands: memories", "err", err)
		return gateway.Reply{Text: memoryBroken}, nil
	}
	interests := p.AllInterests()
	if len(facts) == 0 && len(interests) == 0 {
		return gateway.Reply{Text: "I don't know much about you yet, talk to me more fr"}, nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**what I know about %s 🧠**", p.Name())
	if len(interests) > 0 {
		fmt.Fprintf(&b, "\nInterests: %s", strings.Join(interests, ", "))
	}
	writeFacts(&b, facts)
	return gateway.Reply{Text: b.String()}, nil
}

func writeFacts(b *strings.Builder, facts []memory.MemoryFact) {
	for _, f := range facts {
		fmt.Fprintf(b, "\n• %s", f.Content)
	}
}

// HandleImage generates an image from the rest of the message.
func (h *Handlers) HandleImage(ctx context.Context, cmd *Command, msg gateway.MessageEvent) (gateway.Reply, error) {
	prompt := cmd.Rest
	if prompt == "" {
		return gateway.Reply{}, fmt.Errorf("usage: %s image <prompt>", h.prefix)
	}
	if !h.limiter.Allow(msg.SenderID) {
		return gateway.Reply{Text: rateLimited}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, tools.ImageTimeout)
	defer cancel()
	img, err := h.images.Generate(ctx, prompt)
	switch {
	case errors.Is(err, tools.ErrDisabled):
		return gateway.Reply{Text: "nah I can't make images rn, image generation is disabled 😔"}, nil
	case err != nil:
		trace.Logger(ctx, h.logger).Error("commands: image generation", "user", msg.SenderID, "err", err)
		return gateway.Reply{Text: "damn, image generation broke. my bad"}, nil
	}

	return gateway.Reply{
		Text:  imageLines[h.pick(len(imageLines))],
		Media: &gateway.Media{MIMEType: img.MIMEType, URL: img.URL, Data: img.Data},
	}, nil
}

// HandleSearch runs a web search and lists the top results.
func (h *Handlers) HandleSearch(ctx context.Context, cmd *Command, msg gateway.MessageEvent) (gateway.Reply, error) {
	query := cmd.Rest
	if query == "" {
		return gateway.Reply{Text: reply.SearchNoQuery}, nil
	}
	if !h.limiter.Allow(msg.SenderID) {
		return gateway.Reply{Text: rateLimited}, nil
	}

	results, err := h.searcher.Search(ctx, query, searchCommandResults)
	switch {
	case errors.Is(err, tools.ErrDisabled):
		return gateway.Reply{Text: reply.SearchDisabled}, nil
	case err != nil:
		trace.Logger(ctx, h.logger).Error("commands: search", "user", msg.SenderID, "err", err)
		return gateway.Reply{Text: "search broke, Google's probably down or some shit"}, nil
	case len(results) == 0:
		return gateway.Reply{Text: fmt.Sprintf("couldn't find anything for '%s', search is being dumb", query)}, nil
	}

	var b strings.Builder
	b.WriteString(searchLines[h.pick(len(searchLines))])
	for i, r := range results {
		if i == searchCommandResults {
			break
		}
		fmt.Fprintf(&b, "\n\n%d. **%s**\n%s\n%s", i+1,
			truncate(r.Title, searchTitleLen), truncate(r.Snippet, searchSnippetLen), r.Link)
	}
	return gateway.Reply{Text: b.String()}, nil
}

// HandlePersonalityShow shows the active profile.
func (h *Handlers) HandlePersonalityShow(context.Context, *Command, gateway.MessageEvent) (gateway.Reply, error) {
	return gateway.Reply{Text: "🎭 " + trait.Describe(h.traits.Profile())}, nil
}

// HandlePersonalityPresets lists the presets.
func (h *Handlers) HandlePersonalityPresets(context.Context, *Command, gateway.MessageEvent) (gateway.Reply, error) {
	var b strings.Builder
	b.WriteString("🎭 **Available Personality Presets**")
	for _, name := range trait.PresetNames() {
		fmt.Fprintf(&b, "\n• %s", name)
	}
	fmt.Fprintf(&b, "\n\nuse `%s personality preset <name>` to switch", h.prefix)
	return gateway.Reply{Text: b.String()}, nil
}

// HandlePersonalityPreset applies a preset.
func (h *Handlers) HandlePersonalityPreset(ctx context.Context, cmd *Command, msg gateway.MessageEvent) (gateway.Reply, error) {
	name, ok := cmd.GetArg(0)
	if !ok {
		return gateway.Reply{}, fmt.Errorf("please specify a preset name. use `%s personality presets` to see the options", h.prefix)
	}
	if err := h.traits.ApplyPreset(ctx, name); err != nil {
		if errors.Is(err, trait.ErrUnknownPreset) {
			return gateway.Reply{}, fmt.Errorf("invalid preset. valid options: %s", strings.Join(trait.PresetNames(), ", "))
		}
		return gateway.Reply{}, err
	}
	trace.Logger(ctx, h.logger).Info("commands: personality preset applied", "user", msg.SenderID, "preset", name)
	return gateway.Reply{Text: fmt.Sprintf("✅ Personality updated! Applied **%s** preset", strings.ToLower(name))}, nil
}

// HandlePersonalitySet sets one dial.
func (h *Handlers) HandlePersonalitySet(ctx context.Context, cmd *Command, msg gateway.MessageEvent) (gateway.Reply, error) {
	name, ok1 := cmd.GetArg(0)
	raw, ok2 := cmd.GetArg(1)
	if !ok1 || !ok2 {
		return gateway.Reply{}, fmt.Errorf("usage: %s personality set <trait> <0-10>. traits: %s",
			h.prefix, strings.Join(trait.Names, ", "))
	}
	v, err := trait.ParseValue(raw)
	if err != nil {
		return gateway.Reply{}, errors.New("value must be a whole number between 0 and 10")
	}
	if v < trait.Min || v > trait.Max {
		return gateway.Reply{}, errors.New("value must be between 0 and 10")
	}
	set, err := h.traits.SetTrait(ctx, name, v)
	if errors.Is(err, trait.ErrUnknownTrait) {
		return gateway.Reply{}, fmt.Errorf("invalid trait name: `%s`", name)
	}
	if err != nil {
		return gateway.Reply{}, err
	}
	trace.Logger(ctx, h.logger).Info("commands: trait set", "user", msg.SenderID, "trait", name, "value", set)
	return gateway.Reply{Text: fmt.Sprintf("✅ Trait updated! Set **%s** to **%d/10**", trait.NormaliseName(name), set)}, nil
}

// HandlePersonalityReset restores the default preset.
func (h *Handlers) HandlePersonalityReset(ctx context.Context, _ *Command, msg gateway.MessageEvent) (gateway.Reply, error) {
	if err := h.traits.ApplyPreset(ctx, trait.DefaultPreset); err != nil {
		return gateway.Reply{}, err
	}
	trace.Logger(ctx, h.logger).Info("commands: personality reset", "user", msg.SenderID)
	return gateway.Reply{Text: "🔄 Personality reset to default settings"}, nil
}

// truncate cuts s to n runes, marking the cut with "...".
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
