// Package trigger decides, per incoming message, whether the bot engages, and
// enforces one in-flight turn per sender.
package trigger

import (
	"strings"
	"sync"
	"time"

	"github.com/bdobrica/Jim/internal/jim/gateway"
)

const (
	// DefaultWakeWord is matched case-insensitively anywhere in the text.
	DefaultWakeWord = "jim"

	// DefaultRecentWindow is how long after an engaged turn the sender may
	// keep talking without addressing the bot.
	DefaultRecentWindow = 60 * time.Second
)

// Reason is a bit set of the conditions that fired for an engaged message.
type Reason uint8

const (
	ReasonName Reason = 1 << iota
	ReasonDirect
	ReasonRecent
	ReasonMedia
)

// Has reports whether r includes flag.
func (r Reason) Has(flag Reason) bool { return r&flag != 0 }

func (r Reason) String() string {
	var parts []string
	for _, f := range []struct {
		flag Reason
		name string
	}{
		{ReasonName, "name"},
		{ReasonDirect, "direct"},
		{ReasonRecent, "recent"},
		{ReasonMedia, "media"},
	} {
		if r.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// Rejection explains why a message was not engaged.
type Rejection uint8

const (
	NotRejected Rejection = iota
	RejectSelf
	RejectDM
	RejectBot
	RejectInFlight
	RejectNoTrigger
)

func (r Rejection) String() string {
	switch r {
	case NotRejected:
		return "none"
	case RejectSelf:
		return "self"
	case RejectDM:
		return "direct-message"
	case RejectBot:
		return "bot-author"
	case RejectInFlight:
		return "in-flight"
	case RejectNoTrigger:
		return "no-trigger"
	}
	return "unknown"
}

// Decision is the outcome of evaluating one message.
type Decision struct {
	Engage    bool
	Reasons   Reason
	Rejection Rejection
}

// Config tunes the Engine.
type Config struct {
	WakeWord     string
	RecentWindow time.Duration
	GuardTTL     time.Duration
	MaxTracked   int
}

// Engine evaluates trigger conditions against a Guard.
type Engine struct {
	wakeWord string
	window   time.Duration
	guard    *Guard
}

// NewEngine builds an Engine; zero Config fields take the package defaults.
func NewEngine(cfg Config) *Engine {
	if cfg.WakeWord == "" {
		cfg.WakeWord = DefaultWakeWord
	}
	if cfg.RecentWindow <= 0 {
		cfg.RecentWindow = DefaultRecentWindow
	}
	return &Engine{
		wakeWord: strings.ToLower(cfg.WakeWord),
		window:   cfg.RecentWindow,
		guard:    NewGuard(cfg.GuardTTL, cfg.MaxTracked),
	}
}

// Guard exposes the interaction state for pruning and status reporting.
func (e *Engine) Guard() *Guard { return e.guard }

// WakeWord returns the lower-cased wake word.
func (e *Engine) WakeWord() string { return e.wakeWord }

func (e *Engine) prefilter(msg gateway.MessageEvent) Rejection {
	switch {
	case msg.IsSelf:
		return RejectSelf
	case msg.IsDM:
		return RejectDM
	case msg.IsBotAuthor:
		return RejectBot
	}
	return NotRejected
}

func (e *Engine) reasons(msg gateway.MessageEvent, now, last time.Time, seen bool) Reason {
	var r Reason
	if e.wakeWord != "" && strings.Contains(strings.ToLower(msg.Text), e.wakeWord) {
		r |= ReasonName
	}
	if msg.MentionsBot || msg.IsReplyToBot {
		r |= ReasonDirect
	}
	if seen && !now.Before(last) && now.Sub(last) <= e.window {
		r |= ReasonRecent
	}
	if msg.HasImage() {
		r |= ReasonMedia
	}
	return r
}

// ShouldEngage evaluates msg without changing any state.
func (e *Engine) ShouldEngage(msg gateway.MessageEvent, now time.Time) Decision {
	if rej := e.prefilter(msg); rej != NotRejected {
		return Decision{Rejection: rej}
	}
	if e.guard.InFlight(msg.SenderID) {
		return Decision{Rejection: RejectInFlight}
	}
	last, seen := e.guard.LastSeen(msg.SenderID)
	r := e.reasons(msg, now, last, seen)
	if r == 0 {
		return Decision{Rejection: RejectNoTrigger}
	}
	return Decision{Engage: true, Reasons: r}
}

// Admit evaluates msg and, when it engages, marks the sender in flight and
// records now as their last interaction in the same critical section. The
// returned release func must be deferred by the caller; it is safe to call
// more than once and is a no-op when the message was not admitted.
func (e *Engine) Admit(msg gateway.MessageEvent, now time.Time) (Decision, func()) {
	noop := func() {}
	if rej := e.prefilter(msg); rej != NotRejected {
		return Decision{Rejection: rej}, noop
	}

	var d Decision
	acquired, busy := e.guard.acquire(msg.SenderID, now, func(last time.Time, seen bool) bool {
		d.Reasons = e.reasons(msg, now, last, seen)
		return d.Reasons != 0
	})
	switch {
	case busy:
		return Decision{Rejection: RejectInFlight}, noop
	case !acquired:
		return Decision{Rejection: RejectNoTrigger}, noop
	}

	d.Engage = true
	var once sync.Once
	return d, func() { once.Do(func() { e.guard.release(msg.SenderID) }) }
}
