package reply

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/bdobrica/Jim/internal/jim/gateway"
	"github.com/bdobrica/Jim/internal/jim/llm"
	"github.com/bdobrica/Jim/internal/jim/trigger"
)

var t0 = time.Date(2026, 2, 24, 12, 0, 0, 0, time.UTC)

type handlerFixture struct {
	h      *Handler
	engine *trigger.Engine
	sender *recordingSender
	p      *fakeProvider
	clock  time.Time
}

func newHandlerFixture(t *testing.T, p *fakeProvider) *handlerFixture {
	t.Helper()
	f := &handlerFixture{
		engine: trigger.NewEngine(trigger.Config{}),
		sender: &recordingSender{},
		p:      p,
		clock:  t0,
	}
	o := newOrchestrator(t, newMemory(t), p, nil, Config{})
	f.h = NewHandler(f.engine, o, f.sender, fakeCommands{}, nil)
	f.h.now = func() time.Time { return f.clock }
	return f
}

func message(sender, text string) gateway.MessageEvent {
	return gateway.MessageEvent{
		Platform:  "matrix",
		EventID:   fmt.Sprintf("$evt-%s-%d", sender, len(text)),
		SenderID:  sender,
		ChannelID: "!room:x",
		Text:      text,
	}
}

func TestHandle_ScenariosAB(t *testing.T) {
	f := newHandlerFixture(t, &fakeProvider{reply: "yo"})
	ctx := context.Background()

	// A: wake word from a fresh user.
	f.h.Handle(ctx, message("@sam:x", "hey jim what's up"))
	// B: five seconds later, no wake word.
	f.clock = t0.Add(5 * time.Second)
	f.h.Handle(ctx, message("@sam:x", "lol"))
	// Outside the recency window and not addressed.
	f.clock = t0.Add(2 * time.Minute)
	f.h.Handle(ctx, message("@sam:x", "anyway"))

	sent := f.sender.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d replies, want 2: %+v", len(sent), sent)
	}
	if sent[0].Text != "yo" || sent[0].Channel != "!room:x" || sent[0].ReplyTo == "" {
		t.Errorf("first reply = %+v", sent[0])
	}
	if f.p.Calls() != 2 {
		t.Errorf("provider calls = %d, want 2", f.p.Calls())
	}
	if f.sender.typing != 2 {
		t.Errorf("typing set %d times, want 2", f.sender.typing)
	}
}

func TestHandle_ScenarioC_InFlightCollision(t *testing.T) {
	p := &fakeProvider{reply: "first", block: make(chan struct{}), started: make(chan struct{}, 1)}
	f := newHandlerFixture(t, p)
	ctx := context.Background()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		f.h.Handle(ctx, message("@sam:x", "jim tell me a story"))
	}()
	<-p.started

	if !f.engine.Guard().InFlight("@sam:x") {
		t.Fatal("sender should be in flight while the model call runs")
	}
	f.h.Handle(ctx, message("@sam:x", "jim hello??"))
	if n := len(f.sender.Sent()); n != 0 {
		t.Fatalf("collision produced %d replies", n)
	}

	close(p.block)
	wg.Wait()

	if f.engine.Guard().InFlight("@sam:x") {
		t.Error("guard still holds the sender after the turn finished")
	}
	if sent := f.sender.Sent(); len(sent) != 1 || sent[0].Text != "first" {
		t.Errorf("sent = %+v", sent)
	}
	if p.Calls() != 1 {
		t.Errorf("provider calls = %d, want 1", p.Calls())
	}
}

func TestHandle_SameUserConcurrency(t *testing.T) {
	p := &fakeProvider{reply: "ok", block: make(chan struct{}), started: make(chan struct{}, 16)}
	f := newHandlerFixture(t, p)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.h.Handle(ctx, message("@sam:x", "jim spam"))
		}()
	}
	<-p.started
	// Give the losers time to be rejected before the winner is released.
	time.Sleep(20 * time.Millisecond)
	close(p.block)
	wg.Wait()

	if p.Calls() != 1 || len(f.sender.Sent()) != 1 {
		t.Errorf("calls = %d, replies = %d; want exactly one pipeline", p.Calls(), len(f.sender.Sent()))
	}
}

func TestHandle_FailingProviderReleasesGuard(t *testing.T) {
	f := newHandlerFixture(t, &fakeProvider{always: fmt.Errorf("fake: %w", llm.ErrAuth)})
	ctx := context.Background()

	f.h.Handle(ctx, message("@sam:x", "jim hi"))
	f.h.Handle(ctx, message("@sam:x", "jim hi again"))

	sent := f.sender.Sent()
	if len(sent) != 2 {
		t.Fatalf("sent %d replies, want 2", len(sent))
	}
	for _, s := range sent {
		if !IsFallback(s.Text) {
			t.Errorf("reply %q is not a fallback", s.Text)
		}
	}
	if f.engine.Guard().InFlight("@sam:x") {
		t.Error("guard not released")
	}
}

func TestHandle_PanicIsRecovered(t *testing.T) {
	f := newHandlerFixture(t, &fakeProvider{panicky: true})
	f.h.Handle(context.Background(), message("@sam:x", "jim hi"))

	if f.engine.Guard().InFlight("@sam:x") {
		t.Error("guard not released after panic")
	}
	if n := len(f.sender.Sent()); n != 0 {
		t.Errorf("sent %d replies after panic", n)
	}
}

func TestHandle_CommandsBypassTrigger(t *testing.T) {
	f := newHandlerFixture(t, &fakeProvider{reply: "chat"})
	ctx := context.Background()

	f.h.Handle(ctx, message("@sam:x", "!jim ping"))
	bot := message("@other-bot:x", "!jim ping")
	bot.IsBotAuthor = true
	f.h.Handle(ctx, bot)

	sent := f.sender.Sent()
	if len(sent) != 1 || sent[0].Text != "yo what's good! 🔥" {
		t.Fatalf("sent = %+v", sent)
	}
	if f.p.Calls() != 0 {
		t.Errorf("command reached the model")
	}
	if _, seen := f.engine.Guard().LastSeen("@sam:x"); seen {
		t.Error("command should not open a recency window")
	}
}

func TestHandle_RejectsDMsAndSelf(t *testing.T) {
	f := newHandlerFixture(t, &fakeProvider{reply: "x"})
	dm := message("@sam:x", "jim hi")
	dm.IsDM = true
	self := message("@jim:x", "jim hi")
	self.IsSelf = true

	f.h.Handle(context.Background(), dm)
	f.h.Handle(context.Background(), self)
	if n := len(f.sender.Sent()); n != 0 {
		t.Errorf("sent %d replies", n)
	}
}
