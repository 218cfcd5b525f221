package reply

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/bdobrica/Jim/internal/jim/config"
	"github.com/bdobrica/Jim/internal/jim/gateway"
	"github.com/bdobrica/Jim/internal/jim/llm"
	"github.com/bdobrica/Jim/internal/jim/memory"
	"github.com/bdobrica/Jim/internal/jim/store"
	"github.com/bdobrica/Jim/internal/jim/tools"
	"github.com/bdobrica/Jim/internal/jim/trait"
)

// fakeProvider answers with reply, or fails with each error in errs in turn
// before answering. When block is non-nil every call waits for it to close.
type fakeProvider struct {
	mu      sync.Mutex
	reply   string
	errs    []error
	always  error
	panicky bool
	vision  bool
	block   chan struct{}
	started chan struct{}
	calls   int
	last    llm.Request
}

func (p *fakeProvider) Name() string         { return "fake" }
func (p *fakeProvider) SupportsVision() bool { return p.vision }

func (p *fakeProvider) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	p.mu.Lock()
	p.calls++
	p.last = req
	var err error
	switch {
	case p.always != nil:
		err = p.always
	case len(p.errs) > 0:
		err, p.errs = p.errs[0], p.errs[1:]
	}
	block, started := p.block, p.started
	p.mu.Unlock()

	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return llm.Response{}, ctx.Err()
		}
	}
	if p.panicky {
		panic("provider exploded")
	}
	if err != nil {
		return llm.Response{}, err
	}
	return llm.Response{Text: p.reply, Model: "fake-1"}, nil
}

func (p *fakeProvider) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func (p *fakeProvider) LastRequest() llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// sent is one message captured by recordingSender.
type sent struct {
	Channel, ReplyTo, Text string
}

type recordingSender struct {
	mu     sync.Mutex
	sent   []sent
	typing int
}

func (s *recordingSender) SendReply(_ context.Context, channelID, replyTo, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{channelID, replyTo, text})
	return nil
}

func (s *recordingSender) SetTyping(_ context.Context, _ string, typing bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if typing {
		s.typing++
	}
	return nil
}

func (s *recordingSender) Sent() []sent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sent(nil), s.sent...)
}

// failingMemory wraps a real store and fails the named write steps.
type failingMemory struct {
	*memory.Store
	failContext bool
	failFacts   bool
}

var errDiskFull = errors.New("disk full")

func (m *failingMemory) UpdateContext(ctx context.Context, u memory.ContextUpdate) error {
	if m.failContext {
		return errDiskFull
	}
	return m.Store.UpdateContext(ctx, u)
}

func (m *failingMemory) AddMemory(ctx context.Context, d memory.FactDraft) (*memory.MemoryFact, error) {
	if m.failFacts {
		return nil, errDiskFull
	}
	return m.Store.AddMemory(ctx, d)
}

type fakeSearcher struct {
	results []tools.SearchResult
	err     error
	query   string
	n       int
}

func (s *fakeSearcher) Search(_ context.Context, query string, n int) ([]tools.SearchResult, error) {
	s.query, s.n = query, n
	return s.results, s.err
}

type fakeCommands struct{}

func (fakeCommands) Dispatch(_ context.Context, msg gateway.MessageEvent) (gateway.Reply, bool) {
	if msg.Text == "!jim ping" {
		return gateway.Reply{Text: "yo what's good! 🔥"}, true
	}
	return gateway.Reply{}, false
}

func newMemory(t *testing.T) *memory.Store {
	t.Helper()
	db, err := store.New(filepath.Join(t.TempDir(), "jim-reply-test.db"))
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return memory.New(db, memory.Config{})
}

func newTraits(t *testing.T) *trait.Manager {
	t.Helper()
	m, err := trait.NewManager(context.Background(), config.NewMemory(), "", nil)
	if err != nil {
		t.Fatalf("trait.NewManager: %v", err)
	}
	return m
}
