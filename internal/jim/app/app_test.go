package app

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/bdobrica/Jim/common/environment"
	"github.com/bdobrica/Jim/internal/jim/gateway"
	"github.com/bdobrica/Jim/internal/jim/llm"
	"github.com/bdobrica/Jim/internal/jim/matrix"
	"github.com/bdobrica/Jim/internal/jim/telegram"
)

type stubProvider struct{}

func (stubProvider) Complete(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{Text: "sup", Model: "stub"}, nil
}
func (stubProvider) Name() string         { return "stub" }
func (stubProvider) SupportsVision() bool { return false }

type fakeGateway struct {
	inbound   []gateway.MessageEvent
	delivered chan struct{}

	mu   sync.Mutex
	sent []string
}

func (g *fakeGateway) Run(ctx context.Context, handler gateway.Handler) error {
	for _, msg := range g.inbound {
		handler(ctx, msg)
	}
	close(g.delivered)
	<-ctx.Done()
	return nil
}

func (g *fakeGateway) SendReply(_ context.Context, _, _, text string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sent = append(g.sent, text)
	return nil
}

func (g *fakeGateway) SetTyping(context.Context, string, bool) error { return nil }

func baseConfig(t *testing.T) *Config {
	return &Config{
		DatabasePath: filepath.Join(t.TempDir(), "jim-app-test.db"),
		LLM:          LLMConfig{Client: stubProvider{}},
		Gateways:     []Gateway{&fakeGateway{delivered: make(chan struct{})}},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "ok", mutate: func(*Config) {}},
		{name: "no database", mutate: func(c *Config) { c.DatabasePath = " " }, wantErr: "database path is required"},
		{name: "no gateway", mutate: func(c *Config) { c.Gateways = nil }, wantErr: "no gateway configured"},
		{
			name:    "no api key",
			mutate:  func(c *Config) { c.LLM = LLMConfig{Provider: ProviderOpenAI} },
			wantErr: "llm api key is required",
		},
		{
			name:    "unknown provider",
			mutate:  func(c *Config) { c.LLM = LLMConfig{Provider: "claude", APIKey: "k"} },
			wantErr: `unknown llm provider "claude"`,
		},
		{
			name:    "unknown image provider",
			mutate:  func(c *Config) { c.Images.Provider = "midjourney" },
			wantErr: `unknown image provider "midjourney"`,
		},
		{name: "negative window", mutate: func(c *Config) { c.RecentWindow = -time.Second }, wantErr: "recent window"},
		{name: "bad preset", mutate: func(c *Config) { c.DefaultPreset = "spicy" }, wantErr: "unknown preset"},
		{
			name:    "partial matrix",
			mutate:  func(c *Config) { c.Matrix = &matrix.Config{Homeserver: "https://m.example.org"} },
			wantErr: "matrix needs",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig(t)
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	for _, k := range []string{
		"JIM_DB_PATH", "JIM_WAKE_WORD", "JIM_RECENT_WINDOW", "JIM_LLM_PROVIDER", "GEMINI_API_KEY",
		"OPENAI_API_KEY", "JIM_IMAGE_PROVIDER", "MATRIX_HOMESERVER", "MATRIX_ROOMS",
		"TELEGRAM_BOT_TOKEN", "TELEGRAM_ALLOWED_CHATS", "JIM_TEMPERATURE", "JIM_OWNER_ID",
	} {
		t.Setenv(k, "")
	}
	src, err := environment.FromYAML([]byte(`
JIM_DB_PATH: /var/lib/jim/jim.db
JIM_RECENT_WINDOW: 90s
JIM_LLM_PROVIDER: gemini
GEMINI_API_KEY: from-file
JIM_TEMPERATURE: 0.5
MATRIX_HOMESERVER: https://matrix.example.org
MATRIX_USER_ID: "@jim:example.org"
MATRIX_ACCESS_TOKEN: tok
MATRIX_ROOMS: ["!a:example.org", "!b:example.org"]
TELEGRAM_BOT_TOKEN: "123:abc"
TELEGRAM_ALLOWED_CHATS: [-100, 7]
`))
	if err != nil {
		t.Fatalf("FromYAML: %v", err)
	}
	t.Setenv("GEMINI_API_KEY", "from-env")
	t.Setenv("JIM_OWNER_ID", "tg:7")

	cfg, err := LoadConfig(src)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.DatabasePath != "/var/lib/jim/jim.db" || cfg.RecentWindow != 90*time.Second || cfg.OwnerID != "tg:7" {
		t.Errorf("core = %q %v %q", cfg.DatabasePath, cfg.RecentWindow, cfg.OwnerID)
	}
	if cfg.LLM.Provider != ProviderGemini || cfg.LLM.APIKey != "from-env" || cfg.LLM.Temperature != 0.5 {
		t.Errorf("llm = %+v", cfg.LLM)
	}
	if cfg.Images.Provider != ProviderGemini || cfg.Images.APIKey != "from-env" {
		t.Errorf("images = %+v", cfg.Images)
	}
	if cfg.Matrix == nil || !cfg.Matrix.AutoJoin {
		t.Fatalf("matrix = %+v", cfg.Matrix)
	}
	if diff := cmp.Diff([]string{"!a:example.org", "!b:example.org"}, cfg.Matrix.Rooms); diff != "" {
		t.Errorf("rooms (-want +got):\n%s", diff)
	}
	want := &telegram.Config{Token: "123:abc", AllowedChats: []int64{-100, 7}}
	if diff := cmp.Diff(want, cfg.Telegram); diff != "" {
		t.Errorf("telegram (-want +got):\n%s", diff)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestLoadConfig_BadChatID(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("TELEGRAM_ALLOWED_CHATS", "-100,general")
	if _, err := LoadConfig(environment.Env); err == nil {
		t.Fatal("LoadConfig accepted a non-numeric chat id")
	}
}

func TestRun_RoutesMessages(t *testing.T) {
	cfg := baseConfig(t)
	gw := &fakeGateway{
		delivered: make(chan struct{}),
		inbound: []gateway.MessageEvent{
			{Platform: "fake", EventID: "e1", SenderID: "u1", ChannelID: "c1", Text: "!jim ping"},
			{Platform: "fake", EventID: "e2", SenderID: "u1", ChannelID: "c1", Text: "hey jim"},
			{Platform: "fake", EventID: "e3", SenderID: "u2", ChannelID: "c1", Text: "unrelated chatter"},
		},
	}
	cfg.Gateways = []Gateway{gw}

	a, err := New(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	select {
	case <-gw.delivered:
	case <-time.After(5 * time.Second):
		t.Fatal("gateway did not deliver its messages")
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}

	gw.mu.Lock()
	defer gw.mu.Unlock()
	if diff := cmp.Diff([]string{"yo what's good! 🔥", "sup"}, gw.sent); diff != "" {
		t.Errorf("replies (-want +got):\n%s", diff)
	}
	if got := a.GatewayNames(); len(got) != 1 || got[0] != "custom-0" {
		t.Errorf("GatewayNames = %v", got)
	}
	st, err := a.MemoryStats(context.Background())
	if err != nil || st.Profiles != 1 || st.Contexts != 1 {
		t.Errorf("MemoryStats = %+v, %v", st, err)
	}
}

type countPruner int

func (c countPruner) Prune(time.Time) int { return int(c) }

func TestPruners(t *testing.T) {
	if got := (pruners{countPruner(2), countPruner(3)}).Prune(time.Now()); got != 5 {
		t.Errorf("Prune = %d, want 5", got)
	}
}
