// Package app wires Jim together: storage, memory, personality, the model
// provider, tools, the chat gateways, the sweeper and the health server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/bdobrica/Jim/internal/jim/commands"
	"github.com/bdobrica/Jim/internal/jim/config"
	"github.com/bdobrica/Jim/internal/jim/gateway"
	"github.com/bdobrica/Jim/internal/jim/llm"
	"github.com/bdobrica/Jim/internal/jim/matrix"
	"github.com/bdobrica/Jim/internal/jim/memory"
	"github.com/bdobrica/Jim/internal/jim/reply"
	"github.com/bdobrica/Jim/internal/jim/store"
	"github.com/bdobrica/Jim/internal/jim/telegram"
	"github.com/bdobrica/Jim/internal/jim/tools"
	"github.com/bdobrica/Jim/internal/jim/trait"
	"github.com/bdobrica/Jim/internal/jim/trigger"
)

// Gateway is a chat platform connection.
type Gateway interface {
	gateway.Sender
	// Run delivers inbound messages to handler until ctx is cancelled.
	Run(ctx context.Context, handler gateway.Handler) error
}

type namedGateway struct {
	name string
	gw   Gateway
}

// App is the main Jim application.
type App struct {
	config   *Config
	logger   *slog.Logger
	store    *store.Store
	memory   *memory.Store
	traits   *trait.Manager
	engine   *trigger.Engine
	orch     *reply.Orchestrator
	router   *commands.Router
	limiter  *tools.RateLimiter
	sweeper  *memory.Sweeper
	health   *HealthServer
	gateways []namedGateway
}

// New validates cfg and builds the application. Nothing is started until
// Run.
func New(ctx context.Context, cfg *Config, logger *slog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening database", "path", cfg.DatabasePath)
	db, err := store.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("app: open database: %w", err)
	}
	a := &App{config: cfg, logger: logger, store: db}
	if err := a.build(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) build(ctx context.Context) error {
	cfg, logger := a.config, a.logger

	configStore := config.New(a.store)
	a.memory = memory.New(a.store, memory.Config{OwnerID: cfg.OwnerID, Logger: logger})

	traits, err := trait.NewManager(ctx, configStore, cfg.DefaultPreset, logger)
	if err != nil {
		return fmt.Errorf("app: personality: %w", err)
	}
	a.traits = traits

	provider, err := newProvider(ctx, cfg.LLM)
	if err != nil {
		return fmt.Errorf("app: language model: %w", err)
	}
	logger.Info("language model ready", "provider", provider.Name(), "vision", provider.SupportsVision())

	images, err := newImages(ctx, cfg.Images)
	if err != nil {
		return fmt.Errorf("app: image generation: %w", err)
	}
	searcher := tools.NewGoogleSearch(cfg.Search)
	a.limiter = tools.NewRateLimiter(cfg.ToolRateLimit, time.Minute)

	a.engine = trigger.NewEngine(trigger.Config{
		WakeWord:     cfg.WakeWord,
		RecentWindow: cfg.RecentWindow,
	})
	a.orch = reply.New(a.memory, traits, provider, searcher, reply.Config{
		BotName:  cfg.BotName,
		WakeWord: cfg.WakeWord,
		Timeout:  cfg.LLM.Timeout,
	}, logger)
	a.router = commands.NewHandlers(commands.Deps{
		Memory:   a.memory,
		Traits:   traits,
		Images:   images,
		Searcher: searcher,
		Limiter:  a.limiter,
		Logger:   logger,
	}).Router()

	a.sweeper, err = memory.NewSweeper(a.memory, pruners{a.engine.Guard(), a.limiter}, cfg.Sweeper, logger)
	if err != nil {
		return fmt.Errorf("app: sweeper: %w", err)
	}

	if cfg.Matrix != nil {
		mcfg := *cfg.Matrix
		mcfg.SyncStore = configStore
		logger.Info("connecting to Matrix", "homeserver", mcfg.Homeserver)
		client, err := matrix.New(mcfg, logger.With("platform", "matrix"))
		if err != nil {
			return fmt.Errorf("app: matrix: %w", err)
		}
		a.gateways = append(a.gateways, namedGateway{"matrix", client})
	}
	if cfg.Telegram != nil {
		logger.Info("connecting to Telegram")
		client, err := telegram.New(*cfg.Telegram, logger)
		if err != nil {
			return fmt.Errorf("app: telegram: %w", err)
		}
		a.gateways = append(a.gateways, namedGateway{telegram.Platform, client})
	}
	for i, gw := range cfg.Gateways {
		a.gateways = append(a.gateways, namedGateway{fmt.Sprintf("custom-%d", i), gw})
	}

	if cfg.HealthAddr != "" {
		a.health = NewHealthServer(cfg.HealthAddr, a, logger)
	}
	return nil
}

// Run starts every gateway, the sweeper and the health server, and blocks
// until ctx is cancelled or one of them fails.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, ng := range a.gateways {
		handler := reply.NewHandler(a.engine, a.orch, ng.gw, a.router, a.logger.With("gateway", ng.name))
		g.Go(func() error {
			a.logger.Info("gateway starting", "gateway", ng.name)
			if err := ng.gw.Run(ctx, handler.Func()); err != nil {
				return fmt.Errorf("gateway %s: %w", ng.name, err)
			}
			return nil
		})
	}
	g.Go(func() error { return a.sweeper.Run(ctx) })
	if a.health != nil {
		g.Go(func() error { return a.health.Run(ctx) })
	}

	a.logger.Info("Jim is running", "gateways", a.GatewayNames(), "preset", a.ActivePreset())
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		err = nil
	}
	a.logger.Info("shutting down", "err", err)
	return err
}

// Close releases the database.
func (a *App) Close() error {
	a.logger.Info("closing database")
	return a.store.Close()
}

// GuardStats reports the trigger guard sizes.
func (a *App) GuardStats() trigger.Stats { return a.engine.Guard().Stats() }

// ActivePreset is the label of the active personality.
func (a *App) ActivePreset() string { return a.traits.Profile().Preset }

// MemoryStats counts stored rows.
func (a *App) MemoryStats(ctx context.Context) (memory.Stats, error) { return a.memory.Stats(ctx) }

// GatewayNames lists the configured gateways.
func (a *App) GatewayNames() []string {
	names := make([]string, 0, len(a.gateways))
	for _, ng := range a.gateways {
		names = append(names, ng.name)
	}
	return names
}

// pruners fans one sweeper tick out to several in-memory tables.
type pruners []memory.GuardPruner

func (p pruners) Prune(now time.Time) int {
	n := 0
	for _, pr := range p {
		n += pr.Prune(now)
	}
	return n
}

func newProvider(ctx context.Context, cfg LLMConfig) (llm.Provider, error) {
	if cfg.Client != nil {
		return cfg.Client, nil
	}
	if cfg.Provider == ProviderGemini {
		return llm.NewGemini(ctx, llm.GeminiConfig{
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			BaseURL:     cfg.BaseURL,
			MaxTokens:   cfg.MaxTokens,
			Temperature: cfg.Temperature,
		})
	}
	return llm.NewOpenAI(llm.OpenAIConfig{
		APIKey:      cfg.APIKey,
		BaseURL:     cfg.BaseURL,
		Model:       cfg.Model,
		MaxTokens:   cfg.MaxTokens,
		Temperature: cfg.Temperature,
	})
}

func newImages(ctx context.Context, cfg ImageConfig) (tools.ImageGenerator, error) {
	switch cfg.Provider {
	case ProviderOpenAI:
		return tools.NewOpenAIImages(tools.OpenAIImageConfig{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			Size:    cfg.Size,
		}), nil
	case ProviderGemini:
		return tools.NewGeminiImages(ctx, tools.GeminiImageConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Model,
			AspectRatio: cfg.AspectRatio,
		})
	default:
		return tools.DisabledImages(), nil
	}
}
