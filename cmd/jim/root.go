package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/bdobrica/Jim/common/environment"
	"github.com/bdobrica/Jim/internal/jim/config"
	"github.com/bdobrica/Jim/internal/jim/memory"
	"github.com/bdobrica/Jim/internal/jim/store"
	"github.com/bdobrica/Jim/internal/jim/trait"
)

var (
	dbPath     string
	configPath string
)

var rootCmd = &cobra.Command{
	Use:           "jim",
	Short:         "Jim, the group chat bot",
	Long:          "Jim lives in Matrix rooms and Telegram chats, remembers people and answers when called.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(*cobra.Command, []string) {
		setupLogging(environment.StringOr("JIM_LOG_LEVEL", "info"), environment.StringOr("JIM_LOG_FORMAT", "text"))
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: $JIM_DB_PATH or ./jim.db)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML file of KEY: value defaults, overridden by the environment")
}

// setupLogging configures the default slog logger from a level and a format
// ("text" or "json").
func setupLogging(level, format string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}

// source returns the configuration source, layered over --config when set.
func source() (*environment.Source, error) {
	if configPath == "" {
		return environment.Env, nil
	}
	return environment.FromFile(configPath)
}

func resolveDBPath(src *environment.Source) string {
	if dbPath != "" {
		return dbPath
	}
	return src.StringOr("JIM_DB_PATH", "./jim.db")
}

// offline bundles what the maintenance commands need without connecting to
// any chat platform or model provider.
type offline struct {
	db     *store.Store
	memory *memory.Store
	config config.Store
	preset string
}

func openOffline() (*offline, error) {
	src, err := source()
	if err != nil {
		return nil, err
	}
	db, err := store.New(resolveDBPath(src))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	return &offline{
		db:     db,
		memory: memory.New(db, memory.Config{OwnerID: src.StringOr("JIM_OWNER_ID", ""), Logger: slog.Default()}),
		config: config.New(db),
		preset: src.StringOr("JIM_PERSONALITY_PRESET", ""),
	}, nil
}

func (o *offline) traits(ctx context.Context) (*trait.Manager, error) {
	return trait.NewManager(ctx, o.config, o.preset, slog.Default())
}

func (o *offline) Close() error { return o.db.Close() }
