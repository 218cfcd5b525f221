package app

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/bdobrica/Jim/common/environment"
	"github.com/bdobrica/Jim/internal/jim/llm"
	"github.com/bdobrica/Jim/internal/jim/matrix"
	"github.com/bdobrica/Jim/internal/jim/memory"
	"github.com/bdobrica/Jim/internal/jim/telegram"
	"github.com/bdobrica/Jim/internal/jim/tools"
	"github.com/bdobrica/Jim/internal/jim/trait"
	"github.com/bdobrica/Jim/internal/jim/trigger"
)

// Provider names accepted by LLMConfig.Provider and ImageConfig.Provider.
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds application configuration.
type Config struct {
	DatabasePath string

	// BotName is used in the compiled system prompt. WakeWord engages the
	// bot anywhere in a message.
	BotName  string
	WakeWord string
	// RecentWindow is how long a user may keep talking without the wake
	// word after an engaged turn.
	RecentWindow time.Duration

	// OwnerID marks the creator's profile (e.g. "@alice:example.org" or
	// "tg:12345").
	OwnerID string

	// DefaultPreset is applied when no personality has been stored yet.
	DefaultPreset string

	LLM    LLMConfig
	Images ImageConfig
	Search tools.GoogleSearchConfig

	// ToolRateLimit caps image and search commands per user per minute.
	// Defaults to tools.DefaultRateLimit when zero.
	ToolRateLimit int

	// Matrix and Telegram enable the gateways when non-nil.
	Matrix   *matrix.Config
	Telegram *telegram.Config

	// Gateways are extra pre-built gateways, run alongside Matrix and
	// Telegram.
	Gateways []Gateway

	// HealthAddr is the TCP address for the /health and /status server.
	// When empty the server is disabled.
	HealthAddr string

	Sweeper memory.SweeperConfig
}

// LLMConfig selects and configures the chat model.
type LLMConfig struct {
	// Provider is "openai" (default, also for OpenAI-compatible endpoints)
	// or "gemini".
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	MaxTokens   int
	Temperature float64
	// Timeout bounds one reply, retries included.
	Timeout time.Duration

	// Client, when non-nil, is used as-is and the fields above are ignored.
	Client llm.Provider
}

// ImageConfig selects the image generator. An empty Provider or APIKey
// disables `!jim image`.
type ImageConfig struct {
	Provider    string
	APIKey      string
	BaseURL     string
	Model       string
	Size        string
	AspectRatio string
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.DatabasePath) == "" {
		errs = append(errs, errors.New("database path is required"))
	}
	if c.Matrix == nil && c.Telegram == nil && len(c.Gateways) == 0 {
		errs = append(errs, errors.New("no gateway configured: set MATRIX_* or TELEGRAM_BOT_TOKEN"))
	}
	if c.LLM.Client == nil {
		switch c.LLM.Provider {
		case "", ProviderOpenAI, ProviderGemini:
		default:
			errs = append(errs, fmt.Errorf("unknown llm provider %q", c.LLM.Provider))
		}
		if strings.TrimSpace(c.LLM.APIKey) == "" {
			errs = append(errs, errors.New("llm api key is required"))
		}
	}
	switch c.Images.Provider {
	case "", ProviderOpenAI, ProviderGemini:
	default:
		errs = append(errs, fmt.Errorf("unknown image provider %q", c.Images.Provider))
	}
	if c.RecentWindow < 0 {
		errs = append(errs, errors.New("recent window cannot be negative"))
	}
	if c.DefaultPreset != "" {
		if _, err := trait.Preset(c.DefaultPreset); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Matrix != nil && (c.Matrix.Homeserver == "" || c.Matrix.UserID == "" || c.Matrix.AccessToken == "") {
		errs = append(errs, errors.New("matrix needs MATRIX_HOMESERVER, MATRIX_USER_ID and MATRIX_ACCESS_TOKEN"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("app: invalid config: %w", err)
	}
	return nil
}

// LoadConfig reads the configuration from src. Environment variables win
// over the optional YAML file src was built from.
func LoadConfig(src *environment.Source) (*Config, error) {
	cfg := &Config{
		DatabasePath:  src.StringOr("JIM_DB_PATH", "./jim.db"),
		BotName:       src.StringOr("JIM_BOT_NAME", "Jim"),
		WakeWord:      src.StringOr("JIM_WAKE_WORD", trigger.DefaultWakeWord),
		RecentWindow:  src.DurationOr("JIM_RECENT_WINDOW", trigger.DefaultRecentWindow),
		OwnerID:       src.StringOr("JIM_OWNER_ID", ""),
		DefaultPreset: src.StringOr("JIM_PERSONALITY_PRESET", ""),
		ToolRateLimit: src.IntOr("JIM_TOOL_RATE_LIMIT", tools.DefaultRateLimit),
		HealthAddr:    src.StringOr("JIM_HEALTH_ADDR", ":8080"),
		Sweeper: memory.SweeperConfig{
			Schedule:      src.StringOr("JIM_SWEEP_SCHEDULE", ""),
			RetentionDays: src.IntOr("JIM_RETENTION_DAYS", memory.DefaultRetentionDays),
			GuardSchedule: src.StringOr("JIM_GUARD_SWEEP_SCHEDULE", ""),
		},
		Search: tools.GoogleSearchConfig{
			APIKey:   src.StringOr("GOOGLE_API_KEY", ""),
			EngineID: src.StringOr("GOOGLE_CSE_ID", ""),
		},
	}

	cfg.LLM = LLMConfig{
		Provider:    strings.ToLower(src.StringOr("JIM_LLM_PROVIDER", ProviderOpenAI)),
		Model:       src.StringOr("JIM_MODEL", ""),
		MaxTokens:   src.IntOr("JIM_MAX_TOKENS", 0),
		Temperature: src.FloatOr("JIM_TEMPERATURE", 0),
		Timeout:     src.DurationOr("JIM_REPLY_TIMEOUT", 0),
	}
	switch cfg.LLM.Provider {
	case ProviderGemini:
		cfg.LLM.APIKey = src.StringOr("GEMINI_API_KEY", "")
		cfg.LLM.BaseURL = src.StringOr("GEMINI_BASE_URL", "")
	default:
		cfg.LLM.APIKey = src.StringOr("OPENAI_API_KEY", "")
		cfg.LLM.BaseURL = src.StringOr("OPENAI_BASE_URL", "")
	}

	cfg.Images = ImageConfig{
		Provider:    strings.ToLower(src.StringOr("JIM_IMAGE_PROVIDER", cfg.LLM.Provider)),
		Model:       src.StringOr("JIM_IMAGE_MODEL", ""),
		Size:        src.StringOr("JIM_IMAGE_SIZE", ""),
		AspectRatio: src.StringOr("JIM_IMAGE_ASPECT_RATIO", ""),
	}
	switch cfg.Images.Provider {
	case ProviderGemini:
		cfg.Images.APIKey = src.StringOr("GEMINI_API_KEY", "")
		cfg.Images.BaseURL = src.StringOr("GEMINI_BASE_URL", "")
	case ProviderOpenAI:
		cfg.Images.APIKey = src.StringOr("OPENAI_API_KEY", "")
		cfg.Images.BaseURL = src.StringOr("OPENAI_BASE_URL", "")
	}

	if hs := src.StringOr("MATRIX_HOMESERVER", ""); hs != "" {
		cfg.Matrix = &matrix.Config{
			Homeserver:  hs,
			UserID:      src.StringOr("MATRIX_USER_ID", ""),
			AccessToken: src.StringOr("MATRIX_ACCESS_TOKEN", ""),
			Rooms:       src.StringSliceOr("MATRIX_ROOMS", nil),
			AutoJoin:    src.BoolOr("MATRIX_AUTO_JOIN", true),
		}
	}

	if token := src.StringOr("TELEGRAM_BOT_TOKEN", ""); token != "" {
		chats, err := parseChatIDs(src.StringSliceOr("TELEGRAM_ALLOWED_CHATS", nil))
		if err != nil {
			return nil, err
		}
		cfg.Telegram = &telegram.Config{
			Token:        token,
			APIEndpoint:  src.StringOr("TELEGRAM_API_ENDPOINT", ""),
			AllowedChats: chats,
		}
	}
	return cfg, nil
}

func parseChatIDs(raw []string) ([]int64, error) {
	ids := make([]int64, 0, len(raw))
	for _, r := range raw {
		id, err := strconv.ParseInt(r, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("app: TELEGRAM_ALLOWED_CHATS: %q is not a chat id", r)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
