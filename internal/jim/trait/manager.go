package trait

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/bdobrica/Jim/internal/jim/config"
)

// ConfigKey is the config store key holding the persisted profile.
const ConfigKey = "personality.profile"

//go:embed profile.schema.json
var profileSchemaJSON string

var profileSchema = jsonschema.MustCompileString("profile.schema.json", profileSchemaJSON)

// Validate checks a persisted profile blob against the profile schema.
func Validate(raw []byte) error {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var doc any
	if err := dec.Decode(&doc); err != nil {
		return fmt.Errorf("trait: decode profile: %w", err)
	}
	if err := profileSchema.Validate(doc); err != nil {
		return fmt.Errorf("trait: invalid profile: %w", err)
	}
	return nil
}

// Manager owns the active Profile. Reads are cheap copies; every mutation is
// written to the config store before it becomes visible, so a failed write
// leaves both the store and the in-memory profile unchanged.
type Manager struct {
	mu      sync.RWMutex
	store   config.Store
	profile Profile
	logger  *slog.Logger
}

// NewManager loads the persisted profile from store. When none exists, or
// the stored blob fails validation, the named fallback preset is applied and
// persisted.
func NewManager(ctx context.Context, store config.Store, fallback string, logger *slog.Logger) (*Manager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if fallback == "" {
		fallback = DefaultPreset
	}
	m := &Manager{store: store, logger: logger}

	raw, err := store.Get(ctx, ConfigKey)
	switch {
	case errors.Is(err, config.ErrNotFound):
		logger.Info("personality: no stored profile, applying preset", "preset", fallback)
		return m, m.ApplyPreset(ctx, fallback)
	case err != nil:
		return nil, fmt.Errorf("trait: load profile: %w", err)
	}

	if err := Validate([]byte(raw)); err != nil {
		logger.Warn("personality: stored profile rejected, applying preset", "preset", fallback, "err", err)
		return m, m.ApplyPreset(ctx, fallback)
	}
	var p Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return nil, fmt.Errorf("trait: decode profile: %w", err)
	}
	m.profile = p
	logger.Info("personality: loaded profile", "preset", p.Preset)
	return m, nil
}

// Profile returns a copy of the active profile.
func (m *Manager) Profile() Profile {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.profile
}

// SystemPrompt compiles the active profile.
func (m *Manager) SystemPrompt(name string) string {
	return CompileAs(name, m.Profile())
}

// ApplyPreset replaces every dial with the named preset's values.
func (m *Manager) ApplyPreset(ctx context.Context, name string) error {
	p, err := Preset(name)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.persist(ctx, p); err != nil {
		return err
	}
	m.profile = p
	m.logger.Info("personality: applied preset", "preset", p.Preset)
	return nil
}

// SetTrait clamps value into range, stores it in the named dial and marks the
// profile as custom. It returns the stored value.
func (m *Manager) SetTrait(ctx context.Context, name string, value int) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.profile
	stored, err := next.Traits.Set(name, value)
	if err != nil {
		return 0, err
	}
	next.Preset = CustomPreset
	if err := m.persist(ctx, next); err != nil {
		return 0, err
	}
	m.profile = next
	m.logger.Info("personality: trait updated", "trait", NormaliseName(name), "value", stored)
	return stored, nil
}

func (m *Manager) persist(ctx context.Context, p Profile) error {
	if err := config.SaveJSON(ctx, m.store, ConfigKey, p); err != nil {
		return fmt.Errorf("trait: persist profile: %w", err)
	}
	return nil
}

var traitLabels = map[string]string{
	"aggression":     "Aggression",
	"sarcasm":        "Sarcasm",
	"energy":         "Energy",
	"profanity":      "Profanity",
	"helpfulness":    "Helpfulness",
	"humor":          "Humor",
	"empathy":        "Empathy",
	"roasting":       "Roasting",
	"formality":      "Formality",
	"emoji_usage":    "Emoji Use",
	"slang_usage":    "Slang",
	"attention_span": "Focus",
	"mood_stability": "Mood Stability",
	"respect_level":  "Respect",
}

// Describe renders the profile as a short markdown listing.
func Describe(p Profile) string {
	var b strings.Builder
	label := p.Preset
	if label != "" {
		label = strings.ToUpper(label[:1]) + label[1:]
	}
	fmt.Fprintf(&b, "**Current Personality: %s**\n", label)
	for i, n := range Names {
		v, _ := p.Traits.Get(n)
		fmt.Fprintf(&b, "%s: %d/10", traitLabels[n], v)
		if i%3 == 2 || i == len(Names)-1 {
			b.WriteByte('\n')
		} else {
			b.WriteString(" | ")
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
