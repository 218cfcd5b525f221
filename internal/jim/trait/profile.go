// Package trait models the bot's tunable personality: fourteen integer dials
// in [0,10], a table of named presets, the compiler that renders a profile
// into the model's system prompt, and the Manager that owns and persists the
// active profile.
package trait

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Min and Max bound every dial.
const (
	Min = 0
	Max = 10
)

// CustomPreset labels a profile that was edited dial by dial.
const CustomPreset = "custom"

var (
	// ErrUnknownTrait is returned for a dial name outside Names.
	ErrUnknownTrait = errors.New("trait: unknown trait")
	// ErrUnknownPreset is returned for a preset name outside the table.
	ErrUnknownPreset = errors.New("trait: unknown preset")
	// ErrInvalidValue is returned when a dial value cannot be parsed.
	ErrInvalidValue = errors.New("trait: invalid value")
)

// Traits holds the dials. Field order matches Names and the compile order.
type Traits struct {
	Aggression    int `json:"aggression"`
	Sarcasm       int `json:"sarcasm"`
	Energy        int `json:"energy"`
	Profanity     int `json:"profanity"`
	Helpfulness   int `json:"helpfulness"`
	Humor         int `json:"humor"`
	Empathy       int `json:"empathy"`
	Roasting      int `json:"roasting"`
	Formality     int `json:"formality"`
	EmojiUsage    int `json:"emoji_usage"`
	SlangUsage    int `json:"slang_usage"`
	AttentionSpan int `json:"attention_span"`
	MoodStability int `json:"mood_stability"`
	RespectLevel  int `json:"respect_level"`
}

// Profile is Traits plus the label of the preset that produced them.
type Profile struct {
	Preset string `json:"preset"`
	Traits Traits `json:"traits"`
}

// Names lists every dial in compile order.
var Names = []string{
	"aggression",
	"sarcasm",
	"energy",
	"profanity",
	"helpfulness",
	"humor",
	"empathy",
	"roasting",
	"formality",
	"emoji_usage",
	"slang_usage",
	"attention_span",
	"mood_stability",
	"respect_level",
}

func (t *Traits) field(name string) (*int, bool) {
	switch NormaliseName(name) {
	case "aggression":
		return &t.Aggression, true
	case "sarcasm":
		return &t.Sarcasm, true
	case "energy":
		return &t.Energy, true
	case "profanity":
		return &t.Profanity, true
	case "helpfulness":
		return &t.Helpfulness, true
	case "humor":
		return &t.Humor, true
	case "empathy":
		return &t.Empathy, true
	case "roasting":
		return &t.Roasting, true
	case "formality":
		return &t.Formality, true
	case "emoji_usage":
		return &t.EmojiUsage, true
	case "slang_usage":
		return &t.SlangUsage, true
	case "attention_span":
		return &t.AttentionSpan, true
	case "mood_stability":
		return &t.MoodStability, true
	case "respect_level":
		return &t.RespectLevel, true
	}
	return nil, false
}

// Get returns the value of the named dial.
func (t Traits) Get(name string) (int, error) {
	p, ok := t.field(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTrait, name)
	}
	return *p, nil
}

// Set clamps value into [Min, Max] and stores it in the named dial. It
// returns the stored value.
func (t *Traits) Set(name string, value int) (int, error) {
	p, ok := t.field(name)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownTrait, name)
	}
	*p = Clamp(value)
	return *p, nil
}

// Clamp bounds v to [Min, Max].
func Clamp(v int) int {
	if v < Min {
		return Min
	}
	if v > Max {
		return Max
	}
	return v
}

// ClampAll clamps every dial in place.
func (t *Traits) ClampAll() {
	for _, name := range Names {
		p, _ := t.field(name)
		*p = Clamp(*p)
	}
}

// NormaliseName accepts "Emoji Use", "emoji-usage" and friends. The short
// aliases "emoji", "slang", "respect" and "focus" are also recognised.
func NormaliseName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	n = strings.NewReplacer(" ", "_", "-", "_").Replace(n)
	switch n {
	case "emoji", "emoji_use", "emojis":
		return "emoji_usage"
	case "slang", "slang_use":
		return "slang_usage"
	case "respect":
		return "respect_level"
	case "focus", "attention":
		return "attention_span"
	case "mood":
		return "mood_stability"
	}
	return n
}

// ParseValue parses a dial value typed by a user.
func ParseValue(raw string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not a whole number", ErrInvalidValue, raw)
	}
	return v, nil
}
