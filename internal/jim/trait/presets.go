package trait

import (
	"fmt"
	"sort"
	"strings"
)

// DefaultPreset is applied when no profile has been persisted yet.
const DefaultPreset = "genz"

var presets = map[string]Traits{
	"chill": {
		Aggression: 2, Sarcasm: 4, Energy: 3, Profanity: 5,
		Helpfulness: 8, Humor: 6, Empathy: 8, Roasting: 3,
		Formality: 3, EmojiUsage: 5, SlangUsage: 6,
		AttentionSpan: 7, MoodStability: 8, RespectLevel: 8,
	},
	"aggressive": {
		Aggression: 9, Sarcasm: 8, Energy: 7, Profanity: 9,
		Helpfulness: 6, Humor: 7, Empathy: 4, Roasting: 9,
		Formality: 1, EmojiUsage: 6, SlangUsage: 9,
		AttentionSpan: 5, MoodStability: 3, RespectLevel: 4,
	},
	"wholesome": {
		Aggression: 1, Sarcasm: 2, Energy: 6, Profanity: 2,
		Helpfulness: 10, Humor: 7, Empathy: 9, Roasting: 2,
		Formality: 4, EmojiUsage: 8, SlangUsage: 4,
		AttentionSpan: 8, MoodStability: 8, RespectLevel: 9,
	},
	"sarcastic": {
		Aggression: 5, Sarcasm: 10, Energy: 5, Profanity: 7,
		Helpfulness: 7, Humor: 9, Empathy: 5, Roasting: 8,
		Formality: 2, EmojiUsage: 6, SlangUsage: 7,
		AttentionSpan: 6, MoodStability: 6, RespectLevel: 6,
	},
	"hyped": {
		Aggression: 4, Sarcasm: 5, Energy: 10, Profanity: 7,
		Helpfulness: 8, Humor: 9, Empathy: 7, Roasting: 5,
		Formality: 1, EmojiUsage: 10, SlangUsage: 8,
		AttentionSpan: 4, MoodStability: 4, RespectLevel: 7,
	},
	"professional": {
		Aggression: 2, Sarcasm: 3, Energy: 5, Profanity: 1,
		Helpfulness: 9, Humor: 4, Empathy: 7, Roasting: 2,
		Formality: 8, EmojiUsage: 2, SlangUsage: 2,
		AttentionSpan: 9, MoodStability: 8, RespectLevel: 9,
	},
	"gamer": {
		Aggression: 6, Sarcasm: 8, Energy: 8, Profanity: 8,
		Helpfulness: 7, Humor: 8, Empathy: 6, Roasting: 8,
		Formality: 1, EmojiUsage: 7, SlangUsage: 9,
		AttentionSpan: 5, MoodStability: 5, RespectLevel: 6,
	},
	"genz": {
		Aggression: 5, Sarcasm: 8, Energy: 7, Profanity: 6,
		Helpfulness: 6, Humor: 9, Empathy: 5, Roasting: 7,
		Formality: 1, EmojiUsage: 6, SlangUsage: 10,
		AttentionSpan: 3, MoodStability: 4, RespectLevel: 5,
	},
	"helpful": {
		Aggression: 2, Sarcasm: 3, Energy: 5, Profanity: 2,
		Helpfulness: 10, Humor: 4, Empathy: 7, Roasting: 1,
		Formality: 2, EmojiUsage: 1, SlangUsage: 8,
		AttentionSpan: 8, MoodStability: 8, RespectLevel: 9,
	},
}

// Preset returns the profile for a named preset.
func Preset(name string) (Profile, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	t, ok := presets[key]
	if !ok {
		return Profile{}, fmt.Errorf("%w: %q (choose one of %s)", ErrUnknownPreset, name, strings.Join(PresetNames(), ", "))
	}
	return Profile{Preset: key, Traits: t}, nil
}

// PresetNames returns the preset names in alphabetical order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for n := range presets {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Default returns the DefaultPreset profile.
func Default() Profile {
	p, _ := Preset(DefaultPreset)
	return p
}
