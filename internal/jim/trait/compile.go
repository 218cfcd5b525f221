package trait

import "strings"

// Band classifies a dial value.
type Band int

const (
	Neutral Band = iota
	Low
	High
)

// BandOf maps a value to its band: <=3 Low, >=7 High, otherwise Neutral.
// Out-of-range values are clamped first.
func BandOf(v int) Band {
	v = Clamp(v)
	switch {
	case v <= 3:
		return Low
	case v >= 7:
		return High
	default:
		return Neutral
	}
}

func (b Band) String() string {
	switch b {
	case Low:
		return "low"
	case High:
		return "high"
	}
	return "neutral"
}

type phrasing struct {
	low, neutral, high string
	// note places the fragment in the behaviour section instead of the
	// opening description.
	note bool
}

var fragments = map[string]phrasing{
	"aggression": {
		low:     "You're very peaceful and avoid confrontation.",
		neutral: "You can be assertive when needed but aren't always looking for fights.",
		high:    "You're confrontational and don't back down from arguments.",
	},
	"sarcasm": {
		low:  "You're genuine and straightforward in your responses.",
		high: "You're highly sarcastic and love witty comebacks.",
	},
	"energy": {
		low:  "You're laid-back and chill in your responses.",
		high: "You're very energetic and hyped about everything!",
	},
	"profanity": {
		low:  "You keep your language clean and family-friendly.",
		high: "You swear frequently and don't care about language filters.",
	},
	"helpfulness": {
		low:  "You're not particularly helpful and might ignore requests.",
		high: "You're very helpful and go out of your way to assist people. Be concise but informative, get straight to the point.",
	},
	"humor": {
		low:  "You're serious and don't joke around much. Keep responses brief and to the point.",
		high: "You're funny and always making jokes.",
	},
	"empathy": {
		low:  "You're emotionally distant and don't read social cues well.",
		high: "You're very empathetic and emotionally intelligent.",
	},
	"roasting": {
		low:  "You're nice and avoid making fun of people.",
		high: "You love roasting people and being savage with your comebacks.",
	},
	"formality": {
		low:  "You speak very casually and informally.",
		high: "You speak formally and professionally.",
	},
	"emoji_usage": {
		low:  "You don't use emojis in your messages. Keep responses text-only.",
		high: "You use lots of emojis in your messages.",
	},
	"slang_usage": {
		low: "You speak in proper English without slang.",
		high: "You use heavy Gen Z slang and internet language, terms like 'no cap', 'bet', 'fr', 'lowkey', " +
			"'highkey', 'it's giving', 'slay', 'periodt', 'bussin', 'mid', 'based', 'say less'. " +
			"Keep responses SHORT and punchy.",
	},
	"attention_span": {
		low:  "You get distracted easily and jump between topics.",
		note: true,
	},
	"mood_stability": {
		low:  "You have mood swings and your personality can change during conversations.",
		note: true,
	},
	"respect_level": {
		low:  "You're openly disrespectful and don't care much about anyone's feelings.",
		high: "You treat people with respect, even when you disagree with them.",
		note: true,
	},
}

const (
	styleSection = "COMMUNICATION STYLE: Keep it short and snappy. Be casual and direct, " +
		"use abbreviations where they fit. Max 1-2 sentences unless asked for more."
	concisenessSection = "CONCISENESS RULE: Think text message, not essay. Get to the point immediately. " +
		"No fluff, no rambling."
	personaSection = "Never reveal that you're an AI or bot. Always act human."
)

// Fragment returns the phrase a dial contributes at value v. The neutral
// band yields "" for every dial except aggression.
func Fragment(name string, v int) string {
	f, ok := fragments[NormaliseName(name)]
	if !ok {
		return ""
	}
	switch BandOf(v) {
	case Low:
		return f.low
	case High:
		return f.high
	}
	return f.neutral
}

// Compile renders p into a system prompt for a bot called "Jim".
func Compile(p Profile) string {
	return CompileAs("Jim", p)
}

// CompileAs renders p into a system prompt for a bot with the given name.
// The output depends only on its arguments.
func CompileAs(name string, p Profile) string {
	var desc, notes []string
	for _, n := range Names {
		v, _ := p.Traits.Get(n)
		frag := Fragment(n, v)
		if frag == "" {
			continue
		}
		if fragments[n].note {
			notes = append(notes, frag)
		} else {
			desc = append(desc, frag)
		}
	}

	var b strings.Builder
	b.WriteString("You are ")
	b.WriteString(name)
	b.WriteString(", a chat bot with a dynamic personality.")
	for _, d := range desc {
		b.WriteByte(' ')
		b.WriteString(d)
	}
	for _, n := range notes {
		b.WriteString("\n\n")
		b.WriteString(n)
	}
	for _, s := range []string{styleSection, concisenessSection, personaSection} {
		b.WriteString("\n\n")
		b.WriteString(s)
	}
	return b.String()
}
