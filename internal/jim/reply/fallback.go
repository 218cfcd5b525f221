package reply

import (
	"math/rand/v2"

	"github.com/bdobrica/Jim/internal/jim/llm"
)

// Fixed in-character lines used instead of provider errors.
var (
	fallbacks = []string{
		"yo my brain just shit the bed, give me a sec",
		"oop my AI's having a stroke, try again",
		"nah my circuits are fucked rn, one sec",
		"lowkey my brain's being a bitch today 💀",
		"damn something broke, this is annoying af",
		"my bad, tech's being stupid as usual",
	}

	// transientFallbacks ask the user to retry; used for rate limits and
	// timeouts.
	transientFallbacks = fallbacks[:3]
)

const (
	SearchDisabled  = "nah I can't search the web rn, my search powers are disabled 😔"
	SearchNoQuery   = "yo what should I search for?"
	searchNoResults = "couldn't find anything for '%s' rn, my bad"
	searchHeader    = "found some stuff about '%s':"
)

// Fallbacks returns a copy of every fallback utterance.
func Fallbacks() []string {
	return append([]string(nil), fallbacks...)
}

// IsFallback reports whether s is one of the fallback utterances.
func IsFallback(s string) bool {
	for _, f := range fallbacks {
		if s == f {
			return true
		}
	}
	return false
}

// FallbackFor picks the utterance for a failed provider call. pick returns a
// value in [0, n); nil uses math/rand.
func FallbackFor(class llm.ErrorClass, pick func(n int) int) string {
	if pick == nil {
		pick = rand.IntN
	}
	set := fallbacks
	switch class {
	case llm.ClassRateLimit, llm.ClassTimeout:
		set = transientFallbacks
	}
	return set[pick(len(set))]
}
