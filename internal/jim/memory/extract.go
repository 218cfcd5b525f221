package memory

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"
)

// maxFactContent bounds the message text copied into an extracted fact.
const maxFactContent = 500

var (
	nameRe     = regexp.MustCompile(`\bmy name is\s+([\p{L}'\-]+)`)
	ageRe      = regexp.MustCompile(`(?:\bi am|\bi'm|\bage)[\s:]*(\d{1,2})`)
	locationRe = regexp.MustCompile(`\b(?:i live in|from|located in)\b`)
	interestRe = regexp.MustCompile(`\b(?:i like|i love|i enjoy|favorite|favourite|hobby|hobbies)\b`)
	moodRe     = regexp.MustCompile(`\b(?:i feel|i'm feeling|mood|sad|happy|angry|excited)\b`)
)

// ExtractCandidateFacts scans a message for self-disclosed information and
// returns fact drafts for the caller to store. It is a keyword heuristic:
// every draft is an unconfirmed fact and never touches the profile fields.
func ExtractCandidateFacts(userID, text string) []FactDraft {
	lower := strings.ToLower(text)
	source := truncate(text, maxFactContent)
	draft := func(category, title, content string, importance int, tag string) FactDraft {
		return FactDraft{
			UserID:        userID,
			Category:      category,
			Title:         title,
			Content:       content,
			Importance:    importance,
			SourceMessage: source,
			Tags:          []string{"extracted", tag},
		}
	}

	var out []FactDraft
	if m := nameRe.FindStringSubmatch(lower); m != nil {
		out = append(out, draft(CategoryPersonalInfo, "Real Name",
			fmt.Sprintf("User's real name is %s", m[1]), 8, "name"))
	}
	if m := ageRe.FindStringSubmatch(lower); m != nil {
		out = append(out, draft(CategoryPersonalInfo, "Age",
			fmt.Sprintf("User is %s years old", m[1]), 7, "age"))
	}
	if locationRe.MatchString(lower) {
		out = append(out, draft(CategoryPersonalInfo, "Location Mentioned",
			"User mentioned location: "+source, 6, "location"))
	}
	if interestRe.MatchString(lower) {
		out = append(out, draft(CategoryInterest, "Interest/Preference",
			"User expressed interest: "+source, 5, "interest"))
	}
	if moodRe.MatchString(lower) {
		out = append(out, draft(CategoryMood, "Emotional State",
			"User's mood/feeling: "+source, 4, "mood"))
	}
	return out
}

// maxInterestWords bounds how much of a phrase is kept as an interest.
const maxInterestWords = 4

var (
	likesRe    = regexp.MustCompile(`\b(?:i like|i love|i enjoy|i'm into|im into)\s+([\p{L}\p{N}' \-]+)`)
	favoriteRe = regexp.MustCompile(`\bmy (?:favou?rite (game|song|band|artist|music)|hobby) is\s+([\p{L}\p{N}' \-]+)`)

	gamesRe = regexp.MustCompile(`\b(?:game|games|gaming|playing)\b`)
	musicRe = regexp.MustCompile(`\b(?:music|song|songs|band|artist|listening to)\b`)

	interestLeadIns = []string{"playing ", "listening to ", "to play ", "to listen to ", "the "}

	// Pronoun objects say nothing about the user: "i like it", "i love you".
	notInterests = map[string]bool{
		"it": true, "that": true, "this": true, "you": true, "u": true, "ya": true,
		"them": true, "him": true, "her": true, "me": true, "when": true, "how": true,
	}
)

// Interest is a named interest and the profile list it belongs to.
type Interest struct {
	Name     string
	Category string
}

// ExtractInterests picks short interest phrases out of "i like X" and
// "my favorite game is X" style sentences.
func ExtractInterests(text string) []Interest {
	lower := strings.ToLower(text)
	var out []Interest
	seen := map[string]bool{}
	add := func(name, category string) {
		name = interestName(name)
		if name == "" || seen[name] {
			return
		}
		seen[name] = true
		out = append(out, Interest{Name: name, Category: category})
	}

	for _, m := range favoriteRe.FindAllStringSubmatch(lower, -1) {
		switch m[1] {
		case "game":
			add(m[2], InterestGames)
		case "song", "band", "artist", "music":
			add(m[2], InterestMusic)
		default:
			add(m[2], InterestHobbies)
		}
	}
	for _, m := range likesRe.FindAllStringSubmatch(lower, -1) {
		switch {
		case gamesRe.MatchString(m[1]):
			add(m[1], InterestGames)
		case musicRe.MatchString(m[1]):
			add(m[1], InterestMusic)
		default:
			add(m[1], InterestGeneral)
		}
	}
	return out
}

func interestName(phrase string) string {
	phrase = strings.TrimSpace(phrase)
	for _, lead := range interestLeadIns {
		phrase = strings.TrimPrefix(phrase, lead)
	}
	words := strings.Fields(phrase)
	if len(words) > maxInterestWords {
		words = words[:maxInterestWords]
	}
	// Conjunctions end the phrase: "i love jazz and my cat".
	for i, w := range words {
		if w == "and" || w == "but" || w == "or" {
			words = words[:i]
			break
		}
	}
	name := strings.Trim(strings.Join(words, " "), "'- ")
	if len(words) > 0 && notInterests[words[0]] {
		return ""
	}
	return name
}

// Mood labels produced by DetectMood.
const (
	MoodHappy   = "happy"
	MoodExcited = "excited"
	MoodSad     = "sad"
	MoodAngry   = "angry"
	MoodAnxious = "anxious"
	MoodTired   = "tired"
)

// moodLexicon is ordered; on equal scores the earlier mood wins.
var moodLexicon = []struct {
	mood string
	re   *regexp.Regexp
}{
	{MoodAngry, regexp.MustCompile(`\b(?:angry|mad|pissed|furious|annoyed|hate|rage|raging)\b`)},
	{MoodSad, regexp.MustCompile(`\b(?:sad|depressed|down bad|upset|lonely|crying|cried|miserable|heartbroken)\b`)},
	{MoodAnxious, regexp.MustCompile(`\b(?:anxious|nervous|worried|stressed|scared|panicking)\b`)},
	{MoodTired, regexp.MustCompile(`\b(?:tired|exhausted|sleepy|drained|burnt out|burned out)\b`)},
	{MoodExcited, regexp.MustCompile(`\b(?:excited|hyped|pumped|stoked|can't wait|cant wait|lets go|let's go)\b`)},
	{MoodHappy, regexp.MustCompile(`\b(?:happy|glad|great|awesome|amazing|love|lol|lmao|haha)\b`)},
}

// DetectMood scores the message against a small emotion lexicon and
// returns the best-scoring mood label, or "" when nothing matched.
func DetectMood(text string) string {
	lower := strings.ToLower(text)
	best, bestScore := "", 0
	for _, entry := range moodLexicon {
		if score := len(entry.re.FindAllStringIndex(lower, -1)); score > bestScore {
			best, bestScore = entry.mood, score
		}
	}
	return best
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
