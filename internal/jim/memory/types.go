// Package memory persists what the bot knows about the people it talks to:
// a profile per user, scored memory facts, and a per-channel conversation
// context holding a bounded ring of recent exchanges.
package memory

import (
	"errors"
	"sort"
	"strings"
	"time"
)

// ErrNotFound is returned when a requested profile or context does not exist.
var ErrNotFound = errors.New("memory: not found")

const (
	// MaxExchanges bounds ConversationContext.RecentExchanges.
	MaxExchanges = 10

	// MaxTags bounds the tag set of a single fact.
	MaxTags = 16

	// MoodHistoryDays is how many trailing days of mood labels a profile keeps.
	MoodHistoryDays = 30

	// DefaultRetentionDays is the Prune cutoff used by the sweeper.
	DefaultRetentionDays = 90

	// SummaryFacts is how many facts Summarize includes.
	SummaryFacts = 10

	MinImportance = 1
	MaxImportance = 10

	// Facts below this importance and referenced fewer than
	// pruneMinReferences times are eligible for pruning.
	pruneImportanceBelow = 5
	pruneMinReferences   = 2

	dateLayout = "2006-01-02"
)

// Fact categories produced by the bot itself. Callers may use others.
const (
	CategoryFact         = "fact"
	CategoryPersonalInfo = "personal_info"
	CategoryPreference   = "preference"
	CategoryInterest     = "interest"
	CategoryMood         = "mood"
)

// Interest list names accepted by AddInterest.
const (
	InterestGeneral = "general"
	InterestGames   = "games"
	InterestMusic   = "music"
	InterestHobbies = "hobbies"
)

// UserProfile is everything remembered about one user.
type UserProfile struct {
	UserID      string
	Username    string
	DisplayName string

	RealName string
	Age      string
	Location string
	Timezone string

	Interests     []string
	FavoriteGames []string
	FavoriteMusic []string
	Hobbies       []string

	PersonalityNotes   string
	CommunicationStyle string
	// MoodPatterns maps a YYYY-MM-DD date to the last mood label seen that day.
	MoodPatterns map[string]string

	FirstMet         time.Time
	LastInteraction  time.Time
	InteractionCount int
	TrustLevel       float64

	IsCreator bool
	IsFriend  bool
	IsBanned  bool
}

// Name returns the most human name known for the user.
func (p UserProfile) Name() string {
	switch {
	case p.RealName != "":
		return p.RealName
	case p.DisplayName != "":
		return p.DisplayName
	case p.Username != "":
		return p.Username
	}
	return p.UserID
}

// MemoryFact is one remembered statement about a user.
type MemoryFact struct {
	ID             string
	UserID         string
	Category       string
	Title          string
	Content        string
	Importance     int
	SourceMessage  string
	Tags           []string
	Confirmed      bool
	CreatedAt      time.Time
	LastReferenced time.Time
	ReferenceCount int
}

// FactDraft is the input to AddMemory.
type FactDraft struct {
	UserID        string
	Category      string
	Title         string
	Content       string
	Importance    int
	SourceMessage string
	Tags          []string
	Confirmed     bool
}

// Exchange is one user message and the bot's reply to it.
type Exchange struct {
	User      string    `json:"user"`
	Bot       string    `json:"bot"`
	Timestamp time.Time `json:"timestamp"`
}

// ConversationContext is the per (user, channel) running state.
type ConversationContext struct {
	UserID          string
	ChannelID       string
	GuildID         string
	Topic           string
	Mood            string
	Summary         string
	RecentExchanges []Exchange
	LastUpdated     time.Time
}

// LastExchanges returns up to n of the most recent exchanges, oldest first.
func (c *ConversationContext) LastExchanges(n int) []Exchange {
	if c == nil || n <= 0 {
		return nil
	}
	if len(c.RecentExchanges) <= n {
		return c.RecentExchanges
	}
	return c.RecentExchanges[len(c.RecentExchanges)-n:]
}

// ContextUpdate describes an UpdateContext call. Empty strings leave the
// stored field unchanged; a nil Exchange appends nothing.
type ContextUpdate struct {
	UserID    string
	ChannelID string
	GuildID   string
	Topic     string
	Mood      string
	Summary   string
	Exchange  *Exchange
}

// ProfileSummary is the read model handed to the reply pipeline.
type ProfileSummary struct {
	// Found is false when the user has no profile (or it could not be read).
	Found   bool
	Profile UserProfile
	// Facts are the top facts by importance, at most SummaryFacts.
	Facts []MemoryFact
}

// PruneReport describes one Prune run.
type PruneReport struct {
	Cutoff   time.Time
	Contexts int64
	Facts    int64
}

// ForgetReport counts the rows removed by Forget.
type ForgetReport struct {
	Profiles int64
	Facts    int64
	Contexts int64
}

// Total is the number of rows removed.
func (r ForgetReport) Total() int64 { return r.Profiles + r.Facts + r.Contexts }

// Stats are row counts across all users.
type Stats struct {
	Profiles int64 `json:"profiles"`
	Facts    int64 `json:"facts"`
	Contexts int64 `json:"contexts"`
}

// NormaliseTags trims and lower-cases tags, drops empties and duplicates,
// and caps the result at MaxTags. Order of first appearance is kept.
func NormaliseTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
		if len(out) == MaxTags {
			break
		}
	}
	return out
}

func clampImportance(v int) int {
	if v < MinImportance {
		return MinImportance
	}
	if v > MaxImportance {
		return MaxImportance
	}
	return v
}

// appendExchange appends ex and evicts from the front past MaxExchanges.
func appendExchange(ring []Exchange, ex Exchange) []Exchange {
	ring = append(ring, ex)
	if over := len(ring) - MaxExchanges; over > 0 {
		ring = append([]Exchange(nil), ring[over:]...)
	}
	return ring
}

// trimMoods drops entries older than MoodHistoryDays before today.
func trimMoods(moods map[string]string, today time.Time) {
	cutoff := today.AddDate(0, 0, -(MoodHistoryDays - 1)).Format(dateLayout)
	for day := range moods {
		if day < cutoff {
			delete(moods, day)
		}
	}
}

// sortedMoodDays returns the mood map's dates, newest first.
func sortedMoodDays(moods map[string]string) []string {
	days := make([]string, 0, len(moods))
	for d := range moods {
		days = append(days, d)
	}
	sort.Sort(sort.Reverse(sort.StringSlice(days)))
	return days
}

// RecentMood returns the newest recorded mood label, or "".
func (s ProfileSummary) RecentMood() string {
	days := sortedMoodDays(s.Profile.MoodPatterns)
	if len(days) == 0 {
		return ""
	}
	return s.Profile.MoodPatterns[days[0]]
}

// AllInterests flattens the profile's interest lists.
func (p UserProfile) AllInterests() []string {
	var out []string
	for _, list := range [][]string{p.Interests, p.FavoriteGames, p.FavoriteMusic, p.Hobbies} {
		out = append(out, list...)
	}
	return out
}
