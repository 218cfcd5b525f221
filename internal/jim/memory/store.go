package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bdobrica/Jim/internal/jim/store"
)

// timeLayout is fixed-width so that stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

const (
	defaultFactLimit   = 20
	defaultSearchLimit = 10
)

// Config configures a Store.
type Config struct {
	// OwnerID is the platform user id of the bot's creator. A profile created
	// for this id is flagged IsCreator.
	OwnerID string

	// Logger receives storage warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Store is the SQLite-backed memory store. All methods are safe for
// concurrent use; multi-row mutations run in a single transaction.
type Store struct {
	db      *store.Store
	ownerID string
	logger  *slog.Logger

	now   func() time.Time
	newID func() string
}

// New creates a Store on top of the application database. The tables are
// created by the store package's migrations.
func New(db *store.Store, cfg Config) *Store {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:      db,
		ownerID: cfg.OwnerID,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *Store) stamp() (time.Time, string) {
	now := s.now().UTC()
	return now, now.Format(timeLayout)
}

// ---------------------------------------------------------------------------
// Profiles
// ---------------------------------------------------------------------------

const profileColumns = `user_id, username, display_name, real_name, age, location, timezone,
	interests, favorite_games, favorite_music, hobbies,
	personality_notes, communication_style, mood_patterns,
	first_met, last_interaction, interaction_count, trust_level,
	is_creator, is_friend, is_banned`

func scanProfile(row rowScanner) (*UserProfile, error) {
	var (
		p                                UserProfile
		interests, games, music, hobbies string
		moods, firstMet, lastInteraction string
		isCreator, isFriend, isBanned    int
	)
	err := row.Scan(
		&p.UserID, &p.Username, &p.DisplayName, &p.RealName, &p.Age, &p.Location, &p.Timezone,
		&interests, &games, &music, &hobbies,
		&p.PersonalityNotes, &p.CommunicationStyle, &moods,
		&firstMet, &lastInteraction, &p.InteractionCount, &p.TrustLevel,
		&isCreator, &isFriend, &isBanned,
	)
	if err != nil {
		return nil, err
	}
	p.Interests = decodeList(interests)
	p.FavoriteGames = decodeList(games)
	p.FavoriteMusic = decodeList(music)
	p.Hobbies = decodeList(hobbies)
	if moods != "" {
		if err := json.Unmarshal([]byte(moods), &p.MoodPatterns); err != nil {
			slog.Warn("memory: discarding malformed mood history", "user", p.UserID, "err", err)
			p.MoodPatterns = nil
		}
	}
	if p.MoodPatterns == nil {
		p.MoodPatterns = map[string]string{}
	}
	p.FirstMet = parseTime(firstMet)
	p.LastInteraction = parseTime(lastInteraction)
	p.IsCreator = isCreator != 0
	p.IsFriend = isFriend != 0
	p.IsBanned = isBanned != 0
	return &p, nil
}

func getProfile(ctx context.Context, q queryer, userID string) (*UserProfile, error) {
	p, err := scanProfile(q.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM user_profiles WHERE user_id = ?`, userID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

func (s *Store) insertProfile(ctx context.Context, q queryer, userID, username, displayName string, count int) (*UserProfile, error) {
	now, ts := s.stamp()
	p := &UserProfile{
		UserID:           userID,
		Username:         username,
		DisplayName:      displayName,
		MoodPatterns:     map[string]string{},
		FirstMet:         now,
		LastInteraction:  now,
		InteractionCount: count,
		TrustLevel:       0.5,
		IsCreator:        s.ownerID != "" && userID == s.ownerID,
	}
	_, err := q.ExecContext(ctx, `
		INSERT INTO user_profiles
			(user_id, username, display_name, first_met, last_interaction,
			 interaction_count, trust_level, is_creator, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.UserID, p.Username, p.DisplayName, ts, ts,
		p.InteractionCount, p.TrustLevel, boolInt(p.IsCreator), ts,
	)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// GetOrCreateProfile returns the user's profile, inserting an empty one when
// absent. It never changes the interaction counters of an existing profile.
func (s *Store) GetOrCreateProfile(ctx context.Context, userID, username, displayName string) (*UserProfile, error) {
	if userID == "" {
		return nil, fmt.Errorf("memory: get profile: empty user id")
	}
	var out *UserProfile
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		p, err := getProfile(ctx, tx, userID)
		if errors.Is(err, ErrNotFound) {
			p, err = s.insertProfile(ctx, tx, userID, username, displayName, 0)
		}
		out = p
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("memory: get profile: %w", err)
	}
	return out, nil
}

// TouchProfile records an interaction: the profile is created with a count
// of one when absent, otherwise its counter and last-interaction time move
// forward and non-empty names are refreshed.
func (s *Store) TouchProfile(ctx context.Context, userID, username, displayName string) (*UserProfile, error) {
	if userID == "" {
		return nil, fmt.Errorf("memory: touch profile: empty user id")
	}
	var out *UserProfile
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		_, err := getProfile(ctx, tx, userID)
		if errors.Is(err, ErrNotFound) {
			out, err = s.insertProfile(ctx, tx, userID, username, displayName, 1)
			return err
		}
		if err != nil {
			return err
		}
		_, ts := s.stamp()
		if _, err := tx.ExecContext(ctx, `
			UPDATE user_profiles SET
				interaction_count = interaction_count + 1,
				last_interaction  = ?,
				username          = COALESCE(NULLIF(?, ''), username),
				display_name      = COALESCE(NULLIF(?, ''), display_name),
				updated_at        = ?
			WHERE user_id = ?`,
			ts, username, displayName, ts, userID,
		); err != nil {
			return err
		}
		out, err = getProfile(ctx, tx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("memory: touch profile: %w", err)
	}
	return out, nil
}

// UpdatePersonality sets the personality notes and communication style
// (empty values are left alone) and records mood for today, keeping only
// the trailing MoodHistoryDays of mood history.
func (s *Store) UpdatePersonality(ctx context.Context, userID, notes, style, mood string) error {
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		p, err := getProfile(ctx, tx, userID)
		if err != nil {
			return err
		}
		if notes != "" {
			p.PersonalityNotes = notes
		}
		if style != "" {
			p.CommunicationStyle = style
		}
		now, ts := s.stamp()
		if mood != "" {
			p.MoodPatterns[now.Format(dateLayout)] = mood
		}
		trimMoods(p.MoodPatterns, now)
		moods, err := json.Marshal(p.MoodPatterns)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE user_profiles SET
				personality_notes   = ?,
				communication_style = ?,
				mood_patterns       = ?,
				updated_at          = ?
			WHERE user_id = ?`,
			p.PersonalityNotes, p.CommunicationStyle, string(moods), ts, userID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("memory: update personality: %w", err)
	}
	return nil
}

var interestColumns = map[string]string{
	InterestGeneral: "interests",
	InterestGames:   "favorite_games",
	InterestMusic:   "favorite_music",
	InterestHobbies: "hobbies",
}

// AddInterest appends interest to the named list (general, games, music,
// hobbies; anything else is general). Case-insensitive duplicates are
// ignored.
func (s *Store) AddInterest(ctx context.Context, userID, interest, category string) error {
	interest = strings.TrimSpace(interest)
	if interest == "" {
		return fmt.Errorf("memory: add interest: empty interest")
	}
	column, ok := interestColumns[strings.ToLower(category)]
	if !ok {
		column = interestColumns[InterestGeneral]
	}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx,
			`SELECT `+column+` FROM user_profiles WHERE user_id = ?`, userID,
		).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		list := decodeList(raw)
		for _, existing := range list {
			if strings.EqualFold(existing, interest) {
				return nil
			}
		}
		encoded, err := json.Marshal(append(list, interest))
		if err != nil {
			return err
		}
		_, ts := s.stamp()
		_, err = tx.ExecContext(ctx,
			`UPDATE user_profiles SET `+column+` = ?, updated_at = ? WHERE user_id = ?`,
			string(encoded), ts, userID,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("memory: add interest: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Facts
// ---------------------------------------------------------------------------

const factColumns = `id, user_id, category, title, content, importance, source_message,
	tags, confirmed, created_at, last_referenced, reference_count`

func scanFact(row rowScanner) (MemoryFact, error) {
	var (
		f                   MemoryFact
		tags                string
		confirmed           int
		created, referenced string
	)
	err := row.Scan(&f.ID, &f.UserID, &f.Category, &f.Title, &f.Content, &f.Importance,
		&f.SourceMessage, &tags, &confirmed, &created, &referenced, &f.ReferenceCount)
	if err != nil {
		return MemoryFact{}, err
	}
	f.Tags = decodeList(tags)
	f.Confirmed = confirmed != 0
	f.CreatedAt = parseTime(created)
	f.LastReferenced = parseTime(referenced)
	return f, nil
}

func (s *Store) queryFacts(ctx context.Context, q queryer, query string, args ...any) ([]MemoryFact, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var facts []MemoryFact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			s.logger.Warn("memory: skip malformed fact row", "err", err)
			continue
		}
		facts = append(facts, f)
	}
	return facts, rows.Err()
}

// AddMemory inserts a fact. Importance is clamped to 1..10, tags are
// normalised and the category defaults to "fact". No deduplication is done.
func (s *Store) AddMemory(ctx context.Context, d FactDraft) (*MemoryFact, error) {
	if d.UserID == "" {
		return nil, fmt.Errorf("memory: add memory: empty user id")
	}
	if strings.TrimSpace(d.Content) == "" {
		return nil, fmt.Errorf("memory: add memory: empty content")
	}
	now, ts := s.stamp()
	f := &MemoryFact{
		ID:             s.newID(),
		UserID:         d.UserID,
		Category:       d.Category,
		Title:          d.Title,
		Content:        d.Content,
		Importance:     clampImportance(d.Importance),
		SourceMessage:  d.SourceMessage,
		Tags:           NormaliseTags(d.Tags),
		Confirmed:      d.Confirmed,
		CreatedAt:      now,
		LastReferenced: now,
	}
	if f.Category == "" {
		f.Category = CategoryFact
	}
	tags, err := json.Marshal(f.Tags)
	if err != nil {
		return nil, fmt.Errorf("memory: add memory: encode tags: %w", err)
	}
	_, err = s.db.DB().ExecContext(ctx, `
		INSERT INTO memory_facts (`+factColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0)`,
		f.ID, f.UserID, f.Category, f.Title, f.Content, f.Importance, f.SourceMessage,
		string(tags), boolInt(f.Confirmed), ts, ts,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: add memory: %w", err)
	}
	return f, nil
}

// GetMemories returns the user's facts ranked by importance then recency of
// reference, optionally filtered by category. Every returned fact has its
// reference count and last-referenced time bumped in the same transaction.
func (s *Store) GetMemories(ctx context.Context, userID, category string, limit int) ([]MemoryFact, error) {
	if limit <= 0 {
		limit = defaultFactLimit
	}
	query := `SELECT ` + factColumns + ` FROM memory_facts WHERE user_id = ?`
	args := []any{userID}
	if category != "" {
		query += ` AND category = ?`
		args = append(args, category)
	}
	query += ` ORDER BY importance DESC, last_referenced DESC LIMIT ?`
	args = append(args, limit)

	var facts []MemoryFact
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		var err error
		facts, err = s.queryFacts(ctx, tx, query, args...)
		if err != nil {
			return err
		}
		now, ts := s.stamp()
		for i := range facts {
			if _, err := tx.ExecContext(ctx, `
				UPDATE memory_facts
				SET reference_count = reference_count + 1, last_referenced = ?
				WHERE id = ?`, ts, facts[i].ID,
			); err != nil {
				return err
			}
			facts[i].ReferenceCount++
			facts[i].LastReferenced = now
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("memory: get memories: %w", err)
	}
	return facts, nil
}

// SearchMemories does a case-insensitive substring match of term over a
// user's fact titles, contents and tags, ranked by importance. Case folding
// uses Unicode rules; SQLite's lower() only folds ASCII, so matching is done
// here rather than in SQL.
func (s *Store) SearchMemories(ctx context.Context, userID, term string, limit int) ([]MemoryFact, error) {
	needle := strings.ToLower(strings.TrimSpace(term))
	if needle == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = defaultSearchLimit
	}
	facts, err := s.queryFacts(ctx, s.db.DB(), `
		SELECT `+factColumns+` FROM memory_facts
		WHERE user_id = ?
		ORDER BY importance DESC, last_referenced DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("memory: search memories: %w", err)
	}
	var hits []MemoryFact
	for _, f := range facts {
		if !f.matches(needle) {
			continue
		}
		hits = append(hits, f)
		if len(hits) == limit {
			break
		}
	}
	return hits, nil
}

// matches reports whether the lower-cased needle occurs in the fact's
// title, content or any tag.
func (f MemoryFact) matches(needle string) bool {
	if strings.Contains(strings.ToLower(f.Title), needle) ||
		strings.Contains(strings.ToLower(f.Content), needle) {
		return true
	}
	for _, tag := range f.Tags {
		if strings.Contains(strings.ToLower(tag), needle) {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Conversation contexts
// ---------------------------------------------------------------------------

func getContext(ctx context.Context, q queryer, userID, channelID string) (*ConversationContext, error) {
	var (
		c                ConversationContext
		exchanges, stamp string
	)
	err := q.QueryRowContext(ctx, `
		SELECT user_id, channel_id, guild_id, topic, mood, summary, recent_exchanges, last_updated
		FROM conversation_contexts WHERE user_id = ? AND channel_id = ?`,
		userID, channelID,
	).Scan(&c.UserID, &c.ChannelID, &c.GuildID, &c.Topic, &c.Mood, &c.Summary, &exchanges, &stamp)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if exchanges != "" {
		if err := json.Unmarshal([]byte(exchanges), &c.RecentExchanges); err != nil {
			return nil, fmt.Errorf("decode recent exchanges: %w", err)
		}
	}
	c.LastUpdated = parseTime(stamp)
	return &c, nil
}

// GetContext returns the conversation context for (userID, channelID), or
// ErrNotFound.
func (s *Store) GetContext(ctx context.Context, userID, channelID string) (*ConversationContext, error) {
	c, err := getContext(ctx, s.db.DB(), userID, channelID)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("memory: get context: %w", err)
	}
	return c, nil
}

// UpdateContext creates or updates a conversation context. A supplied
// exchange is appended to the ring, evicting the oldest entries past
// MaxExchanges.
func (s *Store) UpdateContext(ctx context.Context, u ContextUpdate) error {
	if u.UserID == "" || u.ChannelID == "" {
		return fmt.Errorf("memory: update context: user and channel are required")
	}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		c, err := getContext(ctx, tx, u.UserID, u.ChannelID)
		if errors.Is(err, ErrNotFound) {
			c = &ConversationContext{UserID: u.UserID, ChannelID: u.ChannelID}
		} else if err != nil {
			return err
		}
		if u.GuildID != "" {
			c.GuildID = u.GuildID
		}
		if u.Topic != "" {
			c.Topic = u.Topic
		}
		if u.Mood != "" {
			c.Mood = u.Mood
		}
		if u.Summary != "" {
			c.Summary = u.Summary
		}
		now, ts := s.stamp()
		if u.Exchange != nil {
			ex := *u.Exchange
			if ex.Timestamp.IsZero() {
				ex.Timestamp = now
			}
			c.RecentExchanges = appendExchange(c.RecentExchanges, ex)
		}
		if c.RecentExchanges == nil {
			c.RecentExchanges = []Exchange{}
		}
		exchanges, err := json.Marshal(c.RecentExchanges)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO conversation_contexts
				(user_id, channel_id, guild_id, topic, mood, summary, recent_exchanges, last_updated)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(user_id, channel_id) DO UPDATE SET
				guild_id         = excluded.guild_id,
				topic            = excluded.topic,
				mood             = excluded.mood,
				summary          = excluded.summary,
				recent_exchanges = excluded.recent_exchanges,
				last_updated     = excluded.last_updated`,
			c.UserID, c.ChannelID, c.GuildID, c.Topic, c.Mood, c.Summary, string(exchanges), ts,
		)
		return err
	})
	if err != nil {
		return fmt.Errorf("memory: update context: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Summaries and lifecycle
// ---------------------------------------------------------------------------

// Summarize returns the user's profile and top facts. It never fails: a
// missing profile or a storage error yields a summary with Found == false,
// and storage errors are logged.
func (s *Store) Summarize(ctx context.Context, userID string) ProfileSummary {
	p, err := getProfile(ctx, s.db.DB(), userID)
	if errors.Is(err, ErrNotFound) {
		return ProfileSummary{}
	}
	if err != nil {
		s.logger.Error("memory: summarize profile", "user", userID, "err", err)
		return ProfileSummary{}
	}
	facts, err := s.queryFacts(ctx, s.db.DB(), `
		SELECT `+factColumns+` FROM memory_facts
		WHERE user_id = ?
		ORDER BY importance DESC, last_referenced DESC
		LIMIT ?`, userID, SummaryFacts)
	if err != nil {
		s.logger.Error("memory: summarize facts", "user", userID, "err", err)
		return ProfileSummary{}
	}
	return ProfileSummary{Found: true, Profile: *p, Facts: facts}
}

// Forget removes the user's profile, facts and contexts in one transaction.
func (s *Store) Forget(ctx context.Context, userID string) (ForgetReport, error) {
	var report ForgetReport
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		for _, step := range []struct {
			query string
			count *int64
		}{
			{`DELETE FROM memory_facts WHERE user_id = ?`, &report.Facts},
			{`DELETE FROM conversation_contexts WHERE user_id = ?`, &report.Contexts},
			{`DELETE FROM user_profiles WHERE user_id = ?`, &report.Profiles},
		} {
			res, err := tx.ExecContext(ctx, step.query, userID)
			if err != nil {
				return err
			}
			if *step.count, err = res.RowsAffected(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return ForgetReport{}, fmt.Errorf("memory: forget: %w", err)
	}
	s.logger.Info("memory: forgot user",
		"user", userID,
		"profiles", report.Profiles,
		"facts", report.Facts,
		"contexts", report.Contexts,
	)
	return report, nil
}

// Prune deletes conversation contexts not updated within retentionDays and
// low-value facts (importance below 5, referenced fewer than twice) created
// before the same cutoff. Profiles are never pruned.
func (s *Store) Prune(ctx context.Context, retentionDays int) (PruneReport, error) {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	cutoff := s.now().UTC().AddDate(0, 0, -retentionDays)
	ts := cutoff.Format(timeLayout)
	report := PruneReport{Cutoff: cutoff}
	err := s.db.InTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM conversation_contexts WHERE last_updated < ?`, ts)
		if err != nil {
			return err
		}
		if report.Contexts, err = res.RowsAffected(); err != nil {
			return err
		}
		res, err = tx.ExecContext(ctx, `
			DELETE FROM memory_facts
			WHERE importance < ? AND reference_count < ? AND created_at < ?`,
			pruneImportanceBelow, pruneMinReferences, ts)
		if err != nil {
			return err
		}
		report.Facts, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return PruneReport{}, fmt.Errorf("memory: prune: %w", err)
	}
	return report, nil
}

// Stats counts stored rows.
func (s *Store) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	for _, c := range []struct {
		table string
		dst   *int64
	}{
		{"user_profiles", &st.Profiles},
		{"memory_facts", &st.Facts},
		{"conversation_contexts", &st.Contexts},
	} {
		if err := s.db.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(c.dst); err != nil {
			return Stats{}, fmt.Errorf("memory: stats %s: %w", c.table, err)
		}
	}
	return st, nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func decodeList(raw string) []string {
	var out []string
	if raw == "" {
		return []string{}
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return []string{}
	}
	return out
}

func parseTime(raw string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return t
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
