// Package matrix connects Jim to Matrix rooms through mautrix-go. It turns
// room messages into gateway.MessageEvents and implements gateway.Sender.
package matrix

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"maunium.net/go/mautrix"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Jim/internal/jim/config"
	"github.com/bdobrica/Jim/internal/jim/gateway"
)

const (
	// DefaultMaxMediaBytes caps image downloads handed to the model.
	DefaultMaxMediaBytes = 5 << 20

	typingTimeout = 30 * time.Second
	roomCacheTTL  = 10 * time.Minute
	sentEventsCap = 512
)

// Config holds Matrix connection settings.
type Config struct {
	Homeserver  string
	UserID      string
	AccessToken string
	// Rooms are joined at startup.
	Rooms []string
	// AutoJoin accepts room invites.
	AutoJoin bool
	// SyncStore persists the sync token. When nil, an in-memory store is used
	// and history replays on restart (old events are still skipped).
	SyncStore config.Store
	// MaxMediaBytes caps image downloads. Default DefaultMaxMediaBytes.
	MaxMediaBytes int
}

// Client is the Matrix gateway.
type Client struct {
	client *mautrix.Client
	cfg    Config
	self   id.UserID
	logger *slog.Logger

	wg sync.WaitGroup

	mu       sync.Mutex
	dmRooms  map[id.RoomID]cached[bool]
	names    map[id.UserID]cached[string]
	sent     map[id.EventID]struct{}
	sentRing []id.EventID
}

type cached[T any] struct {
	value T
	at    time.Time
}

var _ gateway.Sender = (*Client)(nil)
var _ gateway.MediaSender = (*Client)(nil)

// New creates a Matrix client but does not start syncing.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Homeserver == "" || cfg.UserID == "" || cfg.AccessToken == "" {
		return nil, fmt.Errorf("matrix: homeserver, user id and access token are required")
	}
	if cfg.MaxMediaBytes <= 0 {
		cfg.MaxMediaBytes = DefaultMaxMediaBytes
	}
	if logger == nil {
		logger = slog.Default()
	}
	client, err := mautrix.NewClient(cfg.Homeserver, id.UserID(cfg.UserID), cfg.AccessToken)
	if err != nil {
		return nil, fmt.Errorf("matrix: create client: %w", err)
	}
	if cfg.SyncStore != nil {
		client.Store = NewSyncStore(cfg.SyncStore)
		logger.Info("matrix sync store: using persistent store")
	} else {
		logger.Warn("matrix sync store: none configured, using in-memory store")
	}
	return &Client{
		client:  client,
		cfg:     cfg,
		self:    id.UserID(cfg.UserID),
		logger:  logger,
		dmRooms: make(map[id.RoomID]cached[bool]),
		names:   make(map[id.UserID]cached[string]),
		sent:    make(map[id.EventID]struct{}),
	}, nil
}

// Run joins the configured rooms and syncs until ctx is cancelled. Every
// message is delivered to handler on its own goroutine; Run waits for those
// goroutines before returning.
func (c *Client) Run(ctx context.Context, handler gateway.Handler) error {
	c.logger.Warn("matrix E2EE is not enabled; encrypted rooms are ignored")

	syncer, ok := c.client.Syncer.(*mautrix.DefaultSyncer)
	if !ok {
		return fmt.Errorf("matrix: unexpected syncer type %T", c.client.Syncer)
	}
	syncer.OnSync(c.client.DontProcessOldEvents)
	syncer.OnEventType(event.EventMessage, func(_ context.Context, evt *event.Event) {
		msg, ok := convert(evt, c.self)
		if !ok || msg.IsSelf {
			return
		}
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.enrich(ctx, evt, &msg)
			handler(ctx, msg)
		}()
	})
	if c.cfg.AutoJoin {
		syncer.OnEventType(event.StateMember, c.handleInvite)
	}

	for _, room := range c.cfg.Rooms {
		if err := c.joinRoom(ctx, id.RoomID(room)); err != nil {
			return fmt.Errorf("matrix: join %s: %w", room, err)
		}
	}

	syncDone := make(chan struct{})
	go func() {
		defer close(syncDone)
		c.syncLoop(ctx)
	}()

	<-ctx.Done()
	c.client.StopSync()
	<-syncDone
	c.wg.Wait()
	return nil
}

// syncLoop runs Sync with exponential back-off until ctx is cancelled.
func (c *Client) syncLoop(ctx context.Context) {
	const (
		backoffMin = 2 * time.Second
		backoffMax = 5 * time.Minute
	)
	backoff := backoffMin
	for {
		err := c.client.SyncWithContext(ctx)
		if ctx.Err() != nil {
			return
		}
		if err == nil {
			backoff = backoffMin
			continue
		}
		c.logger.Error("matrix sync stopped; reconnecting", "err", err, "backoff", backoff)
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, backoffMax)
	}
}

// SendReply sends text as a reply to replyTo. Markdown bold and inline code
// are rendered as HTML.
func (c *Client) SendReply(ctx context.Context, roomID, replyTo, text string) error {
	content := &event.MessageEventContent{
		MsgType: event.MsgText,
		Body:    text,
	}
	if hasMarkup(text) {
		content.Format = event.FormatHTML
		content.FormattedBody = markdownToHTML(text)
	}
	if replyTo != "" {
		content.RelatesTo = &event.RelatesTo{InReplyTo: &event.InReplyTo{EventID: id.EventID(replyTo)}}
	}
	resp, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content)
	if err != nil {
		return fmt.Errorf("matrix: send reply: %w", err)
	}
	c.rememberSent(resp.EventID)
	return nil
}

// SendMedia uploads media and posts it as an m.image, followed by caption as
// a reply when non-empty.
func (c *Client) SendMedia(ctx context.Context, roomID, replyTo string, media gateway.Media, caption string) error {
	if len(media.Data) == 0 {
		text := strings.TrimSpace(caption + "\n" + media.URL)
		return c.SendReply(ctx, roomID, replyTo, text)
	}
	mime := media.MIMEType
	if mime == "" {
		mime = "image/png"
	}
	up, err := c.client.UploadBytes(ctx, media.Data, mime)
	if err != nil {
		return fmt.Errorf("matrix: upload media: %w", err)
	}
	content := &event.MessageEventContent{
		MsgType: event.MsgImage,
		Body:    "image" + extensionFor(mime),
		URL:     up.ContentURI.CUString(),
		Info:    &event.FileInfo{MimeType: mime, Size: len(media.Data)},
	}
	if replyTo != "" {
		content.RelatesTo = &event.RelatesTo{InReplyTo: &event.InReplyTo{EventID: id.EventID(replyTo)}}
	}
	resp, err := c.client.SendMessageEvent(ctx, id.RoomID(roomID), event.EventMessage, content)
	if err != nil {
		return fmt.Errorf("matrix: send image: %w", err)
	}
	c.rememberSent(resp.EventID)
	if caption == "" {
		return nil
	}
	return c.SendReply(ctx, roomID, "", caption)
}

// SetTyping toggles the typing indicator.
func (c *Client) SetTyping(ctx context.Context, roomID string, typing bool) error {
	if _, err := c.client.UserTyping(ctx, id.RoomID(roomID), typing, typingTimeout); err != nil {
		return fmt.Errorf("matrix: set typing: %w", err)
	}
	return nil
}

// UserID returns the bot's Matrix user id.
func (c *Client) UserID() string { return c.cfg.UserID }

// enrich fills the fields that need a homeserver round trip: DM status,
// display name, reply target and image bytes.
func (c *Client) enrich(ctx context.Context, evt *event.Event, msg *gateway.MessageEvent) {
	content := evt.Content.AsMessage()

	msg.IsDM = c.isDM(ctx, evt.RoomID)
	msg.DisplayName = c.displayName(ctx, evt.Sender)
	if target := replyTarget(content); target != "" {
		msg.IsReplyToBot = c.isOwnEvent(ctx, evt.RoomID, target)
	}
	if content.MsgType == event.MsgImage {
		if data, err := c.download(ctx, content); err != nil {
			c.logger.Warn("matrix: image download failed", "event", evt.ID, "err", err)
		} else {
			msg.Media[0].Data = data
		}
	}
}

// convert maps the fields that need no homeserver round trip.
func convert(evt *event.Event, self id.UserID) (gateway.MessageEvent, bool) {
	content := evt.Content.AsMessage()
	if content == nil {
		return gateway.MessageEvent{}, false
	}
	switch content.MsgType {
	case event.MsgText, event.MsgEmote, event.MsgNotice, event.MsgImage:
	default:
		return gateway.MessageEvent{}, false
	}
	// Edits arrive as new events; the original was already handled.
	if content.RelatesTo != nil && content.RelatesTo.Type == event.RelReplace {
		return gateway.MessageEvent{}, false
	}

	msg := gateway.MessageEvent{
		Platform:   "matrix",
		EventID:    evt.ID.String(),
		SenderID:   evt.Sender.String(),
		SenderName: localpart(evt.Sender),
		ChannelID:  evt.RoomID.String(),
		Text:       stripReplyFallback(content.Body),
		IsSelf:     evt.Sender == self,
		// Bots conventionally post m.notice; answering them invites loops.
		IsBotAuthor: content.MsgType == event.MsgNotice,
		MentionsBot: mentions(content, self),
	}
	if content.MsgType == event.MsgImage {
		msg.Text = imageCaption(content)
		mime := "image/png"
		if content.Info != nil && content.Info.MimeType != "" {
			mime = content.Info.MimeType
		}
		msg.Media = []gateway.Media{{MIMEType: mime}}
	}
	return msg, true
}

// localpart returns "alice" for "@alice:example.org".
func localpart(u id.UserID) string {
	s := strings.TrimPrefix(u.String(), "@")
	if i := strings.IndexByte(s, ':'); i >= 0 {
		s = s[:i]
	}
	return s
}

func mentions(content *event.MessageEventContent, self id.UserID) bool {
	if content.Mentions != nil {
		for _, u := range content.Mentions.UserIDs {
			if u == self {
				return true
			}
		}
	}
	return strings.Contains(content.FormattedBody, "matrix.to/#/"+self.String())
}

func replyTarget(content *event.MessageEventContent) id.EventID {
	if content.RelatesTo == nil || content.RelatesTo.InReplyTo == nil {
		return ""
	}
	return content.RelatesTo.InReplyTo.EventID
}

// stripReplyFallback removes the "> <@user> quoted" prefix older clients put
// in reply bodies.
func stripReplyFallback(body string) string {
	if !strings.HasPrefix(body, "> ") {
		return body
	}
	lines := strings.Split(body, "\n")
	i := 0
	for i < len(lines) && strings.HasPrefix(lines[i], ">") {
		i++
	}
	return strings.TrimSpace(strings.Join(lines[i:], "\n"))
}

// imageCaption returns the caption of an m.image. The body is only a caption
// when a separate filename is present.
func imageCaption(content *event.MessageEventContent) string {
	if content.FileName != "" && content.Body != content.FileName {
		return content.Body
	}
	return ""
}

func (c *Client) download(ctx context.Context, content *event.MessageEventContent) ([]byte, error) {
	if content.Info != nil && content.Info.Size > c.cfg.MaxMediaBytes {
		return nil, fmt.Errorf("image too large (%d bytes)", content.Info.Size)
	}
	if content.URL == "" {
		return nil, errors.New("no content url (encrypted media is not supported)")
	}
	uri, err := content.URL.Parse()
	if err != nil {
		return nil, fmt.Errorf("parse content url: %w", err)
	}
	data, err := c.client.DownloadBytes(ctx, uri)
	if err != nil {
		return nil, err
	}
	if len(data) > c.cfg.MaxMediaBytes {
		return nil, fmt.Errorf("image too large (%d bytes)", len(data))
	}
	return data, nil
}

// isDM reports whether the room has exactly two joined members.
func (c *Client) isDM(ctx context.Context, roomID id.RoomID) bool {
	c.mu.Lock()
	entry, ok := c.dmRooms[roomID]
	c.mu.Unlock()
	if ok && time.Since(entry.at) < roomCacheTTL {
		return entry.value
	}
	resp, err := c.client.JoinedMembers(ctx, roomID)
	if err != nil {
		c.logger.Warn("matrix: joined members lookup failed", "room", roomID, "err", err)
		return false
	}
	dm := len(resp.Joined) == 2
	c.mu.Lock()
	c.dmRooms[roomID] = cached[bool]{value: dm, at: time.Now()}
	c.mu.Unlock()
	return dm
}

func (c *Client) displayName(ctx context.Context, userID id.UserID) string {
	c.mu.Lock()
	entry, ok := c.names[userID]
	c.mu.Unlock()
	if ok && time.Since(entry.at) < roomCacheTTL {
		return entry.value
	}
	name := ""
	if profile, err := c.client.GetProfile(ctx, userID); err == nil {
		name = profile.DisplayName
	}
	c.mu.Lock()
	c.names[userID] = cached[string]{value: name, at: time.Now()}
	c.mu.Unlock()
	return name
}

// isOwnEvent reports whether eventID was sent by the bot, checking the
// recently-sent set before asking the homeserver.
func (c *Client) isOwnEvent(ctx context.Context, roomID id.RoomID, eventID id.EventID) bool {
	c.mu.Lock()
	_, ok := c.sent[eventID]
	c.mu.Unlock()
	if ok {
		return true
	}
	evt, err := c.client.GetEvent(ctx, roomID, eventID)
	if err != nil {
		return false
	}
	return evt.Sender == c.self
}

func (c *Client) rememberSent(eventID id.EventID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.sentRing) == sentEventsCap {
		delete(c.sent, c.sentRing[0])
		c.sentRing = c.sentRing[1:]
	}
	c.sent[eventID] = struct{}{}
	c.sentRing = append(c.sentRing, eventID)
}

func (c *Client) handleInvite(ctx context.Context, evt *event.Event) {
	member := evt.Content.AsMember()
	if member == nil || member.Membership != event.MembershipInvite || evt.GetStateKey() != c.self.String() {
		return
	}
	if err := c.joinRoom(ctx, evt.RoomID); err != nil {
		c.logger.Warn("matrix: accept invite failed", "room", evt.RoomID, "err", err)
		return
	}
	c.logger.Info("matrix: joined room on invite", "room", evt.RoomID, "inviter", evt.Sender)
}

func (c *Client) joinRoom(ctx context.Context, roomID id.RoomID) error {
	_, err := c.client.JoinRoomByID(ctx, roomID)
	if err != nil {
		// Homeservers answer M_FORBIDDEN when the bot is already a member.
		if errors.Is(err, mautrix.MForbidden) {
			c.logger.Warn("matrix: already a member or access denied, continuing", "room", roomID)
			return nil
		}
		return err
	}
	return nil
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	}
	return ".png"
}
