// Package telegram connects Jim to Telegram chats through the Bot API long
// polling interface. It turns messages into gateway.MessageEvents and
// implements gateway.Sender and gateway.MediaSender.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bdobrica/Jim/internal/jim/gateway"
)

const (
	// Platform is the gateway.MessageEvent.Platform value.
	Platform = "telegram"

	// UserPrefix namespaces Telegram user ids in memory.
	UserPrefix = "tg:"

	// DefaultMaxMediaBytes caps photo downloads handed to the model.
	DefaultMaxMediaBytes = 5 << 20

	// maxMessageLen stays under Telegram's 4096 character limit.
	maxMessageLen = 4000
	pollTimeout   = 30
)

// Bot is the subset of *tgbotapi.BotAPI the gateway uses.
type Bot interface {
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetFile(config tgbotapi.FileConfig) (tgbotapi.File, error)
}

// Config holds Telegram connection settings.
type Config struct {
	Token string
	// APIEndpoint overrides tgbotapi.APIEndpoint, e.g. for a local Bot API
	// server.
	APIEndpoint string
	// FileEndpoint overrides tgbotapi.FileEndpoint.
	FileEndpoint string
	// AllowedChats restricts the gateway to these chat ids. Empty allows all.
	AllowedChats []int64
	// MaxMediaBytes caps photo downloads. Default DefaultMaxMediaBytes.
	MaxMediaBytes int
	HTTPClient    *http.Client
}

// Client is the Telegram gateway.
type Client struct {
	bot     Bot
	cfg     Config
	self    tgbotapi.User
	allowed map[int64]bool
	logger  *slog.Logger

	wg sync.WaitGroup
}

var _ gateway.Sender = (*Client)(nil)
var _ gateway.MediaSender = (*Client)(nil)

// New authenticates against the Bot API and returns a Client.
func New(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.Token == "" {
		return nil, errors.New("telegram: token is required")
	}
	if cfg.APIEndpoint == "" {
		cfg.APIEndpoint = tgbotapi.APIEndpoint
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: (pollTimeout + 10) * time.Second}
	}
	bot, err := tgbotapi.NewBotAPIWithClient(cfg.Token, cfg.APIEndpoint, cfg.HTTPClient)
	if err != nil {
		return nil, fmt.Errorf("telegram: authorize: %w", err)
	}
	return NewWithBot(bot, bot.Self, cfg, logger), nil
}

// NewWithBot wraps an already authorized bot. self is the bot's own account.
func NewWithBot(bot Bot, self tgbotapi.User, cfg Config, logger *slog.Logger) *Client {
	if cfg.FileEndpoint == "" {
		cfg.FileEndpoint = tgbotapi.FileEndpoint
	}
	if cfg.MaxMediaBytes <= 0 {
		cfg.MaxMediaBytes = DefaultMaxMediaBytes
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	allowed := make(map[int64]bool, len(cfg.AllowedChats))
	for _, id := range cfg.AllowedChats {
		allowed[id] = true
	}
	return &Client{
		bot:     bot,
		cfg:     cfg,
		self:    self,
		allowed: allowed,
		logger:  logger.With("platform", Platform),
	}
}

// Run polls for updates until ctx is cancelled. Every message is delivered
// to handler on its own goroutine; Run waits for those goroutines before
// returning.
func (c *Client) Run(ctx context.Context, handler gateway.Handler) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = pollTimeout
	updates := c.bot.GetUpdatesChan(u)
	c.logger.Info("telegram polling started", "bot", c.self.UserName)

	for {
		select {
		case <-ctx.Done():
			c.bot.StopReceivingUpdates()
			c.wg.Wait()
			return nil
		case update, ok := <-updates:
			if !ok {
				c.wg.Wait()
				return errors.New("telegram: update channel closed")
			}
			if update.Message == nil {
				continue
			}
			if len(c.allowed) > 0 && !c.allowed[update.Message.Chat.ID] {
				c.logger.Debug("telegram: chat not allowed", "chat", update.Message.Chat.ID)
				continue
			}
			msg, ok := convert(update.Message, c.self)
			if !ok || msg.IsSelf {
				continue
			}
			raw := update.Message
			c.wg.Add(1)
			go func() {
				defer c.wg.Done()
				c.attachPhoto(ctx, raw, &msg)
				handler(ctx, msg)
			}()
		}
	}
}

// SendReply sends text to chatID as a reply to replyTo. Long texts are split
// on line boundaries.
func (c *Client) SendReply(_ context.Context, chatID, replyTo, text string) error {
	chat, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	replyID, _ := strconv.Atoi(replyTo)

	for i, chunk := range splitMessage(text, maxMessageLen) {
		m := tgbotapi.NewMessage(chat, toHTML(chunk))
		m.ParseMode = tgbotapi.ModeHTML
		if i == 0 {
			m.ReplyToMessageID = replyID
		}
		if _, err := c.bot.Send(m); err != nil {
			// Retry as plain text when Telegram rejects the markup.
			m.ParseMode = ""
			m.Text = chunk
			if _, err := c.bot.Send(m); err != nil {
				return fmt.Errorf("telegram: send message: %w", err)
			}
		}
	}
	return nil
}

// SendMedia uploads media as a photo with caption.
func (c *Client) SendMedia(ctx context.Context, chatID, replyTo string, media gateway.Media, caption string) error {
	chat, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	var file tgbotapi.RequestFileData
	switch {
	case len(media.Data) > 0:
		file = tgbotapi.FileBytes{Name: "image" + extensionFor(media.MIMEType), Bytes: media.Data}
	case media.URL != "":
		file = tgbotapi.FileURL(media.URL)
	default:
		return c.SendReply(ctx, chatID, replyTo, caption)
	}
	p := tgbotapi.NewPhoto(chat, file)
	p.Caption = caption
	p.ReplyToMessageID, _ = strconv.Atoi(replyTo)
	if _, err := c.bot.Send(p); err != nil {
		return fmt.Errorf("telegram: send photo: %w", err)
	}
	return nil
}

// SetTyping sends the typing chat action. Telegram clears it on its own, so
// typing=false is a no-op.
func (c *Client) SetTyping(_ context.Context, chatID string, typing bool) error {
	if !typing {
		return nil
	}
	chat, err := strconv.ParseInt(chatID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram: invalid chat id %q: %w", chatID, err)
	}
	if _, err := c.bot.Request(tgbotapi.NewChatAction(chat, tgbotapi.ChatTyping)); err != nil {
		return fmt.Errorf("telegram: chat action: %w", err)
	}
	return nil
}

// attachPhoto downloads the largest photo size that fits MaxMediaBytes.
func (c *Client) attachPhoto(ctx context.Context, raw *tgbotapi.Message, msg *gateway.MessageEvent) {
	if len(msg.Media) == 0 {
		return
	}
	fileID := photoFileID(raw.Photo, c.cfg.MaxMediaBytes)
	if fileID == "" && raw.Document != nil {
		fileID = raw.Document.FileID
	}
	if fileID == "" {
		return
	}
	data, err := c.download(ctx, fileID)
	if err != nil {
		c.logger.Warn("telegram: photo download failed", "message", raw.MessageID, "err", err)
		return
	}
	msg.Media[0].Data = data
	if msg.Media[0].MIMEType == "" {
		msg.Media[0].MIMEType = http.DetectContentType(data)
	}
}

func (c *Client) download(ctx context.Context, fileID string) ([]byte, error) {
	file, err := c.bot.GetFile(tgbotapi.FileConfig{FileID: fileID})
	if err != nil {
		return nil, fmt.Errorf("get file: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf(c.cfg.FileEndpoint, c.cfg.Token, file.FilePath), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		// The URL carries the bot token.
		return nil, errors.New("download file: request failed")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download file: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, int64(c.cfg.MaxMediaBytes)+1))
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	if len(data) > c.cfg.MaxMediaBytes {
		return nil, fmt.Errorf("file exceeds %d bytes", c.cfg.MaxMediaBytes)
	}
	if len(data) == 0 {
		return nil, errors.New("file is empty")
	}
	return data, nil
}

// convert maps a Telegram message to a MessageEvent. Image bytes are not
// fetched here. ok is false for messages carrying neither text nor an image.
func convert(m *tgbotapi.Message, self tgbotapi.User) (gateway.MessageEvent, bool) {
	if m == nil || m.From == nil || m.Chat == nil {
		return gateway.MessageEvent{}, false
	}
	text := m.Text
	if text == "" {
		text = m.Caption
	}

	var media []gateway.Media
	switch {
	case len(m.Photo) > 0:
		media = append(media, gateway.Media{MIMEType: "image/jpeg"})
	case m.Document != nil && strings.HasPrefix(m.Document.MimeType, "image/"):
		media = append(media, gateway.Media{MIMEType: m.Document.MimeType})
	}
	if strings.TrimSpace(text) == "" && len(media) == 0 {
		return gateway.MessageEvent{}, false
	}

	msg := gateway.MessageEvent{
		Platform:    Platform,
		EventID:     strconv.Itoa(m.MessageID),
		SenderID:    UserPrefix + strconv.FormatInt(m.From.ID, 10),
		SenderName:  senderName(m.From),
		DisplayName: strings.TrimSpace(m.From.FirstName + " " + m.From.LastName),
		ChannelID:   strconv.FormatInt(m.Chat.ID, 10),
		Text:        text,
		Media:       media,
		MentionsBot: mentions(m, self),
		IsDM:        m.Chat.IsPrivate(),
		IsBotAuthor: m.From.IsBot,
		IsSelf:      m.From.ID == self.ID,
	}
	if !msg.IsDM {
		msg.GuildID = msg.ChannelID
	}
	if r := m.ReplyToMessage; r != nil && r.From != nil && r.From.ID == self.ID {
		msg.IsReplyToBot = true
	}
	return msg, true
}

func senderName(u *tgbotapi.User) string {
	if u.UserName != "" {
		return u.UserName
	}
	return u.FirstName
}

// mentions reports whether m @-mentions the bot, by username or by a
// text_mention entity.
func mentions(m *tgbotapi.Message, self tgbotapi.User) bool {
	entities := m.Entities
	if len(entities) == 0 {
		entities = m.CaptionEntities
	}
	for _, e := range entities {
		if e.Type == "text_mention" && e.User != nil && e.User.ID == self.ID {
			return true
		}
	}
	if self.UserName == "" {
		return false
	}
	text := strings.ToLower(m.Text + " " + m.Caption)
	return strings.Contains(text, "@"+strings.ToLower(self.UserName))
}

// photoFileID picks the largest photo size within limit. Telegram lists
// sizes smallest first.
func photoFileID(sizes []tgbotapi.PhotoSize, limit int) string {
	for i := len(sizes) - 1; i >= 0; i-- {
		if sizes[i].FileSize == 0 || sizes[i].FileSize <= limit {
			return sizes[i].FileID
		}
	}
	return ""
}

func extensionFor(mime string) string {
	switch mime {
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	default:
		return ".png"
	}
}
