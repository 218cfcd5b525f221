// Package gateway defines the platform-neutral shapes exchanged between chat
// platform adapters (Matrix, Telegram) and the bot core.
package gateway

import (
	"context"
	"strings"
)

// Media is one attachment or embed carried by a message.
type Media struct {
	// MIMEType is the declared content type, e.g. "image/png".
	MIMEType string
	// URL is where the content can be fetched, when the platform provides one.
	URL string
	// Data holds the raw bytes when the adapter downloaded them.
	Data []byte
	// Embed marks link previews and inline embeds as opposed to uploads.
	Embed bool
}

// IsImage reports whether the media qualifies as an image (including
// animated images such as GIFs).
func (m Media) IsImage() bool {
	return strings.HasPrefix(strings.ToLower(m.MIMEType), "image/")
}

// MessageEvent is an inbound chat message.
type MessageEvent struct {
	// Platform names the adapter that produced the event ("matrix", "telegram").
	Platform string
	// EventID identifies the message on its platform; used for replies.
	EventID    string
	SenderID   string
	SenderName string
	// DisplayName is the sender's human-readable name when it differs from
	// SenderName (e.g. a Matrix display name vs. the MXID localpart).
	DisplayName string
	ChannelID   string
	// GuildID groups channels (Telegram chat, Matrix space). May be empty.
	GuildID string
	Text    string
	Media   []Media

	MentionsBot  bool
	IsReplyToBot bool
	IsDM         bool
	IsBotAuthor  bool
	// IsSelf marks messages authored by this bot's own account.
	IsSelf bool
}

// Images returns the qualifying image attachments.
func (m MessageEvent) Images() []Media {
	var out []Media
	for _, media := range m.Media {
		if media.IsImage() {
			out = append(out, media)
		}
	}
	return out
}

// HasImage reports whether at least one attachment is an image.
func (m MessageEvent) HasImage() bool {
	for _, media := range m.Media {
		if media.IsImage() {
			return true
		}
	}
	return false
}

// Sender delivers replies back to a platform.
type Sender interface {
	// SendReply posts text into channelID, threaded as a reply to replyTo
	// when the platform supports it and replyTo is non-empty.
	SendReply(ctx context.Context, channelID, replyTo, text string) error
	// SetTyping toggles the typing indicator in channelID.
	SetTyping(ctx context.Context, channelID string, typing bool) error
}

// Handler consumes inbound events. Adapters call it on their own goroutine
// per event.
type Handler func(ctx context.Context, msg MessageEvent)

// Reply is an outbound message produced by a command.
type Reply struct {
	Text string
	// Media, when set, is uploaded with Text as its caption.
	Media *Media
}

// MediaSender is implemented by adapters that can upload media.
type MediaSender interface {
	SendMedia(ctx context.Context, channelID, replyTo string, media Media, caption string) error
}

// Deliver sends r through s. Media goes through MediaSender when s supports
// it; otherwise a remote media URL is appended to the text and inline bytes
// are dropped.
func Deliver(ctx context.Context, s Sender, channelID, replyTo string, r Reply) error {
	if r.Media != nil {
		if ms, ok := s.(MediaSender); ok {
			return ms.SendMedia(ctx, channelID, replyTo, *r.Media, r.Text)
		}
		if r.Media.URL != "" {
			r.Text = strings.TrimSpace(r.Text + "\n" + r.Media.URL)
		}
	}
	if r.Text == "" {
		return nil
	}
	return s.SendReply(ctx, channelID, replyTo, r.Text)
}
