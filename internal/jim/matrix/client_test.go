package matrix

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"maunium.net/go/mautrix/event"
	"maunium.net/go/mautrix/id"

	"github.com/bdobrica/Jim/internal/jim/config"
	"github.com/bdobrica/Jim/internal/jim/gateway"
)

const self = id.UserID("@jim:example.org")

func messageEvent(sender id.UserID, content *event.MessageEventContent) *event.Event {
	return &event.Event{
		ID:      "$evt1",
		RoomID:  "!room:example.org",
		Sender:  sender,
		Type:    event.EventMessage,
		Content: event.Content{Parsed: content},
	}
}

func TestConvert(t *testing.T) {
	tests := []struct {
		name    string
		evt     *event.Event
		want    gateway.MessageEvent
		ignored bool
	}{
		{
			name: "plain text",
			evt:  messageEvent("@sam:example.org", &event.MessageEventContent{MsgType: event.MsgText, Body: "hey jim"}),
			want: gateway.MessageEvent{
				Platform: "matrix", EventID: "$evt1", SenderID: "@sam:example.org", SenderName: "sam",
				ChannelID: "!room:example.org", Text: "hey jim",
			},
		},
		{
			name: "mention via m.mentions",
			evt: messageEvent("@sam:example.org", &event.MessageEventContent{
				MsgType: event.MsgText, Body: "yo", Mentions: &event.Mentions{UserIDs: []id.UserID{self}},
			}),
			want: gateway.MessageEvent{
				Platform: "matrix", EventID: "$evt1", SenderID: "@sam:example.org", SenderName: "sam",
				ChannelID: "!room:example.org", Text: "yo", MentionsBot: true,
			},
		},
		{
			name: "mention via pill",
			evt: messageEvent("@sam:example.org", &event.MessageEventContent{
				MsgType: event.MsgText, Body: "Jim: yo", Format: event.FormatHTML,
				FormattedBody: `<a href="https://matrix.to/#/@jim:example.org">Jim</a>: yo`,
			}),
			want: gateway.MessageEvent{
				Platform: "matrix", EventID: "$evt1", SenderID: "@sam:example.org", SenderName: "sam",
				ChannelID: "!room:example.org", Text: "Jim: yo", MentionsBot: true,
			},
		},
		{
			name: "notice is bot authored",
			evt:  messageEvent("@bridge:example.org", &event.MessageEventContent{MsgType: event.MsgNotice, Body: "jim"}),
			want: gateway.MessageEvent{
				Platform: "matrix", EventID: "$evt1", SenderID: "@bridge:example.org", SenderName: "bridge",
				ChannelID: "!room:example.org", Text: "jim", IsBotAuthor: true,
			},
		},
		{
			name: "own message",
			evt:  messageEvent(self, &event.MessageEventContent{MsgType: event.MsgText, Body: "hi"}),
			want: gateway.MessageEvent{
				Platform: "matrix", EventID: "$evt1", SenderID: self.String(), SenderName: "jim",
				ChannelID: "!room:example.org", Text: "hi", IsSelf: true,
			},
		},
		{
			name: "image with caption",
			evt: messageEvent("@sam:example.org", &event.MessageEventContent{
				MsgType: event.MsgImage, Body: "look at this", FileName: "cat.jpg",
				Info: &event.FileInfo{MimeType: "image/jpeg"},
			}),
			want: gateway.MessageEvent{
				Platform: "matrix", EventID: "$evt1", SenderID: "@sam:example.org", SenderName: "sam",
				ChannelID: "!room:example.org", Text: "look at this",
				Media: []gateway.Media{{MIMEType: "image/jpeg"}},
			},
		},
		{
			name: "image without caption",
			evt: messageEvent("@sam:example.org", &event.MessageEventContent{
				MsgType: event.MsgImage, Body: "cat.png",
			}),
			want: gateway.MessageEvent{
				Platform: "matrix", EventID: "$evt1", SenderID: "@sam:example.org", SenderName: "sam",
				ChannelID: "!room:example.org", Media: []gateway.Media{{MIMEType: "image/png"}},
			},
		},
		{
			name: "reply fallback stripped",
			evt: messageEvent("@sam:example.org", &event.MessageEventContent{
				MsgType: event.MsgText, Body: "> <@jim:example.org> yo\n> second line\n\nlol same",
				RelatesTo: &event.RelatesTo{InReplyTo: &event.InReplyTo{EventID: "$prev"}},
			}),
			want: gateway.MessageEvent{
				Platform: "matrix", EventID: "$evt1", SenderID: "@sam:example.org", SenderName: "sam",
				ChannelID: "!room:example.org", Text: "lol same",
			},
		},
		{
			name:    "edit ignored",
			evt:     messageEvent("@sam:example.org", &event.MessageEventContent{MsgType: event.MsgText, Body: "* fixed", RelatesTo: &event.RelatesTo{Type: event.RelReplace, EventID: "$old"}}),
			ignored: true,
		},
		{
			name:    "file ignored",
			evt:     messageEvent("@sam:example.org", &event.MessageEventContent{MsgType: event.MsgFile, Body: "notes.pdf"}),
			ignored: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := convert(tt.evt, self)
			if ok == tt.ignored {
				t.Fatalf("ok = %v, want %v", ok, !tt.ignored)
			}
			if tt.ignored {
				return
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("convert mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestReplyTarget(t *testing.T) {
	if got := replyTarget(&event.MessageEventContent{}); got != "" {
		t.Errorf("no relation: %q", got)
	}
	c := &event.MessageEventContent{RelatesTo: &event.RelatesTo{InReplyTo: &event.InReplyTo{EventID: "$x"}}}
	if got := replyTarget(c); got != "$x" {
		t.Errorf("reply target = %q", got)
	}
}

func TestMarkdownToHTML(t *testing.T) {
	tests := []struct{ in, want string }{
		{"plain", "plain"},
		{"1. **Go**\nfast", "1. <strong>Go</strong><br/>fast"},
		{"use `go test` pls", "use <code>go test</code> pls"},
		{"**<script>**", "<strong>&lt;script&gt;</strong>"},
		{"unmatched **bold", "unmatched **bold"},
	}
	for _, tt := range tests {
		if got := markdownToHTML(tt.in); got != tt.want {
			t.Errorf("markdownToHTML(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
	if hasMarkup("nothing here") || !hasMarkup("**x**") || hasMarkup("one ` tick") {
		t.Error("hasMarkup misclassified input")
	}
}

func TestSyncStore(t *testing.T) {
	ctx := context.Background()
	kv := config.NewMemory()
	s := NewSyncStore(kv)

	if v, err := s.LoadNextBatch(ctx, self); err != nil || v != "" {
		t.Fatalf("LoadNextBatch on first run = %q, %v", v, err)
	}
	if err := s.SaveNextBatch(ctx, self, "s72594_4483_1934"); err != nil {
		t.Fatalf("SaveNextBatch: %v", err)
	}
	if err := s.SaveFilterID(ctx, self, "filter-1"); err != nil {
		t.Fatalf("SaveFilterID: %v", err)
	}
	if v, _ := s.LoadNextBatch(ctx, self); v != "s72594_4483_1934" {
		t.Errorf("next batch = %q", v)
	}
	if v, _ := s.LoadFilterID(ctx, self); v != "filter-1" {
		t.Errorf("filter id = %q", v)
	}
	if v, _ := kv.Get(ctx, "matrix.sync.@jim:example.org.next_batch"); v != "s72594_4483_1934" {
		t.Errorf("stored under unexpected key, got %q", v)
	}
}

func TestRememberSent(t *testing.T) {
	c, err := New(Config{Homeserver: "https://matrix.example.org", UserID: self.String(), AccessToken: "syt_test"}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	for i := 0; i < sentEventsCap+5; i++ {
		c.rememberSent(id.EventID(fmt.Sprintf("$sent%d", i)))
	}
	if len(c.sent) != sentEventsCap || len(c.sentRing) != sentEventsCap {
		t.Fatalf("tracked %d/%d events, want %d", len(c.sent), len(c.sentRing), sentEventsCap)
	}
	if _, ok := c.sent["$sent0"]; ok {
		t.Error("oldest event not evicted")
	}
	if !c.isOwnEvent(context.Background(), "!room:example.org", id.EventID(fmt.Sprintf("$sent%d", sentEventsCap+4))) {
		t.Error("recent own event not recognised")
	}
}

func TestNew_RequiresCredentials(t *testing.T) {
	if _, err := New(Config{Homeserver: "https://matrix.example.org"}, nil); err == nil {
		t.Fatal("expected error without user id and token")
	}
}

func TestLocalpart(t *testing.T) {
	for in, want := range map[id.UserID]string{"@sam:example.org": "sam", "@a.b:x:8448": "a.b", "bare": "bare"} {
		if got := localpart(in); got != want {
			t.Errorf("localpart(%q) = %q, want %q", in, got, want)
		}
	}
}
