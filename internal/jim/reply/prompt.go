package reply

import (
	"fmt"
	"strings"

	"github.com/bdobrica/Jim/internal/jim/gateway"
	"github.com/bdobrica/Jim/internal/jim/llm"
	"github.com/bdobrica/Jim/internal/jim/memory"
)

const (
	// DefaultContextExchanges is how many recent exchanges go into the prompt.
	DefaultContextExchanges = 3

	// promptFacts caps the facts listed in the memory note.
	promptFacts = 5
)

// memoryNote renders the condensed memory handed to the model as a system
// message. It returns "" when nothing is known.
func memoryNote(t Turn, s memory.ProfileSummary) string {
	var b strings.Builder

	name := t.DisplayName
	if name == "" {
		name = t.Username
	}
	if s.Found {
		name = s.Profile.Name()
	}
	if name != "" {
		fmt.Fprintf(&b, "User's name: %s\n", name)
	}
	if !s.Found {
		return strings.TrimSpace(b.String())
	}

	p := s.Profile
	if p.IsCreator {
		b.WriteString("This user is your creator.\n")
	}
	if p.Age != "" {
		fmt.Fprintf(&b, "Age: %s\n", p.Age)
	}
	if p.Location != "" {
		fmt.Fprintf(&b, "Location: %s\n", p.Location)
	}
	if interests := p.AllInterests(); len(interests) > 0 {
		fmt.Fprintf(&b, "Interests: %s\n", strings.Join(interests, ", "))
	}
	if mood := s.RecentMood(); mood != "" {
		fmt.Fprintf(&b, "Recent mood: %s\n", mood)
	}
	if p.InteractionCount > 0 {
		fmt.Fprintf(&b, "You have talked %d times.\n", p.InteractionCount)
	}
	if len(s.Facts) > 0 {
		b.WriteString("\nThings you remember about them:\n")
		for i, f := range s.Facts {
			if i == promptFacts {
				break
			}
			fmt.Fprintf(&b, "- %s\n", f.Content)
		}
	}
	if p.PersonalityNotes != "" {
		fmt.Fprintf(&b, "\nUser personality notes: %s\n", p.PersonalityNotes)
	}
	if p.CommunicationStyle != "" {
		fmt.Fprintf(&b, "Communication style: %s\n", p.CommunicationStyle)
	}
	return strings.TrimSpace(b.String())
}

// buildRequest assembles the model request: compiled system prompt, the
// memory note, recent exchanges as alternating turns, then the new text.
func buildRequest(system string, t Turn, s memory.ProfileSummary, recent []memory.Exchange, vision bool) llm.Request {
	req := llm.Request{System: system, UserText: t.Text}
	if note := memoryNote(t, s); note != "" {
		req.Context = append(req.Context, llm.Message{Role: llm.RoleSystem, Content: note})
	}
	for _, ex := range recent {
		req.Context = append(req.Context,
			llm.Message{Role: llm.RoleUser, Content: ex.User},
			llm.Message{Role: llm.RoleAssistant, Content: ex.Bot},
		)
	}
	if vision {
		req.Images = images(t.Media)
	}
	if strings.TrimSpace(req.UserText) == "" && len(t.Media) > 0 {
		req.UserText = "(sent an image)"
	}
	return req
}

func images(media []gateway.Media) []llm.Image {
	var out []llm.Image
	for _, m := range media {
		if !m.IsImage() || (m.URL == "" && len(m.Data) == 0) {
			continue
		}
		out = append(out, llm.Image{MIMEType: m.MIMEType, URL: m.URL, Data: m.Data})
	}
	return out
}
