package telegram

import (
	"html"
	"strings"
)

// toHTML converts bold and inline code to Telegram HTML. Everything else is
// escaped.
func toHTML(s string) string {
	s = html.EscapeString(s)
	s = wrapPairs(s, "`", "<code>", "</code>")
	return wrapPairs(s, "**", "<b>", "</b>")
}

func wrapPairs(s, delim, open, close string) string {
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			return s
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			return s
		}
		end += start + len(delim)
		s = s[:start] + open + s[start+len(delim):end] + close + s[end+len(delim):]
	}
}

// splitMessage cuts s into chunks of at most limit bytes, preferring the
// last newline before the limit.
func splitMessage(s string, limit int) []string {
	var out []string
	for len(s) > limit {
		cut := strings.LastIndex(s[:limit], "\n")
		if cut <= 0 {
			cut = limit
			for cut > 0 && !utf8Start(s[cut]) {
				cut--
			}
		}
		out = append(out, s[:cut])
		s = strings.TrimPrefix(s[cut:], "\n")
	}
	if s != "" || len(out) == 0 {
		out = append(out, s)
	}
	return out
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
