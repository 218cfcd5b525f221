package matrix

import (
	"html"
	"strings"
)

// markdownToHTML converts the small Markdown subset the bot produces into
// HTML for an m.text event with format=org.matrix.custom.html. The input is
// escaped first, so user-supplied text (search snippets, echoed prompts)
// cannot inject markup.
//
// Supported constructs, in order:
//   - Inline code  `…`  → <code>…</code>
//   - Bold  **…**       → <strong>…</strong>
//   - Newlines          → <br/>
func markdownToHTML(md string) string {
	result := html.EscapeString(md)
	result = replaceDelimited(result, "`", "<code>", "</code>")
	result = replaceDelimited(result, "**", "<strong>", "</strong>")
	return strings.ReplaceAll(result, "\n", "<br/>")
}

// hasMarkup reports whether s uses any construct markdownToHTML rewrites.
func hasMarkup(s string) bool {
	return strings.Contains(s, "**") || strings.Count(s, "`") >= 2
}

// replaceDelimited replaces delim…delim pairs with open+content+close. An
// unmatched opener is left as-is.
func replaceDelimited(s, delim, open, close string) string {
	var b strings.Builder
	for {
		start := strings.Index(s, delim)
		if start == -1 {
			b.WriteString(s)
			break
		}
		end := strings.Index(s[start+len(delim):], delim)
		if end == -1 {
			b.WriteString(s)
			break
		}
		b.WriteString(s[:start])
		b.WriteString(open)
		b.WriteString(s[start+len(delim) : start+len(delim)+end])
		b.WriteString(close)
		s = s[start+len(delim)+end+len(delim):]
	}
	return b.String()
}
