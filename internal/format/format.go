// Package format turns an agent's final answer, or a tool's error
// envelope, into the plain-text reply a chat actually receives (§4.10,
// C10). The plain-text policy is absolute: Telegram messages are sent
// with no parse mode, ever, so rather than escaping Markdown/HTML
// special characters for a ParseMode send to survive, KICKAI strips the
// same character set instead — there is no parser on the receiving end
// for an escape to protect against. HTML stripping reuses bluemonday.
package format

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"

	"github.com/kickai/kickai/internal/tool"
)

var htmlPolicy = bluemonday.StrictPolicy()

// markupChars is the set of characters a rich-text renderer would treat
// as formatting. KICKAI never enables a parse mode, so these are
// stripped outright rather than escaped.
const markupChars = "*_`"

var whitespaceRun = regexp.MustCompile(`[ \t]+`)

// Plain strips HTML, strips markup characters, and collapses repeated
// horizontal whitespace, leaving text safe to send with no parse mode.
func Plain(text string) string {
	stripped := htmlPolicy.Sanitize(text)
	stripped = stripMarkup(stripped)
	return collapseWhitespace(stripped)
}

func stripMarkup(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(markupChars, c) >= 0 {
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func collapseWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(whitespaceRun.ReplaceAllString(line, " "), " ")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// userFacingErrorText maps an apperr.Kind (by name, since format must
// not import apperr's sentinel values back through tool's envelope
// boundary) to the sentence a sender sees. InvalidInput and Conflict
// are the two kinds whose tool.Envelope.Message is already built from
// user-supplied values or a storage-layer business rule (e.g. "phone
// number already registered") and is safe to surface verbatim;
// everything else maps to a fixed phrase so internal detail never
// leaks into a chat.
var userFacingErrorText = map[string]string{
	"Denied":                "You don't have permission to do that here.",
	"UnknownCommand":        "I don't recognize that command. Try /help.",
	"NotFound":              "I couldn't find that.",
	"InviteExpired":         "That invite link has expired. Ask a leader to send a new one.",
	"InviteAlreadyUsed":     "That invite link has already been used.",
	"TimedOut":              "That took too long to process. Please try again.",
	"DependencyUnavailable": "Something went wrong on our end. Please try again shortly.",
	"SystemCritical":        "Something went wrong on our end. Please try again shortly.",
}

// FromEnvelope translates a tool call's uniform envelope into the
// sentence a user sees (§4.10's "the formatter translates [envelopes]
// into user-facing sentences"). For a successful call the caller
// supplies the rendered sentence directly (Data is structured JSON, not
// prose — rendering it into English is the agent/orchestrator's job,
// not the formatter's); FromEnvelope's job is specifically the error
// path, where the mapping from ErrorKind to phrasing must be uniform
// everywhere a tool call can fail.
func FromEnvelope(env tool.Envelope) string {
	if env.Status == tool.StatusOK {
		return ""
	}
	switch env.ErrorKind {
	case "InvalidInput", "Conflict":
		return Plain(env.Message)
	default:
		if text, ok := userFacingErrorText[env.ErrorKind]; ok {
			return Plain(text)
		}
		return Plain(userFacingErrorText["DependencyUnavailable"])
	}
}
