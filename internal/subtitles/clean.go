package subtitles

import (
	"html"
	"regexp"
	"strings"

	"vidscribe/internal/textutil"
)

var (
	markupTag     = regexp.MustCompile(`<[^<>]*>`)
	styleOverride = regexp.MustCompile(`\{\\[^{}]*\}`)
	speakerLabel  = regexp.MustCompile(`^(?:\[[^\[\]]*\]|【[^【】]*】)\s*[:：]\s*`)
)

// Normalize applies the text rules every segment satisfies: style overrides
// removed, whitespace collapsed to single spaces. It is idempotent.
func Normalize(text string) string {
	for styleOverride.MatchString(text) {
		text = styleOverride.ReplaceAllString(text, "")
	}
	return strings.TrimSpace(textutil.CollapseWhitespace(text))
}

// StripSpeaker removes leading speaker labels such as "[Name]:" or
// "【名】：". Text that is nothing but labels is returned unchanged.
func StripSpeaker(text string) string {
	rest := text
	for {
		loc := speakerLabel.FindStringIndex(rest)
		if loc == nil || loc[1] == 0 {
			break
		}
		rest = rest[loc[1]:]
	}
	if rest = strings.TrimSpace(rest); rest == "" {
		return text
	}
	return rest
}

// cleanCue turns the raw text lines of one cue into segment text. Markup is
// removed before entities are unescaped so an escaped "&lt;b&gt;" survives as
// literal text.
func cleanCue(lines []string) string {
	joined := strings.Join(lines, " ")
	joined = markupTag.ReplaceAllString(joined, "")
	joined = html.UnescapeString(joined)
	return Normalize(joined)
}

var entityEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

func escapeCue(text string) string {
	return entityEscaper.Replace(text)
}
