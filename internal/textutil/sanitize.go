package textutil

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// MaxFileNameRunes caps derived artifact names; long video titles otherwise
// hit filesystem name limits once an extension and id suffix are added.
const MaxFileNameRunes = 100

// fileNameReplacer replaces filesystem-unsafe characters with safe alternatives.
var fileNameReplacer = strings.NewReplacer(
	"/", "-",
	"\\", "-",
	":", "-",
	"*", "-",
	"?", "",
	"\"", "",
	"<", "",
	">", "",
	"|", "",
	"【", "[",
	"】", "]",
)

// SanitizeFileName replaces filesystem-unsafe characters in a filename.
// Slashes, backslashes, colons, and asterisks become dashes; other unsafe
// characters and control runes are removed; whitespace runs collapse to one
// space. The result is capped at MaxFileNameRunes and never starts with a dot.
func SanitizeFileName(name string) string {
	name = CollapseWhitespace(fileNameReplacer.Replace(name))
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, name)
	name = strings.TrimLeft(name, ". ")
	if utf8.RuneCountInString(name) > MaxFileNameRunes {
		runes := []rune(name)
		name = string(runes[:MaxFileNameRunes])
	}
	return strings.TrimRight(name, ". ")
}

// SanitizeToken converts a string to a lowercase filesystem-safe token.
// Letters are lowercased, digits and hyphens/underscores are kept, everything
// else becomes an underscore. Returns "unknown" for empty input.
func SanitizeToken(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return "unknown"
	}
	var b strings.Builder
	for _, r := range value {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), "_-")
	if out == "" {
		return "unknown"
	}
	return out
}

// CollapseWhitespace trims s and replaces every run of Unicode whitespace
// (including non-breaking and ideographic spaces) with a single ASCII space.
func CollapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// DerivedName builds "<sanitized-title>-<suffix>" for output artifacts,
// falling back to "transcript" when the title sanitizes to nothing.
func DerivedName(title, suffix string) string {
	base := SanitizeFileName(title)
	if base == "" {
		base = "transcript"
	}
	suffix = SanitizeToken(suffix)
	if suffix == "unknown" {
		return base
	}
	return base + "-" + suffix
}
