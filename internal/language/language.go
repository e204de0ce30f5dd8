package language

import (
	"strings"

	xlanguage "golang.org/x/text/language"
)

type entry struct {
	code2   string   // ISO 639-1 (2-letter)
	code3   string   // ISO 639-2 primary (3-letter)
	alt3    string   // ISO 639-2 alternate (e.g. "fre" vs "fra")
	display string   // Human-readable name
	words   []string // Full word forms (e.g. "english")
}

var languages = []entry{
	{"en", "eng", "", "English", []string{"english"}},
	{"zh", "zho", "chi", "Chinese", []string{"chinese", "mandarin"}},
	{"ja", "jpn", "", "Japanese", []string{"japanese"}},
	{"ko", "kor", "", "Korean", []string{"korean"}},
	{"es", "spa", "", "Spanish", []string{"spanish"}},
	{"fr", "fra", "fre", "French", []string{"french"}},
	{"de", "deu", "ger", "German", []string{"german"}},
	{"it", "ita", "", "Italian", []string{"italian"}},
	{"pt", "por", "", "Portuguese", []string{"portuguese"}},
	{"ru", "rus", "", "Russian", []string{"russian"}},
	{"ar", "ara", "", "Arabic", []string{"arabic"}},
	{"hi", "hin", "", "Hindi", []string{"hindi"}},
	{"vi", "vie", "", "Vietnamese", []string{"vietnamese"}},
	{"th", "tha", "", "Thai", []string{"thai"}},
	{"nl", "nld", "dut", "Dutch", []string{"dutch"}},
	{"pl", "pol", "", "Polish", []string{"polish"}},
	{"tr", "tur", "", "Turkish", []string{"turkish"}},
	{"uk", "ukr", "", "Ukrainian", []string{"ukrainian"}},
}

// Index maps built at init time.
var (
	byCode2 map[string]*entry
	byCode3 map[string]*entry
	byWord  map[string]*entry
)

func init() {
	byCode2 = make(map[string]*entry, len(languages))
	byCode3 = make(map[string]*entry, len(languages)*2)
	byWord = make(map[string]*entry, len(languages))
	for i := range languages {
		e := &languages[i]
		byCode2[e.code2] = e
		byCode3[e.code3] = e
		if e.alt3 != "" {
			byCode3[e.alt3] = e
		}
		for _, w := range e.words {
			byWord[w] = e
		}
	}
}

func lookup(code string) *entry {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return nil
	}
	if e, ok := byCode2[code]; ok {
		return e
	}
	if e, ok := byCode3[code]; ok {
		return e
	}
	if e, ok := byWord[code]; ok {
		return e
	}
	return nil
}

// Auto is the sentinel requesting language detection by the ASR engine.
const Auto = "auto"

// ToISO2 converts any recognized language code, word, or regional tag
// ("zh-Hans", "en_US") to ISO 639-1. Returns empty string for unrecognized input.
// If the input is already a 2-letter code (even if unknown), it passes through.
func ToISO2(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if e := lookup(code); e != nil {
		return e.code2
	}
	if base := baseSubtag(code); base != code {
		return ToISO2(base)
	}
	if len(code) == 2 {
		return code
	}
	return ""
}

// DisplayName returns a human-readable language name for any recognized code.
// Returns "Unknown" for empty input, or the uppercased code for unrecognized input.
func DisplayName(code string) string {
	trimmed := strings.TrimSpace(code)
	if trimmed == "" {
		return "Unknown"
	}
	if strings.EqualFold(trimmed, Auto) {
		return "Auto-detect"
	}
	if e := lookup(trimmed); e != nil {
		return e.display
	}
	if e := lookup(baseSubtag(trimmed)); e != nil {
		if tag, err := xlanguage.Parse(trimmed); err == nil {
			if script, conf := tag.Script(); conf == xlanguage.Exact {
				switch script.String() {
				case "Hans":
					return e.display + " (Simplified)"
				case "Hant":
					return e.display + " (Traditional)"
				}
			}
		}
		return e.display
	}
	return strings.ToUpper(trimmed)
}

// Canonical returns the canonical BCP 47 spelling of a caption track tag
// ("zh-hans" -> "zh-Hans", "en_us" -> "en-US"). Unparseable tags are returned
// trimmed and otherwise untouched because platforms invent private labels
// such as "ai-zh" or "live_chat".
func Canonical(tag string) string {
	trimmed := strings.TrimSpace(tag)
	if trimmed == "" {
		return ""
	}
	parsed, err := xlanguage.Parse(strings.ReplaceAll(trimmed, "_", "-"))
	if err != nil {
		return trimmed
	}
	return parsed.String()
}

// Matches reports whether a caption track tag satisfies a requested language.
// An exact canonical match always wins; otherwise the base languages must agree
// ("zh-Hans" satisfies "zh", "en-US" satisfies "en").
func Matches(track, requested string) bool {
	track = Canonical(track)
	requested = Canonical(requested)
	if track == "" || requested == "" {
		return false
	}
	if strings.EqualFold(track, requested) {
		return true
	}
	trackBase := ToISO2(track)
	return trackBase != "" && trackBase == ToISO2(requested)
}

// Platform-default caption priorities.
var platformPriority = map[string][]string{
	"bilibili": {"zh-Hans", "zh-Hant", "zh", "en"},
	"youtube":  {"en", "zh-Hans", "zh", "zh-Hant"},
}

var defaultPriority = []string{"zh-Hans", "en", "zh"}

// PriorityFor returns the caption language priority for a platform. The
// returned slice is a copy and may be modified by the caller.
func PriorityFor(platform string) []string {
	list, ok := platformPriority[strings.ToLower(strings.TrimSpace(platform))]
	if !ok {
		list = defaultPriority
	}
	out := make([]string, len(list))
	copy(out, list)
	return out
}

// NormalizeList deduplicates a list of caption tags in canonical form,
// preserving order.
func NormalizeList(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	normalized := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, tag := range tags {
		canonical := Canonical(tag)
		if canonical == "" {
			continue
		}
		key := strings.ToLower(canonical)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		normalized = append(normalized, canonical)
	}
	return normalized
}

func baseSubtag(code string) string {
	code = strings.TrimSpace(code)
	if idx := strings.IndexAny(code, "-_"); idx > 0 {
		return strings.ToLower(code[:idx])
	}
	return strings.ToLower(code)
}
