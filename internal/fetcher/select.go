package fetcher

import (
	"strings"

	"vidscribe/internal/language"
)

// MismatchPolicy decides what happens when no caption track is in the
// language the caller asked for.
type MismatchPolicy string

const (
	// PreferSubtitle uses the best available track anyway.
	PreferSubtitle MismatchPolicy = "prefer_subtitle"
	// ForceASR skips captions so the recognizer transcribes in the requested language.
	ForceASR MismatchPolicy = "force_asr"
)

// Selection is the inputs to SelectTrack.
type Selection struct {
	// Priority orders preferred languages; empty uses the platform default.
	Priority []string
	// Requested is the transcript language the caller wants, or "" / "auto".
	Requested   string
	IncludeAuto bool
	Mismatch    MismatchPolicy
}

// pseudoTracks are caption entries that are not transcripts.
var pseudoTracks = map[string]struct{}{"live_chat": {}, "danmaku": {}, "rechat": {}}

// SelectTrack picks a caption track from info. Manual tracks win over auto
// tracks; within each kind the priority list is walked in order and the
// first listed track is the fallback. ok is false when nothing suitable
// exists, with reason explaining why.
func SelectTrack(info ProbeResult, sel Selection) (track Track, ok bool, reason string) {
	manual := usable(info.Manual)
	var auto []string
	if sel.IncludeAuto {
		auto = usable(info.Auto)
	}
	if len(manual) == 0 && len(auto) == 0 {
		return Track{}, false, "no caption tracks"
	}

	requested := strings.TrimSpace(sel.Requested)
	if requested != "" && !strings.EqualFold(requested, language.Auto) {
		if lang, found := findMatching(manual, requested); found {
			return Track{Language: lang}, true, "manual track in requested language"
		}
		if lang, found := findMatching(auto, requested); found {
			return Track{Language: lang, Auto: true}, true, "auto track in requested language"
		}
		if sel.Mismatch == ForceASR {
			return Track{}, false, "no caption track in requested language " + requested
		}
	}

	priority := sel.Priority
	if len(priority) == 0 {
		priority = language.PriorityFor(info.Platform)
	}
	if len(manual) > 0 {
		if lang, found := findExact(manual, priority); found {
			return Track{Language: lang}, true, "manual track by priority"
		}
		return Track{Language: manual[0]}, true, "first manual track"
	}
	if lang, found := findExact(auto, priority); found {
		return Track{Language: lang, Auto: true}, true, "auto track by priority"
	}
	return Track{Language: auto[0], Auto: true}, true, "first auto track"
}

func usable(tracks []string) []string {
	out := make([]string, 0, len(tracks))
	for _, t := range tracks {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, skip := pseudoTracks[strings.ToLower(t)]; skip {
			continue
		}
		out = append(out, t)
	}
	return out
}

func findExact(tracks, priority []string) (string, bool) {
	for _, want := range priority {
		want = language.Canonical(want)
		for _, t := range tracks {
			if strings.EqualFold(language.Canonical(t), want) {
				return t, true
			}
		}
	}
	return "", false
}

func findMatching(tracks []string, requested string) (string, bool) {
	if t, ok := findExact(tracks, []string{requested}); ok {
		return t, true
	}
	for _, t := range tracks {
		if language.Matches(t, requested) {
			return t, true
		}
	}
	return "", false
}
