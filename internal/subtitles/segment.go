package subtitles

import (
	"fmt"
	"math"
	"strings"
)

// Segment is one timed utterance or caption. Start and End are offsets in
// seconds.
type Segment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Duration returns End - Start.
func (s Segment) Duration() float64 { return s.End - s.Start }

// Format selects an output rendering.
type Format string

const (
	FormatText Format = "text"
	FormatSRT  Format = "srt"
	FormatVTT  Format = "vtt"
)

// ParseFormat maps user spellings onto a Format.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "text", "txt", "plain", "plain-text":
		return FormatText, nil
	case "srt":
		return FormatSRT, nil
	case "vtt", "webvtt":
		return FormatVTT, nil
	default:
		return "", fmt.Errorf("unsupported output format %q (want text, srt, or vtt)", value)
	}
}

// Extension returns the artifact file extension without a leading dot.
func (f Format) Extension() string {
	switch f {
	case FormatSRT:
		return "srt"
	case FormatVTT:
		return "vtt"
	default:
		return "txt"
	}
}

// Validate reports the first violation of the document invariants: finite
// non-negative times, End > Start, non-empty single-line text, and segments
// sorted by start without overlap.
func Validate(segs []Segment) error {
	for i, seg := range segs {
		if !finite(seg.Start) || !finite(seg.End) {
			return fmt.Errorf("segment %d: non-finite timestamp", i)
		}
		if seg.Start < 0 {
			return fmt.Errorf("segment %d: negative start %.3f", i, seg.Start)
		}
		if seg.End <= seg.Start {
			return fmt.Errorf("segment %d: end %.3f not after start %.3f", i, seg.End, seg.Start)
		}
		if strings.TrimSpace(seg.Text) == "" {
			return fmt.Errorf("segment %d: empty text", i)
		}
		if strings.ContainsAny(seg.Text, "\r\n") {
			return fmt.Errorf("segment %d: text spans multiple lines", i)
		}
		if i > 0 && seg.Start < segs[i-1].End {
			return fmt.Errorf("segment %d: starts at %.3f before previous end %.3f", i, seg.Start, segs[i-1].End)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
