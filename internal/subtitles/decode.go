package subtitles

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
)

// Result is the outcome of a successful Decode.
type Result struct {
	Segments   []Segment
	Warnings   []Warning
	Encoding   string
	Format     Format
	Duplicates int // consecutive identical cues removed
}

type cue struct {
	index int
	line  int
	seg   Segment
}

// Decode parses SRT or WebVTT bytes. declared names the text encoding when the
// source reported one and may be empty. Individual malformed cues are skipped
// and reported in Result.Warnings; a DecodeError marked ErrMalformedSubtitle is
// returned only when no cue survives.
func Decode(data []byte, declared string) (Result, error) {
	text, enc, err := decodeText(data, declared)
	if err != nil {
		return Result{}, err
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = strings.TrimPrefix(text, "\uFEFF")

	result := Result{Encoding: enc, Format: FormatSRT}
	if isWebVTT(text) {
		result.Format = FormatVTT
	}

	cues, warnings := parseBlocks(text, result.Format)
	result.Warnings = warnings
	if len(cues) == 0 {
		return Result{}, malformed("no parseable cues", warnings)
	}

	segments, tidy := tidyCues(cues)
	result.Duplicates = tidy.Duplicates
	result.Warnings = append(result.Warnings, tidy.warnings...)
	result.Segments = segments
	return result, nil
}

// TidyStats counts what Tidy changed.
type TidyStats struct {
	Dropped    int // empty, zero-length, inverted, or non-finite
	Duplicates int // identical to the preceding segment
	Clipped    int // end moved back to the next segment's start
	Overlaps   int // started no later than the previous segment and overlapped it

	warnings []Warning
}

// Tidy brings an arbitrary segment list, such as raw recognizer output, to
// the document invariants: texts normalized, unusable segments dropped,
// stable-sorted by start, consecutive duplicates removed, and overlaps
// resolved by clipping the earlier segment or dropping the later one.
func Tidy(segs []Segment) ([]Segment, TidyStats) {
	var dropped int
	cues := make([]cue, 0, len(segs))
	for i, seg := range segs {
		seg.Text = Normalize(seg.Text)
		if seg.Text == "" || !finite(seg.Start) || !finite(seg.End) || seg.Start < 0 || seg.End <= seg.Start {
			dropped++
			continue
		}
		cues = append(cues, cue{index: i + 1, seg: seg})
	}
	out, stats := tidyCues(cues)
	stats.Dropped += dropped
	return out, stats
}

func tidyCues(cues []cue) ([]Segment, TidyStats) {
	var stats TidyStats
	sort.SliceStable(cues, func(i, j int) bool { return cues[i].seg.Start < cues[j].seg.Start })

	segments := make([]Segment, 0, len(cues))
	for _, c := range cues {
		if n := len(segments); n > 0 {
			prev := &segments[n-1]
			if prev.Text == c.seg.Text {
				stats.Duplicates++
				continue
			}
			if c.seg.Start < prev.End {
				if c.seg.Start <= prev.Start {
					stats.Overlaps++
					stats.warnings = append(stats.warnings, Warning{Cue: c.index, Line: c.line, Reason: "overlaps previous cue"})
					continue
				}
				prev.End = c.seg.Start
				stats.Clipped++
			}
		}
		segments = append(segments, c.seg)
	}
	return segments, stats
}

// DecodeFile reads path and decodes it.
func DecodeFile(path, declared string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read subtitle: %w", err)
	}
	return Decode(data, declared)
}

func isWebVTT(text string) bool {
	first, _, _ := strings.Cut(strings.TrimLeft(text, "\n \t"), "\n")
	return strings.HasPrefix(first, "WEBVTT")
}

// parseBlocks splits text into blank-line separated blocks and converts each
// to a cue. Blocks that are VTT metadata are skipped silently.
func parseBlocks(text string, format Format) ([]cue, []Warning) {
	var (
		cues     []cue
		warnings []Warning
		block    []string
		start    int
		index    int
	)
	flush := func() {
		if len(block) == 0 {
			return
		}
		index++
		lines := block
		block = nil
		if format == FormatVTT && isVTTMetadata(lines[0]) {
			return
		}
		c, reason := parseCue(lines)
		if reason != "" {
			warnings = append(warnings, Warning{Cue: index, Line: start, Reason: reason})
			return
		}
		c.index = index
		c.line = start
		cues = append(cues, c)
	}

	for i, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		if len(block) == 0 {
			start = i + 1
		}
		block = append(block, line)
	}
	flush()
	return cues, warnings
}

func isVTTMetadata(line string) bool {
	for _, prefix := range []string{"WEBVTT", "NOTE", "STYLE", "REGION"} {
		if line == prefix || strings.HasPrefix(line, prefix+" ") || strings.HasPrefix(line, prefix+"\t") {
			return true
		}
	}
	return false
}

// parseCue reads one block: an optional identifier line, the timing line, and
// the text lines. The returned reason is non-empty when the cue is rejected.
func parseCue(lines []string) (cue, string) {
	timing := -1
	for i := 0; i < len(lines) && i < 2; i++ {
		if strings.Contains(lines[i], "-->") {
			timing = i
			break
		}
	}
	if timing < 0 {
		return cue{}, "missing timing line"
	}

	left, right, _ := strings.Cut(lines[timing], "-->")
	rightFields := strings.Fields(right)
	if len(rightFields) == 0 {
		return cue{}, "missing end timestamp"
	}
	startMS, err := parseTimestamp(left)
	if err != nil {
		return cue{}, err.Error()
	}
	endMS, err := parseTimestamp(rightFields[0])
	if err != nil {
		return cue{}, err.Error()
	}
	if endMS <= startMS {
		return cue{}, fmt.Sprintf("end %s not after start %s", strings.TrimSpace(rightFields[0]), strings.TrimSpace(left))
	}

	text := cleanCue(lines[timing+1:])
	if text == "" {
		return cue{}, "empty text"
	}
	return cue{seg: Segment{Start: msToSeconds(startMS), End: msToSeconds(endMS), Text: text}}, ""
}

// parseTimestamp accepts HH:MM:SS,mmm, HH:MM:SS.mmm, and MM:SS.mmm and
// returns total milliseconds.
func parseTimestamp(value string) (int64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, fmt.Errorf("empty timestamp")
	}
	clock, frac, hasFrac := strings.Cut(strings.ReplaceAll(value, ",", "."), ".")
	parts := strings.Split(clock, ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	if len(parts) == 2 {
		parts = append([]string{"0"}, parts...)
	}
	hours, errH := strconv.ParseInt(parts[0], 10, 64)
	minutes, errM := strconv.ParseInt(parts[1], 10, 64)
	seconds, errS := strconv.ParseInt(parts[2], 10, 64)
	if errH != nil || errM != nil || errS != nil || hours < 0 || minutes < 0 || minutes > 59 || seconds < 0 || seconds > 59 {
		return 0, fmt.Errorf("invalid timestamp %q", value)
	}
	var millis int64
	if hasFrac {
		if frac == "" || len(frac) > 3 {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		n, err := strconv.ParseInt(frac, 10, 64)
		if err != nil || n < 0 {
			return 0, fmt.Errorf("invalid timestamp %q", value)
		}
		for i := len(frac); i < 3; i++ {
			n *= 10
		}
		millis = n
	}
	return ((hours*60+minutes)*60+seconds)*1000 + millis, nil
}

func msToSeconds(ms int64) float64 {
	return float64(ms) / 1000
}
