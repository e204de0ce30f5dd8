package subtitles

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParagraphGap is the silence, in seconds, that starts a new paragraph in
// RenderParagraphs.
const ParagraphGap = 5.0

// Encode renders segs in the requested format. The sequence must satisfy
// Validate. Plain text drops speaker labels; srt and vtt keep cue text as is.
func Encode(segs []Segment, format Format) ([]byte, error) {
	if err := Validate(segs); err != nil {
		return nil, fmt.Errorf("encode %s: %w", format, err)
	}
	var b strings.Builder
	switch format {
	case FormatSRT:
		for i, seg := range segs {
			if i > 0 {
				b.WriteByte('\n')
			}
			b.WriteString(strconv.Itoa(i + 1))
			b.WriteByte('\n')
			b.WriteString(formatTimestamp(seg.Start, ','))
			b.WriteString(" --> ")
			b.WriteString(formatTimestamp(seg.End, ','))
			b.WriteByte('\n')
			b.WriteString(escapeCue(seg.Text))
			b.WriteByte('\n')
		}
	case FormatVTT:
		b.WriteString("WEBVTT\n")
		for _, seg := range segs {
			b.WriteByte('\n')
			b.WriteString(formatTimestamp(seg.Start, '.'))
			b.WriteString(" --> ")
			b.WriteString(formatTimestamp(seg.End, '.'))
			b.WriteByte('\n')
			b.WriteString(escapeCue(seg.Text))
			b.WriteByte('\n')
		}
	case FormatText:
		for _, seg := range segs {
			fmt.Fprintf(&b, "[%.2f -> %.2f] %s\n", seg.Start, seg.End, StripSpeaker(seg.Text))
		}
	default:
		return nil, fmt.Errorf("encode: unsupported format %q", format)
	}
	return []byte(b.String()), nil
}

// RenderParagraphs returns the segment texts one per line, speaker labels
// dropped, with a blank line wherever the silence between segments exceeds
// ParagraphGap.
func RenderParagraphs(segs []Segment) string {
	var b strings.Builder
	prevEnd := 0.0
	for i, seg := range segs {
		if i > 0 {
			b.WriteByte('\n')
			if seg.Start-prevEnd > ParagraphGap {
				b.WriteByte('\n')
			}
		}
		b.WriteString(StripSpeaker(seg.Text))
		prevEnd = seg.End
	}
	if b.Len() > 0 {
		b.WriteByte('\n')
	}
	return b.String()
}

// formatTimestamp renders seconds as HH:MM:SS<sep>mmm, rounded to the
// nearest millisecond.
func formatTimestamp(seconds float64, sep byte) string {
	ms := int64(math.Round(seconds * 1000))
	if ms < 0 {
		ms = 0
	}
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms%1000)
}
