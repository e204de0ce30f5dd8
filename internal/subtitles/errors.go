package subtitles

import (
	"fmt"

	"vidscribe/internal/services"
)

// Warning records a cue that was skipped or altered during decode.
type Warning struct {
	Cue    int // 1-based block index in the source
	Line   int // 1-based line number of the block's first line
	Reason string
}

func (w Warning) String() string {
	return fmt.Sprintf("cue %d (line %d): %s", w.Cue, w.Line, w.Reason)
}

// DecodeError is returned when no usable segment can be produced. Marker is
// services.ErrUnsupportedEncoding or services.ErrMalformedSubtitle.
type DecodeError struct {
	Marker   error
	Detail   string
	Warnings []Warning
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	if e.Detail == "" {
		return e.Marker.Error()
	}
	return e.Marker.Error() + ": " + e.Detail
}

func (e *DecodeError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Marker
}

func malformed(detail string, warnings []Warning) error {
	return &DecodeError{Marker: services.ErrMalformedSubtitle, Detail: detail, Warnings: warnings}
}

func unsupportedEncoding(detail string) error {
	return &DecodeError{Marker: services.ErrUnsupportedEncoding, Detail: detail}
}
