package logging

import (
	"context"
	"log/slog"
	"time"
)

// Attr is the attribute type taken by every helper in this package.
type Attr = slog.Attr

func Duration(key string, value time.Duration) Attr { return slog.Duration(key, value) }

func Float64(key string, value float64) Attr { return slog.Float64(key, value) }

func Int(key string, value int) Attr { return slog.Int(key, value) }

func Int64(key string, value int64) Attr { return slog.Int64(key, value) }

func String(key string, value string) Attr { return slog.String(key, value) }

// Error renders err under the "error" key; a nil error is logged as "<nil>".
func Error(err error) Attr {
	if err == nil {
		return slog.String("error", "<nil>")
	}
	return slog.Any("error", err)
}

// Args converts attrs to the variadic form the slog.Logger methods accept.
func Args(attrs ...Attr) []any {
	args := make([]any, 0, len(attrs))
	for _, attr := range attrs {
		args = append(args, attr)
	}
	return args
}

func NewNop() *slog.Logger {
	return slog.New(nopHandler{})
}

// NewComponentLogger tags logger with a component name. A nil logger yields
// a no-op logger.
func NewComponentLogger(logger *slog.Logger, component string) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	return logger.With(String(FieldComponent, component))
}

// Issue explains a warning or error to the person running vidscribe: the
// event it belongs to, what to try next, and what the run loses.
type Issue struct {
	Event  string
	Hint   string
	Impact string
	Err    error
}

const (
	defaultHint   = "check logs for details"
	defaultImpact = "operation completed with warnings"
)

func (i Issue) attrs(withImpact bool, extra []Attr) []Attr {
	hint := i.Hint
	if hint == "" {
		hint = defaultHint
	}
	out := make([]Attr, 0, len(extra)+4)
	out = append(out, String(FieldEventType, i.Event), String(FieldErrorHint, hint))
	switch {
	case i.Impact != "":
		out = append(out, String(FieldImpact, i.Impact))
	case withImpact:
		out = append(out, String(FieldImpact, defaultImpact))
	}
	if i.Err != nil {
		out = append(out, Error(i.Err))
	}
	return append(out, extra...)
}

// WarnIssue logs msg at warn level. Every warning carries event_type,
// error_hint and impact; missing ones get defaults.
func WarnIssue(logger *slog.Logger, msg string, issue Issue, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Warn(msg, Args(issue.attrs(true, attrs)...)...)
}

// ErrorIssue logs msg at error level with event_type and error_hint, plus
// impact when the issue states one.
func ErrorIssue(logger *slog.Logger, msg string, issue Issue, attrs ...Attr) {
	if logger == nil {
		return
	}
	logger.Error(msg, Args(issue.attrs(false, attrs)...)...)
}

// Decision logs, at info level, which branch the pipeline took and why:
// transcript source, caption track, acquisition path.
func Decision(logger *slog.Logger, msg, decision, result, reason string, attrs ...Attr) {
	if logger == nil {
		return
	}
	all := append([]Attr{
		String(FieldDecisionType, decision),
		String(FieldDecisionResult, result),
		String(FieldDecisionReason, reason),
	}, attrs...)
	logger.Info(msg, Args(all...)...)
}

type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool { return false }

func (nopHandler) Handle(context.Context, slog.Record) error { return nil }

func (nopHandler) WithAttrs([]slog.Attr) slog.Handler { return nopHandler{} }

func (nopHandler) WithGroup(string) slog.Handler { return nopHandler{} }
