package proc

import (
	"strings"
	"sync"
)

// LineWriter is an io.Writer that calls OnLine for every line written to it.
// Both "\n" and "\r" end a line, so carriage-return progress bars are seen as
// one update per redraw. The most recent lines are retained for error
// reporting.
type LineWriter struct {
	OnLine func(string)
	Keep   int

	mu      sync.Mutex
	partial strings.Builder
	tail    []string
}

func (w *LineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range p {
		if b == '\n' || b == '\r' {
			w.emit()
			continue
		}
		w.partial.WriteByte(b)
	}
	return len(p), nil
}

// Flush emits any buffered partial line.
func (w *LineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.emit()
}

// Tail returns the retained lines joined with newlines.
func (w *LineWriter) Tail() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.Join(w.tail, "\n")
}

func (w *LineWriter) emit() {
	line := strings.TrimSpace(w.partial.String())
	w.partial.Reset()
	if line == "" {
		return
	}
	keep := w.Keep
	if keep <= 0 {
		keep = 20
	}
	w.tail = append(w.tail, line)
	if len(w.tail) > keep {
		w.tail = w.tail[len(w.tail)-keep:]
	}
	if w.OnLine != nil {
		w.OnLine(line)
	}
}
