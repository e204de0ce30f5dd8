package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"vidscribe/internal/logging"
	"vidscribe/internal/task"
)

type progressRenderer interface {
	Update(ev task.Event)
	Finish()
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func newProgressRenderer(w io.Writer, live bool) progressRenderer {
	if live {
		return newBarRenderer(w)
	}
	return &lineRenderer{w: w, sampler: logging.NewProgressSampler(25)}
}

type barRenderer struct {
	bar *progressbar.ProgressBar
}

func newBarRenderer(w io.Writer) *barRenderer {
	bar := progressbar.NewOptions(100,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetWidth(30),
		progressbar.OptionSetDescription(task.StateQueued.Label()),
		progressbar.OptionSetPredictTime(false),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
	return &barRenderer{bar: bar}
}

func (r *barRenderer) Update(ev task.Event) {
	r.bar.Describe(fmt.Sprintf("%-12s", ev.State.Label()))
	_ = r.bar.Set(ev.Progress)
}

func (r *barRenderer) Finish() {
	_ = r.bar.Clear()
}

// lineRenderer prints one line per state change or progress bucket.
type lineRenderer struct {
	w       io.Writer
	sampler *logging.ProgressSampler
}

func (r *lineRenderer) Update(ev task.Event) {
	if ev.State.Terminal() {
		return
	}
	if r.sampler.ShouldLog(float64(ev.Progress), string(ev.State)) {
		fmt.Fprintf(r.w, "[%3d%%] %s\n", ev.Progress, ev.State.Label())
	}
}

func (r *lineRenderer) Finish() {}
