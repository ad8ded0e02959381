package plog

import (
	"fmt"
	"os"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
)

// Progress is the throttled "[filled/total] NN% load=.. cpu=.. rss=..
// eta=.." printer. It redraws on a single terminal line at a >=100ms
// interval, matching spec.md §4.A; when stdout is not a TTY it is a
// silent no-op so piped/CI output stays clean.
type Progress struct {
	bar     *progressbar.ProgressBar
	enabled bool
}

// NewProgress creates a progress printer for `total` units of work with
// the given description. It is always safe to call its methods even when
// disabled (stdout not a TTY, or quiet requested).
func NewProgress(total int64, description string, quiet bool) *Progress {
	enabled := !quiet && isatty.IsTerminal(os.Stdout.Fd())
	if !enabled {
		return &Progress{enabled: false}
	}
	bar := progressbar.NewOptions64(total,
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetWriter(os.Stdout),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionSetWidth(40),
	)
	return &Progress{bar: bar, enabled: true}
}

// Add advances the progress printer by delta units and, if enabled,
// replaces the description line with the current load average / CPU% /
// RSS reading; the description passed to NewProgress is not kept.
func (p *Progress) Add(delta int, stats SystemStats) {
	if !p.enabled {
		return
	}
	p.bar.Describe(fmt.Sprintf("load=%.2f cpu=%.0f%% rss=%dMiB", stats.LoadAvg1, stats.CPUPercent, stats.RSSMiB))
	p.bar.Add(delta)
}

// Finish clears the progress line.
func (p *Progress) Finish() {
	if !p.enabled {
		return
	}
	p.bar.Finish()
}

// SystemStats is the sampled system-load snapshot shown alongside
// progress, read from /proc by the perf sampler.
type SystemStats struct {
	LoadAvg1   float64
	CPUPercent float64
	RSSMiB     int64
}
