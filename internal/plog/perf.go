package plog

import (
	"bufio"
	"context"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// PerfResult is the outcome of RunWithPerf: wall time, peak resident set
// size, and the child's exit code.
type PerfResult struct {
	Wall    time.Duration
	PeakRSS int64 // KiB, as reported by /proc/<pid>/status
	ExitErr error
}

var (
	peakRSSGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "porg_build_peak_rss_kib",
		Help: "Peak resident set size of the most recently sampled child process, in KiB.",
	})
	buildDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "porg_build_duration_seconds",
		Help:    "Wall-clock duration of sampled child processes.",
		Buckets: prometheus.ExponentialBuckets(1, 2, 16),
	})
)

func init() {
	prometheus.MustRegister(peakRSSGauge, buildDuration)
}

// RunWithPerf runs cmd to completion, sampling /proc/<pid>/status VmRSS at
// a >=100ms interval, and emits a structured PERF line to the session log
// naming the peak RSS, wall time and exit code. Child stdout/stderr are
// teed into the session log's writer.
func (s *Session) RunWithPerf(ctx context.Context, cmd *exec.Cmd) (*PerfResult, error) {
	cmd.Stdout = s.Writer()
	cmd.Stderr = s.Writer()

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	done := make(chan struct{})
	var peak int64
	go func() {
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if rss, ok := readVmRSS(cmd.Process.Pid); ok && rss > peak {
					peak = rss
				}
			case <-done:
				return
			}
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	wall := time.Since(start)
	peakRSSGauge.Set(float64(peak))
	buildDuration.Observe(wall.Seconds())

	res := &PerfResult{Wall: wall, PeakRSS: peak, ExitErr: waitErr}
	s.Emit(STAGE, "PERF", map[string]string{
		"wall_ms":  strconv.FormatInt(wall.Milliseconds(), 10),
		"peak_rss": strconv.FormatInt(peak, 10),
		"exit_err": errString(waitErr),
	})
	return res, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// readVmRSS reads VmRSS (in KiB) from /proc/<pid>/status.
func readVmRSS(pid int) (int64, bool) {
	f, err := os.Open("/proc/" + strconv.Itoa(pid) + "/status")
	if err != nil {
		return 0, false
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := sc.Text()
		if strings.HasPrefix(line, "VmRSS:") {
			fields := strings.Fields(line)
			if len(fields) >= 2 {
				if n, err := strconv.ParseInt(fields[1], 10, 64); err == nil {
					return n, true
				}
			}
		}
	}
	return 0, false
}

// ReadSystemStats samples /proc/loadavg and the given pid's VmRSS for the
// Progress printer.
func ReadSystemStats(pid int) SystemStats {
	var stats SystemStats
	if b, err := os.ReadFile("/proc/loadavg"); err == nil {
		fields := strings.Fields(string(b))
		if len(fields) > 0 {
			stats.LoadAvg1, _ = strconv.ParseFloat(fields[0], 64)
		}
	}
	if rss, ok := readVmRSS(pid); ok {
		stats.RSSMiB = rss / 1024
	}
	return stats
}
