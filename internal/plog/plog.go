// Package plog is the session-scoped structured logger: leveled events
// mirrored to a session log file and (unless quiet) to stdout, a
// throttled progress printer, a perf-sampling command wrapper, and log
// rotation.
//
// It follows the teacher's internal/trace idiom of a single process-wide
// sink written to in UTC, generalized from a Chrome-trace-event sink into
// the leveled session log spec.md §4.A asks for, and borrows its color
// and progress-bar wiring from kraklabs-cie's cmd/cie (the one pack repo
// that reaches for fatih/color, mattn/go-isatty and schollz/progressbar
// directly).
package plog

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
)

// Level is one of the five severities events are emitted at.
type Level int

const (
	DEBUG Level = iota
	INFO
	WARN
	ERROR
	STAGE
)

func (l Level) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case STAGE:
		return "STAGE"
	default:
		return "UNKNOWN"
	}
}

func (l Level) color() *color.Color {
	switch l {
	case DEBUG:
		return color.New(color.FgHiBlack)
	case WARN:
		return color.New(color.FgYellow)
	case ERROR:
		return color.New(color.FgRed, color.Bold)
	case STAGE:
		return color.New(color.FgCyan, color.Bold)
	default:
		return color.New(color.FgWhite)
	}
}

// Event is one emitted log line, also the shape mirrored as JSON when
// LOG_JSON is enabled.
type Event struct {
	Time    time.Time         `json:"time"`
	Level   string            `json:"level"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// Session is one invocation's logger: one session log file, optional
// stdout mirroring, optional JSON mirroring, and per-level counters.
//
// Writes are line-buffered so that if multiple processes ever share a
// session file (they should not, by convention, but nothing prevents it)
// interleaved lines remain message-atomic rather than torn.
type Session struct {
	ID string

	mu       sync.Mutex
	file     *os.File
	quiet    bool
	jsonMir  bool
	minLevel Level
	counts   [5]int64

	jsonEnc *json.Encoder
}

// Options configure a new Session.
type Options struct {
	Dir      string // log directory; file is named "<id>.log"
	Quiet    bool
	JSON     bool
	MinLevel Level
	NoColor  bool
}

// New creates a session log file under opts.Dir and returns the Session
// writing to it.
func New(opts Options) (*Session, error) {
	id := uuid.NewString()
	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, err
		}
	}
	var f *os.File
	var err error
	if opts.Dir != "" {
		f, err = os.OpenFile(sessionPath(opts.Dir, id), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, err
		}
	}
	if opts.NoColor {
		color.NoColor = true
	} else if !isatty.IsTerminal(os.Stdout.Fd()) {
		color.NoColor = true
	}
	s := &Session{
		ID:       id,
		file:     f,
		quiet:    opts.Quiet,
		jsonMir:  opts.JSON,
		minLevel: opts.MinLevel,
	}
	if opts.JSON {
		s.jsonEnc = json.NewEncoder(os.Stdout)
	}
	return s, nil
}

func sessionPath(dir, id string) string {
	return dir + "/" + id + ".log"
}

// Close flushes and closes the underlying session log file.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Emit appends one UTC-timestamped line to the session log and, unless
// quiet, mirrors it to stdout (colorized by level) or, if JSON mode is
// enabled, as a structured line.
func (s *Session) Emit(level Level, msg string, fields map[string]string) {
	if level < s.minLevel {
		return
	}
	ev := Event{Time: time.Now().UTC(), Level: level.String(), Message: msg, Fields: fields}

	s.mu.Lock()
	s.counts[level]++
	line := formatLine(ev)
	if s.file != nil {
		fmt.Fprintln(s.file, line)
	}
	if !s.quiet {
		if s.jsonMir {
			s.jsonEnc.Encode(ev)
		} else {
			level.color().Fprintln(os.Stdout, line)
		}
	}
	s.mu.Unlock()
}

func formatLine(ev Event) string {
	line := ev.Time.Format(time.RFC3339) + " [" + ev.Level + "] " + ev.Message
	for k, v := range ev.Fields {
		line += " " + k + "=" + v
	}
	return line
}

func (s *Session) Debugf(format string, args ...interface{}) {
	s.Emit(DEBUG, fmt.Sprintf(format, args...), nil)
}
func (s *Session) Infof(format string, args ...interface{}) {
	s.Emit(INFO, fmt.Sprintf(format, args...), nil)
}
func (s *Session) Warnf(format string, args ...interface{}) {
	s.Emit(WARN, fmt.Sprintf(format, args...), nil)
}
func (s *Session) Errorf(format string, args ...interface{}) {
	s.Emit(ERROR, fmt.Sprintf(format, args...), nil)
}
func (s *Session) Stagef(format string, args ...interface{}) {
	s.Emit(STAGE, fmt.Sprintf(format, args...), nil)
}

// Counts returns a snapshot of per-level event counts, keyed by level
// name, used by `porg audit`/`porg upgrade` end-of-run summaries.
func (s *Session) Counts() map[string]int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int64, len(s.counts))
	for l := DEBUG; l <= STAGE; l++ {
		out[l.String()] = s.counts[l]
	}
	return out
}

// Writer exposes the raw session-log io.Writer, e.g. for a child
// process's combined stdout/stderr to be teed into the log (used by the
// perf wrapper).
func (s *Session) Writer() io.Writer {
	if s.file == nil {
		return io.Discard
	}
	return s.file
}
