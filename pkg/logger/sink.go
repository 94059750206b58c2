package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// Sink is the append-only run log. Every call writes one timestamped entry to
// <dir>/<YYYY-MM-DD>.log; continuation lines are indented under the first one.
// Entries are echoed to the console when the sink is verbose or the entry is forced.
//
// A nil *Sink discards everything.
type Sink struct {
	mu      sync.Mutex
	path    string
	verbose bool
	console io.Writer
	now     func() time.Time
}

// NewSink creates dir if needed and opens the sink for today's log file.
// An empty dir disables the file and keeps console echoing only.
func NewSink(dir string, verbose bool) (*Sink, error) {
	s := &Sink{verbose: verbose, console: os.Stdout, now: time.Now}
	if dir == "" {
		return s, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir failed, dir=%s, err=%w", dir, err)
	}
	s.path = filepath.Join(dir, s.now().Format("2006-01-02")+".log")
	return s, nil
}

// Path returns the log file path, or "" when file logging is off.
func (s *Sink) Path() string {
	if s == nil {
		return ""
	}
	return s.path
}

// SetVerbose toggles console echoing of non-forced entries.
func (s *Sink) SetVerbose(v bool) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.verbose = v
	s.mu.Unlock()
}

// SetConsole replaces the echo writer.
func (s *Sink) SetConsole(w io.Writer) {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.console = w
	s.mu.Unlock()
}

// Log writes one entry built from messages; each message may span lines.
func (s *Sink) Log(messages ...string) { s.write(false, messages) }

// Force writes one entry and always echoes it to the console.
func (s *Sink) Force(messages ...string) { s.write(true, messages) }

// Logf is Log with a format string.
func (s *Sink) Logf(format string, args ...interface{}) {
	s.write(false, []string{fmt.Sprintf(format, args...)})
}

func (s *Sink) write(force bool, messages []string) {
	if s == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	lines := FormatEntry(s.now().Format(TimeLayout), messages...)
	entry := strings.Join(lines, "")

	if s.path != "" {
		f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			Warnf("[Sink] open log file failed, path=%s, err=%v", s.path, err)
		} else {
			if _, err := io.WriteString(f, entry); err != nil {
				Warnf("[Sink] write log file failed, path=%s, err=%v", s.path, err)
			}
			f.Close()
		}
	}
	if (force || s.verbose) && s.console != nil {
		io.WriteString(s.console, entry)
	}
}

// FormatEntry renders messages as log lines. The first line carries the
// timestamp; the rest are indented by the timestamp width plus two spaces.
func FormatEntry(timestamp string, messages ...string) []string {
	indent := strings.Repeat(" ", len(timestamp))
	var out []string
	for _, m := range messages {
		for _, line := range strings.Split(m, "\n") {
			if len(out) == 0 {
				out = append(out, timestamp+": "+line+"\n")
				continue
			}
			out = append(out, indent+"  "+line+"\n")
		}
	}
	return out
}
