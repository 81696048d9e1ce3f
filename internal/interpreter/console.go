package interpreter

import (
	"fmt"
	"strings"
	"sync"

	"mapdna/platform/logger"
)

// LoggerConsole writes console output to a structured logger: Log at debug,
// Warn at warn and Error at error level.
type LoggerConsole struct {
	log *logger.Logger
}

// NewLoggerConsole adapts log.
func NewLoggerConsole(log *logger.Logger) *LoggerConsole {
	return &LoggerConsole{log: log}
}

func (c *LoggerConsole) Log(msg string, args ...any) {
	c.log.Debug(msg, consoleArgs(args)...)
}

func (c *LoggerConsole) Warn(msg string, args ...any) {
	c.log.Warn(msg, consoleArgs(args)...)
}

func (c *LoggerConsole) Error(msg string, args ...any) {
	c.log.Error(msg, consoleArgs(args)...)
}

func consoleArgs(args []any) []any {
	if len(args) == 0 {
		return nil
	}
	return []any{"args", args}
}

// Level is a console severity.
type Level string

const (
	LevelLog   Level = "log"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Entry is one recorded console message.
type Entry struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
	Args    []any  `json:"args,omitempty"`
}

// Transcript is a Console that records everything it receives.
type Transcript struct {
	mu      sync.Mutex
	entries []Entry
}

func (t *Transcript) Log(msg string, args ...any)   { t.add(LevelLog, msg, args) }
func (t *Transcript) Warn(msg string, args ...any)  { t.add(LevelWarn, msg, args) }
func (t *Transcript) Error(msg string, args ...any) { t.add(LevelError, msg, args) }

func (t *Transcript) add(level Level, msg string, args []any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.entries = append(t.entries, Entry{Level: level, Message: msg, Args: args})
}

// Entries returns a copy of the recorded messages.
func (t *Transcript) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Entry(nil), t.entries...)
}

// Messages returns the messages recorded at level.
func (t *Transcript) Messages(level Level) []string {
	var out []string
	for _, e := range t.Entries() {
		if e.Level == level {
			out = append(out, e.Message)
		}
	}
	return out
}

// Contains reports whether any message at level contains substr.
func (t *Transcript) Contains(level Level, substr string) bool {
	for _, m := range t.Messages(level) {
		if strings.Contains(m, substr) {
			return true
		}
	}
	return false
}

// String renders the transcript one message per line.
func (t *Transcript) String() string {
	var b strings.Builder
	for _, e := range t.Entries() {
		fmt.Fprintf(&b, "%-5s %s\n", e.Level, e.Message)
	}
	return b.String()
}
