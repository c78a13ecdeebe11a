// Package logger provides the structured logging implementation used by the
// aipo CLI and engine. It implements internal/core.Logger.
//
// Supported levels, in order of severity: DEBUG, INFO, WARN, ERROR. The
// active level and output format (json|text) are set via AIPO_LOG_LEVEL and
// the log_format config key (see internal/config), or directly through New.
package logger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/aipolab/aipo/internal/core"
)

// Level is a logging severity.
type Level int

const (
	DebugLevel Level = iota
	InfoLevel
	WarnLevel
	ErrorLevel
)

func ParseLevel(s string) Level {
	switch strings.ToUpper(s) {
	case "DEBUG":
		return DebugLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	default:
		return InfoLevel
	}
}

func (l Level) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	default:
		return "INFO"
	}
}

// SimpleLogger is a production-ready core.Logger: JSON or text output,
// configurable level, and persistent fields for child loggers.
type SimpleLogger struct {
	out    io.Writer
	level  Level
	json   bool
	fields map[string]interface{}
}

// Option configures a SimpleLogger at construction time.
type Option func(*SimpleLogger)

func WithWriter(w io.Writer) Option { return func(l *SimpleLogger) { l.out = w } }
func WithLevel(lvl Level) Option    { return func(l *SimpleLogger) { l.level = lvl } }
func WithJSON(enabled bool) Option  { return func(l *SimpleLogger) { l.json = enabled } }

// New creates a SimpleLogger writing to os.Stderr at INFO level in text format
// unless overridden by opts.
func New(opts ...Option) *SimpleLogger {
	l := &SimpleLogger{
		out:    os.Stderr,
		level:  InfoLevel,
		json:   false,
		fields: map[string]interface{}{},
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

var _ core.Logger = (*SimpleLogger)(nil)

func (l *SimpleLogger) Debug(msg string, fields map[string]interface{}) { l.log(DebugLevel, msg, fields) }
func (l *SimpleLogger) Info(msg string, fields map[string]interface{})  { l.log(InfoLevel, msg, fields) }
func (l *SimpleLogger) Warn(msg string, fields map[string]interface{})  { l.log(WarnLevel, msg, fields) }
func (l *SimpleLogger) Error(msg string, fields map[string]interface{}) { l.log(ErrorLevel, msg, fields) }

// With returns a child logger that merges fields into every subsequent call.
func (l *SimpleLogger) With(fields map[string]interface{}) core.Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &SimpleLogger{out: l.out, level: l.level, json: l.json, fields: merged}
}

func (l *SimpleLogger) log(level Level, msg string, fields map[string]interface{}) {
	if level < l.level {
		return
	}
	merged := make(map[string]interface{}, len(l.fields)+len(fields)+2)
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	merged["level"] = level.String()
	merged["msg"] = msg
	merged["ts"] = time.Now().UTC().Format(time.RFC3339Nano)

	if l.json {
		b, err := json.Marshal(merged)
		if err != nil {
			fmt.Fprintf(l.out, "[%s] %s (marshal error: %v)\n", level, msg, err)
			return
		}
		fmt.Fprintln(l.out, string(b))
		return
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		if k == "level" || k == "msg" || k == "ts" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := []string{fmt.Sprintf("%s [%s] %s", merged["ts"], merged["level"], merged["msg"])}
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, merged[k]))
	}
	fmt.Fprintln(l.out, strings.Join(parts, " "))
}
