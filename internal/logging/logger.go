package logging

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LogEntry is the JSON shape of a single log line.
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// Logger writes one JSON object per line. Loggers derived with WithField share
// the parent's output and level.
type Logger struct {
	core   *core
	fields map[string]interface{}
}

type core struct {
	mu    sync.Mutex
	out   io.Writer
	level Level
}

func New() *Logger {
	return &Logger{core: &core{out: os.Stdout, level: LevelInfo}}
}

func (l *Logger) SetOutput(w io.Writer) *Logger {
	l.core.mu.Lock()
	l.core.out = w
	l.core.mu.Unlock()
	return l
}

func (l *Logger) SetLevel(level Level) *Logger {
	l.core.mu.Lock()
	l.core.level = level
	l.core.mu.Unlock()
	return l
}

func (l *Logger) WithField(key string, value interface{}) *Logger {
	fields := make(map[string]interface{}, len(l.fields)+1)
	for k, v := range l.fields {
		fields[k] = v
	}
	fields[key] = value
	return &Logger{core: l.core, fields: fields}
}

func (l *Logger) Debug(msg string, fields ...map[string]interface{}) {
	l.log(LevelDebug, msg, fields)
}

func (l *Logger) Info(msg string, fields ...map[string]interface{}) {
	l.log(LevelInfo, msg, fields)
}

func (l *Logger) Warn(msg string, fields ...map[string]interface{}) {
	l.log(LevelWarn, msg, fields)
}

func (l *Logger) Error(msg string, fields ...map[string]interface{}) {
	l.log(LevelError, msg, fields)
}

func (l *Logger) log(level Level, msg string, extra []map[string]interface{}) {
	l.core.mu.Lock()
	defer l.core.mu.Unlock()
	if level < l.core.level {
		return
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   msg,
	}
	if len(l.fields) > 0 || len(extra) > 0 {
		entry.Fields = make(map[string]interface{}, len(l.fields))
		for k, v := range l.fields {
			entry.Fields[k] = v
		}
		for _, m := range extra {
			for k, v := range m {
				entry.Fields[k] = v
			}
		}
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = l.core.out.Write(data)
}

// Default is the process-wide logger used by the package-level helpers.
var Default = New()

func SetDefaultLevel(level Level) {
	Default.SetLevel(level)
}

func Debug(msg string, fields ...map[string]interface{}) {
	Default.Debug(msg, fields...)
}

func Info(msg string, fields ...map[string]interface{}) {
	Default.Info(msg, fields...)
}

func Warn(msg string, fields ...map[string]interface{}) {
	Default.Warn(msg, fields...)
}

func Error(msg string, fields ...map[string]interface{}) {
	Default.Error(msg, fields...)
}
