// Package logging provides structured logging with trace support for the
// conversion pipeline and the MCP serve path.
package logging

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Logger interface for structured logging with trace support
type Logger interface {
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Debug(msg string, fields ...interface{})

	// Context-aware logging with trace IDs
	InfoContext(ctx context.Context, msg string, fields ...interface{})
	WarnContext(ctx context.Context, msg string, fields ...interface{})
	ErrorContext(ctx context.Context, msg string, fields ...interface{})
	DebugContext(ctx context.Context, msg string, fields ...interface{})

	WithTraceID(traceID string) Logger
	WithComponent(component string) Logger
}

// LogEntry represents a structured log entry
type LogEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	TraceID   string                 `json:"trace_id,omitempty"`
	Component string                 `json:"component,omitempty"`
	File      string                 `json:"file,omitempty"`
	Line      int                    `json:"line,omitempty"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// ContextKey represents keys used in context for trace IDs
type ContextKey string

const (
	TraceIDKey ContextKey = "trace_id"
)

// LogLevel represents logging levels
type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

// StructuredLogger implements structured logging with JSON output
type StructuredLogger struct {
	level     LogLevel
	traceID   string
	component string
	useJSON   bool
	out       io.Writer
}

// NewLogger creates a new structured logger writing to stderr. Stdout is
// reserved for the MCP stdio transport.
func NewLogger(level LogLevel) Logger {
	return &StructuredLogger{
		level:   level,
		useJSON: getEnvBool("LOG_JSON", true),
		out:     os.Stderr,
	}
}

// NewLoggerWithWriter creates a logger writing to an explicit destination.
// The serve path passes a BufferedWriter so log writes never block queries.
func NewLoggerWithWriter(level LogLevel, w io.Writer) Logger {
	return &StructuredLogger{
		level:   level,
		useJSON: getEnvBool("LOG_JSON", true),
		out:     w,
	}
}

func getEnvBool(key string, defaultValue bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val == "true" || val == "1"
}

// WithTraceID creates a new logger with a trace ID
func (l *StructuredLogger) WithTraceID(traceID string) Logger {
	clone := *l
	clone.traceID = traceID
	return &clone
}

// WithComponent creates a new logger with a component name
func (l *StructuredLogger) WithComponent(component string) Logger {
	clone := *l
	clone.component = component
	return &clone
}

func (l *StructuredLogger) Info(msg string, fields ...interface{}) {
	if l.level <= INFO {
		l.logEntry("INFO", msg, "", fields...)
	}
}

func (l *StructuredLogger) InfoContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= INFO {
		l.logEntry("INFO", msg, GetTraceID(ctx), fields...)
	}
}

func (l *StructuredLogger) Warn(msg string, fields ...interface{}) {
	if l.level <= WARN {
		l.logEntry("WARN", msg, "", fields...)
	}
}

func (l *StructuredLogger) WarnContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= WARN {
		l.logEntry("WARN", msg, GetTraceID(ctx), fields...)
	}
}

func (l *StructuredLogger) Error(msg string, fields ...interface{}) {
	if l.level <= ERROR {
		l.logEntry("ERROR", msg, "", fields...)
	}
}

func (l *StructuredLogger) ErrorContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= ERROR {
		l.logEntry("ERROR", msg, GetTraceID(ctx), fields...)
	}
}

func (l *StructuredLogger) Debug(msg string, fields ...interface{}) {
	if l.level <= DEBUG {
		l.logEntry("DEBUG", msg, "", fields...)
	}
}

func (l *StructuredLogger) DebugContext(ctx context.Context, msg string, fields ...interface{}) {
	if l.level <= DEBUG {
		l.logEntry("DEBUG", msg, GetTraceID(ctx), fields...)
	}
}

// logEntry creates and outputs a structured log entry
func (l *StructuredLogger) logEntry(level, msg, contextTraceID string, fields ...interface{}) {
	traceID := l.traceID
	if contextTraceID != "" {
		traceID = contextTraceID
	}

	_, file, line, ok := runtime.Caller(3)
	if !ok {
		file = "unknown"
		line = 0
	} else {
		parts := strings.Split(file, "/")
		file = parts[len(parts)-1]
	}

	fieldMap := make(map[string]interface{})
	for i := 0; i < len(fields); i += 2 {
		if i+1 < len(fields) {
			key := fmt.Sprintf("%v", fields[i])
			fieldMap[key] = fields[i+1]
		} else {
			fieldMap[fmt.Sprintf("field_%d", i)] = fields[i]
		}
	}

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level,
		Message:   msg,
		TraceID:   traceID,
		Component: l.component,
		File:      file,
		Line:      line,
		Fields:    fieldMap,
	}

	if l.useJSON {
		l.outputJSON(entry)
	} else {
		l.outputText(entry)
	}
}

func (l *StructuredLogger) outputJSON(entry LogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to marshal log entry: %v\n", err)
		return
	}
	fmt.Fprintln(l.out, string(data))
}

func (l *StructuredLogger) outputText(entry LogEntry) {
	var parts []string

	parts = append(parts, entry.Timestamp)
	parts = append(parts, fmt.Sprintf("[%s]", entry.Level))

	if len(entry.TraceID) >= 8 {
		parts = append(parts, fmt.Sprintf("trace:%s", entry.TraceID[:8]))
	}

	if entry.Component != "" {
		parts = append(parts, fmt.Sprintf("component:%s", entry.Component))
	}

	parts = append(parts, entry.Message)

	for k, v := range entry.Fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}

	if entry.File != "" && entry.Line > 0 {
		parts = append(parts, fmt.Sprintf("(%s:%d)", entry.File, entry.Line))
	}

	fmt.Fprintln(l.out, strings.Join(parts, " "))
}

// Default logger instance
var defaultLogger = NewLogger(INFO)

// Package-level functions for convenience
func Info(msg string, fields ...interface{}) {
	defaultLogger.Info(msg, fields...)
}

func Warn(msg string, fields ...interface{}) {
	defaultLogger.Warn(msg, fields...)
}

func Error(msg string, fields ...interface{}) {
	defaultLogger.Error(msg, fields...)
}

func Debug(msg string, fields ...interface{}) {
	defaultLogger.Debug(msg, fields...)
}

// Trace ID utilities

func GenerateTraceID() string {
	return uuid.New().String()
}

func WithTraceID(ctx context.Context, traceID string) context.Context {
	if traceID == "" {
		traceID = GenerateTraceID()
	}
	return context.WithValue(ctx, TraceIDKey, traceID)
}

func GetTraceID(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if traceID, ok := ctx.Value(TraceIDKey).(string); ok {
		return traceID
	}
	return ""
}

// WithComponent creates a component logger from the default logger
func WithComponent(component string) Logger {
	return defaultLogger.WithComponent(component)
}

// ParseLogLevel parses a level name, defaulting to INFO
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// SetDefaultLogger sets the default logger instance
func SetDefaultLogger(logger Logger) {
	defaultLogger = logger
}
