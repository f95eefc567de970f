// Package logger provides the structured JSON logger used across the cost
// pipeline. Collection and workflow context (client, orchestration, trace
// identifiers) is carried as first-class entry fields so log lines can be
// joined against orchestration results.
package logger

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// LogLevel represents the logging level.
type LogLevel int

const (
	DebugLevel LogLevel = iota
	InfoLevel
	WarnLevel
	ErrorLevel
	FatalLevel
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case DebugLevel:
		return "DEBUG"
	case InfoLevel:
		return "INFO"
	case WarnLevel:
		return "WARN"
	case ErrorLevel:
		return "ERROR"
	case FatalLevel:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel parses a log level from string, defaulting to InfoLevel.
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(level) {
	case "DEBUG":
		return DebugLevel
	case "INFO":
		return InfoLevel
	case "WARN", "WARNING":
		return WarnLevel
	case "ERROR":
		return ErrorLevel
	case "FATAL":
		return FatalLevel
	default:
		return InfoLevel
	}
}

// LogFormat represents the output format.
type LogFormat int

const (
	// TextFormat outputs human-readable text lines.
	TextFormat LogFormat = iota
	// JSONFormat outputs one JSON object per line.
	JSONFormat
)

// ParseLogFormat parses an output format from string, defaulting to JSON.
func ParseLogFormat(format string) LogFormat {
	if strings.EqualFold(format, "text") {
		return TextFormat
	}
	return JSONFormat
}

// Context keys promoted to dedicated entry fields.
const (
	FieldClientID        = "client_id"
	FieldOrchestrationID = "orchestration_id"
	FieldWorkflowID      = "workflow_id"
	FieldTraceID         = "trace_id"
)

// Logger is a structured logger. Loggers are immutable: With* methods return
// derived copies.
type Logger struct {
	level   LogLevel
	format  LogFormat
	output  io.Writer
	fields  map[string]interface{}
	service string
	version string
}

// Config represents logger configuration.
type Config struct {
	Level   LogLevel               `yaml:"level" json:"level"`
	Format  LogFormat              `yaml:"format" json:"format"`
	Output  io.Writer              `yaml:"-" json:"-"`
	Service string                 `yaml:"service" json:"service"`
	Version string                 `yaml:"version" json:"version"`
	Fields  map[string]interface{} `yaml:"fields" json:"fields"`
}

// LogEntry represents a single log entry.
type LogEntry struct {
	Timestamp       string                 `json:"timestamp"`
	Level           string                 `json:"level"`
	Message         string                 `json:"message"`
	Service         string                 `json:"service,omitempty"`
	Version         string                 `json:"version,omitempty"`
	ClientID        string                 `json:"client_id,omitempty"`
	OrchestrationID string                 `json:"orchestration_id,omitempty"`
	WorkflowID      string                 `json:"workflow_id,omitempty"`
	TraceID         string                 `json:"trace_id,omitempty"`
	Fields          map[string]interface{} `json:"fields,omitempty"`
}

// NewLogger creates a new structured logger.
func NewLogger(config *Config) *Logger {
	if config == nil {
		config = &Config{Level: InfoLevel, Format: JSONFormat}
	}
	if config.Output == nil {
		config.Output = os.Stdout
	}
	if config.Fields == nil {
		config.Fields = make(map[string]interface{})
	}
	return &Logger{
		level:   config.Level,
		format:  config.Format,
		output:  config.Output,
		fields:  config.Fields,
		service: config.Service,
		version: config.Version,
	}
}

// NewDefaultLogger creates a JSON logger at info level.
func NewDefaultLogger(service, version string) *Logger {
	return NewLogger(&Config{
		Level:   InfoLevel,
		Format:  JSONFormat,
		Service: service,
		Version: version,
	})
}

// WithField returns a derived logger with one additional field.
func (l *Logger) WithField(key string, value interface{}) *Logger {
	return l.WithFields(map[string]interface{}{key: value})
}

// WithFields returns a derived logger with additional fields.
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	merged := make(map[string]interface{}, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	clone := *l
	clone.fields = merged
	return &clone
}

// WithContext returns a derived logger carrying the pipeline identifiers
// present on the context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	fields := make(map[string]interface{})
	for _, key := range []string{FieldClientID, FieldOrchestrationID, FieldWorkflowID, FieldTraceID} {
		if value, ok := ctx.Value(key).(string); ok && value != "" {
			fields[key] = value
		}
	}
	if len(fields) == 0 {
		return l
	}
	return l.WithFields(fields)
}

// Debug logs a debug message.
func (l *Logger) Debug(message string, args ...interface{}) {
	l.log(DebugLevel, message, args...)
}

// Info logs an info message.
func (l *Logger) Info(message string, args ...interface{}) {
	l.log(InfoLevel, message, args...)
}

// Warn logs a warning message.
func (l *Logger) Warn(message string, args ...interface{}) {
	l.log(WarnLevel, message, args...)
}

// Error logs an error message.
func (l *Logger) Error(message string, args ...interface{}) {
	l.log(ErrorLevel, message, args...)
}

// Fatal logs a fatal message and exits.
func (l *Logger) Fatal(message string, args ...interface{}) {
	l.log(FatalLevel, message, args...)
	os.Exit(1)
}

func (l *Logger) log(level LogLevel, message string, args ...interface{}) {
	if level < l.level {
		return
	}
	if len(args) > 0 {
		message = fmt.Sprintf(message, args...)
	}

	entry := &LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     level.String(),
		Message:   message,
		Service:   l.service,
		Version:   l.version,
		Fields:    make(map[string]interface{}),
	}

	for k, v := range l.fields {
		s, isString := v.(string)
		switch {
		case k == FieldClientID && isString:
			entry.ClientID = s
		case k == FieldOrchestrationID && isString:
			entry.OrchestrationID = s
		case k == FieldWorkflowID && isString:
			entry.WorkflowID = s
		case k == FieldTraceID && isString:
			entry.TraceID = s
		default:
			entry.Fields[k] = v
		}
	}
	if len(entry.Fields) == 0 {
		entry.Fields = nil
	}

	l.writeEntry(entry)
}

func (l *Logger) writeEntry(entry *LogEntry) {
	var output string
	switch l.format {
	case JSONFormat:
		data, err := json.Marshal(entry)
		if err != nil {
			output = fmt.Sprintf("%s [%s] %s\n", entry.Timestamp, entry.Level, entry.Message)
		} else {
			output = string(data) + "\n"
		}
	default:
		output = l.formatTextEntry(entry)
	}
	l.output.Write([]byte(output))
}

func (l *Logger) formatTextEntry(entry *LogEntry) string {
	parts := []string{entry.Timestamp, fmt.Sprintf("[%s]", entry.Level)}
	if entry.Service != "" {
		parts = append(parts, fmt.Sprintf("service=%s", entry.Service))
	}
	if entry.ClientID != "" {
		parts = append(parts, fmt.Sprintf("client_id=%s", entry.ClientID))
	}
	if entry.OrchestrationID != "" {
		parts = append(parts, fmt.Sprintf("orchestration_id=%s", entry.OrchestrationID))
	}
	if entry.WorkflowID != "" {
		parts = append(parts, fmt.Sprintf("workflow_id=%s", entry.WorkflowID))
	}
	parts = append(parts, entry.Message)
	for k, v := range entry.Fields {
		parts = append(parts, fmt.Sprintf("%s=%v", k, v))
	}
	return strings.Join(parts, " ") + "\n"
}

// SetLevel sets the logging level.
func (l *Logger) SetLevel(level LogLevel) {
	l.level = level
}

// GetLevel returns the current logging level.
func (l *Logger) GetLevel() LogLevel {
	return l.level
}

// Global default logger.
var defaultLogger *Logger

// SetDefault sets the default global logger.
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// GetDefault returns the default global logger.
func GetDefault() *Logger {
	if defaultLogger == nil {
		defaultLogger = NewDefaultLogger("costlens", "1.0.0")
	}
	return defaultLogger
}

// Debug logs a debug message using the default logger.
func Debug(message string, args ...interface{}) {
	GetDefault().Debug(message, args...)
}

// Info logs an info message using the default logger.
func Info(message string, args ...interface{}) {
	GetDefault().Info(message, args...)
}

// Warn logs a warning message using the default logger.
func Warn(message string, args ...interface{}) {
	GetDefault().Warn(message, args...)
}

// Error logs an error message using the default logger.
func Error(message string, args ...interface{}) {
	GetDefault().Error(message, args...)
}

// WithField creates a logger with an additional field using the default logger.
func WithField(key string, value interface{}) *Logger {
	return GetDefault().WithField(key, value)
}

// WithContext creates a logger carrying context identifiers using the default logger.
func WithContext(ctx context.Context) *Logger {
	return GetDefault().WithContext(ctx)
}
