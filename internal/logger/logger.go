package logger

import (
	"encoding/json"
	"log"
	"os"
	"strings"
	"time"

	"github.com/getsentry/sentry-go"
)

type LogLevel int

const (
	DEBUG LogLevel = iota
	INFO
	WARN
	ERROR
)

func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel maps a LOG_LEVEL value to a level, falling back to INFO.
func ParseLevel(s string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "DEBUG":
		return DEBUG
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	default:
		return INFO
	}
}

// Fields is the structured payload attached to an entry.
type Fields = map[string]interface{}

type Logger struct {
	level LogLevel
}

type LogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Fields    Fields `json:"fields,omitempty"`
}

var defaultLogger = &Logger{level: INFO}

func New(level LogLevel) *Logger {
	return &Logger{level: level}
}

func SetLevel(level LogLevel) {
	defaultLogger.level = level
}

func (l *Logger) log(level LogLevel, message string, fields Fields) {
	if level < l.level {
		return
	}

	sanitizedFields := sanitizeFields(fields)

	entry := LogEntry{
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Level:     level.String(),
		Message:   message,
		Fields:    sanitizedFields,
	}

	jsonBytes, err := json.Marshal(entry)
	if err != nil {
		log.Printf("Failed to marshal log entry: %v", err)
		return
	}

	log.Println(string(jsonBytes))

	// Errors ride along with the next Sentry event for the request.
	if level >= ERROR {
		sentry.AddBreadcrumb(&sentry.Breadcrumb{
			Category:  "log",
			Message:   message,
			Level:     sentry.LevelError,
			Data:      sanitizedFields,
			Timestamp: time.Now(),
		})
	}
}

func (l *Logger) Debug(message string, fields ...Fields) {
	l.log(DEBUG, message, mergeFields(fields...))
}

func (l *Logger) Info(message string, fields ...Fields) {
	l.log(INFO, message, mergeFields(fields...))
}

func (l *Logger) Warn(message string, fields ...Fields) {
	l.log(WARN, message, mergeFields(fields...))
}

func (l *Logger) Error(message string, fields ...Fields) {
	l.log(ERROR, message, mergeFields(fields...))
}

func Debug(message string, fields ...Fields) {
	defaultLogger.Debug(message, fields...)
}

func Info(message string, fields ...Fields) {
	defaultLogger.Info(message, fields...)
}

func Warn(message string, fields ...Fields) {
	defaultLogger.Warn(message, fields...)
}

func Error(message string, fields ...Fields) {
	defaultLogger.Error(message, fields...)
}

func mergeFields(fieldMaps ...Fields) Fields {
	if len(fieldMaps) == 0 {
		return nil
	}
	result := make(Fields)
	for _, fields := range fieldMaps {
		for k, v := range fields {
			result[k] = v
		}
	}
	return result
}

var sensitiveKeys = []string{
	"key", "token", "secret", "password", "signature", "authorization", "auth", "dsn",
}

func isSensitive(key string) bool {
	keyLower := strings.ToLower(key)
	for _, sensitive := range sensitiveKeys {
		if strings.Contains(keyLower, sensitive) {
			return true
		}
	}
	return false
}

func sanitizeFields(fields Fields) Fields {
	if fields == nil {
		return nil
	}

	sanitized := make(Fields, len(fields))
	for k, v := range fields {
		if !isSensitive(k) {
			sanitized[k] = v
			continue
		}

		// Long values keep 3 chars on each side so ids stay correlatable.
		if str, ok := v.(string); ok && len(str) > 8 {
			sanitized[k] = str[:3] + "..." + str[len(str)-3:]
		} else {
			sanitized[k] = "[REDACTED]"
		}
	}

	return sanitized
}

func init() {
	// Only WARN and ERROR during tests.
	if os.Getenv("GO_ENV") == "test" || strings.HasSuffix(os.Args[0], ".test") {
		SetLevel(WARN)
		return
	}

	SetLevel(ParseLevel(os.Getenv("LOG_LEVEL")))
}
