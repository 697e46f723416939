// Package auditlog is a second, deliberately simple logging surface for
// discrete named business events (connection rejections, connection
// opened/closed) that downstream alerting wants to grep for
// independent of the high-volume structured request log in
// internal/logging.
package auditlog

import (
	"encoding/json"
	"log"
	"os"
	"time"
)

// Level is the severity of an audit event.
type Level string

const (
	Debug    Level = "DEBUG"
	Info     Level = "INFO"
	Warning  Level = "WARNING"
	Error    Level = "ERROR"
	Critical Level = "CRITICAL"
)

var levelOrder = map[Level]int{
	Debug: 0, Info: 1, Warning: 2, Error: 3, Critical: 4,
}

// Event is one auditable occurrence, logged as a single line of JSON.
type Event struct {
	Level     Level          `json:"level"`
	Timestamp time.Time      `json:"timestamp"`
	Name      string         `json:"event"`
	SocketID  string         `json:"socket_id,omitempty"`
	Message   string         `json:"message"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Logger writes audit events below minLevel are dropped, matching the
// filtering semantics the donor's AuditLogger uses for performance.
type Logger struct {
	out      *log.Logger
	minLevel Level
}

// New creates an audit Logger that writes events at or above minLevel to
// stdout as single-line JSON.
func New(minLevel Level) *Logger {
	return &Logger{
		out:      log.New(os.Stdout, "", 0),
		minLevel: minLevel,
	}
}

// Log writes event if its level meets the configured minimum.
func (l *Logger) Log(event Event) {
	if levelOrder[event.Level] < levelOrder[l.minLevel] {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	line, err := json.Marshal(event)
	if err != nil {
		l.out.Printf("failed to marshal audit event: %v", err)
		return
	}
	l.out.Println(string(line))
}

func (l *Logger) log(level Level, name, message string, metadata map[string]any) {
	l.Log(Event{Level: level, Name: name, Message: message, Metadata: metadata})
}

// Info logs an INFO-level business event.
func (l *Logger) Info(name, message string, metadata map[string]any) {
	l.log(Info, name, message, metadata)
}

// Warning logs a WARNING-level business event.
func (l *Logger) Warning(name, message string, metadata map[string]any) {
	l.log(Warning, name, message, metadata)
}

// Error logs an ERROR-level business event.
func (l *Logger) Error(name, message string, metadata map[string]any) {
	l.log(Error, name, message, metadata)
}

// Critical logs a CRITICAL-level business event.
func (l *Logger) Critical(name, message string, metadata map[string]any) {
	l.log(Critical, name, message, metadata)
}

// WithSocket returns a helper bound to one socket-id, so callers on a
// per-connection code path don't have to repeat it.
func (l *Logger) WithSocket(socketID string) *SocketLogger {
	return &SocketLogger{logger: l, socketID: socketID}
}

// SocketLogger is an auditlog.Logger scoped to a single connection.
type SocketLogger struct {
	logger   *Logger
	socketID string
}

func (s *SocketLogger) log(level Level, name, message string, metadata map[string]any) {
	s.logger.Log(Event{Level: level, Name: name, SocketID: s.socketID, Message: message, Metadata: metadata})
}

// Info logs an INFO-level event for this connection.
func (s *SocketLogger) Info(name, message string, metadata map[string]any) {
	s.log(Info, name, message, metadata)
}

// Warning logs a WARNING-level event for this connection.
func (s *SocketLogger) Warning(name, message string, metadata map[string]any) {
	s.log(Warning, name, message, metadata)
}

// Error logs an ERROR-level event for this connection.
func (s *SocketLogger) Error(name, message string, metadata map[string]any) {
	s.log(Error, name, message, metadata)
}
