package logger

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/tomoyayamashita/ai-optout/internal/policy"
)

// Level represents log level
type Level string

const (
	LevelDebug Level = "debug"
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

var levelOrder = map[Level]int{
	LevelDebug: 0,
	LevelInfo:  1,
	LevelWarn:  2,
	LevelError: 3,
}

// ParseLevel converts a level name to a Level, defaulting to info
func ParseLevel(s string) Level {
	switch Level(s) {
	case LevelDebug, LevelWarn, LevelError:
		return Level(s)
	}
	return LevelInfo
}

// Logger provides JSON Lines logging
type Logger struct {
	mu     sync.Mutex
	writer io.Writer
	level  Level
}

// NewLogger creates a new Logger
func NewLogger(writer io.Writer, level Level) *Logger {
	if writer == nil {
		writer = os.Stdout
	}
	return &Logger{
		writer: writer,
		level:  level,
	}
}

// ComplianceCheckEvent represents a finished compliance run
type ComplianceCheckEvent struct {
	Timestamp         string  `json:"ts"`
	Level             string  `json:"level"`
	Event             string  `json:"event"`
	RunID             string  `json:"run_id"`
	OrganizationID    string  `json:"organization_id,omitempty"`
	Result            string  `json:"result"`
	Annotation        string  `json:"annotation"`
	PolicyTypeEnabled *bool   `json:"policy_type_enabled,omitempty"`
	Passed            bool    `json:"passed"`
	Mode              string  `json:"mode"`
	Policies          int     `json:"policies"`
	Findings          int     `json:"findings"`
	Advisories        int     `json:"advisories"`
	Errors            int     `json:"errors"`
	DurationMs        float64 `json:"duration_ms"`
}

// LogComplianceCheck logs a compliance check event
func (l *Logger) LogComplianceCheck(
	runID string,
	organizationID string,
	policies int,
	decision policy.Decision,
	duration time.Duration,
) {
	if !l.shouldLog(LevelInfo) {
		return
	}

	advisories := 0
	for _, f := range decision.Verdict.Findings {
		if f.Severity != policy.SeverityPass {
			advisories++
		}
	}

	event := ComplianceCheckEvent{
		Timestamp:         time.Now().UTC().Format(time.RFC3339Nano),
		Level:             string(LevelInfo),
		Event:             "compliance_check",
		RunID:             runID,
		OrganizationID:    organizationID,
		Result:            string(decision.Verdict.Result),
		Annotation:        decision.Verdict.Annotation,
		PolicyTypeEnabled: decision.Verdict.PolicyTypeEnabled,
		Passed:            decision.Passed,
		Mode:              string(decision.Mode),
		Policies:          policies,
		Findings:          len(decision.Verdict.Findings),
		Advisories:        advisories,
		Errors:            len(decision.Verdict.Errors),
		DurationMs:        float64(duration.Microseconds()) / 1000,
	}

	l.writeJSON(event)
}

// GenericEvent represents a generic log event
type GenericEvent struct {
	Timestamp string                 `json:"ts"`
	Level     string                 `json:"level"`
	Event     string                 `json:"event"`
	Message   string                 `json:"message,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
}

// Log logs a generic event
func (l *Logger) Log(level Level, event, message string, data map[string]interface{}) {
	e := GenericEvent{
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		Level:     string(level),
		Event:     event,
		Message:   message,
		Data:      data,
	}

	l.writeJSON(e)
}

// Debug logs a debug event
func (l *Logger) Debug(event, message string, data map[string]interface{}) {
	if l.shouldLog(LevelDebug) {
		l.Log(LevelDebug, event, message, data)
	}
}

// Info logs an info event
func (l *Logger) Info(event, message string, data map[string]interface{}) {
	if l.shouldLog(LevelInfo) {
		l.Log(LevelInfo, event, message, data)
	}
}

// Warn logs a warning event
func (l *Logger) Warn(event, message string, data map[string]interface{}) {
	if l.shouldLog(LevelWarn) {
		l.Log(LevelWarn, event, message, data)
	}
}

// Error logs an error event
func (l *Logger) Error(event, message string, data map[string]interface{}) {
	if l.shouldLog(LevelError) {
		l.Log(LevelError, event, message, data)
	}
}

// writeJSON writes a JSON line to the output
func (l *Logger) writeJSON(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		// Fallback to stderr if marshal fails
		os.Stderr.WriteString("Failed to marshal log: " + err.Error() + "\n")
		return
	}

	// Lookups run in parallel, keep lines whole
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writer.Write(append(data, '\n'))
}

// shouldLog checks if a log level should be logged
func (l *Logger) shouldLog(level Level) bool {
	return levelOrder[level] >= levelOrder[l.level]
}
