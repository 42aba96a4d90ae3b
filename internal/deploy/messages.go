package deploy

import (
	"fmt"
	"io"
)

// Severity classifies a deployment message. It is assigned at emission
// time and carried with the message; it is never inferred from text.
type Severity int

const (
	Info Severity = iota
	Warning
	Error
)

// String returns the display prefix for a severity.
func (s Severity) String() string {
	switch s {
	case Warning:
		return "WARNING"
	case Error:
		return "ERROR"
	default:
		return "INFO"
	}
}

// Message is a single leveled entry in a deployment's message stream.
type Message struct {
	Severity Severity `json:"severity"`
	Text     string   `json:"text"`
}

// MessageLog is an append-only, ordered message stream. It is not safe
// for concurrent use; each deployment attempt owns its own log.
type MessageLog struct {
	messages []Message
}

// Infof appends an Info message.
func (l *MessageLog) Infof(format string, args ...interface{}) {
	l.append(Info, format, args...)
}

// Warnf appends a Warning message.
func (l *MessageLog) Warnf(format string, args ...interface{}) {
	l.append(Warning, format, args...)
}

// Errorf appends an Error message.
func (l *MessageLog) Errorf(format string, args ...interface{}) {
	l.append(Error, format, args...)
}

func (l *MessageLog) append(sev Severity, format string, args ...interface{}) {
	l.messages = append(l.messages, Message{Severity: sev, Text: fmt.Sprintf(format, args...)})
}

// Messages returns the accumulated messages in emission order.
func (l *MessageLog) Messages() []Message {
	return l.messages
}

// HasSeverity reports whether any message of the given severity was emitted.
func (l *MessageLog) HasSeverity(sev Severity) bool {
	for _, m := range l.messages {
		if m.Severity == sev {
			return true
		}
	}
	return false
}

// Render writes the log to w, one line per message, severity-prefixed.
func (l *MessageLog) Render(w io.Writer) {
	for _, m := range l.messages {
		fmt.Fprintf(w, "[%s] %s\n", m.Severity, m.Text)
	}
}
