// Package messaging defines the event protocol between the automation driver
// and its controller: human-readable log narration, numeric progress, and the
// terminal run outcome.
package messaging

import "time"

// Severity classifies a log message for the controller's display.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is a message sent from the driver to the controller.
type Event interface {
	event()
}

// LogMessage is human-readable progress narration.
type LogMessage struct {
	Message   string    `json:"message"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
}

// ProgressUpdate reports numeric progress after each processed work item.
type ProgressUpdate struct {
	Current int `json:"current"`
	Total   int `json:"total"`
}

// RunComplete is the terminal outcome of a run. A user stop is reported as
// Success=false with the stop reason, but is not an error outcome.
type RunComplete struct {
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
	IsRemoval bool   `json:"isRemoval,omitempty"`
}

func (LogMessage) event()     {}
func (ProgressUpdate) event() {}
func (RunComplete) event()    {}

// Notifier is the driver-facing send side of the protocol.
type Notifier interface {
	Log(message string, severity Severity)
	Progress(current, total int)
	Complete(outcome RunComplete)
}
