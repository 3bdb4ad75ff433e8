// Package notify delivers fire-and-forget user notifications.
package notify

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// Severity of a notification
type Severity int

const (
	SeverityOK Severity = iota
	SeverityInfo
	SeverityWarning
	SeverityError
)

// String returns the string representation of Severity
func (s Severity) String() string {
	switch s {
	case SeverityOK:
		return "ok"
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	default:
		return "unknown"
	}
}

// Notification is a user-facing message
type Notification struct {
	Severity Severity `json:"severity"`
	Title    string   `json:"title"`
	Body     string   `json:"body"`
}

// Notifier delivers notifications. Implementations must not block for long
// and never fail the caller.
type Notifier interface {
	Notify(n Notification)
}

// LogNotifier writes notifications to the logrus logger
type LogNotifier struct {
	Logger logrus.FieldLogger
}

// NewLogNotifier creates a notifier logging through the standard logger
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{Logger: logrus.StandardLogger()}
}

// Notify implements Notifier
func (l *LogNotifier) Notify(n Notification) {
	entry := l.Logger.WithField("title", n.Title)
	switch n.Severity {
	case SeverityError:
		entry.Error(n.Body)
	case SeverityWarning:
		entry.Warn(n.Body)
	default:
		entry.Info(n.Body)
	}
}

// ConsoleNotifier prints colored notifications to a writer
type ConsoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleNotifier creates a console notifier writing to out, or stderr
// when out is nil
func NewConsoleNotifier(out io.Writer) *ConsoleNotifier {
	if out == nil {
		out = os.Stderr
	}
	return &ConsoleNotifier{out: out}
}

var severityColors = map[Severity]*color.Color{
	SeverityOK:      color.New(color.FgGreen, color.Bold),
	SeverityInfo:    color.New(color.FgCyan),
	SeverityWarning: color.New(color.FgYellow, color.Bold),
	SeverityError:   color.New(color.FgRed, color.Bold),
}

// Notify implements Notifier
func (c *ConsoleNotifier) Notify(n Notification) {
	c.mu.Lock()
	defer c.mu.Unlock()

	label := fmt.Sprintf("[%s]", n.Severity)
	if col, ok := severityColors[n.Severity]; ok {
		label = col.Sprint(label)
	}
	if n.Title != "" {
		fmt.Fprintf(c.out, "%s %s: %s\n", label, n.Title, n.Body)
		return
	}
	fmt.Fprintf(c.out, "%s %s\n", label, n.Body)
}

// Recorder keeps every notification in memory
type Recorder struct {
	mu            sync.Mutex
	notifications []Notification
}

// Notify implements Notifier
func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

// Notifications returns a copy of the recorded notifications
func (r *Recorder) Notifications() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Notification, len(r.notifications))
	copy(out, r.notifications)
	return out
}

// Multi fans a notification out to several notifiers
type Multi []Notifier

// Notify implements Notifier
func (m Multi) Notify(n Notification) {
	for _, notifier := range m {
		if notifier != nil {
			notifier.Notify(n)
		}
	}
}

// Discard drops every notification
var Discard Notifier = Multi(nil)
