// Package notify defines the transient notifications shown to calendar users.
package notify

import "context"

// Level is the indicator of a notification.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is a short message for the user, optionally tied to a meeting.
type Notification struct {
	Level     Level  `json:"level"`
	Message   string `json:"message"`
	MeetingID string `json:"meeting_id,omitempty"`
	Client    string `json:"client,omitempty"`
}

// Notifier delivers notifications. Implementations must not block for long.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Func adapts a function to Notifier.
type Func func(ctx context.Context, n Notification)

// Notify calls f.
func (f Func) Notify(ctx context.Context, n Notification) { f(ctx, n) }

// Discard drops every notification.
var Discard Notifier = Func(func(context.Context, Notification) {})
