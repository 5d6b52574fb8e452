package chat

import (
	"context"
	"log/slog"

	servicegeek "github.com/service-geek/client"
)

// Permission is the host's notification permission state.
type Permission int

const (
	PermissionUndetermined Permission = iota
	PermissionGranted
	PermissionDenied
)

func (p Permission) String() string {
	switch p {
	case PermissionGranted:
		return "granted"
	case PermissionDenied:
		return "denied"
	default:
		return "undetermined"
	}
}

// Notification is one user-facing alert.
type Notification struct {
	Title string
	Body  string
	// Tag groups notifications so the host can replace an earlier one for
	// the same project instead of stacking them.
	Tag       string
	ProjectID string
	MessageID string
}

// Notifier is the host's notification capability.
type Notifier interface {
	Permission() Permission
	RequestPermission(ctx context.Context) (Permission, error)
	Show(ctx context.Context, n Notification) error
}

const notificationBodyLimit = 50

// NotificationTag returns the tag used for a project's notifications.
func NotificationTag(projectID string) string {
	return "project-chat:" + projectID
}

// Dispatcher turns incoming messages into notifications.
type Dispatcher struct {
	ProjectID     string
	Notifier      Notifier
	Enabled       bool
	CurrentUserID string
	Logger        *slog.Logger
	Metrics       *Metrics
}

// Dispatch shows a notification for msg if it qualifies, reporting
// whether one was shown. Host failures are logged and swallowed.
func (d *Dispatcher) Dispatch(ctx context.Context, msg servicegeek.Message) bool {
	if !d.Enabled || d.Notifier == nil || d.CurrentUserID == "" {
		return false
	}
	if msg.SenderID() == d.CurrentUserID {
		return false
	}

	switch d.Notifier.Permission() {
	case PermissionGranted:
	case PermissionUndetermined:
		p, err := d.Notifier.RequestPermission(ctx)
		if err != nil {
			d.logger().Warn("notification permission request failed", "error", err)
			return false
		}
		if p != PermissionGranted {
			return false
		}
	default:
		return false
	}

	n := Notification{
		Title:     "New message from " + msg.Author.DisplayName(),
		Body:      truncate(msg.Content, notificationBodyLimit),
		Tag:       NotificationTag(d.ProjectID),
		ProjectID: d.ProjectID,
		MessageID: msg.ID,
	}
	if err := d.Notifier.Show(ctx, n); err != nil {
		d.logger().Warn("showing notification failed", "message_id", msg.ID, "error", err)
		return false
	}
	d.Metrics.notificationShown()
	return true
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

func truncate(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit]) + "..."
}
