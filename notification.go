package signin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-print"
)

// EventType enumerates the audit notifications a coordinator emits.
type EventType string

const (
	EventLoginSuccess              EventType = "signin.login.success"
	EventLoginFailed               EventType = "signin.login.failed"
	EventLoginRequiresVerification EventType = "signin.login.requires_verification"
	EventAccountLocked             EventType = "signin.account.locked"
	EventAccountUnlocked           EventType = "signin.account.unlocked"
	EventPasswordChanged           EventType = "signin.password.changed"
	EventLogoutSuccess             EventType = "signin.logout.success"
)

// UnknownUserName replaces a blank user name on failed login notifications.
const UnknownUserName = "UNKNOWN"

// Notification captures audit-friendly information about a sign-in step.
type Notification struct {
	Type             EventType
	IPAddress        string
	PerformingUserID string
	AffectedUserID   string
	AffectedUserName string
	Scheme           string
	Metadata         map[string]any
	OccurredAt       time.Time
}

// NotificationSink consumes notifications. Emission is best effort: a
// failing sink never changes the outcome of the operation that emitted it.
type NotificationSink interface {
	Emit(ctx context.Context, n Notification) error
}

// NotificationSinkFunc adapts a function to the NotificationSink interface.
type NotificationSinkFunc func(ctx context.Context, n Notification) error

// Emit implements NotificationSink.
func (f NotificationSinkFunc) Emit(ctx context.Context, n Notification) error {
	if f == nil {
		return nil
	}
	return f(ctx, n)
}

type noopNotificationSink struct{}

func (noopNotificationSink) Emit(context.Context, Notification) error {
	return nil
}

func normalizeNotificationSink(s NotificationSink) NotificationSink {
	if s == nil {
		return noopNotificationSink{}
	}
	return s
}

// MultiSink fans a notification out to every sink, returning the first error.
type MultiSink []NotificationSink

// Emit implements NotificationSink.
func (m MultiSink) Emit(ctx context.Context, n Notification) error {
	var first error
	for _, sink := range m {
		if sink == nil {
			continue
		}
		if err := sink.Emit(ctx, n); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// LoggingSink writes every notification to a Logger.
type LoggingSink struct {
	Logger Logger
}

// NewLoggingSink returns a sink that logs through logger, or the default
// stdout logger when nil.
func NewLoggingSink(logger Logger) *LoggingSink {
	if logger == nil {
		logger = defLogger{}
	}
	return &LoggingSink{Logger: logger}
}

// Emit implements NotificationSink.
func (s *LoggingSink) Emit(_ context.Context, n Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = defLogger{}
	}

	msg := fmt.Sprintf("%s user=%s id=%s ip=%s by=%s",
		n.Type, n.AffectedUserName, n.AffectedUserID, n.IPAddress, n.PerformingUserID)
	if len(n.Metadata) > 0 {
		msg += " metadata=" + print.MaybePrettyJSON(n.Metadata)
	}

	switch n.Type {
	case EventLoginFailed, EventAccountLocked:
		logger.Warn(escapePercent(msg))
	default:
		logger.Info(escapePercent(msg))
	}
	return nil
}

func escapePercent(s string) string {
	return strings.ReplaceAll(s, "%", "%%")
}

func emit(ctx context.Context, sink NotificationSink, logger Logger, n Notification) {
	if err := sink.Emit(ctx, n); err != nil {
		logger.Error("notification %s failed: %v", n.Type, err)
	}
}
