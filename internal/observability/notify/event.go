// Package notify defines security notifications and the sinks that deliver them.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// Severity ranks an event for routing.
type Severity string

// Severities recognised by downstream sinks, lowest first.
const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityCritical Severity = "critical"
)

func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 2
	case SeverityWarning:
		return 1
	default:
		return 0
	}
}

// EventType names what happened.
type EventType string

const (
	EventLogin                   EventType = "security.login"
	EventPasswordReset           EventType = "security.password_reset"
	EventVerificationIssued      EventType = "security.verification_issued"
	EventTOTPEnabled             EventType = "security.totp_enabled"
	EventTOTPDisabled            EventType = "security.totp_disabled"
	EventRecoveryCodeUsed        EventType = "security.recovery_code_used"
	EventRecoveryCodeRegenerated EventType = "security.recovery_code_regenerated"
	EventPasskeyAdded            EventType = "security.passkey_added"
	EventPasskeyRemoved          EventType = "security.passkey_removed"
	EventPasskeyCloneSuspected   EventType = "security.passkey_clone_suspected"
	EventSessionRevoked          EventType = "security.session_revoked"
	EventSessionsRevoked         EventType = "security.sessions_revoked"
	EventMembershipChanged       EventType = "org.membership_changed"
)

// Event is one notification. AccountPublicID and OrgID are set when known.
type Event struct {
	Type            EventType         `json:"type"`
	Severity        Severity          `json:"severity"`
	AccountID       int64             `json:"account_id,omitempty"`
	AccountPublicID string            `json:"account_public_id,omitempty"`
	OrgID           int64             `json:"org_id,omitempty"`
	Summary         string            `json:"summary"`
	OccurredAt      time.Time         `json:"occurred_at"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// Sink describes a destination capable of consuming notifications.
type Sink interface {
	Send(ctx context.Context, ev Event) error
}

// SinkFunc adapts a function to the Sink interface (useful for tests).
type SinkFunc func(ctx context.Context, ev Event) error

// Send implements the Sink interface.
func (f SinkFunc) Send(ctx context.Context, ev Event) error {
	if f == nil {
		return nil
	}
	return f(ctx, ev)
}

// Multi fans an event out to every sink and joins their errors.
func Multi(sinks ...Sink) Sink {
	live := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		if s != nil {
			live = append(live, s)
		}
	}
	return SinkFunc(func(ctx context.Context, ev Event) error {
		var errs []error
		for _, s := range live {
			if err := s.Send(ctx, ev); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// MinSeverity forwards only events at or above min.
func MinSeverity(sink Sink, minSeverity Severity) Sink {
	return SinkFunc(func(ctx context.Context, ev Event) error {
		if ev.Severity.rank() < minSeverity.rank() {
			return nil
		}
		return sink.Send(ctx, ev)
	})
}

// AsyncOptions configures Async.
type AsyncOptions struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// Async delivers events in the background so callers never wait on, or fail
// because of, a slow sink. Delivery errors are logged.
func Async(sink Sink, opts AsyncOptions) Sink {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return SinkFunc(func(ctx context.Context, ev Event) error {
		bg := context.WithoutCancel(ctx)
		go func() {
			sendCtx, cancel := context.WithTimeout(bg, timeout)
			defer cancel()
			if err := sink.Send(sendCtx, ev); err != nil {
				logger.WarnContext(sendCtx, "notification delivery failed", "type", ev.Type, "error", err)
			}
		}()
		return nil
	})
}

// Emit sends ev on sink, filling OccurredAt and Severity defaults. A nil sink
// is a no-op; failures are logged and never returned.
func Emit(ctx context.Context, sink Sink, logger *slog.Logger, ev Event) {
	if sink == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}
	if err := sink.Send(ctx, ev); err != nil && logger != nil {
		logger.WarnContext(ctx, "notification failed", "type", ev.Type, "error", err)
	}
}
