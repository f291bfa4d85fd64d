package identity

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventIdentityRegistered ActivityEventType = "identity.registered"
	ActivityEventUsernameChosen     ActivityEventType = "identity.username.chosen"
	ActivityEventLoginSuccess       ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure       ActivityEventType = "auth.login.failure"
	ActivityEventFederatedLogin     ActivityEventType = "auth.federated.login"
	ActivityEventAccountLinked      ActivityEventType = "account.linked"
	ActivityEventAccountUnlinked    ActivityEventType = "account.unlinked"
	ActivityEventSecretSaved        ActivityEventType = "secret.saved"
	ActivityEventSecretCleared      ActivityEventType = "secret.cleared"
)

// ActivityEvent captures audit-friendly information about an action.
// Metadata never carries passwords, tokens or secret values.
type ActivityEvent struct {
	EventType  ActivityEventType
	UserID     string
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}
