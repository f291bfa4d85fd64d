// Package activitymap turns identity activity events into flat records for
// audit logs and downstream consumers.
package activitymap

import (
	"context"
	"strings"
	"time"

	"github.com/goliatone/go-identity"
)

// MetadataKeyRedacted lists the metadata keys dropped from a record.
const MetadataKeyRedacted = "redacted"

const (
	defaultChannel = "identity"
	defaultActorID = "system"
)

// sensitiveKeys never leave the process, whatever the producer put in metadata.
var sensitiveKeys = []string{"password", "secret", "token", "hash", "payload", "ciphertext"}

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
	clock         func() time.Time
}

// Normalize converts an identity.ActivityEvent into a Normalized record.
// The object type is the first segment of the event type ("secret" for
// "secret.saved"), the object id is the provider or secret name when the
// event carries one, the identity id otherwise.
func Normalize(event identity.ActivityEvent, opts ...Option) Normalized {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.clock().UTC()
	}

	verb := string(event.EventType)
	return Normalized{
		ActorID:    firstNonEmpty(strings.TrimSpace(event.UserID), options.actorFallback),
		Verb:       verb,
		ObjectType: objectType(verb),
		ObjectID:   objectID(event),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(event.Metadata),
		OccurredAt: occurredAt,
	}
}

// WithDefaultChannel sets the channel for normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		if channel = strings.TrimSpace(channel); channel != "" {
			opts.channel = channel
		}
	}
}

// WithActorFallback sets the actor id used when the event has no identity.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		if actorID = strings.TrimSpace(actorID); actorID != "" {
			opts.actorFallback = actorID
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.clock = now
		}
	}
}

// Recorder receives normalized records.
type Recorder func(ctx context.Context, record Normalized) error

// Sink adapts a Recorder into an identity.ActivitySink.
func Sink(record Recorder, opts ...Option) identity.ActivitySink {
	return identity.ActivitySinkFunc(func(ctx context.Context, event identity.ActivityEvent) error {
		if record == nil {
			return nil
		}
		return record(ctx, Normalize(event, opts...))
	})
}

// LogRecorder writes records to logger at info level.
func LogRecorder(logger identity.Logger) Recorder {
	if logger == nil {
		logger = identity.DefaultLogger()
	}
	return func(_ context.Context, r Normalized) error {
		args := []any{
			"verb", r.Verb,
			"actor_id", r.ActorID,
			"object_type", r.ObjectType,
			"object_id", r.ObjectID,
			"channel", r.Channel,
		}
		for key, value := range r.Metadata {
			args = append(args, key, value)
		}
		logger.Info("activity", args...)
		return nil
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		actorFallback: defaultActorID,
		clock:         time.Now,
	}
}

func objectType(verb string) string {
	head, _, _ := strings.Cut(verb, ".")
	switch head {
	case "auth", "identity":
		return "identity"
	}
	return head
}

func objectID(event identity.ActivityEvent) string {
	for _, key := range []string{"provider", "name"} {
		if value, ok := event.Metadata[key].(string); ok && strings.TrimSpace(value) != "" {
			return strings.TrimSpace(value)
		}
	}
	return strings.TrimSpace(event.UserID)
}

func normalizeMetadata(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}

	out := make(map[string]any, len(in))
	var redacted []string
	for key, value := range in {
		if sensitive(key) {
			redacted = append(redacted, key)
			continue
		}
		out[key] = value
	}
	if len(redacted) > 0 {
		out[MetadataKeyRedacted] = redacted
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func sensitive(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
