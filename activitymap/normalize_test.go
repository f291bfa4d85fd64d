package activitymap_test

import (
	"context"
	"testing"
	"time"

	"github.com/goliatone/go-identity"
	"github.com/goliatone/go-identity/activitymap"
)

func TestNormalizeDefaults(t *testing.T) {
	t.Parallel()

	ts := time.Date(2026, 1, 10, 9, 30, 0, 0, time.UTC)
	event := identity.ActivityEvent{
		EventType: identity.ActivityEventAccountUnlinked,
		UserID:    "user-100",
		Metadata: map[string]any{
			"provider": "github",
		},
		OccurredAt: ts,
	}

	out := activitymap.Normalize(event)

	if out.ActorID != "user-100" {
		t.Fatalf("expected actor_id user-100, got %q", out.ActorID)
	}
	if out.Verb != string(identity.ActivityEventAccountUnlinked) {
		t.Fatalf("expected verb %q, got %q", identity.ActivityEventAccountUnlinked, out.Verb)
	}
	if out.ObjectType != "account" {
		t.Fatalf("expected object_type account, got %q", out.ObjectType)
	}
	if out.ObjectID != "github" {
		t.Fatalf("expected object_id github, got %q", out.ObjectID)
	}
	if out.Channel != "identity" {
		t.Fatalf("expected channel identity, got %q", out.Channel)
	}
	if !out.OccurredAt.Equal(ts) {
		t.Fatalf("expected occurred_at %v, got %v", ts, out.OccurredAt)
	}
	if out.Metadata["provider"] != "github" {
		t.Fatalf("expected metadata provider github, got %#v", out.Metadata["provider"])
	}

	out.Metadata["provider"] = "mutated"
	if event.Metadata["provider"] != "github" {
		t.Fatalf("expected source metadata to remain unchanged, got %+v", event.Metadata)
	}
}

func TestNormalizeObjects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		event      identity.ActivityEvent
		objectType string
		objectID   string
	}{
		{
			name:       "login is about the identity",
			event:      identity.ActivityEvent{EventType: identity.ActivityEventLoginSuccess, UserID: "u1"},
			objectType: "identity",
			objectID:   "u1",
		},
		{
			name:       "registration is about the identity",
			event:      identity.ActivityEvent{EventType: identity.ActivityEventIdentityRegistered, UserID: "u2"},
			objectType: "identity",
			objectID:   "u2",
		},
		{
			name: "secret events point at the secret name",
			event: identity.ActivityEvent{
				EventType: identity.ActivityEventSecretSaved,
				UserID:    "u3",
				Metadata:  map[string]any{"name": "openai_api_key"},
			},
			objectType: "secret",
			objectID:   "openai_api_key",
		},
		{
			name: "federated login points at the provider",
			event: identity.ActivityEvent{
				EventType: identity.ActivityEventFederatedLogin,
				UserID:    "u4",
				Metadata:  map[string]any{"provider": "google", "is_new_user": true},
			},
			objectType: "identity",
			objectID:   "google",
		},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			out := activitymap.Normalize(tc.event)
			if out.ObjectType != tc.objectType {
				t.Fatalf("expected object_type %q, got %q", tc.objectType, out.ObjectType)
			}
			if out.ObjectID != tc.objectID {
				t.Fatalf("expected object_id %q, got %q", tc.objectID, out.ObjectID)
			}
		})
	}
}

func TestNormalizeRedactsSensitiveMetadata(t *testing.T) {
	t.Parallel()

	event := identity.ActivityEvent{
		EventType: identity.ActivityEventSecretSaved,
		UserID:    "user-1",
		Metadata: map[string]any{
			"name":          "weather_key",
			"plain_secret":  "sk-live",
			"access_token":  "gho_x",
			"password_hash": "$2a$10$",
		},
	}

	out := activitymap.Normalize(event)

	for _, key := range []string{"plain_secret", "access_token", "password_hash"} {
		if _, ok := out.Metadata[key]; ok {
			t.Fatalf("expected %s to be redacted, got %#v", key, out.Metadata)
		}
	}
	redacted, ok := out.Metadata[activitymap.MetadataKeyRedacted].([]string)
	if !ok || len(redacted) != 3 {
		t.Fatalf("expected three redacted keys, got %#v", out.Metadata[activitymap.MetadataKeyRedacted])
	}
	if out.Metadata["name"] != "weather_key" {
		t.Fatalf("expected name to survive, got %#v", out.Metadata["name"])
	}
}

func TestNormalizeOptionOverrides(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	out := activitymap.Normalize(
		identity.ActivityEvent{EventType: identity.ActivityEventLoginFailure},
		activitymap.WithDefaultChannel("security"),
		activitymap.WithActorFallback("anonymous"),
		activitymap.WithClock(func() time.Time { return now }),
	)

	if out.Channel != "security" {
		t.Fatalf("expected channel security, got %q", out.Channel)
	}
	if out.ActorID != "anonymous" {
		t.Fatalf("expected actor_id anonymous, got %q", out.ActorID)
	}
	if !out.OccurredAt.Equal(now) {
		t.Fatalf("expected occurred_at %v, got %v", now, out.OccurredAt)
	}
	if out.Metadata != nil {
		t.Fatalf("expected no metadata, got %#v", out.Metadata)
	}
}

func TestSinkForwardsNormalizedRecords(t *testing.T) {
	t.Parallel()

	var got []activitymap.Normalized
	sink := activitymap.Sink(func(_ context.Context, r activitymap.Normalized) error {
		got = append(got, r)
		return nil
	}, activitymap.WithDefaultChannel("audit"))

	err := sink.Record(context.Background(), identity.ActivityEvent{
		EventType: identity.ActivityEventAccountLinked,
		UserID:    "user-9",
		Metadata:  map[string]any{"provider": "github"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(got) != 1 {
		t.Fatalf("expected one record, got %d", len(got))
	}
	if got[0].Channel != "audit" || got[0].ObjectID != "github" || got[0].ActorID != "user-9" {
		t.Fatalf("unexpected record %+v", got[0])
	}
	if got[0].OccurredAt.IsZero() {
		t.Fatalf("expected occurred_at to be set")
	}

	if err := activitymap.Sink(nil).Record(context.Background(), identity.ActivityEvent{}); err != nil {
		t.Fatalf("nil recorder should be a no-op, got %v", err)
	}
}
