package auditmap

import (
	"context"
	"strings"
	"time"

	signin "github.com/goliatone/go-signin"
)

const (
	// MetadataKeyIPAddress stores the client address of the request.
	MetadataKeyIPAddress = "ip_address"
	// MetadataKeyScheme stores the authentication scheme involved.
	MetadataKeyScheme = "scheme"
	// MetadataKeyUserName stores the affected user name, UNKNOWN when the
	// user could not be resolved.
	MetadataKeyUserName = "user_name"
)

const (
	defaultChannel    = "signin"
	defaultObjectType = "user"
	defaultActorID    = "anonymous"
)

// Record is a transport agnostic audit entry for downstream systems.
type Record struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	objectType    string
	actorFallback string
	now           func() time.Time
}

// Normalize converts a sign-in notification into a Record.
func Normalize(n signin.Notification, opts ...Option) Record {
	options := defaultNormalizeOptions()
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(n.PerformingUserID),
		strings.TrimSpace(n.AffectedUserID),
		options.actorFallback,
	)

	occurredAt := n.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	return Record{
		ActorID:    actorID,
		Verb:       string(n.Type),
		ObjectType: options.objectType,
		ObjectID:   strings.TrimSpace(n.AffectedUserID),
		Channel:    options.channel,
		Metadata:   normalizeMetadata(n),
		OccurredAt: occurredAt,
	}
}

// Sink adapts a record consumer to a signin.NotificationSink.
func Sink(consume func(ctx context.Context, record Record) error, opts ...Option) signin.NotificationSink {
	return signin.NotificationSinkFunc(func(ctx context.Context, n signin.Notification) error {
		return consume(ctx, Normalize(n, opts...))
	})
}

// WithDefaultChannel sets the channel of normalized records.
func WithDefaultChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithDefaultObjectType sets the object type of normalized records.
func WithDefaultObjectType(objectType string) Option {
	return func(opts *normalizeOptions) {
		opts.objectType = strings.TrimSpace(objectType)
	}
}

// WithActorFallback sets the actor id used when no user id is known.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the time source for notifications without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

func defaultNormalizeOptions() normalizeOptions {
	return normalizeOptions{
		channel:       defaultChannel,
		objectType:    defaultObjectType,
		actorFallback: defaultActorID,
		now:           time.Now,
	}
}

func normalizeMetadata(n signin.Notification) map[string]any {
	metadata := cloneMap(n.Metadata)

	set := func(key, value string) {
		if value = strings.TrimSpace(value); value == "" {
			return
		}
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[key]; !exists {
			metadata[key] = value
		}
	}

	set(MetadataKeyIPAddress, n.IPAddress)
	set(MetadataKeyScheme, n.Scheme)
	set(MetadataKeyUserName, n.AffectedUserName)

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
