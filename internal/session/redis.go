package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ashureev/incident-intake/internal/domain"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RedisStore keeps sessions in Redis so several processes can share them.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisStore creates a Redis-backed session store. A zero ttl keeps
// sessions until they complete.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("session: redis client cannot be nil")
	}
	return &RedisStore{
		client: client,
		ttl:    ttl,
		tracer: otel.Tracer("incident-intake.internal.session"),
	}
}

// Load fetches the session, returning an idle one when the key is missing.
func (r *RedisStore) Load(ctx context.Context, id string) (*domain.Session, error) {
	ctx, span := r.tracer.Start(ctx, "session.load", trace.WithAttributes(attribute.String("session_id", id)))
	defer span.End()

	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.NewSession(id), nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to load %s: %w", id, err)
	}

	var s domain.Session
	if err := json.Unmarshal(data, &s); err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("session: failed to decode %s: %w", id, err)
	}
	s.ID = id
	return &s, nil
}

// Save persists s, deleting the key when the session is idle.
func (r *RedisStore) Save(ctx context.Context, s *domain.Session) error {
	if s.IsIdle() {
		return r.Reset(ctx, s.ID)
	}

	ctx, span := r.tracer.Start(ctx, "session.save", trace.WithAttributes(
		attribute.String("session_id", s.ID),
		attribute.String("step", string(s.Step)),
	))
	defer span.End()

	data, err := json.Marshal(s)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to marshal %s: %w", s.ID, err)
	}
	if err := r.client.Set(ctx, sessionKey(s.ID), data, r.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to persist %s: %w", s.ID, err)
	}
	return nil
}

// Reset deletes the session key.
func (r *RedisStore) Reset(ctx context.Context, id string) error {
	ctx, span := r.tracer.Start(ctx, "session.reset", trace.WithAttributes(attribute.String("session_id", id)))
	defer span.End()

	if err := r.client.Del(ctx, sessionKey(id)).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("session: failed to reset %s: %w", id, err)
	}
	return nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("intake:session:%s", id)
}

var _ Store = (*RedisStore)(nil)
