package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"assistchat/internal/models"
	"assistchat/internal/redis"
)

const (
	sessionKeyPrefix = "assistchat:session:"
	resetChannel     = "session:reset"
)

type resetMessage struct {
	SessionID string `json:"session_id"`
	Origin    string `json:"origin"`
}

// Redis stores sessions as JSON values with a sliding TTL, so several
// replicas can serve the same browser session.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
	logger *slog.Logger
	// origin identifies this replica on the reset channel.
	origin string
}

var (
	_ Store    = (*Redis)(nil)
	_ ResetBus = (*Redis)(nil)
)

func NewRedis(client *redis.Client, ttl time.Duration, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{client: client, ttl: ttl, logger: logger, origin: uuid.NewString()}
}

func sessionKey(id string) string {
	return sessionKeyPrefix + id
}

func (r *Redis) Get(ctx context.Context, id string) (*models.Session, error) {
	data, err := r.client.GetEx(ctx, sessionKey(id), r.ttl)
	if err != nil {
		if errors.Is(err, redis.ErrCacheMiss) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load session %s: %w", id, err)
	}
	var sess models.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	return &sess, nil
}

func (r *Redis) Save(ctx context.Context, sess *models.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := r.client.Set(ctx, sessionKey(sess.ID), data, r.ttl); err != nil {
		return fmt.Errorf("save session %s: %w", sess.ID, err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}

func (r *Redis) PublishReset(ctx context.Context, sessionID string) error {
	payload, err := json.Marshal(resetMessage{SessionID: sessionID, Origin: r.origin})
	if err != nil {
		return err
	}
	if err := r.client.Publish(ctx, resetChannel, payload); err != nil {
		return fmt.Errorf("publish reset %s: %w", sessionID, err)
	}
	return nil
}

// ListenResets delivers resets published by other replicas until ctx is done.
func (r *Redis) ListenResets(ctx context.Context, handler func(sessionID string)) error {
	pubsub, err := r.client.Subscribe(ctx, resetChannel)
	if err != nil {
		return err
	}
	go func() {
		defer pubsub.Close()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var reset resetMessage
				if err := json.Unmarshal([]byte(msg.Payload), &reset); err != nil {
					r.logger.Warn("decode session reset failed", "error", err)
					continue
				}
				if reset.Origin == r.origin || reset.SessionID == "" {
					continue
				}
				handler(reset.SessionID)
			}
		}
	}()
	return nil
}
