package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"assistchat/internal/config"
	"assistchat/internal/models"
	"assistchat/internal/redis"
)

var ErrNotFound = errors.New("session not found")

// Store keeps browser sessions for their idle lifetime. Implementations hand
// out copies; callers must Save to publish changes.
type Store interface {
	Get(ctx context.Context, id string) (*models.Session, error)
	Save(ctx context.Context, sess *models.Session) error
	Close() error
}

// ResetBus tells other replicas that a session was reset.
type ResetBus interface {
	PublishReset(ctx context.Context, sessionID string) error
	ListenResets(ctx context.Context, handler func(sessionID string)) error
}

// Open builds the store selected by basic_config.session_backend.
func Open(ctx context.Context, cfg *config.Config, logger *slog.Logger) (Store, error) {
	ttl := cfg.BasicConfig.SessionTTLDuration()
	switch cfg.BasicConfig.SessionBackend {
	case "", "memory":
		return NewMemory(ttl), nil
	case "redis":
		client, err := redis.NewRedisClient(ctx, cfg.Redis)
		if err != nil {
			return nil, fmt.Errorf("open redis session store: %w", err)
		}
		return NewRedis(client, ttl, logger), nil
	default:
		return nil, fmt.Errorf("unsupported session backend: %s", cfg.BasicConfig.SessionBackend)
	}
}
