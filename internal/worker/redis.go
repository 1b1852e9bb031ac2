package worker

import (
	"context"
)

// ListenResets subscribes to resets made on other replicas and purges the
// local copy of those sessions. It is a no-op without a ResetBus.
func (m *Manager) ListenResets(ctx context.Context) error {
	if m.cfg.ResetBus == nil {
		return nil
	}
	return m.cfg.ResetBus.ListenResets(ctx, func(sessionID string) {
		debugLog("remote reset", "session_id", sessionID)
		m.Purge(sessionID)
	})
}
