package agent

import (
	"context"
	"fmt"
	"log/slog"

	"assistchat/internal/config"
)

// Resolve binds the configured agent id, or creates a new agent when none is given.
// A created agent lives for the process lifetime; nothing deletes it.
func Resolve(ctx context.Context, client Client, cfg config.AgentConfig, logger *slog.Logger) (*Definition, error) {
	if cfg.ID != "" {
		def, err := client.BindAgent(ctx, cfg.ID)
		if err != nil {
			return nil, fmt.Errorf("resolve agent %s: %w", cfg.ID, err)
		}
		logger.Info("bound agent", "agent_id", def.ID, "name", def.Name, "model", def.Model)
		return def, nil
	}
	tools := cfg.Tools
	if len(tools) == 0 && len(cfg.VectorStoreIDs) > 0 {
		tools = []string{"file_search"}
	}
	def, err := client.CreateAgent(ctx, Config{
		Name:           cfg.Name,
		Model:          cfg.Model,
		Instructions:   cfg.Instructions,
		Tools:          tools,
		VectorStoreIDs: cfg.VectorStoreIDs,
		Temperature:    cfg.Temperature,
		TopP:           cfg.TopP,
	})
	if err != nil {
		return nil, fmt.Errorf("resolve agent: %w", err)
	}
	logger.Info("created agent", "agent_id", def.ID, "model", def.Model)
	return def, nil
}
