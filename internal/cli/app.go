package cli

import (
	"context"
	"fmt"
	"time"

	"assistchat/internal/config"
	"assistchat/internal/service/agent"
	"assistchat/internal/service/conversation"
	"assistchat/internal/service/run"
	"assistchat/internal/service/title"
)

func newAgentClient(cfg *config.Config) *agent.OpenAIClient {
	return agent.NewOpenAIClient(agent.Options{
		Endpoint:   cfg.Service.Endpoint,
		APIKey:     cfg.Service.APIKey,
		APIVersion: cfg.Service.APIVersion,
		Azure:      cfg.Service.Azure,
		Timeout:    cfg.Service.RequestTimeoutDuration(),
	})
}

// newConversationService validates the configuration, binds or creates the
// agent and assembles the turn logic. Auth and not-found errors stop here.
func newConversationService(ctx context.Context, cfg *config.Config) (*conversation.Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	client := newAgentClient(cfg)
	def, err := agent.Resolve(ctx, client, cfg.Agent, logger)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", conversation.Notice(err), err)
	}
	titles, err := title.New(ctx, cfg.Title)
	if err != nil {
		return nil, err
	}
	return conversation.NewService(client, def, conversation.Options{
		Poller: run.NewPoller(cfg.BasicConfig.PollIntervalDuration(), cfg.BasicConfig.PollTimeoutDuration()),
		Titles: titles,
		Logger: logger,
	}), nil
}

// turnRemoteCalls counts the requests a turn makes outside polling: open
// thread, post message, start run, list messages and the title.
const turnRemoteCalls = 5

// turnTimeout bounds one message request. It leaves room for every remote
// call of a turn so the poll cap, not the request deadline, ends slow runs.
func turnTimeout(cfg *config.Config) time.Duration {
	return cfg.BasicConfig.PollTimeoutDuration() + turnRemoteCalls*cfg.Service.RequestTimeoutDuration()
}
