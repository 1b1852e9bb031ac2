package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"assistchat/internal/service/agent"
	"assistchat/internal/service/conversation"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify credentials and that the configured agent is reachable",
	Args:  cobra.NoArgs,
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	ctx := context.Background()
	out := cmd.OutOrStdout()

	client := newAgentClient(cfg)
	def, err := client.BindAgent(ctx, cfg.Agent.ID)
	credentialsValid := err == nil || errors.Is(err, agent.ErrNotFound)
	fmt.Fprintf(out, "endpoint:          %s\n", endpointLabel())
	fmt.Fprintf(out, "credentials valid: %t\n", credentialsValid)
	fmt.Fprintf(out, "agent reachable:   %t\n", err == nil)
	if err != nil {
		return fmt.Errorf("%s: %w", conversation.Notice(err), err)
	}
	fmt.Fprintf(out, "agent:             %s (%s)\n", def.Name, def.ID)
	fmt.Fprintf(out, "model:             %s\n", def.Model)
	if len(def.Tools) > 0 {
		fmt.Fprintf(out, "tools:             %v\n", def.Tools)
	}
	if len(def.VectorStoreIDs) > 0 {
		fmt.Fprintf(out, "vector stores:     %v\n", def.VectorStoreIDs)
	}
	return nil
}

func endpointLabel() string {
	if cfg.Service.Endpoint == "" {
		return "api.openai.com"
	}
	if cfg.Service.Azure {
		return cfg.Service.Endpoint + " (azure, " + cfg.Service.APIVersion + ")"
	}
	return cfg.Service.Endpoint
}
