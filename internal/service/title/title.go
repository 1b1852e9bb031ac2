package title

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cloudwego/eino-ext/components/model/claude"
	"github.com/cloudwego/eino-ext/components/model/gemini"
	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"google.golang.org/genai"

	"assistchat/internal/config"
	"assistchat/internal/models"
)

const (
	DefaultTitle  = "New Conversation"
	maxTitleRunes = 48
)

// Generator names a conversation from its first exchange.
type Generator interface {
	Generate(ctx context.Context, messages []*models.Message) (string, error)
}

type modelGenerator struct {
	chatModel model.BaseChatModel
}

// New builds a Generator for the configured provider. It returns nil, nil
// when no provider is configured.
func New(ctx context.Context, cfg config.TitleConfig) (Generator, error) {
	if cfg.Provider == "" {
		return nil, nil
	}
	var (
		chatModel model.BaseChatModel
		err       error
	)
	switch cfg.Provider {
	case "openai":
		chatModel, err = openai.NewChatModel(ctx, &openai.ChatModelConfig{
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
			APIKey:  cfg.APIKey,
		})
	case "gemini":
		var client *genai.Client
		client, err = genai.NewClient(ctx, &genai.ClientConfig{
			APIKey: cfg.APIKey,
		})
		if err != nil {
			return nil, fmt.Errorf("new gemini client: %w", err)
		}
		chatModel, err = gemini.NewChatModel(ctx, &gemini.Config{
			Client: client,
			Model:  cfg.Model,
		})
	case "claude":
		var baseURLPtr *string
		if cfg.BaseURL != "" {
			baseURLPtr = &cfg.BaseURL
		}
		chatModel, err = claude.NewChatModel(ctx, &claude.Config{
			APIKey:    cfg.APIKey,
			Model:     cfg.Model,
			BaseURL:   baseURLPtr,
			MaxTokens: 64,
		})
	default:
		return nil, fmt.Errorf("unknown title provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, fmt.Errorf("init title model: %w", err)
	}
	return NewWithModel(chatModel), nil
}

// NewWithModel wraps an existing eino chat model.
func NewWithModel(chatModel model.BaseChatModel) Generator {
	return &modelGenerator{chatModel: chatModel}
}

func (g *modelGenerator) Generate(ctx context.Context, messages []*models.Message) (string, error) {
	if len(messages) == 0 {
		return DefaultTitle, nil
	}
	systemPrompt := "You are a conversation title generator. " +
		"Based on the dialogue between the user and the assistant, generate a concise and accurate title. " +
		"The title should be at most six words and summarize the main topic of the conversation. " +
		"Output only the title; do not include any additional content."

	var conversation strings.Builder
	for _, msg := range messages {
		switch msg.Role {
		case models.RoleUser:
			fmt.Fprintf(&conversation, "User: %s\n", msg.Content)
		case models.RoleAssistant:
			fmt.Fprintf(&conversation, "Assistant: %s\n", msg.Content)
		}
	}

	resp, err := g.chatModel.Generate(ctx, []*schema.Message{
		schema.SystemMessage(systemPrompt),
		schema.UserMessage("Please generate a clean title using following conversation messages:\n\n" + conversation.String()),
	})
	if err != nil {
		return "", fmt.Errorf("generate title: %w", err)
	}
	return Clean(resp.Content), nil
}

// Clean trims quotes and whitespace and caps the title length.
func Clean(raw string) string {
	t := strings.TrimSpace(raw)
	t = strings.Trim(t, "\"'`")
	t = strings.TrimSpace(strings.SplitN(t, "\n", 2)[0])
	if t == "" {
		return DefaultTitle
	}
	if utf8.RuneCountInString(t) > maxTitleRunes {
		t = string([]rune(t)[:maxTitleRunes])
	}
	return t
}
