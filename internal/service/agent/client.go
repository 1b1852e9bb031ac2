package agent

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"assistchat/internal/models"
)

const tracerName = "assistchat/agent"

// Options configures the HTTP client for the assistant service.
type Options struct {
	Endpoint   string
	APIKey     string
	APIVersion string
	Azure      bool
	Timeout    time.Duration
	HTTPClient *http.Client
}

// OpenAIClient implements Client over the OpenAI / Azure OpenAI Assistants API.
type OpenAIClient struct {
	api    *openai.Client
	tracer trace.Tracer
}

var _ Client = (*OpenAIClient)(nil)

func NewOpenAIClient(opts Options) *OpenAIClient {
	var cfg openai.ClientConfig
	if opts.Azure {
		cfg = openai.DefaultAzureConfig(opts.APIKey, opts.Endpoint)
		if opts.APIVersion != "" {
			cfg.APIVersion = opts.APIVersion
		}
	} else {
		cfg = openai.DefaultConfig(opts.APIKey)
		if opts.Endpoint != "" {
			cfg.BaseURL = strings.TrimRight(opts.Endpoint, "/")
		}
	}
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	cfg.HTTPClient = httpClient
	return &OpenAIClient{
		api:    openai.NewClientWithConfig(cfg),
		tracer: otel.Tracer(tracerName),
	}
}

func (c *OpenAIClient) BindAgent(ctx context.Context, id string) (*Definition, error) {
	ctx, span := c.tracer.Start(ctx, "agent.bind", trace.WithAttributes(attribute.String("agent.id", id)))
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return nil, endSpan(span, fmt.Errorf("bind agent: %w: empty agent id", ErrNotFound))
	}
	asst, err := c.api.RetrieveAssistant(ctx, id)
	if err != nil {
		return nil, endSpan(span, classify("bind agent", err))
	}
	return fromAssistant(asst), nil
}

func (c *OpenAIClient) CreateAgent(ctx context.Context, cfg Config) (*Definition, error) {
	ctx, span := c.tracer.Start(ctx, "agent.create", trace.WithAttributes(attribute.String("agent.model", cfg.Model)))
	defer span.End()

	asst, err := c.api.CreateAssistant(ctx, assistantRequest(cfg))
	if err != nil {
		return nil, endSpan(span, classify("create agent", err))
	}
	return fromAssistant(asst), nil
}

func (c *OpenAIClient) OpenConversation(ctx context.Context) (string, error) {
	ctx, span := c.tracer.Start(ctx, "agent.open_conversation")
	defer span.End()

	thread, err := c.api.CreateThread(ctx, openai.ThreadRequest{})
	if err != nil {
		return "", endSpan(span, classify("open conversation", err))
	}
	if thread.ID == "" {
		return "", endSpan(span, fmt.Errorf("open conversation: %w: empty thread id", ErrTransport))
	}
	return thread.ID, nil
}

func (c *OpenAIClient) PostMessage(ctx context.Context, threadID string, role models.Role, content string) error {
	ctx, span := c.tracer.Start(ctx, "agent.post_message", trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	req := openai.MessageRequest{Content: content}
	switch role {
	case models.RoleUser:
		req.Role = openai.ChatMessageRoleUser
	case models.RoleAssistant:
		req.Role = openai.ChatMessageRoleAssistant
	default:
		return endSpan(span, fmt.Errorf("post message: unsupported role %q", role))
	}
	if _, err := c.api.CreateMessage(ctx, threadID, req); err != nil {
		return endSpan(span, classify("post message", err))
	}
	return nil
}

func (c *OpenAIClient) StartRun(ctx context.Context, threadID, agentID string) (*Run, error) {
	ctx, span := c.tracer.Start(ctx, "agent.start_run", trace.WithAttributes(
		attribute.String("thread.id", threadID),
		attribute.String("agent.id", agentID),
	))
	defer span.End()

	run, err := c.api.CreateRun(ctx, threadID, openai.RunRequest{AssistantID: agentID})
	if err != nil {
		return nil, endSpan(span, classify("start run", err))
	}
	return fromRun(run), nil
}

func (c *OpenAIClient) GetRun(ctx context.Context, threadID, runID string) (*Run, error) {
	run, err := c.api.RetrieveRun(ctx, threadID, runID)
	if err != nil {
		return nil, classify("get run", err)
	}
	return fromRun(run), nil
}

func (c *OpenAIClient) CancelRun(ctx context.Context, threadID, runID string) error {
	if _, err := c.api.CancelRun(ctx, threadID, runID); err != nil {
		return classify("cancel run", err)
	}
	return nil
}

func (c *OpenAIClient) ListMessages(ctx context.Context, threadID string, opts ListOptions) ([]RemoteMessage, error) {
	ctx, span := c.tracer.Start(ctx, "agent.list_messages", trace.WithAttributes(attribute.String("thread.id", threadID)))
	defer span.End()

	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	order := "desc"
	var runID *string
	if opts.RunID != "" {
		runID = &opts.RunID
	}
	list, err := c.api.ListMessage(ctx, threadID, &limit, &order, nil, nil, runID)
	if err != nil {
		return nil, endSpan(span, classify("list messages", err))
	}
	msgs, err := fromMessages(list.Messages)
	if err != nil {
		return nil, endSpan(span, fmt.Errorf("list messages: %w: %v", ErrTransport, err))
	}
	span.SetAttributes(attribute.Int("messages.count", len(msgs)))
	return msgs, nil
}

// classify maps service and network failures onto the package error kinds.
func classify(op string, err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return statusError(op, apiErr.HTTPStatusCode, apiErr.Message)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return statusError(op, reqErr.HTTPStatusCode, reqErr.Error())
	}
	return fmt.Errorf("%s: %w: %w", op, ErrTransport, err)
}

func statusError(op string, status int, detail string) error {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s: %w: %s", op, ErrAuth, detail)
	case http.StatusNotFound:
		return fmt.Errorf("%s: %w: %s", op, ErrNotFound, detail)
	default:
		return fmt.Errorf("%s: %w: status %d: %s", op, ErrTransport, status, detail)
	}
}

func endSpan(span trace.Span, err error) error {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}
