package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"assistchat/internal/models"
	"assistchat/internal/service/agent"
	"assistchat/internal/service/run"
	"assistchat/internal/service/title"
)

const (
	cancelTimeout      = 5 * time.Second
	fallbackTitleRunes = 48
	listLimit          = 20
)

var ErrEmptyMessage = errors.New("message content is empty")

// TurnResult is what one completed turn added to the session.
type TurnResult struct {
	User      *models.Message
	Assistant *models.Message
	RunID     string
	// Statuses counts the run statuses observed while waiting.
	Statuses int
}

// Service drives conversation turns against the remote agent.
type Service struct {
	client agent.Client
	agent  *agent.Definition
	poller *run.Poller
	titles title.Generator
	logger *slog.Logger
	tracer trace.Tracer
}

type Options struct {
	Poller *run.Poller
	// Titles is optional; without it the first user message names the conversation.
	Titles title.Generator
	Logger *slog.Logger
}

func NewService(client agent.Client, def *agent.Definition, opts Options) *Service {
	if opts.Poller == nil {
		opts.Poller = run.NewPoller(run.DefaultInterval, run.DefaultTimeout)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Service{
		client: client,
		agent:  def,
		poller: opts.Poller,
		titles: opts.Titles,
		logger: opts.Logger,
		tracer: otel.Tracer("assistchat/conversation"),
	}
}

// Agent returns the bound agent definition.
func (s *Service) Agent() *agent.Definition {
	return s.agent
}

// Ensure opens the remote thread on first use.
func (s *Service) Ensure(ctx context.Context, sess *models.Session) error {
	if sess.ThreadID != "" {
		return nil
	}
	threadID, err := s.client.OpenConversation(ctx)
	if err != nil {
		return fmt.Errorf("open conversation: %w", err)
	}
	sess.ThreadID = threadID
	return nil
}

// Reset discards the log and the thread handle and opens a fresh thread.
// An in-flight run on the old thread is abandoned.
func (s *Service) Reset(ctx context.Context, sess *models.Session) error {
	old := sess.ThreadID
	sess.Clear()
	threadID, err := s.client.OpenConversation(ctx)
	if err != nil {
		return fmt.Errorf("reset conversation: %w", err)
	}
	sess.ThreadID = threadID
	s.logger.Debug("conversation reset", "session_id", sess.ID, "old_thread", old, "thread_id", threadID)
	return nil
}

// Send runs one turn: the user message is appended first and stays in the
// log whatever happens next; the assistant reply is appended only when the
// run completes with a matching message.
func (s *Service) Send(ctx context.Context, sess *models.Session, content string, onStatus run.StatusFunc) (*TurnResult, error) {
	if strings.TrimSpace(content) == "" {
		return nil, ErrEmptyMessage
	}
	ctx, span := s.tracer.Start(ctx, "conversation.turn", trace.WithAttributes(
		attribute.String("session.id", sess.ID),
		attribute.String("agent.id", s.agent.ID),
	))
	defer span.End()

	result := &TurnResult{User: sess.AppendUser(content)}
	observe := func(status agent.RunStatus) {
		result.Statuses++
		if onStatus != nil {
			onStatus(status)
		}
	}

	reply, runID, err := s.exchange(ctx, sess, content, observe)
	result.RunID = runID
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, Kind(err))
		s.logger.Warn("turn failed", "session_id", sess.ID, "thread_id", sess.ThreadID, "run_id", runID, "kind", Kind(err), "error", err)
		return result, err
	}

	result.Assistant = sess.AppendAssistant(reply.Text, reply.Citations)
	if sess.Title == "" {
		sess.Title = s.title(ctx, sess)
	}
	span.SetAttributes(attribute.String("run.id", runID), attribute.Int("run.statuses", result.Statuses))
	return result, nil
}

func (s *Service) exchange(ctx context.Context, sess *models.Session, content string, onStatus run.StatusFunc) (*run.Reply, string, error) {
	if err := s.Ensure(ctx, sess); err != nil {
		return nil, "", err
	}
	if err := s.client.PostMessage(ctx, sess.ThreadID, models.RoleUser, content); err != nil {
		return nil, "", err
	}
	started, err := s.client.StartRun(ctx, sess.ThreadID, s.agent.ID)
	if err != nil {
		return nil, "", err
	}

	finished, err := s.poller.Wait(ctx, s.client, sess.ThreadID, started, onStatus)
	if err != nil {
		// The request deadline can expire before the poll cap does.
		if errors.Is(err, agent.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			s.cancel(sess.ThreadID, started.ID)
		}
		return nil, started.ID, err
	}

	messages, err := s.client.ListMessages(ctx, sess.ThreadID, agent.ListOptions{RunID: finished.ID, Limit: listLimit})
	if err != nil {
		return nil, finished.ID, err
	}
	reply, err := run.Extract(messages, finished)
	if err != nil {
		return nil, finished.ID, err
	}
	return reply, finished.ID, nil
}

// cancel asks the service to stop a run we stopped waiting for. Failure is only logged.
func (s *Service) cancel(threadID, runID string) {
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	if err := s.client.CancelRun(ctx, threadID, runID); err != nil {
		s.logger.Warn("cancel run failed", "thread_id", threadID, "run_id", runID, "error", err)
	}
}

func (s *Service) title(ctx context.Context, sess *models.Session) string {
	if s.titles == nil {
		return sess.FallbackTitle(fallbackTitleRunes)
	}
	t, err := s.titles.Generate(ctx, sess.Messages)
	if err != nil {
		s.logger.Warn("generate title failed", "session_id", sess.ID, "error", err)
		return sess.FallbackTitle(fallbackTitleRunes)
	}
	return t
}

// Status reports whether the agent is reachable with the configured credentials.
type Status struct {
	AgentReachable   bool   `json:"agent_reachable"`
	CredentialsValid bool   `json:"credentials_valid"`
	AgentID          string `json:"agent_id"`
	AgentName        string `json:"agent_name,omitempty"`
	Model            string `json:"model,omitempty"`
	Detail           string `json:"detail,omitempty"`
}

func (s *Service) Status(ctx context.Context) Status {
	st := Status{AgentID: s.agent.ID}
	def, err := s.client.BindAgent(ctx, s.agent.ID)
	switch {
	case err == nil:
		st.AgentReachable = true
		st.CredentialsValid = true
		st.AgentName = def.Name
		st.Model = def.Model
	case errors.Is(err, agent.ErrAuth):
		st.Detail = Notice(err)
	case errors.Is(err, agent.ErrNotFound):
		st.CredentialsValid = true
		st.Detail = Notice(err)
	default:
		st.Detail = Notice(err)
	}
	return st
}
