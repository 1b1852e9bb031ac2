package conversation

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"assistchat/internal/models"
	"assistchat/internal/service/agent"
	"assistchat/internal/service/run"
)

type fakeClient struct {
	mu sync.Mutex

	threads   int
	runs      int
	statuses  []agent.RunStatus
	pos       int
	lastError string
	reply     []agent.ContentBlock
	noReply   bool
	posted    []string
	cancelled []string
	openErr   error
	postErr   error
	bindErr   error
}

func (f *fakeClient) BindAgent(_ context.Context, id string) (*agent.Definition, error) {
	if f.bindErr != nil {
		return nil, f.bindErr
	}
	return &agent.Definition{ID: id, Name: "Docs helper", Model: "gpt-4o"}, nil
}

func (f *fakeClient) CreateAgent(context.Context, agent.Config) (*agent.Definition, error) {
	return nil, errors.New("not used")
}

func (f *fakeClient) OpenConversation(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return "", f.openErr
	}
	f.threads++
	return fmt.Sprintf("thread_%d", f.threads), nil
}

func (f *fakeClient) PostMessage(_ context.Context, _ string, _ models.Role, content string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.postErr != nil {
		return f.postErr
	}
	f.posted = append(f.posted, content)
	return nil
}

func (f *fakeClient) StartRun(_ context.Context, threadID, agentID string) (*agent.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs++
	f.pos = 0
	return f.snapshot(threadID, agentID), nil
}

func (f *fakeClient) GetRun(_ context.Context, threadID, _ string) (*agent.Run, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pos < len(f.statuses)-1 {
		f.pos++
	}
	return f.snapshot(threadID, "asst_1"), nil
}

func (f *fakeClient) snapshot(threadID, agentID string) *agent.Run {
	status := agent.RunCompleted
	if len(f.statuses) > 0 {
		status = f.statuses[f.pos]
	}
	r := &agent.Run{
		ID:        fmt.Sprintf("run_%d", f.runs),
		ThreadID:  threadID,
		AgentID:   agentID,
		Status:    status,
		CreatedAt: 100,
	}
	if status == agent.RunFailed {
		r.LastError = f.lastError
	}
	return r
}

func (f *fakeClient) CancelRun(_ context.Context, _, runID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelled = append(f.cancelled, runID)
	return nil
}

func (f *fakeClient) ListMessages(_ context.Context, _ string, opts agent.ListOptions) ([]agent.RemoteMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.noReply {
		return nil, nil
	}
	content := f.reply
	if content == nil {
		content = []agent.ContentBlock{{Kind: agent.BlockText, Text: &agent.TextSegment{Value: "reply to " + f.posted[len(f.posted)-1]}}}
	}
	return []agent.RemoteMessage{{
		ID:        "msg_" + opts.RunID,
		Role:      models.RoleAssistant,
		RunID:     opts.RunID,
		CreatedAt: 101,
		Content:   content,
	}}, nil
}

func newTestService(client *fakeClient, timeout time.Duration) *Service {
	return NewService(client, &agent.Definition{ID: "asst_1"}, Options{
		Poller: run.NewPoller(time.Millisecond, timeout),
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	})
}

func TestCompletedTurnsAlternateRoles(t *testing.T) {
	client := &fakeClient{statuses: []agent.RunStatus{agent.RunQueued, agent.RunCompleted}}
	svc := newTestService(client, time.Second)
	sess := &models.Session{ID: "s1"}

	const turns = 4
	for i := 0; i < turns; i++ {
		_, err := svc.Send(context.Background(), sess, fmt.Sprintf("question %d", i), nil)
		require.NoError(t, err)
	}

	require.Len(t, sess.Messages, 2*turns)
	for i, m := range sess.Messages {
		want := models.RoleUser
		if i%2 == 1 {
			want = models.RoleAssistant
		}
		assert.Equal(t, want, m.Role, "message %d", i)
	}
	assert.Equal(t, "thread_1", sess.ThreadID)
	assert.Equal(t, 1, client.threads)
}

func TestFailedRunKeepsOnlyUserMessage(t *testing.T) {
	client := &fakeClient{
		statuses:  []agent.RunStatus{agent.RunInProgress, agent.RunFailed},
		lastError: "rate limit exceeded for deployment",
	}
	svc := newTestService(client, time.Second)
	sess := &models.Session{ID: "s1"}

	res, err := svc.Send(context.Background(), sess, "hello", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, agent.ErrRunFailed)
	assert.Contains(t, err.Error(), "rate limit exceeded for deployment")
	assert.Contains(t, Notice(err), "rate limit exceeded for deployment")
	assert.Equal(t, "run_failed", Kind(err))

	require.Len(t, sess.Messages, 1)
	assert.Equal(t, models.RoleUser, sess.Messages[0].Role)
	assert.Nil(t, res.Assistant)
	assert.Equal(t, "run_1", res.RunID)

	// the session stays usable
	client.statuses = []agent.RunStatus{agent.RunCompleted}
	_, err = svc.Send(context.Background(), sess, "again", nil)
	require.NoError(t, err)
	assert.Len(t, sess.Messages, 3)
	assert.Equal(t, "thread_1", sess.ThreadID)
}

func TestRequiresActionIsUnsupported(t *testing.T) {
	client := &fakeClient{statuses: []agent.RunStatus{agent.RunQueued, agent.RunRequiresAction}}
	sess := &models.Session{ID: "s1"}
	_, err := newTestService(client, time.Second).Send(context.Background(), sess, "call a tool", nil)
	require.ErrorIs(t, err, agent.ErrUnsupportedAction)
	assert.Len(t, sess.Messages, 1)
}

func TestTimeoutCancelsRun(t *testing.T) {
	client := &fakeClient{statuses: []agent.RunStatus{agent.RunInProgress}}
	sess := &models.Session{ID: "s1"}
	_, err := newTestService(client, 20*time.Millisecond).Send(context.Background(), sess, "slow", nil)
	require.ErrorIs(t, err, agent.ErrTimeout)
	assert.Equal(t, []string{"run_1"}, client.cancelled)
	assert.Equal(t, "timeout", Kind(err))
	assert.Len(t, sess.Messages, 1)
}

func TestRequestDeadlineCancelsRun(t *testing.T) {
	client := &fakeClient{statuses: []agent.RunStatus{agent.RunInProgress}}
	sess := &models.Session{ID: "s1"}
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestService(client, time.Minute).Send(ctx, sess, "slow", nil)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"run_1"}, client.cancelled)
	assert.Equal(t, "timeout", Kind(err))
	assert.Equal(t, Notice(agent.ErrTimeout), Notice(err))
	assert.Len(t, sess.Messages, 1)
}

func TestNoMatchingReply(t *testing.T) {
	client := &fakeClient{noReply: true}
	sess := &models.Session{ID: "s1"}
	_, err := newTestService(client, time.Second).Send(context.Background(), sess, "hi", nil)
	require.ErrorIs(t, err, agent.ErrNoResponse)
	assert.Len(t, sess.Messages, 1)
}

func TestTransportFailureKeepsUserMessage(t *testing.T) {
	client := &fakeClient{postErr: fmt.Errorf("post message: %w: connection reset", agent.ErrTransport)}
	sess := &models.Session{ID: "s1"}
	_, err := newTestService(client, time.Second).Send(context.Background(), sess, "hi", nil)
	require.ErrorIs(t, err, agent.ErrTransport)
	assert.Len(t, sess.Messages, 1)
	assert.Equal(t, "thread_1", sess.ThreadID)
}

func TestEmptyMessageRejected(t *testing.T) {
	client := &fakeClient{}
	sess := &models.Session{ID: "s1"}
	_, err := newTestService(client, time.Second).Send(context.Background(), sess, "  \n\t", nil)
	require.ErrorIs(t, err, ErrEmptyMessage)
	assert.Empty(t, sess.Messages)
	assert.Zero(t, client.threads)
}

func TestResetTwiceYieldsDistinctThreads(t *testing.T) {
	client := &fakeClient{}
	svc := newTestService(client, time.Second)
	sess := &models.Session{ID: "s1"}
	_, err := svc.Send(context.Background(), sess, "hi", nil)
	require.NoError(t, err)

	require.NoError(t, svc.Reset(context.Background(), sess))
	first := sess.ThreadID
	assert.Empty(t, sess.Messages)
	assert.Empty(t, sess.Title)

	require.NoError(t, svc.Reset(context.Background(), sess))
	second := sess.ThreadID
	assert.Empty(t, sess.Messages)

	assert.NotEmpty(t, first)
	assert.NotEmpty(t, second)
	assert.NotEqual(t, first, second)
}

func TestResetPropagatesError(t *testing.T) {
	client := &fakeClient{openErr: fmt.Errorf("create thread: %w", agent.ErrAuth)}
	sess := &models.Session{ID: "s1", ThreadID: "thread_old"}
	err := newTestService(client, time.Second).Reset(context.Background(), sess)
	require.ErrorIs(t, err, agent.ErrAuth)
	assert.Empty(t, sess.ThreadID)
}

func TestReplyContentIsStoredVerbatim(t *testing.T) {
	text := "  Revenue grew 12%【4:0†source】\n\n* item\té\n"
	client := &fakeClient{reply: []agent.ContentBlock{
		{Kind: agent.BlockText, Text: &agent.TextSegment{
			Value: text,
			Annotations: []agent.Annotation{
				{Kind: agent.AnnotationFileCitation, FileID: "doc_42"},
				{Kind: agent.AnnotationFileCitation, FileID: "doc_42"},
			},
		}},
	}}
	sess := &models.Session{ID: "s1"}
	res, err := newTestService(client, time.Second).Send(context.Background(), sess, "revenue?", nil)
	require.NoError(t, err)

	extracted, err := run.Extract([]agent.RemoteMessage{{Role: models.RoleAssistant, RunID: res.RunID, Content: client.reply}}, &agent.Run{ID: res.RunID})
	require.NoError(t, err)
	assert.Equal(t, extracted.Text, res.Assistant.Content)
	assert.Equal(t, text, sess.Messages[1].Content)
	assert.Equal(t, []models.Citation{{DocumentID: "doc_42"}}, res.Assistant.Citations)
}

func TestStatusCallbackSeesEveryStatus(t *testing.T) {
	client := &fakeClient{statuses: []agent.RunStatus{agent.RunQueued, agent.RunInProgress, agent.RunInProgress, agent.RunCompleted}}
	var seen []agent.RunStatus
	res, err := newTestService(client, time.Second).Send(context.Background(), &models.Session{ID: "s1"}, "hi", func(s agent.RunStatus) {
		seen = append(seen, s)
	})
	require.NoError(t, err)
	assert.Equal(t, client.statuses, seen)
	assert.Equal(t, 4, res.Statuses)
}

type staticTitles struct{ title string }

func (s staticTitles) Generate(context.Context, []*models.Message) (string, error) {
	return s.title, nil
}

func TestFirstTurnSetsTitle(t *testing.T) {
	client := &fakeClient{}
	sess := &models.Session{ID: "s1"}
	svc := newTestService(client, time.Second)
	_, err := svc.Send(context.Background(), sess, "What is the refund policy for enterprise plans?", nil)
	require.NoError(t, err)
	assert.Equal(t, "What is the refund policy for enterprise plans?", sess.Title)

	svc.titles = staticTitles{title: "Refund policy"}
	sess2 := &models.Session{ID: "s2"}
	_, err = svc.Send(context.Background(), sess2, "What is the refund policy?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Refund policy", sess2.Title)

	// later turns keep the title
	_, err = svc.Send(context.Background(), sess2, "And for teams?", nil)
	require.NoError(t, err)
	assert.Equal(t, "Refund policy", sess2.Title)
}

func TestStatusReport(t *testing.T) {
	client := &fakeClient{}
	st := newTestService(client, time.Second).Status(context.Background())
	assert.True(t, st.AgentReachable)
	assert.True(t, st.CredentialsValid)
	assert.Equal(t, "Docs helper", st.AgentName)

	client.bindErr = fmt.Errorf("retrieve assistant: %w", agent.ErrAuth)
	st = newTestService(client, time.Second).Status(context.Background())
	assert.False(t, st.AgentReachable)
	assert.False(t, st.CredentialsValid)
	assert.NotEmpty(t, st.Detail)

	client.bindErr = fmt.Errorf("retrieve assistant: %w", agent.ErrNotFound)
	st = newTestService(client, time.Second).Status(context.Background())
	assert.False(t, st.AgentReachable)
	assert.True(t, st.CredentialsValid)
}

func TestNoticeAndKind(t *testing.T) {
	cases := []struct {
		err  error
		kind string
	}{
		{fmt.Errorf("x: %w", agent.ErrAuth), "auth"},
		{fmt.Errorf("x: %w", agent.ErrNotFound), "not_found"},
		{fmt.Errorf("x: %w: dial tcp", agent.ErrTransport), "transport"},
		{agent.ErrUnsupportedAction, "unsupported_action"},
		{fmt.Errorf("%w: expired", agent.ErrUnrecognizedStatus), "unrecognized_status"},
		{agent.ErrNoResponse, "no_response"},
		{context.Canceled, "cancelled"},
		{fmt.Errorf("poll run run_1: %w", context.DeadlineExceeded), "timeout"},
		{errors.New("odd"), "internal"},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.kind, Kind(tc.err))
		assert.NotEmpty(t, Notice(tc.err))
	}
	assert.Contains(t, Notice(fmt.Errorf("%w: expired", agent.ErrUnrecognizedStatus)), "expired")
	assert.Empty(t, Notice(nil))
}
