package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"assistchat/internal/models"
	"assistchat/internal/observability"
	"assistchat/internal/service/conversation"
	"assistchat/internal/service/run"
	"assistchat/internal/store"
)

const (
	defaultMaxWorkers  = 16
	defaultQueueSize   = 4
	defaultIdleTimeout = 10 * time.Minute
)

var (
	ErrQueueFull = errors.New("session task queue is full")
	ErrStopped   = errors.New("worker manager stopped")
)

// Turns is the conversation logic the workers drive.
type Turns interface {
	Send(ctx context.Context, sess *models.Session, content string, onStatus run.StatusFunc) (*conversation.TurnResult, error)
	Reset(ctx context.Context, sess *models.Session) error
}

type Config struct {
	// MaxWorkers caps the tasks running at once across all sessions.
	MaxWorkers int
	// QueueSize bounds the pending tasks per session.
	QueueSize   int
	IdleTimeout time.Duration
	// ResetBus is optional; with it resets are broadcast to other replicas.
	ResetBus store.ResetBus
	// Shared marks a store other replicas write to. Sessions are then read
	// from the store on every task instead of cached by the worker.
	Shared bool
	Logger *slog.Logger
}

// Manager owns one worker goroutine per active browser session.
type Manager struct {
	turns  Turns
	store  store.Store
	cfg    Config
	sem    *semaphore.Weighted
	logger *slog.Logger

	mu      sync.Mutex
	workers map[string]*sessionWorker
	stopped bool
}

func NewManager(turns Turns, st store.Store, cfg Config) *Manager {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = defaultMaxWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = defaultIdleTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Manager{
		turns:   turns,
		store:   st,
		cfg:     cfg,
		sem:     semaphore.NewWeighted(int64(cfg.MaxWorkers)),
		logger:  cfg.Logger,
		workers: make(map[string]*sessionWorker),
	}
}

// Session returns the session, creating an empty one on first use.
func (m *Manager) Session(ctx context.Context, sessionID string) (*models.Session, error) {
	ret := m.submit(ctx, sessionID, task{kind: taskLoad})
	return ret.session, ret.err
}

// Send runs one conversation turn. The returned session reflects the log
// after the turn, including on error.
func (m *Manager) Send(ctx context.Context, sessionID, content string, onStatus run.StatusFunc) (*models.Session, *conversation.TurnResult, error) {
	ret := m.submit(ctx, sessionID, task{kind: taskSend, content: content, onStatus: onStatus})
	return ret.session, ret.turn, ret.err
}

// Reset starts a new conversation for the session.
func (m *Manager) Reset(ctx context.Context, sessionID string) (*models.Session, error) {
	ret := m.submit(ctx, sessionID, task{kind: taskReset})
	return ret.session, ret.err
}

// Purge drops the cached session of a local worker so the next task reloads it.
func (m *Manager) Purge(sessionID string) {
	m.mu.Lock()
	w := m.workers[sessionID]
	m.mu.Unlock()
	if w == nil {
		return
	}
	select {
	case w.purgeCh <- struct{}{}:
	default:
	}
}

// Active reports the number of live session workers.
func (m *Manager) Active() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.workers)
}

// Stop terminates every worker. Queued tasks fail with ErrStopped.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.stopped {
		return
	}
	m.stopped = true
	for id, w := range m.workers {
		close(w.stopCh)
		delete(m.workers, id)
	}
}

func (m *Manager) submit(ctx context.Context, sessionID string, t task) workerReturn {
	if sessionID == "" {
		return workerReturn{err: errors.New("session id required")}
	}
	t.ctx = ctx
	t.resultCh = make(chan workerReturn, 1)

	m.mu.Lock()
	if m.stopped {
		m.mu.Unlock()
		return workerReturn{err: ErrStopped}
	}
	w := m.ensureWorkerLocked(sessionID)
	select {
	case w.tasks <- t:
	default:
		m.mu.Unlock()
		return workerReturn{err: ErrQueueFull}
	}
	m.mu.Unlock()

	select {
	case ret := <-t.resultCh:
		return ret
	case <-ctx.Done():
		return workerReturn{err: ctx.Err()}
	}
}

func (m *Manager) ensureWorkerLocked(sessionID string) *sessionWorker {
	if w, ok := m.workers[sessionID]; ok {
		return w
	}
	w := newSessionWorker(sessionID, m.cfg.QueueSize)
	m.workers[sessionID] = w
	go m.runWorker(w)
	return w
}

// retire removes an idle worker unless a task slipped in.
func (m *Manager) retire(w *sessionWorker) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(w.tasks) > 0 {
		return false
	}
	if m.workers[w.id] == w {
		delete(m.workers, w.id)
	}
	return true
}

// drain fails the tasks still queued on a stopped worker.
func (m *Manager) drain(w *sessionWorker) {
	for {
		select {
		case t := <-w.tasks:
			t.resultCh <- workerReturn{err: ErrStopped}
		default:
			return
		}
	}
}

func (m *Manager) handle(w *sessionWorker, t task) {
	ctx := t.ctx
	if err := ctx.Err(); err != nil {
		t.resultCh <- workerReturn{err: err}
		return
	}
	if err := m.sem.Acquire(ctx, 1); err != nil {
		t.resultCh <- workerReturn{err: err}
		return
	}
	defer m.sem.Release(1)

	sess, err := m.load(ctx, w)
	if err != nil {
		t.resultCh <- workerReturn{err: err}
		return
	}

	var ret workerReturn
	switch t.kind {
	case taskLoad:
		ret = workerReturn{session: sess.Clone()}
	case taskSend:
		ret = m.handleSend(ctx, sess, t)
	case taskReset:
		ret = m.handleReset(ctx, sess)
	default:
		ret = workerReturn{err: fmt.Errorf("unknown task kind %d", t.kind)}
	}
	t.resultCh <- ret
}

func (m *Manager) load(ctx context.Context, w *sessionWorker) (*models.Session, error) {
	if sess := w.state.get(); sess != nil && !m.cfg.Shared {
		return sess, nil
	}
	sess, err := m.store.Get(ctx, w.id)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		now := time.Now().UTC()
		sess = &models.Session{ID: w.id, CreatedAt: now, UpdatedAt: now}
		if err := m.store.Save(ctx, sess); err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		observability.RecordSessionCreated()
		debugLog("created session", "session_id", w.id)
	default:
		return nil, fmt.Errorf("load session: %w", err)
	}
	w.state.set(sess)
	return sess, nil
}

func (m *Manager) handleSend(ctx context.Context, sess *models.Session, t task) workerReturn {
	start := time.Now()
	observability.TurnStarted()
	turn, err := m.turns.Send(ctx, sess, t.content, t.onStatus)
	observability.TurnFinished()

	statuses := 0
	if turn != nil {
		statuses = turn.Statuses
	}
	observability.RecordTurn(conversation.Kind(err), time.Since(start), statuses)
	if errors.Is(err, conversation.ErrEmptyMessage) {
		return workerReturn{session: sess.Clone(), err: err}
	}

	if serr := m.save(ctx, sess); serr != nil && err == nil {
		err = serr
	}
	return workerReturn{session: sess.Clone(), turn: turn, err: err}
}

func (m *Manager) handleReset(ctx context.Context, sess *models.Session) workerReturn {
	err := m.turns.Reset(ctx, sess)
	if serr := m.save(ctx, sess); serr != nil && err == nil {
		err = serr
	}
	if m.cfg.ResetBus != nil {
		if perr := m.cfg.ResetBus.PublishReset(context.WithoutCancel(ctx), sess.ID); perr != nil {
			m.logger.Warn("publish session reset failed", "session_id", sess.ID, "error", perr)
		}
	}
	return workerReturn{session: sess.Clone(), err: err}
}

// save persists even when the caller has gone away, so a finished turn is not lost.
func (m *Manager) save(ctx context.Context, sess *models.Session) error {
	if err := m.store.Save(context.WithoutCancel(ctx), sess); err != nil {
		m.logger.Error("save session failed", "session_id", sess.ID, "error", err)
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}
