package worker

import (
	"context"
	"time"

	"assistchat/internal/models"
	"assistchat/internal/service/conversation"
	"assistchat/internal/service/run"
)

type taskKind int

const (
	taskLoad taskKind = iota
	taskSend
	taskReset
)

type task struct {
	kind     taskKind
	ctx      context.Context
	content  string
	onStatus run.StatusFunc
	resultCh chan workerReturn
}

type workerReturn struct {
	session *models.Session
	turn    *conversation.TurnResult
	err     error
}

// sessionWorker runs the tasks of one browser session one at a time, so a
// thread never has two runs in flight.
type sessionWorker struct {
	id      string
	tasks   chan task
	purgeCh chan struct{}
	stopCh  chan struct{}
	state   sessionState
}

func newSessionWorker(id string, queueSize int) *sessionWorker {
	return &sessionWorker{
		id:      id,
		tasks:   make(chan task, queueSize),
		purgeCh: make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
	}
}

func (m *Manager) runWorker(w *sessionWorker) {
	debugLog("started", "session_id", w.id)
	idle := time.NewTimer(m.cfg.IdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-w.stopCh:
			m.drain(w)
			debugLog("stopped", "session_id", w.id)
			return
		case <-w.purgeCh:
			w.state.purge()
		case t := <-w.tasks:
			m.handle(w, t)
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(m.cfg.IdleTimeout)
		case <-idle.C:
			if m.retire(w) {
				debugLog("retired idle worker", "session_id", w.id)
				return
			}
			idle.Reset(m.cfg.IdleTimeout)
		}
	}
}
