package run

import (
	"context"
	"fmt"
	"time"

	"assistchat/internal/service/agent"
)

// Defaults used when NewPoller is given a non-positive value.
const (
	DefaultInterval = 500 * time.Millisecond
	DefaultTimeout  = 60 * time.Second
)

// RunGetter fetches a run snapshot.
type RunGetter interface {
	GetRun(ctx context.Context, threadID, runID string) (*agent.Run, error)
}

// StatusFunc observes every run status the poller sees, the initial one included.
type StatusFunc func(agent.RunStatus)

// Poller waits for a run to leave the queued/in_progress/cancelling states.
type Poller struct {
	Interval time.Duration
	Timeout  time.Duration
}

// NewPoller returns a Poller, substituting the defaults for non-positive values.
func NewPoller(interval, timeout time.Duration) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Poller{Interval: interval, Timeout: timeout}
}

// Wait re-fetches the run every Interval until it reaches a terminal status or
// Timeout elapses. Exceeding Timeout yields agent.ErrTimeout; the remote run is
// left as is. A completed run is returned with a nil error, every other
// terminal status maps to its error kind.
func (p *Poller) Wait(ctx context.Context, getter RunGetter, threadID string, current *agent.Run, onStatus StatusFunc) (*agent.Run, error) {
	if current == nil {
		return nil, fmt.Errorf("poll run: %w: no run", agent.ErrTransport)
	}
	pollCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	for {
		if onStatus != nil {
			onStatus(current.Status)
		}
		if !current.Status.Pending() {
			return current, terminalError(current)
		}

		timer := time.NewTimer(p.Interval)
		select {
		case <-pollCtx.Done():
			timer.Stop()
			return current, p.doneError(ctx, current)
		case <-timer.C:
		}

		next, err := getter.GetRun(pollCtx, threadID, current.ID)
		if err != nil {
			if pollCtx.Err() != nil {
				return current, p.doneError(ctx, current)
			}
			return current, fmt.Errorf("poll run %s: %w", current.ID, err)
		}
		current = next
	}
}

func (p *Poller) doneError(parent context.Context, current *agent.Run) error {
	if err := parent.Err(); err != nil {
		return fmt.Errorf("poll run %s: %w", current.ID, err)
	}
	return fmt.Errorf("poll run %s: still %s after %s: %w", current.ID, current.Status, p.Timeout, agent.ErrTimeout)
}

func terminalError(r *agent.Run) error {
	switch r.Status {
	case agent.RunCompleted:
		return nil
	case agent.RunFailed:
		detail := r.LastError
		if detail == "" {
			detail = "no error detail provided"
		}
		return fmt.Errorf("%w: %s", agent.ErrRunFailed, detail)
	case agent.RunRequiresAction:
		return agent.ErrUnsupportedAction
	default:
		return fmt.Errorf("%w: %s", agent.ErrUnrecognizedStatus, r.Status)
	}
}
