package engine

import (
	"context"
	"sync"
	"time"

	"go-palm-insight/internal/observer"
)

// requestRun tracks one request through the pipeline state machine. Once a
// terminal state is published, later transitions from an abandoned worker
// are dropped.
type requestRun struct {
	events    observer.Subject
	now       func() time.Time
	requestID string
	userID    string
	analysis  string
	start     time.Time

	mu       sync.Mutex
	terminal bool
}

func (e *engine) newRun(analysis, userID string, start time.Time) *requestRun {
	return &requestRun{
		events:    e.deps.Events,
		now:       e.now,
		requestID: e.newID(),
		userID:    userID,
		analysis:  analysis,
		start:     start,
	}
}

func (r *requestRun) transition(ctx context.Context, state observer.State, meta map[string]any) {
	r.publish(ctx, state, "", meta)
}

func (r *requestRun) fail(ctx context.Context, code string, meta map[string]any) {
	r.publish(ctx, observer.StateFailed, code, meta)
}

func (r *requestRun) publish(ctx context.Context, state observer.State, code string, meta map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.terminal {
		return
	}
	r.terminal = state.Terminal()
	if r.events == nil {
		return
	}

	now := r.now()
	r.events.NotifyObservers(ctx, observer.PipelineEvent{
		RequestID: r.requestID,
		UserID:    r.userID,
		Analysis:  r.analysis,
		State:     state,
		Timestamp: now,
		Elapsed:   now.Sub(r.start),
		Error:     code,
		Metadata:  meta,
	})
}
