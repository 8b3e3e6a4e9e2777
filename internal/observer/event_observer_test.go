package observer

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"go-palm-insight/internal/logger"
)

type recordingObserver struct {
	name   string
	mu     sync.Mutex
	states []State
}

func (r *recordingObserver) OnEvent(_ context.Context, e PipelineEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, e.State)
}

func (r *recordingObserver) GetObserverName() string { return r.name }

type panickingObserver struct{}

func (panickingObserver) OnEvent(context.Context, PipelineEvent) { panic("observer bug") }
func (panickingObserver) GetObserverName() string { return "panicking" }

func TestEventPublisher_DeliversInOrder(t *testing.T) {
	p := NewEventPublisher(logger.Discard())
	rec := &recordingObserver{name: "rec"}
	p.Subscribe(panickingObserver{})
	p.Subscribe(rec)

	states := []State{StatePending, StateExtractingFeatures, StateGeneratingReport, StateOptimizing, StateDone}
	for _, s := range states {
		p.NotifyObservers(context.Background(), PipelineEvent{RequestID: "r1", State: s})
	}

	if len(rec.states) != len(states) {
		t.Fatalf("expected %d events, got %d", len(states), len(rec.states))
	}
	for i := range states {
		if rec.states[i] != states[i] {
			t.Errorf("event %d = %s, want %s", i, rec.states[i], states[i])
		}
	}
}

func TestEventPublisher_Unsubscribe(t *testing.T) {
	p := NewEventPublisher(logger.Discard())
	a := &recordingObserver{name: "a"}
	b := &recordingObserver{name: "b"}
	p.Subscribe(a)
	p.Subscribe(b)
	p.Unsubscribe(a)

	p.NotifyObservers(context.Background(), PipelineEvent{State: StatePending})
	if len(a.states) != 0 || len(b.states) != 1 {
		t.Errorf("a got %d events, b got %d", len(a.states), len(b.states))
	}
}

func TestMetricsObserver(t *testing.T) {
	m := NewMetricsObserver()
	ctx := context.Background()

	m.OnEvent(ctx, PipelineEvent{State: StatePending})
	m.OnEvent(ctx, PipelineEvent{State: StateDone, Elapsed: 100 * time.Millisecond})
	m.OnEvent(ctx, PipelineEvent{State: StatePending})
	m.OnEvent(ctx, PipelineEvent{State: StateDone, Elapsed: 300 * time.Millisecond})
	m.OnEvent(ctx, PipelineEvent{State: StatePending})
	m.OnEvent(ctx, PipelineEvent{State: StateFailed})

	got := m.GetMetrics()
	if got["started"] != int64(3) || got["completed"] != int64(2) || got["failed"] != int64(1) {
		t.Errorf("unexpected counts %v", got)
	}
	if got["avg_completion_ms"] != int64(200) {
		t.Errorf("avg_completion_ms = %v, want 200", got["avg_completion_ms"])
	}
}

func TestLoggingObserver(t *testing.T) {
	var buf bytes.Buffer
	o := NewLoggingObserver(logger.NewWithOutput("debug", &buf))

	o.OnEvent(context.Background(), PipelineEvent{
		RequestID: "req-7",
		State:     StateFailed,
		Error:     "TIMEOUT_ERROR",
		Metadata:  map[string]any{"timeout_ms": 60000},
	})

	out := buf.String()
	for _, want := range []string{`"request_id":"req-7"`, `"state":"failed"`, `"error":"TIMEOUT_ERROR"`, `"timeout_ms":60000`, `"level":"error"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s:\n%s", want, out)
		}
	}
}

func TestStateTerminal(t *testing.T) {
	if !StateDone.Terminal() || !StateFailed.Terminal() || StateGeneratingReport.Terminal() {
		t.Error("unexpected terminal states")
	}
}
