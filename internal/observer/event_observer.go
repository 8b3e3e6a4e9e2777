package observer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is a step of the per-request pipeline state machine
type State string

const (
	StatePending            State = "pending"
	StateExtractingFeatures State = "extracting-features"
	StateGeneratingReport   State = "generating-report"
	StateOptimizing         State = "optimizing-conversion"
	StateDone               State = "done"
	StateFailed             State = "failed"
)

// Terminal reports whether no further transition can follow s
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed
}

// PipelineEvent is one state transition of one analysis request
type PipelineEvent struct {
	RequestID string         `json:"request_id"`
	UserID    string         `json:"user_id"`
	Analysis  string         `json:"analysis"`
	State     State          `json:"state"`
	Timestamp time.Time      `json:"timestamp"`
	Elapsed   time.Duration  `json:"elapsed"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Observer receives pipeline events. OnEvent runs on the request path and
// must not block.
type Observer interface {
	OnEvent(ctx context.Context, event PipelineEvent)
	GetObserverName() string
}

// Subject defines the interface for event publishers
type Subject interface {
	Subscribe(observer Observer)
	Unsubscribe(observer Observer)
	NotifyObservers(ctx context.Context, event PipelineEvent)
}

// LoggingObserver logs pipeline transitions
type LoggingObserver struct {
	log logrus.FieldLogger
}

func NewLoggingObserver(log logrus.FieldLogger) Observer {
	return &LoggingObserver{log: log.WithField("component", "pipeline")}
}

func (o *LoggingObserver) OnEvent(ctx context.Context, event PipelineEvent) {
	fields := logrus.Fields{
		"request_id": event.RequestID,
		"user_id":    event.UserID,
		"analysis":   event.Analysis,
		"state":      event.State,
		"elapsed_ms": event.Elapsed.Milliseconds(),
	}
	if event.Error != "" {
		fields["error"] = event.Error
	}
	for k, v := range event.Metadata {
		fields[k] = v
	}

	entry := o.log.WithFields(fields)
	switch event.State {
	case StateFailed:
		entry.Error("Analysis failed")
	case StateDone:
		entry.Info("Analysis completed")
	case StatePending:
		entry.Info("Analysis started")
	default:
		entry.Debug("Analysis state changed")
	}
}

func (o *LoggingObserver) GetObserverName() string {
	return "logging_observer"
}

// MetricsObserver counts transitions per state
type MetricsObserver struct {
	mu          sync.RWMutex
	transitions map[State]int64
	completed   int64
	totalTime   time.Duration
}

func NewMetricsObserver() *MetricsObserver {
	return &MetricsObserver{transitions: make(map[State]int64)}
}

func (o *MetricsObserver) OnEvent(ctx context.Context, event PipelineEvent) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.transitions[event.State]++
	if event.State == StateDone {
		o.completed++
		o.totalTime += event.Elapsed
	}
}

func (o *MetricsObserver) GetObserverName() string {
	return "metrics_observer"
}

// GetMetrics returns transition counts and the mean time to done
func (o *MetricsObserver) GetMetrics() map[string]any {
	o.mu.RLock()
	defer o.mu.RUnlock()

	avg := time.Duration(0)
	if o.completed > 0 {
		avg = o.totalTime / time.Duration(o.completed)
	}
	counts := make(map[string]int64, len(o.transitions))
	for state, n := range o.transitions {
		counts[string(state)] = n
	}
	return map[string]any{
		"transitions":       counts,
		"started":           o.transitions[StatePending],
		"completed":         o.completed,
		"failed":            o.transitions[StateFailed],
		"avg_completion_ms": avg.Milliseconds(),
	}
}

// EventPublisher implements the Subject interface
type EventPublisher struct {
	mu        sync.RWMutex
	observers []Observer
	log       logrus.FieldLogger
}

func NewEventPublisher(log logrus.FieldLogger) *EventPublisher {
	return &EventPublisher{
		observers: make([]Observer, 0),
		log:       log.WithField("component", "event_publisher"),
	}
}

func (p *EventPublisher) Subscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, observer)
}

// Unsubscribe removes an observer by name
func (p *EventPublisher) Unsubscribe(observer Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, obs := range p.observers {
		if obs.GetObserverName() == observer.GetObserverName() {
			p.observers = append(p.observers[:i], p.observers[i+1:]...)
			break
		}
	}
}

// NotifyObservers delivers event to every observer in subscription order so
// each observer sees a request's transitions in sequence
func (p *EventPublisher) NotifyObservers(ctx context.Context, event PipelineEvent) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	for _, obs := range observers {
		p.deliver(ctx, obs, event)
	}
}

func (p *EventPublisher) deliver(ctx context.Context, obs Observer, event PipelineEvent) {
	defer func() {
		if r := recover(); r != nil {
			p.log.WithFields(logrus.Fields{
				"observer": obs.GetObserverName(),
				"panic":    fmt.Sprint(r),
			}).Error("Observer panicked while handling event")
		}
	}()
	obs.OnEvent(ctx, event)
}
