// Package notify announces record lifecycle changes.
//
// The sync engine publishes an Event after every successful write-through
// and after rebuilds. Publishing is fire-and-forget: sinks never report
// errors back to the engine.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/asaidimu/go-events"
)

// Action is the lifecycle change an event reports.
type Action string

const (
	Created Action = "created"
	Updated Action = "updated"
	Deleted Action = "deleted"
	// Synced reports a row refreshed from a changed file on disk.
	Synced Action = "synced"
	// Rebuilt reports a completed full rebuild of a kind.
	Rebuilt Action = "rebuilt"
)

// Event describes one change.
type Event struct {
	Action Action         `json:"action"`
	Kind   string         `json:"kind"`
	Key    string         `json:"key,omitempty"`
	Record map[string]any `json:"record,omitempty"`
	At     time.Time      `json:"at"`
}

// Sink receives events.
type Sink interface {
	Publish(ctx context.Context, e Event)
}

// Discard drops every event.
type Discard struct{}

func (Discard) Publish(context.Context, Event) {}

// Fanout publishes to every sink in order.
type Fanout []Sink

func (f Fanout) Publish(ctx context.Context, e Event) {
	for _, s := range f {
		s.Publish(ctx, e)
	}
}

// Bus is an in-process event bus. Subscribers register per action.
type Bus struct {
	bus    *events.TypedEventBus[Event]
	logger *slog.Logger
}

// NewBus creates a bus. If logger is nil, slog.Default() is used.
func NewBus(logger *slog.Logger) (*Bus, error) {
	if logger == nil {
		logger = slog.Default()
	}
	bus, err := events.NewTypedEventBus[Event](events.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create event bus: %w", err)
	}
	return &Bus{bus: bus, logger: logger.With("component", "notify")}, nil
}

// Publish emits e to the subscribers of its action.
func (b *Bus) Publish(_ context.Context, e Event) {
	if e.At.IsZero() {
		e.At = time.Now()
	}
	b.logger.Debug("publish", "action", e.Action, "kind", e.Kind, "key", e.Key)
	b.bus.Emit(string(e.Action), e)
}

// Subscribe registers fn for an action and returns a function that removes
// the subscription.
func (b *Bus) Subscribe(action Action, fn func(ctx context.Context, e Event) error) func() {
	return b.bus.Subscribe(string(action), func(ctx context.Context, e Event) error {
		return fn(ctx, e)
	})
}

// Recorder keeps every published event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Publish(_ context.Context, e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Actions returns the recorded actions in order.
func (r *Recorder) Actions() []Action {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Action, len(r.events))
	for i, e := range r.events {
		out[i] = e.Action
	}
	return out
}
