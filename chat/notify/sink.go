// Package notify hands chat events to the external notification subsystem.
package notify

import (
	"context"
	"sync"

	"github.com/alumnihub/chat/structures"
)

// Sink is fire-and-forget from the caller's point of view: the store logs a
// failed Emit and carries on.
type Sink interface {
	Emit(ctx context.Context, ev structures.NotificationEvent) error
}

type nop struct{}

func (nop) Emit(context.Context, structures.NotificationEvent) error { return nil }

// Nop drops every event.
var Nop Sink = nop{}

// Recorder keeps every event in memory.
type Recorder struct {
	mtx    sync.Mutex
	events []structures.NotificationEvent
}

func (r *Recorder) Emit(_ context.Context, ev structures.NotificationEvent) error {
	r.mtx.Lock()
	r.events = append(r.events, ev)
	r.mtx.Unlock()
	return nil
}

func (r *Recorder) Events() []structures.NotificationEvent {
	r.mtx.Lock()
	defer r.mtx.Unlock()
	out := make([]structures.NotificationEvent, len(r.events))
	copy(out, r.events)
	return out
}

func (r *Recorder) Reset() {
	r.mtx.Lock()
	r.events = nil
	r.mtx.Unlock()
}

// Multi emits to every sink and returns the first error.
func Multi(sinks ...Sink) Sink {
	return multi(sinks)
}

type multi []Sink

func (m multi) Emit(ctx context.Context, ev structures.NotificationEvent) error {
	var first error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil && first == nil {
			first = err
		}
	}
	return first
}
