package speech

import (
	"context"
	"sync"
)

type runFunc func(ctx context.Context, stop <-chan struct{}, events chan<- Event)

// sessions runs one recognition session at a time for a handle. Starting a
// new session aborts the previous run.
type sessions struct {
	mu     sync.Mutex
	stopCh chan struct{}
	cancel context.CancelFunc
}

func (s *sessions) start(ctx context.Context, run runFunc) <-chan Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	stopCh := make(chan struct{})
	s.stopCh = stopCh

	events := make(chan Event, 8)
	go func() {
		defer close(events)
		defer cancel()
		run(runCtx, stopCh, events)
	}()
	return events
}

// stop asks the running session to finish with what it has heard so far.
func (s *sessions) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopCh != nil {
		close(s.stopCh)
		s.stopCh = nil
	}
}

func send(ctx context.Context, events chan<- Event, ev Event) bool {
	select {
	case events <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish emits the final hypothesis, when there is one, and the end event.
func finish(ctx context.Context, events chan<- Event, text string) {
	if text != "" {
		if !send(ctx, events, ResultEvent(text, true)) {
			return
		}
	}
	send(ctx, events, EndEvent())
}
