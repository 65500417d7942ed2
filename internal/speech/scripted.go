package speech

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// ErrorPrefix marks a scripted phrase that fails with the named kind,
// e.g. "!no-speech".
const ErrorPrefix = "!"

// Scripted replays fixed phrases word by word. Each session speaks the next
// phrase; useful headless and in tests.
type Scripted struct {
	Phrases  []string
	Interval time.Duration
}

func (s *Scripted) Name() string { return "scripted" }

func (s *Scripted) Supported() error {
	if len(s.Phrases) == 0 {
		return fmt.Errorf("no phrases configured")
	}
	return nil
}

func (s *Scripted) Create(cfg Config) (Handle, error) {
	if err := s.Supported(); err != nil {
		return nil, err
	}
	interval := s.Interval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	return &scriptedHandle{
		phrases:  append([]string(nil), s.Phrases...),
		interval: interval,
		cfg:      cfg,
	}, nil
}

type scriptedHandle struct {
	phrases  []string
	interval time.Duration
	cfg      Config

	mu       sync.Mutex
	next     int
	sessions sessions
}

func (h *scriptedHandle) Start(ctx context.Context) (<-chan Event, error) {
	h.mu.Lock()
	phrase := h.phrases[h.next%len(h.phrases)]
	h.next++
	h.mu.Unlock()

	return h.sessions.start(ctx, func(ctx context.Context, stop <-chan struct{}, events chan<- Event) {
		h.run(ctx, phrase, stop, events)
	}), nil
}

func (h *scriptedHandle) Stop() error {
	h.sessions.stop()
	return nil
}

func (h *scriptedHandle) run(ctx context.Context, phrase string, stopCh <-chan struct{}, events chan<- Event) {
	if kind, ok := strings.CutPrefix(phrase, ErrorPrefix); ok {
		select {
		case <-time.After(h.interval):
			events <- ErrorEvent(kind, fmt.Errorf("scripted %s", kind))
		case <-stopCh:
			events <- EndEvent()
		case <-ctx.Done():
		}
		return
	}

	words := strings.Fields(phrase)
	spoken := ""
	for i := range words {
		select {
		case <-ctx.Done():
			return
		case <-stopCh:
			finish(ctx, events, spoken)
			return
		case <-time.After(h.interval):
		}

		spoken = strings.Join(words[:i+1], " ")
		if h.cfg.InterimResults && i < len(words)-1 {
			if !send(ctx, events, ResultEvent(spoken, false)) {
				return
			}
		}
	}
	finish(ctx, events, spoken)
}
