package scratchpad

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/leonardotrapani/voicepad/internal/speech"
)

const defaultDrainTimeout = 5 * time.Second

type State string

const (
	StateIdle      State = "idle"
	StateListening State = "listening"
	StateError     State = "error"
)

// Snapshot is the observable state handed to the presentation layer.
type Snapshot struct {
	State     State  `json:"state"`
	Listening bool   `json:"listening"`
	Text      string `json:"text"`
	InFlight  string `json:"in_flight"`
	Error     string `json:"error,omitempty"`
}

// Hooks receive session transitions. Any field may be nil.
type Hooks struct {
	Started   func(sessionID string)
	Committed func(sessionID, text string)
	Failed    func(sessionID, kind string)
}

type Options struct {
	Hooks Hooks
	// DrainTimeout bounds how long a stopped session may keep delivering
	// results before its in-flight text is committed anyway.
	DrainTimeout time.Duration
}

type session struct {
	id       string
	cancel   context.CancelFunc
	draining bool
	drain    *time.Timer
}

// Controller owns the recognition session lifecycle and the text buffer.
// All transitions are serialized; observers are notified after each one.
type Controller struct {
	handle speech.Handle
	hooks  Hooks
	drain  time.Duration

	mu        sync.Mutex
	buffer    *Buffer
	inFlight  string
	listening bool
	lastErr   string
	current   *session

	emitMu    sync.Mutex
	observers map[int]func(Snapshot)
	nextObs   int
}

func NewController(handle speech.Handle, opts Options) *Controller {
	if opts.DrainTimeout <= 0 {
		opts.DrainTimeout = defaultDrainTimeout
	}
	return &Controller{
		handle:    handle,
		hooks:     opts.Hooks,
		drain:     opts.DrainTimeout,
		buffer:    NewBuffer(),
		observers: make(map[int]func(Snapshot)),
	}
}

// Start begins a recognition session. It is a no-op while already listening.
// A start failure is recorded as the last error and returned.
func (c *Controller) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.listening {
		c.mu.Unlock()
		return nil
	}

	// a stopped session that is still draining gets committed now
	prevID, flushed := c.currentID(), c.flushLocked()
	defer c.committed(prevID, flushed)

	id := uuid.NewString()
	sessionCtx, cancel := context.WithCancel(ctx)
	events, err := c.handle.Start(sessionCtx)
	if err != nil {
		cancel()
		kind := speech.ErrorKind(err, speech.KindStartFailed)
		c.lastErr = kind
		c.mu.Unlock()

		log.Printf("Controller: start failed: %v", err)
		c.fail(id, kind)
		c.publish()
		return err
	}

	c.current = &session{id: id, cancel: cancel}
	c.listening = true
	c.inFlight = ""
	c.lastErr = ""
	c.mu.Unlock()

	log.Printf("Controller: session %s started", id)
	go c.pump(id, events)

	if c.hooks.Started != nil {
		c.hooks.Started(id)
	}
	c.publish()
	return nil
}

// Stop ends listening. Idempotent. The engine's remaining results for the
// session are still accepted until its End event or the drain timeout.
func (c *Controller) Stop() error {
	c.mu.Lock()
	if !c.listening || c.current == nil {
		c.mu.Unlock()
		return nil
	}

	s := c.current
	c.listening = false
	s.draining = true
	var flushed string
	err := c.handle.Stop()
	if err != nil {
		log.Printf("Controller: engine stop failed: %v", err)
		flushed = c.flushLocked()
	} else {
		id := s.id
		s.drain = time.AfterFunc(c.drain, func() { c.drainExpired(id) })
	}
	c.mu.Unlock()

	c.committed(s.id, flushed)
	c.publish()
	return err
}

// Toggle starts when idle and stops when listening. It reports whether the
// controller is listening afterwards.
func (c *Controller) Toggle(ctx context.Context) (bool, error) {
	if c.Listening() {
		return false, c.Stop()
	}
	err := c.Start(ctx)
	return c.Listening(), err
}

// HandleEvent applies one engine event for the given session. Events from a
// session that is no longer current are dropped.
func (c *Controller) HandleEvent(sessionID string, ev speech.Event) {
	c.mu.Lock()
	if c.current == nil || c.current.id != sessionID {
		c.mu.Unlock()
		log.Printf("Controller: dropping %s event from stale session %s", ev.Kind, sessionID)
		return
	}

	var committed string
	var failed string

	switch ev.Kind {
	case speech.EventResult:
		c.inFlight = ev.Transcript()

	case speech.EventEnd:
		committed = c.commitLocked()
		c.endLocked()

	case speech.EventError:
		kind := ev.ErrorKind
		if kind == "" {
			kind = speech.ErrorKind(ev.Err, speech.KindAborted)
		}
		if c.listening {
			if err := c.handle.Stop(); err != nil {
				log.Printf("Controller: engine stop after error failed: %v", err)
			}
		}
		// partial text at error time is discarded
		c.inFlight = ""
		c.lastErr = kind
		c.endLocked()
		failed = kind
		log.Printf("Controller: session %s failed: %s (%v)", sessionID, kind, ev.Err)

	default:
		c.mu.Unlock()
		log.Printf("Controller: unknown event kind %q", ev.Kind)
		return
	}
	c.mu.Unlock()

	c.committed(sessionID, committed)
	if failed != "" {
		c.fail(sessionID, failed)
	}
	c.publish()
}

// ReplaceAll overwrites the buffer with user-edited text.
func (c *Controller) ReplaceAll(text string) {
	c.mu.Lock()
	c.buffer.ReplaceAll(text)
	c.mu.Unlock()
	c.publish()
}

func (c *Controller) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buffer.Text()
}

func (c *Controller) InFlight() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inFlight
}

func (c *Controller) Listening() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.listening
}

// LastError returns the last engine error kind, or "" when none is set.
func (c *Controller) LastError() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Subscribe registers fn for state changes and returns a function that
// removes it. fn runs synchronously and must not call back into c.
func (c *Controller) Subscribe(fn func(Snapshot)) func() {
	c.emitMu.Lock()
	id := c.nextObs
	c.nextObs++
	c.observers[id] = fn
	c.emitMu.Unlock()

	return func() {
		c.emitMu.Lock()
		delete(c.observers, id)
		c.emitMu.Unlock()
	}
}

// Close stops any session, commits draining text and drops observers.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.listening {
		if err := c.handle.Stop(); err != nil {
			log.Printf("Controller: engine stop on close failed: %v", err)
		}
		c.listening = false
	}
	id, flushed := c.currentID(), c.flushLocked()
	c.mu.Unlock()

	c.committed(id, flushed)
	c.publish()

	c.emitMu.Lock()
	c.observers = make(map[int]func(Snapshot))
	c.emitMu.Unlock()
}

func (c *Controller) pump(id string, events <-chan speech.Event) {
	for ev := range events {
		c.HandleEvent(id, ev)
	}

	// a channel closed without a terminal event ends the session normally
	c.mu.Lock()
	stillCurrent := c.current != nil && c.current.id == id
	c.mu.Unlock()
	if stillCurrent {
		log.Printf("Controller: session %s closed without end event", id)
		c.HandleEvent(id, speech.EndEvent())
	}
}

func (c *Controller) drainExpired(id string) {
	c.mu.Lock()
	if c.current == nil || c.current.id != id || !c.current.draining {
		c.mu.Unlock()
		return
	}
	log.Printf("Controller: session %s did not end within %v, committing", id, c.drain)
	committed := c.flushLocked()
	c.mu.Unlock()

	c.committed(id, committed)
	c.publish()
}

// commitLocked moves the in-flight transcript into the buffer. Empty
// transcripts are not committed.
func (c *Controller) commitLocked() string {
	text := c.inFlight
	c.inFlight = ""
	if text == "" {
		return ""
	}
	c.buffer.Commit(text)
	return text
}

// flushLocked commits and detaches a draining session.
func (c *Controller) flushLocked() string {
	if c.current == nil {
		return ""
	}
	committed := c.commitLocked()
	c.endLocked()
	return committed
}

func (c *Controller) endLocked() {
	if c.current != nil {
		if c.current.drain != nil {
			c.current.drain.Stop()
		}
		c.current.cancel()
		c.current = nil
	}
	c.listening = false
}

func (c *Controller) snapshotLocked() Snapshot {
	state := StateIdle
	switch {
	case c.listening:
		state = StateListening
	case c.lastErr != "":
		state = StateError
	}
	return Snapshot{
		State:     state,
		Listening: c.listening,
		Text:      c.buffer.Text(),
		InFlight:  c.inFlight,
		Error:     c.lastErr,
	}
}

func (c *Controller) currentID() string {
	if c.current == nil {
		return ""
	}
	return c.current.id
}

func (c *Controller) committed(id, text string) {
	if text != "" && c.hooks.Committed != nil {
		c.hooks.Committed(id, text)
	}
}

func (c *Controller) fail(id, kind string) {
	if c.hooks.Failed != nil {
		c.hooks.Failed(id, kind)
	}
}

func (c *Controller) publish() {
	c.emitMu.Lock()
	defer c.emitMu.Unlock()

	if len(c.observers) == 0 {
		return
	}
	snap := c.Snapshot()
	for _, fn := range c.observers {
		fn(snap)
	}
}
