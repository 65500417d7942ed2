package scratchpad

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/leonardotrapani/voicepad/internal/speech"
)

// fakeHandle hands out one open channel per session and records calls.
// Tests drive the controller through HandleEvent directly.
type fakeHandle struct {
	mu       sync.Mutex
	starts   int
	stops    int
	startErr error
	chans    []chan speech.Event
}

func (f *fakeHandle) Start(ctx context.Context) (<-chan speech.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.starts++
	ch := make(chan speech.Event)
	f.chans = append(f.chans, ch)
	return ch, nil
}

func (f *fakeHandle) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stops++
	return nil
}

func (f *fakeHandle) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.starts, f.stops
}

type recorder struct {
	mu        sync.Mutex
	ids       []string
	committed []string
	failed    []string
}

func (r *recorder) hooks() Hooks {
	return Hooks{
		Started: func(id string) {
			r.mu.Lock()
			r.ids = append(r.ids, id)
			r.mu.Unlock()
		},
		Committed: func(_ string, text string) {
			r.mu.Lock()
			r.committed = append(r.committed, text)
			r.mu.Unlock()
		},
		Failed: func(_ string, kind string) {
			r.mu.Lock()
			r.failed = append(r.failed, kind)
			r.mu.Unlock()
		},
	}
}

func (r *recorder) lastID(t *testing.T) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.ids) == 0 {
		t.Fatal("no session started")
	}
	return r.ids[len(r.ids)-1]
}

func (r *recorder) commits() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.committed...)
}

func newTestController(t *testing.T) (*Controller, *fakeHandle, *recorder) {
	t.Helper()
	h := &fakeHandle{}
	r := &recorder{}
	c := NewController(h, Options{Hooks: r.hooks(), DrainTimeout: time.Hour})
	t.Cleanup(c.Close)
	return c, h, r
}

func mustStart(t *testing.T, c *Controller) {
	t.Helper()
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !c.Listening() {
		t.Fatal("controller should be listening after Start")
	}
}

func TestController_SessionCommitsFinalTranscript(t *testing.T) {
	c, _, r := newTestController(t)

	mustStart(t, c)
	id := r.lastID(t)

	c.HandleEvent(id, speech.ResultEvent("hel", false))
	if got := c.InFlight(); got != "hel" {
		t.Errorf("InFlight() = %q, want %q", got, "hel")
	}
	c.HandleEvent(id, speech.ResultEvent("hello", false))
	if got := c.InFlight(); got != "hello" {
		t.Errorf("InFlight() = %q, want %q", got, "hello")
	}
	if got := c.Text(); got != "" {
		t.Errorf("buffer should stay empty until session end, got %q", got)
	}

	c.HandleEvent(id, speech.EndEvent())

	if got := c.Text(); got != "hello" {
		t.Errorf("Text() = %q, want %q", got, "hello")
	}
	if got := c.InFlight(); got != "" {
		t.Errorf("InFlight() = %q, want empty", got)
	}
	if c.Listening() {
		t.Error("controller should be idle after session end")
	}
	if got := r.commits(); len(got) != 1 || got[0] != "hello" {
		t.Errorf("commits = %v, want [hello]", got)
	}
}

func TestController_SecondSessionAppendsWithSeparator(t *testing.T) {
	c, _, r := newTestController(t)
	c.ReplaceAll("hello")

	mustStart(t, c)
	id := r.lastID(t)
	c.HandleEvent(id, speech.ResultEvent("world", true))
	c.HandleEvent(id, speech.EndEvent())

	if got, want := c.Text(), "hello\n\nworld"; got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestController_ErrorDiscardsInFlight(t *testing.T) {
	c, h, r := newTestController(t)
	c.ReplaceAll("hello")

	mustStart(t, c)
	id := r.lastID(t)
	c.HandleEvent(id, speech.ResultEvent("wor", false))
	c.HandleEvent(id, speech.ErrorEvent(speech.KindNoSpeech, nil))

	if got := c.Text(); got != "hello" {
		t.Errorf("Text() = %q, want unchanged %q", got, "hello")
	}
	if c.Listening() {
		t.Error("controller should be idle after error")
	}
	if got := c.InFlight(); got != "" {
		t.Errorf("InFlight() = %q, want empty", got)
	}
	if got := c.LastError(); got != speech.KindNoSpeech {
		t.Errorf("LastError() = %q, want %q", got, speech.KindNoSpeech)
	}
	if snap := c.Snapshot(); snap.State != StateError {
		t.Errorf("State = %q, want %q", snap.State, StateError)
	}
	if _, stops := h.counts(); stops != 1 {
		t.Errorf("engine stops = %d, want 1", stops)
	}

	// a late end event for the failed session must not commit anything
	c.HandleEvent(id, speech.EndEvent())
	if got := c.Text(); got != "hello" {
		t.Errorf("late end committed text: %q", got)
	}
}

func TestController_ErrorKindFromWrappedError(t *testing.T) {
	c, _, r := newTestController(t)

	mustStart(t, c)
	c.HandleEvent(r.lastID(t), speech.Event{
		Kind: speech.EventError,
		Err:  speech.NewEngineError(speech.KindAudioCapture, errors.New("device busy")),
	})

	if got := c.LastError(); got != speech.KindAudioCapture {
		t.Errorf("LastError() = %q, want %q", got, speech.KindAudioCapture)
	}
}

func TestController_StartWhileListeningIsNoop(t *testing.T) {
	c, h, r := newTestController(t)
	c.ReplaceAll("kept")

	mustStart(t, c)
	id := r.lastID(t)
	c.HandleEvent(id, speech.ResultEvent("partial", false))

	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if starts, _ := h.counts(); starts != 1 {
		t.Errorf("engine starts = %d, want 1", starts)
	}
	if !c.Listening() {
		t.Error("controller should still be listening")
	}
	if got := c.InFlight(); got != "partial" {
		t.Errorf("InFlight() = %q, want %q", got, "partial")
	}
	if got := c.Text(); got != "kept" {
		t.Errorf("Text() = %q, want %q", got, "kept")
	}
	if got := r.lastID(t); got != id {
		t.Errorf("session id changed from %s to %s", id, got)
	}
}

func TestController_IdleAfterStopEndOrError(t *testing.T) {
	tests := []struct {
		name string
		end  func(c *Controller, id string)
	}{
		{name: "stop", end: func(c *Controller, _ string) { _ = c.Stop() }},
		{name: "end", end: func(c *Controller, id string) { c.HandleEvent(id, speech.EndEvent()) }},
		{name: "error", end: func(c *Controller, id string) {
			c.HandleEvent(id, speech.ErrorEvent(speech.KindNetwork, nil))
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, _, r := newTestController(t)
			mustStart(t, c)
			tt.end(c, r.lastID(t))
			if c.Listening() {
				t.Error("controller should not be listening")
			}
		})
	}
}

func TestController_StopIsIdempotent(t *testing.T) {
	c, h, _ := newTestController(t)

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() on idle controller error = %v", err)
	}
	if _, stops := h.counts(); stops != 0 {
		t.Errorf("engine should not be stopped when idle, stops = %d", stops)
	}

	mustStart(t, c)
	_ = c.Stop()
	_ = c.Stop()
	if _, stops := h.counts(); stops != 1 {
		t.Errorf("engine stops = %d, want 1", stops)
	}
}

func TestController_StopThenEndCommitsOnce(t *testing.T) {
	c, _, r := newTestController(t)

	mustStart(t, c)
	id := r.lastID(t)
	c.HandleEvent(id, speech.ResultEvent("almost", false))

	if err := c.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := c.Text(); got != "" {
		t.Errorf("stop should wait for the engine end event, got %q", got)
	}

	// engine delivers its final hypothesis after the stop request
	c.HandleEvent(id, speech.ResultEvent("almost done", true))
	c.HandleEvent(id, speech.EndEvent())
	c.HandleEvent(id, speech.EndEvent())

	if got := c.Text(); got != "almost done" {
		t.Errorf("Text() = %q, want %q", got, "almost done")
	}
	if got := r.commits(); len(got) != 1 {
		t.Errorf("commits = %v, want exactly one", got)
	}
}

func TestController_StartWhileDrainingFlushesPreviousSession(t *testing.T) {
	c, _, r := newTestController(t)

	mustStart(t, c)
	first := r.lastID(t)
	c.HandleEvent(first, speech.ResultEvent("first", false))
	_ = c.Stop()

	mustStart(t, c)
	if got := c.Text(); got != "first" {
		t.Errorf("Text() = %q, want %q", got, "first")
	}

	// the old session's end arrives late and is ignored
	c.HandleEvent(first, speech.ResultEvent("first again", true))
	c.HandleEvent(first, speech.EndEvent())
	if got := c.Text(); got != "first" {
		t.Errorf("stale session changed text to %q", got)
	}
	if got := c.InFlight(); got != "" {
		t.Errorf("stale session changed in-flight to %q", got)
	}

	second := r.lastID(t)
	c.HandleEvent(second, speech.ResultEvent("second", true))
	c.HandleEvent(second, speech.EndEvent())
	if got, want := c.Text(), "first\n\nsecond"; got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestController_DrainTimeoutCommits(t *testing.T) {
	h := &fakeHandle{}
	committed := make(chan string, 1)
	var id string
	c := NewController(h, Options{
		DrainTimeout: 20 * time.Millisecond,
		Hooks: Hooks{
			Started:   func(sid string) { id = sid },
			Committed: func(_ string, text string) { committed <- text },
		},
	})
	defer c.Close()

	mustStart(t, c)
	c.HandleEvent(id, speech.ResultEvent("never ended", false))
	_ = c.Stop()

	select {
	case got := <-committed:
		if got != "never ended" {
			t.Errorf("committed %q, want %q", got, "never ended")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("drain timeout did not commit")
	}
	if got := c.Text(); got != "never ended" {
		t.Errorf("Text() = %q", got)
	}
}

func TestController_EmptySessionCommitsNothing(t *testing.T) {
	c, _, r := newTestController(t)
	c.ReplaceAll("hello")

	mustStart(t, c)
	c.HandleEvent(r.lastID(t), speech.EndEvent())

	if got := c.Text(); got != "hello" {
		t.Errorf("Text() = %q, want %q", got, "hello")
	}
}

func TestController_UsesFirstAlternativeOfFirstResult(t *testing.T) {
	c, _, r := newTestController(t)

	mustStart(t, c)
	c.HandleEvent(r.lastID(t), speech.Event{
		Kind: speech.EventResult,
		Results: []speech.Result{
			{Alternatives: []speech.Alternative{{Transcript: "first"}, {Transcript: "other"}}},
			{Alternatives: []speech.Alternative{{Transcript: "second segment"}}},
		},
	})

	if got := c.InFlight(); got != "first" {
		t.Errorf("InFlight() = %q, want %q", got, "first")
	}
}

func TestController_StartFailureReportsError(t *testing.T) {
	c, h, r := newTestController(t)
	c.ReplaceAll("safe")

	h.startErr = speech.NewEngineError(speech.KindNotAllowed, errors.New("mic denied"))
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("Start() should return the engine error")
	}
	if c.Listening() {
		t.Error("controller should not listen after failed start")
	}
	if got := c.LastError(); got != speech.KindNotAllowed {
		t.Errorf("LastError() = %q, want %q", got, speech.KindNotAllowed)
	}
	if got := c.Text(); got != "safe" {
		t.Errorf("Text() = %q", got)
	}

	h.startErr = errors.New("plain failure")
	_ = c.Start(context.Background())
	if got := c.LastError(); got != speech.KindStartFailed {
		t.Errorf("LastError() = %q, want %q", got, speech.KindStartFailed)
	}

	// a successful start clears the error
	h.startErr = nil
	mustStart(t, c)
	if got := c.LastError(); got != "" {
		t.Errorf("LastError() = %q, want cleared", got)
	}
	if len(r.failed) != 2 {
		t.Errorf("failed hooks = %v, want 2 entries", r.failed)
	}
}

func TestController_ReplaceAllDuringSession(t *testing.T) {
	c, _, r := newTestController(t)
	c.ReplaceAll("old")

	mustStart(t, c)
	id := r.lastID(t)
	c.HandleEvent(id, speech.ResultEvent("spoken", false))
	c.ReplaceAll("edited")
	if got := c.InFlight(); got != "spoken" {
		t.Errorf("edit should not touch in-flight text, got %q", got)
	}
	c.HandleEvent(id, speech.EndEvent())

	if got, want := c.Text(), "edited\n\nspoken"; got != want {
		t.Errorf("Text() = %q, want %q", got, want)
	}
}

func TestController_Subscribe(t *testing.T) {
	c, _, r := newTestController(t)

	var mu sync.Mutex
	var snaps []Snapshot
	cancel := c.Subscribe(func(s Snapshot) {
		mu.Lock()
		snaps = append(snaps, s)
		mu.Unlock()
	})

	mustStart(t, c)
	id := r.lastID(t)
	c.HandleEvent(id, speech.ResultEvent("hi", false))
	c.HandleEvent(id, speech.EndEvent())

	mu.Lock()
	got := append([]Snapshot(nil), snaps...)
	mu.Unlock()

	if len(got) != 3 {
		t.Fatalf("got %d snapshots, want 3", len(got))
	}
	if got[0].State != StateListening || !got[0].Listening {
		t.Errorf("first snapshot = %+v, want listening", got[0])
	}
	if got[1].InFlight != "hi" {
		t.Errorf("second snapshot in-flight = %q, want %q", got[1].InFlight, "hi")
	}
	if got[2].State != StateIdle || got[2].Text != "hi" || got[2].InFlight != "" {
		t.Errorf("last snapshot = %+v", got[2])
	}

	cancel()
	c.ReplaceAll("quiet")
	mu.Lock()
	defer mu.Unlock()
	if len(snaps) != 3 {
		t.Errorf("observer called after cancel: %d snapshots", len(snaps))
	}
}

func TestController_CloseFlushesInFlight(t *testing.T) {
	h := &fakeHandle{}
	var id string
	c := NewController(h, Options{Hooks: Hooks{Started: func(sid string) { id = sid }}})

	mustStart(t, c)
	c.HandleEvent(id, speech.ResultEvent("unfinished", false))
	c.Close()

	if c.Listening() {
		t.Error("controller should be idle after Close")
	}
	if got := c.Text(); got != "unfinished" {
		t.Errorf("Text() = %q, want %q", got, "unfinished")
	}
}

func TestController_WithScriptedCapability(t *testing.T) {
	capability := &speech.Scripted{
		Phrases:  []string{"hello there world", "!" + speech.KindAudioCapture},
		Interval: time.Millisecond,
	}
	handle, err := capability.Create(speech.DefaultConfig())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	committed := make(chan string, 1)
	failed := make(chan string, 1)
	c := NewController(handle, Options{Hooks: Hooks{
		Committed: func(_ string, text string) { committed <- text },
		Failed:    func(_ string, kind string) { failed <- kind },
	}})
	defer c.Close()

	mustStart(t, c)
	select {
	case got := <-committed:
		if got != "hello there world" {
			t.Errorf("committed %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scripted session did not commit")
	}

	mustStart(t, c)
	select {
	case got := <-failed:
		if got != speech.KindAudioCapture {
			t.Errorf("failed kind = %q", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("scripted error session did not fail")
	}

	if got := c.Text(); got != "hello there world" {
		t.Errorf("Text() = %q", got)
	}
}
