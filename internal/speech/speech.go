package speech

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
)

// ErrUnsupported is returned when no speech backend can run on this machine.
var ErrUnsupported = errors.New("speech recognition unsupported")

// Engine error kinds reported through EventError.
const (
	KindNoSpeech          = "no-speech"
	KindAudioCapture      = "audio-capture"
	KindNotAllowed        = "not-allowed"
	KindNetwork           = "network"
	KindAborted           = "aborted"
	KindServiceNotAllowed = "service-not-allowed"
	KindStartFailed       = "start-failed"
)

// EngineError is a recoverable recognition failure for a single session.
type EngineError struct {
	Kind string
	Err  error
}

func (e *EngineError) Error() string {
	if e == nil {
		return "engine error"
	}
	if e.Err == nil {
		return e.Kind
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *EngineError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

func NewEngineError(kind string, err error) error {
	return &EngineError{Kind: kind, Err: err}
}

// ErrorKind extracts the engine kind from err, falling back to def.
func ErrorKind(err error, def string) string {
	var engineErr *EngineError
	if errors.As(err, &engineErr) && engineErr.Kind != "" {
		return engineErr.Kind
	}
	return def
}

// Config is applied when a recognition handle is created.
type Config struct {
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
	Locale          string
}

// DefaultConfig returns the single-utterance, interim-results setup.
func DefaultConfig() Config {
	return Config{
		Continuous:      false,
		InterimResults:  true,
		MaxAlternatives: 1,
		Locale:          PlatformLocale(),
	}
}

type EventKind string

const (
	EventResult EventKind = "result"
	EventEnd    EventKind = "end"
	EventError  EventKind = "error"
)

// Alternative is one hypothesis for a result entry.
type Alternative struct {
	Transcript string
	Confidence float64
}

// Result is one segment of recognized speech.
type Result struct {
	Alternatives []Alternative
	IsFinal      bool
}

// Event is emitted by a running handle. Result events carry the full list of
// result entries; End and Error are terminal.
type Event struct {
	Kind      EventKind
	Results   []Result
	ErrorKind string
	Err       error
}

// Transcript returns the first alternative of the first result entry.
func (e Event) Transcript() string {
	if len(e.Results) == 0 || len(e.Results[0].Alternatives) == 0 {
		return ""
	}
	return e.Results[0].Alternatives[0].Transcript
}

func ResultEvent(transcript string, final bool) Event {
	return Event{
		Kind: EventResult,
		Results: []Result{{
			Alternatives: []Alternative{{Transcript: transcript}},
			IsFinal:      final,
		}},
	}
}

func EndEvent() Event { return Event{Kind: EventEnd} }

func ErrorEvent(kind string, err error) Event {
	return Event{Kind: EventError, ErrorKind: kind, Err: err}
}

// Handle is a reusable recognizer instance.
type Handle interface {
	// Start begins a session. The returned channel delivers the session's
	// events and is closed after the terminal End or Error event.
	Start(ctx context.Context) (<-chan Event, error)

	// Stop asks the running session to finish. The session still delivers
	// its final result and End event.
	Stop() error
}

// Capability creates recognition handles for one backend.
type Capability interface {
	Name() string
	// Supported returns nil when the backend can run here, otherwise the reason.
	Supported() error
	Create(cfg Config) (Handle, error)
}

// Detect returns the first supported capability, walking names in order.
func Detect(names []string, available map[string]Capability) (Capability, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no backends configured", ErrUnsupported)
	}

	var reasons []string
	for _, name := range names {
		c, ok := available[name]
		if !ok {
			reasons = append(reasons, fmt.Sprintf("%s: unknown backend", name))
			continue
		}
		if err := c.Supported(); err != nil {
			reasons = append(reasons, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		return c, nil
	}
	return nil, fmt.Errorf("%w (%s)", ErrUnsupported, strings.Join(reasons, "; "))
}

// PlatformLocale reads the user's locale from the environment as a BCP 47 tag.
func PlatformLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if tag := localeTag(os.Getenv(key)); tag != "" {
			return tag
		}
	}
	return "en-US"
}

func localeTag(v string) string {
	if i := strings.IndexAny(v, ".@"); i >= 0 {
		v = v[:i]
	}
	if v == "" || v == "C" || v == "POSIX" {
		return ""
	}
	return strings.ReplaceAll(v, "_", "-")
}
