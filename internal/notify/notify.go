package notify

import (
	"fmt"
	"log"
	"os/exec"
	"strings"

	"github.com/gen2brain/beeep"
)

const appName = "voicepad"

type EventKind string

const (
	ListeningStarted EventKind = "listening_started"
	SessionCommitted EventKind = "session_committed"
	RecognitionError EventKind = "recognition_error"
	Copied           EventKind = "copied"
	CopyFailed       EventKind = "copy_failed"
	ConfigReloaded   EventKind = "config_reloaded"
)

// Event is something the user should hear about. Detail carries the
// committed text, the error kind, the clipboard backend or the copy error.
type Event struct {
	Kind   EventKind
	Detail string
}

type Notifier interface {
	Notify(ev Event)
}

// Message renders ev as a notification title and body. Urgent messages
// report failures.
func Message(ev Event) (title, body string, urgent bool) {
	switch ev.Kind {
	case ListeningStarted:
		return "Listening", "Speak now", false
	case SessionCommitted:
		return "Added to scratchpad", preview(ev.Detail, 80), false
	case RecognitionError:
		return "Recognition failed", describeKind(ev.Detail), true
	case Copied:
		return "Copied", fmt.Sprintf("Scratchpad copied to clipboard (%s)", ev.Detail), false
	case CopyFailed:
		return "Copy failed", ev.Detail, true
	case ConfigReloaded:
		return "Config reloaded", "New settings are active", false
	}
	return string(ev.Kind), ev.Detail, false
}

func describeKind(kind string) string {
	switch kind {
	case "no-speech":
		return "No speech was detected"
	case "audio-capture":
		return "The microphone could not be opened"
	case "not-allowed":
		return "Microphone access was denied"
	case "service-not-allowed":
		return "The speech service rejected the request; check the API key"
	case "network":
		return "The speech service could not be reached"
	case "aborted":
		return "Recognition was aborted"
	case "start-failed":
		return "Recognition could not start"
	case "":
		return "Unknown error"
	}
	return kind
}

func preview(text string, max int) string {
	text = strings.Join(strings.Fields(text), " ")
	if r := []rune(text); len(r) > max {
		return string(r[:max-1]) + "…"
	}
	return text
}

// New returns the notifier for a configured type.
func New(typ string) (Notifier, error) {
	switch typ {
	case "desktop":
		return Desktop{}, nil
	case "beeep":
		return Beeep{}, nil
	case "log":
		return Log{}, nil
	case "none", "":
		return Nop{}, nil
	}
	return nil, fmt.Errorf("unknown notification type %q", typ)
}

// Desktop shells out to notify-send.
type Desktop struct{}

func (Desktop) Notify(ev Event) {
	title, body, urgent := Message(ev)
	args := []string{"-a", appName}
	if urgent {
		args = append(args, "-u", "critical")
	}
	args = append(args, title, body)
	if err := exec.Command("notify-send", args...).Run(); err != nil {
		log.Printf("Failed to send notification: %v", err)
	}
}

// Beeep uses the portable notification library; urgent messages also beep.
type Beeep struct{}

func (Beeep) Notify(ev Event) {
	title, body, urgent := Message(ev)
	var err error
	if urgent {
		err = beeep.Alert(title, body, "")
	} else {
		err = beeep.Notify(title, body, "")
	}
	if err != nil {
		log.Printf("Failed to send notification: %v", err)
	}
}

type Log struct{}

func (Log) Notify(ev Event) {
	title, body, _ := Message(ev)
	log.Printf("Notify: %s: %s", title, body)
}

// Nop is a Notifier that does absolutely nothing.
type Nop struct{}

func (Nop) Notify(Event) {}
