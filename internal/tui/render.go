package tui

import (
	"fmt"
	"strings"

	"github.com/leonardotrapani/voicepad/internal/notify"
	"github.com/leonardotrapani/voicepad/internal/scratchpad"
)

// StateBadge renders the Listening / Idle / Error indicator.
func StateBadge(s scratchpad.Snapshot) string {
	switch s.State {
	case scratchpad.StateListening:
		return StyleSuccess.Render("● Listening")
	case scratchpad.StateError:
		return StyleError.Render("✕ Error: " + DescribeError(s.Error))
	default:
		return StyleMuted.Render("○ Idle")
	}
}

// DescribeError turns an engine error kind into the text users see in
// notifications.
func DescribeError(kind string) string {
	_, body, _ := notify.Message(notify.Event{Kind: notify.RecognitionError, Detail: kind})
	return body
}

// RenderSnapshot draws the scratchpad with the in-flight hypothesis below the
// committed text. width <= 0 lets the box size itself.
func RenderSnapshot(s scratchpad.Snapshot, width int) string {
	var body strings.Builder
	switch {
	case s.Text != "":
		body.WriteString(s.Text)
	case s.InFlight == "":
		body.WriteString(StyleMuted.Render("(scratchpad is empty)"))
	}
	if s.InFlight != "" {
		if s.Text != "" {
			body.WriteString("\n\n")
		}
		body.WriteString(StyleInFlight.Render(s.InFlight + " …"))
	}

	box := StyleBox
	if s.Listening {
		box = StyleListeningBox
	}
	if width > 4 {
		box = box.Width(width - 2)
	}
	return StateBadge(s) + "\n" + box.Render(body.String())
}

// FormatStatus renders a "STATUS state=.. error=.." response line.
func FormatStatus(line string) (string, error) {
	fields, ok := strings.CutPrefix(strings.TrimSpace(line), "STATUS ")
	if !ok {
		return "", fmt.Errorf("unexpected response %q", strings.TrimSpace(line))
	}
	var s scratchpad.Snapshot
	for _, f := range strings.Fields(fields) {
		key, value, _ := strings.Cut(f, "=")
		switch key {
		case "state":
			s.State = scratchpad.State(value)
		case "error":
			s.Error = value
		}
	}
	if s.State == "" {
		return "", fmt.Errorf("no state in %q", strings.TrimSpace(line))
	}
	return StateBadge(s), nil
}
