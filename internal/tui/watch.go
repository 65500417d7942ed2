package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/leonardotrapani/voicepad/internal/scratchpad"
)

// SnapshotMsg carries a state update from the daemon's watch stream.
type SnapshotMsg scratchpad.Snapshot

// StreamClosedMsg ends the watch view.
type StreamClosedMsg struct{ Err error }

// ResponseMsg is the daemon's answer to a command sent from the view.
type ResponseMsg struct {
	Line string
	Err  error
}

// Actions are the daemon commands bound to keys in the watch view.
type Actions struct {
	Toggle func() (string, error)
	Copy   func() (string, error)
}

type WatchModel struct {
	actions Actions
	snap    scratchpad.Snapshot
	seen    bool
	status  string
	width   int
	err     error
}

func NewWatchModel(actions Actions) WatchModel {
	return WatchModel{actions: actions}
}

func (m WatchModel) Init() tea.Cmd { return nil }

func (m WatchModel) Err() error { return m.err }

func (m WatchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case " ", "t":
			return m, run(m.actions.Toggle)
		case "c", "y":
			return m, run(m.actions.Copy)
		}

	case SnapshotMsg:
		m.snap = scratchpad.Snapshot(msg)
		m.seen = true

	case ResponseMsg:
		if msg.Err != nil {
			m.status = StyleError.Render(msg.Err.Error())
		} else {
			m.status = formatResponse(msg.Line)
		}

	case StreamClosedMsg:
		m.err = msg.Err
		return m, tea.Quit
	}
	return m, nil
}

func run(action func() (string, error)) tea.Cmd {
	if action == nil {
		return nil
	}
	return func() tea.Msg {
		line, err := action()
		return ResponseMsg{Line: line, Err: err}
	}
}

func formatResponse(line string) string {
	line = strings.TrimSpace(line)
	if msg, ok := strings.CutPrefix(line, "ERR "); ok {
		return StyleError.Render(msg)
	}
	if msg, ok := strings.CutPrefix(line, "OK "); ok {
		return StyleSuccess.Render(msg)
	}
	return StyleMuted.Render(line)
}

func (m WatchModel) View() string {
	var b strings.Builder
	if m.seen {
		b.WriteString(RenderSnapshot(m.snap, m.width))
	} else {
		b.WriteString(StyleMuted.Render("Waiting for daemon…"))
	}
	b.WriteString("\n")
	if m.status != "" {
		b.WriteString(m.status + "\n")
	}
	b.WriteString(StyleMuted.Render("space toggle • c copy • q quit"))
	b.WriteString("\n")
	return b.String()
}
