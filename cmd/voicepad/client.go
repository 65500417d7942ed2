package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/leonardotrapani/voicepad/internal/bus"
	"github.com/leonardotrapani/voicepad/internal/scratchpad"
	"github.com/leonardotrapani/voicepad/internal/tui"
	"github.com/mattn/go-isatty"
	"github.com/mattn/go-shellwords"
	"github.com/spf13/cobra"
)

type sender func(bus.Request) (string, error)

func send(req bus.Request) (string, error) {
	resp, err := bus.SendRequest(req)
	if err != nil {
		return "", daemonError(err)
	}
	return resp, nil
}

// daemonError reports a missing socket or a dead listener as the daemon
// not running.
func daemonError(err error) error {
	if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
		return errDaemonNotRunning
	}
	return err
}

// fetchText asks for the scratchpad ('g') or the in-flight sentence ('i').
func fetchText(cmd byte) (string, error) {
	resp, err := send(bus.Request{Cmd: cmd})
	if err != nil {
		return "", err
	}
	if err := bus.ResponseError(resp); err != nil {
		return "", err
	}
	return bus.ParseText(resp)
}

// payloadFromArgs joins args into the new scratchpad text, or reads it from
// stdin when there are none or the only one is "-".
func payloadFromArgs(args []string, stdin io.Reader) (string, error) {
	if len(args) > 0 && !(len(args) == 1 && args[0] == "-") {
		return strings.Join(args, " "), nil
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("failed to read stdin: %w", err)
	}
	return strings.TrimSuffix(string(data), "\n"), nil
}

// editorCommand splits $VISUAL or $EDITOR into argv and appends path.
func editorCommand(path string) ([]string, error) {
	editor := os.Getenv("VISUAL")
	if editor == "" {
		editor = os.Getenv("EDITOR")
	}
	if editor == "" {
		editor = "vi"
	}
	argv, err := shellwords.Parse(editor)
	if err != nil {
		return nil, fmt.Errorf("invalid editor %q: %w", editor, err)
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty editor command")
	}
	return append(argv, path), nil
}

func runEdit(cmd *cobra.Command) error {
	text, err := fetchText('g')
	if err != nil {
		return err
	}

	f, err := os.CreateTemp("", "voicepad-*.txt")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	path := f.Name()
	defer os.Remove(path)

	if _, err := f.WriteString(text); err != nil {
		f.Close()
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	argv, err := editorCommand(path)
	if err != nil {
		return err
	}
	editor := exec.Command(argv[0], argv[1:]...)
	editor.Stdin = cmd.InOrStdin()
	editor.Stdout = cmd.OutOrStdout()
	editor.Stderr = cmd.ErrOrStderr()
	if err := editor.Run(); err != nil {
		return fmt.Errorf("editor failed: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read edited text: %w", err)
	}
	edited := strings.TrimSuffix(string(data), "\n")
	if edited == text {
		fmt.Fprintln(cmd.ErrOrStderr(), "No changes.")
		return nil
	}

	resp, err := send(bus.Request{Cmd: 'r', Payload: edited})
	if err != nil {
		return fmt.Errorf("failed to replace text: %w", err)
	}
	return bus.ResponseError(resp)
}

// copyWithFallback asks the daemon to copy. When every clipboard backend
// failed and fallback is set, the text goes to w as an OSC 52 sequence.
func copyWithFallback(w io.Writer, send sender, fallback bool) (string, error) {
	resp, err := send(bus.Request{Cmd: 'y'})
	if err != nil {
		return "", fmt.Errorf("failed to copy: %w", err)
	}
	if !strings.HasPrefix(resp, "ERR copy_failed") || !fallback {
		return resp, bus.ResponseError(resp)
	}

	textResp, err := send(bus.Request{Cmd: 'g'})
	if err != nil {
		return "", fmt.Errorf("failed to fetch text: %w", err)
	}
	text, err := bus.ParseText(textResp)
	if err != nil {
		return "", err
	}
	tui.CopyOSC52(w, text)
	return "OK copied backend=osc52\n", nil
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

func watchPlain(ctx context.Context, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	err := bus.Stream(ctx, bus.Request{Cmd: 'w'}, func(line string) error {
		if err := bus.ResponseError(line); err != nil {
			return err
		}
		_, err := fmt.Fprintln(w, line)
		return err
	})
	return daemonError(err)
}

// parseSnapshot decodes one line of the watch stream.
func parseSnapshot(line string) (scratchpad.Snapshot, error) {
	var snap scratchpad.Snapshot
	line = strings.TrimRight(line, "\r\n")
	if err := bus.ResponseError(line); err != nil {
		return snap, err
	}
	payload, ok := strings.CutPrefix(line, "SNAPSHOT ")
	if !ok {
		return snap, fmt.Errorf("unexpected watch line: %q", line)
	}
	if err := json.Unmarshal([]byte(payload), &snap); err != nil {
		return snap, fmt.Errorf("invalid snapshot: %w", err)
	}
	return snap, nil
}

func watchTUI(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	model := tui.NewWatchModel(tui.Actions{
		Toggle: func() (string, error) { return send(bus.Request{Cmd: 't'}) },
		Copy: func() (string, error) {
			return copyWithFallback(os.Stdout, send, true)
		},
	})
	p := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))

	go func() {
		err := bus.Stream(ctx, bus.Request{Cmd: 'w'}, func(line string) error {
			snap, err := parseSnapshot(line)
			if err != nil {
				return err
			}
			p.Send(tui.SnapshotMsg(snap))
			return nil
		})
		p.Send(tui.StreamClosedMsg{Err: daemonError(err)})
	}()

	final, err := p.Run()
	if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
		return err
	}
	if m, ok := final.(tui.WatchModel); ok {
		return m.Err()
	}
	return nil
}
