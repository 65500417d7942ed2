package speech

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-shellwords"
)

// Exec runs an external recognizer. The command reads raw s16le PCM on
// stdin and prints one JSON object per line on stdout:
//
//	{"transcript": "hello wor", "final": false}
//	{"transcript": "hello world", "final": true}
//	{"error": "no-speech"}
//
// It is started with --language, --sample-rate and, when interim results are
// wanted, --partial.
type Exec struct {
	Command string
	Mic     Microphone
}

type execLine struct {
	Transcript string `json:"transcript"`
	Final      bool   `json:"final"`
	Error      string `json:"error"`
}

func (e *Exec) Name() string { return "exec" }

func (e *Exec) args() ([]string, error) {
	parser := shellwords.NewParser()
	args, err := parser.Parse(e.Command)
	if err != nil {
		return nil, fmt.Errorf("parse recognizer command: %w", err)
	}
	if len(args) == 0 {
		return nil, fmt.Errorf("recognizer command is empty")
	}
	return args, nil
}

func (e *Exec) Supported() error {
	args, err := e.args()
	if err != nil {
		return err
	}
	if _, err := exec.LookPath(args[0]); err != nil {
		return fmt.Errorf("recognizer %q not found: %w", args[0], err)
	}
	return e.Mic.supported()
}

func (e *Exec) Create(cfg Config) (Handle, error) {
	if err := e.Supported(); err != nil {
		return nil, err
	}
	args, _ := e.args()
	return &execHandle{argv: args, mic: e.Mic.withDefaults(), cfg: cfg}, nil
}

type execHandle struct {
	argv     []string
	mic      Microphone
	cfg      Config
	sessions sessions
}

func (h *execHandle) Start(ctx context.Context) (<-chan Event, error) {
	return h.sessions.start(ctx, h.run), nil
}

func (h *execHandle) Stop() error {
	h.sessions.stop()
	return nil
}

func (h *execHandle) command(ctx context.Context) *exec.Cmd {
	args := append([]string{}, h.argv[1:]...)
	if h.cfg.Locale != "" {
		args = append(args, "--language", h.cfg.Locale)
	}
	args = append(args, "--sample-rate", strconv.Itoa(h.mic.Config.SampleRate))
	if h.cfg.InterimResults {
		args = append(args, "--partial")
	}
	return exec.CommandContext(ctx, h.argv[0], args...)
}

func (h *execHandle) run(ctx context.Context, stop <-chan struct{}, events chan<- Event) {
	cmd := h.command(ctx)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		send(ctx, events, ErrorEvent(KindStartFailed, err))
		return
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		send(ctx, events, ErrorEvent(KindStartFailed, err))
		return
	}
	if err := cmd.Start(); err != nil {
		send(ctx, events, ErrorEvent(KindStartFailed, err))
		return
	}
	defer func() {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	src, frames, errs, err := h.mic.open(ctx)
	if err != nil {
		stdin.Close()
		send(ctx, events, ErrorEvent(KindAudioCapture, err))
		return
	}
	defer src.Stop()

	lines := make(chan execLine)
	go readExecLines(ctx, stdout, lines)

	feedErr := make(chan error, 1)
	go func() {
		defer stdin.Close()
		started := time.Now()
		for {
			select {
			case <-stop:
				return
			case frame, ok := <-frames:
				if !ok {
					return
				}
				if time.Since(started) >= h.mic.MaxSession {
					log.Printf("exec: session reached %v", h.mic.MaxSession)
					return
				}
				if _, err := stdin.Write(frame.Data); err != nil {
					if !errors.Is(err, io.ErrClosedPipe) {
						log.Printf("exec: write recognizer stdin: %v", err)
					}
					return
				}
			case err, ok := <-errs:
				if ok && err != nil {
					feedErr <- err
					return
				}
				errs = nil
			}
		}
	}()

	last := ""
	for {
		select {
		case <-ctx.Done():
			return

		case err := <-feedErr:
			send(ctx, events, ErrorEvent(KindAudioCapture, err))
			return

		case line, ok := <-lines:
			if !ok {
				finish(ctx, events, last)
				return
			}
			if line.Error != "" {
				send(ctx, events, ErrorEvent(line.Error, fmt.Errorf("recognizer reported %s", line.Error)))
				return
			}
			last = strings.TrimSpace(line.Transcript)
			if line.Final && !h.cfg.Continuous {
				src.Stop()
				finish(ctx, events, last)
				return
			}
			if h.cfg.InterimResults {
				if !send(ctx, events, ResultEvent(last, line.Final)) {
					return
				}
			}
		}
	}
}

func readExecLines(ctx context.Context, r io.Reader, out chan<- execLine) {
	defer close(out)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		raw := strings.TrimSpace(scanner.Text())
		if raw == "" {
			continue
		}
		var line execLine
		if err := json.Unmarshal([]byte(raw), &line); err != nil {
			log.Printf("exec: ignoring recognizer output %q: %v", raw, err)
			continue
		}
		select {
		case out <- line:
		case <-ctx.Done():
			return
		}
	}
}
