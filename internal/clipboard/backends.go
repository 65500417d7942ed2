package clipboard

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/atotto/clipboard"
)

// wlCopy pipes text into wl-copy on Wayland sessions.
type wlCopy struct{}

func (wlCopy) Name() string { return "wl-copy" }

func (wlCopy) Available() error {
	if os.Getenv("WAYLAND_DISPLAY") == "" {
		return errors.New("not a Wayland session")
	}
	if _, err := exec.LookPath("wl-copy"); err != nil {
		return fmt.Errorf("wl-copy not found: %w (install wl-clipboard)", err)
	}
	return nil
}

func (wlCopy) Write(ctx context.Context, text string) error {
	cmd := exec.CommandContext(ctx, "wl-copy")
	cmd.Stdin = strings.NewReader(text)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("wl-copy failed: %w: %s", err, strings.TrimSpace(string(out)))
	}
	return nil
}

// system uses xclip, xsel or the platform clipboard API.
type system struct{}

func (system) Name() string { return "system" }

func (system) Available() error {
	if clipboard.Unsupported {
		return errors.New("no xclip, xsel or wl-clipboard found")
	}
	return nil
}

func (system) Write(ctx context.Context, text string) error {
	done := make(chan error, 1)
	go func() { done <- clipboard.WriteAll(text) }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
