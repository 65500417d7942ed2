package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/leonardotrapani/voicepad/internal/config"
	"github.com/leonardotrapani/voicepad/internal/recording"
	"github.com/leonardotrapani/voicepad/internal/scratchpad"
	"github.com/leonardotrapani/voicepad/internal/speech"
	"github.com/spf13/cobra"
)

type transcribeOptions struct {
	configPath string
	backend    string
	timeout    time.Duration
	silence    time.Duration
	realtime   bool
	jsonOutput bool
}

type transcribeResult struct {
	File       string `json:"file"`
	Backend    string `json:"backend"`
	Status     string `json:"status"`
	DurationMS int64  `json:"duration_ms"`
	Text       string `json:"text"`
	Error      string `json:"error,omitempty"`
}

func transcribeCmd() *cobra.Command {
	var opts transcribeOptions

	cmd := &cobra.Command{
		Use:   "transcribe <file.wav>",
		Short: "Run one recognition session over a WAV file",
		Long: `Feed a 16-bit PCM WAV file to the configured speech backend instead of the
microphone and print what was recognized. Useful for checking API keys and
backend settings without the daemon.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := runTranscribe(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return printTranscribeResult(cmd.OutOrStdout(), result, opts.jsonOutput)
		},
	}

	cmd.Flags().StringVar(&opts.configPath, "config", "", "Config file (default $XDG_CONFIG_HOME/voicepad/config.toml)")
	cmd.Flags().StringVar(&opts.backend, "backend", "", "Use this backend instead of speech.backends")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 45*time.Second, "Give up after this long")
	cmd.Flags().DurationVar(&opts.silence, "silence", time.Second, "Silence after the file that ends the session (0 = config)")
	cmd.Flags().BoolVar(&opts.realtime, "realtime", false, "Pace audio in real time")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Print a JSON result")

	return cmd
}

func loadTranscribeConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

func runTranscribe(ctx context.Context, file string, opts transcribeOptions) (transcribeResult, error) {
	if opts.timeout <= 0 {
		return transcribeResult{}, fmt.Errorf("timeout must be positive")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := loadTranscribeConfig(opts.configPath)
	if err != nil {
		return transcribeResult{}, fmt.Errorf("failed to load config: %w", err)
	}

	pcm, err := recording.LoadWAV(file, cfg.Recording.SampleRate)
	if err != nil {
		return transcribeResult{}, err
	}

	mic := cfg.ToMicrophone()
	if opts.silence > 0 {
		mic.SilenceTimeout = opts.silence
	}
	mic.NewSource = func(rc recording.Config) recording.Source {
		return recording.NewFileSource(pcm, rc, opts.realtime)
	}

	names := cfg.Speech.Backends
	if opts.backend != "" {
		names = []string{opts.backend}
	}
	capability, err := speech.Detect(names, cfg.CapabilitiesFor(mic))
	if err != nil {
		return transcribeResult{}, err
	}
	handle, err := capability.Create(cfg.ToSpeechConfig())
	if err != nil {
		return transcribeResult{}, fmt.Errorf("failed to create %s recognizer: %w", capability.Name(), err)
	}

	result := transcribeResult{File: file, Backend: capability.Name(), Status: "fail"}

	runCtx, cancel := context.WithTimeout(ctx, opts.timeout)
	defer cancel()
	start := time.Now()
	text, err := transcribeOnce(runCtx, handle)
	result.DurationMS = time.Since(start).Milliseconds()
	result.Text = strings.TrimSpace(text)
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}
	result.Status = "pass"
	return result, nil
}

// transcribeOnce runs a single controller session on handle and returns the
// committed text once the session ends or ctx expires.
func transcribeOnce(ctx context.Context, handle speech.Handle) (string, error) {
	c := scratchpad.NewController(handle, scratchpad.Options{})

	changed := make(chan struct{}, 1)
	unsubscribe := c.Subscribe(func(scratchpad.Snapshot) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	if err := c.Start(ctx); err != nil {
		c.Close()
		return "", err
	}

	var waitErr error
	for c.Listening() {
		select {
		case <-changed:
		case <-ctx.Done():
			waitErr = fmt.Errorf("session did not end: %w", ctx.Err())
			if err := c.Stop(); err != nil {
				waitErr = fmt.Errorf("%w (stop: %v)", waitErr, err)
			}
		}
		if waitErr != nil {
			break
		}
	}

	// commits whatever is still in flight
	c.Close()

	if kind := c.LastError(); kind != "" && waitErr == nil {
		waitErr = fmt.Errorf("recognition failed: %s", kind)
	}
	return c.Text(), waitErr
}

func printTranscribeResult(w io.Writer, result transcribeResult, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}
	if result.Status != "pass" {
		return fmt.Errorf("%s: %s", result.Backend, result.Error)
	}
	fmt.Fprintln(w, result.Text)
	return nil
}
