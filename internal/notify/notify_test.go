package notify

import (
	"bytes"
	"log"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestMessage(t *testing.T) {
	tests := []struct {
		name       string
		ev         Event
		wantTitle  string
		wantBody   string
		wantUrgent bool
	}{
		{name: "listening", ev: Event{Kind: ListeningStarted}, wantTitle: "Listening", wantBody: "Speak now"},
		{name: "committed", ev: Event{Kind: SessionCommitted, Detail: "buy\nmilk"}, wantTitle: "Added to scratchpad", wantBody: "buy milk"},
		{name: "no speech", ev: Event{Kind: RecognitionError, Detail: "no-speech"}, wantTitle: "Recognition failed", wantBody: "No speech was detected", wantUrgent: true},
		{name: "unknown kind", ev: Event{Kind: RecognitionError, Detail: "bad-grammar"}, wantTitle: "Recognition failed", wantBody: "bad-grammar", wantUrgent: true},
		{name: "copied", ev: Event{Kind: Copied, Detail: "wl-copy"}, wantTitle: "Copied", wantBody: "Scratchpad copied to clipboard (wl-copy)"},
		{name: "copy failed", ev: Event{Kind: CopyFailed, Detail: "no backend"}, wantTitle: "Copy failed", wantBody: "no backend", wantUrgent: true},
		{name: "reloaded", ev: Event{Kind: ConfigReloaded}, wantTitle: "Config reloaded", wantBody: "New settings are active"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			title, body, urgent := Message(tt.ev)
			if title != tt.wantTitle || body != tt.wantBody || urgent != tt.wantUrgent {
				t.Errorf("Message() = (%q, %q, %v), want (%q, %q, %v)",
					title, body, urgent, tt.wantTitle, tt.wantBody, tt.wantUrgent)
			}
		})
	}
}

func TestPreviewTruncates(t *testing.T) {
	long := strings.Repeat("word ", 40)
	got := preview(long, 20)
	if len([]rune(got)) != 20 || !strings.HasSuffix(got, "…") {
		t.Errorf("preview() = %q", got)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		typ     string
		want    Notifier
		wantErr bool
	}{
		{typ: "desktop", want: Desktop{}},
		{typ: "beeep", want: Beeep{}},
		{typ: "log", want: Log{}},
		{typ: "none", want: Nop{}},
		{typ: "", want: Nop{}},
		{typ: "sms", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			got, err := New(tt.typ)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("New(%q) = %T, want %T", tt.typ, got, tt.want)
			}
		})
	}
}

func TestLogNotifier(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stderr)

	Log{}.Notify(Event{Kind: Copied, Detail: "system"})
	if out := buf.String(); !strings.Contains(out, "Copied") || !strings.Contains(out, "system") {
		t.Errorf("log output = %q", out)
	}
}

func TestDesktopNotifier(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > " + argsFile + "\n"
	if err := os.WriteFile(filepath.Join(dir, "notify-send"), []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PATH", dir)

	Desktop{}.Notify(Event{Kind: RecognitionError, Detail: "network"})

	data, err := os.ReadFile(argsFile)
	if err != nil {
		t.Fatalf("notify-send not invoked: %v", err)
	}
	got := strings.Split(strings.TrimSpace(string(data)), "\n")
	want := []string{"-a", "voicepad", "-u", "critical", "Recognition failed", "The speech service could not be reached"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Errorf("notify-send args = %q, want %q", got, want)
	}
}

func TestNopNotifier(t *testing.T) {
	Nop{}.Notify(Event{Kind: ListeningStarted})
}
