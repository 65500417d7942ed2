package main

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
	"github.com/leonardotrapani/voicepad/internal/bus"
	"github.com/leonardotrapani/voicepad/internal/scratchpad"
)

func TestPayloadFromArgs(t *testing.T) {
	tests := []struct {
		name  string
		args  []string
		stdin string
		want  string
	}{
		{name: "joined args", args: []string{"hello", "world"}, want: "hello world"},
		{name: "stdin without args", stdin: "from\nstdin\n", want: "from\nstdin"},
		{name: "dash reads stdin", args: []string{"-"}, stdin: "piped", want: "piped"},
		{name: "empty stdin clears", stdin: "", want: ""},
		{name: "dash among args is text", args: []string{"a", "-", "b"}, want: "a - b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := payloadFromArgs(tt.args, strings.NewReader(tt.stdin))
			if err != nil {
				t.Fatalf("payloadFromArgs() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("payloadFromArgs() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEditorCommand(t *testing.T) {
	tests := []struct {
		name    string
		visual  string
		editor  string
		want    []string
		wantErr bool
	}{
		{name: "default", want: []string{"vi", "/tmp/x.txt"}},
		{name: "editor with flags", editor: "code --wait", want: []string{"code", "--wait", "/tmp/x.txt"}},
		{name: "visual wins", visual: "nano", editor: "vim", want: []string{"nano", "/tmp/x.txt"}},
		{name: "quoted path", editor: `"/opt/my editor/bin" -n`, want: []string{"/opt/my editor/bin", "-n", "/tmp/x.txt"}},
		{name: "unterminated quote", editor: `"vim`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("VISUAL", tt.visual)
			t.Setenv("EDITOR", tt.editor)

			got, err := editorCommand("/tmp/x.txt")
			if (err != nil) != tt.wantErr {
				t.Fatalf("editorCommand() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("editorCommand() = %q, want %q", got, tt.want)
			}
		})
	}
}

// fakeSender answers bus requests from a table keyed by command byte.
func fakeSender(responses map[byte]string, seen *[]byte) sender {
	return func(req bus.Request) (string, error) {
		*seen = append(*seen, req.Cmd)
		resp, ok := responses[req.Cmd]
		if !ok {
			return "", fmt.Errorf("unexpected command %c", req.Cmd)
		}
		return resp, nil
	}
}

func TestCopyWithFallback(t *testing.T) {
	t.Setenv("TERM", "xterm-256color")
	osc52 := "\x1b]52;c;" + base64.StdEncoding.EncodeToString([]byte("line one\nline two"))

	tests := []struct {
		name      string
		responses map[byte]string
		fallback  bool
		wantResp  string
		wantErr   bool
		wantCmds  string
		wantOSC52 bool
	}{
		{
			name:      "daemon copied",
			responses: map[byte]string{'y': "OK copied backend=wl-copy\n"},
			fallback:  true,
			wantResp:  "OK copied backend=wl-copy\n",
			wantCmds:  "y",
		},
		{
			name: "fallback to terminal",
			responses: map[byte]string{
				'y': "ERR copy_failed: wl-copy: not a Wayland session\n",
				'g': "TEXT \"line one\\nline two\"\n",
			},
			fallback:  true,
			wantResp:  "OK copied backend=osc52\n",
			wantCmds:  "yg",
			wantOSC52: true,
		},
		{
			name:      "no fallback",
			responses: map[byte]string{'y': "ERR copy_failed: nothing worked\n"},
			wantErr:   true,
			wantCmds:  "y",
		},
		{
			name:      "unsupported is not a copy failure",
			responses: map[byte]string{'y': "ERR unsupported: no backends\n"},
			fallback:  true,
			wantErr:   true,
			wantCmds:  "y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			var seen []byte

			resp, err := copyWithFallback(&out, fakeSender(tt.responses, &seen), tt.fallback)
			if (err != nil) != tt.wantErr {
				t.Fatalf("copyWithFallback() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && resp != tt.wantResp {
				t.Errorf("response = %q, want %q", resp, tt.wantResp)
			}
			if string(seen) != tt.wantCmds {
				t.Errorf("commands = %q, want %q", seen, tt.wantCmds)
			}
			if got := strings.HasPrefix(out.String(), osc52); got != tt.wantOSC52 {
				t.Errorf("terminal output = %q", out.String())
			}
		})
	}
}

func TestParseSnapshot(t *testing.T) {
	snap, err := parseSnapshot(`SNAPSHOT {"state":"listening","listening":true,"text":"a","in_flight":"b"}` + "\n")
	if err != nil {
		t.Fatalf("parseSnapshot() error = %v", err)
	}
	want := scratchpad.Snapshot{State: scratchpad.StateListening, Listening: true, Text: "a", InFlight: "b"}
	if snap != want {
		t.Errorf("parseSnapshot() = %+v, want %+v", snap, want)
	}

	for _, line := range []string{"ERR unsupported: nope", "OK idle", "SNAPSHOT {"} {
		if _, err := parseSnapshot(line); err == nil {
			t.Errorf("parseSnapshot(%q) should fail", line)
		}
	}
}

func TestDaemonError(t *testing.T) {
	refused := &net.OpError{Op: "dial", Net: "unix", Err: os.NewSyscallError("connect", syscall.ECONNREFUSED)}
	missing := &net.OpError{Op: "dial", Net: "unix", Err: os.NewSyscallError("connect", syscall.ENOENT)}
	other := errors.New("boom")

	if !errors.Is(daemonError(refused), errDaemonNotRunning) {
		t.Error("connection refused should mean the daemon is not running")
	}
	if !errors.Is(daemonError(missing), errDaemonNotRunning) {
		t.Error("missing socket should mean the daemon is not running")
	}
	if daemonError(other) != other {
		t.Error("other errors should pass through")
	}
	if daemonError(nil) != nil {
		t.Error("nil should stay nil")
	}
}

func TestSendWithoutDaemon(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	if _, err := send(bus.Request{Cmd: 's'}); !errors.Is(err, errDaemonNotRunning) {
		t.Errorf("send() error = %v, want errDaemonNotRunning", err)
	}
}

func writeSilentWAV(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "speech.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	enc := wav.NewEncoder(f, 16000, 16, 1, 1)
	buf := &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: 1, SampleRate: 16000},
		Data:           make([]int, 8000),
		SourceBitDepth: 16,
	}
	if err := enc.Write(buf); err != nil {
		t.Fatal(err)
	}
	if err := enc.Close(); err != nil {
		t.Fatal(err)
	}
	return path
}

func writeScriptedConfig(t *testing.T, phrase string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	content := fmt.Sprintf(`
[speech]
  backends = ["openai", "scripted"]
  script = [%q]
  script_interval = "10ms"

[notifications]
  type = "none"
`, phrase)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestRunTranscribe(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	wavPath := writeSilentWAV(t)

	tests := []struct {
		name       string
		phrase     string
		backend    string
		wantStatus string
		wantText   string
		wantErr    string
	}{
		{name: "falls through to scripted", phrase: "from the file", wantStatus: "pass", wantText: "from the file"},
		{name: "explicit backend", phrase: "picked", backend: "scripted", wantStatus: "pass", wantText: "picked"},
		{name: "engine error", phrase: "!no-speech", wantStatus: "fail", wantErr: "no-speech"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := transcribeOptions{
				configPath: writeScriptedConfig(t, tt.phrase),
				backend:    tt.backend,
				timeout:    5 * time.Second,
			}
			result, err := runTranscribe(t.Context(), wavPath, opts)
			if err != nil {
				t.Fatalf("runTranscribe() error = %v", err)
			}
			if result.Backend != "scripted" {
				t.Errorf("backend = %q, want scripted", result.Backend)
			}
			if result.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q (error %q)", result.Status, tt.wantStatus, result.Error)
			}
			if result.Text != tt.wantText {
				t.Errorf("text = %q, want %q", result.Text, tt.wantText)
			}
			if !strings.Contains(result.Error, tt.wantErr) {
				t.Errorf("error = %q, want it to contain %q", result.Error, tt.wantErr)
			}
		})
	}
}

func TestRunTranscribeErrors(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	cfgPath := writeScriptedConfig(t, "unused")
	wavPath := writeSilentWAV(t)

	tests := []struct {
		name string
		file string
		opts transcribeOptions
	}{
		{name: "missing file", file: filepath.Join(t.TempDir(), "nope.wav"), opts: transcribeOptions{configPath: cfgPath, timeout: time.Second}},
		{name: "unusable backend", file: wavPath, opts: transcribeOptions{configPath: cfgPath, backend: "openai", timeout: time.Second}},
		{name: "unknown backend", file: wavPath, opts: transcribeOptions{configPath: cfgPath, backend: "carrier-pigeon", timeout: time.Second}},
		{name: "zero timeout", file: wavPath, opts: transcribeOptions{configPath: cfgPath}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runTranscribe(t.Context(), tt.file, tt.opts); err == nil {
				t.Error("runTranscribe() should fail")
			}
		})
	}
}

func TestPrintTranscribeResult(t *testing.T) {
	var out bytes.Buffer
	if err := printTranscribeResult(&out, transcribeResult{Backend: "scripted", Status: "pass", Text: "hi"}, false); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hi\n" {
		t.Errorf("plain output = %q", out.String())
	}

	out.Reset()
	if err := printTranscribeResult(&out, transcribeResult{Backend: "scripted", Status: "fail", Error: "no-speech"}, true); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(out.String(), `"status": "fail"`) {
		t.Errorf("json output = %q", out.String())
	}

	if err := printTranscribeResult(&out, transcribeResult{Backend: "scripted", Status: "fail", Error: "no-speech"}, false); err == nil {
		t.Error("failed result should be an error in plain mode")
	}
}
