package bus

import (
	"bufio"
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

func TestPidFile(t *testing.T) {
	pm := &pidManager{path: filepath.Join(t.TempDir(), PidName)}

	tests := []struct {
		name     string
		content  string // "" means no file
		wantErr  bool
		wantKept bool
	}{
		{name: "no file"},
		{name: "running daemon", content: strconv.Itoa(os.Getpid()), wantErr: true, wantKept: true},
		{name: "stale pid", content: "99999"},
		{name: "garbage", content: "not-a-pid"},
		{name: "zero pid", content: "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_ = os.Remove(pm.path)
			if tt.content != "" {
				if err := os.WriteFile(pm.path, []byte(tt.content), 0o600); err != nil {
					t.Fatal(err)
				}
			}

			err := pm.checkExisting()
			if (err != nil) != tt.wantErr {
				t.Errorf("checkExisting() error = %v, wantErr %v", err, tt.wantErr)
			}
			_, statErr := os.Stat(pm.path)
			if kept := statErr == nil; kept != tt.wantKept {
				t.Errorf("pid file kept = %v, want %v", kept, tt.wantKept)
			}
		})
	}

	t.Run("create writes our pid", func(t *testing.T) {
		if err := pm.create(); err != nil {
			t.Fatalf("create() error = %v", err)
		}
		data, err := os.ReadFile(pm.path)
		if err != nil {
			t.Fatal(err)
		}
		if string(data) != strconv.Itoa(os.Getpid()) {
			t.Errorf("pid file = %q", data)
		}
		if err := pm.remove(); err != nil {
			t.Errorf("remove() error = %v", err)
		}
	})
}

func TestIsProcessAlive(t *testing.T) {
	pm := &pidManager{}
	tests := []struct {
		pid  int
		want bool
	}{
		{pid: os.Getpid(), want: true},
		{pid: 1, want: true}, // exists even when we may not signal it
		{pid: 99999, want: false},
		{pid: 0, want: false},
		{pid: -1, want: false},
	}
	for _, tt := range tests {
		if got := pm.isProcessAlive(tt.pid); got != tt.want {
			t.Errorf("isProcessAlive(%d) = %v, want %v", tt.pid, got, tt.want)
		}
	}
}

func TestSocketListen(t *testing.T) {
	sm := &socketManager{path: filepath.Join(t.TempDir(), "nested", SockName)}

	if _, err := sm.dial(); err == nil {
		t.Error("dial should fail without a listener")
	}

	// a socket left behind by a crashed daemon is replaced
	if err := os.MkdirAll(filepath.Dir(sm.path), 0o700); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(sm.path, nil, 0o600); err != nil {
		t.Fatal(err)
	}

	ln, err := sm.listen()
	if err != nil {
		t.Fatalf("listen() error = %v", err)
	}
	defer ln.Close()

	info, err := os.Stat(filepath.Dir(sm.path))
	if err != nil {
		t.Fatal(err)
	}
	if perm := info.Mode().Perm(); perm != 0o700 {
		t.Errorf("socket dir mode = %o, want 700", perm)
	}

	c, err := sm.dial()
	if err != nil {
		t.Fatalf("dial() error = %v", err)
	}
	c.Close()
}

// serve answers each connection with respond(request).
func serve(t *testing.T, sm *socketManager, respond func(Request) string) {
	t.Helper()
	listener, err := sm.listen()
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				line, err := bufioReadLine(c)
				if err != nil {
					return
				}
				req, err := ParseRequest(line)
				if err != nil {
					fmt.Fprintf(c, "ERR bad_request: %v\n", err)
					return
				}
				fmt.Fprint(c, respond(req))
			}(conn)
		}
	}()
}

func bufioReadLine(c net.Conn) (string, error) {
	return bufio.NewReader(c).ReadString('\n')
}

func TestSendCommandIntegration(t *testing.T) {
	sm := &socketManager{path: filepath.Join(t.TempDir(), SockName)}

	serve(t, sm, func(req Request) string {
		switch req.Cmd {
		case 't':
			return "OK listening\n"
		case 's':
			return "STATUS state=idle error=\n"
		case 'g':
			return "TEXT " + strconv.Quote("hello\n\nworld") + "\n"
		case 'r':
			return fmt.Sprintf("OK replaced len=%d\n", len(req.Payload))
		case 'v':
			return fmt.Sprintf("STATUS proto=%s\n", ProtoVer)
		case 'q':
			return "OK quitting\n"
		default:
			return fmt.Sprintf("ERR unknown=%q\n", req.Cmd)
		}
	})

	tests := []struct {
		req      Request
		expected string
	}{
		{Request{Cmd: 't'}, "OK listening\n"},
		{Request{Cmd: 's'}, "STATUS state=idle error=\n"},
		{Request{Cmd: 'g'}, "TEXT \"hello\\n\\nworld\"\n"},
		{Request{Cmd: 'r', Payload: "line one\nline \"two\""}, "OK replaced len=19\n"},
		{Request{Cmd: 'v'}, fmt.Sprintf("STATUS proto=%s\n", ProtoVer)},
		{Request{Cmd: 'q'}, "OK quitting\n"},
		{Request{Cmd: 'x'}, "ERR unknown='x'\n"},
	}

	for _, tt := range tests {
		resp, err := sm.send(tt.req)
		if err != nil {
			t.Errorf("command %c: send failed: %v", tt.req.Cmd, err)
			continue
		}
		if resp != tt.expected {
			t.Errorf("command %c: got %q, expected %q", tt.req.Cmd, resp, tt.expected)
		}
	}
}

func TestStream(t *testing.T) {
	sm := &socketManager{path: filepath.Join(t.TempDir(), SockName)}
	listener, err := sm.listen()
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer listener.Close()

	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		if _, err := bufioReadLine(conn); err != nil {
			return
		}
		for i := range 3 {
			fmt.Fprintf(conn, "SNAPSHOT %d\n", i)
		}
	}()

	var lines []string
	err = sm.stream(context.Background(), Request{Cmd: 'w'}, func(line string) error {
		lines = append(lines, line)
		return nil
	})
	if err != nil {
		t.Fatalf("stream failed: %v", err)
	}
	want := []string{"SNAPSHOT 0", "SNAPSHOT 1", "SNAPSHOT 2"}
	if strings.Join(lines, "|") != strings.Join(want, "|") {
		t.Errorf("lines = %q, want %q", lines, want)
	}
}

func TestStreamCancel(t *testing.T) {
	sm := &socketManager{path: filepath.Join(t.TempDir(), SockName)}
	listener, err := sm.listen()
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	defer listener.Close()

	release := make(chan struct{})
	defer close(release)
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		fmt.Fprint(conn, "SNAPSHOT first\n")
		<-release
	}()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sm.stream(ctx, Request{Cmd: 'w'}, func(string) error {
			cancel()
			return nil
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("cancelled stream returned %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not stop after cancel")
	}
}

func TestRequestEncoding(t *testing.T) {
	tests := []struct {
		name    string
		line    string
		want    Request
		wantErr bool
	}{
		{name: "bare command", line: "t\n", want: Request{Cmd: 't'}},
		{name: "no newline", line: "s", want: Request{Cmd: 's'}},
		{name: "quoted payload", line: "r \"a\\n\\nb\"\n", want: Request{Cmd: 'r', Payload: "a\n\nb"}},
		{name: "crlf", line: "g\r\n", want: Request{Cmd: 'g'}},
		{name: "empty", line: "\n", wantErr: true},
		{name: "missing space", line: "r\"x\"\n", wantErr: true},
		{name: "unquoted payload", line: "r hello\n", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseRequest(tt.line)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseRequest(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("ParseRequest(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}

	for _, req := range []Request{{Cmd: 't'}, {Cmd: 'r', Payload: "multi\nline \"text\" ✓"}} {
		got, err := ParseRequest(req.Encode())
		if err != nil || got != req {
			t.Errorf("ParseRequest(%q) = %+v, %v", req.Encode(), got, err)
		}
	}
}

func TestParseText(t *testing.T) {
	tests := []struct {
		resp    string
		want    string
		wantErr string
	}{
		{resp: "TEXT \"hello\"\n", want: "hello"},
		{resp: "TEXT \"\"\n", want: ""},
		{resp: "ERR unsupported: no backend\n", wantErr: "unsupported: no backend"},
		{resp: "OK idle\n", wantErr: "unexpected response"},
	}
	for _, tt := range tests {
		got, err := ParseText(tt.resp)
		if tt.wantErr != "" {
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("ParseText(%q) error = %v, want %q", tt.resp, err, tt.wantErr)
			}
			continue
		}
		if err != nil || got != tt.want {
			t.Errorf("ParseText(%q) = %q, %v", tt.resp, got, err)
		}
	}

	if err := ResponseError("OK copied backend=system\n"); err != nil {
		t.Errorf("ResponseError(OK) = %v", err)
	}
}

func TestPathFunctions(t *testing.T) {
	cache := t.TempDir()
	t.Setenv("XDG_CACHE_HOME", cache)

	t.Run("SockPath", func(t *testing.T) {
		path, err := SockPath()
		if err != nil {
			t.Fatalf("SockPath failed: %v", err)
		}
		if path != filepath.Join(cache, dirName, SockName) {
			t.Errorf("SockPath = %s", path)
		}
	})

	t.Run("getPidPath", func(t *testing.T) {
		path, err := getPidPath()
		if err != nil {
			t.Fatalf("getPidPath failed: %v", err)
		}
		if path != filepath.Join(cache, dirName, PidName) {
			t.Errorf("getPidPath = %s", path)
		}
	})
}

func TestPublicAPIWithTempDirs(t *testing.T) {
	t.Setenv("XDG_CACHE_HOME", t.TempDir())

	t.Run("CheckExistingDaemon with no daemon", func(t *testing.T) {
		if err := CheckExistingDaemon(); err != nil {
			t.Errorf("CheckExistingDaemon should succeed when no daemon running: %v", err)
		}
	})

	t.Run("CreatePidFile and RemovePidFile", func(t *testing.T) {
		pidPath, _ := getPidPath()

		if err := CreatePidFile(); err != nil {
			t.Fatalf("CreatePidFile failed: %v", err)
		}
		if _, err := os.Stat(pidPath); os.IsNotExist(err) {
			t.Error("PID file should exist after CreatePidFile")
		}
		if err := CheckExistingDaemon(); err == nil {
			t.Error("CheckExistingDaemon should fail while our PID file exists")
		}

		if err := RemovePidFile(); err != nil {
			t.Fatalf("RemovePidFile failed: %v", err)
		}
		if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
			t.Error("PID file should not exist after RemovePidFile")
		}
	})

	t.Run("Listen and SendCommand", func(t *testing.T) {
		ln, err := Listen()
		if err != nil {
			t.Fatalf("Listen failed: %v", err)
		}
		defer ln.Close()

		go func() {
			c, err := ln.Accept()
			if err != nil {
				return
			}
			defer c.Close()
			if _, err := bufioReadLine(c); err == nil {
				fmt.Fprint(c, "OK idle\n")
			}
		}()

		resp, err := SendCommand('e')
		if err != nil || resp != "OK idle\n" {
			t.Errorf("SendCommand = %q, %v", resp, err)
		}
	})
}
