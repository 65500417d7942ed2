package bus

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

const SockName = "control.sock"
const PidName = "voicepad.pid"
const ProtoVer = "0.2"

const dirName = "voicepad"

// ~/.cache/voicepad/control.sock
func getSockPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dirName, SockName), nil
}

// ~/.cache/voicepad/voicepad.pid
func getPidPath() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dirName, PidName), nil
}

func SockPath() (string, error) { return getSockPath() }

// Request is one command line sent to the daemon.
type Request struct {
	Cmd     byte
	Payload string
}

// Encode renders r as "c\n" or, with a payload, `c "quoted"\n`.
func (r Request) Encode() string {
	if r.Payload == "" {
		return string(r.Cmd) + "\n"
	}
	return string(r.Cmd) + " " + strconv.Quote(r.Payload) + "\n"
}

func ParseRequest(line string) (Request, error) {
	line = strings.TrimRight(line, "\r\n")
	if line == "" {
		return Request{}, errors.New("empty request")
	}
	req := Request{Cmd: line[0]}
	rest := line[1:]
	if rest == "" {
		return req, nil
	}
	if rest[0] != ' ' {
		return Request{}, fmt.Errorf("malformed request %q", line)
	}
	payload, err := strconv.Unquote(rest[1:])
	if err != nil {
		return Request{}, fmt.Errorf("malformed payload: %w", err)
	}
	req.Payload = payload
	return req, nil
}

// ResponseError turns an "ERR ..." response into an error.
func ResponseError(resp string) error {
	resp = strings.TrimSpace(resp)
	if msg, ok := strings.CutPrefix(resp, "ERR "); ok {
		return errors.New(msg)
	}
	return nil
}

// ParseText decodes a `TEXT "quoted"` response.
func ParseText(resp string) (string, error) {
	if err := ResponseError(resp); err != nil {
		return "", err
	}
	quoted, ok := strings.CutPrefix(strings.TrimRight(resp, "\r\n"), "TEXT ")
	if !ok {
		return "", fmt.Errorf("unexpected response %q", strings.TrimSpace(resp))
	}
	return strconv.Unquote(quoted)
}

type socketManager struct {
	path string
}

func defaultSocketManager() (*socketManager, error) {
	sp, err := getSockPath()
	if err != nil {
		return nil, err
	}
	return &socketManager{path: sp}, nil
}

func (s *socketManager) listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(s.path) // stale socket from last run
	return net.Listen("unix", s.path)
}

func (s *socketManager) dial() (net.Conn, error) {
	return net.Dial("unix", s.path)
}

func (s *socketManager) send(req Request) (string, error) {
	c, err := s.dial()
	if err != nil {
		return "", err
	}
	defer c.Close()

	if _, err := io.WriteString(c, req.Encode()); err != nil {
		return "", err
	}
	return bufio.NewReader(c).ReadString('\n')
}

func (s *socketManager) stream(ctx context.Context, req Request, fn func(line string) error) error {
	c, err := s.dial()
	if err != nil {
		return err
	}
	defer c.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	if _, err := io.WriteString(c, req.Encode()); err != nil {
		return err
	}

	scanner := bufio.NewScanner(c)
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		if err := fn(scanner.Text()); err != nil {
			return err
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	return scanner.Err()
}

func Listen() (net.Listener, error) {
	sm, err := defaultSocketManager()
	if err != nil {
		return nil, err
	}
	return sm.listen()
}

func Dial() (net.Conn, error) {
	sm, err := defaultSocketManager()
	if err != nil {
		return nil, err
	}
	return sm.dial()
}

func SendCommand(cmd byte) (string, error) {
	return SendRequest(Request{Cmd: cmd})
}

func SendRequest(req Request) (string, error) {
	sm, err := defaultSocketManager()
	if err != nil {
		return "", err
	}
	return sm.send(req)
}

// Stream sends req and calls fn for every response line until the daemon
// hangs up, fn fails or ctx is cancelled.
func Stream(ctx context.Context, req Request, fn func(line string) error) error {
	sm, err := defaultSocketManager()
	if err != nil {
		return err
	}
	return sm.stream(ctx, req, fn)
}

type pidManager struct {
	path string
}

func defaultPidManager() (*pidManager, error) {
	pp, err := getPidPath()
	if err != nil {
		return nil, err
	}
	return &pidManager{path: pp}, nil
}

func (p *pidManager) create() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func (p *pidManager) remove() error {
	return os.Remove(p.path)
}

// checkExisting fails when the PID file names a live process. Stale or
// invalid PID files are removed.
func (p *pidManager) checkExisting() error {
	pidData, err := os.ReadFile(p.path)
	if os.IsNotExist(err) {
		return nil // no existing daemon
	}
	if err != nil {
		return err
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(pidData)))
	if err != nil || !p.isProcessAlive(pid) {
		_ = os.Remove(p.path)
		return nil
	}
	return fmt.Errorf("daemon already running with PID %d", pid)
}

func (p *pidManager) isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func CheckExistingDaemon() error {
	pm, err := defaultPidManager()
	if err != nil {
		return err
	}
	return pm.checkExisting()
}

func CreatePidFile() error {
	pm, err := defaultPidManager()
	if err != nil {
		return err
	}
	return pm.create()
}

func RemovePidFile() error {
	pm, err := defaultPidManager()
	if err != nil {
		return err
	}
	return pm.remove()
}
