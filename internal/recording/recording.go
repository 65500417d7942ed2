package recording

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// AudioFrame is one chunk of raw s16 little-endian PCM from the microphone.
type AudioFrame struct {
	Data      []byte
	Timestamp time.Time
}

type Config struct {
	SampleRate        int
	Channels          int
	Format            string
	BufferSize        int
	Device            string
	ChannelBufferSize int
}

func DefaultConfig() Config {
	return Config{
		SampleRate:        16000,
		Channels:          1,
		Format:            "s16",
		BufferSize:        8192,
		Device:            "",
		ChannelBufferSize: 30,
	}
}

// Source starts microphone capture. Recorder is the pw-record implementation.
type Source interface {
	Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error)
	Stop() error
}

// Recorder captures audio through pw-record. One capture runs at a time.
type Recorder struct {
	config Config

	mu     sync.Mutex
	active bool
	cancel context.CancelFunc

	wg sync.WaitGroup
}

func NewRecorder(config Config) *Recorder {
	return &Recorder{config: config}
}

func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Start launches pw-record. Both channels close when ctx is cancelled, Stop
// is called or the process exits; errCh carries at most one error.
func (r *Recorder) Start(ctx context.Context) (<-chan AudioFrame, <-chan error, error) {
	if err := validateConfig(r.config); err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active {
		return nil, nil, fmt.Errorf("already recording")
	}

	captureCtx, cancel := context.WithCancel(ctx)
	r.active = true
	r.cancel = cancel

	frames := make(chan AudioFrame, r.config.ChannelBufferSize)
	errs := make(chan error, 1)

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.finish()
		defer close(errs)
		defer close(frames)

		if err := r.capture(captureCtx, frames); err != nil {
			log.Printf("Recording error: %v", err)
			errs <- err
		}
	}()

	return frames, errs, nil
}

func (r *Recorder) Stop() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	return nil
}

// Wait blocks until the capture goroutine has exited.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

func (r *Recorder) finish() {
	r.mu.Lock()
	if r.cancel != nil {
		r.cancel()
	}
	r.cancel = nil
	r.active = false
	r.mu.Unlock()
}

// capture runs pw-record until ctx ends or the stream does. A clean end
// returns nil.
func (r *Recorder) capture(ctx context.Context, frames chan<- AudioFrame) error {
	cmd := exec.CommandContext(ctx, "pw-record", pwRecordArgs(r.config)...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("create stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start pw-record: %w", err)
	}
	defer func() { _ = cmd.Wait() }()

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			log.Printf("Recording stderr: %s", scanner.Text())
		}
	}()

	err = forwardFrames(ctx, stdout, r.config.BufferSize, frames)
	if err == nil || errors.Is(err, io.EOF) || ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("read audio: %w", err)
}

// forwardFrames copies src into frames in reads of up to size bytes.
// Frames are dropped, not queued, while the consumer is behind.
func forwardFrames(ctx context.Context, src io.Reader, size int, frames chan<- AudioFrame) error {
	buf := make([]byte, size)
	var dropped int
	lastReport := time.Now()

	for ctx.Err() == nil {
		n, err := src.Read(buf)
		if n > 0 {
			frame := AudioFrame{Data: append([]byte(nil), buf[:n]...), Timestamp: time.Now()}
			select {
			case frames <- frame:
			case <-ctx.Done():
				return nil
			default:
				dropped++
				if time.Since(lastReport) > time.Second {
					log.Printf("Recording: dropped %d frames, consumer too slow", dropped)
					dropped, lastReport = 0, time.Now()
				}
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func pwRecordArgs(c Config) []string {
	args := []string{
		"--format", c.Format,
		"--rate", strconv.Itoa(c.SampleRate),
		"--channels", strconv.Itoa(c.Channels),
		"-",
	}
	if c.Device != "" {
		args = append(args, "--target", c.Device)
	}
	return args
}

func validateConfig(c Config) error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("invalid SampleRate: %d", c.SampleRate)
	}
	if c.Channels <= 0 {
		return fmt.Errorf("invalid Channels: %d", c.Channels)
	}
	if c.BufferSize <= 0 {
		return fmt.Errorf("invalid BufferSize: %d", c.BufferSize)
	}
	if c.ChannelBufferSize <= 0 {
		return fmt.Errorf("invalid ChannelBufferSize: %d", c.ChannelBufferSize)
	}
	if c.Format == "" {
		return fmt.Errorf("invalid Format: empty")
	}
	if c.Format == "s16" {
		frameBytes := 2 * c.Channels
		if c.BufferSize%frameBytes != 0 {
			log.Printf("Recording: BufferSize %d not aligned to frame size %d; audio frames may split",
				c.BufferSize, frameBytes)
		}
	}
	return nil
}

// CheckPipeWireAvailable verifies pw-record exists and the PipeWire daemon answers.
func CheckPipeWireAvailable(ctx context.Context) error {
	if _, err := exec.LookPath("pw-record"); err != nil {
		return fmt.Errorf("pw-record not found: %w (install pipewire-tools)", err)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	checkCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := exec.CommandContext(checkCtx, "pw-cli", "info").Run(); err != nil {
		return fmt.Errorf("PipeWire not running or accessible: %w", err)
	}
	return nil
}
