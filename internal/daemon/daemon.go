package daemon

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/leonardotrapani/voicepad/internal/bus"
	"github.com/leonardotrapani/voicepad/internal/clipboard"
	"github.com/leonardotrapani/voicepad/internal/config"
	"github.com/leonardotrapani/voicepad/internal/metrics"
	"github.com/leonardotrapani/voicepad/internal/notify"
	"github.com/leonardotrapani/voicepad/internal/scratchpad"
	"github.com/leonardotrapani/voicepad/internal/speech"
)

type Daemon struct {
	configMgr *config.Manager
	metrics   *metrics.Metrics

	mu       sync.RWMutex
	notifier notify.Notifier
	copier   *clipboard.Copier

	// controller is nil when no speech backend is usable; unsupported
	// then holds the reason.
	controller  *scratchpad.Controller
	unsupported error

	startedMu sync.Mutex
	started   map[string]time.Time

	ctx    context.Context
	cancel context.CancelFunc
}

func New(configMgr *config.Manager) (*Daemon, error) {
	cfg := configMgr.GetConfig()

	ctx, cancel := context.WithCancel(context.Background())
	d := &Daemon{
		configMgr: configMgr,
		metrics:   metrics.New(),
		started:   make(map[string]time.Time),
		ctx:       ctx,
		cancel:    cancel,
	}
	if err := d.applyConfig(cfg); err != nil {
		cancel()
		return nil, err
	}

	capability, err := speech.Detect(cfg.Speech.Backends, cfg.Capabilities())
	if err != nil {
		log.Printf("Daemon: %v", err)
		d.unsupported = err
		return d, nil
	}
	handle, err := capability.Create(cfg.ToSpeechConfig())
	if err != nil {
		log.Printf("Daemon: failed to create %s recognizer: %v", capability.Name(), err)
		d.unsupported = fmt.Errorf("%w: %s: %v", speech.ErrUnsupported, capability.Name(), err)
		return d, nil
	}
	log.Printf("Daemon: using %s speech backend", capability.Name())

	d.controller = scratchpad.NewController(handle, scratchpad.Options{Hooks: d.hooks()})
	d.controller.Subscribe(func(s scratchpad.Snapshot) {
		if s.Listening {
			d.metrics.Listening.Set(1)
		} else {
			d.metrics.Listening.Set(0)
		}
	})

	configMgr.OnReload(d.onConfigReload)
	return d, nil
}

// applyConfig swaps the settings that may change while running.
func (d *Daemon) applyConfig(cfg *config.Config) error {
	var notifier notify.Notifier = notify.Nop{}
	if cfg.Notifications.Enabled {
		n, err := notify.New(cfg.Notifications.Type)
		if err != nil {
			return err
		}
		notifier = n
	}
	copier, err := clipboard.NewCopier(cfg.ToClipboardConfig())
	if err != nil {
		return err
	}

	d.mu.Lock()
	d.notifier = notifier
	d.copier = copier
	d.mu.Unlock()
	return nil
}

func (d *Daemon) onConfigReload(cfg *config.Config) {
	if err := d.applyConfig(cfg); err != nil {
		log.Printf("Daemon: failed to apply reloaded config: %v", err)
		return
	}
	d.notify(notify.ConfigReloaded, "")
}

func (d *Daemon) notify(kind notify.EventKind, detail string) {
	d.mu.RLock()
	n := d.notifier
	d.mu.RUnlock()
	go n.Notify(notify.Event{Kind: kind, Detail: detail})
}

func (d *Daemon) hooks() scratchpad.Hooks {
	return scratchpad.Hooks{
		Started: func(id string) {
			d.startedMu.Lock()
			d.started[id] = time.Now()
			d.startedMu.Unlock()

			d.metrics.SessionsStarted.Inc()
			d.notify(notify.ListeningStarted, "")
		},
		Committed: func(id, text string) {
			d.observeDuration(id)
			d.metrics.SessionsCommitted.Inc()
			d.metrics.CommittedChars.Add(float64(utf8.RuneCountInString(text)))
			d.notify(notify.SessionCommitted, text)
		},
		Failed: func(id, kind string) {
			d.observeDuration(id)
			d.metrics.EngineErrors.WithLabelValues(kind).Inc()
			d.notify(notify.RecognitionError, kind)
		},
	}
}

func (d *Daemon) observeDuration(id string) {
	d.startedMu.Lock()
	start, ok := d.started[id]
	delete(d.started, id)
	d.startedMu.Unlock()
	if ok {
		d.metrics.SessionDuration.Observe(time.Since(start).Seconds())
	}
}

func (d *Daemon) Run() error {
	if err := bus.CheckExistingDaemon(); err != nil {
		return err
	}

	ln, err := bus.Listen()
	if err != nil {
		return err
	}
	defer ln.Close()

	if err := bus.CreatePidFile(); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}
	defer bus.RemovePidFile()

	if err := d.configMgr.StartWatching(d.ctx); err != nil {
		log.Printf("Daemon: config hot reload disabled: %v", err)
	}
	defer d.configMgr.Stop()

	if addr := d.configMgr.GetConfig().Metrics.Listen; addr != "" {
		go func() {
			log.Printf("Daemon: serving metrics on %s", addr)
			if err := d.metrics.Serve(d.ctx, addr); err != nil {
				log.Printf("Daemon: metrics server failed: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			log.Printf("Received signal %v, shutting down gracefully", sig)
			d.cancel()
		case <-d.ctx.Done():
		}
	}()

	// Close the listener when context is done
	go func() {
		<-d.ctx.Done()
		ln.Close()
	}()

	log.Printf("Daemon started, listening on socket")

	for {
		c, err := ln.Accept()
		if err != nil {
			if d.ctx.Err() != nil {
				log.Printf("Shutdown requested")
				if d.controller != nil {
					d.controller.Close()
				}
				return nil
			}
			log.Printf("Accept error: %v", err)
			return fmt.Errorf("accept failed: %w", err)
		}
		go d.handle(c)
	}
}

func (d *Daemon) handle(c net.Conn) {
	defer c.Close()

	line, err := bufio.NewReader(c).ReadString('\n')
	if err != nil && (err != io.EOF || line == "") {
		log.Printf("Client read error: %v", err)
		fmt.Fprintf(c, "ERR read_error: %v\n", err)
		return
	}
	req, err := bus.ParseRequest(line)
	if err != nil {
		fmt.Fprintf(c, "ERR bad_request: %v\n", err)
		return
	}

	switch req.Cmd {
	case 'v':
		fmt.Fprintf(c, "STATUS proto=%s\n", bus.ProtoVer)
		return
	case 'q':
		fmt.Fprint(c, "OK quitting\n")
		d.cancel()
		return
	}

	if d.controller == nil {
		fmt.Fprintf(c, "ERR unsupported: %s\n", oneLine(d.unsupported.Error()))
		return
	}

	switch req.Cmd {
	case 't':
		listening, err := d.controller.Toggle(d.ctx)
		if err != nil {
			fmt.Fprintf(c, "ERR %s: %s\n", speech.ErrorKind(err, speech.KindStartFailed), oneLine(err.Error()))
			return
		}
		if listening {
			fmt.Fprint(c, "OK listening\n")
		} else {
			fmt.Fprint(c, "OK idle\n")
		}
	case 'b':
		if err := d.controller.Start(d.ctx); err != nil {
			fmt.Fprintf(c, "ERR %s: %s\n", speech.ErrorKind(err, speech.KindStartFailed), oneLine(err.Error()))
			return
		}
		fmt.Fprint(c, "OK listening\n")
	case 'e':
		if err := d.controller.Stop(); err != nil {
			log.Printf("Daemon: stop failed: %v", err)
		}
		fmt.Fprint(c, "OK idle\n")
	case 's':
		snap := d.controller.Snapshot()
		fmt.Fprintf(c, "STATUS state=%s error=%s\n", snap.State, snap.Error)
	case 'g':
		fmt.Fprintf(c, "TEXT %s\n", strconv.Quote(d.controller.Text()))
	case 'i':
		fmt.Fprintf(c, "TEXT %s\n", strconv.Quote(d.controller.InFlight()))
	case 'r':
		d.controller.ReplaceAll(req.Payload)
		fmt.Fprint(c, "OK replaced\n")
	case 'y':
		backend, err := d.copy(d.ctx)
		if err != nil {
			fmt.Fprintf(c, "ERR copy_failed: %s\n", oneLine(err.Error()))
			return
		}
		fmt.Fprintf(c, "OK copied backend=%s\n", backend)
	case 'w':
		d.watch(c)
	default:
		log.Printf("Unknown command: %c", req.Cmd)
		fmt.Fprintf(c, "ERR unknown=%q\n", req.Cmd)
	}
}

// copy writes the scratchpad to the clipboard and reports the outcome to
// the user either way.
func (d *Daemon) copy(ctx context.Context) (string, error) {
	d.mu.RLock()
	copier := d.copier
	d.mu.RUnlock()

	backend, err := copier.Copy(ctx, d.controller.Text())
	d.metrics.CopyResult(backend)
	if err != nil {
		log.Printf("Daemon: copy failed: %v", err)
		d.notify(notify.CopyFailed, oneLine(err.Error()))
		return "", err
	}
	d.notify(notify.Copied, backend)
	return backend, nil
}

// watch streams a SNAPSHOT line for the current state and every change
// until the client hangs up. Slow clients only see the latest state.
func (d *Daemon) watch(c net.Conn) {
	updates := make(chan scratchpad.Snapshot, 1)
	unsubscribe := d.controller.Subscribe(func(s scratchpad.Snapshot) {
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	})
	defer unsubscribe()

	gone := make(chan struct{})
	go func() {
		_, _ = io.Copy(io.Discard, c)
		close(gone)
	}()

	snap := d.controller.Snapshot()
	for {
		data, err := json.Marshal(snap)
		if err != nil {
			log.Printf("Daemon: encode snapshot: %v", err)
			return
		}
		if _, err := fmt.Fprintf(c, "SNAPSHOT %s\n", data); err != nil {
			return
		}

		select {
		case snap = <-updates:
		case <-gone:
			return
		case <-d.ctx.Done():
			return
		}
	}
}

func oneLine(s string) string {
	return strings.ReplaceAll(s, "\n", "; ")
}

// Shutdown stops the daemon as if it received "q".
func (d *Daemon) Shutdown() {
	d.cancel()
}
