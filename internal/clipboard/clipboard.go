package clipboard

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// ErrNoBackend is returned when none of the configured backends can run.
var ErrNoBackend = errors.New("no clipboard backend available")

// Backend writes text to one clipboard implementation.
type Backend interface {
	Name() string
	// Available returns nil when the backend can be used, otherwise the reason.
	Available() error
	Write(ctx context.Context, text string) error
}

type Config struct {
	Backends []string      // tried in order
	Timeout  time.Duration // per backend
}

func DefaultConfig() Config {
	return Config{
		Backends: []string{"wl-copy", "system"},
		Timeout:  3 * time.Second,
	}
}

// Copier copies text through the first backend that works.
type Copier struct {
	backends []Backend
	timeout  time.Duration
}

func NewCopier(cfg Config) (*Copier, error) {
	var backends []Backend
	for _, name := range cfg.Backends {
		b, err := backendByName(name)
		if err != nil {
			return nil, err
		}
		backends = append(backends, b)
	}
	return newCopier(cfg.Timeout, backends...), nil
}

func newCopier(timeout time.Duration, backends ...Backend) *Copier {
	if timeout <= 0 {
		timeout = DefaultConfig().Timeout
	}
	return &Copier{backends: backends, timeout: timeout}
}

func backendByName(name string) (Backend, error) {
	switch name {
	case "wl-copy":
		return wlCopy{}, nil
	case "system":
		return system{}, nil
	}
	return nil, fmt.Errorf("unknown clipboard backend %q", name)
}

// Copy writes text and returns the name of the backend that took it.
func (c *Copier) Copy(ctx context.Context, text string) (string, error) {
	var errs []error
	for _, b := range c.backends {
		if err := b.Available(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}

		bctx, cancel := context.WithTimeout(ctx, c.timeout)
		err := b.Write(bctx, text)
		cancel()
		if err != nil {
			log.Printf("Clipboard: %s failed: %v", b.Name(), err)
			errs = append(errs, fmt.Errorf("%s: %w", b.Name(), err))
			continue
		}
		log.Printf("Clipboard: copied %d bytes via %s", len(text), b.Name())
		return b.Name(), nil
	}
	if len(errs) == 0 {
		return "", ErrNoBackend
	}
	return "", fmt.Errorf("%w: %w", ErrNoBackend, errors.Join(errs...))
}
