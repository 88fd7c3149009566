package gpio

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// Pull is the input bias applied to a line.
type Pull int

const (
	PullOff Pull = iota
	PullUp
	PullDown
)

func (p Pull) String() string {
	switch p {
	case PullOff:
		return "off"
	case PullUp:
		return "up"
	case PullDown:
		return "down"
	default:
		return fmt.Sprintf("pull(%d)", int(p))
	}
}

// ParsePull accepts "off", "up" or "down".
func ParsePull(s string) (Pull, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "off", "none":
		return PullOff, nil
	case "up":
		return PullUp, nil
	case "down":
		return PullDown, nil
	default:
		return PullOff, fmt.Errorf("unknown pull %q", s)
	}
}

var ErrWatcherClosed = errors.New("gpio watcher closed")

// Chip is the line controller a Watcher drives.
type Chip interface {
	Open() error
	Setup(pin int, pull Pull) error
	EdgeDetected(pin int) bool
	Release(pin int) error
	Close() error
}

type WatcherConfig struct {
	Pull         Pull
	Bounce       time.Duration
	PollInterval time.Duration
}

func GetDefaultConfig() WatcherConfig {
	return WatcherConfig{
		Pull:         PullOff,
		Bounce:       200 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}
}

type line struct {
	limiter *rate.Limiter
}

// Watcher polls armed lines for rising edges and reports each accepted
// edge to a handler. Edges inside the bounce window of the previous
// accepted edge on the same line are dropped.
type Watcher struct {
	mu     sync.Mutex
	chip   Chip
	config WatcherConfig
	lines  map[int]*line
	closed bool
	logger zerolog.Logger
}

// NewWatcher opens the chip.
func NewWatcher(chip Chip, config WatcherConfig, logger zerolog.Logger) (*Watcher, error) {
	defaults := GetDefaultConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = defaults.PollInterval
	}
	if config.Bounce < 0 {
		config.Bounce = 0
	}
	if err := chip.Open(); err != nil {
		return nil, fmt.Errorf("failed to open gpio chip: %w", err)
	}
	return &Watcher{
		chip:   chip,
		config: config,
		lines:  make(map[int]*line),
		logger: logger.With().Str("component", "gpio").Logger(),
	}, nil
}

func (w *Watcher) newLimiter() *rate.Limiter {
	if w.config.Bounce == 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(w.config.Bounce), 1)
}

// Add arms pin for rising-edge detection. Adding an armed pin is a no-op.
func (w *Watcher) Add(pin int) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return ErrWatcherClosed
	}
	if _, ok := w.lines[pin]; ok {
		return nil
	}
	if err := w.chip.Setup(pin, w.config.Pull); err != nil {
		return fmt.Errorf("setup pin %d: %w", pin, err)
	}
	w.lines[pin] = &line{limiter: w.newLimiter()}
	w.logger.Debug().Int("pin", pin).Stringer("pull", w.config.Pull).Msg("line armed")
	return nil
}

// Remove releases pin. It reports whether the pin was armed.
func (w *Watcher) Remove(pin int) (bool, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.lines[pin]; !ok {
		return false, nil
	}
	delete(w.lines, pin)
	if err := w.chip.Release(pin); err != nil {
		return true, fmt.Errorf("release pin %d: %w", pin, err)
	}
	w.logger.Debug().Int("pin", pin).Msg("line released")
	return true, nil
}

// Pins returns the armed pins in ascending order.
func (w *Watcher) Pins() []int {
	w.mu.Lock()
	defer w.mu.Unlock()

	pins := make([]int, 0, len(w.lines))
	for pin := range w.lines {
		pins = append(pins, pin)
	}
	sort.Ints(pins)
	return pins
}

// Watch blocks until ctx is done or the watcher is closed, calling handler
// on the polling goroutine for every accepted edge.
func (w *Watcher) Watch(ctx context.Context, handler func(pin int)) error {
	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		fired, err := w.poll()
		if err != nil {
			return err
		}
		for _, pin := range fired {
			handler(pin)
		}
	}
}

func (w *Watcher) poll() ([]int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil, ErrWatcherClosed
	}

	var fired []int
	now := time.Now()
	for pin, l := range w.lines {
		if !w.chip.EdgeDetected(pin) {
			continue
		}
		if !l.limiter.AllowN(now, 1) {
			w.logger.Debug().Int("pin", pin).Msg("bounce suppressed")
			continue
		}
		fired = append(fired, pin)
	}
	sort.Ints(fired)
	return fired, nil
}

// Close releases every line and the chip. Safe to call more than once.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true

	var errs []error
	for pin := range w.lines {
		if err := w.chip.Release(pin); err != nil {
			errs = append(errs, fmt.Errorf("release pin %d: %w", pin, err))
		}
	}
	w.lines = make(map[int]*line)
	if err := w.chip.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close gpio chip: %w", err))
	}
	return errors.Join(errs...)
}
