package engine

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/d1nch8g/gpiobell/playlist"
	"github.com/d1nch8g/gpiobell/sound"
	"github.com/d1nch8g/gpiobell/telemetry"
)

// State of the engine
type State int

const (
	Idle State = iota
	Playing
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// EngineConfig holds the configuration for the playback engine
type EngineConfig struct {
	// AudioRoot is joined in front of relative clip references.
	AudioRoot string

	// StopTimeout bounds the wait for a preempted unit to exit.
	// Zero waits indefinitely.
	StopTimeout time.Duration
}

// unit is one playback of one clip, owned by the engine until it exits.
type unit struct {
	id      string
	line    string
	clip    string
	cancel  context.CancelFunc
	done    chan struct{}
	started time.Time
}

// Engine schedules clip playback for trigger ids. At most one clip plays at
// a time: every trigger terminates the running clip before starting the next.
type Engine[K comparable] struct {
	config   EngineConfig
	registry *playlist.Registry[K]
	player   sound.Player
	metrics  *telemetry.Metrics
	logger   zerolog.Logger

	// mu serializes resolve -> terminate -> launch -> store.
	mu      sync.Mutex
	active  *unit
	last    K
	hasLast bool
	closed  bool
}

// NewEngine creates a new playback engine. metrics may be nil.
func NewEngine[K comparable](
	config EngineConfig,
	registry *playlist.Registry[K],
	player sound.Player,
	metrics *telemetry.Metrics,
	logger zerolog.Logger,
) *Engine[K] {
	if config.AudioRoot != "" {
		if abs, err := filepath.Abs(config.AudioRoot); err == nil {
			config.AudioRoot = abs
		}
	}

	return &Engine[K]{
		config:   config,
		registry: registry,
		player:   player,
		metrics:  metrics,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

// Register adds or replaces the playlist for id.
func (e *Engine[K]) Register(id K, clips ...string) error {
	if err := e.registry.Register(id, clips...); err != nil {
		return err
	}
	e.logger.Info().Str("line", fmt.Sprint(id)).Strs("clips", clips).Msg("playlist registered")
	return nil
}

// Trigger stops the clip in progress, if any, and starts the next clip of
// id's playlist. It returns without waiting for playback to finish.
func (e *Engine[K]) Trigger(id K) error {
	line := fmt.Sprint(id)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		e.metrics.Trigger(line, telemetry.ResultClosed)
		return ErrClosed
	}

	// An unknown id leaves playback untouched.
	if _, ok := e.registry.Cursor(id); !ok {
		e.metrics.Trigger(line, telemetry.ResultUnknown)
		return fmt.Errorf("trigger %v: %w", id, ErrUnknownID)
	}

	// A new unit starts only after the previous one has exited. A unit
	// that outlives the stop timeout stays active and the trigger fails.
	if e.active != nil {
		e.metrics.Preempted()
		if err := e.stop(e.active); err != nil {
			e.metrics.Trigger(line, telemetry.ResultBusy)
			e.logger.Error().Err(err).Str("line", line).Str("unit", e.active.id).Str("clip", e.active.clip).Msg("previous playback did not stop, trigger dropped")
			return err
		}
		e.active = nil
	}

	clip, err := e.registry.Next(id)
	if err != nil {
		e.metrics.Trigger(line, telemetry.ResultUnknown)
		e.metrics.SetPlaying(false)
		return err
	}

	u := e.launch(line, e.resolve(clip))
	e.active = u
	e.last = id
	e.hasLast = true

	e.metrics.Trigger(line, telemetry.ResultStarted)
	e.metrics.SetPlaying(true)
	e.logger.Info().Str("line", line).Str("clip", u.clip).Str("unit", u.id).Msg("playback started")
	return nil
}

// Close terminates the clip in progress and rejects further triggers.
// It must complete before the input lines are released.
func (e *Engine[K]) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return nil
	}
	e.closed = true

	if e.active != nil {
		if err := e.stop(e.active); err != nil {
			// The unit clears itself from active once it exits.
			e.logger.Error().Err(err).Str("unit", e.active.id).Str("clip", e.active.clip).Msg("playback still running at close")
			return err
		}
		e.active = nil
	}
	e.metrics.SetPlaying(false)
	e.logger.Info().Msg("engine closed")
	return nil
}

// State reports whether a clip is playing.
func (e *Engine[K]) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active != nil {
		return Playing
	}
	return Idle
}

// Active returns the resolved clip currently playing.
func (e *Engine[K]) Active() (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.active == nil {
		return "", false
	}
	return e.active.clip, true
}

// LastTriggered returns the id of the most recent successful trigger.
func (e *Engine[K]) LastTriggered() (K, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last, e.hasLast
}

func (e *Engine[K]) resolve(clip string) string {
	if e.config.AudioRoot == "" || filepath.IsAbs(clip) {
		return clip
	}
	return filepath.Join(e.config.AudioRoot, clip)
}

func (e *Engine[K]) launch(line, clip string) *unit {
	ctx, cancel := context.WithCancel(context.Background())
	u := &unit{
		id:      uuid.NewString(),
		line:    line,
		clip:    clip,
		cancel:  cancel,
		done:    make(chan struct{}),
		started: time.Now(),
	}
	go e.run(ctx, u)
	return u
}

// stop cancels u and waits for it to exit. Called with mu held.
func (e *Engine[K]) stop(u *unit) error {
	u.cancel()

	if e.config.StopTimeout <= 0 {
		<-u.done
		return nil
	}

	timer := time.NewTimer(e.config.StopTimeout)
	defer timer.Stop()

	select {
	case <-u.done:
		return nil
	case <-timer.C:
		e.metrics.StopTimeout()
		return fmt.Errorf("unit %s: %w", u.id, ErrConcurrencyViolation)
	}
}

func (e *Engine[K]) run(ctx context.Context, u *unit) {
	err := e.play(ctx, u)
	preempted := ctx.Err() != nil

	// done is closed before taking mu: Trigger and Close hold mu while waiting on it.
	close(u.done)
	u.cancel()

	logger := e.logger.With().
		Str("line", u.line).
		Str("clip", u.clip).
		Str("unit", u.id).
		Dur("elapsed", time.Since(u.started)).
		Logger()

	switch {
	case preempted:
		e.metrics.PlaybackEnded(telemetry.OutcomePreempted)
		logger.Debug().Msg("playback preempted")
	case err != nil:
		e.metrics.PlaybackEnded(telemetry.OutcomeFailed)
		logger.Error().Err(&PlaybackError{Unit: u.id, Clip: u.clip, Err: err}).Msg("playback failed")
	default:
		e.metrics.PlaybackEnded(telemetry.OutcomeFinished)
		logger.Debug().Msg("playback finished")
	}

	e.mu.Lock()
	if e.active == u {
		e.active = nil
		e.metrics.SetPlaying(false)
	}
	e.mu.Unlock()
}

func (e *Engine[K]) play(ctx context.Context, u *unit) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("player panic: %v", r)
		}
	}()
	return e.player.Play(ctx, u.clip)
}
