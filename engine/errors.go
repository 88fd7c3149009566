package engine

import (
	"errors"
	"fmt"

	"github.com/d1nch8g/gpiobell/playlist"
)

var (
	// ErrClosed is returned by Trigger after Close.
	ErrClosed = errors.New("engine closed")

	// ErrConcurrencyViolation reports a preempted playback unit that kept
	// running past the stop timeout. The unit stays active and no new
	// playback is started.
	ErrConcurrencyViolation = errors.New("playback unit still running after stop timeout")

	ErrUnknownID = playlist.ErrUnknownID
)

// PlaybackError is a failure of the injected player. It never leaves the
// playback unit; the engine only logs it.
type PlaybackError struct {
	Unit string
	Clip string
	Err  error
}

func (e *PlaybackError) Error() string {
	return fmt.Sprintf("playback %s (unit %s): %v", e.Clip, e.Unit, e.Err)
}

func (e *PlaybackError) Unwrap() error { return e.Err }
