package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

const reloadDelay = 250 * time.Millisecond

// PinMapWatcher reloads a pin map file when it changes on disk and hands
// each valid, changed map to onChange. Invalid edits are logged and the
// previous map stays in effect. A map that onChange rejects is retried on
// the next change even if the file content is the same.
type PinMapWatcher struct {
	path     string
	current  PinMap
	delay    time.Duration
	onChange func(PinMap) error
	logger   zerolog.Logger
}

func NewPinMapWatcher(path string, current PinMap, onChange func(PinMap) error, logger zerolog.Logger) *PinMapWatcher {
	return &PinMapWatcher{
		path:     path,
		current:  current,
		delay:    reloadDelay,
		onChange: onChange,
		logger:   logger.With().Str("component", "pinmap").Str("path", path).Logger(),
	}
}

// Watch blocks until ctx is done.
func (w *PinMapWatcher) Watch(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}
	defer fw.Close()

	// Editors replace files by rename, so watch the directory.
	dir := filepath.Dir(w.path)
	file := filepath.Base(w.path)
	if err := fw.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	w.logger.Debug().Msg("watching pin map")

	// Timers only signal; reloads run on this goroutine, one at a time.
	reloadc := make(chan struct{}, 1)
	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()
	schedule := func() {
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(w.delay, func() {
			select {
			case reloadc <- struct{}{}:
			default:
			}
		})
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-reloadc:
			w.reload()
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Base(ev.Name) != file {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				schedule()
			}
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("pin map watch error")
		}
	}
}

func (w *PinMapWatcher) reload() {
	m, err := LoadPinMap(w.path)
	if err != nil {
		w.logger.Warn().Err(err).Msg("pin map rejected, keeping previous")
		return
	}
	if m.Equal(w.current) {
		w.logger.Debug().Msg("pin map unchanged")
		return
	}
	if err := w.onChange(m); err != nil {
		w.logger.Error().Err(err).Msg("pin map not applied")
		return
	}
	w.current = m
	w.logger.Info().Ints("pins", m.Pins()).Msg("pin map reloaded")
}
