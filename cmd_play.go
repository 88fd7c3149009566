package main

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/d1nch8g/gpiobell/sound"
)

var playCmd = &cobra.Command{
	Use:   "play <clip>",
	Short: "Play one clip through the configured backend",
	Long:  "Play a clip until it ends or Ctrl+C is pressed. Relative names are resolved against GPIOBELL_AUDIO_ROOT.",
	Args:  cobra.ExactArgs(1),
	RunE:  runPlay,
}

func runPlay(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}

	clip := args[0]
	if !filepath.IsAbs(clip) {
		clip = filepath.Join(cfg.AudioRoot, clip)
	}

	device, err := sound.New(sound.Config{
		Backend:         cfg.Backend,
		FramesPerBuffer: cfg.FramesPerBuffer,
		SampleRate:      cfg.SampleRate,
		Command:         cfg.PlayerCommand,
	}, afero.NewOsFs(), logger)
	if err != nil {
		return err
	}
	if err := device.Initialize(); err != nil {
		return fmt.Errorf("failed to initialize audio backend: %w", err)
	}
	defer device.Terminate()

	ctx, stop := signalContext()
	defer stop()

	logger.Info().Str("clip", clip).Str("backend", cfg.Backend).Msg("playing")
	if err := device.Play(ctx, clip); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
