package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/d1nch8g/gpiobell/app"
	"github.com/d1nch8g/gpiobell/config"
	"github.com/d1nch8g/gpiobell/logging"
)

var (
	logger zerolog.Logger
	cfg    *config.Config

	envFile    string
	pinMapPath string
)

var rootCmd = &cobra.Command{
	Use:          "gpiobell",
	Short:        "Play audio clips when buttons on GPIO lines are pressed",
	Long:         "gpiobell watches Raspberry Pi GPIO lines and plays the next clip of each line's playlist on a rising edge, stopping whatever was playing before.",
	SilenceUsage: true,
	RunE:         runDaemon,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the button watcher",
	RunE:  runDaemon,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "optional env file with GPIOBELL_* settings")
	rootCmd.PersistentFlags().StringVar(&pinMapPath, "pin-map", "", "pin map YAML file (overrides GPIOBELL_PIN_MAP)")
	rootCmd.AddCommand(runCmd, playCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() error {
	var err error
	cfg, err = config.Load(envFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if pinMapPath != "" {
		cfg.PinMapPath = pinMapPath
	}

	logger = logging.Setup(cfg.Environment, cfg.LogLevel)
	return nil
}

// loadPins falls back to the stock wiring when the pin map file is absent.
func loadPins() (config.PinMap, error) {
	pins, err := config.LoadPinMap(cfg.PinMapPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Warn().Str("path", cfg.PinMapPath).Msg("pin map not found, using built-in wiring")
		return config.DefaultPinMap(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pin map: %w", err)
	}
	return pins, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runDaemon(cmd *cobra.Command, args []string) error {
	if err := loadConfig(); err != nil {
		return err
	}
	pins, err := loadPins()
	if err != nil {
		return err
	}

	logger.Info().
		Str("audio_root", cfg.AudioRoot).
		Str("backend", cfg.Backend).
		Ints("pins", pins.Pins()).
		Msg("gpiobell starting")

	a, err := app.New(cfg, pins, app.Options{}, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext()
	defer stop()

	if err := a.Run(ctx); err != nil {
		return err
	}
	logger.Info().Msg("gpiobell stopped")
	return nil
}
